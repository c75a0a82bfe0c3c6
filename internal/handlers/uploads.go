package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/vidstream/backend/internal/logging"
	"github.com/vidstream/backend/internal/storage"
)

const maxDirectUpload = 10 << 20

// UploadHandler hands out upload URLs for the media host and accepts small image uploads.
type UploadHandler struct {
	Media MediaStore
}

// Presign handles POST /api/uploads/presign.
func (h UploadHandler) Presign(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	var req presignRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	key, err := storage.ObjectKey(req.Kind, claims.UserID, strings.TrimSpace(req.ContentType))
	if err != nil {
		respondError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}

	upload, err := h.Media.PresignUpload(ctx, key, req.ContentType)
	if err != nil {
		logging.FromContext(ctx).Errorw("presign upload", "error", err, "key", key)
		respondError(ctx, w, http.StatusInternalServerError, "unable to prepare upload")
		return
	}

	respondJSON(ctx, w, http.StatusOK, upload)
}

// Upload handles POST /api/uploads with a multipart "file" field. Only images are
// accepted here; videos go through a presigned URL.
func (h UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, maxDirectUpload+(1<<20))
	if err := r.ParseMultipartForm(maxDirectUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(ctx, w, http.StatusBadRequest, "file exceeds the 10 MiB limit")
			return
		}
		respondError(ctx, w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(ctx, w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	if header.Size > maxDirectUpload {
		respondError(ctx, w, http.StatusBadRequest, "file exceeds the 10 MiB limit")
		return
	}

	kind := r.FormValue("kind")
	if kind == "" {
		kind = storage.KindThumbnail
	}
	if kind == storage.KindVideo {
		respondError(ctx, w, http.StatusBadRequest, "upload videos through a presigned URL")
		return
	}

	contentType, err := sniffContentType(file, header.Header.Get("Content-Type"))
	if err != nil {
		respondError(ctx, w, http.StatusBadRequest, "unable to read file")
		return
	}

	key, err := storage.ObjectKey(kind, claims.UserID, contentType)
	if err != nil {
		respondError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}

	publicURL, err := h.Media.Save(ctx, key, contentType, file)
	if err != nil {
		logger.Errorw("upload media", "error", err, "key", key)
		respondError(ctx, w, http.StatusInternalServerError, "failed to upload file")
		return
	}

	logger.Infow("media uploaded", "key", key, "bytes", header.Size)
	respondJSON(ctx, w, http.StatusCreated, uploadResponse{Key: key, PublicURL: publicURL})
}

// sniffContentType trusts a declared media type, otherwise detects it from the first
// bytes and rewinds the file.
func sniffContentType(file io.ReadSeeker, declared string) (string, error) {
	declared = strings.TrimSpace(strings.Split(declared, ";")[0])
	if declared != "" && declared != "application/octet-stream" {
		return declared, nil
	}

	buf := make([]byte, 512)
	n, err := file.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return strings.Split(http.DetectContentType(buf[:n]), ";")[0], nil
}

type presignRequest struct {
	Kind        string `json:"kind"`
	ContentType string `json:"contentType"`
}

type uploadResponse struct {
	Key       string `json:"key"`
	PublicURL string `json:"publicUrl"`
}
