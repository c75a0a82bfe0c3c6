package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/vidstream/backend/internal/auth"
	"github.com/vidstream/backend/internal/logging"
	"github.com/vidstream/backend/internal/models"
	"github.com/vidstream/backend/internal/repositories"
	"github.com/vidstream/backend/internal/social"
	"github.com/vidstream/backend/internal/storage"
)

const relatedVideosLimit = 8

// VideoHandler provides endpoints for publishing, browsing and reacting to videos.
type VideoHandler struct {
	Videos  VideoStore
	Users   UserStore
	Media   MediaStore
	NowFunc func() time.Time
}

// List handles GET /api/video.
func (h VideoHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	videos, err := h.Videos.List(ctx)
	if err != nil {
		logging.FromContext(ctx).Errorw("list videos", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to load videos")
		return
	}

	respondJSON(ctx, w, http.StatusOK, videoListResponse{Videos: newVideoViews(videos, auth.UserIDFromContext(ctx))})
}

// Create handles POST /api/video. The session user becomes the owner.
func (h VideoHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var req createVideoRequest
	if err := decodeJSON(w, r, &req); err != nil {
		logger.Warnw("invalid video payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		respondError(ctx, w, http.StatusBadRequest, "title is required")
		return
	}
	if !isHTTPURL(req.Video) || !isHTTPURL(req.Thumbnail) {
		respondError(ctx, w, http.StatusBadRequest, "video and thumbnail must be absolute http(s) URLs")
		return
	}

	transformation := models.Transformation{
		Width:   models.DefaultVideoWidth,
		Height:  models.DefaultVideoHeight,
		Quality: models.DefaultVideoQuality,
	}
	if t := req.Transformation; t != nil {
		if t.Width < 0 || t.Height < 0 || t.Quality < 0 || t.Quality > 100 {
			respondError(ctx, w, http.StatusBadRequest, "invalid transformation")
			return
		}
		if t.Width > 0 {
			transformation.Width = t.Width
		}
		if t.Height > 0 {
			transformation.Height = t.Height
		}
		if t.Quality > 0 {
			transformation.Quality = t.Quality
		}
	}

	controls := true
	if req.Controls != nil {
		controls = *req.Controls
	}

	now := h.now()
	video := models.Video{
		ID:             uuid.NewString(),
		OwnerID:        claims.UserID,
		Title:          req.Title,
		Description:    strings.TrimSpace(req.Description),
		VideoURL:       req.Video,
		ThumbnailURL:   req.Thumbnail,
		Transformation: transformation,
		Controls:       controls,
		Likes:          []string{},
		Dislikes:       []string{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := h.Videos.Create(ctx, video); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusUnauthorized, "account no longer exists")
			return
		}
		logger.Errorw("create video", "error", err, "userId", claims.UserID)
		respondError(ctx, w, http.StatusInternalServerError, "failed to save video")
		return
	}

	logger.Infow("video created", "videoId", video.ID)
	respondJSON(ctx, w, http.StatusCreated, videoResponse{Video: newVideoView(video, claims.UserID)})
}

// Get handles GET /api/videos/{id}.
func (h VideoHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)
	viewerID := auth.UserIDFromContext(ctx)

	video, ok := h.loadVideo(w, r)
	if !ok {
		return
	}

	related, err := h.Videos.ListRelated(ctx, video, relatedVideosLimit)
	if err != nil {
		logger.Errorw("list related videos", "error", err, "videoId", video.ID)
		respondError(ctx, w, http.StatusInternalServerError, "unable to load video")
		return
	}

	resp := videoDetailResponse{
		Video:   newVideoView(video, viewerID),
		Related: newVideoViews(related, viewerID),
	}

	owner, err := h.Users.FindByID(ctx, video.OwnerID)
	switch {
	case err == nil:
		channel := publicUser(owner)
		resp.Channel = &channel
		resp.SubscribersCount = len(owner.Subscribers)
		resp.IsSubscribed = social.IsSubscribed(owner, viewerID)
	case errors.Is(err, repositories.ErrNotFound):
		logger.Warnw("video owner missing", "videoId", video.ID, "ownerId", video.OwnerID)
	default:
		logger.Errorw("load video owner", "error", err, "videoId", video.ID)
		respondError(ctx, w, http.StatusInternalServerError, "unable to load video")
		return
	}

	respondJSON(ctx, w, http.StatusOK, resp)
}

// Update handles PUT /api/videos/{id}. Only the owner may edit.
func (h VideoHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	video, ok := h.loadVideo(w, r)
	if !ok {
		return
	}
	if video.OwnerID != claims.UserID {
		respondError(ctx, w, http.StatusForbidden, "only the owner can edit this video")
		return
	}

	var req updateVideoRequest
	if err := decodeJSON(w, r, &req); err != nil {
		logger.Warnw("invalid video update payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			respondError(ctx, w, http.StatusBadRequest, "title cannot be empty")
			return
		}
		video.Title = title
	}
	if req.Description != nil {
		video.Description = strings.TrimSpace(*req.Description)
	}
	video.UpdatedAt = h.now()

	if err := h.Videos.UpdateDetails(ctx, video); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "video not found")
			return
		}
		logger.Errorw("update video", "error", err, "videoId", video.ID)
		respondError(ctx, w, http.StatusInternalServerError, "failed to update video")
		return
	}

	respondJSON(ctx, w, http.StatusOK, videoResponse{Video: newVideoView(video, claims.UserID)})
}

// Delete handles DELETE /api/videos/{id}. The record goes first; the hosted media is
// removed afterwards on a best-effort basis.
func (h VideoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireUser(w, r)
	if !ok {
		return
	}

	video, ok := h.loadVideo(w, r)
	if !ok {
		return
	}

	ctx, span := logging.StartSpan(r.Context(), "video.delete")
	defer span.End()
	logger := logging.FromContext(ctx)

	if video.OwnerID != claims.UserID {
		respondError(ctx, w, http.StatusForbidden, "only the owner can delete this video")
		return
	}

	if err := h.Videos.Delete(ctx, video.ID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "video not found")
			return
		}
		logger.Errorw("delete video", "error", err, "videoId", video.ID)
		respondError(ctx, w, http.StatusInternalServerError, "failed to delete video")
		return
	}

	h.deleteMedia(r, video)

	logger.Infow("video deleted", "videoId", video.ID)
	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h VideoHandler) deleteMedia(r *http.Request, video models.Video) {
	if h.Media == nil {
		return
	}
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	for _, mediaURL := range []string{video.VideoURL, video.ThumbnailURL} {
		if mediaURL == "" {
			continue
		}
		err := h.Media.Delete(ctx, mediaURL)
		switch {
		case err == nil:
		case errors.Is(err, storage.ErrForeignURL):
			logger.Debugw("skipping media hosted elsewhere", "url", mediaURL)
		default:
			logger.Warnw("failed to delete hosted media", "error", err, "url", mediaURL, "videoId", video.ID)
		}
	}
}

// Like handles POST /api/videos/{id}/like.
func (h VideoHandler) Like(w http.ResponseWriter, r *http.Request) {
	h.react(w, r, "video.like", social.ToggleLike)
}

// Dislike handles POST /api/videos/{id}/dislike.
func (h VideoHandler) Dislike(w http.ResponseWriter, r *http.Request) {
	h.react(w, r, "video.dislike", social.ToggleDislike)
}

func (h VideoHandler) react(w http.ResponseWriter, r *http.Request, action string, toggle func(*models.Video, string) social.ReactionState) {
	claims, ok := requireUser(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	if !validID(id) {
		respondError(r.Context(), w, http.StatusNotFound, "video not found")
		return
	}

	ctx, span := logging.StartSpan(r.Context(), action)
	defer span.End()

	var state social.ReactionState
	err := h.Videos.MutateReactions(ctx, id, func(video *models.Video) error {
		state = toggle(video, claims.UserID)
		return nil
	})
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "video not found")
			return
		}
		logging.FromContext(ctx).Errorw("toggle reaction", "error", err, "videoId", id)
		respondError(ctx, w, http.StatusInternalServerError, "failed to update reaction")
		return
	}

	respondJSON(ctx, w, http.StatusOK, state)
}

// View handles POST /api/videos/{id}/view. Every call counts.
func (h VideoHandler) View(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}
	ctx := r.Context()

	id := chi.URLParam(r, "id")
	if !validID(id) {
		respondError(ctx, w, http.StatusNotFound, "video not found")
		return
	}

	views, err := h.Videos.IncrementViews(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "video not found")
			return
		}
		logging.FromContext(ctx).Errorw("increment views", "error", err, "videoId", id)
		respondError(ctx, w, http.StatusInternalServerError, "failed to record view")
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]int64{"views": views})
}

func (h VideoHandler) loadVideo(w http.ResponseWriter, r *http.Request) (models.Video, bool) {
	ctx := r.Context()

	id := chi.URLParam(r, "id")
	if !validID(id) {
		respondError(ctx, w, http.StatusNotFound, "video not found")
		return models.Video{}, false
	}

	video, err := h.Videos.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "video not found")
			return models.Video{}, false
		}
		logging.FromContext(ctx).Errorw("load video", "error", err, "videoId", id)
		respondError(ctx, w, http.StatusInternalServerError, "unable to load video")
		return models.Video{}, false
	}
	return video, true
}

func (h VideoHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

type createVideoRequest struct {
	Title          string                 `json:"title"`
	Description    string                 `json:"description"`
	Video          string                 `json:"video"`
	Thumbnail      string                 `json:"thumbnail"`
	Transformation *models.Transformation `json:"transformation"`
	Controls       *bool                  `json:"controls"`
}

type updateVideoRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

type videoResponse struct {
	Video videoView `json:"video"`
}

type videoListResponse struct {
	Videos []videoView `json:"videos"`
}

type videoDetailResponse struct {
	Video            videoView   `json:"video"`
	Channel          *userView   `json:"channel,omitempty"`
	Related          []videoView `json:"related"`
	SubscribersCount int         `json:"subscribersCount"`
	IsSubscribed     bool        `json:"isSubscribed"`
}
