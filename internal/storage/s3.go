package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/vidstream/backend/internal/config"
)

// ErrForeignURL indicates a URL that does not point into the configured bucket.
var ErrForeignURL = errors.New("url is not hosted in the media bucket")

type objectUploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type objectDeleter interface {
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type uploadPresigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// PresignedUpload describes a URL the client can PUT an object to directly.
type PresignedUpload struct {
	UploadURL string    `json:"uploadUrl"`
	Key       string    `json:"key"`
	PublicURL string    `json:"publicUrl"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// S3Storage is the media host: an S3-compatible bucket serving videos, thumbnails and avatars.
type S3Storage struct {
	uploader   objectUploader
	deleter    objectDeleter
	presigner  uploadPresigner
	bucket     string
	baseURL    string
	presignTTL time.Duration
}

// NewS3Storage configures clients targeting the provided object store.
func NewS3Storage(ctx context.Context, cfg config.ObjectStoreConfig) (*S3Storage, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 storage: bucket is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := strings.TrimSuffix(strings.TrimSpace(cfg.Endpoint), "/")
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 5 * 1024 * 1024
		u.LeavePartsOnError = false
	})

	baseURL := strings.TrimSuffix(cfg.PublicBaseURL, "/")
	if baseURL == "" {
		if endpoint != "" {
			baseURL = endpoint + "/" + cfg.Bucket
		} else {
			baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
		}
	}

	return &S3Storage{
		uploader:   uploader,
		deleter:    client,
		presigner:  s3.NewPresignClient(client),
		bucket:     cfg.Bucket,
		baseURL:    baseURL,
		presignTTL: cfg.PresignTTL,
	}, nil
}

// Save uploads the provided content under key and returns its public URL.
func (s *S3Storage) Save(ctx context.Context, key, contentType string, r io.Reader) (string, error) {
	key = strings.TrimLeft(key, "/")
	if key == "" {
		return "", fmt.Errorf("s3 storage: empty key")
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   r,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return "", fmt.Errorf("s3 storage upload %s: %w", key, err)
	}

	return s.PublicURL(key), nil
}

// PresignUpload returns a time-limited URL the client can PUT the object to.
func (s *S3Storage) PresignUpload(ctx context.Context, key, contentType string) (PresignedUpload, error) {
	key = strings.TrimLeft(key, "/")
	if key == "" {
		return PresignedUpload{}, fmt.Errorf("s3 storage: empty key")
	}

	ttl := s.presignTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return PresignedUpload{}, fmt.Errorf("s3 storage presign %s: %w", key, err)
	}

	return PresignedUpload{
		UploadURL: req.URL,
		Key:       key,
		PublicURL: s.PublicURL(key),
		ExpiresAt: time.Now().UTC().Add(ttl),
	}, nil
}

// Delete removes the object behind a public URL. URLs outside the bucket yield ErrForeignURL.
func (s *S3Storage) Delete(ctx context.Context, publicURL string) error {
	key, ok := s.KeyFromURL(publicURL)
	if !ok {
		return ErrForeignURL
	}

	if _, err := s.deleter.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("s3 storage delete %s: %w", key, err)
	}
	return nil
}

// PublicURL returns the URL an object is served from.
func (s *S3Storage) PublicURL(key string) string {
	return s.baseURL + "/" + strings.TrimLeft(key, "/")
}

// KeyFromURL maps a public URL back to its object key.
func (s *S3Storage) KeyFromURL(publicURL string) (string, bool) {
	prefix := s.baseURL + "/"
	if !strings.HasPrefix(publicURL, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(publicURL, prefix)
	if i := strings.IndexAny(key, "?#"); i >= 0 {
		key = key[:i]
	}
	if key == "" {
		return "", false
	}
	return key, true
}

// Media kinds accepted by the upload endpoints.
const (
	KindVideo     = "video"
	KindThumbnail = "thumbnail"
	KindAvatar    = "avatar"
)

// ObjectKey builds a unique key such as "videos/<owner>/<uuid>.mp4" for a new upload.
func ObjectKey(kind, ownerID, contentType string) (string, error) {
	var folder string
	switch kind {
	case KindVideo:
		if !strings.HasPrefix(contentType, "video/") {
			return "", fmt.Errorf("content type %q is not a video", contentType)
		}
		folder = "videos"
	case KindThumbnail, KindAvatar:
		if !strings.HasPrefix(contentType, "image/") {
			return "", fmt.Errorf("content type %q is not an image", contentType)
		}
		folder = kind + "s"
	default:
		return "", fmt.Errorf("unknown media kind %q", kind)
	}

	return path.Join(folder, ownerID, uuid.NewString()+extensionFor(contentType)), nil
}

// mediaExtensions pins the extension for common upload types; the order of
// mime.ExtensionsByType depends on the host's mime.types.
var mediaExtensions = map[string]string{
	"video/mp4":       ".mp4",
	"video/webm":      ".webm",
	"video/ogg":       ".ogv",
	"video/quicktime": ".mov",
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"image/gif":       ".gif",
	"image/avif":      ".avif",
}

func extensionFor(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = contentType
	}
	mediaType = strings.ToLower(mediaType)
	if ext, ok := mediaExtensions[mediaType]; ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(mediaType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}
