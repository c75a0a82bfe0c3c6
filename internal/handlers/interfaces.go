package handlers

import (
	"context"
	"io"
	"time"

	"github.com/vidstream/backend/internal/auth"
	"github.com/vidstream/backend/internal/models"
	"github.com/vidstream/backend/internal/storage"
)

// UserStore captures the user persistence operations required by the handlers.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByID(ctx context.Context, id string) (models.User, error)
	Update(ctx context.Context, user models.User) error
	SetPasswordReset(ctx context.Context, reset models.PasswordReset) error
	ResetPassword(ctx context.Context, tokenHash, passwordHash string, now time.Time) (models.User, error)
	MutateSubscription(ctx context.Context, subscriberID, channelID string, fn func(subscriber, channel *models.User) error) error
}

// VideoStore captures video persistence.
type VideoStore interface {
	Create(ctx context.Context, video models.Video) error
	List(ctx context.Context) ([]models.Video, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.Video, error)
	ListRelated(ctx context.Context, video models.Video, limit int) ([]models.Video, error)
	FindByID(ctx context.Context, id string) (models.Video, error)
	UpdateDetails(ctx context.Context, video models.Video) error
	Delete(ctx context.Context, id string) error
	IncrementViews(ctx context.Context, id string) (int64, error)
	MutateReactions(ctx context.Context, id string, fn func(video *models.Video) error) error
}

// SessionManager issues, refreshes and revokes authentication tokens for users.
type SessionManager interface {
	Issue(ctx context.Context, user models.User) (models.SessionTokens, error)
	Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error)
	Revoke(ctx context.Context, refreshToken string)
	RevokeAll(ctx context.Context, userID string) error
}

//go:generate mockgen -destination=mock_media_store_test.go -package=handlers . MediaStore

// MediaStore is the remote host for uploaded videos and images.
type MediaStore interface {
	Save(ctx context.Context, key, contentType string, r io.Reader) (string, error)
	PresignUpload(ctx context.Context, key, contentType string) (storage.PresignedUpload, error)
	Delete(ctx context.Context, publicURL string) error
}

// Mailer delivers password reset links.
type Mailer interface {
	SendPasswordReset(ctx context.Context, name, email, link string) error
}

// IdentityProvider runs the OAuth authorization-code flow for one provider.
type IdentityProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (auth.Identity, error)
}

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
