package repositories

import (
	"context"
	"time"

	"github.com/vidstream/backend/internal/models"
)

// UserRepository defines the data access contract for users.
type UserRepository interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByID(ctx context.Context, id string) (models.User, error)
	Update(ctx context.Context, user models.User) error
	SetPasswordReset(ctx context.Context, reset models.PasswordReset) error
	ResetPassword(ctx context.Context, tokenHash, passwordHash string, now time.Time) (models.User, error)
	MutateSubscription(ctx context.Context, subscriberID, channelID string, fn func(subscriber, channel *models.User) error) error
}
