package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/vidstream/backend/internal/db"
	"github.com/vidstream/backend/internal/models"
)

const userColumns = `id, name, email, password_hash, provider, image, subscribers, subscriptions, created_at, updated_at`

// PostgresUserRepository provides PostgreSQL-backed persistence for users.
type PostgresUserRepository struct {
	pool db.Pool
}

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(pool db.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// Create persists a new user record.
func (r *PostgresUserRepository) Create(ctx context.Context, user models.User) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO users (id, name, email, password_hash, provider, image, subscribers, subscriptions, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `, user.ID, user.Name, user.Email, nullable(user.Password), user.Provider, user.Image,
		nonNil(user.Subscribers), nonNil(user.Subscriptions), user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// FindByEmail fetches a user by their email address.
func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	user, err := scanUser(conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		return models.User{}, wrapNotFound(err, "select user by email")
	}
	return user, nil
}

// FindByID fetches a user by identifier.
func (r *PostgresUserRepository) FindByID(ctx context.Context, id string) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	user, err := scanUser(conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return models.User{}, wrapNotFound(err, "select user by id")
	}
	return user, nil
}

// Update modifies the profile and credential fields of an existing user record.
// Subscription sets are only changed through MutateSubscription.
func (r *PostgresUserRepository) Update(ctx context.Context, user models.User) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE users
        SET name = $2, email = $3, password_hash = $4, provider = $5, image = $6, updated_at = $7
        WHERE id = $1
    `, user.ID, user.Name, user.Email, nullable(user.Password), user.Provider, user.Image, user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("update user: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// SetPasswordReset records a pending password reset, replacing any earlier one.
func (r *PostgresUserRepository) SetPasswordReset(ctx context.Context, reset models.PasswordReset) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE users
        SET reset_token_hash = $2, reset_token_expires_at = $3
        WHERE id = $1
    `, reset.UserID, reset.TokenHash, reset.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("store password reset: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// ResetPassword replaces the password of the account holding an unexpired reset token
// and clears the token. It returns ErrNotFound when no such account exists.
func (r *PostgresUserRepository) ResetPassword(ctx context.Context, tokenHash, passwordHash string, now time.Time) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	user, err := scanUser(conn.QueryRow(ctx, `
        UPDATE users
        SET password_hash = $2, reset_token_hash = NULL, reset_token_expires_at = NULL, updated_at = $3
        WHERE reset_token_hash = $1
          AND reset_token_expires_at > $3
          AND provider = 'credentials'
        RETURNING `+userColumns, tokenHash, passwordHash, now.UTC()))
	if err != nil {
		return models.User{}, wrapNotFound(err, "reset password")
	}
	return user, nil
}

// MutateSubscription loads both users under row locks, applies fn and persists the
// subscriber's subscriptions and the channel's subscribers in one transaction.
func (r *PostgresUserRepository) MutateSubscription(ctx context.Context, subscriberID, channelID string, fn func(subscriber, channel *models.User) error) error {
	return db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		// Lock in id order so concurrent toggles between the same pair cannot deadlock.
		rows, err := tx.Query(ctx, `
            SELECT `+userColumns+`
            FROM users
            WHERE id = $1 OR id = $2
            ORDER BY id
            FOR UPDATE
        `, subscriberID, channelID)
		if err != nil {
			return fmt.Errorf("lock users: %w", err)
		}

		users := make(map[string]*models.User, 2)
		for rows.Next() {
			user, err := scanUser(rows)
			if err != nil {
				rows.Close()
				return fmt.Errorf("scan user: %w", err)
			}
			users[user.ID] = &user
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate users: %w", err)
		}

		subscriber, channel := users[subscriberID], users[channelID]
		if subscriber == nil || channel == nil {
			return ErrNotFound
		}

		if err := fn(subscriber, channel); err != nil {
			return err
		}

		now := time.Now().UTC()
		if subscriber.ID == channel.ID {
			return nil
		}
		if _, err := tx.Exec(ctx, `UPDATE users SET subscriptions = $2, updated_at = $3 WHERE id = $1`,
			subscriber.ID, nonNil(subscriber.Subscriptions), now); err != nil {
			return fmt.Errorf("update subscriptions: %w", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE users SET subscribers = $2, updated_at = $3 WHERE id = $1`,
			channel.ID, nonNil(channel.Subscribers), now); err != nil {
			return fmt.Errorf("update subscribers: %w", err)
		}
		return nil
	})
}

const videoColumns = `id, owner_id, title, description, video_url, thumbnail_url, width, height, quality, controls, views, likes, dislikes, created_at, updated_at`

// PostgresVideoRepository provides PostgreSQL-backed persistence for videos.
type PostgresVideoRepository struct {
	pool db.Pool
}

// NewPostgresVideoRepository constructs a video repository backed by PostgreSQL.
func NewPostgresVideoRepository(pool db.Pool) *PostgresVideoRepository {
	return &PostgresVideoRepository{pool: pool}
}

// Create stores a new video record.
func (r *PostgresVideoRepository) Create(ctx context.Context, video models.Video) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO videos (id, owner_id, title, description, video_url, thumbnail_url, width, height, quality, controls, views, likes, dislikes, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
    `, video.ID, video.OwnerID, video.Title, video.Description, video.VideoURL, video.ThumbnailURL,
		video.Transformation.Width, video.Transformation.Height, video.Transformation.Quality, video.Controls,
		video.Views, nonNil(video.Likes), nonNil(video.Dislikes), video.CreatedAt, video.UpdatedAt)
	if err != nil {
		switch pgErrorCode(err) {
		case codeUniqueViolation:
			return ErrConflict
		case codeForeignKeyViolation:
			return ErrNotFound
		}
		return fmt.Errorf("insert video: %w", err)
	}

	return nil
}

// List returns every video, newest first.
func (r *PostgresVideoRepository) List(ctx context.Context) ([]models.Video, error) {
	return r.query(ctx, "list videos", `SELECT `+videoColumns+` FROM videos ORDER BY created_at DESC`)
}

// ListByOwner returns the videos uploaded by ownerID, newest first.
func (r *PostgresVideoRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.Video, error) {
	return r.query(ctx, "list channel videos", `
        SELECT `+videoColumns+`
        FROM videos
        WHERE owner_id = $1
        ORDER BY created_at DESC
    `, ownerID)
}

// ListRelated returns up to limit other videos, preferring those from the same owner.
func (r *PostgresVideoRepository) ListRelated(ctx context.Context, video models.Video, limit int) ([]models.Video, error) {
	return r.query(ctx, "list related videos", `
        SELECT `+videoColumns+`
        FROM videos
        WHERE id <> $1
        ORDER BY (owner_id = $2) DESC, created_at DESC
        LIMIT $3
    `, video.ID, video.OwnerID, limit)
}

// FindByID fetches a single video.
func (r *PostgresVideoRepository) FindByID(ctx context.Context, id string) (models.Video, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Video{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	video, err := scanVideo(conn.QueryRow(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = $1`, id))
	if err != nil {
		return models.Video{}, wrapNotFound(err, "select video")
	}
	return video, nil
}

// UpdateDetails persists the owner-editable fields of a video.
func (r *PostgresVideoRepository) UpdateDetails(ctx context.Context, video models.Video) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE videos
        SET title = $2, description = $3, updated_at = $4
        WHERE id = $1
    `, video.ID, video.Title, video.Description, video.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update video: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// Delete removes a video record.
func (r *PostgresVideoRepository) Delete(ctx context.Context, id string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `DELETE FROM videos WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete video: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// IncrementViews adds one view and returns the new total.
func (r *PostgresVideoRepository) IncrementViews(ctx context.Context, id string) (int64, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var views int64
	err = conn.QueryRow(ctx, `UPDATE videos SET views = views + 1 WHERE id = $1 RETURNING views`, id).Scan(&views)
	if err != nil {
		return 0, wrapNotFound(err, "increment views")
	}
	return views, nil
}

// MutateReactions loads the video under a row lock, applies fn and writes both the
// likes and dislikes sets back in a single update.
func (r *PostgresVideoRepository) MutateReactions(ctx context.Context, id string, fn func(video *models.Video) error) error {
	return db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		video, err := scanVideo(tx.QueryRow(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return wrapNotFound(err, "lock video")
		}

		if err := fn(&video); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
            UPDATE videos
            SET likes = $2, dislikes = $3
            WHERE id = $1
        `, video.ID, nonNil(video.Likes), nonNil(video.Dislikes)); err != nil {
			return fmt.Errorf("update reactions: %w", err)
		}
		return nil
	})
}

func (r *PostgresVideoRepository) query(ctx context.Context, op, sql string, args ...any) ([]models.Video, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	videos := []models.Video{}
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		videos = append(videos, video)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: iterate: %w", op, err)
	}

	return videos, nil
}

func scanUser(row pgx.Row) (models.User, error) {
	var (
		user     models.User
		password *string
	)
	if err := row.Scan(&user.ID, &user.Name, &user.Email, &password, &user.Provider, &user.Image,
		&user.Subscribers, &user.Subscriptions, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return models.User{}, err
	}
	if password != nil {
		user.Password = *password
	}
	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
	return user, nil
}

func scanVideo(row pgx.Row) (models.Video, error) {
	var video models.Video
	if err := row.Scan(&video.ID, &video.OwnerID, &video.Title, &video.Description, &video.VideoURL, &video.ThumbnailURL,
		&video.Transformation.Width, &video.Transformation.Height, &video.Transformation.Quality, &video.Controls,
		&video.Views, &video.Likes, &video.Dislikes, &video.CreatedAt, &video.UpdatedAt); err != nil {
		return models.Video{}, err
	}
	video.CreatedAt = video.CreatedAt.UTC()
	video.UpdatedAt = video.UpdatedAt.UTC()
	return video, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var _ UserRepository = (*PostgresUserRepository)(nil)
var _ VideoRepository = (*PostgresVideoRepository)(nil)
