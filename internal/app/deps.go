package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vidstream/backend/internal/auth"
	"github.com/vidstream/backend/internal/config"
	"github.com/vidstream/backend/internal/db"
	"github.com/vidstream/backend/internal/handlers"
	"github.com/vidstream/backend/internal/mailer"
	"github.com/vidstream/backend/internal/middleware"
	"github.com/vidstream/backend/internal/models"
	"github.com/vidstream/backend/internal/repositories"
	"github.com/vidstream/backend/internal/storage"
)

// rateLimiterIdleTTL bounds how long an idle client IP stays tracked.
const rateLimiterIdleTTL = 10 * time.Minute

type cleanupFunc func(ctx context.Context) error

// buildDependencies wires together concrete implementations used by the HTTP handlers.
// The returned cleanup releases clients that outlive a single request.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config) (handlers.Dependencies, cleanupFunc, error) {
	users := repositories.NewPostgresUserRepository(pool)
	sessionStore := repositories.NewPostgresSessionStore(pool)
	sessions := auth.NewManager(
		auth.NewTokenIssuer(cfg.Session.Secret, cfg.Session.AccessTTL),
		cfg.Session.RefreshTTL,
		sessionStore,
		users,
	)

	media, err := storage.NewS3Storage(ctx, cfg.ObjectStore)
	if err != nil {
		return handlers.Dependencies{}, nil, fmt.Errorf("configure media storage: %w", err)
	}

	smtpMailer, err := mailer.NewSMTPMailer(cfg.SMTP)
	if err != nil {
		return handlers.Dependencies{}, nil, fmt.Errorf("configure mailer: %w", err)
	}

	var (
		states  auth.StateStore = auth.NewInMemoryStateStore()
		cleanup cleanupFunc     = func(context.Context) error { return nil }
	)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		states = auth.NewRedisStateStore(client)
		var once sync.Once
		cleanup = func(context.Context) error {
			var err error
			once.Do(func() { err = client.Close() })
			if err != nil {
				return fmt.Errorf("close redis client: %w", err)
			}
			return nil
		}
	}

	deps := handlers.Dependencies{
		Users:          users,
		Videos:         repositories.NewPostgresVideoRepository(pool),
		Sessions:       sessions,
		Tokens:         sessions,
		Media:          media,
		Mailer:         smtpMailer,
		OAuthProviders: oauthProviders(cfg),
		OAuthStates:    states,
		OAuthStateTTL:  cfg.OAuth.StateTTL,
		AuthLimiter: middleware.NewIPRateLimiter(
			cfg.RateLimit.Requests,
			cfg.RateLimit.Window,
			cfg.RateLimit.Burst,
			rateLimiterIdleTTL,
		),
		TrustProxy:   cfg.RateLimit.TrustProxy,
		PublicURL:    cfg.PublicURL,
		StaticDir:    cfg.StaticDir,
		CookieSecure: cfg.Session.CookieSecure,
	}
	if pinger, ok := pool.(handlers.Pinger); ok {
		deps.DB = pinger
	}

	return deps, cleanup, nil
}

// oauthProviders enables each provider whose client id is configured.
func oauthProviders(cfg config.Config) map[string]handlers.IdentityProvider {
	providers := make(map[string]handlers.IdentityProvider)
	callback := func(name string) string {
		return fmt.Sprintf("%s/api/auth/%s/callback", cfg.PublicURL, name)
	}

	if cfg.OAuth.GoogleClientID != "" {
		providers[models.ProviderGoogle] = auth.NewGoogleProvider(
			cfg.OAuth.GoogleClientID, cfg.OAuth.GoogleClientSecret, callback(models.ProviderGoogle))
	}
	if cfg.OAuth.GitHubClientID != "" {
		providers[models.ProviderGitHub] = auth.NewGitHubProvider(
			cfg.OAuth.GitHubClientID, cfg.OAuth.GitHubClientSecret, callback(models.ProviderGitHub))
	}
	return providers
}
