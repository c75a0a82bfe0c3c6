package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/vidstream/backend/internal/config"
	"github.com/vidstream/backend/internal/db"
	"github.com/vidstream/backend/internal/handlers"
	"github.com/vidstream/backend/internal/httpserver"
	"github.com/vidstream/backend/internal/logging"
)

// Run bootstraps the vidstream backend application.
func Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("expected command: serve, migrate, or seed")
	}

	switch args[0] {
	case "serve":
		return serve(ctx)
	case "migrate":
		return runMigrations(ctx, args[1:])
	case "seed":
		return runSeed(ctx, args[1:])
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

const sessionPurgeInterval = time.Hour

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	base, err := logging.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("configure logger: %w", err)
	}
	defer func() { _ = base.Sync() }()
	zap.ReplaceGlobals(base)
	logger := base.Sugar()

	pool := db.NewLazy(cfg.DatabaseURL)
	defer pool.Close()

	deps, cleanup, err := buildDependencies(ctx, pool, cfg)
	if err != nil {
		return err
	}
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), httpserver.ShutdownTimeout)
		defer cancel()
		if err := cleanup(cleanupCtx); err != nil {
			logger.Warnw("cleanup failed", "error", err)
		}
	}()

	if len(deps.OAuthProviders) == 0 {
		logger.Infow("no oauth providers configured; only credential sign-in is available")
	}

	srv := httpserver.New(cfg.AppPort, handlers.NewRouter(deps, logger))

	logger.Infow("starting http server", "port", cfg.AppPort, "publicUrl", cfg.PublicURL)

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- srv.Start()
	}()

	purgeCtx, stopPurge := context.WithCancel(ctx)
	defer stopPurge()
	if purger, ok := deps.Sessions.(sessionPurger); ok {
		go purgeSessions(purgeCtx, purger, sessionPurgeInterval, logger)
	}

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-ctx.Done():
		logger.Infow("context canceled, shutting down server")
	case sig := <-signalCh:
		logger.Infow("received signal, shutting down", "signal", sig.String())
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpserver.ShutdownTimeout)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

type sessionPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// purgeSessions drops expired refresh tokens every interval until ctx ends.
func purgeSessions(ctx context.Context, purger sessionPurger, interval time.Duration, logger *zap.SugaredLogger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := purger.PurgeExpired(ctx)
			if err != nil {
				logger.Warnw("purge expired sessions", "error", err)
				continue
			}
			if removed > 0 {
				logger.Infow("purged expired sessions", "count", removed)
			}
		}
	}
}

func runMigrations(ctx context.Context, args []string) error {
	command := "up"
	if len(args) > 0 {
		command = args[0]
	}
	if command != "up" && command != "status" {
		return fmt.Errorf("unknown migrate command %q", command)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := cliLogger(cfg)
	if err != nil {
		return err
	}

	dir, err := absPath(cfg.MigrationDir)
	if err != nil {
		return err
	}

	pool := db.NewLazy(cfg.DatabaseURL)
	defer pool.Close()

	migrator := db.NewMigrator(dir, logger)

	if command == "status" {
		statuses, err := migrator.Status(ctx, pool)
		if err != nil {
			return err
		}
		for _, st := range statuses {
			mark := " "
			if st.Applied {
				mark = "x"
			}
			fmt.Printf("[%s] %s\n", mark, st.Name)
		}
		return nil
	}

	applied, err := migrator.Up(ctx, pool)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		fmt.Println("database is up to date")
	}
	return nil
}

func runSeed(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("expected seed name (e.g. dev)")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	dir, err := absPath(cfg.SeedDir)
	if err != nil {
		return err
	}

	name := args[0]
	if !strings.HasSuffix(name, ".sql") {
		name = fmt.Sprintf("%s_seed.sql", name)
	}

	pool := db.NewLazy(cfg.DatabaseURL)
	defer pool.Close()

	if err := db.ApplyFile(ctx, pool, filepath.Join(dir, name)); err != nil {
		return err
	}

	fmt.Printf("applied seed %s\n", name)
	return nil
}

func cliLogger(cfg config.Config) (*zap.SugaredLogger, error) {
	base, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("configure logger: %w", err)
	}
	return base.Sugar(), nil
}

func absPath(dir string) (string, error) {
	if filepath.IsAbs(dir) {
		return dir, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("determine working directory: %w", err)
	}
	return filepath.Join(wd, dir), nil
}
