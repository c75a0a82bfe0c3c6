package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// transientCodes are SQLSTATEs worth retrying a migration for.
var transientCodes = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"55P03": {}, // lock_not_available
}

// MigrationStatus reports whether one migration file has been applied.
type MigrationStatus struct {
	Name    string
	Applied bool
}

// Migrator applies the .sql files of Dir in lexical order, each exactly once, recording
// them in schema_migrations. Each file runs in its own serializable transaction and is
// retried on transient errors.
type Migrator struct {
	Dir         string
	Logger      *zap.SugaredLogger
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// NewMigrator returns a Migrator with the default retry policy.
func NewMigrator(dir string, logger *zap.SugaredLogger) Migrator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return Migrator{
		Dir:         dir,
		Logger:      logger,
		MaxAttempts: 3,
		BaseBackoff: 100 * time.Millisecond,
		MaxBackoff:  3 * time.Second,
	}
}

// Status lists every migration file alongside whether it has been applied.
func (m Migrator) Status(ctx context.Context, pool Pool) ([]MigrationStatus, error) {
	files, err := migrationFiles(m.Dir)
	if err != nil {
		return nil, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	applied, err := appliedMigrations(ctx, conn.Conn())
	if err != nil {
		return nil, err
	}

	statuses := make([]MigrationStatus, 0, len(files))
	for _, name := range files {
		_, ok := applied[name]
		statuses = append(statuses, MigrationStatus{Name: name, Applied: ok})
	}
	return statuses, nil
}

// Up applies every pending migration and returns the names it applied.
func (m Migrator) Up(ctx context.Context, pool Pool) ([]string, error) {
	files, err := migrationFiles(m.Dir)
	if err != nil {
		return nil, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	applied, err := appliedMigrations(ctx, conn.Conn())
	if err != nil {
		return nil, err
	}

	var done []string
	for _, name := range files {
		if _, ok := applied[name]; ok {
			continue
		}

		contents, err := os.ReadFile(filepath.Join(m.Dir, name))
		if err != nil {
			return done, fmt.Errorf("read migration %s: %w", name, err)
		}

		err = m.retry(ctx, name, func() error {
			return pgx.BeginTxFunc(ctx, conn.Conn(), pgx.TxOptions{IsoLevel: pgx.Serializable}, func(tx pgx.Tx) error {
				if _, err := tx.Exec(ctx, string(contents)); err != nil {
					return fmt.Errorf("apply migration %s: %w", name, err)
				}
				if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, name); err != nil {
					return fmt.Errorf("record migration %s: %w", name, err)
				}
				return nil
			})
		})
		if err != nil {
			return done, err
		}

		m.Logger.Infow("applied migration", "name", name)
		done = append(done, name)
	}
	return done, nil
}

// ApplyFile executes a single SQL script, such as a seed, outside the migration ledger.
func ApplyFile(ctx context.Context, pool Pool, path string) error {
	contents, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, string(contents)); err != nil {
		return fmt.Errorf("apply %s: %w", filepath.Base(path), err)
	}
	return nil
}

func (m Migrator) retry(ctx context.Context, name string, fn func() error) error {
	attempts := m.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			timer := time.NewTimer(m.backoff(attempt - 1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		if err = fn(); err == nil || !isTransient(err) {
			return err
		}
		m.Logger.Warnw("transient migration error", "name", name, "attempt", attempt, "maxAttempts", attempts, "error", err)
	}
	return fmt.Errorf("migration %s: giving up after %d attempts: %w", name, attempts, err)
}

// backoff doubles from BaseBackoff per retry, capped at MaxBackoff.
func (m Migrator) backoff(retry int) time.Duration {
	d := m.BaseBackoff << (retry - 1)
	if m.MaxBackoff > 0 && (d > m.MaxBackoff || d <= 0) {
		return m.MaxBackoff
	}
	return d
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, pgx.ErrTxClosed) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		_, ok := transientCodes[pgErr.Code]
		return ok
	}
	return false
}

func migrationFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".sql" {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

func appliedMigrations(ctx context.Context, conn *pgx.Conn) (map[string]struct{}, error) {
	if _, err := conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
        version TEXT PRIMARY KEY,
        applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    )`); err != nil {
		return nil, fmt.Errorf("ensure schema_migrations table: %w", err)
	}

	rows, err := conn.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("fetch applied migrations: %w", err)
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan applied migrations: %w", err)
	}

	applied := make(map[string]struct{}, len(versions))
	for _, v := range versions {
		applied[v] = struct{}{}
	}
	return applied, nil
}
