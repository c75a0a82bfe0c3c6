package db

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrClosed is returned by a Lazy pool after Close has been called.
var ErrClosed = errors.New("database pool closed")

// Pool abstracts the pgx connection pool to make testing easier.
type Pool interface {
	Acquire(ctx context.Context) (*pgxpool.Conn, error)
	Close()
}

// Connect initialises a PostgreSQL connection pool using the provided database URL.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	return pool, nil
}

// Lazy is a Pool that connects on first use. A failed connection attempt is not
// cached, so the next Acquire tries again. Close releases the underlying pool and
// makes every later Acquire fail with ErrClosed.
type Lazy struct {
	url     string
	connect func(ctx context.Context, url string) (*pgxpool.Pool, error)

	mu     sync.Mutex
	pool   *pgxpool.Pool
	closed bool
}

// NewLazy returns a Pool for databaseURL without opening any connection.
func NewLazy(databaseURL string) *Lazy {
	return &Lazy{url: databaseURL, connect: connectAndPing}
}

// Acquire returns a connection from the pool, creating the pool if needed.
func (l *Lazy) Acquire(ctx context.Context) (*pgxpool.Conn, error) {
	pool, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return pool.Acquire(ctx)
}

// Ping verifies the database is reachable.
func (l *Lazy) Ping(ctx context.Context) error {
	pool, err := l.get(ctx)
	if err != nil {
		return err
	}
	return pool.Ping(ctx)
}

// Close tears down the pool. It is safe to call more than once.
func (l *Lazy) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closed = true
	if l.pool != nil {
		l.pool.Close()
		l.pool = nil
	}
}

func (l *Lazy) get(ctx context.Context) (*pgxpool.Pool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrClosed
	}
	if l.pool != nil {
		return l.pool, nil
	}

	pool, err := l.connect(ctx, l.url)
	if err != nil {
		return nil, err
	}
	l.pool = pool
	return pool, nil
}

func connectAndPing(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := Connect(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// InTx runs fn inside a transaction on a connection acquired from pool. The
// transaction is committed when fn returns nil and rolled back otherwise.
func InTx(ctx context.Context, pool Pool, fn func(tx pgx.Tx) error) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
