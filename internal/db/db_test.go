package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLazyRetriesAfterFailedConnect(t *testing.T) {
	attempts := 0
	lazy := NewLazy("postgres://unused")
	lazy.connect = func(ctx context.Context, url string) (*pgxpool.Pool, error) {
		attempts++
		return nil, errors.New("connection refused")
	}

	_, err := lazy.Acquire(context.Background())
	require.Error(t, err)
	_, err = lazy.Acquire(context.Background())
	require.Error(t, err)

	assert.Equal(t, 2, attempts, "failures must not be cached")
}

func TestLazyDoesNotConnectUntilUsed(t *testing.T) {
	lazy := NewLazy("postgres://unused")
	lazy.connect = func(ctx context.Context, url string) (*pgxpool.Pool, error) {
		t.Fatal("connect should not be called")
		return nil, nil
	}
	lazy.Close()
}

func TestLazyClosed(t *testing.T) {
	lazy := NewLazy("postgres://unused")
	lazy.Close()
	lazy.Close()

	_, err := lazy.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, lazy.Ping(context.Background()), ErrClosed)
}
