package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrStateNotFound indicates an OAuth state that was never issued, already used or expired.
var ErrStateNotFound = errors.New("oauth state not found")

// StateStore remembers the state parameter handed to an identity provider until the
// callback consumes it.
type StateStore interface {
	Save(ctx context.Context, state, provider string, ttl time.Duration) error
	Consume(ctx context.Context, state string) (string, error)
}

// RedisStateStore keeps OAuth state in Redis so any replica can complete the callback.
type RedisStateStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStateStore returns a StateStore backed by client.
func NewRedisStateStore(client redis.UniversalClient) *RedisStateStore {
	return &RedisStateStore{client: client, prefix: "vidstream:oauth-state:"}
}

// Save records state for provider with an expiry.
func (s *RedisStateStore) Save(ctx context.Context, state, provider string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.prefix+state, provider, ttl).Err(); err != nil {
		return fmt.Errorf("store oauth state: %w", err)
	}
	return nil
}

// Consume returns the provider bound to state and removes it atomically.
func (s *RedisStateStore) Consume(ctx context.Context, state string) (string, error) {
	provider, err := s.client.GetDel(ctx, s.prefix+state).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrStateNotFound
		}
		return "", fmt.Errorf("consume oauth state: %w", err)
	}
	return provider, nil
}

type memoryState struct {
	provider  string
	expiresAt time.Time
}

// InMemoryStateStore implements StateStore for single-process deployments and tests.
type InMemoryStateStore struct {
	mu     sync.Mutex
	states map[string]memoryState
	now    func() time.Time
}

// NewInMemoryStateStore returns an empty in-memory state store.
func NewInMemoryStateStore() *InMemoryStateStore {
	return &InMemoryStateStore{states: make(map[string]memoryState), now: time.Now}
}

// Save records state for provider with an expiry.
func (s *InMemoryStateStore) Save(_ context.Context, state, provider string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, entry := range s.states {
		if now.After(entry.expiresAt) {
			delete(s.states, key)
		}
	}
	s.states[state] = memoryState{provider: provider, expiresAt: now.Add(ttl)}
	return nil
}

// Consume returns the provider bound to state and forgets it.
func (s *InMemoryStateStore) Consume(_ context.Context, state string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.states[state]
	if !ok {
		return "", ErrStateNotFound
	}
	delete(s.states, state)
	if s.now().After(entry.expiresAt) {
		return "", ErrStateNotFound
	}
	return entry.provider, nil
}
