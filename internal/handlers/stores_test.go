package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vidstream/backend/internal/auth"
	"github.com/vidstream/backend/internal/middleware"
	"github.com/vidstream/backend/internal/models"
	"github.com/vidstream/backend/internal/repositories"
	"github.com/vidstream/backend/internal/storage"
)

type inMemoryUserStore struct {
	mu     sync.Mutex
	users  map[string]models.User
	resets map[string]models.PasswordReset
}

func newInMemoryUserStore() *inMemoryUserStore {
	return &inMemoryUserStore{users: make(map[string]models.User), resets: make(map[string]models.PasswordReset)}
}

func (s *inMemoryUserStore) Create(_ context.Context, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == user.Email {
			return repositories.ErrConflict
		}
	}
	s.users[user.ID] = user
	return nil
}

func (s *inMemoryUserStore) FindByEmail(_ context.Context, email string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.Email == email {
			return user, nil
		}
	}
	return models.User{}, repositories.ErrNotFound
}

func (s *inMemoryUserStore) FindByID(_ context.Context, id string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return models.User{}, repositories.ErrNotFound
	}
	return user, nil
}

func (s *inMemoryUserStore) Update(_ context.Context, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; !ok {
		return repositories.ErrNotFound
	}
	s.users[user.ID] = user
	return nil
}

func (s *inMemoryUserStore) SetPasswordReset(_ context.Context, reset models.PasswordReset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[reset.UserID]; !ok {
		return repositories.ErrNotFound
	}
	s.resets[reset.UserID] = reset
	return nil
}

func (s *inMemoryUserStore) ResetPassword(_ context.Context, tokenHash, passwordHash string, now time.Time) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for userID, reset := range s.resets {
		if reset.TokenHash == tokenHash && reset.ExpiresAt.After(now) {
			user := s.users[userID]
			user.Password = passwordHash
			s.users[userID] = user
			delete(s.resets, userID)
			return user, nil
		}
	}
	return models.User{}, repositories.ErrNotFound
}

func (s *inMemoryUserStore) MutateSubscription(_ context.Context, subscriberID, channelID string, fn func(subscriber, channel *models.User) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	subscriber, ok := s.users[subscriberID]
	if !ok {
		return repositories.ErrNotFound
	}
	channel, ok := s.users[channelID]
	if !ok {
		return repositories.ErrNotFound
	}
	subscriber.Subscriptions = slices.Clone(subscriber.Subscriptions)
	channel.Subscribers = slices.Clone(channel.Subscribers)
	if err := fn(&subscriber, &channel); err != nil {
		return err
	}
	s.users[subscriberID] = subscriber
	s.users[channelID] = channel
	return nil
}

func (s *inMemoryUserStore) get(id string) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[id]
}

type inMemoryVideoStore struct {
	mu     sync.Mutex
	videos map[string]models.Video
}

func newInMemoryVideoStore() *inMemoryVideoStore {
	return &inMemoryVideoStore{videos: make(map[string]models.Video)}
}

func (s *inMemoryVideoStore) Create(_ context.Context, video models.Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.videos[video.ID]; ok {
		return repositories.ErrConflict
	}
	s.videos[video.ID] = video
	return nil
}

func (s *inMemoryVideoStore) sorted(keep func(models.Video) bool) []models.Video {
	out := []models.Video{}
	for _, v := range s.videos {
		if keep(v) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s *inMemoryVideoStore) List(_ context.Context) ([]models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(func(models.Video) bool { return true }), nil
}

func (s *inMemoryVideoStore) ListByOwner(_ context.Context, ownerID string) ([]models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(func(v models.Video) bool { return v.OwnerID == ownerID }), nil
}

func (s *inMemoryVideoStore) ListRelated(_ context.Context, video models.Video, limit int) ([]models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	others := s.sorted(func(v models.Video) bool { return v.ID != video.ID })
	sort.SliceStable(others, func(i, j int) bool {
		return others[i].OwnerID == video.OwnerID && others[j].OwnerID != video.OwnerID
	})
	if len(others) > limit {
		others = others[:limit]
	}
	return others, nil
}

func (s *inMemoryVideoStore) FindByID(_ context.Context, id string) (models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	video, ok := s.videos[id]
	if !ok {
		return models.Video{}, repositories.ErrNotFound
	}
	return video, nil
}

func (s *inMemoryVideoStore) UpdateDetails(_ context.Context, video models.Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.videos[video.ID]
	if !ok {
		return repositories.ErrNotFound
	}
	existing.Title = video.Title
	existing.Description = video.Description
	existing.UpdatedAt = video.UpdatedAt
	s.videos[video.ID] = existing
	return nil
}

func (s *inMemoryVideoStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.videos[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(s.videos, id)
	return nil
}

func (s *inMemoryVideoStore) IncrementViews(_ context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	video, ok := s.videos[id]
	if !ok {
		return 0, repositories.ErrNotFound
	}
	video.Views++
	s.videos[id] = video
	return video.Views, nil
}

func (s *inMemoryVideoStore) MutateReactions(_ context.Context, id string, fn func(video *models.Video) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	video, ok := s.videos[id]
	if !ok {
		return repositories.ErrNotFound
	}
	video.Likes = slices.Clone(video.Likes)
	video.Dislikes = slices.Clone(video.Dislikes)
	if err := fn(&video); err != nil {
		return err
	}
	s.videos[id] = video
	return nil
}

func (s *inMemoryVideoStore) get(id string) (models.Video, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	video, ok := s.videos[id]
	return video, ok
}

type recordingMailer struct {
	mu    sync.Mutex
	links []string
	err   error
}

func (m *recordingMailer) SendPasswordReset(_ context.Context, _, _, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links = append(m.links, link)
	return m.err
}

type noopMedia struct{}

func (noopMedia) Save(context.Context, string, string, io.Reader) (string, error) { return "", nil }
func (noopMedia) PresignUpload(context.Context, string, string) (storage.PresignedUpload, error) {
	return storage.PresignedUpload{}, nil
}
func (noopMedia) Delete(context.Context, string) error { return nil }

// testEnv is a fully wired router over in-memory stores.
type testEnv struct {
	users    *inMemoryUserStore
	videos   *inMemoryVideoStore
	sessions *auth.Manager
	store    *auth.InMemorySessionStore
	mailer   *recordingMailer
	handler  http.Handler
}

type envOption func(*Dependencies)

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	users := newInMemoryUserStore()
	videos := newInMemoryVideoStore()
	store := auth.NewInMemorySessionStore()
	issuer := auth.NewTokenIssuer("handler-test-secret", time.Hour)
	sessions := auth.NewManager(issuer, 24*time.Hour, store, users)
	mailer := &recordingMailer{}

	deps := Dependencies{
		Users:          users,
		Videos:         videos,
		Sessions:       sessions,
		Tokens:         sessions,
		Media:          noopMedia{},
		Mailer:         mailer,
		OAuthProviders: map[string]IdentityProvider{},
		OAuthStates:    auth.NewInMemoryStateStore(),
		PublicURL:      "https://vidstream.test",
	}
	for _, opt := range opts {
		opt(&deps)
	}

	return &testEnv{
		users:    users,
		videos:   videos,
		sessions: sessions,
		store:    store,
		mailer:   mailer,
		handler:  NewRouter(deps, zap.NewNop().Sugar()),
	}
}

func (e *testEnv) addUser(t *testing.T, user models.User) (models.User, string) {
	t.Helper()
	if user.Provider == "" {
		user.Provider = models.ProviderCredentials
	}
	if user.Name == "" {
		user.Name = user.Email
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	require.NoError(t, e.users.Create(context.Background(), user))
	tokens, err := e.sessions.Issue(context.Background(), user)
	require.NoError(t, err)
	return user, tokens.AccessToken
}

func (e *testEnv) addVideo(t *testing.T, video models.Video) models.Video {
	t.Helper()
	if video.CreatedAt.IsZero() {
		video.CreatedAt = time.Now().UTC()
	}
	require.NoError(t, e.videos.Create(context.Background(), video))
	return video
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out), rec.Body.String())
	return out
}

var _ middleware.TokenVerifier = (*auth.Manager)(nil)

func testUser() models.User {
	return models.User{ID: "66666666-6666-4666-8666-666666666666", Name: "Tester", Email: "tester@example.com"}
}
