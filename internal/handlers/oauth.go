package handlers

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/vidstream/backend/internal/auth"
	"github.com/vidstream/backend/internal/logging"
	"github.com/vidstream/backend/internal/models"
	"github.com/vidstream/backend/internal/repositories"
)

const defaultStateTTL = 10 * time.Minute

// OAuthHandler signs users in through external identity providers.
type OAuthHandler struct {
	Providers    map[string]IdentityProvider
	States       auth.StateStore
	Users        UserStore
	Sessions     SessionManager
	StateTTL     time.Duration
	CookieSecure bool
	NowFunc      func() time.Time
}

// Login handles GET /api/auth/{provider}/login by redirecting to the provider's consent page.
func (h OAuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	name := chi.URLParam(r, "provider")
	provider, ok := h.Providers[name]
	if !ok {
		respondError(ctx, w, http.StatusNotFound, "unknown sign-in provider")
		return
	}

	state, err := newState()
	if err != nil {
		logger.Errorw("generate oauth state", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to start sign-in")
		return
	}

	ttl := h.StateTTL
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	if err := h.States.Save(ctx, state, name, ttl); err != nil {
		logger.Errorw("store oauth state", "error", err, "provider", name)
		respondError(ctx, w, http.StatusInternalServerError, "unable to start sign-in")
		return
	}

	http.Redirect(w, r, provider.AuthCodeURL(state), http.StatusFound)
}

// Callback handles GET /api/auth/{provider}/callback. First-time sign-ins create the account.
func (h OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	name := chi.URLParam(r, "provider")
	provider, ok := h.Providers[name]
	if !ok {
		respondError(ctx, w, http.StatusNotFound, "unknown sign-in provider")
		return
	}

	query := r.URL.Query()
	if reason := query.Get("error"); reason != "" {
		logger.Warnw("provider rejected sign-in", "provider", name, "reason", reason)
		respondError(ctx, w, http.StatusUnauthorized, "sign-in was cancelled")
		return
	}

	code, state := query.Get("code"), query.Get("state")
	if code == "" || state == "" {
		respondError(ctx, w, http.StatusBadRequest, "code and state are required")
		return
	}

	stateProvider, err := h.States.Consume(ctx, state)
	if err != nil {
		if errors.Is(err, auth.ErrStateNotFound) {
			respondError(ctx, w, http.StatusBadRequest, "invalid or expired sign-in state")
			return
		}
		logger.Errorw("consume oauth state", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to complete sign-in")
		return
	}
	if stateProvider != name {
		respondError(ctx, w, http.StatusBadRequest, "invalid or expired sign-in state")
		return
	}

	identity, err := provider.Exchange(ctx, code)
	if err != nil {
		logger.Warnw("oauth exchange failed", "error", err, "provider", name)
		respondError(ctx, w, http.StatusUnauthorized, "sign-in failed")
		return
	}

	user, err := h.resolveUser(r, identity)
	if err != nil {
		var mismatch providerMismatchError
		switch {
		case errors.As(err, &mismatch):
			respondError(ctx, w, http.StatusForbidden, mismatch.Error())
		default:
			logger.Errorw("resolve oauth user", "error", err, "provider", name)
			respondError(ctx, w, http.StatusInternalServerError, "unable to complete sign-in")
		}
		return
	}

	tokens, err := h.Sessions.Issue(ctx, user)
	if err != nil {
		logger.Errorw("failed to issue session", "error", err, "userId", user.ID)
		respondError(ctx, w, http.StatusInternalServerError, "failed to create session")
		return
	}

	setSessionCookie(w, tokens, h.CookieSecure)
	http.Redirect(w, r, "/", http.StatusFound)
}

type providerMismatchError struct {
	provider string
}

func (e providerMismatchError) Error() string {
	return fmt.Sprintf("this email is registered with %s", e.provider)
}

func (h OAuthHandler) resolveUser(r *http.Request, identity auth.Identity) (models.User, error) {
	ctx := r.Context()

	user, err := h.Users.FindByEmail(ctx, identity.Email)
	if err == nil {
		if user.Provider != identity.Provider {
			return models.User{}, providerMismatchError{provider: user.Provider}
		}
		return user, nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return models.User{}, err
	}

	now := h.now()
	user = models.User{
		ID:            uuid.NewString(),
		Name:          identity.Name,
		Email:         identity.Email,
		Provider:      identity.Provider,
		Image:         identity.Image,
		Subscribers:   []string{},
		Subscriptions: []string{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := h.Users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			// Lost a race with a concurrent first sign-in for the same email.
			return h.Users.FindByEmail(ctx, identity.Email)
		}
		return models.User{}, err
	}

	logging.FromContext(ctx).Infow("created account from oauth sign-in", "userId", user.ID, "provider", user.Provider)
	return user, nil
}

func (h OAuthHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}

func newState() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
