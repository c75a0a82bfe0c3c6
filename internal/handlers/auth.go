package handlers

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/vidstream/backend/internal/auth"
	"github.com/vidstream/backend/internal/logging"
	"github.com/vidstream/backend/internal/middleware"
	"github.com/vidstream/backend/internal/models"
	"github.com/vidstream/backend/internal/repositories"
)

const (
	minPasswordLength = 8
	// bcrypt rejects longer inputs.
	maxPasswordLength = 72
	resetTokenTTL     = time.Hour
)

// AuthHandler implements credential authentication and password recovery endpoints.
type AuthHandler struct {
	Users        UserStore
	Sessions     SessionManager
	Mailer       Mailer
	PublicURL    string
	CookieSecure bool
	NowFunc      func() time.Time
}

// Register handles POST /api/auth/register.
func (h AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		logger.Warnw("invalid register payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Name == "" || req.Email == "" || req.Password == "" {
		respondError(ctx, w, http.StatusBadRequest, "name, email and password are required")
		return
	}

	if _, err := mail.ParseAddress(req.Email); err != nil {
		logger.Warnw("register invalid email", "email", req.Email, "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid email address")
		return
	}

	if len(req.Password) < minPasswordLength {
		respondError(ctx, w, http.StatusBadRequest, fmt.Sprintf("password must be at least %d characters", minPasswordLength))
		return
	}
	if len(req.Password) > maxPasswordLength {
		respondError(ctx, w, http.StatusBadRequest, fmt.Sprintf("password must be at most %d bytes", maxPasswordLength))
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		logger.Errorw("register failed to hash password", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "failed to secure password")
		return
	}

	now := h.now()
	user := models.User{
		ID:            uuid.NewString(),
		Name:          req.Name,
		Email:         req.Email,
		Password:      string(hashed),
		Provider:      models.ProviderCredentials,
		Subscribers:   []string{},
		Subscriptions: []string{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := h.Users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			logger.Warnw("register existing account", "email", req.Email)
			respondError(ctx, w, http.StatusBadRequest, "account already exists")
			return
		}
		logger.Errorw("register failed to create user", "error", err, "email", req.Email)
		respondError(ctx, w, http.StatusInternalServerError, "failed to create account")
		return
	}

	tokens, err := h.Sessions.Issue(ctx, user)
	if err != nil {
		logger.Errorw("register failed to issue session", "error", err, "userId", user.ID)
		respondError(ctx, w, http.StatusInternalServerError, "failed to create session")
		return
	}

	setSessionCookie(w, tokens, h.CookieSecure)
	respondJSON(ctx, w, http.StatusCreated, authResponse{User: accountUser(user), Tokens: tokens})
}

// Login handles POST /api/auth/login.
func (h AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		logger.Warnw("invalid login payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		respondError(ctx, w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := h.Users.FindByEmail(ctx, req.Email)
	if err != nil {
		if !errors.Is(err, repositories.ErrNotFound) {
			logger.Errorw("login user lookup failed", "email", req.Email, "error", err)
			respondError(ctx, w, http.StatusInternalServerError, "unable to sign in")
			return
		}
		logger.Warnw("login unknown email", "email", req.Email)
		respondError(ctx, w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if !user.HasPassword() {
		logger.Warnw("login against oauth account", "userId", user.ID, "provider", user.Provider)
		respondError(ctx, w, http.StatusUnauthorized, fmt.Sprintf("this account signs in with %s", user.Provider))
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		logger.Warnw("login password mismatch", "userId", user.ID)
		respondError(ctx, w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	tokens, err := h.Sessions.Issue(ctx, user)
	if err != nil {
		logger.Errorw("failed to issue session", "error", err, "userId", user.ID)
		respondError(ctx, w, http.StatusInternalServerError, "failed to create session")
		return
	}

	setSessionCookie(w, tokens, h.CookieSecure)
	respondJSON(ctx, w, http.StatusOK, authResponse{User: accountUser(user), Tokens: tokens})
}

// Refresh exchanges a refresh token for a new session.
func (h AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		logger.Warnw("invalid refresh payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		respondError(ctx, w, http.StatusBadRequest, "refresh token is required")
		return
	}

	tokens, err := h.Sessions.Refresh(ctx, req.RefreshToken)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, auth.ErrRefreshTokenExpired) || errors.Is(err, auth.ErrSessionNotFound) || errors.Is(err, repositories.ErrNotFound) {
			status = http.StatusUnauthorized
		}
		logger.Warnw("refresh failed", "error", err, "status", status)
		respondError(ctx, w, status, "unable to refresh session")
		return
	}

	setSessionCookie(w, tokens, h.CookieSecure)
	respondJSON(ctx, w, http.StatusOK, authResponse{Tokens: tokens})
}

// Logout handles POST /api/auth/logout. The body may carry the refresh token to revoke.
func (h AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.Sessions.Revoke(ctx, strings.TrimSpace(req.RefreshToken))
	clearSessionCookie(w, h.CookieSecure)
	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": "signed out"})
}

// Session handles GET /api/auth/session and reports the current identity.
func (h AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireUser(w, r)
	if !ok {
		return
	}

	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}

	respondJSON(r.Context(), w, http.StatusOK, sessionResponse{
		User: sessionUser{
			ID:    claims.UserID,
			Name:  claims.Name,
			Email: claims.Email,
			Image: claims.Image,
		},
		ExpiresAt: expiresAt,
	})
}

// ForgotPassword handles POST /api/auth/forgot-password.
func (h AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var req forgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		logger.Warnw("invalid forgot password payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if _, err := mail.ParseAddress(req.Email); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "a valid email is required")
		return
	}

	user, err := h.Users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "no account found for that email")
			return
		}
		logger.Errorw("forgot password lookup failed", "error", err, "email", req.Email)
		respondError(ctx, w, http.StatusInternalServerError, "unable to process password reset")
		return
	}

	if !user.HasPassword() {
		respondError(ctx, w, http.StatusBadRequest, fmt.Sprintf("this account signs in with %s", user.Provider))
		return
	}

	token, err := newResetToken()
	if err != nil {
		logger.Errorw("generate reset token", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to process password reset")
		return
	}

	if err := h.Users.SetPasswordReset(ctx, models.PasswordReset{
		UserID:    user.ID,
		TokenHash: hashResetToken(token),
		ExpiresAt: h.now().Add(resetTokenTTL),
	}); err != nil {
		logger.Errorw("store reset token", "error", err, "userId", user.ID)
		respondError(ctx, w, http.StatusInternalServerError, "unable to process password reset")
		return
	}

	link := fmt.Sprintf("%s/reset-password?token=%s", strings.TrimSuffix(h.PublicURL, "/"), url.QueryEscape(token))
	if err := h.Mailer.SendPasswordReset(ctx, user.Name, user.Email, link); err != nil {
		logger.Errorw("send reset mail", "error", err, "userId", user.ID)
		respondError(ctx, w, http.StatusInternalServerError, "unable to send password reset email")
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": "password reset email sent"})
}

// ResetPassword handles POST /api/auth/reset-password.
func (h AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		logger.Warnw("invalid reset password payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Token = strings.TrimSpace(req.Token)
	if req.Token == "" {
		respondError(ctx, w, http.StatusBadRequest, "reset token is required")
		return
	}
	if len(req.Password) < minPasswordLength {
		respondError(ctx, w, http.StatusBadRequest, fmt.Sprintf("password must be at least %d characters", minPasswordLength))
		return
	}
	if len(req.Password) > maxPasswordLength {
		respondError(ctx, w, http.StatusBadRequest, fmt.Sprintf("password must be at most %d bytes", maxPasswordLength))
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		logger.Errorw("reset failed to hash password", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "failed to secure password")
		return
	}

	user, err := h.Users.ResetPassword(ctx, hashResetToken(req.Token), string(hashed), h.now())
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusBadRequest, "invalid or expired reset token")
			return
		}
		logger.Errorw("reset password failed", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to reset password")
		return
	}

	if err := h.Sessions.RevokeAll(ctx, user.ID); err != nil {
		logger.Warnw("revoke sessions after password reset", "error", err, "userId", user.ID)
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": "password updated"})
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type authResponse struct {
	User   userView             `json:"user"`
	Tokens models.SessionTokens `json:"tokens"`
}

type sessionUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Image string `json:"image"`
}

type sessionResponse struct {
	User      sessionUser `json:"user"`
	ExpiresAt time.Time   `json:"expiresAt"`
}

func (h AuthHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}

func setSessionCookie(w http.ResponseWriter, tokens models.SessionTokens, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    tokens.AccessToken,
		Path:     "/",
		Expires:  tokens.AccessExpiresAt,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func newResetToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func hashResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
