package middleware

import (
	"net/http"
	"strings"

	"github.com/vidstream/backend/internal/auth"
	"github.com/vidstream/backend/internal/logging"
)

// SessionCookieName is the cookie carrying the signed session token for browser clients.
const SessionCookieName = "session_token"

// TokenVerifier validates a session token and returns its claims.
type TokenVerifier interface {
	Verify(token string) (auth.Claims, error)
}

var publicPages = map[string]struct{}{
	"/":                {},
	"/login":           {},
	"/register":        {},
	"/forgot-password": {},
	"/reset-password":  {},
	"/healthz":         {},
}

// IsPublic classifies a request. Rules are evaluated in order and the first match wins:
// the auth API, the fixed public pages, the video and channel pages, and read-only
// requests against the video and channel APIs are public. Everything else needs a session.
func IsPublic(method, path string) bool {
	if path == "/api/auth" || strings.HasPrefix(path, "/api/auth/") {
		return true
	}
	if _, ok := publicPages[path]; ok {
		return true
	}
	if strings.HasPrefix(path, "/videos/") || strings.HasPrefix(path, "/channel/") {
		return true
	}
	if path == "/api/video" || strings.HasPrefix(path, "/api/videos/") || strings.HasPrefix(path, "/api/channel/") {
		return isReadOnly(method)
	}
	return false
}

func isReadOnly(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// Gate authenticates every request. A valid session token attaches its claims to the
// request context on any path. Protected requests without one get 401. A signed-in
// user asking for the login or register page is redirected home.
func Gate(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			claims, authenticated := authenticate(r, verifier)

			if authenticated {
				if path == "/login" || path == "/register" {
					http.Redirect(w, r, "/", http.StatusSeeOther)
					return
				}
				ctx := auth.WithClaims(r.Context(), claims)
				ctx = logging.WithLogger(ctx, logging.FromContext(ctx).With("user_id", claims.UserID))
				r = r.WithContext(ctx)
			}

			if !authenticated && !IsPublic(r.Method, path) {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func authenticate(r *http.Request, verifier TokenVerifier) (auth.Claims, bool) {
	token := TokenFromRequest(r)
	if token == "" || verifier == nil {
		return auth.Claims{}, false
	}
	claims, err := verifier.Verify(token)
	if err != nil {
		logging.FromContext(r.Context()).Debugw("ignoring invalid session token", "error", err)
		return auth.Claims{}, false
	}
	return claims, true
}

// TokenFromRequest extracts the session token from the Authorization header, falling
// back to the session cookie.
func TokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			if token = strings.TrimSpace(token); token != "" {
				return token
			}
		}
	}
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}
