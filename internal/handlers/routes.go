package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/vidstream/backend/internal/auth"
	"github.com/vidstream/backend/internal/middleware"
)

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Users    UserStore
	Videos   VideoStore
	Sessions SessionManager
	Tokens   middleware.TokenVerifier
	Media    MediaStore
	Mailer   Mailer
	DB       Pinger

	OAuthProviders map[string]IdentityProvider
	OAuthStates    auth.StateStore
	OAuthStateTTL  time.Duration

	AuthLimiter  middleware.RateLimiter
	TrustProxy   bool
	PublicURL    string
	StaticDir    string
	CookieSecure bool
}

// NewRouter wires every endpoint behind the request logger and the route gate.
func NewRouter(deps Dependencies, logger *zap.SugaredLogger) http.Handler {
	health := HealthHandler{DB: deps.DB}
	authHandler := AuthHandler{
		Users:        deps.Users,
		Sessions:     deps.Sessions,
		Mailer:       deps.Mailer,
		PublicURL:    deps.PublicURL,
		CookieSecure: deps.CookieSecure,
	}
	oauth := OAuthHandler{
		Providers:    deps.OAuthProviders,
		States:       deps.OAuthStates,
		Users:        deps.Users,
		Sessions:     deps.Sessions,
		StateTTL:     deps.OAuthStateTTL,
		CookieSecure: deps.CookieSecure,
	}
	videos := VideoHandler{Videos: deps.Videos, Users: deps.Users, Media: deps.Media}
	channels := ChannelHandler{Users: deps.Users, Videos: deps.Videos}
	users := UserHandler{Users: deps.Users}
	uploads := UploadHandler{Media: deps.Media}

	limited := func(scope string) func(http.Handler) http.Handler {
		return middleware.RateLimit(deps.AuthLimiter, scope, deps.TrustProxy)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Gate(deps.Tokens))
	r.Use(chimw.GetHead)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		if deps.StaticDir != "" && !strings.HasPrefix(req.URL.Path, "/api/") {
			PageHandler{Dir: deps.StaticDir}.ServeHTTP(w, req)
			return
		}
		respondError(req.Context(), w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		respondError(req.Context(), w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", health.Handle)

	r.Route("/api/auth", func(r chi.Router) {
		r.With(limited("register")).Post("/register", authHandler.Register)
		r.With(limited("login")).Post("/login", authHandler.Login)
		r.With(limited("forgot-password")).Post("/forgot-password", authHandler.ForgotPassword)
		r.With(limited("reset-password")).Post("/reset-password", authHandler.ResetPassword)
		r.Post("/refresh", authHandler.Refresh)
		r.Post("/logout", authHandler.Logout)
		r.Get("/session", authHandler.Session)
		r.Get("/{provider}/login", oauth.Login)
		r.Get("/{provider}/callback", oauth.Callback)
	})

	r.Get("/api/video", videos.List)
	r.Post("/api/video", videos.Create)

	r.Route("/api/videos/{id}", func(r chi.Router) {
		r.Get("/", videos.Get)
		r.Put("/", videos.Update)
		r.Delete("/", videos.Delete)
		r.Post("/like", videos.Like)
		r.Post("/dislike", videos.Dislike)
		r.Post("/view", videos.View)
	})

	r.Get("/api/channel/{id}", channels.Get)
	r.Post("/api/channel/{id}/subscribe", channels.Subscribe)

	r.Get("/api/users/me", users.Me)
	r.Put("/api/users/me", users.UpdateMe)

	r.Post("/api/uploads/presign", uploads.Presign)
	r.Post("/api/uploads", uploads.Upload)

	return r
}
