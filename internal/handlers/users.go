package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/vidstream/backend/internal/logging"
	"github.com/vidstream/backend/internal/repositories"
)

// UserHandler serves the signed-in user's own account.
type UserHandler struct {
	Users   UserStore
	NowFunc func() time.Time
}

// Me handles GET /api/users/me.
func (h UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	user, err := h.Users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "account not found")
			return
		}
		logging.FromContext(ctx).Errorw("load account", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to load account")
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]userView{"user": accountUser(user)})
}

// UpdateMe handles PUT /api/users/me.
func (h UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var req updateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		logger.Warnw("invalid profile payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.Users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "account not found")
			return
		}
		logger.Errorw("load account", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to load account")
		return
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			respondError(ctx, w, http.StatusBadRequest, "name cannot be empty")
			return
		}
		user.Name = name
	}
	if req.Image != nil {
		image := strings.TrimSpace(*req.Image)
		if image != "" && !isHTTPURL(image) {
			respondError(ctx, w, http.StatusBadRequest, "image must be an absolute http(s) URL")
			return
		}
		user.Image = image
	}
	user.UpdatedAt = h.now()

	if err := h.Users.Update(ctx, user); err != nil {
		logger.Errorw("update account", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "failed to update account")
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]userView{"user": accountUser(user)})
}

func (h UserHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}

type updateProfileRequest struct {
	Name  *string `json:"name"`
	Image *string `json:"image"`
}
