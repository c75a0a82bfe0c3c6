package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vidstream/backend/internal/auth"
	"github.com/vidstream/backend/internal/logging"
	"github.com/vidstream/backend/internal/models"
	"github.com/vidstream/backend/internal/repositories"
	"github.com/vidstream/backend/internal/social"
)

// ChannelHandler serves channel pages and subscriptions.
type ChannelHandler struct {
	Users  UserStore
	Videos VideoStore
}

// Get handles GET /api/channel/{id}.
func (h ChannelHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	id := chi.URLParam(r, "id")
	if !validID(id) {
		respondError(ctx, w, http.StatusNotFound, "channel not found")
		return
	}

	user, err := h.Users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "channel not found")
			return
		}
		logger.Errorw("load channel", "error", err, "channelId", id)
		respondError(ctx, w, http.StatusInternalServerError, "unable to load channel")
		return
	}

	videos, err := h.Videos.ListByOwner(ctx, id)
	if err != nil {
		logger.Errorw("list channel videos", "error", err, "channelId", id)
		respondError(ctx, w, http.StatusInternalServerError, "unable to load channel")
		return
	}

	viewerID := auth.UserIDFromContext(ctx)
	view := publicUser(user)
	if viewerID == user.ID {
		view = accountUser(user)
	}

	respondJSON(ctx, w, http.StatusOK, channelResponse{
		User:             view,
		Videos:           newVideoViews(videos, viewerID),
		SubscribersCount: len(user.Subscribers),
		IsSubscribed:     social.IsSubscribed(user, viewerID),
	})
}

// Subscribe handles POST /api/channel/{id}/subscribe, toggling the caller's subscription.
func (h ChannelHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireUser(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	if !validID(id) {
		respondError(r.Context(), w, http.StatusNotFound, "channel not found")
		return
	}
	if id == claims.UserID {
		respondError(r.Context(), w, http.StatusBadRequest, social.ErrSelfSubscription.Error())
		return
	}

	ctx, span := logging.StartSpan(r.Context(), "channel.subscribe")
	defer span.End()

	var state social.SubscriptionState
	err := h.Users.MutateSubscription(ctx, claims.UserID, id, func(subscriber, channel *models.User) error {
		var err error
		state, err = social.ToggleSubscription(subscriber, channel)
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, social.ErrSelfSubscription):
			respondError(ctx, w, http.StatusBadRequest, err.Error())
		case errors.Is(err, repositories.ErrNotFound):
			respondError(ctx, w, http.StatusNotFound, "channel not found")
		default:
			logging.FromContext(ctx).Errorw("toggle subscription", "error", err, "channelId", id)
			respondError(ctx, w, http.StatusInternalServerError, "failed to update subscription")
		}
		return
	}

	respondJSON(ctx, w, http.StatusOK, state)
}

type channelResponse struct {
	User             userView    `json:"user"`
	Videos           []videoView `json:"videos"`
	SubscribersCount int         `json:"subscribersCount"`
	IsSubscribed     bool        `json:"isSubscribed"`
}
