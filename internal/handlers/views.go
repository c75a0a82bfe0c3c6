package handlers

import (
	"time"

	"github.com/vidstream/backend/internal/models"
	"github.com/vidstream/backend/internal/social"
)

// userView is the public shape of an account. Password material never leaves the server
// and the email is only included for the account holder.
type userView struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Email              string    `json:"email,omitempty"`
	Image              string    `json:"image"`
	Provider           string    `json:"provider,omitempty"`
	SubscribersCount   int       `json:"subscribersCount"`
	SubscriptionsCount int       `json:"subscriptionsCount"`
	CreatedAt          time.Time `json:"createdAt"`
}

func publicUser(u models.User) userView {
	return userView{
		ID:                 u.ID,
		Name:               u.Name,
		Image:              u.Image,
		SubscribersCount:   len(u.Subscribers),
		SubscriptionsCount: len(u.Subscriptions),
		CreatedAt:          u.CreatedAt,
	}
}

func accountUser(u models.User) userView {
	view := publicUser(u)
	view.Email = u.Email
	view.Provider = u.Provider
	return view
}

// videoView exposes reaction counts and the viewer's own flags, never the id sets.
type videoView struct {
	ID             string                `json:"id"`
	OwnerID        string                `json:"ownerId"`
	Title          string                `json:"title"`
	Description    string                `json:"description"`
	VideoURL       string                `json:"videoUrl"`
	ThumbnailURL   string                `json:"thumbnailUrl"`
	Transformation models.Transformation `json:"transformation"`
	Controls       bool                  `json:"controls"`
	Views          int64                 `json:"views"`
	social.ReactionState
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func newVideoView(v models.Video, viewerID string) videoView {
	return videoView{
		ID:             v.ID,
		OwnerID:        v.OwnerID,
		Title:          v.Title,
		Description:    v.Description,
		VideoURL:       v.VideoURL,
		ThumbnailURL:   v.ThumbnailURL,
		Transformation: v.Transformation,
		Controls:       v.Controls,
		Views:          v.Views,
		ReactionState:  social.Reactions(v, viewerID),
		CreatedAt:      v.CreatedAt,
		UpdatedAt:      v.UpdatedAt,
	}
}

func newVideoViews(videos []models.Video, viewerID string) []videoView {
	views := make([]videoView, 0, len(videos))
	for _, v := range videos {
		views = append(views, newVideoView(v, viewerID))
	}
	return views
}
