package social

import (
	"errors"
	"slices"

	"github.com/vidstream/backend/internal/models"
)

// ErrSelfSubscription is returned when a user tries to subscribe to their own channel.
var ErrSelfSubscription = errors.New("cannot subscribe to yourself")

// ReactionState is the viewer-facing outcome of a like or dislike toggle.
type ReactionState struct {
	Liked         bool `json:"liked"`
	Disliked      bool `json:"disliked"`
	LikesCount    int  `json:"likesCount"`
	DislikesCount int  `json:"dislikesCount"`
}

// SubscriptionState is the outcome of a subscribe toggle.
type SubscriptionState struct {
	Subscribed         bool `json:"subscribed"`
	SubscribersCount   int  `json:"subscribersCount"`
	SubscriptionsCount int  `json:"subscriptionsCount"`
}

// ToggleLike flips userID's like on v, clearing any dislike when the like is added.
func ToggleLike(v *models.Video, userID string) ReactionState {
	Toggle(userID, &v.Likes, &v.Dislikes)
	return Reactions(*v, userID)
}

// ToggleDislike flips userID's dislike on v, clearing any like when the dislike is added.
func ToggleDislike(v *models.Video, userID string) ReactionState {
	Toggle(userID, &v.Dislikes, &v.Likes)
	return Reactions(*v, userID)
}

// Reactions reports the counts on v and whether userID currently likes or dislikes it.
func Reactions(v models.Video, userID string) ReactionState {
	return ReactionState{
		Liked:         userID != "" && slices.Contains(v.Likes, userID),
		Disliked:      userID != "" && slices.Contains(v.Dislikes, userID),
		LikesCount:    len(v.Likes),
		DislikesCount: len(v.Dislikes),
	}
}

// ToggleSubscription flips subscriber's subscription to channel, updating both sides
// of the relation. Neither user is modified when they are the same account.
func ToggleSubscription(subscriber, channel *models.User) (SubscriptionState, error) {
	if subscriber.ID == channel.ID {
		return SubscriptionState{}, ErrSelfSubscription
	}

	subscribed := Toggle(subscriber.ID, &channel.Subscribers, nil)
	if subscribed {
		if !slices.Contains(subscriber.Subscriptions, channel.ID) {
			subscriber.Subscriptions = append(subscriber.Subscriptions, channel.ID)
		}
	} else {
		subscriber.Subscriptions = without(subscriber.Subscriptions, channel.ID)
	}

	return SubscriptionState{
		Subscribed:         subscribed,
		SubscribersCount:   len(channel.Subscribers),
		SubscriptionsCount: len(subscriber.Subscriptions),
	}, nil
}

// IsSubscribed reports whether viewerID is among channel's subscribers.
func IsSubscribed(channel models.User, viewerID string) bool {
	return viewerID != "" && slices.Contains(channel.Subscribers, viewerID)
}
