package social

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidstream/backend/internal/models"
)

func TestToggleAddsAndRemoves(t *testing.T) {
	set := []string{"a"}
	opposing := []string{"b", "c"}

	assert.True(t, Toggle("c", &set, &opposing))
	assert.Equal(t, []string{"a", "c"}, set)
	assert.Equal(t, []string{"b"}, opposing)

	assert.False(t, Toggle("c", &set, &opposing))
	assert.Equal(t, []string{"a"}, set)
	assert.Equal(t, []string{"b"}, opposing, "toggling off leaves the opposing set alone")
}

func TestToggleWithoutOpposingSet(t *testing.T) {
	var set []int
	assert.True(t, Toggle(7, &set, nil))
	assert.False(t, Toggle(7, &set, nil))
	assert.Empty(t, set)
}

func TestLikeTwiceRestoresCount(t *testing.T) {
	v := &models.Video{Likes: []string{"u2"}}

	state := ToggleLike(v, "u1")
	assert.True(t, state.Liked)
	assert.Equal(t, 2, state.LikesCount)

	state = ToggleLike(v, "u1")
	assert.False(t, state.Liked)
	assert.Equal(t, 1, state.LikesCount)
	assert.NotContains(t, v.Likes, "u1")
}

func TestLikeThenDislike(t *testing.T) {
	v := &models.Video{ID: "v1"}

	state := ToggleLike(v, "u1")
	assert.Equal(t, ReactionState{Liked: true, LikesCount: 1}, state)

	state = ToggleDislike(v, "u1")
	assert.Equal(t, ReactionState{Disliked: true, Liked: false, LikesCount: 0, DislikesCount: 1}, state)
	assert.Contains(t, v.Dislikes, "u1")
	assert.NotContains(t, v.Likes, "u1")
}

func TestDislikeThenLike(t *testing.T) {
	v := &models.Video{Dislikes: []string{"u1", "u3"}}

	state := ToggleLike(v, "u1")
	assert.Equal(t, ReactionState{Liked: true, LikesCount: 1, DislikesCount: 1}, state)
	assert.Equal(t, []string{"u3"}, v.Dislikes)
}

func TestReactionsForAnonymousViewer(t *testing.T) {
	v := models.Video{Likes: []string{"u1"}, Dislikes: []string{"u2"}}
	state := Reactions(v, "")
	assert.False(t, state.Liked)
	assert.False(t, state.Disliked)
	assert.Equal(t, 1, state.LikesCount)
	assert.Equal(t, 1, state.DislikesCount)
}

func TestToggleSubscription(t *testing.T) {
	viewer := &models.User{ID: "viewer"}
	channel := &models.User{ID: "channel", Subscribers: []string{"other"}}

	state, err := ToggleSubscription(viewer, channel)
	require.NoError(t, err)
	assert.Equal(t, SubscriptionState{Subscribed: true, SubscribersCount: 2, SubscriptionsCount: 1}, state)
	assert.True(t, IsSubscribed(*channel, "viewer"))
	assert.Equal(t, []string{"channel"}, viewer.Subscriptions)

	state, err = ToggleSubscription(viewer, channel)
	require.NoError(t, err)
	assert.Equal(t, SubscriptionState{Subscribed: false, SubscribersCount: 1, SubscriptionsCount: 0}, state)
	assert.False(t, IsSubscribed(*channel, "viewer"))
	assert.Empty(t, viewer.Subscriptions)
}

func TestToggleSubscriptionRepairsAsymmetry(t *testing.T) {
	viewer := &models.User{ID: "viewer", Subscriptions: []string{"channel"}}
	channel := &models.User{ID: "channel"}

	state, err := ToggleSubscription(viewer, channel)
	require.NoError(t, err)
	assert.True(t, state.Subscribed)
	assert.Equal(t, []string{"channel"}, viewer.Subscriptions, "no duplicate subscription entry")
}

func TestSelfSubscriptionRejected(t *testing.T) {
	user := &models.User{ID: "same", Subscribers: []string{"x"}}

	_, err := ToggleSubscription(user, user)
	assert.ErrorIs(t, err, ErrSelfSubscription)
	assert.Equal(t, []string{"x"}, user.Subscribers)
	assert.Empty(t, user.Subscriptions)
}
