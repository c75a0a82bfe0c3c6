package models

import "time"

// Identity providers a user account can be bound to.
const (
	ProviderCredentials = "credentials"
	ProviderGoogle      = "google"
	ProviderGitHub      = "github"
)

// User represents an account (and channel) within the vidstream platform.
// Password holds the bcrypt hash and is only set for credentials accounts.
type User struct {
	ID            string
	Name          string
	Email         string
	Password      string
	Provider      string
	Image         string
	Subscribers   []string
	Subscriptions []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasPassword reports whether the account signs in with email and password.
func (u User) HasPassword() bool {
	return u.Provider == ProviderCredentials && u.Password != ""
}

// PasswordReset is a pending reset request. TokenHash is the hex sha256 of the
// token mailed to the user; the raw token is never stored.
type PasswordReset struct {
	UserID    string
	TokenHash string
	ExpiresAt time.Time
}

// Transformation describes how the media host should render a video.
type Transformation struct {
	Width   int `json:"width"`
	Height  int `json:"height"`
	Quality int `json:"quality"`
}

// Video is an uploaded video together with its social state.
type Video struct {
	ID             string
	OwnerID        string
	Title          string
	Description    string
	VideoURL       string
	ThumbnailURL   string
	Transformation Transformation
	Controls       bool
	Views          int64
	Likes          []string
	Dislikes       []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Default rendering parameters applied when an upload omits them.
const (
	DefaultVideoWidth   = 1920
	DefaultVideoHeight  = 1080
	DefaultVideoQuality = 100
)

// SessionTokens groups the bearer credentials issued to authenticated users.
type SessionTokens struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}
