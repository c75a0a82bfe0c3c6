package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"

	"github.com/vidstream/backend/internal/models"
)

// Identity is the profile returned by an identity provider after sign-in.
type Identity struct {
	Provider string
	Email    string
	Name     string
	Image    string
}

// OAuthProvider drives the authorization-code flow against one identity provider.
type OAuthProvider struct {
	Name       string
	config     *oauth2.Config
	profileURL string
	emailsURL  string
}

// NewGoogleProvider configures sign-in with Google.
func NewGoogleProvider(clientID, clientSecret, redirectURL string) *OAuthProvider {
	return &OAuthProvider{
		Name: models.ProviderGoogle,
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     google.Endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
		profileURL: "https://openidconnect.googleapis.com/v1/userinfo",
	}
}

// NewGitHubProvider configures sign-in with GitHub.
func NewGitHubProvider(clientID, clientSecret, redirectURL string) *OAuthProvider {
	return &OAuthProvider{
		Name: models.ProviderGitHub,
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     github.Endpoint,
			Scopes:       []string{"read:user", "user:email"},
		},
		profileURL: "https://api.github.com/user",
		emailsURL:  "https://api.github.com/user/emails",
	}
}

// NewCustomProvider builds a provider against arbitrary endpoints. emailsURL may be
// empty when the profile response always carries the email.
func NewCustomProvider(name string, cfg *oauth2.Config, profileURL, emailsURL string) *OAuthProvider {
	return &OAuthProvider{Name: name, config: cfg, profileURL: profileURL, emailsURL: emailsURL}
}

// AuthCodeURL returns the consent page URL carrying state.
func (p *OAuthProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades an authorization code for the user's identity.
func (p *OAuthProvider) Exchange(ctx context.Context, code string) (Identity, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return Identity{}, fmt.Errorf("exchange %s code: %w", p.Name, err)
	}

	client := p.config.Client(ctx, token)

	var profile struct {
		Email     string `json:"email"`
		Name      string `json:"name"`
		Login     string `json:"login"`
		Picture   string `json:"picture"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := getJSON(ctx, client, p.profileURL, &profile); err != nil {
		return Identity{}, fmt.Errorf("fetch %s profile: %w", p.Name, err)
	}

	identity := Identity{
		Provider: p.Name,
		Email:    profile.Email,
		Name:     firstNonEmpty(profile.Name, profile.Login),
		Image:    firstNonEmpty(profile.Picture, profile.AvatarURL),
	}

	if identity.Email == "" && p.emailsURL != "" {
		var emails []struct {
			Email    string `json:"email"`
			Primary  bool   `json:"primary"`
			Verified bool   `json:"verified"`
		}
		if err := getJSON(ctx, client, p.emailsURL, &emails); err != nil {
			return Identity{}, fmt.Errorf("fetch %s emails: %w", p.Name, err)
		}
		for _, e := range emails {
			if e.Primary && e.Verified {
				identity.Email = e.Email
				break
			}
		}
	}

	if identity.Email == "" {
		return Identity{}, fmt.Errorf("%s account has no verified email", p.Name)
	}
	identity.Email = strings.ToLower(identity.Email)
	if identity.Name == "" {
		identity.Name = strings.Split(identity.Email, "@")[0]
	}

	return identity, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
