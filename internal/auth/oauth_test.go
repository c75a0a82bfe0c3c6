package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func newProviderServer(t *testing.T, profile map[string]any, emails []map[string]any) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.Form.Get("code") != "good-code" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "provider-token", "token_type": "bearer"})
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer provider-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(profile)
	})
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(emails)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func testConfig(server *httptest.Server) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost/api/auth/github/callback",
		Endpoint: oauth2.Endpoint{
			AuthURL:  server.URL + "/authorize",
			TokenURL: server.URL + "/token",
		},
	}
}

func TestOAuthProviderExchangeFallsBackToEmailList(t *testing.T) {
	server := newProviderServer(t,
		map[string]any{"login": "octocat", "avatar_url": "https://avatars/octo.png"},
		[]map[string]any{
			{"email": "secondary@example.com", "primary": false, "verified": true},
			{"email": "Octo@Example.com", "primary": true, "verified": true},
		})

	provider := NewCustomProvider("github", testConfig(server), server.URL+"/user", server.URL+"/user/emails")

	identity, err := provider.Exchange(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, Identity{
		Provider: "github",
		Email:    "octo@example.com",
		Name:     "octocat",
		Image:    "https://avatars/octo.png",
	}, identity)
}

func TestOAuthProviderExchangeUsesProfileEmail(t *testing.T) {
	server := newProviderServer(t,
		map[string]any{"email": "ada@example.com", "name": "Ada", "picture": "https://img/ada.png"}, nil)

	provider := NewCustomProvider("google", testConfig(server), server.URL+"/user", "")

	identity, err := provider.Exchange(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, "Ada", identity.Name)
	assert.Equal(t, "https://img/ada.png", identity.Image)
}

func TestOAuthProviderExchangeFailures(t *testing.T) {
	server := newProviderServer(t, map[string]any{"login": "nobody"}, []map[string]any{
		{"email": "unverified@example.com", "primary": true, "verified": false},
	})
	provider := NewCustomProvider("github", testConfig(server), server.URL+"/user", server.URL+"/user/emails")

	_, err := provider.Exchange(context.Background(), "bad-code")
	assert.Error(t, err)

	_, err = provider.Exchange(context.Background(), "good-code")
	assert.ErrorContains(t, err, "no verified email")
}

func TestOAuthProviderAuthCodeURLCarriesState(t *testing.T) {
	provider := NewGitHubProvider("client", "secret", "http://localhost/callback")
	parsed, err := url.Parse(provider.AuthCodeURL("xyz"))
	require.NoError(t, err)
	assert.Equal(t, "xyz", parsed.Query().Get("state"))
	assert.Equal(t, "client", parsed.Query().Get("client_id"))
}
