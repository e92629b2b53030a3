package oauth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/TimurCravtov/CraftHub/internal/auth/domain"
	"github.com/TimurCravtov/CraftHub/internal/auth/oauth"
	"github.com/stretchr/testify/require"
)

func TestExtractGoogle(t *testing.T) {
	t.Run("full profile", func(t *testing.T) {
		id, err := oauth.ExtractGoogle([]byte(`{"id":"1089","name":"Ana P","email":"Ana@Gmail.com","verified_email":true}`))
		require.NoError(t, err)
		require.Equal(t, "1089", id.ProviderID)
		require.Equal(t, "Ana P", id.Name)
		require.Equal(t, "ana@gmail.com", id.Email)
	})

	t.Run("missing email", func(t *testing.T) {
		_, err := oauth.ExtractGoogle([]byte(`{"id":"1089"}`))
		require.ErrorIs(t, err, oauth.ErrIncompleteProfile)
	})

	t.Run("not json", func(t *testing.T) {
		_, err := oauth.ExtractGoogle([]byte(`<html>`))
		require.Error(t, err)
	})
}

func TestExtractGitHub(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantName  string
		wantEmail string
	}{
		{"public profile", `{"id":583231,"login":"octocat","name":"The Octocat","email":"octo@github.com"}`, "The Octocat", "octo@github.com"},
		{"private email", `{"id":583231,"login":"octocat","name":"The Octocat","email":null}`, "The Octocat", "583231+octocat@users.noreply.github.com"},
		{"no name", `{"id":583231,"login":"octocat","name":null,"email":"octo@github.com"}`, "octocat", "octo@github.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := oauth.ExtractGitHub([]byte(tt.body))
			require.NoError(t, err)
			require.Equal(t, "583231", id.ProviderID)
			require.Equal(t, tt.wantName, id.Name)
			require.Equal(t, tt.wantEmail, id.Email)
		})
	}

	_, err := oauth.ExtractGitHub([]byte(`{"login":"octocat"}`))
	require.ErrorIs(t, err, oauth.ErrIncompleteProfile)
}

// fakeProvider serves a token endpoint and a user-info endpoint.
func fakeProvider(t *testing.T, userInfo string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		require.Equal(t, "client-id", r.PostForm.Get("client_id"))
		require.Equal(t, "client-secret", r.PostForm.Get("client_secret"))
		require.Equal(t, "https://app.example.com/callback", r.PostForm.Get("redirect_uri"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"upstream-token","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer upstream-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(userInfo))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestProviderExchangeAndFetch(t *testing.T) {
	srv := fakeProvider(t, `{"id":42,"login":"octocat","name":"Octo","email":"octo@example.com"}`)

	cfg := oauth.GitHub("client-id", "client-secret")
	cfg.TokenURL = srv.URL + "/token"
	cfg.UserInfoURL = srv.URL + "/user"
	p := oauth.NewProvider(cfg, 5*time.Second)

	ctx := context.Background()
	tok, err := p.Exchange(ctx, "good-code", "https://app.example.com/callback")
	require.NoError(t, err)
	require.Equal(t, "upstream-token", tok.AccessToken)

	id, err := p.FetchIdentity(ctx, tok)
	require.NoError(t, err)
	require.Equal(t, domain.ExternalIdentity{
		Provider:   domain.ProviderGitHub,
		ProviderID: "42",
		Email:      "octo@example.com",
		Name:       "Octo",
	}, id)

	_, err = p.Exchange(ctx, "bad-code", "https://app.example.com/callback")
	require.Error(t, err)
}

func TestRegistry(t *testing.T) {
	r := oauth.NewRegistry(
		oauth.NewProvider(oauth.Google("a", "b"), 0),
		oauth.NewProvider(oauth.GitHub("c", "d"), 0),
	)

	p, ok := r.Get("GitHub")
	require.True(t, ok)
	require.Equal(t, "github", p.Name())

	_, ok = r.Get("facebook")
	require.False(t, ok)

	require.Equal(t, []string{"github", "google"}, r.Names())
}
