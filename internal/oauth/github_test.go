package oauth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/tmcfarlane/gatehouse/internal/auth"
	"github.com/tmcfarlane/gatehouse/internal/db"
	"golang.org/x/oauth2"
)

// fakeGitHub serves the token endpoint and the REST API surface the
// adapter touches.
func fakeGitHub(t *testing.T, profile string, emails string) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"gho_test","token_type":"bearer"}`))
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer gho_test" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Write([]byte(profile))
	})
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, r *http.Request) {
		if emails == "" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(emails))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestGitHub(srv *httptest.Server) *GitHub {
	return NewGitHub(GitHubConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost/callback",
		APIBaseURL:   srv.URL,
		Endpoint: oauth2.Endpoint{
			AuthURL:  srv.URL + "/login/oauth/authorize",
			TokenURL: srv.URL + "/login/oauth/access_token",
		},
	})
}

func TestGitHubExchange(t *testing.T) {
	srv := fakeGitHub(t,
		`{"id":12345,"login":"octocat","name":"Octo Cat","email":"octo@x.com","avatar_url":"https://avatars.example.com/u/1"}`,
		"")
	gh := newTestGitHub(srv)

	a, err := gh.Exchange(context.Background(), "code-1")
	if err != nil {
		t.Fatalf("Exchange failed: %v", err)
	}

	if a.Provider != db.ProviderGitHub {
		t.Errorf("expected github provider, got %s", a.Provider)
	}
	if a.SubjectID != "12345" {
		t.Errorf("expected subject id 12345, got %s", a.SubjectID)
	}
	if a.Email != "octo@x.com" {
		t.Errorf("expected email octo@x.com, got %s", a.Email)
	}
	if a.DisplayName != "Octo Cat" || a.Username != "octocat" {
		t.Errorf("unexpected names: %q %q", a.DisplayName, a.Username)
	}
	if a.AccessToken != "gho_test" {
		t.Errorf("expected provider access token stored, got %s", a.AccessToken)
	}
}

func TestGitHubExchangeFallsBackToEmailsEndpoint(t *testing.T) {
	srv := fakeGitHub(t,
		`{"id":7,"login":"shy","name":"Shy Dev","email":""}`,
		`[{"email":"old@x.com","primary":false,"verified":true},
		  {"email":"primary@x.com","primary":true,"verified":true},
		  {"email":"unverified@x.com","primary":false,"verified":false}]`)
	gh := newTestGitHub(srv)

	a, err := gh.Exchange(context.Background(), "code-2")
	if err != nil {
		t.Fatalf("Exchange failed: %v", err)
	}
	if a.Email != "primary@x.com" {
		t.Errorf("expected primary verified email, got %s", a.Email)
	}
}

func TestGitHubExchangeRejectsMissingEmail(t *testing.T) {
	srv := fakeGitHub(t, `{"id":8,"login":"ghost","email":""}`, `[]`)
	gh := newTestGitHub(srv)

	_, err := gh.Exchange(context.Background(), "code-3")
	if !errors.Is(err, auth.ErrMissingEmail) {
		t.Fatalf("expected ErrMissingEmail, got %v", err)
	}
}

func TestGitHubAuthCodeURLCarriesState(t *testing.T) {
	srv := fakeGitHub(t, "{}", "")
	gh := newTestGitHub(srv)

	u, err := url.Parse(gh.AuthCodeURL("state-xyz"))
	if err != nil {
		t.Fatalf("invalid auth URL: %v", err)
	}
	if got := u.Query().Get("state"); got != "state-xyz" {
		t.Errorf("expected state=state-xyz, got %s", got)
	}
	if got := u.Query().Get("client_id"); got != "client-id" {
		t.Errorf("expected client_id in auth URL, got %s", got)
	}
}
