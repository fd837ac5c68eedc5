package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

// fakeIssuer serves just enough OIDC discovery metadata for NewGoogle.
func fakeIssuer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"issuer":                 srv.URL,
			"authorization_endpoint": srv.URL + "/authorize",
			"token_endpoint":         srv.URL + "/token",
			"jwks_uri":               srv.URL + "/keys",
		})
	})
	return srv
}

func TestNewGoogleDiscovery(t *testing.T) {
	srv := fakeIssuer(t)

	g, err := NewGoogle(context.Background(), GoogleConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost/callback",
		Issuer:       srv.URL,
	})
	if err != nil {
		t.Fatalf("NewGoogle failed: %v", err)
	}

	u, err := url.Parse(g.AuthCodeURL("state-abc"))
	if err != nil {
		t.Fatalf("invalid auth URL: %v", err)
	}
	if u.Path != "/authorize" {
		t.Errorf("expected discovered authorize endpoint, got %s", u.Path)
	}
	q := u.Query()
	if q.Get("state") != "state-abc" {
		t.Errorf("expected state in auth URL, got %s", q.Get("state"))
	}
	if q.Get("access_type") != "offline" {
		t.Errorf("expected offline access request, got %s", q.Get("access_type"))
	}
	if q.Get("scope") == "" {
		t.Error("expected scopes in auth URL")
	}
}

func TestNewGoogleDiscoveryFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := NewGoogle(context.Background(), GoogleConfig{Issuer: srv.URL}); err == nil {
		t.Fatal("expected discovery failure")
	}
}
