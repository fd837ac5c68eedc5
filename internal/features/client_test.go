package features

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func TestIsEnabledTrue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/check/google-auth" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"enabled":true,"reason":"enabledForAll"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	if !client.IsEnabled(context.Background(), "google-auth") {
		t.Error("expected enabled feature to report true")
	}
}

func TestIsEnabledFalse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"enabled":false}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	if client.IsEnabled(context.Background(), "email-auth") {
		t.Error("expected disabled feature to report false")
	}
}

func TestIsEnabledPassesUserAndRole(t *testing.T) {
	var query url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		w.Write([]byte(`{"enabled":true}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	client.IsEnabled(context.Background(), "github-auth", ForUser("u-1"), ForRole("r-1"))

	if query.Get("userId") != "u-1" {
		t.Errorf("expected userId u-1, got %q", query.Get("userId"))
	}
	if query.Get("roleId") != "r-1" {
		t.Errorf("expected roleId r-1, got %q", query.Get("roleId"))
	}
}

func TestIsEnabledFailsClosedOnNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	if client.IsEnabled(context.Background(), "unknown-feature") {
		t.Error("expected 404 to report false")
	}
}

func TestIsEnabledFailsClosedOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	if client.IsEnabled(context.Background(), "google-auth") {
		t.Error("expected 500 to report false")
	}
}

func TestIsEnabledFailsClosedOnUnreachableService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	client := NewClient(srv.URL, time.Second)
	if client.IsEnabled(context.Background(), "google-auth") {
		t.Error("expected transport error to report false")
	}
}

func TestIsEnabledFailsClosedOnGarbageBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	if client.IsEnabled(context.Background(), "google-auth") {
		t.Error("expected undecodable body to report false")
	}
}
