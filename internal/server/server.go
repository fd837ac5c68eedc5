// Package server provides the HTTP handler assembly for the Gatehouse
// service. It accepts all dependencies as parameters so that both main()
// and tests can build the same handler chain without route drift.
package server

import (
	"net/http"

	"github.com/tmcfarlane/gatehouse/internal/auth"
	"github.com/tmcfarlane/gatehouse/internal/config"
	"github.com/tmcfarlane/gatehouse/internal/db"
	"github.com/tmcfarlane/gatehouse/internal/features"
	"github.com/tmcfarlane/gatehouse/internal/middleware"
	"github.com/tmcfarlane/gatehouse/internal/oauth"
)

// App holds all dependencies needed to build the HTTP handler.
type App struct {
	DB        *db.DB
	Issuer    *auth.Issuer
	Resolver  *auth.Resolver
	Passwords *auth.Passwords
	States    *oauth.States
	Google    oauth.Flow // nil disables Google sign-in
	GitHub    oauth.Flow // nil disables GitHub sign-in
	Features  *features.Client // nil disables feature gating
	Config    *config.Config
}

// Handler builds and returns the complete HTTP handler with all routes
// registered and middleware applied.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()

	// Bind the handlers package to this App's dependencies.
	h := &handlers{app: a}

	// Observability endpoints (public, no auth required)
	mux.HandleFunc("/healthz", h.handleHealthz)
	mux.HandleFunc("/readyz", h.handleReadyz)

	// Auth routes (public)
	// available-auths accepts an optional token so that gate checks can
	// be scoped to the caller's user and role.
	optionalAuth := middleware.OptionalAuthMiddleware(a.Issuer)
	mux.Handle("/api/auth/available-auths", optionalAuth(http.HandlerFunc(h.handleAvailableAuths)))
	mux.HandleFunc("/api/auth/register", h.handleRegister)
	mux.HandleFunc("/api/auth/login", h.handleLogin)

	// OAuth redirect flows (public)
	mux.HandleFunc("/api/auth/google", h.oauthLoginHandler(a.Google))
	mux.HandleFunc("/api/auth/google/callback", h.oauthCallbackHandler(a.Google, "google"))
	mux.HandleFunc("/api/auth/github", h.oauthLoginHandler(a.GitHub))
	mux.HandleFunc("/api/auth/github/callback", h.oauthCallbackHandler(a.GitHub, "github"))

	// Protected API routes
	authMiddleware := middleware.AuthMiddleware(a.Issuer)
	requireAdmin := middleware.RequireRole("admin")

	mux.Handle("/api/auth/me", authMiddleware(http.HandlerFunc(h.handleMe)))

	// Admin routes (protected, admin-only)
	mux.Handle("/api/admin/users", authMiddleware(requireAdmin(http.HandlerFunc(h.handleAdminUsers))))

	// Wrap with middleware
	return middleware.SecurityHeaders(middleware.RequestID(mux))
}
