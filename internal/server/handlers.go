package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/tmcfarlane/gatehouse/internal/auth"
	"github.com/tmcfarlane/gatehouse/internal/db"
	"github.com/tmcfarlane/gatehouse/internal/features"
	"github.com/tmcfarlane/gatehouse/internal/middleware"
	"github.com/tmcfarlane/gatehouse/internal/oauth"
)

// handlers binds HTTP handler methods to an App's dependencies.
type handlers struct {
	app *App
}

// tokenResponse is the body returned by register, login, and the /me
// endpoint's sibling flows.
type tokenResponse struct {
	Token string   `json:"token"`
	User  *db.User `json:"user"`
}

// --- Health endpoints ---

func (h *handlers) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (h *handlers) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ready := true
	checks := make(map[string]interface{})

	if err := h.app.DB.Ping(); err != nil {
		ready = false
		checks["database"] = map[string]string{"status": "unhealthy", "error": err.Error()}
	} else {
		checks["database"] = map[string]string{"status": "healthy"}
	}

	w.Header().Set("Content-Type", "application/json")
	if ready {
		checks["status"] = "ready"
		w.WriteHeader(http.StatusOK)
	} else {
		checks["status"] = "not_ready"
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(checks)
}

// --- Auth endpoints ---

// handleAvailableAuths reports which sign-in methods the frontend should
// offer. A method must be both configured and, when a feature service is
// wired, enabled by its gate.
func (h *handlers) handleAvailableAuths(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	methods := []string{}
	if h.app.Google != nil && h.gateOpen(r, "google-auth") {
		methods = append(methods, "google")
	}
	if h.app.GitHub != nil && h.gateOpen(r, "github-auth") {
		methods = append(methods, "github")
	}
	if h.gateOpen(r, "email-auth") {
		methods = append(methods, "email")
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(methods)
}

// gateOpen asks the feature service whether a sign-in method is enabled.
// Without a configured feature service every method is open.
func (h *handlers) gateOpen(r *http.Request, feature string) bool {
	if h.app.Features == nil {
		return true
	}
	var opts []features.CheckOption
	if claims := middleware.GetClaimsFromContext(r.Context()); claims != nil {
		opts = append(opts, features.ForUser(claims.UserID), features.ForRole(claims.Role))
	}
	return h.app.Features.IsEnabled(r.Context(), feature, opts...)
}

func (h *handlers) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !h.app.Config.AllowRegistration || !h.gateOpen(r, "email-auth") {
		http.Error(w, "Registration is disabled", http.StatusForbidden)
		return
	}

	var req struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if req.Email == "" || req.Password == "" {
		http.Error(w, "Email and password are required", http.StatusBadRequest)
		return
	}

	user, err := h.app.Passwords.Register(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrDuplicateAccount):
			http.Error(w, "User already exists", http.StatusBadRequest)
		case errors.Is(err, auth.ErrMissingEmail):
			http.Error(w, "Email is required", http.StatusBadRequest)
		default:
			slog.Error("registration failed", "email", req.Email, "error", err)
			http.Error(w, "Registration failed", http.StatusInternalServerError)
		}
		return
	}

	token, err := h.app.Issuer.Issue(user)
	if err != nil {
		slog.Error("token issue failed", "user_id", user.ID, "error", err)
		http.Error(w, "Registration failed", http.StatusInternalServerError)
		return
	}

	slog.Info("user registered", "user_id", user.ID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(tokenResponse{Token: token, User: user})
}

func (h *handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if req.Email == "" || req.Password == "" {
		http.Error(w, "Email and password are required", http.StatusBadRequest)
		return
	}

	user, err := h.app.Passwords.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		slog.Warn("login failed", "email", req.Email)
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := h.app.Issuer.Issue(user)
	if err != nil {
		slog.Error("token issue failed", "user_id", user.ID, "error", err)
		http.Error(w, "Login failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tokenResponse{Token: token, User: user})
}

func (h *handlers) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	user, err := h.app.DB.GetUserByID(claims.UserID)
	if err != nil {
		http.Error(w, "Failed to load user", http.StatusInternalServerError)
		return
	}
	if user == nil {
		// Token outlived the account.
		http.Error(w, "User not found", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

// --- OAuth redirect flows ---

// oauthLoginHandler starts an authorization-code flow by minting a state
// token and redirecting the browser to the provider.
func (h *handlers) oauthLoginHandler(flow oauth.Flow) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if flow == nil {
			http.Error(w, "Sign-in method is not configured", http.StatusServiceUnavailable)
			return
		}

		state, err := h.app.States.Begin(r.URL.Query().Get("redirect"))
		if err != nil {
			slog.Error("failed to begin oauth flow", "provider", flow.Name(), "error", err)
			http.Error(w, "Failed to start sign-in", http.StatusInternalServerError)
			return
		}

		http.Redirect(w, r, flow.AuthCodeURL(state), http.StatusFound)
	}
}

// oauthCallbackHandler completes an authorization-code flow: it redeems
// the state token, exchanges the code, resolves the identity, and sends
// the browser back to the frontend with a signed token. Every failure
// redirects to the frontend error page rather than rendering a dead end.
func (h *handlers) oauthCallbackHandler(flow oauth.Flow, provider string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if flow == nil {
			http.Error(w, "Sign-in method is not configured", http.StatusServiceUnavailable)
			return
		}

		if errParam := r.URL.Query().Get("error"); errParam != "" {
			slog.Warn("oauth callback error", "provider", provider,
				"error", errParam, "description", r.URL.Query().Get("error_description"))
			h.redirectAuthError(w, r, provider)
			return
		}

		code := r.URL.Query().Get("code")
		state := r.URL.Query().Get("state")
		if code == "" || state == "" {
			h.redirectAuthError(w, r, provider)
			return
		}

		redirect, err := h.app.States.Consume(state)
		if err != nil {
			slog.Warn("oauth state rejected", "provider", provider, "error", err)
			h.redirectAuthError(w, r, provider)
			return
		}

		assertion, err := flow.Exchange(r.Context(), code)
		if err != nil {
			slog.Error("oauth exchange failed", "provider", provider, "error", err)
			h.redirectAuthError(w, r, provider)
			return
		}

		user, err := h.app.Resolver.Resolve(r.Context(), assertion)
		if err != nil {
			slog.Error("identity resolution failed", "provider", provider, "error", err)
			h.redirectAuthError(w, r, provider)
			return
		}

		token, err := h.app.Issuer.Issue(user)
		if err != nil {
			slog.Error("token issue failed", "user_id", user.ID, "error", err)
			h.redirectAuthError(w, r, provider)
			return
		}

		slog.Info("oauth sign-in completed", "provider", provider, "user_id", user.ID)

		params := url.Values{"token": {token}}
		if redirect != "" {
			params.Set("redirect", redirect)
		}
		http.Redirect(w, r,
			fmt.Sprintf("%s/auth/callback?%s", h.app.Config.FrontendURL, params.Encode()),
			http.StatusFound)
	}
}

func (h *handlers) redirectAuthError(w http.ResponseWriter, r *http.Request, provider string) {
	http.Redirect(w, r,
		fmt.Sprintf("%s/auth?error=%s_auth_failed", h.app.Config.FrontendURL, provider),
		http.StatusFound)
}

// --- Admin endpoints ---

func (h *handlers) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	users, err := h.app.DB.ListUsers()
	if err != nil {
		http.Error(w, "Failed to list users", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(users)
}
