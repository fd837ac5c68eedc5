package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/tmcfarlane/gatehouse/internal/auth"
	"github.com/tmcfarlane/gatehouse/internal/config"
	"github.com/tmcfarlane/gatehouse/internal/db"
	"github.com/tmcfarlane/gatehouse/internal/features"
	"github.com/tmcfarlane/gatehouse/internal/oauth"
	"github.com/tmcfarlane/gatehouse/internal/server"
)

// stateCleanupInterval controls how often stale OAuth state tokens are
// purged. Consume already rejects expired tokens, this just bounds table
// growth.
const stateCleanupInterval = 15 * time.Minute

func main() {
	// Parse command-line flags (can override env vars)
	port := flag.Int("port", config.DefaultPort, "Port to listen on")
	dbPath := flag.String("db", config.DefaultDBPath, "Path to SQLite database")
	flag.Parse()

	// Load configuration (env vars + flag overrides)
	cfg, err := config.LoadWithFlags(*port, *dbPath)
	if err != nil {
		log.Fatalf("Configuration error:\n%v\n\nSee .env.example for configuration options.", err)
	}

	// Initialize database
	database, err := db.OpenDB(cfg.DBType, cfg.DSN())
	if err != nil {
		log.Fatal("Failed to open database:", err)
	}
	defer database.Close()

	// Seed the roles every account depends on
	if err := database.SeedRoles(
		db.Role{ID: "role-user", Name: "user", Description: "Default role"},
		db.Role{ID: "role-admin", Name: "admin", Description: "Administrator"},
	); err != nil {
		log.Fatal("Failed to seed roles:", err)
	}

	// Token issuer
	issuer, err := auth.NewIssuer(cfg.JWTSecret, cfg.JWTExpiry)
	if err != nil {
		log.Fatal("Failed to initialize token issuer:", err)
	}

	app := &server.App{
		DB:        database,
		Issuer:    issuer,
		Resolver:  auth.NewResolver(database),
		Passwords: auth.NewPasswords(database),
		States:    oauth.NewStates(database),
		Config:    cfg,
	}

	// OAuth flows are optional; only configured providers are mounted.
	if cfg.GoogleEnabled() {
		google, err := oauth.NewGoogle(context.Background(), oauth.GoogleConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.CallbackURL("google"),
			Issuer:       cfg.GoogleIssuer,
		})
		if err != nil {
			log.Fatal("Failed to initialize Google sign-in:", err)
		}
		app.Google = google
		slog.Info("google sign-in enabled")
	}
	if cfg.GitHubEnabled() {
		app.GitHub = oauth.NewGitHub(oauth.GitHubConfig{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			RedirectURL:  cfg.CallbackURL("github"),
		})
		slog.Info("github sign-in enabled")
	}

	if cfg.FeatureServiceURL != "" {
		app.Features = features.NewClient(cfg.FeatureServiceURL, cfg.FeatureCheckTimeout)
		slog.Info("feature gating enabled", "url", cfg.FeatureServiceURL)
	}

	// Purge stale OAuth state tokens in the background.
	go func() {
		ticker := time.NewTicker(stateCleanupInterval)
		defer ticker.Stop()
		for range ticker.C {
			if err := database.CleanupExpiredOAuthStates(); err != nil {
				slog.Warn("oauth state cleanup failed", "error", err)
			}
		}
	}()

	addr := fmt.Sprintf(":%d", cfg.Port)
	slog.Info("gatehouse listening", "addr", addr, "db_type", cfg.DBType)
	if err := http.ListenAndServe(addr, app.Handler()); err != nil {
		log.Fatal("Server error:", err)
	}
}
