// Package config provides centralized configuration management for Gatehouse.
// Configuration is loaded from environment variables with sensible defaults.
// Required configuration that is missing will cause the application to fail fast
// with helpful error messages.
package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tmcfarlane/gatehouse/internal/secrets"
)

// Config holds all application configuration.
type Config struct {
	// Server configuration
	Port int
	DB   string // SQLite file path

	// Database configuration
	DBType     string // "sqlite" (default) or "postgres"
	DBDSN      string // Full PostgreSQL DSN (takes precedence over individual params)
	DBHost     string // PostgreSQL host
	DBPort     int    // PostgreSQL port (default: 5432)
	DBName     string // PostgreSQL database name
	DBUser     string // PostgreSQL user
	DBPassword string // PostgreSQL password
	DBSSLMode  string // PostgreSQL SSL mode (default: "disable")

	// Token configuration
	JWTSecret string
	JWTExpiry time.Duration

	// Frontend/redirect configuration
	FrontendURL string // Base URL the browser is redirected back to after OAuth
	PublicURL   string // Externally reachable base URL of this service

	// OAuth provider configuration
	GoogleClientID     string
	GoogleClientSecret string
	GoogleIssuer       string // Override for the Google OIDC issuer (tests)
	GitHubClientID     string
	GitHubClientSecret string

	// Feature gate configuration
	FeatureServiceURL   string
	FeatureCheckTimeout time.Duration

	// Registration configuration
	AllowRegistration bool
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors holds multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("configuration errors:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Default values
const (
	DefaultPort                = 8080
	DefaultDBPath              = "gatehouse.db"
	DefaultDBType              = "sqlite"
	DefaultDBPort              = 5432
	DefaultDBSSLMode           = "disable"
	DefaultJWTExpiry           = 7 * 24 * time.Hour
	DefaultFrontendURL         = "http://localhost:5173"
	DefaultFeatureCheckTimeout = 5 * time.Second

	// MinJWTSecretLength is the shortest signing secret accepted at startup.
	MinJWTSecretLength = 32
)

// Load reads configuration from environment variables and returns a Config.
// It applies defaults for optional values and validates the configuration.
// Returns an error if validation fails.
func Load() (*Config, error) {
	cfg := &Config{
		// Server defaults
		Port: DefaultPort,
		DB:   DefaultDBPath,

		// Database defaults
		DBType:    DefaultDBType,
		DBPort:    DefaultDBPort,
		DBSSLMode: DefaultDBSSLMode,

		// Token defaults
		JWTExpiry: DefaultJWTExpiry,

		// Frontend defaults
		FrontendURL: DefaultFrontendURL,

		// Feature gate defaults
		FeatureCheckTimeout: DefaultFeatureCheckTimeout,

		// Registration defaults
		AllowRegistration: true,
	}

	// Load from environment variables
	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}

	// Fill in secrets from the configured secret store before validating,
	// so a vault-held signing secret still passes the fail-fast checks.
	if err := cfg.resolveSecrets(context.Background()); err != nil {
		return nil, err
	}

	// Validate configuration
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errs
	}

	return cfg, nil
}

// loadFromEnv populates the config from environment variables.
func (c *Config) loadFromEnv() error {
	var parseErrors ValidationErrors

	// Server configuration
	if v := os.Getenv("GATEHOUSE_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			parseErrors = append(parseErrors, ValidationError{
				Field:   "GATEHOUSE_PORT",
				Message: fmt.Sprintf("invalid port number: %q (must be an integer)", v),
			})
		} else {
			c.Port = port
		}
	}

	if v := os.Getenv("GATEHOUSE_DB"); v != "" {
		c.DB = v
	}

	// Database configuration
	if v := os.Getenv("GATEHOUSE_DB_TYPE"); v != "" {
		c.DBType = v
	}
	if v := os.Getenv("GATEHOUSE_DB_DSN"); v != "" {
		c.DBDSN = v
	}
	if v := os.Getenv("GATEHOUSE_DB_HOST"); v != "" {
		c.DBHost = v
	}
	if v := os.Getenv("GATEHOUSE_DB_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			parseErrors = append(parseErrors, ValidationError{
				Field:   "GATEHOUSE_DB_PORT",
				Message: fmt.Sprintf("invalid port number: %q (must be an integer)", v),
			})
		} else {
			c.DBPort = port
		}
	}
	if v := os.Getenv("GATEHOUSE_DB_NAME"); v != "" {
		c.DBName = v
	}
	if v := os.Getenv("GATEHOUSE_DB_USER"); v != "" {
		c.DBUser = v
	}
	if v := os.Getenv("GATEHOUSE_DB_PASSWORD"); v != "" {
		c.DBPassword = v
	}
	if v := os.Getenv("GATEHOUSE_DB_SSLMODE"); v != "" {
		c.DBSSLMode = v
	}

	// Token configuration
	if v := os.Getenv("GATEHOUSE_JWT_SECRET"); v != "" {
		c.JWTSecret = v
	}

	if v := os.Getenv("GATEHOUSE_JWT_EXPIRY"); v != "" {
		hours, err := strconv.Atoi(v)
		if err != nil {
			parseErrors = append(parseErrors, ValidationError{
				Field:   "GATEHOUSE_JWT_EXPIRY",
				Message: fmt.Sprintf("invalid expiry: %q (must be an integer representing hours)", v),
			})
		} else if hours <= 0 {
			parseErrors = append(parseErrors, ValidationError{
				Field:   "GATEHOUSE_JWT_EXPIRY",
				Message: fmt.Sprintf("expiry must be positive: %d", hours),
			})
		} else {
			c.JWTExpiry = time.Duration(hours) * time.Hour
		}
	}

	// Frontend/redirect configuration
	if v := os.Getenv("GATEHOUSE_FRONTEND_URL"); v != "" {
		c.FrontendURL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv("GATEHOUSE_PUBLIC_URL"); v != "" {
		c.PublicURL = strings.TrimRight(v, "/")
	}

	// OAuth provider configuration
	if v := os.Getenv("GATEHOUSE_GOOGLE_CLIENT_ID"); v != "" {
		c.GoogleClientID = v
	}
	if v := os.Getenv("GATEHOUSE_GOOGLE_CLIENT_SECRET"); v != "" {
		c.GoogleClientSecret = v
	}
	if v := os.Getenv("GATEHOUSE_GOOGLE_ISSUER"); v != "" {
		c.GoogleIssuer = v
	}
	if v := os.Getenv("GATEHOUSE_GITHUB_CLIENT_ID"); v != "" {
		c.GitHubClientID = v
	}
	if v := os.Getenv("GATEHOUSE_GITHUB_CLIENT_SECRET"); v != "" {
		c.GitHubClientSecret = v
	}

	// Feature gate configuration
	if v := os.Getenv("GATEHOUSE_FEATURE_SERVICE_URL"); v != "" {
		c.FeatureServiceURL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv("GATEHOUSE_FEATURE_CHECK_TIMEOUT"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			parseErrors = append(parseErrors, ValidationError{
				Field:   "GATEHOUSE_FEATURE_CHECK_TIMEOUT",
				Message: fmt.Sprintf("invalid timeout: %q (must be an integer representing seconds)", v),
			})
		} else if seconds <= 0 {
			parseErrors = append(parseErrors, ValidationError{
				Field:   "GATEHOUSE_FEATURE_CHECK_TIMEOUT",
				Message: fmt.Sprintf("timeout must be positive: %d", seconds),
			})
		} else {
			c.FeatureCheckTimeout = time.Duration(seconds) * time.Second
		}
	}

	// Registration configuration
	if v := os.Getenv("GATEHOUSE_ALLOW_REGISTRATION"); v != "" {
		allow, err := strconv.ParseBool(v)
		if err != nil {
			parseErrors = append(parseErrors, ValidationError{
				Field:   "GATEHOUSE_ALLOW_REGISTRATION",
				Message: fmt.Sprintf("invalid boolean: %q", v),
			})
		} else {
			c.AllowRegistration = allow
		}
	}

	if len(parseErrors) > 0 {
		return parseErrors
	}
	return nil
}

// resolveSecrets fills in sensitive fields that were not supplied through
// plain environment variables by consulting the configured secret store.
// Values already present are left untouched so direct env configuration
// keeps working without a secret store.
func (c *Config) resolveSecrets(ctx context.Context) error {
	mgr, err := secrets.NewManager(secrets.LoadConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize secrets manager: %w", err)
	}
	defer mgr.Close()

	if c.JWTSecret == "" {
		c.JWTSecret = mgr.GetOrDefault(ctx, "jwt-secret", "")
	}
	if c.GoogleClientSecret == "" {
		c.GoogleClientSecret = mgr.GetOrDefault(ctx, "google-client-secret", "")
	}
	if c.GitHubClientSecret == "" {
		c.GitHubClientSecret = mgr.GetOrDefault(ctx, "github-client-secret", "")
	}
	if c.DBPassword == "" {
		c.DBPassword = mgr.GetOrDefault(ctx, "db-password", "")
	}
	return nil
}

// Validate checks the configuration and returns any errors found.
func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors

	// Validate port
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "GATEHOUSE_PORT",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", c.Port),
		})
	}

	// Validate DB type
	switch c.DBType {
	case "sqlite":
		if c.DB == "" {
			errs = append(errs, ValidationError{
				Field:   "GATEHOUSE_DB",
				Message: "database path cannot be empty",
			})
		}
	case "postgres":
		if c.DBDSN == "" && (c.DBHost == "" || c.DBName == "" || c.DBUser == "") {
			errs = append(errs, ValidationError{
				Field:   "GATEHOUSE_DB_DSN",
				Message: "PostgreSQL requires either GATEHOUSE_DB_DSN or all of GATEHOUSE_DB_HOST, GATEHOUSE_DB_NAME, and GATEHOUSE_DB_USER",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "GATEHOUSE_DB_TYPE",
			Message: fmt.Sprintf("unsupported database type: %q (must be \"sqlite\" or \"postgres\")", c.DBType),
		})
	}

	// Validate signing secret. Token verification depends entirely on this
	// value so a short or missing secret is fatal at startup.
	if c.JWTSecret == "" {
		errs = append(errs, ValidationError{
			Field:   "GATEHOUSE_JWT_SECRET",
			Message: "JWT signing secret is required",
		})
	} else if len(c.JWTSecret) < MinJWTSecretLength {
		errs = append(errs, ValidationError{
			Field:   "GATEHOUSE_JWT_SECRET",
			Message: fmt.Sprintf("JWT signing secret must be at least %d characters, got %d", MinJWTSecretLength, len(c.JWTSecret)),
		})
	}

	// OAuth credentials must come in complete pairs
	if (c.GoogleClientID != "") != (c.GoogleClientSecret != "") {
		errs = append(errs, ValidationError{
			Field:   "GATEHOUSE_GOOGLE_CLIENT_ID / GATEHOUSE_GOOGLE_CLIENT_SECRET",
			Message: "both Google client ID and client secret must be set together",
		})
	}
	if (c.GitHubClientID != "") != (c.GitHubClientSecret != "") {
		errs = append(errs, ValidationError{
			Field:   "GATEHOUSE_GITHUB_CLIENT_ID / GATEHOUSE_GITHUB_CLIENT_SECRET",
			Message: "both GitHub client ID and client secret must be set together",
		})
	}

	return errs
}

// DSN returns the database connection string based on the configured database type.
// For SQLite, it returns the file path. For PostgreSQL, it constructs a DSN from
// individual parameters or returns the explicit DSN if set.
func (c *Config) DSN() string {
	switch c.DBType {
	case "postgres":
		if c.DBDSN != "" {
			return c.DBDSN
		}
		dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
		return dsn
	default:
		return c.DB
	}
}

// IsSQLite returns true if the configured database type is SQLite.
func (c *Config) IsSQLite() bool {
	return c.DBType == "" || c.DBType == "sqlite"
}

// IsPostgres returns true if the configured database type is PostgreSQL.
func (c *Config) IsPostgres() bool {
	return c.DBType == "postgres"
}

// GoogleEnabled returns true if Google sign-in is fully configured.
func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// GitHubEnabled returns true if GitHub sign-in is fully configured.
func (c *Config) GitHubEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}

// CallbackURL returns the externally reachable callback URL for the given
// provider path segment, e.g. "google" or "github".
func (c *Config) CallbackURL(provider string) string {
	base := c.PublicURL
	if base == "" {
		base = fmt.Sprintf("http://localhost:%d", c.Port)
	}
	return fmt.Sprintf("%s/api/auth/%s/callback", base, provider)
}

// LoadWithFlags loads configuration from environment variables,
// then applies command-line flag overrides.
func LoadWithFlags(port int, db string) (*Config, error) {
	cfg := &Config{
		Port:                DefaultPort,
		DB:                  DefaultDBPath,
		DBType:              DefaultDBType,
		DBPort:              DefaultDBPort,
		DBSSLMode:           DefaultDBSSLMode,
		JWTExpiry:           DefaultJWTExpiry,
		FrontendURL:         DefaultFrontendURL,
		FeatureCheckTimeout: DefaultFeatureCheckTimeout,
		AllowRegistration:   true,
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}
	if err := cfg.resolveSecrets(context.Background()); err != nil {
		return nil, err
	}

	// Apply flag overrides (only if non-default values provided)
	if port != 0 && port != DefaultPort {
		cfg.Port = port
	}
	if db != "" && db != DefaultDBPath {
		cfg.DB = db
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errs
	}

	return cfg, nil
}
