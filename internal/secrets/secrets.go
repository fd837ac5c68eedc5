// Package secrets provides centralized secrets management for Gatehouse.
// It supports multiple external secret stores with a unified interface.
//
// Supported providers:
//   - HashiCorp Vault (vault)
//   - Environment variables (env) - default fallback
//
// The package follows clear boundaries:
//   - Provider interface defines the contract for all secret stores
//   - Each provider is responsible for its own authentication
//   - Secrets are fetched on-demand, not cached by default
//   - Configuration errors fail fast at startup
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Provider defines the interface for secret store backends.
// All providers must implement this interface to be usable with Gatehouse.
type Provider interface {
	// Name returns the provider name for logging and debugging.
	Name() string

	// Get retrieves a secret by key.
	// Returns ErrSecretNotFound if the secret doesn't exist.
	Get(ctx context.Context, key string) (string, error)

	// Close releases any resources held by the provider.
	Close() error

	// Healthy returns true if the provider is accessible.
	Healthy(ctx context.Context) bool
}

// Common errors returned by providers.
var (
	ErrSecretNotFound = errors.New("secret not found")
	ErrAuthFailed     = errors.New("authentication failed")
)

// ProviderType represents the type of secret provider.
type ProviderType string

const (
	ProviderTypeEnv   ProviderType = "env"
	ProviderTypeVault ProviderType = "vault"
)

// Config holds the configuration for secrets management.
type Config struct {
	// Provider specifies which secret store to use.
	// Valid values: env, vault
	Provider ProviderType

	// Vault configuration
	VaultAddr      string
	VaultToken     string
	VaultMountPath string
	VaultNamespace string
}

// DefaultConfig returns the default secrets configuration.
func DefaultConfig() *Config {
	return &Config{
		Provider:       ProviderTypeEnv,
		VaultMountPath: "secret",
	}
}

// LoadConfig loads secrets configuration from environment variables.
func LoadConfig() *Config {
	cfg := DefaultConfig()

	// Provider selection
	if v := os.Getenv("GATEHOUSE_SECRETS_PROVIDER"); v != "" {
		cfg.Provider = ProviderType(strings.ToLower(v))
	}

	// Vault configuration
	if v := os.Getenv("GATEHOUSE_VAULT_ADDR"); v != "" {
		cfg.VaultAddr = v
	} else if v := os.Getenv("VAULT_ADDR"); v != "" {
		cfg.VaultAddr = v
	}

	if v := os.Getenv("GATEHOUSE_VAULT_TOKEN"); v != "" {
		cfg.VaultToken = v
	} else if v := os.Getenv("VAULT_TOKEN"); v != "" {
		cfg.VaultToken = v
	}

	if v := os.Getenv("GATEHOUSE_VAULT_MOUNT_PATH"); v != "" {
		cfg.VaultMountPath = v
	}

	if v := os.Getenv("GATEHOUSE_VAULT_NAMESPACE"); v != "" {
		cfg.VaultNamespace = v
	} else if v := os.Getenv("VAULT_NAMESPACE"); v != "" {
		cfg.VaultNamespace = v
	}

	return cfg
}

// Validate checks that the configuration is valid for the selected provider.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderTypeEnv:
		// No validation needed for env provider
		return nil

	case ProviderTypeVault:
		if c.VaultAddr == "" {
			return fmt.Errorf("GATEHOUSE_VAULT_ADDR or VAULT_ADDR is required for vault provider")
		}
		// Token can be obtained via other auth methods, so not strictly required

	default:
		return fmt.Errorf("unknown provider type: %q (valid: env, vault)", c.Provider)
	}

	return nil
}

// Manager provides access to secrets through the configured provider.
type Manager struct {
	provider Provider
	config   *Config
}

// NewManager creates a new secrets manager with the given configuration.
func NewManager(cfg *Config) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid secrets configuration: %w", err)
	}

	var provider Provider
	var err error

	switch cfg.Provider {
	case ProviderTypeEnv:
		provider = NewEnvProvider()
	case ProviderTypeVault:
		provider, err = NewVaultProvider(cfg)
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s provider: %w", cfg.Provider, err)
	}

	return &Manager{
		provider: provider,
		config:   cfg,
	}, nil
}

// Get retrieves a secret by key.
func (m *Manager) Get(ctx context.Context, key string) (string, error) {
	return m.provider.Get(ctx, key)
}

// GetOrDefault retrieves a secret or returns the default value if not found.
func (m *Manager) GetOrDefault(ctx context.Context, key, defaultValue string) string {
	value, err := m.provider.Get(ctx, key)
	if err != nil {
		return defaultValue
	}
	return value
}

// Healthy returns true if the secrets provider is accessible.
func (m *Manager) Healthy(ctx context.Context) bool {
	return m.provider.Healthy(ctx)
}

// ProviderName returns the name of the active provider.
func (m *Manager) ProviderName() string {
	return m.provider.Name()
}

// Close releases resources held by the manager.
func (m *Manager) Close() error {
	if m.provider != nil {
		return m.provider.Close()
	}
	return nil
}
