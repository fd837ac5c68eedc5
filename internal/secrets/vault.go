package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// VaultProvider reads secrets from a HashiCorp Vault KV v2 engine.
type VaultProvider struct {
	client    *http.Client
	addr      string
	token     string
	mountPath string
	namespace string
}

// NewVaultProvider creates a new Vault provider.
func NewVaultProvider(cfg *Config) (*VaultProvider, error) {
	if cfg.VaultAddr == "" {
		return nil, fmt.Errorf("vault address is required")
	}

	p := &VaultProvider{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		addr:      strings.TrimSuffix(cfg.VaultAddr, "/"),
		token:     cfg.VaultToken,
		mountPath: cfg.VaultMountPath,
		namespace: cfg.VaultNamespace,
	}

	if p.mountPath == "" {
		p.mountPath = "secret"
	}

	return p, nil
}

// Name returns the provider name.
func (p *VaultProvider) Name() string {
	return "vault"
}

// Get retrieves a secret from Vault. The secret is expected to live at
// {mount}/data/{key} with its value under the "value" field; if absent,
// the first string field is used.
func (p *VaultProvider) Get(ctx context.Context, key string) (string, error) {
	url := fmt.Sprintf("%s/v1/%s/data/%s", p.addr, p.mountPath, key)

	resp, err := p.do(ctx, url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", ErrSecretNotFound
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		return "", ErrAuthFailed
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("vault returned status %d: %s", resp.StatusCode, string(body))
	}

	// KV v2 nests the secret under data.data.
	var vaultResp struct {
		Data struct {
			Data map[string]any `json:"data"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&vaultResp); err != nil {
		return "", fmt.Errorf("failed to parse vault response: %w", err)
	}

	data, ok := vaultResp.Data.Data["value"]
	if !ok {
		for _, v := range vaultResp.Data.Data {
			if str, isStr := v.(string); isStr {
				data = str
				break
			}
		}
		if data == nil {
			return "", fmt.Errorf("secret has no 'value' field")
		}
	}

	value, ok := data.(string)
	if !ok {
		return "", fmt.Errorf("secret value is not a string")
	}

	return value, nil
}

// Close releases resources.
func (p *VaultProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

// Healthy checks if Vault is accessible.
func (p *VaultProvider) Healthy(ctx context.Context) bool {
	resp, err := p.do(ctx, fmt.Sprintf("%s/v1/sys/health", p.addr))
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	// Vault returns 200 for initialized, unsealed, active
	// 429 for unsealed and standby
	// 472 for disaster recovery secondary
	// 473 for performance standby
	return resp.StatusCode == http.StatusOK ||
		resp.StatusCode == 429 ||
		resp.StatusCode == 472 ||
		resp.StatusCode == 473
}

// do issues a GET against a Vault endpoint with auth headers applied.
func (p *VaultProvider) do(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if p.token != "" {
		req.Header.Set("X-Vault-Token", p.token)
	}

	// Vault Enterprise namespaces.
	if p.namespace != "" {
		req.Header.Set("X-Vault-Namespace", p.namespace)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vault request failed: %w", err)
	}
	return resp, nil
}
