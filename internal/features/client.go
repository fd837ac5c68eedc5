// Package features queries the remote feature-flag service that gates
// which authentication methods are advertised to callers.
//
// The client fails closed: any transport error, timeout, or not-found
// response reports the feature as disabled. Availability-gating for
// authentication methods must never fail open.
package features

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout bounds each feature check round trip.
const DefaultTimeout = 5 * time.Second

// Client is a read-only client for the feature-flag service.
type Client struct {
	client  *http.Client
	baseURL string
}

// NewClient creates a feature gate client for the service at baseURL.
// A non-positive timeout falls back to DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// checkResponse is the feature service's answer for a single feature.
type checkResponse struct {
	Enabled bool   `json:"enabled"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

// CheckOption narrows a feature check to a specific user or role.
type CheckOption func(url.Values)

// ForUser scopes the check to a user id.
func ForUser(userID string) CheckOption {
	return func(v url.Values) { v.Set("userId", userID) }
}

// ForRole scopes the check to a role id.
func ForRole(roleID string) CheckOption {
	return func(v url.Values) { v.Set("roleId", roleID) }
}

// IsEnabled reports whether the named feature is enabled. Every failure
// mode returns false; errors are logged, never propagated.
func (c *Client) IsEnabled(ctx context.Context, feature string, opts ...CheckOption) bool {
	params := url.Values{}
	for _, opt := range opts {
		opt(params)
	}

	checkURL := fmt.Sprintf("%s/check/%s", c.baseURL, url.PathEscape(feature))
	if query := params.Encode(); query != "" {
		checkURL += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, checkURL, nil)
	if err != nil {
		slog.Error("feature check request build failed", "feature", feature, "error", err)
		return false
	}

	resp, err := c.client.Do(req)
	if err != nil {
		slog.Error("feature service unreachable, treating feature as disabled",
			"feature", feature, "error", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		slog.Warn("feature not found, treating as disabled", "feature", feature)
		return false
	}
	if resp.StatusCode != http.StatusOK {
		slog.Error("feature service returned error, treating feature as disabled",
			"feature", feature, "status", resp.StatusCode)
		return false
	}

	var check checkResponse
	if err := json.NewDecoder(resp.Body).Decode(&check); err != nil {
		slog.Error("feature check response undecodable, treating feature as disabled",
			"feature", feature, "error", err)
		return false
	}

	return check.Enabled
}
