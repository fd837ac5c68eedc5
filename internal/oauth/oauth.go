// Package oauth contains the provider callback adapters. Each adapter
// drives a named OAuth2 authorization-code flow and, on success, hands a
// validated identity assertion to the resolver. Only the success/failure
// contract matters to the core; raw provider payloads never leave this
// package.
package oauth

import (
	"context"

	"github.com/tmcfarlane/gatehouse/internal/auth"
	"github.com/tmcfarlane/gatehouse/internal/db"
)

// Flow is one configured OAuth2 authorization-code flow.
type Flow interface {
	// Name identifies the provider this flow authenticates against.
	Name() db.Provider

	// AuthCodeURL returns the provider's authorization URL carrying the
	// CSRF state token.
	AuthCodeURL(state string) string

	// Exchange trades the authorization code for provider tokens, fetches
	// the user profile, and returns the resulting assertion. A profile
	// without an email fails with auth.ErrMissingEmail before the
	// resolver is ever invoked.
	Exchange(ctx context.Context, code string) (auth.Assertion, error)
}
