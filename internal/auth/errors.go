package auth

import "errors"

var (
	// ErrMissingEmail is returned when an identity assertion arrives
	// without an email address. Accounts are never created without one.
	ErrMissingEmail = errors.New("no email found in profile")

	// ErrInvalidCredentials covers unknown email, missing password
	// identity, and password mismatch. The causes are deliberately not
	// distinguished to avoid account enumeration.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrDuplicateAccount is returned when registering an email that
	// already has a password identity.
	ErrDuplicateAccount = errors.New("user already exists")

	// ErrMissingDefaultRole indicates the seed data for the default
	// "user" role is absent. This is a deployment defect, not a
	// per-request error.
	ErrMissingDefaultRole = errors.New(`default role "user" not found`)

	// ErrInvalidToken covers malformed, unsigned, wrongly signed, and
	// expired tokens uniformly.
	ErrInvalidToken = errors.New("invalid or expired token")
)
