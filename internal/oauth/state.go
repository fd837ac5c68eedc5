package oauth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/tmcfarlane/gatehouse/internal/db"
)

// StateTTL bounds how long an authorization flow may stay in flight.
const StateTTL = 10 * time.Minute

// ErrInvalidState covers unknown, already-consumed, and expired state
// tokens uniformly.
var ErrInvalidState = errors.New("invalid or expired state parameter")

// States issues and redeems single-use CSRF state tokens for in-flight
// authorization flows. Tokens live in the database so any replica can
// complete a callback started by another.
type States struct {
	database *db.DB
}

// NewStates creates a state store backed by the given database.
func NewStates(database *db.DB) *States {
	return &States{database: database}
}

// Begin mints a state token carrying an optional post-login redirect
// path and stores it with a bounded lifetime.
func (s *States) Begin(redirect string) (string, error) {
	state, err := generateState()
	if err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	if err := s.database.SaveOAuthState(state, redirect, time.Now().Add(StateTTL)); err != nil {
		return "", fmt.Errorf("failed to save state: %w", err)
	}
	return state, nil
}

// Consume redeems a state token exactly once and returns the redirect
// path it was minted with.
func (s *States) Consume(state string) (string, error) {
	redirect, expiresAt, err := s.database.ConsumeOAuthState(state)
	if err != nil {
		return "", ErrInvalidState
	}
	if time.Now().After(expiresAt) {
		return "", ErrInvalidState
	}
	return redirect, nil
}

// generateState returns a cryptographically random url-safe token.
func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
