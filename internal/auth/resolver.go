// Package auth implements the core of Gatehouse: resolving identity
// assertions onto durable user records, verifying password credentials,
// and issuing signed access tokens.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/tmcfarlane/gatehouse/internal/db"
)

// DefaultRoleName is the role assigned to every newly created user.
// It must exist in the role directory before registration flows run.
const DefaultRoleName = "user"

// Assertion is a validated identity claim: who a provider says the caller
// is. OAuth adapters and the password verifier both produce assertions;
// the resolver never sees raw provider payloads.
type Assertion struct {
	Provider     db.Provider
	SubjectID    string
	Email        string
	DisplayName  string
	Username     string
	Avatar       string
	AccessToken  string
	RefreshToken string
}

// Resolver maps identity assertions onto user records, creating or
// linking accounts as needed. It maintains the invariant that a given
// (provider, subject id) pair belongs to exactly one user, backed by the
// store's uniqueness constraint.
type Resolver struct {
	database *db.DB
}

// NewResolver creates a resolver backed by the given store.
func NewResolver(database *db.DB) *Resolver {
	return &Resolver{database: database}
}

// Resolve returns the user the assertion authenticates as. Matching is
// attempted in order: exact provider identity (returning user), top-level
// email (account linking), then creation. Every successful call persists
// exactly one write and returns the user with its role populated.
func (r *Resolver) Resolve(ctx context.Context, a Assertion) (*db.User, error) {
	if a.Email == "" {
		return nil, ErrMissingEmail
	}

	user, err := r.resolveOnce(ctx, a)
	if err == nil || !db.IsUniqueViolation(err) {
		return user, err
	}

	// A concurrent request inserted the same identity or email between our
	// lookup and write. The store constraint kept the data consistent;
	// re-running the lookup converges on the winning row.
	slog.Info("identity write lost race, re-resolving",
		"provider", a.Provider, "email", a.Email)
	user, err = r.resolveOnce(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("failed to re-resolve identity: %w", err)
	}
	return user, nil
}

func (r *Resolver) resolveOnce(ctx context.Context, a Assertion) (*db.User, error) {
	// Returning user: exact identity match.
	user, err := r.database.GetUserByProviderIdentity(a.Provider, a.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up provider identity: %w", err)
	}
	if user != nil {
		ident := r.matchIdentity(user, a)
		if ident != nil {
			ident.AccessToken = a.AccessToken
			// Providers often omit the refresh token on repeat logins;
			// an absent one must never overwrite a stored one.
			if a.RefreshToken != "" {
				ident.RefreshToken = a.RefreshToken
			}
			ident.Email = a.Email
			if err := r.database.UpdateProviderIdentity(ident); err != nil {
				return nil, fmt.Errorf("failed to update provider identity: %w", err)
			}
		}
		slog.Info("user logged in", "provider", a.Provider, "email", a.Email)
		return user, nil
	}

	// Same email under a different provider: link the new identity.
	user, err = r.database.GetUserByEmail(a.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user by email: %w", err)
	}
	if user != nil {
		ident := &db.ProviderIdentity{
			UserID:       user.ID,
			Provider:     a.Provider,
			ProviderID:   a.SubjectID,
			Email:        a.Email,
			AccessToken:  a.AccessToken,
			RefreshToken: a.RefreshToken,
		}
		if err := r.database.AddProviderIdentity(ident); err != nil {
			return nil, err
		}
		slog.Info("linked provider to existing user", "provider", a.Provider, "email", a.Email)
		return r.database.GetUserByID(user.ID)
	}

	// First contact: create the user.
	role, err := r.database.GetRoleByName(DefaultRoleName)
	if err != nil {
		return nil, fmt.Errorf("failed to look up default role: %w", err)
	}
	if role == nil {
		slog.Error("default role missing, registration cannot proceed", "role", DefaultRoleName)
		return nil, ErrMissingDefaultRole
	}

	newUser := &db.User{
		ID:          uuid.New().String(),
		Email:       a.Email,
		DisplayName: displayNameFor(a),
		Avatar:      a.Avatar,
		RoleID:      role.ID,
	}
	ident := &db.ProviderIdentity{
		Provider:     a.Provider,
		ProviderID:   a.SubjectID,
		Email:        a.Email,
		AccessToken:  a.AccessToken,
		RefreshToken: a.RefreshToken,
	}
	if err := r.database.CreateUserWithIdentity(newUser, ident); err != nil {
		return nil, err
	}
	slog.Info("new user created", "provider", a.Provider, "email", a.Email)
	return r.database.GetUserByID(newUser.ID)
}

// matchIdentity finds the loaded identity matching the assertion's
// provider and subject id.
func (r *Resolver) matchIdentity(user *db.User, a Assertion) *db.ProviderIdentity {
	for _, p := range user.Providers {
		if p.Provider == a.Provider && p.ProviderID == a.SubjectID {
			return p
		}
	}
	return nil
}

// displayNameFor picks a display name from the assertion: profile display
// name, then username, then the local part of the email.
func displayNameFor(a Assertion) string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	if a.Username != "" {
		return a.Username
	}
	name, _, _ := strings.Cut(a.Email, "@")
	return name
}
