package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tmcfarlane/gatehouse/internal/db"
	"golang.org/x/crypto/bcrypt"
)

// Passwords handles the email/password path: registering a password
// identity and verifying it at login.
type Passwords struct {
	database *db.DB
}

// NewPasswords creates a password verifier backed by the given store.
func NewPasswords(database *db.DB) *Passwords {
	return &Passwords{database: database}
}

// Register creates a password-based account for the email, or attaches a
// password identity to an existing account that has none. An account that
// already has a password identity is rejected with ErrDuplicateAccount.
//
// Attaching to an existing OAuth-only account requires no proof of prior
// ownership beyond knowing the email. This asymmetry versus OAuth linking
// is deliberate, preserved behavior.
func (p *Passwords) Register(ctx context.Context, email, password, displayName string) (*db.User, error) {
	if email == "" {
		return nil, ErrMissingEmail
	}

	existing, err := p.database.GetUserByEmail(email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user by email: %w", err)
	}

	if existing != nil {
		if existing.Identity(db.ProviderEmail) != nil {
			return nil, ErrDuplicateAccount
		}

		hash, err := HashPassword(password)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		ident := &db.ProviderIdentity{
			UserID:       existing.ID,
			Provider:     db.ProviderEmail,
			ProviderID:   email,
			PasswordHash: hash,
			Email:        email,
		}
		if err := p.database.AddProviderIdentity(ident); err != nil {
			if db.IsUniqueViolation(err) {
				return nil, ErrDuplicateAccount
			}
			return nil, fmt.Errorf("failed to add password identity: %w", err)
		}
		slog.Info("password identity linked to existing user", "email", email)
		return p.database.GetUserByID(existing.ID)
	}

	role, err := p.database.GetRoleByName(DefaultRoleName)
	if err != nil {
		return nil, fmt.Errorf("failed to look up default role: %w", err)
	}
	if role == nil {
		slog.Error("default role missing, registration cannot proceed", "role", DefaultRoleName)
		return nil, ErrMissingDefaultRole
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &db.User{
		ID:          uuid.New().String(),
		Email:       email,
		DisplayName: displayName,
		RoleID:      role.ID,
	}
	ident := &db.ProviderIdentity{
		Provider:     db.ProviderEmail,
		ProviderID:   email,
		PasswordHash: hash,
		Email:        email,
	}
	if err := p.database.CreateUserWithIdentity(user, ident); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrDuplicateAccount
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("user registered", "email", email)
	return p.database.GetUserByID(user.ID)
}

// Login verifies an email/password pair. Unknown email, missing password
// identity, and password mismatch all fail with the same error.
func (p *Passwords) Login(ctx context.Context, email, password string) (*db.User, error) {
	user, err := p.database.GetUserByEmail(email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user by email: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}

	ident := user.Identity(db.ProviderEmail)
	if ident == nil {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(ident.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	slog.Info("user logged in", "provider", db.ProviderEmail, "email", email)
	return user, nil
}

// HashPassword creates a bcrypt hash of the password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
