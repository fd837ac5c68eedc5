package db

import (
	"time"

	"github.com/uptrace/bun"
)

// Provider identifies where an identity assertion came from.
type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderGitHub Provider = "github"
	ProviderEmail  Provider = "email"
)

// Role is reference data mapping a role name to an identifier.
// Roles are seeded at startup and only read afterwards.
type Role struct {
	bun.BaseModel `bun:"table:roles"`

	ID          string    `json:"id" bun:"id,pk"`
	Name        string    `json:"name" bun:"name,unique,notnull"`
	Description string    `json:"description,omitempty" bun:"description"`
	CreatedAt   time.Time `json:"created_at" bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time `json:"updated_at" bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// User is the durable identity anchor. A user owns one or more linked
// provider identities and a single role.
type User struct {
	bun.BaseModel `bun:"table:users"`

	ID          string    `json:"id" bun:"id,pk"`
	Email       string    `json:"email" bun:"email,unique,notnull"`
	DisplayName string    `json:"display_name,omitempty" bun:"display_name"`
	Avatar      string    `json:"avatar,omitempty" bun:"avatar"`
	RoleID      string    `json:"role_id" bun:"role_id,notnull"`
	CreatedAt   time.Time `json:"created_at" bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time `json:"updated_at" bun:"updated_at,nullzero,notnull,default:current_timestamp"`

	Role      *Role               `json:"role,omitempty" bun:"rel:belongs-to,join:role_id=id"`
	Providers []*ProviderIdentity `json:"providers,omitempty" bun:"rel:has-many,join:id=user_id"`
}

// RoleName returns the populated role's name, or "user" if the role
// was not loaded. Callers normally receive users with the role populated.
func (u *User) RoleName() string {
	if u.Role != nil && u.Role.Name != "" {
		return u.Role.Name
	}
	return "user"
}

// Identity returns the first linked identity of the given provider kind,
// or nil if none exists.
func (u *User) Identity(provider Provider) *ProviderIdentity {
	for _, p := range u.Providers {
		if p.Provider == provider {
			return p
		}
	}
	return nil
}

// ProviderIdentity is one linked credential under a user. For OAuth
// providers ProviderID is the provider's stable subject identifier; for
// the email provider it is the email address itself, with the bcrypt
// hash held separately in PasswordHash.
type ProviderIdentity struct {
	bun.BaseModel `bun:"table:provider_identities"`

	ID           int64     `json:"id" bun:"id,pk,autoincrement"`
	UserID       string    `json:"user_id" bun:"user_id,notnull"`
	Provider     Provider  `json:"provider" bun:"provider,notnull"`
	ProviderID   string    `json:"provider_id" bun:"provider_id,notnull"`
	PasswordHash string    `json:"-" bun:"password_hash"`
	Email        string    `json:"email" bun:"email,notnull"`
	AccessToken  string    `json:"-" bun:"access_token"`
	RefreshToken string    `json:"-" bun:"refresh_token"`
	CreatedAt    time.Time `json:"created_at" bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time `json:"updated_at" bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// OAuthState is a single-use CSRF state token for an in-flight OAuth
// authorization flow. Stored in the database so any replica can complete
// a callback started by another.
type OAuthState struct {
	bun.BaseModel `bun:"table:oauth_states"`

	State       string    `bun:"state,pk"`
	RedirectURL string    `bun:"redirect_url,notnull"`
	ExpiresAt   time.Time `bun:"expires_at,notnull"`
}
