package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tmcfarlane/gatehouse/internal/db"
)

// DefaultTokenExpiry is the access token lifetime when none is configured.
const DefaultTokenExpiry = 7 * 24 * time.Hour

// Claims represents the signed claim bundle carried by a Gatehouse token.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// Issuer signs and verifies access tokens. It is pure with respect to the
// store: issuance and verification never touch the database.
type Issuer struct {
	secret []byte
	expiry time.Duration
}

// NewIssuer creates a token issuer with the given signing secret and
// expiry. The secret must be at least 32 characters; a non-positive
// expiry falls back to DefaultTokenExpiry.
func NewIssuer(secret string, expiry time.Duration) (*Issuer, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("jwt secret must be at least 32 characters")
	}
	if expiry <= 0 {
		expiry = DefaultTokenExpiry
	}
	return &Issuer{secret: []byte(secret), expiry: expiry}, nil
}

// Issue signs a token for the user carrying {user_id, email, role}.
// The role name is read from the populated role.
func (i *Issuer) Issue(user *db.User) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(i.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "gatehouse",
			Subject:   user.ID,
		},
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.RoleName(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Verify validates the token's signature and expiry and returns its
// claims. All failure modes report ErrInvalidToken uniformly.
func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
