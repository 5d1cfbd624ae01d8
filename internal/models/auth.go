package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims is the payload of a signed session token.
type TokenClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Identity is the verified caller handed to the core services.
type Identity struct {
	UserID string
	Email  string
	Role   string
}

// IdentityFromClaims builds an Identity from verified token claims.
func IdentityFromClaims(c *TokenClaims) *Identity {
	if c == nil {
		return nil
	}
	return &Identity{UserID: c.UserID, Email: c.Email, Role: c.Role}
}
