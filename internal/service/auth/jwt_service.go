// Package auth issues and validates the bearer tokens that gate the job
// control API.
package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Roles carried in the role claim.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// JWTService defines operations for managing JWT authentication tokens.
type JWTService interface {
	// GenerateToken creates a signed access token for the user and role.
	GenerateToken(ctx context.Context, userID uuid.UUID, role string) (string, error)

	// ValidateToken validates the provided access token string and extracts the claims.
	// Returns ErrExpiredToken, ErrTokenNotYetValid or ErrInvalidToken on failure.
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)
}

// Claims is the validated content of an access token.
type Claims struct {
	// UserID is the unique identifier of the user the token was issued for.
	UserID uuid.UUID `json:"uid,omitempty"`

	// Role is RoleUser or RoleAdmin.
	Role string `json:"role,omitempty"`

	Subject   string    `json:"sub,omitempty"`
	IssuedAt  time.Time `json:"iat,omitempty"`
	ExpiresAt time.Time `json:"exp,omitempty"`
	ID        string    `json:"jti,omitempty"`
}

// IsAdmin reports whether the token grants queue administration.
func (c *Claims) IsAdmin() bool {
	return c != nil && c.Role == RoleAdmin
}

// IsValidRole reports whether role is one of the known roles.
func IsValidRole(role string) bool {
	return role == RoleUser || role == RoleAdmin
}
