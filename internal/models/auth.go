package models

import "github.com/golang-jwt/jwt/v5"

// UserRole mirrors the roles issued by the portfolio application's
// auth system. Tokens are minted elsewhere; this service only
// verifies them.
type UserRole string

const (
	RoleAdmin UserRole = "ADMIN"
	RoleOwner UserRole = "OWNER"
)

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID string   `json:"user_id"`
	Role   UserRole `json:"role"`
	jwt.RegisteredClaims
}
