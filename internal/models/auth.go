package models

import "github.com/golang-jwt/jwt/v5"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin    UserRole = "ADMIN"
	RoleEmployer UserRole = "EMPLOYER"
	RoleStaff    UserRole = "STAFF"
)

// JWTClaims is the payload carried inside access tokens issued by the
// identity provider. The gateway only verifies and reads it.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}
