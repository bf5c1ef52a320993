package models

import "github.com/golang-jwt/jwt/v5"

// Role represents the caller roles issued by the identity directory.
type Role string

const (
	RoleStudent Role = "student"
	RoleFaculty Role = "faculty"
	RoleAdmin   Role = "admin"
)

// Valid reports whether the role is one the services understand.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleFaculty, RoleAdmin:
		return true
	default:
		return false
	}
}

// Principal is the authenticated caller resolved from a bearer credential.
// Credential is the raw token, forwarded on read-through calls so collaborating
// services can authorize the same caller.
type Principal struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Role       Role   `json:"role"`
	Credential string `json:"-"`
}

// HasRole reports whether the principal carries any of the provided roles.
func (p *Principal) HasRole(roles ...Role) bool {
	if p == nil {
		return false
	}
	for _, role := range roles {
		if p.Role == role {
			return true
		}
	}
	return false
}

// PrincipalClaims is the access token payload issued by the identity directory.
// Older tokens carry the id under userId, newer ones under id or sub.
type PrincipalClaims struct {
	ID     string `json:"id,omitempty"`
	UserID string `json:"userId,omitempty"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}
