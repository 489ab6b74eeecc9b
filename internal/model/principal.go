package model

import (
	"time"

	"github.com/google/uuid"
)

// Role represents the access level assigned to a principal.
type Role string

const (
	RoleUser   Role = "USER"
	RoleMaster Role = "MASTER"
)

// ValidRole reports whether r is a known role.
func ValidRole(r Role) bool {
	return r == RoleUser || r == RoleMaster
}

// Principal is an authenticated actor. Only MASTER principals may reach the
// administrative console.
type Principal struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RoleRank returns the numeric rank of a role (higher = more privileges).
// Only relative ordering matters — RoleAtLeast uses >= comparison.
func RoleRank(r Role) int {
	switch r {
	case RoleMaster:
		return 2
	case RoleUser:
		return 1
	default:
		return 0
	}
}

// RoleAtLeast returns true if role r has at least the privileges of minRole.
func RoleAtLeast(r, minRole Role) bool {
	return RoleRank(r) >= RoleRank(minRole)
}
