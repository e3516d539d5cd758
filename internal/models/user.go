package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin           UserRole = "ADMIN"
	RoleUnitCoordinator UserRole = "UNIT_COORDINATOR"
	RoleFacilitator     UserRole = "FACILITATOR"
)

// User represents an application user stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// ActingAs identifies the authenticated principal performing an operation.
// It is always derived from verified JWT claims, never from ambient state.
type ActingAs struct {
	UserID string
	Role   UserRole
}

// IsCoordinator reports whether the actor holds a coordinator-or-above role.
func (a ActingAs) IsCoordinator() bool {
	return a.Role == RoleUnitCoordinator || a.Role == RoleAdmin
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
