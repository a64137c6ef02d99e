package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
	RoleHOD   UserRole = "hod"
	RoleDean  UserRole = "dean"
	RoleVC    UserRole = "vc"
)

// SeniorApproverRoles lists the roles allowed to decide proposals and approval requests.
// HOD, dean and VC are one authority under different titles.
var SeniorApproverRoles = []UserRole{RoleHOD, RoleDean, RoleVC}

// Valid reports whether the role is known.
func (r UserRole) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleHOD, RoleDean, RoleVC:
		return true
	}
	return false
}

// IsSeniorApprover reports whether the role belongs to the senior approver set.
func (r UserRole) IsSeniorApprover() bool {
	for _, role := range SeniorApproverRoles {
		if r == role {
			return true
		}
	}
	return false
}

// User represents an account keyed by its EPF number.
type User struct {
	EPF          string    `db:"epf" json:"epf"`
	Name         string    `db:"name" json:"name"`
	Email        string    `db:"email" json:"email"`
	Role         UserRole  `db:"role" json:"role"`
	Department   string    `db:"department" json:"department"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`

	SpecialPolicy *PolicyRule `db:"-" json:"specialPolicy,omitempty"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role       *UserRole
	Department string
	Search     string
	Page       int
	PageSize   int
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
