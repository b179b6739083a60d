package models

// UserRole represents the roles recognised from verified identities.
type UserRole string

const (
	RoleSuperAdmin UserRole = "SUPERADMIN"
	RoleAdmin      UserRole = "ADMIN"
	RoleEditor     UserRole = "EDITOR"
)

// Identity is the verified caller handed to every privileged operation.
type Identity struct {
	UserID   string   `json:"userId"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email,omitempty"`
	FullName string   `json:"fullName,omitempty"`
}

// IsAdmin reports whether the identity may review admissions and manage students.
func (i *Identity) IsAdmin() bool {
	return i != nil && (i.Role == RoleAdmin || i.Role == RoleSuperAdmin)
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
