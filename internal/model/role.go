package model

// Role is a user's position in the STUDENT → TEACHER → ADMIN lattice.
type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleTeacher Role = "TEACHER"
	RoleAdmin   Role = "ADMIN"
)

// Rank returns the role's height in the lattice, or -1 for unknown roles.
func (r Role) Rank() int {
	switch r {
	case RoleStudent:
		return 0
	case RoleTeacher:
		return 1
	case RoleAdmin:
		return 2
	default:
		return -1
	}
}

// AtLeast reports whether r is min or above it.
func (r Role) AtLeast(min Role) bool {
	return r.Rank() >= 0 && r.Rank() >= min.Rank()
}

// ChangeRoleRequest is the payload for escalating a user's role.
type ChangeRoleRequest struct {
	Role Role `json:"role" binding:"required,oneof=STUDENT TEACHER ADMIN"`
}
