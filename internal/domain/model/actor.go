package model

// Role is the caller's standing as reported by the identity collaborator.
type Role string

// Roles.
const (
	RoleParticipant   Role = "participant"
	RoleReviewer      Role = "reviewer"
	RoleAdministrator Role = "administrator"
)

// ParseRole maps a role string to a Role. Unknown roles are participants.
func ParseRole(s string) Role {
	switch normalize(s) {
	case "administrator", "admin":
		return RoleAdministrator
	case "reviewer", "manager":
		return RoleReviewer
	}
	return RoleParticipant
}

// Actor is the explicit caller context passed into every core operation.
type Actor struct {
	UserID string
	Role   Role
}

// IsAdmin reports administrative rights.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdministrator }

// CanGrade reports whether the actor has grading authority over q: its
// creator or an administrator.
func (a Actor) CanGrade(q Quest) bool {
	if a.UserID == "" {
		return false
	}
	return a.IsAdmin() || a.UserID == q.CreatorID
}
