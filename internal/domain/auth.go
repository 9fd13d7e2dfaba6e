package domain

// Role enumerates caller privilege levels for ticket operations.
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleModerator, RoleAdmin:
		return true
	}
	return false
}

// IsStaff reports whether r may triage tickets (moderator or admin).
func (r Role) IsStaff() bool {
	return r == RoleModerator || r == RoleAdmin
}

// Identity is the authenticated caller for the duration of a request.
type Identity struct {
	ID   string
	Role Role
}
