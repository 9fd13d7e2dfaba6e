// Package policy decides who may see and change which tickets.
//
// Every function here is pure: it takes the caller identity and the ticket
// as currently stored and returns a decision or a field projection. The role
// order and per-view field sets are tables so that a rule change is a data
// change rather than a new branch at a call site.
package policy

import "github.com/spec-kit/ticket-assistant/internal/domain"

// Decision is the outcome of an authorization check.
type Decision int

const (
	Deny Decision = iota
	Allow
)

func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

// Allowed reports whether d permits the operation.
func (d Decision) Allowed() bool { return d == Allow }

// privilege orders roles for ticket operations. Moderator and admin share a
// rank; roles missing from the table get the zero rank.
var privilege = map[domain.Role]int{
	domain.RoleUser:      0,
	domain.RoleModerator: 1,
	domain.RoleAdmin:     1,
}

const staffRank = 1

// updateAnyTicket lists roles allowed to update tickets they are not assigned to.
var updateAnyTicket = map[domain.Role]bool{
	domain.RoleAdmin: true,
}

// Privileged reports whether role sees every ticket and the agent-only fields.
func Privileged(role domain.Role) bool {
	return privilege[role] >= staffRank
}

// Scope restricts which tickets a listing may return.
type Scope struct {
	// CreatedBy, when non-empty, limits results to tickets created by that id.
	CreatedBy string
}

// All reports whether the scope is unrestricted.
func (s Scope) All() bool { return s.CreatedBy == "" }

// ListScope returns the listing restriction for identity.
func ListScope(identity domain.Identity) Scope {
	if Privileged(identity.Role) {
		return Scope{}
	}
	return Scope{CreatedBy: ownerKey(identity)}
}

// CanRead decides whether identity may read ticket. Callers must report a
// denial exactly like a missing ticket.
func CanRead(identity domain.Identity, ticket *domain.Ticket) Decision {
	if ticket == nil {
		return Deny
	}
	if Privileged(identity.Role) {
		return Allow
	}
	if identity.ID != "" && ticket.CreatedBy == identity.ID {
		return Allow
	}
	return Deny
}

// AuthorizeUpdate decides whether identity may patch ticket. It is evaluated
// against the stored assignment, never the requested one.
func AuthorizeUpdate(identity domain.Identity, ticket *domain.Ticket) Decision {
	if ticket == nil || identity.ID == "" {
		return Deny
	}
	if updateAnyTicket[identity.Role] {
		return Allow
	}
	if ticket.IsAssignedTo(identity.ID) {
		return Allow
	}
	return Deny
}

// CanAssign reports whether a user holding role may be set as assignee.
func CanAssign(role domain.Role) bool {
	return Privileged(role)
}

// ownerKey never matches a stored ticket when the identity has no id.
func ownerKey(identity domain.Identity) string {
	if identity.ID == "" {
		return "\x00"
	}
	return identity.ID
}
