package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusTodo       TicketStatus = "TODO"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusDone       TicketStatus = "DONE"
)

// TicketStatuses lists every representable status.
var TicketStatuses = []TicketStatus{TicketStatusTodo, TicketStatusInProgress, TicketStatusDone}

// Valid reports whether s belongs to the closed status set.
func (s TicketStatus) Valid() bool {
	for _, candidate := range TicketStatuses {
		if s == candidate {
			return true
		}
	}
	return false
}

// Ticket is the aggregate for support requests.
//
// Title, Description, CreatedBy and CreatedAt never change after creation.
// Priority and RelatedSkills are written only by the triage collaborator.
type Ticket struct {
	ID               string
	Title            string
	Description      string
	CreatedBy        string
	Status           TicketStatus
	Priority         *string
	RelatedSkills    []string
	HelpfulNotes     *string
	AssignedTo       *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	TriageNotifiedAt *time.Time
}

// IsAssignedTo reports whether actorID is the current assignee.
func (t *Ticket) IsAssignedTo(actorID string) bool {
	return t.AssignedTo != nil && *t.AssignedTo != "" && *t.AssignedTo == actorID
}

// TicketPatch carries the fields an authorized actor may change.
// Nil or empty fields are left untouched.
type TicketPatch struct {
	Status       *TicketStatus
	HelpfulNotes *string
	AssignedTo   *string
}

// Empty reports whether the patch would change nothing.
func (p TicketPatch) Empty() bool {
	return isBlank(p.HelpfulNotes) && isBlank(p.AssignedTo) && (p.Status == nil || *p.Status == "")
}

// Apply overwrites the supplied, non-empty fields on t.
func (p TicketPatch) Apply(t *Ticket) {
	if p.Status != nil && *p.Status != "" {
		t.Status = *p.Status
	}
	if !isBlank(p.HelpfulNotes) {
		notes := *p.HelpfulNotes
		t.HelpfulNotes = &notes
	}
	if !isBlank(p.AssignedTo) {
		assignee := *p.AssignedTo
		t.AssignedTo = &assignee
	}
}

func isBlank(s *string) bool {
	return s == nil || *s == ""
}
