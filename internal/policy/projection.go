package policy

import (
	"time"

	"github.com/spec-kit/ticket-assistant/internal/domain"
)

// View names the read path a projection is built for.
type View int

const (
	ViewList View = iota
	ViewDetail
)

// Field names a projectable ticket attribute.
type Field string

const (
	FieldID            Field = "id"
	FieldTitle         Field = "title"
	FieldDescription   Field = "description"
	FieldCreatedBy     Field = "created_by"
	FieldStatus        Field = "status"
	FieldPriority      Field = "priority"
	FieldRelatedSkills Field = "related_skills"
	FieldHelpfulNotes  Field = "helpful_notes"
	FieldAssignedTo    Field = "assigned_to"
	FieldCreatedAt     Field = "created_at"
	FieldUpdatedAt     Field = "updated_at"
)

// FieldSet is an immutable set of projected fields.
type FieldSet map[Field]struct{}

func fields(names ...Field) FieldSet {
	set := make(FieldSet, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}

// Has reports whether f is part of the set.
func (s FieldSet) Has(f Field) bool {
	_, ok := s[f]
	return ok
}

var (
	ownerListFields = fields(FieldID, FieldTitle, FieldDescription, FieldStatus, FieldCreatedAt)

	// The detail view deliberately shows more than the list view for owners.
	ownerDetailFields = fields(FieldID, FieldTitle, FieldDescription, FieldCreatedBy, FieldStatus,
		FieldPriority, FieldRelatedSkills, FieldHelpfulNotes, FieldCreatedAt)

	staffFields = fields(FieldID, FieldTitle, FieldDescription, FieldCreatedBy, FieldStatus,
		FieldPriority, FieldRelatedSkills, FieldHelpfulNotes, FieldAssignedTo, FieldCreatedAt, FieldUpdatedAt)
)

var projections = map[bool]map[View]FieldSet{
	false: {ViewList: ownerListFields, ViewDetail: ownerDetailFields},
	true:  {ViewList: staffFields, ViewDetail: staffFields},
}

// Fields returns the field set identity may observe on view.
func Fields(identity domain.Identity, view View) FieldSet {
	return projections[Privileged(identity.Role)][view]
}

// TicketView is a ticket reduced to the fields visible to one caller.
type TicketView struct {
	ID            string              `json:"id"`
	Title         string              `json:"title,omitempty"`
	Description   string              `json:"description,omitempty"`
	CreatedBy     string              `json:"created_by,omitempty"`
	Status        domain.TicketStatus `json:"status,omitempty"`
	Priority      *string             `json:"priority,omitempty"`
	RelatedSkills []string            `json:"related_skills,omitempty"`
	HelpfulNotes  *string             `json:"helpful_notes,omitempty"`
	AssignedTo    *domain.AssigneeRef `json:"assigned_to,omitempty"`
	CreatedAt     *time.Time          `json:"created_at,omitempty"`
	UpdatedAt     *time.Time          `json:"updated_at,omitempty"`
}

// Project copies the fields in set from ticket. assignees resolves
// ticket.AssignedTo for display; an id missing from it yields a bare reference.
func Project(set FieldSet, ticket *domain.Ticket, assignees map[string]domain.AssigneeRef) TicketView {
	view := TicketView{}
	if set.Has(FieldID) {
		view.ID = ticket.ID
	}
	if set.Has(FieldTitle) {
		view.Title = ticket.Title
	}
	if set.Has(FieldDescription) {
		view.Description = ticket.Description
	}
	if set.Has(FieldCreatedBy) {
		view.CreatedBy = ticket.CreatedBy
	}
	if set.Has(FieldStatus) {
		view.Status = ticket.Status
	}
	if set.Has(FieldPriority) && ticket.Priority != nil {
		priority := *ticket.Priority
		view.Priority = &priority
	}
	if set.Has(FieldRelatedSkills) && len(ticket.RelatedSkills) > 0 {
		view.RelatedSkills = append([]string(nil), ticket.RelatedSkills...)
	}
	if set.Has(FieldHelpfulNotes) && ticket.HelpfulNotes != nil {
		notes := *ticket.HelpfulNotes
		view.HelpfulNotes = &notes
	}
	if set.Has(FieldAssignedTo) && ticket.AssignedTo != nil && *ticket.AssignedTo != "" {
		ref, ok := assignees[*ticket.AssignedTo]
		if !ok {
			ref = domain.AssigneeRef{ID: *ticket.AssignedTo}
		}
		view.AssignedTo = &ref
	}
	if set.Has(FieldCreatedAt) {
		createdAt := ticket.CreatedAt
		view.CreatedAt = &createdAt
	}
	if set.Has(FieldUpdatedAt) && !ticket.UpdatedAt.IsZero() {
		updatedAt := ticket.UpdatedAt
		view.UpdatedAt = &updatedAt
	}
	return view
}

// ProjectFor is Project with the field set chosen for identity and view.
func ProjectFor(identity domain.Identity, view View, ticket *domain.Ticket, assignees map[string]domain.AssigneeRef) TicketView {
	return Project(Fields(identity, view), ticket, assignees)
}
