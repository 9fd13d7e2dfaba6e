package dto

import (
	"github.com/spec-kit/ticket-assistant/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// UpdateTicketRequest payload. Absent and empty fields are left unchanged.
// The camelCase keys sent by older clients are accepted as aliases; the
// snake_case key wins when both are present.
type UpdateTicketRequest struct {
	Status       *string `json:"status"`
	HelpfulNotes *string `json:"helpful_notes"`
	AssignedTo   *string `json:"assigned_to"`

	HelpfulNotesAlias *string `json:"helpfulNotes"`
	AssignedToAlias   *string `json:"assignedTo"`
}

// Patch converts the request into a domain patch.
func (r UpdateTicketRequest) Patch() domain.TicketPatch {
	patch := domain.TicketPatch{
		HelpfulNotes: firstSupplied(r.HelpfulNotes, r.HelpfulNotesAlias),
		AssignedTo:   firstSupplied(r.AssignedTo, r.AssignedToAlias),
	}
	if r.Status != nil {
		status := domain.TicketStatus(*r.Status)
		patch.Status = &status
	}
	return patch
}

func firstSupplied(values ...*string) *string {
	for _, v := range values {
		if v != nil && *v != "" {
			return v
		}
	}
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}
