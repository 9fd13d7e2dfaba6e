package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/ticket-assistant/internal/domain"
)

// EventType enumerates supported event identifiers. The value doubles as the
// channel name on every transport.
type EventType string

const (
	EventTicketCreated EventType = "ticket/created"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	ID   string      `json:"id"`
	Role domain.Role `json:"role,omitempty"`
}

// Event represents a domain event handed to the triage collaborator.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload is the creation notification contract consumed by triage.
type TicketCreatedPayload struct {
	TicketID    string `json:"ticketId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	CreatedBy   string `json:"createdBy"`
}

// NewTicketCreated builds the creation event for ticket. The event id is
// derived from the ticket id so every redelivery carries the same id.
func NewTicketCreated(ticket *domain.Ticket, at time.Time) Event {
	return Event{
		ID:        eventID(EventTicketCreated, ticket.ID),
		Type:      EventTicketCreated,
		TicketID:  ticket.ID,
		Actor:     Actor{ID: ticket.CreatedBy},
		Timestamp: at,
		Payload: TicketCreatedPayload{
			TicketID:    ticket.ID,
			Title:       ticket.Title,
			Description: ticket.Description,
			CreatedBy:   ticket.CreatedBy,
		},
	}
}

func eventID(eventType EventType, ticketID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(string(eventType)+"#"+ticketID)).String()
}
