package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/ticket-assistant/internal/domain"
)

// MemoryTicketRepository keeps tickets in process memory. It backs tests and
// runs without POSTGRES_DSN.
type MemoryTicketRepository struct {
	mu      sync.Mutex
	tickets map[string]*memoryTicket
	seq     int64
	now     func() time.Time
}

type memoryTicket struct {
	ticket domain.Ticket
	seq    int64
}

// NewMemoryTicketRepository builds an empty repository. now may be nil.
func NewMemoryTicketRepository(now func() time.Time) *MemoryTicketRepository {
	if now == nil {
		now = time.Now
	}
	return &MemoryTicketRepository{tickets: make(map[string]*memoryTicket), now: now}
}

func (r *MemoryTicketRepository) Create(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	ticket.ID = uuid.NewString()
	ticket.CreatedAt = r.now()
	ticket.UpdatedAt = ticket.CreatedAt
	r.tickets[ticket.ID] = &memoryTicket{ticket: cloneTicket(*ticket), seq: r.seq}
	return nil
}

func (r *MemoryTicketRepository) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	ticket := cloneTicket(stored.ticket)
	return &ticket, nil
}

func (r *MemoryTicketRepository) List(_ context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	r.mu.Lock()
	matched := make([]memoryTicket, 0, len(r.tickets))
	for _, stored := range r.tickets {
		if filter.CreatedBy != nil && stored.ticket.CreatedBy != *filter.CreatedBy {
			continue
		}
		if filter.PendingTriage && stored.ticket.TriageNotifiedAt != nil {
			continue
		}
		if filter.CreatedBefore != nil && !stored.ticket.CreatedAt.Before(*filter.CreatedBefore) {
			continue
		}
		matched = append(matched, memoryTicket{ticket: cloneTicket(stored.ticket), seq: stored.seq})
	}
	r.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].ticket.CreatedAt.Equal(matched[j].ticket.CreatedAt) {
			return matched[i].ticket.CreatedAt.After(matched[j].ticket.CreatedAt)
		}
		return matched[i].seq > matched[j].seq
	})
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}

	result := make([]domain.Ticket, 0, len(matched))
	for _, stored := range matched {
		result = append(result, stored.ticket)
	}
	return result, nil
}

// UpdateAtomic holds the repository lock while mutate runs; mutate must not
// call back into the repository.
func (r *MemoryTicketRepository) UpdateAtomic(_ context.Context, id string, mutate MutateFunc) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	working := cloneTicket(stored.ticket)
	if err := mutate(&working); err != nil {
		return nil, err
	}
	working.UpdatedAt = r.now()
	stored.ticket = cloneTicket(working)
	return &working, nil
}

func (r *MemoryTicketRepository) MarkTriageNotified(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.tickets[id]
	if !ok {
		return ErrNotFound
	}
	if stored.ticket.TriageNotifiedAt == nil {
		notifiedAt := at
		stored.ticket.TriageNotifiedAt = &notifiedAt
	}
	return nil
}

// Enrich applies triage output the way the triage collaborator would write it back.
func (r *MemoryTicketRepository) Enrich(_ context.Context, id string, priority string, skills []string, notes string, assignedTo string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.tickets[id]
	if !ok {
		return ErrNotFound
	}
	if priority != "" {
		stored.ticket.Priority = &priority
	}
	if len(skills) > 0 {
		stored.ticket.RelatedSkills = append([]string(nil), skills...)
	}
	if notes != "" {
		stored.ticket.HelpfulNotes = &notes
	}
	if assignedTo != "" {
		stored.ticket.AssignedTo = &assignedTo
	}
	return nil
}

func cloneTicket(t domain.Ticket) domain.Ticket {
	out := t
	out.Priority = cloneString(t.Priority)
	out.HelpfulNotes = cloneString(t.HelpfulNotes)
	out.AssignedTo = cloneString(t.AssignedTo)
	if t.RelatedSkills != nil {
		out.RelatedSkills = append([]string(nil), t.RelatedSkills...)
	}
	if t.TriageNotifiedAt != nil {
		notifiedAt := *t.TriageNotifiedAt
		out.TriageNotifiedAt = &notifiedAt
	}
	return out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
