package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-assistant/internal/domain"
	"github.com/spec-kit/ticket-assistant/internal/observability"
	"github.com/spec-kit/ticket-assistant/internal/policy"
	"github.com/spec-kit/ticket-assistant/internal/repository"
	apperrors "github.com/spec-kit/ticket-assistant/pkg/util"
)

// CreationNotifier hands a persisted ticket to the triage pipeline.
type CreationNotifier interface {
	EmitCreated(ctx context.Context, ticket *domain.Ticket) error
}

// TicketService coordinates ticket workflows.
type TicketService struct {
	tickets  repository.TicketRepository
	users    repository.UserRepository
	notifier CreationNotifier
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo repository.TicketRepository
	UserRepo   repository.UserRepository
	Notifier   CreationNotifier
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:  deps.TicketRepo,
		users:    deps.UserRepo,
		notifier: deps.Notifier,
		metrics:  deps.Metrics,
		logger:   logger,
	}
}

// Create persists a new TODO ticket owned by identity and then hands it to
// triage. A failed handoff is logged and counted by the notifier and left for
// the reconciler; the ticket is still returned.
func (s *TicketService) Create(ctx context.Context, identity domain.Identity, title, description string) (*domain.Ticket, error) {
	if identity.ID == "" {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	details := map[string]any{}
	if strings.TrimSpace(title) == "" {
		details["title"] = "required"
	}
	if strings.TrimSpace(description) == "" {
		details["description"] = "required"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("title and description are required", details)
	}

	ticket := &domain.Ticket{
		Title:       title,
		Description: description,
		CreatedBy:   identity.ID,
		Status:      domain.TicketStatusTodo,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.NewInternalError(fmt.Errorf("create ticket: %w", err))
	}
	s.metrics.RecordTicketCreated()

	if s.notifier == nil {
		s.logger.Error("ticket created without a triage notifier", zap.String("ticket_id", ticket.ID))
		return ticket, nil
	}
	if err := s.notifier.EmitCreated(ctx, ticket); err != nil {
		s.logger.Warn("ticket created; triage handoff deferred to reconciler",
			zap.String("ticket_id", ticket.ID),
			zap.Error(err))
	}
	return ticket, nil
}

// ListVisible returns the tickets identity may see, newest first, projected
// for the list view.
func (s *TicketService) ListVisible(ctx context.Context, identity domain.Identity) ([]policy.TicketView, error) {
	filter := repository.TicketFilter{}
	if scope := policy.ListScope(identity); !scope.All() {
		filter.CreatedBy = &scope.CreatedBy
	}
	tickets, err := s.tickets.List(ctx, filter)
	if err != nil {
		return nil, apperrors.NewInternalError(fmt.Errorf("list tickets: %w", err))
	}

	set := policy.Fields(identity, policy.ViewList)
	assignees, err := s.resolveAssignees(ctx, set, tickets...)
	if err != nil {
		return nil, err
	}
	views := make([]policy.TicketView, 0, len(tickets))
	for i := range tickets {
		views = append(views, policy.Project(set, &tickets[i], assignees))
	}
	return views, nil
}

// ReadOne returns a single ticket projected for the detail view. A ticket the
// caller may not read is reported exactly like a missing one.
func (s *TicketService) ReadOne(ctx context.Context, identity domain.Identity, ticketID string) (*policy.TicketView, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, s.lookupError(ticketID, err)
	}
	if !policy.CanRead(identity, ticket).Allowed() {
		return nil, ticketNotFound(ticketID)
	}
	view, err := s.Present(ctx, identity, ticket)
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// Update applies patch to the ticket if identity may change it. The
// authorization check runs against the stored assignment before any field
// changes, inside the same atomic read-modify-write as the patch itself.
func (s *TicketService) Update(ctx context.Context, identity domain.Identity, ticketID string, patch domain.TicketPatch) (*domain.Ticket, error) {
	assignee, err := s.lookupAssignee(ctx, patch.AssignedTo)
	if err != nil {
		return nil, err
	}

	updated, err := s.tickets.UpdateAtomic(ctx, ticketID, func(ticket *domain.Ticket) error {
		if !policy.AuthorizeUpdate(identity, ticket).Allowed() {
			return apperrors.NewForbidden("not allowed to update this ticket")
		}
		if err := validatePatch(patch, assignee); err != nil {
			return err
		}
		patch.Apply(ticket)
		return nil
	})
	if err != nil {
		var domainErr *apperrors.DomainError
		if errors.As(err, &domainErr) {
			return nil, err
		}
		return nil, s.lookupError(ticketID, err)
	}

	s.logger.Info("ticket updated",
		zap.String("ticket_id", updated.ID),
		zap.String("actor_id", identity.ID),
		zap.String("actor_role", string(identity.Role)),
		zap.String("status", string(updated.Status)),
		zap.Bool("noop", patch.Empty()))
	return updated, nil
}

// Present projects ticket for the detail view of identity, resolving the
// assignee when the caller may see it.
func (s *TicketService) Present(ctx context.Context, identity domain.Identity, ticket *domain.Ticket) (policy.TicketView, error) {
	set := policy.Fields(identity, policy.ViewDetail)
	assignees, err := s.resolveAssignees(ctx, set, *ticket)
	if err != nil {
		return policy.TicketView{}, err
	}
	return policy.Project(set, ticket, assignees), nil
}

func (s *TicketService) resolveAssignees(ctx context.Context, set policy.FieldSet, tickets ...domain.Ticket) (map[string]domain.AssigneeRef, error) {
	if !set.Has(policy.FieldAssignedTo) || s.users == nil {
		return nil, nil
	}
	seen := map[string]struct{}{}
	ids := []string{}
	for _, ticket := range tickets {
		if ticket.AssignedTo == nil || *ticket.AssignedTo == "" {
			continue
		}
		if _, ok := seen[*ticket.AssignedTo]; ok {
			continue
		}
		seen[*ticket.AssignedTo] = struct{}{}
		ids = append(ids, *ticket.AssignedTo)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	refs, err := s.users.ResolveAssignees(ctx, ids)
	if err != nil {
		return nil, apperrors.NewInternalError(fmt.Errorf("resolve assignees: %w", err))
	}
	return refs, nil
}

// lookupAssignee loads the requested assignee ahead of the locked update.
// A nil user with a non-blank request means the id is unknown.
func (s *TicketService) lookupAssignee(ctx context.Context, assignedTo *string) (*domain.User, error) {
	if assignedTo == nil || *assignedTo == "" || s.users == nil {
		return nil, nil
	}
	user, err := s.users.GetByID(ctx, *assignedTo)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewInternalError(fmt.Errorf("load assignee: %w", err))
	}
	return user, nil
}

func validatePatch(patch domain.TicketPatch, assignee *domain.User) error {
	if patch.Status != nil && *patch.Status != "" && !patch.Status.Valid() {
		return apperrors.NewValidationError("invalid status", map[string]any{
			"status":  string(*patch.Status),
			"allowed": domain.TicketStatuses,
		})
	}
	if patch.AssignedTo != nil && *patch.AssignedTo != "" {
		if assignee == nil {
			return apperrors.NewValidationError("assignee does not exist", map[string]any{"assigned_to": *patch.AssignedTo})
		}
		if !policy.CanAssign(assignee.Role) {
			return apperrors.NewValidationError("assignee must be a moderator or admin", map[string]any{"assigned_to": *patch.AssignedTo})
		}
	}
	return nil
}

func (s *TicketService) lookupError(ticketID string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ticketNotFound(ticketID)
	}
	return apperrors.NewInternalError(fmt.Errorf("load ticket %s: %w", ticketID, err))
}

func ticketNotFound(ticketID string) error {
	return apperrors.NewNotFound("ticket", map[string]any{"id": ticketID})
}
