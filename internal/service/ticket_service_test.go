package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-assistant/internal/domain"
	"github.com/spec-kit/ticket-assistant/internal/events"
	"github.com/spec-kit/ticket-assistant/internal/observability"
	"github.com/spec-kit/ticket-assistant/internal/repository"
	apperrors "github.com/spec-kit/ticket-assistant/pkg/util"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) published() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.events...)
}

type failingTicketRepo struct {
	*repository.MemoryTicketRepository
}

func (failingTicketRepo) Create(context.Context, *domain.Ticket) error {
	return errors.New("disk full")
}

type fixture struct {
	svc       *TicketService
	tickets   *repository.MemoryTicketRepository
	users     *repository.MemoryUserRepository
	publisher *recordingPublisher
	metrics   *observability.Metrics
	clock     time.Time
}

var (
	user1     = domain.Identity{ID: "11111111-1111-1111-1111-111111111111", Role: domain.RoleUser}
	user2     = domain.Identity{ID: "22222222-2222-2222-2222-222222222222", Role: domain.RoleUser}
	moderator = domain.Identity{ID: "33333333-3333-3333-3333-333333333333", Role: domain.RoleModerator}
	admin     = domain.Identity{ID: "44444444-4444-4444-4444-444444444444", Role: domain.RoleAdmin}
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		users:     repository.NewMemoryUserRepository(),
		publisher: &recordingPublisher{},
		metrics:   observability.NewMetrics(),
		clock:     time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC),
	}
	f.tickets = repository.NewMemoryTicketRepository(func() time.Time {
		f.clock = f.clock.Add(time.Minute)
		return f.clock
	})

	ctx := context.Background()
	for _, u := range []struct {
		identity domain.Identity
		email    string
	}{
		{user1, "u1@example.com"},
		{user2, "u2@example.com"},
		{moderator, "mod@example.com"},
		{admin, "admin@example.com"},
	} {
		require.NoError(t, f.users.Create(ctx, &domain.User{ID: u.identity.ID, Email: u.email, Role: u.identity.Role}))
	}

	f.svc = f.newService(f.tickets)
	return f
}

func (f *fixture) newService(tickets repository.TicketRepository) *TicketService {
	gateway := events.NewGateway(events.GatewayDependencies{
		Publisher: f.publisher,
		Marker:    tickets,
		Metrics:   f.metrics,
	})
	return NewTicketService(TicketDependencies{
		TicketRepo: tickets,
		UserRepo:   f.users,
		Notifier:   gateway,
		Metrics:    f.metrics,
	})
}

func (f *fixture) create(t *testing.T, identity domain.Identity, title string) *domain.Ticket {
	t.Helper()
	ticket, err := f.svc.Create(context.Background(), identity, title, title+" description")
	require.NoError(t, err)
	return ticket
}

func strPtr(s string) *string { return &s }

func statusPtr(s domain.TicketStatus) *domain.TicketStatus { return &s }

func TestCreateEmitsOneNotification(t *testing.T) {
	f := newFixture(t)

	ticket, err := f.svc.Create(context.Background(), user1, "Login broken", "Cannot log in")
	require.NoError(t, err)

	assert.NotEmpty(t, ticket.ID)
	assert.Equal(t, domain.TicketStatusTodo, ticket.Status)
	assert.Equal(t, user1.ID, ticket.CreatedBy)
	assert.False(t, ticket.CreatedAt.IsZero())

	published := f.publisher.published()
	require.Len(t, published, 1)
	assert.Equal(t, events.EventTicketCreated, published[0].Type)
	assert.Equal(t, events.TicketCreatedPayload{
		TicketID:    ticket.ID,
		Title:       "Login broken",
		Description: "Cannot log in",
		CreatedBy:   user1.ID,
	}, published[0].Payload)

	stored, err := f.tickets.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.TriageNotifiedAt)
	assert.Equal(t, int64(1), f.metrics.Snapshot().TicketsCreated)
}

func TestCreateRequiresTitleAndDescription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, tc := range []struct{ title, description string }{
		{"", "desc"},
		{"title", ""},
		{"   ", "desc"},
	} {
		_, err := f.svc.Create(ctx, user1, tc.title, tc.description)
		assert.True(t, apperrors.IsValidation(err), "title=%q description=%q", tc.title, tc.description)
	}

	all, err := f.tickets.List(ctx, repository.TicketFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Empty(t, f.publisher.published())
}

func TestCreateKeepsCallerTextVerbatim(t *testing.T) {
	f := newFixture(t)
	description := "    indented code block\n"

	ticket, err := f.svc.Create(context.Background(), user1, " Login broken ", description)
	require.NoError(t, err)

	stored, err := f.tickets.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, " Login broken ", stored.Title)
	assert.Equal(t, description, stored.Description)

	published := f.publisher.published()
	require.Len(t, published, 1)
	payload := published[0].Payload.(events.TicketCreatedPayload)
	assert.Equal(t, " Login broken ", payload.Title)
	assert.Equal(t, description, payload.Description)
}

func TestCreatePersistenceFailureEmitsNothing(t *testing.T) {
	f := newFixture(t)
	svc := f.newService(failingTicketRepo{f.tickets})

	_, err := svc.Create(context.Background(), user1, "Login broken", "Cannot log in")

	var domainErr *apperrors.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, apperrors.CodeInternal, domainErr.Code)
	assert.Empty(t, f.publisher.published())
	assert.Equal(t, int64(0), f.metrics.Snapshot().TicketsCreated)
}

func TestCreateNotificationFaultStillSucceeds(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("broker unavailable")

	ticket, err := f.svc.Create(context.Background(), user1, "Login broken", "Cannot log in")
	require.NoError(t, err)

	stored, err := f.tickets.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.TriageNotifiedAt, "ticket must stay pending for redelivery")
	assert.Equal(t, int64(1), f.metrics.Snapshot().NotificationFaults)
}

func TestListVisibleIsolatesOwners(t *testing.T) {
	f := newFixture(t)
	own := f.create(t, user1, "mine")
	other := f.create(t, user2, "theirs")
	require.NoError(t, f.tickets.Enrich(context.Background(), own.ID, "high", []string{"auth"}, "try reset", moderator.ID))

	views, err := f.svc.ListVisible(context.Background(), user1)
	require.NoError(t, err)
	require.Len(t, views, 1)
	view := views[0]
	assert.Equal(t, own.ID, view.ID)
	assert.Equal(t, domain.TicketStatusTodo, view.Status)
	assert.NotNil(t, view.CreatedAt)
	assert.Nil(t, view.AssignedTo)
	assert.Nil(t, view.Priority)
	assert.Nil(t, view.RelatedSkills)
	assert.Nil(t, view.HelpfulNotes)

	_, err = f.svc.ReadOne(context.Background(), user1, other.ID)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestReadOneShowsTriageFieldsToOwnerButNotAssignee(t *testing.T) {
	f := newFixture(t)
	own := f.create(t, user1, "mine")
	require.NoError(t, f.tickets.Enrich(context.Background(), own.ID, "high", []string{"auth"}, "try reset", moderator.ID))

	view, err := f.svc.ReadOne(context.Background(), user1, own.ID)
	require.NoError(t, err)
	require.NotNil(t, view.Priority)
	assert.Equal(t, "high", *view.Priority)
	assert.Equal(t, []string{"auth"}, view.RelatedSkills)
	require.NotNil(t, view.HelpfulNotes)
	assert.Equal(t, "try reset", *view.HelpfulNotes)
	assert.Equal(t, domain.TicketStatusTodo, view.Status)
	assert.Nil(t, view.AssignedTo)
}

func TestReadOneMissingAndForeignLookAlike(t *testing.T) {
	f := newFixture(t)
	other := f.create(t, user2, "theirs")

	_, missing := f.svc.ReadOne(context.Background(), user1, "does-not-exist")
	_, foreign := f.svc.ReadOne(context.Background(), user1, other.ID)

	require.True(t, apperrors.IsNotFound(missing))
	require.True(t, apperrors.IsNotFound(foreign))
	assert.Equal(t, apperrors.ToDomainError(missing).Message, apperrors.ToDomainError(foreign).Message)
}

func TestAdminListsEverythingNewestFirstWithResolvedAssignee(t *testing.T) {
	f := newFixture(t)
	first := f.create(t, user1, "first")
	second := f.create(t, user2, "second")
	third := f.create(t, user1, "third")
	require.NoError(t, f.tickets.Enrich(context.Background(), second.ID, "", nil, "", moderator.ID))

	views, err := f.svc.ListVisible(context.Background(), admin)
	require.NoError(t, err)
	require.Len(t, views, 3)
	assert.Equal(t, []string{third.ID, second.ID, first.ID}, []string{views[0].ID, views[1].ID, views[2].ID})

	require.NotNil(t, views[1].AssignedTo)
	assert.Equal(t, domain.AssigneeRef{ID: moderator.ID, Email: "mod@example.com"}, *views[1].AssignedTo)
	assert.Nil(t, views[0].AssignedTo)
	assert.Equal(t, user2.ID, views[1].CreatedBy)
}

func TestModeratorReadsAnyTicket(t *testing.T) {
	f := newFixture(t)
	ticket := f.create(t, user1, "mine")

	view, err := f.svc.ReadOne(context.Background(), moderator, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, user1.ID, view.CreatedBy)
}

func TestUnassignedModeratorIsForbidden(t *testing.T) {
	f := newFixture(t)
	ticket := f.create(t, user1, "mine")

	_, err := f.svc.Update(context.Background(), moderator, ticket.ID, domain.TicketPatch{Status: statusPtr(domain.TicketStatusDone)})
	assert.True(t, apperrors.IsForbidden(err))

	stored, err := f.tickets.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusTodo, stored.Status)
}

func TestCreatorCannotUpdateOwnTicket(t *testing.T) {
	f := newFixture(t)
	ticket := f.create(t, user1, "mine")

	_, err := f.svc.Update(context.Background(), user1, ticket.ID, domain.TicketPatch{HelpfulNotes: strPtr("self-help")})
	assert.True(t, apperrors.IsForbidden(err))
}

func TestSelfAssignmentDoesNotGrantRightsInSameRequest(t *testing.T) {
	f := newFixture(t)
	ticket := f.create(t, user1, "mine")

	_, err := f.svc.Update(context.Background(), moderator, ticket.ID, domain.TicketPatch{
		AssignedTo: strPtr(moderator.ID),
		Status:     statusPtr(domain.TicketStatusInProgress),
	})
	assert.True(t, apperrors.IsForbidden(err))

	stored, err := f.tickets.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.AssignedTo)
}

func TestAssignThenAssigneeAddsNotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.create(t, user1, "outage")

	assigned, err := f.svc.Update(ctx, admin, ticket.ID, domain.TicketPatch{AssignedTo: strPtr(moderator.ID)})
	require.NoError(t, err)
	require.NotNil(t, assigned.AssignedTo)
	assert.Equal(t, moderator.ID, *assigned.AssignedTo)

	updated, err := f.svc.Update(ctx, moderator, ticket.ID, domain.TicketPatch{HelpfulNotes: strPtr("fixed by restarting service")})
	require.NoError(t, err)
	require.NotNil(t, updated.HelpfulNotes)
	assert.Equal(t, "fixed by restarting service", *updated.HelpfulNotes)
	assert.Equal(t, domain.TicketStatusTodo, updated.Status)
	assert.Equal(t, moderator.ID, *updated.AssignedTo)
}

func TestUpdateRejectsUnknownStatus(t *testing.T) {
	f := newFixture(t)
	ticket := f.create(t, user1, "mine")

	_, err := f.svc.Update(context.Background(), admin, ticket.ID, domain.TicketPatch{
		Status:       statusPtr("INVALID"),
		HelpfulNotes: strPtr("should not land"),
	})
	assert.True(t, apperrors.IsValidation(err))

	stored, err := f.tickets.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusTodo, stored.Status)
	assert.Nil(t, stored.HelpfulNotes)
}

func TestUpdateAllowsAnyStatusTransition(t *testing.T) {
	f := newFixture(t)
	ticket := f.create(t, user1, "mine")
	ctx := context.Background()

	for _, status := range []domain.TicketStatus{domain.TicketStatusDone, domain.TicketStatusTodo, domain.TicketStatusInProgress} {
		updated, err := f.svc.Update(ctx, admin, ticket.ID, domain.TicketPatch{Status: statusPtr(status)})
		require.NoError(t, err)
		assert.Equal(t, status, updated.Status)
	}
}

func TestUpdateRejectsNonStaffAssignee(t *testing.T) {
	f := newFixture(t)
	ticket := f.create(t, user1, "mine")
	ctx := context.Background()

	_, err := f.svc.Update(ctx, admin, ticket.ID, domain.TicketPatch{AssignedTo: strPtr(user2.ID)})
	assert.True(t, apperrors.IsValidation(err))

	_, err = f.svc.Update(ctx, admin, ticket.ID, domain.TicketPatch{AssignedTo: strPtr("55555555-5555-5555-5555-555555555555")})
	assert.True(t, apperrors.IsValidation(err))
}

func TestNotesOnlyPatchKeepsOtherFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.create(t, user1, "mine")
	_, err := f.svc.Update(ctx, admin, ticket.ID, domain.TicketPatch{
		Status:     statusPtr(domain.TicketStatusInProgress),
		AssignedTo: strPtr(moderator.ID),
	})
	require.NoError(t, err)

	updated, err := f.svc.Update(ctx, admin, ticket.ID, domain.TicketPatch{
		HelpfulNotes: strPtr("check logs"),
		Status:       statusPtr(""),
		AssignedTo:   strPtr(""),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, updated.Status)
	assert.Equal(t, moderator.ID, *updated.AssignedTo)
	assert.Equal(t, "check logs", *updated.HelpfulNotes)
}

func TestUpdateMissingTicket(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Update(context.Background(), admin, "missing", domain.TicketPatch{HelpfulNotes: strPtr("x")})
	assert.True(t, apperrors.IsNotFound(err))
}

func TestUpdatePreservesTriageWriteBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.create(t, user1, "mine")
	require.NoError(t, f.tickets.Enrich(ctx, ticket.ID, "medium", []string{"network"}, "", moderator.ID))

	updated, err := f.svc.Update(ctx, moderator, ticket.ID, domain.TicketPatch{Status: statusPtr(domain.TicketStatusDone)})
	require.NoError(t, err)
	assert.Equal(t, "medium", *updated.Priority)
	assert.Equal(t, []string{"network"}, updated.RelatedSkills)
	assert.Equal(t, "mine", updated.Title)
	assert.Equal(t, user1.ID, updated.CreatedBy)
}
