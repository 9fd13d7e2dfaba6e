package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-assistant/internal/domain"
	"github.com/spec-kit/ticket-assistant/internal/observability"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
	ctxErr error
}

func (p *recordingPublisher) Publish(ctx context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ctxErr = ctx.Err()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

type recordingMarker struct {
	marked map[string]time.Time
	err    error
	// failures is how many calls fail with err before the marker recovers.
	// Zero means err is returned on every call.
	failures int
	calls    int
}

func (m *recordingMarker) MarkTriageNotified(_ context.Context, id string, at time.Time) error {
	m.calls++
	if m.err != nil && (m.failures == 0 || m.calls <= m.failures) {
		return m.err
	}
	if m.marked == nil {
		m.marked = map[string]time.Time{}
	}
	m.marked[id] = at
	return nil
}

var fixedNow = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func testTicket() *domain.Ticket {
	return &domain.Ticket{ID: "t-1", Title: "Login broken", Description: "Cannot log in", CreatedBy: "u-1"}
}

func TestGatewayEmitsAndMarks(t *testing.T) {
	pub := &recordingPublisher{}
	marker := &recordingMarker{}
	metrics := observability.NewMetrics()
	gw := NewGateway(GatewayDependencies{Publisher: pub, Marker: marker, Metrics: metrics, Now: func() time.Time { return fixedNow }})

	require.NoError(t, gw.EmitCreated(context.Background(), testTicket()))

	require.Len(t, pub.events, 1)
	event := pub.events[0]
	assert.Equal(t, EventTicketCreated, event.Type)
	assert.Equal(t, "t-1", event.TicketID)
	assert.Equal(t, TicketCreatedPayload{TicketID: "t-1", Title: "Login broken", Description: "Cannot log in", CreatedBy: "u-1"}, event.Payload)
	assert.Equal(t, fixedNow, marker.marked["t-1"])
	assert.Equal(t, int64(1), metrics.Snapshot().NotificationsSent)
}

func TestGatewayFaultIsReturnedAndCounted(t *testing.T) {
	cause := errors.New("broker down")
	marker := &recordingMarker{}
	metrics := observability.NewMetrics()
	gw := NewGateway(GatewayDependencies{Publisher: &recordingPublisher{err: cause}, Marker: marker, Metrics: metrics})

	err := gw.EmitCreated(context.Background(), testTicket())

	var fault *NotificationFault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, "t-1", fault.TicketID)
	assert.ErrorIs(t, err, cause)
	assert.Empty(t, marker.marked, "a failed handoff must stay pending for the reconciler")
	assert.Equal(t, int64(1), metrics.Snapshot().NotificationFaults)
}

func TestGatewayWithoutPublisherFaults(t *testing.T) {
	err := NewGateway(GatewayDependencies{}).EmitCreated(context.Background(), testTicket())
	var fault *NotificationFault
	assert.ErrorAs(t, err, &fault)
}

func TestGatewayMarkFailureIsNotAFault(t *testing.T) {
	pub := &recordingPublisher{}
	gw := NewGateway(GatewayDependencies{Publisher: pub, Marker: &recordingMarker{err: errors.New("db down")}})

	assert.NoError(t, gw.EmitCreated(context.Background(), testTicket()))
	assert.Len(t, pub.events, 1)
}

func TestGatewayRetriesMarkBeforeGivingUp(t *testing.T) {
	pub := &recordingPublisher{}
	flaky := &recordingMarker{err: errors.New("serialization failure"), failures: 2}
	gw := NewGateway(GatewayDependencies{Publisher: pub, Marker: flaky, Now: func() time.Time { return fixedNow }})

	require.NoError(t, gw.EmitCreated(context.Background(), testTicket()))
	assert.Len(t, pub.events, 1)
	assert.Equal(t, 3, flaky.calls)
	assert.Equal(t, fixedNow, flaky.marked["t-1"])

	down := &recordingMarker{err: errors.New("db down")}
	gw = NewGateway(GatewayDependencies{Publisher: &recordingPublisher{}, Marker: down})
	require.NoError(t, gw.EmitCreated(context.Background(), testTicket()))
	assert.Equal(t, markAttempts, down.calls)
	assert.Empty(t, down.marked)
}

func TestGatewayIgnoresCallerCancellation(t *testing.T) {
	pub := &recordingPublisher{}
	gw := NewGateway(GatewayDependencies{Publisher: pub})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, gw.EmitCreated(ctx, testTicket()))
	assert.NoError(t, pub.ctxErr)
}

func TestEventIDStableAcrossRedeliveries(t *testing.T) {
	first := NewTicketCreated(testTicket(), fixedNow)
	again := NewTicketCreated(testTicket(), fixedNow.Add(time.Hour))
	other := NewTicketCreated(&domain.Ticket{ID: "t-2"}, fixedNow)

	assert.Equal(t, first.ID, again.ID)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestStreamValues(t *testing.T) {
	values, err := streamValues(NewTicketCreated(testTicket(), fixedNow))
	require.NoError(t, err)

	assert.Equal(t, "ticket/created", values["type"])
	assert.Equal(t, "t-1", values["ticket_id"])
	assert.Equal(t, "2026-10-01T12:00:00Z", values["occurred_at"])

	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(values["data"].(string)), &payload))
	assert.Equal(t, map[string]string{
		"ticketId":    "t-1",
		"title":       "Login broken",
		"description": "Cannot log in",
		"createdBy":   "u-1",
	}, payload)
}

func TestRiverArgs(t *testing.T) {
	event := NewTicketCreated(testTicket(), fixedNow)
	args, err := riverArgs(event)
	require.NoError(t, err)
	assert.Equal(t, "ticket/created", args.Kind())
	assert.Equal(t, event.ID, args.EventID)
	assert.Equal(t, "t-1", args.TicketID)
	assert.Equal(t, "u-1", args.CreatedBy)

	_, err = riverArgs(Event{Type: "ticket/other", Payload: "nope"})
	assert.Error(t, err)
}
