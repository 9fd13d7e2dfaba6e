package events

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-assistant/internal/domain"
	"github.com/spec-kit/ticket-assistant/internal/observability"
)

// NotificationFault reports a creation event that could not be handed off
// after the ticket was persisted. The ticket stays pending for the reconciler.
type NotificationFault struct {
	TicketID string
	Err      error
}

func (f *NotificationFault) Error() string {
	return fmt.Sprintf("ticket %s: triage notification failed: %v", f.TicketID, f.Err)
}

func (f *NotificationFault) Unwrap() error { return f.Err }

// TriageMarker records that a ticket's creation event was handed off.
type TriageMarker interface {
	MarkTriageNotified(ctx context.Context, id string, at time.Time) error
}

const (
	markAttempts = 3
	markBackoff  = 25 * time.Millisecond
)

// Gateway emits ticket/created events on a publisher and tracks the outcome.
type Gateway struct {
	publisher Publisher
	marker    TriageMarker
	metrics   *observability.Metrics
	logger    *zap.Logger
	timeout   time.Duration
	now       func() time.Time
}

// GatewayDependencies bundles collaborators for the gateway.
type GatewayDependencies struct {
	Publisher Publisher
	Marker    TriageMarker
	Metrics   *observability.Metrics
	Logger    *zap.Logger
	Timeout   time.Duration
	Now       func() time.Time
}

// NewGateway constructs the gateway.
func NewGateway(deps GatewayDependencies) *Gateway {
	g := &Gateway{
		publisher: deps.Publisher,
		marker:    deps.Marker,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		timeout:   deps.Timeout,
		now:       deps.Now,
	}
	if g.logger == nil {
		g.logger = zap.NewNop()
	}
	if g.now == nil {
		g.now = time.Now
	}
	if g.timeout <= 0 {
		g.timeout = 5 * time.Second
	}
	return g
}

// EmitCreated hands the creation event for a persisted ticket to the
// publisher. The handoff survives cancellation of ctx; it is bounded by the
// gateway timeout instead. A failure is logged, counted and returned as a
// *NotificationFault.
func (g *Gateway) EmitCreated(ctx context.Context, ticket *domain.Ticket) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
	defer cancel()

	now := g.now()
	event := NewTicketCreated(ticket, now)
	if g.publisher == nil {
		return g.fault(ticket.ID, event.ID, fmt.Errorf("no triage publisher configured"))
	}
	if err := g.publisher.Publish(ctx, event); err != nil {
		return g.fault(ticket.ID, event.ID, err)
	}
	g.metrics.RecordNotificationSent()

	if g.marker != nil {
		if err := g.markNotified(ctx, ticket.ID, now); err != nil {
			g.logger.Warn("triage handoff not recorded; reconciler will redeliver",
				zap.String("ticket_id", ticket.ID),
				zap.String("event_id", event.ID),
				zap.Error(err))
		}
	}
	return nil
}

// markNotified retries the acknowledgement write so a transient store error
// does not turn a delivered event into a reconciler redelivery.
func (g *Gateway) markNotified(ctx context.Context, ticketID string, at time.Time) error {
	var err error
	for attempt := 1; attempt <= markAttempts; attempt++ {
		if err = g.marker.MarkTriageNotified(ctx, ticketID, at); err == nil {
			return nil
		}
		if attempt == markAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(time.Duration(attempt) * markBackoff):
		}
	}
	return err
}

func (g *Gateway) fault(ticketID, eventID string, err error) error {
	g.metrics.RecordNotificationFault()
	g.logger.Error("triage notification failed",
		zap.String("ticket_id", ticketID),
		zap.String("event_id", eventID),
		zap.String("channel", string(EventTicketCreated)),
		zap.Error(err))
	return &NotificationFault{TicketID: ticketID, Err: err}
}
