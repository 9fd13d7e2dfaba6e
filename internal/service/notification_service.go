package service

import (
	"context"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-assistant/internal/events"
)

// EventSubscriber registers handlers for in-process events.
type EventSubscriber interface {
	Subscribe(eventType events.EventType, handler events.EventHandler)
}

// seenEventCapacity bounds how many recent event ids the sink remembers.
// A redelivery older than that window is logged again.
const seenEventCapacity = 4096

// NotificationService is the development triage sink used with the in-memory
// transport. It logs each ticket/created event once per event id; redeliveries
// of recently seen ids are skipped.
type NotificationService struct {
	subscriber EventSubscriber
	logger     *zap.Logger

	seen      *lru.Cache[string, struct{}]
	processed atomic.Int64
}

// NewNotificationService creates the service.
func NewNotificationService(subscriber EventSubscriber, logger *zap.Logger) *NotificationService {
	return newNotificationService(subscriber, logger, seenEventCapacity)
}

func newNotificationService(subscriber EventSubscriber, logger *zap.Logger, capacity int) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	seen, err := lru.New[string, struct{}](capacity)
	if err != nil {
		// only a non-positive size fails
		seen, _ = lru.New[string, struct{}](seenEventCapacity)
	}
	return &NotificationService{
		subscriber: subscriber,
		logger:     logger,
		seen:       seen,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.subscriber == nil {
		return
	}
	n.subscriber.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
}

// Processed returns how many creation events were logged.
func (n *NotificationService) Processed() int {
	return int(n.processed.Load())
}

func (n *NotificationService) handleTicketCreated(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}

	if duplicate, _ := n.seen.ContainsOrAdd(event.ID, struct{}{}); duplicate {
		n.logger.Debug("TicketCreated redelivered", zap.String("event_id", event.ID), zap.String("ticket_id", payload.TicketID))
		return nil
	}
	n.logger.Info("TicketCreated",
		zap.String("event_id", event.ID),
		zap.String("ticket_id", payload.TicketID),
		zap.String("created_by", payload.CreatedBy),
		zap.String("title", payload.Title))
	n.processed.Add(1)
	return nil
}
