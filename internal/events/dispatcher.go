package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var (
	ErrQueueFull        = errors.New("event queue full")
	ErrDispatcherClosed = errors.New("event dispatcher closed")
)

// EventHandler handles a published event.
type EventHandler func(context.Context, Event) error

// Publisher hands events to a transport without waiting for consumers.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// MemoryDispatcher is an in-process transport. Publish enqueues and returns;
// a single background goroutine delivers to subscribers in publish order.
type MemoryDispatcher struct {
	mu        sync.RWMutex
	listeners map[EventType][]EventHandler
	queue     chan Event
	closed    bool
	done      chan struct{}
	logger    *zap.Logger
}

// NewMemoryDispatcher creates a dispatcher holding up to buffer undelivered events.
func NewMemoryDispatcher(buffer int, logger *zap.Logger) *MemoryDispatcher {
	if buffer <= 0 {
		buffer = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &MemoryDispatcher{
		listeners: make(map[EventType][]EventHandler),
		queue:     make(chan Event, buffer),
		done:      make(chan struct{}),
		logger:    logger,
	}
	go d.run()
	return d
}

// Publish enqueues the event. It never waits on handlers.
func (d *MemoryDispatcher) Publish(_ context.Context, event Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.queue <- event:
		return nil
	default:
		return ErrQueueFull
	}
}

// Subscribe registers a handler for the given event type.
func (d *MemoryDispatcher) Subscribe(eventType EventType, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners[eventType] = append(d.listeners[eventType], handler)
}

// Close stops accepting events and waits for queued ones to be delivered.
func (d *MemoryDispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	<-d.done
}

func (d *MemoryDispatcher) run() {
	defer close(d.done)
	for event := range d.queue {
		d.mu.RLock()
		handlers := append([]EventHandler{}, d.listeners[event.Type]...)
		d.mu.RUnlock()

		for _, handler := range handlers {
			if err := d.deliver(handler, event); err != nil {
				d.logger.Error("event handler failed",
					zap.String("event_id", event.ID),
					zap.String("event_type", string(event.Type)),
					zap.String("ticket_id", event.TicketID),
					zap.Error(err))
			}
		}
	}
}

func (d *MemoryDispatcher) deliver(handler EventHandler, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(context.Background(), event)
}
