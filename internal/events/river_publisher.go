package events

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
)

// TicketCreatedArgs is the River job carrying a creation notification. The
// triage service registers a worker for this kind.
type TicketCreatedArgs struct {
	EventID     string `json:"eventId"`
	TicketID    string `json:"ticketId" river:"unique"`
	Title       string `json:"title"`
	Description string `json:"description"`
	CreatedBy   string `json:"createdBy"`
}

// Kind returns the job kind for River.
func (TicketCreatedArgs) Kind() string {
	return string(EventTicketCreated)
}

// RiverPublisher enqueues events as durable River jobs through an insert-only
// client. Jobs are unique per ticket, so re-emitting a ticket whose job still
// exists does not create a second one.
type RiverPublisher struct {
	client      *river.Client[pgx.Tx]
	queue       string
	maxAttempts int
}

// NewRiverPublisher builds an insert-only River client on pool.
func NewRiverPublisher(pool *pgxpool.Pool, queue string, maxAttempts int) (*RiverPublisher, error) {
	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}
	if queue == "" {
		queue = river.QueueDefault
	}
	return &RiverPublisher{client: client, queue: queue, maxAttempts: maxAttempts}, nil
}

func (p *RiverPublisher) Publish(ctx context.Context, event Event) error {
	args, err := riverArgs(event)
	if err != nil {
		return err
	}
	opts := &river.InsertOpts{
		Queue:       p.queue,
		MaxAttempts: p.maxAttempts,
		UniqueOpts:  river.UniqueOpts{ByArgs: true},
	}
	if _, err := p.client.Insert(ctx, args, opts); err != nil {
		return fmt.Errorf("failed to queue %s job: %w", event.Type, err)
	}
	return nil
}

func riverArgs(event Event) (TicketCreatedArgs, error) {
	payload, ok := event.Payload.(TicketCreatedPayload)
	if !ok || event.Type != EventTicketCreated {
		return TicketCreatedArgs{}, fmt.Errorf("river publisher: unsupported event %s", event.Type)
	}
	return TicketCreatedArgs{
		EventID:     event.ID,
		TicketID:    payload.TicketID,
		Title:       payload.Title,
		Description: payload.Description,
		CreatedBy:   payload.CreatedBy,
	}, nil
}
