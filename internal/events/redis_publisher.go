package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStreamPublisher appends events to a Redis stream named after the event
// type. Consumers read it with a consumer group and acknowledge on their side.
//
// XADD has no uniqueness check. If an append succeeds but the ticket cannot be
// marked notified, the reconciler appends the same event again. Both entries
// carry the same event_id, and consumers must dedupe on it.
type RedisStreamPublisher struct {
	client redis.Cmdable
	maxLen int64
}

// NewRedisStreamPublisher builds a publisher. maxLen caps the stream length
// approximately; zero leaves it unbounded.
func NewRedisStreamPublisher(client redis.Cmdable, maxLen int64) *RedisStreamPublisher {
	return &RedisStreamPublisher{client: client, maxLen: maxLen}
}

func (p *RedisStreamPublisher) Publish(ctx context.Context, event Event) error {
	values, err := streamValues(event)
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{
		Stream: string(event.Type),
		Values: values,
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", event.Type, err)
	}
	return nil
}

func streamValues(event Event) (map[string]any, error) {
	data, err := json.Marshal(event.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event.Type, err)
	}
	return map[string]any{
		"event_id":    event.ID,
		"type":        string(event.Type),
		"ticket_id":   event.TicketID,
		"actor_id":    event.Actor.ID,
		"occurred_at": event.Timestamp.UTC().Format(time.RFC3339Nano),
		"data":        string(data),
	}, nil
}
