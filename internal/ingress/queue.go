package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	rd "github.com/go-redis/redis/v9"
	"github.com/google/uuid"

	"github.com/RealZimboGuy/leadflow/internal/domain"
)

// Queue is a crash tolerant event queue on a Redis list. Consumers move each
// item to a processing list before ingesting it and delete it afterwards, so
// an item is lost only if Redis itself loses it.
type Queue struct {
	client     rd.UniversalClient
	name       string
	processing string
	// PollTimeout bounds each blocking pop so cancellation is noticed.
	PollTimeout time.Duration
}

func NewQueue(addrs []string, name string) *Queue {
	client := rd.NewUniversalClient(&rd.UniversalOptions{
		Addrs: addrs,
	})
	return NewQueueWithClient(client, name)
}

func NewQueueWithClient(client rd.UniversalClient, name string) *Queue {
	return &Queue{
		client:      client,
		name:        name,
		processing:  name + ":processing",
		PollTimeout: 2 * time.Second,
	}
}

func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *Queue) Close() error {
	return q.client.Close()
}

// Push enqueues the event. An event without an id is given one first, so a
// copy redelivered by Recover resolves to the same run key.
func (q *Queue) Push(ctx context.Context, event *domain.Event) error {
	msg, err := encodeEvent(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := q.client.LPush(ctx, q.name, msg).Err(); err != nil {
		slog.ErrorContext(ctx, "error while push to redis list", "queue", q.name, "error", err)
		return fmt.Errorf("push event: %w", err)
	}
	return nil
}

func encodeEvent(event *domain.Event) ([]byte, error) {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	return json.Marshal(event)
}

// Len is the number of events waiting, not counting ones being processed.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.name).Result()
}

// Recover moves items left in the processing list by a crashed consumer back
// to the queue and returns how many were moved.
func (q *Queue) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := q.client.LMove(ctx, q.processing, q.name, "LEFT", "RIGHT").Err()
		if errors.Is(err, rd.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, err
		}
		moved++
	}
}

// Consume ingests events until ctx is done. A failing ingest is retried with
// exponential backoff; an undecodable item is dropped.
func (q *Queue) Consume(ctx context.Context, svc *Service) error {
	if n, err := q.Recover(ctx); err != nil {
		return fmt.Errorf("recover processing list: %w", err)
	} else if n > 0 {
		slog.WarnContext(ctx, "Requeued events left by a previous consumer", "count", n, "queue", q.name)
	}
	slog.InfoContext(ctx, "Consuming events", "queue", q.name)

	for ctx.Err() == nil {
		raw, err := q.client.BLMove(ctx, q.name, q.processing, "RIGHT", "LEFT", q.PollTimeout).Result()
		if errors.Is(err, rd.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			slog.ErrorContext(ctx, "error while pop from redis list", "queue", q.name, "error", err)
			time.Sleep(time.Second)
			continue
		}
		q.handle(ctx, svc, raw)
	}
	return nil
}

func (q *Queue) handle(ctx context.Context, svc *Service, raw string) {
	var event domain.Event
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		slog.ErrorContext(ctx, "Dropping undecodable event", "queue", q.name, "error", err)
		q.ack(ctx, raw)
		return
	}

	bo := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	err := backoff.RetryNotify(func() error {
		_, err := svc.Ingest(ctx, &event)
		if err != nil && (event.TenantID == "" || event.EventKind == "") {
			return backoff.Permanent(err)
		}
		return err
	}, bo, func(err error, d time.Duration) {
		slog.WarnContext(ctx, "Retrying event ingress", "entity_id", event.EntityID, "in", d.String(), "error", err)
	})
	if err != nil && ctx.Err() != nil {
		// left in the processing list, picked up again by Recover
		return
	}
	if err != nil {
		slog.ErrorContext(ctx, "Giving up on event", "entity_id", event.EntityID, "error", err)
	}
	q.ack(ctx, raw)
}

func (q *Queue) ack(ctx context.Context, raw string) {
	if err := q.client.LRem(ctx, q.processing, 1, raw).Err(); err != nil {
		slog.ErrorContext(ctx, "Failed to remove processed event", "queue", q.processing, "error", err)
	}
}
