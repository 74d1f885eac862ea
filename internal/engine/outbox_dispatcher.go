package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/RealZimboGuy/leadflow/internal/analytics"
	"github.com/RealZimboGuy/leadflow/internal/domain"
	"github.com/RealZimboGuy/leadflow/internal/repository"
	"github.com/RealZimboGuy/leadflow/pkg/leadflow/core"
)

// OutboxDispatcher delivers queued messages through their channel sender.
// Failed deliveries are recorded and not retried.
type OutboxDispatcher struct {
	Outbox    OutboxRepo
	Senders   Senders
	Collector analytics.Collector
	Metrics   *Metrics
	Clock     core.Clock

	Worker    string
	BatchSize int
	LeaseFor  time.Duration
}

func (d *OutboxDispatcher) Tick(ctx context.Context) (int, error) {
	now := d.Clock.Now()
	lease := domain.Lease{ID: uuid.NewString(), Owner: d.Worker, Now: now, ExpiresAt: now.Add(d.LeaseFor)}
	claimed, err := d.Outbox.Claim(ctx, lease, d.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("claim outbox: %w", err)
	}

	processed := 0
	var errs []error
	for _, msg := range claimed {
		providerID, sendErr := d.send(ctx, msg)
		if sendErr != nil {
			err = d.Outbox.MarkFailed(ctx, msg, sendErr.Error(), d.Clock.Now())
		} else {
			err = d.Outbox.MarkSent(ctx, msg, providerID, d.Clock.Now())
		}
		if errors.Is(err, repository.ErrLeaseLost) {
			slog.WarnContext(ctx, "Lease lost before message completed", "message_id", msg.ID, "lease_id", lease.ID)
			continue
		}
		if err != nil {
			slog.ErrorContext(ctx, "Failed to record message outcome", "message_id", msg.ID, "error", err)
			errs = append(errs, err)
			continue
		}

		processed++
		d.Metrics.messageProcessed(ctx, msg.Channel, msg.Status)
		detail := ""
		if sendErr != nil {
			detail = sendErr.Error()
			slog.WarnContext(ctx, "Message delivery failed", "message_id", msg.ID, "channel", msg.Channel, "error", sendErr)
		} else {
			detail = providerID
			slog.InfoContext(ctx, "Message sent", "message_id", msg.ID, "channel", msg.Channel, "provider_message_id", providerID)
		}
		if d.Collector != nil {
			d.Collector.RecordMessage(msg.TenantID, msg.RunID, msg.ID, msg.Channel, msg.Status, detail)
		}
	}
	return processed, errors.Join(errs...)
}

func (d *OutboxDispatcher) send(ctx context.Context, msg *domain.OutboxMessage) (providerID string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sender panic: %v", r)
		}
	}()
	sender, ok := d.Senders.Lookup(msg.Channel)
	if !ok {
		return "", errors.New(domain.ReasonNoSender)
	}
	return sender.Send(ctx, msg)
}
