package ingress

import (
	"context"
	"log/slog"

	"github.com/RealZimboGuy/leadflow/internal/domain"
	"github.com/RealZimboGuy/leadflow/internal/engine"
)

// Matcher starts runs for an event, see engine.TriggerMatcher.
type Matcher interface {
	Match(ctx context.Context, event *domain.Event) (int, error)
}

// Notifier wakes step workers of other processes.
type Notifier interface {
	Notify(ctx context.Context)
}

// Service is the synchronous ingress entry point. It may be called any number
// of times for the same event; the idempotent run insert keeps that safe.
type Service struct {
	matcher  Matcher
	waker    engine.Waker
	notifier Notifier
}

func NewService(matcher Matcher, waker engine.Waker, notifier Notifier) *Service {
	return &Service{matcher: matcher, waker: waker, notifier: notifier}
}

// Ingest returns the number of runs started. Infrastructure errors are
// returned to the caller, who is expected to retry.
func (s *Service) Ingest(ctx context.Context, event *domain.Event) (int, error) {
	started, err := s.matcher.Match(ctx, event)
	if err != nil {
		slog.ErrorContext(ctx, "Event ingress failed", "tenant", event.TenantID, "entity_id", event.EntityID, "event_kind", event.EventKind, "error", err)
		return started, err
	}
	if started > 0 {
		if s.waker != nil {
			s.waker.Wakeup()
		}
		if s.notifier != nil {
			s.notifier.Notify(ctx)
		}
	}
	slog.DebugContext(ctx, "Event ingested", "tenant", event.TenantID, "entity_id", event.EntityID, "triggered", started)
	return started, nil
}
