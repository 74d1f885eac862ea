package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/RealZimboGuy/leadflow/internal/analytics"
	"github.com/RealZimboGuy/leadflow/internal/domain"
	"github.com/RealZimboGuy/leadflow/pkg/leadflow/core"
)

const (
	wonTrigger = `{"eventKind":"lead.stage_changed","filters":{"toStageId":"won"}}`
	tagHot     = `{"type":"tag_entity","label":"hot"}`
	emailSales = `{"type":"send_message","channel":"email","to":"sales+{$.entityId}@example.com","subject":"Won","body":"Lead {$.entityId} won"}`
)

type recordingTagger struct {
	mu    sync.Mutex
	calls []string
	fn    func(entityID, label string) error
}

func (t *recordingTagger) TagEntity(ctx context.Context, tenantID, entityID, label string) error {
	if t.fn != nil {
		if err := t.fn(entityID, label); err != nil {
			return err
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, fmt.Sprintf("%s/%s:%s", tenantID, entityID, label))
	return nil
}

func (t *recordingTagger) Calls() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.calls...)
}

type senderFunc func(ctx context.Context, m *domain.OutboxMessage) (string, error)

func (f senderFunc) Send(ctx context.Context, m *domain.OutboxMessage) (string, error) { return f(ctx, m) }

type mapSenders map[string]Sender

func (s mapSenders) Lookup(channel string) (Sender, bool) {
	sender, ok := s[channel]
	return sender, ok
}

type harness struct {
	store      *memStore
	clock      *core.FakeClock
	tagger     *recordingTagger
	senders    mapSenders
	matcher    *TriggerMatcher
	scheduler  *StepScheduler
	dispatcher *OutboxDispatcher
}

func newHarness() *harness {
	store := newMemStore()
	clock := core.NewFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	tagger := &recordingTagger{}
	senders := mapSenders{
		"email": senderFunc(func(ctx context.Context, m *domain.OutboxMessage) (string, error) {
			return fmt.Sprintf("prov-%d", m.ID), nil
		}),
	}
	h := &harness{store: store, clock: clock, tagger: tagger, senders: senders}
	h.matcher = NewTriggerMatcher(memGraphs{store}, memRuns{store}, clock, nil)
	h.scheduler = &StepScheduler{
		Graphs:      memGraphs{store},
		Runs:        memRuns{store},
		Steps:       memSteps{store},
		StepActions: memActions{store},
		Tagger:      tagger,
		Collector:   analytics.NoopCollector{},
		Clock:       clock,
		Worker:      "test-1",
		ExecutorID:  1,
		BatchSize:   10,
		LeaseFor:    time.Minute,
	}
	h.dispatcher = &OutboxDispatcher{
		Outbox:    memOutbox{store},
		Senders:   senders,
		Collector: analytics.NoopCollector{},
		Clock:     clock,
		Worker:    "test-1",
		BatchSize: 10,
		LeaseFor:  time.Minute,
	}
	return h
}

// drain ticks until nothing is left to process.
func (h *harness) drain(ctx context.Context) (int, error) {
	total := 0
	for i := 0; i < 100; i++ {
		n, err := h.scheduler.Tick(ctx)
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, nil
		}
		total += n
	}
	return total, fmt.Errorf("scheduler did not settle")
}

func wonEvent(entityID string) *domain.Event {
	return &domain.Event{TenantID: "w1", EntityID: entityID, EventKind: domain.EventKindStageChanged, ToStageID: "won"}
}
