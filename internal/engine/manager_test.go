package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/RealZimboGuy/leadflow/internal/analytics"
	"github.com/RealZimboGuy/leadflow/internal/domain"
	"github.com/RealZimboGuy/leadflow/pkg/leadflow/core"
)

type MockExecutorRepo struct {
	SaveFunc                     func(e *domain.Executor) (int64, error)
	UpdateLastActiveFunc         func(id int64, ts time.Time) error
	GetExecutorsByLastActiveFunc func(limit int) ([]*domain.Executor, error)
}

func (m *MockExecutorRepo) Save(e *domain.Executor) (int64, error) {
	if m.SaveFunc != nil {
		return m.SaveFunc(e)
	}
	return 1, nil
}
func (m *MockExecutorRepo) UpdateLastActive(id int64, ts time.Time) error {
	if m.UpdateLastActiveFunc != nil {
		return m.UpdateLastActiveFunc(id, ts)
	}
	return nil
}
func (m *MockExecutorRepo) GetExecutorsByLastActive(limit int) ([]*domain.Executor, error) {
	if m.GetExecutorsByLastActiveFunc != nil {
		return m.GetExecutorsByLastActiveFunc(limit)
	}
	return nil, nil
}

func newTestManager(h *harness, exec ExecutorRepo) *Manager {
	m := NewManager(ManagerConfig{
		ExecutorName:      "node-a",
		Workers:           2,
		BatchSize:         5,
		OutboxBatchSize:   5,
		PollInterval:      10 * time.Millisecond,
		OutboxInterval:    10 * time.Millisecond,
		LeaseDuration:     time.Minute,
		HeartbeatInterval: 10 * time.Millisecond,
	}, core.NewRealClock())
	m.Graphs = memGraphs{h.store}
	m.Runs = memRuns{h.store}
	m.Steps = memSteps{h.store}
	m.Outbox = memOutbox{h.store}
	m.StepActions = memActions{h.store}
	m.ExecutorRepo = exec
	m.Tagger = h.tagger
	m.Senders = h.senders
	m.Collector = analytics.NoopCollector{}
	return m
}

func TestManager_RegisterSetsWorkerIdentity(t *testing.T) {
	h := newHarness()
	var saved *domain.Executor
	m := newTestManager(h, &MockExecutorRepo{
		SaveFunc: func(e *domain.Executor) (int64, error) {
			saved = e
			return 42, nil
		},
	})

	if err := m.Register(context.Background()); err != nil {
		t.Fatal(err)
	}
	if saved == nil || saved.Name != "node-a" {
		t.Fatalf("expected executor to be saved, got %+v", saved)
	}
	s := m.StepScheduler()
	if s.Worker != "node-a-42" || s.ExecutorID != 42 || s.BatchSize != 5 {
		t.Errorf("unexpected scheduler identity %+v", s)
	}
	if d := m.OutboxDispatcher(); d.Worker != "node-a-42" {
		t.Errorf("unexpected dispatcher worker %s", d.Worker)
	}

	m = newTestManager(h, &MockExecutorRepo{
		SaveFunc: func(e *domain.Executor) (int64, error) { return 0, errors.New("no table") },
	})
	if err := m.Register(context.Background()); err == nil {
		t.Error("expected register error")
	}
}

func TestManager_ListExecutors(t *testing.T) {
	h := newHarness()
	m := newTestManager(h, &MockExecutorRepo{
		GetExecutorsByLastActiveFunc: func(limit int) ([]*domain.Executor, error) {
			if limit != 20 {
				t.Errorf("unexpected limit %d", limit)
			}
			return []*domain.Executor{{ID: 1, Name: "node-a"}}, nil
		},
	})
	execs, err := m.ListExecutors(20)
	if err != nil || len(execs) != 1 {
		t.Fatalf("expected 1 executor, got %v, %v", execs, err)
	}
}

func TestManager_WakeupDoesNotBlock(t *testing.T) {
	m := newTestManager(newHarness(), &MockExecutorRepo{})
	for i := 0; i < 5; i++ {
		m.Wakeup()
	}
	if len(m.wakeup) != 1 {
		t.Errorf("expected a single pending wakeup, got %d", len(m.wakeup))
	}
}

func TestManager_StartEngineRunsToCompletion(t *testing.T) {
	h := newHarness()
	g := h.store.addGraph("w1", domain.GraphStatusActive)
	trig := h.store.addNode(g, domain.NodeKindTrigger, wonTrigger)
	a := h.store.addNode(g, domain.NodeKindAction, tagHot)
	b := h.store.addNode(g, domain.NodeKindAction, emailSales)
	h.store.addEdge(g, trig, a)
	h.store.addEdge(g, a, b)

	var heartbeats atomic.Int32
	m := newTestManager(h, &MockExecutorRepo{
		UpdateLastActiveFunc: func(id int64, ts time.Time) error {
			heartbeats.Add(1)
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.StartEngine(ctx) }()

	if n, err := m.Matcher().Match(ctx, wonEvent("lead1")); err != nil || n != 1 {
		t.Fatalf("expected 1 run, got %d, %v", n, err)
	}
	m.Wakeup()

	deadline := time.Now().Add(5 * time.Second)
	for {
		msgs := h.store.allMessages()
		if len(msgs) == 1 && msgs[0].Status == domain.MessageStatusSent {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("engine did not finish the run, messages: %+v", msgs)
		}
		time.Sleep(5 * time.Millisecond)
	}

	// let the heartbeat ticker fire at least once
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("StartEngine returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("StartEngine did not stop after cancel")
	}

	if run := h.store.allRuns()[0]; run.Status != domain.RunStatusCompleted {
		t.Errorf("expected completed run, got %s", run.Status)
	}
	if heartbeats.Load() == 0 {
		t.Error("expected at least one heartbeat")
	}
}
