package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/RealZimboGuy/leadflow/internal/analytics"
	"github.com/RealZimboGuy/leadflow/internal/domain"
	"github.com/RealZimboGuy/leadflow/pkg/leadflow/core"
)

// ManagerConfig carries the settings of the long running engine.
type ManagerConfig struct {
	ExecutorName      string
	Workers           int
	BatchSize         int
	OutboxBatchSize   int
	PollInterval      time.Duration
	OutboxInterval    time.Duration
	LeaseDuration     time.Duration
	HeartbeatInterval time.Duration
	// MeterProvider receives the engine counters; nil means the global provider.
	MeterProvider metric.MeterProvider
}

// Manager owns the step and outbox workers of one process. The same
// schedulers back the single-shot tick endpoints and commands.
type Manager struct {
	Graphs       GraphRepo
	Runs         RunRepo
	Steps        StepRepo
	Outbox       OutboxRepo
	StepActions  StepActionRepo
	ExecutorRepo ExecutorRepo
	Tagger       EntityTagger
	Senders      Senders
	Collector    analytics.Collector

	cfg        ManagerConfig
	clock      core.Clock
	metrics    *Metrics
	executorID int64
	worker     string
	wakeup     chan struct{}
	mu         sync.Mutex
}

func NewManager(cfg ManagerConfig, clock core.Clock) *Manager {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Manager{
		cfg:     cfg,
		clock:   clock,
		metrics: NewMetrics(cfg.MeterProvider),
		worker:  cfg.ExecutorName,
		wakeup:  make(chan struct{}, 1),
	}
}

// Register records this process in the executors table. The executor id
// becomes part of the worker identity used as lease owner.
func (m *Manager) Register(ctx context.Context) error {
	exec := &domain.Executor{Name: m.cfg.ExecutorName, Started: m.clock.Now(), LastActive: m.clock.Now()}
	id, err := m.ExecutorRepo.Save(exec)
	if err != nil {
		return fmt.Errorf("register executor: %w", err)
	}
	m.mu.Lock()
	m.executorID = id
	m.worker = fmt.Sprintf("%s-%d", m.cfg.ExecutorName, id)
	m.mu.Unlock()
	slog.InfoContext(ctx, "Registered executor", "executor_id", id, "worker", m.worker)
	return nil
}

func (m *Manager) identity() (string, int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.worker, m.executorID
}

func (m *Manager) Matcher() *TriggerMatcher {
	return NewTriggerMatcher(m.Graphs, m.Runs, m.clock, m.metrics)
}

func (m *Manager) Inspector() *GraphInspector {
	return NewGraphInspector(m.Graphs)
}

// StepScheduler returns a scheduler bound to this executor's identity.
func (m *Manager) StepScheduler() *StepScheduler {
	worker, executorID := m.identity()
	return &StepScheduler{
		Graphs:      m.Graphs,
		Runs:        m.Runs,
		Steps:       m.Steps,
		StepActions: m.StepActions,
		Tagger:      m.Tagger,
		Collector:   m.Collector,
		Metrics:     m.metrics,
		Clock:       m.clock,
		Worker:      worker,
		ExecutorID:  executorID,
		BatchSize:   m.cfg.BatchSize,
		LeaseFor:    m.cfg.LeaseDuration,
	}
}

func (m *Manager) OutboxDispatcher() *OutboxDispatcher {
	worker, _ := m.identity()
	return &OutboxDispatcher{
		Outbox:    m.Outbox,
		Senders:   m.Senders,
		Collector: m.Collector,
		Metrics:   m.metrics,
		Clock:     m.clock,
		Worker:    worker,
		BatchSize: m.cfg.OutboxBatchSize,
		LeaseFor:  m.cfg.LeaseDuration,
	}
}

// ListExecutors returns recent executors ordered by last_active desc.
func (m *Manager) ListExecutors(limit int) ([]*domain.Executor, error) {
	return m.ExecutorRepo.GetExecutorsByLastActive(limit)
}

// StartEngine registers the executor unless already registered and runs the step workers and the
// outbox worker until ctx is cancelled.
func (m *Manager) StartEngine(ctx context.Context) error {
	if _, executorID := m.identity(); executorID == 0 {
		if err := m.Register(ctx); err != nil {
			return err
		}
	}
	go m.heartbeat(ctx)

	slog.InfoContext(ctx, "Starting workflow engine", "workers", m.cfg.Workers, "batch_size", m.cfg.BatchSize,
		"poll_interval", m.cfg.PollInterval.String(), "lease", m.cfg.LeaseDuration.String())

	var wg sync.WaitGroup
	for i := 0; i < m.cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			m.stepWorker(ctx, id, m.StepScheduler())
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.outboxWorker(ctx, m.OutboxDispatcher())
	}()

	<-ctx.Done()
	slog.InfoContext(ctx, "Workflow engine stopping due to context cancel")
	wg.Wait()
	return nil
}

// stepWorker ticks on the poll interval or on wakeup. After a productive
// tick it ticks again at once so a run advances one hop per tick without
// waiting for the next interval.
func (m *Manager) stepWorker(ctx context.Context, id int, scheduler *StepScheduler) {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-m.wakeup:
		}
		for ctx.Err() == nil {
			processed, err := scheduler.Tick(ctx)
			if err != nil {
				slog.ErrorContext(ctx, "Step tick failed", "worker_id", id, "error", err)
				break
			}
			if processed == 0 {
				break
			}
			slog.DebugContext(ctx, "Step tick processed", "worker_id", id, "processed", processed)
		}
	}
}

func (m *Manager) outboxWorker(ctx context.Context, dispatcher *OutboxDispatcher) {
	ticker := time.NewTicker(m.cfg.OutboxInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for ctx.Err() == nil {
				processed, err := dispatcher.Tick(ctx)
				if err != nil {
					slog.ErrorContext(ctx, "Outbox tick failed", "error", err)
					break
				}
				if processed < dispatcher.BatchSize {
					break
				}
			}
		}
	}
}

func (m *Manager) heartbeat(ctx context.Context) {
	interval := m.cfg.HeartbeatInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	hb := time.NewTicker(interval)
	defer hb.Stop()
	_, executorID := m.identity()
	for {
		select {
		case <-ctx.Done():
			return
		case <-hb.C:
			if err := m.ExecutorRepo.UpdateLastActive(executorID, m.clock.Now()); err != nil {
				slog.Error("Failed to update executor last_active", "executor_id", executorID, "error", err)
			} else {
				slog.Debug("Updated executor last_active", "executor_id", executorID)
			}
		}
	}
}

// Wakeup makes one idle step worker tick now.
func (m *Manager) Wakeup() {
	select {
	case m.wakeup <- struct{}{}:
	default:
	}
}
