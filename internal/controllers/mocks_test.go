package controllers

import (
	"context"
	"time"

	"github.com/RealZimboGuy/leadflow/internal/domain"
	"github.com/RealZimboGuy/leadflow/internal/engine"
)

type MockVerifier struct {
	Key string
}

func (m *MockVerifier) Enabled() bool             { return m.Key != "" }
func (m *MockVerifier) Verify(apiKey string) bool { return apiKey == m.Key }

type MockIngester struct {
	IngestFunc func(ctx context.Context, event *domain.Event) (int, error)
}

func (m *MockIngester) Ingest(ctx context.Context, event *domain.Event) (int, error) {
	if m.IngestFunc != nil {
		return m.IngestFunc(ctx, event)
	}
	return 0, nil
}

type MockQueue struct {
	Pushed []*domain.Event
	Err    error
}

func (m *MockQueue) Push(ctx context.Context, event *domain.Event) error {
	if m.Err != nil {
		return m.Err
	}
	m.Pushed = append(m.Pushed, event)
	return nil
}

type MockTicker struct {
	Processed int
	Err       error
	Calls     int
}

func (m *MockTicker) Tick(ctx context.Context) (int, error) {
	m.Calls++
	return m.Processed, m.Err
}

type MockInspector struct {
	InspectFunc func(ctx context.Context, graphID int64) (*engine.GraphReport, error)
}

func (m *MockInspector) Inspect(ctx context.Context, graphID int64) (*engine.GraphReport, error) {
	return m.InspectFunc(ctx, graphID)
}

type MockRunRepo struct {
	FindByIDFunc func(ctx context.Context, id int64) (*domain.Run, error)
}

func (m *MockRunRepo) Create(ctx context.Context, run *domain.Run, nodeIDs []int64) (bool, error) {
	return false, nil
}
func (m *MockRunRepo) FindByID(ctx context.Context, id int64) (*domain.Run, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	return nil, nil
}
func (m *MockRunRepo) FindByIDs(ctx context.Context, ids []int64) (map[int64]*domain.Run, error) {
	return nil, nil
}
func (m *MockRunRepo) Settle(ctx context.Context, runIDs []int64, now time.Time) error { return nil }

type MockStepRepo struct {
	FindByRunFunc func(ctx context.Context, runID int64) ([]*domain.Step, error)
}

func (m *MockStepRepo) Claim(ctx context.Context, lease domain.Lease, limit int) ([]*domain.Step, error) {
	return nil, nil
}
func (m *MockStepRepo) Complete(ctx context.Context, step *domain.Step, result domain.StepResult, now time.Time) error {
	return nil
}
func (m *MockStepRepo) FindByRun(ctx context.Context, runID int64) ([]*domain.Step, error) {
	if m.FindByRunFunc != nil {
		return m.FindByRunFunc(ctx, runID)
	}
	return nil, nil
}

type MockOutboxRepo struct {
	FindByRunFunc func(ctx context.Context, runID int64) ([]*domain.OutboxMessage, error)
}

func (m *MockOutboxRepo) Claim(ctx context.Context, lease domain.Lease, limit int) ([]*domain.OutboxMessage, error) {
	return nil, nil
}
func (m *MockOutboxRepo) MarkSent(ctx context.Context, msg *domain.OutboxMessage, providerMessageID string, now time.Time) error {
	return nil
}
func (m *MockOutboxRepo) MarkFailed(ctx context.Context, msg *domain.OutboxMessage, reason string, now time.Time) error {
	return nil
}
func (m *MockOutboxRepo) FindByRun(ctx context.Context, runID int64) ([]*domain.OutboxMessage, error) {
	if m.FindByRunFunc != nil {
		return m.FindByRunFunc(ctx, runID)
	}
	return nil, nil
}

type MockStepActionRepo struct {
	FindAllByRunIDFunc func(ctx context.Context, runID int64) ([]*domain.StepAction, error)
}

func (m *MockStepActionRepo) Save(ctx context.Context, a *domain.StepAction) (int64, error) {
	return 1, nil
}
func (m *MockStepActionRepo) FindAllByRunID(ctx context.Context, runID int64) ([]*domain.StepAction, error) {
	if m.FindAllByRunIDFunc != nil {
		return m.FindAllByRunIDFunc(ctx, runID)
	}
	return nil, nil
}

type MockExecutorRepo struct {
	GetExecutorsByLastActiveFunc func(limit int) ([]*domain.Executor, error)
}

func (m *MockExecutorRepo) Save(e *domain.Executor) (int64, error)       { return 1, nil }
func (m *MockExecutorRepo) UpdateLastActive(id int64, ts time.Time) error { return nil }
func (m *MockExecutorRepo) GetExecutorsByLastActive(limit int) ([]*domain.Executor, error) {
	if m.GetExecutorsByLastActiveFunc != nil {
		return m.GetExecutorsByLastActiveFunc(limit)
	}
	return nil, nil
}
