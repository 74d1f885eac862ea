package engine

import (
	"context"
	"time"

	"github.com/RealZimboGuy/leadflow/internal/domain"
)

// GraphRepo is read access to authored graphs, matching repository.GraphRepository.
type GraphRepo interface {
	FindActiveTriggerNodes(ctx context.Context, tenantID string) ([]*domain.Node, error)
	FindNodesByIDs(ctx context.Context, ids []int64) (map[int64]*domain.Node, error)
	FindSuccessors(ctx context.Context, nodeIDs []int64) (map[int64][]int64, error)
	FindGraph(ctx context.Context, id int64) (*domain.Graph, error)
	FindNodesByGraph(ctx context.Context, graphID int64) ([]*domain.Node, error)
	FindEdgesByGraph(ctx context.Context, graphID int64) ([]*domain.Edge, error)
}

// RunRepo defines the interface for run persistence.
type RunRepo interface {
	Create(ctx context.Context, run *domain.Run, nodeIDs []int64) (bool, error)
	FindByID(ctx context.Context, id int64) (*domain.Run, error)
	FindByIDs(ctx context.Context, ids []int64) (map[int64]*domain.Run, error)
	Settle(ctx context.Context, runIDs []int64, now time.Time) error
}

// StepRepo defines the interface for step persistence. Claim must be atomic
// across processes.
type StepRepo interface {
	Claim(ctx context.Context, lease domain.Lease, limit int) ([]*domain.Step, error)
	Complete(ctx context.Context, step *domain.Step, result domain.StepResult, now time.Time) error
	FindByRun(ctx context.Context, runID int64) ([]*domain.Step, error)
}

// OutboxRepo defines the interface for outbox message persistence.
type OutboxRepo interface {
	Claim(ctx context.Context, lease domain.Lease, limit int) ([]*domain.OutboxMessage, error)
	MarkSent(ctx context.Context, m *domain.OutboxMessage, providerMessageID string, now time.Time) error
	MarkFailed(ctx context.Context, m *domain.OutboxMessage, reason string, now time.Time) error
	FindByRun(ctx context.Context, runID int64) ([]*domain.OutboxMessage, error)
}

// StepActionRepo defines the interface for the step audit trail.
type StepActionRepo interface {
	Save(ctx context.Context, a *domain.StepAction) (int64, error)
	FindAllByRunID(ctx context.Context, runID int64) ([]*domain.StepAction, error)
}

// ExecutorRepo defines the interface for executor persistence.
type ExecutorRepo interface {
	Save(e *domain.Executor) (int64, error)
	UpdateLastActive(id int64, ts time.Time) error
	GetExecutorsByLastActive(limit int) ([]*domain.Executor, error)
}

// EntityTagger applies a label to a CRM entity. It is called synchronously
// from tag_entity steps.
type EntityTagger interface {
	TagEntity(ctx context.Context, tenantID, entityID, label string) error
}

// Sender delivers one outbox message and returns the provider's message id.
type Sender interface {
	Send(ctx context.Context, m *domain.OutboxMessage) (string, error)
}

// Senders resolves the sender of a channel such as email or sms.
type Senders interface {
	Lookup(channel string) (Sender, bool)
}

// Waker is notified when new steps were queued.
type Waker interface {
	Wakeup()
}
