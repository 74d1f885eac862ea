package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/RealZimboGuy/leadflow/internal/actions"
	"github.com/RealZimboGuy/leadflow/internal/analytics"
	"github.com/RealZimboGuy/leadflow/internal/domain"
	"github.com/RealZimboGuy/leadflow/internal/repository"
	"github.com/RealZimboGuy/leadflow/pkg/leadflow/core"
)

// StepScheduler is the tick worker: each Tick claims a bounded batch of due
// steps, executes them one by one and fans out successors of the ones that
// succeeded or were skipped.
type StepScheduler struct {
	Graphs      GraphRepo
	Runs        RunRepo
	Steps       StepRepo
	StepActions StepActionRepo
	Tagger      EntityTagger
	Collector   analytics.Collector
	Metrics     *Metrics
	Clock       core.Clock

	// Worker is the identity written as lease owner, e.g. "host-a-12".
	Worker     string
	ExecutorID int64
	BatchSize  int
	LeaseFor   time.Duration
}

// Tick runs one claim/execute/fan-out pass and returns how many steps
// reached a terminal status. A failing claim or hydration fails the whole
// tick; claimed rows are then picked up again once their lease expires.
func (s *StepScheduler) Tick(ctx context.Context) (int, error) {
	now := s.Clock.Now()
	lease := domain.Lease{
		ID:        uuid.NewString(),
		Owner:     s.Worker,
		Now:       now,
		ExpiresAt: now.Add(s.LeaseFor),
	}
	claimed, err := s.Steps.Claim(ctx, lease, s.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("claim steps: %w", err)
	}
	if len(claimed) == 0 {
		return 0, nil
	}
	slog.DebugContext(ctx, "Claimed steps", "count", len(claimed), "lease_id", lease.ID, "worker", s.Worker)

	nodeIDs, runIDs := collectIDs(claimed)
	nodes, err := s.Graphs.FindNodesByIDs(ctx, nodeIDs)
	if err != nil {
		return 0, fmt.Errorf("load nodes: %w", err)
	}
	runs, err := s.Runs.FindByIDs(ctx, runIDs)
	if err != nil {
		return 0, fmt.Errorf("load runs: %w", err)
	}
	successors, err := s.Graphs.FindSuccessors(ctx, nodeIDs)
	if err != nil {
		return 0, fmt.Errorf("load edges: %w", err)
	}

	processed := 0
	var errs []error
	for _, step := range claimed {
		if step.Attempt > 1 {
			s.Metrics.leaseReclaimed(ctx)
			s.audit(ctx, step, domain.ActionTypeReclaimed, fmt.Sprintf("Reclaimed after lease expiry, attempt %d", step.Attempt))
		}

		run, node := runs[step.RunID], nodes[step.NodeID]
		result := s.execute(ctx, step, run, node, successors[step.NodeID])

		err := s.Steps.Complete(ctx, step, result, s.Clock.Now())
		if errors.Is(err, repository.ErrLeaseLost) {
			slog.WarnContext(ctx, "Lease lost before step completed, discarding result", "step_id", step.ID, "lease_id", lease.ID)
			s.audit(ctx, step, domain.ActionTypeLeaseLost, "Result discarded, step is held by another lease")
			continue
		}
		if err != nil {
			slog.ErrorContext(ctx, "Failed to complete step", "step_id", step.ID, "error", err)
			errs = append(errs, err)
			continue
		}

		processed++
		s.Metrics.stepProcessed(ctx, result.Status)
		tenant := ""
		if run != nil {
			tenant = run.TenantID
		}
		detail := result.Output
		if result.Status == domain.StepStatusFailed || result.Status == domain.StepStatusSkipped {
			detail = result.Error
		}
		if s.Collector != nil {
			s.Collector.RecordStep(tenant, step.RunID, step.ID, step.NodeID, result.Status, detail)
		}
		s.audit(ctx, step, auditType(result.Status), detail)
		slog.InfoContext(ctx, "Step finished", "step_id", step.ID, "run_id", step.RunID, "node_id", step.NodeID,
			"status", result.Status, "fan_out", len(result.Successors))
	}

	if err := s.Runs.Settle(ctx, runIDs, s.Clock.Now()); err != nil {
		slog.ErrorContext(ctx, "Failed to settle runs", "error", err)
	}
	return processed, errors.Join(errs...)
}

// execute decides the outcome of one claimed step. It never panics: a panic
// in a collaborator becomes a failed step.
func (s *StepScheduler) execute(ctx context.Context, step *domain.Step, run *domain.Run, node *domain.Node, next []int64) (result domain.StepResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "Step execution panicked", "step_id", step.ID, "panic", r)
			result = failed(fmt.Sprintf("panic: %v", r))
		}
	}()

	if run == nil || node == nil || node.GraphID != run.GraphID {
		return failed(domain.ReasonMissingRunOrNode)
	}
	if node.Kind != domain.NodeKindAction {
		return domain.StepResult{
			Status:     domain.StepStatusSkipped,
			Error:      domain.ReasonNonActionNode,
			Successors: next,
		}
	}

	var runContext map[string]any
	if err := json.Unmarshal([]byte(run.Context), &runContext); err != nil {
		return failed(fmt.Sprintf("decode run context: %v", err))
	}

	switch cfg := actions.Parse(node.Config).(type) {
	case actions.SendMessage:
		return s.sendMessage(step, run, cfg.Rendered(runContext), runContext, next)
	case actions.TagEntity:
		return s.tagEntity(ctx, run, cfg.Rendered(runContext), runContext, next)
	case actions.Unknown:
		slog.WarnContext(ctx, "Invalid action config", "step_id", step.ID, "node_id", node.ID, "type", cfg.RawType, "reason", cfg.Reason)
		return failed(domain.ReasonInvalidActionConfig)
	default:
		return failed(domain.ReasonInvalidActionConfig)
	}
}

func (s *StepScheduler) sendMessage(step *domain.Step, run *domain.Run, cfg actions.SendMessage, runContext map[string]any, next []int64) domain.StepResult {
	if cfg.To == "" {
		return failed("recipient resolved to an empty value")
	}
	payload, err := json.Marshal(domain.MessagePayload{Subject: cfg.Subject, Body: cfg.Body, Context: runContext})
	if err != nil {
		return failed(fmt.Sprintf("encode payload: %v", err))
	}
	output, _ := json.Marshal(map[string]any{"enqueued": true, "channel": cfg.Channel})
	return domain.StepResult{
		Status: domain.StepStatusSuccess,
		Output: string(output),
		Message: &domain.OutboxMessage{
			TenantID: run.TenantID,
			RunID:    run.ID,
			StepID:   step.ID,
			Channel:  cfg.Channel,
			To:       cfg.To,
			Payload:  string(payload),
		},
		Successors: next,
	}
}

func (s *StepScheduler) tagEntity(ctx context.Context, run *domain.Run, cfg actions.TagEntity, runContext map[string]any, next []int64) domain.StepResult {
	entityID, _ := runContext["entityId"].(string)
	if entityID == "" {
		return failed("run context has no entityId")
	}
	if err := s.Tagger.TagEntity(ctx, run.TenantID, entityID, cfg.Label); err != nil {
		return failed(err.Error())
	}
	output, _ := json.Marshal(map[string]any{"tagged": true, "label": cfg.Label})
	return domain.StepResult{
		Status:     domain.StepStatusSuccess,
		Output:     string(output),
		Successors: next,
	}
}

func (s *StepScheduler) audit(ctx context.Context, step *domain.Step, actionType, text string) {
	if s.StepActions == nil {
		return
	}
	_, err := s.StepActions.Save(ctx, &domain.StepAction{
		RunID:      step.RunID,
		StepID:     step.ID,
		ExecutorID: s.ExecutorID,
		Type:       actionType,
		Name:       actionType,
		Text:       text,
		DateTime:   s.Clock.Now(),
	})
	if err != nil {
		slog.WarnContext(ctx, "Failed to record step action", "step_id", step.ID, "type", actionType, "error", err)
	}
}

func failed(reason string) domain.StepResult {
	return domain.StepResult{Status: domain.StepStatusFailed, Error: reason}
}

func auditType(status string) string {
	switch status {
	case domain.StepStatusSuccess:
		return domain.ActionTypeSuccess
	case domain.StepStatusSkipped:
		return domain.ActionTypeSkipped
	default:
		return domain.ActionTypeFailed
	}
}

func collectIDs(steps []*domain.Step) (nodeIDs, runIDs []int64) {
	seenNode := make(map[int64]bool, len(steps))
	seenRun := make(map[int64]bool, len(steps))
	for _, s := range steps {
		if !seenNode[s.NodeID] {
			seenNode[s.NodeID] = true
			nodeIDs = append(nodeIDs, s.NodeID)
		}
		if !seenRun[s.RunID] {
			seenRun[s.RunID] = true
			runIDs = append(runIDs, s.RunID)
		}
	}
	return nodeIDs, runIDs
}
