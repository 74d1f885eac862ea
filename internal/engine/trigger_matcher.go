package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/RealZimboGuy/leadflow/internal/actions"
	"github.com/RealZimboGuy/leadflow/internal/domain"
	"github.com/RealZimboGuy/leadflow/pkg/leadflow/core"
)

// TriggerMatcher turns a domain event into runs of every matching active graph.
type TriggerMatcher struct {
	graphs  GraphRepo
	runs    RunRepo
	clock   core.Clock
	metrics *Metrics
}

func NewTriggerMatcher(graphs GraphRepo, runs RunRepo, clock core.Clock, metrics *Metrics) *TriggerMatcher {
	return &TriggerMatcher{graphs: graphs, runs: runs, clock: clock, metrics: metrics}
}

// Match starts one run per matching trigger node that has successors and
// returns how many runs were started. Runs already started for the same
// event are not counted. Not matching anything is not an error.
func (m *TriggerMatcher) Match(ctx context.Context, event *domain.Event) (int, error) {
	if event.TenantID == "" || event.EventKind == "" {
		return 0, fmt.Errorf("event requires tenantId and eventKind")
	}

	triggers, err := m.graphs.FindActiveTriggerNodes(ctx, event.TenantID)
	if err != nil {
		return 0, fmt.Errorf("load trigger nodes: %w", err)
	}
	if len(triggers) == 0 {
		return 0, nil
	}

	attrs := event.ContextMap()
	var matched []*domain.Node
	for _, node := range triggers {
		cfg, err := actions.ParseTrigger(node.Config)
		if err != nil {
			slog.WarnContext(ctx, "Ignoring trigger with invalid config", "node_id", node.ID, "graph_id", node.GraphID, "error", err)
			continue
		}
		if cfg.Matches(event.EventKind, attrs) {
			matched = append(matched, node)
		}
	}
	if len(matched) == 0 {
		slog.DebugContext(ctx, "No trigger matched event", "tenant", event.TenantID, "event_kind", event.EventKind)
		return 0, nil
	}

	ids := make([]int64, len(matched))
	for i, n := range matched {
		ids[i] = n.ID
	}
	successors, err := m.graphs.FindSuccessors(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("load trigger successors: %w", err)
	}

	snapshot, err := json.Marshal(attrs)
	if err != nil {
		return 0, fmt.Errorf("encode run context: %w", err)
	}
	key := EventKey(event)
	now := m.clock.Now()

	started := 0
	for _, trigger := range matched {
		next := successors[trigger.ID]
		if len(next) == 0 {
			slog.DebugContext(ctx, "Trigger has no successors, skipping", "node_id", trigger.ID, "graph_id", trigger.GraphID)
			continue
		}
		run := &domain.Run{
			GraphID:       trigger.GraphID,
			TenantID:      event.TenantID,
			TriggerNodeID: trigger.ID,
			EventKey:      key,
			Status:        domain.RunStatusRunning,
			Context:       string(snapshot),
			Created:       now,
		}
		created, err := m.runs.Create(ctx, run, next)
		if err != nil {
			return started, fmt.Errorf("start run for graph %d: %w", trigger.GraphID, err)
		}
		if !created {
			slog.InfoContext(ctx, "Run already exists for event", "graph_id", trigger.GraphID, "event_key", key)
			continue
		}
		started++
		m.metrics.runStarted(ctx, event.TenantID)
		slog.InfoContext(ctx, "Run started", "run_id", run.ID, "graph_id", run.GraphID, "entity_id", event.EntityID, "steps", len(next))
	}
	return started, nil
}
