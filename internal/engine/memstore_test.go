package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/RealZimboGuy/leadflow/internal/domain"
	"github.com/RealZimboGuy/leadflow/internal/repository"
)

// memStore is an in-memory store with the same uniqueness and claim
// semantics as the SQL repositories.
type memStore struct {
	mu       sync.Mutex
	nextID   int64
	graphs   map[int64]*domain.Graph
	nodes    map[int64]*domain.Node
	edges    []*domain.Edge
	runs     map[int64]*domain.Run
	steps    map[int64]*domain.Step
	messages map[int64]*domain.OutboxMessage
	actions  []*domain.StepAction
}

func newMemStore() *memStore {
	return &memStore{
		graphs:   map[int64]*domain.Graph{},
		nodes:    map[int64]*domain.Node{},
		runs:     map[int64]*domain.Run{},
		steps:    map[int64]*domain.Step{},
		messages: map[int64]*domain.OutboxMessage{},
	}
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) addGraph(tenant, status string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := &domain.Graph{ID: s.id(), TenantID: tenant, Status: status}
	s.graphs[g.ID] = g
	return g.ID
}

func (s *memStore) addNode(graphID int64, kind, config string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := &domain.Node{ID: s.id(), GraphID: graphID, Kind: kind, Config: config}
	s.nodes[n.ID] = n
	return n.ID
}

func (s *memStore) addEdge(graphID, from, to int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edges = append(s.edges, &domain.Edge{ID: s.id(), GraphID: graphID, FromNodeID: from, ToNodeID: to})
}

func (s *memStore) deleteNode(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.nodes, id)
}

func (s *memStore) stepsOf(runID int64) []*domain.Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Step
	for _, st := range s.steps {
		if st.RunID == runID {
			c := *st
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memStore) stepFor(runID, nodeID int64) *domain.Step {
	for _, st := range s.stepsOf(runID) {
		if st.NodeID == nodeID {
			return st
		}
	}
	return nil
}

func (s *memStore) allRuns() []*domain.Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Run
	for _, r := range s.runs {
		c := *r
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memStore) allMessages() []*domain.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.OutboxMessage
	for _, m := range s.messages {
		c := *m
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memStore) insertStepLocked(runID, nodeID int64, now time.Time) {
	for _, st := range s.steps {
		if st.RunID == runID && st.NodeID == nodeID {
			return
		}
	}
	st := &domain.Step{ID: s.id(), RunID: runID, NodeID: nodeID, Status: domain.StepStatusQueued, ScheduledFor: now, Created: now}
	s.steps[st.ID] = st
}

type memGraphs struct{ *memStore }

func (g memGraphs) FindActiveTriggerNodes(ctx context.Context, tenantID string) ([]*domain.Node, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*domain.Node
	for _, n := range g.nodes {
		graph := g.graphs[n.GraphID]
		if graph != nil && graph.TenantID == tenantID && graph.Status == domain.GraphStatusActive && n.Kind == domain.NodeKindTrigger {
			c := *n
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (g memGraphs) FindNodesByIDs(ctx context.Context, ids []int64) (map[int64]*domain.Node, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := map[int64]*domain.Node{}
	for _, id := range ids {
		if n, ok := g.nodes[id]; ok {
			c := *n
			out[id] = &c
		}
	}
	return out, nil
}

func (g memGraphs) FindSuccessors(ctx context.Context, nodeIDs []int64) (map[int64][]int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	want := map[int64]bool{}
	for _, id := range nodeIDs {
		want[id] = true
	}
	out := map[int64][]int64{}
	for _, e := range g.edges {
		target, ok := g.nodes[e.ToNodeID]
		if want[e.FromNodeID] && ok && target.GraphID == e.GraphID {
			out[e.FromNodeID] = append(out[e.FromNodeID], e.ToNodeID)
		}
	}
	return out, nil
}

func (g memGraphs) FindGraph(ctx context.Context, id int64) (*domain.Graph, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	graph, ok := g.graphs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *graph
	return &c, nil
}

func (g memGraphs) FindNodesByGraph(ctx context.Context, graphID int64) ([]*domain.Node, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*domain.Node
	for _, n := range g.nodes {
		if n.GraphID == graphID {
			c := *n
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (g memGraphs) FindEdgesByGraph(ctx context.Context, graphID int64) ([]*domain.Edge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*domain.Edge
	for _, e := range g.edges {
		if e.GraphID == graphID {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

type memRuns struct{ *memStore }

func (r memRuns) Create(ctx context.Context, run *domain.Run, nodeIDs []int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.runs {
		if existing.GraphID == run.GraphID && existing.TriggerNodeID == run.TriggerNodeID && existing.EventKey == run.EventKey {
			return false, nil
		}
	}
	run.ID = r.id()
	c := *run
	r.runs[run.ID] = &c
	for _, nodeID := range nodeIDs {
		r.insertStepLocked(run.ID, nodeID, run.Created)
	}
	return true, nil
}

func (r memRuns) FindByID(ctx context.Context, id int64) (*domain.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *run
	return &c, nil
}

func (r memRuns) FindByIDs(ctx context.Context, ids []int64) (map[int64]*domain.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[int64]*domain.Run{}
	for _, id := range ids {
		if run, ok := r.runs[id]; ok {
			c := *run
			out[id] = &c
		}
	}
	return out, nil
}

func (r memRuns) Settle(ctx context.Context, runIDs []int64, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range runIDs {
		run, ok := r.runs[id]
		if !ok || run.Status != domain.RunStatusRunning {
			continue
		}
		open, anyFailed := false, false
		for _, st := range r.steps {
			if st.RunID != id {
				continue
			}
			switch st.Status {
			case domain.StepStatusQueued, domain.StepStatusProcessing:
				open = true
			case domain.StepStatusFailed:
				anyFailed = true
			}
		}
		if open {
			continue
		}
		run.Status = domain.RunStatusCompleted
		if anyFailed {
			run.Status = domain.RunStatusFailed
		}
		finished := now
		run.FinishedAt = &finished
	}
	return nil
}

type memSteps struct{ *memStore }

func (s memSteps) Claim(ctx context.Context, lease domain.Lease, limit int) ([]*domain.Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var eligible []*domain.Step
	for _, st := range s.steps {
		due := st.Status == domain.StepStatusQueued && !st.ScheduledFor.After(lease.Now)
		expired := st.Status == domain.StepStatusProcessing && st.LeaseExpiresAt != nil && st.LeaseExpiresAt.Before(lease.Now)
		if due || expired {
			eligible = append(eligible, st)
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].ScheduledFor.Equal(eligible[j].ScheduledFor) {
			return eligible[i].ID < eligible[j].ID
		}
		return eligible[i].ScheduledFor.Before(eligible[j].ScheduledFor)
	})
	if len(eligible) > limit {
		eligible = eligible[:limit]
	}
	var out []*domain.Step
	for _, st := range eligible {
		leaseID, owner, expires, now := lease.ID, lease.Owner, lease.ExpiresAt, lease.Now
		st.Status = domain.StepStatusProcessing
		st.LeaseID = &leaseID
		st.LeaseOwner = &owner
		st.LeaseExpiresAt = &expires
		st.ClaimedAt = &now
		st.Attempt++
		c := *st
		out = append(out, &c)
	}
	return out, nil
}

func (s memSteps) Complete(ctx context.Context, step *domain.Step, result domain.StepResult, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.steps[step.ID]
	if !ok || st.Status != domain.StepStatusProcessing || st.LeaseID == nil || step.LeaseID == nil || *st.LeaseID != *step.LeaseID {
		return repository.ErrLeaseLost
	}
	st.Status = result.Status
	st.FinishedAt = &now
	st.LeaseExpiresAt = nil
	if result.Output != "" {
		out := result.Output
		st.Output = &out
	}
	if result.Error != "" {
		e := result.Error
		st.Error = &e
	}
	if m := result.Message; m != nil {
		exists := false
		for _, existing := range s.messages {
			if existing.StepID == m.StepID {
				exists = true
			}
		}
		if !exists {
			c := *m
			c.ID = s.id()
			c.Status = domain.MessageStatusQueued
			c.Created = now
			s.messages[c.ID] = &c
		}
	}
	if result.Status == domain.StepStatusSuccess || result.Status == domain.StepStatusSkipped {
		for _, nodeID := range result.Successors {
			s.insertStepLocked(st.RunID, nodeID, now)
		}
	}
	step.Status = result.Status
	return nil
}

func (s memSteps) FindByRun(ctx context.Context, runID int64) ([]*domain.Step, error) {
	return s.stepsOf(runID), nil
}

type memOutbox struct{ *memStore }

func (o memOutbox) Claim(ctx context.Context, lease domain.Lease, limit int) ([]*domain.OutboxMessage, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var ids []int64
	for id, m := range o.messages {
		expired := m.Status == domain.MessageStatusProcessing && m.LeaseExpiresAt != nil && m.LeaseExpiresAt.Before(lease.Now)
		if m.Status == domain.MessageStatusQueued || expired {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	var out []*domain.OutboxMessage
	for _, id := range ids {
		m := o.messages[id]
		leaseID, owner, expires := lease.ID, lease.Owner, lease.ExpiresAt
		m.Status = domain.MessageStatusProcessing
		m.LeaseID = &leaseID
		m.LeaseOwner = &owner
		m.LeaseExpiresAt = &expires
		m.Attempt++
		c := *m
		out = append(out, &c)
	}
	return out, nil
}

func (o memOutbox) finish(m *domain.OutboxMessage, apply func(stored *domain.OutboxMessage)) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	stored, ok := o.messages[m.ID]
	if !ok || stored.Status != domain.MessageStatusProcessing || m.LeaseID == nil || *stored.LeaseID != *m.LeaseID {
		return repository.ErrLeaseLost
	}
	apply(stored)
	stored.LeaseExpiresAt = nil
	m.Status = stored.Status
	return nil
}

func (o memOutbox) MarkSent(ctx context.Context, m *domain.OutboxMessage, providerMessageID string, now time.Time) error {
	return o.finish(m, func(stored *domain.OutboxMessage) {
		stored.Status = domain.MessageStatusSent
		stored.SentAt = &now
		stored.ProviderMessageID = &providerMessageID
	})
}

func (o memOutbox) MarkFailed(ctx context.Context, m *domain.OutboxMessage, reason string, now time.Time) error {
	return o.finish(m, func(stored *domain.OutboxMessage) {
		stored.Status = domain.MessageStatusFailed
		stored.Error = &reason
	})
}

func (o memOutbox) FindByRun(ctx context.Context, runID int64) ([]*domain.OutboxMessage, error) {
	var out []*domain.OutboxMessage
	for _, m := range o.allMessages() {
		if m.RunID == runID {
			out = append(out, m)
		}
	}
	return out, nil
}

type memActions struct{ *memStore }

func (a memActions) Save(ctx context.Context, action *domain.StepAction) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	action.ID = a.id()
	c := *action
	a.actions = append(a.actions, &c)
	return action.ID, nil
}

func (a memActions) FindAllByRunID(ctx context.Context, runID int64) ([]*domain.StepAction, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []*domain.StepAction
	for i := len(a.actions) - 1; i >= 0; i-- {
		if a.actions[i].RunID == runID {
			c := *a.actions[i]
			out = append(out, &c)
		}
	}
	return out, nil
}
