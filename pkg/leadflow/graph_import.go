package leadflow

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/RealZimboGuy/leadflow/internal/actions"
	"github.com/RealZimboGuy/leadflow/internal/domain"
	"github.com/RealZimboGuy/leadflow/internal/engine"
)

// GraphFile is the JSON document accepted by import-graph. Nodes are
// referenced by their file-local key in edges.
type GraphFile struct {
	TenantID string          `json:"tenantId"`
	Name     string          `json:"name"`
	Status   string          `json:"status"`
	Nodes    []GraphFileNode `json:"nodes"`
	Edges    []GraphFileEdge `json:"edges"`
}

type GraphFileNode struct {
	Key    string          `json:"key"`
	Kind   string          `json:"kind"`
	Config json.RawMessage `json:"config"`
}

type GraphFileEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// GraphWriter is the authoring side of repository.GraphRepository.
type GraphWriter interface {
	SaveGraph(ctx context.Context, g *domain.Graph) (int64, error)
	SaveNode(ctx context.Context, n *domain.Node) (int64, error)
	SaveEdge(ctx context.Context, e *domain.Edge) (int64, error)
}

func ReadGraphFile(path string) (*GraphFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var gf GraphFile
	if err := json.Unmarshal(b, &gf); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &gf, nil
}

// Validate rejects files that could not be stored consistently. Invalid
// action configs are allowed; they fail at execution like any other.
func (gf *GraphFile) Validate() error {
	if gf.TenantID == "" || gf.Name == "" {
		return fmt.Errorf("tenantId and name are required")
	}
	switch gf.Status {
	case "", domain.GraphStatusDraft, domain.GraphStatusActive, domain.GraphStatusPaused:
	default:
		return fmt.Errorf("unknown graph status %q", gf.Status)
	}
	keys := make(map[string]bool, len(gf.Nodes))
	for _, n := range gf.Nodes {
		if n.Key == "" || keys[n.Key] {
			return fmt.Errorf("node keys must be unique and non-empty (got %q)", n.Key)
		}
		keys[n.Key] = true
		switch n.Kind {
		case domain.NodeKindTrigger:
			if _, err := actions.ParseTrigger(string(n.Config)); err != nil {
				return fmt.Errorf("node %s: %w", n.Key, err)
			}
		case domain.NodeKindAction:
		default:
			return fmt.Errorf("node %s: unknown kind %q", n.Key, n.Kind)
		}
	}
	for _, e := range gf.Edges {
		if !keys[e.From] || !keys[e.To] {
			return fmt.Errorf("edge %s -> %s references an unknown node", e.From, e.To)
		}
	}
	return nil
}

// ImportGraph stores the file as a new graph and returns its id and the
// inspection report of what was stored.
func ImportGraph(ctx context.Context, w GraphWriter, gf *GraphFile) (int64, *engine.GraphReport, error) {
	if err := gf.Validate(); err != nil {
		return 0, nil, err
	}
	status := gf.Status
	if status == "" {
		status = domain.GraphStatusDraft
	}
	graph := &domain.Graph{TenantID: gf.TenantID, Name: gf.Name, Status: status}
	graphID, err := w.SaveGraph(ctx, graph)
	if err != nil {
		return 0, nil, fmt.Errorf("save graph: %w", err)
	}

	ids := make(map[string]int64, len(gf.Nodes))
	nodes := make([]*domain.Node, 0, len(gf.Nodes))
	for _, n := range gf.Nodes {
		node := &domain.Node{GraphID: graphID, Kind: n.Kind, Config: string(n.Config)}
		id, err := w.SaveNode(ctx, node)
		if err != nil {
			return graphID, nil, fmt.Errorf("save node %s: %w", n.Key, err)
		}
		node.ID = id
		ids[n.Key] = id
		nodes = append(nodes, node)
	}
	edges := make([]*domain.Edge, 0, len(gf.Edges))
	for _, e := range gf.Edges {
		edge := &domain.Edge{GraphID: graphID, FromNodeID: ids[e.From], ToNodeID: ids[e.To]}
		if _, err := w.SaveEdge(ctx, edge); err != nil {
			return graphID, nil, fmt.Errorf("save edge %s -> %s: %w", e.From, e.To, err)
		}
		edges = append(edges, edge)
	}

	report := engine.InspectGraph(nodes, edges)
	report.GraphID = graphID
	report.Status = status
	return graphID, report, nil
}
