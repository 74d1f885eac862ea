package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/RealZimboGuy/leadflow/internal/actions"
	"github.com/RealZimboGuy/leadflow/internal/domain"
)

// GraphReport is the authoring-side validation of a graph. The executor does
// not need it: cycles are cut by the one-visit-per-run rule.
type GraphReport struct {
	GraphID            int64     `json:"graphId"`
	Status             string    `json:"status"`
	Acyclic            bool      `json:"acyclic"`
	Cycles             [][]int64 `json:"cycles"`
	UnreachableNodeIDs []int64   `json:"unreachableNodeIds"`
	InvalidNodeIDs     []int64   `json:"invalidNodeIds"`
	FlowChart          string    `json:"flowChart"`
}

type GraphInspector struct {
	graphs GraphRepo
}

func NewGraphInspector(graphs GraphRepo) *GraphInspector {
	return &GraphInspector{graphs: graphs}
}

func (gi *GraphInspector) Inspect(ctx context.Context, graphID int64) (*GraphReport, error) {
	graph, err := gi.graphs.FindGraph(ctx, graphID)
	if err != nil {
		return nil, err
	}
	nodes, err := gi.graphs.FindNodesByGraph(ctx, graphID)
	if err != nil {
		return nil, fmt.Errorf("load nodes: %w", err)
	}
	edges, err := gi.graphs.FindEdgesByGraph(ctx, graphID)
	if err != nil {
		return nil, fmt.Errorf("load edges: %w", err)
	}
	report := InspectGraph(nodes, edges)
	report.GraphID = graph.ID
	report.Status = graph.Status
	return report, nil
}

// InspectGraph finds cycles, nodes unreachable from any trigger and action
// nodes whose config would fail at execution time.
func InspectGraph(nodes []*domain.Node, edges []*domain.Edge) *GraphReport {
	adj := make(map[int64][]int64, len(nodes))
	byID := make(map[int64]*domain.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}
	for _, e := range edges {
		if _, ok := byID[e.ToNodeID]; !ok {
			continue
		}
		adj[e.FromNodeID] = append(adj[e.FromNodeID], e.ToNodeID)
	}

	report := &GraphReport{Cycles: [][]int64{}, UnreachableNodeIDs: []int64{}, InvalidNodeIDs: []int64{}}

	// colouring DFS; reaching a grey node closes a cycle
	const (
		white = iota
		grey
		black
	)
	colour := make(map[int64]int, len(nodes))
	var path []int64
	var visit func(id int64)
	visit = func(id int64) {
		colour[id] = grey
		path = append(path, id)
		for _, next := range adj[id] {
			switch colour[next] {
			case white:
				visit(next)
			case grey:
				report.Cycles = append(report.Cycles, cycleFrom(path, next))
			}
		}
		path = path[:len(path)-1]
		colour[id] = black
	}
	for _, n := range nodes {
		if colour[n.ID] == white {
			visit(n.ID)
		}
	}
	report.Acyclic = len(report.Cycles) == 0

	reached := make(map[int64]bool, len(nodes))
	var queue []int64
	for _, n := range nodes {
		if n.Kind == domain.NodeKindTrigger {
			reached[n.ID] = true
			queue = append(queue, n.ID)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, next := range adj[id] {
			if !reached[next] {
				reached[next] = true
				queue = append(queue, next)
			}
		}
	}
	for _, n := range nodes {
		if !reached[n.ID] {
			report.UnreachableNodeIDs = append(report.UnreachableNodeIDs, n.ID)
		}
		if n.Kind == domain.NodeKindAction {
			if _, bad := actions.Parse(n.Config).(actions.Unknown); bad {
				report.InvalidNodeIDs = append(report.InvalidNodeIDs, n.ID)
			}
		}
		if n.Kind == domain.NodeKindTrigger {
			if _, err := actions.ParseTrigger(n.Config); err != nil {
				report.InvalidNodeIDs = append(report.InvalidNodeIDs, n.ID)
			}
		}
	}
	sort.Slice(report.UnreachableNodeIDs, func(i, j int) bool { return report.UnreachableNodeIDs[i] < report.UnreachableNodeIDs[j] })

	report.FlowChart = buildFlowChart(nodes, edges, report)
	return report
}

func cycleFrom(path []int64, start int64) []int64 {
	for i, id := range path {
		if id == start {
			cycle := make([]int64, len(path)-i)
			copy(cycle, path[i:])
			return cycle
		}
	}
	return []int64{start}
}

// buildFlowChart renders the graph as a mermaid flowchart.
func buildFlowChart(nodes []*domain.Node, edges []*domain.Edge, report *GraphReport) string {
	var sb strings.Builder

	errorClass := "fill:#FF6B6B,stroke:#C53030,stroke-width:2px,color:#fff,stroke-dasharray: 4 2,rx:10,ry:10;"
	startClass := "fill:#5568FE,stroke:#3346FF,stroke-width:2px,color:#fff,stroke-dasharray: 4 2,rx:10,ry:10;"
	messageClass := "fill:#4ECDC4,stroke:#1F9C8C,stroke-width:2px,color:#fff,stroke-dasharray: 4 2,rx:10,ry:10;"
	normalClass := "fill:#F0F4F8,stroke:#B0C4DE,stroke-width:1px,color:#333,rx:10,ry:10;"

	invalid := make(map[int64]bool, len(report.InvalidNodeIDs))
	for _, id := range report.InvalidNodeIDs {
		invalid[id] = true
	}

	sb.WriteString("flowchart TD\n")
	for _, n := range nodes {
		sb.WriteString(fmt.Sprintf("    n%d[\"%s\"]\n", n.ID, nodeLabel(n)))
	}
	for _, e := range edges {
		sb.WriteString(fmt.Sprintf("    n%d --> n%d\n", e.FromNodeID, e.ToNodeID))
	}

	sb.WriteString(fmt.Sprintf("    classDef errorClass %s\n", errorClass))
	sb.WriteString(fmt.Sprintf("    classDef startClass %s\n", startClass))
	sb.WriteString(fmt.Sprintf("    classDef messageClass %s\n", messageClass))
	sb.WriteString(fmt.Sprintf("    classDef normalClass %s\n", normalClass))

	for _, n := range nodes {
		class := "normalClass"
		switch {
		case invalid[n.ID]:
			class = "errorClass"
		case n.Kind == domain.NodeKindTrigger:
			class = "startClass"
		case actions.Parse(n.Config).Type() == actions.TypeSendMessage:
			class = "messageClass"
		}
		sb.WriteString(fmt.Sprintf("    class n%d %s;\n", n.ID, class))
	}
	return sb.String()
}

func nodeLabel(n *domain.Node) string {
	if n.Kind == domain.NodeKindTrigger {
		if cfg, err := actions.ParseTrigger(n.Config); err == nil {
			return "trigger: " + cfg.EventKind
		}
		return "trigger"
	}
	switch cfg := actions.Parse(n.Config).(type) {
	case actions.SendMessage:
		return "send " + cfg.Channel
	case actions.TagEntity:
		return "tag " + strings.ReplaceAll(cfg.Label, `"`, "'")
	default:
		return "invalid action"
	}
}
