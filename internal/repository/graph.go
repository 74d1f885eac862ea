package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/RealZimboGuy/leadflow/internal/domain"
)

// GraphRepository reads workflow graphs. Graphs are owned by the authoring
// side; the Save methods exist for graph import and fixtures only.
type GraphRepository struct {
	db *sql.DB
}

func NewGraphRepository(db *sql.DB) *GraphRepository {
	return &GraphRepository{db: db}
}

const nodeColumns = "n.id, n.graph_id, n.kind, n.config"

func scanNodes(rows *sql.Rows) ([]*domain.Node, error) {
	defer rows.Close()
	var nodes []*domain.Node
	for rows.Next() {
		var n domain.Node
		if err := rows.Scan(&n.ID, &n.GraphID, &n.Kind, &n.Config); err != nil {
			return nil, err
		}
		nodes = append(nodes, &n)
	}
	return nodes, rows.Err()
}

// FindActiveTriggerNodes returns trigger nodes of every active graph of the tenant.
func (r *GraphRepository) FindActiveTriggerNodes(ctx context.Context, tenantID string) ([]*domain.Node, error) {
	query := `
		SELECT ` + nodeColumns + `
		FROM nodes n
		JOIN graphs g ON g.id = n.graph_id
		WHERE g.tenant_id = ` + placeholder(1) + ` AND g.status = ` + placeholder(2) + ` AND n.kind = ` + placeholder(3) + `
		ORDER BY n.graph_id, n.id
	`
	rows, err := r.db.QueryContext(ctx, query, tenantID, domain.GraphStatusActive, domain.NodeKindTrigger)
	if err != nil {
		return nil, err
	}
	return scanNodes(rows)
}

func (r *GraphRepository) FindNodesByIDs(ctx context.Context, ids []int64) (map[int64]*domain.Node, error) {
	out := make(map[int64]*domain.Node, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query := `SELECT ` + nodeColumns + ` FROM nodes n WHERE n.id IN (` + placeholders(1, len(ids)) + `)`
	rows, err := r.db.QueryContext(ctx, query, int64Args(ids)...)
	if err != nil {
		return nil, err
	}
	nodes, err := scanNodes(rows)
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		out[n.ID] = n
	}
	return out, nil
}

// FindSuccessors resolves outgoing edges for the given nodes. Edges whose
// target is missing or belongs to another graph are ignored.
func (r *GraphRepository) FindSuccessors(ctx context.Context, nodeIDs []int64) (map[int64][]int64, error) {
	out := make(map[int64][]int64, len(nodeIDs))
	if len(nodeIDs) == 0 {
		return out, nil
	}
	query := `
		SELECT e.from_node_id, e.to_node_id
		FROM edges e
		JOIN nodes t ON t.id = e.to_node_id AND t.graph_id = e.graph_id
		WHERE e.from_node_id IN (` + placeholders(1, len(nodeIDs)) + `)
		ORDER BY e.id
	`
	rows, err := r.db.QueryContext(ctx, query, int64Args(nodeIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var from, to int64
		if err := rows.Scan(&from, &to); err != nil {
			return nil, err
		}
		out[from] = append(out[from], to)
	}
	return out, rows.Err()
}

func (r *GraphRepository) FindGraph(ctx context.Context, id int64) (*domain.Graph, error) {
	query := `
		SELECT id, tenant_id, name, status, created, updated
		FROM graphs
		WHERE id = ` + placeholder(1)
	var g domain.Graph
	err := r.db.QueryRowContext(ctx, query, id).Scan(&g.ID, &g.TenantID, &g.Name, &g.Status, &g.Created, &g.Updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *GraphRepository) FindNodesByGraph(ctx context.Context, graphID int64) ([]*domain.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes n WHERE n.graph_id = ` + placeholder(1) + ` ORDER BY n.id`
	rows, err := r.db.QueryContext(ctx, query, graphID)
	if err != nil {
		return nil, err
	}
	return scanNodes(rows)
}

func (r *GraphRepository) FindEdgesByGraph(ctx context.Context, graphID int64) ([]*domain.Edge, error) {
	query := `SELECT id, graph_id, from_node_id, to_node_id FROM edges WHERE graph_id = ` + placeholder(1) + ` ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, graphID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var edges []*domain.Edge
	for rows.Next() {
		var e domain.Edge
		if err := rows.Scan(&e.ID, &e.GraphID, &e.FromNodeID, &e.ToNodeID); err != nil {
			return nil, err
		}
		edges = append(edges, &e)
	}
	return edges, rows.Err()
}

func (r *GraphRepository) SaveGraph(ctx context.Context, g *domain.Graph) (int64, error) {
	now := time.Now()
	if g.Created.IsZero() {
		g.Created = now
	}
	g.Updated = now
	vals := []interface{}{g.TenantID, g.Name, g.Status, formatDateInDatabase(g.Created), formatDateInDatabase(g.Updated)}
	base := `INSERT INTO graphs (tenant_id, name, status, created, updated) VALUES (` + placeholders(1, len(vals)) + `)`
	id, err := r.insert(ctx, base, vals...)
	if err != nil {
		return 0, err
	}
	g.ID = id
	return id, nil
}

func (r *GraphRepository) UpdateGraphStatus(ctx context.Context, id int64, status string) error {
	query := `UPDATE graphs SET status = ` + placeholder(1) + `, updated = ` + placeholder(2) + ` WHERE id = ` + placeholder(3)
	_, err := r.db.ExecContext(ctx, query, status, formatDateInDatabase(time.Now()), id)
	return err
}

func (r *GraphRepository) SaveNode(ctx context.Context, n *domain.Node) (int64, error) {
	base := `INSERT INTO nodes (graph_id, kind, config) VALUES (` + placeholders(1, 3) + `)`
	id, err := r.insert(ctx, base, n.GraphID, n.Kind, n.Config)
	if err != nil {
		return 0, err
	}
	n.ID = id
	return id, nil
}

func (r *GraphRepository) SaveEdge(ctx context.Context, e *domain.Edge) (int64, error) {
	base := `INSERT INTO edges (graph_id, from_node_id, to_node_id) VALUES (` + placeholders(1, 3) + `)`
	id, err := r.insert(ctx, base, e.GraphID, e.FromNodeID, e.ToNodeID)
	if err != nil {
		return 0, err
	}
	e.ID = id
	return id, nil
}

func (r *GraphRepository) DeleteNode(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM nodes WHERE id = `+placeholder(1), id)
	return err
}

func (r *GraphRepository) insert(ctx context.Context, base string, vals ...interface{}) (int64, error) {
	return insertReturningID(ctx, r.db, base, vals...)
}

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// insertReturningID runs an INSERT and reports the generated id. It returns
// 0 and no error when an ignoring insert skipped the row.
func insertReturningID(ctx context.Context, db execQuerier, base string, vals ...interface{}) (int64, error) {
	if supportsReturning() {
		var id int64
		err := db.QueryRowContext(ctx, strings.TrimSpace(base)+" RETURNING id", vals...).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return id, err
	}
	res, err := db.ExecContext(ctx, base, vals...)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		return 0, nil
	}
	return res.LastInsertId()
}
