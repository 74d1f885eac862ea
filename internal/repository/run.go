package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/RealZimboGuy/leadflow/internal/domain"
)

type RunRepository struct {
	db *sql.DB
}

func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

const runColumns = "id, graph_id, tenant_id, trigger_node_id, event_key, status, context, created, finished_at"

func scanRun(row interface{ Scan(...interface{}) error }) (*domain.Run, error) {
	var run domain.Run
	if err := row.Scan(&run.ID, &run.GraphID, &run.TenantID, &run.TriggerNodeID, &run.EventKey,
		&run.Status, &run.Context, &run.Created, &run.FinishedAt); err != nil {
		return nil, err
	}
	return &run, nil
}

// Create inserts the run and one queued step per initial node in a single
// transaction. A run with the same (graph, trigger node, event key) already
// existing is not an error: nothing is written and created is false.
func (r *RunRepository) Create(ctx context.Context, run *domain.Run, nodeIDs []int64) (created bool, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil || !created {
			_ = tx.Rollback()
		}
	}()

	if run.Status == "" {
		run.Status = domain.RunStatusRunning
	}
	vals := []interface{}{run.GraphID, run.TenantID, run.TriggerNodeID, run.EventKey, run.Status, run.Context, formatDateInDatabase(run.Created)}
	query := insertIgnore("runs", "graph_id, tenant_id, trigger_node_id, event_key, status, context, created", placeholders(1, len(vals)))
	id, err := insertReturningID(ctx, tx, query, vals...)
	if err != nil {
		return false, fmt.Errorf("insert run: %w", err)
	}
	if id == 0 {
		return false, nil
	}
	run.ID = id

	for _, nodeID := range nodeIDs {
		if err = insertQueuedStep(ctx, tx, run.ID, nodeID, run.Created); err != nil {
			return false, fmt.Errorf("insert initial step: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (r *RunRepository) FindByID(ctx context.Context, id int64) (*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = ` + placeholder(1)
	run, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return run, err
}

func (r *RunRepository) FindByIDs(ctx context.Context, ids []int64) (map[int64]*domain.Run, error) {
	out := make(map[int64]*domain.Run, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query := `SELECT ` + runColumns + ` FROM runs WHERE id IN (` + placeholders(1, len(ids)) + `)`
	rows, err := r.db.QueryContext(ctx, query, int64Args(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out[run.ID] = run
	}
	return out, rows.Err()
}

// Settle finishes every given run that has no queued or processing steps
// left. A run with any failed step ends failed, otherwise completed.
func (r *RunRepository) Settle(ctx context.Context, runIDs []int64, now time.Time) error {
	query := `
		UPDATE runs
		SET status = CASE WHEN EXISTS (
				SELECT 1 FROM steps WHERE steps.run_id = runs.id AND steps.status = '` + domain.StepStatusFailed + `'
			) THEN '` + domain.RunStatusFailed + `' ELSE '` + domain.RunStatusCompleted + `' END,
			finished_at = ` + placeholder(1) + `
		WHERE id = ` + placeholder(2) + ` AND status = '` + domain.RunStatusRunning + `'
		AND NOT EXISTS (
			SELECT 1 FROM steps WHERE steps.run_id = runs.id
			AND steps.status IN ('` + domain.StepStatusQueued + `', '` + domain.StepStatusProcessing + `')
		)
	`
	for _, id := range runIDs {
		if _, err := r.db.ExecContext(ctx, query, formatDateInDatabase(now), id); err != nil {
			return fmt.Errorf("settle run %d: %w", id, err)
		}
	}
	return nil
}
