package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/RealZimboGuy/leadflow/internal/domain"
)

// StepActionRepository persists the audit trail of step executions.
type StepActionRepository struct {
	db *sql.DB
}

func NewStepActionRepository(db *sql.DB) *StepActionRepository {
	return &StepActionRepository{db: db}
}

// Save inserts a new step action and returns its ID.
func (r *StepActionRepository) Save(ctx context.Context, a *domain.StepAction) (int64, error) {
	base := `
		INSERT INTO step_actions (
			run_id, step_id, executor_id, type, name, text, date_time
		) VALUES (` + placeholders(1, 7) + `)`
	id, err := insertReturningID(ctx, r.db, base,
		a.RunID,
		a.StepID,
		a.ExecutorID,
		a.Type,
		a.Name,
		a.Text,
		formatDateInDatabase(a.DateTime),
	)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to save step action", "run_id", a.RunID, "step_id", a.StepID, "error", err)
		return 0, err
	}
	a.ID = id
	return id, nil
}

// FindAllByRunID returns the audit trail of a run, newest first.
func (r *StepActionRepository) FindAllByRunID(ctx context.Context, runID int64) ([]*domain.StepAction, error) {
	query := `
		SELECT id, run_id, step_id, executor_id, type, name, text, date_time
		FROM step_actions
		WHERE run_id = ` + placeholder(1) + `
		ORDER BY id DESC
	`
	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []*domain.StepAction
	for rows.Next() {
		var a domain.StepAction
		if err := rows.Scan(
			&a.ID,
			&a.RunID,
			&a.StepID,
			&a.ExecutorID,
			&a.Type,
			&a.Name,
			&a.Text,
			&a.DateTime,
		); err != nil {
			return nil, err
		}
		actions = append(actions, &a)
	}
	return actions, rows.Err()
}
