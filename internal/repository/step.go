package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/RealZimboGuy/leadflow/internal/domain"
)

type StepRepository struct {
	db *sql.DB
}

func NewStepRepository(db *sql.DB) *StepRepository {
	return &StepRepository{db: db}
}

const stepColumns = "id, run_id, node_id, status, scheduled_for, attempt, lease_id, lease_owner, lease_expires_at, claimed_at, output, error, finished_at, created"

func scanStep(row interface{ Scan(...interface{}) error }) (*domain.Step, error) {
	var s domain.Step
	if err := row.Scan(&s.ID, &s.RunID, &s.NodeID, &s.Status, &s.ScheduledFor, &s.Attempt, &s.LeaseID, &s.LeaseOwner,
		&s.LeaseExpiresAt, &s.ClaimedAt, &s.Output, &s.Error, &s.FinishedAt, &s.Created); err != nil {
		return nil, err
	}
	return &s, nil
}

func scanSteps(rows *sql.Rows) ([]*domain.Step, error) {
	defer rows.Close()
	var steps []*domain.Step
	for rows.Next() {
		s, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, s)
	}
	return steps, rows.Err()
}

// insertQueuedStep enqueues a visit of nodeID within runID. A visit that
// already exists for the pair is left untouched.
func insertQueuedStep(ctx context.Context, tx *sql.Tx, runID, nodeID int64, now time.Time) error {
	ts := formatDateInDatabase(now)
	query := insertIgnore("steps", "run_id, node_id, status, scheduled_for, attempt, created", placeholders(1, 6))
	_, err := tx.ExecContext(ctx, query, runID, nodeID, domain.StepStatusQueued, ts, 0, ts)
	return err
}

// stepEligible selects steps that are due, plus processing steps whose lease
// expired without completion. nowParam is the bind variable holding now.
func stepEligible(nowParam string) string {
	return `(status = '` + domain.StepStatusQueued + `' AND ` + dateCompare("scheduled_for", "<=", nowParam) + `)
		OR (status = '` + domain.StepStatusProcessing + `' AND lease_expires_at IS NOT NULL AND ` + dateCompare("lease_expires_at", "<", nowParam) + `)`
}

// Claim atomically moves up to limit eligible steps to processing under the
// given lease and returns them in claim order. Each dialect does this in one
// statement so two overlapping claimers can never take the same row.
func (r *StepRepository) Claim(ctx context.Context, lease domain.Lease, limit int) ([]*domain.Step, error) {
	now := formatDateInDatabase(lease.Now)
	expires := formatDateInDatabase(lease.ExpiresAt)

	set := `status = '` + domain.StepStatusProcessing + `', lease_id = ` + placeholder(1) + `, lease_owner = ` + placeholder(2) +
		`, lease_expires_at = ` + placeholder(3) + `, claimed_at = ` + placeholder(4) + `, attempt = attempt + 1`

	switch {
	case isPostgres():
		query := `
			UPDATE steps SET ` + set + `
			WHERE id IN (
				SELECT id FROM steps
				WHERE ` + stepEligible(placeholder(4)) + `
				ORDER BY scheduled_for, id
				LIMIT ` + placeholder(5) + `
				FOR UPDATE SKIP LOCKED
			)
			RETURNING ` + stepColumns
		rows, err := r.db.QueryContext(ctx, query, lease.ID, lease.Owner, expires, now, limit)
		if err != nil {
			return nil, fmt.Errorf("claim steps: %w", err)
		}
		steps, err := scanSteps(rows)
		if err != nil {
			return nil, err
		}
		sort.Slice(steps, func(i, j int) bool {
			if steps[i].ScheduledFor.Equal(steps[j].ScheduledFor) {
				return steps[i].ID < steps[j].ID
			}
			return steps[i].ScheduledFor.Before(steps[j].ScheduledFor)
		})
		return steps, nil
	case isMysql():
		query := `UPDATE steps SET ` + set + ` WHERE ` + stepEligible("?") + ` ORDER BY scheduled_for, id LIMIT ?`
		if _, err := r.db.ExecContext(ctx, query, lease.ID, lease.Owner, expires, now, now, now, limit); err != nil {
			return nil, fmt.Errorf("claim steps: %w", err)
		}
	default:
		query := `
			UPDATE steps SET ` + set + `
			WHERE id IN (
				SELECT id FROM steps
				WHERE ` + stepEligible("?") + `
				ORDER BY scheduled_for, id
				LIMIT ?
			)`
		if _, err := r.db.ExecContext(ctx, query, lease.ID, lease.Owner, expires, now, now, now, limit); err != nil {
			return nil, fmt.Errorf("claim steps: %w", err)
		}
	}
	return r.findByLease(ctx, lease.ID)
}

func (r *StepRepository) findByLease(ctx context.Context, leaseID string) ([]*domain.Step, error) {
	query := `SELECT ` + stepColumns + ` FROM steps WHERE lease_id = ` + placeholder(1) + ` AND status = '` + domain.StepStatusProcessing + `' ORDER BY scheduled_for, id`
	rows, err := r.db.QueryContext(ctx, query, leaseID)
	if err != nil {
		return nil, fmt.Errorf("load claimed steps: %w", err)
	}
	return scanSteps(rows)
}

// Complete records the terminal outcome of a claimed step together with its
// side effects in one transaction: the outbox message, if any, and the
// successor steps. If the step is no longer held by its lease nothing is
// written and ErrLeaseLost is returned.
func (r *StepRepository) Complete(ctx context.Context, step *domain.Step, result domain.StepResult, now time.Time) error {
	if step.LeaseID == nil {
		return ErrLeaseLost
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ts := formatDateInDatabase(now)
	query := `
		UPDATE steps
		SET status = ` + placeholder(1) + `, output = ` + placeholder(2) + `, error = ` + placeholder(3) + `,
			finished_at = ` + placeholder(4) + `, lease_expires_at = NULL
		WHERE id = ` + placeholder(5) + ` AND lease_id = ` + placeholder(6) + ` AND status = '` + domain.StepStatusProcessing + `'
	`
	res, err := tx.ExecContext(ctx, query, result.Status, nullableString(result.Output), nullableString(result.Error), ts, step.ID, *step.LeaseID)
	if err != nil {
		return fmt.Errorf("complete step %d: %w", step.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected != 1 {
		return ErrLeaseLost
	}

	if msg := result.Message; msg != nil {
		if err := insertOutboxMessage(ctx, tx, msg, now); err != nil {
			return fmt.Errorf("enqueue message for step %d: %w", step.ID, err)
		}
	}
	if result.Status == domain.StepStatusSuccess || result.Status == domain.StepStatusSkipped {
		for _, nodeID := range result.Successors {
			if err := insertQueuedStep(ctx, tx, step.RunID, nodeID, now); err != nil {
				return fmt.Errorf("fan out step %d: %w", step.ID, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	step.Status = result.Status
	step.FinishedAt = &now
	if result.Output != "" {
		step.Output = &result.Output
	}
	if result.Error != "" {
		step.Error = &result.Error
	}
	return nil
}

func (r *StepRepository) FindByRun(ctx context.Context, runID int64) ([]*domain.Step, error) {
	query := `SELECT ` + stepColumns + ` FROM steps WHERE run_id = ` + placeholder(1) + ` ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	return scanSteps(rows)
}
