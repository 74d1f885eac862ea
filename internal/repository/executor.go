package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/RealZimboGuy/leadflow/internal/domain"
)

// ExecutorRepository records the engine processes that claim work.
type ExecutorRepository struct {
	db *sql.DB
}

func NewExecutorRepository(db *sql.DB) *ExecutorRepository {
	return &ExecutorRepository{db: db}
}

// Save registers an executor and returns its ID.
func (r *ExecutorRepository) Save(e *domain.Executor) (int64, error) {
	started := e.Started
	if started.IsZero() {
		started = time.Now()
	}
	lastActive := e.LastActive
	if lastActive.IsZero() {
		lastActive = started
	}
	base := `INSERT INTO executors (name, started, last_active) VALUES (` + placeholders(1, 3) + `)`
	id, err := insertReturningID(context.Background(), r.db, base, e.Name, formatDateInDatabase(started), formatDateInDatabase(lastActive))
	if err != nil {
		return 0, err
	}
	e.ID = id
	e.Started = started
	e.LastActive = lastActive
	return e.ID, nil
}

// UpdateLastActive is the heartbeat of a running executor.
func (r *ExecutorRepository) UpdateLastActive(id int64, ts time.Time) error {
	query := `UPDATE executors SET last_active = ` + placeholder(1) + ` WHERE id = ` + placeholder(2)
	_, err := r.db.Exec(query, formatDateInDatabase(ts), id)
	return err
}

func (r *ExecutorRepository) GetExecutorsByLastActive(limit int) ([]*domain.Executor, error) {
	query := `
		SELECT id, name, started, last_active
		FROM executors
		ORDER BY last_active DESC
		LIMIT ` + placeholder(1) + `
	`
	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var executors []*domain.Executor
	for rows.Next() {
		var e domain.Executor
		if err := rows.Scan(&e.ID, &e.Name, &e.Started, &e.LastActive); err != nil {
			return nil, err
		}
		executors = append(executors, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return executors, nil
}
