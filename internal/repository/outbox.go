package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/RealZimboGuy/leadflow/internal/domain"
)

type OutboxRepository struct {
	db *sql.DB
}

func NewOutboxRepository(db *sql.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

const outboxColumns = "id, tenant_id, run_id, step_id, channel, recipient, payload, status, attempt, lease_id, lease_owner, lease_expires_at, sent_at, provider_message_id, error, created"

func scanMessages(rows *sql.Rows) ([]*domain.OutboxMessage, error) {
	defer rows.Close()
	var msgs []*domain.OutboxMessage
	for rows.Next() {
		var m domain.OutboxMessage
		if err := rows.Scan(&m.ID, &m.TenantID, &m.RunID, &m.StepID, &m.Channel, &m.To, &m.Payload, &m.Status, &m.Attempt,
			&m.LeaseID, &m.LeaseOwner, &m.LeaseExpiresAt, &m.SentAt, &m.ProviderMessageID, &m.Error, &m.Created); err != nil {
			return nil, err
		}
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

// insertOutboxMessage queues a message inside a step completion. There is at
// most one message per step, so a step executed again after a lease reclaim
// cannot queue a second one.
func insertOutboxMessage(ctx context.Context, tx *sql.Tx, m *domain.OutboxMessage, now time.Time) error {
	query := insertIgnore("outbox_messages", "tenant_id, run_id, step_id, channel, recipient, payload, status, attempt, created", placeholders(1, 9))
	_, err := tx.ExecContext(ctx, query, m.TenantID, m.RunID, m.StepID, m.Channel, m.To, m.Payload,
		domain.MessageStatusQueued, 0, formatDateInDatabase(now))
	return err
}

func outboxEligible(nowParam string) string {
	return `status = '` + domain.MessageStatusQueued + `'
		OR (status = '` + domain.MessageStatusProcessing + `' AND lease_expires_at IS NOT NULL AND ` + dateCompare("lease_expires_at", "<", nowParam) + `)`
}

// Claim leases up to limit queued messages, oldest first, using the same
// single-statement pattern as step claims.
func (r *OutboxRepository) Claim(ctx context.Context, lease domain.Lease, limit int) ([]*domain.OutboxMessage, error) {
	now := formatDateInDatabase(lease.Now)
	expires := formatDateInDatabase(lease.ExpiresAt)
	set := `status = '` + domain.MessageStatusProcessing + `', lease_id = ` + placeholder(1) + `, lease_owner = ` + placeholder(2) +
		`, lease_expires_at = ` + placeholder(3) + `, attempt = attempt + 1`

	switch {
	case isPostgres():
		query := `
			UPDATE outbox_messages SET ` + set + `
			WHERE id IN (
				SELECT id FROM outbox_messages
				WHERE ` + outboxEligible(placeholder(4)) + `
				ORDER BY id
				LIMIT ` + placeholder(5) + `
				FOR UPDATE SKIP LOCKED
			)
			RETURNING ` + outboxColumns
		rows, err := r.db.QueryContext(ctx, query, lease.ID, lease.Owner, expires, now, limit)
		if err != nil {
			return nil, fmt.Errorf("claim outbox: %w", err)
		}
		msgs, err := scanMessages(rows)
		if err != nil {
			return nil, err
		}
		sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID < msgs[j].ID })
		return msgs, nil
	case isMysql():
		query := `UPDATE outbox_messages SET ` + set + ` WHERE ` + outboxEligible("?") + ` ORDER BY id LIMIT ?`
		if _, err := r.db.ExecContext(ctx, query, lease.ID, lease.Owner, expires, now, limit); err != nil {
			return nil, fmt.Errorf("claim outbox: %w", err)
		}
	default:
		query := `
			UPDATE outbox_messages SET ` + set + `
			WHERE id IN (
				SELECT id FROM outbox_messages
				WHERE ` + outboxEligible("?") + `
				ORDER BY id
				LIMIT ?
			)`
		if _, err := r.db.ExecContext(ctx, query, lease.ID, lease.Owner, expires, now, limit); err != nil {
			return nil, fmt.Errorf("claim outbox: %w", err)
		}
	}

	query := `SELECT ` + outboxColumns + ` FROM outbox_messages WHERE lease_id = ` + placeholder(1) +
		` AND status = '` + domain.MessageStatusProcessing + `' ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, lease.ID)
	if err != nil {
		return nil, fmt.Errorf("load claimed messages: %w", err)
	}
	return scanMessages(rows)
}

func (r *OutboxRepository) MarkSent(ctx context.Context, m *domain.OutboxMessage, providerMessageID string, now time.Time) error {
	query := `
		UPDATE outbox_messages
		SET status = '` + domain.MessageStatusSent + `', sent_at = ` + placeholder(1) + `, provider_message_id = ` + placeholder(2) + `, lease_expires_at = NULL
		WHERE id = ` + placeholder(3) + ` AND lease_id = ` + placeholder(4) + ` AND status = '` + domain.MessageStatusProcessing + `'
	`
	if err := r.finish(ctx, m, query, formatDateInDatabase(now), nullableString(providerMessageID)); err != nil {
		return err
	}
	m.Status = domain.MessageStatusSent
	m.SentAt = &now
	if providerMessageID != "" {
		m.ProviderMessageID = &providerMessageID
	}
	return nil
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, m *domain.OutboxMessage, reason string, now time.Time) error {
	query := `
		UPDATE outbox_messages
		SET status = '` + domain.MessageStatusFailed + `', error = ` + placeholder(1) + `, lease_expires_at = NULL
		WHERE id = ` + placeholder(2) + ` AND lease_id = ` + placeholder(3) + ` AND status = '` + domain.MessageStatusProcessing + `'
	`
	if err := r.finish(ctx, m, query, reason); err != nil {
		return err
	}
	m.Status = domain.MessageStatusFailed
	m.Error = &reason
	return nil
}

func (r *OutboxRepository) finish(ctx context.Context, m *domain.OutboxMessage, query string, args ...interface{}) error {
	if m.LeaseID == nil {
		return ErrLeaseLost
	}
	args = append(args, m.ID, *m.LeaseID)
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("finish message %d: %w", m.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected != 1 {
		return ErrLeaseLost
	}
	return nil
}

func (r *OutboxRepository) FindByRun(ctx context.Context, runID int64) ([]*domain.OutboxMessage, error) {
	query := `SELECT ` + outboxColumns + ` FROM outbox_messages WHERE run_id = ` + placeholder(1) + ` ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}
