package domain

import "time"

// Audit trail entry types.
const (
	ActionTypeReclaimed = "RECLAIMED"
	ActionTypeSuccess   = "SUCCESS"
	ActionTypeSkipped   = "SKIPPED"
	ActionTypeFailed    = "FAILED"
	ActionTypeLeaseLost = "LEASE_LOST"
)

type StepAction struct {
	ID         int64     `json:"id"`
	RunID      int64     `json:"runId"`
	StepID     int64     `json:"stepId"`
	ExecutorID int64     `json:"executorId"`
	Type       string    `json:"type"`
	Name       string    `json:"name"`
	Text       string    `json:"text"`
	DateTime   time.Time `json:"dateTime"`
}
