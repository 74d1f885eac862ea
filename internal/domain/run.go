package domain

import "time"

const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Run is one execution of a graph for one matched event. Context is the
// JSON snapshot of the event and never changes after insert.
type Run struct {
	ID            int64      `json:"id"`
	GraphID       int64      `json:"graphId"`
	TenantID      string     `json:"tenantId"`
	TriggerNodeID int64      `json:"triggerNodeId"`
	EventKey      string     `json:"eventKey"`
	Status        string     `json:"status"`
	Context       string     `json:"context"`
	Created       time.Time  `json:"created"`
	FinishedAt    *time.Time `json:"finishedAt,omitempty"`
}
