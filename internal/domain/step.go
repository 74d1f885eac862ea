package domain

import "time"

const (
	StepStatusQueued     = "queued"
	StepStatusProcessing = "processing"
	StepStatusSuccess    = "success"
	StepStatusSkipped    = "skipped"
	StepStatusFailed     = "failed"
)

// Step failure and skip reasons recorded in Step.Error.
const (
	ReasonMissingRunOrNode    = "missing_run_or_node"
	ReasonNonActionNode       = "non_action_node"
	ReasonInvalidActionConfig = "invalid_action_config"
)

type Step struct {
	ID             int64      `json:"id"`
	RunID          int64      `json:"runId"`
	NodeID         int64      `json:"nodeId"`
	Status         string     `json:"status"`
	ScheduledFor   time.Time  `json:"scheduledFor"`
	Attempt        int        `json:"attempt"`
	LeaseID        *string    `json:"leaseId,omitempty"`
	LeaseOwner     *string    `json:"leaseOwner,omitempty"`
	LeaseExpiresAt *time.Time `json:"leaseExpiresAt,omitempty"`
	ClaimedAt      *time.Time `json:"claimedAt,omitempty"`
	Output         *string    `json:"output,omitempty"`
	Error          *string    `json:"error,omitempty"`
	FinishedAt     *time.Time `json:"finishedAt,omitempty"`
	Created        time.Time  `json:"created"`
}

// Terminal reports whether no further transition is allowed.
func (s *Step) Terminal() bool {
	return IsTerminalStepStatus(s.Status)
}

func IsTerminalStepStatus(status string) bool {
	return status == StepStatusSuccess || status == StepStatusSkipped || status == StepStatusFailed
}

// StepResult is the terminal outcome of executing a claimed step.
type StepResult struct {
	Status string
	Output string // JSON, empty when none
	Error  string
	// Message is set when the step produced an outbox message.
	Message *OutboxMessage
	// Successors are the node ids to enqueue; only set for success and skipped.
	Successors []int64
}
