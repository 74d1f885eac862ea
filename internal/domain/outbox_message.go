package domain

import "time"

const (
	MessageStatusQueued     = "queued"
	MessageStatusProcessing = "processing"
	MessageStatusSent       = "sent"
	MessageStatusFailed     = "failed"
)

const ReasonNoSender = "no_sender_for_channel"

type OutboxMessage struct {
	ID                int64      `json:"id"`
	TenantID          string     `json:"tenantId"`
	RunID             int64      `json:"runId"`
	StepID            int64      `json:"stepId"`
	Channel           string     `json:"channel"`
	To                string     `json:"to"`
	Payload           string     `json:"payload"`
	Status            string     `json:"status"`
	Attempt           int        `json:"attempt"`
	LeaseID           *string    `json:"leaseId,omitempty"`
	LeaseOwner        *string    `json:"leaseOwner,omitempty"`
	LeaseExpiresAt    *time.Time `json:"leaseExpiresAt,omitempty"`
	SentAt            *time.Time `json:"sentAt,omitempty"`
	ProviderMessageID *string    `json:"providerMessageId,omitempty"`
	Error             *string    `json:"error,omitempty"`
	Created           time.Time  `json:"created"`
}

// MessagePayload is the JSON stored in OutboxMessage.Payload.
type MessagePayload struct {
	Subject string         `json:"subject,omitempty"`
	Body    string         `json:"body"`
	Context map[string]any `json:"context"`
}
