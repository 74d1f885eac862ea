package models

import "github.com/RealZimboGuy/leadflow/internal/domain"

type IngestResponse struct {
	Triggered int `json:"triggered"`
}

type QueuedResponse struct {
	Queued  bool   `json:"queued"`
	EventID string `json:"eventId,omitempty"`
}

type TickResponse struct {
	Processed int `json:"processed"`
}

// RunResponse is a run with everything it produced so far.
type RunResponse struct {
	Run      *domain.Run             `json:"run"`
	Steps    []*domain.Step          `json:"steps"`
	Messages []*domain.OutboxMessage `json:"messages"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
