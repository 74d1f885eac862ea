package domain

import "time"

const EventKindStageChanged = "lead.stage_changed"

// Event is a domain event accepted by ingress, e.g. a lead moving stage.
type Event struct {
	EventID     string         `json:"eventId,omitempty"`
	TenantID    string         `json:"tenantId"`
	EntityID    string         `json:"entityId"`
	EventKind   string         `json:"eventKind"`
	FromStageID string         `json:"fromStageId,omitempty"`
	ToStageID   string         `json:"toStageId,omitempty"`
	ActorID     string         `json:"actorId,omitempty"`
	OccurredAt  *time.Time     `json:"occurredAt,omitempty"`
	Attributes  map[string]any `json:"attributes,omitempty"`
}

// ContextMap flattens the event into the snapshot stored on every Run.
func (e *Event) ContextMap() map[string]any {
	m := make(map[string]any, len(e.Attributes)+7)
	for k, v := range e.Attributes {
		m[k] = v
	}
	m["tenantId"] = e.TenantID
	m["entityId"] = e.EntityID
	m["eventKind"] = e.EventKind
	if e.FromStageID != "" {
		m["fromStageId"] = e.FromStageID
	}
	if e.ToStageID != "" {
		m["toStageId"] = e.ToStageID
	}
	if e.ActorID != "" {
		m["actorId"] = e.ActorID
	}
	if e.OccurredAt != nil {
		m["occurredAt"] = e.OccurredAt.UTC().Format(time.RFC3339Nano)
	}
	return m
}
