package domain

import "time"

const (
	GraphStatusDraft  = "draft"
	GraphStatusActive = "active"
	GraphStatusPaused = "paused"
)

const (
	NodeKindTrigger = "trigger"
	NodeKindAction  = "action"
)

// Graph is a tenant-owned automation. The engine only reads graphs.
type Graph struct {
	ID       int64     `json:"id"`
	TenantID string    `json:"tenantId"`
	Name     string    `json:"name"`
	Status   string    `json:"status"`
	Created  time.Time `json:"created"`
	Updated  time.Time `json:"updated"`
}

type Node struct {
	ID      int64  `json:"id"`
	GraphID int64  `json:"graphId"`
	Kind    string `json:"kind"`
	Config  string `json:"config"` // raw JSON, parsed by the actions package
}

type Edge struct {
	ID         int64 `json:"id"`
	GraphID    int64 `json:"graphId"`
	FromNodeID int64 `json:"fromNodeId"`
	ToNodeID   int64 `json:"toNodeId"`
}
