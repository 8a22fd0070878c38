package models

import "time"

// AuditLog records what happened to an entity and why, including rejected
// operations. It is operational breadcrumbs, not the balance ledger.
type AuditLog struct {
	ID         string         `json:"id"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Action     string         `json:"action"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}
