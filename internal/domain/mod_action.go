package domain

import "time"

// ModActionKind categorizes audit log entries.
type ModActionKind string

const (
	ModActionCreate       ModActionKind = "relationship_create"
	ModActionStatusChange ModActionKind = "relationship_status_change"
	ModActionRetarget     ModActionKind = "relationship_retarget"
	ModActionDestroy      ModActionKind = "relationship_destroy"
)

// ModAction is an audit log row.
type ModAction struct {
	ID        string         `json:"id"`
	Kind      ModActionKind  `json:"kind"`
	CreatorID string         `json:"creator_id"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}
