package domain

import (
	"slices"
	"strings"
	"time"
)

// RelationshipKind distinguishes aliases from implications.
type RelationshipKind string

const (
	// KindAlias merges the antecedent into the consequent.
	KindAlias RelationshipKind = "alias"
	// KindImplication makes the antecedent entail the consequent.
	KindImplication RelationshipKind = "implication"
)

// Valid reports whether k is a known kind.
func (k RelationshipKind) Valid() bool {
	return k == KindAlias || k == KindImplication
}

// Status is the lifecycle state of a relationship.
// Failures are stored as "error: <message>".
type Status string

const (
	StatusPending    Status = "pending"
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusActive     Status = "active"
	StatusDeleted    Status = "deleted"
	StatusRetired    Status = "retired"

	errorStatusPrefix = "error: "
)

// ErrorStatus builds the parked failure status for msg.
func ErrorStatus(msg string) Status {
	return Status(errorStatusPrefix + msg)
}

// IsError reports whether the relationship is parked after a failure.
func (s Status) IsError() bool {
	return strings.HasPrefix(string(s), errorStatusPrefix)
}

// ErrorMessage returns the failure message of an error status.
func (s Status) ErrorMessage() string {
	return strings.TrimPrefix(string(s), errorStatusPrefix)
}

// InFlight reports whether the relationship is waiting for or running a job.
func (s Status) InFlight() bool {
	return s == StatusQueued || s == StatusProcessing
}

// DuplicateRelevant reports whether a relationship in this status blocks another
// proposal with the same antecedent.
func (s Status) DuplicateRelevant() bool {
	return s == StatusPending || s.InFlight() || s == StatusActive
}

// Retargetable reports whether edges in this status follow a merged tag.
func (s Status) Retargetable() bool {
	return s != StatusDeleted && s != StatusRetired
}

// Relationship is a directed edge antecedent -> consequent between two tags.
type Relationship struct {
	ID             string           `json:"id"`
	Kind           RelationshipKind `json:"kind"`
	AntecedentName string           `json:"antecedent_name"`
	ConsequentName string           `json:"consequent_name"`
	Status         Status           `json:"status"`

	CreatorID  string `json:"creator_id"`
	CreatorIP  string `json:"creator_ip,omitempty"`
	ApproverID string `json:"approver_id,omitempty"`

	ForumTopicID string `json:"forum_topic_id,omitempty"`
	ForumPostID  string `json:"forum_post_id,omitempty"`

	// PostCount is the antecedent's post count captured at activation.
	PostCount int `json:"post_count"`

	// DescendantNames is the cached implication closure of AntecedentName.
	// Always empty for aliases.
	DescendantNames []string `json:"descendant_names,omitempty"`

	// UndoRequestedAt is set while an undo is pending or has failed and may be retried.
	UndoRequestedAt *time.Time `json:"undo_requested_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Touch updates the UpdatedAt timestamp.
func (r *Relationship) Touch() {
	r.UpdatedAt = time.Now()
}

// IsActive reports whether the relationship currently shapes the tag graph.
func (r *Relationship) IsActive() bool {
	return r.Status == StatusActive
}

// IsAlias reports whether the relationship is an alias.
func (r *Relationship) IsAlias() bool {
	return r.Kind == KindAlias
}

// UndoPending reports whether an undo has been requested and not yet completed.
func (r *Relationship) UndoPending() bool {
	return r.Status == StatusPending && r.UndoRequestedAt != nil
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (r *Relationship) Clone() *Relationship {
	c := *r
	c.DescendantNames = slices.Clone(r.DescendantNames)
	if r.UndoRequestedAt != nil {
		t := *r.UndoRequestedAt
		c.UndoRequestedAt = &t
	}
	return &c
}

// Transition is the background work requested for a relationship.
type Transition string

const (
	TransitionApprove Transition = "approve"
	TransitionUndo    Transition = "undo"
)

// RelationshipFilter narrows relationship listings.
type RelationshipFilter struct {
	Kind   RelationshipKind
	Status Status
	// Name matches either endpoint exactly.
	Name   string
	Limit  int
	Offset int
}
