// Package sse streams relationship lifecycle events to connected moderators.
package sse

import (
	"time"

	"github.com/tagyard/tagyard-server/internal/domain"
)

// EventType represents the type of SSE Event.
type EventType string

const (
	EventRelationshipProposed EventType = "relationship.proposed"
	EventRelationshipQueued   EventType = "relationship.queued"
	EventRelationshipApproved EventType = "relationship.approved"
	EventRelationshipRejected EventType = "relationship.rejected"
	EventRelationshipFailed   EventType = "relationship.failed"
	EventRelationshipUndone   EventType = "relationship.undone"

	EventHeartbeat EventType = "heartbeat"
)

// Event is one message on the stream.
type Event struct {
	Type      EventType `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// UserID limits delivery to one user; empty means everyone.
	UserID string `json:"-"`
	// ModeratorOnly hides the event from ordinary members.
	ModeratorOnly bool `json:"-"`
}

// RelationshipEventData is the payload of relationship events.
type RelationshipEventData struct {
	Relationship *domain.Relationship `json:"relationship"`
	Message      string               `json:"message,omitempty"`
}

// NewRelationshipEvent builds the event announcing ev for r.
func NewRelationshipEvent(ev domain.NotifyEvent, r *domain.Relationship, message string) Event {
	t := map[domain.NotifyEvent]EventType{
		domain.EventApproved: EventRelationshipApproved,
		domain.EventRejected: EventRelationshipRejected,
		domain.EventFailed:   EventRelationshipFailed,
		domain.EventUndone:   EventRelationshipUndone,
	}[ev]
	return Event{
		Type:      t,
		Data:      RelationshipEventData{Relationship: r, Message: message},
		Timestamp: time.Now(),
	}
}

// NewProposedEvent announces a new proposal to moderators.
func NewProposedEvent(r *domain.Relationship) Event {
	return Event{
		Type:          EventRelationshipProposed,
		Data:          RelationshipEventData{Relationship: r},
		Timestamp:     time.Now(),
		ModeratorOnly: true,
	}
}

// NewQueuedEvent tells the approver their job is waiting.
func NewQueuedEvent(r *domain.Relationship, transition domain.Transition) Event {
	return Event{
		Type:          EventRelationshipQueued,
		Data:          RelationshipEventData{Relationship: r, Message: string(transition)},
		Timestamp:     time.Now(),
		ModeratorOnly: true,
	}
}

// NewHeartbeatEvent creates a keepalive event.
func NewHeartbeatEvent() Event {
	return Event{Type: EventHeartbeat, Timestamp: time.Now()}
}
