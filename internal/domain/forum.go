package domain

import "time"

// ForumTopic is a discussion thread a relationship may link to.
type ForumTopic struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatorID string    `json:"creator_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ForumPost is a message in a topic.
type ForumPost struct {
	ID        string    `json:"id"`
	TopicID   string    `json:"topic_id"`
	CreatorID string    `json:"creator_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// NotifyEvent names a relationship announcement.
type NotifyEvent string

const (
	EventApproved NotifyEvent = "approved"
	EventRejected NotifyEvent = "rejected"
	EventFailed   NotifyEvent = "failed"
	EventUndone   NotifyEvent = "undone"
)
