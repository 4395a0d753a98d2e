// Package notify announces relationship transitions on the forum and the
// event stream, and writes the moderation log.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tagyard/tagyard-server/internal/domain"
	"github.com/tagyard/tagyard-server/internal/id"
	"github.com/tagyard/tagyard-server/internal/sse"
	"github.com/tagyard/tagyard-server/internal/store"
)

// Emitter receives stream events.
type Emitter interface {
	Emit(event sse.Event)
}

// Notifier posts to a relationship's forum topic and broadcasts an event.
type Notifier struct {
	forum   store.ForumStore
	emitter Emitter
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. A nil emitter only writes forum posts.
func NewNotifier(forum store.ForumStore, emitter Emitter, logger *slog.Logger) *Notifier {
	return &Notifier{forum: forum, emitter: emitter, logger: logger}
}

// Announce reports ev for r. The forum post is skipped when r has no topic.
func (n *Notifier) Announce(ctx context.Context, r *domain.Relationship, ev domain.NotifyEvent, message string) error {
	if n.emitter != nil {
		n.emitter.Emit(sse.NewRelationshipEvent(ev, r, message))
	}

	if r.ForumTopicID == "" {
		return nil
	}

	post := &domain.ForumPost{
		ID:        id.MustGenerate(id.PrefixForumPost),
		TopicID:   r.ForumTopicID,
		CreatorID: domain.SystemActor.UserID,
		Body:      Body(r, ev, message),
	}
	if err := n.forum.CreateForumPost(ctx, post); err != nil {
		return fmt.Errorf("post announcement: %w", err)
	}
	n.logger.Debug("announced relationship",
		slog.String("relationship_id", r.ID),
		slog.String("event", string(ev)),
		slog.String("forum_post_id", post.ID),
	)
	return nil
}

// Body renders the forum announcement.
func Body(r *domain.Relationship, ev domain.NotifyEvent, message string) string {
	edge := fmt.Sprintf("The tag %s [[%s]] -> [[%s]]", r.Kind, r.AntecedentName, r.ConsequentName)
	var body string
	switch ev {
	case domain.EventApproved:
		body = edge + " has been approved."
	case domain.EventRejected:
		body = edge + " has been rejected."
	case domain.EventUndone:
		body = edge + " has been undone."
	case domain.EventFailed:
		body = edge + " failed during processing."
	default:
		body = edge + " changed."
	}
	if message != "" {
		body += "\n\n" + message
	}
	return body
}

// Auditor writes mod_actions rows.
type Auditor struct {
	store store.AuditStore
}

// NewAuditor creates an Auditor.
func NewAuditor(s store.AuditStore) *Auditor {
	return &Auditor{store: s}
}

// Record appends one audit entry.
func (a *Auditor) Record(ctx context.Context, kind domain.ModActionKind, actor domain.Actor, payload map[string]any) error {
	return a.store.RecordModAction(ctx, &domain.ModAction{
		ID:        id.MustGenerate(id.PrefixModAction),
		Kind:      kind,
		CreatorID: actor.UserID,
		Payload:   payload,
	})
}
