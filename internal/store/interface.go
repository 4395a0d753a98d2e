// Package store defines the persistence interfaces for the tagyard server.
package store

import (
	"context"

	"github.com/tagyard/tagyard-server/internal/domain"
)

// TagStore is the canonical registry of tag names.
type TagStore interface {
	FindOrCreateTag(ctx context.Context, name string) (*domain.Tag, error)
	GetTag(ctx context.Context, name string) (*domain.Tag, error)
	SetTagCategory(ctx context.Context, name string, category domain.TagCategory) error
	// RecountTag re-derives the post count from posts and stores it.
	RecountTag(ctx context.Context, name string) (int, error)
}

// PostMutator edits a locked post in place. Returning false skips the write.
type PostMutator func(post *domain.Post) (changed bool, err error)

// PostStore holds posts and their tag strings.
type PostStore interface {
	CreatePost(ctx context.Context, post *domain.Post) error
	GetPost(ctx context.Context, id string) (*domain.Post, error)
	// ScanPostIDsByTag pages through ids of posts carrying tag, ordered by id,
	// starting after afterID.
	ScanPostIDsByTag(ctx context.Context, tag, afterID string, limit int) ([]string, error)
	// WithPostLock runs fn against the current post under the per-post lock and
	// writes tag_string and locked_tags back without recording a version.
	WithPostLock(ctx context.Context, id string, fn PostMutator) error
	// UpdatePostTags is an ordinary edit: it takes the same lock and records a version.
	UpdatePostTags(ctx context.Context, id, tagString string, actor domain.Actor) (*domain.Post, error)
	ListPostVersions(ctx context.Context, id string) ([]*domain.PostVersion, error)
}

// UserStore holds accounts and their blacklists.
type UserStore interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUser(ctx context.Context, id string) (*domain.User, error)
	// RewriteBlacklists replaces the token from with to in every blacklist
	// containing it and returns the number of users changed.
	RewriteBlacklists(ctx context.Context, from, to string) (int, error)
}

// RelationshipStore persists aliases and implications.
type RelationshipStore interface {
	CreateRelationship(ctx context.Context, r *domain.Relationship) error
	GetRelationship(ctx context.Context, id string) (*domain.Relationship, error)
	UpdateRelationship(ctx context.Context, r *domain.Relationship) error
	// DeleteRelationship removes the row and its undo entries.
	DeleteRelationship(ctx context.Context, id string) error
	ListRelationships(ctx context.Context, filter domain.RelationshipFilter) ([]*domain.Relationship, error)
}

// UndoStore persists the undo ledger.
type UndoStore interface {
	CreateUndoEntry(ctx context.Context, entry *domain.UndoEntry) error
	ListUndoEntries(ctx context.Context, relationshipID string) ([]*domain.UndoEntry, error)
	MarkUndoEntryApplied(ctx context.Context, id string) error
	DeleteUndoEntries(ctx context.Context, relationshipID string) error
}

// ForumStore holds discussion topics and posts.
type ForumStore interface {
	CreateForumTopic(ctx context.Context, topic *domain.ForumTopic) error
	GetForumTopic(ctx context.Context, id string) (*domain.ForumTopic, error)
	CreateForumPost(ctx context.Context, post *domain.ForumPost) error
	ListForumPosts(ctx context.Context, topicID string) ([]*domain.ForumPost, error)
}

// ArtistStore holds artist profiles keyed by tag name.
type ArtistStore interface {
	CreateArtist(ctx context.Context, artist *domain.Artist) error
	GetArtistByName(ctx context.Context, name string) (*domain.Artist, error)
	UpdateArtist(ctx context.Context, artist *domain.Artist) error
}

// AuditStore is the moderation log.
type AuditStore interface {
	RecordModAction(ctx context.Context, action *domain.ModAction) error
	ListModActions(ctx context.Context, limit int) ([]*domain.ModAction, error)
}

// Store aggregates every persistence interface.
type Store interface {
	TagStore
	PostStore
	UserStore
	RelationshipStore
	UndoStore
	ForumStore
	ArtistStore
	AuditStore

	Close() error
}
