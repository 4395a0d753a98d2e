package relationship

import (
	"context"

	"github.com/tagyard/tagyard-server/internal/domain"
)

// Kind holds the behavior that differs between aliases and implications.
// The engine owns the lifecycle; a Kind only knows how its edges constrain the
// graph and how they rewrite posts.
type Kind interface {
	// ValidateInvariants returns the graph rules r would break, excluding r itself.
	ValidateInvariants(g *Graph, r *domain.Relationship) []string

	// Snapshot records the undo ledger for r before any post is touched.
	// Posts in recorded already have ledger entries and are left out.
	Snapshot(ctx context.Context, e *Engine, r *domain.Relationship, recorded map[string]struct{}) error

	// Propagate applies r to every affected post. It must be safe to re-run
	// after a partial failure. It returns the number of posts rewritten.
	Propagate(ctx context.Context, e *Engine, r *domain.Relationship) (int, error)

	// Activated runs after r is committed as active.
	Activated(ctx context.Context, e *Engine, r *domain.Relationship) error

	// UndoStep reverts the posts of one ledger entry.
	UndoStep(ctx context.Context, e *Engine, r *domain.Relationship, entry *domain.UndoEntry) (int, error)

	// Undone runs after every ledger entry has been replayed.
	Undone(ctx context.Context, e *Engine, r *domain.Relationship) error
}

func defaultKinds() map[domain.RelationshipKind]Kind {
	return map[domain.RelationshipKind]Kind{
		domain.KindAlias:       aliasKind{},
		domain.KindImplication: implicationKind{},
	}
}
