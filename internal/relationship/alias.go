package relationship

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/tagyard/tagyard-server/internal/domain"
	"github.com/tagyard/tagyard-server/internal/id"
	"github.com/tagyard/tagyard-server/internal/store"
	"github.com/tagyard/tagyard-server/internal/tagname"
)

// aliasKind merges the antecedent into the consequent.
type aliasKind struct{}

func (aliasKind) ValidateInvariants(g *Graph, r *domain.Relationship) []string {
	var problems []string
	for _, other := range g.From(domain.KindAlias, r.AntecedentName, domain.Status.DuplicateRelevant) {
		if other.ID != r.ID {
			problems = append(problems, fmt.Sprintf("%s is already aliased to %s", r.AntecedentName, other.ConsequentName))
			break
		}
	}
	if other, ok := g.ActiveAlias(r.ConsequentName); ok && other.ID != r.ID {
		problems = append(problems, fmt.Sprintf("%s is already aliased to %s; alias to that tag instead", r.ConsequentName, other.ConsequentName))
	}
	return problems
}

// Snapshot records, per page of antecedent posts, which posts already carried
// the consequent so undo leaves it in place on them, and the locked tags that
// named the antecedent.
func (aliasKind) Snapshot(ctx context.Context, e *Engine, r *domain.Relationship, recorded map[string]struct{}) error {
	return e.forEachBatch(ctx, r.AntecedentName, func(ctx context.Context, ids []string) error {
		ids = unrecorded(ids, recorded)
		if len(ids) == 0 {
			return nil
		}
		entry := &domain.UndoEntry{
			ID:             id.MustGenerate(id.PrefixUndo),
			RelationshipID: r.ID,
			PostIDs:        ids,
		}
		for _, postID := range ids {
			p, err := e.store.GetPost(ctx, postID)
			if err != nil {
				if stderrors.Is(err, store.ErrNotFound) {
					continue
				}
				return err
			}
			if tagname.Contains(p.TagString, r.ConsequentName) {
				entry.KeepConsequent = append(entry.KeepConsequent, postID)
			}
			if tagname.ReplaceInText(p.LockedTags, r.AntecedentName, r.ConsequentName) != p.LockedTags {
				if entry.PriorLocked == nil {
					entry.PriorLocked = make(map[string]string)
				}
				entry.PriorLocked[postID] = p.LockedTags
			}
		}
		return e.store.CreateUndoEntry(ctx, entry)
	})
}

func (aliasKind) Propagate(ctx context.Context, e *Engine, r *domain.Relationship) (int, error) {
	if err := e.retarget(ctx, r); err != nil {
		return 0, fmt.Errorf("retarget: %w", err)
	}
	if err := reconcileCategory(ctx, e, r); err != nil {
		return 0, fmt.Errorf("reconcile category: %w", err)
	}

	ante, cons := r.AntecedentName, r.ConsequentName
	total := 0
	err := e.forEachBatch(ctx, ante, func(ctx context.Context, ids []string) error {
		n, err := e.rewritePosts(ctx, ids, func(p *domain.Post) (bool, error) {
			tags := tagname.Replace(p.TagString, ante, cons)
			locked := tagname.ReplaceInText(p.LockedTags, ante, cons)
			if tags == p.TagString && locked == p.LockedTags {
				return false, nil
			}
			p.TagString, p.LockedTags = tags, locked
			return true, nil
		})
		total += n
		return err
	})
	if err != nil {
		return total, err
	}

	users, err := e.store.RewriteBlacklists(context.WithoutCancel(ctx), ante, cons)
	if err != nil {
		return total, fmt.Errorf("rewrite blacklists: %w", err)
	}
	if users > 0 {
		e.logger.Debug("blacklists rewritten", slog.String("relationship_id", r.ID), slog.Int("users", users))
	}
	return total, e.recount(context.WithoutCancel(ctx), ante, cons)
}

// Activated moves an artist profile from the antecedent to the consequent,
// keeping the old name as an alternate.
func (aliasKind) Activated(ctx context.Context, e *Engine, r *domain.Relationship) error {
	artist, err := e.store.GetArtistByName(ctx, r.AntecedentName)
	if err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	if _, err := e.store.GetArtistByName(ctx, r.ConsequentName); err == nil {
		return nil
	} else if !stderrors.Is(err, store.ErrNotFound) {
		return err
	}

	artist.Name = r.ConsequentName
	if !slices.Contains(artist.OtherNames, r.AntecedentName) {
		artist.OtherNames = append(artist.OtherNames, r.AntecedentName)
	}
	return e.store.UpdateArtist(ctx, artist)
}

func (aliasKind) UndoStep(ctx context.Context, e *Engine, r *domain.Relationship, entry *domain.UndoEntry) (int, error) {
	ante, cons := r.AntecedentName, r.ConsequentName
	return e.rewritePosts(ctx, entry.PostIDs, func(p *domain.Post) (bool, error) {
		keep := entry.KeepsConsequent(p.ID)
		hasAnte := tagname.Contains(p.TagString, ante)
		hasCons := tagname.Contains(p.TagString, cons)

		switch {
		case hasAnte && (keep || !hasCons):
			return false, nil
		case !hasCons:
			e.undoConflict(r, p.ID, "post no longer carries "+cons)
			return false, errSkipPost
		}

		tags := p.TagString
		if !keep {
			tags = tagname.Remove(tags, cons)
		}
		p.TagString = tagname.Add(tags, ante)
		if prior, ok := entry.PriorLocked[p.ID]; ok && p.LockedTags == tagname.ReplaceInText(prior, ante, cons) {
			p.LockedTags = prior
		}
		return true, nil
	})
}

func (aliasKind) Undone(ctx context.Context, e *Engine, r *domain.Relationship) error {
	if _, err := e.store.RewriteBlacklists(ctx, r.ConsequentName, r.AntecedentName); err != nil {
		return fmt.Errorf("restore blacklists: %w", err)
	}
	return e.recount(ctx, r.AntecedentName, r.ConsequentName)
}

// reconcileCategory gives an uncategorized consequent the antecedent's category.
func reconcileCategory(ctx context.Context, e *Engine, r *domain.Relationship) error {
	ante, err := e.store.GetTag(ctx, r.AntecedentName)
	if err != nil {
		return storeErr(err, "tag %s", r.AntecedentName)
	}
	cons, err := e.store.GetTag(ctx, r.ConsequentName)
	if err != nil {
		return storeErr(err, "tag %s", r.ConsequentName)
	}
	if ante.Category == domain.CategoryGeneral || cons.Category != domain.CategoryGeneral || cons.IsLocked {
		return nil
	}
	if err := e.store.SetTagCategory(ctx, cons.Name, ante.Category); err != nil {
		return err
	}
	e.logger.Info("consequent category updated",
		slog.String("tag", cons.Name),
		slog.String("category", ante.Category.String()),
	)
	return nil
}
