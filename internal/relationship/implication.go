package relationship

import (
	"context"
	stderrors "errors"
	"fmt"
	"slices"

	"github.com/tagyard/tagyard-server/internal/domain"
	"github.com/tagyard/tagyard-server/internal/id"
	"github.com/tagyard/tagyard-server/internal/store"
	"github.com/tagyard/tagyard-server/internal/tagname"
)

// implicationKind adds the consequent, and everything it implies, to every
// post carrying the antecedent.
type implicationKind struct{}

func (implicationKind) ValidateInvariants(g *Graph, r *domain.Relationship) []string {
	ante, cons := r.AntecedentName, r.ConsequentName
	var problems []string

	for _, other := range g.From(domain.KindImplication, ante, domain.Status.DuplicateRelevant) {
		if other.ID != r.ID && other.ConsequentName == cons {
			problems = append(problems, fmt.Sprintf("%s already implies %s", ante, cons))
			break
		}
	}

	if slices.Contains(g.Closure([]string{cons}, isCycleRelevant), ante) {
		problems = append(problems, fmt.Sprintf("implication %s -> %s would create a cycle", ante, cons))
	}

	for _, other := range g.From(domain.KindImplication, ante, isActive) {
		if other.ID != r.ID && other.ConsequentName != cons && slices.Contains(other.DescendantNames, cons) {
			problems = append(problems, fmt.Sprintf("%s already implies %s through %s", ante, cons, other.ConsequentName))
			break
		}
	}

	for _, name := range []string{ante, cons} {
		if alias, ok := g.ActiveAlias(name); ok {
			problems = append(problems, fmt.Sprintf("%s is aliased to %s", name, alias.ConsequentName))
		}
	}
	return problems
}

// Snapshot stores each antecedent post's full tag string.
func (implicationKind) Snapshot(ctx context.Context, e *Engine, r *domain.Relationship, recorded map[string]struct{}) error {
	return e.forEachBatch(ctx, r.AntecedentName, func(ctx context.Context, ids []string) error {
		ids = unrecorded(ids, recorded)
		if len(ids) == 0 {
			return nil
		}
		entry := &domain.UndoEntry{
			ID:             id.MustGenerate(id.PrefixUndo),
			RelationshipID: r.ID,
			PostIDs:        make([]string, 0, len(ids)),
			PriorTags:      make(map[string]string, len(ids)),
		}
		for _, postID := range ids {
			p, err := e.store.GetPost(ctx, postID)
			if err != nil {
				if stderrors.Is(err, store.ErrNotFound) {
					continue
				}
				return err
			}
			entry.PostIDs = append(entry.PostIDs, postID)
			entry.PriorTags[postID] = p.TagString
		}
		return e.store.CreateUndoEntry(ctx, entry)
	})
}

func (implicationKind) Propagate(ctx context.Context, e *Engine, r *domain.Relationship) (int, error) {
	implied := e.graph.Closure([]string{r.ConsequentName}, isActive)

	total := 0
	err := e.forEachBatch(ctx, r.AntecedentName, func(ctx context.Context, ids []string) error {
		n, err := e.rewritePosts(ctx, ids, func(p *domain.Post) (bool, error) {
			tags := tagname.Add(p.TagString, implied...)
			if tags == p.TagString {
				return false, nil
			}
			p.TagString = tags
			return true, nil
		})
		total += n
		return err
	})
	if err != nil {
		return total, err
	}
	return total, e.recount(context.WithoutCancel(ctx), implied...)
}

// Activated refreshes the cached closures of every implication above r.
func (implicationKind) Activated(ctx context.Context, e *Engine, r *domain.Relationship) error {
	return e.cascade(ctx, r.AntecedentName)
}

// UndoStep removes the tags the approval added, unless the post's remaining
// tags still imply them through another active implication.
func (implicationKind) UndoStep(ctx context.Context, e *Engine, r *domain.Relationship, entry *domain.UndoEntry) (int, error) {
	added := tagname.Set(append(slices.Clone(r.DescendantNames), r.ConsequentName))

	return e.rewritePosts(ctx, entry.PostIDs, func(p *domain.Post) (bool, error) {
		prior, ok := entry.PriorTags[p.ID]
		if !ok {
			e.undoConflict(r, p.ID, "no prior tags recorded")
			return false, errSkipPost
		}
		current := tagname.Split(p.TagString)
		if !slices.Contains(current, r.AntecedentName) {
			e.undoConflict(r, p.ID, "post no longer carries "+r.AntecedentName)
			return false, errSkipPost
		}

		before := tagname.Split(prior)
		var candidates []string
		for _, name := range added {
			if slices.Contains(current, name) && !slices.Contains(before, name) {
				candidates = append(candidates, name)
			}
		}
		if len(candidates) == 0 {
			return false, nil
		}

		remove := e.stillUnimplied(current, candidates)
		if len(remove) == 0 {
			return false, nil
		}
		p.TagString = tagname.Remove(p.TagString, remove...)
		return true, nil
	})
}

// Undone refreshes the counts of every tag the implication may have added.
func (implicationKind) Undone(ctx context.Context, e *Engine, r *domain.Relationship) error {
	return e.recount(ctx, tagname.Set(append(slices.Clone(r.DescendantNames), r.ConsequentName))...)
}

// stillUnimplied returns the candidates that no active implication reaches
// from the rest of tags. A kept candidate can itself keep others, so the
// search repeats until nothing new is kept.
func (e *Engine) stillUnimplied(tags, candidates []string) []string {
	seeds := slices.DeleteFunc(slices.Clone(tags), func(t string) bool {
		return slices.Contains(candidates, t)
	})
	kept := make(map[string]struct{})
	for {
		reached := e.graph.Closure(seeds, isActive)
		grew := false
		for _, c := range candidates {
			if _, done := kept[c]; done {
				continue
			}
			if _, found := slices.BinarySearch(reached, c); found {
				kept[c] = struct{}{}
				seeds = append(seeds, c)
				grew = true
			}
		}
		if !grew {
			break
		}
	}

	var remove []string
	for _, c := range candidates {
		if _, ok := kept[c]; !ok {
			remove = append(remove, c)
		}
	}
	return remove
}
