package relationship

import (
	"context"
	"log/slog"
	"slices"

	"github.com/tagyard/tagyard-server/internal/domain"
)

// cascade recomputes the cached closure of every active implication that can
// reach name, walking upward one antecedent at a time. Callers hold e.mu.
func (e *Engine) cascade(ctx context.Context, name string) error {
	defer e.graph.InvalidateAncestors()

	visited := make(map[string]struct{})
	queue := []string{name}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, parent := range e.graph.To(domain.KindImplication, current, isActive) {
			if _, seen := visited[parent.ID]; seen {
				continue
			}
			visited[parent.ID] = struct{}{}

			if err := e.refreshDescendants(ctx, parent); err != nil {
				return err
			}
			queue = append(queue, parent.AntecedentName)
		}
	}
	return nil
}

// refreshDescendants stores r's closure if it changed. Callers hold e.mu.
func (e *Engine) refreshDescendants(ctx context.Context, r *domain.Relationship) error {
	desc := e.graph.Closure([]string{r.ConsequentName}, isActive)
	if slices.Equal(desc, r.DescendantNames) {
		return nil
	}
	r.DescendantNames = desc
	r.Touch()
	return e.save(ctx, r)
}

// retarget points every live edge that touches an alias's antecedent at its
// consequent instead. Edges that collapse onto themselves, duplicate an
// existing edge, or close an implication cycle are destroyed.
func (e *Engine) retarget(ctx context.Context, alias *domain.Relationship) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	from, to := alias.AntecedentName, alias.ConsequentName
	touched := []string{to}
	live := domain.Status.Retargetable

	for _, kind := range []domain.RelationshipKind{domain.KindAlias, domain.KindImplication} {
		for _, other := range e.graph.To(kind, from, live) {
			if other.ID == alias.ID {
				continue
			}
			other.ConsequentName = to
			if _, err := e.applyRetarget(ctx, other, "consequent_name", from, to); err != nil {
				return err
			}
			if kind == domain.KindImplication {
				touched = append(touched, other.AntecedentName)
			}
		}
	}

	for _, other := range e.graph.From(domain.KindImplication, from, live) {
		other.AntecedentName = to
		if _, err := e.applyRetarget(ctx, other, "antecedent_name", from, to); err != nil {
			return err
		}
	}

	for _, name := range slices.Compact(slices.Sorted(slices.Values(touched))) {
		if err := e.cascade(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// applyRetarget saves a retargeted edge, or destroys it when it became a
// self-edge, a duplicate or part of a cycle once previous is merged into
// target. It reports whether the edge survived.
func (e *Engine) applyRetarget(ctx context.Context, r *domain.Relationship, field, previous, target string) (bool, error) {
	log := e.logger.With(
		slog.String("relationship_id", r.ID),
		slog.String("field", field),
		slog.String("from", previous),
	)

	if r.AntecedentName == r.ConsequentName {
		log.Info("retargeted relationship became self-referential, removing")
		return false, e.destroy(ctx, r, "self-referential after retarget")
	}
	for _, dup := range e.graph.From(r.Kind, r.AntecedentName, domain.Status.DuplicateRelevant) {
		if dup.ID != r.ID && dup.ConsequentName == r.ConsequentName {
			log.Info("retargeted relationship duplicates another, removing", slog.String("duplicate_of", dup.ID))
			return false, e.destroy(ctx, r, "duplicate of "+dup.ID+" after retarget")
		}
	}

	if r.Kind == domain.KindImplication && isCycleRelevant(r.Status) &&
		e.reachesAfterMerge(r.ConsequentName, r.AntecedentName, previous, target) {
		log.Info("retargeted implication closes a cycle, removing")
		return false, e.destroy(ctx, r, "cycle after retarget")
	}

	r.Touch()
	if err := e.save(ctx, r); err != nil {
		return false, err
	}
	e.audit(ctx, domain.ModActionRetarget, domain.SystemActor, r, map[string]any{"field": field, "from": previous})
	log.Info("relationship retargeted")
	return true, nil
}

// reachesAfterMerge reports whether dst is reachable from src through live
// implications when from and to are treated as one tag. Edges still naming
// from are followed as if already retargeted.
func (e *Engine) reachesAfterMerge(src, dst, from, to string) bool {
	seeds := []string{src}
	for {
		reached := e.graph.Closure(seeds, isCycleRelevant)
		if _, ok := slices.BinarySearch(reached, dst); ok {
			return true
		}
		_, hasFrom := slices.BinarySearch(reached, from)
		_, hasTo := slices.BinarySearch(reached, to)
		switch {
		case hasFrom && !hasTo:
			seeds = append(seeds, to)
		case hasTo && !hasFrom:
			seeds = append(seeds, from)
		default:
			return false
		}
	}
}
