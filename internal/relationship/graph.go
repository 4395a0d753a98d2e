package relationship

import (
	"slices"
	"sync"

	"github.com/tagyard/tagyard-server/internal/domain"
)

// Graph is an in-memory adjacency index over every relationship that can
// still shape the tag graph (anything not deleted or retired).
//
// Thread safety: all methods are safe for concurrent use. Returned
// relationships are copies.
type Graph struct {
	mu           sync.RWMutex
	byID         map[string]*domain.Relationship
	byAntecedent map[domain.RelationshipKind]map[string]map[string]struct{}
	byConsequent map[domain.RelationshipKind]map[string]map[string]struct{}

	// ancestors caches AncestorsOf lookups; cleared whenever any
	// implication's descendants change.
	ancestorsMu sync.Mutex
	ancestors   map[string][]string
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	g := &Graph{
		byID:         make(map[string]*domain.Relationship),
		byAntecedent: make(map[domain.RelationshipKind]map[string]map[string]struct{}),
		byConsequent: make(map[domain.RelationshipKind]map[string]map[string]struct{}),
		ancestors:    make(map[string][]string),
	}
	for _, k := range []domain.RelationshipKind{domain.KindAlias, domain.KindImplication} {
		g.byAntecedent[k] = make(map[string]map[string]struct{})
		g.byConsequent[k] = make(map[string]map[string]struct{})
	}
	return g
}

// Put inserts or replaces r. Deleted and retired relationships are removed instead.
func (g *Graph) Put(r *domain.Relationship) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.removeLocked(r.ID)
	if !r.Status.Retargetable() {
		return
	}
	c := r.Clone()
	g.byID[c.ID] = c
	addIndex(g.byAntecedent[c.Kind], c.AntecedentName, c.ID)
	addIndex(g.byConsequent[c.Kind], c.ConsequentName, c.ID)
}

// Remove drops a relationship.
func (g *Graph) Remove(relID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removeLocked(relID)
}

func (g *Graph) removeLocked(relID string) {
	old, ok := g.byID[relID]
	if !ok {
		return
	}
	delete(g.byID, relID)
	dropIndex(g.byAntecedent[old.Kind], old.AntecedentName, relID)
	dropIndex(g.byConsequent[old.Kind], old.ConsequentName, relID)
}

// Get returns a copy of the relationship with relID.
func (g *Graph) Get(relID string) (*domain.Relationship, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.byID[relID]
	if !ok {
		return nil, false
	}
	return r.Clone(), true
}

// Len returns the number of relationships held.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.byID)
}

// From returns relationships of kind whose antecedent is name and whose
// status satisfies keep.
func (g *Graph) From(kind domain.RelationshipKind, name string, keep func(domain.Status) bool) []*domain.Relationship {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.collect(g.byAntecedent[kind][name], keep)
}

// To returns relationships of kind whose consequent is name and whose
// status satisfies keep.
func (g *Graph) To(kind domain.RelationshipKind, name string, keep func(domain.Status) bool) []*domain.Relationship {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.collect(g.byConsequent[kind][name], keep)
}

func (g *Graph) collect(ids map[string]struct{}, keep func(domain.Status) bool) []*domain.Relationship {
	out := make([]*domain.Relationship, 0, len(ids))
	for relID := range ids {
		r := g.byID[relID]
		if keep == nil || keep(r.Status) {
			out = append(out, r.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *domain.Relationship) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return compareStrings(a.ID, b.ID)
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out
}

// ActiveAlias returns the active alias whose antecedent is name.
func (g *Graph) ActiveAlias(name string) (*domain.Relationship, bool) {
	aliases := g.From(domain.KindAlias, name, isActive)
	if len(aliases) == 0 {
		return nil, false
	}
	return aliases[0], true
}

// Closure walks implications accepted by keep from seeds to a fixed point
// and returns every tag reached, seeds included, sorted.
func (g *Graph) Closure(seeds []string, keep func(domain.Status) bool) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	seen := make(map[string]struct{}, len(seeds))
	frontier := make([]string, 0, len(seeds))
	for _, s := range seeds {
		if _, dup := seen[s]; !dup {
			seen[s] = struct{}{}
			frontier = append(frontier, s)
		}
	}

	for len(frontier) > 0 {
		name := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]
		for relID := range g.byAntecedent[domain.KindImplication][name] {
			r := g.byID[relID]
			if !keep(r.Status) {
				continue
			}
			if _, ok := seen[r.ConsequentName]; !ok {
				seen[r.ConsequentName] = struct{}{}
				frontier = append(frontier, r.ConsequentName)
			}
		}
	}

	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// Descendants returns every tag implied by name through active implications.
func (g *Graph) Descendants(name string) []string {
	var seeds []string
	for _, r := range g.From(domain.KindImplication, name, isActive) {
		seeds = append(seeds, r.ConsequentName)
	}
	if len(seeds) == 0 {
		return []string{}
	}
	return g.Closure(seeds, isActive)
}

// Ancestors returns the antecedents of active implications whose cached
// descendant set contains name. Results are cached until InvalidateAncestors.
func (g *Graph) Ancestors(name string) []string {
	g.ancestorsMu.Lock()
	if cached, ok := g.ancestors[name]; ok {
		g.ancestorsMu.Unlock()
		return slices.Clone(cached)
	}
	g.ancestorsMu.Unlock()

	g.mu.RLock()
	var found []string
	for _, r := range g.byID {
		if r.Kind == domain.KindImplication && r.IsActive() && slices.Contains(r.DescendantNames, name) {
			found = append(found, r.AntecedentName)
		}
	}
	g.mu.RUnlock()

	slices.Sort(found)
	found = slices.Compact(found)
	if found == nil {
		found = []string{}
	}

	g.ancestorsMu.Lock()
	g.ancestors[name] = found
	g.ancestorsMu.Unlock()
	return slices.Clone(found)
}

// InvalidateAncestors drops the reverse-index cache.
func (g *Graph) InvalidateAncestors() {
	g.ancestorsMu.Lock()
	clear(g.ancestors)
	g.ancestorsMu.Unlock()
}

func isActive(s domain.Status) bool { return s == domain.StatusActive }

// isCycleRelevant covers implications that are live or about to be.
func isCycleRelevant(s domain.Status) bool {
	return s == domain.StatusActive || s.InFlight()
}

func addIndex(idx map[string]map[string]struct{}, name, relID string) {
	set, ok := idx[name]
	if !ok {
		set = make(map[string]struct{})
		idx[name] = set
	}
	set[relID] = struct{}{}
}

func dropIndex(idx map[string]map[string]struct{}, name, relID string) {
	if set, ok := idx[name]; ok {
		delete(set, relID)
		if len(set) == 0 {
			delete(idx, name)
		}
	}
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
