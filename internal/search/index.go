// Package search indexes relationships in an in-memory Bleve index so
// moderators can find proposals by partial or misspelled tag names.
package search

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/tagyard/tagyard-server/internal/domain"
)

// Document is the indexed form of a relationship.
type Document struct {
	ID         string `json:"id"`
	Antecedent string `json:"antecedent"`
	Consequent string `json:"consequent"`
	Kind       string `json:"kind"`
	Status     string `json:"status"`
	Words      string `json:"words"`
}

// NewDocument converts a relationship. Error statuses index as "error".
func NewDocument(r *domain.Relationship) *Document {
	status := string(r.Status)
	if r.Status.IsError() {
		status = "error"
	}
	return &Document{
		ID:         r.ID,
		Antecedent: r.AntecedentName,
		Consequent: r.ConsequentName,
		Kind:       string(r.Kind),
		Status:     status,
		Words:      strings.ReplaceAll(r.AntecedentName+" "+r.ConsequentName, "_", " "),
	}
}

// Params narrows a search.
type Params struct {
	Query  string
	Kind   domain.RelationshipKind
	Status string
	Limit  int
	Offset int
}

// Hit is one matching relationship.
type Hit struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// Index wraps an in-memory Bleve index.
//
// Thread safety: all methods are safe for concurrent use.
type Index struct {
	index  bleve.Index
	logger *slog.Logger
	mu     sync.RWMutex
}

// NewIndex creates an empty in-memory index.
func NewIndex(logger *slog.Logger) (*Index, error) {
	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	return &Index{index: idx, logger: logger}, nil
}

// Close releases the index.
func (i *Index) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.index.Close()
}

// Upsert indexes or reindexes a relationship.
func (i *Index) Upsert(r *domain.Relationship) error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.index.Index(r.ID, NewDocument(r))
}

// Delete removes a relationship from the index.
func (i *Index) Delete(relID string) error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.index.Delete(relID)
}

// Rebuild replaces the index contents with rels.
func (i *Index) Rebuild(rels []*domain.Relationship) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	fresh, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	batch := fresh.NewBatch()
	for _, r := range rels {
		if err := batch.Index(r.ID, NewDocument(r)); err != nil {
			fresh.Close()
			return fmt.Errorf("batch index %s: %w", r.ID, err)
		}
	}
	if err := fresh.Batch(batch); err != nil {
		fresh.Close()
		return fmt.Errorf("apply batch: %w", err)
	}

	old := i.index
	i.index = fresh
	if err := old.Close(); err != nil {
		i.logger.Warn("failed to close previous search index", slog.Any("error", err))
	}
	i.logger.Info("rebuilt relationship search index", slog.Int("documents", len(rels)))
	return nil
}

// Count returns the number of indexed relationships.
func (i *Index) Count() (uint64, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.index.DocCount()
}

// Search returns matching relationship ids ordered by relevance.
func (i *Index) Search(p Params) ([]Hit, uint64, error) {
	if p.Limit <= 0 {
		p.Limit = 20
	}

	req := bleve.NewSearchRequestOptions(buildQuery(p), p.Limit, p.Offset, false)

	i.mu.RLock()
	res, err := i.index.Search(req)
	i.mu.RUnlock()
	if err != nil {
		return nil, 0, fmt.Errorf("search: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, Hit{ID: h.ID, Score: h.Score})
	}
	return hits, res.Total, nil
}

func buildQuery(p Params) query.Query {
	var must []query.Query

	if q := strings.ToLower(strings.TrimSpace(p.Query)); q != "" {
		var should []query.Query
		for _, field := range []string{"antecedent", "consequent"} {
			exact := bleve.NewTermQuery(q)
			exact.SetField(field)
			exact.SetBoost(3)

			prefix := bleve.NewPrefixQuery(q)
			prefix.SetField(field)
			prefix.SetBoost(2)

			should = append(should, exact, prefix)
		}

		words := bleve.NewMatchQuery(strings.ReplaceAll(q, "_", " "))
		words.SetField("words")
		words.SetFuzziness(1)
		should = append(should, words)

		must = append(must, bleve.NewDisjunctionQuery(should...))
	}

	if p.Kind != "" {
		kind := bleve.NewTermQuery(string(p.Kind))
		kind.SetField("kind")
		must = append(must, kind)
	}
	if p.Status != "" {
		status := bleve.NewTermQuery(p.Status)
		status.SetField("status")
		must = append(must, status)
	}

	if len(must) == 0 {
		return bleve.NewMatchAllQuery()
	}
	return bleve.NewConjunctionQuery(must...)
}
