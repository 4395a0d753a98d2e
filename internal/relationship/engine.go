// Package relationship is the tag relationship consistency engine: it owns
// the alias and implication lifecycle, keeps the relationship graph valid,
// and rewrites posts when relationships are approved or undone.
package relationship

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tagyard/tagyard-server/internal/domain"
	"github.com/tagyard/tagyard-server/internal/errors"
	"github.com/tagyard/tagyard-server/internal/jobs"
	"github.com/tagyard/tagyard-server/internal/metrics"
	"github.com/tagyard/tagyard-server/internal/ratelimit"
	"github.com/tagyard/tagyard-server/internal/search"
	"github.com/tagyard/tagyard-server/internal/store"
	"github.com/tagyard/tagyard-server/internal/tagname"
)

// Dispatcher hands jobs to the background workers.
type Dispatcher interface {
	Enqueue(ctx context.Context, job *jobs.Job) error
}

// Notifier announces finished transitions.
type Notifier interface {
	Announce(ctx context.Context, r *domain.Relationship, ev domain.NotifyEvent, message string) error
}

// Auditor records moderation actions.
type Auditor interface {
	Record(ctx context.Context, kind domain.ModActionKind, actor domain.Actor, payload map[string]any) error
}

// Config tunes propagation.
type Config struct {
	// BatchSize is the number of posts read per page during propagation and snapshot.
	BatchSize int
	// Concurrency bounds parallel post rewrites within a batch.
	Concurrency int
	// BuilderApprovalLimit lets builders approve relationships whose antecedent
	// has fewer posts. Zero disables builder approval.
	BuilderApprovalLimit int
	Retry                jobs.RetryPolicy
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:            500,
		Concurrency:          4,
		BuilderApprovalLimit: 0,
		Retry:                jobs.DefaultRetryPolicy(),
	}
}

// Deps are the collaborators of an Engine. Index, Limiter and Metrics are optional.
type Deps struct {
	Store      store.Store
	Dispatcher Dispatcher
	Notifier   Notifier
	Auditor    Auditor
	Index      *search.Index
	Limiter    *ratelimit.KeyedRateLimiter
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	Config     Config
}

// Engine coordinates relationship transitions.
//
// Thread safety: all methods are safe for concurrent use. Graph-changing
// decisions (proposal checks, status commits, retargeting, cascades) are
// serialized; bulk post rewrites run outside that lock.
type Engine struct {
	store      store.Store
	dispatcher Dispatcher
	notifier   Notifier
	auditor    Auditor
	index      *search.Index
	limiter    *ratelimit.KeyedRateLimiter
	metrics    *metrics.Metrics
	logger     *slog.Logger
	cfg        Config

	graph *Graph
	kinds map[domain.RelationshipKind]Kind
	mu    sync.Mutex
}

// New creates an Engine. Call Load before serving requests.
func New(deps Deps) *Engine {
	cfg := deps.Config
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.Retry.Base <= 0 {
		sleep := cfg.Retry.Sleep
		cfg.Retry = def.Retry
		cfg.Retry.Sleep = sleep
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		store:      deps.Store,
		dispatcher: deps.Dispatcher,
		notifier:   deps.Notifier,
		auditor:    deps.Auditor,
		index:      deps.Index,
		limiter:    deps.Limiter,
		metrics:    deps.Metrics,
		logger:     logger.With(slog.String("component", "relationship")),
		cfg:        cfg,
		graph:      NewGraph(),
		kinds:      defaultKinds(),
	}
}

// Graph exposes the in-memory relationship graph.
func (e *Engine) Graph() *Graph {
	return e.graph
}

// Load rebuilds the graph and the search index from storage.
func (e *Engine) Load(ctx context.Context) error {
	rels, err := e.store.ListRelationships(ctx, domain.RelationshipFilter{})
	if err != nil {
		return fmt.Errorf("load relationships: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.graph = NewGraph()
	for _, r := range rels {
		e.graph.Put(r)
	}
	if e.index != nil {
		if err := e.index.Rebuild(rels); err != nil {
			return fmt.Errorf("rebuild search index: %w", err)
		}
	}

	e.logger.Info("relationship graph loaded",
		slog.Int("relationships", len(rels)),
		slog.Int("live", e.graph.Len()),
	)
	return nil
}

// Get returns a relationship by id.
func (e *Engine) Get(ctx context.Context, relID string) (*domain.Relationship, error) {
	r, err := e.store.GetRelationship(ctx, relID)
	if err != nil {
		return nil, storeErr(err, "relationship %s", relID)
	}
	return r, nil
}

// List returns relationships matching filter, newest first.
func (e *Engine) List(ctx context.Context, filter domain.RelationshipFilter) ([]*domain.Relationship, error) {
	filter.Name = tagname.Normalize(filter.Name)
	rels, err := e.store.ListRelationships(ctx, filter)
	if err != nil {
		return nil, err
	}
	if rels == nil {
		rels = []*domain.Relationship{}
	}
	return rels, nil
}

// Search finds relationships by fuzzy endpoint name.
func (e *Engine) Search(ctx context.Context, p search.Params) ([]*domain.Relationship, uint64, error) {
	if e.index == nil {
		return nil, 0, errors.Internalf("search index is not configured")
	}
	hits, total, err := e.index.Search(p)
	if err != nil {
		return nil, 0, err
	}

	out := make([]*domain.Relationship, 0, len(hits))
	for _, h := range hits {
		r, err := e.store.GetRelationship(ctx, h.ID)
		if err != nil {
			if stderrors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, total, nil
}

// DescendantsOf returns every tag implied by tag through active implications.
func (e *Engine) DescendantsOf(tag string) []string {
	return e.graph.Descendants(tagname.Normalize(tag))
}

// AncestorsOf returns the antecedents of active implications whose closure
// contains tag.
func (e *Engine) AncestorsOf(tag string) []string {
	return e.graph.Ancestors(tagname.Normalize(tag))
}

// AliasedTargetOf resolves tag through active aliases, returning tag itself
// when it is not aliased.
func (e *Engine) AliasedTargetOf(tag string) string {
	name := tagname.Normalize(tag)
	seen := map[string]struct{}{name: {}}
	for {
		alias, ok := e.graph.ActiveAlias(name)
		if !ok {
			return name
		}
		if _, loop := seen[alias.ConsequentName]; loop {
			e.logger.Warn("alias loop detected", slog.String("tag", tag))
			return name
		}
		name = alias.ConsequentName
		seen[name] = struct{}{}
	}
}

// save persists r and mirrors it into the graph and the search index.
func (e *Engine) save(ctx context.Context, r *domain.Relationship) error {
	if err := e.store.UpdateRelationship(ctx, r); err != nil {
		return storeErr(err, "relationship %s", r.ID)
	}
	e.graph.Put(r)
	e.reindex(r)
	return nil
}

// destroy hard-deletes r.
func (e *Engine) destroy(ctx context.Context, r *domain.Relationship, reason string) error {
	if err := e.store.DeleteRelationship(ctx, r.ID); err != nil && !stderrors.Is(err, store.ErrNotFound) {
		return err
	}
	e.graph.Remove(r.ID)
	if e.index != nil {
		if err := e.index.Delete(r.ID); err != nil {
			e.logger.Warn("search index delete failed", slog.String("relationship_id", r.ID), slog.String("error", err.Error()))
		}
	}
	e.audit(ctx, domain.ModActionDestroy, domain.SystemActor, r, map[string]any{"reason": reason})
	return nil
}

func (e *Engine) reindex(r *domain.Relationship) {
	if e.index == nil {
		return
	}
	if err := e.index.Upsert(r); err != nil {
		e.logger.Warn("search index update failed", slog.String("relationship_id", r.ID), slog.String("error", err.Error()))
	}
}

// audit records a moderation action. Failures are logged, never returned.
func (e *Engine) audit(ctx context.Context, kind domain.ModActionKind, actor domain.Actor, r *domain.Relationship, extra map[string]any) {
	if e.auditor == nil {
		return
	}
	payload := map[string]any{
		"relationship_id": r.ID,
		"kind":            string(r.Kind),
		"antecedent_name": r.AntecedentName,
		"consequent_name": r.ConsequentName,
		"status":          string(r.Status),
	}
	for k, v := range extra {
		payload[k] = v
	}
	if err := e.auditor.Record(context.WithoutCancel(ctx), kind, actor, payload); err != nil {
		e.logger.Warn("audit failed", slog.String("relationship_id", r.ID), slog.String("error", err.Error()))
	}
}

// announce notifies watchers. Failures are logged, never returned.
func (e *Engine) announce(ctx context.Context, r *domain.Relationship, ev domain.NotifyEvent, message string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Announce(context.WithoutCancel(ctx), r, ev, message); err != nil {
		e.logger.Warn("announcement failed",
			slog.String("relationship_id", r.ID),
			slog.String("event", string(ev)),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) kindOf(r *domain.Relationship) (Kind, error) {
	k, ok := e.kinds[r.Kind]
	if !ok {
		return nil, errors.Validationf("unknown relationship kind %q", r.Kind)
	}
	return k, nil
}

func (e *Engine) countRewritten(r *domain.Relationship, transition domain.Transition, n int) {
	if e.metrics != nil && n > 0 {
		e.metrics.PostsRewritten.WithLabelValues(string(r.Kind), string(transition)).Add(float64(n))
	}
}

// storeErr converts persistence sentinels into coded errors.
func storeErr(err error, format string, args ...any) error {
	if stderrors.Is(err, store.ErrNotFound) {
		return errors.NotFoundf(format+" not found", args...)
	}
	return err
}

func now() time.Time { return time.Now().UTC() }
