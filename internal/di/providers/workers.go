package providers

import (
	"context"
	"time"

	"github.com/samber/do/v2"

	"github.com/tagyard/tagyard-server/internal/config"
	"github.com/tagyard/tagyard-server/internal/jobs"
	"github.com/tagyard/tagyard-server/internal/logger"
	"github.com/tagyard/tagyard-server/internal/metrics"
	"github.com/tagyard/tagyard-server/internal/notify"
	"github.com/tagyard/tagyard-server/internal/ratelimit"
	"github.com/tagyard/tagyard-server/internal/relationship"
	"github.com/tagyard/tagyard-server/internal/service"
)

// pollInterval is how often idle workers re-check the queue.
const pollInterval = 5 * time.Second

// QueueHandle wraps the Badger job queue with shutdown capability.
type QueueHandle struct {
	*jobs.Queue
}

// Shutdown implements do.Shutdownable.
func (h *QueueHandle) Shutdown() error {
	return h.Close()
}

// ProvideQueue opens the durable relationship job queue.
func ProvideQueue(i do.Injector) (*QueueHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	queue, err := jobs.OpenQueue(cfg.Queue.Path, log.Logger)
	if err != nil {
		return nil, err
	}

	if cfg.Queue.Path == "" {
		log.Warn("Job queue is in memory; queued transitions will not survive a restart")
	} else {
		log.Info("Job queue opened", "path", cfg.Queue.Path)
	}

	return &QueueHandle{Queue: queue}, nil
}

// RateLimiterHandle wraps the proposal rate limiter with shutdown capability.
type RateLimiterHandle struct {
	*ratelimit.KeyedRateLimiter
}

// Shutdown implements do.Shutdownable.
func (h *RateLimiterHandle) Shutdown() error {
	h.Stop()
	return nil
}

// ProvideRateLimiter provides the per-user proposal limiter.
func ProvideRateLimiter(i do.Injector) (*RateLimiterHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)

	limiter := ratelimit.New(
		ratelimit.PerHour(cfg.Relationships.ProposalsPerHour),
		cfg.Relationships.ProposalBurst,
		time.Hour,
	)
	return &RateLimiterHandle{KeyedRateLimiter: limiter}, nil
}

// RelationshipsHandle owns the engine and the worker pool that drains its jobs.
type RelationshipsHandle struct {
	Engine *relationship.Engine
	pool   *jobs.Pool
}

// Shutdown implements do.Shutdownable. Jobs cut short stay in the queue and
// are recovered on the next start.
func (h *RelationshipsHandle) Shutdown() error {
	h.pool.Stop()
	return nil
}

// ProvideRelationships builds the relationship engine, loads its graph, and
// starts the workers.
func ProvideRelationships(i do.Injector) (*RelationshipsHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)
	queueHandle := do.MustInvoke[*QueueHandle](i)
	limiterHandle := do.MustInvoke[*RateLimiterHandle](i)
	m := do.MustInvoke[*metrics.Metrics](i)

	// The pool and the engine refer to each other: the engine dispatches to
	// the pool and the pool runs engine jobs.
	var engine *relationship.Engine
	handler := func(ctx context.Context, job *jobs.Job) error {
		err := engine.RunJob(ctx, job)
		if pending, inflight, derr := queueHandle.Depth(ctx); derr == nil {
			m.QueueDepth.Set(float64(pending + inflight))
		}
		return err
	}
	pool := jobs.NewPool(queueHandle.Queue, handler, cfg.Relationships.Workers, pollInterval, log.Logger)

	rc := cfg.Relationships
	retry := jobs.DefaultRetryPolicy()
	retry.MaxRetries = rc.MaxRetries
	retry.Base = rc.RetryBase

	engine = relationship.New(relationship.Deps{
		Store:      storeHandle.Store,
		Dispatcher: pool,
		Notifier:   notify.NewNotifier(storeHandle.Store, sseHandle.Manager, log.Logger),
		Auditor:    notify.NewAuditor(storeHandle.Store),
		Index:      indexHandle.Index,
		Limiter:    limiterHandle.KeyedRateLimiter,
		Metrics:    m,
		Logger:     log.Logger,
		Config: relationship.Config{
			BatchSize:            rc.BatchSize,
			Concurrency:          rc.Concurrency,
			BuilderApprovalLimit: rc.BuilderApprovalLimit,
			Retry:                retry,
		},
	})

	if err := engine.Load(context.Background()); err != nil {
		return nil, err
	}

	pool.Start()

	log.Info("Relationship engine started",
		"workers", rc.Workers,
		"batch_size", rc.BatchSize,
		"concurrency", rc.Concurrency,
	)

	return &RelationshipsHandle{Engine: engine, pool: pool}, nil
}

// ProvidePostService provides the post tag edit service.
func ProvidePostService(i do.Injector) (*service.PostService, error) {
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	relHandle := do.MustInvoke[*RelationshipsHandle](i)

	return service.NewPostService(storeHandle.Store, relHandle.Engine, log.Logger), nil
}
