package relationship

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/tagyard/tagyard-server/internal/domain"
	"github.com/tagyard/tagyard-server/internal/errors"
	"github.com/tagyard/tagyard-server/internal/jobs"
)

const maxErrorMessage = 200

// errStaleJob marks a job whose relationship has moved on.
var errStaleJob = stderrors.New("stale job")

// RunJob executes one queued transition. It is the worker pool handler and
// may also be called directly.
func (e *Engine) RunJob(ctx context.Context, job *jobs.Job) error {
	start := time.Now()

	r, err := e.Get(context.WithoutCancel(ctx), job.RelationshipID)
	if err != nil {
		return err
	}
	kind, err := e.kindOf(r)
	if err != nil {
		return err
	}

	log := e.logger.With(
		slog.String("relationship_id", r.ID),
		slog.String("kind", string(r.Kind)),
		slog.String("transition", string(job.Transition)),
		slog.String("job_id", job.ID),
	)

	switch job.Transition {
	case domain.TransitionApprove:
		err = e.runApprove(ctx, r, kind, log)
	case domain.TransitionUndo:
		err = e.runUndo(ctx, r, kind, log)
	default:
		err = errors.Validationf("unknown transition %q", job.Transition)
	}

	outcome := "succeeded"
	switch {
	case stderrors.Is(err, errStaleJob):
		log.Info("skipping stale job", slog.String("status", string(r.Status)))
		outcome, err = "skipped", nil
	case err != nil && ctx.Err() != nil:
		outcome = "interrupted"
	case err != nil:
		outcome = "failed"
	}
	if e.metrics != nil {
		e.metrics.ObserveJob(string(r.Kind), string(job.Transition), outcome, time.Since(start))
	}
	return err
}

func (e *Engine) runApprove(ctx context.Context, r *domain.Relationship, kind Kind, log *slog.Logger) error {
	if !r.Status.InFlight() {
		return errStaleJob
	}
	qctx := context.WithoutCancel(ctx)

	if r.Status == domain.StatusQueued {
		e.mu.Lock()
		r.Status = domain.StatusProcessing
		r.Touch()
		err := e.save(qctx, r)
		e.mu.Unlock()
		if err != nil {
			return err
		}
	}

	postCount, err := e.store.RecountTag(qctx, r.AntecedentName)
	if err != nil {
		log.Warn("antecedent recount failed", slog.String("error", err.Error()))
	}

	rewritten := 0
	err = e.cfg.Retry.Run(ctx, func(ctx context.Context, attempt int) error {
		n, err := kind.Propagate(ctx, e, r)
		rewritten += n
		return err
	}, e.onRetry(r, domain.TransitionApprove, log))
	e.countRewritten(r, domain.TransitionApprove, rewritten)

	if err != nil {
		if ctx.Err() != nil {
			log.Info("propagation interrupted, will resume", slog.Int("rewritten", rewritten))
			return err
		}
		e.fail(qctx, r, err, log)
		return err
	}

	e.mu.Lock()
	r.Status = domain.StatusActive
	r.PostCount = postCount
	if r.Kind == domain.KindImplication {
		r.DescendantNames = e.graph.Closure([]string{r.ConsequentName}, isActive)
	}
	r.Touch()
	err = e.save(qctx, r)
	if err == nil {
		if aerr := kind.Activated(qctx, e, r); aerr != nil {
			log.Error("post-activation step failed", slog.String("error", aerr.Error()))
		}
	}
	e.mu.Unlock()
	if err != nil {
		e.fail(qctx, r, err, log)
		return err
	}

	e.audit(qctx, domain.ModActionStatusChange, domain.SystemActor, r, map[string]any{"from": string(domain.StatusProcessing)})
	e.announce(qctx, r, domain.EventApproved, "")
	log.Info("relationship active", slog.Int("rewritten", rewritten), slog.Int("post_count", postCount))
	return nil
}

func (e *Engine) runUndo(ctx context.Context, r *domain.Relationship, kind Kind, log *slog.Logger) error {
	if !r.UndoPending() {
		return errStaleJob
	}
	qctx := context.WithoutCancel(ctx)

	rewritten := 0
	err := e.cfg.Retry.Run(ctx, func(ctx context.Context, attempt int) error {
		n, err := e.replayLedger(ctx, r, kind)
		rewritten += n
		return err
	}, e.onRetry(r, domain.TransitionUndo, log))
	e.countRewritten(r, domain.TransitionUndo, rewritten)

	if err != nil {
		if ctx.Err() != nil {
			log.Info("undo interrupted, will resume", slog.Int("rewritten", rewritten))
			return err
		}
		log.Error("undo failed, relationship stays pending", slog.String("error", err.Error()))
		e.audit(qctx, domain.ModActionStatusChange, domain.SystemActor, r, map[string]any{"undo_error": err.Error()})
		e.announce(qctx, r, domain.EventFailed, "Undo failed: "+truncate(err.Error()))
		return err
	}

	e.mu.Lock()
	r.Status = domain.StatusRetired
	r.Touch()
	err = e.save(qctx, r)
	e.mu.Unlock()
	if err != nil {
		return err
	}

	e.audit(qctx, domain.ModActionStatusChange, domain.SystemActor, r, map[string]any{"from": string(domain.StatusPending), "undo": true})
	e.announce(qctx, r, domain.EventUndone, "")
	log.Info("relationship undone", slog.Int("rewritten", rewritten))
	return nil
}

// fail parks r in an error status.
func (e *Engine) fail(ctx context.Context, r *domain.Relationship, cause error, log *slog.Logger) {
	msg := truncate(cause.Error())
	log.Error("relationship failed", slog.String("error", cause.Error()))

	e.mu.Lock()
	r.Status = domain.ErrorStatus(msg)
	r.Touch()
	err := e.save(ctx, r)
	e.mu.Unlock()
	if err != nil {
		log.Error("failed to record error status", slog.String("error", err.Error()))
		return
	}

	e.audit(ctx, domain.ModActionStatusChange, domain.SystemActor, r, map[string]any{"from": string(domain.StatusProcessing)})
	e.announce(ctx, r, domain.EventFailed, msg)
}

func (e *Engine) onRetry(r *domain.Relationship, transition domain.Transition, log *slog.Logger) func(int, time.Duration, error) {
	return func(attempt int, delay time.Duration, err error) {
		log.Warn("attempt failed, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
		if e.metrics != nil {
			e.metrics.JobRetries.WithLabelValues(string(r.Kind), string(transition)).Inc()
		}
	}
}

func truncate(msg string) string {
	if len(msg) <= maxErrorMessage {
		return msg
	}
	return msg[:maxErrorMessage]
}
