package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Handler executes one job. Returning an error logs it; the job is still
// acknowledged because handlers record their own failure state.
type Handler func(ctx context.Context, job *Job) error

// Pool drains a Queue with a fixed number of workers.
type Pool struct {
	queue   *Queue
	handler Handler
	workers int
	poll    time.Duration
	logger  *slog.Logger

	ctx    context.Context //nolint:containedctx // worker lifecycle
	cancel context.CancelFunc
	wg     sync.WaitGroup
	notify chan struct{}
}

// NewPool creates a pool. Call Start to begin processing.
func NewPool(queue *Queue, handler Handler, workers int, poll time.Duration, logger *slog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if poll <= 0 {
		poll = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		queue:   queue,
		handler: handler,
		workers: workers,
		poll:    poll,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		notify:  make(chan struct{}, 1),
	}
}

// Start recovers stalled jobs and launches the workers.
func (p *Pool) Start() {
	p.logger.Info("starting relationship workers", slog.Int("workers", p.workers))

	if n, err := p.queue.Recover(p.ctx); err != nil {
		p.logger.Error("failed to recover stalled jobs", slog.Any("error", err))
	} else if n > 0 {
		p.Notify()
	}

	for i := range p.workers {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop cancels in-flight work and waits for workers to exit. Jobs cut short
// stay inflight and are recovered on the next Start.
func (p *Pool) Stop() {
	p.logger.Info("stopping relationship workers")
	p.cancel()
	p.wg.Wait()
}

// Notify wakes a worker to check the queue.
func (p *Pool) Notify() {
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// Enqueue persists a job and wakes a worker.
func (p *Pool) Enqueue(ctx context.Context, job *Job) error {
	if err := p.queue.Enqueue(ctx, job); err != nil {
		return err
	}
	p.Notify()
	return nil
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	p.logger.Debug("relationship worker started", slog.Int("worker_id", id))

	for {
		select {
		case <-p.ctx.Done():
			p.logger.Debug("relationship worker stopping", slog.Int("worker_id", id))
			return
		case <-p.notify:
			p.drain(id)
		case <-time.After(p.poll):
			p.drain(id)
		}
	}
}

// drain processes jobs until the queue is empty or the pool stops.
func (p *Pool) drain(workerID int) {
	for p.ctx.Err() == nil {
		job, err := p.queue.Claim(p.ctx)
		if err != nil {
			if p.ctx.Err() == nil {
				p.logger.Error("failed to claim job", slog.Any("error", err))
			}
			return
		}
		if job == nil {
			return
		}
		// More work may be waiting; let an idle worker help.
		p.Notify()

		p.logger.Debug("processing job",
			slog.Int("worker_id", workerID),
			slog.String("job_id", job.ID),
			slog.String("relationship_id", job.RelationshipID),
			slog.String("transition", string(job.Transition)),
		)

		err = p.handler(p.ctx, job)
		if p.ctx.Err() != nil {
			// Shutdown interrupted the job; leave it inflight.
			return
		}
		if err != nil {
			p.logger.Error("job failed",
				slog.String("job_id", job.ID),
				slog.String("relationship_id", job.RelationshipID),
				slog.Any("error", err),
			)
		}
		if err := p.queue.Ack(p.ctx, job.ID); err != nil {
			p.logger.Error("failed to ack job", slog.String("job_id", job.ID), slog.Any("error", err))
		}
	}
}
