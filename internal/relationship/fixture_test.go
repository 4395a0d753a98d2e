package relationship

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tagyard/tagyard-server/internal/domain"
	"github.com/tagyard/tagyard-server/internal/errors"
	"github.com/tagyard/tagyard-server/internal/jobs"
	"github.com/tagyard/tagyard-server/internal/logger"
	"github.com/tagyard/tagyard-server/internal/metrics"
	"github.com/tagyard/tagyard-server/internal/notify"
	"github.com/tagyard/tagyard-server/internal/search"
	"github.com/tagyard/tagyard-server/internal/store"
	"github.com/tagyard/tagyard-server/internal/store/sqlite"
)

var (
	moderator = domain.Actor{UserID: "user-mod", IP: "127.0.0.1", Level: domain.LevelModerator}
	builder   = domain.Actor{UserID: "user-builder", Level: domain.LevelBuilder}
	member    = domain.Actor{UserID: "user-member", Level: domain.LevelMember}
)

// recordedJobs stands in for the worker pool; tests drain it explicitly.
type recordedJobs struct {
	mu   sync.Mutex
	jobs []*jobs.Job
	seq  int
}

func (q *recordedJobs) Enqueue(_ context.Context, job *jobs.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	job.ID = fmt.Sprintf("job-%d", q.seq)
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordedJobs) take() []*jobs.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.jobs
	q.jobs = nil
	return out
}

type recordingNotifier struct {
	mu       sync.Mutex
	events   []domain.NotifyEvent
	messages []string
}

func (n *recordingNotifier) Announce(_ context.Context, _ *domain.Relationship, ev domain.NotifyEvent, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	n.messages = append(n.messages, message)
	return nil
}

func (n *recordingNotifier) last() domain.NotifyEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.events) == 0 {
		return ""
	}
	return n.events[len(n.events)-1]
}

// flakyStore fails post writes with a transient error once skip successful
// writes have happened, failures times in a row.
type flakyStore struct {
	*sqlite.Store

	mu       sync.Mutex
	skip     int
	failures int
}

func (f *flakyStore) WithPostLock(ctx context.Context, postID string, fn store.PostMutator) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	switch {
	case f.skip > 0:
		f.skip--
	case f.failures > 0:
		f.failures--
		f.mu.Unlock()
		return errors.Transient(fmt.Errorf("database is locked"))
	}
	f.mu.Unlock()
	return f.Store.WithPostLock(ctx, postID, fn)
}

func (f *flakyStore) failAfter(skip, failures int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.skip, f.failures = skip, failures
}

type fixture struct {
	t       *testing.T
	ctx     context.Context
	store   *flakyStore
	engine  *Engine
	queue   *recordedJobs
	notes   *recordingNotifier
	metrics *metrics.Metrics
	index   *search.Index

	sleptMu sync.Mutex
	slept   []time.Duration
}

func newFixture(t *testing.T, tweak ...func(*Deps)) *fixture {
	t.Helper()
	ctx := context.Background()

	s, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "test.db"), logger.Discard().Logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	idx, err := search.NewIndex(logger.Discard().Logger)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	f := &fixture{
		t:       t,
		ctx:     ctx,
		store:   &flakyStore{Store: s},
		queue:   &recordedJobs{},
		notes:   &recordingNotifier{},
		metrics: metrics.New(),
		index:   idx,
	}

	deps := Deps{
		Store:      f.store,
		Dispatcher: f.queue,
		Notifier:   f.notes,
		Auditor:    notify.NewAuditor(s),
		Index:      idx,
		Metrics:    f.metrics,
		Logger:     logger.Discard().Logger,
		Config: Config{
			BatchSize:            2,
			Concurrency:          2,
			BuilderApprovalLimit: 100,
			Retry: jobs.RetryPolicy{
				MaxRetries: 5,
				Base:       2 * time.Second,
				Factor:     2,
				Sleep: func(_ context.Context, d time.Duration) error {
					f.sleptMu.Lock()
					f.slept = append(f.slept, d)
					f.sleptMu.Unlock()
					return nil
				},
			},
		},
	}
	for _, fn := range tweak {
		fn(&deps)
	}

	f.engine = New(deps)
	require.NoError(t, f.engine.Load(ctx))
	return f
}

func (f *fixture) post(postID, tags string) {
	f.t.Helper()
	require.NoError(f.t, f.store.CreatePost(f.ctx, &domain.Post{ID: postID, TagString: tags}))
}

func (f *fixture) postWithLocked(postID, tags, locked string) {
	f.t.Helper()
	require.NoError(f.t, f.store.CreatePost(f.ctx, &domain.Post{ID: postID, TagString: tags, LockedTags: locked}))
}

func (f *fixture) tagsOf(postID string) string {
	f.t.Helper()
	p, err := f.store.GetPost(f.ctx, postID)
	require.NoError(f.t, err)
	return p.TagString
}

func (f *fixture) propose(kind domain.RelationshipKind, ante, cons string) *domain.Relationship {
	f.t.Helper()
	r, err := f.engine.Propose(f.ctx, member, Proposal{Kind: kind, Antecedent: ante, Consequent: cons})
	require.NoError(f.t, err)
	return r
}

// activate proposes, approves and runs a relationship to completion.
func (f *fixture) activate(kind domain.RelationshipKind, ante, cons string) *domain.Relationship {
	f.t.Helper()
	r := f.propose(kind, ante, cons)
	_, err := f.engine.Approve(f.ctx, moderator, r.ID)
	require.NoError(f.t, err)
	require.NoError(f.t, f.drain())

	r = f.reload(r.ID)
	require.Equal(f.t, domain.StatusActive, r.Status)
	return r
}

// drain runs every dispatched job and returns the last error.
func (f *fixture) drain() error {
	var last error
	for {
		batch := f.queue.take()
		if len(batch) == 0 {
			return last
		}
		for _, job := range batch {
			if err := f.engine.RunJob(f.ctx, job); err != nil {
				last = err
			}
		}
	}
}

func (f *fixture) reload(relID string) *domain.Relationship {
	f.t.Helper()
	r, err := f.engine.Get(f.ctx, relID)
	require.NoError(f.t, err)
	return r
}

func (f *fixture) sleeps() []time.Duration {
	f.sleptMu.Lock()
	defer f.sleptMu.Unlock()
	out := f.slept
	f.slept = nil
	return out
}
