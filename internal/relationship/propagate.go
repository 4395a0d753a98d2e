package relationship

import (
	"context"
	stderrors "errors"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/tagyard/tagyard-server/internal/domain"
	"github.com/tagyard/tagyard-server/internal/store"
)

// errSkipPost tells rewritePosts to leave a post alone without failing the batch.
var errSkipPost = stderrors.New("skip post")

// forEachBatch pages through the ids of posts tagged with tag and hands each
// page to fn. Queries run without the caller's deadline; cancellation is only
// honored between pages so a page is never abandoned halfway.
func (e *Engine) forEachBatch(ctx context.Context, tag string, fn func(ctx context.Context, ids []string) error) error {
	qctx := context.WithoutCancel(ctx)
	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ids, err := e.store.ScanPostIDsByTag(qctx, tag, after, e.cfg.BatchSize)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := fn(qctx, ids); err != nil {
			return err
		}
		if len(ids) < e.cfg.BatchSize {
			return nil
		}
		after = ids[len(ids)-1]
	}
}

// rewritePosts applies mutate to each post under its lock, with bounded
// parallelism. Missing posts and posts the mutator skips are ignored. It
// returns how many posts were written.
func (e *Engine) rewritePosts(ctx context.Context, ids []string, mutate store.PostMutator) (int, error) {
	var written atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for _, postID := range ids {
		g.Go(func() error {
			var changed bool
			err := e.store.WithPostLock(gctx, postID, func(p *domain.Post) (bool, error) {
				var err error
				changed, err = mutate(p)
				return changed, err
			})
			switch {
			case err == nil:
				if changed {
					written.Add(1)
				}
				return nil
			case stderrors.Is(err, errSkipPost), stderrors.Is(err, store.ErrNotFound):
				return nil
			default:
				return err
			}
		})
	}
	err := g.Wait()
	return int(written.Load()), err
}

// recount refreshes the post counts of names.
func (e *Engine) recount(ctx context.Context, names ...string) error {
	for _, name := range names {
		if _, err := e.store.RecountTag(ctx, name); err != nil {
			return err
		}
	}
	return nil
}
