package relationship

import (
	"context"
	"log/slog"

	"github.com/tagyard/tagyard-server/internal/domain"
)

// replayLedger reverts every unapplied ledger entry, newest first, then runs
// the kind's cleanup. Applied entries are skipped, so a retry resumes where
// the previous attempt stopped.
func (e *Engine) replayLedger(ctx context.Context, r *domain.Relationship, kind Kind) (int, error) {
	qctx := context.WithoutCancel(ctx)

	entries, err := e.store.ListUndoEntries(qctx, r.ID)
	if err != nil {
		return 0, err
	}

	total := 0
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		if entry.Applied {
			continue
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := kind.UndoStep(qctx, e, r, entry)
		total += n
		if err != nil {
			return total, err
		}
		if err := e.store.MarkUndoEntryApplied(qctx, entry.ID); err != nil {
			return total, err
		}
	}
	return total, kind.Undone(qctx, e, r)
}

// prepareLedger readies r's undo ledger for an approval from prev and returns
// the posts it already covers. Approving after a failure keeps the existing
// entries, whose posts the failed attempt may already have rewritten; any
// other approval starts a fresh ledger.
func (e *Engine) prepareLedger(ctx context.Context, prev *domain.Relationship) (map[string]struct{}, error) {
	if !prev.Status.IsError() {
		return nil, e.store.DeleteUndoEntries(ctx, prev.ID)
	}
	entries, err := e.store.ListUndoEntries(ctx, prev.ID)
	if err != nil {
		return nil, err
	}
	return domain.Covers(entries), nil
}

func unrecorded(ids []string, recorded map[string]struct{}) []string {
	if len(recorded) == 0 {
		return ids
	}
	out := make([]string, 0, len(ids))
	for _, postID := range ids {
		if _, ok := recorded[postID]; !ok {
			out = append(out, postID)
		}
	}
	return out
}

// undoConflict records a post skipped because it changed after approval.
func (e *Engine) undoConflict(r *domain.Relationship, postID, reason string) {
	e.logger.Warn("undo conflict, skipping post",
		slog.String("relationship_id", r.ID),
		slog.String("post_id", postID),
		slog.String("reason", reason),
	)
	if e.metrics != nil {
		e.metrics.UndoConflicts.Inc()
	}
}
