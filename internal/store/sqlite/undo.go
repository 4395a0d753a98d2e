package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/tagyard/tagyard-server/internal/domain"
	"github.com/tagyard/tagyard-server/internal/store"
)

// CreateUndoEntry appends a ledger entry.
func (s *Store) CreateUndoEntry(ctx context.Context, e *domain.UndoEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	postIDs, err := json.Marshal(nonNil(e.PostIDs))
	if err != nil {
		return err
	}
	var priorTags, keep, priorLocked sql.NullString
	if e.PriorTags != nil {
		b, err := json.Marshal(e.PriorTags)
		if err != nil {
			return err
		}
		priorTags = sql.NullString{String: string(b), Valid: true}
	}
	if len(e.PriorLocked) > 0 {
		b, err := json.Marshal(e.PriorLocked)
		if err != nil {
			return err
		}
		priorLocked = sql.NullString{String: string(b), Valid: true}
	}
	if len(e.KeepConsequent) > 0 {
		b, err := json.Marshal(e.KeepConsequent)
		if err != nil {
			return err
		}
		keep = sql.NullString{String: string(b), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO undo_entries (id, relationship_id, post_ids, prior_tags, keep_consequent, prior_locked, applied, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.RelationshipID, string(postIDs), priorTags, keep, priorLocked, e.Applied, formatTime(e.CreatedAt),
	)
	return classify(err)
}

// ListUndoEntries returns a relationship's ledger in creation order.
func (s *Store) ListUndoEntries(ctx context.Context, relID string) ([]*domain.UndoEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, relationship_id, post_ids, prior_tags, keep_consequent, prior_locked, applied, created_at
		FROM undo_entries WHERE relationship_id = ?
		ORDER BY created_at, id`, relID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var entries []*domain.UndoEntry
	for rows.Next() {
		var (
			e                            domain.UndoEntry
			postIDs                      string
			priorTags, keep, priorLocked sql.NullString
			createdAt                    string
		)
		if err := rows.Scan(&e.ID, &e.RelationshipID, &postIDs, &priorTags, &keep, &priorLocked, &e.Applied, &createdAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(postIDs), &e.PostIDs); err != nil {
			return nil, err
		}
		if priorTags.Valid {
			if err := json.Unmarshal([]byte(priorTags.String), &e.PriorTags); err != nil {
				return nil, err
			}
		}
		if keep.Valid {
			if err := json.Unmarshal([]byte(keep.String), &e.KeepConsequent); err != nil {
				return nil, err
			}
		}
		if priorLocked.Valid {
			if err := json.Unmarshal([]byte(priorLocked.String), &e.PriorLocked); err != nil {
				return nil, err
			}
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, classify(rows.Err())
}

// MarkUndoEntryApplied flags an entry as replayed.
func (s *Store) MarkUndoEntryApplied(ctx context.Context, entryID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE undo_entries SET applied = 1 WHERE id = ?`, entryID)
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteUndoEntries clears a relationship's ledger before a fresh snapshot.
func (s *Store) DeleteUndoEntries(ctx context.Context, relID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM undo_entries WHERE relationship_id = ?`, relID)
	return classify(err)
}
