package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tagyard/tagyard-server/internal/domain"
	"github.com/tagyard/tagyard-server/internal/id"
	"github.com/tagyard/tagyard-server/internal/store"
)

// tagColumns must match the scan order in scanTag.
const tagColumns = `id, name, category, post_count, is_locked, created_at, updated_at`

func scanTag(sc scanner) (*domain.Tag, error) {
	var (
		t         domain.Tag
		createdAt string
		updatedAt string
	)
	err := sc.Scan(&t.ID, &t.Name, &t.Category, &t.PostCount, &t.IsLocked, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTag retrieves a tag by name.
// Returns store.ErrNotFound if the tag does not exist.
func (s *Store) GetTag(ctx context.Context, name string) (*domain.Tag, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+tagColumns+` FROM tags WHERE name = ?`, name)
	t, err := scanTag(row)
	if err != nil {
		return nil, notFound(err)
	}
	return t, nil
}

// FindOrCreateTag returns the tag with name, creating a general tag if needed.
// Concurrent creators race on the unique index; the loser re-reads the winner's row.
func (s *Store) FindOrCreateTag(ctx context.Context, name string) (*domain.Tag, error) {
	t, err := s.GetTag(ctx, name)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	now := time.Now()
	t = &domain.Tag{
		ID:        id.MustGenerate(id.PrefixTag),
		Name:      name,
		Category:  domain.CategoryGeneral,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tags (id, name, category, post_count, is_locked, created_at, updated_at)
		VALUES (?, ?, ?, 0, 0, ?, ?)`,
		t.ID, t.Name, t.Category, formatTime(t.CreatedAt), formatTime(t.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return s.GetTag(ctx, name)
	}
	if err != nil {
		return nil, fmt.Errorf("insert tag: %w", classify(err))
	}
	return t, nil
}

// SetTagCategory updates a tag's category unless the tag is locked.
func (s *Store) SetTagCategory(ctx context.Context, name string, category domain.TagCategory) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tags SET category = ?, updated_at = ?
		WHERE name = ? AND is_locked = 0`,
		category, formatTime(time.Now()), name,
	)
	if err != nil {
		return classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.GetTag(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// SetTagLocked toggles the category lock.
func (s *Store) SetTagLocked(ctx context.Context, name string, locked bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tags SET is_locked = ?, updated_at = ? WHERE name = ?`,
		locked, formatTime(time.Now()), name,
	)
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// RecountTag re-derives post_count from post_tags.
func (s *Store) RecountTag(ctx context.Context, name string) (int, error) {
	var count int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM post_tags WHERE tag_name = ?`, name,
		).Scan(&count); err != nil {
			return classify(err)
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE tags SET post_count = ?, updated_at = ? WHERE name = ?`,
			count, formatTime(time.Now()), name,
		)
		return classify(err)
	})
	return count, err
}
