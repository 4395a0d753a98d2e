package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/tagyard/tagyard-server/internal/domain"
	"github.com/tagyard/tagyard-server/internal/store"
	"github.com/tagyard/tagyard-server/internal/tagname"
)

const postColumns = `id, tag_string, locked_tags, version, updater_id, created_at, updated_at`

func scanPost(sc scanner) (*domain.Post, error) {
	var (
		p         domain.Post
		updaterID sql.NullString
		createdAt string
		updatedAt string
	)
	err := sc.Scan(&p.ID, &p.TagString, &p.LockedTags, &p.Version, &updaterID, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	p.UpdaterID = updaterID.String
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePost inserts a post and indexes its tags.
func (s *Store) CreatePost(ctx context.Context, p *domain.Post) error {
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if p.Version == 0 {
		p.Version = 1
	}
	p.TagString = tagname.Join(strings.Fields(p.TagString))

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO posts (`+postColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.TagString, p.LockedTags, p.Version, nullString(p.UpdaterID),
			formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
		)
		if isUniqueViolation(err) {
			return store.ErrAlreadyExists
		}
		if err != nil {
			return classify(err)
		}
		return syncPostTags(ctx, tx, p.ID, p.TagString)
	})
}

// GetPost retrieves a post by ID.
func (s *Store) GetPost(ctx context.Context, postID string) (*domain.Post, error) {
	return getPost(ctx, s.db, postID)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getPost(ctx context.Context, q queryRower, postID string) (*domain.Post, error) {
	p, err := scanPost(q.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id = ?`, postID))
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

// ScanPostIDsByTag returns up to limit post ids tagged with tag, after afterID.
func (s *Store) ScanPostIDsByTag(ctx context.Context, tag, afterID string, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT post_id FROM post_tags
		WHERE tag_name = ? AND post_id > ?
		ORDER BY post_id
		LIMIT ?`,
		tag, afterID, limit,
	)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	ids := make([]string, 0, limit)
	for rows.Next() {
		var postID string
		if err := rows.Scan(&postID); err != nil {
			return nil, err
		}
		ids = append(ids, postID)
	}
	return ids, classify(rows.Err())
}

// WithPostLock runs fn under the per-post lock and persists its changes
// without bumping the version or writing post_versions.
func (s *Store) WithPostLock(ctx context.Context, postID string, fn store.PostMutator) error {
	unlock := s.locks.Lock(postID)
	defer unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		p, err := getPost(ctx, tx, postID)
		if err != nil {
			return err
		}
		changed, err := fn(p)
		if err != nil || !changed {
			return err
		}
		return writePost(ctx, tx, p)
	})
}

// UpdatePostTags replaces a post's tags as an ordinary edit and records a version.
func (s *Store) UpdatePostTags(ctx context.Context, postID, tagString string, actor domain.Actor) (*domain.Post, error) {
	unlock := s.locks.Lock(postID)
	defer unlock()

	var updated *domain.Post
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		p, err := getPost(ctx, tx, postID)
		if err != nil {
			return err
		}

		before := tagname.Split(p.TagString)
		after := tagname.Split(tagString)
		added := difference(after, before)
		removed := difference(before, after)
		if len(added) == 0 && len(removed) == 0 {
			updated = p
			return nil
		}

		p.TagString = tagname.Join(after)
		p.Version++
		p.UpdaterID = actor.UserID
		if err := writePost(ctx, tx, p); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO post_versions
				(post_id, version, tag_string, added_tags, removed_tags, updater_id, updater_ip, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.Version, p.TagString, strings.Join(added, " "), strings.Join(removed, " "),
			actor.UserID, nullString(actor.IP), formatTime(p.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert post version: %w", classify(err))
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ListPostVersions returns a post's edit history, oldest first.
func (s *Store) ListPostVersions(ctx context.Context, postID string) ([]*domain.PostVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT post_id, version, tag_string, added_tags, removed_tags, updater_id, updater_ip, created_at
		FROM post_versions WHERE post_id = ? ORDER BY version`, postID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var versions []*domain.PostVersion
	for rows.Next() {
		var (
			v                  domain.PostVersion
			added, removed, ts string
			ip                 sql.NullString
		)
		if err := rows.Scan(&v.PostID, &v.Version, &v.TagString, &added, &removed, &v.UpdaterID, &ip, &ts); err != nil {
			return nil, err
		}
		v.AddedTags = strings.Fields(added)
		v.RemovedTags = strings.Fields(removed)
		v.UpdaterIP = ip.String
		if v.CreatedAt, err = parseTime(ts); err != nil {
			return nil, err
		}
		versions = append(versions, &v)
	}
	return versions, rows.Err()
}

func writePost(ctx context.Context, tx *sql.Tx, p *domain.Post) error {
	p.TagString = tagname.Join(strings.Fields(p.TagString))
	p.UpdatedAt = time.Now()
	_, err := tx.ExecContext(ctx, `
		UPDATE posts SET tag_string = ?, locked_tags = ?, version = ?, updater_id = ?, updated_at = ?
		WHERE id = ?`,
		p.TagString, p.LockedTags, p.Version, nullString(p.UpdaterID), formatTime(p.UpdatedAt), p.ID,
	)
	if err != nil {
		return fmt.Errorf("update post: %w", classify(err))
	}
	return syncPostTags(ctx, tx, p.ID, p.TagString)
}

func syncPostTags(ctx context.Context, tx *sql.Tx, postID, tagString string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM post_tags WHERE post_id = ?`, postID); err != nil {
		return classify(err)
	}
	for _, name := range strings.Fields(tagString) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO post_tags (tag_name, post_id) VALUES (?, ?)`, name, postID,
		); err != nil {
			return fmt.Errorf("index tag %q: %w", name, classify(err))
		}
	}
	return nil
}

// difference returns the members of a not in b. Both must be sorted.
func difference(a, b []string) []string {
	var out []string
	for _, x := range a {
		if _, found := slices.BinarySearch(b, x); !found {
			out = append(out, x)
		}
	}
	return out
}
