package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/tagyard/tagyard-server/internal/domain"
	"github.com/tagyard/tagyard-server/internal/store"
	"github.com/tagyard/tagyard-server/internal/tagname"
)

const userColumns = `id, name, level, blacklisted_tags, created_at, updated_at`

func scanUser(sc scanner) (*domain.User, error) {
	var (
		u                    domain.User
		createdAt, updatedAt string
	)
	err := sc.Scan(&u.ID, &u.Name, &u.Level, &u.BlacklistedTags, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if u.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a new user.
// Returns store.ErrAlreadyExists on duplicate id or name.
func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Level, u.BlacklistedTags, formatTime(u.CreatedAt), formatTime(u.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return classify(err)
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, userID))
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

// RewriteBlacklists swaps whole-token occurrences of from for to in every blacklist.
// The LIKE prefilter is a substring match; ReplaceInText decides per token.
func (s *Store) RewriteBlacklists(ctx context.Context, from, to string) (int, error) {
	changed := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT id, blacklisted_tags FROM users WHERE blacklisted_tags LIKE ? ESCAPE '\'`,
			"%"+escapeLike(from)+"%",
		)
		if err != nil {
			return classify(err)
		}

		type pending struct{ id, text string }
		var updates []pending
		for rows.Next() {
			var userID, text string
			if err := rows.Scan(&userID, &text); err != nil {
				rows.Close()
				return err
			}
			if rewritten := tagname.ReplaceInText(text, from, to); rewritten != text {
				updates = append(updates, pending{userID, rewritten})
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return classify(err)
		}

		now := formatTime(time.Now())
		for _, u := range updates {
			if _, err := tx.ExecContext(ctx,
				`UPDATE users SET blacklisted_tags = ?, updated_at = ? WHERE id = ?`, u.text, now, u.id,
			); err != nil {
				return classify(err)
			}
		}
		changed = len(updates)
		return nil
	})
	return changed, err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
