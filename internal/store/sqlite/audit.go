package sqlite

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tagyard/tagyard-server/internal/domain"
)

// RecordModAction appends an audit row.
func (s *Store) RecordModAction(ctx context.Context, a *domain.ModAction) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	payload, err := json.Marshal(a.Payload)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO mod_actions (id, kind, creator_id, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.Kind, a.CreatorID, string(payload), formatTime(a.CreatedAt),
	)
	return classify(err)
}

// ListModActions returns the most recent audit rows.
func (s *Store) ListModActions(ctx context.Context, limit int) ([]*domain.ModAction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, creator_id, payload, created_at
		FROM mod_actions ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var actions []*domain.ModAction
	for rows.Next() {
		var (
			a                  domain.ModAction
			payload, createdAt string
		)
		if err := rows.Scan(&a.ID, &a.Kind, &a.CreatorID, &payload, &createdAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &a.Payload); err != nil {
			return nil, err
		}
		if a.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		actions = append(actions, &a)
	}
	return actions, rows.Err()
}
