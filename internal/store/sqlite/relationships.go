package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/tagyard/tagyard-server/internal/domain"
	"github.com/tagyard/tagyard-server/internal/store"
)

const relationshipColumns = `id, kind, antecedent_name, consequent_name, status,
	creator_id, creator_ip, approver_id, forum_topic_id, forum_post_id,
	post_count, descendant_names, undo_requested_at, created_at, updated_at`

func scanRelationship(sc scanner) (*domain.Relationship, error) {
	var (
		r                                      domain.Relationship
		creatorIP, approverID, topicID, postID sql.NullString
		descendants                            string
		undoRequestedAt                        sql.NullString
		createdAt, updatedAt                   string
	)
	err := sc.Scan(
		&r.ID, &r.Kind, &r.AntecedentName, &r.ConsequentName, &r.Status,
		&r.CreatorID, &creatorIP, &approverID, &topicID, &postID,
		&r.PostCount, &descendants, &undoRequestedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.CreatorIP = creatorIP.String
	r.ApproverID = approverID.String
	r.ForumTopicID = topicID.String
	r.ForumPostID = postID.String
	r.DescendantNames = strings.Fields(descendants)

	if r.UndoRequestedAt, err = parseNullableTime(undoRequestedAt); err != nil {
		return nil, err
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateRelationship inserts a relationship.
func (s *Store) CreateRelationship(ctx context.Context, r *domain.Relationship) error {
	now := time.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tag_relationships (`+relationshipColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Kind, r.AntecedentName, r.ConsequentName, r.Status,
		r.CreatorID, nullString(r.CreatorIP), nullString(r.ApproverID),
		nullString(r.ForumTopicID), nullString(r.ForumPostID),
		r.PostCount, strings.Join(r.DescendantNames, " "), nullTimeString(r.UndoRequestedAt),
		formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return classify(err)
}

// GetRelationship retrieves a relationship by ID.
func (s *Store) GetRelationship(ctx context.Context, relID string) (*domain.Relationship, error) {
	r, err := scanRelationship(s.db.QueryRowContext(ctx,
		`SELECT `+relationshipColumns+` FROM tag_relationships WHERE id = ?`, relID))
	if err != nil {
		return nil, notFound(err)
	}
	return r, nil
}

// UpdateRelationship saves every mutable column.
func (s *Store) UpdateRelationship(ctx context.Context, r *domain.Relationship) error {
	r.UpdatedAt = time.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE tag_relationships SET
			antecedent_name = ?, consequent_name = ?, status = ?, approver_id = ?,
			forum_topic_id = ?, forum_post_id = ?, post_count = ?, descendant_names = ?,
			undo_requested_at = ?, updated_at = ?
		WHERE id = ?`,
		r.AntecedentName, r.ConsequentName, r.Status, nullString(r.ApproverID),
		nullString(r.ForumTopicID), nullString(r.ForumPostID), r.PostCount,
		strings.Join(r.DescendantNames, " "), nullTimeString(r.UndoRequestedAt),
		formatTime(r.UpdatedAt), r.ID,
	)
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteRelationship removes a relationship; undo entries cascade.
func (s *Store) DeleteRelationship(ctx context.Context, relID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tag_relationships WHERE id = ?`, relID)
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListRelationships returns relationships matching filter, newest first.
// A zero Limit returns every match.
func (s *Store) ListRelationships(ctx context.Context, f domain.RelationshipFilter) ([]*domain.Relationship, error) {
	var (
		where []string
		args  []any
	)
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, f.Kind)
	}
	if f.Status != "" {
		if f.Status == "error" {
			where = append(where, "status LIKE 'error:%'")
		} else {
			where = append(where, "status = ?")
			args = append(args, f.Status)
		}
	}
	if f.Name != "" {
		where = append(where, "(antecedent_name = ? OR consequent_name = ?)")
		args = append(args, f.Name, f.Name)
	}

	query := `SELECT ` + relationshipColumns + ` FROM tag_relationships`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id`
	if f.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []*domain.Relationship
	for rows.Next() {
		r, err := scanRelationship(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, classify(rows.Err())
}
