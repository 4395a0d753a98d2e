package sqlite

import (
	"context"
	"time"

	"github.com/tagyard/tagyard-server/internal/domain"
)

// CreateForumTopic inserts a topic.
func (s *Store) CreateForumTopic(ctx context.Context, t *domain.ForumTopic) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO forum_topics (id, title, creator_id, created_at) VALUES (?, ?, ?, ?)`,
		t.ID, t.Title, t.CreatorID, formatTime(t.CreatedAt),
	)
	return classify(err)
}

// GetForumTopic retrieves a topic by ID.
func (s *Store) GetForumTopic(ctx context.Context, topicID string) (*domain.ForumTopic, error) {
	var (
		t         domain.ForumTopic
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, creator_id, created_at FROM forum_topics WHERE id = ?`, topicID,
	).Scan(&t.ID, &t.Title, &t.CreatorID, &createdAt)
	if err != nil {
		return nil, notFound(err)
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateForumPost inserts a post into a topic.
func (s *Store) CreateForumPost(ctx context.Context, p *domain.ForumPost) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO forum_posts (id, topic_id, creator_id, body, created_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.TopicID, p.CreatorID, p.Body, formatTime(p.CreatedAt),
	)
	return classify(err)
}

// ListForumPosts returns a topic's posts, oldest first.
func (s *Store) ListForumPosts(ctx context.Context, topicID string) ([]*domain.ForumPost, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, topic_id, creator_id, body, created_at
		FROM forum_posts WHERE topic_id = ? ORDER BY created_at, id`, topicID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var posts []*domain.ForumPost
	for rows.Next() {
		var (
			p         domain.ForumPost
			createdAt string
		)
		if err := rows.Scan(&p.ID, &p.TopicID, &p.CreatorID, &p.Body, &createdAt); err != nil {
			return nil, err
		}
		if p.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		posts = append(posts, &p)
	}
	return posts, rows.Err()
}
