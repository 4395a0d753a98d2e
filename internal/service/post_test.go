package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagyard/tagyard-server/internal/domain"
	"github.com/tagyard/tagyard-server/internal/errors"
	"github.com/tagyard/tagyard-server/internal/logger"
	"github.com/tagyard/tagyard-server/internal/store/sqlite"
)

type mapResolver struct {
	aliases     map[string]string
	descendants map[string][]string
}

func (m mapResolver) AliasedTargetOf(tag string) string {
	if to, ok := m.aliases[tag]; ok {
		return to
	}
	return tag
}

func (m mapResolver) DescendantsOf(tag string) []string {
	return m.descendants[tag]
}

func setupPostService(t *testing.T) (*PostService, *sqlite.Store) {
	t.Helper()
	s, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"), logger.Discard().Logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	resolver := mapResolver{
		aliases:     map[string]string{"doggy": "dog"},
		descendants: map[string][]string{"dog": {"canine", "mammal"}},
	}
	return NewPostService(s, resolver, logger.Discard().Logger), s
}

func TestPostService_UpdateTags(t *testing.T) {
	svc, s := setupPostService(t)
	ctx := context.Background()
	member := domain.Actor{UserID: "user-1", Level: domain.LevelMember}

	require.NoError(t, s.CreatePost(ctx, &domain.Post{ID: "post-1", TagString: "cat"}))

	post, err := svc.UpdateTags(ctx, member, "post-1", "Doggy  outdoors")
	require.NoError(t, err)
	assert.Equal(t, "canine dog mammal outdoors", post.TagString)
	assert.Equal(t, 2, post.Version)

	versions, err := s.ListPostVersions(ctx, "post-1")
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, []string{"canine", "dog", "mammal", "outdoors"}, versions[0].AddedTags)
	assert.Equal(t, []string{"cat"}, versions[0].RemovedTags)

	dog, err := s.GetTag(ctx, "dog")
	require.NoError(t, err)
	assert.Equal(t, 1, dog.PostCount)
	cat, err := s.GetTag(ctx, "cat")
	if err == nil {
		assert.Equal(t, 0, cat.PostCount)
	}

	_, err = s.GetTag(ctx, "doggy")
	assert.Error(t, err, "aliased names are never registered")
}

func TestPostService_UpdateTagsErrors(t *testing.T) {
	svc, s := setupPostService(t)
	ctx := context.Background()
	require.NoError(t, s.CreatePost(ctx, &domain.Post{ID: "post-1", TagString: "cat"}))

	tests := []struct {
		name     string
		actor    domain.Actor
		postID   string
		tags     string
		wantCode errors.Code
	}{
		{"anonymous", domain.Actor{}, "post-1", "dog", errors.CodeForbidden},
		{"missing post", domain.Actor{UserID: "user-1", Level: domain.LevelMember}, "post-404", "dog", errors.CodeNotFound},
		{"invalid tag", domain.Actor{UserID: "user-1", Level: domain.LevelMember}, "post-1", "dog ,bad", errors.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.UpdateTags(ctx, tt.actor, tt.postID, tt.tags)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, errors.CodeOf(err))
		})
	}
}

func TestSymmetricDifference(t *testing.T) {
	assert.Equal(t, []string{"a", "d"}, symmetricDifference([]string{"a", "b", "c"}, []string{"b", "c", "d"}))
	assert.Empty(t, symmetricDifference([]string{"a"}, []string{"a"}))
}
