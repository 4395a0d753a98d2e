// Package service holds application services that sit between the HTTP
// handlers and the stores.
package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tagyard/tagyard-server/internal/domain"
	"github.com/tagyard/tagyard-server/internal/errors"
	"github.com/tagyard/tagyard-server/internal/store"
	"github.com/tagyard/tagyard-server/internal/tagname"
)

// TagResolver resolves tags through the active relationship graph.
type TagResolver interface {
	AliasedTargetOf(tag string) string
	DescendantsOf(tag string) []string
}

// PostService applies ordinary tag edits to posts.
type PostService struct {
	store    store.Store
	resolver TagResolver
	logger   *slog.Logger
}

// NewPostService creates a new post service.
func NewPostService(store store.Store, resolver TagResolver, logger *slog.Logger) *PostService {
	return &PostService{store: store, resolver: resolver, logger: logger}
}

// UpdateTags replaces a post's tags. Each name is normalized, resolved through
// active aliases and expanded with everything it implies before the post is
// written with a new version.
func (s *PostService) UpdateTags(ctx context.Context, actor domain.Actor, postID, tagString string) (*domain.Post, error) {
	if !actor.CanPropose() {
		return nil, errors.Forbidden("you may not edit posts")
	}

	before, err := s.store.GetPost(ctx, postID)
	if err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			return nil, errors.NotFoundf("post %s not found", postID)
		}
		return nil, err
	}

	names, err := s.resolve(tagString)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		if _, err := s.store.FindOrCreateTag(ctx, name); err != nil {
			return nil, fmt.Errorf("register tag %q: %w", name, err)
		}
	}

	after, err := s.store.UpdatePostTags(ctx, postID, tagname.Join(names), actor)
	if err != nil {
		return nil, err
	}

	changed := symmetricDifference(tagname.Split(before.TagString), tagname.Split(after.TagString))
	for _, name := range changed {
		if _, err := s.store.RecountTag(ctx, name); err != nil {
			s.logger.Warn("recount failed", slog.String("tag", name), slog.String("error", err.Error()))
		}
	}

	if len(changed) > 0 {
		s.logger.Info("post tags updated",
			slog.String("post_id", postID),
			slog.String("user_id", actor.UserID),
			slog.Int("version", after.Version),
			slog.Int("changed", len(changed)),
		)
	}
	return after, nil
}

// resolve normalizes, validates, de-aliases and expands the names in tagString.
func (s *PostService) resolve(tagString string) ([]string, error) {
	invalid := make(map[string]string)
	var names []string
	for _, raw := range strings.Fields(tagString) {
		name := tagname.Normalize(raw)
		if err := tagname.Validate(name); err != nil {
			invalid[raw] = err.Error()
			continue
		}
		canonical := s.resolver.AliasedTargetOf(name)
		names = append(names, canonical)
		names = append(names, s.resolver.DescendantsOf(canonical)...)
	}
	if len(invalid) > 0 {
		return nil, errors.ValidationWithDetails("invalid tags", invalid)
	}
	return tagname.Set(names), nil
}

// symmetricDifference returns names in exactly one of two sorted sets.
func symmetricDifference(a, b []string) []string {
	var out []string
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case j == len(b) || (i < len(a) && a[i] < b[j]):
			out = append(out, a[i])
			i++
		case i == len(a) || b[j] < a[i]:
			out = append(out, b[j])
			j++
		default:
			i++
			j++
		}
	}
	return out
}
