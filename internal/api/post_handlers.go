package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/tagyard/tagyard-server/internal/domain"
)

func (s *Server) registerPostRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "updatePostTags",
		Method:      http.MethodPut,
		Path:        "/api/v1/posts/{id}/tags",
		Summary:     "Update post tags",
		Description: "Replaces a post's tags, resolving aliases and adding implied tags",
		Tags:        []string{"Posts"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleUpdatePostTags)
}

// UpdatePostTagsRequest is the request body for a tag edit.
type UpdatePostTagsRequest struct {
	TagString string `json:"tag_string" validate:"max=10000" doc:"Space separated tag names"`
}

// UpdatePostTagsInput wraps the tag edit for Huma.
type UpdatePostTagsInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Post ID"`
	Body          UpdatePostTagsRequest
}

// PostResponse contains post data in API responses.
type PostResponse struct {
	ID         string    `json:"id" doc:"Post ID"`
	TagString  string    `json:"tag_string" doc:"Space separated tag names"`
	LockedTags string    `json:"locked_tags,omitempty" doc:"Moderator locked tags"`
	Version    int       `json:"version" doc:"Edit version"`
	UpdatedAt  time.Time `json:"updated_at" doc:"Last update time"`
}

// PostOutput wraps the post response for Huma.
type PostOutput struct {
	Body PostResponse
}

func toPostResponse(p *domain.Post) PostResponse {
	return PostResponse{
		ID:         p.ID,
		TagString:  p.TagString,
		LockedTags: p.LockedTags,
		Version:    p.Version,
		UpdatedAt:  p.UpdatedAt,
	}
}

func (s *Server) handleUpdatePostTags(ctx context.Context, input *UpdatePostTagsInput) (*PostOutput, error) {
	actor, err := RequireActor(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, err
	}

	post, err := s.services.Posts.UpdateTags(ctx, actor, input.ID, input.Body.TagString)
	if err != nil {
		return nil, err
	}
	return &PostOutput{Body: toPostResponse(post)}, nil
}
