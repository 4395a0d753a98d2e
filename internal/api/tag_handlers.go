package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/tagyard/tagyard-server/internal/tagname"
)

func (s *Server) registerTagRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getTagDescendants",
		Method:      http.MethodGet,
		Path:        "/api/v1/tags/{name}/descendants",
		Summary:     "Get tag descendants",
		Description: "Returns every tag implied by this tag through active implications",
		Tags:        []string{"Tags"},
	}, s.handleGetTagDescendants)

	huma.Register(s.api, huma.Operation{
		OperationID: "getTagAncestors",
		Method:      http.MethodGet,
		Path:        "/api/v1/tags/{name}/ancestors",
		Summary:     "Get tag ancestors",
		Description: "Returns the tags whose active implications lead to this tag",
		Tags:        []string{"Tags"},
	}, s.handleGetTagAncestors)

	huma.Register(s.api, huma.Operation{
		OperationID: "getTagAlias",
		Method:      http.MethodGet,
		Path:        "/api/v1/tags/{name}/alias",
		Summary:     "Resolve tag alias",
		Description: "Returns the tag this name resolves to through active aliases",
		Tags:        []string{"Tags"},
	}, s.handleGetTagAlias)
}

// === DTOs ===

// TagNameInput addresses one tag by name.
type TagNameInput struct {
	Name string `path:"name" doc:"Tag name"`
}

// TagDescendantsResponse lists implied tags.
type TagDescendantsResponse struct {
	Name        string   `json:"name" doc:"Normalized tag name"`
	Descendants []string `json:"descendants" doc:"Implied tags, sorted"`
}

// TagDescendantsOutput wraps the descendants response for Huma.
type TagDescendantsOutput struct {
	Body TagDescendantsResponse
}

// TagAncestorsResponse lists implying tags.
type TagAncestorsResponse struct {
	Name      string   `json:"name" doc:"Normalized tag name"`
	Ancestors []string `json:"ancestors" doc:"Tags implying this one, sorted"`
}

// TagAncestorsOutput wraps the ancestors response for Huma.
type TagAncestorsOutput struct {
	Body TagAncestorsResponse
}

// TagAliasResponse reports alias resolution.
type TagAliasResponse struct {
	Name    string `json:"name" doc:"Normalized tag name"`
	Target  string `json:"target" doc:"Tag the name resolves to"`
	Aliased bool   `json:"aliased" doc:"Whether an active alias applies"`
}

// TagAliasOutput wraps the alias response for Huma.
type TagAliasOutput struct {
	Body TagAliasResponse
}

// === Handlers ===

func (s *Server) handleGetTagDescendants(_ context.Context, input *TagNameInput) (*TagDescendantsOutput, error) {
	name := tagname.Normalize(input.Name)
	return &TagDescendantsOutput{Body: TagDescendantsResponse{
		Name:        name,
		Descendants: nonNil(s.services.Relationships.DescendantsOf(name)),
	}}, nil
}

func (s *Server) handleGetTagAncestors(_ context.Context, input *TagNameInput) (*TagAncestorsOutput, error) {
	name := tagname.Normalize(input.Name)
	return &TagAncestorsOutput{Body: TagAncestorsResponse{
		Name:      name,
		Ancestors: nonNil(s.services.Relationships.AncestorsOf(name)),
	}}, nil
}

func (s *Server) handleGetTagAlias(_ context.Context, input *TagNameInput) (*TagAliasOutput, error) {
	name := tagname.Normalize(input.Name)
	target := s.services.Relationships.AliasedTargetOf(name)
	return &TagAliasOutput{Body: TagAliasResponse{
		Name:    name,
		Target:  target,
		Aliased: target != name,
	}}, nil
}

func nonNil(names []string) []string {
	if names == nil {
		return []string{}
	}
	return names
}
