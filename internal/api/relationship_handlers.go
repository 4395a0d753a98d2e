package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/tagyard/tagyard-server/internal/domain"
	"github.com/tagyard/tagyard-server/internal/relationship"
	"github.com/tagyard/tagyard-server/internal/search"
	"github.com/tagyard/tagyard-server/internal/sse"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

func (s *Server) registerRelationshipRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "proposeRelationship",
		Method:        http.MethodPost,
		Path:          "/api/v1/relationships",
		Summary:       "Propose relationship",
		Description:   "Proposes a new alias or implication between two tags",
		Tags:          []string{"Relationships"},
		DefaultStatus: http.StatusCreated,
		Security:      []map[string][]string{{"bearer": {}}},
	}, s.handleProposeRelationship)

	huma.Register(s.api, huma.Operation{
		OperationID: "listRelationships",
		Method:      http.MethodGet,
		Path:        "/api/v1/relationships",
		Summary:     "List relationships",
		Description: "Returns relationships filtered by kind, status, or tag name, newest first",
		Tags:        []string{"Relationships"},
	}, s.handleListRelationships)

	huma.Register(s.api, huma.Operation{
		OperationID: "searchRelationships",
		Method:      http.MethodGet,
		Path:        "/api/v1/relationships/search",
		Summary:     "Search relationships",
		Description: "Fuzzy search over relationship endpoint names",
		Tags:        []string{"Relationships"},
	}, s.handleSearchRelationships)

	huma.Register(s.api, huma.Operation{
		OperationID: "getRelationship",
		Method:      http.MethodGet,
		Path:        "/api/v1/relationships/{id}",
		Summary:     "Get relationship",
		Description: "Returns a relationship by ID",
		Tags:        []string{"Relationships"},
	}, s.handleGetRelationship)

	huma.Register(s.api, huma.Operation{
		OperationID: "approveRelationship",
		Method:      http.MethodPost,
		Path:        "/api/v1/relationships/{id}/approve",
		Summary:     "Approve relationship",
		Description: "Queues a pending relationship for propagation",
		Tags:        []string{"Relationships"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleApproveRelationship)

	huma.Register(s.api, huma.Operation{
		OperationID: "rejectRelationship",
		Method:      http.MethodPost,
		Path:        "/api/v1/relationships/{id}/reject",
		Summary:     "Reject relationship",
		Description: "Rejects a pending relationship or deletes an active one",
		Tags:        []string{"Relationships"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleRejectRelationship)

	huma.Register(s.api, huma.Operation{
		OperationID: "undoRelationship",
		Method:      http.MethodPost,
		Path:        "/api/v1/relationships/{id}/undo",
		Summary:     "Undo relationship",
		Description: "Queues the reversal of an active relationship",
		Tags:        []string{"Relationships"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleUndoRelationship)
}

// === DTOs ===

// RelationshipResponse contains relationship data in API responses.
type RelationshipResponse struct {
	ID              string     `json:"id" doc:"Relationship ID"`
	Kind            string     `json:"kind" doc:"alias or implication"`
	Antecedent      string     `json:"antecedent" doc:"Antecedent tag name"`
	Consequent      string     `json:"consequent" doc:"Consequent tag name"`
	Status          string     `json:"status" doc:"Lifecycle status"`
	ErrorMessage    string     `json:"error_message,omitempty" doc:"Failure message when parked in error"`
	CreatorID       string     `json:"creator_id" doc:"Proposing user"`
	ApproverID      string     `json:"approver_id,omitempty" doc:"Approving user"`
	ForumTopicID    string     `json:"forum_topic_id,omitempty" doc:"Linked discussion topic"`
	PostCount       int        `json:"post_count" doc:"Antecedent post count at activation"`
	DescendantNames []string   `json:"descendant_names,omitempty" doc:"Cached implication closure"`
	UndoRequestedAt *time.Time `json:"undo_requested_at,omitempty" doc:"Set while an undo is pending"`
	CreatedAt       time.Time  `json:"created_at" doc:"Creation time"`
	UpdatedAt       time.Time  `json:"updated_at" doc:"Last update time"`
}

func toRelationshipResponse(r *domain.Relationship) RelationshipResponse {
	resp := RelationshipResponse{
		ID:              r.ID,
		Kind:            string(r.Kind),
		Antecedent:      r.AntecedentName,
		Consequent:      r.ConsequentName,
		Status:          string(r.Status),
		CreatorID:       r.CreatorID,
		ApproverID:      r.ApproverID,
		ForumTopicID:    r.ForumTopicID,
		PostCount:       r.PostCount,
		DescendantNames: r.DescendantNames,
		UndoRequestedAt: r.UndoRequestedAt,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if r.Status.IsError() {
		resp.Status = "error"
		resp.ErrorMessage = r.Status.ErrorMessage()
	}
	return resp
}

func toRelationshipResponses(rels []*domain.Relationship) []RelationshipResponse {
	out := make([]RelationshipResponse, 0, len(rels))
	for _, r := range rels {
		out = append(out, toRelationshipResponse(r))
	}
	return out
}

// RelationshipOutput wraps a single relationship for Huma.
type RelationshipOutput struct {
	Body RelationshipResponse
}

// ProposeRelationshipRequest is the request body for a proposal.
type ProposeRelationshipRequest struct {
	Kind         string `json:"kind" validate:"required,oneof=alias implication" doc:"alias or implication"`
	Antecedent   string `json:"antecedent" validate:"required,tagname" doc:"Antecedent tag name"`
	Consequent   string `json:"consequent" validate:"required,tagname" doc:"Consequent tag name"`
	ForumTopicID string `json:"forum_topic_id,omitempty" doc:"Discussion topic to link"`
}

// ProposeRelationshipInput wraps the proposal request for Huma.
type ProposeRelationshipInput struct {
	Authorization string `header:"Authorization"`
	Body          ProposeRelationshipRequest
}

// ListRelationshipsInput contains list filters.
type ListRelationshipsInput struct {
	Kind   string `query:"kind" enum:"alias,implication" doc:"Filter by kind"`
	Status string `query:"status" doc:"Filter by status"`
	Name   string `query:"name" doc:"Filter by either endpoint name"`
	Limit  int    `query:"limit" minimum:"0" maximum:"500" doc:"Page size (default 50)"`
	Offset int    `query:"offset" minimum:"0" doc:"Rows to skip"`
}

// ListRelationshipsResponse contains a page of relationships.
type ListRelationshipsResponse struct {
	Relationships []RelationshipResponse `json:"relationships" doc:"Matching relationships"`
}

// ListRelationshipsOutput wraps the list response for Huma.
type ListRelationshipsOutput struct {
	Body ListRelationshipsResponse
}

// SearchRelationshipsInput contains search parameters.
type SearchRelationshipsInput struct {
	Query  string `query:"q" doc:"Tag name, prefix, or fuzzy term"`
	Kind   string `query:"kind" enum:"alias,implication" doc:"Filter by kind"`
	Status string `query:"status" doc:"Filter by status"`
	Limit  int    `query:"limit" minimum:"0" maximum:"500" doc:"Page size (default 50)"`
	Offset int    `query:"offset" minimum:"0" doc:"Hits to skip"`
}

// SearchRelationshipsResponse contains search hits.
type SearchRelationshipsResponse struct {
	Relationships []RelationshipResponse `json:"relationships" doc:"Matching relationships, best first"`
	Total         uint64                 `json:"total" doc:"Total hits before paging"`
}

// SearchRelationshipsOutput wraps the search response for Huma.
type SearchRelationshipsOutput struct {
	Body SearchRelationshipsResponse
}

// RelationshipIDInput addresses one relationship.
type RelationshipIDInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Relationship ID"`
}

// === Handlers ===

func (s *Server) handleProposeRelationship(ctx context.Context, input *ProposeRelationshipInput) (*RelationshipOutput, error) {
	actor, err := RequireActor(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, err
	}

	r, err := s.services.Relationships.Propose(ctx, actor, relationship.Proposal{
		Kind:         domain.RelationshipKind(input.Body.Kind),
		Antecedent:   input.Body.Antecedent,
		Consequent:   input.Body.Consequent,
		ForumTopicID: input.Body.ForumTopicID,
	})
	if err != nil {
		return nil, err
	}

	s.emit(sse.NewProposedEvent(r))
	return &RelationshipOutput{Body: toRelationshipResponse(r)}, nil
}

func (s *Server) handleListRelationships(ctx context.Context, input *ListRelationshipsInput) (*ListRelationshipsOutput, error) {
	rels, err := s.services.Relationships.List(ctx, domain.RelationshipFilter{
		Kind:   domain.RelationshipKind(input.Kind),
		Status: domain.Status(input.Status),
		Name:   input.Name,
		Limit:  pageSize(input.Limit),
		Offset: input.Offset,
	})
	if err != nil {
		return nil, err
	}
	return &ListRelationshipsOutput{Body: ListRelationshipsResponse{Relationships: toRelationshipResponses(rels)}}, nil
}

func (s *Server) handleSearchRelationships(ctx context.Context, input *SearchRelationshipsInput) (*SearchRelationshipsOutput, error) {
	rels, total, err := s.services.Relationships.Search(ctx, search.Params{
		Query:  input.Query,
		Kind:   domain.RelationshipKind(input.Kind),
		Status: input.Status,
		Limit:  pageSize(input.Limit),
		Offset: input.Offset,
	})
	if err != nil {
		return nil, err
	}
	return &SearchRelationshipsOutput{Body: SearchRelationshipsResponse{
		Relationships: toRelationshipResponses(rels),
		Total:         total,
	}}, nil
}

func (s *Server) handleGetRelationship(ctx context.Context, input *RelationshipIDInput) (*RelationshipOutput, error) {
	r, err := s.services.Relationships.Get(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &RelationshipOutput{Body: toRelationshipResponse(r)}, nil
}

func (s *Server) handleApproveRelationship(ctx context.Context, input *RelationshipIDInput) (*RelationshipOutput, error) {
	actor, err := RequireActor(ctx)
	if err != nil {
		return nil, err
	}

	r, err := s.services.Relationships.Approve(ctx, actor, input.ID)
	if err != nil {
		return nil, err
	}

	s.emit(sse.NewQueuedEvent(r, domain.TransitionApprove))
	return &RelationshipOutput{Body: toRelationshipResponse(r)}, nil
}

func (s *Server) handleRejectRelationship(ctx context.Context, input *RelationshipIDInput) (*RelationshipOutput, error) {
	actor, err := RequireActor(ctx)
	if err != nil {
		return nil, err
	}

	r, err := s.services.Relationships.Reject(ctx, actor, input.ID)
	if err != nil {
		return nil, err
	}
	return &RelationshipOutput{Body: toRelationshipResponse(r)}, nil
}

func (s *Server) handleUndoRelationship(ctx context.Context, input *RelationshipIDInput) (*RelationshipOutput, error) {
	actor, err := RequireActor(ctx)
	if err != nil {
		return nil, err
	}

	r, err := s.services.Relationships.Undo(ctx, actor, input.ID)
	if err != nil {
		return nil, err
	}

	s.emit(sse.NewQueuedEvent(r, domain.TransitionUndo))
	return &RelationshipOutput{Body: toRelationshipResponse(r)}, nil
}

func pageSize(limit int) int {
	switch {
	case limit <= 0:
		return defaultPageSize
	case limit > maxPageSize:
		return maxPageSize
	default:
		return limit
	}
}
