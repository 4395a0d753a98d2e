package relationship

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strings"

	"github.com/tagyard/tagyard-server/internal/domain"
	"github.com/tagyard/tagyard-server/internal/errors"
	"github.com/tagyard/tagyard-server/internal/id"
	"github.com/tagyard/tagyard-server/internal/jobs"
	"github.com/tagyard/tagyard-server/internal/store"
	"github.com/tagyard/tagyard-server/internal/tagname"
)

// Proposal is a request to create a relationship.
type Proposal struct {
	Kind         domain.RelationshipKind
	Antecedent   string
	Consequent   string
	ForumTopicID string
}

// Propose validates and stores a new pending relationship.
func (e *Engine) Propose(ctx context.Context, actor domain.Actor, p Proposal) (*domain.Relationship, error) {
	r, err := e.propose(ctx, actor, p)
	if e.metrics != nil {
		e.metrics.Proposals.WithLabelValues(string(p.Kind), proposalResult(err)).Inc()
	}
	return r, err
}

func (e *Engine) propose(ctx context.Context, actor domain.Actor, p Proposal) (*domain.Relationship, error) {
	if !actor.CanPropose() {
		return nil, errors.Forbidden("you may not propose relationships")
	}
	if !p.Kind.Valid() {
		return nil, errors.Validationf("unknown relationship kind %q", p.Kind)
	}

	ante := tagname.Normalize(p.Antecedent)
	cons := tagname.Normalize(p.Consequent)

	violations := make(map[string]string)
	if err := tagname.Validate(ante); err != nil {
		violations["antecedent_name"] = err.Error()
	}
	if err := tagname.Validate(cons); err != nil {
		violations["consequent_name"] = err.Error()
	}
	if ante == cons && ante != "" {
		violations["consequent_name"] = "antecedent and consequent must differ"
	}
	if p.ForumTopicID != "" {
		if _, err := e.store.GetForumTopic(ctx, p.ForumTopicID); err != nil {
			if !stderrors.Is(err, store.ErrNotFound) {
				return nil, err
			}
			violations["forum_topic_id"] = "forum topic does not exist"
		}
	}
	if len(violations) > 0 {
		return nil, invalid(violations)
	}

	if e.limiter != nil && !e.limiter.Allow(actor.UserID) {
		return nil, errors.RateLimited("too many proposals, try again later")
	}

	t := now()
	r := &domain.Relationship{
		ID:             id.MustGenerate(id.PrefixRelationship),
		Kind:           p.Kind,
		AntecedentName: ante,
		ConsequentName: cons,
		Status:         domain.StatusPending,
		CreatorID:      actor.UserID,
		CreatorIP:      actor.IP,
		ForumTopicID:   p.ForumTopicID,
		CreatedAt:      t,
		UpdatedAt:      t,
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkInvariants(r); err != nil {
		return nil, err
	}
	for _, name := range []string{ante, cons} {
		if _, err := e.store.FindOrCreateTag(ctx, name); err != nil {
			return nil, err
		}
	}
	if err := e.store.CreateRelationship(ctx, r); err != nil {
		return nil, err
	}
	e.graph.Put(r)
	e.reindex(r)
	e.audit(ctx, domain.ModActionCreate, actor, r, nil)

	e.logger.Info("relationship proposed",
		slog.String("relationship_id", r.ID),
		slog.String("kind", string(r.Kind)),
		slog.String("antecedent", ante),
		slog.String("consequent", cons),
		slog.String("creator_id", actor.UserID),
	)
	return r, nil
}

// Approve moves a pending or failed relationship to queued, snapshots the undo
// ledger and schedules propagation.
func (e *Engine) Approve(ctx context.Context, actor domain.Actor, relID string) (*domain.Relationship, error) {
	if !actor.IsModerator() && actor.Level < domain.LevelBuilder {
		return nil, errors.Forbidden("you may not approve relationships")
	}

	e.mu.Lock()
	r, err := e.Get(ctx, relID)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	prev := r.Clone()

	switch {
	case r.UndoPending():
		e.mu.Unlock()
		return nil, errors.Conflictf("relationship %s has an undo pending", relID)
	case r.Status != domain.StatusPending && !r.Status.IsError():
		e.mu.Unlock()
		return nil, errors.Conflictf("relationship %s is %s and cannot be approved", relID, r.Status)
	}

	postCount, err := e.store.RecountTag(ctx, r.AntecedentName)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if !actor.CanApprove(postCount, e.cfg.BuilderApprovalLimit) {
		e.mu.Unlock()
		return nil, errors.Forbiddenf("%s may not approve a relationship affecting %d posts", actor.Level, postCount)
	}

	if err := e.checkInvariants(r); err != nil {
		e.mu.Unlock()
		return nil, err
	}

	r.Status = domain.StatusQueued
	r.ApproverID = actor.UserID
	r.Touch()
	if err := e.save(ctx, r); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	e.mu.Unlock()

	e.audit(ctx, domain.ModActionStatusChange, actor, r, map[string]any{"from": string(prev.Status)})

	kind, err := e.kindOf(r)
	if err != nil {
		return nil, e.revert(ctx, prev, err)
	}
	recorded, err := e.prepareLedger(ctx, prev)
	if err != nil {
		return nil, e.revert(ctx, prev, err)
	}
	if err := kind.Snapshot(ctx, e, r, recorded); err != nil {
		return nil, e.revert(ctx, prev, err)
	}
	if err := e.dispatch(ctx, r, domain.TransitionApprove); err != nil {
		return nil, e.revert(ctx, prev, err)
	}

	e.logger.Info("relationship queued",
		slog.String("relationship_id", r.ID),
		slog.String("approver_id", actor.UserID),
	)
	return r, nil
}

// revert restores prev after a failed approval and returns cause.
func (e *Engine) revert(ctx context.Context, prev *domain.Relationship, cause error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	prev.Touch()
	if err := e.save(context.WithoutCancel(ctx), prev); err != nil {
		e.logger.Error("failed to revert relationship",
			slog.String("relationship_id", prev.ID),
			slog.String("error", err.Error()),
		)
	}
	return cause
}

// Reject marks a pending, active or failed relationship as deleted. A
// relationship with an undo pending must finish its undo first.
func (e *Engine) Reject(ctx context.Context, actor domain.Actor, relID string) (*domain.Relationship, error) {
	if !actor.IsModerator() {
		return nil, errors.Forbidden("only moderators may reject relationships")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	r, err := e.Get(ctx, relID)
	if err != nil {
		return nil, err
	}
	switch {
	case r.UndoPending():
		return nil, errors.Conflictf("relationship %s has an undo pending", relID)
	case r.Status != domain.StatusPending && r.Status != domain.StatusActive && !r.Status.IsError():
		return nil, errors.Conflictf("relationship %s is %s and cannot be rejected", relID, r.Status)
	}
	from := r.Status
	wasActive := r.IsActive()

	r.Status = domain.StatusDeleted
	r.Touch()
	if err := e.save(ctx, r); err != nil {
		return nil, err
	}
	if wasActive && r.Kind == domain.KindImplication {
		if err := e.cascade(ctx, r.AntecedentName); err != nil {
			e.logger.Error("descendant cascade failed", slog.String("relationship_id", r.ID), slog.String("error", err.Error()))
		}
	}

	e.audit(ctx, domain.ModActionStatusChange, actor, r, map[string]any{"from": string(from)})
	e.announce(ctx, r, domain.EventRejected, "")
	e.logger.Info("relationship rejected", slog.String("relationship_id", r.ID), slog.String("moderator_id", actor.UserID))
	return r, nil
}

// Undo takes an active relationship out of the graph and schedules the ledger
// replay. A relationship whose previous undo failed may be undone again.
func (e *Engine) Undo(ctx context.Context, actor domain.Actor, relID string) (*domain.Relationship, error) {
	if !actor.IsModerator() {
		return nil, errors.Forbidden("only moderators may undo relationships")
	}

	e.mu.Lock()
	r, err := e.Get(ctx, relID)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if !r.IsActive() && !r.UndoPending() {
		e.mu.Unlock()
		return nil, errors.Conflictf("relationship %s is %s and cannot be undone", relID, r.Status)
	}
	from := r.Status

	if r.IsActive() {
		t := now()
		r.Status = domain.StatusPending
		r.UndoRequestedAt = &t
		r.Touch()
		if err := e.save(ctx, r); err != nil {
			e.mu.Unlock()
			return nil, err
		}
		if r.Kind == domain.KindImplication {
			if err := e.cascade(ctx, r.AntecedentName); err != nil {
				e.logger.Error("descendant cascade failed", slog.String("relationship_id", r.ID), slog.String("error", err.Error()))
			}
		}
	}
	e.mu.Unlock()

	e.audit(ctx, domain.ModActionStatusChange, actor, r, map[string]any{"from": string(from), "undo": true})

	if err := e.dispatch(ctx, r, domain.TransitionUndo); err != nil {
		return nil, err
	}
	e.logger.Info("relationship undo queued", slog.String("relationship_id", r.ID), slog.String("moderator_id", actor.UserID))
	return r, nil
}

func (e *Engine) dispatch(ctx context.Context, r *domain.Relationship, transition domain.Transition) error {
	if e.dispatcher == nil {
		return errors.Internalf("no job dispatcher configured")
	}
	job := &jobs.Job{RelationshipID: r.ID, Transition: transition}
	if err := e.dispatcher.Enqueue(ctx, job); err != nil {
		return errors.Transient(err)
	}
	return nil
}

// checkInvariants applies the kind's graph rules. Callers hold e.mu.
func (e *Engine) checkInvariants(r *domain.Relationship) error {
	kind, err := e.kindOf(r)
	if err != nil {
		return err
	}
	problems := kind.ValidateInvariants(e.graph, r)
	if len(problems) == 0 {
		return nil
	}
	return errors.ValidationWithDetails(strings.Join(problems, "; "), map[string][]string{"relationship": problems})
}

func invalid(violations map[string]string) error {
	msgs := make([]string, 0, len(violations))
	for _, field := range []string{"antecedent_name", "consequent_name", "forum_topic_id"} {
		if m, ok := violations[field]; ok {
			msgs = append(msgs, m)
		}
	}
	return errors.ValidationWithDetails(strings.Join(msgs, "; "), violations)
}

func proposalResult(err error) string {
	if err == nil {
		return "created"
	}
	return strings.ToLower(string(errors.CodeOf(err)))
}
