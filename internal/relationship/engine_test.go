package relationship

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagyard/tagyard-server/internal/domain"
	"github.com/tagyard/tagyard-server/internal/errors"
	"github.com/tagyard/tagyard-server/internal/jobs"
	"github.com/tagyard/tagyard-server/internal/logger"
	"github.com/tagyard/tagyard-server/internal/ratelimit"
	"github.com/tagyard/tagyard-server/internal/search"
	"github.com/tagyard/tagyard-server/internal/tagname"
)

func TestPropose_Validation(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.CreateForumTopic(f.ctx, &domain.ForumTopic{ID: "topic-1", Title: "Aliases", CreatorID: "user-mod"}))

	tests := []struct {
		name     string
		proposal Proposal
		wantCode errors.Code
	}{
		{"self edge", Proposal{Kind: domain.KindAlias, Antecedent: "dog", Consequent: "Dog"}, errors.CodeValidation},
		{"blank antecedent", Proposal{Kind: domain.KindImplication, Antecedent: "  ", Consequent: "dog"}, errors.CodeValidation},
		{"leading dash", Proposal{Kind: domain.KindImplication, Antecedent: "-dog", Consequent: "canine"}, errors.CodeValidation},
		{"metatag", Proposal{Kind: domain.KindAlias, Antecedent: "rating:s", Consequent: "safe"}, errors.CodeValidation},
		{"unknown kind", Proposal{Kind: "merge", Antecedent: "dog", Consequent: "canine"}, errors.CodeValidation},
		{"missing topic", Proposal{Kind: domain.KindAlias, Antecedent: "doggy", Consequent: "dog", ForumTopicID: "topic-404"}, errors.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.Propose(f.ctx, member, tt.proposal)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, errors.CodeOf(err))
		})
	}

	r, err := f.engine.Propose(f.ctx, member, Proposal{
		Kind:         domain.KindAlias,
		Antecedent:   " Long  Hair ",
		Consequent:   "long_hair_(style)",
		ForumTopicID: "topic-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "long_hair", r.AntecedentName)
	assert.Equal(t, domain.StatusPending, r.Status)
	assert.Equal(t, member.UserID, r.CreatorID)

	_, err = f.store.GetTag(f.ctx, "long_hair_(style)")
	assert.NoError(t, err, "proposal registers both tags")
}

func TestPropose_Permissions(t *testing.T) {
	limiter := ratelimit.New(ratelimit.PerHour(1), 1, 0)
	f := newFixture(t, func(d *Deps) { d.Limiter = limiter })

	_, err := f.engine.Propose(f.ctx, domain.Actor{UserID: "anon"}, Proposal{Kind: domain.KindAlias, Antecedent: "a", Consequent: "b"})
	assert.True(t, errors.Is(err, errors.ErrForbidden))

	f.propose(domain.KindAlias, "doggy", "dog")
	_, err = f.engine.Propose(f.ctx, member, Proposal{Kind: domain.KindAlias, Antecedent: "kitty", Consequent: "cat"})
	assert.Equal(t, errors.CodeRateLimited, errors.CodeOf(err))

	_, err = f.engine.Propose(f.ctx, moderator, Proposal{Kind: domain.KindAlias, Antecedent: "kitty", Consequent: "cat"})
	assert.NoError(t, err, "limits are per user")

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Proposals.WithLabelValues("alias", "rate_limited")))
}

func TestPropose_AliasRules(t *testing.T) {
	f := newFixture(t)

	f.propose(domain.KindAlias, "doggy", "dog")
	_, err := f.engine.Propose(f.ctx, member, Proposal{Kind: domain.KindAlias, Antecedent: "doggy", Consequent: "hound"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "doggy is already aliased to dog")

	f.activate(domain.KindAlias, "puppy", "young_dog")
	_, err = f.engine.Propose(f.ctx, member, Proposal{Kind: domain.KindAlias, Antecedent: "pup", Consequent: "puppy"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "puppy is already aliased to young_dog")
}

func TestPropose_ImplicationRules(t *testing.T) {
	f := newFixture(t)
	f.activate(domain.KindImplication, "dog", "canine")
	f.activate(domain.KindImplication, "canine", "mammal")
	f.activate(domain.KindAlias, "doggy", "dog")

	tests := []struct {
		name string
		ante string
		cons string
		want string
	}{
		{"duplicate", "dog", "canine", "dog already implies canine"},
		{"direct cycle", "canine", "dog", "would create a cycle"},
		{"transitive cycle", "mammal", "dog", "would create a cycle"},
		{"redundant", "dog", "mammal", "dog already implies mammal through canine"},
		{"aliased antecedent", "doggy", "pet", "doggy is aliased to dog"},
		{"aliased consequent", "puppy", "doggy", "doggy is aliased to dog"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.Propose(f.ctx, member, Proposal{Kind: domain.KindImplication, Antecedent: tt.ante, Consequent: tt.cons})
			require.Error(t, err)
			assert.Equal(t, errors.CodeValidation, errors.CodeOf(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestPropose_CycleThroughQueuedImplication(t *testing.T) {
	f := newFixture(t)
	f.activate(domain.KindImplication, "dog", "canine")

	queued := f.propose(domain.KindImplication, "canine", "mammal")
	_, err := f.engine.Approve(f.ctx, moderator, queued.ID)
	require.NoError(t, err)

	_, err = f.engine.Propose(f.ctx, member, Proposal{Kind: domain.KindImplication, Antecedent: "mammal", Consequent: "dog"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "would create a cycle")
}

func TestApprove_Permissions(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.Config.BuilderApprovalLimit = 2 })
	for _, id := range []string{"post-1", "post-2", "post-3"} {
		f.post(id, "dog")
	}

	big := f.propose(domain.KindImplication, "dog", "canine")
	small := f.propose(domain.KindImplication, "cat", "feline")

	_, err := f.engine.Approve(f.ctx, member, small.ID)
	assert.Equal(t, errors.CodeForbidden, errors.CodeOf(err))

	_, err = f.engine.Approve(f.ctx, builder, big.ID)
	assert.Equal(t, errors.CodeForbidden, errors.CodeOf(err))
	assert.Equal(t, domain.StatusPending, f.reload(big.ID).Status)

	r, err := f.engine.Approve(f.ctx, builder, small.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, r.Status)
	assert.Equal(t, builder.UserID, r.ApproverID)
}

func TestApprove_StatusGuards(t *testing.T) {
	f := newFixture(t)
	r := f.propose(domain.KindAlias, "doggy", "dog")

	_, err := f.engine.Approve(f.ctx, moderator, r.ID)
	require.NoError(t, err)
	_, err = f.engine.Approve(f.ctx, moderator, r.ID)
	assert.Equal(t, errors.CodeConflict, errors.CodeOf(err))

	_, err = f.engine.Approve(f.ctx, moderator, "rel-missing")
	assert.Equal(t, errors.CodeNotFound, errors.CodeOf(err))
}

func TestAlias_ApproveAndUndoRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.post("post-1", "doggy cute")
	f.post("post-2", "doggy dog")
	f.post("post-3", "doggy")
	f.post("post-4", "cat")
	f.postWithLocked("post-5", "doggy solo", "doggy -ugly")
	require.NoError(t, f.store.CreateUser(f.ctx, &domain.User{ID: "user-1", Name: "alice", Level: domain.LevelMember, BlacklistedTags: "doggy\nugly -doggy"}))

	before := map[string]string{}
	for _, id := range []string{"post-1", "post-2", "post-3", "post-4", "post-5"} {
		before[id] = f.tagsOf(id)
	}

	r := f.activate(domain.KindAlias, "doggy", "dog")

	assert.Equal(t, "cute dog", f.tagsOf("post-1"))
	assert.Equal(t, "dog", f.tagsOf("post-2"))
	assert.Equal(t, "dog", f.tagsOf("post-3"))
	assert.Equal(t, "cat", f.tagsOf("post-4"))
	assert.Equal(t, "dog solo", f.tagsOf("post-5"))
	assert.Equal(t, 4, r.PostCount)
	assert.Equal(t, moderator.UserID, r.ApproverID)

	locked, err := f.store.GetPost(f.ctx, "post-5")
	require.NoError(t, err)
	assert.Equal(t, "dog -ugly", locked.LockedTags)

	user, err := f.store.GetUser(f.ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "dog\nugly -dog", user.BlacklistedTags)

	doggy, err := f.store.GetTag(f.ctx, "doggy")
	require.NoError(t, err)
	assert.Equal(t, 0, doggy.PostCount)
	dog, err := f.store.GetTag(f.ctx, "dog")
	require.NoError(t, err)
	assert.Equal(t, 4, dog.PostCount)

	versions, err := f.store.ListPostVersions(f.ctx, "post-1")
	require.NoError(t, err)
	assert.Empty(t, versions, "engine rewrites are not user edits")

	assert.Equal(t, "dog", f.engine.AliasedTargetOf("doggy"))
	assert.Equal(t, "dog", f.engine.AliasedTargetOf("dog"))
	assert.Equal(t, domain.EventApproved, f.notes.last())

	undone, err := f.engine.Undo(f.ctx, moderator, r.ID)
	require.NoError(t, err)
	assert.True(t, undone.UndoPending())
	assert.Equal(t, "doggy", f.engine.AliasedTargetOf("doggy"), "an alias stops resolving once undo is requested")

	require.NoError(t, f.drain())
	assert.Equal(t, domain.StatusRetired, f.reload(r.ID).Status)
	for id, tags := range before {
		assert.Equal(t, tags, f.tagsOf(id), id)
	}

	locked, err = f.store.GetPost(f.ctx, "post-5")
	require.NoError(t, err)
	assert.Equal(t, "doggy -ugly", locked.LockedTags)

	user, err = f.store.GetUser(f.ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "doggy\nugly -doggy", user.BlacklistedTags)
	assert.Equal(t, domain.EventUndone, f.notes.last())
}

func TestAlias_CategoryAndArtist(t *testing.T) {
	f := newFixture(t)
	f.post("post-1", "kuroi_sensei")

	_, err := f.store.FindOrCreateTag(f.ctx, "kuroi_sensei")
	require.NoError(t, err)
	require.NoError(t, f.store.SetTagCategory(f.ctx, "kuroi_sensei", domain.CategoryArtist))
	require.NoError(t, f.store.CreateArtist(f.ctx, &domain.Artist{ID: "artist-1", Name: "kuroi_sensei"}))

	f.activate(domain.KindAlias, "kuroi_sensei", "kuroi")

	tag, err := f.store.GetTag(f.ctx, "kuroi")
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryArtist, tag.Category)

	artist, err := f.store.GetArtistByName(f.ctx, "kuroi")
	require.NoError(t, err)
	assert.Equal(t, "artist-1", artist.ID)
	assert.Contains(t, artist.OtherNames, "kuroi_sensei")
}

func TestAlias_LockedConsequentKeepsCategory(t *testing.T) {
	f := newFixture(t)

	for _, name := range []string{"shiro_sensei", "shiro"} {
		_, err := f.store.FindOrCreateTag(f.ctx, name)
		require.NoError(t, err)
	}
	require.NoError(t, f.store.SetTagCategory(f.ctx, "shiro_sensei", domain.CategoryArtist))
	require.NoError(t, f.store.SetTagLocked(f.ctx, "shiro", true))

	f.activate(domain.KindAlias, "shiro_sensei", "shiro")

	tag, err := f.store.GetTag(f.ctx, "shiro")
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryGeneral, tag.Category)
}

func TestAlias_RetargetsExistingEdges(t *testing.T) {
	f := newFixture(t)
	f.post("post-1", "doggy pet")

	parent := f.activate(domain.KindImplication, "puppy", "doggy")
	child := f.activate(domain.KindImplication, "doggy", "pet")
	selfEdge := f.propose(domain.KindImplication, "dog", "doggy")
	pendingAlias := f.propose(domain.KindAlias, "hound", "doggy")
	dup := f.propose(domain.KindImplication, "doggy", "mammal")
	f.propose(domain.KindImplication, "dog", "mammal")

	f.activate(domain.KindAlias, "doggy", "dog")

	assert.Equal(t, "dog pet", f.tagsOf("post-1"))

	parent = f.reload(parent.ID)
	assert.Equal(t, "dog", parent.ConsequentName)
	assert.Equal(t, []string{"dog", "pet"}, parent.DescendantNames)

	child = f.reload(child.ID)
	assert.Equal(t, "dog", child.AntecedentName)
	assert.Equal(t, domain.StatusActive, child.Status)

	assert.Equal(t, "dog", f.reload(pendingAlias.ID).ConsequentName)

	_, err := f.engine.Get(f.ctx, selfEdge.ID)
	assert.Equal(t, errors.CodeNotFound, errors.CodeOf(err), "self-referential edge is destroyed")
	_, err = f.engine.Get(f.ctx, dup.ID)
	assert.Equal(t, errors.CodeNotFound, errors.CodeOf(err), "duplicate edge is destroyed")

	assert.Equal(t, []string{"dog", "pet"}, f.engine.DescendantsOf("puppy"))
	assert.Equal(t, []string{"dog", "puppy"}, f.engine.AncestorsOf("pet"))

	actions, err := f.store.ListModActions(f.ctx, 100)
	require.NoError(t, err)
	kinds := map[domain.ModActionKind]int{}
	for _, a := range actions {
		kinds[a.Kind]++
	}
	assert.Equal(t, 3, kinds[domain.ModActionRetarget])
	assert.Equal(t, 2, kinds[domain.ModActionDestroy])
}

func TestAlias_RetargetDropsEdgeClosingCycle(t *testing.T) {
	f := newFixture(t)

	f.activate(domain.KindImplication, "cat", "feline")
	closing := f.activate(domain.KindImplication, "feline", "kitty")
	f.activate(domain.KindAlias, "kitty", "cat")

	_, err := f.engine.Get(f.ctx, closing.ID)
	assert.Equal(t, errors.CodeNotFound, errors.CodeOf(err), "edge closing a cycle is destroyed")
	assert.Equal(t, []string{"feline"}, f.engine.DescendantsOf("cat"))
	assert.Empty(t, f.engine.DescendantsOf("feline"))
	assert.NotContains(t, f.engine.DescendantsOf("cat"), "cat")
}

func TestAlias_UndoRestoresLockedTags(t *testing.T) {
	f := newFixture(t)
	f.postWithLocked("post-1", "doggy dog", "dog")
	f.postWithLocked("post-2", "doggy", "doggy -ugly")

	r := f.activate(domain.KindAlias, "doggy", "dog")
	p2, err := f.store.GetPost(f.ctx, "post-2")
	require.NoError(t, err)
	assert.Equal(t, "dog -ugly", p2.LockedTags)

	_, err = f.engine.Undo(f.ctx, moderator, r.ID)
	require.NoError(t, err)
	require.NoError(t, f.drain())

	p1, err := f.store.GetPost(f.ctx, "post-1")
	require.NoError(t, err)
	assert.Equal(t, "dog", p1.LockedTags, "a consequent locked before approval stays")
	p2, err = f.store.GetPost(f.ctx, "post-2")
	require.NoError(t, err)
	assert.Equal(t, "doggy -ugly", p2.LockedTags)
}

func TestImplication_ApproveAddsClosureAndCascades(t *testing.T) {
	f := newFixture(t)
	f.post("post-1", "dog")
	f.post("post-2", "canine dog")
	f.post("post-3", "dog puppy")
	f.post("post-4", "cat")

	parent := f.activate(domain.KindImplication, "puppy", "dog")
	f.activate(domain.KindImplication, "canine", "mammal")
	r := f.activate(domain.KindImplication, "dog", "canine")

	assert.Equal(t, "canine dog mammal", f.tagsOf("post-1"))
	assert.Equal(t, "canine dog mammal", f.tagsOf("post-2"))
	assert.Equal(t, "canine dog mammal puppy", f.tagsOf("post-3"))
	assert.Equal(t, "cat", f.tagsOf("post-4"))

	assert.Equal(t, []string{"canine", "mammal"}, r.DescendantNames)
	assert.Equal(t, []string{"canine", "dog", "mammal"}, f.reload(parent.ID).DescendantNames)

	assert.Equal(t, []string{"canine", "mammal"}, f.engine.DescendantsOf("dog"))
	assert.Equal(t, []string{"canine", "dog", "mammal"}, f.engine.DescendantsOf("puppy"))
	assert.Equal(t, []string{"canine", "dog", "puppy"}, f.engine.AncestorsOf("mammal"))

	mammal, err := f.store.GetTag(f.ctx, "mammal")
	require.NoError(t, err)
	assert.Equal(t, 3, mammal.PostCount)
}

func TestImplication_UndoKeepsIndependentTags(t *testing.T) {
	f := newFixture(t)
	f.post("post-1", "dog")
	f.post("post-2", "dog mammal")
	f.post("post-3", "dog wolf")

	f.activate(domain.KindImplication, "canine", "mammal")
	r := f.activate(domain.KindImplication, "dog", "canine")
	f.activate(domain.KindImplication, "wolf", "canine")

	assert.Equal(t, "canine dog mammal", f.tagsOf("post-1"))
	assert.Equal(t, "canine dog mammal wolf", f.tagsOf("post-3"))

	_, err := f.engine.Undo(f.ctx, moderator, r.ID)
	require.NoError(t, err)
	assert.Empty(t, f.engine.DescendantsOf("dog"))
	require.NoError(t, f.drain())

	assert.Equal(t, domain.StatusRetired, f.reload(r.ID).Status)
	assert.Equal(t, "dog", f.tagsOf("post-1"))
	assert.Equal(t, "dog mammal", f.tagsOf("post-2"), "tags present before approval stay")
	assert.Equal(t, "canine dog mammal wolf", f.tagsOf("post-3"), "tags implied by another rule stay")
}

func TestUndo_ConflictSkipsRetaggedPost(t *testing.T) {
	f := newFixture(t)
	f.post("post-1", "doggy")
	f.post("post-2", "doggy")

	r := f.activate(domain.KindAlias, "doggy", "dog")
	_, err := f.store.UpdatePostTags(f.ctx, "post-2", "cat", member)
	require.NoError(t, err)

	_, err = f.engine.Undo(f.ctx, moderator, r.ID)
	require.NoError(t, err)
	require.NoError(t, f.drain())

	assert.Equal(t, domain.StatusRetired, f.reload(r.ID).Status)
	assert.Equal(t, "doggy", f.tagsOf("post-1"))
	assert.Equal(t, "cat", f.tagsOf("post-2"))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.UndoConflicts))
}

func TestUndo_Guards(t *testing.T) {
	f := newFixture(t)
	pending := f.propose(domain.KindAlias, "kitty", "cat")

	_, err := f.engine.Undo(f.ctx, moderator, pending.ID)
	assert.Equal(t, errors.CodeConflict, errors.CodeOf(err))

	r := f.activate(domain.KindAlias, "doggy", "dog")
	_, err = f.engine.Undo(f.ctx, member, r.ID)
	assert.Equal(t, errors.CodeForbidden, errors.CodeOf(err))

	_, err = f.engine.Undo(f.ctx, moderator, r.ID)
	require.NoError(t, err)

	_, err = f.engine.Approve(f.ctx, moderator, r.ID)
	assert.Equal(t, errors.CodeConflict, errors.CodeOf(err), "cannot approve while an undo is pending")

	_, err = f.engine.Reject(f.ctx, moderator, r.ID)
	assert.Equal(t, errors.CodeConflict, errors.CodeOf(err), "cannot reject while an undo is pending")

	require.NoError(t, f.drain())
	assert.Equal(t, domain.StatusRetired, f.reload(r.ID).Status)
}

func TestReject(t *testing.T) {
	f := newFixture(t)

	pending := f.propose(domain.KindAlias, "kitty", "cat")
	r, err := f.engine.Reject(f.ctx, moderator, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDeleted, r.Status)
	assert.Equal(t, domain.EventRejected, f.notes.last())

	_, err = f.engine.Reject(f.ctx, moderator, pending.ID)
	assert.Equal(t, errors.CodeConflict, errors.CodeOf(err))

	parent := f.activate(domain.KindImplication, "puppy", "dog")
	child := f.activate(domain.KindImplication, "dog", "canine")
	require.Equal(t, []string{"canine", "dog"}, f.reload(parent.ID).DescendantNames)

	_, err = f.engine.Reject(f.ctx, member, child.ID)
	assert.Equal(t, errors.CodeForbidden, errors.CodeOf(err))

	_, err = f.engine.Reject(f.ctx, moderator, child.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"dog"}, f.reload(parent.ID).DescendantNames)
	assert.Equal(t, []string{"dog"}, f.engine.DescendantsOf("puppy"))
}

func TestRetry_TransientFailuresAreIdempotent(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.Config.Concurrency = 1 })
	for _, id := range []string{"post-1", "post-2", "post-3", "post-4", "post-5"} {
		f.post(id, "doggy")
	}

	f.store.failAfter(3, 3)
	r := f.activate(domain.KindAlias, "doggy", "dog")

	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}, f.sleeps())
	for _, id := range []string{"post-1", "post-2", "post-3", "post-4", "post-5"} {
		assert.Equal(t, "dog", f.tagsOf(id), id)
	}
	assert.Equal(t, 5, r.PostCount)
	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.JobRetries.WithLabelValues("alias", "approve")))
	assert.Equal(t, 5.0, testutil.ToFloat64(f.metrics.PostsRewritten.WithLabelValues("alias", "approve")))

	f.store.failAfter(1, 2)
	_, err := f.engine.Undo(f.ctx, moderator, r.ID)
	require.NoError(t, err)
	require.NoError(t, f.drain())

	assert.Len(t, f.sleeps(), 2)
	assert.Equal(t, domain.StatusRetired, f.reload(r.ID).Status)
	for _, id := range []string{"post-1", "post-2", "post-3", "post-4", "post-5"} {
		assert.Equal(t, "doggy", f.tagsOf(id), id)
	}
}

func TestRetry_ExhaustionParksRelationship(t *testing.T) {
	f := newFixture(t)
	f.post("post-1", "dog")

	r := f.propose(domain.KindImplication, "dog", "canine")
	_, err := f.engine.Approve(f.ctx, moderator, r.ID)
	require.NoError(t, err)

	f.store.failAfter(0, 100)
	err = f.drain()
	require.Error(t, err)
	assert.Equal(t, errors.CodeTerminal, errors.CodeOf(err))

	r = f.reload(r.ID)
	assert.True(t, r.Status.IsError())
	assert.Contains(t, r.Status.ErrorMessage(), "gave up after 6 attempts")
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 32 * time.Second}, f.sleeps())
	assert.Equal(t, domain.EventFailed, f.notes.last())
	assert.Equal(t, "dog", f.tagsOf("post-1"))
	assert.Empty(t, f.engine.DescendantsOf("dog"))

	f.store.failAfter(0, 0)
	_, err = f.engine.Approve(f.ctx, moderator, r.ID)
	require.NoError(t, err)
	require.NoError(t, f.drain())
	assert.Equal(t, domain.StatusActive, f.reload(r.ID).Status)
	assert.Equal(t, "canine dog", f.tagsOf("post-1"))
}

func TestRetry_ReapprovedAliasUndoRestoresEveryPost(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.Config.Concurrency = 1 })
	f.post("post-1", "doggy")
	f.post("post-2", "doggy cute")
	f.post("post-3", "doggy dog")

	r := f.propose(domain.KindAlias, "doggy", "dog")
	_, err := f.engine.Approve(f.ctx, moderator, r.ID)
	require.NoError(t, err)

	f.store.failAfter(1, 100)
	require.Error(t, f.drain())
	require.True(t, f.reload(r.ID).Status.IsError())
	require.Equal(t, "dog", f.tagsOf("post-1"), "first post was rewritten before the failure")

	f.post("post-4", "doggy")
	before := map[string]string{"post-1": "doggy"}
	for _, id := range []string{"post-2", "post-3", "post-4"} {
		before[id] = f.tagsOf(id)
	}

	f.store.failAfter(0, 0)
	_, err = f.engine.Approve(f.ctx, moderator, r.ID)
	require.NoError(t, err)
	require.NoError(t, f.drain())
	require.Equal(t, domain.StatusActive, f.reload(r.ID).Status)
	for id := range before {
		assert.False(t, tagname.Contains(f.tagsOf(id), "doggy"), id)
	}

	entries, err := f.store.ListUndoEntries(f.ctx, r.ID)
	require.NoError(t, err)
	assert.Len(t, domain.Covers(entries), 4)

	_, err = f.engine.Undo(f.ctx, moderator, r.ID)
	require.NoError(t, err)
	require.NoError(t, f.drain())
	assert.Equal(t, domain.StatusRetired, f.reload(r.ID).Status)
	for id, tags := range before {
		assert.Equal(t, tags, f.tagsOf(id), id)
	}
}

func TestRetry_ReapprovedImplicationUndoRemovesAddedTags(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.Config.Concurrency = 1 })
	f.post("post-1", "dog")
	f.post("post-2", "dog")

	r := f.propose(domain.KindImplication, "dog", "canine")
	_, err := f.engine.Approve(f.ctx, moderator, r.ID)
	require.NoError(t, err)

	f.store.failAfter(1, 100)
	require.Error(t, f.drain())
	require.Equal(t, "canine dog", f.tagsOf("post-1"))
	require.Equal(t, "dog", f.tagsOf("post-2"))

	f.store.failAfter(0, 0)
	_, err = f.engine.Approve(f.ctx, moderator, r.ID)
	require.NoError(t, err)
	require.NoError(t, f.drain())
	assert.Equal(t, "canine dog", f.tagsOf("post-2"))

	_, err = f.engine.Undo(f.ctx, moderator, r.ID)
	require.NoError(t, err)
	require.NoError(t, f.drain())
	assert.Equal(t, "dog", f.tagsOf("post-1"))
	assert.Equal(t, "dog", f.tagsOf("post-2"))
}

func TestRunJob_SkipsStaleJob(t *testing.T) {
	f := newFixture(t)
	f.post("post-1", "doggy")
	r := f.activate(domain.KindAlias, "doggy", "dog")

	err := f.engine.RunJob(f.ctx, &jobs.Job{ID: "job-stale", RelationshipID: r.ID, Transition: domain.TransitionApprove})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, f.reload(r.ID).Status)

	err = f.engine.RunJob(f.ctx, &jobs.Job{ID: "job-missing", RelationshipID: "rel-missing", Transition: domain.TransitionApprove})
	assert.Equal(t, errors.CodeNotFound, errors.CodeOf(err))
}

func TestLoad_RebuildsGraphAndIndex(t *testing.T) {
	f := newFixture(t)
	f.activate(domain.KindAlias, "doggy", "dog")
	f.activate(domain.KindImplication, "dog", "canine")
	f.propose(domain.KindImplication, "long_hair", "hair")

	idx, err := search.NewIndex(logger.Discard().Logger)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	restarted := New(Deps{Store: f.store, Dispatcher: f.queue, Index: idx, Logger: logger.Discard().Logger})
	require.NoError(t, restarted.Load(f.ctx))

	assert.Equal(t, "dog", restarted.AliasedTargetOf("doggy"))
	assert.Equal(t, []string{"canine"}, restarted.DescendantsOf("dog"))

	found, total, err := restarted.Search(f.ctx, search.Params{Query: "hair"})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), total)
	require.Len(t, found, 1)
	assert.Equal(t, "long_hair", found[0].AntecedentName)

	listed, err := restarted.List(f.ctx, domain.RelationshipFilter{Kind: domain.KindAlias})
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}
