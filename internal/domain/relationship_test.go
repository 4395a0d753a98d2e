package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatus_Error(t *testing.T) {
	s := ErrorStatus("database is locked")

	assert.Equal(t, Status("error: database is locked"), s)
	assert.True(t, s.IsError())
	assert.Equal(t, "database is locked", s.ErrorMessage())
	assert.False(t, StatusActive.IsError())
}

func TestStatus_Predicates(t *testing.T) {
	tests := []struct {
		status       Status
		dupRelevant  bool
		inFlight     bool
		retargetable bool
	}{
		{StatusPending, true, false, true},
		{StatusQueued, true, true, true},
		{StatusProcessing, true, true, true},
		{StatusActive, true, false, true},
		{StatusDeleted, false, false, false},
		{StatusRetired, false, false, false},
		{ErrorStatus("boom"), false, false, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.dupRelevant, tt.status.DuplicateRelevant())
			assert.Equal(t, tt.inFlight, tt.status.InFlight())
			assert.Equal(t, tt.retargetable, tt.status.Retargetable())
		})
	}
}

func TestRelationship_Clone(t *testing.T) {
	now := time.Now()
	r := &Relationship{ID: "rel-1", DescendantNames: []string{"canine"}, UndoRequestedAt: &now, Status: StatusPending}
	c := r.Clone()
	c.DescendantNames[0] = "animal"

	assert.Equal(t, "canine", r.DescendantNames[0])
	assert.NotSame(t, r.UndoRequestedAt, c.UndoRequestedAt)
	assert.True(t, c.UndoPending())
}

func TestActor_Permissions(t *testing.T) {
	member := Actor{UserID: "user-1", Level: LevelMember}
	builder := Actor{UserID: "user-2", Level: LevelBuilder}
	mod := Actor{UserID: "user-3", Level: LevelModerator}

	assert.True(t, member.CanPropose())
	assert.False(t, Actor{Level: LevelMember}.CanPropose())
	assert.False(t, member.IsModerator())
	assert.True(t, mod.CanApprove(1_000_000, 0))
	assert.False(t, builder.CanApprove(10, 0))
	assert.True(t, builder.CanApprove(10, 100))
	assert.False(t, builder.CanApprove(100, 100))
	assert.Equal(t, LevelBuilder, ParseLevel("Builder"))
	assert.Equal(t, "moderator", LevelModerator.String())
}
