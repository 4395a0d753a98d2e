package domain

import "strings"

// Level is a user's permission level.
type Level int

const (
	LevelMember    Level = 20
	LevelBuilder   Level = 32
	LevelModerator Level = 40
	LevelAdmin     Level = 50
)

// String returns the level name.
func (l Level) String() string {
	switch {
	case l >= LevelAdmin:
		return "admin"
	case l >= LevelModerator:
		return "moderator"
	case l >= LevelBuilder:
		return "builder"
	case l >= LevelMember:
		return "member"
	default:
		return "anonymous"
	}
}

// ParseLevel converts a level name to a Level. Unknown names map to zero.
func ParseLevel(name string) Level {
	switch strings.ToLower(name) {
	case "admin":
		return LevelAdmin
	case "moderator":
		return LevelModerator
	case "builder":
		return LevelBuilder
	case "member":
		return LevelMember
	default:
		return 0
	}
}

// Actor identifies who performs a mutating call and from where.
type Actor struct {
	UserID string `json:"user_id"`
	IP     string `json:"ip,omitempty"`
	Level  Level  `json:"level"`
}

// SystemActor performs engine-internal writes.
var SystemActor = Actor{UserID: "system", Level: LevelAdmin}

// CanPropose reports whether the actor may create proposals.
func (a Actor) CanPropose() bool {
	return a.UserID != "" && a.Level >= LevelMember
}

// IsModerator reports whether the actor may approve, reject and undo.
func (a Actor) IsModerator() bool {
	return a.Level >= LevelModerator
}

// CanApprove reports whether the actor may approve a relationship whose antecedent
// has postCount posts. Builders may approve small relationships when builderMax > 0.
func (a Actor) CanApprove(postCount, builderMax int) bool {
	if a.IsModerator() {
		return true
	}
	return a.Level >= LevelBuilder && builderMax > 0 && postCount < builderMax
}
