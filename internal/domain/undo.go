package domain

import (
	"slices"
	"time"
)

// UndoEntry captures one batch of posts touched by an approval.
type UndoEntry struct {
	ID             string   `json:"id"`
	RelationshipID string   `json:"relationship_id"`
	PostIDs        []string `json:"post_ids"`
	// PriorTags maps post id to its full tag string before an implication applied.
	PriorTags map[string]string `json:"prior_tags,omitempty"`
	// KeepConsequent lists alias posts that already carried the consequent.
	KeepConsequent []string `json:"keep_consequent,omitempty"`
	// PriorLocked maps alias post id to its locked tags when they named the antecedent.
	PriorLocked map[string]string `json:"prior_locked,omitempty"`
	Applied     bool              `json:"applied"`
	CreatedAt   time.Time         `json:"created_at"`
}

// KeepsConsequent reports whether postID carried the consequent independently.
func (e *UndoEntry) KeepsConsequent(postID string) bool {
	return slices.Contains(e.KeepConsequent, postID)
}

// Covers returns the set of post ids held by entries.
func Covers(entries []*UndoEntry) map[string]struct{} {
	out := make(map[string]struct{})
	for _, e := range entries {
		for _, postID := range e.PostIDs {
			out[postID] = struct{}{}
		}
	}
	return out
}
