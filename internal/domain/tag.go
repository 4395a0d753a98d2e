package domain

import "time"

// TagCategory classifies a tag.
type TagCategory int

const (
	CategoryGeneral   TagCategory = 0
	CategoryArtist    TagCategory = 1
	CategoryCopyright TagCategory = 3
	CategoryCharacter TagCategory = 4
	CategoryMeta      TagCategory = 5
)

// String returns the category name.
func (c TagCategory) String() string {
	switch c {
	case CategoryArtist:
		return "artist"
	case CategoryCopyright:
		return "copyright"
	case CategoryCharacter:
		return "character"
	case CategoryMeta:
		return "meta"
	default:
		return "general"
	}
}

// Tag is a registered tag name.
type Tag struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Category  TagCategory `json:"category"`
	PostCount int         `json:"post_count"` // Derived from posts by recount
	// IsLocked prevents category changes.
	IsLocked  bool      `json:"is_locked"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Touch updates the UpdatedAt timestamp.
func (t *Tag) Touch() {
	t.UpdatedAt = time.Now()
}
