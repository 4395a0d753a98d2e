package domain

import "time"

// Post is a catalog record described by a space separated tag string.
type Post struct {
	ID        string `json:"id"`
	TagString string `json:"tag_string"`
	// LockedTags holds tags moderators pinned on (or, prefixed with "-", off) the post.
	LockedTags string    `json:"locked_tags"`
	Version    int       `json:"version"`
	UpdaterID  string    `json:"updater_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// PostVersion records one ordinary tag edit.
type PostVersion struct {
	PostID      string    `json:"post_id"`
	Version     int       `json:"version"`
	TagString   string    `json:"tag_string"`
	AddedTags   []string  `json:"added_tags"`
	RemovedTags []string  `json:"removed_tags"`
	UpdaterID   string    `json:"updater_id"`
	UpdaterIP   string    `json:"updater_ip,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
