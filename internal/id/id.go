// Package id generates prefixed identifiers for tagyard records.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes used for each record type.
const (
	PrefixRelationship = "rel"
	PrefixTag          = "tag"
	PrefixPost         = "post"
	PrefixUser         = "user"
	PrefixUndo         = "undo"
	PrefixForumPost    = "fpost"
	PrefixForumTopic   = "topic"
	PrefixArtist       = "artist"
	PrefixModAction    = "modact"
)

// Generate creates a prefixed unique ID using NanoID.
// Format: prefix-nanoid (e.g., "rel-V1StGXR8_Z5jdHi6B-myT").
func Generate(prefix string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}

// MustGenerate is like Generate but panics if ID generation fails.
func MustGenerate(prefix string) string {
	id, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return id
}
