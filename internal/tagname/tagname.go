// Package tagname normalizes and validates tag names and manipulates
// whitespace-separated tag strings.
package tagname

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/tagyard/tagyard-server/internal/errors"
)

// MaxLength is the longest tag name accepted.
const MaxLength = 170

// metatagPrefixes are search qualifiers that can never be tag names.
var metatagPrefixes = []string{
	"order:", "rating:", "user:", "status:", "id:", "md5:", "source:",
	"pool:", "fav:", "approver:", "parent:", "child:", "width:", "height:",
	"score:", "date:", "tagcount:", "filetype:", "limit:",
}

// Normalize trims, lowercases and joins whitespace runs with underscores.
func Normalize(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "_")
}

// Validate reports why a normalized name cannot be used as a tag.
func Validate(name string) error {
	switch {
	case name == "":
		return errors.Validation("tag name cannot be blank")
	case utf8.RuneCountInString(name) > MaxLength:
		return errors.Validationf("tag %q exceeds %d characters", name, MaxLength)
	case strings.ContainsAny(name[:1], "-~_"):
		return errors.Validationf("tag %q cannot begin with %q", name, name[:1])
	case strings.HasSuffix(name, "_"):
		return errors.Validationf("tag %q cannot end with an underscore", name)
	case strings.Contains(name, "__"):
		return errors.Validationf("tag %q cannot contain consecutive underscores", name)
	case strings.ContainsAny(name, "*,"):
		return errors.Validationf("tag %q cannot contain asterisks or commas", name)
	}

	for _, r := range name {
		if !unicode.IsPrint(r) || unicode.IsSpace(r) {
			return errors.Validationf("tag %q contains a non-printable character", name)
		}
	}

	for _, prefix := range metatagPrefixes {
		if strings.HasPrefix(name, prefix) {
			return errors.Validationf("tag %q cannot begin with %q", name, prefix)
		}
	}
	return nil
}

// Split parses a tag string into normalized, de-duplicated, sorted names.
func Split(tagString string) []string {
	return Set(strings.Fields(strings.ToLower(tagString)))
}

// Join renders names as a canonical tag string.
func Join(names []string) string {
	return strings.Join(Set(names), " ")
}

// Set sorts names and removes blanks and duplicates.
func Set(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != "" {
			out = append(out, n)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Contains reports whether the tag string carries name.
func Contains(tagString, name string) bool {
	return slices.Contains(strings.Fields(tagString), name)
}

// Add returns tagString with names added.
func Add(tagString string, names ...string) string {
	return Join(append(strings.Fields(tagString), names...))
}

// Remove returns tagString with names removed.
func Remove(tagString string, names ...string) string {
	fields := strings.Fields(tagString)
	kept := fields[:0]
	for _, f := range fields {
		if !slices.Contains(names, f) {
			kept = append(kept, f)
		}
	}
	return Join(kept)
}

// Replace swaps from for to. Strings without from are returned unchanged.
func Replace(tagString, from, to string) string {
	if !Contains(tagString, from) {
		return tagString
	}
	return Add(Remove(tagString, from), to)
}

// ReplaceInText rewrites whole-token occurrences of from in free text such as
// a blacklist, keeping line structure intact.
func ReplaceInText(text, from, to string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		fields := strings.Fields(line)
		changed := false
		for j, f := range fields {
			switch {
			case f == from:
				fields[j] = to
				changed = true
			case f == "-"+from:
				fields[j] = "-" + to
				changed = true
			}
		}
		if changed {
			lines[i] = strings.Join(fields, " ")
		}
	}
	return strings.Join(lines, "\n")
}
