package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/tagyard/tagyard-server/internal/domain"
)

// OutputFormatter writes command results as text or JSON.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

func newFormatter(opts *RootOptions, w io.Writer) *OutputFormatter {
	return &OutputFormatter{Format: opts.Format, Writer: w}
}

// JSON writes v as indented JSON.
func (f *OutputFormatter) JSON(v any) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Relationship writes one relationship.
func (f *OutputFormatter) Relationship(r *domain.Relationship) error {
	if f.Format == "json" {
		return f.JSON(r)
	}
	_, err := fmt.Fprintf(f.Writer, "%s\t%s\t%s -> %s\t%s\n",
		r.ID, r.Kind, r.AntecedentName, r.ConsequentName, r.Status)
	return err
}

// Relationships writes a list of relationships.
func (f *OutputFormatter) Relationships(rels []*domain.Relationship) error {
	if f.Format == "json" {
		if rels == nil {
			rels = []*domain.Relationship{}
		}
		return f.JSON(rels)
	}
	for _, r := range rels {
		if err := f.Relationship(r); err != nil {
			return err
		}
	}
	return nil
}

// Names writes a tag name list under a heading key.
func (f *OutputFormatter) Names(key, tag string, names []string) error {
	if f.Format == "json" {
		if names == nil {
			names = []string{}
		}
		return f.JSON(map[string]any{"name": tag, key: names})
	}
	_, err := fmt.Fprintln(f.Writer, strings.Join(names, " "))
	return err
}

// Line writes a single text line, or {key: value} in JSON mode.
func (f *OutputFormatter) Line(key, value string) error {
	if f.Format == "json" {
		return f.JSON(map[string]string{key: value})
	}
	_, err := fmt.Fprintln(f.Writer, value)
	return err
}
