package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tagyard/tagyard-server/internal/domain"
	"github.com/tagyard/tagyard-server/internal/id"
	"github.com/tagyard/tagyard-server/internal/store"
	"github.com/tagyard/tagyard-server/internal/tagname"
)

// SeedFile is the YAML document loaded by the seed command.
type SeedFile struct {
	Users []SeedUser `yaml:"users"`
	Tags  []SeedTag  `yaml:"tags"`
	Posts []SeedPost `yaml:"posts"`
}

// SeedUser is one account.
type SeedUser struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	Level     string `yaml:"level"`
	Blacklist string `yaml:"blacklist,omitempty"`
}

// SeedTag registers a tag with a category.
type SeedTag struct {
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
}

// SeedPost is one post. ID is generated when empty.
type SeedPost struct {
	ID     string `yaml:"id,omitempty"`
	Tags   string `yaml:"tags"`
	Locked string `yaml:"locked,omitempty"`
}

// SeedResult counts what the seed command wrote.
type SeedResult struct {
	Users   int `json:"users"`
	Tags    int `json:"tags"`
	Posts   int `json:"posts"`
	Skipped int `json:"skipped"`
}

// LoadSeedFile reads and parses a seed file.
func LoadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var f SeedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return &f, nil
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "Load users, tags and posts from a YAML file",
		Long: `Load users, tags and posts from a YAML file. Records that already exist
are skipped, so a file can be applied more than once.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := LoadSeedFile(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				res, err := applySeed(ctx, s.store, f)
				if err != nil {
					return err
				}
				out := newFormatter(opts, cmd.OutOrStdout())
				if out.Format == "json" {
					return out.JSON(res)
				}
				return out.Line("result", fmt.Sprintf("seeded %d users, %d tags, %d posts (%d skipped)",
					res.Users, res.Tags, res.Posts, res.Skipped))
			})
		},
	}
}

func applySeed(ctx context.Context, st store.Store, f *SeedFile) (*SeedResult, error) {
	res := &SeedResult{}

	for _, u := range f.Users {
		level := domain.ParseLevel(u.Level)
		if level == 0 {
			return nil, fmt.Errorf("user %s: unknown level %q", u.ID, u.Level)
		}
		err := st.CreateUser(ctx, &domain.User{
			ID:              u.ID,
			Name:            u.Name,
			Level:           level,
			BlacklistedTags: u.Blacklist,
		})
		switch {
		case stderrors.Is(err, store.ErrAlreadyExists):
			res.Skipped++
		case err != nil:
			return nil, fmt.Errorf("user %s: %w", u.ID, err)
		default:
			res.Users++
		}
	}

	for _, t := range f.Tags {
		name := tagname.Normalize(t.Name)
		if _, err := st.FindOrCreateTag(ctx, name); err != nil {
			return nil, fmt.Errorf("tag %s: %w", name, err)
		}
		if err := st.SetTagCategory(ctx, name, parseCategory(t.Category)); err != nil {
			return nil, fmt.Errorf("tag %s: %w", name, err)
		}
		res.Tags++
	}

	touched := make(map[string]struct{})
	for _, p := range f.Posts {
		postID := p.ID
		if postID == "" {
			postID = id.MustGenerate(id.PrefixPost)
		}
		err := st.CreatePost(ctx, &domain.Post{
			ID:         postID,
			TagString:  p.Tags,
			LockedTags: p.Locked,
			UpdaterID:  domain.SystemActor.UserID,
		})
		switch {
		case stderrors.Is(err, store.ErrAlreadyExists):
			res.Skipped++
			continue
		case err != nil:
			return nil, fmt.Errorf("post %s: %w", postID, err)
		}
		res.Posts++
		for _, name := range strings.Fields(p.Tags) {
			touched[tagname.Normalize(name)] = struct{}{}
		}
	}

	for name := range touched {
		if _, err := st.FindOrCreateTag(ctx, name); err != nil {
			return nil, fmt.Errorf("tag %s: %w", name, err)
		}
		if _, err := st.RecountTag(ctx, name); err != nil {
			return nil, fmt.Errorf("recount %s: %w", name, err)
		}
	}

	return res, nil
}

func parseCategory(name string) domain.TagCategory {
	switch strings.ToLower(name) {
	case "artist":
		return domain.CategoryArtist
	case "copyright":
		return domain.CategoryCopyright
	case "character":
		return domain.CategoryCharacter
	case "meta":
		return domain.CategoryMeta
	default:
		return domain.CategoryGeneral
	}
}
