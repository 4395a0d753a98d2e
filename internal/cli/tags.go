package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tagyard/tagyard-server/internal/tagname"
)

// NewTagCommand groups the tag graph queries.
func NewTagCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tag",
		Short: "Query the active tag graph",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "descendants <name>",
		Short: "Tags implied by a tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(_ context.Context, s *session) error {
				name := tagname.Normalize(args[0])
				return newFormatter(opts, cmd.OutOrStdout()).Names("descendants", name, s.engine.DescendantsOf(name))
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "ancestors <name>",
		Short: "Tags that imply a tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(_ context.Context, s *session) error {
				name := tagname.Normalize(args[0])
				return newFormatter(opts, cmd.OutOrStdout()).Names("ancestors", name, s.engine.AncestorsOf(name))
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "alias <name>",
		Short: "Resolve a tag through active aliases",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(_ context.Context, s *session) error {
				name := tagname.Normalize(args[0])
				return newFormatter(opts, cmd.OutOrStdout()).Line("target", s.engine.AliasedTargetOf(name))
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "count <name>",
		Short: "Recount the posts carrying a tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				n, err := s.store.RecountTag(ctx, tagname.Normalize(args[0]))
				if err != nil {
					return err
				}
				return newFormatter(opts, cmd.OutOrStdout()).Line("post_count", fmt.Sprint(n))
			})
		},
	})

	return cmd
}

// NewPostCommand creates the post command.
func NewPostCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "post <id>",
		Short: "Show a post's tag string",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				p, err := s.store.GetPost(ctx, args[0])
				if err != nil {
					return err
				}
				f := newFormatter(opts, cmd.OutOrStdout())
				if f.Format == "json" {
					return f.JSON(p)
				}
				return f.Line("tag_string", p.TagString)
			})
		},
	}
}
