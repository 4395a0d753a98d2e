package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tagyard/tagyard-server/internal/domain"
	"github.com/tagyard/tagyard-server/internal/relationship"
)

// NewProposeCommand creates the propose command.
func NewProposeCommand(opts *RootOptions) *cobra.Command {
	var topic string
	cmd := &cobra.Command{
		Use:   "propose <alias|implication> <antecedent> <consequent>",
		Short: "Propose a new relationship",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				r, err := s.engine.Propose(ctx, opts.actor(), relationship.Proposal{
					Kind:         domain.RelationshipKind(args[0]),
					Antecedent:   args[1],
					Consequent:   args[2],
					ForumTopicID: topic,
				})
				if err != nil {
					return err
				}
				return newFormatter(opts, cmd.OutOrStdout()).Relationship(r)
			})
		},
	}
	cmd.Flags().StringVar(&topic, "topic", "", "forum topic to link")
	return cmd
}

// transitionFunc is an engine call that takes a relationship id.
type transitionFunc func(e *relationship.Engine) func(context.Context, domain.Actor, string) (*domain.Relationship, error)

func newTransitionCommand(opts *RootOptions, use, short string, call transitionFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				if _, err := call(s.engine)(ctx, opts.actor(), args[0]); err != nil {
					return err
				}
				jobErr := s.drain(ctx)

				r, err := s.engine.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if err := newFormatter(opts, cmd.OutOrStdout()).Relationship(r); err != nil {
					return err
				}
				if jobErr != nil {
					return fmt.Errorf("%s failed: %w", use, jobErr)
				}
				return nil
			})
		},
	}
}

// NewApproveCommand creates the approve command.
func NewApproveCommand(opts *RootOptions) *cobra.Command {
	return newTransitionCommand(opts, "approve", "Approve a relationship and propagate it",
		func(e *relationship.Engine) func(context.Context, domain.Actor, string) (*domain.Relationship, error) {
			return e.Approve
		})
}

// NewRejectCommand creates the reject command.
func NewRejectCommand(opts *RootOptions) *cobra.Command {
	return newTransitionCommand(opts, "reject", "Reject a pending relationship or delete an active one",
		func(e *relationship.Engine) func(context.Context, domain.Actor, string) (*domain.Relationship, error) {
			return e.Reject
		})
}

// NewUndoCommand creates the undo command.
func NewUndoCommand(opts *RootOptions) *cobra.Command {
	return newTransitionCommand(opts, "undo", "Reverse an active relationship",
		func(e *relationship.Engine) func(context.Context, domain.Actor, string) (*domain.Relationship, error) {
			return e.Undo
		})
}

// NewShowCommand creates the show command.
func NewShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a relationship",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				r, err := s.engine.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return newFormatter(opts, cmd.OutOrStdout()).Relationship(r)
			})
		},
	}
}

// NewListCommand creates the list command.
func NewListCommand(opts *RootOptions) *cobra.Command {
	var filter struct {
		kind, status, name string
		limit              int
	}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List relationships, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				rels, err := s.engine.List(ctx, domain.RelationshipFilter{
					Kind:   domain.RelationshipKind(filter.kind),
					Status: domain.Status(filter.status),
					Name:   filter.name,
					Limit:  filter.limit,
				})
				if err != nil {
					return err
				}
				return newFormatter(opts, cmd.OutOrStdout()).Relationships(rels)
			})
		},
	}
	cmd.Flags().StringVar(&filter.kind, "kind", "", "filter by kind")
	cmd.Flags().StringVar(&filter.status, "status", "", "filter by status")
	cmd.Flags().StringVar(&filter.name, "name", "", "filter by either endpoint name")
	cmd.Flags().IntVar(&filter.limit, "limit", 50, "maximum rows")
	return cmd
}

func withSession(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, s *session) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := openSession(ctx, opts, cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s)
}
