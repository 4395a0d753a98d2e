// Package cli implements tagctl, the offline administration tool for a
// tagyard database.
package cli

import (
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/tagyard/tagyard-server/internal/domain"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	DatabasePath string
	KeyPath      string
	UserID       string
	Level        string
	Format       string // "json" | "text"
	Verbose      bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for tagctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "tagctl",
		Short: "Administer tag relationships in a tagyard database",
		Long: `tagctl works directly on a tagyard sqlite database. Transitions that the
server would hand to background workers run inline before the command returns.
Do not point it at a database a running server is using.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if domain.ParseLevel(opts.Level) == 0 {
				return fmt.Errorf("invalid level %q: must be member, builder, moderator or admin", opts.Level)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.DatabasePath, "db", envOr("DATABASE_PATH", "tagyard.db"), "sqlite database path")
	cmd.PersistentFlags().StringVar(&opts.KeyPath, "key", envOr("AUTH_KEY_PATH", "auth.key"), "token signing key path")
	cmd.PersistentFlags().StringVar(&opts.UserID, "as", "system", "user id recorded as the actor")
	cmd.PersistentFlags().StringVar(&opts.Level, "level", "admin", "actor level (member|builder|moderator|admin)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewProposeCommand(opts))
	cmd.AddCommand(NewApproveCommand(opts))
	cmd.AddCommand(NewRejectCommand(opts))
	cmd.AddCommand(NewUndoCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewTagCommand(opts))
	cmd.AddCommand(NewPostCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))

	return cmd
}

// actor builds the actor from the global flags.
func (o *RootOptions) actor() domain.Actor {
	return domain.Actor{UserID: o.UserID, IP: "127.0.0.1", Level: domain.ParseLevel(o.Level)}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
