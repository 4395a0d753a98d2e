package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/tagyard/tagyard-server/internal/auth"
)

// NewTokenCommand creates the token command.
func NewTokenCommand(opts *RootOptions) *cobra.Command {
	var duration time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token for the --as user at --level",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := auth.LoadOrGenerateKey(opts.KeyPath)
			if err != nil {
				return err
			}
			tokens, err := auth.NewTokenService(key, duration)
			if err != nil {
				return err
			}
			token, err := tokens.Issue(opts.actor())
			if err != nil {
				return err
			}
			return newFormatter(opts, cmd.OutOrStdout()).Line("access_token", token)
		},
	}
	cmd.Flags().DurationVar(&duration, "duration", 24*time.Hour, "token lifetime")
	return cmd
}
