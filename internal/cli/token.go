package cli

import (
	"fmt"

	"github.com/gogotex/docsync/internal/auth"
	"github.com/gogotex/docsync/internal/config"
	"github.com/gogotex/docsync/pkg/logger"
	"github.com/spf13/cobra"
)

// NewTokenCommand creates the token command.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:          "token <subject>",
		Short:        "Issue a signed access token for the API",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// the store is not used here, so MONGODB_URI is not required
			overrides := rootOpts.overrides(cmd)
			overrides["MONGODB_MEMORY"] = true
			cfg, err := config.LoadConfigWith(overrides)
			if err != nil {
				return err
			}
			logger.Init(cfg.Log.Level)
			tok, err := auth.IssueToken(cfg.JWT, args[0], name)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name claim")
	return cmd
}
