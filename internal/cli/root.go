// Package cli implements the docsync command line.
package cli

import (
	"github.com/gogotex/docsync/internal/config"
	"github.com/gogotex/docsync/pkg/logger"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Memory   bool
	LogLevel string
}

// overrides turns explicitly set flags into config overrides.
func (o *RootOptions) overrides(cmd *cobra.Command) map[string]interface{} {
	out := map[string]interface{}{}
	if o.Memory {
		out["MONGODB_MEMORY"] = true
	}
	if cmd.Flags().Changed("log-level") {
		out["LOG_LEVEL"] = o.LogLevel
	}
	return out
}

func (o *RootOptions) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfigWith(o.overrides(cmd))
	if err != nil {
		return nil, err
	}
	logger.Init(cfg.Log.Level)
	return cfg, nil
}

// NewRootCommand creates the root command for the docsync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "docsync",
		Short: "docsync - document objects over MongoDB",
		Long:  "Serve, index and export docsync collections.",
	}

	cmd.PersistentFlags().BoolVar(&opts.Memory, "memory", false, "use an in-process store instead of MongoDB")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "info", "log level (debug|info|warn|error)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewIndexesCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewRestoreCommand(opts))
	cmd.AddCommand(NewModelsCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))

	return cmd
}
