package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewIndexesCommand creates the indexes command.
func NewIndexesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "indexes [model...]",
		Short:        "Create the indexes declared by registered models",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.load(cmd)
			if err != nil {
				return err
			}
			a := newApp(cmd.Context(), cfg)
			defer a.close(context.Background())

			names := args
			if len(names) == 0 {
				names = a.registry.Names()
			}
			for _, name := range names {
				p, err := a.proxy(name)
				if err != nil {
					return err
				}
				if err := p.EnsureIndexes(cmd.Context()); err != nil {
					return fmt.Errorf("indexes for %s: %w", name, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s (%s): %d index(es) ready\n", name, p.Name(), len(p.Schema().Indexes))
			}
			return nil
		},
	}
	return cmd
}
