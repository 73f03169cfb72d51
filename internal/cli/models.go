package cli

import (
	"context"

	"github.com/gogotex/docsync/internal/odm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type modelReport struct {
	Name       string        `yaml:"name"`
	Collection string        `yaml:"collection"`
	Fields     []string      `yaml:"fields"`
	Indexes    []indexReport `yaml:"indexes,omitempty"`
}

type indexReport struct {
	Fields []string `yaml:"fields,flow"`
	Name   string   `yaml:"name,omitempty"`
	Unique bool     `yaml:"unique,omitempty"`
	Sparse bool     `yaml:"sparse,omitempty"`
}

func describe(p odm.Proxy) modelReport {
	s := p.Schema()
	r := modelReport{Name: s.Name, Collection: p.Name(), Fields: s.Fields}
	for _, ix := range s.Indexes {
		r.Indexes = append(r.Indexes, indexReport{Fields: ix.Fields, Name: ix.Name, Unique: ix.Unique, Sparse: ix.Sparse})
	}
	return r
}

// NewModelsCommand creates the models command.
func NewModelsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "models",
		Short:        "Print the registered models as YAML",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.load(cmd)
			if err != nil {
				return err
			}
			a := newApp(cmd.Context(), cfg)
			defer a.close(context.Background())

			var out []modelReport
			for _, name := range a.registry.Names() {
				p, err := a.proxy(name)
				if err != nil {
					return err
				}
				out = append(out, describe(p))
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(out); err != nil {
				return err
			}
			return enc.Close()
		},
	}
	return cmd
}
