package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/gogotex/docsync/internal/config"
	"github.com/gogotex/docsync/internal/snapshot"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"
)

type snapshotOptions struct {
	model  string
	key    string
	dir    string
	filter string
}

func (o *snapshotOptions) flags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.model, "model", "Person", "registered model name")
	cmd.Flags().StringVar(&o.key, "key", "", "object key / file name of the export")
	cmd.Flags().StringVar(&o.dir, "dir", "", "write to this directory instead of MinIO")
}

type sinkSource interface {
	snapshot.Sink
	snapshot.Source
}

func (o *snapshotOptions) target(cmd *cobra.Command, cfg *config.Config) (sinkSource, error) {
	if o.dir != "" {
		return snapshot.FileSink{Dir: o.dir}, nil
	}
	return snapshot.NewMinIOSink(cmd.Context(), cfg.MinIO)
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &snapshotOptions{}
	cmd := &cobra.Command{
		Use:          "export",
		Short:        "Export a collection as Extended JSON lines",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.load(cmd)
			if err != nil {
				return err
			}
			var query interface{}
			if opts.filter != "" {
				var d bson.D
				if err := bson.UnmarshalExtJSON([]byte(opts.filter), false, &d); err != nil {
					return fmt.Errorf("invalid --filter: %w", err)
				}
				query = d
			}
			sink, err := opts.target(cmd, cfg)
			if err != nil {
				return err
			}
			a := newApp(cmd.Context(), cfg)
			defer a.close(context.Background())
			p, err := a.proxy(opts.model)
			if err != nil {
				return err
			}
			key := opts.key
			if key == "" {
				key = fmt.Sprintf("%s/%s.ndjson", p.Name(), time.Now().UTC().Format("20060102T150405Z"))
			}
			n, err := snapshot.Export(cmd.Context(), p, query, sink, key)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d record(s) to %s\n", n, key)
			return nil
		},
	}
	opts.flags(cmd)
	cmd.Flags().StringVar(&opts.filter, "filter", "", "query filter as Extended JSON")
	return cmd
}

// NewRestoreCommand creates the restore command.
func NewRestoreCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &snapshotOptions{}
	cmd := &cobra.Command{
		Use:          "restore",
		Short:        "Insert the records of an export into its collection",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.key == "" {
				return fmt.Errorf("--key is required")
			}
			cfg, err := rootOpts.load(cmd)
			if err != nil {
				return err
			}
			src, err := opts.target(cmd, cfg)
			if err != nil {
				return err
			}
			a := newApp(cmd.Context(), cfg)
			defer a.close(context.Background())
			p, err := a.proxy(opts.model)
			if err != nil {
				return err
			}
			n, err := snapshot.Restore(cmd.Context(), p, src, opts.key)
			if err != nil {
				return fmt.Errorf("restored %d record(s) before failing: %w", n, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %d record(s) from %s\n", n, opts.key)
			return nil
		},
	}
	opts.flags(cmd)
	return cmd
}
