package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/crmtap/pkg/catalog"
	"github.com/ajitpratap0/crmtap/pkg/crm"
	"github.com/ajitpratap0/crmtap/pkg/metrics"
)

type discoverOptions struct {
	configPath string
	outputPath string
}

func newDiscoverCmd() *cobra.Command {
	opts := discoverOptions{}
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Describe every queryable entity and write the catalog",
		Long: `Discover lists every queryable entity, builds its schema and replication key,
and writes the catalog document. Every entry is written unselected.

Example:
  crmtap discover --config tap.json --output /tmp/catalog.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiscover(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to the tap configuration file (required)")
	cmd.Flags().StringVarP(&opts.outputPath, "output", "o", catalog.DefaultPath, "Where to write the catalog")
	return cmd
}

func runDiscover(ctx context.Context, opts discoverOptions) error {
	cfg, log, shutdown, err := setup(ctx, opts.configPath)
	if err != nil {
		return err
	}
	defer func() { _ = shutdown(context.Background()) }()
	resources := metrics.NewResourceMonitor()

	client := crm.New(cfg, log)
	defer client.Close()

	if err := client.Login(ctx); err != nil {
		return err
	}

	doc, err := catalog.NewAssembler(client, log).Discover(ctx)
	if err != nil {
		return err
	}

	if err := catalog.WriteFile(opts.outputPath, doc); err != nil {
		return err
	}

	stats := client.Stats()
	log.Info("catalog written",
		zap.String("path", opts.outputPath),
		zap.Int("streams", len(doc.Streams)),
		zap.Int64("http_requests", stats.TotalRequests))
	resources.Log(log)
	return nil
}
