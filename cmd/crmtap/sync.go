package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/crmtap/internal/pipeline"
	"github.com/ajitpratap0/crmtap/pkg/catalog"
	"github.com/ajitpratap0/crmtap/pkg/checkpoint"
	"github.com/ajitpratap0/crmtap/pkg/crm"
	"github.com/ajitpratap0/crmtap/pkg/errors"
	"github.com/ajitpratap0/crmtap/pkg/logger"
	"github.com/ajitpratap0/crmtap/pkg/messages"
	"github.com/ajitpratap0/crmtap/pkg/metrics"
	"github.com/ajitpratap0/crmtap/pkg/state"
)

type syncOptions struct {
	configPath  string
	catalogPath string
	statePath   string
}

func newSyncCmd() *cobra.Command {
	opts := syncOptions{}
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync the selected streams of a catalog",
		Long: `Sync extracts every selected stream of the catalog in order. Each record is
written to stdout as a RECORD message, followed by a STATE message carrying the
updated bookmark when the stream has a replication key.

Without --state the run resumes from the latest checkpoint in checkpoint_db,
when configured, and otherwise from start_date.

Example:
  crmtap sync --config tap.json --catalog catalog.json --state state.json > out.jsonl`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to the tap configuration file (required)")
	cmd.Flags().StringVar(&opts.catalogPath, "catalog", "", "Path to the catalog with selections (required)")
	cmd.Flags().StringVar(&opts.catalogPath, "properties", "", "Alias of --catalog")
	cmd.Flags().StringVarP(&opts.statePath, "state", "s", "", "Path to a previous state document")
	_ = cmd.Flags().MarkHidden("properties")
	return cmd
}

func runSync(ctx context.Context, opts syncOptions, stdout io.Writer) (err error) {
	cfg, log, shutdown, err := setup(ctx, opts.configPath)
	if err != nil {
		return err
	}
	defer func() { _ = shutdown(context.Background()) }()
	resources := metrics.NewResourceMonitor()

	if opts.catalogPath == "" {
		return errors.New(errors.ErrorTypeConfig, "--catalog is required")
	}
	doc, err := catalog.LoadFile(opts.catalogPath)
	if err != nil {
		return err
	}

	var journal *checkpoint.Journal
	if cfg.CheckpointDB != "" {
		journal, err = checkpoint.Open(cfg.CheckpointDB, log)
		if err != nil {
			return err
		}
		defer journal.Close()
	}

	prev, err := previousState(ctx, opts.statePath, journal, log)
	if err != nil {
		return err
	}
	st := state.Build(prev, doc, cfg.StartDate)

	client := crm.New(cfg, log)
	defer client.Close()
	if err := client.Login(ctx); err != nil {
		return err
	}

	var emitter messages.Emitter = messages.NewWriter(stdout)
	if journal != nil {
		runID := checkpoint.NewRunID()
		ctx = logger.WithRunID(ctx, runID)
		log = log.With(zap.String("run_id", runID))

		if err := journal.StartRun(ctx, runID); err != nil {
			return err
		}
		defer func() {
			status := checkpoint.StatusSucceeded
			if err != nil {
				status = checkpoint.StatusFailed
			}
			if ferr := journal.FinishRun(context.Background(), runID, status); ferr != nil {
				log.Warn("failed to finish checkpoint run", zap.Error(ferr))
			}
		}()
		emitter = checkpoint.NewRecordingEmitter(emitter, journal, runID)
	}

	extractor := pipeline.ExtractorFunc(func(entry catalog.CatalogEntry, st *state.State) (pipeline.RecordIterator, error) {
		it, err := client.Query(entry, st)
		if err != nil {
			return nil, err
		}
		return it, nil
	})

	orchestrator := pipeline.NewOrchestrator(extractor, emitter, pipeline.Options{
		MetricsLogInterval: cfg.MetricsLogInterval,
	}, log)

	log.Info("starting sync",
		zap.Int("selected_streams", len(doc.Selected())),
		zap.String("start_date", cfg.StartDate))

	summary, err := orchestrator.Run(ctx, doc, st)
	if err != nil {
		return err
	}

	stats := client.Stats()
	log.Info("sync complete",
		zap.Int("streams", summary.Streams),
		zap.Int64("records", summary.Records),
		zap.Int64("http_requests", stats.TotalRequests),
		zap.Float64("http_success_rate", stats.SuccessRate))
	resources.Log(log)
	return nil
}

// previousState reads the state file when one is given, else the latest
// journaled checkpoint. A nil result means a fresh run.
func previousState(ctx context.Context, path string, journal *checkpoint.Journal, log *zap.Logger) (*state.State, error) {
	if path != "" {
		return state.LoadFile(path)
	}
	if journal == nil {
		return nil, nil
	}

	prev, runID, ok, err := journal.Latest(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		log.Info("resuming from checkpoint journal", zap.String("previous_run_id", runID))
	}
	return prev, nil
}
