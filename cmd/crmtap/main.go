package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/crmtap/pkg/config"
	"github.com/ajitpratap0/crmtap/pkg/errors"
	"github.com/ajitpratap0/crmtap/pkg/logger"
	"github.com/ajitpratap0/crmtap/pkg/observability"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	root := newRootCmd(os.Stdout)
	err := root.ExecuteContext(context.Background())
	os.Exit(exitCode(err))
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "crmtap",
		Short: "crmtap - CRM extractor emitting records and checkpoints as JSON lines",
		Long: `crmtap discovers the entities of a CRM organization and syncs the selected
ones incrementally. Records and bookmark checkpoints are written to stdout as
JSON lines; logs go to stderr.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return errors.Wrap(err, errors.ErrorTypeConfig, "invalid flags")
	})

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "crmtap v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})
	root.AddCommand(newDiscoverCmd())
	root.AddCommand(newSyncCmd())
	root.AddCommand(newConfigCmd())

	return root
}

// exitCode logs err and returns the process exit status. Operational
// failures exit 1; anything else is logged at panic level, which panics.
func exitCode(err error) int {
	if err == nil {
		_ = logger.Sync()
		return 0
	}

	fields := []zap.Field{zap.Error(err)}
	var e *errors.Error
	if errors.As(err, &e) {
		fields = append(fields, zap.String("error_type", string(e.Type)))
		for k, v := range e.Details {
			fields = append(fields, zap.Any(k, v))
		}
	}

	if errors.IsOperational(err) {
		logger.Critical(err.Error(), fields...)
		_ = logger.Sync()
		return 1
	}

	if e != nil {
		fields = append(fields, zap.Strings("origin_stack", e.StackTrace()))
	}
	logger.Panic(err.Error(), fields...)
	return 2
}

// setup loads the configuration and installs the logger and tracer it
// describes. The returned shutdown flushes spans.
func setup(ctx context.Context, configPath string) (config.Config, *zap.Logger, observability.ShutdownFunc, error) {
	if configPath == "" {
		return config.Config{}, nil, nil, errors.New(errors.ErrorTypeConfig, "--config is required")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, nil, nil, err
	}

	if err := logger.Init(logger.Config{Level: cfg.LogLevel, Encoding: cfg.LogFormat}); err != nil {
		return config.Config{}, nil, nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid logging configuration")
	}

	shutdown, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:        cfg.EnableTracing,
		ServiceName:    "crmtap",
		ServiceVersion: version,
	})
	if err != nil {
		return config.Config{}, nil, nil, err
	}

	return cfg, logger.Get(), shutdown, nil
}
