package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/crmtap/pkg/config"
	"github.com/ajitpratap0/crmtap/pkg/errors"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the tap configuration",
	}

	var configPath string
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return errors.New(errors.ErrorTypeConfig, "--config is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), string(out))
			return err
		},
	}
	show.Flags().StringVarP(&configPath, "config", "c", "", "Path to the tap configuration file (required)")
	cmd.AddCommand(show)
	return cmd
}
