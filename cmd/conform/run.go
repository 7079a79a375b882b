package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gogpu/conform/internal/runner"
)

func newRunCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Serve the test suite and run it in every configured browser",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := runner.Load(configPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			summary, err := runner.New(cfg).Run(ctx)
			if werr := summary.Write(cmd.OutOrStdout()); werr != nil && err == nil {
				err = werr
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d browsers posted results to %s\n",
				summary.Collected(), len(summary.Browsers), cfg.OutputDir)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "runner.json", "runner config (JSON or YAML)")
	return cmd
}
