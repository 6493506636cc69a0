package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func runCmd(configPath *string) *cobra.Command {
	var rails []string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one reconciliation tick",
		Long: `Run one reconciliation tick for each selected rail and exit.

Failures are logged and retried by the next scheduled run, so the command
exits 0 once the configuration is valid.

Examples:
  reconciler run --rail generic-bank
  reconciler run              # every configured rail`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if len(rails) == 0 {
				rails = cfg.RailNames()
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, log)
			if err != nil {
				log.Error().Err(err).Msg("reconciler unavailable, retrying next tick")
				return nil
			}
			defer a.Close()

			for _, name := range rails {
				runner, err := a.runner(name)
				if err != nil {
					log.Error().Err(err).Str("rail", name).Msg("rail not runnable")
					continue
				}
				if _, err := runner.RunOnce(ctx); err != nil {
					log.Warn().Err(err).Str("rail", name).Msg("tick did not start")
				}
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&rails, "rail", "r", nil, "rail to reconcile (repeatable; default all)")
	return cmd
}
