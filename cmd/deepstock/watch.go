package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ternarybob/deepstock/internal/app"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Scan continuously on a fixed interval",
	Long:  `Runs a scan immediately, then every interval until interrupted. Failed cycles are logged and the loop continues.`,
	RunE:  runWatch,
}

var (
	watchInterval int
	watchMinValue float64
)

func init() {
	watchCmd.Flags().IntVar(&watchInterval, "interval", 0, "Minutes between scans (overrides config)")
	watchCmd.Flags().Float64Var(&watchMinValue, "min-value", -1, "Minimum trade value in USD (overrides config)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	if err := loadConfig(watchMinValue, watchInterval); err != nil {
		return err
	}
	if err := requireValidConfig(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, config, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	logger.Info().
		Str("schedule", application.Scheduler.Schedule()).
		Msg("Watching for trades - Press Ctrl+C to stop")

	if err := application.Scheduler.Watch(ctx); err != nil {
		return err
	}

	runs, skipped := application.Scheduler.Stats()
	logger.Info().
		Int("scans", runs).
		Int("skipped", skipped).
		Msg("Watch stopped")
	return nil
}
