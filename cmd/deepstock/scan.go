package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ternarybob/deepstock/internal/app"
	"github.com/ternarybob/deepstock/internal/common"
	"github.com/ternarybob/deepstock/internal/models"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run a single scan cycle",
	Long:  `Fetches from every configured source, scores and annotates trades, sends alerts and exits.`,
	RunE:  runScan,
}

var scanMinValue float64

func init() {
	scanCmd.Flags().Float64Var(&scanMinValue, "min-value", -1, "Minimum trade value in USD (overrides config)")
}

func runScan(cmd *cobra.Command, args []string) error {
	if err := loadConfig(scanMinValue, 0); err != nil {
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

	result, err := application.Scanner.RunScan(ctx)
	if result != nil {
		printSummary(cmd.OutOrStdout(), result)
	}
	return err
}

func printSummary(w io.Writer, result *models.ScanResult) {
	fmt.Fprintf(w, "\nScan %s finished in %s\n", result.RunID, result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond))
	for _, src := range result.Sources {
		if src.Failed() {
			fmt.Fprintf(w, "  %-14s FAILED  %s\n", src.Source, src.Error)
			continue
		}
		fmt.Fprintf(w, "  %-14s %d records\n", src.Source, src.Records)
	}
	fmt.Fprintf(w, "  fetched %d, unique %d, passed %d, already alerted %d, analyzed %d, patterns %d\n",
		result.TradesFetched, result.TradesCanonical, result.TradesPassed,
		result.TradesSuppressed, result.TradesAnalyzed, result.PatternsFound)
	fmt.Fprintf(w, "  alerts sent %d, delivery failures %d\n", result.AlertsSent, result.DeliveryFailures)

	for i, trade := range result.Trades {
		r := trade.Record
		fmt.Fprintf(w, "  %2d. %-6s %-4s %-28s %10s  score %.1f\n",
			i+1, r.Ticker, r.Action, r.Insider, common.FormatMoney(r.Value), trade.Score)
	}
}
