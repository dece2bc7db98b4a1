package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ternarybob/deepstock/internal/common"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show configuration status",
	Long:  `Prints which sources, AI providers and alert channels are configured. Exits non-zero when a blocking issue is found.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(-1, 0); err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), config)
		return config.ConfigurationError()
	},
}

func mark(ok bool) string {
	if ok {
		return "✓"
	}
	return "✗"
}

func printStatus(w io.Writer, c *common.Config) {
	fmt.Fprintln(w, "\nData sources")
	fmt.Fprintf(w, "  %s FMP\n", mark(c.Sources.FMP.APIKey != ""))
	fmt.Fprintf(w, "  %s Finnhub\n", mark(c.Sources.Finnhub.APIKey != ""))
	fmt.Fprintf(w, "  %s Alpha Vantage\n", mark(c.Sources.AlphaVantage.APIKey != ""))
	fmt.Fprintf(w, "  %s SEC EDGAR (no key)\n", mark(c.Sources.EDGAR.Enabled))

	fmt.Fprintln(w, "\nAI annotation")
	if c.AIActive() {
		fmt.Fprintf(w, "  ✓ %s (top %d, timeout %s, %d attempts)\n", c.ResolveAIProvider(), c.AI.TopN, c.AITimeout(), c.AI.Attempts)
	} else if !c.AI.Enabled {
		fmt.Fprintln(w, "  - disabled")
	} else {
		fmt.Fprintln(w, "  ✗ no provider key")
	}

	fmt.Fprintln(w, "\nAlert channels")
	fmt.Fprintf(w, "  %s Telegram\n", mark(c.HasTelegram()))
	fmt.Fprintf(w, "  %s Email\n", mark(c.HasEmail()))
	fmt.Fprintf(w, "  %s Console\n", mark(c.Alerts.Console))

	fmt.Fprintln(w, "\nScan")
	fmt.Fprintf(w, "  interval       %s\n", c.ScanInterval())
	fmt.Fprintf(w, "  min value      %s\n", common.FormatMoney(c.Scan.MinTradeValue))
	fmt.Fprintf(w, "  min score      %.1f\n", c.Scan.MinScore)
	fmt.Fprintf(w, "  watchlist      %s\n", strings.Join(c.Scan.Watchlist, ", "))
	if c.Storage.Badger.Enabled {
		fmt.Fprintf(w, "  alerted store  badger (%s)\n", c.Storage.Badger.Path)
	} else {
		fmt.Fprintln(w, "  alerted store  memory")
	}

	issues := c.Validate()
	if len(issues) == 0 {
		fmt.Fprintln(w, "\nConfiguration OK")
		return
	}
	fmt.Fprintln(w, "\nIssues")
	for _, issue := range issues {
		fmt.Fprintf(w, "  [%s] %s\n", issue.Severity, issue.Message)
	}
}
