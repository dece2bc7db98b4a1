// Package app is the composition root: it builds every adapter, service and
// channel from configuration and wires them into the scanner.
package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/deepstock/internal/common"
	"github.com/ternarybob/deepstock/internal/interfaces"
	"github.com/ternarybob/deepstock/internal/services/alerts"
	"github.com/ternarybob/deepstock/internal/services/annotator"
	"github.com/ternarybob/deepstock/internal/services/llm"
	"github.com/ternarybob/deepstock/internal/services/normalize"
	"github.com/ternarybob/deepstock/internal/services/scanner"
	"github.com/ternarybob/deepstock/internal/services/scheduler"
	"github.com/ternarybob/deepstock/internal/services/scoring"
	"github.com/ternarybob/deepstock/internal/sources/alphavantage"
	"github.com/ternarybob/deepstock/internal/sources/edgar"
	"github.com/ternarybob/deepstock/internal/sources/finnhub"
	"github.com/ternarybob/deepstock/internal/sources/fmp"
	"github.com/ternarybob/deepstock/internal/storage"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Data sources
	Sources []interfaces.TradeSource
	News    interfaces.NewsProvider

	// Optional AI collaborator; nil when disabled or unavailable
	AIProvider llm.Provider
	Annotator  interfaces.TradeAnnotator

	// Delivery and cross-cycle state
	Dispatcher *alerts.Dispatcher
	Alerted    interfaces.AlertedStorage

	// Pipeline
	Scanner   *scanner.Service
	Scheduler *scheduler.Service

	consoleOut io.Writer
}

// Option customises App construction
type Option func(*App)

// WithConsoleOutput redirects the console alert channel
func WithConsoleOutput(w io.Writer) Option {
	return func(a *App) {
		a.consoleOut = w
	}
}

// New initializes the application with all dependencies
func New(ctx context.Context, cfg *common.Config, logger arbor.ILogger, opts ...Option) (*App, error) {
	a := &App{
		Config:     cfg,
		Logger:     logger,
		consoleOut: os.Stdout,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.initSources()
	a.initAI(ctx)
	a.initChannels()

	alerted, err := storage.NewAlertedStorage(logger, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize alerted store: %w", err)
	}
	a.Alerted = alerted

	a.Scanner = scanner.NewService(scanner.Deps{
		Sources:    a.Sources,
		Normalizer: normalize.NewService(logger),
		Scorer:     scoring.NewService(scoring.NewConfig(cfg), logger),
		Annotator:  a.Annotator,
		Formatter:  alerts.NewFormatter(),
		Dispatcher: a.Dispatcher,
		Alerted:    a.Alerted,
	}, scanner.NewConfig(cfg), logger)

	a.Scheduler = scheduler.NewService(a.Scanner, cfg.ScanInterval(), logger)

	logger.Info().
		Int("sources", len(a.Sources)).
		Bool("ai", a.Annotator != nil).
		Strs("channels", a.Dispatcher.Channels()).
		Msg("Application initialised")

	return a, nil
}

func (a *App) initSources() {
	cfg := a.Config
	watchlist := cfg.Scan.Watchlist

	if cfg.Sources.FMP.APIKey != "" {
		a.Sources = append(a.Sources, fmp.New(cfg.Sources.FMP, a.Logger))
	}

	if cfg.Sources.Finnhub.APIKey != "" {
		src := finnhub.New(cfg.Sources.Finnhub, watchlist, a.Logger)
		a.Sources = append(a.Sources, src)
		if cfg.Sources.Finnhub.NewsForContext {
			a.News = src
		}
	}

	if cfg.Sources.AlphaVantage.APIKey != "" {
		a.Sources = append(a.Sources, alphavantage.New(cfg.Sources.AlphaVantage, watchlist, a.Logger))
	}

	if cfg.Sources.EDGAR.Enabled {
		a.Sources = append(a.Sources, edgar.New(cfg.Sources.EDGAR, a.Logger))
	}

	names := make([]string, 0, len(a.Sources))
	for _, s := range a.Sources {
		names = append(names, s.Name())
	}
	a.Logger.Debug().Strs("sources", names).Msg("Data sources configured")
}

// initAI builds the annotator. A provider that cannot be created disables AI for
// the process rather than failing startup.
func (a *App) initAI(ctx context.Context) {
	if !a.Config.AIActive() {
		a.Logger.Info().Msg("AI annotation disabled")
		return
	}

	provider, err := llm.NewProvider(ctx, a.Config, a.Logger)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("AI provider unavailable, continuing with heuristic scores only")
		return
	}

	a.AIProvider = provider
	a.Annotator = annotator.NewService(provider, a.News, annotator.NewConfig(a.Config), a.Logger)
}

func (a *App) initChannels() {
	var channels []interfaces.AlertChannel

	if a.Config.HasTelegram() {
		channels = append(channels, alerts.NewTelegramChannel(a.Config.Alerts.Telegram, a.Logger))
	}
	if a.Config.HasEmail() {
		channels = append(channels, alerts.NewEmailChannel(a.Config.Alerts.Email, a.Logger))
	}
	if a.Config.Alerts.Console {
		channels = append(channels, alerts.NewConsoleChannel(a.consoleOut))
	}

	a.Dispatcher = alerts.NewDispatcher(a.Logger, channels...)
}

// Close releases the alerted store
func (a *App) Close() error {
	if a.Alerted != nil {
		if err := a.Alerted.Close(); err != nil {
			return fmt.Errorf("failed to close alerted store: %w", err)
		}
	}
	return nil
}
