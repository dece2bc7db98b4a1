// Package scanner runs one scan cycle: fetch from every source behind a
// barrier, normalize, score, suppress already-alerted trades, annotate, and
// dispatch alerts.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/deepstock/internal/common"
	"github.com/ternarybob/deepstock/internal/interfaces"
	"github.com/ternarybob/deepstock/internal/models"
	"github.com/ternarybob/deepstock/internal/services/alerts"
	"github.com/ternarybob/deepstock/internal/services/normalize"
	"github.com/ternarybob/deepstock/internal/services/scoring"
)

// Config controls the per-cycle limits of a scan
type Config struct {
	SourceTimeout    time.Duration
	AITopN           int
	PatternDetection bool
	PatternMinTrades int
	Digest           bool
	DigestMinTrades  int
	MaxAlerts        int // 0 = unlimited
}

// NewConfig derives scanner settings from application config
func NewConfig(cfg *common.Config) Config {
	return Config{
		SourceTimeout:    cfg.SourceTimeout(),
		AITopN:           cfg.AI.TopN,
		PatternDetection: cfg.AI.PatternDetection,
		PatternMinTrades: cfg.AI.PatternMinTrades,
		Digest:           cfg.Alerts.Digest,
		DigestMinTrades:  cfg.Scan.DigestMinTrades,
		MaxAlerts:        cfg.Scan.MaxAlerts,
	}
}

// Deps are the collaborators of a scan. Annotator may be nil when AI is disabled.
type Deps struct {
	Sources    []interfaces.TradeSource
	Normalizer *normalize.Service
	Scorer     *scoring.Service
	Annotator  interfaces.TradeAnnotator
	Formatter  *alerts.Formatter
	Dispatcher *alerts.Dispatcher
	Alerted    interfaces.AlertedStorage
}

// Service runs scan cycles. RunScan must not be called concurrently; the
// scheduler guarantees this.
type Service struct {
	deps   Deps
	config Config
	logger arbor.ILogger
	now    func() time.Time
}

// NewService creates a scanner
func NewService(deps Deps, config Config, logger arbor.ILogger) *Service {
	if deps.Formatter == nil {
		deps.Formatter = alerts.NewFormatter()
	}
	if deps.Dispatcher == nil {
		deps.Dispatcher = alerts.NewDispatcher(logger)
	}
	return &Service{
		deps:   deps,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

type fetchOutcome struct {
	records  []models.TradeRecord
	err      error
	duration time.Duration
}

// RunScan executes one cycle. It fails only when no source produced data; every
// other failure degrades the cycle and is reported in the result.
func (s *Service) RunScan(ctx context.Context) (*models.ScanResult, error) {
	result := &models.ScanResult{
		RunID:     common.NewRunID(),
		StartedAt: s.now().UTC(),
	}
	logger := s.logger.WithCorrelationId(result.RunID)

	logger.Info().Int("sources", len(s.deps.Sources)).Msg("Scan started")

	if len(s.deps.Sources) == 0 {
		return result, fmt.Errorf("%w: no data sources configured", interfaces.ErrConfiguration)
	}

	records, failures := s.fetchAll(ctx, logger, result)
	result.TradesFetched = len(records)

	if len(failures) == len(s.deps.Sources) {
		result.FinishedAt = s.now().UTC()
		err := &interfaces.AllSourcesFailedError{Failures: failures}
		logger.Error().Err(err).Msg("Scan aborted, no source produced data")
		return result, err
	}

	canonical := s.deps.Normalizer.Normalize(records)
	result.TradesCanonical = len(canonical)

	scored := s.deps.Scorer.Evaluate(canonical, s.now())
	result.TradesScored = len(scored)

	passing := scoring.Passing(scored)
	result.TradesPassed = len(passing)

	fresh := s.suppressAlerted(ctx, logger, passing)
	result.TradesSuppressed = len(passing) - len(fresh)

	var patterns *models.PatternReport
	if s.deps.Annotator != nil && len(fresh) > 0 {
		result.TradesAnalyzed = s.annotate(ctx, logger, fresh)
		patterns = s.detectPatterns(ctx, logger, fresh)
		if patterns != nil {
			result.PatternsFound = patterns.PatternsFound
		}
	}

	result.Trades = fresh
	s.dispatch(ctx, logger, result, fresh, patterns)

	result.FinishedAt = s.now().UTC()
	logger.Info().
		Int("fetched", result.TradesFetched).
		Int("canonical", result.TradesCanonical).
		Int("passed", result.TradesPassed).
		Int("suppressed", result.TradesSuppressed).
		Int("analyzed", result.TradesAnalyzed).
		Int("patterns", result.PatternsFound).
		Int("alerts_sent", result.AlertsSent).
		Int("delivery_failures", result.DeliveryFailures).
		Dur("duration", result.FinishedAt.Sub(result.StartedAt)).
		Msg("Scan complete")

	return result, nil
}

// fetchAll queries every source concurrently and waits for all of them. Each
// source has its own timeout; one source failing or timing out never cancels
// another.
func (s *Service) fetchAll(ctx context.Context, logger arbor.ILogger, result *models.ScanResult) ([]models.TradeRecord, []error) {
	outcomes := make([]fetchOutcome, len(s.deps.Sources))

	var wg sync.WaitGroup
	for i, src := range s.deps.Sources {
		outcomes[i].err = errors.New("fetch did not complete")

		wg.Add(1)
		common.SafeGo(logger, "fetch:"+src.Name(), func() {
			defer wg.Done()

			fetchCtx := ctx
			if s.config.SourceTimeout > 0 {
				var cancel context.CancelFunc
				fetchCtx, cancel = context.WithTimeout(ctx, s.config.SourceTimeout)
				defer cancel()
			}

			started := time.Now()
			records, err := src.Fetch(fetchCtx)
			outcomes[i] = fetchOutcome{records: records, err: err, duration: time.Since(started)}
		})
	}
	wg.Wait()

	var (
		records  []models.TradeRecord
		failures []error
	)
	for i, src := range s.deps.Sources {
		out := outcomes[i]
		report := models.SourceReport{Source: src.Name(), Duration: out.duration}

		if out.err != nil {
			err := interfaces.NewSourceError(src.Name(), out.err)
			failures = append(failures, err)
			report.Error = err.Error()
			logger.Warn().Str("source", src.Name()).Err(err).Msg("Source unavailable, skipping")
		} else {
			report.Records = len(out.records)
			records = append(records, out.records...)
			logger.Info().
				Str("source", src.Name()).
				Int("records", len(out.records)).
				Dur("duration", out.duration).
				Msg("Source fetched")
		}
		result.Sources = append(result.Sources, report)
	}

	return records, failures
}

// suppressAlerted drops trades alerted in an earlier cycle. A store error lets
// the trade through: a duplicate alert beats a missed one.
func (s *Service) suppressAlerted(ctx context.Context, logger arbor.ILogger, trades []models.ScoredTrade) []models.ScoredTrade {
	if s.deps.Alerted == nil {
		return trades
	}

	fresh := make([]models.ScoredTrade, 0, len(trades))
	for _, t := range trades {
		seen, err := s.deps.Alerted.Has(ctx, t.Key)
		if err != nil {
			logger.Warn().Str("key", t.Key).Err(err).Msg("Alerted store lookup failed")
		}
		if seen {
			logger.Debug().Str("key", t.Key).Msg("Already alerted, suppressing")
			continue
		}
		fresh = append(fresh, t)
	}
	return fresh
}

// annotate attaches AI annotations to the top N trades in place and returns how
// many succeeded. Trades outside the top N carry no annotation.
func (s *Service) annotate(ctx context.Context, logger arbor.ILogger, trades []models.ScoredTrade) int {
	n := s.config.AITopN
	if n <= 0 || n > len(trades) {
		n = len(trades)
	}

	analyzed := 0
	for i := 0; i < n; i++ {
		annotation, err := s.deps.Annotator.Annotate(ctx, trades[i])
		trades[i].AI = annotation
		if err != nil {
			logger.Warn().Str("key", trades[i].Key).Err(err).Msg("Continuing with heuristic score only")
			continue
		}
		analyzed++
	}
	return analyzed
}

func (s *Service) detectPatterns(ctx context.Context, logger arbor.ILogger, trades []models.ScoredTrade) *models.PatternReport {
	if !s.config.PatternDetection || len(trades) < s.config.PatternMinTrades {
		return nil
	}

	report, err := s.deps.Annotator.DetectPatterns(ctx, trades)
	if err != nil {
		logger.Warn().Err(err).Msg("Pattern detection skipped")
		return nil
	}
	return report
}

// dispatch sends breaking alerts, then the digest (or a standalone pattern alert
// when no digest goes out), and records every trade delivered on at least one
// channel.
func (s *Service) dispatch(ctx context.Context, logger arbor.ILogger, result *models.ScanResult, trades []models.ScoredTrade, patterns *models.PatternReport) {
	if len(trades) == 0 && patterns == nil {
		return
	}
	if !s.deps.Dispatcher.Enabled() {
		logger.Warn().Int("trades", len(trades)).Msg("No alert channel enabled, nothing delivered or recorded")
		return
	}

	var delivered []string
	send := func(alert *models.Alert) bool {
		report := s.deps.Dispatcher.Dispatch(ctx, alert)
		result.DeliveryFailures += len(report.Failures)
		if report.Ok() {
			result.AlertsSent++
		}
		return report.Ok()
	}

	breaking := trades
	if s.config.MaxAlerts > 0 && len(breaking) > s.config.MaxAlerts {
		breaking = breaking[:s.config.MaxAlerts]
	}
	for _, t := range breaking {
		if send(s.deps.Formatter.Breaking(t)) {
			delivered = append(delivered, t.Key)
		}
	}

	digestSent := false
	if s.config.Digest && len(trades) >= s.config.DigestMinTrades && len(trades) > 0 {
		digestSent = true
		if send(s.deps.Formatter.Digest(trades, patterns)) {
			for i, t := range trades {
				if i >= alerts.DigestTopTrades {
					break
				}
				delivered = append(delivered, t.Key)
			}
		}
	}

	if !digestSent && patterns != nil && patterns.PatternsFound > 0 {
		send(s.deps.Formatter.Pattern(patterns))
	}

	if len(delivered) == 0 || s.deps.Alerted == nil {
		return
	}
	if err := s.deps.Alerted.Add(ctx, delivered...); err != nil {
		logger.Error().Err(err).Msg("Failed to record alerted trades")
	}
}
