// Package annotator attaches advisory LLM assessments to scored trades.
// The heuristic score is never replaced: a failed annotation leaves the
// trade marked "AI analysis unavailable" and the scan carries on.
package annotator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/deepstock/internal/common"
	"github.com/ternarybob/deepstock/internal/interfaces"
	"github.com/ternarybob/deepstock/internal/models"
	"github.com/ternarybob/deepstock/internal/services/llm"
)

// Config bounds every LLM call the annotator makes
type Config struct {
	Timeout     time.Duration // per attempt
	Attempts    int
	Retry       *llm.RetryConfig
	NewsLimit   int
	NewsTimeout time.Duration
	Temperature float32
	MaxTokens   int
}

// NewConfig derives annotator settings from application config
func NewConfig(cfg *common.Config) Config {
	retry := llm.NewDefaultRetryConfig()
	retry.MaxBackoff = cfg.AIMaxBackoff()

	return Config{
		Timeout:     cfg.AITimeout(),
		Attempts:    cfg.AI.Attempts,
		Retry:       retry,
		NewsLimit:   5,
		NewsTimeout: 10 * time.Second,
	}
}

// Service implements interfaces.TradeAnnotator on top of an llm.Provider
type Service struct {
	provider llm.Provider
	news     interfaces.NewsProvider
	config   Config
	logger   arbor.ILogger
}

var _ interfaces.TradeAnnotator = (*Service)(nil)

// NewService creates an annotator. news may be nil.
func NewService(provider llm.Provider, news interfaces.NewsProvider, config Config, logger arbor.ILogger) *Service {
	if config.Attempts < 1 {
		config.Attempts = 1
	}
	if config.Retry == nil {
		config.Retry = llm.NewDefaultRetryConfig()
	}
	return &Service{
		provider: provider,
		news:     news,
		config:   config,
		logger:   logger,
	}
}

type tradeResponse struct {
	Score          float64 `json:"significance_score"`
	Sentiment      string  `json:"sentiment"`
	Headline       string  `json:"headline"`
	Analysis       string  `json:"analysis"`
	HistoricalNote *string `json:"historical_note"`
}

// Annotate asks the provider for a 1-10 significance score and rationale
func (s *Service) Annotate(ctx context.Context, trade models.ScoredTrade) (*models.Annotation, error) {
	request := &llm.ContentRequest{
		Prompt:            buildTradePrompt(trade, s.headlines(ctx, trade.Record.Ticker)),
		SystemInstruction: systemInstruction,
		Temperature:       s.config.Temperature,
		MaxTokens:         s.config.MaxTokens,
		JSONOutput:        true,
	}

	var parsed tradeResponse
	resp, err := s.generate(ctx, request, &parsed)
	if err != nil {
		s.logger.Warn().
			Str("key", trade.Key).
			Err(err).
			Msg("AI annotation unavailable, keeping heuristic score")
		return &models.Annotation{Available: false, Error: err.Error()},
			fmt.Errorf("%w: %s: %w", interfaces.ErrAIUnavailable, trade.Key, err)
	}

	annotation := &models.Annotation{
		Available: true,
		Score:     clamp(parsed.Score, 1, 10),
		Sentiment: normalizeSentiment(parsed.Sentiment),
		Headline:  strings.TrimSpace(parsed.Headline),
		Rationale: strings.TrimSpace(parsed.Analysis),
		Provider:  string(resp.Provider),
		Model:     resp.Model,
	}
	if parsed.HistoricalNote != nil {
		annotation.HistoricalNote = strings.TrimSpace(*parsed.HistoricalNote)
	}

	s.logger.Info().
		Str("ticker", trade.Record.Ticker).
		Str("ai_score", fmt.Sprintf("%.1f", annotation.Score)).
		Str("sentiment", annotation.Sentiment).
		Msg("AI annotation complete")

	return annotation, nil
}

// DetectPatterns looks for clusters and unusual activity across trades
func (s *Service) DetectPatterns(ctx context.Context, trades []models.ScoredTrade) (*models.PatternReport, error) {
	prompt, err := buildPatternPrompt(trades)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", interfaces.ErrAIUnavailable, err)
	}

	request := &llm.ContentRequest{
		Prompt:            prompt,
		SystemInstruction: systemInstruction,
		Temperature:       s.config.Temperature,
		MaxTokens:         s.config.MaxTokens,
		JSONOutput:        true,
	}

	var report models.PatternReport
	if _, err := s.generate(ctx, request, &report); err != nil {
		s.logger.Warn().Err(err).Msg("Pattern detection unavailable")
		return nil, fmt.Errorf("%w: pattern detection: %w", interfaces.ErrAIUnavailable, err)
	}

	patterns := report.Patterns[:0]
	for _, p := range report.Patterns {
		if strings.TrimSpace(p.Description) == "" && len(p.Tickers) == 0 {
			continue
		}
		p.Confidence = clamp(p.Confidence, 0, 1)
		for i, t := range p.Tickers {
			p.Tickers[i] = strings.ToUpper(strings.TrimSpace(t))
		}
		patterns = append(patterns, p)
	}
	report.Patterns = patterns
	report.PatternsFound = len(patterns)
	report.Summary = strings.TrimSpace(report.Summary)

	s.logger.Info().
		Int("trades", len(trades)).
		Int("patterns", report.PatternsFound).
		Msg("Pattern detection complete")

	return &report, nil
}

// generate runs the bounded attempt loop. Each attempt gets its own timeout;
// a reply that does not parse counts as a failed attempt.
func (s *Service) generate(ctx context.Context, request *llm.ContentRequest, out any) (*llm.ContentResponse, error) {
	var lastErr error

	for attempt := 0; attempt < s.config.Attempts; attempt++ {
		if attempt > 0 {
			delay := s.config.Retry.CalculateBackoff(attempt-1, 0)
			if llm.IsRateLimitError(lastErr) {
				delay = s.config.Retry.CalculateBackoff(attempt-1, llm.ExtractRetryDelay(lastErr))
			}
			s.logger.Debug().
				Int("attempt", attempt+1).
				Dur("backoff", delay).
				Err(lastErr).
				Msg("Retrying AI request")
			if err := sleep(ctx, delay); err != nil {
				return nil, errors.Join(lastErr, err)
			}
		}

		resp, err := s.attempt(ctx, request, out)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			break
		}
	}

	return nil, fmt.Errorf("%d attempt(s) failed: %w", s.config.Attempts, lastErr)
}

func (s *Service) attempt(ctx context.Context, request *llm.ContentRequest, out any) (*llm.ContentResponse, error) {
	attemptCtx := ctx
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	resp, err := s.provider.GenerateContent(attemptCtx, request)
	if err != nil {
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("timed out after %s: %w", s.config.Timeout, err)
		}
		return nil, err
	}
	if err := llm.ExtractJSON(resp.Text, out); err != nil {
		return nil, err
	}
	return resp, nil
}

// headlines fetches optional news context. Failures only cost the context.
func (s *Service) headlines(ctx context.Context, ticker string) []string {
	if s.news == nil || ticker == "" || s.config.NewsLimit <= 0 {
		return nil
	}

	newsCtx := ctx
	if s.config.NewsTimeout > 0 {
		var cancel context.CancelFunc
		newsCtx, cancel = context.WithTimeout(ctx, s.config.NewsTimeout)
		defer cancel()
	}

	items, err := s.news.Headlines(newsCtx, ticker, s.config.NewsLimit)
	if err != nil {
		s.logger.Debug().Str("ticker", ticker).Err(err).Msg("News context unavailable")
		return nil
	}
	return items
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func normalizeSentiment(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bullish":
		return "bullish"
	case "bearish":
		return "bearish"
	default:
		return "neutral"
	}
}
