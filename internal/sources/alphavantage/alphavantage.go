// Package alphavantage fetches insider transactions from Alpha Vantage.
package alphavantage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/deepstock/internal/common"
	"github.com/ternarybob/deepstock/internal/httpclient"
	"github.com/ternarybob/deepstock/internal/interfaces"
	"github.com/ternarybob/deepstock/internal/models"
	"github.com/ternarybob/deepstock/internal/sources"
)

// insiderResponse is the INSIDER_TRANSACTIONS payload. Quota and key errors
// arrive with status 200 in Note/Information/Error Message.
type insiderResponse struct {
	Data         []insiderTransaction `json:"data"`
	Note         string               `json:"Note"`
	Information  string               `json:"Information"`
	ErrorMessage string               `json:"Error Message"`
}

type insiderTransaction struct {
	TransactionDate       string             `json:"transaction_date"`
	Ticker                string             `json:"ticker"`
	Executive             string             `json:"executive"`
	ExecutiveTitle        string             `json:"executive_title"`
	SecurityType          string             `json:"security_type"`
	AcquisitionOrDisposal string             `json:"acquisition_or_disposal"`
	Shares                sources.FlexNumber `json:"shares"`
	SharePrice            sources.FlexNumber `json:"share_price"`
}

// Source is the Alpha Vantage adapter
type Source struct {
	client    *httpclient.Client
	apiKey    string
	watchlist []string
	logger    arbor.ILogger
}

// New creates the Alpha Vantage adapter. The free tier allows five requests
// per minute, enforced by the client's limiter.
func New(cfg common.AlphaVantageConfig, watchlist []string, logger arbor.ILogger) *Source {
	return &Source{
		client: httpclient.NewClient(models.SourceAlphaVantage, cfg.BaseURL,
			httpclient.WithLogger(logger),
			httpclient.WithRateLimit(cfg.RateLimit),
			httpclient.WithUserAgent(common.UserAgent()),
		),
		apiKey:    cfg.APIKey,
		watchlist: watchlist,
		logger:    logger,
	}
}

// Name returns the source identifier
func (s *Source) Name() string {
	return models.SourceAlphaVantage
}

// Fetch returns insider transactions for each watchlisted ticker
func (s *Source) Fetch(ctx context.Context) ([]models.TradeRecord, error) {
	if len(s.watchlist) == 0 {
		s.logger.Warn().Str("source", s.Name()).Msg("Watchlist is empty - nothing to fetch")
		return []models.TradeRecord{}, nil
	}

	records := []models.TradeRecord{}
	var failures []error

	for _, ticker := range s.watchlist {
		rows, err := s.fetchTicker(ctx, ticker)
		if err != nil {
			failures = append(failures, fmt.Errorf("%s: %w", ticker, err))
			s.logger.Warn().Err(err).Str("ticker", ticker).Msg("Alpha Vantage insider transactions failed")
			if ctx.Err() != nil {
				break
			}
			continue
		}
		records = append(records, rows...)
	}

	if len(failures) > 0 && len(records) == 0 && len(failures) >= len(s.watchlist) {
		return nil, interfaces.NewSourceError(s.Name(), errors.Join(failures...))
	}

	s.logger.Info().
		Str("source", s.Name()).
		Int("records", len(records)).
		Int("failed_tickers", len(failures)).
		Msg("Fetched insider transactions")

	return records, nil
}

func (s *Source) fetchTicker(ctx context.Context, ticker string) ([]models.TradeRecord, error) {
	params := url.Values{}
	params.Set("function", "INSIDER_TRANSACTIONS")
	params.Set("symbol", strings.ToUpper(ticker))
	params.Set("apikey", s.apiKey)

	var resp insiderResponse
	if err := s.client.GetJSON(ctx, "/query", params, &resp); err != nil {
		return nil, err
	}

	if msg := firstNonEmpty(resp.ErrorMessage, resp.Note, resp.Information); msg != "" && len(resp.Data) == 0 {
		return nil, &httpclient.APIError{
			Provider:   s.Name(),
			StatusCode: 200,
			Message:    msg,
			Endpoint:   "/query",
		}
	}

	records := make([]models.TradeRecord, 0, len(resp.Data))
	for _, row := range resp.Data {
		records = append(records, toRecord(row))
	}
	return records, nil
}

func toRecord(row insiderTransaction) models.TradeRecord {
	return models.NewTradeRecord(models.TradeRecord{
		Insider:         row.Executive,
		Role:            row.ExecutiveTitle,
		Ticker:          row.Ticker,
		Action:          models.ParseAction(row.AcquisitionOrDisposal),
		Shares:          row.Shares.Float(),
		Price:           row.SharePrice.Float(),
		TransactionDate: sources.ParseDate(row.TransactionDate),
		Source:          models.SourceAlphaVantage,
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
