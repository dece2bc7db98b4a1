// Package finnhub fetches insider transactions, congressional trades and
// company news from Finnhub.
package finnhub

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/deepstock/internal/common"
	"github.com/ternarybob/deepstock/internal/httpclient"
	"github.com/ternarybob/deepstock/internal/interfaces"
	"github.com/ternarybob/deepstock/internal/models"
	"github.com/ternarybob/deepstock/internal/sources"
)

type insiderTransactionsResponse struct {
	Symbol string               `json:"symbol"`
	Data   []insiderTransaction `json:"data"`
}

type insiderTransaction struct {
	Name             string             `json:"name"`
	Share            sources.FlexNumber `json:"share"`
	Change           sources.FlexNumber `json:"change"` // negative for dispositions
	FilingDate       string             `json:"filingDate"`
	TransactionDate  string             `json:"transactionDate"`
	TransactionCode  string             `json:"transactionCode"`
	TransactionPrice sources.FlexNumber `json:"transactionPrice"`
}

type congressResponse struct {
	Symbol string          `json:"symbol"`
	Data   []congressTrade `json:"data"`
}

type congressTrade struct {
	Name            string             `json:"name"`
	Position        string             `json:"position"`
	Chamber         string             `json:"chamber"`
	OwnerType       string             `json:"ownerType"`
	Symbol          string             `json:"symbol"`
	AssetName       string             `json:"assetName"`
	AmountFrom      sources.FlexNumber `json:"amountFrom"`
	AmountTo        sources.FlexNumber `json:"amountTo"`
	FilingDate      string             `json:"filingDate"`
	TransactionDate string             `json:"transactionDate"`
	TransactionType string             `json:"transactionType"`
}

type newsArticle struct {
	Headline string `json:"headline"`
	Datetime int64  `json:"datetime"`
	Source   string `json:"source"`
	Summary  string `json:"summary"`
}

// Source is the Finnhub adapter. Both feeds are keyed by ticker, so only
// watchlisted tickers are queried.
type Source struct {
	client       *httpclient.Client
	apiKey       string
	watchlist    []string
	lookbackDays int
	insiderFeed  bool
	congress     bool
	logger       arbor.ILogger
	now          func() time.Time
}

// New creates the Finnhub adapter
func New(cfg common.FinnhubConfig, watchlist []string, logger arbor.ILogger) *Source {
	return &Source{
		client: httpclient.NewClient(models.SourceFinnhub, cfg.BaseURL,
			httpclient.WithLogger(logger),
			httpclient.WithRateLimit(cfg.RateLimit),
			httpclient.WithUserAgent(common.UserAgent()),
		),
		apiKey:       cfg.APIKey,
		watchlist:    watchlist,
		lookbackDays: cfg.LookbackDays,
		insiderFeed:  cfg.InsiderFeed,
		congress:     cfg.Congress,
		logger:       logger,
		now:          time.Now,
	}
}

// Name returns the source identifier
func (s *Source) Name() string {
	return models.SourceFinnhub
}

// Fetch returns insider and congressional trades for every watchlisted ticker.
// Individual ticker failures are logged; the source fails only when every request failed.
func (s *Source) Fetch(ctx context.Context) ([]models.TradeRecord, error) {
	if len(s.watchlist) == 0 {
		s.logger.Warn().Str("source", s.Name()).Msg("Watchlist is empty - Finnhub feeds are per ticker, nothing to fetch")
		return []models.TradeRecord{}, nil
	}

	var (
		records  []models.TradeRecord
		failures []error
		attempts int
	)

	for _, ticker := range s.watchlist {
		if ctx.Err() != nil {
			failures = append(failures, ctx.Err())
			break
		}

		if s.insiderFeed {
			attempts++
			rows, err := s.fetchInsider(ctx, ticker)
			if err != nil {
				failures = append(failures, fmt.Errorf("insider %s: %w", ticker, err))
				s.logger.Warn().Err(err).Str("ticker", ticker).Msg("Finnhub insider transactions failed")
			} else {
				records = append(records, rows...)
			}
		}

		if s.congress {
			attempts++
			rows, err := s.fetchCongress(ctx, ticker)
			if err != nil {
				failures = append(failures, fmt.Errorf("congress %s: %w", ticker, err))
				s.logger.Warn().Err(err).Str("ticker", ticker).Msg("Finnhub congressional trading failed")
			} else {
				records = append(records, rows...)
			}
		}
	}

	if attempts > 0 && len(failures) >= attempts {
		return nil, interfaces.NewSourceError(s.Name(), errors.Join(failures...))
	}

	s.logger.Info().
		Str("source", s.Name()).
		Int("records", len(records)).
		Int("tickers", len(s.watchlist)).
		Int("failed_requests", len(failures)).
		Msg("Fetched insider and congress trades")

	if records == nil {
		records = []models.TradeRecord{}
	}
	return records, nil
}

func (s *Source) params(ticker string) url.Values {
	from, to := sources.DateRange(s.now(), s.lookbackDays)
	params := url.Values{}
	params.Set("token", s.apiKey)
	params.Set("symbol", strings.ToUpper(ticker))
	params.Set("from", from)
	params.Set("to", to)
	return params
}

func (s *Source) fetchInsider(ctx context.Context, ticker string) ([]models.TradeRecord, error) {
	var resp insiderTransactionsResponse
	if err := s.client.GetJSON(ctx, "/stock/insider-transactions", s.params(ticker), &resp); err != nil {
		return nil, err
	}

	records := make([]models.TradeRecord, 0, len(resp.Data))
	for _, row := range resp.Data {
		records = append(records, insiderToRecord(ticker, row))
	}
	return records, nil
}

func (s *Source) fetchCongress(ctx context.Context, ticker string) ([]models.TradeRecord, error) {
	var resp congressResponse
	if err := s.client.GetJSON(ctx, "/stock/congressional-trading", s.params(ticker), &resp); err != nil {
		return nil, err
	}

	records := make([]models.TradeRecord, 0, len(resp.Data))
	for _, row := range resp.Data {
		records = append(records, congressToRecord(ticker, row))
	}
	return records, nil
}

func insiderToRecord(ticker string, row insiderTransaction) models.TradeRecord {
	action := models.ParseAction(row.TransactionCode)
	if action == models.ActionOther && row.TransactionCode == "" {
		switch {
		case row.Change.Float() > 0:
			action = models.ActionBuy
		case row.Change.Float() < 0:
			action = models.ActionSell
		}
	}

	return models.NewTradeRecord(models.TradeRecord{
		Insider:         row.Name,
		Ticker:          ticker,
		Action:          action,
		Shares:          row.Change.Float(),
		Price:           row.TransactionPrice.Float(),
		FilingDate:      sources.ParseDate(row.FilingDate),
		TransactionDate: sources.ParseDate(row.TransactionDate),
		Source:          models.SourceFinnhub,
	})
}

// congressToRecord takes the lower bound of the disclosed amount range as the value
func congressToRecord(ticker string, row congressTrade) models.TradeRecord {
	role := "Congress"
	if position := firstNonEmpty(row.Position, row.Chamber); position != "" {
		role = "Congress — " + position
	}
	symbol := row.Symbol
	if symbol == "" {
		symbol = ticker
	}

	return models.NewTradeRecord(models.TradeRecord{
		Insider:         row.Name,
		Role:            role,
		Ticker:          symbol,
		Company:         row.AssetName,
		Action:          models.ParseAction(row.TransactionType),
		Value:           row.AmountFrom.Float(),
		FilingDate:      sources.ParseDate(row.FilingDate),
		TransactionDate: sources.ParseDate(row.TransactionDate),
		Source:          models.SourceFinnhubCongress,
	})
}

// Headlines returns recent company news headlines for annotation context
func (s *Source) Headlines(ctx context.Context, ticker string, limit int) ([]string, error) {
	var articles []newsArticle
	if err := s.client.GetJSON(ctx, "/company-news", s.params(ticker), &articles); err != nil {
		return nil, fmt.Errorf("failed to fetch news for %s: %w", ticker, err)
	}

	headlines := make([]string, 0, limit)
	for _, a := range articles {
		if len(headlines) >= limit {
			break
		}
		if h := strings.TrimSpace(a.Headline); h != "" {
			headlines = append(headlines, h)
		}
	}
	return headlines, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
