// Package fmp fetches insider trades from Financial Modeling Prep.
package fmp

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/deepstock/internal/common"
	"github.com/ternarybob/deepstock/internal/httpclient"
	"github.com/ternarybob/deepstock/internal/interfaces"
	"github.com/ternarybob/deepstock/internal/models"
	"github.com/ternarybob/deepstock/internal/sources"
)

// insiderTrade is one row of the /insider-trading response.
// "acquistionOrDisposition" is the provider's spelling.
type insiderTrade struct {
	Symbol                   string             `json:"symbol"`
	FilingDate               string             `json:"filingDate"`
	TransactionDate          string             `json:"transactionDate"`
	ReportingName            string             `json:"reportingName"`
	TypeOfOwner              string             `json:"typeOfOwner"`
	TransactionType          string             `json:"transactionType"`
	AcquisitionOrDisposition string             `json:"acquistionOrDisposition"`
	SecuritiesTransacted     sources.FlexNumber `json:"securitiesTransacted"`
	Price                    sources.FlexNumber `json:"price"`
	CompanyName              string             `json:"companyName"`
	Link                     string             `json:"link"`
}

// Source is the FMP insider trading adapter
type Source struct {
	client       *httpclient.Client
	apiKey       string
	lookbackDays int
	logger       arbor.ILogger
	now          func() time.Time
}

// New creates the FMP adapter
func New(cfg common.FMPConfig, logger arbor.ILogger) *Source {
	return &Source{
		client: httpclient.NewClient(models.SourceFMP, cfg.BaseURL,
			httpclient.WithLogger(logger),
			httpclient.WithRateLimit(cfg.RateLimit),
			httpclient.WithUserAgent(common.UserAgent()),
		),
		apiKey:       cfg.APIKey,
		lookbackDays: cfg.LookbackDays,
		logger:       logger,
		now:          time.Now,
	}
}

// Name returns the source identifier
func (s *Source) Name() string {
	return models.SourceFMP
}

// Fetch returns insider trades from the lookback window
func (s *Source) Fetch(ctx context.Context) ([]models.TradeRecord, error) {
	from, to := sources.DateRange(s.now(), s.lookbackDays)
	params := url.Values{}
	params.Set("apikey", s.apiKey)
	params.Set("page", strconv.Itoa(0))
	params.Set("transactionDateFrom", from)
	params.Set("transactionDateTo", to)

	var rows []insiderTrade
	if err := s.client.GetJSON(ctx, "/insider-trading", params, &rows); err != nil {
		return nil, interfaces.NewSourceError(s.Name(), err)
	}

	records := make([]models.TradeRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, toRecord(row))
	}

	s.logger.Info().
		Str("source", s.Name()).
		Int("records", len(records)).
		Int("lookback_days", s.lookbackDays).
		Msg("Fetched insider trades")

	return records, nil
}

func toRecord(row insiderTrade) models.TradeRecord {
	action := models.ParseAction(row.TransactionType)
	if row.TransactionType == "" {
		action = models.ParseAction(row.AcquisitionOrDisposition)
	}

	return models.NewTradeRecord(models.TradeRecord{
		Insider:         row.ReportingName,
		Role:            row.TypeOfOwner,
		Ticker:          row.Symbol,
		Company:         row.CompanyName,
		Action:          action,
		Shares:          row.SecuritiesTransacted.Float(),
		Price:           row.Price.Float(),
		FilingDate:      sources.ParseDate(row.FilingDate),
		TransactionDate: sources.ParseDate(row.TransactionDate),
		Source:          models.SourceFMP,
		Link:            row.Link,
	})
}
