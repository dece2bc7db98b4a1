// Package edgar reads Form 4 filings from the SEC EDGAR current-filings feed.
// No key is needed, but the SEC requires a descriptive User-Agent.
package edgar

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/deepstock/internal/common"
	"github.com/ternarybob/deepstock/internal/httpclient"
	"github.com/ternarybob/deepstock/internal/interfaces"
	"github.com/ternarybob/deepstock/internal/models"
)

// Source is the SEC EDGAR adapter
type Source struct {
	client     *httpclient.Client
	maxFilings int
	maxDetails int
	logger     arbor.ILogger
}

// New creates the EDGAR adapter
func New(cfg common.EDGARConfig, logger arbor.ILogger) *Source {
	return &Source{
		client: httpclient.NewClient(models.SourceEDGAR, cfg.BaseURL,
			httpclient.WithLogger(logger),
			httpclient.WithRateLimit(cfg.RateLimit),
			httpclient.WithUserAgent(cfg.UserAgent),
			httpclient.WithHeader("Accept", "application/atom+xml, text/html;q=0.9"),
		),
		maxFilings: cfg.MaxFilings,
		maxDetails: cfg.MaxDetails,
		logger:     logger,
	}
}

// Name returns the source identifier
func (s *Source) Name() string {
	return models.SourceEDGAR
}

// Fetch reads the latest Form 4 filings. The first maxDetails filings are
// opened to extract ticker, role and Table I transactions; the rest are
// returned as bare filing records (no ticker or value).
func (s *Source) Fetch(ctx context.Context) ([]models.TradeRecord, error) {
	params := url.Values{}
	params.Set("action", "getcurrent")
	params.Set("type", "4")
	params.Set("dateb", "")
	params.Set("owner", "include")
	params.Set("count", strconv.Itoa(s.maxFilings))
	params.Set("start", "0")
	params.Set("output", "atom")

	body, err := s.client.Get(ctx, "/cgi-bin/browse-edgar", params)
	if err != nil {
		return nil, interfaces.NewSourceError(s.Name(), err)
	}

	filings, err := parseFeed(body)
	if err != nil {
		return nil, interfaces.NewSourceError(s.Name(), err)
	}

	records := []models.TradeRecord{}
	detailed, detailFailures := 0, 0

	for i, f := range filings {
		if i < s.maxDetails && f.Link != "" && ctx.Err() == nil {
			parsed, err := s.fetchForm4(ctx, f)
			if err != nil {
				detailFailures++
				s.logger.Debug().Err(err).Str("accession", f.Accession).Msg("Failed to parse Form 4 filing")
			} else if rows := parsed.records(f); len(rows) > 0 {
				detailed++
				records = append(records, rows...)
				continue
			}
		}

		records = append(records, models.NewTradeRecord(models.TradeRecord{
			Insider:    f.Insider,
			Company:    f.Company,
			Action:     models.ActionOther,
			FilingDate: f.Filed,
			Source:     models.SourceEDGAR,
			Link:       f.Link,
		}))
	}

	s.logger.Info().
		Str("source", s.Name()).
		Int("filings", len(filings)).
		Int("detailed", detailed).
		Int("detail_failures", detailFailures).
		Int("records", len(records)).
		Msg("Fetched Form 4 filings")

	return records, nil
}

func (s *Source) fetchForm4(ctx context.Context, f filing) (*form4, error) {
	index, err := s.client.Get(ctx, f.Link, nil)
	if err != nil {
		return nil, err
	}

	docLink, err := findDocumentLink(index)
	if err != nil {
		return nil, err
	}

	doc, err := s.client.Get(ctx, s.absolute(docLink), nil)
	if err != nil {
		return nil, err
	}

	return parseForm4(doc)
}

// absolute resolves root-relative archive links against the EDGAR base URL
func (s *Source) absolute(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if !strings.HasPrefix(href, "/") {
		href = "/" + href
	}
	return s.client.BaseURL() + href
}
