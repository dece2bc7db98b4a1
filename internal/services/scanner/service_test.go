package scanner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/deepstock/internal/interfaces"
	"github.com/ternarybob/deepstock/internal/models"
	"github.com/ternarybob/deepstock/internal/services/alerts"
	"github.com/ternarybob/deepstock/internal/services/annotator"
	"github.com/ternarybob/deepstock/internal/services/llm"
	"github.com/ternarybob/deepstock/internal/services/normalize"
	"github.com/ternarybob/deepstock/internal/services/scoring"
	"github.com/ternarybob/deepstock/internal/storage/memory"
)

var asOf = time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC)

type fakeSource struct {
	name    string
	records []models.TradeRecord
	err     error
	hang    bool
	panics  bool
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Fetch(ctx context.Context) ([]models.TradeRecord, error) {
	if f.panics {
		panic("adapter bug")
	}
	if f.hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.records, f.err
}

type recordingChannel struct {
	mu     sync.Mutex
	err    error
	alerts []*models.Alert
}

func (c *recordingChannel) Name() string { return "recorder" }

func (c *recordingChannel) Send(ctx context.Context, alert *models.Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.alerts = append(c.alerts, alert)
	return nil
}

func (c *recordingChannel) kinds() []models.AlertKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.AlertKind, 0, len(c.alerts))
	for _, a := range c.alerts {
		out = append(out, a.Kind)
	}
	return out
}

type fakeAnnotator struct {
	patterns *models.PatternReport
}

func (f *fakeAnnotator) Annotate(ctx context.Context, t models.ScoredTrade) (*models.Annotation, error) {
	return &models.Annotation{Available: true, Score: 7, Sentiment: "bullish", Headline: "Insider buy"}, nil
}

func (f *fakeAnnotator) DetectPatterns(ctx context.Context, trades []models.ScoredTrade) (*models.PatternReport, error) {
	if f.patterns == nil {
		return nil, interfaces.ErrAIUnavailable
	}
	return f.patterns, nil
}

type blockingProvider struct{}

func (blockingProvider) GenerateContent(ctx context.Context, _ *llm.ContentRequest) (*llm.ContentResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
func (blockingProvider) Type() llm.ProviderType { return llm.ProviderOpenAI }
func (blockingProvider) Model() string          { return "gpt-test" }

func lisaSu(source string, role string) models.TradeRecord {
	return models.NewTradeRecord(models.TradeRecord{
		Insider:    "Lisa Su",
		Role:       role,
		Ticker:     "AMD",
		Action:     models.ActionBuy,
		Shares:     10000,
		Price:      150,
		FilingDate: asOf.AddDate(0, 0, -1),
		Source:     source,
	})
}

func jensenHuang() models.TradeRecord {
	return models.NewTradeRecord(models.TradeRecord{
		Insider:    "Jensen Huang",
		Role:       "President and CEO",
		Ticker:     "NVDA",
		Action:     models.ActionSell,
		Shares:     5000,
		Price:      900,
		FilingDate: asOf.AddDate(0, 0, -2),
		Source:     models.SourceFMP,
	})
}

func smallBuy() models.TradeRecord {
	return models.NewTradeRecord(models.TradeRecord{
		Insider:    "Jane Doe",
		Role:       "Director",
		Ticker:     "MSFT",
		Action:     models.ActionBuy,
		Shares:     1000,
		Price:      50,
		FilingDate: asOf.AddDate(0, 0, -1),
		Source:     models.SourceFMP,
	})
}

func testConfig() Config {
	return Config{
		SourceTimeout:    200 * time.Millisecond,
		AITopN:           5,
		PatternDetection: true,
		PatternMinTrades: 3,
		Digest:           true,
		DigestMinTrades:  2,
		MaxAlerts:        5,
	}
}

func newService(sources []interfaces.TradeSource, ann interfaces.TradeAnnotator, config Config, channels ...interfaces.AlertChannel) (*Service, *memory.AlertedStorage) {
	logger := arbor.NewLogger()
	store := memory.NewAlertedStorage()

	svc := NewService(Deps{
		Sources:    sources,
		Normalizer: normalize.NewService(logger),
		Scorer: scoring.NewService(scoring.Config{
			MinTradeValue:     100_000,
			MinScore:          2,
			RecencyWindowDays: 14,
		}, logger),
		Annotator:  ann,
		Dispatcher: alerts.NewDispatcher(logger, channels...),
		Alerted:    store,
	}, config, logger)
	svc.now = func() time.Time { return asOf }

	return svc, store
}

func defaultSources() []interfaces.TradeSource {
	return []interfaces.TradeSource{
		&fakeSource{name: models.SourceFMP, records: []models.TradeRecord{lisaSu(models.SourceFMP, "CEO"), jensenHuang(), smallBuy()}},
		&fakeSource{name: models.SourceEDGAR, records: []models.TradeRecord{lisaSu(models.SourceEDGAR, "Chair, President and CEO, Director")}},
	}
}

func TestRunScan_MergesScoresAndAlerts(t *testing.T) {
	channel := &recordingChannel{}
	svc, store := newService(defaultSources(), nil, testConfig(), channel)
	ctx := context.Background()

	result, err := svc.RunScan(ctx)
	require.NoError(t, err)

	assert.NotEmpty(t, result.RunID)
	require.Len(t, result.Sources, 2)
	assert.False(t, result.Sources[0].Failed())
	assert.Equal(t, 3, result.Sources[0].Records)
	assert.Equal(t, 4, result.TradesFetched)
	assert.Equal(t, 3, result.TradesCanonical)
	assert.Equal(t, 2, result.TradesScored, "the $50k trade is filtered out")
	assert.Equal(t, 2, result.TradesPassed)
	assert.Equal(t, 0, result.TradesSuppressed)
	assert.Equal(t, 0, result.TradesAnalyzed)
	assert.Equal(t, 3, result.AlertsSent)
	assert.Equal(t, 0, result.DeliveryFailures)

	require.Len(t, result.Trades, 2)
	for _, trade := range result.Trades {
		if trade.Record.Ticker == "AMD" {
			assert.Equal(t, []string{models.SourceEDGAR, models.SourceFMP}, trade.Sources)
			assert.Equal(t, models.SourceFMP, trade.Record.Source)
		}
	}

	assert.Equal(t, []models.AlertKind{models.AlertBreaking, models.AlertBreaking, models.AlertDigest}, channel.kinds())
	assert.Contains(t, channel.alerts[0].Text, alerts.AIUnavailableMarker)

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	// second cycle sees the same trades and stays quiet
	result, err = svc.RunScan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.TradesPassed)
	assert.Equal(t, 2, result.TradesSuppressed)
	assert.Empty(t, result.Trades)
	assert.Equal(t, 0, result.AlertsSent)
	assert.Len(t, channel.alerts, 3)
}

func TestRunScan_SourceFailuresAreIsolated(t *testing.T) {
	channel := &recordingChannel{}
	sources := []interfaces.TradeSource{
		&fakeSource{name: models.SourceFinnhub, err: errors.New("503 service unavailable")},
		&fakeSource{name: models.SourceAlphaVantage, hang: true},
		&fakeSource{name: models.SourceEDGAR, panics: true},
		&fakeSource{name: models.SourceFMP, records: []models.TradeRecord{jensenHuang()}},
	}

	svc, _ := newService(sources, nil, testConfig(), channel)
	result, err := svc.RunScan(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Sources, 4)
	assert.True(t, result.Sources[0].Failed())
	assert.True(t, result.Sources[1].Failed())
	assert.Contains(t, result.Sources[1].Error, "deadline exceeded")
	assert.True(t, result.Sources[2].Failed())
	assert.False(t, result.Sources[3].Failed())

	assert.Equal(t, 1, result.TradesPassed)
	assert.Equal(t, []models.AlertKind{models.AlertBreaking}, channel.kinds(), "a single trade gets no digest")
}

func TestRunScan_AllSourcesFail(t *testing.T) {
	channel := &recordingChannel{}
	sources := []interfaces.TradeSource{
		&fakeSource{name: models.SourceFMP, err: errors.New("401 invalid key")},
		&fakeSource{name: models.SourceFinnhub, err: errors.New("timeout")},
	}

	svc, store := newService(sources, nil, testConfig(), channel)
	result, err := svc.RunScan(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrAllSourcesFailed)
	assert.ErrorIs(t, err, interfaces.ErrSourceUnavailable)

	var allErr *interfaces.AllSourcesFailedError
	require.ErrorAs(t, err, &allErr)
	assert.Len(t, allErr.Failures, 2)

	require.NotNil(t, result)
	assert.Len(t, result.Sources, 2)
	assert.Empty(t, channel.alerts)

	keys, _ := store.Keys(context.Background())
	assert.Empty(t, keys)
}

func TestRunScan_NoSources(t *testing.T) {
	svc, _ := newService(nil, nil, testConfig())
	_, err := svc.RunScan(context.Background())
	assert.ErrorIs(t, err, interfaces.ErrConfiguration)
}

func TestRunScan_AITimesOutTwice(t *testing.T) {
	channel := &recordingChannel{}
	ann := annotator.NewService(blockingProvider{}, nil, annotator.Config{
		Timeout:  20 * time.Millisecond,
		Attempts: 2,
		Retry:    &llm.RetryConfig{InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffMultiplier: 1},
	}, arbor.NewLogger())

	svc, _ := newService(defaultSources(), ann, testConfig(), channel)
	result, err := svc.RunScan(context.Background())
	require.NoError(t, err, "AI failure never fails the scan")

	assert.Equal(t, 0, result.TradesAnalyzed)
	for _, trade := range result.Trades {
		require.NotNil(t, trade.AI)
		assert.False(t, trade.AI.Available)
		assert.Greater(t, trade.Score, 0.0)
	}

	require.NotEmpty(t, channel.alerts)
	breaking := channel.alerts[0]
	assert.Equal(t, models.AlertBreaking, breaking.Kind)
	assert.Contains(t, breaking.Text, alerts.AIUnavailableMarker)
	assert.Contains(t, breaking.Text, "/10")
}

func TestRunScan_AnnotatesAndSendsPatternAlert(t *testing.T) {
	channel := &recordingChannel{}
	ann := &fakeAnnotator{patterns: &models.PatternReport{
		PatternsFound: 1,
		Patterns:      []models.Pattern{{Type: "cluster_buy", Tickers: []string{"AMD"}, Description: "d", Confidence: 0.5}},
	}}

	big := smallBuy()
	big.Shares = 10000
	big = models.NewTradeRecord(big)
	sources := append(defaultSources(), &fakeSource{name: models.SourceAlphaVantage, records: []models.TradeRecord{big}})

	config := testConfig()
	config.Digest = false
	config.AITopN = 2

	svc, _ := newService(sources, ann, config, channel)
	result, err := svc.RunScan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, result.TradesPassed)
	assert.Equal(t, 2, result.TradesAnalyzed)
	assert.Equal(t, 1, result.PatternsFound)
	assert.NotNil(t, result.Trades[0].AI)
	assert.Nil(t, result.Trades[2].AI)

	assert.Equal(t, []models.AlertKind{
		models.AlertBreaking, models.AlertBreaking, models.AlertBreaking, models.AlertPattern,
	}, channel.kinds())
	assert.NotContains(t, channel.alerts[0].Text, alerts.AIUnavailableMarker)
	assert.Contains(t, channel.alerts[2].Text, alerts.AIUnavailableMarker)
}

func TestRunScan_DeliveryFailureIsNotRecorded(t *testing.T) {
	channel := &recordingChannel{err: errors.New("smtp down")}
	svc, store := newService(defaultSources(), nil, testConfig(), channel)

	result, err := svc.RunScan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.AlertsSent)
	assert.Equal(t, 3, result.DeliveryFailures)

	keys, _ := store.Keys(context.Background())
	assert.Empty(t, keys, "undelivered trades stay eligible")
}

func TestRunScan_MaxAlertsAndNoChannels(t *testing.T) {
	config := testConfig()
	config.MaxAlerts = 1
	config.Digest = false

	channel := &recordingChannel{}
	svc, _ := newService(defaultSources(), nil, config, channel)
	result, err := svc.RunScan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.AlertsSent)

	svc, store := newService(defaultSources(), nil, testConfig())
	result, err = svc.RunScan(context.Background())
	require.NoError(t, err)
	assert.Len(t, result.Trades, 2)
	assert.Equal(t, 0, result.AlertsSent)

	keys, _ := store.Keys(context.Background())
	assert.Empty(t, keys)
}
