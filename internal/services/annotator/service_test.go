package annotator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/deepstock/internal/interfaces"
	"github.com/ternarybob/deepstock/internal/models"
	"github.com/ternarybob/deepstock/internal/services/llm"
)

type fakeProvider struct {
	mu       sync.Mutex
	replies  []string
	errs     []error
	block    bool
	calls    int
	prompts  []string
	requests []*llm.ContentRequest
}

func (f *fakeProvider) GenerateContent(ctx context.Context, req *llm.ContentRequest) (*llm.ContentResponse, error) {
	f.mu.Lock()
	i := f.calls
	f.calls++
	f.prompts = append(f.prompts, req.Prompt)
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	text := ""
	if i < len(f.replies) {
		text = f.replies[i]
	}
	return &llm.ContentResponse{Text: text, Provider: llm.ProviderOpenAI, Model: "gpt-test"}, nil
}

func (f *fakeProvider) Type() llm.ProviderType { return llm.ProviderOpenAI }
func (f *fakeProvider) Model() string          { return "gpt-test" }

type fakeNews struct {
	headlines []string
	err       error
}

func (f *fakeNews) Headlines(ctx context.Context, ticker string, limit int) ([]string, error) {
	return f.headlines, f.err
}

func testConfig() Config {
	return Config{
		Timeout:  50 * time.Millisecond,
		Attempts: 2,
		Retry: &llm.RetryConfig{
			InitialBackoff:    time.Millisecond,
			MaxBackoff:        5 * time.Millisecond,
			BackoffMultiplier: 1,
		},
		NewsLimit: 3,
	}
}

func sampleTrade() models.ScoredTrade {
	return models.ScoredTrade{
		CanonicalTrade: models.CanonicalTrade{
			Key: "lisa su|AMD|2024-03-05",
			Record: models.NewTradeRecord(models.TradeRecord{
				Insider:    "Lisa Su",
				Role:       "CEO",
				Ticker:     "AMD",
				Action:     models.ActionBuy,
				Shares:     10000,
				Price:      150,
				FilingDate: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
				Source:     models.SourceFMP,
			}),
			Sources: []string{models.SourceFMP},
		},
		Score:   8.5,
		Verdict: models.VerdictPass,
	}
}

func TestAnnotate_Success(t *testing.T) {
	provider := &fakeProvider{replies: []string{"```json\n" + `{
		"significance_score": 12,
		"sentiment": "Bullish",
		"headline": "AMD CEO buys $1.5M",
		"analysis": "Large open market buy.",
		"historical_note": null
	}` + "\n```"}}
	news := &fakeNews{headlines: []string{"AMD unveils new accelerator"}}

	svc := NewService(provider, news, testConfig(), arbor.NewLogger())
	annotation, err := svc.Annotate(context.Background(), sampleTrade())

	require.NoError(t, err)
	require.NotNil(t, annotation)
	assert.True(t, annotation.Available)
	assert.Equal(t, 10.0, annotation.Score, "score is clamped to 1-10")
	assert.Equal(t, "bullish", annotation.Sentiment)
	assert.Equal(t, "AMD CEO buys $1.5M", annotation.Headline)
	assert.Equal(t, "", annotation.HistoricalNote)
	assert.Equal(t, "gpt-test", annotation.Model)

	require.Len(t, provider.prompts, 1)
	assert.Contains(t, provider.prompts[0], "Lisa Su (CEO)")
	assert.Contains(t, provider.prompts[0], "$1,500,000")
	assert.Contains(t, provider.prompts[0], "AMD unveils new accelerator")
	assert.True(t, provider.requests[0].JSONOutput)
}

func TestAnnotate_RetriesOnceThenSucceeds(t *testing.T) {
	provider := &fakeProvider{
		errs:    []error{errors.New("connection reset")},
		replies: []string{"", `{"significance_score": 0, "sentiment": "meh"}`},
	}

	svc := NewService(provider, nil, testConfig(), arbor.NewLogger())
	annotation, err := svc.Annotate(context.Background(), sampleTrade())

	require.NoError(t, err)
	assert.Equal(t, 2, provider.calls)
	assert.Equal(t, 1.0, annotation.Score)
	assert.Equal(t, "neutral", annotation.Sentiment)
}

func TestAnnotate_TimesOutTwice(t *testing.T) {
	provider := &fakeProvider{block: true}

	svc := NewService(provider, nil, testConfig(), arbor.NewLogger())
	annotation, err := svc.Annotate(context.Background(), sampleTrade())

	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrAIUnavailable)
	assert.Equal(t, 2, provider.calls, "one retry, no more")
	require.NotNil(t, annotation)
	assert.False(t, annotation.Available)
	assert.Contains(t, annotation.Error, "timed out")
}

func TestAnnotate_UnparseableReply(t *testing.T) {
	provider := &fakeProvider{replies: []string{"no idea", "still no idea"}}

	svc := NewService(provider, &fakeNews{err: errors.New("news down")}, testConfig(), arbor.NewLogger())
	annotation, err := svc.Annotate(context.Background(), sampleTrade())

	assert.ErrorIs(t, err, interfaces.ErrAIUnavailable)
	assert.False(t, annotation.Available)
	assert.Equal(t, 2, provider.calls)
	assert.NotContains(t, provider.prompts[0], "RECENT NEWS")
}

func TestDetectPatterns(t *testing.T) {
	provider := &fakeProvider{replies: []string{`{
		"patterns_found": 3,
		"patterns": [
			{"type": "cluster_buy", "tickers": ["amd", " nvda"], "description": "Two chip CEOs buying", "confidence": 1.4},
			{"type": "unusual_size", "tickers": [], "description": "", "confidence": 0.2}
		],
		"summary": " Broadly bullish "
	}`}}

	trades := make([]models.ScoredTrade, 60)
	for i := range trades {
		trades[i] = sampleTrade()
	}

	svc := NewService(provider, nil, testConfig(), arbor.NewLogger())
	report, err := svc.DetectPatterns(context.Background(), trades)

	require.NoError(t, err)
	assert.Equal(t, 1, report.PatternsFound)
	require.Len(t, report.Patterns, 1)
	assert.Equal(t, []string{"AMD", "NVDA"}, report.Patterns[0].Tickers)
	assert.Equal(t, 1.0, report.Patterns[0].Confidence)
	assert.Equal(t, "Broadly bullish", report.Summary)

	assert.Equal(t, maxPatternTrades, strings.Count(provider.prompts[0], `"ticker": "AMD"`))
}

func TestDetectPatterns_Unavailable(t *testing.T) {
	provider := &fakeProvider{errs: []error{errors.New("boom"), errors.New("boom")}}

	svc := NewService(provider, nil, testConfig(), arbor.NewLogger())
	report, err := svc.DetectPatterns(context.Background(), []models.ScoredTrade{sampleTrade()})

	assert.Nil(t, report)
	assert.ErrorIs(t, err, interfaces.ErrAIUnavailable)
}
