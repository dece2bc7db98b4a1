package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/deepstock/internal/models"
)

var filed = time.Date(2024, 3, 5, 21, 3, 0, 0, time.UTC)

func TestNormalizeInsider(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Lisa Su", "lisa su"},
		{"SU LISA T", "lisa su"},
		{"Su, Lisa T.", "lisa su"},
		{"Huang Jen-Hsun", "hsun huang jen"},
		{"Musk Elon R Jr.", "elon musk"},
		{"O'Brien Deirdre", "deirdre obrien"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeInsider(tt.in), tt.in)
	}
}

func TestMergeKey(t *testing.T) {
	key, ok := MergeKey(models.TradeRecord{Insider: "Su Lisa T", Ticker: "amd", FilingDate: filed})
	require.True(t, ok)
	assert.Equal(t, "lisa su|AMD|2024-03-05", key)

	key, ok = MergeKey(models.TradeRecord{Insider: "Lisa Su", Ticker: "AMD", TransactionDate: filed.Add(-time.Hour)})
	require.True(t, ok)
	assert.Equal(t, "lisa su|AMD|2024-03-05", key, "falls back to transaction date")

	_, ok = MergeKey(models.TradeRecord{Insider: "Lisa Su"})
	assert.False(t, ok)
}

// Two providers report the same trade; the one with price and shares wins and
// its value is shares x price.
func TestNormalize_LisaSuMerge(t *testing.T) {
	withPrice := models.NewTradeRecord(models.TradeRecord{
		Insider:    "Su Lisa T",
		Role:       "officer: Chair, President and CEO",
		Ticker:     "AMD",
		Action:     models.ActionBuy,
		Shares:     10_000,
		Price:      180.5,
		FilingDate: filed,
		Source:     models.SourceEDGAR,
	})
	valueOnly := models.NewTradeRecord(models.TradeRecord{
		Insider:    "Lisa Su",
		Role:       "CEO",
		Ticker:     "AMD",
		Action:     models.ActionBuy,
		Value:      1_750_000,
		FilingDate: filed.Add(2 * time.Hour),
		Source:     models.SourceFMP,
	})

	trades := NewService(arbor.NewLogger()).Normalize([]models.TradeRecord{valueOnly, withPrice})
	require.Len(t, trades, 1)

	trade := trades[0]
	assert.Equal(t, "lisa su|AMD|2024-03-05", trade.Key)
	assert.Equal(t, models.SourceEDGAR, trade.Record.Source)
	assert.Equal(t, 1_805_000.0, trade.Record.Value)
	assert.Equal(t, []string{models.SourceEDGAR, models.SourceFMP}, trade.Sources)
}

func TestNormalize_PriceTieBreak(t *testing.T) {
	// Equal completeness: both have 6 fields populated
	a := models.TradeRecord{Insider: "Jane Doe", Ticker: "MSFT", Action: models.ActionSell, Shares: 100, Value: 41_000, FilingDate: filed, Source: models.SourceFMP}
	b := models.TradeRecord{Insider: "Jane Doe", Ticker: "MSFT", Action: models.ActionSell, Price: 410, Value: 41_000, FilingDate: filed, Source: models.SourceAlphaVantage}
	require.Equal(t, a.Completeness(), b.Completeness())

	trades := NewService(arbor.NewLogger()).Normalize([]models.TradeRecord{a, b})
	require.Len(t, trades, 1)
	assert.Equal(t, models.SourceAlphaVantage, trades[0].Record.Source)
}

func TestNormalize_ProviderPriority(t *testing.T) {
	base := models.TradeRecord{Insider: "Jane Doe", Ticker: "MSFT", Action: models.ActionSell, Shares: 100, Price: 410, FilingDate: filed}
	edgar, finnhub := base, base
	edgar.Source = models.SourceEDGAR
	finnhub.Source = models.SourceFinnhub

	svc := NewService(arbor.NewLogger())
	first := svc.Normalize([]models.TradeRecord{edgar, finnhub})
	second := svc.Normalize([]models.TradeRecord{finnhub, edgar})

	require.Len(t, first, 1)
	assert.Equal(t, models.SourceFinnhub, first[0].Record.Source)
	assert.Equal(t, first, second, "selection does not depend on input order")
}

func TestNormalize_DiscardsUnkeyedAndSorts(t *testing.T) {
	records := []models.TradeRecord{
		{Insider: "Zed", Ticker: "ZZZ", FilingDate: filed, Source: models.SourceFMP},
		{Insider: "", Ticker: "AMD", FilingDate: filed, Source: models.SourceEDGAR},
		{Insider: "Bare Filing", Ticker: "", FilingDate: filed, Source: models.SourceEDGAR},
		{Insider: "Alice Adams", Ticker: "AAA", FilingDate: filed, Source: models.SourceFMP},
		{Insider: "Alice Adams", Ticker: "AAA", FilingDate: filed.AddDate(0, 0, 1), Source: models.SourceFMP},
	}

	trades := NewService(arbor.NewLogger()).Normalize(records)
	require.Len(t, trades, 3)
	assert.Equal(t, "adams alice|AAA|2024-03-05", trades[0].Key)
	assert.Equal(t, "adams alice|AAA|2024-03-06", trades[1].Key)
	assert.Equal(t, "zed|ZZZ|2024-03-05", trades[2].Key)
}

func TestNormalize_OneCanonicalPerKey(t *testing.T) {
	var records []models.TradeRecord
	for _, src := range []string{models.SourceFMP, models.SourceFinnhub, models.SourceAlphaVantage, models.SourceEDGAR} {
		records = append(records, models.TradeRecord{Insider: "Tim Cook", Ticker: "AAPL", FilingDate: filed, Source: src, Value: 1})
	}

	trades := NewService(arbor.NewLogger()).Normalize(records)
	require.Len(t, trades, 1)
	assert.Len(t, trades[0].Sources, 4)
}

// Alpha Vantage has no filing date, so its record is keyed on the trade day
// while FMP's is keyed on the filing day. Both describe one trade.
func TestNormalize_UnfiledRecordJoinsFiledTrade(t *testing.T) {
	traded := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	fmpRecord := models.NewTradeRecord(models.TradeRecord{
		Insider:         "SU LISA T",
		Role:            "officer: Chair, President and CEO",
		Ticker:          "AMD",
		Action:          models.ActionSell,
		Shares:          10_000,
		Price:           180,
		FilingDate:      time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC),
		TransactionDate: traded,
		Source:          models.SourceFMP,
	})
	avRecord := models.NewTradeRecord(models.TradeRecord{
		Insider:         "Su, Lisa T.",
		Role:            "CEO",
		Ticker:          "AMD",
		Action:          models.ActionSell,
		Shares:          10_000,
		Price:           180,
		TransactionDate: traded,
		Source:          models.SourceAlphaVantage,
	})
	otherDay := models.NewTradeRecord(models.TradeRecord{
		Insider:         "Lisa Su",
		Ticker:          "AMD",
		Action:          models.ActionSell,
		Value:           200_000,
		TransactionDate: traded.AddDate(0, 0, -10),
		Source:          models.SourceAlphaVantage,
	})

	trades := NewService(arbor.NewLogger()).Normalize([]models.TradeRecord{avRecord, fmpRecord, otherDay})
	require.Len(t, trades, 2)

	assert.Equal(t, "lisa su|AMD|2024-02-23", trades[0].Key)
	assert.Equal(t, []string{models.SourceAlphaVantage}, trades[0].Sources)

	assert.Equal(t, "lisa su|AMD|2024-03-06", trades[1].Key)
	assert.Equal(t, models.SourceFMP, trades[1].Record.Source)
	assert.Equal(t, []string{models.SourceAlphaVantage, models.SourceFMP}, trades[1].Sources)
}
