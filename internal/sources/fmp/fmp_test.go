package fmp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/deepstock/internal/common"
	"github.com/ternarybob/deepstock/internal/interfaces"
	"github.com/ternarybob/deepstock/internal/models"
)

const insiderResponse = `[
  {
    "symbol": "amd",
    "filingDate": "2024-03-05 21:03:00",
    "transactionDate": "2024-03-04",
    "reportingName": "Su Lisa T",
    "typeOfOwner": "officer: Chair, President and CEO",
    "transactionType": "P-Purchase",
    "acquistionOrDisposition": "A",
    "securitiesTransacted": 10000,
    "price": 180.5,
    "link": "https://www.sec.gov/Archives/edgar/data/2488/000000.htm"
  },
  {
    "symbol": "MSFT",
    "filingDate": "2024-03-05",
    "transactionDate": "2024-03-01",
    "reportingName": "Doe Jane",
    "typeOfOwner": "director",
    "transactionType": "",
    "acquistionOrDisposition": "D",
    "securitiesTransacted": "2,500",
    "price": "410.00"
  }
]`

func newTestSource(t *testing.T, handler http.HandlerFunc) *Source {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := common.NewDefaultConfig().Sources.FMP
	cfg.BaseURL = server.URL
	cfg.APIKey = "test-key"
	cfg.RateLimit = 100

	source := New(cfg, arbor.NewLogger())
	source.now = func() time.Time { return time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC) }
	return source
}

func TestFetch(t *testing.T) {
	source := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/insider-trading", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("apikey"))
		assert.Equal(t, "2024-02-28", r.URL.Query().Get("transactionDateFrom"))
		assert.Equal(t, "2024-03-06", r.URL.Query().Get("transactionDateTo"))
		w.Write([]byte(insiderResponse))
	})

	records, err := source.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	lisa := records[0]
	assert.Equal(t, "AMD", lisa.Ticker)
	assert.Equal(t, "Su Lisa T", lisa.Insider)
	assert.Equal(t, models.ActionBuy, lisa.Action)
	assert.Equal(t, 1_805_000.0, lisa.Value)
	assert.Equal(t, models.SourceFMP, lisa.Source)
	assert.Equal(t, time.Date(2024, 3, 5, 21, 3, 0, 0, time.UTC), lisa.FilingDate)

	jane := records[1]
	assert.Equal(t, models.ActionSell, jane.Action, "falls back to acquisition/disposition")
	assert.Equal(t, 1_025_000.0, jane.Value)
}

func TestFetch_HTTPErrorIsSourceUnavailable(t *testing.T) {
	source := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	records, err := source.Fetch(context.Background())
	assert.Nil(t, records)
	require.Error(t, err)
	assert.True(t, errors.Is(err, interfaces.ErrSourceUnavailable))

	var srcErr *interfaces.SourceError
	require.True(t, errors.As(err, &srcErr))
	assert.Equal(t, models.SourceFMP, srcErr.Source)
}

func TestFetch_MalformedJSON(t *testing.T) {
	source := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Error Message": "Limit Reach"}`))
	})

	_, err := source.Fetch(context.Background())
	assert.ErrorIs(t, err, interfaces.ErrSourceUnavailable)
}
