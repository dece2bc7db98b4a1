package finnhub

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

func newTestSource(t *testing.T, watchlist []string, handler http.HandlerFunc) *Source {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := common.NewDefaultConfig().Sources.Finnhub
	cfg.BaseURL = server.URL
	cfg.APIKey = "token"
	cfg.RateLimit = 100

	source := New(cfg, watchlist, arbor.NewLogger())
	source.now = func() time.Time { return time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC) }
	return source
}

func TestFetch_InsiderAndCongress(t *testing.T) {
	source := newTestSource(t, []string{"NVDA"}, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "token", r.URL.Query().Get("token"))
		assert.Equal(t, "NVDA", r.URL.Query().Get("symbol"))

		switch r.URL.Path {
		case "/stock/insider-transactions":
			w.Write([]byte(`{"symbol":"NVDA","data":[
				{"name":"Huang Jen Hsun","share":1000000,"change":-20000,"filingDate":"2024-03-04","transactionDate":"2024-03-01","transactionCode":"S","transactionPrice":850.5}
			]}`))
		case "/stock/congressional-trading":
			w.Write([]byte(`{"symbol":"NVDA","data":[
				{"name":"Nancy Pelosi","position":"Representative","symbol":"NVDA","amountFrom":1000001,"amountTo":5000000,"filingDate":"2024-03-02","transactionDate":"2024-02-20","transactionType":"Purchase"}
			]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	records, err := source.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	insider := records[0]
	assert.Equal(t, models.SourceFinnhub, insider.Source)
	assert.Equal(t, models.ActionSell, insider.Action)
	assert.Equal(t, 20000.0, insider.Shares)
	assert.Equal(t, 17_010_000.0, insider.Value)

	congress := records[1]
	assert.Equal(t, models.SourceFinnhubCongress, congress.Source)
	assert.Equal(t, "Congress — Representative", congress.Role)
	assert.Equal(t, models.ActionBuy, congress.Action)
	assert.Equal(t, 1_000_001.0, congress.Value)
	assert.False(t, congress.HasPrice())
}

func TestFetch_PartialFailureKeepsData(t *testing.T) {
	source := newTestSource(t, []string{"NVDA"}, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/stock/congressional-trading" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte(`{"symbol":"NVDA","data":[]}`))
	})

	records, err := source.Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFetch_AllRequestsFail(t *testing.T) {
	source := newTestSource(t, []string{"NVDA", "AMD"}, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := source.Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, interfaces.ErrSourceUnavailable))
}

func TestFetch_EmptyWatchlist(t *testing.T) {
	source := newTestSource(t, nil, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected request %s", r.URL.Path)
	})

	records, err := source.Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestHeadlines(t *testing.T) {
	source := newTestSource(t, []string{"AMD"}, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/company-news", r.URL.Path)
		w.Write([]byte(`[{"headline":"AMD unveils new GPU"},{"headline":" "},{"headline":"AMD beats estimates"},{"headline":"Third"}]`))
	})

	headlines, err := source.Headlines(context.Background(), "AMD", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"AMD unveils new GPU", "AMD beats estimates"}, headlines)
}
