package edgar

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/deepstock/internal/common"
	"github.com/ternarybob/deepstock/internal/interfaces"
	"github.com/ternarybob/deepstock/internal/models"
)

const feedTemplate = `<?xml version="1.0" encoding="ISO-8859-1" ?>
<feed xmlns="http://www.w3.org/2005/Atom">
<title>Latest Filings - Tue, 05 Mar 2024 16:35:01 EST</title>
<entry>
<title>4 - Su Lisa T (0001299130) (Reporting)</title>
<link rel="alternate" type="text/html" href="%[1]s/Archives/edgar/data/1299130/000112760224009876/0001127602-24-009876-index.htm"/>
<summary type="html"> &lt;b&gt;Filed:&lt;/b&gt; 2024-03-05 &lt;b&gt;AccNo:&lt;/b&gt; 0001127602-24-009876 &lt;b&gt;Size:&lt;/b&gt; 5 KB</summary>
<updated>2024-03-05T16:30:12-05:00</updated>
<id>urn:tag:sec.gov,2008:accession-number=0001127602-24-009876</id>
</entry>
<entry>
<title>4 - ADVANCED MICRO DEVICES INC (0000002488) (Issuer)</title>
<link rel="alternate" type="text/html" href="%[1]s/Archives/edgar/data/2488/000112760224009876/0001127602-24-009876-index.htm"/>
<summary type="html"> &lt;b&gt;Filed:&lt;/b&gt; 2024-03-05 &lt;b&gt;AccNo:&lt;/b&gt; 0001127602-24-009876 &lt;b&gt;Size:&lt;/b&gt; 5 KB</summary>
<updated>2024-03-05T16:30:12-05:00</updated>
<id>urn:tag:sec.gov,2008:accession-number=0001127602-24-009876</id>
</entry>
<entry>
<title>4 - Doe John (0000000001) (Reporting)</title>
<link rel="alternate" type="text/html" href="%[1]s/Archives/edgar/data/1/000000000124000001/0000000001-24-000001-index.htm"/>
<summary type="html"> &lt;b&gt;Filed:&lt;/b&gt; 2024-03-04 &lt;b&gt;AccNo:&lt;/b&gt; 0000000001-24-000001</summary>
<updated>2024-03-04T10:00:00-05:00</updated>
<id>urn:tag:sec.gov,2008:accession-number=0000000001-24-000001</id>
</entry>
</feed>`

const indexPage = `<html><body><table class="tableFile">
<tr><td><a href="/Archives/edgar/data/1299130/000112760224009876/xslF345X05/wk-form4_1709674201.xml">wk-form4_1709674201.html</a></td></tr>
<tr><td><a href="/Archives/edgar/data/1299130/000112760224009876/wk-form4_1709674201.xml">wk-form4_1709674201.xml</a></td></tr>
</table></body></html>`

func newTestServer(t *testing.T, form4 []byte) *httptest.Server {
	t.Helper()
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "deepstock-test admin@example.com", r.Header.Get("User-Agent"))

		switch r.URL.Path {
		case "/cgi-bin/browse-edgar":
			assert.Equal(t, "getcurrent", r.URL.Query().Get("action"))
			assert.Equal(t, "atom", r.URL.Query().Get("output"))
			fmt.Fprintf(w, feedTemplate, server.URL)
		case "/Archives/edgar/data/1299130/000112760224009876/0001127602-24-009876-index.htm":
			w.Write([]byte(indexPage))
		case "/Archives/edgar/data/1299130/000112760224009876/xslF345X05/wk-form4_1709674201.xml":
			w.Write(form4)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestSource(serverURL string, maxDetails int) *Source {
	cfg := common.NewDefaultConfig().Sources.EDGAR
	cfg.BaseURL = serverURL
	cfg.UserAgent = "deepstock-test admin@example.com"
	cfg.RateLimit = 100
	cfg.MaxDetails = maxDetails
	return New(cfg, arbor.NewLogger())
}

func TestFetch(t *testing.T) {
	form4, err := os.ReadFile("testdata/form4.html")
	require.NoError(t, err)
	server := newTestServer(t, form4)

	records, err := newTestSource(server.URL, 10).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	lisa := records[0]
	assert.Equal(t, "Su Lisa T", lisa.Insider)
	assert.Equal(t, "ADVANCED MICRO DEVICES INC", lisa.Company)
	assert.Equal(t, "AMD", lisa.Ticker)
	assert.Equal(t, "Chair, President and CEO, Director", lisa.Role)
	assert.Equal(t, models.ActionBuy, lisa.Action)
	assert.Equal(t, 10_000.0, lisa.Shares)
	assert.InDelta(t, 6000*180.0+4000*181.25, lisa.Value, 0.01)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), lisa.FilingDate)
	assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), lisa.TransactionDate)
	assert.Equal(t, models.SourceEDGAR, lisa.Source)

	// Second filing's index 404s, so it degrades to a bare filing record
	john := records[1]
	assert.Equal(t, "Doe John", john.Insider)
	assert.Empty(t, john.Ticker)
	assert.Zero(t, john.Value)
}

func TestFetch_NoDetails(t *testing.T) {
	server := newTestServer(t, nil)

	records, err := newTestSource(server.URL, 0).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, r := range records {
		assert.Empty(t, r.Ticker)
	}
}

func TestFetch_FeedFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	_, err := newTestSource(server.URL, 0).Fetch(context.Background())
	assert.ErrorIs(t, err, interfaces.ErrSourceUnavailable)
}

func TestParseFeed_PairsByAccession(t *testing.T) {
	filings, err := parseFeed([]byte(fmt.Sprintf(feedTemplate, "https://www.sec.gov")))
	require.NoError(t, err)
	require.Len(t, filings, 2)
	assert.Equal(t, "0001127602-24-009876", filings[0].Accession)
	assert.Equal(t, "Su Lisa T", filings[0].Insider)
	assert.Equal(t, "ADVANCED MICRO DEVICES INC", filings[0].Company)
}

func TestFindDocumentLink(t *testing.T) {
	link, err := findDocumentLink([]byte(indexPage))
	require.NoError(t, err)
	assert.Contains(t, link, "xslF345X05")

	_, err = findDocumentLink([]byte(`<html><body>nothing</body></html>`))
	assert.Error(t, err)
}

func TestCharsetReader_Latin1(t *testing.T) {
	feed := []byte("<?xml version=\"1.0\" encoding=\"ISO-8859-1\" ?><feed><entry><title>4 - Mu\xf1oz Ana (0000000002) (Reporting)</title><id>0000000002-24-000002</id></entry></feed>")
	filings, err := parseFeed(feed)
	require.NoError(t, err)
	require.Len(t, filings, 1)
	assert.Equal(t, "Muñoz Ana", filings[0].Insider)
}
