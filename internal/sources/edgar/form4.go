package edgar

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/deepstock/internal/models"
	"github.com/ternarybob/deepstock/internal/sources"
)

var (
	tickerPattern = regexp.MustCompile(`\[\s*([A-Z][A-Z0-9.\-]{0,6})\s*\]`)
	numberPattern = regexp.MustCompile(`[\d,]+(?:\.\d+)?`)
	codePattern   = regexp.MustCompile(`^\s*([A-Z])`)
)

// form4 is what we extract from a rendered Form 4 document
type form4 struct {
	Ticker       string
	Role         string
	Transactions []transaction
}

// transaction is one Table I (non-derivative) row
type transaction struct {
	Date   string
	Code   string
	Shares float64
	Price  float64
	AorD   string
}

// findDocumentLink returns the rendered Form 4 link from a filing index page
func findDocumentLink(indexHTML []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(indexHTML))
	if err != nil {
		return "", fmt.Errorf("failed to parse filing index: %w", err)
	}

	var rendered, fallback string
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		lower := strings.ToLower(href)
		switch {
		case strings.Contains(lower, "xslf345"):
			rendered = href
			return false
		case fallback == "" && strings.Contains(lower, "/archives/") &&
			(strings.HasSuffix(lower, ".htm") || strings.HasSuffix(lower, ".html")) &&
			!strings.Contains(lower, "-index"):
			fallback = href
		}
		return true
	})

	if rendered != "" {
		return rendered, nil
	}
	if fallback != "" {
		return fallback, nil
	}
	return "", fmt.Errorf("no Form 4 document link in filing index")
}

// parseForm4 extracts the ticker, reporting person relationship and Table I rows
func parseForm4(html []byte) (*form4, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse Form 4: %w", err)
	}

	result := &form4{}

	doc.Find("td").EachWithBreak(func(_ int, td *goquery.Selection) bool {
		text := td.Text()
		if strings.Contains(text, "Issuer Name") && strings.Contains(text, "Ticker") {
			if m := tickerPattern.FindStringSubmatch(text); m != nil {
				result.Ticker = m[1]
				return false
			}
		}
		return true
	})
	if result.Ticker == "" {
		if m := tickerPattern.FindStringSubmatch(doc.Text()); m != nil {
			result.Ticker = m[1]
		}
	}

	result.Role = parseRelationship(doc)

	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		header := table.Find("thead").Text()
		if header == "" {
			header = table.Find("tr").First().Text()
		}
		if !strings.Contains(header, "Table I") || strings.Contains(header, "Table II") {
			return
		}

		table.Find("tbody tr").Each(func(_ int, tr *goquery.Selection) {
			cells := tr.Find("td")
			if cells.Length() < 8 {
				return
			}
			cell := func(i int) string {
				return strings.TrimSpace(cells.Eq(i).Text())
			}

			code := ""
			if m := codePattern.FindStringSubmatch(cell(3)); m != nil {
				code = m[1]
			}
			tx := transaction{
				Date:   cell(1),
				Code:   code,
				Shares: firstNumber(cell(5)),
				AorD:   strings.Trim(cell(6), "() "),
				Price:  firstNumber(cell(7)),
			}
			if tx.Code == "" || tx.Shares == 0 {
				return
			}
			result.Transactions = append(result.Transactions, tx)
		})
	})

	return result, nil
}

// parseRelationship reads the "Relationship of Reporting Person(s) to Issuer" box.
// Checked boxes are cells containing "X" followed by their label; the officer
// title follows the "Other (specify below)" label.
func parseRelationship(doc *goquery.Document) string {
	var box *goquery.Selection
	doc.Find("td").Each(func(_ int, td *goquery.Selection) {
		if strings.Contains(td.Text(), "Relationship of Reporting Person") {
			box = td
		}
	})
	if box == nil {
		return ""
	}

	var roles []string
	officer := false
	box.Find("td").Each(func(_ int, td *goquery.Selection) {
		if strings.TrimSpace(td.Text()) != "X" {
			return
		}
		label := strings.TrimSpace(td.Next().Text())
		switch {
		case strings.HasPrefix(label, "Director"):
			roles = append(roles, "Director")
		case strings.HasPrefix(label, "10%"):
			roles = append(roles, "10% Owner")
		case strings.HasPrefix(label, "Officer"):
			officer = true
		case strings.HasPrefix(label, "Other"):
			roles = append(roles, "Other")
		}
	})

	if officer {
		title := "Officer"
		text := box.Text()
		if idx := strings.LastIndex(text, "(specify below)"); idx >= 0 {
			if t := strings.Join(strings.Fields(text[idx+len("(specify below)"):]), " "); t != "" {
				title = t
			}
		}
		roles = append([]string{title}, roles...)
	}

	return strings.Join(roles, ", ")
}

// records folds Table I rows into one record per action
func (f *form4) records(base filing) []models.TradeRecord {
	type bucket struct {
		shares float64
		value  float64
		date   string
	}
	buckets := make(map[models.Action]*bucket)
	order := []models.Action{}

	for _, tx := range f.Transactions {
		// Only open market purchases and sales; grants, exercises and gifts are skipped
		var action models.Action
		switch tx.Code {
		case "P":
			action = models.ActionBuy
		case "S":
			action = models.ActionSell
		default:
			continue
		}
		b, ok := buckets[action]
		if !ok {
			b = &bucket{date: tx.Date}
			buckets[action] = b
			order = append(order, action)
		}
		b.shares += tx.Shares
		b.value += tx.Shares * tx.Price
	}

	records := make([]models.TradeRecord, 0, len(order))
	for _, action := range order {
		b := buckets[action]
		price := 0.0
		if b.shares > 0 && b.value > 0 {
			price = b.value / b.shares // volume-weighted
		}
		records = append(records, models.NewTradeRecord(models.TradeRecord{
			Insider:         base.Insider,
			Role:            f.Role,
			Ticker:          f.Ticker,
			Company:         base.Company,
			Action:          action,
			Shares:          b.shares,
			Price:           price,
			FilingDate:      base.Filed,
			TransactionDate: sources.ParseDate(b.date),
			Source:          models.SourceEDGAR,
			Link:            base.Link,
		}))
	}
	return records
}

func firstNumber(s string) float64 {
	return sources.ParseNumber(numberPattern.FindString(s))
}
