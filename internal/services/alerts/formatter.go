package alerts

import (
	"fmt"
	"html"
	"math"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/deepstock/internal/common"
	"github.com/ternarybob/deepstock/internal/models"
)

// AIUnavailableMarker is shown on every alert whose trade has no usable annotation
const AIUnavailableMarker = "AI analysis unavailable"

// DigestTopTrades is how many trades a digest lists
const DigestTopTrades = 10

const signature = "— deepstock-bot 🤖"

// Formatter renders scored trades into channel-neutral alerts. The HTML uses only
// the tags Telegram accepts (b, i, a) with newlines for layout.
type Formatter struct {
	now func() time.Time
}

// NewFormatter creates a formatter using the wall clock for digest dates
func NewFormatter() *Formatter {
	return &Formatter{now: time.Now}
}

// Breaking renders the alert for a single trade
func (f *Formatter) Breaking(trade models.ScoredTrade) *models.Alert {
	r := trade.Record

	lines := []string{
		"🚨 <b>DEEPSTOCK ALERT: Insider Trade Detected</b>",
		"",
		"📋 <b>Trade Details</b>",
		fmt.Sprintf("  Insider: <b>%s</b>%s", esc(orDefault(r.Insider, "Unknown")), roleSuffix(r.Role)),
		fmt.Sprintf("  Company: <b>%s</b>%s", esc(orDefault(r.Ticker, "???")), companySuffix(r.Company)),
		fmt.Sprintf("  Action:  %s%s", actionBadge(r.Action), sharesClause(r)),
		fmt.Sprintf("  Value:   <b>$%s</b>", common.GroupThousands(r.Value)),
		fmt.Sprintf("  Date:    %s", formatDate(r.EffectiveDate())),
		fmt.Sprintf("  Score:   %s %.1f/10", scoreBar(trade.Score, 10), trade.Score),
		fmt.Sprintf("  Sources: %s", esc(strings.Join(trade.Sources, ", "))),
	}
	if r.Link != "" {
		lines = append(lines, fmt.Sprintf("  <a href=\"%s\">View filing</a>", esc(r.Link)))
	}

	lines = append(lines, "")
	lines = append(lines, annotationLines(trade.AI)...)
	lines = append(lines, "", signature)

	return f.build(models.AlertBreaking,
		fmt.Sprintf("DeepStock: %s %s %s (%s)", orDefault(r.Insider, "Insider"), strings.ToUpper(string(r.Action)), r.Ticker, common.FormatMoney(r.Value)),
		lines, trade.Key)
}

// Digest renders the summary of a scan's passing trades, optionally with patterns
func (f *Formatter) Digest(trades []models.ScoredTrade, report *models.PatternReport) *models.Alert {
	today := f.now().UTC().Format("2006-01-02")

	lines := []string{
		fmt.Sprintf("📊 <b>DEEPSTOCK DIGEST: %s</b>", today),
		fmt.Sprintf("Found <b>%d</b> notable insider trades.", len(trades)),
		"",
	}

	if report != nil && len(report.Patterns) > 0 {
		lines = append(lines, "🔍 <b>Patterns Detected:</b>")
		for _, p := range report.Patterns {
			lines = append(lines, fmt.Sprintf("  • [%s] %s: %s",
				esc(p.Type), esc(strings.Join(p.Tickers, ", ")), esc(p.Description)))
		}
		lines = append(lines, "")
	}

	lines = append(lines, "<b>Top Trades:</b>")
	for i, t := range trades {
		if i >= DigestTopTrades {
			break
		}
		lines = append(lines, fmt.Sprintf("  %d. %s <b>%s</b> · %s · $%s · Score: %.1f/10",
			i+1, actionEmoji(t.Record.Action), esc(t.Record.Ticker), esc(t.Record.Insider),
			common.GroupThousands(t.Record.Value), t.Score))
	}

	if report != nil && report.Summary != "" {
		lines = append(lines, "", fmt.Sprintf("📈 <b>Market Sentiment:</b> %s", esc(report.Summary)))
	}
	lines = append(lines, "", signature)

	return f.build(models.AlertDigest, fmt.Sprintf("DeepStock digest %s: %d trades", today, len(trades)), lines, "")
}

// Pattern renders the cross-trade pattern report
func (f *Formatter) Pattern(report *models.PatternReport) *models.Alert {
	lines := []string{
		"🔍 <b>DEEPSTOCK: Pattern Detection Alert</b>",
		fmt.Sprintf("Detected <b>%d</b> notable patterns.", report.PatternsFound),
		"",
	}

	for _, p := range report.Patterns {
		lines = append(lines,
			fmt.Sprintf("<b>%s</b> · %s", esc(strings.ToUpper(orDefault(p.Type, "unknown"))), esc(strings.Join(p.Tickers, ", "))),
			fmt.Sprintf("  Confidence: %s %.0f%%", scoreBar(p.Confidence*10, 10), p.Confidence*100),
			fmt.Sprintf("  %s", esc(p.Description)),
			"",
		)
	}

	if report.Summary != "" {
		lines = append(lines, fmt.Sprintf("📈 %s", esc(report.Summary)))
	}
	lines = append(lines, "", signature)

	return f.build(models.AlertPattern, fmt.Sprintf("DeepStock: %d insider trading patterns", report.PatternsFound), lines, "")
}

func (f *Formatter) build(kind models.AlertKind, subject string, lines []string, key string) *models.Alert {
	body := strings.Join(lines, "\n")
	return &models.Alert{
		Kind:     kind,
		Subject:  subject,
		HTML:     body,
		Text:     PlainText(body),
		TradeKey: key,
	}
}

func annotationLines(a *models.Annotation) []string {
	if a == nil || !a.Available {
		return []string{"🧠 <i>" + AIUnavailableMarker + "</i>"}
	}

	lines := []string{
		"🧠 <b>AI Analysis</b>",
		fmt.Sprintf("  Significance: %.1f/10 · %s", a.Score, strings.ToUpper(a.Sentiment)),
	}
	if a.Headline != "" {
		lines = append(lines, "  💬 "+esc(a.Headline))
	}
	if a.Rationale != "" {
		lines = append(lines, "  "+esc(a.Rationale))
	}
	if a.HistoricalNote != "" {
		lines = append(lines, "  📊 "+esc(a.HistoricalNote))
	}
	return lines
}

// PlainText strips markup from rendered alert HTML, keeping line layout and
// decoding entities.
func PlainText(markup string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return markup
	}
	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok && href != "" {
			s.SetText(fmt.Sprintf("%s: %s", s.Text(), href))
		}
	})
	return strings.TrimSpace(doc.Text())
}

func actionBadge(a models.Action) string {
	switch a {
	case models.ActionBuy:
		return "🟢 BUY"
	case models.ActionSell:
		return "🔴 SELL"
	default:
		return "⚪ OTHER"
	}
}

func actionEmoji(a models.Action) string {
	switch a {
	case models.ActionBuy:
		return "🟢"
	case models.ActionSell:
		return "🔴"
	default:
		return "⚪"
	}
}

func scoreBar(v float64, limit int) string {
	n := int(math.Floor(v))
	if n < 0 {
		n = 0
	}
	if n > limit {
		n = limit
	}
	return strings.Repeat("█", n)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "Unknown"
	}
	return t.UTC().Format("2006-01-02")
}

func companySuffix(company string) string {
	if company == "" {
		return ""
	}
	return " " + esc(company)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func esc(s string) string {
	return html.EscapeString(s)
}

func roleSuffix(role string) string {
	if strings.TrimSpace(role) == "" {
		return ""
	}
	return " (" + esc(role) + ")"
}

// sharesClause is empty for value-only records such as congressional disclosures
func sharesClause(r models.TradeRecord) string {
	switch {
	case r.Shares > 0 && r.Price > 0:
		return fmt.Sprintf(" · %s shares @ $%.2f", common.GroupThousands(r.Shares), r.Price)
	case r.Shares > 0:
		return fmt.Sprintf(" · %s shares", common.GroupThousands(r.Shares))
	default:
		return ""
	}
}
