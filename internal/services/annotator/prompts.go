package annotator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ternarybob/deepstock/internal/common"
	"github.com/ternarybob/deepstock/internal/models"
)

const systemInstruction = "You are an expert financial analyst specialising in insider and congressional trading. " +
	"Respond with a single JSON object and nothing else."

const tradePromptTemplate = `Assess the following insider trade and give a concise, actionable view.

TRADE DETAILS:
- Insider: %s (%s)
- Company: %s
- Action: %s
- Shares: %s
- Price: $%.2f
- Total Value: $%s
- Date: %s
- Heuristic score: %.2f / 10
%s
Reply in exactly this JSON format:
{
    "significance_score": <1-10 float>,
    "sentiment": "<bullish|bearish|neutral>",
    "headline": "<one-line headline, max 100 chars>",
    "analysis": "<2-3 sentences on why this trade matters>",
    "historical_note": "<short comparison with similar past trades, or null>"
}

Be direct and specific. If the insider is notable (CEO, member of Congress, well known investor), say so.`

const patternPromptTemplate = `Review these insider trades from the past week for patterns, clusters or unusual activity.

TRADES:
%s

Look for:
1. Several insiders buying or selling the same stock (cluster trades)
2. Unusual timing, such as trades ahead of earnings or announcements
3. Members of Congress trading in the same sector
4. Abnormally large positions

Reply in this JSON format:
{
    "patterns_found": <number of patterns>,
    "patterns": [
        {
            "type": "<cluster_buy|cluster_sell|pre_earnings|sector_trend|unusual_size>",
            "tickers": ["<ticker>"],
            "description": "<1-2 sentences>",
            "confidence": <0.0-1.0>
        }
    ],
    "summary": "<brief overall insider sentiment summary>"
}`

// maxPatternTrades bounds the prompt size of pattern detection
const maxPatternTrades = 50

func buildTradePrompt(trade models.ScoredTrade, headlines []string) string {
	r := trade.Record

	context := ""
	if len(headlines) > 0 {
		var sb strings.Builder
		sb.WriteString("\nRECENT NEWS:\n")
		for _, h := range headlines {
			sb.WriteString("- ")
			sb.WriteString(h)
			sb.WriteString("\n")
		}
		context = sb.String()
	}

	date := "unknown"
	if d := r.EffectiveDate(); !d.IsZero() {
		date = d.Format("2006-01-02")
	}

	return fmt.Sprintf(tradePromptTemplate,
		orUnknown(r.Insider), orUnknown(r.Role), orUnknown(r.Ticker), actionLabel(r.Action),
		common.GroupThousands(r.Shares), r.Price, common.GroupThousands(r.Value), date, trade.Score, context)
}

type patternTrade struct {
	Insider string  `json:"insider"`
	Title   string  `json:"title"`
	Ticker  string  `json:"ticker"`
	Type    string  `json:"type"`
	Value   float64 `json:"value"`
	Date    string  `json:"date"`
	Source  string  `json:"source"`
}

func buildPatternPrompt(trades []models.ScoredTrade) (string, error) {
	if len(trades) > maxPatternTrades {
		trades = trades[:maxPatternTrades]
	}

	simplified := make([]patternTrade, 0, len(trades))
	for _, t := range trades {
		date := ""
		if d := t.Record.EffectiveDate(); !d.IsZero() {
			date = d.Format("2006-01-02")
		}
		simplified = append(simplified, patternTrade{
			Insider: t.Record.Insider,
			Title:   t.Record.Role,
			Ticker:  t.Record.Ticker,
			Type:    actionLabel(t.Record.Action),
			Value:   t.Record.Value,
			Date:    date,
			Source:  strings.Join(t.Sources, ","),
		})
	}

	data, err := json.MarshalIndent(simplified, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode trades: %w", err)
	}
	return fmt.Sprintf(patternPromptTemplate, data), nil
}

func actionLabel(a models.Action) string {
	switch a {
	case models.ActionBuy:
		return "Purchase"
	case models.ActionSell:
		return "Sale"
	default:
		return "Other"
	}
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}
