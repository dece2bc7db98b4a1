package models

// Annotation is the advisory LLM assessment attached to a scored trade.
// When Available is false the heuristic score stands alone and Error explains why.
type Annotation struct {
	Available      bool    `json:"available"`
	Score          float64 `json:"significance_score"` // 1-10
	Sentiment      string  `json:"sentiment"`          // bullish, bearish, neutral
	Headline       string  `json:"headline"`
	Rationale      string  `json:"analysis"`
	HistoricalNote string  `json:"historical_note,omitempty"`
	Provider       string  `json:"provider,omitempty"`
	Model          string  `json:"model,omitempty"`
	Error          string  `json:"error,omitempty"`
}

// Pattern is one cross-trade pattern reported by the LLM
type Pattern struct {
	Type        string   `json:"type"` // cluster_buy, cluster_sell, pre_earnings, sector_trend, unusual_size
	Tickers     []string `json:"tickers"`
	Description string   `json:"description"`
	Confidence  float64  `json:"confidence"` // 0.0-1.0
}

// PatternReport is the result of pattern detection across a scan's trades
type PatternReport struct {
	PatternsFound int       `json:"patterns_found"`
	Patterns      []Pattern `json:"patterns"`
	Summary       string    `json:"summary"`
}

// AlertKind identifies the template an alert was rendered from
type AlertKind string

const (
	AlertBreaking AlertKind = "breaking"
	AlertDigest   AlertKind = "digest"
	AlertPattern  AlertKind = "pattern"
)

// Alert is a rendered payload ready for delivery. It carries no state beyond the send.
type Alert struct {
	Kind     AlertKind `json:"kind"`
	Subject  string    `json:"subject"`
	HTML     string    `json:"html"`
	Text     string    `json:"text"`
	TradeKey string    `json:"trade_key,omitempty"` // breaking alerts only
}
