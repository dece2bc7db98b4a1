package models

import "time"

// SourceReport summarises one provider's contribution to a scan
type SourceReport struct {
	Source   string        `json:"source"`
	Records  int           `json:"records"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Failed reports whether the provider failed this cycle
func (r SourceReport) Failed() bool {
	return r.Error != ""
}

// ScanResult summarises one scan cycle
type ScanResult struct {
	RunID            string         `json:"run_id"`
	StartedAt        time.Time      `json:"started_at"`
	FinishedAt       time.Time      `json:"finished_at"`
	Sources          []SourceReport `json:"sources"`
	TradesFetched    int            `json:"trades_fetched"`
	TradesCanonical  int            `json:"trades_canonical"`
	TradesScored     int            `json:"trades_scored"`
	TradesPassed     int            `json:"trades_passed"`
	TradesSuppressed int            `json:"trades_suppressed"` // already alerted in an earlier cycle
	TradesAnalyzed   int            `json:"trades_analyzed"`
	PatternsFound    int            `json:"patterns_found"`
	AlertsSent       int            `json:"alerts_sent"`
	DeliveryFailures int            `json:"delivery_failures"`
	Trades           []ScoredTrade  `json:"trades"` // passing, not previously alerted, ranked
}
