package models

import (
	"strings"
	"time"
)

// Source identifiers for the supported trade providers
const (
	SourceFMP             = "fmp"
	SourceFinnhub         = "finnhub"
	SourceFinnhubCongress = "finnhub_congress"
	SourceAlphaVantage    = "alphavantage"
	SourceEDGAR           = "edgar"
)

// Action is the direction of a trade
type Action string

const (
	ActionBuy   Action = "buy"
	ActionSell  Action = "sell"
	ActionOther Action = "other" // awards, exercises, gifts and anything unclassified
)

// ParseAction maps provider transaction codes and labels onto an Action.
// Form 4 codes: P = open market purchase, S = open market sale.
// A/D (acquisition/disposition) are used as a fallback when no code is present.
func ParseAction(code string) Action {
	c := strings.ToUpper(strings.TrimSpace(code))
	if c == "" {
		return ActionOther
	}

	switch {
	case c == "P" || strings.HasPrefix(c, "P-") || strings.HasPrefix(c, "PURCHASE") || c == "BUY":
		return ActionBuy
	case c == "S" || strings.HasPrefix(c, "S-") || strings.HasPrefix(c, "SALE") || c == "SELL":
		return ActionSell
	case c == "A":
		return ActionBuy
	case c == "D":
		return ActionSell
	default:
		return ActionOther
	}
}

// TradeRecord is a single trade as reported by one provider
type TradeRecord struct {
	Insider         string    `json:"insider"`
	Role            string    `json:"role"`
	Ticker          string    `json:"ticker"`
	Company         string    `json:"company,omitempty"`
	Action          Action    `json:"action"`
	Shares          float64   `json:"shares"`
	Price           float64   `json:"price"`
	Value           float64   `json:"value"`
	FilingDate      time.Time `json:"filing_date"`
	TransactionDate time.Time `json:"transaction_date"`
	Source          string    `json:"source"`
	Link            string    `json:"link,omitempty"`
}

// NewTradeRecord builds a record and derives its value.
// When both shares and price are present the value is always shares × price,
// otherwise the provider-reported value is kept.
func NewTradeRecord(r TradeRecord) TradeRecord {
	r.Insider = strings.TrimSpace(r.Insider)
	r.Role = strings.TrimSpace(r.Role)
	r.Ticker = strings.ToUpper(strings.TrimSpace(r.Ticker))
	if r.Action == "" {
		r.Action = ActionOther
	}
	if r.Shares < 0 {
		r.Shares = -r.Shares
	}
	if r.Value < 0 {
		r.Value = -r.Value
	}
	if r.HasPrice() && r.Shares > 0 {
		r.Value = r.Shares * r.Price
	}
	return r
}

// HasPrice reports whether the provider supplied an explicit per-share price
func (r TradeRecord) HasPrice() bool {
	return r.Price > 0
}

// EffectiveDate is the filing date, falling back to the transaction date
func (r TradeRecord) EffectiveDate() time.Time {
	if !r.FilingDate.IsZero() {
		return r.FilingDate
	}
	return r.TransactionDate
}

// Completeness counts populated fields. Used to pick the canonical record of a merge group.
func (r TradeRecord) Completeness() int {
	n := 0
	if r.Insider != "" {
		n++
	}
	if r.Role != "" {
		n++
	}
	if r.Ticker != "" {
		n++
	}
	if r.Company != "" {
		n++
	}
	if r.Action != ActionOther && r.Action != "" {
		n++
	}
	if r.Shares > 0 {
		n++
	}
	if r.Price > 0 {
		n++
	}
	if r.Value > 0 {
		n++
	}
	if !r.FilingDate.IsZero() {
		n++
	}
	if !r.TransactionDate.IsZero() {
		n++
	}
	if r.Link != "" {
		n++
	}
	return n
}

// CanonicalTrade is the single merged view of one (insider, ticker, filing day) key
type CanonicalTrade struct {
	Key     string      `json:"key"`
	Record  TradeRecord `json:"record"`
	Sources []string    `json:"sources"` // sorted, unique
}

// HasSource reports whether a provider contributed to this trade
func (c CanonicalTrade) HasSource(source string) bool {
	for _, s := range c.Sources {
		if s == source {
			return true
		}
	}
	return false
}

// Verdict is the filter outcome of a scored trade
type Verdict string

const (
	VerdictPass Verdict = "pass"
	VerdictFail Verdict = "fail"
)

// ScoredTrade is a canonical trade with its heuristic score
type ScoredTrade struct {
	CanonicalTrade
	Score     float64     `json:"score"` // 0-10
	RoleClass RoleClass   `json:"role_class"`
	Notable   bool        `json:"notable"`
	Verdict   Verdict     `json:"verdict"`
	Reason    string      `json:"reason,omitempty"`
	AI        *Annotation `json:"ai,omitempty"`
}

// Passed reports whether the trade passed the significance threshold
func (s ScoredTrade) Passed() bool {
	return s.Verdict == VerdictPass
}

// RoleClass groups insider titles for weighting
type RoleClass string

const (
	RoleExecutive       RoleClass = "executive"
	RoleDirector        RoleClass = "director"
	RoleTenPercentOwner RoleClass = "ten_percent_owner"
	RoleOfficer         RoleClass = "officer"
	RoleCongress        RoleClass = "congress"
	RoleOther           RoleClass = "other"
)
