// Package normalize merges trade records from all providers into one
// canonical trade per (insider, ticker, filing day).
package normalize

import (
	"sort"
	"strings"
	"unicode"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/deepstock/internal/models"
)

// sourcePriority breaks ties between equally complete records. Lower wins.
var sourcePriority = map[string]int{
	models.SourceFMP:             0,
	models.SourceFinnhub:         1,
	models.SourceAlphaVantage:    2,
	models.SourceEDGAR:           3,
	models.SourceFinnhubCongress: 4,
}

var nameSuffixes = map[string]bool{
	"jr": true, "sr": true, "ii": true, "iii": true, "iv": true,
}

// Service merges and deduplicates trade records
type Service struct {
	logger arbor.ILogger
}

// NewService creates a new normalizer
func NewService(logger arbor.ILogger) *Service {
	return &Service{logger: logger}
}

// Normalize groups records by merge key and selects one canonical record per
// group. Records without a filing date are folded into a filed group with the
// same insider, ticker and transaction day when one exists. Records without a
// ticker or insider are discarded. Output is sorted by key.
func (s *Service) Normalize(records []models.TradeRecord) []models.CanonicalTrade {
	groups := make(map[string][]models.TradeRecord)
	var unfiled []models.TradeRecord
	discarded := 0

	for _, r := range records {
		key, ok := MergeKey(r)
		if !ok {
			discarded++
			continue
		}
		if r.FilingDate.IsZero() && !r.TransactionDate.IsZero() {
			unfiled = append(unfiled, r)
			continue
		}
		groups[key] = append(groups[key], r)
	}

	byTransaction := transactionIndex(groups)
	for _, r := range unfiled {
		key, _ := MergeKey(r)
		if target, ok := byTransaction[transactionKey(r)]; ok {
			key = target
		}
		groups[key] = append(groups[key], r)
	}

	trades := make([]models.CanonicalTrade, 0, len(groups))
	merged := 0
	for key, group := range groups {
		if len(group) > 1 {
			merged += len(group) - 1
		}
		trades = append(trades, models.CanonicalTrade{
			Key:     key,
			Record:  selectCanonical(group),
			Sources: collectSources(group),
		})
	}

	sort.Slice(trades, func(i, j int) bool {
		return trades[i].Key < trades[j].Key
	})

	s.logger.Debug().
		Int("records", len(records)).
		Int("canonical", len(trades)).
		Int("merged", merged).
		Int("discarded", discarded).
		Msg("Normalized trade records")

	return trades
}

// MergeKey returns "insider|TICKER|YYYY-MM-DD". The day is the filing date in
// UTC, falling back to the transaction date. ok is false when the record
// cannot be keyed.
func MergeKey(r models.TradeRecord) (string, bool) {
	insider := NormalizeInsider(r.Insider)
	ticker := strings.ToUpper(strings.TrimSpace(r.Ticker))
	date := r.EffectiveDate()
	if insider == "" || ticker == "" {
		return "", false
	}

	day := "unknown"
	if !date.IsZero() {
		day = date.UTC().Format("2006-01-02")
	}
	return insider + "|" + ticker + "|" + day, true
}

// transactionKey is "insider|TICKER|YYYY-MM-DD" on the transaction day, or ""
// when the record has no transaction date
func transactionKey(r models.TradeRecord) string {
	if r.TransactionDate.IsZero() {
		return ""
	}
	insider := NormalizeInsider(r.Insider)
	ticker := strings.ToUpper(strings.TrimSpace(r.Ticker))
	return insider + "|" + ticker + "|" + r.TransactionDate.UTC().Format("2006-01-02")
}

// transactionIndex maps each transaction key seen in the filed groups to its
// group key. When several groups share a transaction day the smallest key wins.
func transactionIndex(groups map[string][]models.TradeRecord) map[string]string {
	index := make(map[string]string)
	for key, group := range groups {
		for _, r := range group {
			tk := transactionKey(r)
			if tk == "" {
				continue
			}
			if existing, ok := index[tk]; !ok || key < existing {
				index[tk] = key
			}
		}
	}
	return index
}

// NormalizeInsider canonicalises a person's name so provider spellings agree:
// lowercase, punctuation stripped, initials and generational suffixes dropped,
// remaining tokens sorted. "SU LISA T" and "Lisa Su" both become "lisa su".
func NormalizeInsider(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			return unicode.ToLower(r)
		case unicode.IsSpace(r) || r == '-' || r == ',' || r == '.':
			return ' '
		default:
			return -1
		}
	}, name)

	var tokens []string
	for _, token := range strings.Fields(cleaned) {
		if len([]rune(token)) == 1 || nameSuffixes[token] {
			continue
		}
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// selectCanonical picks the record to keep for a merge group:
// most complete, then explicit per-share price, then provider priority,
// then larger value, then source id. The winner's value is re-derived.
func selectCanonical(group []models.TradeRecord) models.TradeRecord {
	best := group[0]
	for _, candidate := range group[1:] {
		if better(candidate, best) {
			best = candidate
		}
	}
	return models.NewTradeRecord(best)
}

func better(a, b models.TradeRecord) bool {
	if ca, cb := a.Completeness(), b.Completeness(); ca != cb {
		return ca > cb
	}
	if a.HasPrice() != b.HasPrice() {
		return a.HasPrice()
	}
	if pa, pb := priority(a.Source), priority(b.Source); pa != pb {
		return pa < pb
	}
	if a.Value != b.Value {
		return a.Value > b.Value
	}
	return a.Source < b.Source
}

func priority(source string) int {
	if p, ok := sourcePriority[source]; ok {
		return p
	}
	return len(sourcePriority)
}

func collectSources(group []models.TradeRecord) []string {
	seen := make(map[string]bool)
	sources := []string{}
	for _, r := range group {
		if r.Source == "" || seen[r.Source] {
			continue
		}
		seen[r.Source] = true
		sources = append(sources, r.Source)
	}
	sort.Strings(sources)
	return sources
}
