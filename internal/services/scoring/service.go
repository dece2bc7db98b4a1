// Package scoring filters canonical trades and assigns the heuristic
// significance score and verdict.
package scoring

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/deepstock/internal/common"
	"github.com/ternarybob/deepstock/internal/models"
	"github.com/ternarybob/deepstock/internal/services/normalize"
)

const (
	maxScore = 10.0

	magnitudeWeight = 4.0
	recencyWeight   = 2.0
	buyWeight       = 1.0
	sellWeight      = 0.25
	notableBonus    = 1.0
)

// Config holds the thresholds and weights the scorer reads
type Config struct {
	MinTradeValue     float64
	MinScore          float64
	Watchlist         []string
	RoleWeights       map[string]float64
	NotableInsiders   []string
	RecencyWindowDays int
}

// NewConfig extracts the scoring configuration
func NewConfig(cfg *common.Config) Config {
	return Config{
		MinTradeValue:     cfg.Scan.MinTradeValue,
		MinScore:          cfg.Scan.MinScore,
		Watchlist:         cfg.Scan.Watchlist,
		RoleWeights:       cfg.Scoring.RoleWeights,
		NotableInsiders:   cfg.Scoring.NotableInsiders,
		RecencyWindowDays: cfg.Scan.RecencyWindowDays,
	}
}

// Service filters, scores and ranks canonical trades.
// It holds no mutable state; identical inputs always produce identical output.
type Service struct {
	config    Config
	watchlist map[string]bool
	notable   map[string]bool
	weights   map[models.RoleClass]float64
	logger    arbor.ILogger
}

// NewService creates the scorer
func NewService(config Config, logger arbor.ILogger) *Service {
	watchlist := make(map[string]bool, len(config.Watchlist))
	for _, t := range config.Watchlist {
		if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
			watchlist[t] = true
		}
	}

	notable := make(map[string]bool, len(config.NotableInsiders))
	for _, name := range config.NotableInsiders {
		if key := normalize.NormalizeInsider(name); key != "" {
			notable[key] = true
		}
	}

	weights := make(map[models.RoleClass]float64)
	for role, w := range common.DefaultRoleWeights() {
		weights[models.RoleClass(role)] = w
	}
	for role, w := range config.RoleWeights {
		weights[models.RoleClass(role)] = w
	}

	if config.RecencyWindowDays <= 0 {
		config.RecencyWindowDays = 14
	}

	return &Service{
		config:    config,
		watchlist: watchlist,
		notable:   notable,
		weights:   weights,
		logger:    logger,
	}
}

// Filter drops trades below the minimum value and, when a watchlist is set,
// trades on other tickers unless the insider is an executive. Order is kept.
// Filter is idempotent.
func (s *Service) Filter(trades []models.CanonicalTrade) []models.CanonicalTrade {
	kept := make([]models.CanonicalTrade, 0, len(trades))
	for _, t := range trades {
		if s.keep(t) {
			kept = append(kept, t)
		}
	}
	return kept
}

func (s *Service) keep(t models.CanonicalTrade) bool {
	// NaN compares false both ways, so the gate is written as a positive test
	if !(t.Record.Value >= s.config.MinTradeValue) || math.IsInf(t.Record.Value, 0) {
		return false
	}
	if len(s.watchlist) == 0 || s.watchlist[t.Record.Ticker] {
		return true
	}
	return ClassifyRole(t.Record.Role, t.Record.Source) == models.RoleExecutive
}

// Score computes the heuristic score of a trade as of the given time:
//
//	magnitude  4 x clamp((log10(value) - 4) / 4, 0, 1)   $10k -> 0, $100M -> 4
//	role       configured weight of the role class
//	recency    2 x max(0, 1 - age / window)
//	action     buy 1, sell 0.25
//	notable    1 for listed insiders
//
// clamped to [0,10] and rounded to two decimals.
func (s *Service) Score(t models.CanonicalTrade, asOf time.Time) models.ScoredTrade {
	r := t.Record
	role := ClassifyRole(r.Role, r.Source)
	notable := s.notable[normalize.NormalizeInsider(r.Insider)]

	score := magnitude(r.Value) + s.weights[role] + s.recency(r.EffectiveDate(), asOf)
	switch r.Action {
	case models.ActionBuy:
		score += buyWeight
	case models.ActionSell:
		score += sellWeight
	}
	if notable {
		score += notableBonus
	}
	score = math.Round(clamp(score, 0, maxScore)*100) / 100

	scored := models.ScoredTrade{
		CanonicalTrade: t,
		Score:          score,
		RoleClass:      role,
		Notable:        notable,
	}
	if score >= s.config.MinScore {
		scored.Verdict = models.VerdictPass
		scored.Reason = fmt.Sprintf("score %.2f >= %.2f", score, s.config.MinScore)
	} else {
		scored.Verdict = models.VerdictFail
		scored.Reason = fmt.Sprintf("score %.2f below minimum %.2f", score, s.config.MinScore)
	}
	return scored
}

// Evaluate filters, scores and ranks trades. Both passing and failing trades
// are returned; passing ones sort first only by virtue of their score.
func (s *Service) Evaluate(trades []models.CanonicalTrade, asOf time.Time) []models.ScoredTrade {
	filtered := s.Filter(trades)

	scored := make([]models.ScoredTrade, 0, len(filtered))
	passed := 0
	for _, t := range filtered {
		st := s.Score(t, asOf)
		if st.Passed() {
			passed++
		}
		scored = append(scored, st)
	}
	Rank(scored)

	s.logger.Info().
		Int("canonical", len(trades)).
		Int("filtered", len(filtered)).
		Int("passed", passed).
		Str("min_value", fmt.Sprintf("%.0f", s.config.MinTradeValue)).
		Str("min_score", fmt.Sprintf("%.1f", s.config.MinScore)).
		Msg("Scored trades")

	return scored
}

// Rank orders trades by score desc, value desc, ticker, key
func Rank(trades []models.ScoredTrade) {
	sort.SliceStable(trades, func(i, j int) bool {
		a, b := trades[i], trades[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Record.Value != b.Record.Value {
			return a.Record.Value > b.Record.Value
		}
		if a.Record.Ticker != b.Record.Ticker {
			return a.Record.Ticker < b.Record.Ticker
		}
		return a.Key < b.Key
	})
}

// Passing returns the passing trades, preserving order
func Passing(trades []models.ScoredTrade) []models.ScoredTrade {
	out := make([]models.ScoredTrade, 0, len(trades))
	for _, t := range trades {
		if t.Passed() {
			out = append(out, t)
		}
	}
	return out
}

func magnitude(value float64) float64 {
	if value <= 0 {
		return 0
	}
	return magnitudeWeight * clamp((math.Log10(value)-4)/4, 0, 1)
}

func (s *Service) recency(date, asOf time.Time) float64 {
	if date.IsZero() {
		return 0
	}
	ageDays := asOf.Sub(date).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return recencyWeight * math.Max(0, 1-ageDays/float64(s.config.RecencyWindowDays))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
