// Package sources holds the parsing helpers shared by the provider adapters.
// Each adapter lives in its own subpackage and implements interfaces.TradeSource.
package sources

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"01/02/2006",
	"1/2/2006",
}

// ParseDate parses the date formats seen across providers. Results are UTC.
// An unparseable or empty value returns the zero time.
func ParseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// ParseNumber parses provider numerics that may carry "$", "," or whitespace.
// Unparseable and non-finite values ("NaN", "Infinity") return 0.
func ParseNumber(s string) float64 {
	clean := strings.NewReplacer(",", "", "$", "", " ", "").Replace(strings.TrimSpace(s))
	if clean == "" {
		return 0
	}
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0
	}
	return finite(v)
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// FlexNumber decodes a JSON number that some providers send as a string
type FlexNumber float64

func (n *FlexNumber) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == "" {
		*n = 0
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*n = FlexNumber(ParseNumber(str))
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*n = 0
		return nil
	}
	*n = FlexNumber(finite(v))
	return nil
}

// Float returns the value as float64
func (n FlexNumber) Float() float64 {
	return float64(n)
}

// DateRange returns the [from, to] YYYY-MM-DD strings for a lookback window ending at now
func DateRange(now time.Time, lookbackDays int) (string, string) {
	now = now.UTC()
	return now.AddDate(0, 0, -lookbackDays).Format("2006-01-02"), now.Format("2006-01-02")
}
