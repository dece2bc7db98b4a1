package common

import (
	"fmt"
	"strings"
)

// GroupThousands formats an amount rounded to whole units as 1,234,567
func GroupThousands(v float64) string {
	s := fmt.Sprintf("%.0f", v)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}

	var sb strings.Builder
	for i := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			sb.WriteByte(',')
		}
		sb.WriteByte(s[i])
	}

	if neg {
		return "-" + sb.String()
	}
	return sb.String()
}

// FormatMoney renders a dollar amount compactly: $1.2M, $350K, $950
func FormatMoney(v float64) string {
	abs := v
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= 1_000_000_000:
		return fmt.Sprintf("$%.1fB", v/1_000_000_000)
	case abs >= 1_000_000:
		return fmt.Sprintf("$%.1fM", v/1_000_000)
	case abs >= 1_000:
		return fmt.Sprintf("$%.0fK", v/1_000)
	default:
		return fmt.Sprintf("$%.0f", v)
	}
}
