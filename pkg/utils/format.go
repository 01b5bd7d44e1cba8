// Package utils provides shared utility functions.
package utils

import (
	"fmt"
	"strings"
)

// FormatTRY formats an amount with Turkish digit grouping: dots
// between thousands groups, comma before the decimals.
func FormatTRY(amount float64) string {
	negative := amount < 0
	if negative {
		amount = -amount
	}

	str := fmt.Sprintf("%.2f", amount)
	parts := strings.Split(str, ".")

	result := "₺" + groupThousands(parts[0]) + "," + parts[1]
	if negative {
		result = "-" + result
	}
	return result
}

// FormatPercent formats a signed percentage with two decimals.
func FormatPercent(value float64) string {
	return fmt.Sprintf("%+.2f%%", value)
}

// FormatCompact abbreviates large amounts for terse contexts like
// notification titles: 1.5K, 2.3M, 1.1B.
func FormatCompact(value float64) string {
	abs := value
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= 1e9:
		return fmt.Sprintf("%.1fB", value/1e9)
	case abs >= 1e6:
		return fmt.Sprintf("%.1fM", value/1e6)
	case abs >= 1e3:
		return fmt.Sprintf("%.1fK", value/1e3)
	default:
		return fmt.Sprintf("%.2f", value)
	}
}

// Truncate shortens a string to maxLen runes with an ellipsis.
func Truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

func groupThousands(digits string) string {
	var groups []string
	for len(digits) > 3 {
		groups = append([]string{digits[len(digits)-3:]}, groups...)
		digits = digits[:len(digits)-3]
	}
	groups = append([]string{digits}, groups...)
	return strings.Join(groups, ".")
}
