// Package security validates user-supplied identifiers and keeps
// credentials out of log lines and error chains.
package security

import (
	"regexp"
	"strings"
	"unicode"

	"bist-sentinel/internal/errors"
)

// BIST codes are short uppercase tickers: FROTO, TUPRS, A1CAP, and
// index codes like XU100. Data vendors decorate them with exchange
// suffixes that must never reach the API layer.
var (
	symbolPattern = regexp.MustCompile(`^[A-Z][A-Z0-9]{1,9}$`)

	// Vendor decorations stripped by SanitizeSymbol: TwelveData's
	// exchange notation, Yahoo's country suffix, KAP's market code.
	symbolSuffixes = []string{":BIST", ".IS", ".E"}
)

// ValidateSymbol checks that symbol is a plausible BIST ticker after
// trimming and uppercasing. Index codes (XU100) pass as well as
// equities.
func ValidateSymbol(symbol string) error {
	symbol = strings.TrimSpace(strings.ToUpper(symbol))

	if symbol == "" {
		return errors.NewValidationError("symbol", symbol, "symbol cannot be empty")
	}

	if len(symbol) > 10 {
		return errors.NewValidationError("symbol", symbol, "symbol too long (max 10 characters)")
	}

	if !symbolPattern.MatchString(symbol) {
		return errors.NewValidationError("symbol", symbol, "symbol must start with a letter and contain only letters and digits")
	}

	return nil
}

// ValidateWatchlist checks every entry and rejects duplicates. Entries
// must already be bare codes; vendor-decorated symbols in a config
// file are a mistake worth surfacing rather than repairing.
func ValidateWatchlist(symbols []string) error {
	if len(symbols) == 0 {
		return errors.NewValidationError("watchlist", "", "watchlist cannot be empty")
	}

	seen := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		if err := ValidateSymbol(s); err != nil {
			return err
		}
		norm := strings.TrimSpace(strings.ToUpper(s))
		if seen[norm] {
			return errors.NewValidationError("watchlist", norm, "duplicate symbol")
		}
		seen[norm] = true
	}

	return nil
}

// SanitizeSymbol normalizes a user-typed symbol to the bare BIST code:
// uppercase, trimmed, vendor suffixes such as FROTO:BIST or FROTO.IS
// removed, everything else reduced to letters and digits.
func SanitizeSymbol(symbol string) string {
	symbol = strings.TrimSpace(strings.ToUpper(symbol))

	for _, suffix := range symbolSuffixes {
		symbol = strings.TrimSuffix(symbol, suffix)
	}

	var result strings.Builder
	for _, r := range symbol {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}

	return result.String()
}
