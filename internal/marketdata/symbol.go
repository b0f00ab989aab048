package marketdata

import "strings"

// NormalizeSymbol converts exchange-style compact pairs into the
// slash form used upstream ("BTCUSD" -> "BTC/USD"). Symbols already
// carrying a slash, and anything too short to split, pass through
// unchanged after separator cleanup.
func NormalizeSymbol(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "/")
	s = strings.ReplaceAll(s, "_", "/")
	if strings.Contains(s, "/") {
		return s
	}
	if len(s) >= 6 {
		return s[:3] + "/" + s[3:]
	}
	return s
}

// CompactSymbol strips separators for venues and storage keys that
// want the bare pair ("BTC/USD" -> "BTCUSD").
func CompactSymbol(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, "/", "")
	s = strings.ReplaceAll(s, "_", "")
	return s
}
