package models

import "strings"

var quoteSuffixes = []string{"USDT", "USDC", "BUSD", "FDUSD", "USD", "PERP"}

// CanonicalSymbol reduces an exchange ticker to its base asset, e.g.
// "BTC/USDT:USDT", "BTC-USDT-SWAP" and "BTCUSDT" all become "BTC".
func CanonicalSymbol(ticker string) string {
	s := strings.ToUpper(strings.TrimSpace(ticker))
	if i := strings.IndexAny(s, "/:-_"); i > 0 {
		return s[:i]
	}
	for _, q := range quoteSuffixes {
		if len(s) > len(q) && strings.HasSuffix(s, q) {
			return strings.TrimSuffix(s, q)
		}
	}
	return s
}

// QuoteAsset returns the quote currency of ticker, defaulting to USDT.
func QuoteAsset(ticker string) string {
	s := strings.ToUpper(strings.TrimSpace(ticker))
	if i := strings.IndexAny(s, "/-_"); i > 0 {
		rest := s[i+1:]
		if j := strings.IndexAny(rest, ":-_"); j > 0 {
			rest = rest[:j]
		}
		if rest != "" {
			return rest
		}
	}
	for _, q := range quoteSuffixes[:5] {
		if len(s) > len(q) && strings.HasSuffix(s, q) {
			return q
		}
	}
	return "USDT"
}
