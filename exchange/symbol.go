package exchange

import (
	"sort"
	"strings"
)

// validTimeframes lists the kline intervals the exchange accepts.
var validTimeframes = []string{
	"1m", "3m", "5m", "15m", "30m",
	"1h", "2h", "4h", "6h", "8h", "12h",
	"1d", "3d", "1w", "1M",
}

// Canon normalizes any symbol input ("btc", "BTCUSDT", "BTC/USDT",
// "BTC/USDT:USDT") to the canonical "BASE/USDT" form the rest of the agent
// works with. Idempotent.
func Canon(input string) string {
	base := strings.ToUpper(strings.TrimSpace(input))
	if i := strings.Index(base, ":"); i >= 0 {
		base = base[:i]
	}
	base = strings.TrimSuffix(base, "/USDT")
	base = strings.TrimSuffix(base, "USDT")
	base = strings.TrimSuffix(base, "/")
	if base == "" {
		return ""
	}
	return base + "/USDT"
}

// Wire converts a symbol in any form to the exchange's "BASEUSDT" form.
func Wire(input string) string {
	c := Canon(input)
	if c == "" {
		return ""
	}
	return strings.ReplaceAll(c, "/", "")
}

// Base returns the base asset of a symbol in any form.
func Base(input string) string {
	c := Canon(input)
	return strings.TrimSuffix(c, "/USDT")
}

// ParseSymbolTimeframe splits inputs like "BTC/USDT,15m", "sol 1h" or "eth"
// into a canonical symbol and a timeframe, defaulting to 1h. Longer
// timeframe suffixes match before shorter ones so "15m" wins over "5m".
func ParseSymbolTimeframe(input string) (symbol, timeframe string) {
	s := strings.TrimSpace(input)

	tfs := append([]string(nil), validTimeframes...)
	sort.Slice(tfs, func(i, j int) bool { return len(tfs[i]) > len(tfs[j]) })

	lower := strings.ToLower(s)
	for _, tf := range tfs {
		if !strings.HasSuffix(lower, strings.ToLower(tf)) {
			continue
		}
		head := s[:len(s)-len(tf)]
		if head != "" {
			if sep := head[len(head)-1]; sep == ' ' || sep == ',' || sep == '-' || sep == '_' {
				head = head[:len(head)-1]
			}
		}
		// 1M stays uppercase, everything else is lowercase.
		out := strings.ToLower(tf)
		if tf == "1M" {
			out = "1M"
		}
		return Canon(head), out
	}
	return Canon(s), "1h"
}

// ValidTimeframe reports whether tf is an interval the exchange accepts.
func ValidTimeframe(tf string) bool {
	for _, v := range validTimeframes {
		if v == tf {
			return true
		}
	}
	return false
}
