package types

import "errors"

// Sentinel errors shared across the agent. Callers classify with errors.Is;
// wrapping sites add context with fmt.Errorf("...: %w", err).
var (
	// ErrNetwork covers transport failures: timeouts, resets, DNS.
	ErrNetwork = errors.New("network error")

	// ErrAuth covers rejected or missing API credentials.
	ErrAuth = errors.New("authentication failed")

	// ErrBadSymbol marks a symbol the exchange does not list.
	ErrBadSymbol = errors.New("unknown symbol")

	// ErrNotSupported marks an operation the current mode or venue cannot do.
	ErrNotSupported = errors.New("operation not supported")

	// ErrRateLimit marks an exchange rate-limit rejection (Binance -1003).
	ErrRateLimit = errors.New("rate limited")

	// ErrInsufficientData marks too few bars for an indicator or pre-filter.
	ErrInsufficientData = errors.New("insufficient market data")

	// ErrIndicatorNaN marks an indicator result that is NaN or infinite.
	ErrIndicatorNaN = errors.New("indicator produced NaN")

	// ErrBadStopDistance marks a stop distance too small to size a position.
	ErrBadStopDistance = errors.New("stop distance too small")

	// ErrInsufficientMargin marks a rejected open: notional/leverage exceeds balance.
	ErrInsufficientMargin = errors.New("insufficient margin")

	// ErrNotFound marks a missing position, order or record.
	ErrNotFound = errors.New("not found")

	// ErrQuotaExhausted marks an LLM model whose quota is spent (triggers fallback).
	ErrQuotaExhausted = errors.New("model quota exhausted")
)
