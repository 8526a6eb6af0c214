package types

import (
	"context"
	"time"
)

// ExchangeAdapter is the venue surface the agent trades through.
// Implementations map venue errors onto the sentinel taxonomy.
type ExchangeAdapter interface {
	// Balance returns the USDT wallet balance.
	Balance(ctx context.Context) (float64, error)

	// Klines returns up to limit bars of the interval, oldest first.
	Klines(ctx context.Context, symbol, interval string, limit int) ([]Bar, error)

	// LastPrice returns the current price, served from the shared price
	// cache when fresh.
	LastPrice(ctx context.Context, symbol string) (float64, error)

	// AllTickers returns 24h stats for every listed symbol.
	AllTickers(ctx context.Context) ([]Ticker, error)

	// SetLeverage sets the symbol leverage before an entry order.
	SetLeverage(ctx context.Context, symbol string, leverage int) error

	// OpenMarket places a market entry order.
	OpenMarket(ctx context.Context, symbol, side string, qty float64) (OrderResult, error)

	// OpenLimit places a GTC limit entry order.
	OpenLimit(ctx context.Context, symbol, side string, qty, price float64) (OrderResult, error)

	// PlaceStopMarket places a close-position stop order at stopPrice.
	PlaceStopMarket(ctx context.Context, symbol, side string, stopPrice float64) (OrderResult, error)

	// PlaceTakeProfitMarket places a close-position take-profit order.
	PlaceTakeProfitMarket(ctx context.Context, symbol, side string, stopPrice float64) (OrderResult, error)

	// CloseMarket places a reduce-only market order for qty.
	CloseMarket(ctx context.Context, symbol, side string, qty float64) (OrderResult, error)

	// Positions returns live positions; zero-amount entries are dropped.
	// Empty symbol returns all.
	Positions(ctx context.Context, symbol string) ([]ExchangePosition, error)

	// OpenOrders returns pending orders for the symbol.
	OpenOrders(ctx context.Context, symbol string) ([]OpenOrder, error)

	// AllOpenOrders returns every pending order on the account.
	AllOpenOrders(ctx context.Context) ([]OpenOrder, error)

	// CancelOrder cancels one order.
	CancelOrder(ctx context.Context, symbol string, orderID int64) error

	// CancelAllOrders cancels every pending order for the symbol.
	CancelAllOrders(ctx context.Context, symbol string) error

	// LastTradePrice returns the price of the most recent account trade,
	// the fill-price fallback when an order response carries no average.
	LastTradePrice(ctx context.Context, symbol string) (float64, error)

	// QuantityStep returns the lot step and quantity/price precisions.
	QuantityStep(ctx context.Context, symbol string) (step float64, qtyPrec, pricePrec int, err error)
}

// LLMClient asks a language model for a decision. Ask returns the response
// text with markdown fences already stripped.
type LLMClient interface {
	Ask(ctx context.Context, prompt string) (string, error)

	// Reconfigure swaps the model chain at runtime and resets fallback
	// state to the primary model.
	Reconfigure(apiKey string, models []string)
}

// Notifier pushes trade lifecycle messages to the operator.
// Implementations never fail the calling trade path: errors are logged
// and swallowed.
type Notifier interface {
	NotifyTradeOpened(p Position, live bool)
	NotifyTradeClosed(p Position, exitPrice, pnl float64, reason string, live bool)
	NotifyPartialClose(p Position, closedQty, pnl float64, live bool)
	NotifyText(text string)
}

// NewsProvider supplies recent headlines for a symbol. Enrichment input for
// the holistic prompt; implementations are optional.
type NewsProvider interface {
	Headlines(ctx context.Context, symbol string, since time.Duration) ([]string, error)
}

// SentimentProvider supplies a market sentiment reading for a symbol.
type SentimentProvider interface {
	Sentiment(ctx context.Context, symbol string) (string, error)
}
