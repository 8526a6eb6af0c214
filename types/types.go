package types

import (
	"math"
	"time"
)

// Position sides. Stored lowercase, mirrored in order placement.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Trade event types, append-only audit trail.
const (
	EventOpen         = "OPEN"
	EventClose        = "CLOSE"
	EventPartialClose = "PARTIAL_CLOSE"
	EventSLUpdate     = "SL_UPDATE"
	EventInfo         = "INFO"
	EventCritical     = "CRITICAL"
	EventScan         = "SCAN"
)

// Bar is a single kline. Times are epoch milliseconds as the exchange
// reports them.
type Bar struct {
	OpenTime  int64   `json:"open_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	CloseTime int64   `json:"close_time"`
}

// CleanBars drops bars with zero or non-finite OHLC so indicators never see
// placeholder rows the exchange pads thin histories with.
func CleanBars(bars []Bar) []Bar {
	out := make([]Bar, 0, len(bars))
	for _, b := range bars {
		if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
			continue
		}
		if !finite(b.Open) || !finite(b.High) || !finite(b.Low) || !finite(b.Close) || !finite(b.Volume) {
			continue
		}
		out = append(out, b)
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Ticker is a 24h rolling price statistic for one symbol.
type Ticker struct {
	Symbol             string  `json:"symbol"`
	LastPrice          float64 `json:"last_price"`
	PriceChangePercent float64 `json:"price_change_percent"`
	QuoteVolume        float64 `json:"quote_volume"`
}

// OrderResult is the normalized response of a placed order.
type OrderResult struct {
	OrderID       int64   `json:"order_id"`
	ClientOrderID string  `json:"client_order_id"`
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"`
	Type          string  `json:"type"`
	Status        string  `json:"status"`
	Price         float64 `json:"price"`
	AvgPrice      float64 `json:"avg_price"`
	OrigQty       float64 `json:"orig_qty"`
	ExecutedQty   float64 `json:"executed_qty"`
	UpdateTime    int64   `json:"update_time"`
}

// ExchangePosition is a live position as the exchange reports it.
// Amount keeps the exchange sign: positive long, negative short.
type ExchangePosition struct {
	Symbol           string  `json:"symbol"`
	Amount           float64 `json:"amount"`
	EntryPrice       float64 `json:"entry_price"`
	MarkPrice        float64 `json:"mark_price"`
	UnrealizedPnL    float64 `json:"unrealized_pnl"`
	LiquidationPrice float64 `json:"liquidation_price"`
	Leverage         int     `json:"leverage"`
}

// OpenOrder is a pending order on the exchange.
type OpenOrder struct {
	OrderID    int64   `json:"order_id"`
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Type       string  `json:"type"` // LIMIT/STOP_MARKET/TAKE_PROFIT_MARKET
	ReduceOnly bool    `json:"reduce_only"`
	Price      float64 `json:"price"`
	StopPrice  float64 `json:"stop_price"`
	OrigQty    float64 `json:"orig_qty"`
}

// Position is one managed book entry. Amount shrinks on partial closes;
// InitialAmount and InitialStopLoss keep the values at open time for PnL
// and risk-distance math.
type Position struct {
	ID              int64   `json:"id"`
	Symbol          string  `json:"symbol"`
	Side            string  `json:"side"` // buy/sell
	EntryPrice      float64 `json:"entry_price"`
	Amount          float64 `json:"amount"`
	InitialAmount   float64 `json:"initial_amount"`
	StopLoss        float64 `json:"stop_loss"`
	InitialStopLoss float64 `json:"initial_stop_loss"`
	TakeProfit      float64 `json:"take_profit"`
	Leverage        int     `json:"leverage"`

	PnL          float64 `json:"pnl"`
	PnLPercent   float64 `json:"pnl_percent"`
	CurrentPrice float64 `json:"current_price"`

	TrailingActive bool `json:"trailing_active"`
	PartialTPDone  bool `json:"partial_tp_done"`

	BailoutArmed          bool    `json:"bailout_armed"`
	BailoutExtremum       float64 `json:"bailout_extremum"`
	BailoutRecoveryTarget float64 `json:"bailout_recovery_target"`
	BailoutTriggered      bool    `json:"bailout_triggered"`

	EntryOrderID int64 `json:"entry_order_id"`
	SLOrderID    int64 `json:"sl_order_id"`
	TPOrderID    int64 `json:"tp_order_id"`

	OpenedAt  time.Time `json:"opened_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsBuy reports whether the position is long.
func (p *Position) IsBuy() bool { return p.Side == SideBuy }

// Margin returns the capital locked by the position at its entry price.
func (p *Position) Margin() float64 {
	if p.Leverage <= 0 {
		return p.EntryPrice * p.Amount
	}
	return p.EntryPrice * p.Amount / float64(p.Leverage)
}

// TradeRecord is one closed trade in the history table.
type TradeRecord struct {
	ID         int64     `json:"id"`
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	Amount     float64   `json:"amount"`
	PnL        float64   `json:"pnl"`
	Reason     string    `json:"reason"`
	OpenedAt   time.Time `json:"opened_at"`
	ClosedAt   time.Time `json:"closed_at"`
}

// TradeEvent is one audit-trail row.
type TradeEvent struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Symbol    string    `json:"symbol"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}

// Candidate is one interactive-scan result row.
type Candidate struct {
	ID          int64     `json:"id"`
	Symbol      string    `json:"symbol"`
	Price       float64   `json:"price"`
	RSI         float64   `json:"rsi"`
	ADX         float64   `json:"adx"`
	ATRPercent  float64   `json:"atr_percent"`
	VolumeRatio float64   `json:"volume_ratio"`
	Sources     []string  `json:"sources"`
	CreatedAt   time.Time `json:"created_at"`
}

// ScanSummary is the outcome of one proactive scan cycle.
type ScanSummary struct {
	Scanned       int      `json:"scanned"`
	Prefiltered   int      `json:"prefiltered"`
	Analyzed      int      `json:"analyzed"`
	Opportunities int      `json:"opportunities"`
	AutoTrades    int      `json:"auto_trades"`
	Errors        int      `json:"errors"`
	Details       []string `json:"details"`
}
