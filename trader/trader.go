// Package trader opens and closes positions with ATR-based risk sizing.
// Every order path works in both live mode (orders hit the exchange) and
// simulation mode (fills are assumed at the current price); the managed
// book in the store is identical in both.
package trader

import (
	"context"
	"fmt"
	"math"
	"time"

	"tradepulse/exchange"
	"tradepulse/logger"
	"tradepulse/market"
	"tradepulse/settings"
	"tradepulse/store"
	"tradepulse/types"
)

const bracketSettleDelay = 500 * time.Millisecond

// PriceFeed is the live price subscription the trader keeps aligned with
// the managed book.
type PriceFeed interface {
	Refresh(symbols []string)
}

type Trader struct {
	ex       types.ExchangeAdapter
	market   *market.Data
	store    *store.Store
	settings *settings.Service
	notifier types.Notifier
	feed     PriceFeed
}

func New(ex types.ExchangeAdapter, md *market.Data, st *store.Store, svc *settings.Service, n types.Notifier) *Trader {
	return &Trader{ex: ex, market: md, store: st, settings: svc, notifier: n}
}

// WithFeed attaches the price feed to resubscribe on book changes.
func (t *Trader) WithFeed(feed PriceFeed) *Trader {
	t.feed = feed
	return t
}

// refreshFeed resubscribes the price feed to the managed book plus the
// scan whitelist. No-op without a feed.
func (t *Trader) refreshFeed() {
	if t.feed == nil {
		return
	}
	seen := make(map[string]bool)
	var symbols []string
	add := func(sym string) {
		wire := exchange.Wire(sym)
		if wire == "" || seen[wire] {
			return
		}
		seen[wire] = true
		symbols = append(symbols, wire)
	}

	positions, err := t.store.Position().All()
	if err != nil {
		logger.Warnf("⚠️ Could not load positions for the price feed: %v", err)
		return
	}
	for _, pos := range positions {
		add(pos.Symbol)
	}
	for _, base := range t.settings.List(settings.KeyScanWhitelist) {
		add(base)
	}
	t.feed.Refresh(symbols)
}

// Balance returns the trading balance: the live USDT wallet, or in
// simulation the virtual balance plus all realized simulated PnL.
func (t *Trader) Balance(ctx context.Context) (float64, error) {
	snap := t.settings.Snapshot()
	if snap.LiveTrading {
		return t.ex.Balance(ctx)
	}
	realized, err := t.store.History().TotalPnL()
	if err != nil {
		return 0, fmt.Errorf("total pnl: %w", err)
	}
	return snap.VirtualBalance + realized, nil
}

// riskPercent picks the per-trade risk percent, scaled by ATR volatility
// when dynamic risk is on.
func riskPercent(snap settings.Snapshot, atr, price float64) float64 {
	if !snap.UseDynamicRisk {
		return snap.RiskPerTradePercent
	}
	volatility := atr / price * 100
	base := snap.DynamicRiskBase
	switch {
	case volatility < snap.DynamicRiskLowVolThresh:
		return base * snap.DynamicRiskLowVolMult
	case volatility > snap.DynamicRiskHighVolThresh:
		return base * snap.DynamicRiskHighVolMult
	default:
		return base
	}
}

// roundDownToStep floors qty to the exchange lot step.
func roundDownToStep(qty, step float64) float64 {
	if step <= 0 {
		return qty
	}
	return math.Floor(qty/step) * step
}

// Open sizes and opens a position for the recommendation. atr and price
// come from the analysis snapshot so sizing matches what the model saw.
func (t *Trader) Open(ctx context.Context, symbol string, rec types.Recommendation, atr, price float64) (*types.Position, error) {
	symbol = exchange.Canon(symbol)
	snap := t.settings.Snapshot()

	if existing, err := t.store.Position().Get(symbol); err == nil && existing != nil {
		return nil, fmt.Errorf("position already open for %s: %w", symbol, types.ErrNotSupported)
	}

	if snap.LiveTrading {
		count, err := t.store.Position().Count()
		if err != nil {
			return nil, fmt.Errorf("count positions: %w", err)
		}
		if count >= snap.MaxConcurrentTrades {
			return nil, fmt.Errorf("max concurrent trades reached (%d): %w", snap.MaxConcurrentTrades, types.ErrNotSupported)
		}
	}

	side := types.SideSell
	if rec.Action == types.ActionBuy {
		side = types.SideBuy
	}

	slDistance := atr * snap.ATRMultiplierSL
	if slDistance < 1e-9 {
		return nil, fmt.Errorf("stop distance %v for %s: %w", slDistance, symbol, types.ErrBadStopDistance)
	}

	var sl, tp float64
	if side == types.SideBuy {
		sl = price - slDistance
		tp = price + slDistance*snap.RiskRewardRatioTP
	} else {
		sl = price + slDistance
		tp = price - slDistance*snap.RiskRewardRatioTP
	}

	balance, err := t.Balance(ctx)
	if err != nil {
		return nil, fmt.Errorf("balance: %w", err)
	}

	risk := riskPercent(snap, atr, price)
	riskUSD := balance * risk / 100
	amount := riskUSD / slDistance

	step, _, _, err := t.ex.QuantityStep(ctx, symbol)
	if err != nil {
		logger.Warnf("⚠️ %s lot step lookup failed, using raw amount: %v", symbol, err)
	} else {
		amount = roundDownToStep(amount, step)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("amount rounds to zero for %s: %w", symbol, types.ErrBadStopDistance)
	}

	if snap.LiveTrading {
		margin := amount * price / float64(snap.Leverage)
		if margin > balance {
			return nil, fmt.Errorf("need %.2f margin with %.2f available: %w", margin, balance, types.ErrInsufficientMargin)
		}
	}

	pos := &types.Position{
		Symbol:          symbol,
		Side:            side,
		EntryPrice:      price,
		Amount:          amount,
		InitialAmount:   amount,
		StopLoss:        sl,
		InitialStopLoss: sl,
		TakeProfit:      tp,
		Leverage:        snap.Leverage,
		CurrentPrice:    price,
		OpenedAt:        time.Now(),
		UpdatedAt:       time.Now(),
	}

	if snap.LiveTrading {
		if err := t.openLive(ctx, pos, snap, price); err != nil {
			return nil, err
		}
	} else {
		logger.Infof("📊 [SIM] %s %s %.4f @ %.4f (risk %.2f%%, SL %.4f, TP %.4f)",
			symbol, side, amount, price, risk, sl, tp)
	}

	if err := t.store.Position().Upsert(pos); err != nil {
		return nil, fmt.Errorf("persist position: %w", err)
	}
	t.store.Event().Append(types.EventOpen, symbol,
		fmt.Sprintf("%s %.4f @ %.4f SL=%.4f TP=%.4f lev=%dx", side, amount, pos.EntryPrice, sl, tp, snap.Leverage))
	t.notifier.NotifyTradeOpened(*pos, snap.LiveTrading)
	t.refreshFeed()

	logger.Infof("✅ Opened %s %s amount=%.4f entry=%.4f", symbol, side, amount, pos.EntryPrice)
	return pos, nil
}

// openLive places the entry order and its SL/TP brackets, resolving the
// actual fill price into the position.
func (t *Trader) openLive(ctx context.Context, pos *types.Position, snap settings.Snapshot, price float64) error {
	symbol := pos.Symbol

	if err := t.ex.SetLeverage(ctx, symbol, snap.Leverage); err != nil {
		return fmt.Errorf("set leverage: %w", err)
	}

	var order types.OrderResult
	var err error
	if snap.DefaultOrderType == "LIMIT" {
		order, err = t.ex.OpenLimit(ctx, symbol, pos.Side, pos.Amount, price)
	} else {
		order, err = t.ex.OpenMarket(ctx, symbol, pos.Side, pos.Amount)
	}
	if err != nil {
		return fmt.Errorf("entry order: %w", err)
	}
	pos.EntryOrderID = order.OrderID

	if fill := t.resolveFillPrice(ctx, symbol, order); fill > 0 {
		pos.EntryPrice = fill
		// Keep SL/TP anchored to the actual fill, not the quoted price.
		shift := fill - price
		pos.StopLoss += shift
		pos.InitialStopLoss = pos.StopLoss
		pos.TakeProfit += shift
	}

	// Give the exchange a moment before placing reduce-only brackets
	// against the fresh position.
	time.Sleep(bracketSettleDelay)

	bracketSide := types.SideSell
	if pos.Side == types.SideSell {
		bracketSide = types.SideBuy
	}

	if slOrder, err := t.ex.PlaceStopMarket(ctx, symbol, bracketSide, pos.StopLoss); err != nil {
		logger.Warnf("⚠️ %s stop-loss bracket failed: %v", symbol, err)
		t.notifier.NotifyText(fmt.Sprintf("⚠️ %s açıldı ama SL emri başarısız: %v", symbol, err))
	} else {
		pos.SLOrderID = slOrder.OrderID
	}

	if tpOrder, err := t.ex.PlaceTakeProfitMarket(ctx, symbol, bracketSide, pos.TakeProfit); err != nil {
		logger.Warnf("⚠️ %s take-profit bracket failed: %v", symbol, err)
		t.notifier.NotifyText(fmt.Sprintf("⚠️ %s açıldı ama TP emri başarısız: %v", symbol, err))
	} else {
		pos.TPOrderID = tpOrder.OrderID
	}
	return nil
}

// resolveFillPrice walks the fill-price fallback chain: order average,
// order price, last account trade after a settle pause, current ticker.
func (t *Trader) resolveFillPrice(ctx context.Context, symbol string, order types.OrderResult) float64 {
	if order.AvgPrice > 0 {
		return order.AvgPrice
	}
	if order.Price > 0 {
		return order.Price
	}

	time.Sleep(time.Second)
	if p, err := t.ex.LastTradePrice(ctx, symbol); err == nil && p > 0 {
		return p
	}
	if p, err := t.market.Price(ctx, symbol); err == nil && p > 0 {
		return p
	}
	logger.Warnf("⚠️ %s fill price unresolved, keeping quote", symbol)
	return 0
}

// Close closes the position fully or partially. closeAmount at or above
// the open amount, or non-positive, means a full close. Returns the
// realized pnl of the closed part.
func (t *Trader) Close(ctx context.Context, symbol, reason string, closeAmount float64) (float64, error) {
	symbol = exchange.Canon(symbol)
	snap := t.settings.Snapshot()

	pos, err := t.store.Position().Get(symbol)
	if err != nil {
		return 0, fmt.Errorf("position %s: %w", symbol, err)
	}
	if pos == nil {
		return 0, fmt.Errorf("no managed position for %s: %w", symbol, types.ErrNotFound)
	}

	full := closeAmount <= 0 || closeAmount >= pos.Amount
	if full {
		closeAmount = pos.Amount
	}

	closeSide := types.SideSell
	if pos.Side == types.SideSell {
		closeSide = types.SideBuy
	}

	var closePrice float64
	if snap.LiveTrading {
		if full {
			// Stale brackets would re-fire against nothing.
			if err := t.ex.CancelAllOrders(ctx, symbol); err != nil {
				logger.Warnf("⚠️ %s cancel-all before close failed: %v", symbol, err)
			}
		}
		order, err := t.ex.CloseMarket(ctx, symbol, closeSide, closeAmount)
		if err != nil {
			return 0, fmt.Errorf("close order: %w", err)
		}
		closePrice = t.resolveFillPrice(ctx, symbol, order)
	}
	if closePrice <= 0 {
		p, err := t.market.Price(ctx, symbol)
		if err != nil {
			return 0, fmt.Errorf("close price: %w", err)
		}
		closePrice = p
	}

	diff := closePrice - pos.EntryPrice
	if pos.Side == types.SideSell {
		diff = -diff
	}
	pnl := diff * closeAmount

	if full {
		if err := t.store.Position().Delete(symbol); err != nil {
			return pnl, fmt.Errorf("remove position: %w", err)
		}
		rec := &types.TradeRecord{
			Symbol:     symbol,
			Side:       pos.Side,
			EntryPrice: pos.EntryPrice,
			ExitPrice:  closePrice,
			Amount:     pos.InitialAmount,
			PnL:        pnl,
			Reason:     reason,
			OpenedAt:   pos.OpenedAt,
			ClosedAt:   time.Now(),
		}
		if err := t.store.History().Append(rec); err != nil {
			logger.Errorf("❌ %s history append failed: %v", symbol, err)
		}
		t.store.Event().Append(types.EventClose, symbol,
			fmt.Sprintf("%s exit=%.4f pnl=%.2f reason=%s", pos.Side, closePrice, pnl, reason))
		t.notifier.NotifyTradeClosed(*pos, closePrice, pnl, reason, snap.LiveTrading)
		t.refreshFeed()
		logger.Infof("✅ Closed %s (%s) exit=%.4f pnl=%.2f", symbol, reason, closePrice, pnl)
		return pnl, nil
	}

	pos.Amount -= closeAmount
	pos.UpdatedAt = time.Now()
	if err := t.store.Position().Upsert(pos); err != nil {
		return pnl, fmt.Errorf("persist partial close: %w", err)
	}
	// A partial close also realizes pnl into history so the simulated
	// balance reflects it.
	t.store.History().Append(&types.TradeRecord{
		Symbol:     symbol,
		Side:       pos.Side,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  closePrice,
		Amount:     closeAmount,
		PnL:        pnl,
		Reason:     reason,
		OpenedAt:   pos.OpenedAt,
		ClosedAt:   time.Now(),
	})
	logger.Infof("🎯 Partial close %s %.4f @ %.4f pnl=%.2f (remaining %.4f)",
		symbol, closeAmount, closePrice, pnl, pos.Amount)
	return pnl, nil
}

// ReplaceStop moves the stop loss of a managed position. In live mode the
// stale reduce-only stop orders are cancelled and a fresh STOP_MARKET is
// placed at the new level.
func (t *Trader) ReplaceStop(ctx context.Context, pos *types.Position, newSL float64) error {
	snap := t.settings.Snapshot()
	if snap.LiveTrading {
		orders, err := t.ex.OpenOrders(ctx, pos.Symbol)
		if err != nil {
			return fmt.Errorf("open orders: %w", err)
		}
		for _, o := range orders {
			if o.Type == "STOP_MARKET" {
				if err := t.ex.CancelOrder(ctx, pos.Symbol, o.OrderID); err != nil {
					logger.Warnf("⚠️ %s cancel stale stop %d failed: %v", pos.Symbol, o.OrderID, err)
				}
			}
		}

		bracketSide := types.SideSell
		if pos.Side == types.SideSell {
			bracketSide = types.SideBuy
		}
		order, err := t.ex.PlaceStopMarket(ctx, pos.Symbol, bracketSide, newSL)
		if err != nil {
			return fmt.Errorf("place stop: %w", err)
		}
		pos.SLOrderID = order.OrderID
	}

	pos.StopLoss = newSL
	pos.UpdatedAt = time.Now()
	if err := t.store.Position().Upsert(pos); err != nil {
		return fmt.Errorf("persist stop move: %w", err)
	}
	return nil
}

// QuantityStep exposes the lot step for callers sizing partial closes.
func (t *Trader) QuantityStep(ctx context.Context, symbol string) (float64, error) {
	step, _, _, err := t.ex.QuantityStep(ctx, symbol)
	return step, err
}
