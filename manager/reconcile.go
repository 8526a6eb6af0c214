package manager

import (
	"context"
	"fmt"
	"time"

	"tradepulse/exchange"
	"tradepulse/logger"
	"tradepulse/types"
)

const (
	reconcileAttempts = 3
	reconcileDelay    = 2 * time.Second
	reconstructTF     = "15m"
)

// Reconcile aligns the managed book with the exchange. Ghost positions
// (managed but gone on the exchange) are dropped with a CRITICAL event;
// unmanaged exchange positions are imported with SL/TP reconstructed from
// 15m ATR. Simulation mode has nothing to reconcile against.
func (m *Manager) Reconcile(ctx context.Context) error {
	snap := m.settings.Snapshot()
	if !snap.LiveTrading {
		logger.Debugf("🔄 Reconcile skipped in simulation mode")
		return nil
	}

	var live []types.ExchangePosition
	var err error
	for attempt := 1; attempt <= reconcileAttempts; attempt++ {
		if attempt > 1 {
			time.Sleep(reconcileDelay)
		}
		live, err = m.ex.Positions(ctx, "")
		if err == nil {
			break
		}
		logger.Warnf("⚠️ Reconcile fetch attempt %d failed: %v", attempt, err)
	}
	if err != nil {
		return fmt.Errorf("fetch exchange positions: %w", err)
	}

	liveBySymbol := make(map[string]types.ExchangePosition, len(live))
	for _, p := range live {
		liveBySymbol[exchange.Canon(p.Symbol)] = p
	}

	managed, err := m.store.Position().All()
	if err != nil {
		return fmt.Errorf("load managed positions: %w", err)
	}
	managedSet := make(map[string]bool, len(managed))

	for _, pos := range managed {
		managedSet[pos.Symbol] = true
		if _, ok := liveBySymbol[pos.Symbol]; ok {
			continue
		}

		// Ghost: exchange closed it behind our back (liquidation, manual
		// close, bracket fill between ticks).
		logger.Criticalf("ghost position %s removed from book", pos.Symbol)
		if err := m.store.Position().Delete(pos.Symbol); err != nil {
			logger.Errorf("❌ ghost %s delete failed: %v", pos.Symbol, err)
			continue
		}
		m.store.Event().Append(types.EventCritical, pos.Symbol,
			fmt.Sprintf("ghost position removed (entry %.4f amount %.4f)", pos.EntryPrice, pos.Amount))
		m.notifier.NotifyText(fmt.Sprintf("🚨 CRITICAL: %s borsada kapanmış, kayıttan silindi", pos.Symbol))
	}

	for symbol, ep := range liveBySymbol {
		if managedSet[symbol] {
			continue
		}
		if err := m.importPosition(ctx, symbol, ep); err != nil {
			logger.Errorf("❌ import %s failed: %v", symbol, err)
		}
	}
	return nil
}

// importPosition adopts an exchange position the agent did not open,
// reconstructing SL/TP from recent volatility.
func (m *Manager) importPosition(ctx context.Context, symbol string, ep types.ExchangePosition) error {
	snap := m.settings.Snapshot()

	side := types.SideBuy
	amount := ep.Amount
	if amount < 0 {
		side = types.SideSell
		amount = -amount
	}

	atr, err := m.market.ATR(ctx, symbol, reconstructTF)
	if err != nil {
		return fmt.Errorf("atr for reconstruction: %w", err)
	}

	slDist := atr * snap.ATRMultiplierSL
	var sl, tp float64
	if side == types.SideBuy {
		sl = ep.EntryPrice - slDist
		tp = ep.EntryPrice + slDist*snap.RiskRewardRatioTP
	} else {
		sl = ep.EntryPrice + slDist
		tp = ep.EntryPrice - slDist*snap.RiskRewardRatioTP
	}

	leverage := ep.Leverage
	if leverage <= 0 {
		leverage = snap.Leverage
	}

	pos := &types.Position{
		Symbol:          symbol,
		Side:            side,
		EntryPrice:      ep.EntryPrice,
		Amount:          amount,
		InitialAmount:   amount,
		StopLoss:        sl,
		InitialStopLoss: sl,
		TakeProfit:      tp,
		Leverage:        leverage,
		CurrentPrice:    ep.MarkPrice,
		OpenedAt:        time.Now(),
		UpdatedAt:       time.Now(),
	}
	if err := m.store.Position().Upsert(pos); err != nil {
		return fmt.Errorf("persist imported position: %w", err)
	}

	m.store.Event().Append(types.EventInfo, symbol,
		fmt.Sprintf("imported unmanaged %s position amount=%.4f entry=%.4f SL=%.4f TP=%.4f",
			side, amount, ep.EntryPrice, sl, tp))
	m.notifier.NotifyText(fmt.Sprintf("ℹ️ %s borsadaki pozisyon yönetime alındı (SL %.4f / TP %.4f)", symbol, sl, tp))
	logger.Infof("🔄 Imported unmanaged position %s %s %.4f @ %.4f", symbol, side, amount, ep.EntryPrice)
	return nil
}
