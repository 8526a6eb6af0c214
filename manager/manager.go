// Package manager owns the lifecycle of open positions: reconciling the
// managed book against the exchange, running the per-tick stop/bailout/
// partial/trailing state machine, and sweeping orphaned orders.
package manager

import (
	"context"
	"fmt"
	"math"

	"tradepulse/llm"
	"tradepulse/logger"
	"tradepulse/market"
	"tradepulse/settings"
	"tradepulse/store"
	"tradepulse/trader"
	"tradepulse/types"
)

type Manager struct {
	store    *store.Store
	settings *settings.Service
	ex       types.ExchangeAdapter
	trader   *trader.Trader
	llm      types.LLMClient
	notifier types.Notifier
	market   *market.Data
}

func New(st *store.Store, svc *settings.Service, ex types.ExchangeAdapter,
	tr *trader.Trader, client types.LLMClient, n types.Notifier, md *market.Data) *Manager {
	return &Manager{
		store: st, settings: svc, ex: ex,
		trader: tr, llm: client, notifier: n, market: md,
	}
}

// Tick runs the per-position state machine over the whole managed book.
// One position failing never blocks the rest.
func (m *Manager) Tick(ctx context.Context) {
	positions, err := m.store.Position().All()
	if err != nil {
		logger.Errorf("❌ Tick: load positions: %v", err)
		return
	}
	if len(positions) == 0 {
		return
	}

	snap := m.settings.Snapshot()
	for _, pos := range positions {
		if err := m.tickOne(ctx, pos, snap); err != nil {
			logger.Errorf("❌ Tick %s: %v", pos.Symbol, err)
		}
	}
}

// tickOne refreshes one position and walks it through hard SL/TP, bailout,
// partial take-profit and trailing, in that order. A close at any step
// stops further processing for this tick.
func (m *Manager) tickOne(ctx context.Context, pos *types.Position, snap settings.Snapshot) error {
	price, err := m.market.Price(ctx, pos.Symbol)
	if err != nil {
		return fmt.Errorf("price: %w", err)
	}
	m.refresh(pos, price)

	closed, err := m.checkHardStops(ctx, pos, price)
	if err != nil || closed {
		return err
	}

	if snap.UseBailoutExit {
		closed, err = m.checkBailout(ctx, pos, snap, price)
		if err != nil || closed {
			return err
		}
	}

	if snap.UsePartialTP && !pos.PartialTPDone {
		if err := m.checkPartialTP(ctx, pos, snap, price); err != nil {
			return err
		}
	}

	if snap.UseTrailingStop {
		if err := m.checkTrailing(ctx, pos, snap, price); err != nil {
			return err
		}
	}
	return nil
}

// refresh recomputes pnl from the live price and persists the position.
func (m *Manager) refresh(pos *types.Position, price float64) {
	diff := price - pos.EntryPrice
	if pos.Side == types.SideSell {
		diff = -diff
	}
	pos.CurrentPrice = price
	pos.PnL = diff * pos.Amount

	margin := pos.Margin()
	if margin > 0 {
		pos.PnLPercent = pos.PnL / margin * 100
	}

	if err := m.store.Position().Upsert(pos); err != nil {
		logger.Warnf("⚠️ %s refresh persist failed: %v", pos.Symbol, err)
	}
}

// checkHardStops enforces the managed SL/TP levels even when the exchange
// brackets have not fired (or in simulation, where there are none).
func (m *Manager) checkHardStops(ctx context.Context, pos *types.Position, price float64) (bool, error) {
	var reason string
	if pos.IsBuy() {
		switch {
		case price <= pos.StopLoss:
			reason = "SL"
		case price >= pos.TakeProfit:
			reason = "TP"
		}
	} else {
		switch {
		case price >= pos.StopLoss:
			reason = "SL"
		case price <= pos.TakeProfit:
			reason = "TP"
		}
	}
	if reason == "" {
		return false, nil
	}

	logger.Infof("📊 %s %s hit at %.4f (SL %.4f / TP %.4f)", pos.Symbol, reason, price, pos.StopLoss, pos.TakeProfit)
	_, err := m.trader.Close(ctx, pos.Symbol, reason, 0)
	return true, err
}

// checkBailout arms on a deep loss, follows the worst price, and exits on
// the recovery bounce, optionally confirmed by the model.
func (m *Manager) checkBailout(ctx context.Context, pos *types.Position, snap settings.Snapshot, price float64) (bool, error) {
	if pos.PnLPercent > 0 && pos.BailoutArmed {
		pos.BailoutArmed = false
		pos.BailoutExtremum = 0
		pos.BailoutRecoveryTarget = 0
		pos.BailoutTriggered = false
		logger.Infof("🔄 %s bailout disarmed, back in profit", pos.Symbol)
		return false, m.store.Position().Upsert(pos)
	}

	if !pos.BailoutArmed {
		if pos.PnLPercent < snap.BailoutArmLossPercent {
			pos.BailoutArmed = true
			pos.BailoutExtremum = price
			pos.BailoutRecoveryTarget = recoveryTarget(pos, price, snap.BailoutRecoveryPercent)
			logger.Warnf("⚠️ %s bailout armed at %.2f%% (extremum %.4f, target %.4f)",
				pos.Symbol, pos.PnLPercent, price, pos.BailoutRecoveryTarget)
			return false, m.store.Position().Upsert(pos)
		}
		return false, nil
	}

	// Armed: track a worsening extremum.
	worse := pos.IsBuy() && price < pos.BailoutExtremum || !pos.IsBuy() && price > pos.BailoutExtremum
	if worse {
		pos.BailoutExtremum = price
		pos.BailoutRecoveryTarget = recoveryTarget(pos, price, snap.BailoutRecoveryPercent)
		return false, m.store.Position().Upsert(pos)
	}

	reached := pos.IsBuy() && price >= pos.BailoutRecoveryTarget || !pos.IsBuy() && price <= pos.BailoutRecoveryTarget
	if !reached {
		return false, nil
	}

	if !pos.BailoutTriggered {
		pos.BailoutTriggered = true
		if err := m.store.Position().Upsert(pos); err != nil {
			return false, err
		}
	}

	if !snap.UseAIBailoutConfirmation {
		logger.Infof("🛑 %s bailout exit at %.4f", pos.Symbol, price)
		_, err := m.trader.Close(ctx, pos.Symbol, "BAILOUT_EXIT", 0)
		return true, err
	}

	return m.confirmBailout(ctx, pos, snap, price)
}

// confirmBailout asks the model whether to dump the recovered loser. Any
// failure holds the position; the trigger latch retries next tick.
func (m *Manager) confirmBailout(ctx context.Context, pos *types.Position, snap settings.Snapshot, price float64) (bool, error) {
	indSnap, err := m.market.Snapshot(ctx, pos.Symbol, snap.Timeframe, snap.VolumeAvgPeriod)
	if err != nil {
		logger.Warnf("⚠️ %s bailout snapshot failed, holding: %v", pos.Symbol, err)
		return false, nil
	}

	resp, err := m.llm.Ask(ctx, llm.BailoutPrompt(pos, snap.Timeframe, indSnap))
	if err != nil {
		logger.Warnf("⚠️ %s bailout confirmation failed, holding: %v", pos.Symbol, err)
		return false, nil
	}

	_, rec := llm.ParseAnalysis(resp)
	if rec.IsClose() {
		logger.Infof("🤖 %s AI confirmed bailout exit at %.4f", pos.Symbol, price)
		_, err := m.trader.Close(ctx, pos.Symbol, "AI_BAILOUT_EXIT", 0)
		return true, err
	}

	logger.Infof("🤖 %s AI held through bailout trigger (%s)", pos.Symbol, rec.Action)
	return false, nil
}

// Reanalyze asks the model whether an open position should be held or
// closed, on demand. A KAPAT answer closes the position in full.
func (m *Manager) Reanalyze(ctx context.Context, symbol string) (types.Recommendation, error) {
	pos, err := m.store.Position().Get(symbol)
	if err != nil {
		return types.Recommendation{}, err
	}
	if pos == nil {
		return types.Recommendation{}, fmt.Errorf("no managed position for %s: %w", symbol, types.ErrNotFound)
	}

	snap := m.settings.Snapshot()
	price, err := m.market.Price(ctx, pos.Symbol)
	if err == nil {
		m.refresh(pos, price)
	}

	indSnap, err := m.market.Snapshot(ctx, pos.Symbol, snap.Timeframe, snap.VolumeAvgPeriod)
	if err != nil {
		return types.Recommendation{}, fmt.Errorf("snapshot %s: %w", pos.Symbol, err)
	}

	resp, err := m.llm.Ask(ctx, llm.ReanalysisPrompt(pos, snap.Timeframe, indSnap))
	if err != nil {
		return types.Recommendation{}, fmt.Errorf("reanalyze %s: %w", pos.Symbol, err)
	}

	_, rec := llm.ParseAnalysis(resp)
	if rec.IsClose() {
		logger.Infof("🤖 %s reanalysis says close", pos.Symbol)
		if _, err := m.trader.Close(ctx, pos.Symbol, "AI_REANALYSIS_EXIT", 0); err != nil {
			return rec, err
		}
		return rec, nil
	}

	logger.Infof("🤖 %s reanalysis: %s", pos.Symbol, rec.Action)
	return rec, nil
}

func recoveryTarget(pos *types.Position, extremum, recoveryPercent float64) float64 {
	if pos.IsBuy() {
		return extremum * (1 + recoveryPercent/100)
	}
	return extremum * (1 - recoveryPercent/100)
}

// checkPartialTP closes part of the position at the first R-multiple target
// and moves the stop to breakeven.
func (m *Manager) checkPartialTP(ctx context.Context, pos *types.Position, snap settings.Snapshot, price float64) error {
	risk := math.Abs(pos.EntryPrice - pos.InitialStopLoss)
	if risk < 1e-9 {
		return nil
	}

	var target float64
	if pos.IsBuy() {
		target = pos.EntryPrice + risk*snap.PartialTPTargetRR
		if price < target {
			return nil
		}
	} else {
		target = pos.EntryPrice - risk*snap.PartialTPTargetRR
		if price > target {
			return nil
		}
	}

	closeQty := pos.InitialAmount * snap.PartialTPClosePercent / 100
	if step, err := m.trader.QuantityStep(ctx, pos.Symbol); err == nil && step > 0 {
		closeQty = math.Floor(closeQty/step) * step
	}
	if closeQty <= 0 {
		logger.Warnf("⚠️ %s partial amount rounds to zero, skipping", pos.Symbol)
		pos.PartialTPDone = true
		return m.store.Position().Upsert(pos)
	}

	pnl, err := m.trader.Close(ctx, pos.Symbol, "PARTIAL_TP", closeQty)
	if err != nil {
		return fmt.Errorf("partial close: %w", err)
	}

	// Reload: Close mutated the stored row.
	updated, err := m.store.Position().Get(pos.Symbol)
	if err != nil {
		return fmt.Errorf("reload after partial close: %w", err)
	}
	if updated == nil {
		// The close took the whole position out (100% partial or the
		// rounded qty covered it all): nothing left to manage.
		return nil
	}
	*pos = *updated
	pos.PartialTPDone = true

	if err := m.trader.ReplaceStop(ctx, pos, pos.EntryPrice); err != nil {
		logger.Warnf("⚠️ %s breakeven stop move failed: %v", pos.Symbol, err)
		if err := m.store.Position().Upsert(pos); err != nil {
			return err
		}
	}

	m.store.Event().Append(types.EventPartialClose, pos.Symbol,
		fmt.Sprintf("closed %.4f pnl=%.2f SL→breakeven %.4f", closeQty, pnl, pos.EntryPrice))
	m.notifier.NotifyPartialClose(*pos, closeQty, pnl, snap.LiveTrading)
	logger.Infof("🎯 %s partial TP done: closed %.4f, SL at breakeven", pos.Symbol, closeQty)
	return nil
}

// checkTrailing drags the stop behind the price by the initial risk
// distance once profit clears the activation threshold.
func (m *Manager) checkTrailing(ctx context.Context, pos *types.Position, snap settings.Snapshot, price float64) error {
	profitPct := (price - pos.EntryPrice) / pos.EntryPrice * 100
	if !pos.IsBuy() {
		profitPct = -profitPct
	}
	if profitPct <= snap.TrailingStopActivationPercent {
		return nil
	}

	risk := math.Abs(pos.EntryPrice - pos.InitialStopLoss)
	var candidate float64
	if pos.IsBuy() {
		candidate = price - risk
		if candidate <= pos.StopLoss {
			return nil
		}
	} else {
		candidate = price + risk
		if candidate >= pos.StopLoss {
			return nil
		}
	}

	old := pos.StopLoss
	pos.TrailingActive = true
	if err := m.trader.ReplaceStop(ctx, pos, candidate); err != nil {
		return fmt.Errorf("trailing stop move: %w", err)
	}

	m.store.Event().Append(types.EventSLUpdate, pos.Symbol,
		fmt.Sprintf("trailing SL %.4f → %.4f (price %.4f)", old, candidate, price))
	logger.Infof("🔄 %s trailing SL %.4f → %.4f", pos.Symbol, old, candidate)
	return nil
}
