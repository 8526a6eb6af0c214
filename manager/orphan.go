package manager

import (
	"context"
	"fmt"

	"tradepulse/exchange"
	"tradepulse/logger"
	"tradepulse/types"
)

// SweepOrphans cancels open orders whose symbol no longer has a live
// position: the leftover SL/TP brackets of positions that already closed.
// Live futures only; simulation places no orders.
func (m *Manager) SweepOrphans(ctx context.Context) error {
	snap := m.settings.Snapshot()
	if !snap.LiveTrading {
		return nil
	}

	orders, err := m.ex.AllOpenOrders(ctx)
	if err != nil {
		return fmt.Errorf("fetch open orders: %w", err)
	}
	if len(orders) == 0 {
		return nil
	}

	live, err := m.ex.Positions(ctx, "")
	if err != nil {
		return fmt.Errorf("fetch exchange positions: %w", err)
	}
	liveSet := make(map[string]bool, len(live))
	for _, p := range live {
		liveSet[exchange.Canon(p.Symbol)] = true
	}

	orphans := make(map[string][]int64)
	for _, o := range orders {
		symbol := exchange.Canon(o.Symbol)
		if !liveSet[symbol] {
			orphans[symbol] = append(orphans[symbol], o.OrderID)
		}
	}
	if len(orphans) == 0 {
		return nil
	}

	for symbol, ids := range orphans {
		cancelled := 0
		for _, id := range ids {
			if err := m.ex.CancelOrder(ctx, symbol, id); err != nil {
				logger.Warnf("⚠️ orphan cancel %s #%d failed: %v", symbol, id, err)
				continue
			}
			cancelled++
		}
		if cancelled > 0 {
			m.store.Event().Append(types.EventInfo, symbol,
				fmt.Sprintf("cancelled %d orphan orders", cancelled))
			logger.Infof("🔄 Cancelled %d orphan orders on %s", cancelled, symbol)
		}
	}
	return nil
}
