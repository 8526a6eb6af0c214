// Package market serves indicator-ready market data on top of the exchange
// adapter, with a shared TTL cache so the scanner, trader and manager do not
// refetch the same klines inside one tick.
package market

import (
	"context"
	"fmt"
	"time"

	"tradepulse/cache"
	"tradepulse/exchange"
	"tradepulse/indicator"
	"tradepulse/types"
)

const (
	snapshotTTL = 180 * time.Second

	// snapshotBars is enough history for every indicator in the set plus
	// the pre-filter's 100-cleaned-bars floor.
	snapshotBars = 200
)

// Data is the cached market-data service.
type Data struct {
	ex    types.ExchangeAdapter
	cache *cache.Cache
}

// NewData builds the service over the shared cache.
func NewData(ex types.ExchangeAdapter, c *cache.Cache) *Data {
	return &Data{ex: ex, cache: c}
}

// Price returns the current price for symbol.
func (d *Data) Price(ctx context.Context, symbol string) (float64, error) {
	return d.ex.LastPrice(ctx, symbol)
}

// Bars returns cleaned bars for symbol at timeframe.
func (d *Data) Bars(ctx context.Context, symbol, timeframe string, limit int) ([]types.Bar, error) {
	bars, err := d.ex.Klines(ctx, symbol, timeframe, limit)
	if err != nil {
		return nil, err
	}
	return types.CleanBars(bars), nil
}

// Snapshot returns the full indicator snapshot for symbol at timeframe,
// cached for three minutes.
func (d *Data) Snapshot(ctx context.Context, symbol, timeframe string, volumePeriod int) (indicator.Snapshot, error) {
	key := fmt.Sprintf("indicators_%s_%s_%d", exchange.Wire(symbol), timeframe, volumePeriod)
	v, err := d.cache.GetOr(key, snapshotTTL, func() (any, error) {
		bars, err := d.Bars(ctx, symbol, timeframe, snapshotBars)
		if err != nil {
			return nil, err
		}
		snap, err := indicator.Build(bars, volumePeriod)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", symbol, timeframe, err)
		}
		return snap, nil
	})
	if err != nil {
		return indicator.Snapshot{}, err
	}
	return v.(indicator.Snapshot), nil
}

// ATR returns the current ATR for symbol at timeframe, via the snapshot
// cache.
func (d *Data) ATR(ctx context.Context, symbol, timeframe string) (float64, error) {
	snap, err := d.Snapshot(ctx, symbol, timeframe, 0)
	if err != nil {
		return 0, err
	}
	return snap.ATR, nil
}
