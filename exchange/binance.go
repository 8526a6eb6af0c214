// Package exchange wraps Binance USDT-M futures behind the
// types.ExchangeAdapter interface. All symbol input is canonicalized at this
// boundary; venue errors are mapped onto the shared sentinel taxonomy.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/google/uuid"

	"tradepulse/cache"
	"tradepulse/logger"
	"tradepulse/types"
)

const (
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"

	priceTTL  = 5 * time.Second
	klineTTL  = 60 * time.Second
	tickerTTL = 10 * time.Second

	retryAttempts = 3
	retryDelay    = 2 * time.Second
)

// symbolFilter keeps the order-formatting rules for one symbol.
type symbolFilter struct {
	step      float64
	qtyPrec   int
	pricePrec int
}

// Binance is the USDT-M futures adapter.
type Binance struct {
	client *futures.Client
	cache  *cache.Cache

	filterMu sync.RWMutex
	filters  map[string]symbolFilter
}

var _ types.ExchangeAdapter = (*Binance)(nil)

// New builds the adapter. Empty credentials still work for public endpoints
// (klines, tickers), which is all simulation mode needs.
func New(apiKey, secretKey string, testnet bool, c *cache.Cache) *Binance {
	client := futures.NewClient(apiKey, secretKey)
	if testnet {
		client.BaseURL = baseURLTestnet
		logger.Infof("📊 Exchange adapter targeting Binance futures testnet")
	} else {
		client.BaseURL = baseURLProduction
	}
	if c == nil {
		c = cache.New()
	}
	return &Binance{
		client:  client,
		cache:   c,
		filters: make(map[string]symbolFilter),
	}
}

// mapErr translates go-binance errors onto the sentinel taxonomy.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		var sentinel error
		switch apiErr.Code {
		case -1003:
			sentinel = types.ErrRateLimit
		case -2014, -2015, -1022:
			sentinel = types.ErrAuth
		case -1121, -4141:
			sentinel = types.ErrBadSymbol
		case -2019, -3005:
			sentinel = types.ErrInsufficientMargin
		case -2013, -4044:
			sentinel = types.ErrNotFound
		default:
			return fmt.Errorf("%s: binance code %d: %w", op, apiErr.Code, err)
		}
		return fmt.Errorf("%s: %w: %s", op, sentinel, apiErr.Message)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %v", op, types.ErrNetwork, err)
	}
	msg := err.Error()
	for _, pattern := range []string{"timeout", "connection reset", "connection refused", "no such host", "EOF", "closed network"} {
		if strings.Contains(msg, pattern) {
			return fmt.Errorf("%s: %w: %v", op, types.ErrNetwork, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// withRetry runs fn up to retryAttempts times, backing off on transient
// network errors only.
func withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !errors.Is(err, types.ErrNetwork) || attempt == retryAttempts {
			return err
		}
		logger.Debugf("🔄 %s retry %d/%d: %v", op, attempt, retryAttempts, err)
		select {
		case <-time.After(retryDelay * time.Duration(attempt)):
		case <-ctx.Done():
			return fmt.Errorf("%s: %w: %v", op, types.ErrNetwork, ctx.Err())
		}
	}
	return err
}

// Balance returns the USDT wallet balance.
func (b *Binance) Balance(ctx context.Context) (float64, error) {
	account, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, mapErr("balance", err)
	}
	for _, asset := range account.Assets {
		if asset.Asset == "USDT" {
			bal, _ := strconv.ParseFloat(asset.WalletBalance, 64)
			return bal, nil
		}
	}
	return 0, nil
}

// Klines returns up to limit bars, oldest first, cached for one minute.
func (b *Binance) Klines(ctx context.Context, symbol, interval string, limit int) ([]types.Bar, error) {
	wire := Wire(symbol)
	key := fmt.Sprintf("klines_%s_%s_%d", wire, interval, limit)

	v, err := b.cache.GetOr(key, klineTTL, func() (any, error) {
		var raw []*futures.Kline
		err := withRetry(ctx, "klines "+wire, func() error {
			var e error
			raw, e = b.client.NewKlinesService().Symbol(wire).Interval(interval).Limit(limit).Do(ctx)
			return mapErr("klines "+wire, e)
		})
		if err != nil {
			return nil, err
		}

		bars := make([]types.Bar, 0, len(raw))
		for _, k := range raw {
			bar := types.Bar{OpenTime: k.OpenTime, CloseTime: k.CloseTime}
			bar.Open, _ = strconv.ParseFloat(k.Open, 64)
			bar.High, _ = strconv.ParseFloat(k.High, 64)
			bar.Low, _ = strconv.ParseFloat(k.Low, 64)
			bar.Close, _ = strconv.ParseFloat(k.Close, 64)
			bar.Volume, _ = strconv.ParseFloat(k.Volume, 64)
			bars = append(bars, bar)
		}
		return bars, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]types.Bar), nil
}

// LastPrice returns the current price, served from the shared price cache
// when the websocket feed keeps it fresh, else from the 24h ticker.
func (b *Binance) LastPrice(ctx context.Context, symbol string) (float64, error) {
	wire := Wire(symbol)
	v, err := b.cache.GetOr("price_"+wire, priceTTL, func() (any, error) {
		var stats []*futures.PriceChangeStats
		err := withRetry(ctx, "price "+wire, func() error {
			var e error
			stats, e = b.client.NewListPriceChangeStatsService().Symbol(wire).Do(ctx)
			return mapErr("price "+wire, e)
		})
		if err != nil {
			return nil, err
		}
		if len(stats) == 0 {
			return nil, fmt.Errorf("price %s: %w", wire, types.ErrBadSymbol)
		}
		price, _ := strconv.ParseFloat(stats[0].LastPrice, 64)
		if price <= 0 {
			return nil, fmt.Errorf("price %s: zero last price: %w", wire, types.ErrBadSymbol)
		}
		return price, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

// AllTickers returns 24h stats for every USDT pair, cached briefly because
// discovery sources hit this back to back.
func (b *Binance) AllTickers(ctx context.Context) ([]types.Ticker, error) {
	v, err := b.cache.GetOr("tickers_all", tickerTTL, func() (any, error) {
		stats, err := b.client.NewListPriceChangeStatsService().Do(ctx)
		if err != nil {
			return nil, mapErr("tickers", err)
		}
		out := make([]types.Ticker, 0, len(stats))
		for _, s := range stats {
			if !strings.HasSuffix(s.Symbol, "USDT") {
				continue
			}
			t := types.Ticker{Symbol: Canon(s.Symbol)}
			t.LastPrice, _ = strconv.ParseFloat(s.LastPrice, 64)
			t.PriceChangePercent, _ = strconv.ParseFloat(s.PriceChangePercent, 64)
			t.QuoteVolume, _ = strconv.ParseFloat(s.QuoteVolume, 64)
			out = append(out, t)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]types.Ticker), nil
}

// SetLeverage sets the symbol leverage before an entry order.
func (b *Binance) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	_, err := b.client.NewChangeLeverageService().Symbol(Wire(symbol)).Leverage(leverage).Do(ctx)
	return mapErr("set leverage "+symbol, err)
}

// OpenMarket places a market entry order.
func (b *Binance) OpenMarket(ctx context.Context, symbol, side string, qty float64) (types.OrderResult, error) {
	return b.createOrder(ctx, symbol, side, futures.OrderTypeMarket, qty, 0, 0, false)
}

// OpenLimit places a GTC limit entry order.
func (b *Binance) OpenLimit(ctx context.Context, symbol, side string, qty, price float64) (types.OrderResult, error) {
	return b.createOrder(ctx, symbol, side, futures.OrderTypeLimit, qty, price, 0, false)
}

// PlaceStopMarket places a close-position stop order at stopPrice.
func (b *Binance) PlaceStopMarket(ctx context.Context, symbol, side string, stopPrice float64) (types.OrderResult, error) {
	return b.createOrder(ctx, symbol, side, futures.OrderTypeStopMarket, 0, 0, stopPrice, true)
}

// PlaceTakeProfitMarket places a close-position take-profit order.
func (b *Binance) PlaceTakeProfitMarket(ctx context.Context, symbol, side string, stopPrice float64) (types.OrderResult, error) {
	return b.createOrder(ctx, symbol, side, futures.OrderTypeTakeProfitMarket, 0, 0, stopPrice, true)
}

// CloseMarket places a reduce-only market order for qty.
func (b *Binance) CloseMarket(ctx context.Context, symbol, side string, qty float64) (types.OrderResult, error) {
	wire := Wire(symbol)
	filter, err := b.filter(ctx, wire)
	if err != nil {
		return types.OrderResult{}, err
	}

	order, err := b.client.NewCreateOrderService().
		Symbol(wire).
		Side(orderSide(side)).
		Type(futures.OrderTypeMarket).
		Quantity(formatFloat(qty, filter.qtyPrec)).
		ReduceOnly(true).
		NewClientOrderID(clientOrderID()).
		Do(ctx)
	if err != nil {
		return types.OrderResult{}, mapErr("close market "+symbol, err)
	}
	return translateOrder(order), nil
}

// createOrder is the shared order constructor. closePosition orders carry no
// quantity: the venue sizes them against the live position.
func (b *Binance) createOrder(ctx context.Context, symbol, side string, orderType futures.OrderType, qty, price, stopPrice float64, closePosition bool) (types.OrderResult, error) {
	wire := Wire(symbol)
	filter, err := b.filter(ctx, wire)
	if err != nil {
		return types.OrderResult{}, err
	}

	svc := b.client.NewCreateOrderService().
		Symbol(wire).
		Side(orderSide(side)).
		Type(orderType).
		NewClientOrderID(clientOrderID())

	if closePosition {
		svc = svc.ClosePosition(true)
	} else {
		svc = svc.Quantity(formatFloat(qty, filter.qtyPrec))
	}
	if orderType == futures.OrderTypeLimit {
		svc = svc.Price(formatFloat(price, filter.pricePrec)).TimeInForce(futures.TimeInForceTypeGTC)
	}
	if stopPrice > 0 {
		svc = svc.StopPrice(formatFloat(stopPrice, filter.pricePrec))
	}

	order, err := svc.Do(ctx)
	if err != nil {
		return types.OrderResult{}, mapErr(fmt.Sprintf("%s %s", strings.ToLower(string(orderType)), symbol), err)
	}
	return translateOrder(order), nil
}

// Positions returns live positions with nonzero amounts. Empty symbol
// returns all.
func (b *Binance) Positions(ctx context.Context, symbol string) ([]types.ExchangePosition, error) {
	svc := b.client.NewGetPositionRiskService()
	if symbol != "" {
		svc = svc.Symbol(Wire(symbol))
	}
	risks, err := svc.Do(ctx)
	if err != nil {
		return nil, mapErr("positions", err)
	}

	out := make([]types.ExchangePosition, 0, len(risks))
	for _, r := range risks {
		amt, _ := strconv.ParseFloat(r.PositionAmt, 64)
		if amt == 0 {
			continue
		}
		p := types.ExchangePosition{Symbol: Canon(r.Symbol), Amount: amt}
		p.EntryPrice, _ = strconv.ParseFloat(r.EntryPrice, 64)
		p.MarkPrice, _ = strconv.ParseFloat(r.MarkPrice, 64)
		p.UnrealizedPnL, _ = strconv.ParseFloat(r.UnRealizedProfit, 64)
		p.LiquidationPrice, _ = strconv.ParseFloat(r.LiquidationPrice, 64)
		if lev, err := strconv.Atoi(r.Leverage); err == nil {
			p.Leverage = lev
		}
		out = append(out, p)
	}
	return out, nil
}

// OpenOrders returns pending orders for the symbol.
func (b *Binance) OpenOrders(ctx context.Context, symbol string) ([]types.OpenOrder, error) {
	orders, err := b.client.NewListOpenOrdersService().Symbol(Wire(symbol)).Do(ctx)
	if err != nil {
		return nil, mapErr("open orders "+symbol, err)
	}
	return translateOpenOrders(orders), nil
}

// AllOpenOrders returns every pending order on the account.
func (b *Binance) AllOpenOrders(ctx context.Context) ([]types.OpenOrder, error) {
	orders, err := b.client.NewListOpenOrdersService().Do(ctx)
	if err != nil {
		return nil, mapErr("all open orders", err)
	}
	return translateOpenOrders(orders), nil
}

// CancelOrder cancels one order.
func (b *Binance) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	_, err := b.client.NewCancelOrderService().Symbol(Wire(symbol)).OrderID(orderID).Do(ctx)
	return mapErr(fmt.Sprintf("cancel order %d %s", orderID, symbol), err)
}

// CancelAllOrders cancels every pending order for the symbol.
func (b *Binance) CancelAllOrders(ctx context.Context, symbol string) error {
	err := b.client.NewCancelAllOpenOrdersService().Symbol(Wire(symbol)).Do(ctx)
	return mapErr("cancel all orders "+symbol, err)
}

// LastTradePrice returns the price of the most recent account trade, the
// fill-price fallback when an order response carries no average.
func (b *Binance) LastTradePrice(ctx context.Context, symbol string) (float64, error) {
	trades, err := b.client.NewListAccountTradeService().Symbol(Wire(symbol)).Limit(1).Do(ctx)
	if err != nil {
		return 0, mapErr("last trade "+symbol, err)
	}
	if len(trades) == 0 {
		return 0, fmt.Errorf("last trade %s: %w", symbol, types.ErrNotFound)
	}
	price, _ := strconv.ParseFloat(trades[len(trades)-1].Price, 64)
	return price, nil
}

// QuantityStep returns the lot step and quantity/price precisions, loaded
// from exchange info once per process.
func (b *Binance) QuantityStep(ctx context.Context, symbol string) (float64, int, int, error) {
	f, err := b.filter(ctx, Wire(symbol))
	if err != nil {
		return 0, 0, 0, err
	}
	return f.step, f.qtyPrec, f.pricePrec, nil
}

func (b *Binance) filter(ctx context.Context, wire string) (symbolFilter, error) {
	b.filterMu.RLock()
	f, ok := b.filters[wire]
	b.filterMu.RUnlock()
	if ok {
		return f, nil
	}

	info, err := b.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return symbolFilter{}, mapErr("exchange info", err)
	}

	b.filterMu.Lock()
	defer b.filterMu.Unlock()
	for _, s := range info.Symbols {
		sf := symbolFilter{step: 0.001, qtyPrec: s.QuantityPrecision, pricePrec: s.PricePrecision}
		if lot := s.LotSizeFilter(); lot != nil {
			if step, err := strconv.ParseFloat(lot.StepSize, 64); err == nil && step > 0 {
				sf.step = step
			}
		}
		b.filters[s.Symbol] = sf
	}

	f, ok = b.filters[wire]
	if !ok {
		return symbolFilter{}, fmt.Errorf("exchange info: %s: %w", wire, types.ErrBadSymbol)
	}
	return f, nil
}

func orderSide(side string) futures.SideType {
	if strings.EqualFold(side, types.SideBuy) {
		return futures.SideTypeBuy
	}
	return futures.SideTypeSell
}

// clientOrderID tags our orders so they are recognizable on the venue.
func clientOrderID() string {
	return "tp-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

func formatFloat(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}

func translateOrder(o *futures.CreateOrderResponse) types.OrderResult {
	r := types.OrderResult{
		OrderID:       o.OrderID,
		ClientOrderID: o.ClientOrderID,
		Symbol:        Canon(o.Symbol),
		Side:          strings.ToLower(string(o.Side)),
		Type:          string(o.Type),
		Status:        string(o.Status),
		UpdateTime:    o.UpdateTime,
	}
	r.Price, _ = strconv.ParseFloat(o.Price, 64)
	r.AvgPrice, _ = strconv.ParseFloat(o.AvgPrice, 64)
	r.OrigQty, _ = strconv.ParseFloat(o.OrigQuantity, 64)
	r.ExecutedQty, _ = strconv.ParseFloat(o.ExecutedQuantity, 64)
	return r
}

func translateOpenOrders(orders []*futures.Order) []types.OpenOrder {
	out := make([]types.OpenOrder, 0, len(orders))
	for _, o := range orders {
		oo := types.OpenOrder{
			OrderID:    o.OrderID,
			Symbol:     Canon(o.Symbol),
			Side:       strings.ToLower(string(o.Side)),
			Type:       string(o.Type),
			ReduceOnly: o.ReduceOnly || o.ClosePosition,
		}
		oo.Price, _ = strconv.ParseFloat(o.Price, 64)
		oo.StopPrice, _ = strconv.ParseFloat(o.StopPrice, 64)
		oo.OrigQty, _ = strconv.ParseFloat(o.OrigQuantity, 64)
		out = append(out, oo)
	}
	return out
}
