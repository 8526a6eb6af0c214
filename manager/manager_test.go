package manager

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"tradepulse/cache"
	"tradepulse/market"
	"tradepulse/settings"
	"tradepulse/store"
	"tradepulse/trader"
	"tradepulse/types"
)

// fakeVenue scripts the exchange surface the manager touches.
type fakeVenue struct {
	price     float64
	positions []types.ExchangePosition
	orders    []types.OpenOrder
	cancelled map[string][]int64
	stops     []float64
}

func newFakeVenue(price float64) *fakeVenue {
	return &fakeVenue{price: price, cancelled: make(map[string][]int64)}
}

func (f *fakeVenue) Balance(ctx context.Context) (float64, error) { return 10000, nil }

func (f *fakeVenue) Klines(ctx context.Context, symbol, interval string, limit int) ([]types.Bar, error) {
	// Synthetic but well-formed history around the current price.
	bars := make([]types.Bar, 120)
	for i := range bars {
		base := f.price * (1 + 0.01*math.Sin(float64(i)/7))
		bars[i] = types.Bar{
			OpenTime: int64(i), Open: base, High: base * 1.005,
			Low: base * 0.995, Close: base, Volume: 1000 + float64(i%10)*50,
			CloseTime: int64(i + 1),
		}
	}
	return bars, nil
}

func (f *fakeVenue) LastPrice(ctx context.Context, symbol string) (float64, error) {
	return f.price, nil
}

func (f *fakeVenue) AllTickers(ctx context.Context) ([]types.Ticker, error) { return nil, nil }

func (f *fakeVenue) SetLeverage(ctx context.Context, symbol string, leverage int) error { return nil }

func (f *fakeVenue) OpenMarket(ctx context.Context, symbol, side string, qty float64) (types.OrderResult, error) {
	return types.OrderResult{OrderID: 1, AvgPrice: f.price}, nil
}

func (f *fakeVenue) OpenLimit(ctx context.Context, symbol, side string, qty, price float64) (types.OrderResult, error) {
	return types.OrderResult{OrderID: 1, Price: price}, nil
}

func (f *fakeVenue) PlaceStopMarket(ctx context.Context, symbol, side string, stopPrice float64) (types.OrderResult, error) {
	f.stops = append(f.stops, stopPrice)
	return types.OrderResult{OrderID: 2}, nil
}

func (f *fakeVenue) PlaceTakeProfitMarket(ctx context.Context, symbol, side string, stopPrice float64) (types.OrderResult, error) {
	return types.OrderResult{OrderID: 3}, nil
}

func (f *fakeVenue) CloseMarket(ctx context.Context, symbol, side string, qty float64) (types.OrderResult, error) {
	return types.OrderResult{OrderID: 4, AvgPrice: f.price}, nil
}

func (f *fakeVenue) Positions(ctx context.Context, symbol string) ([]types.ExchangePosition, error) {
	return f.positions, nil
}

func (f *fakeVenue) OpenOrders(ctx context.Context, symbol string) ([]types.OpenOrder, error) {
	return nil, nil
}

func (f *fakeVenue) AllOpenOrders(ctx context.Context) ([]types.OpenOrder, error) {
	return f.orders, nil
}

func (f *fakeVenue) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	f.cancelled[symbol] = append(f.cancelled[symbol], orderID)
	return nil
}

func (f *fakeVenue) CancelAllOrders(ctx context.Context, symbol string) error { return nil }

func (f *fakeVenue) LastTradePrice(ctx context.Context, symbol string) (float64, error) {
	return f.price, nil
}

func (f *fakeVenue) QuantityStep(ctx context.Context, symbol string) (float64, int, int, error) {
	return 0.001, 3, 2, nil
}

type fakeLLM struct {
	response string
	asked    int
}

func (f *fakeLLM) Ask(ctx context.Context, prompt string) (string, error) {
	f.asked++
	return f.response, nil
}

func (f *fakeLLM) Reconfigure(apiKey string, models []string) {}

type silentNotifier struct{ texts []string }

func (n *silentNotifier) NotifyTradeOpened(p types.Position, live bool) {}
func (n *silentNotifier) NotifyTradeClosed(p types.Position, exitPrice, pnl float64, reason string, live bool) {
}
func (n *silentNotifier) NotifyPartialClose(p types.Position, closedQty, pnl float64, live bool) {}
func (n *silentNotifier) NotifyText(text string) { n.texts = append(n.texts, text) }

type ManagerTestSuite struct {
	suite.Suite
	st       *store.Store
	svc      *settings.Service
	venue    *fakeVenue
	llm      *fakeLLM
	notifier *silentNotifier
	manager  *Manager
}

func (s *ManagerTestSuite) SetupTest() {
	st, err := store.New(filepath.Join(s.T().TempDir(), "manager_test.db"))
	s.Require().NoError(err)
	s.st = st

	svc, err := settings.New(st.Settings())
	s.Require().NoError(err)
	s.svc = svc

	s.venue = newFakeVenue(100)
	s.llm = &fakeLLM{response: "TUT"}
	s.notifier = &silentNotifier{}

	md := market.NewData(s.venue, cache.New())
	tr := trader.New(s.venue, md, st, svc, s.notifier)
	s.manager = New(st, svc, s.venue, tr, s.llm, s.notifier, md)
}

func (s *ManagerTestSuite) TearDownTest() { s.st.Close() }

func (s *ManagerTestSuite) set(changes map[string]string) {
	_, err := s.svc.Update(changes)
	s.Require().NoError(err)
}

func (s *ManagerTestSuite) seedPosition(side string, entry, sl, tp float64) *types.Position {
	pos := &types.Position{
		Symbol: "BTC/USDT", Side: side, EntryPrice: entry,
		Amount: 1, InitialAmount: 1,
		StopLoss: sl, InitialStopLoss: sl, TakeProfit: tp,
		Leverage: 10, OpenedAt: time.Now(), UpdatedAt: time.Now(),
	}
	s.Require().NoError(s.st.Position().Upsert(pos))
	return pos
}

func (s *ManagerTestSuite) reload() *types.Position {
	pos, err := s.st.Position().Get("BTC/USDT")
	s.Require().NoError(err)
	return pos
}

func (s *ManagerTestSuite) TestTickClosesOnStopLoss() {
	s.seedPosition(types.SideBuy, 100, 95, 120)
	s.venue.price = 94

	s.manager.Tick(context.Background())

	s.Nil(s.reload())
	recs, err := s.st.History().Recent(1)
	s.Require().NoError(err)
	s.Require().Len(recs, 1)
	s.Equal("SL", recs[0].Reason)
}

func (s *ManagerTestSuite) TestTickClosesOnTakeProfitSellSide() {
	s.seedPosition(types.SideSell, 100, 105, 90)
	s.venue.price = 89

	s.manager.Tick(context.Background())

	s.Nil(s.reload())
	recs, err := s.st.History().Recent(1)
	s.Require().NoError(err)
	s.Require().Len(recs, 1)
	s.Equal("TP", recs[0].Reason)
	s.InDelta(11, recs[0].PnL, 1e-6)
}

func (s *ManagerTestSuite) TestTickRefreshesPnL() {
	s.seedPosition(types.SideBuy, 100, 90, 120)
	s.venue.price = 101

	s.manager.Tick(context.Background())

	pos := s.reload()
	s.Require().NotNil(pos)
	s.InDelta(101, pos.CurrentPrice, 1e-9)
	s.InDelta(1, pos.PnL, 1e-9)
	// margin = 100·1/10 = 10, so +1 pnl is +10%.
	s.InDelta(10, pos.PnLPercent, 1e-9)
}

func (s *ManagerTestSuite) TestBailoutArmsTracksAndExits() {
	s.set(map[string]string{settings.KeyUseAIBailoutConfirmation: "false"})
	s.seedPosition(types.SideBuy, 100, 90, 120)

	// Loss beyond the arm threshold (-2% of margin): -3/10 margin = -30%.
	s.venue.price = 99.7
	s.manager.Tick(context.Background())
	pos := s.reload()
	s.Require().NotNil(pos)
	s.True(pos.BailoutArmed)
	s.InDelta(99.7, pos.BailoutExtremum, 1e-9)

	// Worse price drags the extremum and the recovery target down.
	s.venue.price = 99.0
	s.manager.Tick(context.Background())
	pos = s.reload()
	s.InDelta(99.0, pos.BailoutExtremum, 1e-9)
	s.InDelta(99.0*1.01, pos.BailoutRecoveryTarget, 1e-9)

	// Recovery bounce exits without AI confirmation.
	s.venue.price = 100.0
	s.manager.Tick(context.Background())
	s.Nil(s.reload())
	recs, err := s.st.History().Recent(1)
	s.Require().NoError(err)
	s.Require().Len(recs, 1)
	s.Equal("BAILOUT_EXIT", recs[0].Reason)
}

func (s *ManagerTestSuite) TestBailoutAIHoldKeepsPosition() {
	s.llm.response = "TUT\nTrend hala güçlü."
	s.seedPosition(types.SideBuy, 100, 90, 120)

	s.venue.price = 99.0
	s.manager.Tick(context.Background())
	s.Require().True(s.reload().BailoutArmed)

	s.venue.price = 100.0
	s.manager.Tick(context.Background())

	pos := s.reload()
	s.Require().NotNil(pos)
	s.True(pos.BailoutTriggered)
	s.Equal(1, s.llm.asked)
}

func (s *ManagerTestSuite) TestBailoutAICloseExits() {
	s.llm.response = "KAPAT\nToparlanma zayıf."
	s.seedPosition(types.SideBuy, 100, 90, 120)

	s.venue.price = 99.0
	s.manager.Tick(context.Background())
	s.venue.price = 100.0
	s.manager.Tick(context.Background())

	s.Nil(s.reload())
	recs, err := s.st.History().Recent(1)
	s.Require().NoError(err)
	s.Require().Len(recs, 1)
	s.Equal("AI_BAILOUT_EXIT", recs[0].Reason)
}

func (s *ManagerTestSuite) TestBailoutDisarmsBackInProfit() {
	s.set(map[string]string{settings.KeyUseAIBailoutConfirmation: "false"})
	s.seedPosition(types.SideBuy, 100, 90, 120)

	s.venue.price = 99.0
	s.manager.Tick(context.Background())
	s.Require().True(s.reload().BailoutArmed)

	// Straight back into profit: the profit branch disarms before the
	// recovery-target check can fire.
	s.venue.price = 100.5
	s.manager.Tick(context.Background())
	pos := s.reload()
	s.Require().NotNil(pos)
	s.False(pos.BailoutArmed)
	s.False(pos.BailoutTriggered)
}

func (s *ManagerTestSuite) TestPartialTPClosesHalfAndMovesBreakeven() {
	s.set(map[string]string{settings.KeyUseTrailingStop: "false"})
	s.seedPosition(types.SideBuy, 100, 95, 120)

	// risk = 5, target RR 1.0 → 105.
	s.venue.price = 105.5
	s.manager.Tick(context.Background())

	pos := s.reload()
	s.Require().NotNil(pos)
	s.True(pos.PartialTPDone)
	s.InDelta(0.5, pos.Amount, 1e-9)
	s.InDelta(100, pos.StopLoss, 1e-9)
	s.InDelta(1, pos.InitialAmount, 1e-9)

	recs, err := s.st.History().Recent(1)
	s.Require().NoError(err)
	s.Require().Len(recs, 1)
	s.Equal("PARTIAL_TP", recs[0].Reason)
	s.InDelta(5.5*0.5, recs[0].PnL, 1e-6)
}

func (s *ManagerTestSuite) TestPartialTPRunsOnce() {
	s.set(map[string]string{settings.KeyUseTrailingStop: "false"})
	s.seedPosition(types.SideBuy, 100, 95, 120)

	s.venue.price = 105.5
	s.manager.Tick(context.Background())
	s.manager.Tick(context.Background())

	pos := s.reload()
	s.Require().NotNil(pos)
	s.InDelta(0.5, pos.Amount, 1e-9)
}

func (s *ManagerTestSuite) TestPartialTPFullCloseLeavesNothingToManage() {
	s.set(map[string]string{
		settings.KeyUseTrailingStop:       "false",
		settings.KeyPartialTPClosePercent: "100",
	})
	s.seedPosition(types.SideBuy, 100, 95, 120)

	// 100% partial closes the whole position; the tick must treat that
	// as a clean full close, not an error.
	s.venue.price = 105.5
	s.manager.Tick(context.Background())

	s.Nil(s.reload())
	recs, err := s.st.History().Recent(1)
	s.Require().NoError(err)
	s.Require().Len(recs, 1)
	s.Equal("PARTIAL_TP", recs[0].Reason)
}

func (s *ManagerTestSuite) TestTrailingMovesStopOnlyForward() {
	s.set(map[string]string{settings.KeyUsePartialTP: "false"})
	s.seedPosition(types.SideBuy, 100, 95, 120)

	// 3% profit clears the 1.5% activation; candidate = 103 − 5.
	s.venue.price = 103
	s.manager.Tick(context.Background())
	pos := s.reload()
	s.Require().NotNil(pos)
	s.True(pos.TrailingActive)
	s.InDelta(98, pos.StopLoss, 1e-9)

	// Pullback never loosens the stop.
	s.venue.price = 102
	s.manager.Tick(context.Background())
	s.InDelta(98, s.reload().StopLoss, 1e-9)
}

func (s *ManagerTestSuite) TestReconcileRemovesGhost() {
	s.set(map[string]string{settings.KeyLiveTrading: "true"})
	s.seedPosition(types.SideBuy, 100, 95, 120)
	s.venue.positions = nil // exchange knows nothing about it

	s.Require().NoError(s.manager.Reconcile(context.Background()))

	s.Nil(s.reload())
	events, err := s.st.Event().Recent(5, types.EventCritical)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal("BTC/USDT", events[0].Symbol)
}

func (s *ManagerTestSuite) TestReconcileImportsUnmanaged() {
	s.set(map[string]string{settings.KeyLiveTrading: "true"})
	s.venue.positions = []types.ExchangePosition{
		{Symbol: "ETHUSDT", Amount: -2, EntryPrice: 2000, MarkPrice: 1990, Leverage: 5},
	}

	s.Require().NoError(s.manager.Reconcile(context.Background()))

	pos, err := s.st.Position().Get("ETH/USDT")
	s.Require().NoError(err)
	s.Require().NotNil(pos)
	s.Equal(types.SideSell, pos.Side)
	s.InDelta(2, pos.Amount, 1e-9)
	s.Equal(5, pos.Leverage)
	// Short: reconstructed SL above entry, TP below.
	s.Greater(pos.StopLoss, pos.EntryPrice)
	s.Less(pos.TakeProfit, pos.EntryPrice)
}

func (s *ManagerTestSuite) TestReconcileNoOpInSimulation() {
	s.seedPosition(types.SideBuy, 100, 95, 120)
	s.venue.positions = nil

	s.Require().NoError(s.manager.Reconcile(context.Background()))
	s.NotNil(s.reload())
}

func (s *ManagerTestSuite) TestSweepOrphansCancelsStaleBrackets() {
	s.set(map[string]string{settings.KeyLiveTrading: "true"})
	s.venue.positions = []types.ExchangePosition{
		{Symbol: "BTCUSDT", Amount: 1, EntryPrice: 100},
	}
	s.venue.orders = []types.OpenOrder{
		{OrderID: 10, Symbol: "BTCUSDT", Type: "STOP_MARKET"},
		{OrderID: 11, Symbol: "ETHUSDT", Type: "STOP_MARKET"},
		{OrderID: 12, Symbol: "ETHUSDT", Type: "TAKE_PROFIT_MARKET"},
	}

	s.Require().NoError(s.manager.SweepOrphans(context.Background()))

	s.Empty(s.venue.cancelled["BTC/USDT"])
	s.ElementsMatch([]int64{11, 12}, s.venue.cancelled["ETH/USDT"])
}

func (s *ManagerTestSuite) TestReanalyzeHoldKeepsPosition() {
	s.seedPosition(types.SideBuy, 100, 95, 120)
	s.llm.response = "TUT\nTrend hala sağlam."

	rec, err := s.manager.Reanalyze(context.Background(), "BTC/USDT")

	s.Require().NoError(err)
	s.Equal(types.ActionHold, rec.Action)
	s.Equal(1, s.llm.asked)
	s.NotNil(s.reload())
}

func (s *ManagerTestSuite) TestReanalyzeCloseExitsPosition() {
	s.seedPosition(types.SideBuy, 100, 95, 120)
	s.llm.response = "KAPAT\nMomentum kırıldı."

	rec, err := s.manager.Reanalyze(context.Background(), "BTC/USDT")

	s.Require().NoError(err)
	s.True(rec.IsClose())
	s.Nil(s.reload())
	recs, err := s.st.History().Recent(1)
	s.Require().NoError(err)
	s.Require().Len(recs, 1)
	s.Equal("AI_REANALYSIS_EXIT", recs[0].Reason)
}

func (s *ManagerTestSuite) TestReanalyzeUnknownSymbol() {
	_, err := s.manager.Reanalyze(context.Background(), "BTC/USDT")
	s.ErrorIs(err, types.ErrNotFound)
}

func TestManagerTestSuite(t *testing.T) {
	suite.Run(t, new(ManagerTestSuite))
}
