package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"tradepulse/types"
)

type StoreTestSuite struct {
	suite.Suite

	store *Store
}

func (s *StoreTestSuite) SetupTest() {
	st, err := New(filepath.Join(s.T().TempDir(), "test.db"))
	s.Require().NoError(err)
	s.store = st
}

func (s *StoreTestSuite) TearDownTest() {
	if s.store != nil {
		s.store.Close()
	}
}

func (s *StoreTestSuite) TestPositionRoundTrip() {
	pos := &types.Position{
		Symbol:          "BTC/USDT",
		Side:            types.SideBuy,
		EntryPrice:      100,
		Amount:          25,
		InitialAmount:   25,
		StopLoss:        96,
		InitialStopLoss: 96,
		TakeProfit:      108,
		Leverage:        10,
		OpenedAt:        time.Now().UTC(),
	}
	s.Require().NoError(s.store.Position().Upsert(pos))
	s.NotZero(pos.ID)

	got, err := s.store.Position().Get("BTC/USDT")
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Equal(types.SideBuy, got.Side)
	s.InDelta(96.0, got.StopLoss, 1e-9)
	s.False(got.PartialTPDone)

	// Upsert keeps one row per symbol and moves mutable fields.
	pos.StopLoss = 100
	pos.PartialTPDone = true
	pos.Amount = 12.5
	s.Require().NoError(s.store.Position().Upsert(pos))

	count, err := s.store.Position().Count()
	s.Require().NoError(err)
	s.Equal(1, count)

	got, err = s.store.Position().Get("BTC/USDT")
	s.Require().NoError(err)
	s.InDelta(100.0, got.StopLoss, 1e-9)
	s.InDelta(12.5, got.Amount, 1e-9)
	s.InDelta(25.0, got.InitialAmount, 1e-9)
	s.True(got.PartialTPDone)

	s.Require().NoError(s.store.Position().Delete("BTC/USDT"))
	got, err = s.store.Position().Get("BTC/USDT")
	s.Require().NoError(err)
	s.Nil(got)
}

func (s *StoreTestSuite) TestHistoryAndTotalPnL() {
	open := time.Now().UTC().Add(-time.Hour)
	s.Require().NoError(s.store.History().Append(&types.TradeRecord{
		Symbol: "ETH/USDT", Side: types.SideBuy,
		EntryPrice: 100, ExitPrice: 108, Amount: 2, PnL: 16, Reason: "TP", OpenedAt: open,
	}))
	s.Require().NoError(s.store.History().Append(&types.TradeRecord{
		Symbol: "SOL/USDT", Side: types.SideSell,
		EntryPrice: 50, ExitPrice: 52, Amount: 3, PnL: -6, Reason: "SL", OpenedAt: open,
	}))

	recent, err := s.store.History().Recent(10)
	s.Require().NoError(err)
	s.Len(recent, 2)

	total, err := s.store.History().TotalPnL()
	s.Require().NoError(err)
	s.InDelta(10.0, total, 1e-9)
}

func (s *StoreTestSuite) TestEventsFilterByType() {
	s.Require().NoError(s.store.Event().Append(types.EventOpen, "BTC/USDT", "opened"))
	s.Require().NoError(s.store.Event().Append(types.EventCritical, "ETH/USDT", "ghost position"))
	s.Require().NoError(s.store.Event().Append(types.EventOpen, "SOL/USDT", "opened"))

	all, err := s.store.Event().Recent(10, "")
	s.Require().NoError(err)
	s.Len(all, 3)

	opens, err := s.store.Event().Recent(10, types.EventOpen)
	s.Require().NoError(err)
	s.Len(opens, 2)
}

func (s *StoreTestSuite) TestSettingsDefaultsSeedOnce() {
	defaults := map[string]string{"LEVERAGE": "10", "LIVE_TRADING": "false"}

	added, err := s.store.Settings().EnsureDefaults(defaults)
	s.Require().NoError(err)
	s.Equal(2, added)

	// Operator change survives a reseed.
	s.Require().NoError(s.store.Settings().Set("LEVERAGE", "20"))
	added, err = s.store.Settings().EnsureDefaults(defaults)
	s.Require().NoError(err)
	s.Equal(0, added)

	v, err := s.store.Settings().Get("LEVERAGE")
	s.Require().NoError(err)
	s.Equal("20", v)

	missing, err := s.store.Settings().Get("NO_SUCH_KEY")
	s.Require().NoError(err)
	s.Equal("", missing)
}

func (s *StoreTestSuite) TestCandidateReplaceAll() {
	first := []*types.Candidate{
		{Symbol: "BTC/USDT", Price: 100, RSI: 35, ADX: 22, Sources: []string{"Whitelist"}},
		{Symbol: "ETH/USDT", Price: 50, RSI: 70, ADX: 30, Sources: []string{"Top Gainers", "Volume Spike (5.2x)"}},
	}
	s.Require().NoError(s.store.Candidate().ReplaceAll(first))

	got, err := s.store.Candidate().All()
	s.Require().NoError(err)
	s.Len(got, 2)
	s.Equal([]string{"Top Gainers", "Volume Spike (5.2x)"}, got[1].Sources)

	// A new scan wipes the previous snapshot.
	s.Require().NoError(s.store.Candidate().ReplaceAll([]*types.Candidate{
		{Symbol: "SOL/USDT", Price: 20, RSI: 30, ADX: 25, Sources: []string{"Social Trending"}},
	}))
	got, err = s.store.Candidate().All()
	s.Require().NoError(err)
	s.Len(got, 1)
	s.Equal("SOL/USDT", got[0].Symbol)

	c, err := s.store.Candidate().Get("SOL/USDT")
	s.Require().NoError(err)
	s.Require().NotNil(c)
	s.InDelta(20.0, c.Price, 1e-9)

	none, err := s.store.Candidate().Get("BTC/USDT")
	s.Require().NoError(err)
	s.Nil(none)
}

func (s *StoreTestSuite) TestPresets() {
	s.Require().NoError(s.store.Preset().Save("conservative", `{"RISK_PER_TRADE_PERCENT":"1"}`))
	s.Require().NoError(s.store.Preset().Save("aggressive", `{"RISK_PER_TRADE_PERCENT":"5"}`))
	s.Require().NoError(s.store.Preset().Save("conservative", `{"RISK_PER_TRADE_PERCENT":"2"}`))

	body, err := s.store.Preset().Get("conservative")
	s.Require().NoError(err)
	s.Contains(body, `"2"`)

	list, err := s.store.Preset().List()
	s.Require().NoError(err)
	s.Len(list, 2)
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}
