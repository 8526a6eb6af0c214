package settings

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"tradepulse/store"
)

type SettingsTestSuite struct {
	suite.Suite

	store   *store.Store
	service *Service
}

func (s *SettingsTestSuite) SetupTest() {
	st, err := store.New(filepath.Join(s.T().TempDir(), "test.db"))
	s.Require().NoError(err)
	s.store = st

	svc, err := New(st.Settings())
	s.Require().NoError(err)
	s.service = svc
}

func (s *SettingsTestSuite) TearDownTest() {
	if s.store != nil {
		s.store.Close()
	}
}

func (s *SettingsTestSuite) TestDefaultsSeeded() {
	s.Equal(10, s.service.Int(KeyLeverage))
	s.False(s.service.Bool(KeyLiveTrading))
	s.InDelta(2.0, s.service.Float(KeyATRMultiplierSL), 1e-9)
	s.Equal([]string{"BTC", "ETH", "SOL"}, s.service.List(KeyScanWhitelist))
	s.Equal("LIMIT", s.service.Str(KeyDefaultOrderType))
	s.Equal([]string{"SHIB", "PEPE", "MEME", "DOGE"}, s.service.List(KeyScanBlacklist))
	s.True(s.service.Bool(KeyScanUseGainersLosers))
	s.True(s.service.Bool(KeyScanUseVolumeSpike))
}

func (s *SettingsTestSuite) TestUpdateValidation() {
	tests := []struct {
		name    string
		changes map[string]string
		wantErr bool
	}{
		{"valid int", map[string]string{KeyLeverage: "20"}, false},
		{"valid bool", map[string]string{KeyLiveTrading: "true"}, false},
		{"valid list", map[string]string{KeyScanWhitelist: `["BTC"]`}, false},
		{"unknown key", map[string]string{"NOT_A_KEY": "1"}, true},
		{"int gets word", map[string]string{KeyLeverage: "ten"}, true},
		{"bool gets number", map[string]string{KeyLiveTrading: "2"}, true},
		{"list gets scalar", map[string]string{KeyScanWhitelist: "BTC"}, true},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.service.Update(tt.changes)
			if tt.wantErr {
				s.Error(err)
			} else {
				s.NoError(err)
			}
		})
	}
}

func (s *SettingsTestSuite) TestUpdateReturnsChangedSubset() {
	applied, err := s.service.Update(map[string]string{
		KeyLeverage:    "10", // same as default, no-op
		KeyScanEnabled: "true",
	})
	s.Require().NoError(err)
	s.Len(applied, 1)
	s.Equal("true", applied[KeyScanEnabled])

	// Persisted, not just cached.
	v, err := s.store.Settings().Get(KeyScanEnabled)
	s.Require().NoError(err)
	s.Equal("true", v)
}

func (s *SettingsTestSuite) TestSnapshotReflectsUpdates() {
	snap := s.service.Snapshot()
	s.False(snap.LiveTrading)
	s.Equal(5, snap.MaxConcurrentTrades)
	s.InDelta(10000.0, snap.VirtualBalance, 1e-9)
	s.InDelta(-2.0, snap.BailoutArmLossPercent, 1e-9)
	s.Equal("4h", snap.MTATrendTimeframe)

	_, err := s.service.Update(map[string]string{
		KeyMaxConcurrentTrades: "3",
		KeyUsePartialTP:        "false",
	})
	s.Require().NoError(err)

	snap = s.service.Snapshot()
	s.Equal(3, snap.MaxConcurrentTrades)
	s.False(snap.UsePartialTP)
	s.True(snap.UseTrailingStop)
}

func TestSettingsTestSuite(t *testing.T) {
	suite.Run(t, new(SettingsTestSuite))
}
