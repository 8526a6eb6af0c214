package indicator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradepulse/types"
)

func TestSMA(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}

	got, err := SMA(values, 5)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, got, 1e-9)

	got, err = SMA(values, 2)
	require.NoError(t, err)
	assert.InDelta(t, 4.5, got, 1e-9)

	_, err = SMA(values, 6)
	assert.ErrorIs(t, err, types.ErrInsufficientData)
}

func TestEMA(t *testing.T) {
	// Seed SMA(1,2,3)=2, multiplier 0.5: 4 -> 3, 5 -> 4.
	got, err := EMA([]float64{1, 2, 3, 4, 5}, 3)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, got, 1e-9)

	_, err = EMA([]float64{1, 2}, 3)
	assert.ErrorIs(t, err, types.ErrInsufficientData)
}

func TestRSI(t *testing.T) {
	t.Run("hand computed", func(t *testing.T) {
		// Deltas +1 +1 -1 +2, seed over first 3: avgGain 2/3, avgLoss 1/3.
		// Folding +2: avgGain 10/9, avgLoss 2/9, RS 5, RSI 100-100/6.
		got, err := RSI([]float64{10, 11, 12, 11, 13}, 3)
		require.NoError(t, err)
		assert.InDelta(t, 100-100.0/6, got, 1e-9)
	})

	t.Run("all gains", func(t *testing.T) {
		closes := make([]float64, 20)
		for i := range closes {
			closes[i] = float64(i + 1)
		}
		got, err := RSI(closes, 14)
		require.NoError(t, err)
		assert.InDelta(t, 100.0, got, 1e-9)
	})

	t.Run("all losses", func(t *testing.T) {
		closes := make([]float64, 20)
		for i := range closes {
			closes[i] = float64(100 - i)
		}
		got, err := RSI(closes, 14)
		require.NoError(t, err)
		assert.InDelta(t, 0.0, got, 1e-9)
	})

	t.Run("flat is neutral", func(t *testing.T) {
		closes := []float64{5, 5, 5, 5, 5, 5}
		got, err := RSI(closes, 3)
		require.NoError(t, err)
		assert.InDelta(t, 50.0, got, 1e-9)
	})

	t.Run("too short", func(t *testing.T) {
		_, err := RSI([]float64{1, 2, 3}, 14)
		assert.ErrorIs(t, err, types.ErrInsufficientData)
	})
}

func TestATR(t *testing.T) {
	highs := []float64{12, 13, 12, 14}
	lows := []float64{10, 11, 10, 10}
	closes := []float64{11, 12, 11, 12}

	// True ranges 2, 2, 4 -> seed mean 8/3, no further bars.
	got, err := ATR(highs, lows, closes, 3)
	require.NoError(t, err)
	assert.InDelta(t, 8.0/3, got, 1e-9)

	_, err = ATR(highs[:3], lows[:3], closes[:3], 3)
	assert.ErrorIs(t, err, types.ErrInsufficientData)
}

func TestADX(t *testing.T) {
	t.Run("steady uptrend saturates", func(t *testing.T) {
		n := 2 * ADXPeriod
		highs := make([]float64, n)
		lows := make([]float64, n)
		closes := make([]float64, n)
		for i := 0; i < n; i++ {
			highs[i] = 10 + float64(i)
			lows[i] = 9 + float64(i)
			closes[i] = 9.5 + float64(i)
		}
		got, err := ADX(highs, lows, closes, ADXPeriod)
		require.NoError(t, err)
		assert.InDelta(t, 100.0, got, 1e-9)
	})

	t.Run("flat market reads zero", func(t *testing.T) {
		n := 2 * ADXPeriod
		highs := make([]float64, n)
		lows := make([]float64, n)
		closes := make([]float64, n)
		for i := 0; i < n; i++ {
			highs[i], lows[i], closes[i] = 11, 10, 10.5
		}
		got, err := ADX(highs, lows, closes, ADXPeriod)
		require.NoError(t, err)
		assert.InDelta(t, 0.0, got, 1e-9)
	})

	t.Run("too short", func(t *testing.T) {
		short := make([]float64, 2*ADXPeriod-1)
		_, err := ADX(short, short, short, ADXPeriod)
		assert.ErrorIs(t, err, types.ErrInsufficientData)
	})
}

func TestBollinger(t *testing.T) {
	bands, err := Bollinger([]float64{2, 4, 4, 2}, 4, 2)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, bands.Middle, 1e-9)
	assert.InDelta(t, 5.0, bands.Upper, 1e-9)
	assert.InDelta(t, 1.0, bands.Lower, 1e-9)

	flat, err := Bollinger([]float64{7, 7, 7, 7}, 4, 2)
	require.NoError(t, err)
	assert.InDelta(t, 7.0, flat.Upper, 1e-9)
	assert.InDelta(t, 7.0, flat.Lower, 1e-9)
}

func TestMACD(t *testing.T) {
	t.Run("constant series is zero", func(t *testing.T) {
		closes := make([]float64, 40)
		for i := range closes {
			closes[i] = 50
		}
		got, err := MACD(closes, MACDFast, MACDSlow, MACDSignal)
		require.NoError(t, err)
		assert.InDelta(t, 0.0, got.MACD, 1e-9)
		assert.InDelta(t, 0.0, got.Signal, 1e-9)
		assert.InDelta(t, 0.0, got.Histogram, 1e-9)
	})

	t.Run("uptrend is positive", func(t *testing.T) {
		closes := make([]float64, 60)
		for i := range closes {
			closes[i] = 100 + float64(i)*0.5
		}
		got, err := MACD(closes, MACDFast, MACDSlow, MACDSignal)
		require.NoError(t, err)
		assert.Greater(t, got.MACD, 0.0)
	})

	t.Run("too short", func(t *testing.T) {
		_, err := MACD(make([]float64, 30), MACDFast, MACDSlow, MACDSignal)
		assert.ErrorIs(t, err, types.ErrInsufficientData)
	})
}

func TestStochastic(t *testing.T) {
	t.Run("closing on highs pins K at 100", func(t *testing.T) {
		n := 20
		highs := make([]float64, n)
		lows := make([]float64, n)
		closes := make([]float64, n)
		for i := 0; i < n; i++ {
			highs[i] = float64(i + 10)
			lows[i] = highs[i] - 0.5
			closes[i] = highs[i]
		}
		got, err := Stochastic(highs, lows, closes, StochKPeriod, StochKSmooth, StochDPeriod)
		require.NoError(t, err)
		assert.InDelta(t, 100.0, got.K, 1e-9)
		assert.InDelta(t, 100.0, got.D, 1e-9)
	})

	t.Run("flat window is neutral", func(t *testing.T) {
		n := 20
		highs := make([]float64, n)
		lows := make([]float64, n)
		closes := make([]float64, n)
		for i := 0; i < n; i++ {
			highs[i], lows[i], closes[i] = 10, 10, 10
		}
		got, err := Stochastic(highs, lows, closes, StochKPeriod, StochKSmooth, StochDPeriod)
		require.NoError(t, err)
		assert.InDelta(t, 50.0, got.K, 1e-9)
	})

	t.Run("too short", func(t *testing.T) {
		short := make([]float64, 10)
		_, err := Stochastic(short, short, short, StochKPeriod, StochKSmooth, StochDPeriod)
		assert.ErrorIs(t, err, types.ErrInsufficientData)
	})
}

func TestSnapshot(t *testing.T) {
	bars := syntheticBars(120)

	snap, err := Build(bars, 20)
	require.NoError(t, err)

	assert.Equal(t, bars[len(bars)-1].Close, snap.Price)
	assert.GreaterOrEqual(t, snap.RSI, 0.0)
	assert.LessOrEqual(t, snap.RSI, 100.0)
	assert.Greater(t, snap.ATR, 0.0)
	assert.Greater(t, snap.ATRPercent, 0.0)
	assert.GreaterOrEqual(t, snap.Bands.Upper, snap.Bands.Middle)
	assert.GreaterOrEqual(t, snap.Bands.Middle, snap.Bands.Lower)
	assert.Greater(t, snap.VolumeEMA, 0.0)
	assert.Greater(t, snap.VolumeRatio(), 0.0)

	_, err = Build(bars[:30], 20)
	assert.ErrorIs(t, err, types.ErrInsufficientData)
}

// syntheticBars builds a deterministic wavy uptrend.
func syntheticBars(n int) []types.Bar {
	bars := make([]types.Bar, n)
	for i := 0; i < n; i++ {
		base := 100 + float64(i)*0.3 + 5*math.Sin(float64(i)/7)
		bars[i] = types.Bar{
			OpenTime:  int64(i) * 60_000,
			Open:      base - 0.2,
			High:      base + 1.0,
			Low:       base - 1.0,
			Close:     base,
			Volume:    1000 + 100*math.Sin(float64(i)/5),
			CloseTime: int64(i+1)*60_000 - 1,
		}
	}
	return bars
}
