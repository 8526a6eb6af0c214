package indicator

import (
	"fmt"

	"tradepulse/types"
)

// Snapshot is the full indicator set for one symbol and timeframe, the
// input to prompt building and the scanner pre-filter.
type Snapshot struct {
	Price      float64     `json:"price"`
	RSI        float64     `json:"rsi"`
	ADX        float64     `json:"adx"`
	ATR        float64     `json:"atr"`
	ATRPercent float64     `json:"atr_percent"`
	SMA20      float64     `json:"sma20"`
	EMA20      float64     `json:"ema20"`
	EMA50      float64     `json:"ema50"`
	Bands      Bands       `json:"bollinger"`
	MACD       MACDResult  `json:"macd"`
	Stoch      StochResult `json:"stochastic"`
	LastVolume float64     `json:"last_volume"`
	VolumeEMA  float64     `json:"volume_ema"`
}

// VolumeRatio returns last volume over its EMA, 0 when the EMA is zero.
func (s Snapshot) VolumeRatio() float64 {
	if s.VolumeEMA == 0 {
		return 0
	}
	return s.LastVolume / s.VolumeEMA
}

// Build computes a Snapshot from cleaned bars. volumePeriod sets the volume
// EMA window; everything else uses the package default periods.
func Build(bars []types.Bar, volumePeriod int) (Snapshot, error) {
	if volumePeriod <= 0 {
		volumePeriod = EMAShortPeriod
	}
	need := EMALongPeriod
	if n := MACDSlow + MACDSignal; n > need {
		need = n
	}
	if len(bars) < need {
		return Snapshot{}, fmt.Errorf("snapshot needs %d bars, have %d: %w", need, len(bars), types.ErrInsufficientData)
	}

	highs, lows, closes, volumes := Split(bars)

	var snap Snapshot
	var err error
	snap.Price = closes[len(closes)-1]
	snap.LastVolume = volumes[len(volumes)-1]

	if snap.RSI, err = RSI(closes, RSIPeriod); err != nil {
		return Snapshot{}, fmt.Errorf("rsi: %w", err)
	}
	if snap.ADX, err = ADX(highs, lows, closes, ADXPeriod); err != nil {
		return Snapshot{}, fmt.Errorf("adx: %w", err)
	}
	if snap.ATR, err = ATR(highs, lows, closes, ATRPeriod); err != nil {
		return Snapshot{}, fmt.Errorf("atr: %w", err)
	}
	if snap.Price > 0 {
		snap.ATRPercent = snap.ATR / snap.Price * 100
	}
	if snap.SMA20, err = SMA(closes, BollingerPeriod); err != nil {
		return Snapshot{}, fmt.Errorf("sma: %w", err)
	}
	if snap.EMA20, err = EMA(closes, EMAShortPeriod); err != nil {
		return Snapshot{}, fmt.Errorf("ema20: %w", err)
	}
	if snap.EMA50, err = EMA(closes, EMALongPeriod); err != nil {
		return Snapshot{}, fmt.Errorf("ema50: %w", err)
	}
	if snap.Bands, err = Bollinger(closes, BollingerPeriod, BollingerMult); err != nil {
		return Snapshot{}, fmt.Errorf("bollinger: %w", err)
	}
	if snap.MACD, err = MACD(closes, MACDFast, MACDSlow, MACDSignal); err != nil {
		return Snapshot{}, fmt.Errorf("macd: %w", err)
	}
	if snap.Stoch, err = Stochastic(highs, lows, closes, StochKPeriod, StochKSmooth, StochDPeriod); err != nil {
		return Snapshot{}, fmt.Errorf("stochastic: %w", err)
	}
	if snap.VolumeEMA, err = VolumeEMA(volumes, volumePeriod); err != nil {
		return Snapshot{}, fmt.Errorf("volume ema: %w", err)
	}
	return snap, nil
}

// Split breaks bars into the per-field slices the indicator functions take.
func Split(bars []types.Bar) (highs, lows, closes, volumes []float64) {
	highs = make([]float64, len(bars))
	lows = make([]float64, len(bars))
	closes = make([]float64, len(bars))
	volumes = make([]float64, len(bars))
	for i, b := range bars {
		highs[i] = b.High
		lows[i] = b.Low
		closes[i] = b.Close
		volumes[i] = b.Volume
	}
	return highs, lows, closes, volumes
}
