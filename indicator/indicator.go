// Package indicator computes the technical indicators the agent filters and
// prompts with. All smoothed indicators (RSI, ATR, ADX) use Wilder smoothing.
// Functions never return NaN or Inf: short input reports
// types.ErrInsufficientData, a degenerate result types.ErrIndicatorNaN.
package indicator

import (
	"fmt"
	"math"

	"tradepulse/types"
)

// Default periods used by Snapshot and the scanner pre-filter.
const (
	RSIPeriod       = 14
	ADXPeriod       = 14
	ATRPeriod       = 14
	BollingerPeriod = 20
	BollingerMult   = 2.0
	MACDFast        = 12
	MACDSlow        = 26
	MACDSignal      = 9
	StochKPeriod    = 14
	StochKSmooth    = 3
	StochDPeriod    = 3
	EMAShortPeriod  = 20
	EMALongPeriod   = 50
)

// ============================================================
// Moving averages
// ============================================================

// SMA returns the simple moving average of the last period values.
func SMA(values []float64, period int) (float64, error) {
	if period <= 0 || len(values) < period {
		return 0, fmt.Errorf("sma(%d) needs %d values, have %d: %w", period, period, len(values), types.ErrInsufficientData)
	}
	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return checkFinite(sum / float64(period))
}

// EMA returns the exponential moving average over the full series, seeded
// with the SMA of the first period values.
func EMA(values []float64, period int) (float64, error) {
	series, err := emaSeries(values, period)
	if err != nil {
		return 0, err
	}
	return checkFinite(series[len(series)-1])
}

// emaSeries returns EMA values aligned so series[0] covers values[0:period].
func emaSeries(values []float64, period int) ([]float64, error) {
	if period <= 0 || len(values) < period {
		return nil, fmt.Errorf("ema(%d) needs %d values, have %d: %w", period, period, len(values), types.ErrInsufficientData)
	}
	seed := 0.0
	for _, v := range values[:period] {
		seed += v
	}
	seed /= float64(period)

	mult := 2.0 / float64(period+1)
	out := make([]float64, 0, len(values)-period+1)
	out = append(out, seed)
	ema := seed
	for _, v := range values[period:] {
		ema = v*mult + ema*(1-mult)
		out = append(out, ema)
	}
	return out, nil
}

// ============================================================
// RSI (Wilder)
// ============================================================

// RSI returns the Wilder relative strength index. The first period deltas
// seed the averages with simple means, later deltas fold in recursively.
// An all-gain window returns 100, an all-loss window 0.
func RSI(closes []float64, period int) (float64, error) {
	if period <= 0 || len(closes) < period+1 {
		return 0, fmt.Errorf("rsi(%d) needs %d closes, have %d: %w", period, period+1, len(closes), types.ErrInsufficientData)
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss += -change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		if avgGain == 0 {
			return 50, nil
		}
		return 100, nil
	}
	if avgGain == 0 {
		return 0, nil
	}
	rs := avgGain / avgLoss
	return checkFinite(100 - 100/(1+rs))
}

// ============================================================
// ATR / ADX (Wilder)
// ============================================================

// ATR returns the Wilder average true range.
func ATR(highs, lows, closes []float64, period int) (float64, error) {
	n := len(closes)
	if period <= 0 || n < period+1 || len(highs) != n || len(lows) != n {
		return 0, fmt.Errorf("atr(%d) needs %d bars, have %d: %w", period, period+1, n, types.ErrInsufficientData)
	}

	trs := trueRanges(highs, lows, closes)
	atr := 0.0
	for _, tr := range trs[:period] {
		atr += tr
	}
	atr /= float64(period)
	for _, tr := range trs[period:] {
		atr = (atr*float64(period-1) + tr) / float64(period)
	}
	return checkFinite(atr)
}

// ADX returns the Wilder average directional index. Directional movement
// and true range are Wilder-smoothed into DI+/DI-, the DX series is then
// Wilder-smoothed again into ADX.
func ADX(highs, lows, closes []float64, period int) (float64, error) {
	n := len(closes)
	if period <= 0 || n < 2*period || len(highs) != n || len(lows) != n {
		return 0, fmt.Errorf("adx(%d) needs %d bars, have %d: %w", period, 2*period, n, types.ErrInsufficientData)
	}

	m := n - 1
	trs := trueRanges(highs, lows, closes)
	plusDM := make([]float64, m)
	minusDM := make([]float64, m)
	for i := 1; i < n; i++ {
		up := highs[i] - highs[i-1]
		down := lows[i-1] - lows[i]
		if up > down && up > 0 {
			plusDM[i-1] = up
		}
		if down > up && down > 0 {
			minusDM[i-1] = down
		}
	}

	var smTR, smPlus, smMinus float64
	for i := 0; i < period; i++ {
		smTR += trs[i]
		smPlus += plusDM[i]
		smMinus += minusDM[i]
	}

	dx := func() float64 {
		if smTR == 0 {
			return 0
		}
		plusDI := 100 * smPlus / smTR
		minusDI := 100 * smMinus / smTR
		if plusDI+minusDI == 0 {
			return 0
		}
		return 100 * math.Abs(plusDI-minusDI) / (plusDI + minusDI)
	}

	dxs := make([]float64, 0, m-period+1)
	dxs = append(dxs, dx())
	for i := period; i < m; i++ {
		smTR = smTR - smTR/float64(period) + trs[i]
		smPlus = smPlus - smPlus/float64(period) + plusDM[i]
		smMinus = smMinus - smMinus/float64(period) + minusDM[i]
		dxs = append(dxs, dx())
	}

	adx := 0.0
	for _, d := range dxs[:period] {
		adx += d
	}
	adx /= float64(period)
	for _, d := range dxs[period:] {
		adx = (adx*float64(period-1) + d) / float64(period)
	}
	return checkFinite(adx)
}

func trueRanges(highs, lows, closes []float64) []float64 {
	trs := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		tr := highs[i] - lows[i]
		if hc := math.Abs(highs[i] - closes[i-1]); hc > tr {
			tr = hc
		}
		if lc := math.Abs(lows[i] - closes[i-1]); lc > tr {
			tr = lc
		}
		trs[i-1] = tr
	}
	return trs
}

// ============================================================
// Bollinger bands
// ============================================================

// Bands holds Bollinger band levels.
type Bands struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

// Bollinger returns bands at middle ± mult standard deviations.
func Bollinger(closes []float64, period int, mult float64) (Bands, error) {
	middle, err := SMA(closes, period)
	if err != nil {
		return Bands{}, err
	}
	variance := 0.0
	for _, c := range closes[len(closes)-period:] {
		d := c - middle
		variance += d * d
	}
	std := math.Sqrt(variance / float64(period))
	return Bands{
		Upper:  middle + std*mult,
		Middle: middle,
		Lower:  middle - std*mult,
	}, nil
}

// ============================================================
// MACD
// ============================================================

// MACDResult holds the MACD line, its signal EMA and the histogram.
type MACDResult struct {
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// MACD returns fast EMA minus slow EMA with a real signal line: the EMA of
// the MACD series itself, not an approximation of it.
func MACD(closes []float64, fast, slow, signal int) (MACDResult, error) {
	if fast <= 0 || slow <= fast || signal <= 0 || len(closes) < slow+signal {
		return MACDResult{}, fmt.Errorf("macd(%d,%d,%d) needs %d closes, have %d: %w",
			fast, slow, signal, slow+signal, len(closes), types.ErrInsufficientData)
	}

	fastSeries, err := emaSeries(closes, fast)
	if err != nil {
		return MACDResult{}, err
	}
	slowSeries, err := emaSeries(closes, slow)
	if err != nil {
		return MACDResult{}, err
	}

	// Align: slowSeries[0] covers closes[0:slow]; the matching fast value
	// sits slow-fast entries in.
	offset := slow - fast
	macdSeries := make([]float64, len(slowSeries))
	for i := range slowSeries {
		macdSeries[i] = fastSeries[i+offset] - slowSeries[i]
	}

	signalSeries, err := emaSeries(macdSeries, signal)
	if err != nil {
		return MACDResult{}, err
	}

	macd := macdSeries[len(macdSeries)-1]
	sig := signalSeries[len(signalSeries)-1]
	if _, err := checkFinite(macd); err != nil {
		return MACDResult{}, err
	}
	return MACDResult{MACD: macd, Signal: sig, Histogram: macd - sig}, nil
}

// ============================================================
// Stochastic oscillator
// ============================================================

// StochResult holds smoothed %K and %D.
type StochResult struct {
	K float64 `json:"k"`
	D float64 `json:"d"`
}

// Stochastic returns the slow stochastic: raw %K over kPeriod, smoothed by
// an SMA of kSmooth, with %D an SMA of dPeriod over the smoothed %K.
// A flat window (high == low) reads as neutral 50.
func Stochastic(highs, lows, closes []float64, kPeriod, kSmooth, dPeriod int) (StochResult, error) {
	n := len(closes)
	need := kPeriod + kSmooth + dPeriod - 2
	if kPeriod <= 0 || kSmooth <= 0 || dPeriod <= 0 || n < need || len(highs) != n || len(lows) != n {
		return StochResult{}, fmt.Errorf("stoch(%d,%d,%d) needs %d bars, have %d: %w",
			kPeriod, kSmooth, dPeriod, need, n, types.ErrInsufficientData)
	}

	rawCount := kSmooth + dPeriod - 1
	raw := make([]float64, rawCount)
	for j := 0; j < rawCount; j++ {
		end := n - rawCount + 1 + j
		hi, lo := highs[end-kPeriod], lows[end-kPeriod]
		for i := end - kPeriod + 1; i < end; i++ {
			if highs[i] > hi {
				hi = highs[i]
			}
			if lows[i] < lo {
				lo = lows[i]
			}
		}
		if hi == lo {
			raw[j] = 50
			continue
		}
		raw[j] = (closes[end-1] - lo) / (hi - lo) * 100
	}

	smooth := make([]float64, dPeriod)
	for j := 0; j < dPeriod; j++ {
		sum := 0.0
		for _, v := range raw[j : j+kSmooth] {
			sum += v
		}
		smooth[j] = sum / float64(kSmooth)
	}

	d := 0.0
	for _, v := range smooth {
		d += v
	}
	d /= float64(dPeriod)

	return StochResult{K: smooth[dPeriod-1], D: d}, nil
}

// ============================================================
// Volume
// ============================================================

// VolumeEMA returns the EMA of the volume series.
func VolumeEMA(volumes []float64, period int) (float64, error) {
	return EMA(volumes, period)
}

func checkFinite(v float64) (float64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, types.ErrIndicatorNaN
	}
	return v, nil
}
