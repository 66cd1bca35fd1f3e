package indicator

import (
	"math"

	"strategy-engine/internal/market"
)

// TrueRange computes the true-range series for a candle window. The first
// entry has no previous close and falls back to high-low.
func TrueRange(candles []market.Candle) []float64 {
	if len(candles) == 0 {
		return nil
	}
	out := make([]float64, len(candles))
	out[0] = candles[0].High - candles[0].Low
	for i := 1; i < len(candles); i++ {
		hl := candles[i].High - candles[i].Low
		hc := math.Abs(candles[i].High - candles[i-1].Close)
		lc := math.Abs(candles[i].Low - candles[i-1].Close)
		out[i] = math.Max(hl, math.Max(hc, lc))
	}
	return out
}

// ATR computes the Average True Range using Wilder's recursive smoothing,
// seeded by a simple average of the first period true ranges. Fewer than
// period candles yield an empty series; callers treat that as unreliable.
func ATR(candles []market.Candle, period int) []float64 {
	tr := TrueRange(candles)
	if period <= 0 || len(tr) < period {
		return nil
	}

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += tr[i]
	}

	out := make([]float64, 0, len(tr)-period+1)
	atr := sum / float64(period)
	out = append(out, atr)

	for i := period; i < len(tr); i++ {
		atr = (atr*float64(period-1) + tr[i]) / float64(period)
		out = append(out, atr)
	}
	return out
}
