package strategy

import (
	"strategy-engine/internal/indicator"
	"strategy-engine/internal/market"
	"strategy-engine/pkg/db"
)

// volumeBaseline is the lookback for the average volume used by
// volume_ratio.
const volumeBaseline = 20

// seriesValue holds the last two points of one indicator series.
type seriesValue struct {
	cur     float64
	prev    float64
	hasPrev bool
	ok      bool
}

// Snapshot holds the indicator values for the latest candle of a window,
// plus the previous candle's values for cross operators.
type Snapshot struct {
	values map[IndicatorKind]seriesValue
}

// Value returns the current value of an indicator, false when the window
// was too short to compute it.
func (s Snapshot) Value(kind IndicatorKind) (float64, bool) {
	v, found := s.values[kind]
	if !found || !v.ok {
		return 0, false
	}
	return v.cur, true
}

// Previous returns the indicator value one candle back.
func (s Snapshot) Previous(kind IndicatorKind) (float64, bool) {
	v, found := s.values[kind]
	if !found || !v.hasPrev {
		return 0, false
	}
	return v.prev, true
}

func fromSeries(series []float64) seriesValue {
	v := seriesValue{}
	if len(series) == 0 {
		return v
	}
	v.ok = true
	v.cur = series[len(series)-1]
	if len(series) >= 2 {
		v.hasPrev = true
		v.prev = series[len(series)-2]
	}
	return v
}

// BuildSnapshot computes every condition-addressable indicator over the
// window using the strategy's configured periods. Missing history leaves
// the affected indicators unset rather than failing the whole snapshot.
func BuildSnapshot(candles []market.Candle, base db.Strategy) Snapshot {
	snap := Snapshot{values: make(map[IndicatorKind]seriesValue, 7)}
	if len(candles) == 0 {
		return snap
	}

	closes := market.Closes(candles)
	volumes := market.Volumes(candles)

	snap.values[IndRSI] = fromSeries(indicator.RSI(closes, base.RSIPeriod))
	snap.values[IndEMAFast] = fromSeries(indicator.EMA(closes, base.EMAFastPeriod))
	snap.values[IndEMASlow] = fromSeries(indicator.EMA(closes, base.EMASlowPeriod))
	snap.values[IndADX] = fromSeries(indicator.ADX(candles, base.ADXPeriod))
	snap.values[IndATR] = fromSeries(indicator.ATR(candles, base.ATRPeriod))
	snap.values[IndPrice] = fromSeries(closes)

	snap.values[IndVolumeRatio] = volumeRatioSeries(volumes)
	return snap
}

// volumeRatioSeries computes current volume relative to the trailing
// average. The baseline excludes the candle being measured.
func volumeRatioSeries(volumes []float64) seriesValue {
	v := seriesValue{}
	ratioAt := func(idx int) (float64, bool) {
		if idx < volumeBaseline {
			return 0, false
		}
		avg := indicator.SMA(volumes[idx-volumeBaseline:idx], volumeBaseline)
		if avg <= 0 {
			return 0, false
		}
		return volumes[idx] / avg, true
	}

	last := len(volumes) - 1
	if last < 0 {
		return v
	}
	if cur, ok := ratioAt(last); ok {
		v.ok = true
		v.cur = cur
	}
	if prev, ok := ratioAt(last - 1); ok && v.ok {
		v.hasPrev = true
		v.prev = prev
	}
	return v
}
