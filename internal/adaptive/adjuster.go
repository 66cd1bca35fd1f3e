package adaptive

import (
	"math"

	"strategy-engine/internal/indicator"
	"strategy-engine/internal/market"
	"strategy-engine/internal/regime"
	"strategy-engine/pkg/db"
)

// Params are the effective thresholds a strategy is evaluated against on the
// current candle. They are recomputed every tick from the base config.
type Params struct {
	RSIOverbought     float64
	RSIOversold       float64
	VolumeMultiplier  float64
	StopLossPercent   float64
	TakeProfitPercent float64
}

// Hard bounds. The adjuster never emits a value outside these ranges
// regardless of input magnitude.
const (
	rsiOverboughtMin = 60
	rsiOverboughtMax = 90
	rsiOversoldMin   = 10
	rsiOversoldMax   = 40
	volumeMultMin    = 0.5
	volumeMultMax    = 3.0
	stopLossMin      = 0.5
	stopLossMax      = 10.0
	takeProfitMin    = 1.0
	takeProfitMax    = 20.0
)

// Adjust recomputes effective thresholds for the current candle. It is a
// pure function of (window, base config, regime).
func Adjust(candles []market.Candle, base db.Strategy, reg regime.Regime) Params {
	p := Params{
		RSIOverbought:     base.RSIOverbought,
		RSIOversold:       base.RSIOversold,
		VolumeMultiplier:  base.VolumeMultiplier,
		StopLossPercent:   base.StopLossPercent,
		TakeProfitPercent: base.TakeProfitPercent,
	}

	if len(candles) > 0 {
		closes := market.Closes(candles)
		price := closes[len(closes)-1]

		adjustRSIBands(&p, closes, base.RSIPeriod)
		adjustVolume(&p, market.Volumes(candles))
		adjustStops(&p, candles, closes, price)
	}

	applyRegimeOverlay(&p, reg)

	p.RSIOverbought = clamp(p.RSIOverbought, rsiOverboughtMin, rsiOverboughtMax)
	p.RSIOversold = clamp(p.RSIOversold, rsiOversoldMin, rsiOversoldMax)
	p.VolumeMultiplier = clamp(p.VolumeMultiplier, volumeMultMin, volumeMultMax)
	p.StopLossPercent = clamp(p.StopLossPercent, stopLossMin, stopLossMax)
	p.TakeProfitPercent = clamp(p.TakeProfitPercent, takeProfitMin, takeProfitMax)
	return p
}

// adjustRSIBands widens or narrows the bands with 20-tick RSI dispersion and
// nudges them when the market is already at an extreme.
func adjustRSIBands(p *Params, closes []float64, rsiPeriod int) {
	rsiSeries := indicator.RSI(closes, rsiPeriod)
	if len(rsiSeries) == 0 {
		return
	}

	window := rsiSeries
	if len(window) > 20 {
		window = window[len(window)-20:]
	}
	dispersion := 0.0
	for _, v := range window {
		dispersion += math.Abs(v - 50)
	}
	dispersion /= float64(len(window))

	switch {
	case dispersion > 15:
		p.RSIOverbought += 5
		p.RSIOversold -= 5
	case dispersion < 8:
		p.RSIOverbought -= 5
		p.RSIOversold += 5
	}

	current := window[len(window)-1]
	if current >= p.RSIOverbought {
		p.RSIOverbought *= 1.05
	}
	if current <= p.RSIOversold {
		p.RSIOversold *= 0.95
	}
}

// adjustVolume scales the requirement down in heavy volume and up in thin
// volume.
func adjustVolume(p *Params, volumes []float64) {
	avg := indicator.SMA(volumes, 20)
	if avg <= 0 {
		return
	}
	ratio := volumes[len(volumes)-1] / avg
	switch {
	case ratio > 2:
		p.VolumeMultiplier *= 0.8
	case ratio < 0.5:
		p.VolumeMultiplier *= 1.5
	}
}

// adjustStops derives ATR-implied stop distances, then widens or tightens
// both stops with trend strength.
func adjustStops(p *Params, candles []market.Candle, closes []float64, price float64) {
	if price <= 0 {
		return
	}

	atr := indicator.Last(indicator.ATR(candles, 14), 0)
	if atr > 0 {
		atrPct := atr / price * 100
		p.StopLossPercent = math.Max(p.StopLossPercent, atrPct)
		p.TakeProfitPercent = math.Max(p.TakeProfitPercent, 2*atrPct)
	}

	ema20 := indicator.Last(indicator.EMA(closes, 20), 0)
	ema50 := indicator.Last(indicator.EMA(closes, 50), 0)
	if ema20 == 0 || ema50 == 0 {
		return
	}
	trendStrength := math.Abs(ema20-ema50) / price * 100

	switch {
	case trendStrength > 2:
		p.StopLossPercent *= 1.2
		p.TakeProfitPercent *= 1.3
	case trendStrength < 0.5:
		p.StopLossPercent *= 0.8
		p.TakeProfitPercent *= 0.8
	}
}

// applyRegimeOverlay is the last rule so regime context modulates everything
// computed above.
func applyRegimeOverlay(p *Params, reg regime.Regime) {
	switch reg.Kind {
	case regime.Trending:
		p.VolumeMultiplier *= 0.9
		p.TakeProfitPercent *= 1.2
	case regime.Ranging:
		p.StopLossPercent *= 0.8
		p.TakeProfitPercent *= 0.8
	case regime.Volatile:
		p.StopLossPercent *= 1.5
		p.VolumeMultiplier *= 1.3
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
