package regime

import (
	"math"

	"strategy-engine/internal/indicator"
	"strategy-engine/internal/market"
)

// Kind is a coarse classification of market behavior.
type Kind string

// Direction labels the dominant price direction.
type Direction string

const (
	Trending Kind = "trending"
	Ranging  Kind = "ranging"
	Volatile Kind = "volatile"

	Up       Direction = "up"
	Down     Direction = "down"
	Sideways Direction = "sideways"
)

// Regime is derived per evaluation and never cached across ticks: it is a
// function of the candle window.
type Regime struct {
	Kind       Kind
	Strength   float64 // 0-100
	Direction  Direction
	Confidence float64 // 0-100
}

// minWindow is the smallest candle window the classifier trusts.
const minWindow = 50

// Default is the deliberately low-confidence answer for short windows.
func Default() Regime {
	return Regime{Kind: Ranging, Strength: 50, Direction: Sideways, Confidence: 30}
}

// Classify labels the market from a candle window. Trend strength dominates
// volatility when both are elevated; the ordering is a deliberate tie-break.
func Classify(candles []market.Candle) Regime {
	if len(candles) < minWindow {
		return Default()
	}

	closes := market.Closes(candles)
	adx := indicator.Last(indicator.ADX(candles, 14), 0)
	ema20 := indicator.Last(indicator.EMA(closes, 20), 0)
	ema50 := indicator.Last(indicator.EMA(closes, 50), 0)

	atrSeries := indicator.ATR(candles, 14)
	currentATR := indicator.Last(atrSeries, 0)
	avgATR := indicator.SMA(atrSeries, 20)

	volatilityRatio := 0.0
	if avgATR > 0 {
		volatilityRatio = currentATR / avgATR
	}

	switch {
	case adx > 25:
		strength := math.Min(adx, 100)
		direction := Down
		if ema20 > ema50 {
			direction = Up
		}
		return Regime{Kind: Trending, Strength: strength, Direction: direction, Confidence: strength}

	case volatilityRatio > 1.5:
		return Regime{
			Kind:       Volatile,
			Strength:   math.Min(volatilityRatio*50, 100),
			Direction:  Sideways,
			Confidence: math.Min(volatilityRatio*30, 80),
		}

	default:
		return Regime{
			Kind:       Ranging,
			Strength:   math.Min(adx, 100),
			Direction:  Sideways,
			Confidence: math.Min(100-adx, 90),
		}
	}
}
