package indicator

import (
	"math"

	"strategy-engine/internal/market"
)

// ADX computes the Average Directional Index: directional movement from
// consecutive high/low deltas, EMA-smoothed into DI+/DI-, combined into DX
// and EMA-smoothed again. Fewer than about three periods of candles yield an
// empty series.
func ADX(candles []market.Candle, period int) []float64 {
	if period <= 0 || len(candles) < period+1 {
		return nil
	}

	n := len(candles) - 1
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < len(candles); i++ {
		upMove := candles[i].High - candles[i-1].High
		downMove := candles[i-1].Low - candles[i].Low
		if upMove > downMove && upMove > 0 {
			plusDM[i-1] = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM[i-1] = downMove
		}
	}

	tr := TrueRange(candles)[1:]

	smPlus := EMA(plusDM, period)
	smMinus := EMA(minusDM, period)
	smTR := EMA(tr, period)

	dx := make([]float64, len(smTR))
	for i := range smTR {
		if smTR[i] == 0 {
			continue
		}
		diPlus := 100 * smPlus[i] / smTR[i]
		diMinus := 100 * smMinus[i] / smTR[i]
		sum := diPlus + diMinus
		if sum == 0 {
			continue
		}
		dx[i] = 100 * math.Abs(diPlus-diMinus) / sum
	}

	return EMA(dx, period)
}
