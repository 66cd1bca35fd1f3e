package indicator

const rsiEpsilon = 1e-9

// RSI computes the Relative Strength Index with EMA-smoothed average gains
// and losses. The average loss is floored to a small epsilon so an all-gain
// window never divides by zero. The neutral default for short windows is the
// caller's responsibility (documented as RSI=50 where used).
func RSI(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period+1 {
		return nil
	}

	gains := make([]float64, len(values)-1)
	losses := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		change := values[i] - values[i-1]
		if change > 0 {
			gains[i-1] = change
		} else {
			losses[i-1] = -change
		}
	}

	avgGains := EMA(gains, period)
	avgLosses := EMA(losses, period)

	out := make([]float64, len(avgGains))
	for i := range avgGains {
		avgLoss := avgLosses[i]
		if avgLoss < rsiEpsilon {
			avgLoss = rsiEpsilon
		}
		rs := avgGains[i] / avgLoss
		out[i] = 100 - 100/(1+rs)
	}
	return out
}
