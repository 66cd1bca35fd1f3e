package regime

import (
	"testing"
	"time"

	"strategy-engine/internal/market"
)

func candleRamp(n int, start, step, spread float64) []market.Candle {
	out := make([]market.Candle, n)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	price := start
	for i := range out {
		out[i] = market.Candle{
			Open: price, High: price + spread, Low: price - spread/4, Close: price + step,
			Volume:    1000,
			OpenTime:  base.Add(time.Duration(i) * time.Minute),
			CloseTime: base.Add(time.Duration(i+1) * time.Minute),
		}
		price += step
	}
	return out
}

func TestClassifyShortWindowDefault(t *testing.T) {
	got := Classify(candleRamp(20, 100, 1, 2))
	want := Default()
	if got != want {
		t.Fatalf("short window regime=%+v, expected default %+v", got, want)
	}
}

func TestClassifyUptrend(t *testing.T) {
	// A steady climb: ADX well above 25 and EMA20 above EMA50.
	got := Classify(candleRamp(100, 100, 2, 3))

	if got.Kind != Trending {
		t.Fatalf("regime=%s, expected trending", got.Kind)
	}
	if got.Direction != Up {
		t.Fatalf("direction=%s, expected up", got.Direction)
	}
	if got.Strength <= 25 || got.Strength > 100 {
		t.Fatalf("strength=%v out of expected range", got.Strength)
	}
	if got.Confidence != got.Strength {
		t.Fatalf("confidence=%v, expected to equal strength %v", got.Confidence, got.Strength)
	}
}

func TestClassifyDowntrendDirection(t *testing.T) {
	got := Classify(candleRamp(100, 500, -2, 3))
	if got.Kind != Trending {
		t.Fatalf("regime=%s, expected trending", got.Kind)
	}
	if got.Direction != Down {
		t.Fatalf("direction=%s, expected down", got.Direction)
	}
}

func TestClassifyFlatMarketRanges(t *testing.T) {
	// Alternating small moves around a flat level: weak ADX, stable ATR.
	out := make([]market.Candle, 100)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		price := 100.0
		if i%2 == 0 {
			price = 100.5
		}
		out[i] = market.Candle{
			Open: price, High: price + 0.5, Low: price - 0.5, Close: price,
			OpenTime:  base.Add(time.Duration(i) * time.Minute),
			CloseTime: base.Add(time.Duration(i+1) * time.Minute),
		}
	}

	got := Classify(out)
	if got.Kind != Ranging {
		t.Fatalf("regime=%s, expected ranging", got.Kind)
	}
	if got.Direction != Sideways {
		t.Fatalf("direction=%s, expected sideways", got.Direction)
	}
	if got.Confidence > 90 {
		t.Fatalf("confidence=%v, expected clamp at 90", got.Confidence)
	}
}
