package market

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// MockSource generates synthetic random-walk candles for local development
// and dry runs. Windows are stable per (symbol, timeframe) so repeated calls
// within a run extend the same walk instead of re-rolling history.
type MockSource struct {
	StartPrice float64
	Step       float64

	mu    sync.Mutex
	walks map[string]*rand.Rand
}

func NewMockSource(startPrice, step float64) *MockSource {
	if startPrice == 0 {
		startPrice = 100.0
	}
	if step == 0 {
		step = 0.5
	}
	return &MockSource{
		StartPrice: startPrice,
		Step:       step,
		walks:      make(map[string]*rand.Rand),
	}
}

func (m *MockSource) Candles(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error) {
	m.mu.Lock()
	key := symbol + ":" + timeframe
	rng, ok := m.walks[key]
	if !ok {
		// Seed per series so a symbol's walk is stable within a run.
		seed := int64(0)
		for _, ch := range key {
			seed = seed*31 + int64(ch)
		}
		rng = rand.New(rand.NewSource(seed))
		m.walks[key] = rng
	}
	m.mu.Unlock()

	dur := TimeframeDuration(timeframe)
	end := time.Now().Truncate(dur)
	start := end.Add(-time.Duration(limit) * dur)

	candles := make([]Candle, 0, limit)
	price := m.StartPrice
	for i := 0; i < limit; i++ {
		open := price
		drift := (rng.Float64()*2 - 1) * m.Step
		price = open + drift
		high := open
		low := open
		if price > high {
			high = price
		}
		if price < low {
			low = price
		}
		high += rng.Float64() * m.Step / 2
		low -= rng.Float64() * m.Step / 2

		openTime := start.Add(time.Duration(i) * dur)
		candles = append(candles, Candle{
			Open:      open,
			High:      high,
			Low:       low,
			Close:     price,
			Volume:    1000 + rng.Float64()*500,
			OpenTime:  openTime,
			CloseTime: openTime.Add(dur),
		})
	}
	return candles, nil
}
