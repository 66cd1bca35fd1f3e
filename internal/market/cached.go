package market

import (
	"context"
	"fmt"
	"time"

	"strategy-engine/pkg/registry"
)

// CachedSource wraps a CandleSource with a bounded, age-evicted window cache
// so concurrent strategy evaluations on the same symbol/timeframe share one
// upstream fetch per freshness interval.
type CachedSource struct {
	upstream CandleSource
	cache    *registry.Registry[[]Candle]
	maxAge   time.Duration
}

// NewCachedSource builds a caching layer over upstream. maxEntries bounds the
// number of cached windows; maxAge bounds their staleness.
func NewCachedSource(upstream CandleSource, maxEntries int, maxAge time.Duration) *CachedSource {
	return &CachedSource{
		upstream: upstream,
		cache:    registry.New[[]Candle](maxEntries),
		maxAge:   maxAge,
	}
}

func (s *CachedSource) Candles(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error) {
	key := fmt.Sprintf("%s:%s:%d", symbol, timeframe, limit)
	if window, ok := s.cache.GetFresh(key, s.maxAge); ok {
		return window, nil
	}

	window, err := s.upstream.Candles(ctx, symbol, timeframe, limit)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, window)
	return window, nil
}

// Evict drops cached windows older than their freshness bound.
func (s *CachedSource) Evict() int {
	return s.cache.Cleanup(s.maxAge)
}
