package market

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// ErrStreamWarmingUp signals that a live stream is connected but has not yet
// delivered a closed candle for the requested pair.
var ErrStreamWarmingUp = errors.New("candle stream warming up")

// LiveSource accumulates closed candles from websocket streams into per-symbol
// ring buffers and serves them through the CandleSource interface. Streams are
// opened lazily on the first request for a symbol/timeframe pair.
type LiveSource struct {
	client  *StreamClient
	depth   int
	log     zerolog.Logger
	mu      sync.Mutex
	buffers map[string]*candleBuffer
}

type candleBuffer struct {
	mu      sync.RWMutex
	candles []Candle
	depth   int
	stop    func()
}

// NewLiveSource builds a live source over client. depth bounds how many closed
// candles are retained per symbol/timeframe.
func NewLiveSource(client *StreamClient, depth int, log zerolog.Logger) *LiveSource {
	if depth <= 0 {
		depth = 500
	}
	return &LiveSource{
		client:  client,
		depth:   depth,
		log:     log.With().Str("component", "market-live").Logger(),
		buffers: make(map[string]*candleBuffer),
	}
}

// Candles returns up to limit most recent closed candles. ErrStreamWarmingUp
// is returned until the stream for the pair has delivered at least one candle.
func (s *LiveSource) Candles(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error) {
	buf, err := s.buffer(ctx, symbol, timeframe)
	if err != nil {
		return nil, err
	}

	buf.mu.RLock()
	defer buf.mu.RUnlock()
	if len(buf.candles) == 0 {
		return nil, fmt.Errorf("%w: %s %s", ErrStreamWarmingUp, symbol, timeframe)
	}
	start := 0
	if limit > 0 && len(buf.candles) > limit {
		start = len(buf.candles) - limit
	}
	out := make([]Candle, len(buf.candles)-start)
	copy(out, buf.candles[start:])
	return out, nil
}

func (s *LiveSource) buffer(ctx context.Context, symbol, timeframe string) (*candleBuffer, error) {
	key := symbol + ":" + timeframe
	s.mu.Lock()
	defer s.mu.Unlock()
	if buf, ok := s.buffers[key]; ok {
		return buf, nil
	}

	// Subscriptions outlive the requesting call; they stop with Close.
	ch, stop, err := s.client.SubscribeCandles(context.WithoutCancel(ctx), symbol, timeframe)
	if err != nil {
		return nil, err
	}
	buf := &candleBuffer{depth: s.depth, stop: stop}
	s.buffers[key] = buf
	go func() {
		for candle := range ch {
			buf.append(candle)
		}
		s.log.Warn().Str("symbol", symbol).Str("timeframe", timeframe).Msg("candle stream ended")
	}()
	return buf, nil
}

func (b *candleBuffer) append(c Candle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.candles = append(b.candles, c)
	if len(b.candles) > b.depth {
		b.candles = b.candles[len(b.candles)-b.depth:]
	}
}

// Close stops every open stream.
func (s *LiveSource) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, buf := range s.buffers {
		buf.stop()
	}
	s.buffers = make(map[string]*candleBuffer)
}
