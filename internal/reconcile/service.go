package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"strategy-engine/internal/events"
	"strategy-engine/internal/exchange"
	"strategy-engine/internal/market"
	"strategy-engine/internal/position"
	"strategy-engine/internal/signal"
	"strategy-engine/pkg/clock"
	"strategy-engine/pkg/db"
	"strategy-engine/pkg/metrics"
)

// Closure reasons. The true exit price is unknown when the venue already
// closed the position, so the reason is a best-effort classification from
// the last observed price, never authoritative.
const (
	ReasonStopLoss   = "stop_loss"
	ReasonTakeProfit = "take_profit"
	ReasonManual     = "manual_or_condition"
	ReasonUnknown    = "unknown"
)

// SignalCreator is the slice of the signal manager the reconciler needs to
// emit closure notifications.
type SignalCreator interface {
	Create(ctx context.Context, d signal.Decision) (db.Signal, error)
}

// Service periodically compares locally-open positions against the venue's
// reported positions and closes local state the venue no longer backs. It
// never opens positions: opening requires signal-level intent.
type Service struct {
	mu           sync.Mutex
	source       exchange.PositionSource
	positions    *position.Manager
	candles      market.CandleSource
	signals      SignalCreator
	database     *db.Database
	bus          *events.Bus
	clk          clock.Clock
	rec          *metrics.Recorder
	log          zerolog.Logger
	fetchTimeout time.Duration
}

func NewService(source exchange.PositionSource, positions *position.Manager, candles market.CandleSource, signals SignalCreator, database *db.Database, bus *events.Bus, clk clock.Clock, rec *metrics.Recorder, log zerolog.Logger, fetchTimeout time.Duration) *Service {
	return &Service{
		source:       source,
		positions:    positions,
		candles:      candles,
		signals:      signals,
		database:     database,
		bus:          bus,
		clk:          clk,
		rec:          rec,
		log:          log.With().Str("component", "reconciler").Logger(),
		fetchTimeout: fetchTimeout,
	}
}

// Report summarizes one reconciliation pass.
type Report struct {
	Timestamp time.Time
	Checked   int
	Synced    int
	Closed    int
	Errors    int
}

// Sweep runs one reconciliation pass. Open positions are grouped by user so
// each user costs exactly one venue call regardless of position count.
func (s *Service) Sweep(ctx context.Context) (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	started := s.clk.Now()
	defer func() {
		s.rec.RecordLatency("reconcile_sweep", s.clk.Now().Sub(started).Seconds())
	}()

	report := Report{Timestamp: started.UTC()}

	byUser := make(map[string][]db.Position)
	for _, p := range s.positions.OpenPositions() {
		byUser[p.UserID] = append(byUser[p.UserID], p)
	}

	for userID, locals := range byUser {
		remote, err := s.fetchPositions(ctx, userID)
		if err != nil {
			report.Errors += len(locals)
			for range locals {
				s.rec.RecordReconciliation("error")
			}
			s.log.Warn().Err(err).Str("user_id", userID).Msg("venue position fetch failed, skipping user")
			continue
		}

		for _, local := range locals {
			report.Checked++
			if _, open := remote[local.Symbol]; open {
				report.Synced++
				s.rec.RecordReconciliation("synced")
				continue
			}
			if err := s.closeStale(ctx, local); err != nil {
				report.Errors++
				s.rec.RecordReconciliation("error")
				s.log.Error().Err(err).
					Str("strategy_id", local.StrategyID).
					Str("symbol", local.Symbol).
					Msg("failed to close stale position")
				continue
			}
			report.Closed++
			s.rec.RecordReconciliation("closed")
		}
	}

	s.rec.SetOpenPositions(len(s.positions.OpenPositions()))
	if report.Closed > 0 || report.Errors > 0 {
		s.log.Info().
			Int("checked", report.Checked).
			Int("synced", report.Synced).
			Int("closed", report.Closed).
			Int("errors", report.Errors).
			Msg("reconciliation pass complete")
	}
	return report, nil
}

// fetchPositions makes the single bounded venue call for one user and
// indexes nonzero positions by symbol.
func (s *Service) fetchPositions(ctx context.Context, userID string) (map[string]exchange.ExchangePosition, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	list, err := s.source.OpenPositions(callCtx, userID)
	if err != nil {
		return nil, err
	}
	remote := make(map[string]exchange.ExchangePosition, len(list))
	for _, p := range list {
		if p.Size != 0 {
			remote[p.Symbol] = p
		}
	}
	return remote, nil
}

// closeStale clears local state for a position the venue no longer reports,
// records the trade, and emits exactly one closure notification.
func (s *Service) closeStale(ctx context.Context, local db.Position) error {
	strat, err := s.database.GetStrategy(ctx, local.StrategyID)
	if err != nil {
		return fmt.Errorf("load strategy: %w", err)
	}

	lastPrice, priceKnown := s.lastPrice(ctx, strat.Symbol, strat.Timeframe)
	reason := classifyClosure(local.EntryPrice, lastPrice, priceKnown, strat)

	closed, err := s.positions.Close(ctx, local.StrategyID)
	if err != nil {
		if errors.Is(err, position.ErrNotOpen) {
			return nil
		}
		return fmt.Errorf("close position: %w", err)
	}

	now := s.clk.Now().UTC()
	if priceKnown {
		profit := 0.0
		if closed.EntryPrice > 0 {
			profit = lastPrice - closed.EntryPrice
		}
		if err := s.database.CloseTrade(ctx, local.StrategyID, lastPrice, now, profit, reason); err != nil {
			s.log.Warn().Err(err).Str("strategy_id", local.StrategyID).Msg("could not finalize trade for reconciled closure")
		}
	}

	s.bus.Publish(events.EventReconcileClosure, closed)
	s.bus.Publish(events.EventPositionClosed, closed)

	if _, err := s.signals.Create(ctx, signal.Decision{
		StrategyID: local.StrategyID,
		UserID:     local.UserID,
		Symbol:     local.Symbol,
		SignalType: signal.TypeSell,
		Price:      lastPrice,
		Reason:     "position closed on venue: " + reason,
	}); err != nil {
		s.log.Warn().Err(err).Str("strategy_id", local.StrategyID).Msg("closure notification not created")
	}

	s.log.Info().
		Str("strategy_id", local.StrategyID).
		Str("symbol", local.Symbol).
		Str("reason", reason).
		Msg("stale local position closed")
	return nil
}

// lastPrice fetches the most recent close for the symbol. Best effort only.
func (s *Service) lastPrice(ctx context.Context, symbol, timeframe string) (float64, bool) {
	if s.candles == nil {
		return 0, false
	}
	callCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	candles, err := s.candles.Candles(callCtx, symbol, timeframe, 1)
	if err != nil || len(candles) == 0 {
		return 0, false
	}
	return candles[len(candles)-1].Close, true
}

// classifyClosure guesses why the venue closed the position by where the
// last observed price sits relative to the strategy's stop and target.
func classifyClosure(entryPrice, lastPrice float64, priceKnown bool, strat db.Strategy) string {
	if !priceKnown || entryPrice <= 0 {
		return ReasonUnknown
	}
	changePct := (lastPrice - entryPrice) / entryPrice * 100
	switch {
	case changePct <= -strat.StopLossPercent:
		return ReasonStopLoss
	case changePct >= strat.TakeProfitPercent:
		return ReasonTakeProfit
	default:
		return ReasonManual
	}
}

// Start runs sweeps on a fixed interval until the context ends.
func (s *Service) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
					s.log.Error().Err(err).Msg("reconciliation sweep failed")
				}
			}
		}
	}()
	s.log.Info().Dur("interval", interval).Msg("reconciliation service started")
}
