package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"strategy-engine/internal/adaptive"
	"strategy-engine/internal/events"
	"strategy-engine/internal/exchange"
	"strategy-engine/internal/market"
	"strategy-engine/internal/position"
	"strategy-engine/internal/regime"
	"strategy-engine/internal/signal"
	"strategy-engine/internal/strategy"
	"strategy-engine/pkg/clock"
	"strategy-engine/pkg/db"
	"strategy-engine/pkg/metrics"
)

// Actions an evaluation can commit.
const (
	ActionNone     = "none"
	ActionOpened   = "opened"
	ActionClosed   = "closed"
	ActionRejected = "rejected"
)

// Config bounds a single evaluation.
type Config struct {
	CandleLimit  int           // history fetched per evaluation
	FetchTimeout time.Duration // bound on the candle fetch
}

func DefaultConfig() Config {
	return Config{
		CandleLimit:  100,
		FetchTimeout: 10 * time.Second,
	}
}

// SignalCreator is the slice of the signal manager the engine needs.
type SignalCreator interface {
	Create(ctx context.Context, d signal.Decision) (db.Signal, error)
}

// Engine runs the evaluation pipeline for live strategies: indicators,
// regime, adjusted parameters, condition evaluation, and decision commit.
// Shared state is written only at commit, so strategies evaluate
// concurrently without coordination.
type Engine struct {
	cfg       Config
	database  *db.Database
	candles   market.CandleSource
	positions *position.Manager
	signals   SignalCreator
	orders    exchange.OrderPlacer // nil in signal-only mode
	filters   map[string]exchange.SymbolFilter
	bus       *events.Bus
	clk       clock.Clock
	rec       *metrics.Recorder
	log       zerolog.Logger
}

func New(cfg Config, database *db.Database, candles market.CandleSource, positions *position.Manager, signals SignalCreator, orders exchange.OrderPlacer, filters map[string]exchange.SymbolFilter, bus *events.Bus, clk clock.Clock, rec *metrics.Recorder, log zerolog.Logger) *Engine {
	return &Engine{
		cfg:       cfg,
		database:  database,
		candles:   candles,
		positions: positions,
		signals:   signals,
		orders:    orders,
		filters:   filters,
		bus:       bus,
		clk:       clk,
		rec:       rec,
		log:       log.With().Str("component", "engine").Logger(),
	}
}

// Outcome summarizes one strategy evaluation.
type Outcome struct {
	StrategyID string
	Action     string
	Regime     regime.Regime
	Params     adaptive.Params
	Price      float64
}

// EvaluateAll evaluates every active strategy concurrently. Individual
// failures are logged and counted, never propagated as fatal; the returned
// error reports only whether the whole pass could run.
func (e *Engine) EvaluateAll(ctx context.Context) error {
	started := e.clk.Now()
	defer func() {
		e.rec.RecordLatency("evaluate_all", e.clk.Now().Sub(started).Seconds())
	}()

	strats, err := e.database.ListActiveStrategies(ctx)
	if err != nil {
		return fmt.Errorf("list active strategies: %w", err)
	}

	var wg sync.WaitGroup
	var failures int64
	var mu sync.Mutex

	for _, strat := range strats {
		wg.Add(1)
		go func(strat db.Strategy) {
			defer wg.Done()
			if _, err := e.EvaluateStrategy(ctx, strat); err != nil {
				mu.Lock()
				failures++
				mu.Unlock()
				e.rec.RecordEvaluation("error")
				e.log.Warn().Err(err).Str("strategy_id", strat.ID).Msg("evaluation failed")
			}
		}(strat)
	}
	wg.Wait()

	if failures > 0 && int(failures) == len(strats) && len(strats) > 0 {
		return fmt.Errorf("all %d strategy evaluations failed", len(strats))
	}
	return nil
}

// EvaluateStrategy runs the pipeline for one strategy on fresh candles and
// commits at most one decision.
func (e *Engine) EvaluateStrategy(ctx context.Context, strat db.Strategy) (Outcome, error) {
	out := Outcome{StrategyID: strat.ID, Action: ActionNone}

	rows, err := e.database.ListConditions(ctx, strat.ID)
	if err != nil {
		return out, fmt.Errorf("load conditions: %w", err)
	}
	conds, err := strategy.FromRows(rows)
	if err != nil {
		return out, fmt.Errorf("invalid conditions: %w", err)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	candles, err := e.candles.Candles(fetchCtx, strat.Symbol, strat.Timeframe, e.cfg.CandleLimit)
	cancel()
	if err != nil {
		return out, fmt.Errorf("fetch candles: %w", err)
	}
	if len(candles) == 0 {
		return out, fmt.Errorf("no candles for %s %s", strat.Symbol, strat.Timeframe)
	}

	last := candles[len(candles)-1]
	out.Price = last.Close
	out.Regime = regime.Classify(candles)
	out.Params = adaptive.Adjust(candles, strat, out.Regime)
	snap := strategy.BuildSnapshot(candles, strat)

	if pos, open := e.positions.Get(strat.ID); open {
		err = e.maybeExit(ctx, strat, pos, conds, snap, out.Params, last, &out)
	} else {
		err = e.maybeEnter(ctx, strat, conds, snap, out.Params, last, &out)
	}
	if err != nil {
		return out, err
	}

	if out.Action == ActionNone {
		e.rec.RecordEvaluation("no_decision")
	} else {
		e.rec.RecordEvaluation("decision")
	}
	e.bus.Publish(events.EventEvaluation, out)
	return out, nil
}

// maybeEnter opens a position when every entry condition holds.
func (e *Engine) maybeEnter(ctx context.Context, strat db.Strategy, conds []strategy.Condition, snap strategy.Snapshot, params adaptive.Params, last market.Candle, out *Outcome) error {
	if !strategy.Satisfied(conds, strategy.SideEntry, snap, params) {
		return nil
	}

	quantity := strat.PositionSizePercent / 100 // fraction of allocation; venue sizing happens at order time
	if e.orders != nil {
		if !e.placeOrder(ctx, strat, "buy", last.Close, out) {
			return nil
		}
	}

	pos, err := e.positions.Open(ctx, db.Position{
		StrategyID: strat.ID,
		UserID:     strat.UserID,
		Symbol:     strat.Symbol,
		Side:       "buy",
		EntryPrice: last.Close,
		EntryTime:  last.CloseTime,
		// Freeze exits at entry so later parameter drift cannot move them.
		StopLossPercent:   params.StopLossPercent,
		TakeProfitPercent: params.TakeProfitPercent,
	})
	if err != nil {
		if errors.Is(err, position.ErrAlreadyOpen) {
			return nil
		}
		return fmt.Errorf("open position: %w", err)
	}

	if err := e.database.CreateTrade(ctx, db.Trade{
		ID:         uuid.NewString(),
		StrategyID: strat.ID,
		UserID:     strat.UserID,
		Symbol:     strat.Symbol,
		Side:       "buy",
		EntryPrice: last.Close,
		EntryTime:  last.CloseTime,
		Quantity:   quantity,
		CreatedAt:  e.clk.Now().UTC(),
	}); err != nil {
		e.log.Warn().Err(err).Str("strategy_id", strat.ID).Msg("trade row not recorded")
	}

	if _, err := e.signals.Create(ctx, signal.Decision{
		StrategyID:  strat.ID,
		UserID:      strat.UserID,
		Symbol:      strat.Symbol,
		SignalType:  signal.TypeBuy,
		Price:       last.Close,
		Reason:      "entry conditions satisfied",
		CandleClose: last.CloseTime,
	}); err != nil {
		e.log.Warn().Err(err).Str("strategy_id", strat.ID).Msg("entry signal not created")
	}

	out.Action = ActionOpened
	e.bus.Publish(events.EventPositionOpened, pos)
	e.rec.SetOpenPositions(len(e.positions.OpenPositions()))
	e.log.Info().
		Str("strategy_id", strat.ID).
		Str("symbol", strat.Symbol).
		Float64("price", last.Close).
		Str("regime", string(out.Regime.Kind)).
		Msg("position opened")
	return nil
}

// maybeExit closes an open position on stop-loss, take-profit, or when every
// exit condition holds. Stop-loss is checked first.
func (e *Engine) maybeExit(ctx context.Context, strat db.Strategy, pos db.Position, conds []strategy.Condition, snap strategy.Snapshot, params adaptive.Params, last market.Candle, out *Outcome) error {
	reason := exitReason(pos, conds, snap, params, last)
	if reason == "" {
		return nil
	}

	if e.orders != nil {
		if !e.placeOrder(ctx, strat, "sell", last.Close, out) {
			return nil
		}
	}

	closed, err := e.positions.Close(ctx, strat.ID)
	if err != nil {
		if errors.Is(err, position.ErrNotOpen) {
			return nil
		}
		return fmt.Errorf("close position: %w", err)
	}

	profit := 0.0
	if closed.EntryPrice > 0 {
		profit = last.Close - closed.EntryPrice
	}
	if err := e.database.CloseTrade(ctx, strat.ID, last.Close, last.CloseTime, profit, reason); err != nil {
		e.log.Warn().Err(err).Str("strategy_id", strat.ID).Msg("trade close not recorded")
	}

	if _, err := e.signals.Create(ctx, signal.Decision{
		StrategyID:  strat.ID,
		UserID:      strat.UserID,
		Symbol:      strat.Symbol,
		SignalType:  signal.TypeSell,
		Price:       last.Close,
		Reason:      reason,
		CandleClose: last.CloseTime,
	}); err != nil {
		e.log.Warn().Err(err).Str("strategy_id", strat.ID).Msg("exit signal not created")
	}

	out.Action = ActionClosed
	e.bus.Publish(events.EventPositionClosed, closed)
	e.rec.SetOpenPositions(len(e.positions.OpenPositions()))
	e.log.Info().
		Str("strategy_id", strat.ID).
		Str("symbol", strat.Symbol).
		Float64("price", last.Close).
		Str("reason", reason).
		Msg("position closed")
	return nil
}

// exitReason returns the trigger that closes the position, or empty when it
// stays open. Stop and target come from the percentages frozen on the
// position at entry, matching how backtests treat them.
func exitReason(pos db.Position, conds []strategy.Condition, snap strategy.Snapshot, params adaptive.Params, last market.Candle) string {
	if pos.EntryPrice > 0 {
		// Rows written before stops were persisted carry zeros; fall back to
		// the current adjusted parameters for those.
		sl, tp := pos.StopLossPercent, pos.TakeProfitPercent
		if sl == 0 {
			sl = params.StopLossPercent
		}
		if tp == 0 {
			tp = params.TakeProfitPercent
		}
		changePct := (last.Close - pos.EntryPrice) / pos.EntryPrice * 100
		if changePct <= -sl {
			return "stop_loss"
		}
		if changePct >= tp {
			return "take_profit"
		}
	}
	if strategy.Satisfied(conds, strategy.SideExit, snap, params) {
		return "exit_condition"
	}
	return ""
}

// placeOrder validates against the symbol's venue filter and submits. A
// validation or venue rejection cancels the decision for this strategy only.
func (e *Engine) placeOrder(ctx context.Context, strat db.Strategy, side string, price float64, out *Outcome) bool {
	filter := e.filters[strat.Symbol]
	qty := filter.RoundQty(strat.PositionSizePercent / 100)
	req := exchange.OrderRequest{
		Symbol:   strat.Symbol,
		Side:     side,
		Quantity: qty,
		Price:    filter.RoundPrice(price),
	}
	if err := filter.Validate(req, price); err != nil {
		out.Action = ActionRejected
		e.rec.RecordEvaluation("rejected")
		e.log.Warn().Err(err).Str("strategy_id", strat.ID).Msg("order rejected by venue filter")
		return false
	}
	if _, err := e.orders.PlaceOrder(ctx, strat.UserID, req); err != nil {
		out.Action = ActionRejected
		e.rec.RecordEvaluation("rejected")
		e.log.Warn().Err(err).Str("strategy_id", strat.ID).Msg("order rejected by venue")
		return false
	}
	return true
}
