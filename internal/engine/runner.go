package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Evaluator is the sweep entry point the runner drives.
type Evaluator interface {
	EvaluateAll(ctx context.Context) error
}

// RunnerConfig sets the two evaluation cadences.
type RunnerConfig struct {
	ScheduledInterval time.Duration // coarse fixed-interval sweep
	FastBaseInterval  time.Duration // on-demand path base cadence
	FastMaxInterval   time.Duration // backoff cap for the on-demand path
}

func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		ScheduledInterval: time.Minute,
		FastBaseInterval:  15 * time.Second,
		FastMaxInterval:   4 * time.Minute,
	}
}

// Runner drives evaluation from two independent tickers: a coarse scheduled
// sweep and a low-latency path. Both share one in-flight flag, so a tick
// landing while an evaluation still runs is skipped rather than queued.
// The fast path doubles its own interval on failure, capped, and resets on
// success.
type Runner struct {
	cfg      RunnerConfig
	eval     Evaluator
	log      zerolog.Logger
	inFlight atomic.Bool

	mu           sync.Mutex
	fastInterval time.Duration
}

func NewRunner(cfg RunnerConfig, eval Evaluator, log zerolog.Logger) *Runner {
	return &Runner{
		cfg:          cfg,
		eval:         eval,
		log:          log.With().Str("component", "runner").Logger(),
		fastInterval: cfg.FastBaseInterval,
	}
}

// RunOnce executes one evaluation pass unless one is already in flight.
// It reports whether the pass ran and any evaluation error.
func (r *Runner) RunOnce(ctx context.Context) (ran bool, err error) {
	if !r.inFlight.CompareAndSwap(false, true) {
		return false, nil
	}
	defer r.inFlight.Store(false)
	return true, r.eval.EvaluateAll(ctx)
}

// FastInterval returns the on-demand path's current cadence.
func (r *Runner) FastInterval() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fastInterval
}

// recordResult adjusts the fast cadence from the last pass: failures double
// it up to the cap, success snaps back to base.
func (r *Runner) recordResult(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		r.fastInterval = r.cfg.FastBaseInterval
		return
	}
	next := r.fastInterval * 2
	if next > r.cfg.FastMaxInterval {
		next = r.cfg.FastMaxInterval
	}
	r.fastInterval = next
}

// Start launches both evaluation loops. They stop when the context ends.
func (r *Runner) Start(ctx context.Context) {
	go r.scheduledLoop(ctx)
	go r.fastLoop(ctx)
	r.log.Info().
		Dur("scheduled", r.cfg.ScheduledInterval).
		Dur("fast_base", r.cfg.FastBaseInterval).
		Msg("evaluation runner started")
}

func (r *Runner) scheduledLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.ScheduledInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ran, err := r.RunOnce(ctx)
			if !ran {
				r.log.Debug().Msg("scheduled sweep skipped, evaluation in flight")
				continue
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				r.log.Warn().Err(err).Msg("scheduled sweep failed")
			}
		}
	}
}

func (r *Runner) fastLoop(ctx context.Context) {
	timer := time.NewTimer(r.FastInterval())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			ran, err := r.RunOnce(ctx)
			if ran {
				r.recordResult(err)
				if err != nil && !errors.Is(err, context.Canceled) {
					r.log.Warn().Err(err).Dur("next_interval", r.FastInterval()).Msg("fast evaluation failed, backing off")
				}
			}
			timer.Reset(r.FastInterval())
		}
	}
}
