package signal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"strategy-engine/internal/events"
	"strategy-engine/internal/notify"
	"strategy-engine/pkg/clock"
	"strategy-engine/pkg/db"
	"strategy-engine/pkg/metrics"
)

// Signal types emitted by the evaluator. BUY opens a position, SELL closes
// one; the engine is long-only.
const (
	TypeBuy  = "BUY"
	TypeSell = "SELL"
)

// Config bounds the lifecycle manager's sweeps.
type Config struct {
	MaxAttempts     int           // terminal failure after this many attempts
	RetryCooldown   time.Duration // minimum gap between attempts on one signal
	MaxAge          time.Duration // pending signals older than this expire
	SweepPageSize   int           // signals processed per sweep
	DeliveryTimeout time.Duration // per-attempt bound on the outward call
	PollInterval    time.Duration // bucket rounding when candle close is unknown
	DeliveryPacing  time.Duration // gap between outward calls within a sweep
}

// DefaultConfig matches the production sweep cadence.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     5,
		RetryCooldown:   5 * time.Minute,
		MaxAge:          time.Hour,
		SweepPageSize:   50,
		DeliveryTimeout: 10 * time.Second,
		PollInterval:    time.Minute,
		DeliveryPacing:  time.Second,
	}
}

// Manager owns every signal state transition: creation, dedup, retry,
// expiry, and terminal failure.
type Manager struct {
	cfg      Config
	db       *db.Database
	notifier notify.Notifier
	dests    notify.DestinationResolver
	bus      *events.Bus
	clk      clock.Clock
	limiter  *rate.Limiter
	rec      *metrics.Recorder
	log      zerolog.Logger
}

func NewManager(cfg Config, database *db.Database, notifier notify.Notifier, dests notify.DestinationResolver, bus *events.Bus, clk clock.Clock, rec *metrics.Recorder, log zerolog.Logger) *Manager {
	limit := rate.Inf
	if cfg.DeliveryPacing > 0 {
		limit = rate.Every(cfg.DeliveryPacing)
	}
	return &Manager{
		cfg:      cfg,
		db:       database,
		notifier: notifier,
		dests:    dests,
		bus:      bus,
		clk:      clk,
		limiter:  rate.NewLimiter(limit, 1),
		rec:      rec,
		log:      log.With().Str("component", "signal_manager").Logger(),
	}
}

// Decision is the evaluator's intent to signal.
type Decision struct {
	StrategyID string
	UserID     string
	Symbol     string
	SignalType string
	Price      float64
	Reason     string
	// CandleClose is the close time of the triggering candle; zero when the
	// decision came from a path without candle context.
	CandleClose time.Time
}

// Bucket derives the dedup bucket: the candle close when known, otherwise
// the current time rounded down to the polling interval.
func (m *Manager) Bucket(d Decision) string {
	if !d.CandleClose.IsZero() {
		return d.CandleClose.UTC().Format(time.RFC3339)
	}
	return m.clk.Now().UTC().Truncate(m.cfg.PollInterval).Format(time.RFC3339)
}

// Create persists a new pending signal. When the (strategy, type, bucket)
// key already exists the signal is still stored for audit but flagged so it
// never produces a second outward notification.
func (m *Manager) Create(ctx context.Context, d Decision) (db.Signal, error) {
	bucket := m.Bucket(d)

	dup, err := m.db.HasSignalInBucket(ctx, d.StrategyID, d.SignalType, bucket)
	if err != nil {
		return db.Signal{}, fmt.Errorf("dedup lookup: %w", err)
	}

	s := db.Signal{
		ID:         uuid.NewString(),
		StrategyID: d.StrategyID,
		UserID:     d.UserID,
		Symbol:     d.Symbol,
		SignalType: d.SignalType,
		Price:      d.Price,
		Reason:     d.Reason,
		Bucket:     bucket,
		CreatedAt:  m.clk.Now().UTC(),
	}
	if err := m.db.CreateSignal(ctx, s); err != nil {
		return db.Signal{}, fmt.Errorf("create signal: %w", err)
	}
	s.Status = db.SignalPending

	if dup {
		// The bucket already notified once. Mark this copy delivered so
		// the retry sweep skips it.
		if err := m.db.MarkSignalDelivered(ctx, s.ID, s.CreatedAt); err != nil {
			return db.Signal{}, fmt.Errorf("suppress duplicate signal: %w", err)
		}
		s.Status = db.SignalDelivered
		m.rec.RecordDelivery("suppressed")
		m.log.Debug().Str("signal_id", s.ID).Str("bucket", bucket).Msg("duplicate signal suppressed")
		return s, nil
	}

	m.rec.RecordSignalCreated(d.SignalType)
	m.bus.Publish(events.EventSignalCreated, s)
	m.log.Info().
		Str("signal_id", s.ID).
		Str("strategy_id", d.StrategyID).
		Str("signal_type", d.SignalType).
		Float64("price", d.Price).
		Msg("signal created")
	return s, nil
}

// Sweep runs one bounded pass: expire over-age signals first, then retry a
// page of due pending signals. Expiry runs first so age always beats the
// remaining attempt budget.
func (m *Manager) Sweep(ctx context.Context) error {
	now := m.clk.Now().UTC()

	expired, err := m.db.ExpireSignalsOlderThan(ctx, now.Add(-m.cfg.MaxAge))
	if err != nil {
		return fmt.Errorf("expire signals: %w", err)
	}
	if expired > 0 {
		for i := int64(0); i < expired; i++ {
			m.rec.RecordDelivery("expired")
		}
		m.bus.Publish(events.EventSignalExpired, expired)
		m.log.Info().Int64("count", expired).Msg("signals expired")
	}

	due, err := m.db.SignalsDueForRetry(ctx, now, m.cfg.RetryCooldown, m.cfg.MaxAttempts, m.cfg.SweepPageSize)
	if err != nil {
		return fmt.Errorf("select due signals: %w", err)
	}

	for _, s := range due {
		if err := m.limiter.Wait(ctx); err != nil {
			return err
		}
		m.attempt(ctx, s)
	}
	return nil
}

// attempt makes one delivery try. Destination lookup failures consume the
// attempt budget like any other failure: a structurally impossible delivery
// must not loop forever.
func (m *Manager) attempt(ctx context.Context, s db.Signal) {
	now := m.clk.Now().UTC()

	dest, err := m.dests.Destination(ctx, s.UserID)
	if err == nil {
		callCtx, cancel := context.WithTimeout(ctx, m.cfg.DeliveryTimeout)
		err = m.notifier.Deliver(callCtx, dest, notify.Message{
			SignalID:   s.ID,
			StrategyID: s.StrategyID,
			Symbol:     s.Symbol,
			SignalType: s.SignalType,
			Price:      s.Price,
			Reason:     s.Reason,
			CreatedAt:  s.CreatedAt,
		})
		cancel()
	}

	if err == nil {
		if dbErr := m.db.MarkSignalDelivered(ctx, s.ID, now); dbErr != nil {
			m.log.Error().Err(dbErr).Str("signal_id", s.ID).Msg("failed to mark signal delivered")
			return
		}
		m.rec.RecordDelivery("delivered")
		m.bus.Publish(events.EventSignalDelivered, s.ID)
		m.log.Info().Str("signal_id", s.ID).Int("attempt", s.DeliveryAttempts+1).Msg("signal delivered")
		return
	}

	if dbErr := m.db.RecordSignalFailure(ctx, s.ID, now, m.cfg.MaxAttempts); dbErr != nil {
		m.log.Error().Err(dbErr).Str("signal_id", s.ID).Msg("failed to record delivery failure")
		return
	}
	m.rec.RecordDelivery("failed")

	terminal := s.DeliveryAttempts+1 >= m.cfg.MaxAttempts
	if terminal {
		m.bus.Publish(events.EventSignalFailed, s.ID)
	}
	evt := m.log.Warn().
		Err(err).
		Str("signal_id", s.ID).
		Int("attempt", s.DeliveryAttempts+1).
		Bool("terminal", terminal)
	if errors.Is(err, notify.ErrNoDestination) {
		evt.Str("cause", "missing_destination")
	}
	evt.Msg("signal delivery failed")
}

// RunSweeper blocks, sweeping on the given interval until the context ends.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
				m.log.Error().Err(err).Msg("signal sweep failed")
			}
		}
	}
}
