package signal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"strategy-engine/internal/events"
	"strategy-engine/internal/notify"
	"strategy-engine/pkg/clock"
	"strategy-engine/pkg/db"
	"strategy-engine/pkg/metrics"
)

type fakeNotifier struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeNotifier) Deliver(_ context.Context, _ string, msg notify.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, msg.SignalID)
	return f.err
}

func (f *fakeNotifier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestDB(t *testing.T) *db.Database {
	t.Helper()
	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return database
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.DeliveryPacing = 0
	return cfg
}

func newTestManager(t *testing.T, n notify.Notifier, clk clock.Clock) (*Manager, *db.Database) {
	t.Helper()
	database := newTestDB(t)
	dests := notify.StaticDestinations{"user-1": "https://example.com/hook"}
	rec := metrics.NewWith(prometheus.NewRegistry())
	m := NewManager(testConfig(), database, n, dests, events.NewBus(), clk, rec, zerolog.Nop())
	return m, database
}

func testDecision(candleClose time.Time) Decision {
	return Decision{
		StrategyID:  "strat-1",
		UserID:      "user-1",
		Symbol:      "BTCUSDT",
		SignalType:  TypeBuy,
		Price:       50000,
		Reason:      "entry conditions satisfied",
		CandleClose: candleClose,
	}
}

func TestCreateAndDeliver(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC))
	notifier := &fakeNotifier{}
	m, database := newTestManager(t, notifier, clk)

	s, err := m.Create(ctx, testDecision(clk.Now()))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.Status != db.SignalPending {
		t.Fatalf("new signal status = %q, want pending", s.Status)
	}

	if err := m.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if notifier.callCount() != 1 {
		t.Fatalf("delivery calls = %d, want 1", notifier.callCount())
	}

	got, err := database.GetSignal(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetSignal: %v", err)
	}
	if got.Status != db.SignalDelivered || got.DeliveryAttempts != 1 {
		t.Fatalf("after sweep: status=%q attempts=%d", got.Status, got.DeliveryAttempts)
	}

	// Delivered is terminal; another sweep must not touch it.
	if err := m.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if notifier.callCount() != 1 {
		t.Fatalf("terminal signal re-delivered: calls = %d", notifier.callCount())
	}
}

func TestDuplicateBucketSuppressed(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC))
	notifier := &fakeNotifier{}
	m, database := newTestManager(t, notifier, clk)

	candleClose := clk.Now()
	first, err := m.Create(ctx, testDecision(candleClose))
	if err != nil {
		t.Fatalf("Create first: %v", err)
	}
	second, err := m.Create(ctx, testDecision(candleClose))
	if err != nil {
		t.Fatalf("Create duplicate: %v", err)
	}
	if second.Status != db.SignalDelivered {
		t.Fatalf("duplicate status = %q, want delivered (suppressed)", second.Status)
	}

	if err := m.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if notifier.callCount() != 1 {
		t.Fatalf("duplicate caused outward notification: calls = %d", notifier.callCount())
	}
	if notifier.calls[0] != first.ID {
		t.Fatalf("delivered wrong signal: %s", notifier.calls[0])
	}

	// Both rows persisted for audit.
	all, err := database.ListSignalsByUser(ctx, "user-1", 10)
	if err != nil {
		t.Fatalf("ListSignalsByUser: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("persisted signals = %d, want 2", len(all))
	}

	// A different bucket is a fresh signal, not a duplicate.
	third, err := m.Create(ctx, testDecision(candleClose.Add(time.Hour)))
	if err != nil {
		t.Fatalf("Create other bucket: %v", err)
	}
	if third.Status != db.SignalPending {
		t.Fatalf("new bucket status = %q, want pending", third.Status)
	}
}

func TestRetryBudgetExhaustion(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC))
	notifier := &fakeNotifier{err: errors.New("destination down")}
	m, database := newTestManager(t, notifier, clk)

	s, err := m.Create(ctx, testDecision(clk.Now()))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Five failing sweeps spaced past the cool-down. The signal ages
	// 25 minutes total, well under the 1 hour expiry.
	for i := 0; i < 5; i++ {
		if err := m.Sweep(ctx); err != nil {
			t.Fatalf("Sweep %d: %v", i, err)
		}
		clk.Advance(5 * time.Minute)
	}

	got, err := database.GetSignal(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetSignal: %v", err)
	}
	if got.Status != db.SignalFailed || got.DeliveryAttempts != 5 {
		t.Fatalf("after budget: status=%q attempts=%d, want failed/5", got.Status, got.DeliveryAttempts)
	}

	// Failed is terminal: no further attempts even after the cool-down.
	before := notifier.callCount()
	if err := m.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if notifier.callCount() != before {
		t.Fatal("failed signal was retried")
	}
}

func TestCooldownGatesRetries(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC))
	notifier := &fakeNotifier{err: errors.New("destination down")}
	m, _ := newTestManager(t, notifier, clk)

	if _, err := m.Create(ctx, testDecision(clk.Now())); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := m.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if notifier.callCount() != 1 {
		t.Fatalf("calls = %d, want 1", notifier.callCount())
	}

	// Within the cool-down the signal is not due.
	clk.Advance(time.Minute)
	if err := m.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if notifier.callCount() != 1 {
		t.Fatal("retry fired inside cool-down window")
	}

	clk.Advance(5 * time.Minute)
	if err := m.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if notifier.callCount() != 2 {
		t.Fatalf("calls = %d, want 2 after cool-down", notifier.callCount())
	}
}

func TestExpiryBeatsRetryBudget(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC))
	notifier := &fakeNotifier{}
	m, database := newTestManager(t, notifier, clk)

	s, err := m.Create(ctx, testDecision(clk.Now()))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// A full hour passes before the first sweep ever runs.
	clk.Advance(time.Hour + time.Minute)
	if err := m.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	got, err := database.GetSignal(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetSignal: %v", err)
	}
	if got.Status != db.SignalExpired {
		t.Fatalf("status = %q, want expired", got.Status)
	}
	if got.DeliveryAttempts != 0 {
		t.Fatalf("expired signal should keep zero attempts, got %d", got.DeliveryAttempts)
	}
	if notifier.callCount() != 0 {
		t.Fatal("expired signal must not be delivered")
	}
}

func TestMissingDestinationConsumesBudget(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC))
	notifier := &fakeNotifier{}
	m, database := newTestManager(t, notifier, clk)

	d := testDecision(clk.Now())
	d.UserID = "user-without-destination"
	s, err := m.Create(ctx, d)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := m.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if notifier.callCount() != 0 {
		t.Fatal("notifier must not be called without a destination")
	}

	got, err := database.GetSignal(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetSignal: %v", err)
	}
	if got.DeliveryAttempts != 1 || got.Status != db.SignalPending {
		t.Fatalf("missing destination must consume budget: status=%q attempts=%d", got.Status, got.DeliveryAttempts)
	}
}
