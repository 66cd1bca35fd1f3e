package db

import (
	"context"
	"testing"
	"time"
)

func testSignal(id string, createdAt time.Time) Signal {
	return Signal{
		ID:         id,
		StrategyID: "strat-1",
		UserID:     "user-a-123",
		Symbol:     "BTCUSDT",
		SignalType: "BUY",
		Price:      50000,
		Reason:     "entry conditions met",
		Bucket:     createdAt.UTC().Format(time.RFC3339),
		CreatedAt:  createdAt,
	}
}

func TestSignalBucketDedup(t *testing.T) {
	database := newTestDatabase(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if err := database.CreateSignal(ctx, testSignal("sig-1", now)); err != nil {
		t.Fatalf("Failed to create signal: %v", err)
	}

	dup, err := database.HasSignalInBucket(ctx, "strat-1", "BUY", now.UTC().Format(time.RFC3339))
	if err != nil {
		t.Fatalf("Failed bucket lookup: %v", err)
	}
	if !dup {
		t.Error("expected bucket hit for same strategy/type/bucket")
	}

	// A different signal type in the same bucket is not a duplicate.
	dup, err = database.HasSignalInBucket(ctx, "strat-1", "SELL", now.UTC().Format(time.RFC3339))
	if err != nil {
		t.Fatalf("Failed bucket lookup: %v", err)
	}
	if dup {
		t.Error("exit signal should not collide with entry bucket")
	}
}

func TestMarkSignalDeliveredOnlyFromPending(t *testing.T) {
	database := newTestDatabase(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if err := database.CreateSignal(ctx, testSignal("sig-1", now)); err != nil {
		t.Fatalf("Failed to create signal: %v", err)
	}
	if err := database.MarkSignalDelivered(ctx, "sig-1", now.Add(time.Second)); err != nil {
		t.Fatalf("Failed to mark delivered: %v", err)
	}

	got, err := database.GetSignal(ctx, "sig-1")
	if err != nil {
		t.Fatalf("Failed to get signal: %v", err)
	}
	if got.Status != SignalDelivered || got.DeliveryAttempts != 1 {
		t.Errorf("status = %s attempts = %d, want delivered/1", got.Status, got.DeliveryAttempts)
	}

	// Delivered is terminal. A late failure record must not move it back.
	if err := database.RecordSignalFailure(ctx, "sig-1", now.Add(time.Minute), 5); err != nil {
		t.Fatalf("Failed on late failure record: %v", err)
	}
	got, _ = database.GetSignal(ctx, "sig-1")
	if got.Status != SignalDelivered || got.DeliveryAttempts != 1 {
		t.Errorf("terminal state was mutated: status = %s attempts = %d", got.Status, got.DeliveryAttempts)
	}
}

func TestSignalsDueForRetrySelection(t *testing.T) {
	database := newTestDatabase(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cooldown := 5 * time.Minute

	// Fresh signal, never attempted: due immediately.
	if err := database.CreateSignal(ctx, testSignal("sig-fresh", base)); err != nil {
		t.Fatalf("Failed to create signal: %v", err)
	}
	// Recently attempted: inside cool-down.
	hot := testSignal("sig-hot", base)
	hot.Bucket = "hot"
	if err := database.CreateSignal(ctx, hot); err != nil {
		t.Fatalf("Failed to create signal: %v", err)
	}
	if err := database.RecordSignalFailure(ctx, "sig-hot", base.Add(time.Minute), 5); err != nil {
		t.Fatalf("Failed to record failure: %v", err)
	}
	// Budget exhausted: status flips to failed and leaves the pool.
	spent := testSignal("sig-spent", base)
	spent.Bucket = "spent"
	if err := database.CreateSignal(ctx, spent); err != nil {
		t.Fatalf("Failed to create signal: %v", err)
	}
	if err := database.RecordSignalFailure(ctx, "sig-spent", base, 1); err != nil {
		t.Fatalf("Failed to record failure: %v", err)
	}

	now := base.Add(2 * time.Minute)
	due, err := database.SignalsDueForRetry(ctx, now, cooldown, 5, 50)
	if err != nil {
		t.Fatalf("Failed to select due signals: %v", err)
	}
	if len(due) != 1 || due[0].ID != "sig-fresh" {
		t.Fatalf("expected only sig-fresh due, got %+v", due)
	}

	// After the cool-down elapses the attempted signal comes back.
	now = base.Add(cooldown + 2*time.Minute)
	due, err = database.SignalsDueForRetry(ctx, now, cooldown, 5, 50)
	if err != nil {
		t.Fatalf("Failed to select due signals: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("expected 2 due signals, got %d", len(due))
	}

	got, _ := database.GetSignal(ctx, "sig-spent")
	if got.Status != SignalFailed {
		t.Errorf("exhausted signal status = %s, want failed", got.Status)
	}
}

func TestExpireSignalsOlderThan(t *testing.T) {
	database := newTestDatabase(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	old := testSignal("sig-old", base)
	if err := database.CreateSignal(ctx, old); err != nil {
		t.Fatalf("Failed to create signal: %v", err)
	}
	recent := testSignal("sig-recent", base.Add(30*time.Minute))
	recent.Bucket = "recent"
	if err := database.CreateSignal(ctx, recent); err != nil {
		t.Fatalf("Failed to create signal: %v", err)
	}

	n, err := database.ExpireSignalsOlderThan(ctx, base.Add(time.Minute))
	if err != nil {
		t.Fatalf("Failed to expire: %v", err)
	}
	if n != 1 {
		t.Errorf("expired %d signals, want 1", n)
	}

	got, _ := database.GetSignal(ctx, "sig-old")
	if got.Status != SignalExpired {
		t.Errorf("old signal status = %s, want expired", got.Status)
	}
	got, _ = database.GetSignal(ctx, "sig-recent")
	if got.Status != SignalPending {
		t.Errorf("recent signal status = %s, want pending", got.Status)
	}
}
