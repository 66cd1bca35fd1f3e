package db

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	database, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := ApplyMigrations(database); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	return database
}

func testStrategy(id, userID string) Strategy {
	return Strategy{
		ID:                  id,
		UserID:              userID,
		Name:                "rsi reversal",
		Symbol:              "BTCUSDT",
		Timeframe:           "1h",
		StrategyType:        "momentum",
		Status:              "draft",
		PositionSizePercent: 10,
		StopLossPercent:     5,
		TakeProfitPercent:   10,
		RSIPeriod:           14,
		RSIOverbought:       70,
		RSIOversold:         30,
		EMAFastPeriod:       20,
		EMASlowPeriod:       50,
		ATRPeriod:           14,
		ADXPeriod:           14,
		VolumeMultiplier:    1.5,
	}
}

func TestQueriesRequireUserID(t *testing.T) {
	database := newTestDatabase(t)
	ctx := context.Background()

	t.Run("CreateStrategy requires userID", func(t *testing.T) {
		err := database.CreateStrategy(ctx, testStrategy("strat-1", ""))
		if !errors.Is(err, ErrUserIDRequired) {
			t.Errorf("expected ErrUserIDRequired, got %v", err)
		}
	})

	t.Run("ListStrategiesByUser requires userID", func(t *testing.T) {
		_, err := database.ListStrategiesByUser(ctx, "")
		if !errors.Is(err, ErrUserIDRequired) {
			t.Errorf("expected ErrUserIDRequired, got %v", err)
		}
	})

	t.Run("ListSignalsByUser requires userID", func(t *testing.T) {
		_, err := database.ListSignalsByUser(ctx, "", 100)
		if !errors.Is(err, ErrUserIDRequired) {
			t.Errorf("expected ErrUserIDRequired, got %v", err)
		}
	})

	t.Run("CreateSignal requires userID", func(t *testing.T) {
		err := database.CreateSignal(ctx, Signal{ID: "sig-1", StrategyID: "strat-1"})
		if !errors.Is(err, ErrUserIDRequired) {
			t.Errorf("expected ErrUserIDRequired, got %v", err)
		}
	})
}

func TestStrategyDataIsolation(t *testing.T) {
	database := newTestDatabase(t)
	ctx := context.Background()

	userA := "user-a-123"
	userB := "user-b-456"

	if err := database.CreateStrategy(ctx, testStrategy("strat-a", userA)); err != nil {
		t.Fatalf("Failed to create strategy A: %v", err)
	}
	if err := database.CreateStrategy(ctx, testStrategy("strat-b", userB)); err != nil {
		t.Fatalf("Failed to create strategy B: %v", err)
	}

	t.Run("User A sees only their strategies", func(t *testing.T) {
		list, err := database.ListStrategiesByUser(ctx, userA)
		if err != nil {
			t.Fatalf("Failed to list strategies: %v", err)
		}
		if len(list) != 1 {
			t.Fatalf("expected 1 strategy, got %d", len(list))
		}
		if list[0].ID != "strat-a" {
			t.Errorf("expected strat-a, got %s", list[0].ID)
		}
	})

	t.Run("Unknown user sees nothing", func(t *testing.T) {
		list, err := database.ListStrategiesByUser(ctx, "user-unknown")
		if err != nil {
			t.Fatalf("Failed to list strategies: %v", err)
		}
		if len(list) != 0 {
			t.Errorf("expected 0 strategies, got %d", len(list))
		}
	})

	t.Run("Cross-user delete is not found", func(t *testing.T) {
		err := database.DeleteStrategy(ctx, "strat-a", userB)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Cross-user status change is not found", func(t *testing.T) {
		err := database.SetStrategyStatus(ctx, "strat-a", userB, "active")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestStrategyLifecycle(t *testing.T) {
	database := newTestDatabase(t)
	ctx := context.Background()
	userID := "user-a-123"

	if err := database.CreateStrategy(ctx, testStrategy("strat-1", userID)); err != nil {
		t.Fatalf("Failed to create strategy: %v", err)
	}
	if err := database.CreateCondition(ctx, Condition{
		StrategyID: "strat-1", Side: "entry", Indicator: "rsi",
		Operator: "less_than", Threshold: 30, ThresholdRef: "rsi_oversold",
	}); err != nil {
		t.Fatalf("Failed to create condition: %v", err)
	}

	t.Run("Get returns stored fields", func(t *testing.T) {
		got, err := database.GetStrategy(ctx, "strat-1")
		if err != nil {
			t.Fatalf("Failed to get strategy: %v", err)
		}
		if got.Name != "rsi reversal" || got.RSIPeriod != 14 || got.Status != "draft" {
			t.Errorf("unexpected strategy: %+v", got)
		}
		if got.CreatedAt.IsZero() {
			t.Error("expected created_at to be filled by the database")
		}
	})

	t.Run("Only active strategies are listed for evaluation", func(t *testing.T) {
		active, err := database.ListActiveStrategies(ctx)
		if err != nil {
			t.Fatalf("Failed to list active strategies: %v", err)
		}
		if len(active) != 0 {
			t.Fatalf("draft strategy should not be active, got %d", len(active))
		}

		if err := database.SetStrategyStatus(ctx, "strat-1", userID, "active"); err != nil {
			t.Fatalf("Failed to activate: %v", err)
		}
		active, err = database.ListActiveStrategies(ctx)
		if err != nil {
			t.Fatalf("Failed to list active strategies: %v", err)
		}
		if len(active) != 1 {
			t.Fatalf("expected 1 active strategy, got %d", len(active))
		}
	})

	t.Run("Clone copies conditions as a draft", func(t *testing.T) {
		cloneID, err := database.CloneStrategy(ctx, "strat-1", userID)
		if err != nil {
			t.Fatalf("Failed to clone: %v", err)
		}
		clone, err := database.GetStrategy(ctx, cloneID)
		if err != nil {
			t.Fatalf("Failed to get clone: %v", err)
		}
		if clone.Status != "draft" {
			t.Errorf("clone status = %s, want draft", clone.Status)
		}
		if clone.Name != "rsi reversal (copy)" {
			t.Errorf("clone name = %s", clone.Name)
		}
		conds, err := database.ListConditions(ctx, cloneID)
		if err != nil {
			t.Fatalf("Failed to list clone conditions: %v", err)
		}
		if len(conds) != 1 || conds[0].Indicator != "rsi" {
			t.Errorf("unexpected clone conditions: %+v", conds)
		}
	})

	t.Run("Delete removes strategy and conditions", func(t *testing.T) {
		if err := database.DeleteStrategy(ctx, "strat-1", userID); err != nil {
			t.Fatalf("Failed to delete: %v", err)
		}
		if _, err := database.GetStrategy(ctx, "strat-1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
		conds, err := database.ListConditions(ctx, "strat-1")
		if err != nil {
			t.Fatalf("Failed to list conditions: %v", err)
		}
		if len(conds) != 0 {
			t.Errorf("expected conditions removed with strategy, got %d", len(conds))
		}
	})
}

func TestPositionRoundTrip(t *testing.T) {
	database := newTestDatabase(t)
	ctx := context.Background()

	entryTime := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	pos := Position{
		StrategyID: "strat-1",
		UserID:     "user-a-123",
		Symbol:     "BTCUSDT",
		IsOpen:     true,
		Side:       "long",
		EntryPrice: 50000,
		EntryTime:  entryTime,
	}
	if err := database.UpsertPosition(ctx, pos); err != nil {
		t.Fatalf("Failed to upsert position: %v", err)
	}

	got, err := database.GetPosition(ctx, "strat-1")
	if err != nil {
		t.Fatalf("Failed to get position: %v", err)
	}
	if !got.IsOpen || got.EntryPrice != 50000 || got.Side != "long" {
		t.Errorf("unexpected position: %+v", got)
	}
	if !got.EntryTime.Equal(entryTime) {
		t.Errorf("entry_time = %v, want %v", got.EntryTime, entryTime)
	}

	open, err := database.ListOpenPositions(ctx)
	if err != nil {
		t.Fatalf("Failed to list open positions: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("expected 1 open position, got %d", len(open))
	}

	if err := database.ClosePosition(ctx, "strat-1"); err != nil {
		t.Fatalf("Failed to close position: %v", err)
	}
	got, err = database.GetPosition(ctx, "strat-1")
	if err != nil {
		t.Fatalf("Failed to get closed position: %v", err)
	}
	if got.IsOpen || got.EntryPrice != 0 || got.Side != "" {
		t.Errorf("close should clear entry fields, got %+v", got)
	}
	open, err = database.ListOpenPositions(ctx)
	if err != nil {
		t.Fatalf("Failed to list open positions: %v", err)
	}
	if len(open) != 0 {
		t.Errorf("expected 0 open positions, got %d", len(open))
	}
}

func TestTradeOpenClose(t *testing.T) {
	database := newTestDatabase(t)
	ctx := context.Background()

	entryTime := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	trade := Trade{
		ID:         "trade-1",
		StrategyID: "strat-1",
		UserID:     "user-a-123",
		Symbol:     "BTCUSDT",
		Side:       "long",
		EntryPrice: 100,
		EntryTime:  entryTime,
		Quantity:   10,
	}
	if err := database.CreateTrade(ctx, trade); err != nil {
		t.Fatalf("Failed to create trade: %v", err)
	}

	trades, err := database.ListTradesByStrategy(ctx, "strat-1", 10)
	if err != nil {
		t.Fatalf("Failed to list trades: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	if trades[0].ExitPrice.Valid {
		t.Error("open trade should have no exit price")
	}

	exitTime := entryTime.Add(time.Hour)
	if err := database.CloseTrade(ctx, "strat-1", 110, exitTime, 100, "take_profit"); err != nil {
		t.Fatalf("Failed to close trade: %v", err)
	}

	trades, err = database.ListTradesByStrategy(ctx, "strat-1", 10)
	if err != nil {
		t.Fatalf("Failed to list trades: %v", err)
	}
	got := trades[0]
	if !got.ExitPrice.Valid || got.ExitPrice.Float64 != 110 {
		t.Errorf("exit_price = %+v, want 110", got.ExitPrice)
	}
	if !got.Profit.Valid || got.Profit.Float64 != 100 {
		t.Errorf("profit = %+v, want 100", got.Profit)
	}
	if got.ExitReason != "take_profit" {
		t.Errorf("exit_reason = %s, want take_profit", got.ExitReason)
	}

	// Closed trades are immutable. A second close must not overwrite.
	if err := database.CloseTrade(ctx, "strat-1", 90, exitTime.Add(time.Hour), -100, "stop_loss"); err != nil {
		t.Fatalf("Failed on second close: %v", err)
	}
	trades, _ = database.ListTradesByStrategy(ctx, "strat-1", 10)
	if trades[0].ExitPrice.Float64 != 110 || trades[0].ExitReason != "take_profit" {
		t.Errorf("closed trade was overwritten: %+v", trades[0])
	}
}
