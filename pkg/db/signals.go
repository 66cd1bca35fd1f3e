package db

import (
	"context"
	"database/sql"
	"time"
)

// Signal status values. The lifecycle manager owns all transitions.
const (
	SignalPending   = "pending"
	SignalDelivered = "delivered"
	SignalFailed    = "failed"
	SignalExpired   = "expired"
)

// CreateSignal inserts a new signal in pending state with zero attempts.
func (d *Database) CreateSignal(ctx context.Context, s Signal) error {
	if s.UserID == "" {
		return ErrUserIDRequired
	}
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO signals (
			id, strategy_id, user_id, symbol, signal_type, price, reason,
			status, delivery_attempts, last_attempt_at, bucket, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, 'pending', 0, NULL, ?, ?)
	`, s.ID, s.StrategyID, s.UserID, s.Symbol, s.SignalType, s.Price, s.Reason,
		s.Bucket, s.CreatedAt)
	return err
}

// GetSignal returns a signal by id.
func (d *Database) GetSignal(ctx context.Context, id string) (Signal, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT id, strategy_id, user_id, symbol, signal_type, price, COALESCE(reason, ''),
			status, delivery_attempts, last_attempt_at, bucket, created_at
		FROM signals WHERE id = ?`, id)
	var s Signal
	err := row.Scan(&s.ID, &s.StrategyID, &s.UserID, &s.Symbol, &s.SignalType, &s.Price, &s.Reason,
		&s.Status, &s.DeliveryAttempts, &s.LastAttemptAt, &s.Bucket, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return Signal{}, ErrNotFound
	}
	return s, err
}

// HasSignalInBucket reports whether a matching signal already exists for the
// (strategy, type, time-bucket) dedup key.
func (d *Database) HasSignalInBucket(ctx context.Context, strategyID, signalType, bucket string) (bool, error) {
	var n int
	err := d.DB.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM signals
		WHERE strategy_id = ? AND signal_type = ? AND bucket = ?`,
		strategyID, signalType, bucket).Scan(&n)
	return n > 0, err
}

// SignalsDueForRetry selects pending signals with remaining attempt budget
// whose cool-down has elapsed. The limit bounds a single sweep.
func (d *Database) SignalsDueForRetry(ctx context.Context, now time.Time, cooldown time.Duration, maxAttempts, limit int) ([]Signal, error) {
	cutoff := now.Add(-cooldown)
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, strategy_id, user_id, symbol, signal_type, price, COALESCE(reason, ''),
			status, delivery_attempts, last_attempt_at, bucket, created_at
		FROM signals
		WHERE status = 'pending'
		  AND delivery_attempts < ?
		  AND (last_attempt_at IS NULL OR last_attempt_at <= ?)
		ORDER BY created_at
		LIMIT ?`, maxAttempts, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Signal
	for rows.Next() {
		var s Signal
		if err := rows.Scan(&s.ID, &s.StrategyID, &s.UserID, &s.Symbol, &s.SignalType, &s.Price, &s.Reason,
			&s.Status, &s.DeliveryAttempts, &s.LastAttemptAt, &s.Bucket, &s.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// MarkSignalDelivered transitions a signal to its terminal success state.
func (d *Database) MarkSignalDelivered(ctx context.Context, id string, at time.Time) error {
	_, err := d.DB.ExecContext(ctx, `
		UPDATE signals
		SET status = 'delivered', delivery_attempts = delivery_attempts + 1, last_attempt_at = ?
		WHERE id = ? AND status = 'pending'`, at, id)
	return err
}

// RecordSignalFailure increments the attempt counter and moves the signal to
// 'failed' once the budget is exhausted.
func (d *Database) RecordSignalFailure(ctx context.Context, id string, at time.Time, maxAttempts int) error {
	_, err := d.DB.ExecContext(ctx, `
		UPDATE signals
		SET delivery_attempts = delivery_attempts + 1,
			last_attempt_at = ?,
			status = CASE WHEN delivery_attempts + 1 >= ? THEN 'failed' ELSE 'pending' END
		WHERE id = ? AND status = 'pending'`, at, maxAttempts, id)
	return err
}

// ExpireSignalsOlderThan moves over-age pending signals to 'expired'
// regardless of remaining attempts. Age takes precedence over retry budget.
func (d *Database) ExpireSignalsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := d.DB.ExecContext(ctx, `
		UPDATE signals SET status = 'expired'
		WHERE status = 'pending' AND created_at <= ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListSignalsByUser returns recent signals for a user.
func (d *Database) ListSignalsByUser(ctx context.Context, userID string, limit int) ([]Signal, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, strategy_id, user_id, symbol, signal_type, price, COALESCE(reason, ''),
			status, delivery_attempts, last_attempt_at, bucket, created_at
		FROM signals WHERE user_id = ?
		ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Signal
	for rows.Next() {
		var s Signal
		if err := rows.Scan(&s.ID, &s.StrategyID, &s.UserID, &s.Symbol, &s.SignalType, &s.Price, &s.Reason,
			&s.Status, &s.DeliveryAttempts, &s.LastAttemptAt, &s.Bucket, &s.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}
