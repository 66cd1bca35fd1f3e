package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUserIDRequired = errors.New("user_id is required for data isolation")
	ErrNotFound       = errors.New("record not found")
)

const strategyColumns = `
	id, user_id, name, symbol, timeframe, strategy_type, status,
	position_size_percent, stop_loss_percent, take_profit_percent,
	rsi_period, rsi_overbought, rsi_oversold,
	ema_fast_period, ema_slow_period, atr_period, adx_period,
	volume_multiplier, created_at, updated_at`

func scanStrategy(row interface{ Scan(...any) error }) (Strategy, error) {
	var s Strategy
	err := row.Scan(
		&s.ID, &s.UserID, &s.Name, &s.Symbol, &s.Timeframe, &s.StrategyType, &s.Status,
		&s.PositionSizePercent, &s.StopLossPercent, &s.TakeProfitPercent,
		&s.RSIPeriod, &s.RSIOverbought, &s.RSIOversold,
		&s.EMAFastPeriod, &s.EMASlowPeriod, &s.ATRPeriod, &s.ADXPeriod,
		&s.VolumeMultiplier, &s.CreatedAt, &s.UpdatedAt,
	)
	return s, err
}

// CreateStrategy inserts a new strategy row.
func (d *Database) CreateStrategy(ctx context.Context, s Strategy) error {
	if s.UserID == "" {
		return ErrUserIDRequired
	}
	var createdAt, updatedAt any
	if !s.CreatedAt.IsZero() {
		createdAt = s.CreatedAt
	}
	if !s.UpdatedAt.IsZero() {
		updatedAt = s.UpdatedAt
	}
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO strategies (
			id, user_id, name, symbol, timeframe, strategy_type, status,
			position_size_percent, stop_loss_percent, take_profit_percent,
			rsi_period, rsi_overbought, rsi_oversold,
			ema_fast_period, ema_slow_period, atr_period, adx_period,
			volume_multiplier, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
			COALESCE(?, CURRENT_TIMESTAMP), COALESCE(?, CURRENT_TIMESTAMP))
	`,
		s.ID, s.UserID, s.Name, s.Symbol, s.Timeframe, s.StrategyType, s.Status,
		s.PositionSizePercent, s.StopLossPercent, s.TakeProfitPercent,
		s.RSIPeriod, s.RSIOverbought, s.RSIOversold,
		s.EMAFastPeriod, s.EMASlowPeriod, s.ATRPeriod, s.ADXPeriod,
		s.VolumeMultiplier, createdAt, updatedAt,
	)
	return err
}

// UpdateStrategy rewrites the mutable fields of a strategy.
func (d *Database) UpdateStrategy(ctx context.Context, s Strategy) error {
	res, err := d.DB.ExecContext(ctx, `
		UPDATE strategies SET
			name = ?, symbol = ?, timeframe = ?, strategy_type = ?,
			position_size_percent = ?, stop_loss_percent = ?, take_profit_percent = ?,
			rsi_period = ?, rsi_overbought = ?, rsi_oversold = ?,
			ema_fast_period = ?, ema_slow_period = ?, atr_period = ?, adx_period = ?,
			volume_multiplier = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND user_id = ?
	`,
		s.Name, s.Symbol, s.Timeframe, s.StrategyType,
		s.PositionSizePercent, s.StopLossPercent, s.TakeProfitPercent,
		s.RSIPeriod, s.RSIOverbought, s.RSIOversold,
		s.EMAFastPeriod, s.EMASlowPeriod, s.ATRPeriod, s.ADXPeriod,
		s.VolumeMultiplier, s.ID, s.UserID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetStrategy returns a strategy by id.
func (d *Database) GetStrategy(ctx context.Context, id string) (Strategy, error) {
	row := d.DB.QueryRowContext(ctx, `SELECT `+strategyColumns+` FROM strategies WHERE id = ?`, id)
	s, err := scanStrategy(row)
	if err == sql.ErrNoRows {
		return Strategy{}, ErrNotFound
	}
	return s, err
}

// ListStrategiesByUser returns all strategies owned by a user.
func (d *Database) ListStrategiesByUser(ctx context.Context, userID string) ([]Strategy, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	rows, err := d.DB.QueryContext(ctx, `
		SELECT `+strategyColumns+` FROM strategies
		WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Strategy
	for rows.Next() {
		s, err := scanStrategy(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// ListActiveStrategies returns strategies eligible for live evaluation.
func (d *Database) ListActiveStrategies(ctx context.Context) ([]Strategy, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT `+strategyColumns+` FROM strategies
		WHERE status = 'active' ORDER BY user_id, created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Strategy
	for rows.Next() {
		s, err := scanStrategy(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// SetStrategyStatus transitions a strategy between draft/active/inactive.
// Only 'active' strategies are evaluated live.
func (d *Database) SetStrategyStatus(ctx context.Context, id, userID, status string) error {
	res, err := d.DB.ExecContext(ctx, `
		UPDATE strategies SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND user_id = ?`, status, id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteStrategy removes a strategy and its conditions.
func (d *Database) DeleteStrategy(ctx context.Context, id, userID string) error {
	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM strategy_conditions WHERE strategy_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM strategies WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// CloneStrategy deep-copies a strategy and its conditions as a new draft.
// The clone starts inactive regardless of the source status.
func (d *Database) CloneStrategy(ctx context.Context, id, userID string) (string, error) {
	src, err := d.GetStrategy(ctx, id)
	if err != nil {
		return "", err
	}
	if src.UserID != userID {
		return "", ErrNotFound
	}
	conds, err := d.ListConditions(ctx, id)
	if err != nil {
		return "", err
	}

	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	newID := uuid.NewString()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO strategies (
			id, user_id, name, symbol, timeframe, strategy_type, status,
			position_size_percent, stop_loss_percent, take_profit_percent,
			rsi_period, rsi_overbought, rsi_oversold,
			ema_fast_period, ema_slow_period, atr_period, adx_period,
			volume_multiplier, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, 'draft', ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
			CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`,
		newID, src.UserID, src.Name+" (copy)", src.Symbol, src.Timeframe, src.StrategyType,
		src.PositionSizePercent, src.StopLossPercent, src.TakeProfitPercent,
		src.RSIPeriod, src.RSIOverbought, src.RSIOversold,
		src.EMAFastPeriod, src.EMASlowPeriod, src.ATRPeriod, src.ADXPeriod,
		src.VolumeMultiplier,
	)
	if err != nil {
		return "", fmt.Errorf("clone strategy: %w", err)
	}

	for _, c := range conds {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO strategy_conditions (strategy_id, side, indicator, operator, threshold, threshold_ref, ordinal)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			newID, c.Side, c.Indicator, c.Operator, c.Threshold, c.ThresholdRef, c.Ordinal)
		if err != nil {
			return "", fmt.Errorf("clone condition: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return newID, nil
}

// CreateCondition appends a condition to a strategy.
func (d *Database) CreateCondition(ctx context.Context, c Condition) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO strategy_conditions (strategy_id, side, indicator, operator, threshold, threshold_ref, ordinal)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.StrategyID, c.Side, c.Indicator, c.Operator, c.Threshold, c.ThresholdRef, c.Ordinal)
	return err
}

// ListConditions returns a strategy's conditions in declaration order.
func (d *Database) ListConditions(ctx context.Context, strategyID string) ([]Condition, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, strategy_id, side, indicator, operator, threshold, threshold_ref, ordinal
		FROM strategy_conditions WHERE strategy_id = ?
		ORDER BY ordinal, id`, strategyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Condition
	for rows.Next() {
		var c Condition
		if err := rows.Scan(&c.ID, &c.StrategyID, &c.Side, &c.Indicator, &c.Operator, &c.Threshold, &c.ThresholdRef, &c.Ordinal); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// UpsertPosition stores the latest position for a strategy.
func (d *Database) UpsertPosition(ctx context.Context, p Position) error {
	var entryTime any
	if !p.EntryTime.IsZero() {
		entryTime = p.EntryTime
	}
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO positions (strategy_id, user_id, symbol, is_open, side, entry_price, entry_time,
			stop_loss_percent, take_profit_percent, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(strategy_id) DO UPDATE SET
			user_id = excluded.user_id,
			symbol = excluded.symbol,
			is_open = excluded.is_open,
			side = excluded.side,
			entry_price = excluded.entry_price,
			entry_time = excluded.entry_time,
			stop_loss_percent = excluded.stop_loss_percent,
			take_profit_percent = excluded.take_profit_percent,
			updated_at = CURRENT_TIMESTAMP
	`, p.StrategyID, p.UserID, p.Symbol, p.IsOpen, p.Side, p.EntryPrice, entryTime,
		p.StopLossPercent, p.TakeProfitPercent)
	return err
}

// GetPosition returns the position row for a strategy, if any.
func (d *Database) GetPosition(ctx context.Context, strategyID string) (Position, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT strategy_id, user_id, symbol, is_open,
			COALESCE(side, ''), COALESCE(entry_price, 0), entry_time,
			stop_loss_percent, take_profit_percent, updated_at
		FROM positions WHERE strategy_id = ?`, strategyID)
	var p Position
	var entryTime sql.NullTime
	err := row.Scan(&p.StrategyID, &p.UserID, &p.Symbol, &p.IsOpen, &p.Side, &p.EntryPrice, &entryTime,
		&p.StopLossPercent, &p.TakeProfitPercent, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return Position{}, ErrNotFound
	}
	if err != nil {
		return Position{}, err
	}
	p.EntryTime = entryTime.Time
	return p, nil
}

// ListOpenPositions returns all positions currently marked open.
func (d *Database) ListOpenPositions(ctx context.Context) ([]Position, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT strategy_id, user_id, symbol, is_open,
			COALESCE(side, ''), COALESCE(entry_price, 0), entry_time,
			stop_loss_percent, take_profit_percent, updated_at
		FROM positions WHERE is_open = 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Position
	for rows.Next() {
		var p Position
		var entryTime sql.NullTime
		if err := rows.Scan(&p.StrategyID, &p.UserID, &p.Symbol, &p.IsOpen, &p.Side, &p.EntryPrice, &entryTime,
			&p.StopLossPercent, &p.TakeProfitPercent, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.EntryTime = entryTime.Time
		res = append(res, p)
	}
	return res, rows.Err()
}

// ClosePosition marks a position closed and clears its entry fields.
func (d *Database) ClosePosition(ctx context.Context, strategyID string) error {
	_, err := d.DB.ExecContext(ctx, `
		UPDATE positions
		SET is_open = 0, side = NULL, entry_price = NULL, entry_time = NULL,
			stop_loss_percent = 0, take_profit_percent = 0,
			updated_at = CURRENT_TIMESTAMP
		WHERE strategy_id = ?`, strategyID)
	return err
}

// CreateTrade inserts a trade row when a position opens.
func (d *Database) CreateTrade(ctx context.Context, t Trade) error {
	var createdAt any
	if !t.CreatedAt.IsZero() {
		createdAt = t.CreatedAt
	}
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO trades (
			id, strategy_id, user_id, symbol, side, entry_price, entry_time,
			quantity, exit_reason, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP))
	`, t.ID, t.StrategyID, t.UserID, t.Symbol, t.Side, t.EntryPrice, t.EntryTime,
		t.Quantity, t.ExitReason, createdAt)
	return err
}

// CloseTrade finalizes the open trade for a strategy. Trades are immutable
// once closed, so only rows without an exit are touched.
func (d *Database) CloseTrade(ctx context.Context, strategyID string, exitPrice float64, exitTime time.Time, profit float64, reason string) error {
	_, err := d.DB.ExecContext(ctx, `
		UPDATE trades
		SET exit_price = ?, exit_time = ?, profit = ?, exit_reason = ?
		WHERE strategy_id = ? AND exit_time IS NULL`,
		exitPrice, exitTime, profit, reason, strategyID)
	return err
}

// ListTradesByStrategy returns recent trades for a strategy.
func (d *Database) ListTradesByStrategy(ctx context.Context, strategyID string, limit int) ([]Trade, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, strategy_id, user_id, symbol, side, entry_price, entry_time,
			exit_price, exit_time, quantity, profit, COALESCE(exit_reason, ''), created_at
		FROM trades WHERE strategy_id = ?
		ORDER BY created_at DESC LIMIT ?`, strategyID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Trade
	for rows.Next() {
		var t Trade
		if err := rows.Scan(&t.ID, &t.StrategyID, &t.UserID, &t.Symbol, &t.Side, &t.EntryPrice, &t.EntryTime,
			&t.ExitPrice, &t.ExitTime, &t.Quantity, &t.Profit, &t.ExitReason, &t.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}
