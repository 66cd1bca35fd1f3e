package db

import (
	"database/sql"
	"fmt"
)

const schema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS strategies (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    name TEXT NOT NULL,
    symbol TEXT NOT NULL,
    timeframe TEXT NOT NULL,
    strategy_type TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'draft',
    position_size_percent REAL NOT NULL DEFAULT 10,
    stop_loss_percent REAL NOT NULL DEFAULT 2,
    take_profit_percent REAL NOT NULL DEFAULT 4,
    rsi_period INTEGER NOT NULL DEFAULT 14,
    rsi_overbought REAL NOT NULL DEFAULT 70,
    rsi_oversold REAL NOT NULL DEFAULT 30,
    ema_fast_period INTEGER NOT NULL DEFAULT 20,
    ema_slow_period INTEGER NOT NULL DEFAULT 50,
    atr_period INTEGER NOT NULL DEFAULT 14,
    adx_period INTEGER NOT NULL DEFAULT 14,
    volume_multiplier REAL NOT NULL DEFAULT 1.5,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS strategy_conditions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    strategy_id TEXT NOT NULL,
    side TEXT NOT NULL,
    indicator TEXT NOT NULL,
    operator TEXT NOT NULL,
    threshold REAL NOT NULL DEFAULT 0,
    threshold_ref TEXT NOT NULL DEFAULT 'literal',
    ordinal INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY(strategy_id) REFERENCES strategies(id)
);

CREATE TABLE IF NOT EXISTS positions (
    strategy_id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    symbol TEXT NOT NULL,
    is_open INTEGER NOT NULL DEFAULT 0,
    side TEXT,
    entry_price REAL,
    entry_time DATETIME,
    stop_loss_percent REAL NOT NULL DEFAULT 0,
    take_profit_percent REAL NOT NULL DEFAULT 0,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY(strategy_id) REFERENCES strategies(id)
);

CREATE TABLE IF NOT EXISTS trades (
    id TEXT PRIMARY KEY,
    strategy_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    symbol TEXT NOT NULL,
    side TEXT NOT NULL,
    entry_price REAL NOT NULL,
    entry_time DATETIME NOT NULL,
    exit_price REAL,
    exit_time DATETIME,
    quantity REAL NOT NULL,
    profit REAL,
    exit_reason TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY(strategy_id) REFERENCES strategies(id)
);

CREATE TABLE IF NOT EXISTS signals (
    id TEXT PRIMARY KEY,
    strategy_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    symbol TEXT NOT NULL,
    signal_type TEXT NOT NULL,
    price REAL NOT NULL,
    reason TEXT,
    status TEXT NOT NULL DEFAULT 'pending',
    delivery_attempts INTEGER NOT NULL DEFAULT 0,
    last_attempt_at DATETIME,
    bucket TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    FOREIGN KEY(strategy_id) REFERENCES strategies(id)
);

CREATE INDEX IF NOT EXISTS idx_signals_status ON signals(status, delivery_attempts);
CREATE INDEX IF NOT EXISTS idx_signals_bucket ON signals(strategy_id, signal_type, bucket);
CREATE INDEX IF NOT EXISTS idx_trades_strategy ON trades(strategy_id, created_at);
`

// ApplyMigrations bootstraps the schema; keep lightweight for fast startup.
func ApplyMigrations(d *Database) error {
	if d == nil || d.DB == nil {
		return fmt.Errorf("database is not initialized")
	}
	if _, err := d.DB.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	// Lightweight, idempotent migrations for older DB files.
	if err := ensureColumn(d.DB, "trades", "exit_reason", "TEXT"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "signals", "bucket", "TEXT NOT NULL DEFAULT ''"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "strategy_conditions", "threshold_ref", "TEXT NOT NULL DEFAULT 'literal'"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "strategies", "volume_multiplier", "REAL NOT NULL DEFAULT 1.5"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "positions", "stop_loss_percent", "REAL NOT NULL DEFAULT 0"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "positions", "take_profit_percent", "REAL NOT NULL DEFAULT 0"); err != nil {
		return err
	}

	return nil
}

// ensureColumn adds a column if it does not already exist.
func ensureColumn(db *sql.DB, table, column, definition string) error {
	exists, err := columnExists(db, table, column)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition)
	if _, err := db.Exec(alter); err != nil {
		return fmt.Errorf("alter table %s add column %s: %w", table, column, err)
	}
	return nil
}

func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		return false, fmt.Errorf("pragma table_info(%s): %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name       string
			colType    string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
