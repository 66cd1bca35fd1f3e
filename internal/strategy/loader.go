package strategy

import (
	"database/sql"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SeedConfig is a strategy seed entry in YAML.
type SeedConfig struct {
	ID                  string  `yaml:"id"`
	UserID              string  `yaml:"user_id"`
	Name                string  `yaml:"name"`
	Symbol              string  `yaml:"symbol"`
	Timeframe           string  `yaml:"timeframe"`
	Type                string  `yaml:"type"`
	Status              string  `yaml:"status"`
	PositionSizePercent float64 `yaml:"position_size_percent"`
	StopLossPercent     float64 `yaml:"stop_loss_percent"`
	TakeProfitPercent   float64 `yaml:"take_profit_percent"`
	RSIPeriod           int     `yaml:"rsi_period"`
	RSIOverbought       float64 `yaml:"rsi_overbought"`
	RSIOversold         float64 `yaml:"rsi_oversold"`
	EMAFastPeriod       int     `yaml:"ema_fast_period"`
	EMASlowPeriod       int     `yaml:"ema_slow_period"`
	ATRPeriod           int     `yaml:"atr_period"`
	ADXPeriod           int     `yaml:"adx_period"`
	VolumeMultiplier    float64 `yaml:"volume_multiplier"`

	Conditions []SeedCondition `yaml:"conditions"`
}

// SeedCondition is a condition entry attached to a seed strategy.
type SeedCondition struct {
	Side         string  `yaml:"side"`
	Indicator    string  `yaml:"indicator"`
	Operator     string  `yaml:"operator"`
	Threshold    float64 `yaml:"threshold"`
	ThresholdRef string  `yaml:"threshold_ref"`
}

// SeedFile is the top-level YAML structure.
type SeedFile struct {
	Strategies []SeedConfig `yaml:"strategies"`
}

// LoadSeedFile reads strategy seeds from a YAML file.
func LoadSeedFile(path string) ([]SeedConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file SeedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	return file.Strategies, nil
}

// validate rejects seeds with unknown condition labels before anything is
// written.
func (cfg SeedConfig) validate() error {
	if cfg.ID == "" || cfg.UserID == "" {
		return fmt.Errorf("strategy %q: id and user_id are required", cfg.Name)
	}
	for i, sc := range cfg.Conditions {
		if _, err := ParseSide(sc.Side); err != nil {
			return fmt.Errorf("strategy %q condition %d: %w", cfg.Name, i, err)
		}
		if _, err := ParseIndicator(sc.Indicator); err != nil {
			return fmt.Errorf("strategy %q condition %d: %w", cfg.Name, i, err)
		}
		if _, err := ParseOperator(sc.Operator); err != nil {
			return fmt.Errorf("strategy %q condition %d: %w", cfg.Name, i, err)
		}
		if _, err := ParseThresholdRef(sc.ThresholdRef); err != nil {
			return fmt.Errorf("strategy %q condition %d: %w", cfg.Name, i, err)
		}
	}
	return nil
}

// SyncSeedsToDB upserts seed strategies and replaces their condition sets.
func SyncSeedsToDB(db *sql.DB, configs []SeedConfig) error {
	for _, cfg := range configs {
		if err := cfg.validate(); err != nil {
			return err
		}
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO strategies (
			id, user_id, name, symbol, timeframe, strategy_type, status,
			position_size_percent, stop_loss_percent, take_profit_percent,
			rsi_period, rsi_overbought, rsi_oversold,
			ema_fast_period, ema_slow_period, atr_period, adx_period,
			volume_multiplier, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			symbol = excluded.symbol,
			timeframe = excluded.timeframe,
			strategy_type = excluded.strategy_type,
			status = excluded.status,
			position_size_percent = excluded.position_size_percent,
			stop_loss_percent = excluded.stop_loss_percent,
			take_profit_percent = excluded.take_profit_percent,
			rsi_period = excluded.rsi_period,
			rsi_overbought = excluded.rsi_overbought,
			rsi_oversold = excluded.rsi_oversold,
			ema_fast_period = excluded.ema_fast_period,
			ema_slow_period = excluded.ema_slow_period,
			atr_period = excluded.atr_period,
			adx_period = excluded.adx_period,
			volume_multiplier = excluded.volume_multiplier,
			updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	condStmt, err := tx.Prepare(`
		INSERT INTO strategy_conditions (strategy_id, side, indicator, operator, threshold, threshold_ref, ordinal)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer condStmt.Close()

	for _, cfg := range configs {
		status := cfg.Status
		if status == "" {
			status = StatusDraft
		}
		_, err = stmt.Exec(
			cfg.ID, cfg.UserID, cfg.Name, cfg.Symbol, cfg.Timeframe, cfg.Type, status,
			cfg.PositionSizePercent, cfg.StopLossPercent, cfg.TakeProfitPercent,
			cfg.RSIPeriod, cfg.RSIOverbought, cfg.RSIOversold,
			cfg.EMAFastPeriod, cfg.EMASlowPeriod, cfg.ATRPeriod, cfg.ADXPeriod,
			cfg.VolumeMultiplier,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert strategy %s: %w", cfg.Name, err)
		}

		if _, err := tx.Exec(`DELETE FROM strategy_conditions WHERE strategy_id = ?`, cfg.ID); err != nil {
			return fmt.Errorf("failed to reset conditions for strategy %s: %w", cfg.Name, err)
		}
		for i, sc := range cfg.Conditions {
			ref := sc.ThresholdRef
			if ref == "" {
				ref = string(RefLiteral)
			}
			if _, err := condStmt.Exec(cfg.ID, sc.Side, sc.Indicator, sc.Operator, sc.Threshold, ref, i); err != nil {
				return fmt.Errorf("failed to insert condition for strategy %s: %w", cfg.Name, err)
			}
		}
	}

	return tx.Commit()
}
