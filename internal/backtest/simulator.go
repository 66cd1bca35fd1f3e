package backtest

import (
	"errors"
	"time"

	"strategy-engine/internal/adaptive"
	"strategy-engine/internal/market"
	"strategy-engine/internal/regime"
	"strategy-engine/internal/strategy"
	"strategy-engine/pkg/db"
)

// ErrNoMarketData is returned when the requested window has no candles.
var ErrNoMarketData = errors.New("no market data found for the specified period")

// Exit reasons recorded on closed trades.
const (
	ExitCondition  = "exit_condition"
	ExitStopLoss   = "stop_loss"
	ExitTakeProfit = "take_profit"
	ExitEndOfData  = "end_of_data"
)

// Trade is one completed round trip. Trades are appended on close and never
// mutated afterwards.
type Trade struct {
	EntryPrice float64   `json:"entry_price"`
	EntryTime  time.Time `json:"entry_time"`
	ExitPrice  float64   `json:"exit_price"`
	ExitTime   time.Time `json:"exit_time"`
	Quantity   float64   `json:"quantity"`
	Profit     float64   `json:"profit"`
	ExitReason string    `json:"exit_reason"`
}

// Result is the full outcome of a simulation run.
type Result struct {
	InitialBalance float64 `json:"initial_balance"`
	FinalBalance   float64 `json:"final_balance"`
	TotalTrades    int     `json:"total_trades"`
	WinningTrades  int     `json:"winning_trades"`
	LosingTrades   int     `json:"losing_trades"`
	WinRate        float64 `json:"win_rate"`
	TotalReturn    float64 `json:"total_return"`
	MaxDrawdown    float64 `json:"max_drawdown"`
	Trades         []Trade `json:"trades"`
}

// openPosition is the in-flight state between entry and exit. Stop and
// take-profit percentages are frozen at entry from the adjusted parameters.
type openPosition struct {
	entryPrice float64
	entryTime  time.Time
	quantity   float64
	stopLoss   float64
	takeProfit float64
}

// Run simulates a strategy over a candle window: Flat to Open on a
// satisfied entry, Open to Flat on exit condition, stop-loss, or
// take-profit. Stop-loss wins when several triggers fire on one candle. A
// position still open at the last candle is force-closed there.
func Run(candles []market.Candle, base db.Strategy, conds []strategy.Condition, initialBalance float64) (Result, error) {
	if len(candles) == 0 {
		return Result{}, ErrNoMarketData
	}

	res := Result{
		InitialBalance: initialBalance,
		FinalBalance:   initialBalance,
	}
	balance := initialBalance
	peak := initialBalance
	var pos *openPosition

	closeTrade := func(price float64, at time.Time, reason string) {
		profit := pos.quantity*price - pos.quantity*pos.entryPrice
		balance += pos.quantity * price
		res.Trades = append(res.Trades, Trade{
			EntryPrice: pos.entryPrice,
			EntryTime:  pos.entryTime,
			ExitPrice:  price,
			ExitTime:   at,
			Quantity:   pos.quantity,
			Profit:     profit,
			ExitReason: reason,
		})
		if profit > 0 {
			res.WinningTrades++
		} else {
			res.LosingTrades++
		}
		pos = nil

		if balance > peak {
			peak = balance
		}
		if peak > 0 {
			dd := (peak - balance) / peak * 100
			if dd > res.MaxDrawdown {
				res.MaxDrawdown = dd
			}
		}
	}

	for i := range candles {
		window := candles[:i+1]
		candle := candles[i]

		reg := regime.Classify(window)
		params := adaptive.Adjust(window, base, reg)
		snap := strategy.BuildSnapshot(window, base)

		if pos != nil {
			if reason, price, hit := exitTrigger(pos, candle, conds, snap, params); hit {
				closeTrade(price, candle.CloseTime, reason)
			}
			continue
		}

		if !strategy.Satisfied(conds, strategy.SideEntry, snap, params) {
			continue
		}
		positionValue := balance * base.PositionSizePercent / 100
		if positionValue <= 0 || candle.Close <= 0 {
			continue
		}
		quantity := positionValue / candle.Close
		balance -= positionValue
		pos = &openPosition{
			entryPrice: candle.Close,
			entryTime:  candle.CloseTime,
			quantity:   quantity,
			stopLoss:   params.StopLossPercent,
			takeProfit: params.TakeProfitPercent,
		}
	}

	if pos != nil {
		last := candles[len(candles)-1]
		closeTrade(last.Close, last.CloseTime, ExitEndOfData)
	}

	res.FinalBalance = balance
	res.TotalTrades = len(res.Trades)
	if res.TotalTrades > 0 {
		res.WinRate = float64(res.WinningTrades) / float64(res.TotalTrades) * 100
	}
	if initialBalance > 0 {
		res.TotalReturn = (balance - initialBalance) / initialBalance * 100
	}
	return res, nil
}

// exitTrigger checks stop-loss, take-profit, and the condition-based exit
// for the current candle. Stop-loss is reported first so a candle that
// trips several triggers still protects capital.
func exitTrigger(pos *openPosition, candle market.Candle, conds []strategy.Condition, snap strategy.Snapshot, params adaptive.Params) (string, float64, bool) {
	if pos.entryPrice > 0 {
		changePct := (candle.Close - pos.entryPrice) / pos.entryPrice * 100
		if changePct <= -pos.stopLoss {
			return ExitStopLoss, candle.Close, true
		}
		if changePct >= pos.takeProfit {
			return ExitTakeProfit, candle.Close, true
		}
	}
	if strategy.Satisfied(conds, strategy.SideExit, snap, params) {
		return ExitCondition, candle.Close, true
	}
	return "", 0, false
}
