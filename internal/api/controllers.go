package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"strategy-engine/internal/backtest"
	"strategy-engine/internal/strategy"
	"strategy-engine/pkg/db"
)

type conditionRequest struct {
	Side         string  `json:"side" binding:"required"`
	Indicator    string  `json:"indicator" binding:"required"`
	Operator     string  `json:"operator" binding:"required"`
	Threshold    float64 `json:"threshold"`
	ThresholdRef string  `json:"threshold_ref"`
}

type strategyRequest struct {
	Name                string             `json:"name" binding:"required"`
	Symbol              string             `json:"symbol" binding:"required"`
	Timeframe           string             `json:"timeframe" binding:"required"`
	StrategyType        string             `json:"strategy_type"`
	PositionSizePercent float64            `json:"position_size_percent"`
	StopLossPercent     float64            `json:"stop_loss_percent"`
	TakeProfitPercent   float64            `json:"take_profit_percent"`
	RSIPeriod           int                `json:"rsi_period"`
	RSIOverbought       float64            `json:"rsi_overbought"`
	RSIOversold         float64            `json:"rsi_oversold"`
	EMAFastPeriod       int                `json:"ema_fast_period"`
	EMASlowPeriod       int                `json:"ema_slow_period"`
	ATRPeriod           int                `json:"atr_period"`
	ADXPeriod           int                `json:"adx_period"`
	VolumeMultiplier    float64            `json:"volume_multiplier"`
	Conditions          []conditionRequest `json:"conditions"`
}

func (r strategyRequest) toModel(id, userID string) db.Strategy {
	return db.Strategy{
		ID:                  id,
		UserID:              userID,
		Name:                r.Name,
		Symbol:              r.Symbol,
		Timeframe:           r.Timeframe,
		StrategyType:        r.StrategyType,
		Status:              strategy.StatusDraft,
		PositionSizePercent: r.PositionSizePercent,
		StopLossPercent:     r.StopLossPercent,
		TakeProfitPercent:   r.TakeProfitPercent,
		RSIPeriod:           r.RSIPeriod,
		RSIOverbought:       r.RSIOverbought,
		RSIOversold:         r.RSIOversold,
		EMAFastPeriod:       r.EMAFastPeriod,
		EMASlowPeriod:       r.EMASlowPeriod,
		ATRPeriod:           r.ATRPeriod,
		ADXPeriod:           r.ADXPeriod,
		VolumeMultiplier:    r.VolumeMultiplier,
	}
}

// validateConditions rejects any unknown condition label up front so bad
// rows never reach the evaluator.
func validateConditions(conds []conditionRequest) error {
	for _, cr := range conds {
		if _, err := strategy.ParseSide(cr.Side); err != nil {
			return err
		}
		if _, err := strategy.ParseIndicator(cr.Indicator); err != nil {
			return err
		}
		if _, err := strategy.ParseOperator(cr.Operator); err != nil {
			return err
		}
		if _, err := strategy.ParseThresholdRef(cr.ThresholdRef); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) listStrategies(c *gin.Context) {
	strats, err := s.DB.ListStrategiesByUser(c.Request.Context(), c.GetString("UserID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"strategies": strats})
}

func (s *Server) createStrategy(c *gin.Context) {
	var req strategyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validateConditions(req.Conditions); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	strat := req.toModel(uuid.NewString(), c.GetString("UserID"))
	if err := s.DB.CreateStrategy(ctx, strat); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	for i, cr := range req.Conditions {
		ref := cr.ThresholdRef
		if ref == "" {
			ref = string(strategy.RefLiteral)
		}
		if err := s.DB.CreateCondition(ctx, db.Condition{
			StrategyID:   strat.ID,
			Side:         cr.Side,
			Indicator:    cr.Indicator,
			Operator:     cr.Operator,
			Threshold:    cr.Threshold,
			ThresholdRef: ref,
			Ordinal:      i,
		}); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusCreated, gin.H{"id": strat.ID})
}

// ownedStrategy loads a strategy and enforces that the acting user owns it.
func (s *Server) ownedStrategy(c *gin.Context) (db.Strategy, bool) {
	strat, err := s.DB.GetStrategy(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "strategy not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return db.Strategy{}, false
	}
	if strat.UserID != c.GetString("UserID") {
		c.JSON(http.StatusNotFound, gin.H{"error": "strategy not found"})
		return db.Strategy{}, false
	}
	return strat, true
}

func (s *Server) getStrategy(c *gin.Context) {
	strat, ok := s.ownedStrategy(c)
	if !ok {
		return
	}
	conds, err := s.DB.ListConditions(c.Request.Context(), strat.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"strategy": strat, "conditions": conds})
}

func (s *Server) updateStrategy(c *gin.Context) {
	strat, ok := s.ownedStrategy(c)
	if !ok {
		return
	}
	var req strategyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated := req.toModel(strat.ID, strat.UserID)
	updated.Status = strat.Status
	if err := s.DB.UpdateStrategy(c.Request.Context(), updated); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": strat.ID})
}

func (s *Server) deleteStrategy(c *gin.Context) {
	if _, ok := s.ownedStrategy(c); !ok {
		return
	}
	if err := s.DB.DeleteStrategy(c.Request.Context(), c.Param("id"), c.GetString("UserID")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id")})
}

func (s *Server) cloneStrategy(c *gin.Context) {
	if _, ok := s.ownedStrategy(c); !ok {
		return
	}
	newID, err := s.DB.CloneStrategy(c.Request.Context(), c.Param("id"), c.GetString("UserID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": newID})
}

func (s *Server) activateStrategy(c *gin.Context) {
	s.setStatus(c, strategy.StatusActive)
}

func (s *Server) deactivateStrategy(c *gin.Context) {
	s.setStatus(c, strategy.StatusInactive)
}

func (s *Server) setStatus(c *gin.Context, status string) {
	if _, ok := s.ownedStrategy(c); !ok {
		return
	}
	if err := s.DB.SetStrategyStatus(c.Request.Context(), c.Param("id"), c.GetString("UserID"), status); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "status": status})
}

type backtestRequest struct {
	InitialBalance float64 `json:"initial_balance"`
	CandleLimit    int     `json:"candle_limit"`
}

func (s *Server) runBacktest(c *gin.Context) {
	strat, ok := s.ownedStrategy(c)
	if !ok {
		return
	}

	req := backtestRequest{InitialBalance: 1000, CandleLimit: 500}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	ctx := c.Request.Context()
	rows, err := s.DB.ListConditions(ctx, strat.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	conds, err := strategy.FromRows(rows)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	candles, err := s.Candles.Candles(ctx, strat.Symbol, strat.Timeframe, req.CandleLimit)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	result, err := backtest.Run(candles, strat, conds, req.InitialBalance)
	if err != nil {
		if errors.Is(err, backtest.ErrNoMarketData) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) listTrades(c *gin.Context) {
	if _, ok := s.ownedStrategy(c); !ok {
		return
	}
	limit := queryInt(c, "limit", 100)
	trades, err := s.DB.ListTradesByStrategy(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *Server) listSignals(c *gin.Context) {
	limit := queryInt(c, "limit", 100)
	signals, err := s.DB.ListSignalsByUser(c.Request.Context(), c.GetString("UserID"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals": signals})
}

func (s *Server) listPositions(c *gin.Context) {
	userID := c.GetString("UserID")
	all := s.Positions.OpenPositions()
	mine := make([]db.Position, 0, len(all))
	for _, p := range all {
		if p.UserID == userID {
			mine = append(mine, p)
		}
	}
	c.JSON(http.StatusOK, gin.H{"positions": mine})
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
