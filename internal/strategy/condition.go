package strategy

import (
	"fmt"
	"math"

	"strategy-engine/internal/adaptive"
	"strategy-engine/pkg/db"
)

// equalsTolerance is the epsilon for the equals operator.
const equalsTolerance = 0.01

// Condition is a fully-typed entry/exit rule. Conditions are resolved via
// exhaustive matching on (indicator, operator), never by raw string
// comparison at evaluation time.
type Condition struct {
	Side         Side
	Indicator    IndicatorKind
	Operator     Operator
	Threshold    float64
	ThresholdRef ThresholdRef
}

// FromRow converts a stored condition row, rejecting unknown labels.
func FromRow(row db.Condition) (Condition, error) {
	side, err := ParseSide(row.Side)
	if err != nil {
		return Condition{}, err
	}
	ind, err := ParseIndicator(row.Indicator)
	if err != nil {
		return Condition{}, err
	}
	op, err := ParseOperator(row.Operator)
	if err != nil {
		return Condition{}, err
	}
	ref, err := ParseThresholdRef(row.ThresholdRef)
	if err != nil {
		return Condition{}, err
	}
	return Condition{
		Side:         side,
		Indicator:    ind,
		Operator:     op,
		Threshold:    row.Threshold,
		ThresholdRef: ref,
	}, nil
}

// FromRows converts all rows, preserving order.
func FromRows(rows []db.Condition) ([]Condition, error) {
	out := make([]Condition, 0, len(rows))
	for _, row := range rows {
		c, err := FromRow(row)
		if err != nil {
			return nil, fmt.Errorf("condition %d: %w", row.ID, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// resolveThreshold picks the effective threshold: literal or one of the
// adjusted parameters, so conditions follow the adaptive layer, not the raw
// config.
func (c Condition) resolveThreshold(params adaptive.Params) float64 {
	switch c.ThresholdRef {
	case RefRSIOverbought:
		return params.RSIOverbought
	case RefRSIOversold:
		return params.RSIOversold
	case RefVolumeGate:
		return params.VolumeMultiplier
	default:
		return c.Threshold
	}
}

// Evaluate reports whether the condition holds on the current snapshot.
// Cross operators compare the previous and current candle against the
// threshold and require at least two candles of indicator history.
func (c Condition) Evaluate(snap Snapshot, params adaptive.Params) bool {
	value, ok := snap.Value(c.Indicator)
	if !ok {
		return false
	}
	threshold := c.resolveThreshold(params)

	switch c.Operator {
	case OpGreaterThan:
		return value > threshold
	case OpLessThan:
		return value < threshold
	case OpEquals:
		return math.Abs(value-threshold) <= equalsTolerance
	case OpCrossesAbove:
		prev, hasPrev := snap.Previous(c.Indicator)
		return hasPrev && prev <= threshold && value > threshold
	case OpCrossesBelow:
		prev, hasPrev := snap.Previous(c.Indicator)
		return hasPrev && prev >= threshold && value < threshold
	default:
		return false
	}
}

// Satisfied reports whether every condition for the given side holds
// (logical AND). A side with no conditions is never satisfied: silence is
// not consent to trade.
func Satisfied(conds []Condition, side Side, snap Snapshot, params adaptive.Params) bool {
	matched := false
	for _, c := range conds {
		if c.Side != side {
			continue
		}
		if !c.Evaluate(snap, params) {
			return false
		}
		matched = true
	}
	return matched
}
