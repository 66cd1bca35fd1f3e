package strategy

import "fmt"

// Strategy status values. Only 'active' strategies are evaluated live.
const (
	StatusDraft    = "draft"
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Side tags a condition as an entry or exit rule.
type Side string

const (
	SideEntry Side = "entry"
	SideExit  Side = "exit"
)

// IndicatorKind is the closed set of values a condition may reference.
type IndicatorKind string

const (
	IndRSI         IndicatorKind = "rsi"
	IndEMAFast     IndicatorKind = "ema_fast"
	IndEMASlow     IndicatorKind = "ema_slow"
	IndADX         IndicatorKind = "adx"
	IndATR         IndicatorKind = "atr"
	IndPrice       IndicatorKind = "price"
	IndVolumeRatio IndicatorKind = "volume_ratio"
)

// Operator is the closed set of comparisons a condition may use.
type Operator string

const (
	OpGreaterThan  Operator = "greater_than"
	OpLessThan     Operator = "less_than"
	OpEquals       Operator = "equals"
	OpCrossesAbove Operator = "crosses_above"
	OpCrossesBelow Operator = "crosses_below"
)

// ThresholdRef selects where a condition's threshold comes from: a literal
// value or one of the adaptively adjusted parameters.
type ThresholdRef string

const (
	RefLiteral       ThresholdRef = "literal"
	RefRSIOverbought ThresholdRef = "rsi_overbought"
	RefRSIOversold   ThresholdRef = "rsi_oversold"
	RefVolumeGate    ThresholdRef = "volume_gate"
)

// ParseSide validates a stored side label.
func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case SideEntry, SideExit:
		return Side(s), nil
	}
	return "", fmt.Errorf("unknown condition side %q", s)
}

// ParseIndicator validates a stored indicator label.
func ParseIndicator(s string) (IndicatorKind, error) {
	switch IndicatorKind(s) {
	case IndRSI, IndEMAFast, IndEMASlow, IndADX, IndATR, IndPrice, IndVolumeRatio:
		return IndicatorKind(s), nil
	}
	return "", fmt.Errorf("unknown indicator %q", s)
}

// ParseOperator validates a stored operator label.
func ParseOperator(s string) (Operator, error) {
	switch Operator(s) {
	case OpGreaterThan, OpLessThan, OpEquals, OpCrossesAbove, OpCrossesBelow:
		return Operator(s), nil
	}
	return "", fmt.Errorf("unknown operator %q", s)
}

// ParseThresholdRef validates a stored threshold reference. Empty maps to
// literal for rows written before the column existed.
func ParseThresholdRef(s string) (ThresholdRef, error) {
	if s == "" {
		return RefLiteral, nil
	}
	switch ThresholdRef(s) {
	case RefLiteral, RefRSIOverbought, RefRSIOversold, RefVolumeGate:
		return ThresholdRef(s), nil
	}
	return "", fmt.Errorf("unknown threshold ref %q", s)
}
