package strategy

import (
	"testing"
	"time"

	"strategy-engine/internal/adaptive"
	"strategy-engine/internal/market"
	"strategy-engine/pkg/db"
)

func snapWith(values map[IndicatorKind]seriesValue) Snapshot {
	return Snapshot{values: values}
}

func TestFromRowRejectsUnknownLabels(t *testing.T) {
	tests := []struct {
		name string
		row  db.Condition
	}{
		{"bad side", db.Condition{Side: "long", Indicator: "rsi", Operator: "greater_than"}},
		{"bad indicator", db.Condition{Side: "entry", Indicator: "macd", Operator: "greater_than"}},
		{"bad operator", db.Condition{Side: "entry", Indicator: "rsi", Operator: "above"}},
		{"bad ref", db.Condition{Side: "entry", Indicator: "rsi", Operator: "greater_than", ThresholdRef: "adaptive"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := FromRow(tt.row); err == nil {
				t.Fatalf("expected error for %+v", tt.row)
			}
		})
	}

	row := db.Condition{Side: "entry", Indicator: "rsi", Operator: "less_than", Threshold: 30}
	c, err := FromRow(row)
	if err != nil {
		t.Fatalf("valid row rejected: %v", err)
	}
	if c.ThresholdRef != RefLiteral {
		t.Fatalf("empty ref should default to literal, got %q", c.ThresholdRef)
	}
}

func TestEvaluateOperators(t *testing.T) {
	snap := snapWith(map[IndicatorKind]seriesValue{
		IndRSI:   {cur: 72, prev: 68, hasPrev: true, ok: true},
		IndPrice: {cur: 100, ok: true},
	})
	params := adaptive.Params{RSIOverbought: 70}

	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{"greater than true", Condition{Indicator: IndRSI, Operator: OpGreaterThan, Threshold: 70}, true},
		{"greater than false", Condition{Indicator: IndRSI, Operator: OpGreaterThan, Threshold: 80}, false},
		{"less than", Condition{Indicator: IndRSI, Operator: OpLessThan, Threshold: 80}, true},
		{"equals within tolerance", Condition{Indicator: IndPrice, Operator: OpEquals, Threshold: 100.005}, true},
		{"equals outside tolerance", Condition{Indicator: IndPrice, Operator: OpEquals, Threshold: 100.5}, false},
		{"crosses above", Condition{Indicator: IndRSI, Operator: OpCrossesAbove, Threshold: 70}, true},
		{"crosses above already over", Condition{Indicator: IndRSI, Operator: OpCrossesAbove, Threshold: 60}, false},
		{"crosses below wrong direction", Condition{Indicator: IndRSI, Operator: OpCrossesBelow, Threshold: 70}, false},
		{"cross without history", Condition{Indicator: IndPrice, Operator: OpCrossesAbove, Threshold: 50}, false},
		{"missing indicator", Condition{Indicator: IndADX, Operator: OpGreaterThan, Threshold: 0}, false},
		{"adaptive threshold", Condition{Indicator: IndRSI, Operator: OpCrossesAbove, Threshold: 99, ThresholdRef: RefRSIOverbought}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cond.Evaluate(snap, params); got != tt.want {
				t.Fatalf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSatisfiedIsConjunction(t *testing.T) {
	snap := snapWith(map[IndicatorKind]seriesValue{
		IndRSI:         {cur: 25, ok: true},
		IndVolumeRatio: {cur: 2.5, ok: true},
	})
	params := adaptive.Params{RSIOversold: 30, VolumeMultiplier: 2.0}

	conds := []Condition{
		{Side: SideEntry, Indicator: IndRSI, Operator: OpLessThan, ThresholdRef: RefRSIOversold},
		{Side: SideEntry, Indicator: IndVolumeRatio, Operator: OpGreaterThan, ThresholdRef: RefVolumeGate},
		{Side: SideExit, Indicator: IndRSI, Operator: OpGreaterThan, Threshold: 70},
	}

	if !Satisfied(conds, SideEntry, snap, params) {
		t.Fatal("all entry conditions hold, expected satisfied")
	}
	if Satisfied(conds, SideExit, snap, params) {
		t.Fatal("exit condition does not hold")
	}

	// One failing entry condition vetoes the side.
	conds[1].ThresholdRef = RefLiteral
	conds[1].Threshold = 5
	if Satisfied(conds, SideEntry, snap, params) {
		t.Fatal("failing condition should veto the side")
	}
}

func TestSatisfiedEmptySideIsFalse(t *testing.T) {
	snap := snapWith(map[IndicatorKind]seriesValue{IndRSI: {cur: 50, ok: true}})
	if Satisfied(nil, SideEntry, snap, adaptive.Params{}) {
		t.Fatal("no conditions should never satisfy")
	}
	exitOnly := []Condition{{Side: SideExit, Indicator: IndRSI, Operator: OpLessThan, Threshold: 60}}
	if Satisfied(exitOnly, SideEntry, snap, adaptive.Params{}) {
		t.Fatal("side with no conditions should never satisfy")
	}
}

func testCandles(n int) []market.Candle {
	candles := make([]market.Candle, n)
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	price := 100.0
	for i := range candles {
		price += 0.5
		candles[i] = market.Candle{
			Open:      price - 0.5,
			High:      price + 1,
			Low:       price - 1,
			Close:     price,
			Volume:    1000,
			OpenTime:  base.Add(time.Duration(i) * time.Hour),
			CloseTime: base.Add(time.Duration(i+1) * time.Hour),
		}
	}
	return candles
}

func TestBuildSnapshotFullWindow(t *testing.T) {
	base := db.Strategy{
		RSIPeriod: 14, EMAFastPeriod: 9, EMASlowPeriod: 21,
		ATRPeriod: 14, ADXPeriod: 14,
	}
	snap := BuildSnapshot(testCandles(120), base)

	for _, kind := range []IndicatorKind{IndRSI, IndEMAFast, IndEMASlow, IndADX, IndATR, IndPrice, IndVolumeRatio} {
		if _, ok := snap.Value(kind); !ok {
			t.Fatalf("indicator %s missing from full-window snapshot", kind)
		}
		if _, ok := snap.Previous(kind); !ok {
			t.Fatalf("indicator %s missing previous value", kind)
		}
	}

	price, _ := snap.Value(IndPrice)
	prev, _ := snap.Previous(IndPrice)
	if price <= prev {
		t.Fatalf("rising series: price %f should exceed previous %f", price, prev)
	}

	ratio, _ := snap.Value(IndVolumeRatio)
	if ratio < 0.99 || ratio > 1.01 {
		t.Fatalf("constant volume should give ratio near 1, got %f", ratio)
	}

	rsi, _ := snap.Value(IndRSI)
	if rsi <= 50 {
		t.Fatalf("rising series should give RSI above 50, got %f", rsi)
	}
}

func TestBuildSnapshotShortWindow(t *testing.T) {
	base := db.Strategy{
		RSIPeriod: 14, EMAFastPeriod: 9, EMASlowPeriod: 21,
		ATRPeriod: 14, ADXPeriod: 14,
	}
	snap := BuildSnapshot(testCandles(5), base)

	if _, ok := snap.Value(IndRSI); ok {
		t.Fatal("RSI should be unset on a 5-candle window")
	}
	if _, ok := snap.Value(IndVolumeRatio); ok {
		t.Fatal("volume ratio needs a full baseline")
	}
	if _, ok := snap.Value(IndPrice); !ok {
		t.Fatal("price is always available when candles exist")
	}

	empty := BuildSnapshot(nil, base)
	if _, ok := empty.Value(IndPrice); ok {
		t.Fatal("empty window has no price")
	}
}
