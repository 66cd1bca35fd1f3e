package exchange

import (
	"fmt"
	"math"
)

// SymbolFilter is the venue's per-symbol order constraints.
type SymbolFilter struct {
	MinQty      float64
	StepSize    float64
	TickSize    float64
	MinNotional float64
}

// stepTolerance absorbs float representation error when checking step
// alignment.
const stepTolerance = 1e-9

// Validate rejects any order outside the symbol's filters. Nothing is
// rounded or adjusted on the caller's behalf.
func (f SymbolFilter) Validate(req OrderRequest, refPrice float64) error {
	if req.Quantity <= 0 {
		return fmt.Errorf("quantity %.8f must be positive", req.Quantity)
	}
	if req.Quantity < f.MinQty {
		return fmt.Errorf("quantity %.8f below minimum %.8f", req.Quantity, f.MinQty)
	}
	if f.StepSize > 0 && !aligned(req.Quantity, f.StepSize) {
		return fmt.Errorf("quantity %.8f not a multiple of step %.8f", req.Quantity, f.StepSize)
	}
	if req.Price > 0 && f.TickSize > 0 && !aligned(req.Price, f.TickSize) {
		return fmt.Errorf("price %.8f not a multiple of tick %.8f", req.Price, f.TickSize)
	}

	price := req.Price
	if price == 0 {
		price = refPrice
	}
	if f.MinNotional > 0 && req.Quantity*price < f.MinNotional {
		return fmt.Errorf("notional %.8f below minimum %.8f", req.Quantity*price, f.MinNotional)
	}
	return nil
}

// RoundQty rounds a raw quantity down to the symbol's step size. Rounding
// is the caller's explicit choice before validation, never implicit in it.
func (f SymbolFilter) RoundQty(qty float64) float64 {
	if f.StepSize <= 0 {
		return qty
	}
	return math.Floor(qty/f.StepSize+stepTolerance) * f.StepSize
}

// RoundPrice rounds a raw price down to the symbol's tick size.
func (f SymbolFilter) RoundPrice(price float64) float64 {
	if f.TickSize <= 0 {
		return price
	}
	return math.Floor(price/f.TickSize+stepTolerance) * f.TickSize
}

func aligned(value, step float64) bool {
	ratio := value / step
	return math.Abs(ratio-math.Round(ratio)) < stepTolerance*math.Max(1, math.Abs(ratio))
}
