package exchange

import (
	"context"
	"time"
)

// ExchangePosition is one open position as reported by the venue. Entries
// with Size == 0 are filtered out by implementations before returning.
type ExchangePosition struct {
	Symbol        string
	Size          float64
	EntryPrice    float64
	MarkPrice     float64
	UnrealizedPnl float64
}

// PositionSource fetches the venue's authoritative open positions for one
// user. One call covers the whole account, so sweeps can batch per user.
type PositionSource interface {
	OpenPositions(ctx context.Context, userID string) ([]ExchangePosition, error)
}

// OrderRequest carries raw decision prices and sizes. Rounding to the
// venue's step and tick sizes happens in the placer, which rejects rather
// than adjusts anything outside the symbol's filters.
type OrderRequest struct {
	Symbol   string
	Side     string
	Quantity float64
	Price    float64 // 0 means market
}

// OrderResult identifies an accepted order.
type OrderResult struct {
	OrderID  string
	Symbol   string
	Side     string
	Quantity float64
	Price    float64
	PlacedAt time.Time
}

// OrderPlacer submits validated orders to the venue.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, userID string, req OrderRequest) (OrderResult, error)
}
