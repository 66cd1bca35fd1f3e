package exchange

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"strategy-engine/pkg/clock"
)

// Paper is an in-process venue for dry runs. Buy orders open or grow a
// position, sell orders shrink or close it. Filters are enforced the same
// way a real venue would enforce them.
type Paper struct {
	mu        sync.RWMutex
	clk       clock.Clock
	filters   map[string]SymbolFilter
	positions map[string]map[string]ExchangePosition // userID -> symbol
}

func NewPaper(clk clock.Clock, filters map[string]SymbolFilter) *Paper {
	if filters == nil {
		filters = make(map[string]SymbolFilter)
	}
	return &Paper{
		clk:       clk,
		filters:   filters,
		positions: make(map[string]map[string]ExchangePosition),
	}
}

// OpenPositions returns the user's nonzero positions.
func (p *Paper) OpenPositions(ctx context.Context, userID string) ([]ExchangePosition, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]ExchangePosition, 0, len(p.positions[userID]))
	for _, pos := range p.positions[userID] {
		if pos.Size != 0 {
			out = append(out, pos)
		}
	}
	return out, nil
}

// PlaceOrder applies the symbol filter, then adjusts the user's book.
func (p *Paper) PlaceOrder(ctx context.Context, userID string, req OrderRequest) (OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	filter := p.filters[req.Symbol]
	if err := filter.Validate(req, req.Price); err != nil {
		return OrderResult{}, fmt.Errorf("order rejected: %w", err)
	}

	book, ok := p.positions[userID]
	if !ok {
		book = make(map[string]ExchangePosition)
		p.positions[userID] = book
	}

	pos := book[req.Symbol]
	pos.Symbol = req.Symbol
	switch req.Side {
	case "buy":
		total := pos.Size + req.Quantity
		if total != 0 {
			pos.EntryPrice = (pos.EntryPrice*pos.Size + req.Price*req.Quantity) / total
		}
		pos.Size = total
	case "sell":
		pos.Size -= req.Quantity
		if pos.Size <= 0 {
			pos.Size = 0
			pos.EntryPrice = 0
		}
	default:
		return OrderResult{}, fmt.Errorf("order rejected: unknown side %q", req.Side)
	}
	pos.MarkPrice = req.Price
	book[req.Symbol] = pos

	return OrderResult{
		OrderID:  uuid.NewString(),
		Symbol:   req.Symbol,
		Side:     req.Side,
		Quantity: req.Quantity,
		Price:    req.Price,
		PlacedAt: p.clk.Now(),
	}, nil
}

// SetPosition overrides a user's position directly. Used to stage venue
// state in dry runs.
func (p *Paper) SetPosition(userID string, pos ExchangePosition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	book, ok := p.positions[userID]
	if !ok {
		book = make(map[string]ExchangePosition)
		p.positions[userID] = book
	}
	book[pos.Symbol] = pos
}

// ClearPosition removes a user's position for a symbol.
func (p *Paper) ClearPosition(userID, symbol string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.positions[userID], symbol)
}
