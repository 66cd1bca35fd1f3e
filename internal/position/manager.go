package position

import (
	"context"
	"errors"
	"sync"

	"strategy-engine/pkg/db"
)

var (
	// ErrAlreadyOpen is returned when a strategy tries to open on top of an
	// existing position. One position per strategy, no pyramiding.
	ErrAlreadyOpen = errors.New("position already open for strategy")
	// ErrNotOpen is returned when closing a strategy with no open position.
	ErrNotOpen = errors.New("no open position for strategy")
)

// Manager keeps an in-memory view of positions keyed by strategy ID while
// persisting every transition to the database for durability.
type Manager struct {
	mu        sync.RWMutex
	positions map[string]db.Position
	db        *db.Database
}

func NewManager(database *db.Database) *Manager {
	return &Manager{
		db:        database,
		positions: make(map[string]db.Position),
	}
}

// Load seeds in-memory state from the database on startup. Only open
// positions are held in memory.
func (m *Manager) Load(ctx context.Context) error {
	if m.db == nil {
		return nil
	}
	open, err := m.db.ListOpenPositions(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range open {
		m.positions[p.StrategyID] = p
	}
	return nil
}

// Get returns the in-memory position for a strategy and whether one is open.
func (m *Manager) Get(strategyID string) (db.Position, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.positions[strategyID]
	return p, ok && p.IsOpen
}

// Open marks a position open for a strategy and persists it. The caller
// fills the entry fields, including the stop and target percentages frozen
// from the parameters in force at entry.
func (m *Manager) Open(ctx context.Context, p db.Position) (db.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.positions[p.StrategyID]; ok && existing.IsOpen {
		return existing, ErrAlreadyOpen
	}

	p.IsOpen = true
	if m.db != nil {
		if err := m.db.UpsertPosition(ctx, p); err != nil {
			return db.Position{}, err
		}
	}
	m.positions[p.StrategyID] = p
	return p, nil
}

// Close clears a strategy's position and persists the transition. The closed
// position is returned so callers can record the trade.
func (m *Manager) Close(ctx context.Context, strategyID string) (db.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.positions[strategyID]
	if !ok || !p.IsOpen {
		return db.Position{}, ErrNotOpen
	}
	if m.db != nil {
		if err := m.db.ClosePosition(ctx, strategyID); err != nil {
			return db.Position{}, err
		}
	}
	delete(m.positions, strategyID)
	return p, nil
}

// Open positions, snapshot copy.
func (m *Manager) OpenPositions() []db.Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]db.Position, 0, len(m.positions))
	for _, p := range m.positions {
		if p.IsOpen {
			res = append(res, p)
		}
	}
	return res
}
