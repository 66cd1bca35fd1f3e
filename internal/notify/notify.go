package notify

import (
	"context"
	"errors"
	"time"
)

// ErrNoDestination marks a structurally impossible delivery: the user has
// no notification target configured. Callers treat it as a normal failure
// for budget purposes rather than retrying it on a special track.
var ErrNoDestination = errors.New("no notification destination configured")

// Message is the outward notification payload for a signal.
type Message struct {
	SignalID   string    `json:"signal_id"`
	StrategyID string    `json:"strategy_id"`
	Symbol     string    `json:"symbol"`
	SignalType string    `json:"signal_type"`
	Price      float64   `json:"price"`
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"created_at"`
}

// Notifier delivers a message to one destination. Implementations must be
// idempotent from the caller's perspective: re-delivery after a reported
// failure may duplicate the message but never corrupts state.
type Notifier interface {
	Deliver(ctx context.Context, destination string, msg Message) error
}

// DestinationResolver maps a user to their configured destination. An empty
// result is reported as ErrNoDestination.
type DestinationResolver interface {
	Destination(ctx context.Context, userID string) (string, error)
}

// StaticDestinations resolves destinations from a fixed map.
type StaticDestinations map[string]string

func (s StaticDestinations) Destination(_ context.Context, userID string) (string, error) {
	dest, ok := s[userID]
	if !ok || dest == "" {
		return "", ErrNoDestination
	}
	return dest, nil
}
