package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// LogNotifier writes notifications to the structured log. Used in dry runs
// where no outward channel is configured.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "log_notifier").Logger()}
}

func (l *LogNotifier) Deliver(_ context.Context, destination string, msg Message) error {
	if destination == "" {
		return ErrNoDestination
	}
	l.log.Info().
		Str("destination", destination).
		Str("signal_id", msg.SignalID).
		Str("strategy_id", msg.StrategyID).
		Str("symbol", msg.Symbol).
		Str("signal_type", msg.SignalType).
		Float64("price", msg.Price).
		Str("reason", msg.Reason).
		Msg("signal notification")
	return nil
}
