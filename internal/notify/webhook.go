package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// WebhookNotifier posts signal messages as JSON to a per-user webhook URL.
// The HTTP client carries a hard timeout so a stalled destination reads as
// a failed attempt, never a hung sweep.
type WebhookNotifier struct {
	client *http.Client
	log    zerolog.Logger
}

func NewWebhookNotifier(timeout time.Duration, log zerolog.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		client: &http.Client{Timeout: timeout},
		log:    log.With().Str("component", "webhook_notifier").Logger(),
	}
}

func (w *WebhookNotifier) Deliver(ctx context.Context, destination string, msg Message) error {
	if destination == "" {
		return ErrNoDestination
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, destination, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("deliver notification: destination returned %s", resp.Status)
	}

	w.log.Debug().
		Str("signal_id", msg.SignalID).
		Str("signal_type", msg.SignalType).
		Msg("notification delivered")
	return nil
}
