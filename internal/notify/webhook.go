package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// Webhook posts notifications as JSON to an external delivery service.
// A circuit breaker stops calls after repeated failures so a dead endpoint
// costs one fast error instead of a timeout per decision.
type Webhook struct {
	url     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

func NewWebhook(url string, timeout time.Duration, logger zerolog.Logger) *Webhook {
	logger = logger.With().Str("component", "notify").Str("url", url).Logger()
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "notify-webhook",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
			},
		}),
	}
}

func (w *Webhook) Notify(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	_, err = w.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := w.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("failed to deliver notification: %w", err)
	}
	return nil
}

// State reports the breaker state.
func (w *Webhook) State() gobreaker.State {
	return w.breaker.State()
}
