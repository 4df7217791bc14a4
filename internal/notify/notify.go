// Package notify tells claimants about decisions on their claims.
// Delivery is best effort: callers send after commit and only log failures.
package notify

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Kind names the event a notification reports.
type Kind string

const (
	InfoRequested Kind = "info_requested"
	ClaimApproved Kind = "claim_approved"
	ClaimRejected Kind = "claim_rejected"
	ClaimReturned Kind = "claim_returned"
)

// Notification is one message for one claimant.
type Notification struct {
	Recipient string    `json:"recipient"`
	ClaimID   uuid.UUID `json:"claimId"`
	Kind      Kind      `json:"kind"`
	Message   string    `json:"message,omitempty"`
}

// Notifier delivers notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the service log. It is used when no
// webhook is configured.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notify").Logger()}
}

func (n *LogNotifier) Notify(_ context.Context, msg Notification) error {
	n.logger.Info().
		Str("recipient", msg.Recipient).
		Str("claim_id", msg.ClaimID.String()).
		Str("kind", string(msg.Kind)).
		Str("message", msg.Message).
		Msg("notification")
	return nil
}
