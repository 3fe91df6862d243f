package notify

import (
	"context"
	"log/slog"

	"github.com/rl1809/campus-orders/internal/core/domain"
)

// Channel broadcasts an event to one outbound medium.
type Channel interface {
	Name() string
	Send(ctx context.Context, event domain.PaymentEvent) error
}

// LogChannel writes events to the structured log. It is the last resort in
// the fallback chain and never fails.
type LogChannel struct {
	logger *slog.Logger
}

func NewLogChannel(logger *slog.Logger) *LogChannel {
	return &LogChannel{logger: logger}
}

func (c *LogChannel) Name() string { return "log" }

func (c *LogChannel) Send(ctx context.Context, event domain.PaymentEvent) error {
	c.logger.InfoContext(ctx, "payment event",
		"event_id", event.ID,
		"type", event.Type,
		"payment_id", event.PaymentID,
		"user_id", event.UserID,
		"reference", event.Reference,
		"status", event.Status,
	)
	return nil
}
