package port

import (
	"context"
	"io"

	"github.com/rl1809/campus-orders/internal/core/domain"
)

type Notifier interface {
	// Emit hands an event to the dispatcher without waiting for delivery
	Emit(ctx context.Context, event domain.PaymentEvent) error
}

type ImageStore interface {
	// Upload stores an image and returns the URL it is recorded under
	Upload(ctx context.Context, data []byte, contentType string) (string, error)

	// Open reads back an image by that URL, ErrNotFound if the store does not hold it
	Open(ctx context.Context, url string) (io.ReadSeekCloser, error)
}
