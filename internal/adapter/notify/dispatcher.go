package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/campus-orders/internal/core/domain"
	"github.com/rl1809/campus-orders/internal/port"
)

const deliveryTimeout = 5 * time.Second

var (
	ErrQueueFull = errors.New("notification queue full")
	ErrClosed    = errors.New("dispatcher closed")
)

// Dispatcher accepts payment events on a bounded queue and delivers them from
// a pool of workers: first a notification row for the owner, then a broadcast
// through channels in order until one succeeds.
type Dispatcher struct {
	store    port.NotificationRepository
	channels []Channel
	queue    chan domain.PaymentEvent

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(store port.NotificationRepository, queueSize int, channels ...Channel) *Dispatcher {
	return &Dispatcher{
		store:    store,
		channels: channels,
		queue:    make(chan domain.PaymentEvent, queueSize),
	}
}

// Start launches n workers draining the queue.
func (d *Dispatcher) Start(n int) {
	for i := 0; i < n; i++ {
		d.wg.Add(1)
		go func(id int) {
			defer d.wg.Done()
			d.workerLoop(id)
		}(i)
	}
	slog.Info("notification workers started", "count", n)
}

// Emit never blocks; a full queue is reported to the caller.
func (d *Dispatcher) Emit(ctx context.Context, event domain.PaymentEvent) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrClosed
	}
	select {
	case d.queue <- event:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting events and waits for queued ones to be delivered.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) workerLoop(id int) {
	for event := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		if err := d.deliver(ctx, event); err != nil {
			slog.Error("failed to deliver payment event",
				"worker", id, "event_id", event.ID, "payment_id", event.PaymentID, "err", err)
		}
		cancel()
	}
}

func (d *Dispatcher) deliver(ctx context.Context, event domain.PaymentEvent) error {
	n := domain.NotificationFromEvent(uuid.NewString(), event)
	if err := d.store.SaveNotification(ctx, n); err != nil {
		slog.Error("failed to save notification", "payment_id", event.PaymentID, "user_id", event.UserID, "err", err)
	}
	return d.broadcast(ctx, event)
}

func (d *Dispatcher) broadcast(ctx context.Context, event domain.PaymentEvent) error {
	var errs []error
	for _, ch := range d.channels {
		err := ch.Send(ctx, event)
		if err == nil {
			return nil
		}
		slog.Warn("notification channel failed, falling back", "channel", ch.Name(), "event_id", event.ID, "err", err)
		errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
	}
	return errors.Join(errs...)
}
