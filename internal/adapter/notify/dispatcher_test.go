package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/campus-orders/internal/adapter/storage"
	"github.com/rl1809/campus-orders/internal/core/domain"
)

type recordingChannel struct {
	name string
	err  error

	mu   sync.Mutex
	sent []domain.PaymentEvent
}

func (c *recordingChannel) Name() string { return c.name }

func (c *recordingChannel) Send(ctx context.Context, event domain.PaymentEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, event)
	return c.err
}

func (c *recordingChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

type fakeWriter struct {
	mu    sync.Mutex
	err   error
	calls int
	msgs  []kafka.Message
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func testEvent(paymentID string) domain.PaymentEvent {
	return domain.PaymentEvent{
		ID:         "evt-" + paymentID,
		Type:       domain.EventPaymentConfirmed,
		PaymentID:  paymentID,
		UserID:     "u1",
		Reference:  "PAY-AAAAAAAAAA",
		Status:     domain.PaymentStatusConfirmed,
		OccurredAt: time.Now(),
	}
}

func TestDispatcher_PersistsAndBroadcasts(t *testing.T) {
	store := storage.NewMemoryAdapter()
	primary := &recordingChannel{name: "primary"}
	fallback := &recordingChannel{name: "fallback"}

	d := NewDispatcher(store, 10, primary, fallback)
	d.Start(2)

	for _, id := range []string{"p1", "p2", "p3"} {
		require.NoError(t, d.Emit(context.Background(), testEvent(id)))
	}
	d.Close()

	list, err := store.ListNotifications(context.Background(), "u1", false, 0)
	require.NoError(t, err)
	assert.Len(t, list, 3)
	assert.Equal(t, 3, primary.count())
	assert.Equal(t, 0, fallback.count())
}

func TestDispatcher_FallsBack(t *testing.T) {
	store := storage.NewMemoryAdapter()
	primary := &recordingChannel{name: "primary", err: errors.New("broker down")}
	fallback := &recordingChannel{name: "fallback"}

	d := NewDispatcher(store, 10, primary, fallback)
	err := d.broadcast(context.Background(), testEvent("p1"))

	assert.NoError(t, err)
	assert.Equal(t, 1, primary.count())
	assert.Equal(t, 1, fallback.count())
}

func TestDispatcher_AllChannelsFail(t *testing.T) {
	d := NewDispatcher(storage.NewMemoryAdapter(), 10,
		&recordingChannel{name: "a", err: errors.New("down")},
		&recordingChannel{name: "b", err: errors.New("also down")},
	)

	err := d.broadcast(context.Background(), testEvent("p1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a: down")
	assert.Contains(t, err.Error(), "b: also down")
}

func TestDispatcher_QueueFullAndClosed(t *testing.T) {
	d := NewDispatcher(storage.NewMemoryAdapter(), 1)

	require.NoError(t, d.Emit(context.Background(), testEvent("p1")))
	assert.ErrorIs(t, d.Emit(context.Background(), testEvent("p2")), ErrQueueFull)

	d.Start(1)
	d.Close()
	assert.ErrorIs(t, d.Emit(context.Background(), testEvent("p3")), ErrClosed)
}

func TestKafkaChannel_PublishesKeyedJSON(t *testing.T) {
	w := &fakeWriter{}
	ch := newKafkaChannel(w)

	require.NoError(t, ch.Send(context.Background(), testEvent("p1")))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "p1", string(w.msgs[0].Key))
	assert.Contains(t, string(w.msgs[0].Value), `"type":"payment.confirmed"`)
	assert.Equal(t, "payment.confirmed", string(w.msgs[0].Headers[0].Value))
}

func TestKafkaChannel_BreakerOpens(t *testing.T) {
	w := &fakeWriter{err: errors.New("connection refused")}
	ch := newKafkaChannel(w)
	ctx := context.Background()

	for i := 0; i < breakerFailures; i++ {
		assert.Error(t, ch.Send(ctx, testEvent("p1")))
	}

	err := ch.Send(ctx, testEvent("p1"))
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, breakerFailures, w.calls, "open breaker must not reach the writer")
}

func TestLogChannel(t *testing.T) {
	var buf bytes.Buffer
	ch := NewLogChannel(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, ch.Send(context.Background(), testEvent("p9")))
	assert.Contains(t, buf.String(), `"payment_id":"p9"`)
}
