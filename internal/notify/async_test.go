package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type recordingDispatcher struct {
	mu       sync.Mutex
	statuses []StatusEvent
	payments []PaymentEvent
	err      error
	block    chan struct{}
}

func (d *recordingDispatcher) OrderStatusChanged(ctx context.Context, ev StatusEvent) error {
	if d.block != nil {
		select {
		case <-d.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.statuses = append(d.statuses, ev)
	return d.err
}

func (d *recordingDispatcher) PaymentConfirmed(_ context.Context, ev PaymentEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.payments = append(d.payments, ev)
	return d.err
}

func TestAsyncDelivers(t *testing.T) {
	next := &recordingDispatcher{}
	a := NewAsync(next, time.Second, zap.NewNop())

	require.NoError(t, a.OrderStatusChanged(context.Background(), StatusEvent{
		OrderID: "o1", UserID: "u1", From: "placed", To: "packing",
	}))
	require.NoError(t, a.PaymentConfirmed(context.Background(), PaymentEvent{
		OrderID: "o1", UserID: "u1", Amount: 800, Method: "gateway",
	}))
	a.Close()

	require.Len(t, next.statuses, 1)
	assert.Equal(t, "packing", next.statuses[0].To)
	require.Len(t, next.payments, 1)
	assert.Equal(t, int64(800), next.payments[0].Amount)
}

func TestAsyncSwallowsFailures(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	next := &recordingDispatcher{err: errors.New("provider down")}
	a := NewAsync(next, time.Second, zap.New(core))

	// The caller never sees the delivery failure.
	require.NoError(t, a.OrderStatusChanged(context.Background(), StatusEvent{OrderID: "o1"}))
	a.Close()

	require.Equal(t, 1, logs.Len())
	assert.Contains(t, logs.All()[0].Message, "dispatch failed")
}

func TestAsyncDetachedFromCallerContext(t *testing.T) {
	next := &recordingDispatcher{}
	a := NewAsync(next, time.Second, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // caller's context is already gone

	require.NoError(t, a.OrderStatusChanged(ctx, StatusEvent{OrderID: "o1"}))
	a.Close()

	assert.Len(t, next.statuses, 1, "delivery proceeds on its own deadline")
}

func TestAsyncTimesOutSlowDelivery(t *testing.T) {
	next := &recordingDispatcher{block: make(chan struct{})}
	a := NewAsync(next, 20*time.Millisecond, zap.NewNop())

	require.NoError(t, a.OrderStatusChanged(context.Background(), StatusEvent{OrderID: "o1"}))
	a.Close() // returns once the delivery attempt hits its deadline

	assert.Empty(t, next.statuses)
}

func TestLogDispatcher(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	d := NewLogDispatcher(zap.New(core))

	require.NoError(t, d.OrderStatusChanged(context.Background(), StatusEvent{
		OrderID: "o1", From: "placed", To: "packing",
	}))
	require.NoError(t, d.PaymentConfirmed(context.Background(), PaymentEvent{
		OrderID: "o1", Amount: 800,
	}))

	require.Equal(t, 2, logs.Len())
}
