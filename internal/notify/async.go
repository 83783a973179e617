package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Async decorates a Dispatcher so every dispatch runs in its own goroutine
// with its own deadline, detached from the caller's context. Errors are
// logged and swallowed: a slow or failing notifier never delays or fails an
// order or payment operation.
type Async struct {
	next    Dispatcher
	timeout time.Duration
	lg      *zap.Logger
	wg      sync.WaitGroup
}

// NewAsync wraps next. timeout bounds each delivery attempt.
func NewAsync(next Dispatcher, timeout time.Duration, lg *zap.Logger) *Async {
	return &Async{next: next, timeout: timeout, lg: lg}
}

// OrderStatusChanged dispatches the event in the background. Always nil.
func (a *Async) OrderStatusChanged(_ context.Context, ev StatusEvent) error {
	a.dispatch("order status", func(ctx context.Context) error {
		return a.next.OrderStatusChanged(ctx, ev)
	}, zap.String("order_id", ev.OrderID), zap.String("to", ev.To))
	return nil
}

// PaymentConfirmed dispatches the event in the background. Always nil.
func (a *Async) PaymentConfirmed(_ context.Context, ev PaymentEvent) error {
	a.dispatch("payment confirmed", func(ctx context.Context) error {
		return a.next.PaymentConfirmed(ctx, ev)
	}, zap.String("order_id", ev.OrderID), zap.String("method", ev.Method))
	return nil
}

func (a *Async) dispatch(kind string, fn func(context.Context) error, fields ...zap.Field) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			a.lg.Warn("notification dispatch failed",
				append([]zap.Field{zap.String("event", kind), zap.Error(err)}, fields...)...)
		}
	}()
}

// Close waits for in-flight dispatches to drain. Intended for shutdown.
func (a *Async) Close() {
	a.wg.Wait()
}

// LogDispatcher is a terminal Dispatcher that records events in the log.
// It stands in for the real delivery provider in development and tests.
type LogDispatcher struct {
	lg *zap.Logger
}

// NewLogDispatcher returns a LogDispatcher writing to lg.
func NewLogDispatcher(lg *zap.Logger) *LogDispatcher {
	return &LogDispatcher{lg: lg}
}

func (d *LogDispatcher) OrderStatusChanged(_ context.Context, ev StatusEvent) error {
	d.lg.Info("order status changed",
		zap.String("order_id", ev.OrderID),
		zap.String("user_id", ev.UserID),
		zap.String("from", ev.From),
		zap.String("to", ev.To),
	)
	return nil
}

func (d *LogDispatcher) PaymentConfirmed(_ context.Context, ev PaymentEvent) error {
	d.lg.Info("payment confirmed",
		zap.String("order_id", ev.OrderID),
		zap.String("user_id", ev.UserID),
		zap.Int64("amount", ev.Amount),
		zap.String("method", ev.Method),
	)
	return nil
}
