// Package notify defines the outbound notification surface. Delivery itself
// (email, push, webhooks) is an external collaborator; this package only
// carries events to it, best-effort, off the critical path.
package notify

import "context"

// StatusEvent describes an order status transition.
type StatusEvent struct {
	OrderID string
	UserID  string
	From    string
	To      string
}

// PaymentEvent describes the first successful payment confirmation of an
// order. It is dispatched exactly once per order.
type PaymentEvent struct {
	OrderID string
	UserID  string
	Amount  int64
	Method  string
}

// Dispatcher receives lifecycle events. Implementations may fail; callers on
// the order/payment critical path must treat dispatch as fire-and-forget.
type Dispatcher interface {
	OrderStatusChanged(ctx context.Context, ev StatusEvent) error
	PaymentConfirmed(ctx context.Context, ev PaymentEvent) error
}
