package payment

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/orderflow/internal/domain/cart"
	"github.com/xenking/orderflow/internal/domain/coupon"
	"github.com/xenking/orderflow/internal/domain/order"
	"github.com/xenking/orderflow/internal/notify"
)

var (
	// ErrWrongMethod is returned when a confirmation protocol is used on an
	// order paid with the other method.
	ErrWrongMethod = errors.New("wrong payment method for this confirmation")
	// ErrSignatureMismatch is returned when the provided gateway signature
	// does not match the recomputed one.
	ErrSignatureMismatch = errors.New("payment signature mismatch")
	// ErrMissingProof is returned when signature fields are absent or
	// malformed. Checked before any storage access.
	ErrMissingProof = errors.New("missing payment proof fields")
)

// VerifyRequest is the payment proof submitted for a gateway order.
type VerifyRequest struct {
	OrderID          string
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
}

// Reconciler verifies payment confirmations and marks orders paid exactly
// once. Duplicate gateway callbacks and client replays are expected; the
// mutation is guarded by an atomic already-confirmed check so retrying with
// identical inputs is always safe.
type Reconciler struct {
	orders     order.Repository
	coupons    coupon.Repository
	carts      cart.Store
	dispatcher notify.Dispatcher
	secret     []byte
}

// NewReconciler creates a Reconciler. secret is the shared gateway signing
// secret, passed through configuration.
func NewReconciler(
	orders order.Repository,
	coupons coupon.Repository,
	carts cart.Store,
	dispatcher notify.Dispatcher,
	secret []byte,
) *Reconciler {
	return &Reconciler{
		orders:     orders,
		coupons:    coupons,
		carts:      carts,
		dispatcher: dispatcher,
		secret:     secret,
	}
}

// ConfirmCOD confirms payment for a pay-on-delivery order. Confirming an
// already-confirmed order is a no-op returning the confirmed order.
func (r *Reconciler) ConfirmCOD(ctx context.Context, orderID string) (*order.Order, error) {
	o, err := r.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.PaymentMethod != order.PaymentCOD {
		return nil, ErrWrongMethod
	}
	if o.PaymentConfirmed {
		return o, nil
	}

	if _, err := r.orders.ConfirmPayment(ctx, orderID); err != nil {
		return nil, errors.Wrap(err, "confirm payment")
	}
	o.PaymentConfirmed = true
	return o, nil
}

// VerifyGatewayPayment verifies a gateway payment proof and confirms the
// order exactly once. On the first confirmation it clears the buyer's cart,
// redeems the order's coupon, and dispatches a purchase notification; none
// of those side effects can fail the confirmation itself. Re-verification of
// an already-confirmed order returns the existing order without side effects.
func (r *Reconciler) VerifyGatewayPayment(ctx context.Context, req VerifyRequest) (*order.Order, error) {
	// Fail fast: reject malformed proof before touching storage.
	if req.OrderID == "" || req.GatewayOrderID == "" || req.GatewayPaymentID == "" || req.Signature == "" {
		return nil, ErrMissingProof
	}
	if !VerifySignature(r.secret, req.GatewayOrderID, req.GatewayPaymentID, req.Signature) {
		return nil, ErrSignatureMismatch
	}

	o, err := r.orders.GetByID(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if o.PaymentMethod != order.PaymentGateway {
		return nil, ErrWrongMethod
	}
	if o.PaymentConfirmed {
		return o, nil
	}

	first, err := r.orders.ConfirmPayment(ctx, req.OrderID)
	if err != nil {
		// Retryable: the confirmed flag did not flip, and the guard above
		// makes a retry with the same inputs safe.
		return nil, errors.Wrap(err, "confirm payment")
	}
	o.PaymentConfirmed = true
	if !first {
		// A concurrent callback won the race and already ran the side effects.
		return o, nil
	}

	lg := zctx.From(ctx)

	if err := r.carts.Clear(ctx, o.UserID); err != nil {
		lg.Warn("cart clear failed after payment",
			zap.String("user_id", o.UserID),
			zap.Error(err),
		)
	}

	if o.CouponCode != "" {
		if err := r.coupons.Redeem(ctx, o.CouponCode); err != nil {
			lg.Error("coupon redemption failed after payment",
				zap.String("order_id", o.ID),
				zap.String("coupon", o.CouponCode),
				zap.Error(err),
			)
		}
	}

	if err := r.dispatcher.PaymentConfirmed(ctx, notify.PaymentEvent{
		OrderID: o.ID,
		UserID:  o.UserID,
		Amount:  o.Total,
		Method:  string(o.PaymentMethod),
	}); err != nil {
		lg.Warn("payment event dispatch failed",
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
	}

	return o, nil
}

// CheckPaymentStatus is the read-only polling variant used while waiting for
// an asynchronous gateway callback. It never mutates state.
func (r *Reconciler) CheckPaymentStatus(ctx context.Context, orderID string) (*order.Order, error) {
	return r.orders.GetByID(ctx, orderID)
}
