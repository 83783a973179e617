package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/orderflow/internal/domain/cart"
	"github.com/xenking/orderflow/internal/domain/coupon"
	"github.com/xenking/orderflow/internal/domain/product"
	"github.com/xenking/orderflow/internal/notify"
)

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return "product " + e.ProductID + " not found"
}

// ItemRequest is one requested line of a checkout.
type ItemRequest struct {
	ProductID string
	Size      string
	Quantity  int
}

// PlaceRequest holds the input for placing an order.
type PlaceRequest struct {
	UserID     string
	Items      []ItemRequest
	Address    Address
	Method     PaymentMethod
	CouponCode string
}

// PlaceResult holds a placed order and, for gateway orders, the payment
// session the client must complete.
type PlaceResult struct {
	Order   *Order
	Session *GatewaySession
}

// Service owns order creation and the status lifecycle. The notification
// dispatcher is injected and invoked best-effort: its failures are logged
// and never propagate to the caller.
type Service struct {
	products   product.Repository
	coupons    coupon.Repository
	validator  coupon.Validator
	orders     Repository
	carts      cart.Store
	gateway    GatewayClient
	dispatcher notify.Dispatcher
	now        func() time.Time
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	products product.Repository,
	coupons coupon.Repository,
	validator coupon.Validator,
	orders Repository,
	carts cart.Store,
	gateway GatewayClient,
	dispatcher notify.Dispatcher,
) *Service {
	return &Service{
		products:   products,
		coupons:    coupons,
		validator:  validator,
		orders:     orders,
		carts:      carts,
		gateway:    gateway,
		dispatcher: dispatcher,
		now:        time.Now,
	}
}

// Place validates the request, prices items from the catalog, applies the
// coupon, persists the order in Placed state, and for gateway orders opens a
// payment session.
//
// The coupon is consumed exactly once per order: COD orders redeem right
// after the order is durably persisted; gateway orders defer redemption to
// the first payment confirmation. A redemption failure after the order is
// saved never rolls the order back — it is logged for the out-of-band
// reconciliation job to repair.
func (s *Service) Place(ctx context.Context, req PlaceRequest) (*PlaceResult, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	if req.Address.Line1 == "" || req.Address.City == "" || req.Address.PostalCode == "" {
		return nil, ErrNoAddress
	}

	ids := make([]string, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
		ids[i] = item.ProductID
	}

	// Batch fetch all products in a single query.
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	productMap := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		productMap[p.ID] = p
	}

	// Denormalize catalog data into order lines and compute the subtotal.
	items := make([]Item, len(req.Items))
	var subtotal int64
	for i, item := range req.Items {
		p, ok := productMap[item.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: item.ProductID}
		}
		items[i] = Item{
			ProductID: p.ID,
			Name:      p.Name,
			Image:     p.Image,
			Size:      item.Size,
			Quantity:  item.Quantity,
			UnitPrice: p.Price,
		}
		subtotal += p.Price * int64(item.Quantity)
	}

	couponCode := coupon.NormalizeCode(req.CouponCode)
	var discount int64
	if couponCode != "" {
		d, err := s.validator.Validate(ctx, couponCode, subtotal)
		if err != nil {
			return nil, errors.Wrap(err, "validate coupon")
		}
		discount = d.Amount
	}

	now := s.now()
	o := &Order{
		ID:            uuid.New().String(),
		UserID:        req.UserID,
		Items:         items,
		Subtotal:      subtotal,
		Discount:      discount,
		Total:         subtotal - discount,
		CouponCode:    couponCode,
		Address:       req.Address,
		Status:        StatusPlaced,
		PaymentMethod: req.Method,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	var session *GatewaySession
	if req.Method == PaymentGateway {
		session, err = s.gateway.CreateSession(ctx, o.ID, o.Total)
		if err != nil {
			return nil, errors.Wrap(err, "create gateway session")
		}
		o.GatewayOrderID = session.ID
	}

	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	// Post-persist bookkeeping. The order stands regardless of what happens
	// below: money has not moved yet and usage counting is repairable.
	if req.Method == PaymentCOD {
		if couponCode != "" {
			if err := s.coupons.Redeem(ctx, couponCode); err != nil {
				zctx.From(ctx).Error("coupon redemption failed after order save",
					zap.String("order_id", o.ID),
					zap.String("coupon", couponCode),
					zap.Error(err),
				)
			}
		}
		if err := s.carts.Clear(ctx, req.UserID); err != nil {
			zctx.From(ctx).Warn("cart clear failed",
				zap.String("user_id", req.UserID),
				zap.Error(err),
			)
		}
	}

	return &PlaceResult{Order: o, Session: session}, nil
}

// Get returns the order with the given ID.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.orders.GetByID(ctx, id)
}

// UpdateStatus moves an order to next if the lifecycle allows it, persists
// the change, and emits one lifecycle event carrying the previous and new
// status. Event delivery failures never fail the update.
//
// The write is a compare-and-set against the status this call read, so two
// racing updates that both saw the same state cannot both commit. A lost
// race re-reads and revalidates against the fresh status, which means a
// cancellation can never be silently overwritten by a stale update.
func (s *Service) UpdateStatus(ctx context.Context, id string, next Status) (*Order, error) {
	if !next.Valid() {
		return nil, &TransitionError{To: next}
	}

	const maxAttempts = 3

	var o *Order
	for attempt := 1; ; attempt++ {
		var err error
		o, err = s.orders.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if !o.Status.CanTransitionTo(next) {
			return nil, &TransitionError{From: o.Status, To: next}
		}

		err = s.orders.UpdateStatus(ctx, id, o.Status, next)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrStatusConflict) {
			return nil, errors.Wrap(err, "update status")
		}
		if attempt == maxAttempts {
			return nil, errors.Wrap(err, "update status")
		}
	}

	prev := o.Status
	o.Status = next
	o.UpdatedAt = s.now()

	if err := s.dispatcher.OrderStatusChanged(ctx, notify.StatusEvent{
		OrderID: o.ID,
		UserID:  o.UserID,
		From:    string(prev),
		To:      string(next),
	}); err != nil {
		zctx.From(ctx).Warn("status event dispatch failed",
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
	}

	return o, nil
}

// Cancel cancels the caller's own order. Only Placed and Packing orders are
// cancellable; everything else is a TransitionError.
func (s *Service) Cancel(ctx context.Context, id, userID string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrForbidden
	}
	return s.UpdateStatus(ctx, id, StatusCancelled)
}
