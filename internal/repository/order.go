package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/orderflow/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders
		(id, user_id, items, subtotal, discount, total, coupon_code, address,
		 status, payment_method, payment_confirmed, gateway_order_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)`

	getOrderSQL = `SELECT id, user_id, items, subtotal, discount, total, coupon_code,
		address, status, payment_method, payment_confirmed, gateway_order_id,
		created_at, updated_at
		FROM orders WHERE id = $1`

	// The status predicate makes the write a compare-and-set, mirroring
	// confirmPaymentSQL: a stale caller whose expected status already moved
	// changes no rows instead of overwriting a concurrent transition.
	updateOrderStatusSQL = `UPDATE orders SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2`

	// The payment_confirmed = FALSE guard makes the flip a compare-and-set:
	// only one of any number of concurrent confirmations observes a row change.
	confirmPaymentSQL = `UPDATE orders SET payment_confirmed = TRUE, updated_at = now()
		WHERE id = $1 AND payment_confirmed = FALSE`

	couponUsageSQL = `SELECT coupon_code, COUNT(*) FROM orders
		WHERE coupon_code <> ''
		  AND (payment_method = 'cod' OR payment_confirmed)
		GROUP BY coupon_code`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Items
// and address are serialized to JSONB columns.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}
	addressJSON, err := json.Marshal(o.Address)
	if err != nil {
		return fmt.Errorf("marshaling order address: %w", err)
	}

	_, err = r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.UserID, itemsJSON, o.Subtotal, o.Discount, o.Total,
		o.CouponCode, addressJSON, string(o.Status), string(o.PaymentMethod),
		o.PaymentConfirmed, o.GatewayOrderID, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// GetByID returns the order or order.ErrNotFound.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("finding order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("finding order %q: %w", id, err)
	}
	return &o, nil
}

// UpdateStatus persists next only while the stored status still equals prev.
// Orders are never deleted, so zero rows after a successful read means the
// status moved concurrently, not that the order vanished.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, prev, next order.Status) error {
	tag, err := r.pool.Exec(ctx, updateOrderStatusSQL, id, string(prev), string(next))
	if err != nil {
		return fmt.Errorf("updating status of order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrStatusConflict
	}
	return nil
}

// ConfirmPayment flips payment_confirmed exactly once. The returned bool
// reports whether this call performed the flip.
func (r *OrderRepository) ConfirmPayment(ctx context.Context, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx, confirmPaymentSQL, id)
	if err != nil {
		return false, fmt.Errorf("confirming payment of order %q: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// CouponUsage is the number of orders that consumed a coupon: COD orders at
// placement, gateway orders once paid.
type CouponUsage struct {
	Code   string
	Orders int
}

// CouponUsageCounts aggregates coupon consumption across all orders, for the
// out-of-band ledger reconciliation job.
func (r *OrderRepository) CouponUsageCounts(ctx context.Context) ([]CouponUsage, error) {
	rows, err := r.pool.Query(ctx, couponUsageSQL)
	if err != nil {
		return nil, fmt.Errorf("aggregating coupon usage: %w", err)
	}
	usage, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (CouponUsage, error) {
		var (
			u     CouponUsage
			count int64
		)
		err := row.Scan(&u.Code, &count)
		u.Orders = int(count)
		return u, err
	})
	if err != nil {
		return nil, fmt.Errorf("aggregating coupon usage: %w", err)
	}
	return usage, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o             order.Order
		itemsJSON     []byte
		addressJSON   []byte
		status        string
		paymentMethod string
	)
	err := row.Scan(
		&o.ID, &o.UserID, &itemsJSON, &o.Subtotal, &o.Discount, &o.Total,
		&o.CouponCode, &addressJSON, &status, &paymentMethod,
		&o.PaymentConfirmed, &o.GatewayOrderID, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return o, fmt.Errorf("unmarshaling order items: %w", err)
	}
	if err := json.Unmarshal(addressJSON, &o.Address); err != nil {
		return o, fmt.Errorf("unmarshaling order address: %w", err)
	}
	o.Status = order.Status(status)
	o.PaymentMethod = order.PaymentMethod(paymentMethod)
	return o, nil
}
