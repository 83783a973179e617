package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
)

// Sentinel errors for order operations.
var (
	ErrNotFound   = errors.New("order not found")
	ErrEmptyItems = errors.New("items required")
	ErrNoAddress  = errors.New("shipping address required")
	ErrForbidden  = errors.New("order belongs to another user")

	// ErrStatusConflict is returned by Repository.UpdateStatus when the
	// stored status no longer matches the expected one, i.e. a concurrent
	// update won the race.
	ErrStatusConflict = errors.New("order status changed concurrently")
)

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// TransitionError indicates a status transition the lifecycle does not allow.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

// PaymentMethod enumerates how an order is paid.
type PaymentMethod string

const (
	// PaymentCOD is pay-on-delivery: money changes hands outside the system
	// and confirmation is a manual attestation step.
	PaymentCOD PaymentMethod = "cod"
	// PaymentGateway is a digital payment authorized by the external gateway.
	PaymentGateway PaymentMethod = "gateway"
)

// Item is a single order line with catalog data denormalized at placement
// time. UnitPrice is in integer minor currency units.
type Item struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Image     string `json:"image"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

// Address is the free-form structured shipping address.
type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

// Order is a customer order. Monetary fields are integer minor currency
// units and satisfy Total = Subtotal - Discount with Discount <= Subtotal.
// Orders are created once and mutated only through defined transitions;
// cancellation is a status, never a deletion.
type Order struct {
	ID               string
	UserID           string
	Items            []Item
	Subtotal         int64
	Discount         int64
	Total            int64
	CouponCode       string
	Address          Address
	Status           Status
	PaymentMethod    PaymentMethod
	PaymentConfirmed bool
	GatewayOrderID   string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// GatewaySession is a payment session opened at the external gateway for an
// order. Its ID is what the client hands to the gateway checkout flow.
type GatewaySession struct {
	ID       string
	Amount   int64
	Currency string
}

// GatewayClient opens payment sessions at the external gateway. Amounts are
// already in the smallest currency unit the gateway expects.
type GatewayClient interface {
	CreateSession(ctx context.Context, receipt string, amount int64) (*GatewaySession, error)
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error

	// GetByID returns the order or ErrNotFound.
	GetByID(ctx context.Context, id string) (*Order, error)

	// UpdateStatus persists next if and only if the stored status still
	// equals prev, atomically. Returns ErrStatusConflict when a concurrent
	// update moved the status in between; transition validity is the
	// service's responsibility.
	UpdateStatus(ctx context.Context, id string, prev, next Status) error

	// ConfirmPayment flips payment_confirmed to true if and only if it is
	// still false, atomically. It reports whether this call performed the
	// flip, so duplicate confirmations can skip their side effects.
	ConfirmPayment(ctx context.Context, id string) (first bool, err error)
}
