package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

// Kind enumerates the supported coupon discount strategies.
type Kind string

const (
	// KindPercentage discounts a percentage of the order amount.
	KindPercentage Kind = "percentage"
	// KindFlat discounts a fixed amount, capped at the order amount.
	KindFlat Kind = "flat"
)

var (
	// ErrInvalid is returned when a coupon code is not found, inactive,
	// or expired.
	ErrInvalid = errors.New("invalid coupon code")
	// ErrExhausted is returned when a coupon has no redemptions left.
	ErrExhausted = errors.New("coupon usage limit reached")
	// ErrMinimumNotMet is returned when the order amount is below the
	// coupon's minimum order value.
	ErrMinimumNotMet = errors.New("order amount below coupon minimum")
	// ErrNotFound is returned by administrative operations on a missing coupon.
	ErrNotFound = errors.New("coupon not found")
	// ErrExists is returned when creating a coupon whose code is taken.
	ErrExists = errors.New("coupon code already exists")
)

// Coupon is a promotional code with its discount rule and redemption ledger
// state. All monetary values are integer minor currency units.
type Coupon struct {
	Code          string
	Kind          Kind
	Value         int64
	MinOrderValue int64
	ExpiresAt     *time.Time
	UsageLimit    int // 0 = unlimited
	UsedCount     int
	Active        bool
	CreatedBy     string
	CreatedAt     time.Time
}

// Exhausted reports whether the coupon has reached its usage limit.
func (c *Coupon) Exhausted() bool {
	return c.UsageLimit > 0 && c.UsedCount >= c.UsageLimit
}

// Repository is the durable coupon ledger.
//
// Redeem must be an atomic conditional increment at the storage layer:
// read-modify-write of the counter in application code is unsafe under
// concurrent checkouts of a hot coupon.
type Repository interface {
	// FindByCode returns the coupon for the given (already normalized) code.
	// Returns ErrInvalid when no such coupon exists.
	FindByCode(ctx context.Context, code string) (*Coupon, error)

	// Redeem increments the coupon's used count by exactly one, refusing the
	// increment with ErrExhausted when the usage limit is already reached.
	// Called only after the consuming order has been durably persisted.
	Redeem(ctx context.Context, code string) error

	// Create inserts a new coupon, returning ErrExists on a taken code.
	Create(ctx context.Context, c *Coupon) error
	SetActive(ctx context.Context, code string, active bool) error
	Delete(ctx context.Context, code string) error

	// ListCodes returns every known coupon code, active or not.
	ListCodes(ctx context.Context) ([]string, error)
}

// NormalizeCode upper-cases and trims a coupon code. Every entry point that
// accepts a code goes through this so storage only ever sees one casing.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
