package coupon

import (
	"time"

	"github.com/go-faster/errors"
)

// Apply computes the discount the coupon grants for an order of the given
// pre-discount amount at the given time. It has no side effects and never
// mutates the coupon: redemption accounting is the Repository's job.
//
// The returned discount is always in [0, amount]. Percentage discounts use
// integer division, so the result is floored and can never fractionally
// exceed the order amount.
func Apply(c *Coupon, amount int64, now time.Time) (int64, error) {
	if c == nil || !c.Active {
		return 0, ErrInvalid
	}
	if c.ExpiresAt != nil && now.After(*c.ExpiresAt) {
		return 0, ErrInvalid
	}
	if c.Exhausted() {
		return 0, ErrExhausted
	}
	if amount < c.MinOrderValue {
		return 0, ErrMinimumNotMet
	}

	switch c.Kind {
	case KindFlat:
		return min(c.Value, amount), nil
	case KindPercentage:
		return min(c.Value*amount/100, amount), nil
	default:
		return 0, errors.Errorf("unsupported discount kind: %q", c.Kind)
	}
}
