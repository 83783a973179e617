package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Discount is the outcome of validating a coupon against an order amount.
type Discount struct {
	Code   string
	Amount int64
	Total  int64
}

// Validator validates a coupon code against a pre-discount order amount and
// returns the computed discount. The same implementation backs both the
// standalone preview endpoint and checkout, so the two can never disagree.
type Validator interface {
	Validate(ctx context.Context, code string, amount int64) (*Discount, error)
}

// RepoValidator implements Validator by looking up coupons from a Repository
// and applying them via the Apply function. An optional CodeFilter rejects
// definitely-unknown codes before any storage access.
type RepoValidator struct {
	repo   Repository
	filter *CodeFilter
	now    func() time.Time
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
// filter may be nil.
func NewRepoValidator(repo Repository, filter *CodeFilter) *RepoValidator {
	return &RepoValidator{repo: repo, filter: filter, now: time.Now}
}

// Validate normalizes the code, looks up the coupon, and applies it to the
// given amount. It is read-only: the redemption counter is untouched.
func (v *RepoValidator) Validate(ctx context.Context, code string, amount int64) (*Discount, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, ErrInvalid
	}
	if v.filter != nil && !v.filter.MayContain(code) {
		return nil, ErrInvalid
	}

	c, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrInvalid) {
			return nil, ErrInvalid
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	discount, err := Apply(c, amount, v.now())
	if err != nil {
		return nil, err
	}

	return &Discount{
		Code:   code,
		Amount: discount,
		Total:  amount - discount,
	}, nil
}
