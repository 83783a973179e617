// Package reconcile repairs coupon ledger drift. Checkout treats a failed
// redemption after a durable order save as non-fatal, so the used counters
// can lag behind actual consumption; this pass raises them back up. It only
// ever raises: used counts are monotone.
package reconcile

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/orderflow/internal/repository"
)

// UsageSource aggregates how many orders actually consumed each coupon.
type UsageSource interface {
	CouponUsageCounts(ctx context.Context) ([]repository.CouponUsage, error)
}

// Ledger is the writable side of the coupon ledger.
type Ledger interface {
	RaiseUsedCount(ctx context.Context, code string, observed int) error
}

// Pass compares observed coupon consumption against ledger counters and
// lifts any counter that fell behind.
type Pass struct {
	orders      UsageSource
	ledger      Ledger
	concurrency int
}

// NewPass creates a reconciliation pass. concurrency bounds the number of
// coupons repaired in parallel.
func NewPass(orders UsageSource, ledger Ledger, concurrency int) *Pass {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Pass{orders: orders, ledger: ledger, concurrency: concurrency}
}

// Run executes one reconciliation pass.
func (p *Pass) Run(ctx context.Context) error {
	usage, err := p.orders.CouponUsageCounts(ctx)
	if err != nil {
		return errors.Wrap(err, "aggregate coupon usage")
	}

	lg := zctx.From(ctx)
	lg.Info("reconciliation pass", zap.Int("coupons", len(usage)))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, u := range usage {
		g.Go(func() error {
			if err := p.ledger.RaiseUsedCount(ctx, u.Code, u.Orders); err != nil {
				return errors.Wrapf(err, "reconcile coupon %s", u.Code)
			}
			return nil
		})
	}
	return g.Wait()
}
