// Command reconciler repairs coupon ledger drift. It runs one pass and
// exits, or loops on an interval when --interval is set, which suits both
// cron-style and long-running deployments.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/orderflow/internal/reconcile"
	"github.com/xenking/orderflow/internal/repository"
)

func main() {
	var (
		databaseURL string
		interval    time.Duration
		concurrency int
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.DurationVar(&interval, "interval", 0, "run continuously at this interval (0 runs once)")
	flag.IntVar(&concurrency, "concurrency", 4, "max coupons repaired in parallel")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, interval, concurrency); err != nil {
		slog.Error("reconciler failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, databaseURL string, interval time.Duration, concurrency int) error {
	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	pass := reconcile.NewPass(
		repository.NewOrderRepository(pool),
		repository.NewCouponRepository(pool),
		concurrency,
	)

	if interval <= 0 {
		slog.Info("running single reconciliation pass")
		return pass.Run(ctx)
	}

	slog.Info("running on interval", slog.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := pass.Run(ctx); err != nil {
			// Keep the loop alive; the next pass retries from scratch.
			slog.Error("reconciliation pass failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
