// Command seed-db populates the database with the product catalog and a set
// of demo coupons. Intended for development and demo environments.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/orderflow/internal/domain/coupon"
	"github.com/xenking/orderflow/internal/domain/product"
	"github.com/xenking/orderflow/internal/repository"
)

// productJSON mirrors the catalog seed file. Prices are integer minor
// currency units.
type productJSON struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
	Image string `json:"image"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
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

	if err := run(ctx, databaseURL, productsFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, repository.NewProductRepository(pool), productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedCoupons(ctx, repository.NewCouponRepository(pool)); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	return nil
}

func seedProducts(ctx context.Context, repo *repository.ProductRepository, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		err := repo.Upsert(ctx, &product.Product{
			ID:    p.ID,
			Name:  p.Name,
			Price: p.Price,
			Image: p.Image,
		})
		if err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}
	return nil
}

func seedCoupons(ctx context.Context, repo *repository.CouponRepository) error {
	slog.Info("seeding demo coupons")

	yearFromNow := time.Now().AddDate(1, 0, 0)
	coupons := []*coupon.Coupon{
		{
			Code:          "SAVE20",
			Kind:          coupon.KindPercentage,
			Value:         20,
			MinOrderValue: 500,
			ExpiresAt:     &yearFromNow,
			UsageLimit:    1,
			Active:        true,
			CreatedBy:     "seed",
		},
		{
			Code:      "WELCOME10",
			Kind:      coupon.KindPercentage,
			Value:     10,
			Active:    true,
			CreatedBy: "seed",
		},
		{
			Code:          "FLAT300",
			Kind:          coupon.KindFlat,
			Value:         300,
			MinOrderValue: 1000,
			Active:        true,
			CreatedBy:     "seed",
		},
	}

	for _, c := range coupons {
		if err := repo.Create(ctx, c); err != nil {
			// Re-running the seed against an existing database is fine;
			// existing codes are left untouched.
			slog.Warn("skipping coupon", slog.String("code", c.Code), slog.String("error", err.Error()))
			continue
		}
		slog.Info("created coupon", slog.String("code", c.Code), slog.String("kind", string(c.Kind)))
	}
	return nil
}
