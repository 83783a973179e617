// Package product is the read-only surface of the catalog, which is owned
// by an external service. Checkout only needs prices and display data.
package product

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product holds the catalog data checkout denormalizes into order items.
// Price is in integer minor currency units.
type Product struct {
	ID    string
	Name  string
	Price int64
	Image string
}

// Repository provides catalog lookups.
type Repository interface {
	// GetByIDs fetches the given products in one batch. Missing IDs are
	// simply absent from the result; callers decide whether that is an error.
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
