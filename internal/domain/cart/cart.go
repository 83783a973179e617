// Package cart models a customer's active cart as a typed mapping from
// product variant (product ID + size) to quantity, with an explicit wire
// format: {"<productID>": {"<size>": qty}}.
package cart

import (
	"context"
	"encoding/json"
)

// Key identifies a cart line: one product in one size.
type Key struct {
	ProductID string
	Size      string
}

// Cart maps product variants to quantities. The zero value is not usable;
// use New.
type Cart map[Key]int

// New returns an empty cart.
func New() Cart {
	return make(Cart)
}

// Set stores the quantity for a variant. A quantity of zero or less removes
// the line.
func (c Cart) Set(k Key, qty int) {
	if qty <= 0 {
		delete(c, k)
		return
	}
	c[k] = qty
}

// Merge applies every line of other onto c, keeping the removal semantics of
// Set: a zero quantity in other deletes the line from c.
func (c Cart) Merge(other Cart) {
	for k, qty := range other {
		c.Set(k, qty)
	}
}

// MarshalJSON encodes the cart in its wire format.
func (c Cart) MarshalJSON() ([]byte, error) {
	wire := make(map[string]map[string]int, len(c))
	for k, qty := range c {
		sizes, ok := wire[k.ProductID]
		if !ok {
			sizes = make(map[string]int)
			wire[k.ProductID] = sizes
		}
		sizes[k.Size] = qty
	}
	return json.Marshal(wire)
}

// UnmarshalJSON decodes the wire format, dropping non-positive quantities.
func (c *Cart) UnmarshalJSON(data []byte) error {
	var wire map[string]map[string]int
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	out := New()
	for productID, sizes := range wire {
		for size, qty := range sizes {
			out.Set(Key{ProductID: productID, Size: size}, qty)
		}
	}
	*c = out
	return nil
}

// Store persists active carts per user.
type Store interface {
	Get(ctx context.Context, userID string) (Cart, error)
	Save(ctx context.Context, userID string, c Cart) error
	// Clear removes the user's cart. Clearing an absent cart is a no-op.
	Clear(ctx context.Context, userID string) error
}
