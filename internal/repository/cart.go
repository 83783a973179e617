package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/orderflow/internal/domain/cart"
)

var _ cart.Store = (*RedisCartStore)(nil)

// RedisCartStore implements cart.Store on Redis. Carts are stored in their
// JSON wire format under one key per user.
type RedisCartStore struct {
	client *redis.Client
}

// NewRedisCartStore returns a RedisCartStore using the given client.
func NewRedisCartStore(client *redis.Client) *RedisCartStore {
	return &RedisCartStore{client: client}
}

func cartKey(userID string) string {
	return "cart:" + userID
}

// Get returns the user's cart, or an empty cart when none is stored.
func (s *RedisCartStore) Get(ctx context.Context, userID string) (cart.Cart, error) {
	data, err := s.client.Get(ctx, cartKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return cart.New(), nil
		}
		return nil, fmt.Errorf("loading cart for user %q: %w", userID, err)
	}

	var c cart.Cart
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decoding cart for user %q: %w", userID, err)
	}
	return c, nil
}

// Save stores the user's cart, replacing any previous contents.
func (s *RedisCartStore) Save(ctx context.Context, userID string, c cart.Cart) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding cart for user %q: %w", userID, err)
	}
	if err := s.client.Set(ctx, cartKey(userID), data, 0).Err(); err != nil {
		return fmt.Errorf("saving cart for user %q: %w", userID, err)
	}
	return nil
}

// Clear removes the user's cart. Clearing an absent cart is a no-op.
func (s *RedisCartStore) Clear(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, cartKey(userID)).Err(); err != nil {
		return fmt.Errorf("clearing cart for user %q: %w", userID, err)
	}
	return nil
}
