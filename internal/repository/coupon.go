package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/orderflow/internal/domain/coupon"
)

// unique_violation, per the PostgreSQL error code table.
const pgerrUniqueViolation = "23505"

const (
	getCouponByCodeSQL = `SELECT code, kind, value, min_order_value, expires_at,
		usage_limit, used_count, active, created_by, created_at
		FROM coupons WHERE code = $1`

	// The WHERE clause makes the increment conditional on remaining capacity,
	// so concurrent redemptions of a hot coupon can never push used_count
	// past usage_limit.
	redeemCouponSQL = `UPDATE coupons SET used_count = used_count + 1
		WHERE code = $1 AND (usage_limit = 0 OR used_count < usage_limit)`

	createCouponSQL = `INSERT INTO coupons
		(code, kind, value, min_order_value, expires_at, usage_limit, used_count, active, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8, now())`

	setCouponActiveSQL = `UPDATE coupons SET active = $2 WHERE code = $1`
	deleteCouponSQL    = `DELETE FROM coupons WHERE code = $1`
	listCouponCodesSQL = `SELECT code FROM coupons`

	raiseUsedCountSQL = `UPDATE coupons SET used_count = GREATEST(used_count, $2)
		WHERE code = $1`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
// Codes are stored upper-case; callers normalize before calling.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its normalized code, active or not.
// Returns coupon.ErrInvalid when no such coupon exists.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalid
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

// Redeem atomically increments the usage counter, refusing the increment
// once the usage limit is reached.
func (r *CouponRepository) Redeem(ctx context.Context, code string) error {
	tag, err := r.pool.Exec(ctx, redeemCouponSQL, code)
	if err != nil {
		return fmt.Errorf("redeeming coupon %q: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrExhausted
	}
	return nil
}

// Create inserts a new coupon with a zero used count. A taken code surfaces
// as coupon.ErrExists.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	_, err := r.pool.Exec(ctx, createCouponSQL,
		c.Code, string(c.Kind), c.Value, c.MinOrderValue, c.ExpiresAt,
		c.UsageLimit, c.Active, c.CreatedBy,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrUniqueViolation {
			return coupon.ErrExists
		}
		return fmt.Errorf("creating coupon %q: %w", c.Code, err)
	}
	return nil
}

// SetActive toggles a coupon's active flag.
func (r *CouponRepository) SetActive(ctx context.Context, code string, active bool) error {
	tag, err := r.pool.Exec(ctx, setCouponActiveSQL, code, active)
	if err != nil {
		return fmt.Errorf("toggling coupon %q: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// Delete removes a coupon. Orders that already captured the code keep their
// frozen discount.
func (r *CouponRepository) Delete(ctx context.Context, code string) error {
	tag, err := r.pool.Exec(ctx, deleteCouponSQL, code)
	if err != nil {
		return fmt.Errorf("deleting coupon %q: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// ListCodes returns every coupon code, active or not.
func (r *CouponRepository) ListCodes(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, listCouponCodesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing coupon codes: %w", err)
	}
	codes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (string, error) {
		var code string
		err := row.Scan(&code)
		return code, err
	})
	if err != nil {
		return nil, fmt.Errorf("listing coupon codes: %w", err)
	}
	return codes, nil
}

// RaiseUsedCount lifts a coupon's used count to at least observed. It never
// lowers the counter, preserving monotonicity. Used by the reconciliation job.
func (r *CouponRepository) RaiseUsedCount(ctx context.Context, code string, observed int) error {
	_, err := r.pool.Exec(ctx, raiseUsedCountSQL, code, observed)
	if err != nil {
		return fmt.Errorf("raising used count for coupon %q: %w", code, err)
	}
	return nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c          coupon.Coupon
		kind       string
		expiresAt  *time.Time
		usageLimit int32
		usedCount  int32
	)
	err := row.Scan(
		&c.Code, &kind, &c.Value, &c.MinOrderValue, &expiresAt,
		&usageLimit, &usedCount, &c.Active, &c.CreatedBy, &c.CreatedAt,
	)
	c.Kind = coupon.Kind(kind)
	c.ExpiresAt = expiresAt
	c.UsageLimit = int(usageLimit)
	c.UsedCount = int(usedCount)
	return c, err
}
