package coupon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply(t *testing.T) {
	fixedNow := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	past := fixedNow.Add(-24 * time.Hour)
	future := fixedNow.Add(24 * time.Hour)

	tests := []struct {
		name    string
		coupon  *Coupon
		amount  int64
		want    int64
		wantErr error
	}{
		{
			name: "percentage discount floors to minor units",
			coupon: &Coupon{
				Code: "SAVE20", Kind: KindPercentage, Value: 20,
				MinOrderValue: 500, UsageLimit: 1, Active: true,
				ExpiresAt: &future,
			},
			amount: 1000,
			want:   200,
		},
		{
			name: "percentage of odd amount is floored",
			coupon: &Coupon{
				Code: "THIRD", Kind: KindPercentage, Value: 33, Active: true,
			},
			amount: 101,
			want:   33, // 33*101/100 = 33.33 floored
		},
		{
			name: "flat discount",
			coupon: &Coupon{
				Code: "FLAT300", Kind: KindFlat, Value: 300, Active: true,
			},
			amount: 1000,
			want:   300,
		},
		{
			name: "flat discount capped at order amount",
			coupon: &Coupon{
				Code: "FLAT300", Kind: KindFlat, Value: 300, Active: true,
			},
			amount: 150,
			want:   150,
		},
		{
			name: "hundred percent never exceeds amount",
			coupon: &Coupon{
				Code: "FREEBIE", Kind: KindPercentage, Value: 100, Active: true,
			},
			amount: 777,
			want:   777,
		},
		{
			name:    "nil coupon is invalid",
			coupon:  nil,
			amount:  1000,
			wantErr: ErrInvalid,
		},
		{
			name: "inactive coupon is invalid",
			coupon: &Coupon{
				Code: "OLD", Kind: KindFlat, Value: 100, Active: false,
			},
			amount:  1000,
			wantErr: ErrInvalid,
		},
		{
			name: "expired coupon is invalid",
			coupon: &Coupon{
				Code: "GONE", Kind: KindFlat, Value: 100, Active: true,
				ExpiresAt: &past,
			},
			amount:  1000,
			wantErr: ErrInvalid,
		},
		{
			name: "exhausted coupon",
			coupon: &Coupon{
				Code: "HOT", Kind: KindFlat, Value: 100, Active: true,
				UsageLimit: 5, UsedCount: 5,
			},
			amount:  1000,
			wantErr: ErrExhausted,
		},
		{
			name: "zero usage limit means unlimited",
			coupon: &Coupon{
				Code: "EVERGREEN", Kind: KindFlat, Value: 100, Active: true,
				UsageLimit: 0, UsedCount: 1_000_000,
			},
			amount: 1000,
			want:   100,
		},
		{
			name: "amount below minimum",
			coupon: &Coupon{
				Code: "SAVE20", Kind: KindPercentage, Value: 20,
				MinOrderValue: 500, Active: true,
			},
			amount:  499,
			wantErr: ErrMinimumNotMet,
		},
		{
			name: "amount exactly at minimum qualifies",
			coupon: &Coupon{
				Code: "SAVE20", Kind: KindPercentage, Value: 20,
				MinOrderValue: 500, Active: true,
			},
			amount: 500,
			want:   100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Apply(tt.coupon, tt.amount, fixedNow)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, got, tt.amount)
			assert.GreaterOrEqual(t, got, int64(0))
		})
	}
}

func TestApplyUnknownKind(t *testing.T) {
	c := &Coupon{Code: "WEIRD", Kind: Kind("bogo"), Active: true}
	_, err := Apply(c, 1000, time.Now())
	require.Error(t, err)
}

func TestApplyDoesNotMutate(t *testing.T) {
	c := &Coupon{Code: "SAVE20", Kind: KindPercentage, Value: 20, UsageLimit: 1, Active: true}
	_, err := Apply(c, 1000, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, c.UsedCount)
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "SAVE20", NormalizeCode("  save20 "))
	assert.Equal(t, "SAVE20", NormalizeCode("Save20"))
	assert.Equal(t, "", NormalizeCode("   "))
}
