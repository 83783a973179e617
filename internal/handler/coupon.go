package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/orderflow/internal/domain/coupon"
)

type validateCouponRequest struct {
	Code   string `json:"code"`
	Amount int64  `json:"amount"`
}

type discountResponse struct {
	Code     string `json:"code"`
	Discount int64  `json:"discount"`
	Total    int64  `json:"total"`
}

// validateCoupon previews the discount a code yields for an amount without
// creating an order or touching the redemption counter. It runs the exact
// same rules as checkout.
func (h *Handler) validateCoupon(w http.ResponseWriter, r *http.Request) {
	var req validateCouponRequest
	if err := decode(r, &req); err != nil || req.Code == "" {
		writeBadRequest(w, "code required")
		return
	}
	if req.Amount <= 0 {
		writeBadRequest(w, "amount must be positive")
		return
	}

	d, err := h.validator.Validate(r.Context(), req.Code, req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, discountResponse{
		Code:     d.Code,
		Discount: d.Amount,
		Total:    d.Total,
	})
}

type createCouponRequest struct {
	Code          string     `json:"code"`
	Kind          string     `json:"kind"`
	Value         int64      `json:"value"`
	MinOrderValue int64      `json:"min_order_value"`
	ExpiresAt     *time.Time `json:"expires_at"`
	UsageLimit    int        `json:"usage_limit"`
}

func (h *Handler) createCoupon(w http.ResponseWriter, r *http.Request) {
	var req createCouponRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}

	code := coupon.NormalizeCode(req.Code)
	kind := coupon.Kind(req.Kind)
	if code == "" || req.Value <= 0 || (kind != coupon.KindPercentage && kind != coupon.KindFlat) {
		writeBadRequest(w, "code, kind (percentage|flat) and positive value required")
		return
	}
	if kind == coupon.KindPercentage && req.Value > 100 {
		writeBadRequest(w, "percentage value must not exceed 100")
		return
	}
	identity, _ := IdentityFromContext(r.Context())

	c := &coupon.Coupon{
		Code:          code,
		Kind:          kind,
		Value:         req.Value,
		MinOrderValue: req.MinOrderValue,
		ExpiresAt:     req.ExpiresAt,
		UsageLimit:    req.UsageLimit,
		Active:        true,
		CreatedBy:     identity.UserID,
	}
	if err := h.coupons.Create(r.Context(), c); err != nil {
		writeError(w, r, err)
		return
	}
	if h.filter != nil {
		h.filter.Add(code)
	}

	writeJSON(w, http.StatusCreated, map[string]string{"code": code})
}

type toggleCouponRequest struct {
	Active bool `json:"active"`
}

func (h *Handler) toggleCoupon(w http.ResponseWriter, r *http.Request) {
	code := coupon.NormalizeCode(chi.URLParam(r, "code"))

	var req toggleCouponRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}

	if err := h.coupons.SetActive(r.Context(), code, req.Active); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"code": code, "active": req.Active})
}

func (h *Handler) deleteCoupon(w http.ResponseWriter, r *http.Request) {
	code := coupon.NormalizeCode(chi.URLParam(r, "code"))

	if err := h.coupons.Delete(r.Context(), code); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
