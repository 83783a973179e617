// Package handler exposes the HTTP surface: order placement and lifecycle,
// payment verification, and coupon administration. Handlers decode requests,
// delegate to the domain services, and map domain errors to HTTP statuses.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/orderflow/internal/domain/coupon"
	"github.com/xenking/orderflow/internal/domain/order"
	"github.com/xenking/orderflow/internal/domain/payment"
)

// Handler holds the domain dependencies for all routes.
type Handler struct {
	orders    *order.Service
	payments  *payment.Reconciler
	coupons   coupon.Repository
	validator coupon.Validator
	filter    *coupon.CodeFilter
}

// NewHandler constructs a Handler. filter may be nil.
func NewHandler(
	orders *order.Service,
	payments *payment.Reconciler,
	coupons coupon.Repository,
	validator coupon.Validator,
	filter *coupon.CodeFilter,
) *Handler {
	return &Handler{
		orders:    orders,
		payments:  payments,
		coupons:   coupons,
		validator: validator,
		filter:    filter,
	}
}

// Routes builds the API router. Reading an order's status is public;
// everything else requires a user token, and operator routes an admin token.
func (h *Handler) Routes(auth *Authenticator) http.Handler {
	r := chi.NewRouter()

	r.Route("/order", func(r chi.Router) {
		r.Get("/status/{orderID}", h.orderStatus)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireUser)
			r.Post("/place", h.placeCOD)
			r.Post("/place-gateway", h.placeGateway)
			r.Post("/verify-gateway", h.verifyGateway)
			r.Post("/verify-cod", h.verifyCOD)
			r.Post("/cancel", h.cancelOrder)
		})

		r.With(auth.RequireAdmin).Patch("/status", h.updateStatus)
	})

	r.Route("/coupon", func(r chi.Router) {
		r.With(auth.RequireUser).Post("/validate", h.validateCoupon)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAdmin)
			r.Post("/", h.createCoupon)
			r.Patch("/{code}/toggle", h.toggleCoupon)
			r.Delete("/{code}", h.deleteCoupon)
		})
	})

	return r
}
