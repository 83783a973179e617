package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/orderflow/internal/domain/coupon"
	"github.com/xenking/orderflow/internal/domain/order"
	"github.com/xenking/orderflow/internal/domain/payment"
)

// errorResponse is the machine-checkable error envelope for all endpoints.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto the HTTP error taxonomy:
// validation 400, not found 404, forbidden 403, business-rule conflicts 409,
// gateway failures 502, everything else 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	var (
		iqErr  *order.InvalidQuantityError
		pnfErr *order.ProductNotFoundError
		trErr  *order.TransitionError
	)

	switch {
	case errors.Is(err, order.ErrNotFound), errors.Is(err, coupon.ErrNotFound):
		status, message = http.StatusNotFound, err.Error()
	case errors.Is(err, order.ErrForbidden):
		status, message = http.StatusForbidden, err.Error()
	case errors.Is(err, order.ErrEmptyItems),
		errors.Is(err, order.ErrNoAddress),
		errors.Is(err, coupon.ErrInvalid),
		errors.Is(err, payment.ErrMissingProof),
		errors.Is(err, payment.ErrSignatureMismatch):
		status, message = http.StatusBadRequest, err.Error()
	case errors.As(err, &iqErr):
		status, message = http.StatusBadRequest, iqErr.Error()
	case errors.As(err, &pnfErr):
		status, message = http.StatusBadRequest, pnfErr.Error()
	case errors.Is(err, coupon.ErrExhausted),
		errors.Is(err, coupon.ErrMinimumNotMet),
		errors.Is(err, coupon.ErrExists),
		errors.Is(err, order.ErrStatusConflict),
		errors.Is(err, payment.ErrWrongMethod):
		status, message = http.StatusConflict, err.Error()
	case errors.As(err, &trErr):
		status, message = http.StatusConflict, trErr.Error()
	case errors.Is(err, payment.ErrUpstream):
		status, message = http.StatusBadGateway, "payment gateway unavailable"
	}

	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}

	writeJSON(w, status, errorResponse{Code: status, Message: message})
}

// decode reads a JSON request body into v, rejecting unknown garbage early.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(err, "decode request body")
	}
	return nil
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{
		Code:    http.StatusBadRequest,
		Message: message,
	})
}
