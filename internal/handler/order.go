package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/orderflow/internal/domain/order"
	"github.com/xenking/orderflow/internal/domain/payment"
)

type itemRequest struct {
	ProductID string `json:"product_id"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
}

type placeOrderRequest struct {
	Items      []itemRequest `json:"items"`
	Address    order.Address `json:"address"`
	CouponCode string        `json:"coupon_code"`
}

type orderResponse struct {
	ID               string        `json:"id"`
	Items            []order.Item  `json:"items"`
	Subtotal         int64         `json:"subtotal"`
	Discount         int64         `json:"discount"`
	Total            int64         `json:"total"`
	CouponCode       string        `json:"coupon_code,omitempty"`
	Status           order.Status  `json:"status"`
	PaymentMethod    string        `json:"payment_method"`
	PaymentConfirmed bool          `json:"payment_confirmed"`
	GatewayOrderID   string        `json:"gateway_order_id,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
}

type sessionResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type placeOrderResponse struct {
	Order   orderResponse    `json:"order"`
	Session *sessionResponse `json:"gateway_session,omitempty"`
}

func toOrderResponse(o *order.Order) orderResponse {
	return orderResponse{
		ID:               o.ID,
		Items:            o.Items,
		Subtotal:         o.Subtotal,
		Discount:         o.Discount,
		Total:            o.Total,
		CouponCode:       o.CouponCode,
		Status:           o.Status,
		PaymentMethod:    string(o.PaymentMethod),
		PaymentConfirmed: o.PaymentConfirmed,
		GatewayOrderID:   o.GatewayOrderID,
		CreatedAt:        o.CreatedAt,
	}
}

func (h *Handler) place(w http.ResponseWriter, r *http.Request, method order.PaymentMethod) {
	var req placeOrderRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}
	identity, _ := IdentityFromContext(r.Context())

	items := make([]order.ItemRequest, len(req.Items))
	for i, item := range req.Items {
		items[i] = order.ItemRequest{
			ProductID: item.ProductID,
			Size:      item.Size,
			Quantity:  item.Quantity,
		}
	}

	result, err := h.orders.Place(r.Context(), order.PlaceRequest{
		UserID:     identity.UserID,
		Items:      items,
		Address:    req.Address,
		Method:     method,
		CouponCode: req.CouponCode,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := placeOrderResponse{Order: toOrderResponse(result.Order)}
	if result.Session != nil {
		resp.Session = &sessionResponse{
			ID:       result.Session.ID,
			Amount:   result.Session.Amount,
			Currency: result.Session.Currency,
		}
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) placeCOD(w http.ResponseWriter, r *http.Request) {
	h.place(w, r, order.PaymentCOD)
}

func (h *Handler) placeGateway(w http.ResponseWriter, r *http.Request) {
	h.place(w, r, order.PaymentGateway)
}

type verifyGatewayRequest struct {
	OrderID          string `json:"order_id"`
	GatewayOrderID   string `json:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	Signature        string `json:"signature"`
}

func (h *Handler) verifyGateway(w http.ResponseWriter, r *http.Request) {
	var req verifyGatewayRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}

	o, err := h.payments.VerifyGatewayPayment(r.Context(), payment.VerifyRequest{
		OrderID:          req.OrderID,
		GatewayOrderID:   req.GatewayOrderID,
		GatewayPaymentID: req.GatewayPaymentID,
		Signature:        req.Signature,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type orderIDRequest struct {
	OrderID string `json:"order_id"`
}

func (h *Handler) verifyCOD(w http.ResponseWriter, r *http.Request) {
	var req orderIDRequest
	if err := decode(r, &req); err != nil || req.OrderID == "" {
		writeBadRequest(w, "order_id required")
		return
	}

	o, err := h.payments.ConfirmCOD(r.Context(), req.OrderID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var req orderIDRequest
	if err := decode(r, &req); err != nil || req.OrderID == "" {
		writeBadRequest(w, "order_id required")
		return
	}
	identity, _ := IdentityFromContext(r.Context())

	o, err := h.orders.Cancel(r.Context(), req.OrderID, identity.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type orderStatusResponse struct {
	OrderID          string       `json:"order_id"`
	Status           order.Status `json:"status"`
	PaymentConfirmed bool         `json:"payment_confirmed"`
}

func (h *Handler) orderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	o, err := h.payments.CheckPaymentStatus(r.Context(), orderID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderStatusResponse{
		OrderID:          o.ID,
		Status:           o.Status,
		PaymentConfirmed: o.PaymentConfirmed,
	})
}

type updateStatusRequest struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decode(r, &req); err != nil || req.OrderID == "" || req.Status == "" {
		writeBadRequest(w, "order_id and status required")
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), req.OrderID, order.Status(req.Status))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}
