package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/safar/go-checkout/internal/checkout"
	"github.com/safar/go-checkout/internal/database"
	"github.com/safar/go-checkout/internal/idempotency"
	"github.com/safar/go-checkout/internal/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// maxCheckoutBody caps the POST /checkout payload.
const maxCheckoutBody = 1 << 20

type checkoutRequest struct {
	Cart             []checkout.CartItem `json:"cart"`
	TotalPrice       decimal.Decimal     `json:"total_price"`
	SalesTax         decimal.Decimal     `json:"sales_tax"`
	ShippingRate     decimal.Decimal     `json:"shipping_rate"`
	ShippingMethodID string              `json:"shipping_method_id"`
	Shipping         checkout.Address    `json:"shipping"`
	PaymentToken     string              `json:"payment_token"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	OrderID   string `json:"order_id,omitempty"`
	ReceiptID string `json:"receipt_id,omitempty"`
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	buyerID := r.Header.Get(BuyerHeader)
	if buyerID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing "+BuyerHeader+" header")
		return
	}

	user, err := h.Orders.GetUser(ctx, buyerID)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			respondError(w, http.StatusUnauthorized, "unauthorized", "unknown buyer")
			return
		}
		h.Log.WithError(err).Error("failed to load buyer")
		respondError(w, http.StatusServiceUnavailable, string(checkout.KindPersistence), "could not load buyer")
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCheckoutBody)).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, string(checkout.KindValidation), "request body too large")
			return
		}
		respondError(w, http.StatusBadRequest, string(checkout.KindValidation), "invalid request body")
		return
	}

	order, err := h.Checkout.Checkout(ctx, checkout.Request{
		Buyer:            user.Buyer(),
		Cart:             req.Cart,
		TotalPrice:       req.TotalPrice,
		SalesTax:         req.SalesTax,
		ShippingRate:     req.ShippingRate,
		ShippingMethodID: req.ShippingMethodID,
		Shipping:         req.Shipping,
		PaymentToken:     req.PaymentToken,
		IdempotencyKey:   idempotency.Key(r),
	})
	if err != nil {
		h.respondCheckoutError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, order)
}

func (h *Handler) respondCheckoutError(w http.ResponseWriter, r *http.Request, err error) {
	kind := checkout.KindOf(err)
	resp := errorResponse{Error: string(kind), Message: checkout.UserMessage(err)}

	status := http.StatusInternalServerError
	switch kind {
	case checkout.KindValidation:
		status = http.StatusBadRequest
		if errors.Is(err, checkout.ErrIdempotencyConflict) {
			status = http.StatusConflict
		}
	case checkout.KindOutOfStock:
		status = http.StatusConflict
	case checkout.KindPersistence:
		status = http.StatusServiceUnavailable
	case checkout.KindPaymentDeclined:
		status = http.StatusPaymentRequired
	case checkout.KindCriticalReconciliation:
		var critical *checkout.CriticalReconciliationError
		errors.As(err, &critical)
		resp.OrderID = critical.OrderID
		resp.ReceiptID = critical.ReceiptID
	default:
		resp.Error = "internal"
	}

	h.Log.WithFields(logrus.Fields{
		"request_id": middleware.GetReqID(r.Context()),
		"kind":       resp.Error,
		"status":     status,
	}).WithError(err).Warn("checkout failed")

	respondJSON(w, status, resp)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.Orders.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, database.ErrOrderNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "order not found")
			return
		}
		h.Log.WithError(err).Error("failed to load order")
		respondError(w, http.StatusInternalServerError, "internal", "could not load order")
		return
	}

	respondJSON(w, http.StatusOK, order)
}

func (h *Handler) listBuyerOrders(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 20
	}

	page, err := h.Orders.ListOrders(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("cursor"), limit)
	if err != nil {
		if errors.Is(err, store.ErrInvalidCursor) {
			respondError(w, http.StatusBadRequest, "invalid_cursor", "invalid cursor")
			return
		}
		h.Log.WithError(err).Error("failed to list orders")
		respondError(w, http.StatusInternalServerError, "internal", "could not list orders")
		return
	}

	respondJSON(w, http.StatusOK, page)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: code, Message: message})
}
