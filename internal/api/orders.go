package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/swapgrid/swapgrid/internal/checkout"
)

type CreateOrderRequest struct {
	OfferID string `json:"offer_id"`
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
}

// CreateOrder handles POST /api/orders
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	allowed, retryAfter := h.checkRateLimit(r, "order", h.cfg.OrderRateLimit)
	if !allowed {
		writeRateLimited(w, retryAfter)
		return
	}

	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if req.OfferID == "" {
		writeError(w, http.StatusBadRequest, "offer_id required")
		return
	}

	order, err := h.orders.PlaceOrder(req.OfferID, checkout.Buyer{
		Name:    req.Name,
		Email:   req.Email,
		Address: req.Address,
	})
	if errors.Is(err, checkout.ErrOfferUnknown) {
		writeError(w, http.StatusNotFound, "offer not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, order)
}

// GetOrder handles GET /api/orders/{id}
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "order id required")
		return
	}

	order, err := h.orders.Order(id)
	if errors.Is(err, checkout.ErrOrderUnknown) {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "order lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, order)
}
