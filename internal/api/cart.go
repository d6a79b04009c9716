package api

import (
	"net/http"

	"github.com/safar/storefront/internal/cart"
	"github.com/safar/storefront/internal/session"
)

type cartResponse struct {
	okBody
	*cart.Summary
}

type updateCartRequest struct {
	ItemID   int64  `json:"item_id" validate:"required,gt=0"`
	SizeID   *int64 `json:"size_id,omitempty" validate:"omitempty,gt=0"`
	Quantity int    `json:"quantity"`
}

type deleteCartRequest struct {
	ItemID    int64  `json:"item_id" validate:"required_without=ClearCart,omitempty,gt=0"`
	SizeID    *int64 `json:"size_id,omitempty" validate:"omitempty,gt=0"`
	ClearCart bool   `json:"clear_cart"`
}

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	summary, err := h.cart.Summary(r.Context(), session.FromContext(r.Context()))
	h.respondCart(w, r, http.StatusOK, summary, err)
}

func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req cart.AddRequest
	if !h.decode(w, r, &req) {
		return
	}
	summary, err := h.cart.Add(r.Context(), session.FromContext(r.Context()), req)
	h.respondCart(w, r, http.StatusOK, summary, err)
}

// UpdateCart sets a line's quantity; zero or less removes it.
func (h *Handler) UpdateCart(w http.ResponseWriter, r *http.Request) {
	var req updateCartRequest
	if !h.decode(w, r, &req) {
		return
	}
	summary, err := h.cart.Update(r.Context(), session.FromContext(r.Context()), req.ItemID, req.SizeID, req.Quantity)
	h.respondCart(w, r, http.StatusOK, summary, err)
}

func (h *Handler) DeleteFromCart(w http.ResponseWriter, r *http.Request) {
	var req deleteCartRequest
	if !h.decode(w, r, &req) {
		return
	}

	id := session.FromContext(r.Context())
	if req.ClearCart {
		summary, err := h.cart.Clear(r.Context(), id)
		h.respondCart(w, r, http.StatusOK, summary, err)
		return
	}

	summary, err := h.cart.Remove(r.Context(), id, req.ItemID, req.SizeID)
	h.respondCart(w, r, http.StatusOK, summary, err)
}

func (h *Handler) respondCart(w http.ResponseWriter, r *http.Request, status int, summary *cart.Summary, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, h.logger, status, cartResponse{okBody: succeeded, Summary: summary})
}
