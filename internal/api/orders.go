package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/safar/storefront/internal/models"
	"github.com/safar/storefront/internal/session"
	"github.com/safar/storefront/internal/store"
)

type ordersResponse struct {
	okBody
	*store.CursorPage
}

type orderResponse struct {
	okBody
	Order   *models.Order               `json:"order"`
	History []models.OrderStatusHistory `json:"history,omitempty"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type statusRequest struct {
	Status models.OrderStatus `json:"status" validate:"required"`
	Note   string             `json:"note" validate:"max=500"`
}

type claimRequest struct {
	Note string `json:"note" validate:"max=500"`
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	page, err := h.orders.ListOrders(r.Context(), session.FromContext(r.Context()),
		r.URL.Query().Get("cursor"), queryInt(r, "limit"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, ordersResponse{okBody: succeeded, CursorPage: page})
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"), "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	order, err := h.orders.GetOrder(r.Context(), session.FromContext(r.Context()), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	history, err := h.orders.History(r.Context(), order.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, orderResponse{okBody: succeeded, Order: order, History: history})
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"), "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req cancelRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}

	order, err := h.orders.CancelOrder(r.Context(), session.FromContext(r.Context()), id, req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, orderResponse{okBody: succeeded, Order: order})
}

func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"), "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req statusRequest
	if !h.decode(w, r, &req) {
		return
	}

	order, err := h.orders.UpdateStatus(r.Context(), id, req.Status, req.Note)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, orderResponse{okBody: succeeded, Order: order})
}

// ClaimOrder hands the oldest pending order to the caller for fulfilment.
func (h *Handler) ClaimOrder(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}

	order, err := h.orders.ClaimNextPendingOrder(r.Context(), req.Note)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, orderResponse{okBody: succeeded, Order: order})
}
