package api

import (
	"net/http"

	"github.com/safar/storefront/internal/models"
	"github.com/safar/storefront/internal/session"
)

type couponRequest struct {
	Code string `json:"code" validate:"required,max=50"`
}

type couponResponse struct {
	okBody
	*models.CouponDescriptor
}

type checkoutResponse struct {
	okBody
	*models.CheckoutResult
}

// ValidateCoupon reports the discount a code would grant. It never consumes
// a use and does not look at the cart.
func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if !h.decode(w, r, &req) {
		return
	}

	coupon, err := h.catalog.LookupCoupon(r.Context(), req.Code)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, couponResponse{okBody: succeeded, CouponDescriptor: coupon})
}

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req models.CheckoutRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.orders.CreateOrder(r.Context(), session.FromContext(r.Context()), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, checkoutResponse{okBody: succeeded, CheckoutResult: result})
}
