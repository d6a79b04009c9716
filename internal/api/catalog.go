package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/safar/storefront/internal/models"
	"github.com/safar/storefront/internal/session"
	"github.com/safar/storefront/internal/store"
)

type pageResponse struct {
	okBody
	*store.OffsetPage
}

type productResponse struct {
	okBody
	Product *models.Product `json:"product"`
}

type addressesResponse struct {
	okBody
	Addresses []models.Address `json:"addresses"`
}

type addressResponse struct {
	okBody
	Address *models.Address `json:"address"`
}

type sizeResponse struct {
	okBody
	Size *models.ProductSize `json:"size"`
}

type couponAdminResponse struct {
	okBody
	Coupon *models.Coupon `json:"coupon"`
}

type activeRequest struct {
	Active *bool `json:"active" validate:"required"`
}

type restockRequest struct {
	Stock   int `json:"stock" validate:"gte=0"`
	Version int `json:"version" validate:"gt=0"`
}

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	page, err := h.catalog.ListProducts(r.Context(), queryInt(r, "page"), queryInt(r, "page_size"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, pageResponse{okBody: succeeded, OffsetPage: page})
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"), "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	product, err := h.catalog.GetProduct(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, productResponse{okBody: succeeded, Product: product})
}

func (h *Handler) RestockProduct(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"), "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req restockRequest
	if !h.decode(w, r, &req) {
		return
	}

	product, err := h.catalog.Restock(r.Context(), id, req.Stock, req.Version)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, productResponse{okBody: succeeded, Product: product})
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req models.ProductRequest
	if !h.decode(w, r, &req) {
		return
	}

	product, err := h.catalog.CreateProduct(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, h.logger, http.StatusCreated, productResponse{okBody: succeeded, Product: product})
}

func (h *Handler) AddSize(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"), "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req models.SizeRequest
	if !h.decode(w, r, &req) {
		return
	}

	size, err := h.catalog.AddSize(r.Context(), id, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, h.logger, http.StatusCreated, sizeResponse{okBody: succeeded, Size: size})
}

func (h *Handler) SetProductActive(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"), "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req activeRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.catalog.SetProductActive(r.Context(), id, *req.Active); err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, succeeded)
}

func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req models.CouponRequest
	if !h.decode(w, r, &req) {
		return
	}

	coupon, err := h.catalog.CreateCoupon(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, h.logger, http.StatusCreated, couponAdminResponse{okBody: succeeded, Coupon: coupon})
}

func (h *Handler) SetCouponActive(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"), "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req activeRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.catalog.SetCouponActive(r.Context(), id, *req.Active); err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, succeeded)
}

func (h *Handler) ListAddresses(w http.ResponseWriter, r *http.Request) {
	addresses, err := h.accounts.Addresses(r.Context(), session.FromContext(r.Context()).UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if addresses == nil {
		addresses = []models.Address{}
	}
	respondJSON(w, h.logger, http.StatusOK, addressesResponse{okBody: succeeded, Addresses: addresses})
}

func (h *Handler) CreateAddress(w http.ResponseWriter, r *http.Request) {
	var req models.Address
	if !h.decode(w, r, &req) {
		return
	}
	req.ID = 0
	req.UserID = session.FromContext(r.Context()).UserID

	address, err := h.accounts.AddAddress(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, h.logger, http.StatusCreated, addressResponse{okBody: succeeded, Address: address})
}
