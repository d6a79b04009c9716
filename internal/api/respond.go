package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/models"
	"github.com/safar/storefront/internal/pricing"
	"github.com/safar/storefront/internal/session"
)

const internalErrorMessage = "internal server error"

type errorBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type okBody struct {
	Success bool `json:"success"`
}

var succeeded = okBody{Success: true}

func respondJSON(w http.ResponseWriter, logger *zap.Logger, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, logger *zap.Logger, status int, message string) {
	respondJSON(w, logger, status, errorBody{Success: false, Message: message})
}

// statusFor maps a service error onto an HTTP status. Messages of 5xx errors
// are never shown to the client.
func statusFor(err error) int {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrUnauthenticated),
		errors.Is(err, database.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, session.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, database.ErrInsufficientStock),
		errors.Is(err, database.ErrEmptyCart),
		errors.Is(err, database.ErrSizeRequired),
		errors.Is(err, database.ErrCouponNotFound),
		errors.Is(err, database.ErrCouponExpired),
		errors.Is(err, database.ErrCouponNotStarted),
		errors.Is(err, database.ErrCouponExhausted),
		errors.Is(err, database.ErrAddressNotFound),
		errors.Is(err, pricing.ErrMinimumOrderNotMet):
		return http.StatusBadRequest
	case errors.Is(err, database.ErrProductNotFound),
		errors.Is(err, database.ErrSizeNotFound),
		errors.Is(err, database.ErrOrderNotFound),
		errors.Is(err, database.ErrUserNotFound),
		errors.Is(err, database.ErrCartLineNotFound):
		return http.StatusNotFound
	case errors.Is(err, database.ErrEmailTaken),
		errors.Is(err, database.ErrCouponCodeTaken),
		errors.Is(err, database.ErrSKUTaken),
		errors.Is(err, database.ErrSizeLabelTaken),
		errors.Is(err, database.ErrInvalidTransition),
		errors.Is(err, database.ErrOptimisticLockFailed):
		return http.StatusConflict
	case errors.Is(err, database.ErrLockTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		message = internalErrorMessage
		if status == http.StatusServiceUnavailable {
			message = "resource busy, try again"
		}
	}
	respondError(w, h.logger, status, message)
}

// decode reads a JSON body into dst and checks its validate tags.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := models.ValidateStruct(dst); err != nil {
		h.fail(w, r, err)
		return false
	}
	return true
}

func parseID(raw, field string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &models.ValidationError{Field: field, Message: "must be a positive integer"}
	}
	return id, nil
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}
