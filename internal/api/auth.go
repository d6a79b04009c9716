package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/safar/storefront/internal/models"
	"github.com/safar/storefront/internal/session"
)

type userResponse struct {
	okBody
	User *models.User `json:"user"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.accounts.Register(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.signIn(w, r, http.StatusCreated, user)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.accounts.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.signIn(w, r, http.StatusOK, user)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Clear(w, r); err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, succeeded)
}

// signIn carries the guest cart over before the session forgets the guest id.
// A failed merge does not block the login; the guest id stays in the session
// so the next login tries again.
func (h *Handler) signIn(w http.ResponseWriter, r *http.Request, status int, user *models.User) {
	mergeFailed := false
	if guestID := session.FromContext(r.Context()).GuestID; guestID != "" {
		if err := h.cart.MergeGuestInto(r.Context(), guestID, user.ID); err != nil {
			mergeFailed = true
			h.logger.Warn("merge guest cart",
				zap.Int64("user_id", user.ID),
				zap.String("guest_id", guestID),
				zap.Error(err))
		}
	}

	if err := h.sessions.SetUser(w, r, user, mergeFailed); err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, h.logger, status, userResponse{okBody: succeeded, User: user})
}
