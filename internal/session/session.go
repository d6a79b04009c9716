// Package session keeps the caller's identity in a signed cookie. Every
// request ends up with an Identity: a logged in user, or a guest id that is
// minted on first contact so anonymous carts have an owner.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"

	"github.com/safar/storefront/internal/config"
	"github.com/safar/storefront/internal/models"
)

const (
	cookieName = "storefront_session"

	keyUserID  = "user_id"
	keyIsAdmin = "is_admin"
	keyGuestID = "guest_id"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("admin access required")
)

type Identity struct {
	UserID  int64
	IsAdmin bool
	GuestID string
}

func (i Identity) IsAuthenticated() bool {
	return i.UserID > 0
}

// IsZero reports an identity with neither a user nor a guest id.
func (i Identity) IsZero() bool {
	return i.UserID == 0 && i.GuestID == ""
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) Identity {
	id, _ := ctx.Value(ctxKey{}).(Identity)
	return id
}

type Manager struct {
	store  sessions.Store
	logger *zap.Logger
}

func NewManager(cfg config.SessionConfig, logger *zap.Logger) *Manager {
	store := sessions.NewCookieStore([]byte(cfg.Secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   cfg.MaxAge,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}

	return &Manager{store: store, logger: logger}
}

// Middleware loads the identity into the request context, assigning a guest
// id to sessions that have no owner yet.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := m.store.Get(r, cookieName)
		if err != nil {
			// Tampered or stale cookie: start over with a fresh session.
			m.logger.Debug("discarding unreadable session", zap.Error(err))
		}

		id := identityOf(sess)
		if id.IsZero() {
			id.GuestID = uuid.NewString()
			sess.Values[keyGuestID] = id.GuestID
			if err := sess.Save(r, w); err != nil {
				m.logger.Error("save session", zap.Error(err))
			}
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

func identityOf(sess *sessions.Session) Identity {
	var id Identity
	id.UserID, _ = sess.Values[keyUserID].(int64)
	id.IsAdmin, _ = sess.Values[keyIsAdmin].(bool)
	id.GuestID, _ = sess.Values[keyGuestID].(string)
	return id
}

// SetUser marks the session as logged in. Callers merge the guest cart first
// and pass keepGuest when that merge failed, so the guest id survives for the
// next login to retry.
func (m *Manager) SetUser(w http.ResponseWriter, r *http.Request, user *models.User, keepGuest bool) error {
	sess, _ := m.store.Get(r, cookieName)
	sess.Values[keyUserID] = user.ID
	sess.Values[keyIsAdmin] = user.IsAdmin
	if !keepGuest {
		delete(sess.Values, keyGuestID)
	}
	if err := sess.Save(r, w); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Clear expires the cookie.
func (m *Manager) Clear(w http.ResponseWriter, r *http.Request) error {
	sess, _ := m.store.Get(r, cookieName)
	sess.Values = map[interface{}]interface{}{}
	sess.Options.MaxAge = -1
	if err := sess.Save(r, w); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// ErrorFunc writes an error response for a rejected request.
type ErrorFunc func(w http.ResponseWriter, r *http.Request, err error)

func RequireAuth(onErr ErrorFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !FromContext(r.Context()).IsAuthenticated() {
				onErr(w, r, ErrUnauthenticated)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func RequireAdmin(onErr ErrorFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := FromContext(r.Context())
			switch {
			case !id.IsAuthenticated():
				onErr(w, r, ErrUnauthenticated)
			case !id.IsAdmin:
				onErr(w, r, ErrForbidden)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}
