// Package api exposes the storefront over JSON/HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/safar/storefront/internal/cart"
	"github.com/safar/storefront/internal/models"
	"github.com/safar/storefront/internal/session"
	"github.com/safar/storefront/internal/store"
)

type CartService interface {
	Summary(ctx context.Context, id session.Identity) (*cart.Summary, error)
	Add(ctx context.Context, id session.Identity, req cart.AddRequest) (*cart.Summary, error)
	Update(ctx context.Context, id session.Identity, productID int64, sizeID *int64, quantity int) (*cart.Summary, error)
	Remove(ctx context.Context, id session.Identity, productID int64, sizeID *int64) (*cart.Summary, error)
	Clear(ctx context.Context, id session.Identity) (*cart.Summary, error)
	MergeGuestInto(ctx context.Context, guestID string, userID int64) error
}

type OrderService interface {
	CreateOrder(ctx context.Context, id session.Identity, req models.CheckoutRequest) (*models.CheckoutResult, error)
	CancelOrder(ctx context.Context, id session.Identity, orderID int64, reason string) (*models.Order, error)
	UpdateStatus(ctx context.Context, orderID int64, to models.OrderStatus, note string) (*models.Order, error)
	ClaimNextPendingOrder(ctx context.Context, note string) (*models.Order, error)
	GetOrder(ctx context.Context, id session.Identity, orderID int64) (*models.Order, error)
	ListOrders(ctx context.Context, id session.Identity, cursor string, limit int) (*store.CursorPage, error)
	History(ctx context.Context, orderID int64) ([]models.OrderStatusHistory, error)
}

type Catalog interface {
	ListProducts(ctx context.Context, page, pageSize int) (*store.OffsetPage, error)
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	LookupCoupon(ctx context.Context, code string) (*models.CouponDescriptor, error)
	Restock(ctx context.Context, productID int64, stock, version int) (*models.Product, error)
	CreateProduct(ctx context.Context, req models.ProductRequest) (*models.Product, error)
	AddSize(ctx context.Context, productID int64, req models.SizeRequest) (*models.ProductSize, error)
	SetProductActive(ctx context.Context, productID int64, active bool) error
	CreateCoupon(ctx context.Context, req models.CouponRequest) (*models.Coupon, error)
	SetCouponActive(ctx context.Context, couponID int64, active bool) error
}

type Accounts interface {
	Register(ctx context.Context, email, name, password string) (*models.User, error)
	Authenticate(ctx context.Context, email, password string) (*models.User, error)
	Addresses(ctx context.Context, userID int64) ([]models.Address, error)
	AddAddress(ctx context.Context, a models.Address) (*models.Address, error)
}

// HealthCheck is one dependency pinged by /healthz.
type HealthCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

type Deps struct {
	Sessions *session.Manager
	Cart     CartService
	Orders   OrderService
	Catalog  Catalog
	Accounts Accounts
	Health   []HealthCheck
	Logger   *zap.Logger
}

type Handler struct {
	sessions *session.Manager
	cart     CartService
	orders   OrderService
	catalog  Catalog
	accounts Accounts
	health   []HealthCheck
	logger   *zap.Logger
}

func NewHandler(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		sessions: d.Sessions,
		cart:     d.Cart,
		orders:   d.Orders,
		catalog:  d.Catalog,
		accounts: d.Accounts,
		health:   d.Health,
		logger:   logger,
	}
}

func NewRouter(d Deps) http.Handler {
	h := NewHandler(d)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Use(h.sessions.Middleware)
		h.RegisterRoutes(r)
	})

	return r
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/register", h.Register)
	r.Post("/login", h.Login)
	r.Post("/logout", h.Logout)

	r.Get("/products", h.ListProducts)
	r.Get("/products/{id}", h.GetProduct)

	r.Route("/cart", func(r chi.Router) {
		r.Get("/", h.GetCart)
		r.Post("/", h.AddToCart)
		r.Put("/", h.UpdateCart)
		r.Delete("/", h.DeleteFromCart)
	})

	r.Post("/coupons", h.ValidateCoupon)

	r.Group(func(r chi.Router) {
		r.Use(session.RequireAuth(h.fail))

		r.Post("/checkout", h.Checkout)

		r.Get("/addresses", h.ListAddresses)
		r.Post("/addresses", h.CreateAddress)

		r.Get("/orders", h.ListOrders)
		r.Get("/orders/{id}", h.GetOrder)
		r.Post("/orders/{id}/cancel", h.CancelOrder)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(session.RequireAdmin(h.fail))

		r.Put("/orders/{id}/status", h.UpdateOrderStatus)
		r.Post("/orders/claim", h.ClaimOrder)
		r.Post("/products", h.CreateProduct)
		r.Post("/products/{id}/sizes", h.AddSize)
		r.Put("/products/{id}/stock", h.RestockProduct)
		r.Put("/products/{id}/active", h.SetProductActive)
		r.Post("/coupons", h.CreateCoupon)
		r.Put("/coupons/{id}/active", h.SetCouponActive)
	})
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}
