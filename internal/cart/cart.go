// Package cart manages shopping carts for users and guests and prices them
// against the live catalog.
package cart

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/inventory"
	"github.com/safar/storefront/internal/models"
	"github.com/safar/storefront/internal/pricing"
	"github.com/safar/storefront/internal/session"
	"github.com/safar/storefront/internal/store"
)

type AddRequest struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
	Size      string `json:"size,omitempty" validate:"max=20"`
	SizeID    *int64 `json:"size_id,omitempty" validate:"omitempty,gt=0"`
}

type Summary struct {
	Items     []models.CartItem `json:"items"`
	ItemCount int               `json:"item_count"`
	Subtotal  decimal.Decimal   `json:"subtotal"`
	Tax       decimal.Decimal   `json:"tax"`
	Shipping  decimal.Decimal   `json:"shipping"`
	Total     decimal.Decimal   `json:"total"`
}

type Service struct {
	db     *sql.DB
	rdb    *redis.Client
	ttl    time.Duration
	calc   *pricing.Calculator
	logger *zap.Logger
}

func NewService(db *sql.DB, rdb *redis.Client, guestTTL time.Duration, calc *pricing.Calculator, logger *zap.Logger) *Service {
	return &Service{db: db, rdb: rdb, ttl: guestTTL, calc: calc, logger: logger}
}

// For picks the cart backing an identity: Postgres for users, Redis for guests.
func (s *Service) For(id session.Identity) (Store, error) {
	switch {
	case id.IsAuthenticated():
		return NewUserStore(s.db, id.UserID), nil
	case id.GuestID != "":
		return NewGuestStore(s.rdb, id.GuestID, s.ttl), nil
	}
	return nil, session.ErrUnauthenticated
}

// Add increments a line after checking that the combined quantity is in
// stock. A size may be given by id or by label.
func (s *Service) Add(ctx context.Context, id session.Identity, req AddRequest) (*Summary, error) {
	if err := models.ValidateStruct(req); err != nil {
		return nil, err
	}

	cart, err := s.For(id)
	if err != nil {
		return nil, err
	}

	sizeID := req.SizeID
	if sizeID == nil && req.Size != "" {
		size, err := store.GetSizeByLabel(ctx, s.db, req.ProductID, req.Size)
		if err != nil {
			return nil, err
		}
		sizeID = &size.ID
	}

	existing, err := cart.Quantity(ctx, req.ProductID, sizeID)
	if err != nil {
		return nil, err
	}
	if err := s.checkStock(ctx, req.ProductID, sizeID, existing+req.Quantity); err != nil {
		return nil, err
	}

	if _, err := cart.Add(ctx, req.ProductID, sizeID, req.Quantity); err != nil {
		return nil, err
	}

	return s.summarize(ctx, cart)
}

// Update sets a line's quantity. Zero or less removes the line.
func (s *Service) Update(ctx context.Context, id session.Identity, productID int64, sizeID *int64, quantity int) (*Summary, error) {
	if productID <= 0 {
		return nil, &models.ValidationError{Field: "item_id", Message: "is required"}
	}

	cart, err := s.For(id)
	if err != nil {
		return nil, err
	}

	if quantity <= 0 {
		if err := cart.Remove(ctx, productID, sizeID); err != nil {
			return nil, err
		}
		return s.summarize(ctx, cart)
	}

	if err := s.checkStock(ctx, productID, sizeID, quantity); err != nil {
		return nil, err
	}
	if err := cart.Set(ctx, productID, sizeID, quantity); err != nil {
		return nil, err
	}

	return s.summarize(ctx, cart)
}

func (s *Service) Remove(ctx context.Context, id session.Identity, productID int64, sizeID *int64) (*Summary, error) {
	cart, err := s.For(id)
	if err != nil {
		return nil, err
	}
	if err := cart.Remove(ctx, productID, sizeID); err != nil {
		return nil, err
	}
	return s.summarize(ctx, cart)
}

func (s *Service) Clear(ctx context.Context, id session.Identity) (*Summary, error) {
	cart, err := s.For(id)
	if err != nil {
		return nil, err
	}
	if err := cart.Clear(ctx); err != nil {
		return nil, err
	}
	return s.summarize(ctx, cart)
}

// Summary hydrates the cart and quotes totals for prepaid payment, without a
// coupon. Lines whose product has since disappeared are left out.
func (s *Service) Summary(ctx context.Context, id session.Identity) (*Summary, error) {
	cart, err := s.For(id)
	if err != nil {
		return nil, err
	}
	return s.summarize(ctx, cart)
}

func (s *Service) summarize(ctx context.Context, cart Store) (*Summary, error) {
	lines, err := cart.Lines(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]models.CartItem, 0, len(lines))
	for _, line := range lines {
		item, err := HydrateLine(ctx, s.db, line, store.LockNone)
		if err != nil {
			if isGone(err) {
				s.logger.Debug("skipping stale cart line",
					zap.Int64("product_id", line.ProductID),
					zap.Error(err))
				continue
			}
			return nil, err
		}
		items = append(items, item)
	}

	summary := &Summary{Items: items}
	if len(items) == 0 {
		return summary, nil
	}

	b, err := s.calc.Calculate(items, models.PaymentMethodRazorpay, nil)
	if err != nil {
		return nil, fmt.Errorf("price cart: %w", err)
	}
	for _, item := range items {
		summary.ItemCount += item.Quantity
	}
	summary.Subtotal = b.Subtotal
	summary.Tax = b.Tax
	summary.Shipping = b.Shipping
	summary.Total = b.Total

	return summary, nil
}

// MergeGuestInto moves a guest's lines into a user's cart, adding quantities
// to lines the user already has. The guest cart is deleted afterwards.
func (s *Service) MergeGuestInto(ctx context.Context, guestID string, userID int64) error {
	if guestID == "" {
		return nil
	}

	guest := NewGuestStore(s.rdb, guestID, s.ttl)
	lines, err := guest.Lines(ctx)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		return nil
	}

	err = database.WithTransaction(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		for _, line := range lines {
			if _, err := store.AddCartLine(ctx, tx, userID, line.ProductID, line.SizeID, line.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("merge guest cart: %w", err)
	}

	s.logger.Info("merged guest cart",
		zap.Int64("user_id", userID),
		zap.Int("lines", len(lines)))

	return guest.Clear(ctx)
}

func (s *Service) checkStock(ctx context.Context, productID int64, sizeID *int64, quantity int) error {
	item, err := HydrateLine(ctx, s.db, models.CartLine{ProductID: productID, SizeID: sizeID, Quantity: quantity}, store.LockNone)
	if err != nil {
		return err
	}
	return inventory.Validate([]models.CartItem{item}).Err()
}

// HydrateLine joins a line with its stock snapshot, optionally locking the
// stock row.
func HydrateLine(ctx context.Context, q database.DBTX, line models.CartLine, lock store.LockMode) (models.CartItem, error) {
	snap, err := store.GetStockSnapshot(ctx, q, line.ProductID, line.SizeID, lock)
	if err != nil {
		return models.CartItem{}, err
	}
	return models.NewCartItem(line, *snap), nil
}

// Hydrate joins every line with its snapshot in the order given.
func Hydrate(ctx context.Context, q database.DBTX, lines []models.CartLine, lock store.LockMode) ([]models.CartItem, error) {
	items := make([]models.CartItem, 0, len(lines))
	for _, line := range lines {
		item, err := HydrateLine(ctx, q, line, lock)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func isGone(err error) bool {
	return errors.Is(err, database.ErrProductNotFound) ||
		errors.Is(err, database.ErrSizeNotFound) ||
		errors.Is(err, database.ErrSizeRequired)
}
