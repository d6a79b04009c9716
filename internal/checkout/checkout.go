// Package checkout turns a user's cart into an order inside one database
// transaction and drives the order through its status lifecycle.
package checkout

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/safar/storefront/internal/cart"
	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/inventory"
	"github.com/safar/storefront/internal/models"
	"github.com/safar/storefront/internal/pricing"
	"github.com/safar/storefront/internal/session"
	"github.com/safar/storefront/internal/store"
)

type Service struct {
	db     *sql.DB
	calc   *pricing.Calculator
	logger *zap.Logger
	now    func() time.Time

	// beforeCommit runs as the last step inside the order transaction.
	beforeCommit func(ctx context.Context, tx *sql.Tx) error
}

func NewService(db *sql.DB, calc *pricing.Calculator, logger *zap.Logger) *Service {
	return &Service{db: db, calc: calc, logger: logger, now: time.Now}
}

func txOptions() database.TxOptions {
	return database.TxOptions{
		IsolationLevel: sql.LevelReadCommitted,
		MaxRetries:     3,
	}
}

// lowStockLine is a line that checkout left at or below its reorder level.
type lowStockLine struct {
	productID int64
	sizeID    *int64
	remaining int
}

// CreateOrder places an order for everything in the user's cart. Either the
// order, its items, the stock debit, the coupon usage, the payment record and
// the cart clearing all commit together, or none of them do.
func (s *Service) CreateOrder(ctx context.Context, id session.Identity, req models.CheckoutRequest) (*models.CheckoutResult, error) {
	if !id.IsAuthenticated() {
		return nil, session.ErrUnauthenticated
	}

	method, err := req.Validate()
	if err != nil {
		return nil, err
	}

	var result *models.CheckoutResult
	var lowStock []lowStockLine

	err = database.WithRetry(ctx, s.db, txOptions(), func(tx *sql.Tx) error {
		var err error
		result, lowStock, err = s.placeOrder(ctx, tx, id.UserID, method, req)
		if err != nil {
			return err
		}
		if s.beforeCommit != nil {
			return s.beforeCommit(ctx, tx)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order created",
		zap.Int64("order_id", result.OrderID),
		zap.String("order_number", result.OrderNumber),
		zap.Int64("user_id", id.UserID),
		zap.String("payment_method", string(method)),
		zap.String("total", result.Total))

	for _, l := range lowStock {
		fields := []zap.Field{zap.Int64("product_id", l.productID), zap.Int("remaining", l.remaining)}
		if l.sizeID != nil {
			fields = append(fields, zap.Int64("size_id", *l.sizeID))
		}
		s.logger.Warn("stock at or below minimum level", fields...)
	}

	return result, nil
}

func (s *Service) placeOrder(ctx context.Context, tx *sql.Tx, userID int64, method models.PaymentMethod, req models.CheckoutRequest) (*models.CheckoutResult, []lowStockLine, error) {
	lines, err := store.LockCartLines(ctx, tx, userID)
	if err != nil {
		return nil, nil, err
	}
	if len(lines) == 0 {
		return nil, nil, database.ErrEmptyCart
	}

	// Lines come back sorted by (product_id, size_id) so concurrent checkouts
	// lock rows in the same order.
	items, err := cart.Hydrate(ctx, tx, lines, store.LockWait)
	if err != nil {
		return nil, nil, err
	}
	if err := inventory.Validate(items).Err(); err != nil {
		return nil, nil, err
	}

	shipping, err := store.GetAddress(ctx, tx, userID, req.AddressID)
	if err != nil {
		return nil, nil, err
	}
	billing := shipping
	if req.BillingAddressID != nil && *req.BillingAddressID != req.AddressID {
		billing, err = store.GetAddress(ctx, tx, userID, *req.BillingAddressID)
		if err != nil {
			return nil, nil, err
		}
	}

	now := s.now()

	var coupon *models.Coupon
	var descriptor *models.CouponDescriptor
	if req.CouponCode != "" {
		coupon, err = store.ResolveCoupon(ctx, tx, req.CouponCode, now, true)
		if err != nil {
			return nil, nil, err
		}
		descriptor = coupon.Descriptor()
	}

	totals, err := s.calc.Calculate(items, method, descriptor)
	if err != nil {
		return nil, nil, err
	}

	order := &models.Order{
		UserID:          userID,
		OrderNumber:     newOrderNumber(now),
		Status:          models.OrderStatusPending,
		Subtotal:        totals.Subtotal,
		TaxAmount:       totals.Tax,
		ShippingAmount:  totals.Shipping,
		DiscountAmount:  totals.Discount,
		TotalAmount:     totals.Total,
		ShippingAddress: *shipping,
		BillingAddress:  *billing,
		PaymentMethod:   method,
		Notes:           strings.TrimSpace(req.Notes),
	}
	if coupon != nil {
		order.CouponCode = coupon.Code
	}
	if err := store.InsertOrder(ctx, tx, order); err != nil {
		return nil, nil, err
	}

	orderItems := make([]models.OrderItem, 0, len(items))
	for _, item := range items {
		orderItems = append(orderItems, models.OrderItem{
			ProductID:   item.ProductID,
			SizeID:      item.SizeID,
			ProductName: item.Name,
			SizeLabel:   item.SizeLabel,
			Quantity:    item.Quantity,
			UnitPrice:   item.EffectivePrice,
			Subtotal:    item.LineTotal,
		})
	}
	if err := store.InsertOrderItems(ctx, tx, order.ID, orderItems); err != nil {
		return nil, nil, err
	}

	var lowStock []lowStockLine
	for _, item := range items {
		if err := store.DecrementStock(ctx, tx, item.ProductID, item.SizeID, item.Quantity); err != nil {
			return nil, nil, err
		}
		if remaining := item.StockQuantity - item.Quantity; remaining <= item.MinStockLevel {
			lowStock = append(lowStock, lowStockLine{productID: item.ProductID, sizeID: item.SizeID, remaining: remaining})
		}
	}

	if coupon != nil {
		if err := store.IncrementCouponUsage(ctx, tx, coupon.ID); err != nil {
			return nil, nil, err
		}
		if err := store.InsertCouponUsage(ctx, tx, coupon.ID, userID, order.ID, totals.Discount); err != nil {
			return nil, nil, err
		}
	}

	result := &models.CheckoutResult{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Total:       order.TotalAmount.StringFixed(2),
	}

	if !method.IsCash() {
		payment := &models.Payment{
			OrderID:       order.ID,
			TransactionID: newTransactionID(),
			Amount:        order.TotalAmount,
			Status:        models.PaymentStatusCompleted,
			Method:        method,
		}
		if err := store.InsertPayment(ctx, tx, payment); err != nil {
			return nil, nil, err
		}
		result.TransactionID = payment.TransactionID
	}

	if err := store.ClearCart(ctx, tx, userID); err != nil {
		return nil, nil, err
	}

	return result, lowStock, nil
}

// newOrderNumber formats ORD-<yyyymmddHHMMSS>-<8 upper hex>.
func newOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return "ORD-" + now.UTC().Format("20060102150405") + "-" + suffix
}

func newTransactionID() string {
	return "TXN-" + uuid.NewString()
}

// CancelOrder cancels a pending or processing order on behalf of its owner or
// an admin and puts the stock back.
func (s *Service) CancelOrder(ctx context.Context, id session.Identity, orderID int64, reason string) (*models.Order, error) {
	if !id.IsAuthenticated() {
		return nil, session.ErrUnauthenticated
	}

	err := database.WithRetry(ctx, s.db, txOptions(), func(tx *sql.Tx) error {
		order, err := store.GetOrderForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.UserID != id.UserID && !id.IsAdmin {
			return database.ErrOrderNotFound
		}
		if !order.Status.Cancellable() {
			return fmt.Errorf("cancel %s order: %w", order.Status, database.ErrInvalidTransition)
		}
		return s.cancelLocked(ctx, tx, order, reason)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order cancelled", zap.Int64("order_id", orderID), zap.Int64("by_user", id.UserID))

	return store.GetOrder(ctx, s.db, orderID)
}

func (s *Service) cancelLocked(ctx context.Context, tx *sql.Tx, order *models.Order, reason string) error {
	items, err := store.ListOrderItems(ctx, tx, order.ID)
	if err != nil {
		return err
	}
	for _, item := range items {
		if err := store.RestoreStock(ctx, tx, item.ProductID, item.SizeID, item.Quantity); err != nil {
			return err
		}
	}

	if err := store.UpdateOrderStatus(ctx, tx, order.ID, order.Status, models.OrderStatusCancelled); err != nil {
		return err
	}
	return store.AppendStatusHistory(ctx, tx, order.ID, order.Status, models.OrderStatusCancelled, reason)
}

// UpdateStatus applies an admin status change. Cancelling through here takes
// the same path as a customer cancellation.
func (s *Service) UpdateStatus(ctx context.Context, orderID int64, to models.OrderStatus, note string) (*models.Order, error) {
	if !to.Valid() {
		return nil, &models.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", to)}
	}

	var from models.OrderStatus
	err := database.WithRetry(ctx, s.db, txOptions(), func(tx *sql.Tx) error {
		order, err := store.GetOrderForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		from = order.Status
		if !order.Status.CanTransitionTo(to) {
			return fmt.Errorf("%s to %s: %w", order.Status, to, database.ErrInvalidTransition)
		}
		if to == models.OrderStatusCancelled {
			return s.cancelLocked(ctx, tx, order, note)
		}
		if err := store.UpdateOrderStatus(ctx, tx, order.ID, order.Status, to); err != nil {
			return err
		}
		return store.AppendStatusHistory(ctx, tx, order.ID, order.Status, to, note)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order status changed",
		zap.Int64("order_id", orderID),
		zap.String("from", string(from)),
		zap.String("to", string(to)))

	return store.GetOrder(ctx, s.db, orderID)
}

// ClaimNextPendingOrder moves the oldest pending order to processing. Workers
// running this concurrently never claim the same order.
func (s *Service) ClaimNextPendingOrder(ctx context.Context, note string) (*models.Order, error) {
	var orderID int64
	err := database.WithRetry(ctx, s.db, txOptions(), func(tx *sql.Tx) error {
		order, err := store.NextPendingOrder(ctx, tx)
		if err != nil {
			return err
		}
		orderID = order.ID
		if err := store.UpdateOrderStatus(ctx, tx, order.ID, models.OrderStatusPending, models.OrderStatusProcessing); err != nil {
			return err
		}
		return store.AppendStatusHistory(ctx, tx, order.ID, models.OrderStatusPending, models.OrderStatusProcessing, note)
	})
	if err != nil {
		return nil, err
	}

	return store.GetOrder(ctx, s.db, orderID)
}

// GetOrder returns an order with its items if id may see it.
func (s *Service) GetOrder(ctx context.Context, id session.Identity, orderID int64) (*models.Order, error) {
	if !id.IsAuthenticated() {
		return nil, session.ErrUnauthenticated
	}
	order, err := store.GetOrder(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != id.UserID && !id.IsAdmin {
		return nil, database.ErrOrderNotFound
	}
	return order, nil
}

func (s *Service) ListOrders(ctx context.Context, id session.Identity, cursor string, limit int) (*store.CursorPage, error) {
	if !id.IsAuthenticated() {
		return nil, session.ErrUnauthenticated
	}
	return store.ListOrdersCursor(ctx, s.db, id.UserID, cursor, limit)
}

func (s *Service) History(ctx context.Context, orderID int64) ([]models.OrderStatusHistory, error) {
	return store.ListStatusHistory(ctx, s.db, orderID)
}
