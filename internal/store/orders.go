package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/models"
)

const orderColumns = `id, user_id, order_number, status, subtotal, tax_amount, shipping_amount, discount_amount,
	total_amount, shipping_address, billing_address, payment_method, COALESCE(coupon_code, ''), notes,
	created_at, updated_at, version`

func scanOrder(row interface{ Scan(...interface{}) error }, order *models.Order) error {
	var shipping, billing []byte
	err := row.Scan(
		&order.ID,
		&order.UserID,
		&order.OrderNumber,
		&order.Status,
		&order.Subtotal,
		&order.TaxAmount,
		&order.ShippingAmount,
		&order.DiscountAmount,
		&order.TotalAmount,
		&shipping,
		&billing,
		&order.PaymentMethod,
		&order.CouponCode,
		&order.Notes,
		&order.CreatedAt,
		&order.UpdatedAt,
		&order.Version,
	)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(shipping, &order.ShippingAddress); err != nil {
		return fmt.Errorf("decode shipping address: %w", err)
	}
	if err := json.Unmarshal(billing, &order.BillingAddress); err != nil {
		return fmt.Errorf("decode billing address: %w", err)
	}
	return nil
}

// InsertOrder writes the order row and fills in ID and timestamps. Addresses
// are stored as JSON snapshots so later edits do not rewrite history.
func InsertOrder(ctx context.Context, q database.DBTX, order *models.Order) error {
	shipping, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("encode shipping address: %w", err)
	}
	billing, err := json.Marshal(order.BillingAddress)
	if err != nil {
		return fmt.Errorf("encode billing address: %w", err)
	}

	var coupon sql.NullString
	if order.CouponCode != "" {
		coupon = sql.NullString{String: order.CouponCode, Valid: true}
	}

	err = q.QueryRowContext(ctx, `
		INSERT INTO orders (user_id, order_number, status, subtotal, tax_amount, shipping_amount, discount_amount,
		                    total_amount, shipping_address, billing_address, payment_method, coupon_code, notes,
		                    created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW(), 1)
		RETURNING id, created_at, updated_at, version`,
		order.UserID, order.OrderNumber, order.Status, order.Subtotal, order.TaxAmount, order.ShippingAmount,
		order.DiscountAmount, order.TotalAmount, shipping, billing, order.PaymentMethod, coupon, order.Notes,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt, &order.Version)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}

	return nil
}

func InsertOrderItems(ctx context.Context, q database.DBTX, orderID int64, items []models.OrderItem) error {
	for i := range items {
		item := &items[i]
		item.OrderID = orderID
		err := q.QueryRowContext(ctx, `
			INSERT INTO order_items (order_id, product_id, size_id, product_name, size_label, quantity, unit_price, subtotal, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
			RETURNING id, created_at`,
			orderID, item.ProductID, item.SizeID, item.ProductName, item.SizeLabel, item.Quantity, item.UnitPrice, item.Subtotal,
		).Scan(&item.ID, &item.CreatedAt)
		if err != nil {
			return fmt.Errorf("create order item: %w", err)
		}
	}
	return nil
}

func GetOrder(ctx context.Context, q database.DBTX, id int64) (*models.Order, error) {
	order := &models.Order{}

	err := scanOrder(q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id), order)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	items, err := ListOrderItems(ctx, q, id)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}

// GetOrderForUpdate locks the order row for a status change.
func GetOrderForUpdate(ctx context.Context, q database.DBTX, id int64) (*models.Order, error) {
	order := &models.Order{}

	err := scanOrder(q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id), order)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}

	return order, nil
}

func ListOrderItems(ctx context.Context, q database.DBTX, orderID int64) ([]models.OrderItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, order_id, product_id, size_id, product_name, size_label, quantity, unit_price, subtotal, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.SizeID,
			&item.ProductName,
			&item.SizeLabel,
			&item.Quantity,
			&item.UnitPrice,
			&item.Subtotal,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

func ListOrdersCursor(ctx context.Context, q database.DBTX, userID int64, cursor string, limit int) (*CursorPage, error) {
	_, limit = normalizePage(1, limit)

	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, &models.ValidationError{Field: "cursor", Message: "malformed cursor"}
	}

	rows, err := q.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE user_id = $1
		  AND (created_at, id) < ($2, $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4`, userID, cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		var order models.Order
		if err := scanOrder(rows, &order); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		last := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}

	return &CursorPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// NextPendingOrder locks the oldest pending order, skipping rows other
// workers already hold.
func NextPendingOrder(ctx context.Context, q database.DBTX) (*models.Order, error) {
	order := &models.Order{}

	err := scanOrder(q.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE status = $1
		ORDER BY created_at, id
		FOR UPDATE SKIP LOCKED
		LIMIT 1`, models.OrderStatusPending), order)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get next pending order: %w", err)
	}

	return order, nil
}

// UpdateOrderStatus moves an order from one status to another. The update
// only applies while the stored status still equals from.
func UpdateOrderStatus(ctx context.Context, q database.DBTX, orderID int64, from, to models.OrderStatus) error {
	result, err := q.ExecContext(ctx, `
		UPDATE orders
		SET status = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND status = $3`,
		to, orderID, from)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	return expectRow(result, database.ErrInvalidTransition)
}

func AppendStatusHistory(ctx context.Context, q database.DBTX, orderID int64, from, to models.OrderStatus, note string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO order_status_history (order_id, from_status, to_status, note, created_at)
		VALUES ($1, $2, $3, $4, NOW())`,
		orderID, from, to, note)
	if err != nil {
		return fmt.Errorf("append status history: %w", err)
	}
	return nil
}

func ListStatusHistory(ctx context.Context, q database.DBTX, orderID int64) ([]models.OrderStatusHistory, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, order_id, from_status, to_status, note, created_at
		FROM order_status_history
		WHERE order_id = $1
		ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}
	defer rows.Close()

	history := []models.OrderStatusHistory{}
	for rows.Next() {
		var h models.OrderStatusHistory
		if err := rows.Scan(&h.ID, &h.OrderID, &h.FromStatus, &h.ToStatus, &h.Note, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan status history: %w", err)
		}
		history = append(history, h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return history, nil
}

func expectRow(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}
