package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/models"
)

func InsertPayment(ctx context.Context, q database.DBTX, p *models.Payment) error {
	err := q.QueryRowContext(ctx, `
		INSERT INTO payments (order_id, transaction_id, amount, status, method, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, created_at`,
		p.OrderID, p.TransactionID, p.Amount, p.Status, p.Method,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

// GetPaymentByOrder returns sql.ErrNoRows wrapped when the order has no
// payment, which is normal for cash on delivery.
func GetPaymentByOrder(ctx context.Context, q database.DBTX, orderID int64) (*models.Payment, error) {
	p := &models.Payment{}
	err := q.QueryRowContext(ctx, `
		SELECT id, order_id, transaction_id, amount, status, method, created_at
		FROM payments
		WHERE order_id = $1`, orderID).Scan(
		&p.ID,
		&p.OrderID,
		&p.TransactionID,
		&p.Amount,
		&p.Status,
		&p.Method,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("payment for order %d: %w", orderID, err)
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}
