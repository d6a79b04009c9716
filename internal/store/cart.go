package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/models"
)

// AddCartLine adds quantity to the user's line for (product, size), creating
// it when absent, and returns the resulting quantity.
func AddCartLine(ctx context.Context, q database.DBTX, userID, productID int64, sizeID *int64, quantity int) (int, error) {
	var total int
	err := q.QueryRowContext(ctx, `
		INSERT INTO cart_items (user_id, product_id, size_id, quantity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (user_id, product_id, (COALESCE(size_id, 0)))
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = NOW()
		RETURNING quantity`,
		userID, productID, sizeID, quantity).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("add cart line: %w", err)
	}
	return total, nil
}

// SetCartLine overwrites the quantity of an existing line.
func SetCartLine(ctx context.Context, q database.DBTX, userID, productID int64, sizeID *int64, quantity int) error {
	result, err := q.ExecContext(ctx, `
		UPDATE cart_items
		SET quantity = $1, updated_at = NOW()
		WHERE user_id = $2 AND product_id = $3 AND COALESCE(size_id, 0) = COALESCE($4::BIGINT, 0)`,
		quantity, userID, productID, sizeID)
	if err != nil {
		return fmt.Errorf("set cart line: %w", err)
	}
	return expectRow(result, database.ErrCartLineNotFound)
}

func RemoveCartLine(ctx context.Context, q database.DBTX, userID, productID int64, sizeID *int64) error {
	result, err := q.ExecContext(ctx, `
		DELETE FROM cart_items
		WHERE user_id = $1 AND product_id = $2 AND COALESCE(size_id, 0) = COALESCE($3::BIGINT, 0)`,
		userID, productID, sizeID)
	if err != nil {
		return fmt.Errorf("remove cart line: %w", err)
	}
	return expectRow(result, database.ErrCartLineNotFound)
}

func ClearCart(ctx context.Context, q database.DBTX, userID int64) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

// ListCartLines returns lines sorted by (product_id, size_id), the same order
// checkout takes row locks in.
func ListCartLines(ctx context.Context, q database.DBTX, userID int64) ([]models.CartLine, error) {
	return listCartLines(ctx, q, userID, false)
}

// LockCartLines is ListCartLines with FOR UPDATE. A second checkout of the
// same cart waits here and then sees the lines the first one deleted.
func LockCartLines(ctx context.Context, tx *sql.Tx, userID int64) ([]models.CartLine, error) {
	return listCartLines(ctx, tx, userID, true)
}

func listCartLines(ctx context.Context, q database.DBTX, userID int64, lock bool) ([]models.CartLine, error) {
	query := `
		SELECT product_id, size_id, quantity
		FROM cart_items
		WHERE user_id = $1
		ORDER BY product_id, COALESCE(size_id, 0)`
	if lock {
		query += ` FOR UPDATE`
	}

	rows, err := q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list cart lines: %w", err)
	}
	defer rows.Close()

	var lines []models.CartLine
	for rows.Next() {
		var line models.CartLine
		if err := rows.Scan(&line.ProductID, &line.SizeID, &line.Quantity); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		lines = append(lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return lines, nil
}
