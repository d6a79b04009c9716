package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/models"
)

const addressColumns = `id, user_id, full_name, phone, line1, line2, city, state, postal_code, country, created_at`

func scanAddress(row interface{ Scan(...interface{}) error }, a *models.Address) error {
	return row.Scan(
		&a.ID,
		&a.UserID,
		&a.FullName,
		&a.Phone,
		&a.Line1,
		&a.Line2,
		&a.City,
		&a.State,
		&a.PostalCode,
		&a.Country,
		&a.CreatedAt,
	)
}

func CreateAddress(ctx context.Context, q database.DBTX, a models.Address) (*models.Address, error) {
	if a.Country == "" {
		a.Country = "IN"
	}

	created := &models.Address{}
	err := scanAddress(q.QueryRowContext(ctx, `
		INSERT INTO addresses (user_id, full_name, phone, line1, line2, city, state, postal_code, country, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		RETURNING `+addressColumns,
		a.UserID, a.FullName, a.Phone, a.Line1, a.Line2, a.City, a.State, a.PostalCode, a.Country), created)
	if err != nil {
		return nil, fmt.Errorf("create address: %w", err)
	}

	return created, nil
}

// GetAddress only returns addresses owned by userID; someone else's address
// is reported as not found.
func GetAddress(ctx context.Context, q database.DBTX, userID, addressID int64) (*models.Address, error) {
	a := &models.Address{}

	err := scanAddress(q.QueryRowContext(ctx,
		`SELECT `+addressColumns+` FROM addresses WHERE id = $1 AND user_id = $2`,
		addressID, userID), a)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrAddressNotFound
		}
		return nil, fmt.Errorf("get address: %w", err)
	}

	return a, nil
}

func ListAddresses(ctx context.Context, q database.DBTX, userID int64) ([]models.Address, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+addressColumns+` FROM addresses WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	defer rows.Close()

	addresses := []models.Address{}
	for rows.Next() {
		var a models.Address
		if err := scanAddress(rows, &a); err != nil {
			return nil, fmt.Errorf("scan address: %w", err)
		}
		addresses = append(addresses, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return addresses, nil
}
