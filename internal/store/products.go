package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/models"
)

type ProductParams struct {
	SKU           string
	Name          string
	Description   string
	Price         decimal.Decimal
	DiscountPrice *decimal.Decimal
	Stock         int
	MinStockLevel int
}

type SizeParams struct {
	Label         string
	Price         *decimal.Decimal
	DiscountPrice *decimal.Decimal
	Stock         int
	MinStockLevel int
}

const productColumns = `id, sku, name, description, price, discount_price, stock_quantity, min_stock_level, is_active, created_at, updated_at, version`

func scanProduct(row interface{ Scan(...interface{}) error }, product *models.Product) error {
	var discount decimal.NullDecimal
	err := row.Scan(
		&product.ID,
		&product.SKU,
		&product.Name,
		&product.Description,
		&product.Price,
		&discount,
		&product.StockQuantity,
		&product.MinStockLevel,
		&product.IsActive,
		&product.CreatedAt,
		&product.UpdatedAt,
		&product.Version,
	)
	if err != nil {
		return err
	}
	product.DiscountPrice = fromNullDecimal(discount)
	return nil
}

func CreateProduct(ctx context.Context, q database.DBTX, p ProductParams) (*models.Product, error) {
	product := &models.Product{}

	query := `
		INSERT INTO products (sku, name, description, price, discount_price, stock_quantity, min_stock_level, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW(), 1)
		RETURNING ` + productColumns

	err := scanProduct(q.QueryRowContext(ctx, query,
		p.SKU, p.Name, p.Description, p.Price, toNullDecimal(p.DiscountPrice), p.Stock, p.MinStockLevel), product)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, database.ErrSKUTaken
		}
		return nil, fmt.Errorf("create product: %w", err)
	}

	return product, nil
}

func CreateProductSize(ctx context.Context, q database.DBTX, productID int64, p SizeParams) (*models.ProductSize, error) {
	size := &models.ProductSize{}
	var price, discount decimal.NullDecimal

	err := q.QueryRowContext(ctx, `
		INSERT INTO product_sizes (product_id, label, price, discount_price, stock_quantity, min_stock_level, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, product_id, label, price, discount_price, stock_quantity, min_stock_level`,
		productID, strings.TrimSpace(p.Label), toNullDecimal(p.Price), toNullDecimal(p.DiscountPrice), p.Stock, p.MinStockLevel).Scan(
		&size.ID,
		&size.ProductID,
		&size.Label,
		&price,
		&discount,
		&size.StockQuantity,
		&size.MinStockLevel,
	)
	if err != nil {
		switch {
		case database.IsUniqueViolation(err):
			return nil, database.ErrSizeLabelTaken
		case database.IsForeignKeyViolation(err):
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("create product size: %w", err)
	}
	size.Price = fromNullDecimal(price)
	size.DiscountPrice = fromNullDecimal(discount)

	return size, nil
}

// GetProduct returns the product with its size variants.
func GetProduct(ctx context.Context, q database.DBTX, id int64) (*models.Product, error) {
	product := &models.Product{}

	err := scanProduct(q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id), product)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	sizes, err := listSizes(ctx, q, id)
	if err != nil {
		return nil, err
	}
	product.Sizes = sizes

	return product, nil
}

func listSizes(ctx context.Context, q database.DBTX, productID int64) ([]models.ProductSize, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, product_id, label, price, discount_price, stock_quantity, min_stock_level
		FROM product_sizes
		WHERE product_id = $1
		ORDER BY id`, productID)
	if err != nil {
		return nil, fmt.Errorf("list sizes: %w", err)
	}
	defer rows.Close()

	var sizes []models.ProductSize
	for rows.Next() {
		var size models.ProductSize
		var price, discount decimal.NullDecimal
		err := rows.Scan(
			&size.ID,
			&size.ProductID,
			&size.Label,
			&price,
			&discount,
			&size.StockQuantity,
			&size.MinStockLevel,
		)
		if err != nil {
			return nil, fmt.Errorf("scan size: %w", err)
		}
		size.Price = fromNullDecimal(price)
		size.DiscountPrice = fromNullDecimal(discount)
		sizes = append(sizes, size)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return sizes, nil
}

// GetSizeByLabel resolves a size label such as "M" to its row. Labels match
// case-insensitively.
func GetSizeByLabel(ctx context.Context, q database.DBTX, productID int64, label string) (*models.ProductSize, error) {
	size := &models.ProductSize{}
	var price, discount decimal.NullDecimal

	err := q.QueryRowContext(ctx, `
		SELECT id, product_id, label, price, discount_price, stock_quantity, min_stock_level
		FROM product_sizes
		WHERE product_id = $1 AND UPPER(label) = UPPER($2)`,
		productID, strings.TrimSpace(label)).Scan(
		&size.ID,
		&size.ProductID,
		&size.Label,
		&price,
		&discount,
		&size.StockQuantity,
		&size.MinStockLevel,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrSizeNotFound
		}
		return nil, fmt.Errorf("get size by label: %w", err)
	}
	size.Price = fromNullDecimal(price)
	size.DiscountPrice = fromNullDecimal(discount)

	return size, nil
}

type LockMode int

const (
	LockNone LockMode = iota
	LockWait
	// LockNoWait fails with database.ErrLockTimeout instead of queueing
	// behind another transaction.
	LockNoWait
)

func (m LockMode) clause(table string) string {
	switch m {
	case LockWait:
		return " FOR UPDATE OF " + table
	case LockNoWait:
		return " FOR UPDATE OF " + table + " NOWAIT"
	}
	return ""
}

func lockError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "55P03" {
		return database.ErrLockTimeout
	}
	return err
}

// GetStockSnapshot reads the price and stock a cart line is charged against.
// Under a lock mode the stock-bearing row (the size row when sizeID is given,
// otherwise the product row) stays locked until the transaction ends.
// A product that has sizes cannot be bought without one.
func GetStockSnapshot(ctx context.Context, q database.DBTX, productID int64, sizeID *int64, lock LockMode) (*models.StockSnapshot, error) {
	if sizeID != nil {
		return getSizeSnapshot(ctx, q, productID, *sizeID, lock)
	}

	snap := &models.StockSnapshot{ProductID: productID}
	var discount decimal.NullDecimal
	var hasSizes bool

	query := `
		SELECT p.name, p.price, p.discount_price, p.stock_quantity, p.min_stock_level, p.is_active,
		       EXISTS (SELECT 1 FROM product_sizes s WHERE s.product_id = p.id)
		FROM products p
		WHERE p.id = $1` + lock.clause("p")

	err := q.QueryRowContext(ctx, query, productID).Scan(
		&snap.Name,
		&snap.Price,
		&discount,
		&snap.StockQuantity,
		&snap.MinStockLevel,
		&snap.IsActive,
		&hasSizes,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get stock snapshot: %w", lockError(err))
	}
	if hasSizes {
		return nil, database.ErrSizeRequired
	}
	snap.DiscountPrice = fromNullDecimal(discount)

	return snap, nil
}

func getSizeSnapshot(ctx context.Context, q database.DBTX, productID, sizeID int64, lock LockMode) (*models.StockSnapshot, error) {
	snap := &models.StockSnapshot{ProductID: productID, SizeID: &sizeID}
	var discount decimal.NullDecimal

	// A size without its own price inherits both price and discount from the product.
	query := `
		SELECT p.name, s.label,
		       COALESCE(s.price, p.price),
		       CASE WHEN s.price IS NULL THEN COALESCE(s.discount_price, p.discount_price) ELSE s.discount_price END,
		       s.stock_quantity, s.min_stock_level, p.is_active
		FROM product_sizes s
		JOIN products p ON p.id = s.product_id
		WHERE s.id = $1 AND s.product_id = $2` + lock.clause("s")

	err := q.QueryRowContext(ctx, query, sizeID, productID).Scan(
		&snap.Name,
		&snap.SizeLabel,
		&snap.Price,
		&discount,
		&snap.StockQuantity,
		&snap.MinStockLevel,
		&snap.IsActive,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrSizeNotFound
		}
		return nil, fmt.Errorf("get size snapshot: %w", lockError(err))
	}
	snap.DiscountPrice = fromNullDecimal(discount)

	return snap, nil
}

// UpdateStockOptimistic sets absolute stock on an unsized product when the
// caller's version is still current.
func UpdateStockOptimistic(ctx context.Context, q database.DBTX, productID int64, newStock int, version int) (*models.Product, error) {
	product := &models.Product{}

	err := scanProduct(q.QueryRowContext(ctx, `
		UPDATE products
		SET stock_quantity = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND version = $3
		RETURNING `+productColumns,
		newStock, productID, version), product)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if _, getErr := GetProduct(ctx, q, productID); getErr != nil {
				return nil, getErr
			}
			return nil, database.ErrOptimisticLockFailed
		}
		return nil, fmt.Errorf("update stock: %w", err)
	}

	return product, nil
}

// DecrementStock removes quantity units only if that many are on hand.
func DecrementStock(ctx context.Context, q database.DBTX, productID int64, sizeID *int64, quantity int) error {
	var result sql.Result
	var err error

	if sizeID != nil {
		result, err = q.ExecContext(ctx, `
			UPDATE product_sizes
			SET stock_quantity = stock_quantity - $1,
			    updated_at = NOW()
			WHERE id = $2
			  AND product_id = $3
			  AND stock_quantity >= $1`,
			quantity, *sizeID, productID)
	} else {
		result, err = q.ExecContext(ctx, `
			UPDATE products
			SET stock_quantity = stock_quantity - $1,
			    version = version + 1,
			    updated_at = NOW()
			WHERE id = $2
			  AND stock_quantity >= $1`,
			quantity, productID)
	}
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrInsufficientStock
	}

	return nil
}

func RestoreStock(ctx context.Context, q database.DBTX, productID int64, sizeID *int64, quantity int) error {
	var result sql.Result
	var err error

	if sizeID != nil {
		result, err = q.ExecContext(ctx, `
			UPDATE product_sizes
			SET stock_quantity = stock_quantity + $1, updated_at = NOW()
			WHERE id = $2 AND product_id = $3`,
			quantity, *sizeID, productID)
	} else {
		result, err = q.ExecContext(ctx, `
			UPDATE products
			SET stock_quantity = stock_quantity + $1, version = version + 1, updated_at = NOW()
			WHERE id = $2`,
			quantity, productID)
	}
	if err != nil {
		return fmt.Errorf("restore stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		if sizeID != nil {
			return database.ErrSizeNotFound
		}
		return database.ErrProductNotFound
	}

	return nil
}

func ListProducts(ctx context.Context, q database.DBTX, page, pageSize int) (*OffsetPage, error) {
	page, pageSize = normalizePage(page, pageSize)

	var total int64
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM products WHERE is_active`).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE is_active
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		var product models.Product
		if err := scanProduct(rows, &product); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return newOffsetPage(products, total, page, pageSize), nil
}

func SetProductActive(ctx context.Context, q database.DBTX, productID int64, active bool) error {
	result, err := q.ExecContext(ctx,
		`UPDATE products SET is_active = $1, updated_at = NOW() WHERE id = $2`, active, productID)
	if err != nil {
		return fmt.Errorf("set product active: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return database.ErrProductNotFound
	}
	return nil
}

func toNullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func fromNullDecimal(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}
