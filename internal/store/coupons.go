package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/models"
)

type CouponParams struct {
	Code           string
	Type           models.CouponType
	Value          decimal.Decimal
	MinOrderAmount decimal.Decimal
	StartDate      *time.Time
	EndDate        *time.Time
	UsageLimit     *int
}

const couponColumns = `id, code, type, value, min_order_amount, is_active, start_date, end_date, usage_limit, used_count, created_at`

func scanCoupon(row interface{ Scan(...interface{}) error }, c *models.Coupon) error {
	var usageLimit sql.NullInt64
	err := row.Scan(
		&c.ID,
		&c.Code,
		&c.Type,
		&c.Value,
		&c.MinOrderAmount,
		&c.IsActive,
		&c.StartDate,
		&c.EndDate,
		&usageLimit,
		&c.UsedCount,
		&c.CreatedAt,
	)
	if err != nil {
		return err
	}
	if usageLimit.Valid {
		limit := int(usageLimit.Int64)
		c.UsageLimit = &limit
	}
	return nil
}

// NormalizeCouponCode trims and upper-cases a user supplied code.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func CreateCoupon(ctx context.Context, q database.DBTX, p CouponParams) (*models.Coupon, error) {
	if !p.Type.Valid() {
		return nil, &models.ValidationError{Field: "discount_type", Message: "must be percentage or fixed"}
	}

	coupon := &models.Coupon{}
	err := scanCoupon(q.QueryRowContext(ctx, `
		INSERT INTO coupons (code, type, value, min_order_amount, is_active, start_date, end_date, usage_limit, used_count, created_at)
		VALUES ($1, $2, $3, $4, TRUE, $5, $6, $7, 0, NOW())
		RETURNING `+couponColumns,
		NormalizeCouponCode(p.Code), p.Type, p.Value, p.MinOrderAmount, p.StartDate, p.EndDate, p.UsageLimit), coupon)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, database.ErrCouponCodeTaken
		}
		return nil, fmt.Errorf("create coupon: %w", err)
	}

	return coupon, nil
}

func SetCouponActive(ctx context.Context, q database.DBTX, couponID int64, active bool) error {
	result, err := q.ExecContext(ctx, `UPDATE coupons SET is_active = $1 WHERE id = $2`, active, couponID)
	if err != nil {
		return fmt.Errorf("set coupon active: %w", err)
	}
	return expectRow(result, database.ErrCouponNotFound)
}

// ResolveCoupon looks up an active coupon by code and checks its validity
// window and usage limit at now. With lock set the coupon row stays locked
// until the transaction ends so the usage count cannot race.
func ResolveCoupon(ctx context.Context, q database.DBTX, code string, now time.Time, lock bool) (*models.Coupon, error) {
	code = NormalizeCouponCode(code)
	if code == "" {
		return nil, database.ErrCouponNotFound
	}

	query := `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1 AND is_active`
	if lock {
		query += ` FOR UPDATE`
	}

	coupon := &models.Coupon{}
	if err := scanCoupon(q.QueryRowContext(ctx, query, code), coupon); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrCouponNotFound
		}
		return nil, fmt.Errorf("resolve coupon: %w", err)
	}

	if err := CheckCouponWindow(coupon, now); err != nil {
		return nil, err
	}

	return coupon, nil
}

// CheckCouponWindow applies the start, end and usage limit rules.
func CheckCouponWindow(c *models.Coupon, now time.Time) error {
	if c.StartDate != nil && now.Before(*c.StartDate) {
		return database.ErrCouponNotStarted
	}
	if c.EndDate != nil && now.After(*c.EndDate) {
		return database.ErrCouponExpired
	}
	if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
		return database.ErrCouponExhausted
	}
	return nil
}

// IncrementCouponUsage bumps used_count only while it is below the limit.
func IncrementCouponUsage(ctx context.Context, q database.DBTX, couponID int64) error {
	result, err := q.ExecContext(ctx, `
		UPDATE coupons
		SET used_count = used_count + 1
		WHERE id = $1
		  AND (usage_limit IS NULL OR used_count < usage_limit)`, couponID)
	if err != nil {
		return fmt.Errorf("increment coupon usage: %w", err)
	}
	return expectRow(result, database.ErrCouponExhausted)
}

func InsertCouponUsage(ctx context.Context, q database.DBTX, couponID, userID, orderID int64, discount decimal.Decimal) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO coupon_usages (coupon_id, user_id, order_id, discount_amount, used_at)
		VALUES ($1, $2, $3, $4, NOW())`,
		couponID, userID, orderID, discount)
	if err != nil {
		return fmt.Errorf("insert coupon usage: %w", err)
	}
	return nil
}
