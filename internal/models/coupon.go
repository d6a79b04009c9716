package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type CouponType string

const (
	CouponTypePercentage CouponType = "percentage"
	CouponTypeFixed      CouponType = "fixed"
)

func (t CouponType) Valid() bool {
	return t == CouponTypePercentage || t == CouponTypeFixed
}

type Coupon struct {
	ID             int64           `json:"id"`
	Code           string          `json:"code"`
	Type           CouponType      `json:"discount_type"`
	Value          decimal.Decimal `json:"discount_value"`
	MinOrderAmount decimal.Decimal `json:"min_order_amount"`
	IsActive       bool            `json:"is_active"`
	StartDate      *time.Time      `json:"start_date,omitempty"`
	EndDate        *time.Time      `json:"end_date,omitempty"`
	UsageLimit     *int            `json:"usage_limit,omitempty"`
	UsedCount      int             `json:"used_count"`
	CreatedAt      time.Time       `json:"created_at"`
}

// CouponDescriptor is what the resolver hands to pricing. It carries no cart
// knowledge; the minimum order gate is applied against the live subtotal.
type CouponDescriptor struct {
	ID             int64           `json:"-"`
	Code           string          `json:"code"`
	Type           CouponType      `json:"discount_type"`
	Value          decimal.Decimal `json:"discount_value"`
	MinOrderAmount decimal.Decimal `json:"min_order_amount"`
}

func (c *Coupon) Descriptor() *CouponDescriptor {
	return &CouponDescriptor{
		ID:             c.ID,
		Code:           c.Code,
		Type:           c.Type,
		Value:          c.Value,
		MinOrderAmount: c.MinOrderAmount,
	}
}
