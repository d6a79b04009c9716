package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ValidationError reports a malformed or missing request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type CheckoutRequest struct {
	AddressID        int64           `json:"address_id" validate:"required,gt=0"`
	BillingAddressID *int64          `json:"billing_address_id,omitempty" validate:"omitempty,gt=0"`
	PaymentMethod    string          `json:"payment_method" validate:"required"`
	CouponCode       string          `json:"coupon_availed,omitempty" validate:"max=50"`
	CouponDetails    json.RawMessage `json:"coupon_details,omitempty"`
	Notes            string          `json:"notes,omitempty" validate:"max=1000"`
}

// Validate checks the request shape and returns the parsed payment method.
// CouponDetails is accepted for compatibility and never read.
func (r *CheckoutRequest) Validate() (PaymentMethod, error) {
	r.CouponCode = strings.TrimSpace(r.CouponCode)
	if err := ValidateStruct(r); err != nil {
		return "", err
	}
	return ParsePaymentMethod(r.PaymentMethod)
}

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Name     string `json:"name" validate:"required,max=100"`
	Password string `json:"password" validate:"min=8,max=72"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// ProductRequest is the admin payload for a new product.
type ProductRequest struct {
	SKU           string           `json:"sku" validate:"required,max=64"`
	Name          string           `json:"name" validate:"required,max=200"`
	Description   string           `json:"description" validate:"max=5000"`
	Price         decimal.Decimal  `json:"price"`
	DiscountPrice *decimal.Decimal `json:"discount_price,omitempty"`
	Stock         int              `json:"stock_quantity" validate:"gte=0"`
	MinStockLevel int              `json:"min_stock_level" validate:"gte=0"`
}

// SizeRequest adds a size to an existing product. A nil price inherits the
// product's.
type SizeRequest struct {
	Label         string           `json:"label" validate:"required,max=20"`
	Price         *decimal.Decimal `json:"price,omitempty"`
	DiscountPrice *decimal.Decimal `json:"discount_price,omitempty"`
	Stock         int              `json:"stock_quantity" validate:"gte=0"`
	MinStockLevel int              `json:"min_stock_level" validate:"gte=0"`
}

// CouponRequest is the admin payload for a new coupon.
type CouponRequest struct {
	Code           string          `json:"code" validate:"required,max=50"`
	Type           CouponType      `json:"discount_type" validate:"required,oneof=percentage fixed"`
	Value          decimal.Decimal `json:"discount_value"`
	MinOrderAmount decimal.Decimal `json:"min_order_amount"`
	StartDate      *time.Time      `json:"start_date,omitempty"`
	EndDate        *time.Time      `json:"end_date,omitempty"`
	UsageLimit     *int            `json:"usage_limit,omitempty" validate:"omitempty,gt=0"`
}

type CheckoutResult struct {
	OrderID       int64  `json:"order_id"`
	OrderNumber   string `json:"order_number"`
	Total         string `json:"total"`
	TransactionID string `json:"transaction_id,omitempty"`
}
