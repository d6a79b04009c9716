// Package pricing computes order totals from a hydrated cart.
//
// All arithmetic uses decimal values. Tax and percentage discounts are
// rounded half-up to two places once, where they are derived, so
// total == subtotal + tax + shipping - discount holds exactly.
package pricing

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/safar/storefront/internal/config"
	"github.com/safar/storefront/internal/models"
)

var ErrMinimumOrderNotMet = errors.New("minimum order amount not met")

var hundred = decimal.NewFromInt(100)

type Calculator struct {
	taxRate               decimal.Decimal
	codFee                decimal.Decimal
	freeShippingThreshold decimal.Decimal
	standardShippingFee   decimal.Decimal
}

func NewCalculator(cfg config.PricingConfig) *Calculator {
	return &Calculator{
		taxRate:               cfg.TaxRate,
		codFee:                cfg.CODFee,
		freeShippingThreshold: cfg.FreeShippingThreshold,
		standardShippingFee:   cfg.StandardShippingFee,
	}
}

type Breakdown struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Shipping decimal.Decimal `json:"shipping"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
}

// Subtotal sums effective price times quantity over the items.
func Subtotal(items []models.CartItem) decimal.Decimal {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.EffectivePrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return subtotal.Round(2)
}

// Calculate prices a cart. A coupon whose minimum order amount exceeds the
// subtotal yields ErrMinimumOrderNotMet rather than a zero discount.
func (c *Calculator) Calculate(items []models.CartItem, method models.PaymentMethod, coupon *models.CouponDescriptor) (Breakdown, error) {
	return c.CalculateSubtotal(Subtotal(items), method, coupon)
}

func (c *Calculator) CalculateSubtotal(subtotal decimal.Decimal, method models.PaymentMethod, coupon *models.CouponDescriptor) (Breakdown, error) {
	discount, err := Discount(subtotal, coupon)
	if err != nil {
		return Breakdown{}, err
	}

	b := Breakdown{
		Subtotal: subtotal,
		Tax:      c.Tax(subtotal),
		Shipping: c.Shipping(subtotal, method),
		Discount: discount,
	}
	b.Total = b.Subtotal.Add(b.Tax).Add(b.Shipping).Sub(b.Discount)

	return b, nil
}

func (c *Calculator) Tax(subtotal decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(c.taxRate).Round(2)
}

// Shipping is a flat surcharge for cash on delivery. Prepaid orders ship free
// at or above the threshold and pay the standard fee below it.
func (c *Calculator) Shipping(subtotal decimal.Decimal, method models.PaymentMethod) decimal.Decimal {
	if method.IsCash() {
		return c.codFee
	}
	if subtotal.GreaterThanOrEqual(c.freeShippingThreshold) {
		return decimal.Zero
	}
	return c.standardShippingFee
}

// Discount never exceeds the subtotal.
func Discount(subtotal decimal.Decimal, coupon *models.CouponDescriptor) (decimal.Decimal, error) {
	if coupon == nil {
		return decimal.Zero, nil
	}
	if subtotal.LessThan(coupon.MinOrderAmount) {
		return decimal.Zero, ErrMinimumOrderNotMet
	}

	var discount decimal.Decimal
	switch coupon.Type {
	case models.CouponTypePercentage:
		discount = subtotal.Mul(coupon.Value).Div(hundred).Round(2)
	case models.CouponTypeFixed:
		discount = coupon.Value
	default:
		return decimal.Zero, &models.ValidationError{Field: "coupon", Message: "unknown discount type"}
	}

	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	return discount, nil
}
