package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/cucumber/godog"
	"github.com/shopspring/decimal"

	"github.com/safar/storefront/internal/config"
	"github.com/safar/storefront/internal/models"
)

type pricingTestContext struct {
	cfg      config.PricingConfig
	subtotal decimal.Decimal
	coupon   *models.CouponDescriptor
	result   Breakdown
	err      error
}

func (c *pricingTestContext) reset() {
	c.cfg = config.PricingConfig{}
	c.subtotal = decimal.Zero
	c.coupon = nil
	c.result = Breakdown{}
	c.err = nil
}

func (c *pricingTestContext) aTaxRateOfPercent(rate string) error {
	c.cfg.TaxRate = decimal.RequireFromString(rate).Div(hundred)
	return nil
}

func (c *pricingTestContext) aCashOnDeliveryFeeOf(fee string) error {
	c.cfg.CODFee = decimal.RequireFromString(fee)
	return nil
}

func (c *pricingTestContext) freePrepaidShippingFrom(threshold, fee string) error {
	c.cfg.FreeShippingThreshold = decimal.RequireFromString(threshold)
	c.cfg.StandardShippingFee = decimal.RequireFromString(fee)
	return nil
}

func (c *pricingTestContext) aCartWithSubtotal(subtotal string) error {
	c.subtotal = decimal.RequireFromString(subtotal)
	return nil
}

func (c *pricingTestContext) thePercentageCoupon(code, value, min string) error {
	c.coupon = &models.CouponDescriptor{
		Code:           code,
		Type:           models.CouponTypePercentage,
		Value:          decimal.RequireFromString(value),
		MinOrderAmount: decimal.RequireFromString(min),
	}
	return nil
}

func (c *pricingTestContext) theFixedCoupon(code, value, min string) error {
	c.coupon = &models.CouponDescriptor{
		Code:           code,
		Type:           models.CouponTypeFixed,
		Value:          decimal.RequireFromString(value),
		MinOrderAmount: decimal.RequireFromString(min),
	}
	return nil
}

func (c *pricingTestContext) iPriceTheCartPayingWith(method string) error {
	m, err := models.ParsePaymentMethod(method)
	if err != nil {
		return err
	}
	c.result, c.err = NewCalculator(c.cfg).CalculateSubtotal(c.subtotal, m, c.coupon)
	return nil
}

func (c *pricingTestContext) expect(name string, got decimal.Decimal, want string) error {
	if c.err != nil {
		return fmt.Errorf("pricing failed: %w", c.err)
	}
	if !got.Equal(decimal.RequireFromString(want)) {
		return fmt.Errorf("expected %s %s, got %s", name, want, got)
	}
	return nil
}

func (c *pricingTestContext) theTaxIs(v string) error { return c.expect("tax", c.result.Tax, v) }
func (c *pricingTestContext) theShippingIs(v string) error {
	return c.expect("shipping", c.result.Shipping, v)
}
func (c *pricingTestContext) theDiscountIs(v string) error {
	return c.expect("discount", c.result.Discount, v)
}

func (c *pricingTestContext) theTotalIs(v string) error {
	if err := c.expect("total", c.result.Total, v); err != nil {
		return err
	}
	sum := c.result.Subtotal.Add(c.result.Tax).Add(c.result.Shipping).Sub(c.result.Discount)
	if !sum.Equal(c.result.Total) {
		return fmt.Errorf("total %s does not equal parts %s", c.result.Total, sum)
	}
	return nil
}

func (c *pricingTestContext) pricingFailsWith(msg string) error {
	if c.err == nil {
		return errors.New("expected pricing to fail")
	}
	if !strings.Contains(c.err.Error(), msg) {
		return fmt.Errorf("expected error containing %q, got %q", msg, c.err.Error())
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &pricingTestContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})

	// Given steps
	ctx.Step(`^a tax rate of (\d+) percent$`, tc.aTaxRateOfPercent)
	ctx.Step(`^a cash on delivery fee of (\d+(?:\.\d+)?)$`, tc.aCashOnDeliveryFeeOf)
	ctx.Step(`^free prepaid shipping from (\d+(?:\.\d+)?) with a standard fee of (\d+(?:\.\d+)?)$`, tc.freePrepaidShippingFrom)
	ctx.Step(`^a cart with subtotal (\d+(?:\.\d+)?)$`, tc.aCartWithSubtotal)
	ctx.Step(`^the coupon "([^"]*)" giving (\d+(?:\.\d+)?) percent off orders from (\d+(?:\.\d+)?)$`, tc.thePercentageCoupon)
	ctx.Step(`^the coupon "([^"]*)" giving (\d+(?:\.\d+)?) off orders from (\d+(?:\.\d+)?)$`, tc.theFixedCoupon)

	// When steps
	ctx.Step(`^I price the cart paying with "([^"]*)"$`, tc.iPriceTheCartPayingWith)

	// Then steps
	ctx.Step(`^the tax is (\d+(?:\.\d+)?)$`, tc.theTaxIs)
	ctx.Step(`^the shipping is (\d+(?:\.\d+)?)$`, tc.theShippingIs)
	ctx.Step(`^the discount is (\d+(?:\.\d+)?)$`, tc.theDiscountIs)
	ctx.Step(`^the total is (\d+(?:\.\d+)?)$`, tc.theTotalIs)
	ctx.Step(`^pricing fails with "([^"]*)"$`, tc.pricingFailsWith)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features/pricing.feature"},
			TestingT: t,
			Strict:   true,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
