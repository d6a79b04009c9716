// Package catalog serves product reads, coupon lookups and the admin writes
// for products, sizes, coupons and stock.
package catalog

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/safar/storefront/internal/models"
	"github.com/safar/storefront/internal/store"
)

type Service struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

func NewService(db *sql.DB, logger *zap.Logger) *Service {
	return &Service{db: db, logger: logger, now: time.Now}
}

func (s *Service) ListProducts(ctx context.Context, page, pageSize int) (*store.OffsetPage, error) {
	return store.ListProducts(ctx, s.db, page, pageSize)
}

func (s *Service) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	return store.GetProduct(ctx, s.db, id)
}

// LookupCoupon validates a code without reference to any cart. The minimum
// order amount is reported, not enforced.
func (s *Service) LookupCoupon(ctx context.Context, code string) (*models.CouponDescriptor, error) {
	if store.NormalizeCouponCode(code) == "" {
		return nil, &models.ValidationError{Field: "code", Message: "is required"}
	}
	coupon, err := store.ResolveCoupon(ctx, s.db, code, s.now(), false)
	if err != nil {
		return nil, err
	}
	return coupon.Descriptor(), nil
}

// Restock sets absolute stock on a product if version is still current.
func (s *Service) Restock(ctx context.Context, productID int64, stock, version int) (*models.Product, error) {
	if stock < 0 {
		return nil, &models.ValidationError{Field: "stock", Message: "must not be negative"}
	}

	product, err := store.UpdateStockOptimistic(ctx, s.db, productID, stock, version)
	if err != nil {
		return nil, err
	}

	s.logger.Info("product restocked",
		zap.Int64("product_id", productID),
		zap.Int("stock", stock),
		zap.Int("version", product.Version))

	return product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req models.ProductRequest) (*models.Product, error) {
	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Name = strings.TrimSpace(req.Name)
	if err := models.ValidateStruct(req); err != nil {
		return nil, err
	}
	price := req.Price
	if err := checkPrices(&price, req.DiscountPrice); err != nil {
		return nil, err
	}

	product, err := store.CreateProduct(ctx, s.db, store.ProductParams{
		SKU:           req.SKU,
		Name:          req.Name,
		Description:   req.Description,
		Price:         req.Price,
		DiscountPrice: req.DiscountPrice,
		Stock:         req.Stock,
		MinStockLevel: req.MinStockLevel,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("product created", zap.Int64("product_id", product.ID), zap.String("sku", product.SKU))
	return product, nil
}

func (s *Service) AddSize(ctx context.Context, productID int64, req models.SizeRequest) (*models.ProductSize, error) {
	req.Label = strings.TrimSpace(req.Label)
	if err := models.ValidateStruct(req); err != nil {
		return nil, err
	}
	if err := checkPrices(req.Price, req.DiscountPrice); err != nil {
		return nil, err
	}

	size, err := store.CreateProductSize(ctx, s.db, productID, store.SizeParams{
		Label:         req.Label,
		Price:         req.Price,
		DiscountPrice: req.DiscountPrice,
		Stock:         req.Stock,
		MinStockLevel: req.MinStockLevel,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("product size created",
		zap.Int64("product_id", productID),
		zap.Int64("size_id", size.ID),
		zap.String("label", size.Label))
	return size, nil
}

// checkPrices requires a positive price when one is given and a discount
// that stays below it.
func checkPrices(price, discount *decimal.Decimal) error {
	if price != nil && !price.IsPositive() {
		return &models.ValidationError{Field: "price", Message: "must be positive"}
	}
	if discount == nil {
		return nil
	}
	if discount.IsNegative() {
		return &models.ValidationError{Field: "discount_price", Message: "must not be negative"}
	}
	if price != nil && !discount.LessThan(*price) {
		return &models.ValidationError{Field: "discount_price", Message: "must be below price"}
	}
	return nil
}

func (s *Service) CreateCoupon(ctx context.Context, req models.CouponRequest) (*models.Coupon, error) {
	req.Code = store.NormalizeCouponCode(req.Code)
	if err := models.ValidateStruct(req); err != nil {
		return nil, err
	}
	if !req.Value.IsPositive() {
		return nil, &models.ValidationError{Field: "discount_value", Message: "must be positive"}
	}
	if req.Type == models.CouponTypePercentage && req.Value.GreaterThan(decimal.NewFromInt(100)) {
		return nil, &models.ValidationError{Field: "discount_value", Message: "must be at most 100"}
	}
	if req.MinOrderAmount.IsNegative() {
		return nil, &models.ValidationError{Field: "min_order_amount", Message: "must not be negative"}
	}
	if req.StartDate != nil && req.EndDate != nil && !req.EndDate.After(*req.StartDate) {
		return nil, &models.ValidationError{Field: "end_date", Message: "must be after start_date"}
	}

	coupon, err := store.CreateCoupon(ctx, s.db, store.CouponParams{
		Code:           req.Code,
		Type:           req.Type,
		Value:          req.Value,
		MinOrderAmount: req.MinOrderAmount,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
		UsageLimit:     req.UsageLimit,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("coupon created", zap.Int64("coupon_id", coupon.ID), zap.String("code", coupon.Code))
	return coupon, nil
}

// SetCouponActive toggles a coupon. Orders that already used it keep their
// recorded discount.
func (s *Service) SetCouponActive(ctx context.Context, couponID int64, active bool) error {
	if err := store.SetCouponActive(ctx, s.db, couponID, active); err != nil {
		return err
	}
	s.logger.Info("coupon toggled", zap.Int64("coupon_id", couponID), zap.Bool("active", active))
	return nil
}

// SetProductActive hides or relists a product. Carts holding a hidden product
// keep the line; checkout rejects it.
func (s *Service) SetProductActive(ctx context.Context, productID int64, active bool) error {
	if err := store.SetProductActive(ctx, s.db, productID, active); err != nil {
		return err
	}
	s.logger.Info("product toggled", zap.Int64("product_id", productID), zap.Bool("active", active))
	return nil
}
