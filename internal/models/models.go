package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Version      int       `json:"version"`
}

type Product struct {
	ID            int64            `json:"id"`
	SKU           string           `json:"sku"`
	Name          string           `json:"name"`
	Description   string           `json:"description,omitempty"`
	Price         decimal.Decimal  `json:"price"`
	DiscountPrice *decimal.Decimal `json:"discount_price,omitempty"`
	StockQuantity int              `json:"stock_quantity"`
	MinStockLevel int              `json:"min_stock_level"`
	IsActive      bool             `json:"is_active"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
	Version       int              `json:"version"`
	Sizes         []ProductSize    `json:"sizes,omitempty"`
}

// ProductSize is a size variant. A nil Price falls back to the product's price.
type ProductSize struct {
	ID            int64            `json:"id"`
	ProductID     int64            `json:"product_id"`
	Label         string           `json:"label"`
	Price         *decimal.Decimal `json:"price,omitempty"`
	DiscountPrice *decimal.Decimal `json:"discount_price,omitempty"`
	StockQuantity int              `json:"stock_quantity"`
	MinStockLevel int              `json:"min_stock_level"`
}

// StockSnapshot is the read-only price and stock view of one product or
// product size at calculation time.
type StockSnapshot struct {
	ProductID     int64
	SizeID        *int64
	Name          string
	SizeLabel     string
	Price         decimal.Decimal
	DiscountPrice *decimal.Decimal
	StockQuantity int
	MinStockLevel int
	IsActive      bool
}

// EffectivePrice is the discount price when set and positive, else the list price.
func (s StockSnapshot) EffectivePrice() decimal.Decimal {
	if s.DiscountPrice != nil && s.DiscountPrice.IsPositive() {
		return *s.DiscountPrice
	}
	return s.Price
}

type Address struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	FullName   string    `json:"full_name" validate:"required,max=100"`
	Phone      string    `json:"phone" validate:"max=20"`
	Line1      string    `json:"line1" validate:"required,max=200"`
	Line2      string    `json:"line2,omitempty" validate:"max=200"`
	City       string    `json:"city" validate:"required,max=100"`
	State      string    `json:"state" validate:"max=100"`
	PostalCode string    `json:"postal_code" validate:"required,max=20"`
	Country    string    `json:"country" validate:"omitempty,len=2"`
	CreatedAt  time.Time `json:"created_at"`
}

type Order struct {
	ID              int64           `json:"id"`
	UserID          int64           `json:"user_id"`
	OrderNumber     string          `json:"order_number"`
	Status          OrderStatus     `json:"status"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	TaxAmount       decimal.Decimal `json:"tax_amount"`
	ShippingAmount  decimal.Decimal `json:"shipping_amount"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	ShippingAddress Address         `json:"shipping_address"`
	BillingAddress  Address         `json:"billing_address"`
	PaymentMethod   PaymentMethod   `json:"payment_method"`
	CouponCode      string          `json:"coupon_availed,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Version         int             `json:"version"`
	Items           []OrderItem     `json:"items,omitempty"`
}

// OrderItem is frozen at order time and never re-derived from the catalog.
type OrderItem struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"order_id"`
	ProductID   int64           `json:"product_id"`
	SizeID      *int64          `json:"size_id,omitempty"`
	ProductName string          `json:"product_name"`
	SizeLabel   string          `json:"size_label,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	CreatedAt   time.Time       `json:"created_at"`
}

type Payment struct {
	ID            int64           `json:"id"`
	OrderID       int64           `json:"order_id"`
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`
	Method        PaymentMethod   `json:"method"`
	CreatedAt     time.Time       `json:"created_at"`
}

type OrderStatusHistory struct {
	ID         int64       `json:"id"`
	OrderID    int64       `json:"order_id"`
	FromStatus OrderStatus `json:"from_status"`
	ToStatus   OrderStatus `json:"to_status"`
	Note       string      `json:"note,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

const PaymentStatusCompleted = "completed"
