package models

import "github.com/shopspring/decimal"

// CartLine is one (product, size) pending purchase. Quantity is always > 0.
type CartLine struct {
	ProductID int64  `json:"product_id"`
	SizeID    *int64 `json:"size_id,omitempty"`
	Quantity  int    `json:"quantity"`
}

// SameItem reports whether two lines address the same product and size.
func (l CartLine) SameItem(productID int64, sizeID *int64) bool {
	if l.ProductID != productID {
		return false
	}
	if l.SizeID == nil || sizeID == nil {
		return l.SizeID == nil && sizeID == nil
	}
	return *l.SizeID == *sizeID
}

// CartItem is a cart line hydrated with the current catalog snapshot.
type CartItem struct {
	ProductID      int64            `json:"item_id"`
	SizeID         *int64           `json:"size_id,omitempty"`
	Name           string           `json:"name"`
	SizeLabel      string           `json:"size,omitempty"`
	Price          decimal.Decimal  `json:"price"`
	DiscountPrice  *decimal.Decimal `json:"discount_price,omitempty"`
	EffectivePrice decimal.Decimal  `json:"effective_price"`
	Quantity       int              `json:"quantity"`
	LineTotal      decimal.Decimal  `json:"line_total"`
	StockQuantity  int              `json:"stock_quantity"`
	MinStockLevel  int              `json:"-"`
	IsActive       bool             `json:"-"`
	LowStock       bool             `json:"low_stock"`
}

func NewCartItem(line CartLine, snap StockSnapshot) CartItem {
	price := snap.EffectivePrice()
	return CartItem{
		ProductID:      line.ProductID,
		SizeID:         line.SizeID,
		Name:           snap.Name,
		SizeLabel:      snap.SizeLabel,
		Price:          snap.Price,
		DiscountPrice:  snap.DiscountPrice,
		EffectivePrice: price,
		Quantity:       line.Quantity,
		LineTotal:      price.Mul(decimal.NewFromInt(int64(line.Quantity))),
		StockQuantity:  snap.StockQuantity,
		MinStockLevel:  snap.MinStockLevel,
		IsActive:       snap.IsActive,
		LowStock:       snap.StockQuantity <= snap.MinStockLevel,
	}
}
