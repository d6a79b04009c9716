// Package inventory checks requested cart quantities against live stock.
package inventory

import (
	"fmt"
	"strings"

	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/models"
)

type LineStatus struct {
	ProductID int64  `json:"product_id"`
	SizeID    *int64 `json:"size_id,omitempty"`
	Name      string `json:"name"`
	SizeLabel string `json:"size,omitempty"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
	OK        bool   `json:"ok"`
}

type Report struct {
	Lines []LineStatus `json:"lines"`
}

func (r Report) OK() bool {
	for _, l := range r.Lines {
		if !l.OK {
			return false
		}
	}
	return true
}

func (r Report) Failed() []LineStatus {
	var failed []LineStatus
	for _, l := range r.Lines {
		if !l.OK {
			failed = append(failed, l)
		}
	}
	return failed
}

// Err returns a *StockError listing the failing lines, or nil.
func (r Report) Err() error {
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}
	return &StockError{Lines: failed}
}

// Available reports whether requested units can be taken from stock. Zero
// stock and inactive products are never available.
func Available(requested, stock int, active bool) bool {
	return active && stock > 0 && requested > 0 && requested <= stock
}

func CheckLine(item models.CartItem) LineStatus {
	return LineStatus{
		ProductID: item.ProductID,
		SizeID:    item.SizeID,
		Name:      item.Name,
		SizeLabel: item.SizeLabel,
		Requested: item.Quantity,
		Available: item.StockQuantity,
		OK:        Available(item.Quantity, item.StockQuantity, item.IsActive),
	}
}

func Validate(items []models.CartItem) Report {
	report := Report{Lines: make([]LineStatus, 0, len(items))}
	for _, item := range items {
		report.Lines = append(report.Lines, CheckLine(item))
	}
	return report
}

// StockError wraps database.ErrInsufficientStock with the offending lines.
type StockError struct {
	Lines []LineStatus
}

func (e *StockError) Error() string {
	parts := make([]string, 0, len(e.Lines))
	for _, l := range e.Lines {
		name := l.Name
		if l.SizeLabel != "" {
			name += " (" + l.SizeLabel + ")"
		}
		parts = append(parts, fmt.Sprintf("%s: requested %d, available %d", name, l.Requested, l.Available))
	}
	return "insufficient stock: " + strings.Join(parts, "; ")
}

func (e *StockError) Unwrap() error {
	return database.ErrInsufficientStock
}
