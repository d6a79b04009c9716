package inventory

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/models"
)

func TestAvailable(t *testing.T) {
	tests := []struct {
		name      string
		requested int
		stock     int
		active    bool
		want      bool
	}{
		{"below stock", 2, 5, true, true},
		{"equal to stock", 5, 5, true, true},
		{"above stock", 6, 5, true, false},
		{"zero stock", 0, 0, true, false},
		{"zero stock with request", 1, 0, true, false},
		{"inactive product", 1, 5, false, false},
		{"non-positive request", 0, 5, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Available(tt.requested, tt.stock, tt.active))
		})
	}
}

func TestValidateReportsEveryFailingLine(t *testing.T) {
	size := int64(9)
	items := []models.CartItem{
		{ProductID: 1, Name: "Mug", Quantity: 1, StockQuantity: 1, IsActive: true},
		{ProductID: 2, SizeID: &size, Name: "Tee", SizeLabel: "M", Quantity: 3, StockQuantity: 2, IsActive: true},
		{ProductID: 3, Name: "Cap", Quantity: 1, StockQuantity: 0, IsActive: true},
	}

	report := Validate(items)
	require.Len(t, report.Lines, 3)
	assert.False(t, report.OK())
	assert.Len(t, report.Failed(), 2)

	err := report.Err()
	require.Error(t, err)
	assert.True(t, errors.Is(err, database.ErrInsufficientStock))

	var stockErr *StockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, int64(2), stockErr.Lines[0].ProductID)
	assert.Contains(t, err.Error(), "Tee (M): requested 3, available 2")
}

func TestValidateAllAvailable(t *testing.T) {
	report := Validate([]models.CartItem{
		{ProductID: 1, Quantity: 4, StockQuantity: 4, IsActive: true},
	})
	assert.True(t, report.OK())
	assert.NoError(t, report.Err())
}
