package cart_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/safar/storefront/internal/cart"
	"github.com/safar/storefront/internal/config"
	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/inventory"
	"github.com/safar/storefront/internal/models"
	"github.com/safar/storefront/internal/pricing"
	"github.com/safar/storefront/internal/session"
	"github.com/safar/storefront/internal/store"
	"github.com/safar/storefront/internal/testdb"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fixture struct {
	svc *cart.Service
	db  *sql.DB
	ctx context.Context
}

func newFixture(t *testing.T) *fixture {
	db := testdb.Postgres(t)
	rdb := testdb.Redis(t)

	calc := pricing.NewCalculator(config.PricingConfig{
		TaxRate:               dec("0.10"),
		CODFee:                dec("49"),
		FreeShippingThreshold: dec("500"),
		StandardShippingFee:   dec("40"),
	})

	return &fixture{
		svc: cart.NewService(db, rdb, time.Hour, calc, zap.NewNop()),
		db:  db,
		ctx: context.Background(),
	}
}

func (f *fixture) product(t *testing.T, p store.ProductParams) *models.Product {
	product, err := store.CreateProduct(f.ctx, f.db, p)
	require.NoError(t, err)
	return product
}

func TestGuestCartLifecycle(t *testing.T) {
	f := newFixture(t)
	guest := session.Identity{GuestID: "guest-1"}

	mug := f.product(t, store.ProductParams{SKU: "MUG", Name: "Mug", Price: dec("300"), Stock: 5})

	summary, err := f.svc.Add(f.ctx, guest, cart.AddRequest{ProductID: mug.ID, Quantity: 2})
	require.NoError(t, err)
	require.Len(t, summary.Items, 1)
	assert.Equal(t, 2, summary.ItemCount)
	assert.True(t, summary.Subtotal.Equal(dec("600")))
	assert.True(t, summary.Shipping.IsZero(), "prepaid quote ships free above the threshold")
	assert.True(t, summary.Total.Equal(dec("660")))

	_, err = f.svc.Add(f.ctx, guest, cart.AddRequest{ProductID: mug.ID, Quantity: 4})
	assert.ErrorIs(t, err, database.ErrInsufficientStock, "existing quantity counts toward stock")
	var stockErr *inventory.StockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 6, stockErr.Lines[0].Requested)
	assert.Equal(t, 5, stockErr.Lines[0].Available)

	summary, err = f.svc.Update(f.ctx, guest, mug.ID, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ItemCount)
	assert.True(t, summary.Shipping.Equal(dec("40")))

	summary, err = f.svc.Update(f.ctx, guest, mug.ID, nil, 0)
	require.NoError(t, err)
	assert.Empty(t, summary.Items)
	assert.True(t, summary.Total.IsZero())
}

func TestUserCartWithSizes(t *testing.T) {
	f := newFixture(t)

	u, err := store.CreateUser(f.ctx, f.db, "sizes@example.com", "Sizes", "x", false)
	require.NoError(t, err)
	user := session.Identity{UserID: u.ID}

	sale := dec("200")
	tee := f.product(t, store.ProductParams{SKU: "TEE", Name: "Tee", Price: dec("250"), DiscountPrice: &sale})
	m, err := store.CreateProductSize(f.ctx, f.db, tee.ID, store.SizeParams{Label: "M", Stock: 3, MinStockLevel: 3})
	require.NoError(t, err)

	_, err = f.svc.Add(f.ctx, user, cart.AddRequest{ProductID: tee.ID, Quantity: 1})
	assert.ErrorIs(t, err, database.ErrSizeRequired)

	_, err = f.svc.Add(f.ctx, user, cart.AddRequest{ProductID: tee.ID, Quantity: 1, Size: "XXL"})
	assert.ErrorIs(t, err, database.ErrSizeNotFound)

	summary, err := f.svc.Add(f.ctx, user, cart.AddRequest{ProductID: tee.ID, Quantity: 3, Size: "m"})
	require.NoError(t, err)
	require.Len(t, summary.Items, 1)
	item := summary.Items[0]
	assert.Equal(t, m.ID, *item.SizeID)
	assert.Equal(t, "M", item.SizeLabel)
	assert.True(t, item.EffectivePrice.Equal(sale))
	assert.True(t, item.LowStock)
	assert.True(t, summary.Subtotal.Equal(dec("600")))

	_, err = f.svc.Update(f.ctx, user, tee.ID, &m.ID, 4)
	assert.ErrorIs(t, err, database.ErrInsufficientStock)

	summary, err = f.svc.Remove(f.ctx, user, tee.ID, &m.ID)
	require.NoError(t, err)
	assert.Empty(t, summary.Items)

	_, err = f.svc.Summary(f.ctx, session.Identity{})
	assert.ErrorIs(t, err, session.ErrUnauthenticated)
}

func TestMergeGuestInto(t *testing.T) {
	f := newFixture(t)

	u, err := store.CreateUser(f.ctx, f.db, "merge@example.com", "Merge", "x", false)
	require.NoError(t, err)
	user := session.Identity{UserID: u.ID}
	guest := session.Identity{GuestID: "guest-merge"}

	mug := f.product(t, store.ProductParams{SKU: "MUG", Name: "Mug", Price: dec("100"), Stock: 10})
	hat := f.product(t, store.ProductParams{SKU: "CAP", Name: "Cap", Price: dec("50"), Stock: 10})

	_, err = f.svc.Add(f.ctx, user, cart.AddRequest{ProductID: mug.ID, Quantity: 1})
	require.NoError(t, err)
	_, err = f.svc.Add(f.ctx, guest, cart.AddRequest{ProductID: mug.ID, Quantity: 2})
	require.NoError(t, err)
	_, err = f.svc.Add(f.ctx, guest, cart.AddRequest{ProductID: hat.ID, Quantity: 1})
	require.NoError(t, err)

	require.NoError(t, f.svc.MergeGuestInto(f.ctx, guest.GuestID, u.ID))

	summary, err := f.svc.Summary(f.ctx, user)
	require.NoError(t, err)
	require.Len(t, summary.Items, 2)
	assert.Equal(t, 3, summary.Items[0].Quantity)
	assert.Equal(t, 1, summary.Items[1].Quantity)

	guestSummary, err := f.svc.Summary(f.ctx, guest)
	require.NoError(t, err)
	assert.Empty(t, guestSummary.Items)

	require.NoError(t, f.svc.MergeGuestInto(f.ctx, guest.GuestID, u.ID), "merging an empty guest cart is a no-op")
}

func TestAddRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	guest := session.Identity{GuestID: "g"}
	empty := f.product(t, store.ProductParams{SKU: "EMPTY", Name: "Empty", Price: dec("10"), Stock: 0})

	var verr *models.ValidationError
	_, err := f.svc.Add(f.ctx, guest, cart.AddRequest{ProductID: empty.ID, Quantity: 0})
	assert.ErrorAs(t, err, &verr)

	_, err = f.svc.Add(f.ctx, guest, cart.AddRequest{ProductID: empty.ID, Quantity: 1})
	assert.ErrorIs(t, err, database.ErrInsufficientStock, "zero stock is never available")

	_, err = f.svc.Update(f.ctx, guest, empty.ID, nil, -1)
	assert.ErrorIs(t, err, database.ErrCartLineNotFound)

	_, err = f.svc.Add(f.ctx, guest, cart.AddRequest{ProductID: empty.ID + 999, Quantity: 1})
	assert.ErrorIs(t, err, database.ErrProductNotFound)
}
