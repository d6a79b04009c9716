package checkout

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/safar/storefront/internal/config"
	"github.com/safar/storefront/internal/database"
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
	t   *testing.T
	db  *sql.DB
	svc *Service
	ctx context.Context
}

func newFixture(t *testing.T) *fixture {
	db := testdb.Postgres(t)
	calc := pricing.NewCalculator(config.PricingConfig{
		TaxRate:               dec("0.10"),
		CODFee:                dec("49"),
		FreeShippingThreshold: dec("500"),
		StandardShippingFee:   dec("40"),
	})
	return &fixture{
		t:   t,
		db:  db,
		svc: NewService(db, calc, zaptest.NewLogger(t)),
		ctx: context.Background(),
	}
}

// shopper creates a user with one address and returns its identity and
// address id.
func (f *fixture) shopper(email string) (session.Identity, int64) {
	user, err := store.CreateUser(f.ctx, f.db, email, "Shopper", "x", false)
	require.NoError(f.t, err)
	addr, err := store.CreateAddress(f.ctx, f.db, models.Address{
		UserID: user.ID, FullName: "Shopper", Line1: "1 MG Road", City: "Bengaluru", PostalCode: "560001",
	})
	require.NoError(f.t, err)
	return session.Identity{UserID: user.ID}, addr.ID
}

func (f *fixture) product(sku, price string, stock int) *models.Product {
	p, err := store.CreateProduct(f.ctx, f.db, store.ProductParams{SKU: sku, Name: sku, Price: dec(price), Stock: stock})
	require.NoError(f.t, err)
	return p
}

func (f *fixture) addToCart(id session.Identity, productID int64, sizeID *int64, qty int) {
	_, err := store.AddCartLine(f.ctx, f.db, id.UserID, productID, sizeID, qty)
	require.NoError(f.t, err)
}

func (f *fixture) stock(productID int64) int {
	p, err := store.GetProduct(f.ctx, f.db, productID)
	require.NoError(f.t, err)
	return p.StockQuantity
}

func (f *fixture) count(query string, args ...interface{}) int {
	var n int
	require.NoError(f.t, f.db.QueryRowContext(f.ctx, query, args...).Scan(&n))
	return n
}

func TestCreateOrderCOD(t *testing.T) {
	f := newFixture(t)
	id, addr := f.shopper("cod@example.com")
	p := f.product("COD-1", "500", 5)
	f.addToCart(id, p.ID, nil, 2)

	res, err := f.svc.CreateOrder(f.ctx, id, models.CheckoutRequest{AddressID: addr, PaymentMethod: "COD"})
	require.NoError(t, err)

	assert.Equal(t, "1149.00", res.Total)
	assert.Empty(t, res.TransactionID, "cash on delivery records no payment")
	assert.Regexp(t, regexp.MustCompile(`^ORD-\d{14}-[0-9A-F]{8}$`), res.OrderNumber)

	order, err := f.svc.GetOrder(f.ctx, id, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.True(t, order.ShippingAmount.Equal(dec("49")))
	assert.True(t, order.TaxAmount.Equal(dec("100")))
	assert.Equal(t, "Bengaluru", order.ShippingAddress.City)
	assert.Equal(t, order.ShippingAddress, order.BillingAddress)
	require.Len(t, order.Items, 1)
	assert.True(t, order.Items[0].UnitPrice.Equal(dec("500")))

	assert.Equal(t, 3, f.stock(p.ID))
	assert.Equal(t, 0, f.count(`SELECT COUNT(*) FROM cart_items WHERE user_id = $1`, id.UserID))
	assert.Equal(t, 0, f.count(`SELECT COUNT(*) FROM payments WHERE order_id = $1`, res.OrderID))
	assert.Equal(t, 0, f.count(`SELECT COUNT(*) FROM order_status_history WHERE order_id = $1`, res.OrderID))

	_, err = f.svc.GetOrder(f.ctx, session.Identity{UserID: id.UserID + 100}, res.OrderID)
	assert.ErrorIs(t, err, database.ErrOrderNotFound)
}

func TestCreateOrderPrepaidWithCoupon(t *testing.T) {
	f := newFixture(t)
	id, addr := f.shopper("prepaid@example.com")
	p := f.product("PRE-1", "1000", 5)
	f.addToCart(id, p.ID, nil, 1)

	limit := 1
	coupon, err := store.CreateCoupon(f.ctx, f.db, store.CouponParams{
		Code: "SAVE10", Type: models.CouponTypePercentage, Value: dec("10"), MinOrderAmount: dec("500"), UsageLimit: &limit,
	})
	require.NoError(t, err)

	res, err := f.svc.CreateOrder(f.ctx, id, models.CheckoutRequest{
		AddressID:     addr,
		PaymentMethod: "razorpay",
		CouponCode:    " save10 ",
		CouponDetails: []byte(`{"discount_type":"fixed","discount_value":"999"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "1000.00", res.Total, "client coupon details are ignored")
	assert.Regexp(t, `^TXN-`, res.TransactionID)

	payment, err := store.GetPaymentByOrder(f.ctx, f.db, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, payment.Status)
	assert.True(t, payment.Amount.Equal(dec("1000")))

	order, err := store.GetOrder(f.ctx, f.db, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", order.CouponCode)
	assert.True(t, order.DiscountAmount.Equal(dec("100")))

	assert.Equal(t, 1, f.count(`SELECT used_count FROM coupons WHERE id = $1`, coupon.ID))
	assert.Equal(t, 1, f.count(`SELECT COUNT(*) FROM coupon_usages WHERE order_id = $1`, res.OrderID))

	f.addToCart(id, p.ID, nil, 1)
	_, err = f.svc.CreateOrder(f.ctx, id, models.CheckoutRequest{AddressID: addr, PaymentMethod: "razorpay", CouponCode: "SAVE10"})
	assert.ErrorIs(t, err, database.ErrCouponExhausted)
}

func TestCreateOrderRejections(t *testing.T) {
	f := newFixture(t)
	id, addr := f.shopper("reject@example.com")
	_, otherAddr := f.shopper("other@example.com")

	var verr *models.ValidationError
	_, err := f.svc.CreateOrder(f.ctx, id, models.CheckoutRequest{AddressID: addr, PaymentMethod: "bitcoin"})
	assert.ErrorAs(t, err, &verr)

	_, err = f.svc.CreateOrder(f.ctx, session.Identity{GuestID: "g"}, models.CheckoutRequest{AddressID: addr, PaymentMethod: "cod"})
	assert.ErrorIs(t, err, session.ErrUnauthenticated)

	_, err = f.svc.CreateOrder(f.ctx, id, models.CheckoutRequest{AddressID: addr, PaymentMethod: "cod"})
	assert.ErrorIs(t, err, database.ErrEmptyCart)

	p := f.product("REJ-1", "400", 5)
	f.addToCart(id, p.ID, nil, 1)

	_, err = f.svc.CreateOrder(f.ctx, id, models.CheckoutRequest{AddressID: otherAddr, PaymentMethod: "cod"})
	assert.ErrorIs(t, err, database.ErrAddressNotFound, "someone else's address")

	_, err = store.CreateCoupon(f.ctx, f.db, store.CouponParams{Code: "SAVE10", Type: models.CouponTypePercentage, Value: dec("10"), MinOrderAmount: dec("500")})
	require.NoError(t, err)
	_, err = f.svc.CreateOrder(f.ctx, id, models.CheckoutRequest{AddressID: addr, PaymentMethod: "cod", CouponCode: "SAVE10"})
	assert.ErrorIs(t, err, pricing.ErrMinimumOrderNotMet)

	_, err = f.svc.CreateOrder(f.ctx, id, models.CheckoutRequest{AddressID: addr, PaymentMethod: "cod", CouponCode: "BOGUS"})
	assert.ErrorIs(t, err, database.ErrCouponNotFound)

	f.addToCart(id, p.ID, nil, 5)
	_, err = f.svc.CreateOrder(f.ctx, id, models.CheckoutRequest{AddressID: addr, PaymentMethod: "cod"})
	assert.ErrorIs(t, err, database.ErrInsufficientStock)

	assert.Equal(t, 5, f.stock(p.ID))
	assert.Equal(t, 0, f.count(`SELECT COUNT(*) FROM orders`))
	assert.Equal(t, 1, f.count(`SELECT COUNT(*) FROM cart_items WHERE user_id = $1`, id.UserID))
}

func TestCreateOrderIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	id, addr := f.shopper("atomic@example.com")
	a := f.product("ATOM-A", "300", 4)
	b := f.product("ATOM-B", "200", 4)
	f.addToCart(id, a.ID, nil, 2)
	f.addToCart(id, b.ID, nil, 1)

	injected := errors.New("injected failure")
	f.svc.beforeCommit = func(ctx context.Context, tx *sql.Tx) error {
		var orders int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`).Scan(&orders); err != nil {
			return err
		}
		require.Equal(t, 1, orders, "order is written before the failure")
		return injected
	}

	_, err := f.svc.CreateOrder(f.ctx, id, models.CheckoutRequest{AddressID: addr, PaymentMethod: "razorpay"})
	assert.ErrorIs(t, err, injected)

	assert.Equal(t, 0, f.count(`SELECT COUNT(*) FROM orders`))
	assert.Equal(t, 0, f.count(`SELECT COUNT(*) FROM order_items`))
	assert.Equal(t, 0, f.count(`SELECT COUNT(*) FROM payments`))
	assert.Equal(t, 4, f.stock(a.ID))
	assert.Equal(t, 4, f.stock(b.ID))

	lines, err := store.ListCartLines(f.ctx, f.db, id.UserID)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, 2, lines[0].Quantity)
	assert.Equal(t, 1, lines[1].Quantity)

	f.svc.beforeCommit = nil
	_, err = f.svc.CreateOrder(f.ctx, id, models.CheckoutRequest{AddressID: addr, PaymentMethod: "razorpay"})
	require.NoError(t, err)
}

func TestLastUnitRace(t *testing.T) {
	f := newFixture(t)
	p := f.product("LAST-1", "100", 1)

	type shopper struct {
		id   session.Identity
		addr int64
	}
	shoppers := make([]shopper, 2)
	for i := range shoppers {
		id, addr := f.shopper([]string{"race1@example.com", "race2@example.com"}[i])
		f.addToCart(id, p.ID, nil, 1)
		shoppers[i] = shopper{id, addr}
	}

	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make([]error, len(shoppers))
	for i, s := range shoppers {
		wg.Add(1)
		go func(i int, s shopper) {
			defer wg.Done()
			<-start
			_, errs[i] = f.svc.CreateOrder(f.ctx, s.id, models.CheckoutRequest{AddressID: s.addr, PaymentMethod: "cod"})
		}(i, s)
	}
	close(start)
	wg.Wait()

	succeeded, outOfStock := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, database.ErrInsufficientStock):
			outOfStock++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, outOfStock)
	assert.Equal(t, 0, f.stock(p.ID))
}

func TestDoubleSubmitPlacesOneOrder(t *testing.T) {
	f := newFixture(t)
	id, addr := f.shopper("double@example.com")
	p := f.product("DBL-1", "100", 10)
	f.addToCart(id, p.ID, nil, 1)

	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.svc.CreateOrder(f.ctx, id, models.CheckoutRequest{AddressID: addr, PaymentMethod: "cod"})
		}(i)
	}
	close(start)
	wg.Wait()

	succeeded, emptyCart := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, database.ErrEmptyCart):
			emptyCart++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, emptyCart)
	assert.Equal(t, 1, f.count(`SELECT COUNT(*) FROM orders WHERE user_id = $1`, id.UserID))
	assert.Equal(t, 9, f.stock(p.ID))
}

func TestSizedOrderAndCancellation(t *testing.T) {
	f := newFixture(t)
	id, addr := f.shopper("sized@example.com")
	p := f.product("SZ-1", "250", 0)
	size, err := store.CreateProductSize(f.ctx, f.db, p.ID, store.SizeParams{Label: "L", Stock: 3})
	require.NoError(t, err)
	f.addToCart(id, p.ID, &size.ID, 2)

	res, err := f.svc.CreateOrder(f.ctx, id, models.CheckoutRequest{AddressID: addr, PaymentMethod: "cod"})
	require.NoError(t, err)

	sizeStock := func() int {
		return f.count(`SELECT stock_quantity FROM product_sizes WHERE id = $1`, size.ID)
	}
	assert.Equal(t, 1, sizeStock())

	_, err = f.svc.CancelOrder(f.ctx, session.Identity{UserID: id.UserID + 100}, res.OrderID, "not mine")
	assert.ErrorIs(t, err, database.ErrOrderNotFound)

	order, err := f.svc.CancelOrder(f.ctx, id, res.OrderID, "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, order.Status)
	assert.Equal(t, 3, sizeStock())

	history, err := f.svc.History(f.ctx, res.OrderID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.OrderStatusPending, history[0].FromStatus)
	assert.Equal(t, models.OrderStatusCancelled, history[0].ToStatus)
	assert.Equal(t, "changed my mind", history[0].Note)

	_, err = f.svc.CancelOrder(f.ctx, id, res.OrderID, "again")
	assert.ErrorIs(t, err, database.ErrInvalidTransition)
	assert.Equal(t, 3, sizeStock(), "a rejected cancellation restores nothing")
}

func TestStatusLifecycle(t *testing.T) {
	f := newFixture(t)
	id, addr := f.shopper("life@example.com")
	p := f.product("LIFE-1", "100", 10)

	placeOrder := func() int64 {
		f.addToCart(id, p.ID, nil, 1)
		res, err := f.svc.CreateOrder(f.ctx, id, models.CheckoutRequest{AddressID: addr, PaymentMethod: "cod"})
		require.NoError(t, err)
		return res.OrderID
	}
	first := placeOrder()
	second := placeOrder()

	claimed, err := f.svc.ClaimNextPendingOrder(f.ctx, "picked")
	require.NoError(t, err)
	assert.Equal(t, first, claimed.ID, "oldest pending order is claimed first")
	assert.Equal(t, models.OrderStatusProcessing, claimed.Status)

	_, err = f.svc.UpdateStatus(f.ctx, first, models.OrderStatusDelivered, "")
	assert.ErrorIs(t, err, database.ErrInvalidTransition, "processing cannot skip shipping")

	for _, to := range []models.OrderStatus{models.OrderStatusShipped, models.OrderStatusDelivered} {
		order, err := f.svc.UpdateStatus(f.ctx, first, to, "")
		require.NoError(t, err)
		assert.Equal(t, to, order.Status)
	}

	_, err = f.svc.CancelOrder(f.ctx, id, first, "too late")
	assert.ErrorIs(t, err, database.ErrInvalidTransition)
	assert.Equal(t, 8, f.stock(p.ID))

	history, err := f.svc.History(f.ctx, first)
	require.NoError(t, err)
	assert.Len(t, history, 3)

	order, err := f.svc.UpdateStatus(f.ctx, second, models.OrderStatusCancelled, "admin cancel")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, order.Status)
	assert.Equal(t, 9, f.stock(p.ID))

	_, err = f.svc.ClaimNextPendingOrder(f.ctx, "")
	assert.ErrorIs(t, err, database.ErrOrderNotFound)

	var verr *models.ValidationError
	_, err = f.svc.UpdateStatus(f.ctx, first, models.OrderStatus("lost"), "")
	assert.ErrorAs(t, err, &verr)
}

func TestListOrders(t *testing.T) {
	f := newFixture(t)
	id, addr := f.shopper("list@example.com")
	p := f.product("LIST-1", "10", 10)

	for i := 0; i < 3; i++ {
		f.addToCart(id, p.ID, nil, 1)
		_, err := f.svc.CreateOrder(f.ctx, id, models.CheckoutRequest{AddressID: addr, PaymentMethod: "cod"})
		require.NoError(t, err)
	}

	page, err := f.svc.ListOrders(f.ctx, id, "", 2)
	require.NoError(t, err)
	assert.True(t, page.HasMore)

	page, err = f.svc.ListOrders(f.ctx, id, page.NextCursor, 2)
	require.NoError(t, err)
	assert.False(t, page.HasMore)
	orders, ok := page.Items.([]models.Order)
	require.True(t, ok)
	assert.Len(t, orders, 1)
}

func TestNewOrderNumber(t *testing.T) {
	at := time.Date(2024, 3, 9, 14, 5, 6, 0, time.UTC)
	n := newOrderNumber(at)
	assert.Regexp(t, `^ORD-20240309140506-[0-9A-F]{8}$`, n)
	assert.NotEqual(t, n, newOrderNumber(at))
}
