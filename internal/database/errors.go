package database

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

type ErrorClass int

const (
	ErrorClassPermanent ErrorClass = iota
	ErrorClassTransient
	ErrorClassDeadlock
	ErrorClassSerialization
)

func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassPermanent
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001":
			return ErrorClassSerialization
		case "40P01":
			return ErrorClassDeadlock
		case "55P03":
			return ErrorClassTransient
		case "23505", "23503", "23502", "23514":
			return ErrorClassPermanent
		}
	}

	if errors.Is(err, ErrLockTimeout) {
		return ErrorClassTransient
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrorClassPermanent
	}

	return ErrorClassPermanent
}

// IsRetryable reports whether WithRetry should run the transaction again.
func IsRetryable(err error) bool {
	class := ClassifyError(err)
	return class == ErrorClassTransient ||
		class == ErrorClassDeadlock ||
		class == ErrorClassSerialization
}

// IsForeignKeyViolation reports a 23503 from Postgres.
func IsForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}

// IsUniqueViolation reports a 23505 from Postgres.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrEmailTaken           = errors.New("email already registered")
	ErrInvalidCredentials   = errors.New("invalid email or password")
	ErrProductNotFound      = errors.New("product not found")
	ErrSKUTaken             = errors.New("sku already exists")
	ErrSizeLabelTaken       = errors.New("size label already exists for product")
	ErrSizeNotFound         = errors.New("size not found")
	ErrSizeRequired         = errors.New("size is required for this product")
	ErrAddressNotFound      = errors.New("address not found")
	ErrOrderNotFound        = errors.New("order not found")
	ErrCartLineNotFound     = errors.New("item not in cart")
	ErrEmptyCart            = errors.New("cart is empty")
	ErrCouponNotFound       = errors.New("invalid coupon code")
	ErrCouponCodeTaken      = errors.New("coupon code already exists")
	ErrCouponExpired        = errors.New("coupon has expired")
	ErrCouponNotStarted     = errors.New("coupon is not yet valid")
	ErrCouponExhausted      = errors.New("coupon usage limit reached")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrInvalidTransition    = errors.New("invalid order status transition")
	ErrOptimisticLockFailed = errors.New("optimistic lock failed")
	ErrLockTimeout          = errors.New("lock timeout")
)
