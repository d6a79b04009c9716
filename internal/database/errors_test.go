package database

import (
	"database/sql"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		class ErrorClass
	}{
		{"nil", nil, ErrorClassPermanent},
		{"serialization", &pq.Error{Code: "40001"}, ErrorClassSerialization},
		{"deadlock", &pq.Error{Code: "40P01"}, ErrorClassDeadlock},
		{"lock not available", &pq.Error{Code: "55P03"}, ErrorClassTransient},
		{"wrapped deadlock", fmt.Errorf("lock product 3: %w", &pq.Error{Code: "40P01"}), ErrorClassDeadlock},
		{"unique violation", &pq.Error{Code: "23505"}, ErrorClassPermanent},
		{"check violation", &pq.Error{Code: "23514"}, ErrorClassPermanent},
		{"no rows", sql.ErrNoRows, ErrorClassPermanent},
		{"lock timeout sentinel", ErrLockTimeout, ErrorClassTransient},
		{"domain error", ErrInsufficientStock, ErrorClassPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.class, ClassifyError(tt.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&pq.Error{Code: "40001"}))
	assert.False(t, IsRetryable(ErrCouponExpired))
	assert.True(t, IsUniqueViolation(fmt.Errorf("create user: %w", &pq.Error{Code: "23505"})))
	assert.False(t, IsUniqueViolation(ErrEmailTaken))
}
