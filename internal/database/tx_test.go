package database_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/testdb"
)

func TestWithRetry(t *testing.T) {
	db := testdb.Postgres(t)
	ctx := context.Background()

	t.Run("serialization failure is retried", func(t *testing.T) {
		calls := 0
		err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
			calls++
			if calls == 1 {
				return &pq.Error{Code: "40001"}
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("sentinel is returned at once", func(t *testing.T) {
		calls := 0
		err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
			calls++
			return database.ErrEmptyCart
		})
		assert.ErrorIs(t, err, database.ErrEmptyCart)
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		calls := 0
		opts := database.DefaultTxOptions()
		opts.MaxRetries = 1
		err := database.WithRetry(ctx, db, opts, func(tx *sql.Tx) error {
			calls++
			return database.ErrLockTimeout
		})
		assert.ErrorIs(t, err, database.ErrLockTimeout)
		assert.Equal(t, 2, calls)
	})
}
