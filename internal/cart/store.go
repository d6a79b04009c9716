package cart

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/models"
	"github.com/safar/storefront/internal/store"
)

// Store holds the lines of one cart owner.
type Store interface {
	Add(ctx context.Context, productID int64, sizeID *int64, quantity int) (int, error)
	Quantity(ctx context.Context, productID int64, sizeID *int64) (int, error)
	Set(ctx context.Context, productID int64, sizeID *int64, quantity int) error
	Remove(ctx context.Context, productID int64, sizeID *int64) error
	Clear(ctx context.Context) error
	Lines(ctx context.Context) ([]models.CartLine, error)
}

type userStore struct {
	db     database.DBTX
	userID int64
}

// NewUserStore persists a logged in user's cart in Postgres.
func NewUserStore(db database.DBTX, userID int64) Store {
	return &userStore{db: db, userID: userID}
}

func (s *userStore) Add(ctx context.Context, productID int64, sizeID *int64, quantity int) (int, error) {
	return store.AddCartLine(ctx, s.db, s.userID, productID, sizeID, quantity)
}

func (s *userStore) Quantity(ctx context.Context, productID int64, sizeID *int64) (int, error) {
	lines, err := s.Lines(ctx)
	if err != nil {
		return 0, err
	}
	return quantityOf(lines, productID, sizeID), nil
}

func (s *userStore) Set(ctx context.Context, productID int64, sizeID *int64, quantity int) error {
	return store.SetCartLine(ctx, s.db, s.userID, productID, sizeID, quantity)
}

func (s *userStore) Remove(ctx context.Context, productID int64, sizeID *int64) error {
	return store.RemoveCartLine(ctx, s.db, s.userID, productID, sizeID)
}

func (s *userStore) Clear(ctx context.Context) error {
	return store.ClearCart(ctx, s.db, s.userID)
}

func (s *userStore) Lines(ctx context.Context) ([]models.CartLine, error) {
	return store.ListCartLines(ctx, s.db, s.userID)
}

// guestStore keeps an anonymous cart in one Redis hash keyed by guest id.
// Fields are "<product_id>:<size_id or 0>" and values are quantities; every
// write refreshes the TTL.
type guestStore struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

func NewGuestStore(rdb *redis.Client, guestID string, ttl time.Duration) Store {
	return &guestStore{rdb: rdb, key: GuestKey(guestID), ttl: ttl}
}

func GuestKey(guestID string) string {
	return "cart:guest:" + guestID
}

func lineField(productID int64, sizeID *int64) string {
	var size int64
	if sizeID != nil {
		size = *sizeID
	}
	return strconv.FormatInt(productID, 10) + ":" + strconv.FormatInt(size, 10)
}

func parseLineField(field string) (int64, *int64, error) {
	productPart, sizePart, ok := strings.Cut(field, ":")
	if !ok {
		return 0, nil, fmt.Errorf("malformed cart field %q", field)
	}
	productID, err := strconv.ParseInt(productPart, 10, 64)
	if err != nil {
		return 0, nil, fmt.Errorf("malformed cart field %q: %w", field, err)
	}
	size, err := strconv.ParseInt(sizePart, 10, 64)
	if err != nil {
		return 0, nil, fmt.Errorf("malformed cart field %q: %w", field, err)
	}
	if size == 0 {
		return productID, nil, nil
	}
	return productID, &size, nil
}

func (s *guestStore) Add(ctx context.Context, productID int64, sizeID *int64, quantity int) (int, error) {
	pipe := s.rdb.TxPipeline()
	incr := pipe.HIncrBy(ctx, s.key, lineField(productID, sizeID), int64(quantity))
	pipe.Expire(ctx, s.key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("add guest cart line: %w", err)
	}
	return int(incr.Val()), nil
}

func (s *guestStore) Quantity(ctx context.Context, productID int64, sizeID *int64) (int, error) {
	qty, err := s.rdb.HGet(ctx, s.key, lineField(productID, sizeID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get guest cart line: %w", err)
	}
	return qty, nil
}

func (s *guestStore) Set(ctx context.Context, productID int64, sizeID *int64, quantity int) error {
	field := lineField(productID, sizeID)
	exists, err := s.rdb.HExists(ctx, s.key, field).Result()
	if err != nil {
		return fmt.Errorf("set guest cart line: %w", err)
	}
	if !exists {
		return database.ErrCartLineNotFound
	}

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, s.key, field, quantity)
	pipe.Expire(ctx, s.key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set guest cart line: %w", err)
	}
	return nil
}

func (s *guestStore) Remove(ctx context.Context, productID int64, sizeID *int64) error {
	removed, err := s.rdb.HDel(ctx, s.key, lineField(productID, sizeID)).Result()
	if err != nil {
		return fmt.Errorf("remove guest cart line: %w", err)
	}
	if removed == 0 {
		return database.ErrCartLineNotFound
	}
	return nil
}

func (s *guestStore) Clear(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("clear guest cart: %w", err)
	}
	return nil
}

func (s *guestStore) Lines(ctx context.Context) ([]models.CartLine, error) {
	fields, err := s.rdb.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("list guest cart: %w", err)
	}

	lines := make([]models.CartLine, 0, len(fields))
	for field, value := range fields {
		productID, sizeID, err := parseLineField(field)
		if err != nil {
			return nil, err
		}
		qty, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("malformed quantity for %q: %w", field, err)
		}
		if qty <= 0 {
			continue
		}
		lines = append(lines, models.CartLine{ProductID: productID, SizeID: sizeID, Quantity: qty})
	}

	sortLines(lines)
	return lines, nil
}

// sortLines orders by (product_id, size_id) with unsized lines first.
func sortLines(lines []models.CartLine) {
	size := func(l models.CartLine) int64 {
		if l.SizeID == nil {
			return 0
		}
		return *l.SizeID
	}
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].ProductID != lines[j].ProductID {
			return lines[i].ProductID < lines[j].ProductID
		}
		return size(lines[i]) < size(lines[j])
	})
}

func quantityOf(lines []models.CartLine, productID int64, sizeID *int64) int {
	for _, l := range lines {
		if l.SameItem(productID, sizeID) {
			return l.Quantity
		}
	}
	return 0
}
