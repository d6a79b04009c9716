// Package account handles registration, password login and the address book.
package account

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/models"
	"github.com/safar/storefront/internal/store"
)

type Service struct {
	db     *sql.DB
	logger *zap.Logger
	cost   int
}

func NewService(db *sql.DB, logger *zap.Logger) *Service {
	return &Service{db: db, logger: logger, cost: bcrypt.DefaultCost}
}

func (s *Service) Register(ctx context.Context, email, name, password string) (*models.User, error) {
	req := models.RegisterRequest{
		Email:    strings.TrimSpace(email),
		Name:     strings.TrimSpace(name),
		Password: password,
	}
	if err := models.ValidateStruct(req); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, err
	}

	user, err := store.CreateUser(ctx, s.db, req.Email, req.Name, string(hash), false)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered", zap.Int64("user_id", user.ID))
	return user, nil
}

// Authenticate returns ErrInvalidCredentials for both unknown emails and
// wrong passwords.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := store.GetUserByEmail(ctx, s.db, email)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return nil, database.ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, database.ErrInvalidCredentials
	}

	return user, nil
}

func (s *Service) Addresses(ctx context.Context, userID int64) ([]models.Address, error) {
	return store.ListAddresses(ctx, s.db, userID)
}

func (s *Service) AddAddress(ctx context.Context, a models.Address) (*models.Address, error) {
	if err := validateAddress(&a); err != nil {
		return nil, err
	}
	return store.CreateAddress(ctx, s.db, a)
}

func validateAddress(a *models.Address) error {
	a.FullName = strings.TrimSpace(a.FullName)
	a.Line1 = strings.TrimSpace(a.Line1)
	a.City = strings.TrimSpace(a.City)
	a.PostalCode = strings.TrimSpace(a.PostalCode)
	a.Country = strings.ToUpper(strings.TrimSpace(a.Country))
	return models.ValidateStruct(a)
}
