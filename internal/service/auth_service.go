package service

import (
	"context"
	"errors"
	"fmt"

	"gamestore/internal/metrics"
	"gamestore/internal/models"
	"gamestore/internal/store"

	"github.com/rs/zerolog"
)

// AccountStore reads and writes rows of the users and publishers tables.
// Lookups return store.ErrDBNotFound for missing rows and writes return
// store.ErrDBDuplicate when the identifier is taken.
type AccountStore interface {
	GetAccountByIdentifier(ctx context.Context, role models.Role, identifier string) (*models.Account, error)
	GetAccountByID(ctx context.Context, role models.Role, id int64) (*models.Account, error)
	CreateAccount(ctx context.Context, role models.Role, identifier, passwordHash string) (*models.Account, error)
	UpdateAccount(ctx context.Context, role models.Role, id int64, identifier, passwordHash string) error
	DeleteAccount(ctx context.Context, role models.Role, id int64) error
}

type AuthService struct {
	accounts AccountStore
	hasher   PasswordHasher
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

func NewAuthService(logger zerolog.Logger, accounts AccountStore, hasher PasswordHasher, m *metrics.Metrics) *AuthService {
	return &AuthService{
		accounts: accounts,
		hasher:   hasher,
		metrics:  m,
		logger:   logger.With().Str("service", "auth").Logger(),
	}
}

// Login returns the account whose identifier and secret both match. An
// unknown identifier and a wrong secret produce the same error.
func (s *AuthService) Login(ctx context.Context, role models.Role, identifier, secret string) (*models.Account, error) {
	account, err := s.login(ctx, role, identifier, secret)
	s.metrics.RecordLogin(string(role), err == nil)
	return account, err
}

func (s *AuthService) login(ctx context.Context, role models.Role, identifier, secret string) (*models.Account, error) {
	if _, err := models.ParseRole(string(role)); err != nil {
		return nil, ErrUnknownRole
	}

	account, err := s.accounts.GetAccountByIdentifier(ctx, role, identifier)
	if err != nil {
		if errors.Is(err, store.ErrDBNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up %s: %w", role, err)
	}

	ok, err := s.hasher.Matches(account.PasswordHash, secret)
	if err != nil {
		s.logger.Warn().Err(err).Str("role", string(role)).Int64("id", account.ID).Msg("stored password hash is unusable")
		return nil, ErrInvalidCredentials
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	return account, nil
}

// Register creates an account unless the identifier is already taken within
// the role.
func (s *AuthService) Register(ctx context.Context, role models.Role, identifier, secret string) (*models.Account, error) {
	if _, err := models.ParseRole(string(role)); err != nil {
		return nil, ErrUnknownRole
	}

	_, err := s.accounts.GetAccountByIdentifier(ctx, role, identifier)
	switch {
	case err == nil:
		return nil, ErrDuplicateIdentifier
	case !errors.Is(err, store.ErrDBNotFound):
		return nil, fmt.Errorf("failed to check %s identifier: %w", role, err)
	}

	hashed, err := s.hasher.Hash(secret)
	if err != nil {
		return nil, err
	}

	account, err := s.accounts.CreateAccount(ctx, role, identifier, hashed)
	if err != nil {
		if errors.Is(err, store.ErrDBDuplicate) {
			return nil, ErrDuplicateIdentifier
		}
		return nil, err
	}

	s.logger.Info().Str("role", string(role)).Int64("id", account.ID).Msg("account registered")
	return account, nil
}
