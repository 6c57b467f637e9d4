package service

import (
	"context"
	"errors"
	"fmt"

	"gamestore/internal/models"
	"gamestore/internal/store"

	"github.com/rs/zerolog"
)

type ProfileService struct {
	accounts AccountStore
	hasher   PasswordHasher
	logger   zerolog.Logger
}

func NewProfileService(logger zerolog.Logger, accounts AccountStore, hasher PasswordHasher) *ProfileService {
	return &ProfileService{
		accounts: accounts,
		hasher:   hasher,
		logger:   logger.With().Str("service", "profile").Logger(),
	}
}

func (s *ProfileService) ViewProfile(ctx context.Context, role models.Role, id int64) (*models.Account, error) {
	account, err := s.accounts.GetAccountByID(ctx, role, id)
	if err != nil {
		if errors.Is(err, store.ErrDBNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

// UpdateProfile renames the account and, unless secret is empty, replaces
// its password. Identifier uniqueness is left to the store.
func (s *ProfileService) UpdateProfile(ctx context.Context, role models.Role, id int64, identifier, secret string) error {
	var hashed string
	if secret != "" {
		var err error
		if hashed, err = s.hasher.Hash(secret); err != nil {
			return err
		}
	}

	err := s.accounts.UpdateAccount(ctx, role, id, identifier, hashed)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrDBDuplicate):
		return ErrDuplicateIdentifier
	case errors.Is(err, store.ErrDBNotFound):
		return ErrAccountNotFound
	default:
		return fmt.Errorf("failed to update %s %d: %w", role, id, err)
	}
}

func (s *ProfileService) DeleteAccount(ctx context.Context, role models.Role, id int64) error {
	if err := s.accounts.DeleteAccount(ctx, role, id); err != nil {
		return err
	}
	s.logger.Info().Str("role", string(role)).Int64("id", id).Msg("account deleted")
	return nil
}
