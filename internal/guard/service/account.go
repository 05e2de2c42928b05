package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pledgepoint/guard/internal/guard/domain"
	"github.com/pledgepoint/guard/internal/guard/store"
	"github.com/pledgepoint/guard/pkg/cryptox"
	"github.com/pledgepoint/guard/pkg/idx"
)

var (
	ErrEmailTaken      = errors.New("email already registered")
	ErrAccountNotFound = errors.New("account not found")
)

// AccountService provisions accounts for the rest of the platform. Only
// trusted internal services call it; end users never register here
// directly.
type AccountService struct {
	Store store.Store

	// Now overrides the clock, for deterministic tests.
	Now func() time.Time
}

func (s *AccountService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// CreateAccount registers an account with a freshly hashed password.
func (s *AccountService) CreateAccount(ctx context.Context, email, password string) (domain.Account, error) {
	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return domain.Account{}, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	account := domain.Account{
		ID:           idx.New().String(),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Store.Accounts().CreateAccount(ctx, account); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.Account{}, ErrEmailTaken
		}
		return domain.Account{}, fmt.Errorf("failed to create account: %w", err)
	}
	return account, nil
}

// UpdatePassword replaces the account's password hash.
func (s *AccountService) UpdatePassword(ctx context.Context, accountID, password string) error {
	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.Store.Accounts().UpdatePasswordHash(ctx, accountID, hash); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

// GetAccount looks up an account by ID.
func (s *AccountService) GetAccount(ctx context.Context, accountID string) (domain.Account, error) {
	account, err := s.Store.Accounts().GetAccountByID(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Account{}, ErrAccountNotFound
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("failed to load account: %w", err)
	}
	return account, nil
}
