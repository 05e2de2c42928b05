package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pledgepoint/guard/internal/guard/domain"
	"github.com/pledgepoint/guard/internal/guard/store"
	"github.com/pledgepoint/guard/pkg/cryptox"
)

var ErrRecoveryCodeUsed = errors.New("recovery code already used")

// RecoveryService burns single-use recovery codes for accounts that have
// lost their authenticator device.
type RecoveryService struct {
	Store store.Store

	// Now overrides the clock, for deterministic tests.
	Now func() time.Time
}

func (s *RecoveryService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Consume marks a recovery code as used and reports how many remain. The
// burn is a single guarded update, so two racing submissions of the same
// code can never both succeed.
func (s *RecoveryService) Consume(ctx context.Context, accountID, code string) (domain.ConsumeResult, error) {
	factor, err := s.Store.AuthFactors().GetAuthFactor(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.ConsumeResult{}, ErrNotEnabled
	}
	if err != nil {
		return domain.ConsumeResult{}, fmt.Errorf("failed to load auth factor: %w", err)
	}
	if factor.State != domain.FactorActive {
		return domain.ConsumeResult{}, ErrNotEnabled
	}

	normalized, ok := cryptox.NormalizeRecoveryCode(code)
	if !ok {
		return domain.ConsumeResult{}, ErrInvalidCode
	}

	err = s.Store.RecoveryCodes().ConsumeRecoveryCode(ctx, accountID, cryptox.FingerprintCode(normalized), s.now())
	switch {
	case errors.Is(err, store.ErrNotFound):
		return domain.ConsumeResult{}, ErrInvalidCode
	case errors.Is(err, store.ErrAlreadyUsed):
		return domain.ConsumeResult{}, ErrRecoveryCodeUsed
	case err != nil:
		return domain.ConsumeResult{}, fmt.Errorf("failed to consume recovery code: %w", err)
	}

	remaining, err := s.Store.RecoveryCodes().CountUnusedRecoveryCodes(ctx, accountID)
	if err != nil {
		return domain.ConsumeResult{}, fmt.Errorf("failed to count recovery codes: %w", err)
	}
	return domain.ConsumeResult{Remaining: remaining}, nil
}
