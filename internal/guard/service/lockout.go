package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pledgepoint/guard/internal/guard/domain"
	"github.com/pledgepoint/guard/internal/guard/store"
)

const (
	DefaultLockoutThreshold = 5
	DefaultLockDuration     = 15 * time.Minute
)

// AccountLockedError is returned while an account's lock window is still
// open. Remaining is how long until attempts are accepted again.
type AccountLockedError struct {
	Remaining time.Duration
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account locked, try again in %s", e.Remaining.Round(time.Second))
}

// LockoutService tracks consecutive failed logins and locks accounts that
// cross the threshold. It never sees passwords; the login frontend reports
// attempt outcomes and this service answers whether they may proceed.
type LockoutService struct {
	Store        store.Store
	Threshold    int           // failures before a lock, defaults to DefaultLockoutThreshold
	LockDuration time.Duration // defaults to DefaultLockDuration

	// Now overrides the clock, for deterministic expiry tests.
	Now func() time.Time
}

func (s *LockoutService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *LockoutService) threshold() int {
	if s.Threshold > 0 {
		return s.Threshold
	}
	return DefaultLockoutThreshold
}

func (s *LockoutService) lockDuration() time.Duration {
	if s.LockDuration > 0 {
		return s.LockDuration
	}
	return DefaultLockDuration
}

// RecordAttempt records one login outcome. While a lock is open every
// attempt, successful or not, is rejected with AccountLockedError and the
// counter is left untouched. An expired lock is cleared on the next
// attempt, which then counts from a clean slate. Read and write happen in
// one transaction so concurrent failures each land exactly once.
func (s *LockoutService) RecordAttempt(ctx context.Context, accountID string, succeeded bool) (domain.LockoutResult, error) {
	now := s.now()

	var result domain.LockoutResult
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		lockout, err := tx.LoginLockouts().GetLoginLockout(ctx, accountID)
		if errors.Is(err, store.ErrNotFound) {
			lockout = domain.LoginLockout{AccountID: accountID}
		} else if err != nil {
			return fmt.Errorf("failed to load lockout state: %w", err)
		}

		if lockout.Locked(now) {
			return &AccountLockedError{Remaining: lockout.LockedUntil.Sub(now)}
		}

		if lockout.LockedUntil != nil {
			// Lock expired; this attempt starts a fresh count.
			lockout.LockedUntil = nil
			lockout.ConsecutiveFailures = 0
		}

		if succeeded {
			lockout.ConsecutiveFailures = 0
		} else {
			lockout.ConsecutiveFailures++
			if lockout.ConsecutiveFailures >= s.threshold() {
				until := now.Add(s.lockDuration())
				lockout.LockedUntil = &until
				result.Locked = true
				result.Remaining = s.lockDuration()
				result.NotifyOwner = true
			}
		}
		lockout.UpdatedAt = now
		result.Failures = lockout.ConsecutiveFailures

		if err := tx.LoginLockouts().UpsertLoginLockout(ctx, lockout); err != nil {
			return fmt.Errorf("failed to persist lockout state: %w", err)
		}
		return nil
	})
	if err != nil {
		var locked *AccountLockedError
		if errors.As(err, &locked) {
			return domain.LockoutResult{Locked: true, Remaining: locked.Remaining}, err
		}
		return domain.LockoutResult{}, err
	}
	return result, nil
}

// Status reports the current lock state without recording an attempt.
func (s *LockoutService) Status(ctx context.Context, accountID string) (domain.LockoutResult, error) {
	lockout, err := s.Store.LoginLockouts().GetLoginLockout(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.LockoutResult{}, nil
	}
	if err != nil {
		return domain.LockoutResult{}, fmt.Errorf("failed to load lockout state: %w", err)
	}

	now := s.now()
	if lockout.Locked(now) {
		return domain.LockoutResult{
			Locked:    true,
			Remaining: lockout.LockedUntil.Sub(now),
			Failures:  lockout.ConsecutiveFailures,
		}, nil
	}
	return domain.LockoutResult{Failures: lockout.ConsecutiveFailures}, nil
}
