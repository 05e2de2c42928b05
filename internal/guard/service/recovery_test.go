package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConsumeRecoveryCode(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	st := newTestStore(t)
	account := seedAccount(t, st, "pw")
	twofactor := &TwoFactorService{
		Store:  st,
		Cipher: newTestCipher(t),
		Issuer: "PledgePoint",
		Now:    func() time.Time { return now },
	}
	svc := &RecoveryService{Store: st, Now: func() time.Time { return now }}

	t.Run("rejected before enrollment", func(t *testing.T) {
		_, err := svc.Consume(ctx, account.ID, "AAAA-BBBB")
		require.ErrorIs(t, err, ErrNotEnabled)
	})

	enrollment, err := twofactor.Enroll(ctx, account.ID)
	require.NoError(t, err)

	t.Run("rejected while still pending", func(t *testing.T) {
		_, err := svc.Consume(ctx, account.ID, enrollment.RecoveryCodes[0])
		require.ErrorIs(t, err, ErrNotEnabled)
	})

	result, err := twofactor.Verify(ctx, account.ID, totpCode(t, enrollment.Secret, now))
	require.NoError(t, err)
	require.True(t, result.Activated)
	codes := result.RecoveryCodes

	t.Run("valid code consumes exactly once", func(t *testing.T) {
		consumed, err := svc.Consume(ctx, account.ID, codes[0])
		require.NoError(t, err)
		require.Equal(t, 9, consumed.Remaining)

		_, err = svc.Consume(ctx, account.ID, codes[0])
		require.ErrorIs(t, err, ErrRecoveryCodeUsed)
	})

	t.Run("input is normalized before matching", func(t *testing.T) {
		sloppy := strings.ToLower(strings.ReplaceAll(codes[1], "-", ""))
		consumed, err := svc.Consume(ctx, account.ID, sloppy)
		require.NoError(t, err)
		require.Equal(t, 8, consumed.Remaining)
	})

	t.Run("unknown code rejected", func(t *testing.T) {
		_, err := svc.Consume(ctx, account.ID, "ZZZZ-2222")
		require.ErrorIs(t, err, ErrInvalidCode)
	})

	t.Run("malformed input rejected", func(t *testing.T) {
		_, err := svc.Consume(ctx, account.ID, "too-short")
		require.ErrorIs(t, err, ErrInvalidCode)
	})

	t.Run("status tracks remaining codes", func(t *testing.T) {
		status, err := twofactor.Status(ctx, account.ID)
		require.NoError(t, err)
		require.Equal(t, 8, status.RecoveryCodesRemaining)
	})
}

func TestConsumeRecoveryCodeRace(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	st := newTestStore(t)
	account := seedAccount(t, st, "pw")
	twofactor := &TwoFactorService{
		Store:  st,
		Cipher: newTestCipher(t),
		Issuer: "PledgePoint",
		Now:    func() time.Time { return now },
	}
	svc := &RecoveryService{Store: st, Now: func() time.Time { return now }}

	_, codes := enrollAndActivate(t, twofactor, account.ID, now)
	code := codes[0]

	const workers = 16

	var wg sync.WaitGroup
	results := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, results[i] = svc.Consume(ctx, account.ID, code)
		}()
	}
	wg.Wait()

	var successes, alreadyUsed int
	for _, err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrRecoveryCodeUsed):
			alreadyUsed++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, successes)
	require.Equal(t, workers-1, alreadyUsed)

	remaining, err := st.RecoveryCodes().CountUnusedRecoveryCodes(ctx, account.ID)
	require.NoError(t, err)
	require.Equal(t, 9, remaining)
}
