package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEnroll(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := newTestStore(t)
	account := seedAccount(t, st, "correct horse battery")
	svc := &TwoFactorService{Store: st, Cipher: newTestCipher(t), Issuer: "PledgePoint"}

	enrollment, err := svc.Enroll(ctx, account.ID)
	require.NoError(t, err)
	require.NotEmpty(t, enrollment.Secret)
	require.Contains(t, enrollment.ProvisioningURI, "otpauth://totp/")
	require.Contains(t, enrollment.ProvisioningURI, "PledgePoint")
	require.Len(t, enrollment.RecoveryCodes, 10)
	for _, code := range enrollment.RecoveryCodes {
		require.Regexp(t, `^[A-Z2-9]{4}-[A-Z2-9]{4}$`, code)
	}

	t.Run("pending enrollment reads as disabled", func(t *testing.T) {
		status, err := svc.Status(ctx, account.ID)
		require.NoError(t, err)
		require.False(t, status.Enabled)
	})

	t.Run("repeat enroll returns same secret without codes", func(t *testing.T) {
		again, err := svc.Enroll(ctx, account.ID)
		require.NoError(t, err)
		require.Equal(t, enrollment.Secret, again.Secret)
		require.Equal(t, enrollment.ProvisioningURI, again.ProvisioningURI)
		require.Nil(t, again.RecoveryCodes)
	})

	t.Run("enroll after activation is rejected", func(t *testing.T) {
		result, err := svc.Verify(ctx, account.ID, totpCode(t, enrollment.Secret, time.Now()))
		require.NoError(t, err)
		require.True(t, result.Activated)

		_, err = svc.Enroll(ctx, account.ID)
		require.ErrorIs(t, err, ErrAlreadyEnabled)
	})
}

func TestVerifyActivation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	st := newTestStore(t)
	account := seedAccount(t, st, "pw")
	svc := &TwoFactorService{
		Store:  st,
		Cipher: newTestCipher(t),
		Issuer: "PledgePoint",
		Now:    func() time.Time { return now },
	}

	enrollment, err := svc.Enroll(ctx, account.ID)
	require.NoError(t, err)

	t.Run("wrong codes do not block the eventual right one", func(t *testing.T) {
		for range 3 {
			_, err := svc.Verify(ctx, account.ID, wrongCode(t, enrollment.Secret, now))
			require.ErrorIs(t, err, ErrInvalidCode)
		}

		result, err := svc.Verify(ctx, account.ID, totpCode(t, enrollment.Secret, now))
		require.NoError(t, err)
		require.True(t, result.Activated)
		require.Equal(t, enrollment.RecoveryCodes, result.RecoveryCodes)
	})

	t.Run("status flips to enabled with full code count", func(t *testing.T) {
		status, err := svc.Status(ctx, account.ID)
		require.NoError(t, err)
		require.True(t, status.Enabled)
		require.NotNil(t, status.EnabledAt)
		require.Equal(t, 10, status.RecoveryCodesRemaining)
	})

	t.Run("recovery code plaintext is gone after activation", func(t *testing.T) {
		codes, err := st.RecoveryCodes().ListAccountRecoveryCodes(ctx, account.ID)
		require.NoError(t, err)
		require.Len(t, codes, 10)
		for _, rc := range codes {
			require.Nil(t, rc.CodeEncrypted)
			require.NotEmpty(t, rc.CodeHash)
		}
	})
}

func TestVerifyWindow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	base := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	cases := []struct {
		name   string
		offset time.Duration
		err    error
	}{
		{"current step accepted", 0, nil},
		{"one step behind accepted", -30 * time.Second, nil},
		{"one step ahead accepted", 30 * time.Second, nil},
		{"two steps behind rejected", -60 * time.Second, ErrInvalidCode},
		{"two steps ahead rejected", 60 * time.Second, ErrInvalidCode},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			st := newTestStore(t)
			account := seedAccount(t, st, "pw")
			svc := &TwoFactorService{
				Store:  st,
				Cipher: newTestCipher(t),
				Issuer: "PledgePoint",
				Now:    func() time.Time { return base },
			}

			enrollment, err := svc.Enroll(ctx, account.ID)
			require.NoError(t, err)

			_, err = svc.Verify(ctx, account.ID, totpCode(t, enrollment.Secret, base.Add(tc.offset)))
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestVerifyReplay(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	st := newTestStore(t)
	account := seedAccount(t, st, "pw")
	svc := &TwoFactorService{
		Store:  st,
		Cipher: newTestCipher(t),
		Issuer: "PledgePoint",
		Now:    func() time.Time { return now },
	}

	secret, _ := enrollAndActivate(t, svc, account.ID, now)
	code := totpCode(t, secret, now)

	t.Run("resubmit within the same step is accepted", func(t *testing.T) {
		result, err := svc.Verify(ctx, account.ID, code)
		require.NoError(t, err)
		require.False(t, result.Activated)
	})

	t.Run("resubmit after the step elapses is rejected", func(t *testing.T) {
		now = now.Add(31 * time.Second)
		// The drift window alone would still accept this code.
		_, err := svc.Verify(ctx, account.ID, code)
		require.ErrorIs(t, err, ErrInvalidCode)
	})

	t.Run("a fresh code still verifies", func(t *testing.T) {
		result, err := svc.Verify(ctx, account.ID, totpCode(t, secret, now))
		require.NoError(t, err)
		require.False(t, result.Activated)
	})

	t.Run("older codes are rejected once a newer one is accepted", func(t *testing.T) {
		_, err := svc.Verify(ctx, account.ID, totpCode(t, secret, now.Add(-30*time.Second)))
		require.ErrorIs(t, err, ErrInvalidCode)
	})
}

func TestVerifyWithoutEnrollment(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := newTestStore(t)
	account := seedAccount(t, st, "pw")
	svc := &TwoFactorService{Store: st, Cipher: newTestCipher(t), Issuer: "PledgePoint"}

	_, err := svc.Verify(ctx, account.ID, "123456")
	require.ErrorIs(t, err, ErrNoFactor)
}

func TestDisable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	st := newTestStore(t)
	account := seedAccount(t, st, "correct horse battery")
	svc := &TwoFactorService{
		Store:  st,
		Cipher: newTestCipher(t),
		Issuer: "PledgePoint",
		Now:    func() time.Time { return now },
	}

	secret, _ := enrollAndActivate(t, svc, account.ID, now)

	t.Run("wrong password leaves the factor intact", func(t *testing.T) {
		err := svc.Disable(ctx, account.ID, "not the password")
		require.ErrorIs(t, err, ErrIncorrectPassword)

		status, err := svc.Status(ctx, account.ID)
		require.NoError(t, err)
		require.True(t, status.Enabled)
	})

	t.Run("correct password erases factor and codes", func(t *testing.T) {
		require.NoError(t, svc.Disable(ctx, account.ID, "correct horse battery"))

		status, err := svc.Status(ctx, account.ID)
		require.NoError(t, err)
		require.False(t, status.Enabled)

		codes, err := st.RecoveryCodes().ListAccountRecoveryCodes(ctx, account.ID)
		require.NoError(t, err)
		require.Empty(t, codes)
	})

	t.Run("disable without a factor is rejected", func(t *testing.T) {
		err := svc.Disable(ctx, account.ID, "correct horse battery")
		require.ErrorIs(t, err, ErrNotEnabled)
	})

	t.Run("re-enroll issues a fresh secret", func(t *testing.T) {
		now = now.Add(time.Hour)
		enrollment, err := svc.Enroll(ctx, account.ID)
		require.NoError(t, err)
		require.NotEqual(t, secret, enrollment.Secret)
		require.Len(t, enrollment.RecoveryCodes, 10)
	})
}

func TestProvisioningPNG(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := newTestStore(t)
	account := seedAccount(t, st, "pw")
	svc := &TwoFactorService{Store: st, Cipher: newTestCipher(t), Issuer: "PledgePoint"}

	t.Run("no enrollment", func(t *testing.T) {
		_, err := svc.ProvisioningPNG(ctx, account.ID, 256)
		require.ErrorIs(t, err, ErrNoFactor)
	})

	enrollment, err := svc.Enroll(ctx, account.ID)
	require.NoError(t, err)

	t.Run("pending enrollment renders a QR image", func(t *testing.T) {
		png, err := svc.ProvisioningPNG(ctx, account.ID, 256)
		require.NoError(t, err)
		requirePNG(t, png)
	})

	t.Run("active factor never re-surfaces the secret", func(t *testing.T) {
		result, err := svc.Verify(ctx, account.ID, totpCode(t, enrollment.Secret, time.Now()))
		require.NoError(t, err)
		require.True(t, result.Activated)

		_, err = svc.ProvisioningPNG(ctx, account.ID, 256)
		require.ErrorIs(t, err, ErrNoFactor)
	})
}
