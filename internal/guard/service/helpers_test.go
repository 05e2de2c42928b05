package service

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pledgepoint/guard/internal/guard/domain"
	"github.com/pledgepoint/guard/internal/guard/store"
	"github.com/pledgepoint/guard/internal/guard/store/drivers/sqlite"
	"github.com/pledgepoint/guard/pkg/cryptox"
	"github.com/pledgepoint/guard/pkg/idx"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

// newTestStore opens a file-backed database so concurrent goroutines in
// race tests share one database.
func newTestStore(t *testing.T) store.Store {
	t.Helper()

	st, err := sqlite.NewStore(filepath.Join(t.TempDir(), "guard.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.ApplyMigrations())
	return st
}

func newTestCipher(t *testing.T) *cryptox.Cipher {
	t.Helper()

	key, err := cryptox.GenerateKey()
	require.NoError(t, err)
	cipher, err := cryptox.NewCipher(key)
	require.NoError(t, err)
	return cipher
}

func seedAccount(t *testing.T, st store.Store, password string) domain.Account {
	t.Helper()

	hash, err := cryptox.HashPassword(password)
	require.NoError(t, err)

	now := time.Now().UTC()
	account := domain.Account{
		ID:           idx.New().String(),
		Email:        idx.New().String() + "@donors.example",
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, st.Accounts().CreateAccount(context.Background(), account))
	return account
}

// totpCode computes the expected 6-digit code for a secret at a point in
// time, matching the parameters the service verifies with.
func totpCode(t *testing.T, secret string, at time.Time) string {
	t.Helper()

	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    30,
		Skew:      0,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

// wrongCode returns a 6-digit code guaranteed not to verify at the given
// time within a one-step window either side.
func wrongCode(t *testing.T, secret string, at time.Time) string {
	t.Helper()

	valid := map[string]bool{
		totpCode(t, secret, at.Add(-30*time.Second)): true,
		totpCode(t, secret, at):                      true,
		totpCode(t, secret, at.Add(30*time.Second)):  true,
	}
	for _, candidate := range []string{"000000", "111111", "222222", "333333"} {
		if !valid[candidate] {
			return candidate
		}
	}
	t.Fatal("no unused candidate code")
	return ""
}

// enrollAndActivate walks an account through the full enrollment flow and
// returns the secret and the plaintext recovery codes.
func enrollAndActivate(t *testing.T, svc *TwoFactorService, accountID string, at time.Time) (string, []string) {
	t.Helper()
	ctx := context.Background()

	enrollment, err := svc.Enroll(ctx, accountID)
	require.NoError(t, err)

	result, err := svc.Verify(ctx, accountID, totpCode(t, enrollment.Secret, at))
	require.NoError(t, err)
	require.True(t, result.Activated)
	require.Equal(t, enrollment.RecoveryCodes, result.RecoveryCodes)

	return enrollment.Secret, enrollment.RecoveryCodes
}

// pngHeader is the magic prefix of a PNG stream.
var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

func requirePNG(t *testing.T, data []byte) {
	t.Helper()
	require.True(t, bytes.HasPrefix(data, pngHeader), "expected PNG output")
}
