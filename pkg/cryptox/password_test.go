package cryptox_test

import (
	"strings"
	"testing"

	"github.com/pledgepoint/guard/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := cryptox.HashPassword("correct horse battery staple")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(hash, "$argon2id$v=19$"))

	require.NoError(t, cryptox.VerifyPassword("correct horse battery staple", hash))
	require.ErrorIs(t,
		cryptox.VerifyPassword("wrong password", hash),
		cryptox.ErrPasswordMismatch,
	)
}

func TestHashPasswordSalted(t *testing.T) {
	first, err := cryptox.HashPassword("password")
	require.NoError(t, err)
	second, err := cryptox.HashPassword("password")
	require.NoError(t, err)

	require.NotEqual(t, first, second, "fresh salt per hash")
	require.NoError(t, cryptox.VerifyPassword("password", first))
	require.NoError(t, cryptox.VerifyPassword("password", second))
}

func TestVerifyPasswordMalformedHash(t *testing.T) {
	for _, hash := range []string{
		"",
		"plainhash",
		"$bcrypt$v=19$m=19456,t=2,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=18$m=19456,t=2,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$bogus$c2FsdA$aGFzaA",
	} {
		require.Error(t, cryptox.VerifyPassword("password", hash), "hash %q", hash)
	}
}
