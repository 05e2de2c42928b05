package cryptox_test

import (
	"encoding/base64"
	"testing"

	"github.com/pledgepoint/guard/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestCipherRoundTrip(t *testing.T) {
	t.Parallel()

	key, err := cryptox.GenerateKey()
	require.NoError(t, err)

	c, err := cryptox.NewCipher(key)
	require.NoError(t, err)

	secret := []byte("JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP")

	encrypted, err := c.Encrypt(secret)
	require.NoError(t, err)
	require.NotEqual(t, secret, encrypted)

	decrypted, err := c.Decrypt(encrypted)
	require.NoError(t, err)
	require.Equal(t, secret, decrypted)
}

func TestCipherNonDeterministic(t *testing.T) {
	t.Parallel()

	key, err := cryptox.GenerateKey()
	require.NoError(t, err)
	c, err := cryptox.NewCipher(key)
	require.NoError(t, err)

	plaintext := []byte("same input")
	first, err := c.Encrypt(plaintext)
	require.NoError(t, err)
	second, err := c.Encrypt(plaintext)
	require.NoError(t, err)

	require.NotEqual(t, first, second, "random nonce must vary ciphertexts")

	for _, enc := range [][]byte{first, second} {
		out, err := c.Decrypt(enc)
		require.NoError(t, err)
		require.Equal(t, plaintext, out)
	}
}

func TestCipherRejectsBadInput(t *testing.T) {
	t.Parallel()

	key, err := cryptox.GenerateKey()
	require.NoError(t, err)
	c, err := cryptox.NewCipher(key)
	require.NoError(t, err)

	t.Run("short ciphertext", func(t *testing.T) {
		_, err := c.Decrypt([]byte("tiny"))
		require.ErrorIs(t, err, cryptox.ErrCiphertextTooShort)
	})

	t.Run("tampered ciphertext", func(t *testing.T) {
		enc, err := c.Encrypt([]byte("payload"))
		require.NoError(t, err)
		enc[len(enc)-1] ^= 0xff
		_, err = c.Decrypt(enc)
		require.ErrorIs(t, err, cryptox.ErrDecryptFailed)
	})

	t.Run("wrong key", func(t *testing.T) {
		otherKey, err := cryptox.GenerateKey()
		require.NoError(t, err)
		other, err := cryptox.NewCipher(otherKey)
		require.NoError(t, err)

		enc, err := c.Encrypt([]byte("payload"))
		require.NoError(t, err)
		_, err = other.Decrypt(enc)
		require.ErrorIs(t, err, cryptox.ErrDecryptFailed)
	})
}

func TestNewCipherKeyLength(t *testing.T) {
	t.Parallel()

	_, err := cryptox.NewCipher(make([]byte, 16))
	require.ErrorIs(t, err, cryptox.ErrInvalidKeyLength)

	c, err := cryptox.NewCipherFromMaterial([]byte("operator passphrase"))
	require.NoError(t, err)
	require.NotNil(t, c)
}

func TestParseKey(t *testing.T) {
	t.Parallel()

	key, err := cryptox.GenerateKey()
	require.NoError(t, err)

	parsed, err := cryptox.ParseKey(base64.StdEncoding.EncodeToString(key))
	require.NoError(t, err)
	require.Equal(t, key, parsed)

	_, err = cryptox.ParseKey("not base64!!!")
	require.Error(t, err)

	_, err = cryptox.ParseKey(base64.StdEncoding.EncodeToString([]byte("short")))
	require.ErrorIs(t, err, cryptox.ErrInvalidKeyLength)
}
