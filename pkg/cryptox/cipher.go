package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// KeySize is the required key length for AES-256-GCM.
const KeySize = 32

var (
	ErrInvalidKeyLength   = errors.New("cryptox: key must be 32 bytes")
	ErrCiphertextTooShort = errors.New("cryptox: ciphertext too short")
	ErrDecryptFailed      = errors.New("cryptox: decryption failed")
)

// Cipher is the encryption-at-rest capability. It encrypts secret material
// with AES-256-GCM before persistence. The key is fixed at construction and
// read-only afterwards, so a single Cipher is safe for concurrent use.
//
// Wire format: [nonce][ciphertext][auth tag], nonce length per GCM.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a Cipher from a raw 32-byte key.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeyLength
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptox: create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cryptox: create GCM: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// NewCipherFromMaterial derives a 32-byte key from arbitrary key material
// via SHA-256 and builds a Cipher from it. Use this when the key comes from
// an operator-supplied passphrase rather than a generated key file.
func NewCipherFromMaterial(material []byte) (*Cipher, error) {
	sum := sha256.Sum256(material)
	return NewCipher(sum[:])
}

// GenerateKey creates a fresh random AES-256 key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("cryptox: generate key: %w", err)
	}
	return key, nil
}

// ParseKey decodes a base64 (std, padded) encoded 32-byte key.
func ParseKey(encoded string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("cryptox: decode key: %w", err)
	}
	if len(key) != KeySize {
		return nil, ErrInvalidKeyLength
	}
	return key, nil
}

// Encrypt seals plaintext with a fresh random nonce. The same plaintext
// encrypts to a different ciphertext every call.
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("cryptox: generate nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens data produced by Encrypt. Tampered or truncated input
// fails with ErrDecryptFailed; the plaintext is never partially returned.
func (c *Cipher) Decrypt(data []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	if len(data) < nonceSize {
		return nil, ErrCiphertextTooShort
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}
