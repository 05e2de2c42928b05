package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

// Recovery codes are rendered as two 4-character groups separated by a
// hyphen, e.g. "AB27-XK94". The alphabet excludes visually confusable
// characters (0/O, 1/I/L).
const recoveryCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const recoveryCodeGroupLen = 4

var recoveryCodePattern = regexp.MustCompile(
	`^[` + recoveryCodeAlphabet + `]{4}-[` + recoveryCodeAlphabet + `]{4}$`,
)

// GenerateRecoveryCode draws a fresh single-use recovery code from the
// unambiguous alphabet using crypto/rand.
func GenerateRecoveryCode() (string, error) {
	group := func() (string, error) {
		var b strings.Builder
		for range recoveryCodeGroupLen {
			n, err := rand.Int(rand.Reader, big.NewInt(int64(len(recoveryCodeAlphabet))))
			if err != nil {
				return "", fmt.Errorf("cryptox: generate recovery code: %w", err)
			}
			b.WriteByte(recoveryCodeAlphabet[n.Int64()])
		}
		return b.String(), nil
	}

	first, err := group()
	if err != nil {
		return "", err
	}
	second, err := group()
	if err != nil {
		return "", err
	}
	return first + "-" + second, nil
}

// NormalizeRecoveryCode uppercases user input and reinserts the hyphen so
// "ab27xk94" and "AB27-XK94" hash identically. Returns false when the
// input cannot be a recovery code.
func NormalizeRecoveryCode(code string) (string, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	code = strings.ReplaceAll(code, "-", "")
	if len(code) != 2*recoveryCodeGroupLen {
		return "", false
	}
	code = code[:recoveryCodeGroupLen] + "-" + code[recoveryCodeGroupLen:]
	if !recoveryCodePattern.MatchString(code) {
		return "", false
	}
	return code, true
}

// FingerprintCode returns a deterministic SHA-256 fingerprint of a code,
// base64url encoded. Only fingerprints are persisted for lookup; the
// plaintext is never stored in reversible form after activation.
func FingerprintCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
