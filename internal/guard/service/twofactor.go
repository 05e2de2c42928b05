package service

import (
	"context"
	"crypto/subtle"
	"encoding/base32"
	"errors"
	"fmt"
	"time"

	"github.com/pledgepoint/guard/internal/guard/domain"
	"github.com/pledgepoint/guard/internal/guard/store"
	"github.com/pledgepoint/guard/pkg/cryptox"
	"github.com/pledgepoint/guard/pkg/idx"
	"github.com/pledgepoint/guard/pkg/qrcode"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	totpPeriod        = 30 // seconds per TOTP step
	totpSecretBytes   = 20 // 160-bit secret per RFC 4226
	recoveryCodeCount = 10 // codes issued per enrollment
)

var (
	ErrAlreadyEnabled    = errors.New("two-factor authentication already enabled")
	ErrNotEnabled        = errors.New("two-factor authentication not enabled")
	ErrNoFactor          = errors.New("no pending or active two-factor enrollment")
	ErrInvalidCode       = errors.New("invalid code")
	ErrIncorrectPassword = errors.New("incorrect password")
)

// TwoFactorService owns the TOTP factor lifecycle: enrollment provisions a
// Pending secret, the first verified code activates it, and a
// password-gated disable erases everything.
type TwoFactorService struct {
	Store  store.Store
	Cipher *cryptox.Cipher
	Issuer string // issuer label for authenticator apps (e.g. "PledgePoint")

	// Now overrides the clock, for deterministic window and expiry tests.
	Now func() time.Time
}

func (s *TwoFactorService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Status reports whether 2FA is active for the account and how many
// recovery codes remain. A Pending enrollment still reads as disabled.
func (s *TwoFactorService) Status(ctx context.Context, accountID string) (domain.FactorStatus, error) {
	factor, err := s.Store.AuthFactors().GetAuthFactor(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.FactorStatus{}, nil
	}
	if err != nil {
		return domain.FactorStatus{}, fmt.Errorf("failed to load auth factor: %w", err)
	}
	if factor.State != domain.FactorActive {
		return domain.FactorStatus{}, nil
	}

	remaining, err := s.Store.RecoveryCodes().CountUnusedRecoveryCodes(ctx, accountID)
	if err != nil {
		return domain.FactorStatus{}, fmt.Errorf("failed to count recovery codes: %w", err)
	}
	return domain.FactorStatus{
		Enabled:                true,
		EnabledAt:              factor.ActivatedAt,
		RecoveryCodesRemaining: remaining,
	}, nil
}

// Enroll provisions a fresh TOTP secret and ten recovery codes in the
// Pending state. Calling it again before verification returns the existing
// secret unchanged so client retries don't orphan secrets; the recovery
// codes are only included when freshly generated.
func (s *TwoFactorService) Enroll(ctx context.Context, accountID string) (domain.EnrollmentResult, error) {
	account, err := s.Store.Accounts().GetAccountByID(ctx, accountID)
	if err != nil {
		return domain.EnrollmentResult{}, fmt.Errorf("failed to load account: %w", err)
	}

	factor, err := s.Store.AuthFactors().GetAuthFactor(ctx, accountID)
	switch {
	case err == nil && factor.State == domain.FactorActive:
		return domain.EnrollmentResult{}, ErrAlreadyEnabled
	case err == nil:
		return s.pendingEnrollment(account, factor)
	case !errors.Is(err, store.ErrNotFound):
		return domain.EnrollmentResult{}, fmt.Errorf("failed to load auth factor: %w", err)
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: account.Email,
		Period:      totpPeriod,
		SecretSize:  totpSecretBytes,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return domain.EnrollmentResult{}, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	secretEncrypted, err := s.Cipher.Encrypt([]byte(key.Secret()))
	if err != nil {
		return domain.EnrollmentResult{}, fmt.Errorf("failed to encrypt TOTP secret: %w", err)
	}

	codes := make([]string, recoveryCodeCount)
	for i := range codes {
		code, err := cryptox.GenerateRecoveryCode()
		if err != nil {
			return domain.EnrollmentResult{}, fmt.Errorf("failed to generate recovery code: %w", err)
		}
		codes[i] = code
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.AuthFactors().CreateAuthFactor(ctx, domain.AuthFactor{
			AccountID:       accountID,
			State:           domain.FactorPending,
			SecretEncrypted: secretEncrypted,
		}); err != nil {
			return err
		}

		for _, code := range codes {
			encrypted, err := s.Cipher.Encrypt([]byte(code))
			if err != nil {
				return fmt.Errorf("failed to encrypt recovery code: %w", err)
			}
			if err := tx.RecoveryCodes().CreateRecoveryCode(ctx, domain.RecoveryCode{
				ID:            idx.New().String(),
				AccountID:     accountID,
				CodeHash:      cryptox.FingerprintCode(code),
				CodeEncrypted: encrypted,
			}); err != nil {
				return fmt.Errorf("failed to store recovery code: %w", err)
			}
		}
		return nil
	})
	if errors.Is(err, store.ErrAlreadyExists) {
		// Lost a create-create race; serve whatever the winner wrote.
		factor, ferr := s.Store.AuthFactors().GetAuthFactor(ctx, accountID)
		if ferr != nil {
			return domain.EnrollmentResult{}, fmt.Errorf("failed to load auth factor: %w", ferr)
		}
		if factor.State == domain.FactorActive {
			return domain.EnrollmentResult{}, ErrAlreadyEnabled
		}
		return s.pendingEnrollment(account, factor)
	}
	if err != nil {
		return domain.EnrollmentResult{}, err
	}

	return domain.EnrollmentResult{
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
		RecoveryCodes:   codes,
	}, nil
}

// pendingEnrollment rebuilds the enrollment payload for an existing
// Pending factor. Recovery-code plaintext is not included; it was shown
// when the codes were generated and will be shown once more at activation.
func (s *TwoFactorService) pendingEnrollment(account domain.Account, factor domain.AuthFactor) (domain.EnrollmentResult, error) {
	secret, err := s.decryptSecret(factor)
	if err != nil {
		return domain.EnrollmentResult{}, err
	}
	uri, err := s.provisioningURI(account.Email, secret)
	if err != nil {
		return domain.EnrollmentResult{}, err
	}
	return domain.EnrollmentResult{
		Secret:          secret,
		ProvisioningURI: uri,
	}, nil
}

// Verify checks a submitted 6-digit code against the account's factor,
// accepting one step of clock drift either side. The first success on a
// Pending factor activates it and reveals the recovery codes one final
// time; success on an Active factor is an ordinary login check.
func (s *TwoFactorService) Verify(ctx context.Context, accountID, code string) (domain.VerifyResult, error) {
	factor, err := s.Store.AuthFactors().GetAuthFactor(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.VerifyResult{}, ErrNoFactor
	}
	if err != nil {
		return domain.VerifyResult{}, fmt.Errorf("failed to load auth factor: %w", err)
	}

	secret, err := s.decryptSecret(factor)
	if err != nil {
		return domain.VerifyResult{}, err
	}

	now := s.now()
	currentCounter := now.Unix() / totpPeriod

	matched, ok := matchCounter(secret, code, currentCounter)
	if !ok {
		return domain.VerifyResult{}, ErrInvalidCode
	}

	// Replay guard, tighter than the bare window: an accepted code may be
	// resubmitted while its step is still current (idempotent client
	// retry), but never after the step has elapsed even though the ±1
	// drift window would still cover it.
	if last := factor.LastCounter; last != nil {
		if matched < *last || (matched == *last && currentCounter != matched) {
			return domain.VerifyResult{}, ErrInvalidCode
		}
	}

	if factor.State == domain.FactorPending {
		var revealed []string
		err := s.Store.WithTx(ctx, func(tx store.Tx) error {
			codes, err := tx.RecoveryCodes().ListAccountRecoveryCodes(ctx, accountID)
			if err != nil {
				return fmt.Errorf("failed to load recovery codes: %w", err)
			}
			for _, rc := range codes {
				if rc.CodeEncrypted == nil {
					continue
				}
				plaintext, err := s.Cipher.Decrypt(rc.CodeEncrypted)
				if err != nil {
					return fmt.Errorf("failed to decrypt recovery code: %w", err)
				}
				revealed = append(revealed, string(plaintext))
			}

			if err := tx.AuthFactors().ActivateAuthFactor(ctx, accountID, now); err != nil {
				return fmt.Errorf("failed to activate auth factor: %w", err)
			}
			if err := tx.AuthFactors().UpdateLastCounter(ctx, accountID, matched); err != nil {
				return fmt.Errorf("failed to record accepted counter: %w", err)
			}
			// After this the plaintext is gone for good; only hashes stay.
			if err := tx.RecoveryCodes().ClearEncryptedCopies(ctx, accountID); err != nil {
				return fmt.Errorf("failed to clear recovery code copies: %w", err)
			}
			return nil
		})
		if err != nil {
			return domain.VerifyResult{}, err
		}
		return domain.VerifyResult{Activated: true, RecoveryCodes: revealed}, nil
	}

	if err := s.Store.AuthFactors().UpdateLastCounter(ctx, accountID, matched); err != nil {
		return domain.VerifyResult{}, fmt.Errorf("failed to record accepted counter: %w", err)
	}
	return domain.VerifyResult{Activated: false}, nil
}

// Disable erases the factor and all recovery codes after re-checking the
// account password. Works from both Pending and Active.
func (s *TwoFactorService) Disable(ctx context.Context, accountID, password string) error {
	_, err := s.Store.AuthFactors().GetAuthFactor(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotEnabled
	}
	if err != nil {
		return fmt.Errorf("failed to load auth factor: %w", err)
	}

	account, err := s.Store.Accounts().GetAccountByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to load account: %w", err)
	}
	if err := cryptox.VerifyPassword(password, account.PasswordHash); err != nil {
		return ErrIncorrectPassword
	}

	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.RecoveryCodes().DeleteAccountRecoveryCodes(ctx, accountID); err != nil {
			return fmt.Errorf("failed to delete recovery codes: %w", err)
		}
		if err := tx.AuthFactors().DeleteAuthFactor(ctx, accountID); err != nil {
			return fmt.Errorf("failed to delete auth factor: %w", err)
		}
		return nil
	})
}

// ProvisioningPNG renders the Pending factor's otpauth URI as a QR code
// PNG for the enrollment UI. Only available while Pending; an Active
// secret is never re-surfaced.
func (s *TwoFactorService) ProvisioningPNG(ctx context.Context, accountID string, size int) ([]byte, error) {
	factor, err := s.Store.AuthFactors().GetAuthFactor(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoFactor
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load auth factor: %w", err)
	}
	if factor.State != domain.FactorPending {
		return nil, ErrNoFactor
	}

	account, err := s.Store.Accounts().GetAccountByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	secret, err := s.decryptSecret(factor)
	if err != nil {
		return nil, err
	}
	uri, err := s.provisioningURI(account.Email, secret)
	if err != nil {
		return nil, err
	}
	return qrcode.GeneratePNG(uri, size)
}

func (s *TwoFactorService) decryptSecret(factor domain.AuthFactor) (string, error) {
	secret, err := s.Cipher.Decrypt(factor.SecretEncrypted)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt TOTP secret: %w", err)
	}
	return string(secret), nil
}

// provisioningURI rebuilds the otpauth:// URL for an already-stored
// secret.
func (s *TwoFactorService) provisioningURI(email, secret string) (string, error) {
	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to decode TOTP secret: %w", err)
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: email,
		Period:      totpPeriod,
		Secret:      raw,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to build provisioning URI: %w", err)
	}
	return key.URL(), nil
}

// matchCounter reports which counter in [current-1, current+1] the
// submitted code belongs to. Comparison is constant time per candidate.
func matchCounter(secret, code string, currentCounter int64) (int64, bool) {
	opts := totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      0,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
	for offset := int64(-1); offset <= 1; offset++ {
		counter := currentCounter + offset
		at := time.Unix(counter*totpPeriod, 0).UTC()
		expected, err := totp.GenerateCodeCustom(secret, at, opts)
		if err != nil {
			return 0, false
		}
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
			return counter, true
		}
	}
	return 0, false
}
