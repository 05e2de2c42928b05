package domain

import "time"

// FactorState is the lifecycle state of an account's 2FA factor.
// The only legal transitions are Disabled -> Pending (enroll),
// Pending -> Active (first verified code) and {Pending,Active} -> Disabled
// (password-gated disable).
type FactorState string

const (
	FactorDisabled FactorState = "disabled"
	FactorPending  FactorState = "pending"
	FactorActive   FactorState = "active"
)

// AuthFactor is the single 2FA record an account may hold. The TOTP secret
// is only ever stored as AES-GCM ciphertext; a Disabled account simply has
// no row.
type AuthFactor struct {
	AccountID       string
	State           FactorState
	SecretEncrypted []byte     // ciphertext of the base32 TOTP secret
	LastCounter     *int64     // last accepted TOTP counter, replay guard
	ActivatedAt     *time.Time // set exactly once, on Pending -> Active
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// RecoveryCode is a single-use fallback credential. The plaintext is shown
// to the user at generation and once more on activation; after that only
// the one-way hash remains.
type RecoveryCode struct {
	ID            string
	AccountID     string
	CodeHash      string     // sha256 fingerprint of the plaintext code
	CodeEncrypted []byte     // present only while the factor is Pending
	UsedAt        *time.Time // nil until consumed, set at most once
	CreatedAt     time.Time
}

// EnrollmentResult is returned by a successful (or idempotent) enrollment.
// RecoveryCodes is nil when an existing Pending factor was returned.
type EnrollmentResult struct {
	Secret          string   // base32 TOTP secret, plaintext
	ProvisioningURI string   // otpauth:// URL for authenticator apps
	RecoveryCodes   []string // plaintext, shown at generation only
}

// VerifyResult reports the outcome of a successful code verification.
// RecoveryCodes is populated only on the Pending -> Active transition.
type VerifyResult struct {
	Activated     bool
	RecoveryCodes []string
}

// ConsumeResult reports a successful recovery-code burn.
type ConsumeResult struct {
	Remaining int // unused codes left after this one
}

// FactorStatus is the read-only 2FA summary for an account.
type FactorStatus struct {
	Enabled                bool
	EnabledAt              *time.Time
	RecoveryCodesRemaining int
}
