package store

import (
	"context"
	"errors"
	"time"

	"github.com/pledgepoint/guard/internal/guard/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
	ErrAlreadyUsed   = errors.New("store: already used")
)

// Store is the root data access interface. Concrete drivers (sqlite for
// now) implement this. It exposes sub-repositories to keep concerns tidy
// and testable, and WithTx for the few multi-step operations that must be
// atomic (enrollment, activation, lockout bookkeeping).
type Store interface {
	Accounts() Accounts
	AuthFactors() AuthFactors
	RecoveryCodes() RecoveryCodes
	LoginLockouts() LoginLockouts

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed. Prefer this
	// over Tx; it handles commit/rollback for you.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds
// Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Accounts interface {
	// GetAccountByID returns an account by id.
	GetAccountByID(ctx context.Context, id string) (domain.Account, error)

	// GetAccountByEmail returns an account by its unique email.
	GetAccountByEmail(ctx context.Context, email string) (domain.Account, error)

	// CreateAccount inserts a new account (id is provided by app via ULID).
	// Returns ErrAlreadyExists when the id or email is taken.
	CreateAccount(ctx context.Context, a domain.Account) error

	// UpdatePasswordHash sets the password_hash and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, accountID string, newHash string) error

	// DeleteAccount cascades to auth_factors and recovery_codes.
	DeleteAccount(ctx context.Context, accountID string) error
}

type AuthFactors interface {
	// GetAuthFactor returns the factor for an account. ErrNotFound means
	// the account has 2FA disabled.
	GetAuthFactor(ctx context.Context, accountID string) (domain.AuthFactor, error)

	// CreateAuthFactor inserts a Pending factor. The account_id primary
	// key closes the enroll create-create race: ErrAlreadyExists is
	// returned when a factor already exists for the account.
	CreateAuthFactor(ctx context.Context, f domain.AuthFactor) error

	// ActivateAuthFactor transitions Pending -> Active and stamps
	// activated_at. ErrNotFound if no Pending factor exists.
	ActivateAuthFactor(ctx context.Context, accountID string, activatedAt time.Time) error

	// UpdateLastCounter records the last accepted TOTP counter.
	UpdateLastCounter(ctx context.Context, accountID string, counter int64) error

	// DeleteAuthFactor erases the factor row; the account reverts to
	// Disabled.
	DeleteAuthFactor(ctx context.Context, accountID string) error
}

type RecoveryCodes interface {
	// CreateRecoveryCode stores one hashed (and, while Pending, encrypted)
	// recovery code.
	CreateRecoveryCode(ctx context.Context, rc domain.RecoveryCode) error

	// ConsumeRecoveryCode atomically marks the code with the given hash as
	// used. Exactly one of two concurrent calls for the same code can
	// succeed: the loser gets ErrAlreadyUsed. ErrNotFound when no code
	// with that hash exists for the account.
	ConsumeRecoveryCode(ctx context.Context, accountID, codeHash string, usedAt time.Time) error

	// ListAccountRecoveryCodes returns all codes for an account, oldest
	// first.
	ListAccountRecoveryCodes(ctx context.Context, accountID string) ([]domain.RecoveryCode, error)

	// ClearEncryptedCopies nulls out code_encrypted for all of an
	// account's codes. Called on activation after the one-final-time
	// reveal.
	ClearEncryptedCopies(ctx context.Context, accountID string) error

	// DeleteAccountRecoveryCodes removes all codes for an account.
	DeleteAccountRecoveryCodes(ctx context.Context, accountID string) error

	// CountUnusedRecoveryCodes returns how many codes remain consumable.
	CountUnusedRecoveryCodes(ctx context.Context, accountID string) (int, error)
}

type LoginLockouts interface {
	// GetLoginLockout returns the lockout row. ErrNotFound means the
	// account has never failed a login.
	GetLoginLockout(ctx context.Context, accountID string) (domain.LoginLockout, error)

	// UpsertLoginLockout writes the full lockout state for an account.
	// Run inside WithTx together with GetLoginLockout so two concurrent
	// failures cannot both observe a pre-threshold count.
	UpsertLoginLockout(ctx context.Context, l domain.LoginLockout) error

	// DeleteIdleLockouts removes rows with no open lock that have not
	// been touched since before cutoff (housekeeping).
	DeleteIdleLockouts(ctx context.Context, cutoff time.Time) error

	// ClearExpiredLocks nulls locked_until on rows whose lock has expired
	// (housekeeping; RecordAttempt also clears lazily).
	ClearExpiredLocks(ctx context.Context, now time.Time) error
}
