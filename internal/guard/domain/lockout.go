package domain

import "time"

// LoginLockout tracks consecutive password-authentication failures for one
// account. It is created lazily on the first failure and idles at zero
// failures with no lock; it is never explicitly deleted by callers.
type LoginLockout struct {
	AccountID           string
	ConsecutiveFailures int
	LockedUntil         *time.Time // always in the future when set
	UpdatedAt           time.Time
}

// Locked reports whether the lock is still in force at time now.
func (l LoginLockout) Locked(now time.Time) bool {
	return l.LockedUntil != nil && l.LockedUntil.After(now)
}

// LockoutResult reports the lockout state after an attempt was recorded.
type LockoutResult struct {
	Locked      bool
	Remaining   time.Duration // time left on the lock, zero when unlocked
	Failures    int
	NotifyOwner bool // true when this attempt triggered the lock
}
