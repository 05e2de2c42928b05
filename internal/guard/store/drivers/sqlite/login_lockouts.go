package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/pledgepoint/guard/internal/guard/domain"
)

type loginLockoutsRepo struct {
	q queryer
}

func (r *loginLockoutsRepo) GetLoginLockout(ctx context.Context, accountID string) (domain.LoginLockout, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT account_id, consecutive_failures, locked_until, updated_at
		FROM login_lockouts WHERE account_id = ?`, accountID)

	var l domain.LoginLockout
	var lockedUntil sql.NullTime
	err := row.Scan(&l.AccountID, &l.ConsecutiveFailures, &lockedUntil, &l.UpdatedAt)
	if err != nil {
		return domain.LoginLockout{}, mapNotFound(err)
	}
	l.LockedUntil = mapNullTimePtr(lockedUntil)
	l.UpdatedAt = l.UpdatedAt.UTC()
	return l, nil
}

func (r *loginLockoutsRepo) UpsertLoginLockout(ctx context.Context, l domain.LoginLockout) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO login_lockouts (account_id, consecutive_failures, locked_until, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			consecutive_failures = excluded.consecutive_failures,
			locked_until = excluded.locked_until,
			updated_at = excluded.updated_at`,
		l.AccountID, l.ConsecutiveFailures, mapOptionalTime(l.LockedUntil), l.UpdatedAt.UTC())
	return err
}

// DeleteIdleLockouts drops rows whose lock has lapsed and that have not
// been touched since the cutoff. The failure counter in such a row is
// stale context nobody will act on.
func (r *loginLockoutsRepo) DeleteIdleLockouts(ctx context.Context, cutoff time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		DELETE FROM login_lockouts
		WHERE locked_until IS NULL AND updated_at < ?`,
		cutoff.UTC())
	return err
}

// ClearExpiredLocks releases locks whose window has passed. The counter
// resets with the lock; the next failure starts a fresh streak.
func (r *loginLockoutsRepo) ClearExpiredLocks(ctx context.Context, now time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE login_lockouts SET locked_until = NULL, consecutive_failures = 0, updated_at = ?
		WHERE locked_until IS NOT NULL AND locked_until <= ?`,
		now.UTC(), now.UTC())
	return err
}
