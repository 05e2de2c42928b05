package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/pledgepoint/guard/internal/guard/domain"
	"github.com/pledgepoint/guard/internal/guard/store"
)

type authFactorsRepo struct {
	q queryer
}

func (r *authFactorsRepo) GetAuthFactor(ctx context.Context, accountID string) (domain.AuthFactor, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT account_id, state, secret_encrypted, last_counter, activated_at, created_at, updated_at
		FROM auth_factors WHERE account_id = ?`, accountID)

	var f domain.AuthFactor
	var state string
	var lastCounter sql.NullInt64
	var activatedAt sql.NullTime
	err := row.Scan(&f.AccountID, &state, &f.SecretEncrypted, &lastCounter,
		&activatedAt, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return domain.AuthFactor{}, mapNotFound(err)
	}

	f.State = domain.FactorState(state)
	f.LastCounter = mapNullInt64Ptr(lastCounter)
	f.ActivatedAt = mapNullTimePtr(activatedAt)
	f.CreatedAt = f.CreatedAt.UTC()
	f.UpdatedAt = f.UpdatedAt.UTC()
	return f, nil
}

func (r *authFactorsRepo) CreateAuthFactor(ctx context.Context, f domain.AuthFactor) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO auth_factors (account_id, state, secret_encrypted, last_counter, activated_at)
		VALUES (?, ?, ?, ?, ?)`,
		f.AccountID, string(f.State), f.SecretEncrypted,
		mapOptionalInt64(f.LastCounter), mapOptionalTime(f.ActivatedAt))
	return mapConstraint(err)
}

func (r *authFactorsRepo) ActivateAuthFactor(ctx context.Context, accountID string, activatedAt time.Time) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE auth_factors
		SET state = 'active', activated_at = ?, updated_at = ?
		WHERE account_id = ? AND state = 'pending'`,
		activatedAt.UTC(), time.Now().UTC(), accountID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *authFactorsRepo) UpdateLastCounter(ctx context.Context, accountID string, counter int64) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE auth_factors SET last_counter = ?, updated_at = ? WHERE account_id = ?`,
		counter, time.Now().UTC(), accountID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *authFactorsRepo) DeleteAuthFactor(ctx context.Context, accountID string) error {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM auth_factors WHERE account_id = ?`, accountID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// requireAffected maps zero affected rows to store.ErrNotFound so updates
// against missing rows surface instead of silently passing.
func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
