package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/pledgepoint/guard/internal/guard/domain"
	"github.com/pledgepoint/guard/internal/guard/store"
)

type recoveryCodesRepo struct {
	q queryer
}

func (r *recoveryCodesRepo) CreateRecoveryCode(ctx context.Context, rc domain.RecoveryCode) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO recovery_codes (id, account_id, code_hash, code_encrypted)
		VALUES (?, ?, ?, ?)`,
		rc.ID, rc.AccountID, rc.CodeHash, rc.CodeEncrypted)
	return mapConstraint(err)
}

// ConsumeRecoveryCode is the single atomic check-and-set for recovery-code
// use. The guarded UPDATE means two concurrent requests racing on the same
// code yield exactly one success; the loser distinguishes "already used"
// from "no such code" with a follow-up read.
func (r *recoveryCodesRepo) ConsumeRecoveryCode(ctx context.Context, accountID, codeHash string, usedAt time.Time) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE recovery_codes SET used_at = ?
		WHERE account_id = ? AND code_hash = ? AND used_at IS NULL`,
		usedAt.UTC(), accountID, codeHash)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var exists int
	err = r.q.QueryRowContext(ctx, `
		SELECT 1 FROM recovery_codes WHERE account_id = ? AND code_hash = ?`,
		accountID, codeHash).Scan(&exists)
	if err == sql.ErrNoRows {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}
	return store.ErrAlreadyUsed
}

func (r *recoveryCodesRepo) ListAccountRecoveryCodes(ctx context.Context, accountID string) ([]domain.RecoveryCode, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, account_id, code_hash, code_encrypted, used_at, created_at
		FROM recovery_codes WHERE account_id = ? ORDER BY id`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []domain.RecoveryCode
	for rows.Next() {
		var rc domain.RecoveryCode
		var usedAt sql.NullTime
		if err := rows.Scan(&rc.ID, &rc.AccountID, &rc.CodeHash,
			&rc.CodeEncrypted, &usedAt, &rc.CreatedAt); err != nil {
			return nil, err
		}
		rc.UsedAt = mapNullTimePtr(usedAt)
		rc.CreatedAt = rc.CreatedAt.UTC()
		codes = append(codes, rc)
	}
	return codes, rows.Err()
}

func (r *recoveryCodesRepo) ClearEncryptedCopies(ctx context.Context, accountID string) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE recovery_codes SET code_encrypted = NULL WHERE account_id = ?`,
		accountID)
	return err
}

func (r *recoveryCodesRepo) DeleteAccountRecoveryCodes(ctx context.Context, accountID string) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM recovery_codes WHERE account_id = ?`, accountID)
	return err
}

func (r *recoveryCodesRepo) CountUnusedRecoveryCodes(ctx context.Context, accountID string) (int, error) {
	var count int
	err := r.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM recovery_codes WHERE account_id = ? AND used_at IS NULL`,
		accountID).Scan(&count)
	return count, err
}
