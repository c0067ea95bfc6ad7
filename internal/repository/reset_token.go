// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"fmt"
	"time"
)

// ResetAccountPassword consumes a reset token and overwrites the password hash
// in one transaction. Returns ErrTokenUsed if tokenID was consumed before and
// ErrConflict if the account moved past the given version.
func (r *Repository) ResetAccountPassword(ctx context.Context, id, version int64, tokenID string, expiresAt time.Time, passwordHash string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO used_reset_tokens (token_id, account_id, expires_at, used_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (token_id) DO NOTHING`,
		tokenID, id, expiresAt.Unix(), time.Now().Unix())
	if err != nil {
		return wrapError(err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrTokenUsed
	}

	res, err = tx.ExecContext(ctx,
		`UPDATE accounts
		 SET password_hash = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND version = ? AND verified = 1`,
		passwordHash, id, version)
	if err != nil {
		return wrapError(err)
	}
	if err := expectOneRow(res); err != nil {
		return err
	}

	return tx.Commit()
}

// DeleteExpiredResetTokens deletes markers for tokens that can no longer verify anyway.
func (r *Repository) DeleteExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM used_reset_tokens WHERE expires_at < ?`, now.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
