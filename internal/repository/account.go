// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"

	"github.com/fabianindra/finalproject/internal/models"
)

// GetAccountByEmail retrieves an account of the given kind by email.
func (r *Repository) GetAccountByEmail(ctx context.Context, kind models.Kind, email string) (*models.Account, error) {
	var acc models.Account
	err := r.db.GetContext(ctx, &acc, `SELECT * FROM accounts WHERE kind = ? AND email = ?`, kind, email)
	if err != nil {
		return nil, wrapError(err)
	}
	return &acc, nil
}

// GetAccountByID retrieves an account of the given kind by ID.
func (r *Repository) GetAccountByID(ctx context.Context, kind models.Kind, id int64) (*models.Account, error) {
	var acc models.Account
	err := r.db.GetContext(ctx, &acc, `SELECT * FROM accounts WHERE kind = ? AND id = ?`, kind, id)
	if err != nil {
		return nil, wrapError(err)
	}
	return &acc, nil
}

// CreateStubAccount inserts an unverified account holding only an email.
// Returns ErrDuplicate if the email is already registered for the kind.
func (r *Repository) CreateStubAccount(ctx context.Context, kind models.Kind, email string) (*models.Account, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (kind, email) VALUES (?, ?)
		 ON CONFLICT (kind, email) DO NOTHING`,
		kind, email)
	if err != nil {
		return nil, wrapError(err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, ErrDuplicate
	}
	return r.GetAccountByEmail(ctx, kind, email)
}

// MarkAccountVerified sets verified = 1. Already verified accounts are left untouched.
func (r *Repository) MarkAccountVerified(ctx context.Context, kind models.Kind, email string) (*models.Account, error) {
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET verified = 1, version = version + 1, updated_at = CURRENT_TIMESTAMP
		 WHERE kind = ? AND email = ? AND verified = 0`,
		kind, email)
	if err != nil {
		return nil, err
	}
	return r.GetAccountByEmail(ctx, kind, email)
}

// CompleteAccountProfile stores username and password hash on a verified account.
// The write only applies if the account is still at the given version.
func (r *Repository) CompleteAccountProfile(ctx context.Context, id, version int64, username, passwordHash string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts
		 SET username = ?, password_hash = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND version = ? AND verified = 1`,
		username, passwordHash, id, version)
	if err != nil {
		return wrapError(err)
	}
	return expectOneRow(res)
}

// UpdateAccountPassword overwrites the password hash if the account is still at the given version.
func (r *Repository) UpdateAccountPassword(ctx context.Context, id, version int64, passwordHash string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts
		 SET password_hash = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND version = ? AND verified = 1`,
		passwordHash, id, version)
	if err != nil {
		return wrapError(err)
	}
	return expectOneRow(res)
}

// UpdateAccountEmail changes the email identifier if the account is still at the given version.
// Returns ErrDuplicate if newEmail is taken within the account's kind.
func (r *Repository) UpdateAccountEmail(ctx context.Context, id, version int64, newEmail string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts
		 SET email = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND version = ?`,
		newEmail, id, version)
	if err != nil {
		return wrapError(err)
	}
	return expectOneRow(res)
}
