// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import (
	"strings"
	"time"
)

// Account is a user or tenant record keyed by (kind, email).
// A stub has only an email; username and password hash arrive on completion.
type Account struct { //nolint:govet // fieldalignment: readability over optimization
	ID           int64     `db:"id" json:"id"`
	Kind         Kind      `db:"kind" json:"kind"`
	Email        string    `db:"email" json:"email"`
	Username     *string   `db:"username" json:"username,omitempty"`
	PasswordHash *string   `db:"password_hash" json:"-"`
	Verified     bool      `db:"verified" json:"verified"`
	Version      int64     `db:"version" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// HasPassword reports whether the profile has been completed.
func (a *Account) HasPassword() bool {
	return a.PasswordHash != nil && *a.PasswordHash != ""
}

// NormalizeEmail applies the case policy used for every stored email.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
