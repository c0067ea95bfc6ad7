// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"errors"
	"fmt"

	"github.com/fabianindra/finalproject/internal/repository"
)

var (
	ErrAlreadyRegistered    = errors.New("email already registered")
	ErrInvalidEmail         = errors.New("invalid email format")
	ErrInvalidRole          = errors.New("invalid role")
	ErrInvalidUsername      = errors.New("username is required")
	ErrNotFound             = errors.New("account not found")
	ErrNotVerifiedOrMissing = errors.New("account is not verified or does not exist")
	ErrAlreadyCompleted     = errors.New("account registration already completed")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrClaimMismatch        = errors.New("token does not match request")
	ErrRoleMismatch         = errors.New("token was issued for another role")
	ErrForbidden            = errors.New("session does not own this account")
	ErrTokenUsed            = errors.New("reset token already used")
	ErrEmailTaken           = errors.New("email already in use")
	ErrConflict             = errors.New("account was modified concurrently")
	ErrDispatch             = errors.New("failed to send email")
)

// storeError translates repository sentinels. Anything else is wrapped
// as an internal failure with op as context.
func storeError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrConflict):
		return ErrConflict
	case errors.Is(err, repository.ErrTokenUsed):
		return ErrTokenUsed
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func isDuplicate(err error) bool {
	return errors.Is(err, repository.ErrDuplicate)
}
