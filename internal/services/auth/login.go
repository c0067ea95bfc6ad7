// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/fabianindra/finalproject/internal/models"
	"github.com/fabianindra/finalproject/internal/services/token"
	"github.com/golang-jwt/jwt/v5"
)

// Session is a successful login.
type Session struct {
	ExpiresAt time.Time
	Account   *models.Account
	Token     string
}

// Login checks the credentials of a completed account and issues a
// session token carrying its id, email and kind. Every failure returns
// ErrInvalidCredentials after exactly one bcrypt comparison.
func (s *Service) Login(ctx context.Context, kind models.Kind, email, pw string) (sess *Session, err error) {
	defer s.record("login", &err)

	if !kind.Valid() {
		return nil, ErrInvalidRole
	}
	email = models.NormalizeEmail(email)

	acc, err := s.authenticate(ctx, kind, email, pw, true)
	if err != nil {
		return nil, err
	}

	tok, err := s.tokens.Issue(token.PurposeSession, token.Claims{
		Email: acc.Email,
		Role:  acc.Kind.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: strconv.FormatInt(acc.ID, 10),
		},
	}, s.cfg.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session token: %w", err)
	}

	slog.InfoContext(ctx, "login_success", "account_id", acc.ID, "email", email, "kind", kind)
	return &Session{Token: tok, Account: acc, ExpiresAt: s.now().Add(s.cfg.SessionTTL)}, nil
}

// ChangePassword replaces the password after re-checking the current one.
func (s *Service) ChangePassword(ctx context.Context, kind models.Kind, email, current, next string) (err error) {
	defer s.record("change_password", &err)

	if !kind.Valid() {
		return ErrInvalidRole
	}
	email = models.NormalizeEmail(email)

	acc, err := s.authenticate(ctx, kind, email, current, false)
	if err != nil {
		return err
	}

	hash, err := s.hash(next)
	if err != nil {
		return err
	}

	if err = s.store.UpdateAccountPassword(ctx, acc.ID, acc.Version, hash); err != nil {
		return storeError("update password", err)
	}

	slog.InfoContext(ctx, "change_password_success", "account_id", acc.ID, "email", email, "kind", kind)
	return nil
}

// AuthorizeAccount checks that the session's account id still holds email.
// A session outlives email changes, so the address alone does not identify
// the account it was issued for.
func (s *Service) AuthorizeAccount(ctx context.Context, kind models.Kind, accountID int64, email string) error {
	acc, err := s.store.GetAccountByID(ctx, kind, accountID)
	if err = storeError("get account", err); errors.Is(err, ErrNotFound) {
		return ErrForbidden
	} else if err != nil {
		return err
	}
	if acc.Email != models.NormalizeEmail(email) {
		slog.WarnContext(ctx, "session_account_mismatch", "account_id", accountID, "email", email, "kind", kind)
		return ErrForbidden
	}
	return nil
}

// authenticate loads the account and compares pw with its hash. Missing,
// unverified and incomplete accounts burn a dummy comparison instead.
func (s *Service) authenticate(ctx context.Context, kind models.Kind, email, pw string, requireVerified bool) (*models.Account, error) {
	event := "login_failed"
	if !requireVerified {
		event = "change_password_failed"
	}

	acc, err := s.store.GetAccountByEmail(ctx, kind, email)
	if err != nil {
		if err = storeError("get account", err); !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		s.hasher.CompareDummy(pw)
		slog.WarnContext(ctx, event, "email", email, "kind", kind, "reason", "account_not_found")
		return nil, ErrInvalidCredentials
	}

	if (requireVerified && !acc.Verified) || !acc.HasPassword() {
		s.hasher.CompareDummy(pw)
		slog.WarnContext(ctx, event, "email", email, "kind", kind, "reason", "incomplete_account")
		return nil, ErrInvalidCredentials
	}

	if err := s.hasher.Compare(*acc.PasswordHash, pw); err != nil {
		slog.WarnContext(ctx, event, "email", email, "kind", kind, "reason", "invalid_password")
		return nil, ErrInvalidCredentials
	}

	return acc, nil
}
