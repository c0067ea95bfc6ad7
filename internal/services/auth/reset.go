// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fabianindra/finalproject/internal/models"
	"github.com/fabianindra/finalproject/internal/services/token"
)

// SendResetPasswordEmail mails a single-use reset link. Unknown and
// unverified accounts both yield ErrNotFound.
func (s *Service) SendResetPasswordEmail(ctx context.Context, role, email string) (err error) {
	defer s.record("send_reset_password", &err)

	kind, err := parseRole(role)
	if err != nil {
		return err
	}

	acc, err := s.store.GetAccountByEmail(ctx, kind, models.NormalizeEmail(email))
	if err != nil {
		return storeError("get account", err)
	}
	if !acc.Verified {
		return ErrNotFound
	}

	tok, err := s.tokens.Issue(token.PurposeReset, token.Claims{
		Email: acc.Email,
		Role:  kind.String(),
	}, s.cfg.ResetTTL)
	if err != nil {
		return fmt.Errorf("failed to issue reset token: %w", err)
	}

	if err = s.mailer.SendPasswordReset(ctx, acc.Email, tok, kind); err != nil {
		slog.ErrorContext(ctx, "reset_dispatch_failed", "account_id", acc.ID, "email", acc.Email, "error", err)
		return fmt.Errorf("%w: %w", ErrDispatch, err)
	}

	slog.InfoContext(ctx, "send_reset_password_success", "account_id", acc.ID, "email", acc.Email, "kind", kind)
	return nil
}

// ResetPassword overwrites the password if the reset token was issued for
// {role, email}. The token is consumed in the same transaction.
func (s *Service) ResetPassword(ctx context.Context, role, email, tokenString, newPassword string) (err error) {
	defer s.record("reset_password", &err)

	kind, err := parseRole(role)
	if err != nil {
		return err
	}
	email = models.NormalizeEmail(email)

	claims, err := s.tokens.Verify(token.PurposeReset, tokenString)
	if err != nil {
		slog.WarnContext(ctx, "reset_password_failed", "email", email, "kind", kind, "reason", err.Error())
		return err
	}
	if claims.Role != kind.String() || claims.Email != email || claims.ID == "" {
		slog.WarnContext(ctx, "reset_password_failed", "email", email, "kind", kind, "reason", "claim_mismatch")
		return ErrClaimMismatch
	}

	acc, err := s.store.GetAccountByEmail(ctx, kind, email)
	if err != nil {
		return storeError("get account", err)
	}
	if !acc.Verified {
		return ErrNotFound
	}

	hash, err := s.hash(newPassword)
	if err != nil {
		return err
	}

	err = s.store.ResetAccountPassword(ctx, acc.ID, acc.Version, claims.ID, claims.ExpiresAtTime(), hash)
	if err = storeError("reset password", err); err != nil {
		if errors.Is(err, ErrTokenUsed) {
			slog.WarnContext(ctx, "reset_password_failed", "email", email, "kind", kind, "reason", "token_used")
		}
		return err
	}

	s.purgeResetTokens(ctx)

	slog.InfoContext(ctx, "reset_password_success", "account_id", acc.ID, "email", email, "kind", kind)
	return nil
}

func (s *Service) purgeResetTokens(ctx context.Context) {
	n, err := s.store.DeleteExpiredResetTokens(ctx, s.now())
	if err != nil {
		slog.WarnContext(ctx, "purge_reset_tokens_failed", "error", err)
		return
	}
	if n > 0 {
		slog.DebugContext(ctx, "purged_reset_tokens", "count", n)
	}
}

// ResetEmail moves an account to newEmail, which must be free within the kind.
func (s *Service) ResetEmail(ctx context.Context, role, email, newEmail string) (acc *models.Account, err error) {
	defer s.record("reset_email", &err)

	kind, err := parseRole(role)
	if err != nil {
		return nil, err
	}
	newEmail, err = parseEmail(newEmail)
	if err != nil {
		return nil, err
	}
	email = models.NormalizeEmail(email)

	acc, err = s.store.GetAccountByEmail(ctx, kind, email)
	if err != nil {
		return nil, storeError("get account", err)
	}
	if newEmail == acc.Email {
		return acc, nil
	}

	_, err = s.store.GetAccountByEmail(ctx, kind, newEmail)
	if err == nil {
		return nil, ErrEmailTaken
	}
	if err = storeError("check new email", err); !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if err = s.store.UpdateAccountEmail(ctx, acc.ID, acc.Version, newEmail); err != nil {
		if isDuplicate(err) {
			return nil, ErrEmailTaken
		}
		return nil, storeError("update email", err)
	}

	slog.InfoContext(ctx, "reset_email_success", "account_id", acc.ID, "old_email", email, "email", newEmail, "kind", kind)
	acc.Email = newEmail
	acc.Version++
	return acc, nil
}
