// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package auth implements the account lifecycle shared by users and
// tenants: registration, email verification, profile completion, login,
// password reset and email change.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/fabianindra/finalproject/internal/metrics"
	"github.com/fabianindra/finalproject/internal/models"
	"github.com/fabianindra/finalproject/internal/services/token"
	"github.com/microcosm-cc/bluemonday"
)

// Store is the persistence the flows need. *repository.Repository
// implements it.
type Store interface {
	GetAccountByEmail(ctx context.Context, kind models.Kind, email string) (*models.Account, error)
	GetAccountByID(ctx context.Context, kind models.Kind, id int64) (*models.Account, error)
	CreateStubAccount(ctx context.Context, kind models.Kind, email string) (*models.Account, error)
	MarkAccountVerified(ctx context.Context, kind models.Kind, email string) (*models.Account, error)
	CompleteAccountProfile(ctx context.Context, id, version int64, username, passwordHash string) error
	UpdateAccountPassword(ctx context.Context, id, version int64, passwordHash string) error
	UpdateAccountEmail(ctx context.Context, id, version int64, newEmail string) error
	ResetAccountPassword(ctx context.Context, id, version int64, tokenID string, expiresAt time.Time, passwordHash string) error
	DeleteExpiredResetTokens(ctx context.Context, now time.Time) (int64, error)
}

// Hasher hashes and compares passwords. *password.Hasher implements it.
type Hasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
	CompareDummy(password string)
}

// Mailer delivers the verification and reset emails.
type Mailer interface {
	SendVerification(ctx context.Context, to, token string, kind models.Kind, resend bool) error
	SendPasswordReset(ctx context.Context, to, token string, kind models.Kind) error
}

// Config holds token lifetimes.
type Config struct {
	VerificationTTL time.Duration
	ResetTTL        time.Duration
	SessionTTL      time.Duration
}

// DefaultConfig returns the lifetimes used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		VerificationTTL: time.Hour,
		ResetTTL:        15 * time.Minute,
		SessionTTL:      24 * time.Hour,
	}
}

// Deps are the collaborators of the Service. Metrics and Now are optional.
type Deps struct {
	Store   Store
	Hasher  Hasher
	Tokens  *token.Service
	Mailer  Mailer
	Metrics metrics.Recorder
	Now     func() time.Time
}

type Service struct {
	store     Store
	hasher    Hasher
	tokens    *token.Service
	mailer    Mailer
	metrics   metrics.Recorder
	now       func() time.Time
	sanitizer *bluemonday.Policy
	cfg       Config
}

func NewService(deps Deps, cfg Config) (*Service, error) {
	if deps.Store == nil || deps.Hasher == nil || deps.Tokens == nil || deps.Mailer == nil {
		return nil, errors.New("auth: store, hasher, tokens and mailer are required")
	}
	if cfg.VerificationTTL <= 0 || cfg.ResetTTL <= 0 || cfg.SessionTTL <= 0 {
		return nil, errors.New("auth: token lifetimes must be positive")
	}

	s := &Service{
		store:     deps.Store,
		hasher:    deps.Hasher,
		tokens:    deps.Tokens,
		mailer:    deps.Mailer,
		metrics:   deps.Metrics,
		now:       deps.Now,
		sanitizer: bluemonday.StrictPolicy(),
		cfg:       cfg,
	}
	if s.metrics == nil {
		s.metrics = metrics.Nop{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Register creates an unverified stub account and mails a verification
// link. A dispatch failure leaves the stub in place; ReRegister recovers it.
func (s *Service) Register(ctx context.Context, kind models.Kind, email string) (acc *models.Account, err error) {
	defer s.record("register", &err)

	if !kind.Valid() {
		return nil, ErrInvalidRole
	}
	email, err = parseEmail(email)
	if err != nil {
		return nil, err
	}

	_, err = s.store.GetAccountByEmail(ctx, kind, email)
	if err == nil {
		slog.WarnContext(ctx, "register_failed", "email", email, "kind", kind, "reason", "already_registered")
		return nil, ErrAlreadyRegistered
	}
	if err = storeError("check existing account", err); !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	acc, err = s.store.CreateStubAccount(ctx, kind, email)
	if err != nil {
		if isDuplicate(err) {
			return nil, ErrAlreadyRegistered
		}
		return nil, storeError("create account", err)
	}

	if err = s.sendVerification(ctx, acc, false); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "register_success", "account_id", acc.ID, "email", email, "kind", kind)
	return acc, nil
}

// ReRegister mails a fresh verification link for an account that has not
// finished registration.
func (s *Service) ReRegister(ctx context.Context, role, email string) (err error) {
	defer s.record("re_register", &err)

	kind, err := parseRole(role)
	if err != nil {
		return err
	}

	acc, err := s.store.GetAccountByEmail(ctx, kind, models.NormalizeEmail(email))
	if err != nil {
		return storeError("get account", err)
	}
	if acc.HasPassword() {
		return ErrAlreadyCompleted
	}

	if err = s.sendVerification(ctx, acc, true); err != nil {
		return err
	}

	slog.InfoContext(ctx, "re_register_success", "account_id", acc.ID, "email", acc.Email, "kind", kind)
	return nil
}

func (s *Service) sendVerification(ctx context.Context, acc *models.Account, resend bool) error {
	tok, err := s.tokens.Issue(token.PurposeVerification, token.Claims{
		Email: acc.Email,
		Role:  acc.Kind.String(),
	}, s.cfg.VerificationTTL)
	if err != nil {
		return fmt.Errorf("failed to issue verification token: %w", err)
	}

	if err := s.mailer.SendVerification(ctx, acc.Email, tok, acc.Kind, resend); err != nil {
		slog.ErrorContext(ctx, "verification_dispatch_failed", "account_id", acc.ID, "email", acc.Email, "error", err)
		return fmt.Errorf("%w: %w", ErrDispatch, err)
	}
	return nil
}

// Verification is the outcome of VerifyEmail.
type Verification struct {
	Email string
	Kind  models.Kind
}

// VerifyEmail checks a verification token and marks the account verified.
// If role is non-empty it must name the kind the token was issued for.
// Presenting the same token again succeeds without changes.
func (s *Service) VerifyEmail(ctx context.Context, tokenString, role string) (v *Verification, err error) {
	defer s.record("verify_email", &err)

	claims, err := s.tokens.Verify(token.PurposeVerification, tokenString)
	if err != nil {
		slog.WarnContext(ctx, "verify_email_failed", "reason", err.Error())
		return nil, err
	}

	kind, err := parseRole(claims.Role)
	if err != nil {
		return nil, err
	}
	if role != "" {
		requested, err := parseRole(role)
		if err != nil {
			return nil, err
		}
		if requested != kind {
			return nil, ErrRoleMismatch
		}
	}

	acc, err := s.store.MarkAccountVerified(ctx, kind, claims.Email)
	if err != nil {
		return nil, storeError("mark account verified", err)
	}

	slog.InfoContext(ctx, "verify_email_success", "account_id", acc.ID, "email", acc.Email, "kind", kind)
	return &Verification{Email: acc.Email, Kind: kind}, nil
}

// CompleteRegistration stores username and password on a verified account.
// Completing again overwrites the profile.
func (s *Service) CompleteRegistration(ctx context.Context, kind models.Kind, email, username, pw string) (acc *models.Account, err error) {
	defer s.record("complete_registration", &err)

	if !kind.Valid() {
		return nil, ErrInvalidRole
	}
	email = models.NormalizeEmail(email)

	acc, err = s.store.GetAccountByEmail(ctx, kind, email)
	if err != nil {
		if err = storeError("get account", err); errors.Is(err, ErrNotFound) {
			return nil, ErrNotVerifiedOrMissing
		}
		return nil, err
	}
	if !acc.Verified {
		slog.WarnContext(ctx, "complete_registration_failed", "email", email, "kind", kind, "reason", "not_verified")
		return nil, ErrNotVerifiedOrMissing
	}

	username = strings.TrimSpace(s.sanitizer.Sanitize(username))
	if username == "" {
		return nil, ErrInvalidUsername
	}

	hash, err := s.hash(pw)
	if err != nil {
		return nil, err
	}

	if err = s.store.CompleteAccountProfile(ctx, acc.ID, acc.Version, username, hash); err != nil {
		return nil, storeError("complete account", err)
	}

	acc.Username = &username
	acc.PasswordHash = &hash
	acc.Version++

	slog.InfoContext(ctx, "complete_registration_success", "account_id", acc.ID, "email", email, "kind", kind)
	return acc, nil
}

func (s *Service) hash(pw string) (string, error) {
	start := time.Now()
	hash, err := s.hasher.Hash(pw)
	s.metrics.RecordPasswordHash(time.Since(start))
	return hash, err
}

func (s *Service) record(operation string, err *error) {
	s.metrics.RecordOperation(operation, metrics.Outcome(*err))
}

func parseRole(role string) (models.Kind, error) {
	kind, err := models.ParseKind(role)
	if err != nil {
		return "", ErrInvalidRole
	}
	return kind, nil
}

// parseEmail normalizes email and rejects anything that is not a bare address.
func parseEmail(email string) (string, error) {
	email = models.NormalizeEmail(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}
