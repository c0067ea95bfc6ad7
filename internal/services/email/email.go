// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/fabianindra/finalproject/internal/i18n"
	"github.com/fabianindra/finalproject/internal/metrics"
	"github.com/fabianindra/finalproject/internal/models"
)

// Template names used as metric labels.
const (
	TemplateVerification   = "verification"
	TemplateReverification = "reverification"
	TemplateReset          = "reset"
)

// Options configures the links and validity hints in outgoing mail.
type Options struct {
	BackendURL      string // verification links point here
	FrontendURL     string // reset and re-register links point here
	VerificationTTL time.Duration
	ResetTTL        time.Duration
	Metrics         metrics.Recorder
}

// Service composes account emails and hands them to a Sender.
type Service struct {
	sender  Sender
	opts    Options
	metrics metrics.Recorder
}

// NewService creates a new email service.
func NewService(sender Sender, opts Options) (*Service, error) {
	if sender == nil {
		return nil, fmt.Errorf("email sender is required")
	}
	if opts.BackendURL == "" {
		return nil, fmt.Errorf("backend URL is required")
	}
	if opts.FrontendURL == "" {
		return nil, fmt.Errorf("frontend URL is required")
	}

	opts.BackendURL = strings.TrimSuffix(opts.BackendURL, "/")
	opts.FrontendURL = strings.TrimSuffix(opts.FrontendURL, "/")

	rec := opts.Metrics
	if rec == nil {
		rec = metrics.Nop{}
	}

	return &Service{sender: sender, opts: opts, metrics: rec}, nil
}

// VerificationURL is the link that marks the account as verified.
func (s *Service) VerificationURL(token string, kind models.Kind) string {
	return fmt.Sprintf("%s/auth/verify-email?token=%s&role=%s",
		s.opts.BackendURL, url.QueryEscape(token), url.QueryEscape(kind.String()))
}

// ReRegisterURL is the page where an expired verification link can be renewed.
func (s *Service) ReRegisterURL(kind models.Kind) string {
	return fmt.Sprintf("%s/re-register?role=%s", s.opts.FrontendURL, url.QueryEscape(kind.String()))
}

// ResetURL is the frontend page that submits the new password.
func (s *Service) ResetURL(token string, kind models.Kind, to string) string {
	return fmt.Sprintf("%s/reset-password?token=%s&role=%s&email=%s",
		s.opts.FrontendURL, url.QueryEscape(token), url.QueryEscape(kind.String()), url.QueryEscape(to))
}

// SendVerification mails the verification link. resend selects the
// subject used for re-registration.
func (s *Service) SendVerification(ctx context.Context, to, token string, kind models.Kind, resend bool) error {
	template, subjectID := TemplateVerification, "email_verification_subject"
	if resend {
		template, subjectID = TemplateReverification, "email_reverification_subject"
	}

	subject := i18n.T(ctx, subjectID)
	body := i18n.TData(ctx, "email_verification_body", map[string]any{
		"Role":          kind.String(),
		"VerifyURL":     s.VerificationURL(token, kind),
		"ReRegisterURL": s.ReRegisterURL(kind),
		"TTL":           s.opts.VerificationTTL.String(),
	})

	return s.dispatch(ctx, template, to, subject, body)
}

// SendPasswordReset mails the single-use reset link.
func (s *Service) SendPasswordReset(ctx context.Context, to, token string, kind models.Kind) error {
	subject := i18n.T(ctx, "email_reset_subject")
	body := i18n.TData(ctx, "email_reset_body", map[string]any{
		"Role":     kind.String(),
		"ResetURL": s.ResetURL(token, kind, to),
		"TTL":      s.opts.ResetTTL.String(),
	})

	return s.dispatch(ctx, TemplateReset, to, subject, body)
}

func (s *Service) dispatch(ctx context.Context, template, to, subject, body string) error {
	err := s.sender.Send(ctx, to, subject, body)
	s.metrics.RecordMailDispatch(template, metrics.Outcome(err))
	if err != nil {
		slog.ErrorContext(ctx, "email_dispatch_failed", "template", template, "email", to, "error", err)
		return err
	}
	slog.DebugContext(ctx, "email_dispatched", "template", template, "email", to, "locale", i18n.GetLocale(ctx))
	return nil
}
