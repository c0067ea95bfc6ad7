// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/fabianindra/finalproject/internal/config"
	"github.com/wneessen/go-mail"
	"golang.org/x/oauth2"
)

// ErrDispatch wraps every failure to hand a message to the relay.
var ErrDispatch = errors.New("email dispatch failed")

// Sender delivers one plain-text message.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPSender sends through an SMTP relay using go-mail.
type SMTPSender struct {
	cfg    *config.SMTPConfig
	tokens oauth2.TokenSource // nil unless XOAUTH2 is configured
}

// NewSMTPSender validates cfg and prepares relay auth. With OAuth
// credentials the access token is fetched on first send and refreshed
// once it expires.
func NewSMTPSender(ctx context.Context, cfg *config.SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("SMTP host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("SMTP from address is required")
	}

	s := &SMTPSender{cfg: cfg}
	if cfg.UsesOAuth() {
		oc := &oauth2.Config{
			ClientID:     cfg.OAuthClientID,
			ClientSecret: cfg.OAuthClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: cfg.OAuthTokenURL},
		}
		s.tokens = oc.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.OAuthRefreshToken})
	}

	return s, nil
}

// Send implements Sender.
func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	msg, err := s.message(to, subject, body)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDispatch, err)
	}

	opts, err := s.clientOptions()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDispatch, err)
	}

	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("%w: creating mail client: %w", ErrDispatch, err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("%w: sending email: %w", ErrDispatch, err)
	}

	return nil
}

func (s *SMTPSender) message(to, subject, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()

	if s.cfg.FromName != "" {
		if err := msg.FromFormat(s.cfg.FromName, s.cfg.From); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	} else {
		if err := msg.From(s.cfg.From); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	}

	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("setting to address: %w", err)
	}

	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	return msg, nil
}

func (s *SMTPSender) clientOptions() ([]mail.Option, error) {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
	}

	// Use implicit TLS (SSL) for port 465, STARTTLS for others
	if s.cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
		if s.cfg.Port == 465 {
			opts = append(opts, mail.WithSSL())
		}
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	username := s.cfg.Username
	if username == "" {
		username = s.cfg.From
	}

	switch {
	case s.tokens != nil:
		tok, err := s.tokens.Token()
		if err != nil {
			return nil, fmt.Errorf("refreshing relay access token: %w", err)
		}
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthXOAUTH2),
			mail.WithUsername(username),
			mail.WithPassword(tok.AccessToken),
		)
	case s.cfg.Password != "":
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(username),
			mail.WithPassword(s.cfg.Password),
		)
	}

	return opts, nil
}
