// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package token signs and verifies purpose-scoped HS256 JWTs.
package token

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Purpose binds a token to the flow that may accept it.
type Purpose string

const (
	PurposeVerification Purpose = "verification"
	PurposeReset        Purpose = "reset"
	PurposeSession      Purpose = "session"
)

var (
	ErrExpiredToken     = errors.New("token expired")
	ErrInvalidSignature = errors.New("token signature invalid")
	ErrMalformedToken   = errors.New("token malformed")
	ErrPurposeMismatch  = errors.New("token issued for a different purpose")
	ErrUnknownPurpose   = errors.New("no key configured for token purpose")
)

// Claims carried by every token. Role holds the account kind.
type Claims struct {
	Email   string  `json:"email"`
	Role    string  `json:"role,omitempty"`
	Purpose Purpose `json:"purpose"`
	jwt.RegisteredClaims
}

// Service issues and verifies tokens, one secret per purpose.
type Service struct {
	keys map[Purpose][]byte
	now  func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for issuing and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a token service. Every purpose needs its own non-empty
// secret; sharing one secret between purposes is rejected.
func NewService(keys map[Purpose][]byte, opts ...Option) (*Service, error) {
	if len(keys) == 0 {
		return nil, errors.New("at least one token key is required")
	}

	copied := make(map[Purpose][]byte, len(keys))
	for purpose, key := range keys {
		if len(key) == 0 {
			return nil, fmt.Errorf("token key for %q is empty", purpose)
		}
		for other, otherKey := range copied {
			if subtle.ConstantTimeCompare(key, otherKey) == 1 {
				return nil, fmt.Errorf("token keys for %q and %q must differ", purpose, other)
			}
		}
		copied[purpose] = append([]byte(nil), key...)
	}

	s := &Service{keys: copied, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue signs claims for the given purpose with expiry now + ttl.
// A token ID is generated when claims carry none.
func (s *Service) Issue(purpose Purpose, claims Claims, ttl time.Duration) (string, error) {
	key, ok := s.keys[purpose]
	if !ok {
		return "", ErrUnknownPurpose
	}
	if ttl <= 0 {
		return "", errors.New("token ttl must be positive")
	}

	now := s.now()
	claims.Purpose = purpose
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify parses a token, checks its signature against the purpose's secret,
// its expiry and its purpose claim.
func (s *Service) Verify(purpose Purpose, tokenString string) (*Claims, error) {
	key, ok := s.keys[purpose]
	if !ok {
		return nil, ErrUnknownPurpose
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) {
			return key, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, classify(err)
	}

	if claims.Purpose != purpose {
		return nil, ErrPurposeMismatch
	}
	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpiredToken
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, jwt.ErrSignatureInvalid):
		return ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformedToken
	default:
		return fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}
}

// ExpiresAtTime returns the expiry embedded in claims, or the zero time.
func (c *Claims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}
