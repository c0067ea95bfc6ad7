// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package session carries the signed session token between client and
// server, either as a bearer token or inside a securecookie-encoded cookie.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fabianindra/finalproject/internal/config"
	"github.com/fabianindra/finalproject/internal/models"
	"github.com/fabianindra/finalproject/internal/services/token"
	"github.com/gorilla/securecookie"
)

var ErrInvalidPrincipal = errors.New("session token does not name an account")

// Principal is the authenticated caller.
type Principal struct {
	ExpiresAt time.Time   `json:"expiresAt"`
	Email     string      `json:"email"`
	Kind      models.Kind `json:"role"`
	AccountID int64       `json:"id"`
}

// PrincipalFromClaims builds a Principal from verified session claims.
func PrincipalFromClaims(c *token.Claims) (*Principal, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return nil, ErrInvalidPrincipal
	}
	kind, err := models.ParseKind(c.Role)
	if err != nil {
		return nil, ErrInvalidPrincipal
	}
	if c.Email == "" {
		return nil, ErrInvalidPrincipal
	}
	return &Principal{
		AccountID: id,
		Kind:      kind,
		Email:     c.Email,
		ExpiresAt: c.ExpiresAtTime(),
	}, nil
}

// Matches reports whether the principal is the account {kind, email}.
func (p *Principal) Matches(kind models.Kind, email string) bool {
	return p != nil && p.Kind == kind && p.Email == models.NormalizeEmail(email)
}

// Manager encodes the session token into a cookie.
type Manager struct {
	codec      *securecookie.SecureCookie
	cookieName string
	secure     bool
}

// NewManager creates a cookie manager whose cookies are rejected after ttl.
// An empty hash key is replaced by a random one, which invalidates cookies
// on restart.
func NewManager(cfg *config.SessionConfig, ttl time.Duration) (*Manager, error) {
	if ttl < time.Second {
		return nil, fmt.Errorf("session ttl must be at least one second")
	}

	hashKey, err := decodeKey(cfg.HashKey, "hash")
	if err != nil {
		return nil, err
	}
	if hashKey == nil {
		hashKey = make([]byte, 32)
		if _, err := rand.Read(hashKey); err != nil {
			return nil, fmt.Errorf("failed to generate session hash key: %w", err)
		}
	}

	blockKey, err := decodeKey(cfg.BlockKey, "block")
	if err != nil {
		return nil, err
	}

	codec := securecookie.New(hashKey, blockKey)
	codec.MaxAge(int(ttl.Seconds()))

	return &Manager{
		codec:      codec,
		cookieName: cfg.CookieName,
		secure:     cfg.Secure,
	}, nil
}

func decodeKey(value, name string) ([]byte, error) {
	if value == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("invalid session %s key: %w", name, err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("invalid session %s key: must be 32 bytes, got %d", name, len(key))
	}
	return key, nil
}

// Create returns a cookie carrying the session token until expiresAt.
func (m *Manager) Create(sessionToken string, expiresAt time.Time) (*http.Cookie, error) {
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge <= 0 {
		return nil, fmt.Errorf("session already expired")
	}

	encoded, err := m.codec.Encode(m.cookieName, sessionToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}

	return &http.Cookie{
		Name:     m.cookieName,
		Value:    encoded,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}, nil
}

// Parse returns the session token from the cookie, or "" if there is no
// valid cookie.
func (m *Manager) Parse(r *http.Request) string {
	cookie, err := r.Cookie(m.cookieName)
	if err != nil {
		return ""
	}

	var sessionToken string
	if err := m.codec.Decode(m.cookieName, cookie.Value, &sessionToken); err != nil {
		return ""
	}
	return sessionToken
}

// Clear returns a cookie that deletes the session cookie.
func (m *Manager) Clear() *http.Cookie {
	return &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// TokenFromRequest prefers an Authorization bearer token over the cookie.
func (m *Manager) TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if scheme, value, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(value)
		}
	}
	return m.Parse(r)
}
