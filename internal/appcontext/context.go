// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package appcontext carries the authenticated principal through the
// request context.
package appcontext

import (
	"context"

	"github.com/fabianindra/finalproject/internal/services/session"
	"github.com/labstack/echo/v4"
)

type principalKey struct{}

// WithPrincipal returns ctx carrying p.
func WithPrincipal(ctx context.Context, p *session.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// GetPrincipal returns the authenticated principal, or nil if not authenticated.
func GetPrincipal(ctx context.Context) *session.Principal {
	if p, ok := ctx.Value(principalKey{}).(*session.Principal); ok {
		return p
	}
	return nil
}

// Principal reads the principal from an Echo request.
func Principal(c echo.Context) *session.Principal {
	return GetPrincipal(c.Request().Context())
}

// SetPrincipal stores p on the Echo request context.
func SetPrincipal(c echo.Context, p *session.Principal) {
	c.SetRequest(c.Request().WithContext(WithPrincipal(c.Request().Context(), p)))
}
