// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package middleware provides Echo middleware for session authentication.
package middleware

import (
	"log/slog"
	"net/http"

	"github.com/fabianindra/finalproject/internal/appcontext"
	"github.com/fabianindra/finalproject/internal/services/session"
	"github.com/fabianindra/finalproject/internal/services/token"
	"github.com/labstack/echo/v4"
)

// TokenVerifier checks session tokens. *token.Service implements it.
type TokenVerifier interface {
	Verify(purpose token.Purpose, tokenString string) (*token.Claims, error)
}

// LoadPrincipal reads the session token from the Authorization header or
// the session cookie and, if it verifies, stores the principal in the
// request context. Requests without a valid session pass through.
func LoadPrincipal(tokens TokenVerifier, sessions *session.Manager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := sessions.TokenFromRequest(c.Request())
			if raw == "" {
				return next(c)
			}

			claims, err := tokens.Verify(token.PurposeSession, raw)
			if err != nil {
				slog.DebugContext(c.Request().Context(), "session_rejected", "reason", err.Error())
				return next(c)
			}

			p, err := session.PrincipalFromClaims(claims)
			if err != nil {
				slog.WarnContext(c.Request().Context(), "session_rejected", "reason", err.Error())
				return next(c)
			}

			appcontext.SetPrincipal(c, p)
			return next(c)
		}
	}
}

// RequireAuth rejects requests without an authenticated principal.
func RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if appcontext.Principal(c) == nil {
			return c.JSON(http.StatusUnauthorized, map[string]any{
				"status":  http.StatusUnauthorized,
				"success": false,
				"message": "Authentication required",
			})
		}
		return next(c)
	}
}
