// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/fabianindra/finalproject/internal/services/auth"
	"github.com/fabianindra/finalproject/internal/services/password"
	"github.com/fabianindra/finalproject/internal/services/token"
	"github.com/labstack/echo/v4"
)

// Response is the envelope of every JSON reply.
type Response struct {
	Data         any    `json:"data,omitempty"`
	Message      string `json:"message"`
	SessionToken string `json:"sessionToken,omitempty"`
	Status       int    `json:"status"`
	Success      bool   `json:"success"`
}

func respond(c echo.Context, status int, message string, data any) error {
	return c.JSON(status, Response{
		Status:  status,
		Success: status < http.StatusBadRequest,
		Message: message,
		Data:    data,
	})
}

// fail writes the error reply for err. Unmapped errors are logged and
// reported as a generic server error.
func fail(c echo.Context, err error) error {
	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(c.Request().Context(), "request_failed",
			"method", c.Request().Method,
			"path", c.Path(),
			"error", err,
		)
	}
	return respond(c, status, message, nil)
}

var errBadRequest = errors.New("invalid request body")

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "Invalid request body"
	case errors.Is(err, auth.ErrInvalidRole),
		errors.Is(err, auth.ErrRoleMismatch):
		return http.StatusBadRequest, "Invalid role"
	case errors.Is(err, auth.ErrInvalidEmail):
		return http.StatusBadRequest, "Invalid email address"
	case errors.Is(err, auth.ErrInvalidUsername):
		return http.StatusBadRequest, "Username is required"
	case errors.Is(err, auth.ErrNotVerifiedOrMissing):
		return http.StatusBadRequest, "Account is not verified or does not exist"
	case errors.Is(err, password.ErrTooLong):
		return http.StatusBadRequest, "Password must be at most 72 bytes"
	case errors.Is(err, auth.ErrAlreadyCompleted):
		return http.StatusBadRequest, "Registration already completed, please log in"
	case errors.Is(err, token.ErrMalformedToken):
		return http.StatusBadRequest, "Invalid or expired token"

	case errors.Is(err, auth.ErrAlreadyRegistered):
		return http.StatusUnauthorized, "Email already registered"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid email or password"
	case errors.Is(err, auth.ErrTokenUsed):
		return http.StatusUnauthorized, "Reset link has already been used"
	case errors.Is(err, auth.ErrClaimMismatch),
		errors.Is(err, token.ErrExpiredToken),
		errors.Is(err, token.ErrInvalidSignature),
		errors.Is(err, token.ErrPurposeMismatch):
		return http.StatusUnauthorized, "Invalid or expired token"

	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden, "Forbidden"
	case errors.Is(err, auth.ErrNotFound):
		return http.StatusNotFound, "Account not found"
	case errors.Is(err, auth.ErrEmailTaken):
		return http.StatusConflict, "Email already in use"
	case errors.Is(err, auth.ErrConflict):
		return http.StatusConflict, "Account was modified, please retry"
	}
	return http.StatusInternalServerError, "Server error"
}
