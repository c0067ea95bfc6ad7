// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package testutil provides test helpers and fixtures.
package testutil

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fabianindra/finalproject/internal/database"
	"github.com/fabianindra/finalproject/internal/models"
	"github.com/fabianindra/finalproject/internal/repository"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"github.com/vinovest/sqlx"
	"golang.org/x/crypto/bcrypt"
)

// NewTestDB creates an in-memory SQLite database for tests.
// Returns both the database connection and the repository for convenience.
func NewTestDB(t *testing.T) (*sqlx.DB, *repository.Repository) {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	repo := repository.New(db)
	return db, repo
}

// NewTestStub creates an unverified stub account.
func NewTestStub(t *testing.T, repo *repository.Repository, kind models.Kind, email string) *models.Account {
	t.Helper()
	acc, err := repo.CreateStubAccount(context.Background(), kind, email)
	require.NoError(t, err)
	return acc
}

// NewTestVerified creates a verified account without a password.
func NewTestVerified(t *testing.T, repo *repository.Repository, kind models.Kind, email string) *models.Account {
	t.Helper()
	NewTestStub(t, repo, kind, email)
	acc, err := repo.MarkAccountVerified(context.Background(), kind, email)
	require.NoError(t, err)
	return acc
}

// NewTestAccount creates a verified, completed account with the given password.
// Uses the minimum bcrypt cost to keep tests fast.
func NewTestAccount(t *testing.T, repo *repository.Repository, kind models.Kind, email, username, password string) *models.Account {
	t.Helper()
	ctx := context.Background()
	acc := NewTestVerified(t, repo, kind, email)

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, repo.CompleteAccountProfile(ctx, acc.ID, acc.Version, username, string(hash)))

	acc, err = repo.GetAccountByID(ctx, kind, acc.ID)
	require.NoError(t, err)
	return acc
}

// NewEchoContext creates an Echo context for handler tests.
func NewEchoContext(e *echo.Echo, method, path string, body io.Reader) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, rec
}

// NewEchoContextWithHeaders creates an Echo context with custom headers.
func NewEchoContextWithHeaders(e *echo.Echo, method, path string, body io.Reader, headers map[string]string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, body)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, rec
}

// NewRequest creates an HTTP request for testing.
func NewRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}
