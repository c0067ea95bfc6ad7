// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package token_test

import (
	"strings"
	"testing"
	"time"

	"github.com/fabianindra/finalproject/internal/services/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func testKeys() map[token.Purpose][]byte {
	return map[token.Purpose][]byte{
		token.PurposeVerification: []byte("verification-secret"),
		token.PurposeReset:        []byte("reset-secret"),
		token.PurposeSession:      []byte("session-secret"),
	}
}

func newTestService(t *testing.T) (*token.Service, *clock) {
	t.Helper()
	clk := &clock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	svc, err := token.NewService(testKeys(), token.WithClock(clk.Now))
	require.NoError(t, err)
	return svc, clk
}

func TestNewService_RequiresKeys(t *testing.T) {
	_, err := token.NewService(nil)
	assert.Error(t, err)
}

func TestNewService_RejectsEmptyKey(t *testing.T) {
	keys := testKeys()
	keys[token.PurposeReset] = nil

	_, err := token.NewService(keys)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestNewService_RejectsSharedKey(t *testing.T) {
	keys := testKeys()
	keys[token.PurposeReset] = keys[token.PurposeVerification]

	_, err := token.NewService(keys)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "must differ")
}

func TestIssueAndVerify(t *testing.T) {
	svc, clk := newTestService(t)

	signed, err := svc.Issue(token.PurposeVerification, token.Claims{Email: "alice@x.com", Role: "tenant"}, time.Hour)
	require.NoError(t, err)

	claims, err := svc.Verify(token.PurposeVerification, signed)
	require.NoError(t, err)

	assert.Equal(t, "alice@x.com", claims.Email)
	assert.Equal(t, "tenant", claims.Role)
	assert.Equal(t, token.PurposeVerification, claims.Purpose)
	assert.NotEmpty(t, claims.ID)
	assert.Equal(t, clk.now.Add(time.Hour), claims.ExpiresAtTime())
}

func TestVerify_ExpiryBoundary(t *testing.T) {
	svc, clk := newTestService(t)
	issuedAt := clk.now

	signed, err := svc.Issue(token.PurposeVerification, token.Claims{Email: "alice@x.com"}, time.Hour)
	require.NoError(t, err)

	clk.now = issuedAt.Add(59 * time.Minute)
	_, err = svc.Verify(token.PurposeVerification, signed)
	require.NoError(t, err)

	clk.now = issuedAt.Add(61 * time.Minute)
	_, err = svc.Verify(token.PurposeVerification, signed)
	assert.ErrorIs(t, err, token.ErrExpiredToken)
}

func TestVerify_WrongPurposeSecret(t *testing.T) {
	svc, _ := newTestService(t)

	reset, err := svc.Issue(token.PurposeReset, token.Claims{Email: "alice@x.com", Role: "user"}, time.Hour)
	require.NoError(t, err)

	_, err = svc.Verify(token.PurposeVerification, reset)
	assert.ErrorIs(t, err, token.ErrInvalidSignature)

	verification, err := svc.Issue(token.PurposeVerification, token.Claims{Email: "alice@x.com"}, time.Hour)
	require.NoError(t, err)

	_, err = svc.Verify(token.PurposeReset, verification)
	assert.ErrorIs(t, err, token.ErrInvalidSignature)
}

func TestVerify_PurposeClaimChecked(t *testing.T) {
	// Two services sharing a secret under different purposes.
	signer, err := token.NewService(map[token.Purpose][]byte{token.PurposeReset: []byte("shared")})
	require.NoError(t, err)
	verifier, err := token.NewService(map[token.Purpose][]byte{token.PurposeVerification: []byte("shared")})
	require.NoError(t, err)

	signed, err := signer.Issue(token.PurposeReset, token.Claims{Email: "alice@x.com"}, time.Hour)
	require.NoError(t, err)

	_, err = verifier.Verify(token.PurposeVerification, signed)
	assert.ErrorIs(t, err, token.ErrPurposeMismatch)
}

func TestVerify_Tampered(t *testing.T) {
	svc, _ := newTestService(t)

	signed, err := svc.Issue(token.PurposeSession, token.Claims{Email: "alice@x.com"}, time.Hour)
	require.NoError(t, err)

	parts := strings.Split(signed, ".")
	require.Len(t, parts, 3)
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	_, err = svc.Verify(token.PurposeSession, tampered)
	assert.ErrorIs(t, err, token.ErrInvalidSignature)
}

func TestVerify_Malformed(t *testing.T) {
	svc, _ := newTestService(t)

	for _, raw := range []string{"", "not-a-token", "a.b", "a.b.c"} {
		_, err := svc.Verify(token.PurposeVerification, raw)
		assert.ErrorIs(t, err, token.ErrMalformedToken, raw)
	}
}

func TestIssue_UnknownPurpose(t *testing.T) {
	svc, err := token.NewService(map[token.Purpose][]byte{token.PurposeSession: []byte("k")})
	require.NoError(t, err)

	_, err = svc.Issue(token.PurposeReset, token.Claims{}, time.Hour)
	assert.ErrorIs(t, err, token.ErrUnknownPurpose)

	_, err = svc.Verify(token.PurposeReset, "x.y.z")
	assert.ErrorIs(t, err, token.ErrUnknownPurpose)
}

func TestIssue_InvalidTTL(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Issue(token.PurposeSession, token.Claims{}, 0)

	assert.Error(t, err)
}

func TestIssue_KeepsExplicitID(t *testing.T) {
	svc, _ := newTestService(t)

	claims := token.Claims{Email: "alice@x.com"}
	claims.ID = "fixed-id"
	signed, err := svc.Issue(token.PurposeReset, claims, time.Minute)
	require.NoError(t, err)

	parsed, err := svc.Verify(token.PurposeReset, signed)
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", parsed.ID)
}
