// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fabianindra/finalproject/internal/models"
	"github.com/fabianindra/finalproject/internal/repository"
	"github.com/fabianindra/finalproject/internal/services/auth"
	"github.com/fabianindra/finalproject/internal/services/password"
	"github.com/fabianindra/finalproject/internal/services/token"
	"github.com/fabianindra/finalproject/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vinovest/sqlx"
	"golang.org/x/crypto/bcrypt"
)

type mailed struct {
	to     string
	token  string
	kind   models.Kind
	resend bool
}

type fakeMailer struct {
	mu            sync.Mutex
	verifications []mailed
	resets        []mailed
	err           error
}

func (m *fakeMailer) SendVerification(_ context.Context, to, tok string, kind models.Kind, resend bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.verifications = append(m.verifications, mailed{to, tok, kind, resend})
	return nil
}

func (m *fakeMailer) SendPasswordReset(_ context.Context, to, tok string, kind models.Kind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.resets = append(m.resets, mailed{to: to, token: tok, kind: kind})
	return nil
}

func (m *fakeMailer) lastVerification(t *testing.T) mailed {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.verifications)
	return m.verifications[len(m.verifications)-1]
}

func (m *fakeMailer) lastReset(t *testing.T) mailed {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.resets)
	return m.resets[len(m.resets)-1]
}

// countingHasher counts bcrypt comparisons, dummy ones included.
type countingHasher struct {
	inner    *password.Hasher
	mu       sync.Mutex
	compares int
}

func (h *countingHasher) Hash(pw string) (string, error) { return h.inner.Hash(pw) }

func (h *countingHasher) Compare(hash, pw string) error {
	h.mu.Lock()
	h.compares++
	h.mu.Unlock()
	return h.inner.Compare(hash, pw)
}

func (h *countingHasher) CompareDummy(pw string) {
	h.mu.Lock()
	h.compares++
	h.mu.Unlock()
	h.inner.CompareDummy(pw)
}

func (h *countingHasher) reset() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := h.compares
	h.compares = 0
	return n
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type env struct {
	svc    *auth.Service
	db     *sqlx.DB
	repo   *repository.Repository
	mailer *fakeMailer
	hasher *countingHasher
	tokens *token.Service
	clock  *clock
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, repo := testutil.NewTestDB(t)
	return newEnvWithStore(t, db, repo, repo)
}

func newEnvWithStore(t *testing.T, db *sqlx.DB, repo *repository.Repository, store auth.Store) *env {
	t.Helper()
	clk := &clock{t: time.Now()}
	tokens, err := token.NewService(map[token.Purpose][]byte{
		token.PurposeVerification: []byte("verification-secret"),
		token.PurposeReset:        []byte("reset-secret"),
		token.PurposeSession:      []byte("session-secret"),
	}, token.WithClock(clk.Now))
	require.NoError(t, err)

	mailer := &fakeMailer{}
	hasher := &countingHasher{inner: password.NewHasher(bcrypt.MinCost)}

	svc, err := auth.NewService(auth.Deps{
		Store:  store,
		Hasher: hasher,
		Tokens: tokens,
		Mailer: mailer,
		Now:    clk.Now,
	}, auth.DefaultConfig())
	require.NoError(t, err)

	return &env{svc: svc, db: db, repo: repo, mailer: mailer, hasher: hasher, tokens: tokens, clock: clk}
}

// usedResetTokens counts the consumed-token markers stored for tokenID.
func (e *env) usedResetTokens(t *testing.T, tokenID string) int {
	t.Helper()
	var n int
	require.NoError(t, e.db.Get(&n, `SELECT COUNT(*) FROM used_reset_tokens WHERE token_id = ?`, tokenID))
	return n
}

// completed walks an account through register, verify and completion.
func (e *env) completed(t *testing.T, kind models.Kind, email, username, pw string) *models.Account {
	t.Helper()
	ctx := context.Background()
	_, err := e.svc.Register(ctx, kind, email)
	require.NoError(t, err)
	_, err = e.svc.VerifyEmail(ctx, e.mailer.lastVerification(t).token, kind.String())
	require.NoError(t, err)
	acc, err := e.svc.CompleteRegistration(ctx, kind, email, username, pw)
	require.NoError(t, err)
	return acc
}

func TestNewService_Validation(t *testing.T) {
	_, err := auth.NewService(auth.Deps{}, auth.DefaultConfig())
	require.Error(t, err)

	e := newEnv(t)
	_, err = auth.NewService(auth.Deps{
		Store:  e.repo,
		Hasher: e.hasher,
		Tokens: e.tokens,
		Mailer: e.mailer,
	}, auth.Config{})
	require.Error(t, err)
}

func TestRegister_CreatesStubAndSendsOneEmail(t *testing.T) {
	ctx := context.Background()
	for _, kind := range []models.Kind{models.KindUser, models.KindTenant} {
		t.Run(kind.String(), func(t *testing.T) {
			e := newEnv(t)

			acc, err := e.svc.Register(ctx, kind, "bob@x.com")

			require.NoError(t, err)
			assert.False(t, acc.Verified)
			assert.Nil(t, acc.PasswordHash)
			assert.Nil(t, acc.Username)
			assert.Equal(t, kind, acc.Kind)

			require.Len(t, e.mailer.verifications, 1)
			sent := e.mailer.verifications[0]
			assert.Equal(t, "bob@x.com", sent.to)
			assert.Equal(t, kind, sent.kind)
			assert.False(t, sent.resend)

			claims, err := e.tokens.Verify(token.PurposeVerification, sent.token)
			require.NoError(t, err)
			assert.Equal(t, "bob@x.com", claims.Email)
			assert.Equal(t, kind.String(), claims.Role)
		})
	}
}

func TestRegister_NormalizesEmail(t *testing.T) {
	e := newEnv(t)

	acc, err := e.svc.Register(context.Background(), models.KindUser, "  Bob@X.com ")

	require.NoError(t, err)
	assert.Equal(t, "bob@x.com", acc.Email)
}

func TestRegister_InvalidEmail(t *testing.T) {
	e := newEnv(t)

	for _, email := range []string{"", "not-an-email", "Bob <bob@x.com>"} {
		_, err := e.svc.Register(context.Background(), models.KindUser, email)
		assert.ErrorIs(t, err, auth.ErrInvalidEmail, email)
	}
	assert.Empty(t, e.mailer.verifications)
}

func TestRegister_InvalidKind(t *testing.T) {
	e := newEnv(t)

	_, err := e.svc.Register(context.Background(), models.Kind("admin"), "bob@x.com")

	assert.ErrorIs(t, err, auth.ErrInvalidRole)
}

func TestRegister_Twice(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	first, err := e.svc.Register(ctx, models.KindUser, "bob@x.com")
	require.NoError(t, err)

	_, err = e.svc.Register(ctx, models.KindUser, "BOB@x.com")

	require.ErrorIs(t, err, auth.ErrAlreadyRegistered)
	assert.Len(t, e.mailer.verifications, 1)

	again, err := e.repo.GetAccountByEmail(ctx, models.KindUser, "bob@x.com")
	require.NoError(t, err)
	assert.Equal(t, first, again)

	var count int
	require.NoError(t, e.db.Get(&count, `SELECT COUNT(*) FROM accounts WHERE kind = ?`, models.KindUser))
	assert.Equal(t, 1, count)
}

func TestRegister_SameEmailOtherKind(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	_, err := e.svc.Register(ctx, models.KindUser, "bob@x.com")
	require.NoError(t, err)
	_, err = e.svc.Register(ctx, models.KindTenant, "bob@x.com")

	require.NoError(t, err)
}

func TestRegister_DispatchFailureKeepsStub(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.mailer.err = errors.New("relay down")

	_, err := e.svc.Register(ctx, models.KindTenant, "bob@x.com")

	require.ErrorIs(t, err, auth.ErrDispatch)
	acc, err := e.repo.GetAccountByEmail(ctx, models.KindTenant, "bob@x.com")
	require.NoError(t, err)
	assert.False(t, acc.HasPassword())

	// recovery goes through ReRegister
	e.mailer.err = nil
	require.NoError(t, e.svc.ReRegister(ctx, "tenant", "bob@x.com"))
	assert.True(t, e.mailer.lastVerification(t).resend)
}

func TestReRegister(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	_, err := e.svc.Register(ctx, models.KindUser, "bob@x.com")
	require.NoError(t, err)

	t.Run("resends", func(t *testing.T) {
		require.NoError(t, e.svc.ReRegister(ctx, "user", "bob@x.com"))
		sent := e.mailer.lastVerification(t)
		assert.True(t, sent.resend)
		assert.Len(t, e.mailer.verifications, 2)
	})

	t.Run("invalid role", func(t *testing.T) {
		assert.ErrorIs(t, e.svc.ReRegister(ctx, "landlord", "bob@x.com"), auth.ErrInvalidRole)
	})

	t.Run("not found", func(t *testing.T) {
		assert.ErrorIs(t, e.svc.ReRegister(ctx, "tenant", "bob@x.com"), auth.ErrNotFound)
	})

	t.Run("dispatch failure", func(t *testing.T) {
		e.mailer.err = errors.New("relay down")
		defer func() { e.mailer.err = nil }()
		assert.ErrorIs(t, e.svc.ReRegister(ctx, "user", "bob@x.com"), auth.ErrDispatch)
	})
}

func TestReRegister_AlreadyCompleted(t *testing.T) {
	e := newEnv(t)
	e.completed(t, models.KindUser, "bob@x.com", "bob", "Secret1")

	err := e.svc.ReRegister(context.Background(), "user", "bob@x.com")

	assert.ErrorIs(t, err, auth.ErrAlreadyCompleted)
}

func TestVerifyEmail_ExpiryBoundary(t *testing.T) {
	ctx := context.Background()

	t.Run("59 minutes", func(t *testing.T) {
		e := newEnv(t)
		_, err := e.svc.Register(ctx, models.KindTenant, "a@x.com")
		require.NoError(t, err)

		e.clock.Advance(59 * time.Minute)
		v, err := e.svc.VerifyEmail(ctx, e.mailer.lastVerification(t).token, "tenant")

		require.NoError(t, err)
		assert.Equal(t, "a@x.com", v.Email)
		assert.Equal(t, models.KindTenant, v.Kind)
	})

	t.Run("61 minutes", func(t *testing.T) {
		e := newEnv(t)
		_, err := e.svc.Register(ctx, models.KindTenant, "a@x.com")
		require.NoError(t, err)

		e.clock.Advance(61 * time.Minute)
		_, err = e.svc.VerifyEmail(ctx, e.mailer.lastVerification(t).token, "tenant")

		require.ErrorIs(t, err, token.ErrExpiredToken)
		acc, err := e.repo.GetAccountByEmail(ctx, models.KindTenant, "a@x.com")
		require.NoError(t, err)
		assert.False(t, acc.Verified)
	})
}

func TestVerifyEmail_Idempotent(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	_, err := e.svc.Register(ctx, models.KindUser, "a@x.com")
	require.NoError(t, err)
	tok := e.mailer.lastVerification(t).token

	_, err = e.svc.VerifyEmail(ctx, tok, "")
	require.NoError(t, err)
	first, err := e.repo.GetAccountByEmail(ctx, models.KindUser, "a@x.com")
	require.NoError(t, err)

	_, err = e.svc.VerifyEmail(ctx, tok, "user")
	require.NoError(t, err)
	second, err := e.repo.GetAccountByEmail(ctx, models.KindUser, "a@x.com")
	require.NoError(t, err)

	assert.True(t, second.Verified)
	assert.Equal(t, first.Version, second.Version)
}

func TestVerifyEmail_Failures(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	_, err := e.svc.Register(ctx, models.KindUser, "a@x.com")
	require.NoError(t, err)
	tok := e.mailer.lastVerification(t).token

	t.Run("unknown role", func(t *testing.T) {
		_, err := e.svc.VerifyEmail(ctx, tok, "admin")
		assert.ErrorIs(t, err, auth.ErrInvalidRole)
	})

	t.Run("role mismatch", func(t *testing.T) {
		_, err := e.svc.VerifyEmail(ctx, tok, "tenant")
		assert.ErrorIs(t, err, auth.ErrRoleMismatch)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := e.svc.VerifyEmail(ctx, "garbage", "user")
		assert.ErrorIs(t, err, token.ErrMalformedToken)
	})

	t.Run("no account", func(t *testing.T) {
		orphan, err := e.tokens.Issue(token.PurposeVerification, token.Claims{Email: "ghost@x.com", Role: "user"}, time.Hour)
		require.NoError(t, err)
		_, err = e.svc.VerifyEmail(ctx, orphan, "user")
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("reset token rejected", func(t *testing.T) {
		resetTok, err := e.tokens.Issue(token.PurposeReset, token.Claims{Email: "a@x.com", Role: "user"}, time.Hour)
		require.NoError(t, err)
		_, err = e.svc.VerifyEmail(ctx, resetTok, "user")
		assert.ErrorIs(t, err, token.ErrInvalidSignature)
	})
}

func TestCompleteRegistration(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	_, err := e.svc.Register(ctx, models.KindTenant, "a@x.com")
	require.NoError(t, err)

	_, err = e.svc.CompleteRegistration(ctx, models.KindTenant, "a@x.com", "alice", "Secret1")
	require.ErrorIs(t, err, auth.ErrNotVerifiedOrMissing, "before verification")

	_, err = e.svc.CompleteRegistration(ctx, models.KindTenant, "ghost@x.com", "ghost", "Secret1")
	require.ErrorIs(t, err, auth.ErrNotVerifiedOrMissing, "missing account")

	_, err = e.svc.VerifyEmail(ctx, e.mailer.lastVerification(t).token, "tenant")
	require.NoError(t, err)

	acc, err := e.svc.CompleteRegistration(ctx, models.KindTenant, "A@x.com", "alice", "Secret1")
	require.NoError(t, err)
	require.NotNil(t, acc.PasswordHash)
	assert.NotEmpty(t, *acc.PasswordHash)
	require.NotNil(t, acc.Username)
	assert.Equal(t, "alice", *acc.Username)

	stored, err := e.repo.GetAccountByEmail(ctx, models.KindTenant, "a@x.com")
	require.NoError(t, err)
	require.NotNil(t, stored.PasswordHash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(*stored.PasswordHash), []byte("Secret1")))
	assert.Equal(t, acc.Version, stored.Version)
}

func TestCompleteRegistration_SanitizesUsername(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	_, err := e.svc.Register(ctx, models.KindUser, "a@x.com")
	require.NoError(t, err)
	_, err = e.svc.VerifyEmail(ctx, e.mailer.lastVerification(t).token, "user")
	require.NoError(t, err)

	acc, err := e.svc.CompleteRegistration(ctx, models.KindUser, "a@x.com", "<b>alice</b>", "Secret1")
	require.NoError(t, err)
	assert.Equal(t, "alice", *acc.Username)

	_, err = e.svc.CompleteRegistration(ctx, models.KindUser, "a@x.com", "<script>x</script>  ", "Secret1")
	assert.ErrorIs(t, err, auth.ErrInvalidUsername)
}

func TestCompleteRegistration_Again(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.completed(t, models.KindUser, "a@x.com", "alice", "Secret1")

	_, err := e.svc.CompleteRegistration(ctx, models.KindUser, "a@x.com", "alice2", "Secret2")
	require.NoError(t, err)

	_, err = e.svc.Login(ctx, models.KindUser, "a@x.com", "Secret2")
	require.NoError(t, err)
}

// staleStore bumps the account's version right after it is read, so the
// next compare-and-swap write loses.
type staleStore struct {
	*repository.Repository
	db    *sqlx.DB
	armed bool
}

func (s *staleStore) GetAccountByEmail(ctx context.Context, kind models.Kind, email string) (*models.Account, error) {
	acc, err := s.Repository.GetAccountByEmail(ctx, kind, email)
	if err == nil && s.armed {
		s.armed = false
		if _, err := s.db.ExecContext(ctx,
			`UPDATE accounts SET version = version + 1 WHERE id = ?`, acc.ID); err != nil {
			return nil, err
		}
	}
	return acc, err
}

func TestCompleteRegistration_Conflict(t *testing.T) {
	ctx := context.Background()
	db, repo := testutil.NewTestDB(t)
	store := &staleStore{Repository: repo, db: db}
	e := newEnvWithStore(t, db, repo, store)

	_, err := e.svc.Register(ctx, models.KindUser, "a@x.com")
	require.NoError(t, err)
	_, err = e.svc.VerifyEmail(ctx, e.mailer.lastVerification(t).token, "user")
	require.NoError(t, err)

	store.armed = true
	_, err = e.svc.CompleteRegistration(ctx, models.KindUser, "a@x.com", "alice", "Secret1")

	require.ErrorIs(t, err, auth.ErrConflict)
	acc, err := repo.GetAccountByEmail(ctx, models.KindUser, "a@x.com")
	require.NoError(t, err)
	assert.False(t, acc.HasPassword())
}

func TestLogin_Success(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	acc := e.completed(t, models.KindUser, "a@x.com", "alice", "Secret1")
	e.hasher.reset()

	sess, err := e.svc.Login(ctx, models.KindUser, "A@X.com", "Secret1")

	require.NoError(t, err)
	assert.Equal(t, 1, e.hasher.reset())
	assert.Equal(t, acc.ID, sess.Account.ID)
	assert.Equal(t, e.clock.Now().Add(24*time.Hour), sess.ExpiresAt)

	claims, err := e.tokens.Verify(token.PurposeSession, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", claims.Email)
	assert.Equal(t, "user", claims.Role)
	assert.NotEmpty(t, claims.Subject)
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.completed(t, models.KindUser, "done@x.com", "done", "Secret1")
	testutil.NewTestStub(t, e.repo, models.KindUser, "stub@x.com")
	testutil.NewTestVerified(t, e.repo, models.KindUser, "verified@x.com")

	tests := []struct {
		name     string
		kind     models.Kind
		email    string
		password string
	}{
		{"no such email", models.KindUser, "ghost@x.com", "Secret1"},
		{"wrong password", models.KindUser, "done@x.com", "wrong"},
		{"unverified stub", models.KindUser, "stub@x.com", "Secret1"},
		{"verified without password", models.KindUser, "verified@x.com", "Secret1"},
		{"other kind", models.KindTenant, "done@x.com", "Secret1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e.hasher.reset()

			sess, err := e.svc.Login(ctx, tt.kind, tt.email, tt.password)

			assert.Nil(t, sess)
			assert.Equal(t, auth.ErrInvalidCredentials, err)
			assert.Equal(t, "invalid credentials", err.Error())
			assert.Equal(t, 1, e.hasher.reset(), "exactly one comparison")
		})
	}
}

func TestScenario_TenantLifecycle(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	_, err := e.svc.Register(ctx, models.KindTenant, "alice@x.com")
	require.NoError(t, err)
	require.Len(t, e.mailer.verifications, 1)

	v, err := e.svc.VerifyEmail(ctx, e.mailer.lastVerification(t).token, "tenant")
	require.NoError(t, err)
	assert.Equal(t, models.KindTenant, v.Kind)

	acc, err := e.repo.GetAccountByEmail(ctx, models.KindTenant, "alice@x.com")
	require.NoError(t, err)
	assert.True(t, acc.Verified)

	_, err = e.svc.CompleteRegistration(ctx, models.KindTenant, "alice@x.com", "alice", "Secret1")
	require.NoError(t, err)

	sess, err := e.svc.Login(ctx, models.KindTenant, "alice@x.com", "Secret1")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)

	_, err = e.svc.Login(ctx, models.KindTenant, "alice@x.com", "wrong")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestSendResetPasswordEmail(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.completed(t, models.KindUser, "a@x.com", "alice", "Secret1")

	t.Run("unknown email", func(t *testing.T) {
		assert.ErrorIs(t, e.svc.SendResetPasswordEmail(ctx, "user", "ghost@x.com"), auth.ErrNotFound)
	})

	t.Run("unverified account", func(t *testing.T) {
		testutil.NewTestStub(t, e.repo, models.KindUser, "stub@x.com")
		assert.ErrorIs(t, e.svc.SendResetPasswordEmail(ctx, "user", "stub@x.com"), auth.ErrNotFound)
	})

	t.Run("invalid role", func(t *testing.T) {
		assert.ErrorIs(t, e.svc.SendResetPasswordEmail(ctx, "", "a@x.com"), auth.ErrInvalidRole)
	})

	t.Run("known email", func(t *testing.T) {
		require.NoError(t, e.svc.SendResetPasswordEmail(ctx, "user", "a@x.com"))

		sent := e.mailer.lastReset(t)
		assert.Equal(t, "a@x.com", sent.to)

		claims, err := e.tokens.Verify(token.PurposeReset, sent.token)
		require.NoError(t, err)
		assert.Equal(t, token.PurposeReset, claims.Purpose)
		assert.NotEmpty(t, claims.ID)

		_, err = e.tokens.Verify(token.PurposeVerification, sent.token)
		assert.Error(t, err)

		verifyTok := e.mailer.lastVerification(t).token
		vclaims, err := e.tokens.Verify(token.PurposeVerification, verifyTok)
		require.NoError(t, err)
		assert.NotEqual(t, vclaims.Purpose, claims.Purpose)
	})

	t.Run("dispatch failure", func(t *testing.T) {
		e.mailer.err = errors.New("relay down")
		defer func() { e.mailer.err = nil }()
		assert.ErrorIs(t, e.svc.SendResetPasswordEmail(ctx, "user", "a@x.com"), auth.ErrDispatch)
	})
}

func TestResetPassword(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.completed(t, models.KindUser, "a@x.com", "alice", "Secret1")
	require.NoError(t, e.svc.SendResetPasswordEmail(ctx, "user", "a@x.com"))
	tok := e.mailer.lastReset(t).token

	require.NoError(t, e.svc.ResetPassword(ctx, "user", "a@x.com", tok, "NewSecret"))

	_, err := e.svc.Login(ctx, models.KindUser, "a@x.com", "Secret1")
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
	_, err = e.svc.Login(ctx, models.KindUser, "a@x.com", "NewSecret")
	require.NoError(t, err)

	claims, err := e.tokens.Verify(token.PurposeReset, tok)
	require.NoError(t, err)
	assert.Equal(t, 1, e.usedResetTokens(t, claims.ID))
}

func TestResetPassword_SingleUse(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.completed(t, models.KindUser, "a@x.com", "alice", "Secret1")
	require.NoError(t, e.svc.SendResetPasswordEmail(ctx, "user", "a@x.com"))
	tok := e.mailer.lastReset(t).token
	require.NoError(t, e.svc.ResetPassword(ctx, "user", "a@x.com", tok, "NewSecret"))

	err := e.svc.ResetPassword(ctx, "user", "a@x.com", tok, "Hijack")

	require.ErrorIs(t, err, auth.ErrTokenUsed)
	_, err = e.svc.Login(ctx, models.KindUser, "a@x.com", "NewSecret")
	require.NoError(t, err)
}

func TestResetPassword_Failures(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.completed(t, models.KindUser, "a@x.com", "alice", "Secret1")
	e.completed(t, models.KindUser, "b@x.com", "bob", "Secret1")
	require.NoError(t, e.svc.SendResetPasswordEmail(ctx, "user", "a@x.com"))
	tok := e.mailer.lastReset(t).token

	t.Run("other email", func(t *testing.T) {
		err := e.svc.ResetPassword(ctx, "user", "b@x.com", tok, "x")
		assert.ErrorIs(t, err, auth.ErrClaimMismatch)
	})

	t.Run("other role", func(t *testing.T) {
		err := e.svc.ResetPassword(ctx, "tenant", "a@x.com", tok, "x")
		assert.ErrorIs(t, err, auth.ErrClaimMismatch)
	})

	t.Run("invalid role", func(t *testing.T) {
		err := e.svc.ResetPassword(ctx, "owner", "a@x.com", tok, "x")
		assert.ErrorIs(t, err, auth.ErrInvalidRole)
	})

	t.Run("malformed", func(t *testing.T) {
		err := e.svc.ResetPassword(ctx, "user", "a@x.com", "not.a.token", "x")
		assert.ErrorIs(t, err, token.ErrMalformedToken)
	})

	t.Run("verification token", func(t *testing.T) {
		err := e.svc.ResetPassword(ctx, "user", "a@x.com", e.mailer.lastVerification(t).token, "x")
		assert.ErrorIs(t, err, token.ErrInvalidSignature)
	})

	t.Run("expired", func(t *testing.T) {
		e.clock.Advance(16 * time.Minute)
		err := e.svc.ResetPassword(ctx, "user", "a@x.com", tok, "x")
		assert.ErrorIs(t, err, token.ErrExpiredToken)
	})

	_, err := e.svc.Login(ctx, models.KindUser, "a@x.com", "Secret1")
	require.NoError(t, err, "password unchanged")
}

func TestResetPassword_PurgesExpiredMarkers(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.completed(t, models.KindUser, "a@x.com", "alice", "Secret1")

	require.NoError(t, e.svc.SendResetPasswordEmail(ctx, "user", "a@x.com"))
	first := e.mailer.lastReset(t).token
	require.NoError(t, e.svc.ResetPassword(ctx, "user", "a@x.com", first, "One"))
	firstClaims, err := e.tokens.Verify(token.PurposeReset, first)
	require.NoError(t, err)

	e.clock.Advance(20 * time.Minute)
	require.NoError(t, e.svc.SendResetPasswordEmail(ctx, "user", "a@x.com"))
	require.NoError(t, e.svc.ResetPassword(ctx, "user", "a@x.com", e.mailer.lastReset(t).token, "Two"))

	assert.Zero(t, e.usedResetTokens(t, firstClaims.ID))
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.completed(t, models.KindTenant, "a@x.com", "alice", "Secret1")

	e.hasher.reset()
	err := e.svc.ChangePassword(ctx, models.KindTenant, "a@x.com", "wrong", "Secret2")
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
	assert.Equal(t, 1, e.hasher.reset())

	err = e.svc.ChangePassword(ctx, models.KindTenant, "ghost@x.com", "Secret1", "Secret2")
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)

	require.NoError(t, e.svc.ChangePassword(ctx, models.KindTenant, "a@x.com", "Secret1", "Secret2"))

	_, err = e.svc.Login(ctx, models.KindTenant, "a@x.com", "Secret2")
	require.NoError(t, err)
}

func TestResetEmail(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.completed(t, models.KindUser, "a@x.com", "alice", "Secret1")
	e.completed(t, models.KindUser, "b@x.com", "bob", "Secret1")

	t.Run("taken", func(t *testing.T) {
		_, err := e.svc.ResetEmail(ctx, "user", "a@x.com", "B@x.com")
		assert.ErrorIs(t, err, auth.ErrEmailTaken)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := e.svc.ResetEmail(ctx, "user", "a@x.com", "nope")
		assert.ErrorIs(t, err, auth.ErrInvalidEmail)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := e.svc.ResetEmail(ctx, "user", "ghost@x.com", "new@x.com")
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("invalid role", func(t *testing.T) {
		_, err := e.svc.ResetEmail(ctx, "guest", "a@x.com", "new@x.com")
		assert.ErrorIs(t, err, auth.ErrInvalidRole)
	})

	t.Run("unchanged", func(t *testing.T) {
		acc, err := e.svc.ResetEmail(ctx, "user", "a@x.com", "a@x.com")
		require.NoError(t, err)
		assert.Equal(t, "a@x.com", acc.Email)
	})

	t.Run("moves account", func(t *testing.T) {
		acc, err := e.svc.ResetEmail(ctx, "user", "a@x.com", "new@x.com")
		require.NoError(t, err)
		assert.Equal(t, "new@x.com", acc.Email)

		_, err = e.svc.Login(ctx, models.KindUser, "new@x.com", "Secret1")
		require.NoError(t, err)
		_, err = e.svc.Login(ctx, models.KindUser, "a@x.com", "Secret1")
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})
}

func TestPasswordTooLong(t *testing.T) {
	ctx := context.Background()
	long := strings.Repeat("p", 73)
	e := newEnv(t)
	e.completed(t, models.KindUser, "a@x.com", "alice", "Secret1")

	_, err := e.svc.CompleteRegistration(ctx, models.KindUser, "a@x.com", "alice", long)
	require.ErrorIs(t, err, password.ErrTooLong)

	err = e.svc.ChangePassword(ctx, models.KindUser, "a@x.com", "Secret1", long)
	require.ErrorIs(t, err, password.ErrTooLong)

	require.NoError(t, e.svc.SendResetPasswordEmail(ctx, "user", "a@x.com"))
	tok := e.mailer.lastReset(t).token
	err = e.svc.ResetPassword(ctx, "user", "a@x.com", tok, long)
	require.ErrorIs(t, err, password.ErrTooLong)

	// the rejected reset does not consume the token
	require.NoError(t, e.svc.ResetPassword(ctx, "user", "a@x.com", tok, "Secret2"))
}

func TestAuthorizeAccount(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	first := e.completed(t, models.KindUser, "a@x.com", "alice", "Secret1")

	require.NoError(t, e.svc.AuthorizeAccount(ctx, models.KindUser, first.ID, "A@x.com"))

	assert.ErrorIs(t, e.svc.AuthorizeAccount(ctx, models.KindTenant, first.ID, "a@x.com"), auth.ErrForbidden)
	assert.ErrorIs(t, e.svc.AuthorizeAccount(ctx, models.KindUser, first.ID+100, "a@x.com"), auth.ErrForbidden)

	// the address moves on and a new account takes it
	_, err := e.svc.ResetEmail(ctx, "user", "a@x.com", "moved@x.com")
	require.NoError(t, err)
	second := e.completed(t, models.KindUser, "a@x.com", "mallory", "Secret1")
	require.NotEqual(t, first.ID, second.ID)

	assert.ErrorIs(t, e.svc.AuthorizeAccount(ctx, models.KindUser, first.ID, "a@x.com"), auth.ErrForbidden)
	require.NoError(t, e.svc.AuthorizeAccount(ctx, models.KindUser, first.ID, "moved@x.com"))
	require.NoError(t, e.svc.AuthorizeAccount(ctx, models.KindUser, second.ID, "a@x.com"))
}
