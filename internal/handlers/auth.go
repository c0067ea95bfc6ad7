// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/fabianindra/finalproject/internal/appcontext"
	"github.com/fabianindra/finalproject/internal/models"
	"github.com/fabianindra/finalproject/internal/services/auth"
	"github.com/fabianindra/finalproject/internal/services/session"
	"github.com/labstack/echo/v4"
)

// AuthHandlers exposes the account flows as a JSON API.
type AuthHandlers struct {
	auth        *auth.Service
	sessions    *session.Manager
	frontendURL string
}

// NewAuth creates the auth handlers. frontendURL is where verification
// redirects land.
func NewAuth(svc *auth.Service, sessions *session.Manager, frontendURL string) *AuthHandlers {
	return &AuthHandlers{
		auth:        svc,
		sessions:    sessions,
		frontendURL: strings.TrimSuffix(frontendURL, "/"),
	}
}

type registerRequest struct {
	Email string `json:"email"`
	// username and password are accepted for compatibility and ignored;
	// they are set when registration is completed.
	Username string `json:"username"`
	Password string `json:"password"`
}

type roleEmailRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

type completeRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type resetPasswordRequest struct {
	NewPassword string `json:"newPassword"`
	Role        string `json:"role"`
	Email       string `json:"email"`
	Token       string `json:"token"`
}

type changePasswordRequest struct {
	Email           string `json:"email"`
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type changeEmailRequest struct {
	Email    string `json:"email"`
	Role     string `json:"role"`
	NewEmail string `json:"newEmail"`
}

func bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// Register returns the handler registering an account of the given kind.
func (h *AuthHandlers) Register(kind models.Kind) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req registerRequest
		if err := bind(c, &req); err != nil {
			return fail(c, err)
		}

		acc, err := h.auth.Register(c.Request().Context(), kind, req.Email)
		if err != nil {
			return fail(c, err)
		}

		return respond(c, http.StatusCreated, "Registration successful, please check your email to verify your account", acc)
	}
}

// ReRegister resends the verification email.
func (h *AuthHandlers) ReRegister(c echo.Context) error {
	var req roleEmailRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}

	if err := h.auth.ReRegister(c.Request().Context(), req.Role, req.Email); err != nil {
		return fail(c, err)
	}

	return respond(c, http.StatusOK, "Verification email sent", nil)
}

// CompleteRegistration returns the handler that finalizes an account of kind.
func (h *AuthHandlers) CompleteRegistration(kind models.Kind) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req completeRequest
		if err := bind(c, &req); err != nil {
			return fail(c, err)
		}

		acc, err := h.auth.CompleteRegistration(c.Request().Context(), kind, req.Email, req.Username, req.Password)
		if err != nil {
			return fail(c, err)
		}

		return respond(c, http.StatusOK, "Registration completed", acc)
	}
}

// VerifyEmail marks the account verified and redirects to the completion
// page of its kind.
func (h *AuthHandlers) VerifyEmail(c echo.Context) error {
	v, err := h.auth.VerifyEmail(c.Request().Context(), c.QueryParam("token"), c.QueryParam("role"))
	if err != nil {
		return fail(c, err)
	}

	return c.Redirect(http.StatusFound, h.completionURL(v))
}

func (h *AuthHandlers) completionURL(v *auth.Verification) string {
	page := "/register-user/complete-register-user"
	if v.Kind == models.KindTenant {
		page = "/register-tenant/complete-register-tenant"
	}
	return h.frontendURL + page + "?email=" + url.QueryEscape(v.Email)
}

// VerifyEmailReset verifies like VerifyEmail but always lands on the
// frontend root.
func (h *AuthHandlers) VerifyEmailReset(c echo.Context) error {
	if _, err := h.auth.VerifyEmail(c.Request().Context(), c.QueryParam("token"), c.QueryParam("role")); err != nil {
		slog.WarnContext(c.Request().Context(), "verify_email_reset_failed", "error", err)
	}
	return c.Redirect(http.StatusFound, h.frontendURL+"/")
}

// Login returns the handler that logs in an account of kind. The session
// token is returned in the body and set as a cookie.
func (h *AuthHandlers) Login(kind models.Kind) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req loginRequest
		if err := bind(c, &req); err != nil {
			return fail(c, err)
		}

		sess, err := h.auth.Login(c.Request().Context(), kind, req.Email, req.Password)
		if err != nil {
			return fail(c, err)
		}

		cookie, err := h.sessions.Create(sess.Token, sess.ExpiresAt)
		if err != nil {
			return fail(c, err)
		}
		c.SetCookie(cookie)

		return c.JSON(http.StatusOK, Response{
			Status:       http.StatusOK,
			Success:      true,
			Message:      "Login successful",
			Data:         sess.Account,
			SessionToken: sess.Token,
		})
	}
}

// Logout clears the session cookie. Bearer tokens stay valid until expiry.
func (h *AuthHandlers) Logout(c echo.Context) error {
	c.SetCookie(h.sessions.Clear())
	return respond(c, http.StatusOK, "Logged out", nil)
}

// Me returns the authenticated principal.
func (h *AuthHandlers) Me(c echo.Context) error {
	p := appcontext.Principal(c)
	if p == nil {
		return respond(c, http.StatusUnauthorized, "Authentication required", nil)
	}
	return respond(c, http.StatusOK, "OK", p)
}

// SendResetPassword mails a password reset link.
func (h *AuthHandlers) SendResetPassword(c echo.Context) error {
	var req roleEmailRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}

	if err := h.auth.SendResetPasswordEmail(c.Request().Context(), req.Role, req.Email); err != nil {
		return fail(c, err)
	}

	return respond(c, http.StatusOK, "Password reset email sent", nil)
}

// ResetPassword sets a new password using a reset token.
func (h *AuthHandlers) ResetPassword(c echo.Context) error {
	var req resetPasswordRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}

	if err := h.auth.ResetPassword(c.Request().Context(), req.Role, req.Email, req.Token, req.NewPassword); err != nil {
		return fail(c, err)
	}

	return respond(c, http.StatusOK, "Password has been reset", nil)
}

// ChangePassword returns the handler changing the password of the
// session's own account of kind.
func (h *AuthHandlers) ChangePassword(kind models.Kind) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req changePasswordRequest
		if err := bind(c, &req); err != nil {
			return fail(c, err)
		}
		if err := h.authorize(c, kind, req.Email); err != nil {
			return fail(c, err)
		}

		if err := h.auth.ChangePassword(c.Request().Context(), kind, req.Email, req.CurrentPassword, req.NewPassword); err != nil {
			return fail(c, err)
		}

		return respond(c, http.StatusOK, "Password changed", nil)
	}
}

// ChangeEmail moves the session's account to a new email. The session
// cookie is cleared because it names the old address.
func (h *AuthHandlers) ChangeEmail(c echo.Context) error {
	var req changeEmailRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	kind, err := models.ParseKind(req.Role)
	if err != nil {
		return fail(c, auth.ErrInvalidRole)
	}
	if err := h.authorize(c, kind, req.Email); err != nil {
		return fail(c, err)
	}

	acc, err := h.auth.ResetEmail(c.Request().Context(), req.Role, req.Email, req.NewEmail)
	if err != nil {
		return fail(c, err)
	}

	c.SetCookie(h.sessions.Clear())
	return respond(c, http.StatusOK, "Email changed, please log in again", acc)
}

// authorize requires the session to belong to the account {kind, email}
// by id, not only by the address it was issued for.
func (h *AuthHandlers) authorize(c echo.Context, kind models.Kind, email string) error {
	p := appcontext.Principal(c)
	if !p.Matches(kind, email) {
		return auth.ErrForbidden
	}
	return h.auth.AuthorizeAccount(c.Request().Context(), kind, p.AccountID, email)
}
