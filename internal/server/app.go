// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"fmt"

	"github.com/fabianindra/finalproject/internal/config"
	"github.com/fabianindra/finalproject/internal/handlers"
	"github.com/fabianindra/finalproject/internal/metrics"
	"github.com/fabianindra/finalproject/internal/models"
	mw "github.com/fabianindra/finalproject/internal/middleware"
	"github.com/fabianindra/finalproject/internal/repository"
	"github.com/fabianindra/finalproject/internal/services/auth"
	"github.com/fabianindra/finalproject/internal/services/email"
	"github.com/fabianindra/finalproject/internal/services/password"
	"github.com/fabianindra/finalproject/internal/services/session"
	"github.com/fabianindra/finalproject/internal/services/token"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/vinovest/sqlx"
)

// New wires the services over db and sender and returns the configured
// Echo instance. cfg must have been validated.
func New(cfg *config.Config, db *sqlx.DB, sender email.Sender) (*echo.Echo, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewCollector(reg)

	repo := repository.New(db)

	tokens, err := token.NewService(map[token.Purpose][]byte{
		token.PurposeVerification: []byte(cfg.Tokens.VerificationSecret),
		token.PurposeReset:        []byte(cfg.Tokens.ResetSecret),
		token.PurposeSession:      []byte(cfg.Tokens.SessionSecret),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init tokens: %w", err)
	}

	mailer, err := email.NewService(sender, email.Options{
		BackendURL:      cfg.Server.BaseURL,
		FrontendURL:     cfg.App.FrontendURL,
		VerificationTTL: cfg.Tokens.VerificationTTL,
		ResetTTL:        cfg.Tokens.ResetTTL,
		Metrics:         recorder,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init email: %w", err)
	}

	svc, err := auth.NewService(auth.Deps{
		Store:   repo,
		Hasher:  password.NewHasher(cfg.Password.BcryptCost),
		Tokens:  tokens,
		Mailer:  mailer,
		Metrics: recorder,
	}, auth.Config{
		VerificationTTL: cfg.Tokens.VerificationTTL,
		ResetTTL:        cfg.Tokens.ResetTTL,
		SessionTTL:      cfg.Tokens.SessionTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init auth: %w", err)
	}

	sessions, err := session.NewManager(&cfg.Session, cfg.Tokens.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to init sessions: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	setupMiddleware(e, cfg)
	e.Use(mw.LoadPrincipal(tokens, sessions))

	setupRoutes(e, cfg, routeDeps{
		health:  handlers.New(repo),
		auth:    handlers.NewAuth(svc, sessions, cfg.App.FrontendURL),
		metrics: reg,
	})

	return e, nil
}

type routeDeps struct {
	health  *handlers.Handlers
	auth    *handlers.AuthHandlers
	metrics prometheus.Gatherer
}

func setupRoutes(e *echo.Echo, cfg *config.Config, d routeDeps) {
	e.GET("/health", d.health.Health)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler(d.metrics)))

	h := d.auth
	g := e.Group("/auth", rateLimiter(cfg.RateLimit)...)

	g.POST("/register-user", h.Register(models.KindUser))
	g.POST("/register-tenant", h.Register(models.KindTenant))
	g.POST("/re-register", h.ReRegister)
	g.POST("/complete-register-user", h.CompleteRegistration(models.KindUser))
	g.POST("/complete-register-tenant", h.CompleteRegistration(models.KindTenant))
	g.GET("/verify-email", h.VerifyEmail)
	g.GET("/verify-email-reset", h.VerifyEmailReset)

	g.POST("/login-user", h.Login(models.KindUser))
	g.POST("/login-tenant", h.Login(models.KindTenant))
	g.POST("/logout", h.Logout)
	g.GET("/me", h.Me, mw.RequireAuth)

	g.POST("/send-reset-password", h.SendResetPassword)
	g.POST("/reset-password", h.ResetPassword)
	g.POST("/change-password-user", h.ChangePassword(models.KindUser), mw.RequireAuth)
	g.POST("/change-password-tenant", h.ChangePassword(models.KindTenant), mw.RequireAuth)
	g.POST("/change-email", h.ChangeEmail, mw.RequireAuth)
}
