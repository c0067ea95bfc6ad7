// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

var configFile = altsrc.StringSourcer("config.toml")

// Config is built once at startup and treated as immutable afterwards.
type Config struct { //nolint:govet // fieldalignment not critical for config structs
	Server    ServerConfig
	Log       LogConfig
	Database  DatabaseConfig
	App       AppConfig
	Tokens    TokenConfig
	Session   SessionConfig
	SMTP      SMTPConfig
	RateLimit RateLimitConfig
	Password  PasswordConfig
}

type ServerConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host        string
	Port        int
	BaseURL     string // backend URL used in verification links
	MaxBodySize int    // in MB
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
	Source bool   // annotate records with file:line
}

type DatabaseConfig struct {
	DSN string
}

type AppConfig struct {
	FrontendURL string // base URL of the web client, used for redirects and reset links
}

type TokenConfig struct { //nolint:govet // fieldalignment not critical
	VerificationSecret string
	ResetSecret        string
	SessionSecret      string
	VerificationTTL    time.Duration
	ResetTTL           time.Duration
	SessionTTL         time.Duration
}

type SessionConfig struct { //nolint:govet // fieldalignment not critical
	CookieName string // Session cookie name
	HashKey    string // 32-byte hex string for HMAC signing
	BlockKey   string // 32-byte hex string for AES encryption (optional)
	Secure     bool   // derived from BaseURL scheme
}

// SMTPConfig configures the mail relay. When the OAuth fields are set the
// relay is authenticated with XOAUTH2 using a refreshed access token,
// otherwise with PLAIN username/password.
type SMTPConfig struct { //nolint:govet // fieldalignment not critical
	Host              string
	Port              int
	Username          string
	Password          string
	From              string
	FromName          string
	TLS               bool
	OAuthClientID     string
	OAuthClientSecret string
	OAuthRefreshToken string
	OAuthTokenURL     string
}

// UsesOAuth reports whether relay auth goes through an OAuth2 token exchange.
func (c SMTPConfig) UsesOAuth() bool {
	return c.OAuthClientID != "" && c.OAuthRefreshToken != ""
}

type RateLimitConfig struct {
	RPS   float64 // requests per second per client on /auth, 0 disables
	Burst int
}

type PasswordConfig struct {
	BcryptCost int
}

func NewFromCLI(cmd *cli.Command) *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:        cmd.String("host"),
			Port:        int(cmd.Int("port")),
			BaseURL:     cmd.String("base-url"),
			MaxBodySize: int(cmd.Int("max-body-size")),
		},
		Log: LogConfig{
			Level:  cmd.String("log-level"),
			Format: cmd.String("log-format"),
			Source: cmd.Bool("log-source"),
		},
		Database: DatabaseConfig{
			DSN: cmd.String("database-dsn"),
		},
		App: AppConfig{
			FrontendURL: cmd.String("frontend-url"),
		},
		Tokens: TokenConfig{
			VerificationSecret: cmd.String("verification-secret"),
			ResetSecret:        cmd.String("reset-secret"),
			SessionSecret:      cmd.String("session-secret"),
			VerificationTTL:    cmd.Duration("verification-ttl"),
			ResetTTL:           cmd.Duration("reset-ttl"),
			SessionTTL:         cmd.Duration("session-ttl"),
		},
		Session: SessionConfig{
			CookieName: cmd.String("session-cookie-name"),
			HashKey:    cmd.String("session-hash-key"),
			BlockKey:   cmd.String("session-block-key"),
		},
		SMTP: SMTPConfig{
			Host:              cmd.String("smtp-host"),
			Port:              int(cmd.Int("smtp-port")),
			Username:          cmd.String("smtp-username"),
			Password:          cmd.String("smtp-password"),
			From:              cmd.String("smtp-from"),
			FromName:          cmd.String("smtp-from-name"),
			TLS:               cmd.Bool("smtp-tls"),
			OAuthClientID:     cmd.String("smtp-oauth-client-id"),
			OAuthClientSecret: cmd.String("smtp-oauth-client-secret"),
			OAuthRefreshToken: cmd.String("smtp-oauth-refresh-token"),
			OAuthTokenURL:     cmd.String("smtp-oauth-token-url"),
		},
		RateLimit: RateLimitConfig{
			RPS:   cmd.Float("rate-limit-rps"),
			Burst: int(cmd.Int("rate-limit-burst")),
		},
		Password: PasswordConfig{
			BcryptCost: int(cmd.Int("bcrypt-cost")),
		},
	}

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = buildBaseURL(cfg)
	}
	cfg.Server.BaseURL = strings.TrimSuffix(cfg.Server.BaseURL, "/")
	if cfg.App.FrontendURL == "" {
		cfg.App.FrontendURL = cfg.Server.BaseURL
	}
	cfg.App.FrontendURL = strings.TrimSuffix(cfg.App.FrontendURL, "/")
	cfg.Session.Secure = strings.HasPrefix(cfg.Server.BaseURL, "https://")

	return cfg
}

// Validate checks secrets and TTLs. On localhost missing secrets are
// generated so the server can start in development.
func (c *Config) Validate() error {
	dev := IsLocalhost(c.Server.Host)

	secrets := []struct {
		name  string
		value *string
	}{
		{"verification-secret", &c.Tokens.VerificationSecret},
		{"reset-secret", &c.Tokens.ResetSecret},
		{"session-secret", &c.Tokens.SessionSecret},
		{"session-hash-key", &c.Session.HashKey},
	}

	for _, s := range secrets {
		if *s.value != "" {
			continue
		}
		if !dev {
			return fmt.Errorf("%s is required", s.name)
		}
		generated, err := randomHex(32)
		if err != nil {
			return err
		}
		*s.value = generated
		slog.Warn("generated ephemeral secret", "flag", s.name)
	}

	t := c.Tokens
	if t.VerificationSecret == t.ResetSecret || t.VerificationSecret == t.SessionSecret || t.ResetSecret == t.SessionSecret {
		return errors.New("verification, reset and session secrets must differ")
	}
	if t.VerificationTTL <= 0 || t.ResetTTL <= 0 || t.SessionTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.RateLimit.RPS < 0 {
		return errors.New("rate-limit-rps must not be negative")
	}

	return nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func buildBaseURL(cfg *Config) string {
	host := cfg.Server.Host
	port := cfg.Server.Port

	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}

	// Hide default port in URL
	if port == 80 {
		return fmt.Sprintf("http://%s", host)
	}
	return fmt.Sprintf("http://%s:%d", host, port)
}

// IsLocalhost checks if the host is a localhost address.
func IsLocalhost(host string) bool {
	switch host {
	case "", "localhost", "127.0.0.1", "::1":
		return true
	}
	// Check for *.localhost subdomains (e.g., app.localhost)
	return strings.HasSuffix(host, ".localhost")
}

func source(env, key string) cli.ValueSourceChain {
	return cli.NewValueSourceChain(cli.EnvVar(env), toml.TOML(key, configFile))
}

func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "host",
			Value:   "localhost",
			Usage:   "Host to bind to",
			Sources: source("HOST", "server.host"),
		},
		&cli.IntFlag{
			Name:    "port",
			Value:   8080,
			Usage:   "Port to listen on",
			Sources: source("PORT", "server.port"),
		},
		&cli.StringFlag{
			Name:    "base-url",
			Usage:   "Public base URL of this API (used in verification links)",
			Sources: source("BACKEND_URL", "server.base_url"),
		},
		&cli.IntFlag{
			Name:    "max-body-size",
			Value:   1,
			Usage:   "Maximum request body size in MB",
			Sources: source("MAX_BODY_SIZE", "server.max_body_size"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "Log level (debug, info, warn, error)",
			Sources: source("LOG_LEVEL", "log.level"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Value:   "text",
			Usage:   "Log format (text, json)",
			Sources: source("LOG_FORMAT", "log.format"),
		},
		&cli.BoolFlag{
			Name:    "log-source",
			Usage:   "Add source file and line to log records",
			Sources: source("LOG_SOURCE", "log.source"),
		},
		&cli.StringFlag{
			Name:    "database-dsn",
			Value:   "./data/app.db",
			Usage:   "Database DSN",
			Sources: source("DATABASE_DSN", "database.dsn"),
		},
		&cli.StringFlag{
			Name:    "frontend-url",
			Usage:   "Base URL of the web client (defaults to base-url)",
			Sources: source("FRONTEND_URL", "app.frontend_url"),
		},
		// Token flags
		&cli.StringFlag{
			Name:    "verification-secret",
			Usage:   "Signing secret for email verification tokens",
			Sources: source("VERIFICATION_SECRET", "tokens.verification_secret"),
		},
		&cli.StringFlag{
			Name:    "reset-secret",
			Usage:   "Signing secret for password reset tokens",
			Sources: source("RESET_SECRET", "tokens.reset_secret"),
		},
		&cli.StringFlag{
			Name:    "session-secret",
			Usage:   "Signing secret for session tokens",
			Sources: source("SESSION_SECRET", "tokens.session_secret"),
		},
		&cli.DurationFlag{
			Name:    "verification-ttl",
			Value:   time.Hour,
			Usage:   "Lifetime of email verification tokens",
			Sources: source("VERIFICATION_TTL", "tokens.verification_ttl"),
		},
		&cli.DurationFlag{
			Name:    "reset-ttl",
			Value:   15 * time.Minute,
			Usage:   "Lifetime of password reset tokens",
			Sources: source("RESET_TTL", "tokens.reset_ttl"),
		},
		&cli.DurationFlag{
			Name:    "session-ttl",
			Value:   24 * time.Hour,
			Usage:   "Lifetime of session tokens",
			Sources: source("SESSION_TTL", "tokens.session_ttl"),
		},
		// Session flags
		&cli.StringFlag{
			Name:    "session-cookie-name",
			Value:   "_session",
			Usage:   "Session cookie name",
			Sources: source("SESSION_COOKIE_NAME", "session.cookie_name"),
		},
		&cli.StringFlag{
			Name:    "session-hash-key",
			Usage:   "Session cookie hash key (32-byte hex, auto-generated if empty in dev)",
			Sources: source("SESSION_HASH_KEY", "session.hash_key"),
		},
		&cli.StringFlag{
			Name:    "session-block-key",
			Usage:   "Session cookie block key for encryption (32-byte hex, optional)",
			Sources: source("SESSION_BLOCK_KEY", "session.block_key"),
		},
		// SMTP flags
		&cli.StringFlag{
			Name:    "smtp-host",
			Value:   "smtp.gmail.com",
			Usage:   "SMTP relay host",
			Sources: source("SMTP_HOST", "smtp.host"),
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Value:   587,
			Usage:   "SMTP relay port",
			Sources: source("SMTP_PORT", "smtp.port"),
		},
		&cli.StringFlag{
			Name:    "smtp-username",
			Usage:   "SMTP username (defaults to smtp-from)",
			Sources: source("SMTP_USERNAME", "smtp.username"),
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			Usage:   "SMTP password for PLAIN auth",
			Sources: source("SMTP_PASSWORD", "smtp.password"),
		},
		&cli.StringFlag{
			Name:    "smtp-from",
			Usage:   "Sender address",
			Sources: source("EMAIL", "smtp.from"),
		},
		&cli.StringFlag{
			Name:    "smtp-from-name",
			Usage:   "Sender display name",
			Sources: source("SMTP_FROM_NAME", "smtp.from_name"),
		},
		&cli.BoolFlag{
			Name:    "smtp-tls",
			Value:   true,
			Usage:   "Require TLS to the relay",
			Sources: source("SMTP_TLS", "smtp.tls"),
		},
		&cli.StringFlag{
			Name:    "smtp-oauth-client-id",
			Usage:   "OAuth2 client ID for XOAUTH2 relay auth",
			Sources: source("GOOGLE_CLIENT_ID", "smtp.oauth_client_id"),
		},
		&cli.StringFlag{
			Name:    "smtp-oauth-client-secret",
			Usage:   "OAuth2 client secret for XOAUTH2 relay auth",
			Sources: source("GOOGLE_CLIENT_SECRET", "smtp.oauth_client_secret"),
		},
		&cli.StringFlag{
			Name:    "smtp-oauth-refresh-token",
			Usage:   "OAuth2 refresh token for XOAUTH2 relay auth",
			Sources: source("REFRESH_TOKEN", "smtp.oauth_refresh_token"),
		},
		&cli.StringFlag{
			Name:    "smtp-oauth-token-url",
			Value:   "https://oauth2.googleapis.com/token",
			Usage:   "OAuth2 token endpoint",
			Sources: source("SMTP_OAUTH_TOKEN_URL", "smtp.oauth_token_url"),
		},
		// Rate limiting
		&cli.FloatFlag{
			Name:    "rate-limit-rps",
			Value:   5,
			Usage:   "Requests per second per client on /auth (0 disables)",
			Sources: source("RATE_LIMIT_RPS", "rate_limit.rps"),
		},
		&cli.IntFlag{
			Name:    "rate-limit-burst",
			Value:   20,
			Usage:   "Burst size for the /auth rate limiter",
			Sources: source("RATE_LIMIT_BURST", "rate_limit.burst"),
		},
		&cli.IntFlag{
			Name:    "bcrypt-cost",
			Value:   10,
			Usage:   "bcrypt cost factor for password hashes",
			Sources: source("BCRYPT_COST", "password.bcrypt_cost"),
		},
	}
}
