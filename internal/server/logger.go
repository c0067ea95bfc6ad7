// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"io"
	"log/slog"
	"time"

	"github.com/fabianindra/finalproject/internal/config"
	"github.com/lmittmann/tint"
)

// serviceName tags every record so logs can be told apart from the frontend's.
const serviceName = "rental-auth"

// newLogger builds the process logger. Unknown levels log at info; any
// format other than json uses tint.
func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level, AddSource: cfg.Source})
	} else {
		handler = tint.NewHandler(w, &tint.Options{
			Level:      level,
			AddSource:  cfg.Source,
			TimeFormat: time.DateTime,
		})
	}

	return slog.New(handler).With("service", serviceName)
}
