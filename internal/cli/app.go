package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/namehist/internal/config"
	"github.com/roach88/namehist/internal/fetcher"
	"github.com/roach88/namehist/internal/history"
	"github.com/roach88/namehist/internal/metrics"
	"github.com/roach88/namehist/internal/resolver"
	"github.com/roach88/namehist/internal/store"
)

// app is the wiring shared by the commands that touch the history store.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	store  *store.Store
}

// openApp loads the configuration, installs the logger and opens the store.
// Failures are command errors: nothing has been looked up yet.
func openApp(cmd *cobra.Command, opts *RootOptions) (*app, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	logger, err := newLogger(cfg.Log, opts.Verbose, cmd.ErrOrStderr())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid log settings", err)
	}
	slog.SetDefault(logger)

	logger.Debug("opening database", "path", cfg.Database.Path)
	st, err := store.Open(cfg.StoreConfig())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	return &app{cfg: cfg, logger: logger, store: st}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("error closing database", "error", err)
	}
}

// newResolver builds the profile fetcher and a resolver over the store.
func (a *app) newResolver(m *metrics.Metrics) (*resolver.Resolver, error) {
	f, err := fetcher.New(a.cfg.FetcherConfig(), fetcher.WithMetrics(m))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid client settings", err)
	}
	return resolver.New(a.store, f,
		resolver.WithPolicy(a.cfg.Policy()),
		resolver.WithMetrics(m),
		resolver.WithLogger(a.logger),
	), nil
}

// newLogger builds the process logger. --verbose forces debug level.
func newLogger(cfg config.LogConfig, verbose bool, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
	}
	if verbose {
		level = slog.LevelDebug
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, handlerOpts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, handlerOpts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
}

// parseID parses a command-line identifier; a bad one is a command error.
func parseID(s string) (uuid.UUID, error) {
	id, err := history.ParseID(s)
	if err != nil {
		return uuid.Nil, WrapExitError(ExitCommandError, "invalid identifier", err)
	}
	return id, nil
}

// commandContext returns the command's context, or Background when the
// command was executed without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
