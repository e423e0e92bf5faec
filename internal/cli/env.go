package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/infobase/internal/account"
	"github.com/roach88/infobase/internal/cache"
	"github.com/roach88/infobase/internal/config"
	"github.com/roach88/infobase/internal/diag"
	"github.com/roach88/infobase/internal/eventlog"
	"github.com/roach88/infobase/internal/infobase"
	"github.com/roach88/infobase/internal/metrics"
	"github.com/roach88/infobase/internal/request"
	"github.com/roach88/infobase/internal/store/sqlite"
)

// env is the opened runtime of one command invocation.
type env struct {
	cfg    *config.Config
	ib     *infobase.Infobase
	events *eventlog.Log
	out    *OutputFormatter
	reg    *prometheus.Registry
}

// openEnv loads configuration, installs the slog handler and opens the
// infobase. Overrides apply on top of the file and environment. The caller
// must call close.
func openEnv(opts *RootOptions, cmd *cobra.Command, overrides ...func(*config.Config)) (*env, error) {
	if opts.DataDir != "" {
		overrides = append(overrides, func(cfg *config.Config) { cfg.DataDir = opts.DataDir })
	}
	cfg, err := config.Load(opts.ConfigPath, overrides...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}

	setupLogging(cfg.Logging, opts.Verbose, cmd.ErrOrStderr())

	provider, err := sqlite.NewProvider(cfg.DataDir)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open data directory", err)
	}

	e := &env{
		cfg: cfg,
		reg: prometheus.NewRegistry(),
		out: &OutputFormatter{
			Format:    opts.Format,
			Writer:    cmd.OutOrStdout(),
			ErrWriter: cmd.ErrOrStderr(),
			Verbose:   opts.Verbose,
		},
	}

	if cfg.EventLog.Enabled {
		if e.events, err = eventlog.Open(cfg.EventLog.Path); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open event log", err)
		}
	}

	e.ib = infobase.New(provider, cfg.SecretKey,
		infobase.WithAdminPassword(cfg.AdminPassword),
		infobase.WithCacheFactory(cache.NewFactory(cfg.Cache.Size, cfg.Cache.TTL)),
		infobase.WithDiagnostics(diag.NewRecorder(cfg.Diagnostics.Capacity)),
		infobase.WithMetrics(metrics.New(e.reg)),
		infobase.WithAccountOptions(account.WithSigner(account.Bcrypt{Cost: cfg.BcryptCost})),
		infobase.WithStartupHook(func(ib *infobase.Infobase) {
			if e.events != nil {
				ib.AddEventListener(e.events)
			}
		}),
	)

	slog.Debug("infobase opened", "data_dir", cfg.DataDir, "event_log", cfg.EventLog.Enabled)
	return e, nil
}

func (e *env) close() {
	if err := e.ib.Close(); err != nil {
		slog.Error("error closing sites", "error", err)
	}
	if path := e.cfg.Metrics.Textfile; path != "" {
		if err := prometheus.WriteToTextfile(path, e.reg); err != nil {
			slog.Error("error writing metrics", "path", path, "error", err)
		}
	}
	if e.events != nil {
		if err := e.events.Close(); err != nil {
			slog.Error("error closing event log", "error", err)
		}
	}
}

// site returns an existing site or an ExitError.
func (e *env) site(ctx context.Context, name string) (*infobase.Site, error) {
	site, err := e.ib.Get(ctx, name)
	if err != nil {
		return nil, e.out.Fail("failed to open site", err)
	}
	if site == nil {
		err := fmt.Errorf("site %q not found", name)
		if outErr := e.out.Error("SITE_NOT_FOUND", err.Error(), nil); outErr != nil {
			return nil, outErr
		}
		return nil, WrapExitError(ExitCommandError, "failed to open site", err)
	}
	return site, nil
}

// requestContext attaches the acting user to ctx.
func requestContext(ctx context.Context, as string) context.Context {
	if as == "" {
		return ctx
	}
	return request.WithUser(ctx, as)
}

// setupLogging installs the process-wide slog handler. --verbose forces
// debug level.
func setupLogging(cfg config.LoggingConfig, verbose bool, w io.Writer) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	slog.SetDefault(slog.New(handler))
}

// readInput reads a file argument, or stdin for "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("input file not found: %s", path)
	}
	return data, err
}
