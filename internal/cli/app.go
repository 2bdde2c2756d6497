package cli

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/dinnermatch/internal/config"
	"github.com/roach88/dinnermatch/internal/store"
	"github.com/roach88/dinnermatch/internal/workflow"
)

// app is the wiring shared by commands that touch the database.
type app struct {
	cfg    config.Config
	store  *store.Store
	svc    *workflow.Service
	logger *slog.Logger
	out    *OutputFormatter
}

// newFormatter builds the formatter for cmd's writers.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// newLogger installs the process logger. Logs go to stderr so JSON on
// stdout stays parseable; --verbose enables Debug.
func newLogger(opts *RootOptions, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// loadConfig reads the environment and applies flag overrides.
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if opts.Database != "" {
		cfg.DBPath = opts.Database
	}
	return cfg, nil
}

// openApp loads configuration, opens the store and builds the workflow
// service. Failures are reported through the formatter. Callers must
// Close the app.
func openApp(opts *RootOptions, cmd *cobra.Command) (*app, error) {
	out := newFormatter(opts, cmd)
	logger := newLogger(opts, cmd.ErrOrStderr())

	cfg, err := loadConfig(opts)
	if err != nil {
		_ = out.Error(ErrCodeConfig, err.Error(), nil)
		return nil, &ExitError{Code: ExitCommandError, Message: "invalid configuration", Err: err, Reported: true}
	}

	logger.Debug("opening database", "path", cfg.DBPath)
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		_ = out.Error(ErrCodeDatabase, err.Error(), nil)
		return nil, &ExitError{Code: ExitCommandError, Message: "failed to open database", Err: err, Reported: true}
	}

	svc := workflow.New(st,
		workflow.WithLogger(logger),
		workflow.WithPolicy(cfg.ReservationPolicy()),
		workflow.WithWeights(cfg.Weights()),
		workflow.WithAllocation(cfg.Allocation()),
		workflow.WithTTLs(cfg.TTLs()),
		workflow.WithAdminEmail(cfg.AdminEmail),
	)
	return &app{cfg: cfg, store: st, svc: svc, logger: logger, out: out}, nil
}

// Close closes the store, logging any error.
func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("error closing database", "error", err)
	}
}

// withApp runs fn against an opened app.
func withApp(opts *RootOptions, cmd *cobra.Command, fn func(a *app) error) error {
	a, err := openApp(opts, cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
