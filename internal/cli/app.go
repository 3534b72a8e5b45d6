package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/ballotdesk/internal/cache"
	"github.com/roach88/ballotdesk/internal/config"
	"github.com/roach88/ballotdesk/internal/election"
	"github.com/roach88/ballotdesk/internal/metrics"
	"github.com/roach88/ballotdesk/internal/reconcile"
	"github.com/roach88/ballotdesk/internal/sessioncache"
	"github.com/roach88/ballotdesk/internal/store"
)

// app is the wiring shared by commands that touch the store.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	store *store.Store
	docs  *cache.Store

	sessions sessioncache.Store // opened on demand
	engine   *reconcile.Engine  // opened on demand
}

// openApp loads the config, configures logging on logOut and opens the
// store, retrying while it reports itself unavailable.
func openApp(ctx context.Context, opts *RootOptions, logOut io.Writer) (*app, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Store.Path = opts.Database
	}

	logger, err := newLogger(cfg.Log, opts.Verbose, logOut)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid log config", err)
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	st, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open store", err)
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		metrics:  m,
		store:    st,
		docs: cache.New(st,
			cache.WithLogger(logger),
			cache.WithMetrics(m),
			cache.WithEnabled(cfg.Cache.Enabled),
		),
	}, nil
}

// openStore opens the document store. An unavailable store is retried up to
// cfg.OpenAttempts times, cfg.OpenInterval apart.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (*store.Store, error) {
	attempts := max(cfg.OpenAttempts, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		st, err := store.Open(cfg.Path, store.WithLogger(logger))
		if err == nil {
			return st, nil
		}
		if !store.IsUnavailable(err) {
			return nil, err
		}
		lastErr = err
		if attempt == attempts {
			break
		}

		logger.Warn("store unavailable, retrying",
			"path", cfg.Path,
			"attempt", attempt,
			"attempts", attempts,
			"error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(cfg.OpenInterval):
		}
	}
	return nil, fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}

func newLogger(cfg config.LogConfig, verbose bool, w io.Writer) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if verbose {
		level = slog.LevelDebug
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts)), nil
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts)), nil
}

// openSessions opens the optimistic cache journal.
func (a *app) openSessions() (sessioncache.Store, error) {
	if a.sessions != nil {
		return a.sessions, nil
	}
	j, err := sessioncache.OpenJournal(a.cfg.SessionCache.Dir,
		sessioncache.WithCompactAfter(a.cfg.SessionCache.CompactAfter),
		sessioncache.WithNoSync(a.cfg.SessionCache.NoSync),
		sessioncache.WithJournalLogger(a.logger),
	)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open session cache", err)
	}
	a.sessions = j
	return j, nil
}

// openEngine builds the reconciliation engine over the cache-fronted store
// and the session journal. Commands are one-shot, so no background pass is
// scheduled.
func (a *app) openEngine() (*reconcile.Engine, error) {
	if a.engine != nil {
		return a.engine, nil
	}
	sessions, err := a.openSessions()
	if err != nil {
		return nil, err
	}
	a.engine = reconcile.New(a.docs, sessions,
		reconcile.WithLogger(a.logger),
		reconcile.WithMetrics(a.metrics),
		reconcile.WithRevalidateDelay(0),
	)
	return a.engine, nil
}

func (a *app) students() *election.Students { return election.NewStudents(a.docs) }
func (a *app) votes() *election.VoteLog     { return election.NewVoteLog(a.docs) }

// Close releases the engine, the journal and the store, then logs the
// metrics gathered during the command at debug level.
func (a *app) Close() error {
	if a.engine != nil {
		a.engine.Close()
	}

	var errs []error
	if a.sessions != nil {
		errs = append(errs, a.sessions.Close())
	}
	errs = append(errs, a.store.Close())

	a.logMetrics()
	return errors.Join(errs...)
}

func (a *app) logMetrics() {
	snap, err := metrics.Snapshot(a.registry)
	if err != nil {
		a.logger.Debug("metrics gather failed", "error", err)
		return
	}
	for _, name := range slices.Sorted(maps.Keys(snap)) {
		if snap[name] != 0 {
			a.logger.Debug("metric", "name", name, "value", snap[name])
		}
	}
}

// withApp opens the app for cmd, runs fn and closes the app.
func withApp(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, a *app, out *OutputFormatter) error) error {
	ctx := commandContext(cmd)
	out := newFormatter(cmd, opts)

	a, err := openApp(ctx, opts, out.GetErrWriter())
	if err != nil {
		code, _ := classify(err)
		if code == CodeInternal {
			code = CodeInvalidInput
		}
		_ = out.Error(code, err.Error(), nil)
		return err
	}

	runErr := fn(ctx, a, out)
	if closeErr := a.Close(); closeErr != nil {
		a.logger.Error("error closing", "error", closeErr)
		if runErr == nil {
			runErr = WrapExitError(ExitFailure, "failed to close", closeErr)
		}
	}
	return runErr
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
