// Package commands implements the stageground CLI subcommands. Each
// subcommand resolves configuration, builds the staging controller stack for
// one invocation, and renders the outcome to stdout.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/guidelab/stageground/config"
	"github.com/guidelab/stageground/repo/gitcli"
	"github.com/guidelab/stageground/rules/guideline"
	"github.com/guidelab/stageground/session"
	"github.com/guidelab/stageground/staging"
	"github.com/guidelab/stageground/staging/natskv"
	"github.com/guidelab/stageground/staging/sqlitestore"
	"github.com/guidelab/stageground/validation"
)

// Env carries state shared by every subcommand, resolved from the root
// command's persistent flags before execution.
type Env struct {
	ConfigPath string
	LogLevel   string

	logger *slog.Logger
}

// Logger returns the CLI logger, building it on first use.
func (e *Env) Logger() *slog.Logger {
	if e.logger != nil {
		return e.logger
	}

	level := slog.LevelInfo
	switch strings.ToLower(e.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	e.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	return e.logger
}

// LoadConfig resolves configuration. An explicit --config path is loaded on
// top of the defaults; otherwise the layered loader discovers user and
// project files and applies environment overrides.
func (e *Env) LoadConfig() (*config.Config, error) {
	if e.ConfigPath != "" {
		cfg := config.DefaultConfig()
		fileConfig, err := config.LoadFromFile(e.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", e.ConfigPath, err)
		}
		cfg.Merge(fileConfig)
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}
	return config.NewLoader(e.Logger()).Load()
}

// Runtime bundles the controller stack for one CLI invocation.
type Runtime struct {
	Config     *config.Config
	Key        staging.RepositoryKey
	Controller *session.Controller

	closers []func() error
}

// OpenRuntime loads configuration and wires store, rule registry, engine,
// git client, and controller for a one-shot command.
func (e *Env) OpenRuntime(ctx context.Context) (*Runtime, error) {
	cfg, err := e.LoadConfig()
	if err != nil {
		return nil, err
	}

	if cfg.Repo.Owner == "" || cfg.Repo.Name == "" {
		return nil, fmt.Errorf("repo.owner and repo.name must be configured (stageground.yaml or STAGEGROUND_REPO_OWNER/STAGEGROUND_REPO_NAME)")
	}

	logger := e.Logger()
	rt := &Runtime{Config: cfg, Key: cfg.Repo.Key()}

	store, err := rt.openStore(ctx, logger)
	if err != nil {
		return nil, err
	}

	registry, err := guideline.NewRegistry()
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("build rule registry: %w", err)
	}
	engine := validation.NewEngine(registry, logger)

	git := gitcli.New(cfg.Repo.Path, logger)

	rt.Controller = session.NewController(store, engine, git, git, logger).
		WithTimeout(cfg.Remote.Timeout).
		WithOptions(validation.Options{
			IncludeWarnings: cfg.Validation.IncludeWarnings,
			IncludeInfo:     cfg.Validation.IncludeInfo,
		})

	return rt, nil
}

// openStore builds the staging store selected by store.backend.
func (rt *Runtime) openStore(ctx context.Context, logger *slog.Logger) (staging.Store, error) {
	cfg := rt.Config
	switch cfg.Store.Backend {
	case "memory":
		return staging.NewMemoryStore(cfg.Store.Retention), nil

	case "sqlite":
		store, err := sqlitestore.New(cfg.Store.Path, cfg.Store.Retention)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store %s: %w", cfg.Store.Path, err)
		}
		rt.closers = append(rt.closers, store.Close)
		return store, nil

	case "nats":
		// One-shot commands cannot use an embedded server: the store would
		// vanish when the process exits.
		if cfg.NATS.URL == "" {
			return nil, fmt.Errorf("nats store backend needs nats.url (or %s) for CLI commands; use store.backend sqlite for local-only sessions", config.EnvNATSURL)
		}
		conn, err := nats.Connect(cfg.NATS.URL)
		if err != nil {
			return nil, fmt.Errorf("connect to NATS %s: %w", cfg.NATS.URL, err)
		}
		rt.closers = append(rt.closers, func() error {
			conn.Close()
			return nil
		})
		js, err := jetstream.New(conn)
		if err != nil {
			return nil, fmt.Errorf("create JetStream context: %w", err)
		}
		store, err := natskv.New(ctx, js, cfg.Store.Retention)
		if err != nil {
			return nil, fmt.Errorf("open NATS KV store: %w", err)
		}
		logger.Debug("Using NATS KV staging store", "url", cfg.NATS.URL)
		return store, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// Close releases runtime resources in reverse acquisition order.
func (rt *Runtime) Close() error {
	var firstErr error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
