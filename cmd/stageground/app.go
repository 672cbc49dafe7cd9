package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/natsclient"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/guidelab/stageground/config"
	stagingapi "github.com/guidelab/stageground/processor/staging-api"
)

// streamName is the JetStream stream carrying staging requests and results.
const streamName = "STAGING"

// App wires NATS, the JetStream stream, and the staging-api component into
// a running service.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	embeddedServer *server.Server
	natsClient     *natsclient.Client

	component *stagingapi.Component
}

// NewApp creates a new application instance.
func NewApp(cfg *config.Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{cfg: cfg, logger: logger}
}

// Start brings up NATS, ensures the staging stream exists, and starts the
// staging-api component.
func (a *App) Start(ctx context.Context) error {
	if err := a.startNATS(ctx); err != nil {
		return fmt.Errorf("start NATS: %w", err)
	}

	if err := a.ensureStream(ctx); err != nil {
		return fmt.Errorf("ensure stream: %w", err)
	}

	if err := a.startComponent(ctx); err != nil {
		return fmt.Errorf("start staging-api: %w", err)
	}

	a.logger.Info("stageground ready",
		"repository", a.cfg.Repo.Key().String(),
		"stream", streamName)
	return nil
}

// startNATS either connects to an external server or starts an embedded one.
func (a *App) startNATS(ctx context.Context) error {
	url := a.cfg.NATS.URL

	if url == "" || a.cfg.NATS.Embedded {
		a.logger.Info("Starting embedded NATS server")
		opts := &server.Options{
			Port:      -1, // Random available port
			JetStream: true,
			NoLog:     true,
			NoSigs:    true,
		}

		ns, err := server.NewServer(opts)
		if err != nil {
			return fmt.Errorf("create embedded NATS server: %w", err)
		}

		go ns.Start()

		if !ns.ReadyForConnections(5 * time.Second) {
			ns.Shutdown()
			return fmt.Errorf("embedded NATS server failed to start")
		}

		a.embeddedServer = ns
		url = ns.ClientURL()
		a.logger.Info("Embedded NATS server ready", "url", url)
	}

	client, err := natsclient.NewClient(url,
		natsclient.WithName("stageground"),
		natsclient.WithMaxReconnects(-1),
		natsclient.WithReconnectWait(time.Second),
	)
	if err != nil {
		return fmt.Errorf("create NATS client: %w", err)
	}

	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect to NATS at %s: %w", url, err)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.WaitForConnection(connCtx); err != nil {
		return fmt.Errorf("wait for NATS connection: %w", err)
	}

	a.natsClient = client
	return nil
}

// ensureStream creates or updates the staging stream.
func (a *App) ensureStream(ctx context.Context) error {
	js, err := a.natsClient.JetStream()
	if err != nil {
		return fmt.Errorf("get jetstream: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  []string{"staging.request", "staging.result.>"},
		Retention: jetstream.LimitsPolicy,
		MaxAge:    24 * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", streamName, err)
	}
	return nil
}

// startComponent builds the staging-api component from the service config.
func (a *App) startComponent(ctx context.Context) error {
	rawConfig, err := json.Marshal(map[string]any{
		"stream_name":    streamName,
		"repo_path":      a.cfg.Repo.Path,
		"retention":      a.cfg.Store.Retention,
		"remote_timeout": a.cfg.Remote.Timeout.String(),
	})
	if err != nil {
		return fmt.Errorf("marshal component config: %w", err)
	}

	discoverable, err := stagingapi.NewComponent(rawConfig, component.Dependencies{
		Logger:     a.logger,
		NATSClient: a.natsClient,
	})
	if err != nil {
		return fmt.Errorf("create component: %w", err)
	}

	comp, ok := discoverable.(*stagingapi.Component)
	if !ok {
		return fmt.Errorf("unexpected component type %T", discoverable)
	}

	if err := comp.Initialize(); err != nil {
		return fmt.Errorf("initialize component: %w", err)
	}
	if err := comp.Start(ctx); err != nil {
		return fmt.Errorf("start component: %w", err)
	}

	a.component = comp
	return nil
}

// Shutdown stops the component and tears down NATS.
func (a *App) Shutdown(ctx context.Context, timeout time.Duration) {
	if a.component != nil {
		if err := a.component.Stop(timeout); err != nil {
			a.logger.Warn("Failed to stop staging-api cleanly", "error", err)
		}
	}

	if a.natsClient != nil {
		a.natsClient.Close(ctx)
	}

	if a.embeddedServer != nil {
		a.embeddedServer.Shutdown()
		a.embeddedServer.WaitForShutdown()
	}

	a.logger.Info("stageground shutdown complete")
}
