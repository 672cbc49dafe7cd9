// Package stagingapi provides a JetStream processor exposing the staging
// session controller over NATS. It consumes StagingRequest messages from
// staging.request, applies them through the controller, and publishes a
// StagingResult per request.
package stagingapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/message"
	"github.com/c360studio/semstreams/natsclient"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/guidelab/stageground/repo/gitcli"
	"github.com/guidelab/stageground/rules/guideline"
	"github.com/guidelab/stageground/session"
	"github.com/guidelab/stageground/staging"
	"github.com/guidelab/stageground/staging/natskv"
	"github.com/guidelab/stageground/validation"
)

// Component implements the staging-api processor.
type Component struct {
	name       string
	config     Config
	natsClient *natsclient.Client
	logger     *slog.Logger
	git        *gitcli.Client

	// Built in Start once JetStream is available.
	controller *session.Controller

	// JetStream consumer state.
	consumer jetstream.Consumer

	// Lifecycle.
	running   bool
	startTime time.Time
	mu        sync.RWMutex
	cancel    context.CancelFunc

	// Metrics.
	requestsProcessed atomic.Int64
	errorsCount       atomic.Int64
	lastActivityMu    sync.RWMutex
	lastActivity      time.Time
}

// NewComponent constructs a staging-api Component from raw JSON config and
// semstreams dependencies.
func NewComponent(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	var config Config
	if err := json.Unmarshal(rawConfig, &config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Apply defaults for any unset fields.
	defaults := DefaultConfig()
	if config.StreamName == "" {
		config.StreamName = defaults.StreamName
	}
	if config.ConsumerName == "" {
		config.ConsumerName = defaults.ConsumerName
	}
	if config.Retention == 0 {
		config.Retention = defaults.Retention
	}
	if config.RemoteTimeout == "" {
		config.RemoteTimeout = defaults.RemoteTimeout
	}
	if config.Ports == nil {
		config.Ports = defaults.Ports
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := deps.GetLogger()
	repoPath := resolveRepoPath(config.RepoPath)

	return &Component{
		name:       "staging-api",
		config:     config,
		natsClient: deps.NATSClient,
		logger:     logger,
		git:        gitcli.New(repoPath, logger),
	}, nil
}

// resolveRepoPath determines the effective checkout root.
// Priority: explicit config → STAGEGROUND_REPO_PATH env var → working directory.
func resolveRepoPath(configured string) string {
	if configured != "" {
		return configured
	}
	if env := os.Getenv("STAGEGROUND_REPO_PATH"); env != "" {
		return env
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return cwd
}

// Initialize prepares the component for startup.
func (c *Component) Initialize() error {
	c.logger.Debug("Initialized staging-api",
		"stream", c.config.StreamName,
		"consumer", c.config.ConsumerName)
	return nil
}

// Start wires the store and controller, then begins consuming StagingRequest
// messages from JetStream.
func (c *Component) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("component already running")
	}
	if c.natsClient == nil {
		c.mu.Unlock()
		return fmt.Errorf("NATS client required")
	}

	c.running = true
	c.startTime = time.Now()

	subCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	js, err := c.natsClient.JetStream()
	if err != nil {
		c.rollbackStart(cancel)
		return fmt.Errorf("get jetstream: %w", err)
	}

	store, err := natskv.New(subCtx, js, c.config.Retention)
	if err != nil {
		c.rollbackStart(cancel)
		return fmt.Errorf("create staging store: %w", err)
	}

	registry, err := guideline.NewRegistry()
	if err != nil {
		c.rollbackStart(cancel)
		return fmt.Errorf("build rule registry: %w", err)
	}
	engine := validation.NewEngine(registry, c.logger)
	c.controller = session.NewController(store, engine, c.git, c.git, c.logger).
		WithTimeout(c.config.GetRemoteTimeout())

	stream, err := js.Stream(subCtx, c.config.StreamName)
	if err != nil {
		c.rollbackStart(cancel)
		return fmt.Errorf("get stream %s: %w", c.config.StreamName, err)
	}

	requestSubject := "staging.request"
	if c.config.Ports != nil && len(c.config.Ports.Inputs) > 0 {
		requestSubject = c.config.Ports.Inputs[0].Subject
	}

	consumerConfig := jetstream.ConsumerConfig{
		Durable:       c.config.ConsumerName,
		FilterSubject: requestSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		// Commits wait on two remote calls; give the ack deadline headroom.
		AckWait:    2*c.config.GetRemoteTimeout() + 30*time.Second,
		MaxDeliver: 3,
	}

	consumer, err := stream.CreateOrUpdateConsumer(subCtx, consumerConfig)
	if err != nil {
		c.rollbackStart(cancel)
		return fmt.Errorf("create consumer: %w", err)
	}
	c.consumer = consumer

	go c.consumeLoop(subCtx)

	c.logger.Info("staging-api started",
		"stream", c.config.StreamName,
		"consumer", c.config.ConsumerName,
		"subject", requestSubject)

	return nil
}

func (c *Component) rollbackStart(cancel context.CancelFunc) {
	c.mu.Lock()
	c.running = false
	c.cancel = nil
	c.mu.Unlock()
	cancel()
}

// consumeLoop fetches messages from the JetStream consumer in a tight loop
// until the context is cancelled.
func (c *Component) consumeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := c.consumer.Fetch(1, jetstream.FetchMaxWait(5*time.Second))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Debug("Fetch timeout or error", "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			c.handleMessage(ctx, msg)
		}

		if msgs.Error() != nil && msgs.Error() != context.DeadlineExceeded {
			c.logger.Warn("Message fetch error", "error", msgs.Error())
		}
	}
}

// handleMessage processes a single StagingRequest message.
func (c *Component) handleMessage(ctx context.Context, msg jetstream.Msg) {
	c.requestsProcessed.Add(1)
	c.updateLastActivity()

	var baseMsg message.BaseMessage
	if err := json.Unmarshal(msg.Data(), &baseMsg); err != nil {
		c.errorsCount.Add(1)
		c.logger.Error("Failed to parse message", "error", err)
		if nakErr := msg.Nak(); nakErr != nil {
			c.logger.Warn("Failed to NAK message", "error", nakErr)
		}
		return
	}

	var request StagingRequest
	payloadBytes, err := json.Marshal(baseMsg.Payload())
	if err == nil {
		err = json.Unmarshal(payloadBytes, &request)
	}
	if err != nil {
		c.errorsCount.Add(1)
		c.logger.Error("Failed to unmarshal request", "error", err)
		if nakErr := msg.Nak(); nakErr != nil {
			c.logger.Warn("Failed to NAK message", "error", nakErr)
		}
		return
	}

	if err := request.Validate(); err != nil {
		c.logger.Error("Invalid request", "error", err)
		// ACK invalid messages — they will not succeed on retry.
		if ackErr := msg.Ack(); ackErr != nil {
			c.logger.Warn("Failed to ACK invalid message", "error", ackErr)
		}
		return
	}

	c.logger.Info("Processing staging request",
		"verb", request.Verb,
		"repository", request.Repository,
		"path", request.Path)

	result := c.dispatch(ctx, &request)
	if !result.OK {
		c.errorsCount.Add(1)
	}

	if err := c.publishResult(ctx, result); err != nil {
		c.logger.Warn("Failed to publish staging result",
			"verb", request.Verb,
			"repository", request.Repository,
			"error", err)
	}

	if ackErr := msg.Ack(); ackErr != nil {
		c.logger.Warn("Failed to ACK message", "error", ackErr)
	}
}

// dispatch applies one request through the controller. All failures are
// carried in the result; the message layer never retries domain errors.
func (c *Component) dispatch(ctx context.Context, request *StagingRequest) *StagingResult {
	result := &StagingResult{
		Verb:       request.Verb,
		Repository: request.Repository,
		RequestID:  request.RequestID,
	}

	key, err := staging.ParseRepositoryKey(request.Repository)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	switch request.Verb {
	case VerbPut:
		report, err := c.controller.PutFile(ctx, key, request.Path, request.Content)
		c.fillReport(result, report, err)
	case VerbRemove:
		report, err := c.controller.RemoveFile(ctx, key, request.Path)
		c.fillReport(result, report, err)
	case VerbMessage:
		if err := c.controller.SetMessage(ctx, key, request.Message); err != nil {
			result.Error = err.Error()
			return result
		}
		result.OK = true
	case VerbReport:
		report, err := c.controller.Report(ctx, key)
		c.fillReport(result, report, err)
	case VerbSavePoints:
		infos, err := c.controller.ListSavePoints(ctx, key)
		if err != nil {
			result.Error = err.Error()
			return result
		}
		result.OK = true
		result.SavePoints = infos
	case VerbRollback:
		report, err := c.controller.Rollback(ctx, key, request.SavePoint)
		c.fillReport(result, report, err)
	case VerbDiscard:
		if err := c.controller.Discard(ctx, key); err != nil {
			result.Error = err.Error()
			return result
		}
		result.OK = true
		result.State = string(session.StateEmpty)
	case VerbCommit:
		commit, err := c.controller.Commit(ctx, key, request.Message, request.Override)
		if err != nil {
			result.Error = err.Error()
			return result
		}
		result.OK = commit.State == session.StateCommitted
		result.State = string(commit.State)
		result.Report = commit.Report
		result.CommitID = commit.CommitID
		result.DivergentPaths = commit.DivergentPaths
		result.Overridden = commit.Overridden
		result.Error = commit.Reason
	}
	if result.State == "" {
		result.State = string(c.controller.State(key))
	}
	return result
}

func (c *Component) fillReport(result *StagingResult, report *validation.Report, err error) {
	if err != nil {
		result.Error = err.Error()
		return
	}
	result.OK = true
	result.Report = report
}

// publishResult publishes a StagingResult to JetStream.
// Subject: staging.result.<verb>.<repository> with key separators folded.
func (c *Component) publishResult(ctx context.Context, result *StagingResult) error {
	baseMsg := message.NewBaseMessage(result.Schema(), result, "staging-api")

	data, err := json.Marshal(baseMsg)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	js, err := c.natsClient.JetStream()
	if err != nil {
		return fmt.Errorf("get jetstream: %w", err)
	}

	subject := fmt.Sprintf("staging.result.%s.%s", result.Verb, subjectToken(result.Repository))
	if _, err := js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// subjectToken folds the repository key into one NATS subject token.
func subjectToken(repository string) string {
	return strings.NewReplacer("/", "_", "@", "_", ".", "_", " ", "_").Replace(repository)
}

// Stop gracefully stops the component.
func (c *Component) Stop(_ time.Duration) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}

	// Copy cancel function and clear state before releasing lock
	cancel := c.cancel
	c.running = false
	c.cancel = nil
	c.mu.Unlock()

	// Cancel context after releasing lock to avoid potential deadlock
	if cancel != nil {
		cancel()
	}

	c.logger.Info("staging-api stopped",
		"requests_processed", c.requestsProcessed.Load(),
		"errors", c.errorsCount.Load())

	return nil
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "staging-api",
		Type:        "processor",
		Description: "Exposes the staging session controller over NATS",
		Version:     "0.1.0",
	}
}

// InputPorts returns the configured input port definitions.
func (c *Component) InputPorts() []component.Port {
	if c.config.Ports == nil {
		return []component.Port{}
	}
	ports := make([]component.Port, len(c.config.Ports.Inputs))
	for i, def := range c.config.Ports.Inputs {
		ports[i] = component.Port{
			Name:        def.Name,
			Direction:   component.DirectionInput,
			Required:    def.Required,
			Description: def.Description,
			Config:      component.NATSPort{Subject: def.Subject},
		}
	}
	return ports
}

// OutputPorts returns the configured output port definitions.
func (c *Component) OutputPorts() []component.Port {
	if c.config.Ports == nil {
		return []component.Port{}
	}
	ports := make([]component.Port, len(c.config.Ports.Outputs))
	for i, def := range c.config.Ports.Outputs {
		ports[i] = component.Port{
			Name:        def.Name,
			Direction:   component.DirectionOutput,
			Required:    def.Required,
			Description: def.Description,
			Config:      component.NATSPort{Subject: def.Subject},
		}
	}
	return ports
}

// ConfigSchema returns the configuration schema.
func (c *Component) ConfigSchema() component.ConfigSchema {
	return stagingAPISchema
}

// Health returns the current health status.
func (c *Component) Health() component.HealthStatus {
	c.mu.RLock()
	running := c.running
	startTime := c.startTime
	c.mu.RUnlock()

	status := "stopped"
	if running {
		status = "running"
	}

	return component.HealthStatus{
		Healthy:    running,
		LastCheck:  time.Now(),
		ErrorCount: int(c.errorsCount.Load()),
		Uptime:     time.Since(startTime),
		Status:     status,
	}
}

// DataFlow returns current data flow metrics.
func (c *Component) DataFlow() component.FlowMetrics {
	return component.FlowMetrics{
		MessagesPerSecond: 0,
		BytesPerSecond:    0,
		ErrorRate:         0,
		LastActivity:      c.getLastActivity(),
	}
}

func (c *Component) updateLastActivity() {
	c.lastActivityMu.Lock()
	c.lastActivity = time.Now()
	c.lastActivityMu.Unlock()
}

func (c *Component) getLastActivity() time.Time {
	c.lastActivityMu.RLock()
	defer c.lastActivityMu.RUnlock()
	return c.lastActivity
}
