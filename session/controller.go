package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/guidelab/stageground/repo"
	"github.com/guidelab/stageground/rules"
	"github.com/guidelab/stageground/staging"
	"github.com/guidelab/stageground/validation"
)

// ErrNotStaged is returned when removing a path the session does not hold.
var ErrNotStaged = errors.New("path not staged")

// DefaultRemoteTimeout bounds Content Source and Commit Sink calls.
const DefaultRemoteTimeout = 30 * time.Second

// maxStaleRetries bounds reload-and-retry cycles on ErrStaleWrite.
const maxStaleRetries = 3

// Controller exposes the engine's public contract to editors and to the
// commit pipeline. It is safe for concurrent use; commit attempts for the
// same repository key are serialized.
type Controller struct {
	store   staging.Store
	engine  *validation.Engine
	source  repo.ContentSource
	sink    repo.CommitSink
	logger  *slog.Logger
	timeout time.Duration
	opts    validation.Options

	mu      sync.Mutex
	entries map[string]*entry
}

// NewController wires the controller. source and sink may be nil for
// offline staging; Commit then fails with a configuration error.
func NewController(store staging.Store, engine *validation.Engine, source repo.ContentSource, sink repo.CommitSink, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		store:   store,
		engine:  engine,
		source:  source,
		sink:    sink,
		logger:  logger,
		timeout: DefaultRemoteTimeout,
		opts:    validation.DefaultOptions(),
		entries: make(map[string]*entry),
	}
}

// WithTimeout replaces the remote-call timeout.
func (c *Controller) WithTimeout(d time.Duration) *Controller {
	c.timeout = d
	return c
}

// WithOptions replaces the report options used for edit-triggered validation.
func (c *Controller) WithOptions(opts validation.Options) *Controller {
	c.opts = opts
	return c
}

func (c *Controller) entry(key staging.RepositoryKey) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.String()]
	if !ok {
		e = newEntry()
		c.entries[key.String()] = e
	}
	return e
}

// State returns the controller's lifecycle position for a key.
func (c *Controller) State(key staging.RepositoryKey) State {
	return c.entry(key).currentState()
}

// PutFile stages a full-content edit, persists it, and revalidates. The
// session is created lazily on the first edit.
func (c *Controller) PutFile(ctx context.Context, key staging.RepositoryKey, path, content string) (*validation.Report, error) {
	session, err := c.mutate(ctx, key, func(s *staging.Session) error {
		s.Put(path, content, time.Now())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.revalidate(ctx, key, session)
}

// RemoveFile unstages a path, persists, and revalidates.
func (c *Controller) RemoveFile(ctx context.Context, key staging.RepositoryKey, path string) (*validation.Report, error) {
	session, err := c.mutate(ctx, key, func(s *staging.Session) error {
		if !s.Remove(path) {
			return fmt.Errorf("%w: %s", ErrNotStaged, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.revalidate(ctx, key, session)
}

// SetMessage updates the pending commit message.
func (c *Controller) SetMessage(ctx context.Context, key staging.RepositoryKey, message string) error {
	_, err := c.mutate(ctx, key, func(s *staging.Session) error {
		s.Message = message
		return nil
	})
	return err
}

// mutate applies fn to the stored session under optimistic concurrency: a
// stale persist triggers reload-and-re-apply, bounded by maxStaleRetries.
func (c *Controller) mutate(ctx context.Context, key staging.RepositoryKey, fn func(*staging.Session) error) (*staging.Session, error) {
	e := c.entry(key)
	for attempt := 0; attempt < maxStaleRetries; attempt++ {
		session, err := c.store.Load(ctx, key)
		switch {
		case errors.Is(err, staging.ErrSessionNotFound):
			session = staging.NewSession(key, c.baseRevision(ctx, key))
		case err != nil:
			return nil, err
		}

		if err := fn(session); err != nil {
			return nil, err
		}
		_, err = c.store.Persist(ctx, session, session.LatestSavePointID())
		if errors.Is(err, staging.ErrStaleWrite) {
			c.logger.Debug("stale persist, retrying", "repository", key.String(), "attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, err
		}
		e.markDirty()
		return session, nil
	}
	return nil, fmt.Errorf("persist %s: %w after %d attempts", key, staging.ErrStaleWrite, maxStaleRetries)
}

// baseRevision pins a new session to the branch head. Offline staging is
// allowed: an unreachable Content Source leaves the base empty.
func (c *Controller) baseRevision(ctx context.Context, key staging.RepositoryKey) string {
	if c.source == nil {
		return ""
	}
	rctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	rev, err := c.source.CurrentRevision(rctx, key)
	if err != nil {
		c.logger.Debug("base revision unavailable", "repository", key.String(), "error", err)
		return ""
	}
	return rev
}

// reader adapts the Content Source into the cross-file rules' window,
// pinned at one revision so repeated validation stays deterministic.
func (c *Controller) reader(key staging.RepositoryKey, revision string) rules.RepoReader {
	if c.source == nil {
		return nil
	}
	return &sourceReader{source: c.source, key: key, revision: revision}
}

// revalidate runs the engine over the session. Only the most recently
// started validation for the current content installs its report.
func (c *Controller) revalidate(ctx context.Context, key staging.RepositoryKey, session *staging.Session) (*validation.Report, error) {
	e := c.entry(key)
	generation := e.beginValidation()
	report, err := c.engine.ValidateSession(ctx, session, c.reader(key, session.BaseRevision), c.opts)
	if err != nil {
		e.abandonValidation(generation)
		return nil, err
	}
	e.completeValidation(generation, report)
	return report, nil
}

// Report returns the aggregate validation report for a key, validating on
// demand when no authoritative report is cached.
func (c *Controller) Report(ctx context.Context, key staging.RepositoryKey) (*validation.Report, error) {
	if report, ok := c.entry(key).lastReport(); ok {
		return report, nil
	}
	session, err := c.store.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	return c.revalidate(ctx, key, session)
}

// ListSavePoints lists the session's save-points, oldest first.
func (c *Controller) ListSavePoints(ctx context.Context, key staging.RepositoryKey) ([]staging.SavePointInfo, error) {
	return c.store.ListSavePoints(ctx, key)
}

// Rollback restores the session to a save-point and revalidates.
func (c *Controller) Rollback(ctx context.Context, key staging.RepositoryKey, savePointID string) (*validation.Report, error) {
	session, err := c.store.Rollback(ctx, key, savePointID)
	if err != nil {
		return nil, err
	}
	c.entry(key).markDirty()
	return c.revalidate(ctx, key, session)
}

// Discard removes all session state for a key.
func (c *Controller) Discard(ctx context.Context, key staging.RepositoryKey) error {
	if err := c.store.Discard(ctx, key); err != nil {
		return err
	}
	c.entry(key).reset()
	return nil
}

// CommitResult is the typed outcome of a commit attempt. Failure outcomes
// are results, not errors: staged content is always preserved.
type CommitResult struct {
	State          State              `json:"state"`
	CommitID       string             `json:"commit_id,omitempty"`
	Report         *validation.Report `json:"report,omitempty"`
	DivergentPaths []string           `json:"divergent_paths,omitempty"`
	// Overridden records that errors were present and explicitly overridden.
	Overridden bool   `json:"overridden,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// Commit runs the commit protocol: re-validate, reconcile against the
// Content Source's current revision, then invoke the Commit Sink. On
// success the session is torn down; on conflict or sink failure staged
// content survives and the state returns to what the validation determined.
func (c *Controller) Commit(ctx context.Context, key staging.RepositoryKey, message string, overrideErrors bool) (*CommitResult, error) {
	if c.source == nil || c.sink == nil {
		return nil, fmt.Errorf("commit requires a content source and a commit sink")
	}

	e := c.entry(key)
	e.commitMu.Lock()
	defer e.commitMu.Unlock()

	session, err := c.store.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(session.Files) == 0 {
		return nil, fmt.Errorf("nothing to commit for %s", key)
	}
	if message == "" {
		message = session.Message
	}

	// Staged content may have been mutated by a concurrent editor since the
	// last validation; never commit on a stale report.
	report, err := c.revalidate(ctx, key, session)
	if err != nil {
		return nil, err
	}
	if !report.CanCommit && !overrideErrors {
		return &CommitResult{State: StateBlocked, Report: report, Reason: "validation errors block commit"}, nil
	}
	overridden := overrideErrors && !report.CanCommit

	e.setState(StateCommitting)
	fail := func(state State, reason string, divergent []string) *CommitResult {
		e.restoreValidated(report)
		return &CommitResult{
			State:          state,
			Report:         report,
			DivergentPaths: divergent,
			Overridden:     overridden,
			Reason:         reason,
		}
	}

	rctx, cancel := context.WithTimeout(ctx, c.timeout)
	currentRev, err := c.source.CurrentRevision(rctx, key)
	cancel()
	if err != nil {
		c.logger.Warn("revision check failed", "repository", key.String(), "error", err)
		return fail(StateCommitFailed, fmt.Sprintf("revision check failed: %v", err), nil), nil
	}

	divergent, err := c.divergentPaths(ctx, key, session, currentRev)
	if err != nil {
		return fail(StateCommitFailed, fmt.Sprintf("divergence check failed: %v", err), nil), nil
	}
	if len(divergent) > 0 {
		c.logger.Info("commit conflict", "repository", key.String(), "paths", divergent)
		return fail(StateConflictDetected, "remote revision diverged for staged paths", divergent), nil
	}

	files := make([]repo.CommitFile, 0, len(session.Files))
	for _, path := range sortedPaths(session.Files) {
		files = append(files, repo.CommitFile{Path: path, Content: session.Files[path].Content})
	}

	sctx, cancel := context.WithTimeout(ctx, c.timeout)
	commitID, err := c.sink.Commit(sctx, key, message, files)
	cancel()
	if err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return fail(StateConflictDetected, err.Error(), nil), nil
		}
		return fail(StateCommitFailed, err.Error(), nil), nil
	}

	if err := c.store.Discard(ctx, key); err != nil {
		// The commit landed; losing teardown must not report failure.
		c.logger.Warn("session teardown failed after commit", "repository", key.String(), "error", err)
	}
	e.reset()
	c.logger.Info("committed session", "repository", key.String(), "commit", commitID, "files", len(files), "overridden", overridden)
	return &CommitResult{State: StateCommitted, CommitID: commitID, Report: report, Overridden: overridden}, nil
}

// divergentPaths finds staged paths whose upstream content changed between
// the staged base revision and the branch's current revision. A partial
// commit is never attempted when any path diverged.
func (c *Controller) divergentPaths(ctx context.Context, key staging.RepositoryKey, session *staging.Session, currentRev string) ([]string, error) {
	var divergent []string
	for _, path := range sortedPaths(session.Files) {
		f := session.Files[path]
		base := f.BaseRevision
		if base == currentRev {
			continue
		}

		rctx, cancel := context.WithTimeout(ctx, c.timeout)
		current, currentErr := c.source.ReadFile(rctx, key, path, currentRev)
		cancel()
		if currentErr != nil && !errors.Is(currentErr, repo.ErrNotFound) {
			return nil, currentErr
		}

		if base == "" {
			// New or offline-staged file: it diverged only if it meanwhile
			// exists upstream.
			if currentErr == nil {
				divergent = append(divergent, path)
			}
			continue
		}

		rctx, cancel = context.WithTimeout(ctx, c.timeout)
		baseline, baseErr := c.source.ReadFile(rctx, key, path, base)
		cancel()
		if baseErr != nil && !errors.Is(baseErr, repo.ErrNotFound) {
			return nil, baseErr
		}

		switch {
		case currentErr == nil && baseErr == nil:
			if !bytes.Equal(current, baseline) {
				divergent = append(divergent, path)
			}
		case errors.Is(currentErr, repo.ErrNotFound) != errors.Is(baseErr, repo.ErrNotFound):
			// Created or deleted upstream since the edit was based.
			divergent = append(divergent, path)
		}
	}
	return divergent, nil
}

func sortedPaths(files map[string]*staging.StagedFile) []string {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// sourceReader pins the Content Source at one revision for cross-file rules.
type sourceReader struct {
	source   repo.ContentSource
	key      staging.RepositoryKey
	revision string
}

func (r *sourceReader) ReadFile(ctx context.Context, path string) ([]byte, bool, error) {
	data, err := r.source.ReadFile(ctx, r.key, path, r.revision)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (r *sourceReader) ListFiles(ctx context.Context, pattern string) ([]string, error) {
	return r.source.ListFiles(ctx, r.key, r.revision, pattern)
}
