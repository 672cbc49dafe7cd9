package commands

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchEventBuffer is the size of the watch event channel.
const watchEventBuffer = 256

// WatchEvent is one debounced artifact change under the checkout root.
type WatchEvent struct {
	// Path is relative to the checkout root, slash-separated.
	Path string
	// Removed is true when the file no longer exists on disk.
	Removed bool
}

// Watcher watches a checkout root for guideline artifact changes. Raw
// fsnotify events are accumulated and flushed once per debounce interval so
// an editor's burst of writes yields a single event per path.
type Watcher struct {
	root       string
	debounce   time.Duration
	watcher    *fsnotify.Watcher
	logger     *slog.Logger
	extensions map[string]bool
	excludes   map[string]bool

	pendingMu sync.Mutex
	pending   map[string]struct{}

	events chan WatchEvent
}

// defaultWatchExtensions lists the artifact extensions staged automatically.
var defaultWatchExtensions = []string{".bpmn", ".dmn", ".json"}

// NewWatcher creates a watcher for the given checkout root.
func NewWatcher(root string, debounce time.Duration, extensions []string, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	if len(extensions) == 0 {
		extensions = defaultWatchExtensions
	}

	extSet := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		extSet[strings.ToLower(ext)] = true
	}

	return &Watcher{
		root:       root,
		debounce:   debounce,
		watcher:    fsw,
		logger:     logger,
		extensions: extSet,
		excludes:   map[string]bool{".git": true, "node_modules": true, "vendor": true},
		pending:    make(map[string]struct{}),
		events:     make(chan WatchEvent, watchEventBuffer),
	}, nil
}

// Events returns the channel of debounced watch events. It is closed when
// the watcher stops.
func (w *Watcher) Events() <-chan WatchEvent {
	return w.events
}

// Start adds watches for the checkout tree and begins processing events
// until the context is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addWatchesRecursive(w.root); err != nil {
		return err
	}

	go w.processEvents(ctx)

	w.logger.Info("Watching checkout for artifact changes",
		"root", w.root,
		"debounce", w.debounce)
	return nil
}

// Stop closes the underlying fsnotify watcher. The events channel is closed
// by the processing goroutine on exit.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

// addWatchesRecursive adds watches to every non-excluded directory.
func (w *Watcher) addWatchesRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}

		base := filepath.Base(path)
		if w.excludes[base] || (strings.HasPrefix(base, ".") && path != root) {
			return filepath.SkipDir
		}

		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("Failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

// processEvents accumulates fsnotify events and flushes them on a debounce
// tick.
func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.events)
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", "error", err)

		case <-ticker.C:
			w.flushPending()
		}
	}
}

// handleFSEvent records one raw event for the next flush.
func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	path := event.Name

	ext := strings.ToLower(filepath.Ext(path))
	if !w.extensions[ext] {
		// New directories need their own watch.
		if event.Has(fsnotify.Create) {
			if info, err := os.Stat(path); err == nil && info.IsDir() {
				w.handleNewDirectory(path)
			}
		}
		return
	}

	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return
	}
	for exclude := range w.excludes {
		if strings.Contains(rel, exclude+string(filepath.Separator)) {
			return
		}
	}

	w.pendingMu.Lock()
	w.pending[filepath.ToSlash(rel)] = struct{}{}
	w.pendingMu.Unlock()
}

// handleNewDirectory adds a watch to a newly created directory.
func (w *Watcher) handleNewDirectory(path string) {
	base := filepath.Base(path)
	if w.excludes[base] || strings.HasPrefix(base, ".") {
		return
	}
	if err := w.watcher.Add(path); err != nil {
		w.logger.Warn("Failed to watch new directory", "path", path, "error", err)
	}
}

// flushPending converts accumulated paths into watch events. Existence on
// disk decides between a staged update and a removal, which also collapses
// the rename dances editors perform on save.
func (w *Watcher) flushPending() {
	w.pendingMu.Lock()
	if len(w.pending) == 0 {
		w.pendingMu.Unlock()
		return
	}
	paths := make([]string, 0, len(w.pending))
	for path := range w.pending {
		paths = append(paths, path)
	}
	w.pending = make(map[string]struct{})
	w.pendingMu.Unlock()

	sort.Strings(paths)
	for _, rel := range paths {
		_, err := os.Stat(filepath.Join(w.root, filepath.FromSlash(rel)))
		event := WatchEvent{Path: rel, Removed: os.IsNotExist(err)}

		select {
		case w.events <- event:
		default:
			w.logger.Warn("Watch event dropped, channel full", "path", rel)
		}
	}
}
