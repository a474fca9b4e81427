// Package watcher watches a local style directory and reports edited SLD
// documents after they settle.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Event is a settled change to one style document.
type Event struct {
	Path      string // Absolute path of the document
	Key       string // Path relative to the watched root, slash separated
	Operation Operation
}

// Operation represents the type of file operation.
type Operation int

// File operation types.
const (
	OpCreate Operation = iota
	OpModify
	OpDelete
)

// String returns the string representation of the operation.
func (o Operation) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Handler is called once per settled event.
type Handler func(ctx context.Context, event Event) error

type pendingEvent struct {
	timestamp time.Time
	op        Operation
}

// Config holds watcher configuration.
type Config struct {
	Root     string
	Debounce time.Duration
}

// Watcher watches a style directory tree. Editors usually write a file in
// several steps, so events for the same path are merged until they have
// been quiet for the debounce interval.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	handler   Handler
	logger    *slog.Logger
	root      string
	debounce  time.Duration

	mu      sync.Mutex
	pending map[string]*pendingEvent
}

// New creates a new style watcher.
func New(cfg Config, handler Handler, logger *slog.Logger) (*Watcher, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, err
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if cfg.Debounce == 0 {
		cfg.Debounce = 500 * time.Millisecond
	}

	return &Watcher{
		fsWatcher: fsWatcher,
		handler:   handler,
		logger:    logger,
		root:      root,
		debounce:  cfg.Debounce,
		pending:   make(map[string]*pendingEvent),
	}, nil
}

// Start watches the root and every directory below it.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addTree(w.root); err != nil {
		return err
	}
	w.logger.Info("watching styles", "path", w.root)

	go w.eventLoop(ctx)
	go w.debounceLoop(ctx)

	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	return w.fsWatcher.Close()
}

// addTree adds dir and its subdirectories; fsnotify does not recurse.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsWatcher.Add(path); err != nil {
			w.logger.Warn("failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

func (w *Watcher) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleFsEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleFsEvent(event fsnotify.Event) {
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.logger.Warn("failed to watch new directory", "path", event.Name, "error", err)
			}
			return
		}
	}

	if !isStyleFile(event.Name) {
		return
	}

	w.logger.Debug("style file event", "path", event.Name, "op", event.Op.String())
	w.record(event.Name, fsnotifyOpToOperation(event.Op), time.Now())
}

// record merges op into the pending event for path.
func (w *Watcher) record(path string, op Operation, now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	existing, ok := w.pending[path]
	if !ok {
		w.pending[path] = &pendingEvent{timestamp: now, op: op}
		return
	}

	existing.timestamp = now
	switch {
	case existing.op == OpDelete && op == OpCreate:
		// Editors that save by rename land here.
		existing.op = OpModify
	case op == OpDelete:
		existing.op = OpDelete
	}
}

func (w *Watcher) debounceLoop(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case now := <-ticker.C:
			for _, e := range w.settled(now) {
				w.dispatch(ctx, e)
			}
		}
	}
}

// settled removes and returns the events quiet since the debounce interval.
func (w *Watcher) settled(now time.Time) []Event {
	w.mu.Lock()
	defer w.mu.Unlock()

	var events []Event
	for path, p := range w.pending {
		if now.Sub(p.timestamp) < w.debounce {
			continue
		}
		delete(w.pending, path)
		events = append(events, Event{Path: path, Key: w.key(path), Operation: p.op})
	}
	return events
}

func (w *Watcher) dispatch(ctx context.Context, e Event) {
	w.logger.Info("processing style event", "key", e.Key, "operation", e.Operation.String())

	if err := w.handler(ctx, e); err != nil {
		w.logger.Error("style handler error",
			"key", e.Key,
			"operation", e.Operation.String(),
			"error", err,
		)
	}
}

func (w *Watcher) key(path string) string {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// fsnotifyOpToOperation converts fsnotify.Op to our Operation type.
func fsnotifyOpToOperation(op fsnotify.Op) Operation {
	switch {
	case op.Has(fsnotify.Remove):
		return OpDelete
	case op.Has(fsnotify.Rename):
		// The file is gone from its original location.
		return OpDelete
	case op.Has(fsnotify.Create):
		return OpCreate
	default:
		return OpModify
	}
}

func isStyleFile(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".sld")
}
