package tags

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatcherConfig configures the file watcher
type WatcherConfig struct {
	// RepoRoot is the root directory to watch
	RepoRoot string

	// Registry selects parsers by file extension (DefaultRegistry if nil)
	Registry *ParserRegistry

	// Options are passed to every parser the watcher creates. Event paths
	// are relative to Options.RepoRoot when set, otherwise to RepoRoot.
	Options ParserOptions

	// Excludes are directory base names that are never watched
	Excludes []string

	// DebounceDelay is how long to wait for more changes before processing
	DebounceDelay time.Duration

	// Logger for logging events
	Logger *slog.Logger
}

// WatchEvent represents a file change event
type WatchEvent struct {
	// Path is the file path relative to repo root
	Path string

	// Operation is the type of change
	Operation WatchOperation

	// Result is the parse result (nil for delete operations)
	Result *ParseResult

	// Error if parsing failed
	Error error
}

// WatchOperation indicates the type of file operation
type WatchOperation string

const (
	OpCreate WatchOperation = "create"
	OpModify WatchOperation = "modify"
	OpDelete WatchOperation = "delete"
)

// Watcher watches for unit file changes and emits parse results
type Watcher struct {
	config   WatcherConfig
	registry *ParserRegistry
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	excludes map[string]bool

	parserMu sync.Mutex
	parsers  map[string]FileParser // parser name → instance

	// Debouncing: collect changes before processing
	pendingMu sync.Mutex
	pending   map[string]fsnotify.Op // path → most recent operation

	// State tracking for change detection
	hashMu sync.RWMutex
	hashes map[string]string // path → content hash

	events chan WatchEvent
}

// NewWatcher creates a new file watcher
func NewWatcher(config WatcherConfig) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if config.DebounceDelay == 0 {
		config.DebounceDelay = 100 * time.Millisecond
	}

	registry := config.Registry
	if registry == nil {
		registry = DefaultRegistry
	}

	excludes := make(map[string]bool, len(config.Excludes))
	for _, exc := range config.Excludes {
		excludes[exc] = true
	}

	return &Watcher{
		config:   config,
		registry: registry,
		watcher:  fsw,
		logger:   logger,
		excludes: excludes,
		parsers:  make(map[string]FileParser),
		pending:  make(map[string]fsnotify.Op),
		hashes:   make(map[string]string),
		events:   make(chan WatchEvent, 100),
	}, nil
}

// Events returns the channel of watch events
func (w *Watcher) Events() <-chan WatchEvent {
	return w.events
}

// Start begins watching the repository for changes
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addWatchesRecursive(w.config.RepoRoot); err != nil {
		return err
	}

	go w.processEvents(ctx)

	w.logger.Info("File watcher started",
		"root", w.config.RepoRoot,
		"debounce", w.config.DebounceDelay)

	return nil
}

// Stop stops the watcher
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

// SetHash records the hash for a file (used during initial indexing)
func (w *Watcher) SetHash(path, hash string) {
	w.hashMu.Lock()
	defer w.hashMu.Unlock()
	w.hashes[path] = hash
}

// GetHash returns the recorded hash for a file
func (w *Watcher) GetHash(path string) (string, bool) {
	w.hashMu.RLock()
	defer w.hashMu.RUnlock()
	hash, ok := w.hashes[path]
	return hash, ok
}

func (w *Watcher) skipDir(path string) bool {
	base := filepath.Base(path)
	if path == w.config.RepoRoot {
		return false
	}
	return w.excludes[base] || strings.HasPrefix(base, ".")
}

// addWatchesRecursive adds watches to all directories
func (w *Watcher) addWatchesRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() {
			return nil
		}

		if w.skipDir(path) {
			return filepath.SkipDir
		}

		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("Failed to watch directory",
				"path", path,
				"error", err)
		} else {
			w.logger.Debug("Watching directory", "path", path)
		}

		return nil
	})
}

// processEvents handles fsnotify events with debouncing
func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.events)

	ticker := time.NewTicker(w.config.DebounceDelay)
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
			w.flushPending(ctx)
		}
	}
}

// handleFSEvent processes a single fsnotify event
func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	path := event.Name

	if _, ok := w.registry.ParserNameForFile(path); !ok {
		// Not a unit file, but new directories need watches
		if event.Has(fsnotify.Create) {
			if info, err := os.Stat(path); err == nil && info.IsDir() {
				w.handleNewDirectory(path)
			}
		}
		return
	}

	w.pendingMu.Lock()
	w.pending[path] = event.Op
	w.pendingMu.Unlock()

	w.logger.Debug("File change detected",
		"path", w.relPath(path),
		"op", event.Op.String())
}

// handleNewDirectory adds a watch to a newly created directory
func (w *Watcher) handleNewDirectory(path string) {
	if w.skipDir(path) {
		return
	}

	if err := w.watcher.Add(path); err != nil {
		w.logger.Warn("Failed to watch new directory",
			"path", path,
			"error", err)
	} else {
		w.logger.Debug("Added watch for new directory", "path", path)
	}
}

func (w *Watcher) relPath(path string) string {
	base := w.config.Options.RepoRoot
	if base == "" {
		base = w.config.RepoRoot
	}
	rel, err := filepath.Rel(base, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// parserFor returns the cached parser instance for a file
func (w *Watcher) parserFor(path string) (FileParser, error) {
	name, ok := w.registry.ParserNameForFile(path)
	if !ok {
		return nil, ErrNoParser
	}

	w.parserMu.Lock()
	defer w.parserMu.Unlock()

	if p, ok := w.parsers[name]; ok {
		return p, nil
	}
	opts := w.config.Options
	if opts.RepoRoot == "" {
		opts.RepoRoot = w.config.RepoRoot
	}
	p, err := w.registry.CreateParser(name, opts)
	if err != nil {
		return nil, err
	}
	w.parsers[name] = p
	return p, nil
}

// flushPending processes accumulated changes
func (w *Watcher) flushPending(ctx context.Context) {
	w.pendingMu.Lock()
	if len(w.pending) == 0 {
		w.pendingMu.Unlock()
		return
	}

	toProcess := w.pending
	w.pending = make(map[string]fsnotify.Op)
	w.pendingMu.Unlock()

	for path, op := range toProcess {
		select {
		case <-ctx.Done():
			return
		default:
		}

		relPath := w.relPath(path)
		event := WatchEvent{Path: relPath}

		_, statErr := os.Stat(path)
		if op.Has(fsnotify.Remove) || op.Has(fsnotify.Rename) || os.IsNotExist(statErr) {
			// Rename is treated as delete; the new name arrives as a create
			event.Operation = OpDelete

			w.hashMu.Lock()
			delete(w.hashes, relPath)
			w.hashMu.Unlock()

			w.sendEvent(event)
			continue
		}

		parser, err := w.parserFor(path)
		if err != nil {
			event.Error = err
			w.sendEvent(event)
			continue
		}

		result, err := parser.ParseFile(ctx, path)
		if err != nil {
			event.Error = err
			w.sendEvent(event)
			continue
		}

		oldHash, hadHash := w.GetHash(relPath)
		if hadHash && oldHash == result.Hash {
			continue
		}

		w.SetHash(relPath, result.Hash)

		if op.Has(fsnotify.Create) || !hadHash {
			event.Operation = OpCreate
		} else {
			event.Operation = OpModify
		}
		event.Result = result

		w.sendEvent(event)
	}
}

// sendEvent sends an event to the output channel
func (w *Watcher) sendEvent(event WatchEvent) {
	select {
	case w.events <- event:
		w.logger.Debug("Sent watch event",
			"path", event.Path,
			"op", event.Operation)
	default:
		w.logger.Warn("Event channel full, dropping event",
			"path", event.Path)
	}
}
