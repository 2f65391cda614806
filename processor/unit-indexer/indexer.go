// Package unitindexer walks directories for unit files, extracts their
// references concurrently, and hands the results to publishers.
package unitindexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/c360studio/semunit/processor/tags"
	// Register the systemd unit parser
	_ "github.com/c360studio/semunit/processor/tags/systemd"
)

// Stats summarizes one index run.
type Stats struct {
	RunID    string
	Files    int
	Tags     int
	Failures int
	Duration time.Duration

	// Unchanged counts files skipped because their hash matched the HashSource
	Unchanged int
}

// Indexer scans configured paths for unit files.
type Indexer struct {
	config     Config
	root       string
	registry   *tags.ParserRegistry
	toggle     tags.Toggle
	publishers []Publisher
	hashes     HashSource
	metrics    *Metrics
	logger     *slog.Logger

	// watching is called once every watcher of Watch is running
	watching func()
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithRegistry overrides the parser registry (tags.DefaultRegistry by default).
func WithRegistry(r *tags.ParserRegistry) Option {
	return func(ix *Indexer) { ix.registry = r }
}

// WithPublishers adds publishers that receive every result.
func WithPublishers(p ...Publisher) Option {
	return func(ix *Indexer) { ix.publishers = append(ix.publishers, p...) }
}

// WithHashSource makes IndexAll skip files whose content hash equals the
// one src last recorded. A changed References setting is not detected;
// index without a hash source after changing it.
func WithHashSource(src HashSource) Option {
	return func(ix *Indexer) { ix.hashes = src }
}

// WithMetrics records index activity in m.
func WithMetrics(m *Metrics) Option {
	return func(ix *Indexer) { ix.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(ix *Indexer) { ix.logger = l }
}

// WithToggle replaces the static References setting with a runtime toggle.
func WithToggle(t tags.Toggle) Option {
	return func(ix *Indexer) { ix.toggle = t }
}

// New creates an indexer from a validated config.
func New(config Config, opts ...Option) (*Indexer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	rootDir := config.Root
	if rootDir == "" {
		rootDir = "."
	}
	root, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	ix := &Indexer{
		config:   config,
		root:     root,
		registry: tags.DefaultRegistry,
		toggle:   tags.StaticToggle(config.References),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix, nil
}

// job is one file to scan.
type job struct {
	path   string // absolute
	parser string // registry name
}

// IndexAll scans every unit file under the configured paths and publishes
// the results in path order. Files that fail to parse are counted and
// skipped; only cancellation and publisher errors end the run early.
func (ix *Indexer) IndexAll(ctx context.Context) (*Stats, error) {
	results, stats, err := ix.scan(ctx)
	if err != nil {
		return nil, err
	}

	for _, result := range results {
		if ix.unchanged(ctx, result) {
			stats.Unchanged++
			continue
		}
		if err := ix.publish(ctx, result); err != nil {
			return nil, err
		}
	}

	ix.logger.Info("Index complete",
		"run_id", stats.RunID,
		"files", stats.Files,
		"tags", stats.Tags,
		"unchanged", stats.Unchanged,
		"failures", stats.Failures,
		"duration", stats.Duration)

	return stats, nil
}

// scan resolves paths and parses files without publishing.
func (ix *Indexer) scan(ctx context.Context) ([]*tags.ParseResult, *Stats, error) {
	start := time.Now()
	stats := &Stats{RunID: uuid.NewString()}

	roots, err := ResolvePaths(ix.config.Paths)
	if err != nil {
		return nil, nil, err
	}

	jobs, err := ix.collect(ctx, roots)
	if err != nil {
		return nil, nil, err
	}

	results := make([]*tags.ParseResult, len(jobs))
	var failures atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.config.workerCount())

	for i, j := range jobs {
		g.Go(func() error {
			result, err := ix.parseFile(gctx, j)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				failures.Add(1)
				ix.recordFailure()
				ix.logger.Warn("Failed to parse unit file", "path", j.path, "error", err)
				return nil
			}
			results[i] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("index: %w", err)
	}

	kept := results[:0]
	for _, r := range results {
		if r == nil {
			continue
		}
		kept = append(kept, r)
		stats.Files++
		stats.Tags += len(r.Tags)
		ix.recordResult(r)
	}

	stats.Failures = int(failures.Load())
	stats.Duration = time.Since(start)
	if ix.metrics != nil {
		ix.metrics.IndexDuration.Observe(stats.Duration.Seconds())
	}

	return kept, stats, nil
}

// collect walks roots and returns the files a parser is registered for.
// Explicitly named files without a parser are skipped with a warning.
func (ix *Indexer) collect(ctx context.Context, roots []string) ([]job, error) {
	var jobs []job
	seen := make(map[string]bool)

	add := func(path string) bool {
		name, ok := ix.registry.ParserNameForFile(path)
		if !ok {
			return false
		}
		if !seen[path] {
			seen[path] = true
			jobs = append(jobs, job{path: path, parser: name})
		}
		return true
	}

	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", root, err)
		}

		if !info.IsDir() {
			if !add(root) {
				ix.logger.Warn("No parser for file, skipping", "path", root)
			}
			continue
		}

		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if d.IsDir() {
				if path != root && ix.excluded(d.Name()) {
					return filepath.SkipDir
				}
				return nil
			}
			if d.Type().IsRegular() || d.Type()&fs.ModeSymlink != 0 {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk directory %s: %w", root, err)
		}
	}

	return jobs, nil
}

func (ix *Indexer) excluded(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	for _, exc := range ix.config.Excludes {
		if exc == name {
			return true
		}
	}
	return false
}

func (ix *Indexer) parserOptions() tags.ParserOptions {
	return tags.ParserOptions{RepoRoot: ix.root, References: ix.toggle}
}

func (ix *Indexer) parseFile(ctx context.Context, j job) (*tags.ParseResult, error) {
	parser, err := ix.registry.CreateParser(j.parser, ix.parserOptions())
	if err != nil {
		return nil, err
	}
	return parser.ParseFile(ctx, j.path)
}

// unchanged reports whether the hash source already holds result's content.
// Lookup errors, including unknown files, count as changed.
func (ix *Indexer) unchanged(ctx context.Context, result *tags.ParseResult) bool {
	if ix.hashes == nil || result.Hash == "" {
		return false
	}
	hash, err := ix.hashes.FileHash(ctx, result.Path)
	if err != nil {
		return false
	}
	return hash == result.Hash
}

func (ix *Indexer) publish(ctx context.Context, result *tags.ParseResult) error {
	for _, p := range ix.publishers {
		if err := p.Publish(ctx, result); err != nil {
			return fmt.Errorf("publish %s: %w", result.Path, err)
		}
	}
	return nil
}

func (ix *Indexer) retract(ctx context.Context, path string) error {
	for _, p := range ix.publishers {
		if err := p.Retract(ctx, path); err != nil {
			return fmt.Errorf("retract %s: %w", path, err)
		}
	}
	return nil
}

func (ix *Indexer) recordResult(r *tags.ParseResult) {
	if ix.metrics == nil {
		return
	}
	ix.metrics.FilesIndexed.Inc()
	for _, t := range r.Tags {
		ix.metrics.References.WithLabelValues(t.Role).Inc()
	}
}

func (ix *Indexer) recordFailure() {
	if ix.metrics != nil {
		ix.metrics.ParseFailures.Inc()
	}
}

// Watch performs an initial index and then republishes files as they
// change, until ctx is cancelled. Only directory paths are watched.
func (ix *Indexer) Watch(ctx context.Context) error {
	results, stats, err := ix.scan(ctx)
	if err != nil {
		return err
	}
	for _, result := range results {
		if err := ix.publish(ctx, result); err != nil {
			return err
		}
	}
	ix.logger.Info("Initial index complete",
		"run_id", stats.RunID,
		"files", stats.Files,
		"tags", stats.Tags,
		"failures", stats.Failures)

	roots, err := ResolvePaths(ix.config.Paths)
	if err != nil {
		return err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var watchers []*tags.Watcher
	for _, root := range roots {
		if info, err := os.Stat(root); err != nil || !info.IsDir() {
			continue
		}
		w, err := tags.NewWatcher(tags.WatcherConfig{
			RepoRoot:      root,
			Registry:      ix.registry,
			Options:       ix.parserOptions(),
			Excludes:      ix.config.Excludes,
			DebounceDelay: ix.config.debounce(),
			Logger:        ix.logger,
		})
		if err != nil {
			return fmt.Errorf("create watcher for %s: %w", root, err)
		}
		defer func() { _ = w.Stop() }()

		for _, r := range results {
			w.SetHash(r.Path, r.Hash)
		}
		if err := w.Start(watchCtx); err != nil {
			return fmt.Errorf("start watcher for %s: %w", root, err)
		}
		watchers = append(watchers, w)
	}

	if len(watchers) == 0 {
		return errors.New("no directories to watch")
	}
	if ix.watching != nil {
		ix.watching()
	}

	// Fan in so publishers only ever see one event at a time
	events := make(chan tags.WatchEvent)
	var wg sync.WaitGroup
	for _, w := range watchers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ev := range w.Events() {
				select {
				case events <- ev:
				case <-watchCtx.Done():
					return
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(events)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := ix.handleWatchEvent(ctx, ev); err != nil {
				return err
			}
		}
	}
}

// handleWatchEvent forwards one watcher event to the publishers
func (ix *Indexer) handleWatchEvent(ctx context.Context, ev tags.WatchEvent) error {
	if ev.Error != nil {
		ix.recordFailure()
		ix.logger.Warn("Failed to parse changed file", "path", ev.Path, "error", ev.Error)
		return nil
	}

	ix.logger.Debug("Unit file changed", "path", ev.Path, "op", ev.Operation)

	switch ev.Operation {
	case tags.OpDelete:
		return ix.retract(ctx, ev.Path)
	case tags.OpCreate, tags.OpModify:
		if ev.Result == nil {
			return nil
		}
		ix.recordResult(ev.Result)
		return ix.publish(ctx, ev.Result)
	}
	return nil
}
