package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/c360studio/semunit/config"
	"github.com/c360studio/semunit/export"
	"github.com/c360studio/semunit/graph"
	unitindexer "github.com/c360studio/semunit/processor/unit-indexer"
	"github.com/c360studio/semunit/processor/tags"
	"github.com/c360studio/semunit/storage"
)

// App wires the indexer to its publishers for one command invocation.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	// Output
	out    io.Writer
	writer *export.Writer

	// Storage
	store *storage.Store

	// NATS
	natsConn *nats.Conn

	// Metrics
	registry *prometheus.Registry
	metrics  *unitindexer.Metrics

	closers []io.Closer
}

// loadConfig applies the layered config files, then the global flags.
func loadConfig(g *globalFlags) (*config.Config, error) {
	cfg, err := config.NewLoader(nil).Load(g.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if g.logFile != "" {
		cfg.Log.File = g.logFile
	}
	return cfg, nil
}

// newLogger builds the process logger. Logs go to stderr unless a log
// file is configured, which is then rotated by size.
func newLogger(cfg config.LogConfig, stderr io.Writer) (*slog.Logger, io.Closer) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	w := stderr
	var closer io.Closer
	if cfg.File != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		}
		w, closer = lj, lj
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), closer
}

// NewApp validates cfg and sets up logging. Publishers are opened by Open.
func NewApp(cfg *config.Config, stdout, stderr io.Writer) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, logCloser := newLogger(cfg.Log, stderr)
	slog.SetDefault(logger)

	app := &App{cfg: cfg, logger: logger, out: stdout}
	if logCloser != nil {
		app.closers = append(app.closers, logCloser)
	}
	return app, nil
}

// Open creates every configured publisher.
func (a *App) Open(ctx context.Context) error {
	if a.cfg.Output.File != "" {
		if dir := filepath.Dir(a.cfg.Output.File); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("create output directory: %w", err)
			}
		}
		f, err := os.Create(a.cfg.Output.File)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		a.out = f
		a.closers = append(a.closers, f)
	}

	format, err := export.ParseFormat(a.cfg.Output.Format)
	if err != nil {
		return err
	}
	a.writer, err = export.NewWriter(format, a.out, a.cfg.Index.Org, a.cfg.Index.Project)
	if err != nil {
		return err
	}

	if a.cfg.Store.Path != "" {
		store, err := storage.Open(ctx, a.cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		a.store = store
		a.closers = append(a.closers, store)
		a.logger.Debug("Opened reference store", "path", a.cfg.Store.Path)
	}

	if a.cfg.NATS.URL != "" {
		a.logger.Info("Connecting to NATS", "url", a.cfg.NATS.URL)
		nc, err := graph.Connect(a.cfg.NATS.URL, a.logger)
		if err != nil {
			return wrapNATSError(err, a.cfg.NATS.URL)
		}
		a.natsConn = nc
		a.logger.Info("Connected to NATS", "url", a.cfg.NATS.URL)
	}

	a.registry = prometheus.NewRegistry()
	a.metrics, err = unitindexer.NewMetrics(a.registry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	return nil
}

// publishers returns the publishers in delivery order: printed output,
// then storage, then the graph.
func (a *App) publishers() []unitindexer.Publisher {
	pubs := []unitindexer.Publisher{a.writer}
	if a.store != nil {
		pubs = append(pubs, a.store)
	}
	if a.natsConn != nil {
		pubs = append(pubs, graph.NewPublisher(a.natsConn, a.cfg.Index.Org, a.cfg.Index.Project, a.logger))
	}
	return pubs
}

// Indexer builds an indexer over the configured publishers. A nil toggle
// uses the configured References setting.
func (a *App) Indexer(toggle tags.Toggle) (*unitindexer.Indexer, error) {
	opts := []unitindexer.Option{
		unitindexer.WithPublishers(a.publishers()...),
		unitindexer.WithMetrics(a.metrics),
		unitindexer.WithLogger(a.logger),
	}
	if toggle != nil {
		opts = append(opts, unitindexer.WithToggle(toggle))
	}
	if a.cfg.Index.Incremental && a.store != nil {
		opts = append(opts, unitindexer.WithHashSource(a.store))
	}
	return unitindexer.New(indexerConfig(a.cfg), opts...)
}

// indexerConfig maps the index section onto the indexer's config.
func indexerConfig(cfg *config.Config) unitindexer.Config {
	ic := unitindexer.Config{
		Root:       cfg.Index.Root,
		Paths:      cfg.Index.Paths,
		Excludes:   cfg.Index.Excludes,
		Org:        cfg.Index.Org,
		Project:    cfg.Index.Project,
		References: cfg.Index.ReferencesEnabled(),
		Workers:    cfg.Index.Workers,
	}
	if cfg.Index.Debounce > 0 {
		ic.DebounceDelay = cfg.Index.Debounce.String()
	}
	return ic
}

// serveMetrics exposes the app's registry on addr until ctx is done.
func (a *App) serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	a.logger.Info("Serving metrics", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	}
}

// Close flushes buffered output and releases every resource.
func (a *App) Close() error {
	var errs []error
	if a.writer != nil {
		if err := a.writer.Flush(); err != nil {
			errs = append(errs, fmt.Errorf("flush output: %w", err))
		}
	}
	if a.natsConn != nil {
		if err := a.natsConn.Drain(); err != nil {
			a.natsConn.Close()
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// wrapNATSError provides helpful guidance when NATS connection fails.
func wrapNATSError(err error, url string) error {
	errStr := err.Error()

	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no servers available") ||
		strings.Contains(errStr, "timeout") {
		return fmt.Errorf(`NATS connection failed: %w

NATS is not running at %s.

To start NATS:
  docker run -p 4222:4222 nats

Or leave nats.url empty to skip graph publication.`, err, url)
	}

	return fmt.Errorf("NATS connection failed: %w", err)
}
