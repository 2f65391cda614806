package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/c360studio/semunit/config"
	"github.com/c360studio/semunit/export"
	"github.com/c360studio/semunit/processor/tags"
	"github.com/c360studio/semunit/processor/tags/systemd"
	"github.com/c360studio/semunit/storage"
)

// indexFlags override the index, output, store and nats config sections.
type indexFlags struct {
	root        string
	org         string
	project     string
	excludes    []string
	workers     int
	noRefs      bool
	format      string
	output      string
	store       string
	natsURL     string
	debounce    time.Duration
	metricsAddr string
	incremental bool
}

func (f *indexFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.root, "root", "", "Directory tag paths are relative to (default: working directory)")
	fl.StringVar(&f.org, "org", "", "Organization for graph entity IDs")
	fl.StringVar(&f.project, "project", "", "Project for graph entity IDs")
	fl.StringSliceVar(&f.excludes, "exclude", nil, "Directory names to skip")
	fl.IntVarP(&f.workers, "workers", "j", 0, "Concurrent file scans (0 = number of CPUs)")
	fl.BoolVar(&f.noRefs, "no-references", false, "Scan files without emitting reference tags")
	fl.StringVarP(&f.format, "format", "f", "", "Output format ("+strings.Join(export.ListFormats(), ", ")+")")
	fl.StringVarP(&f.output, "output", "o", "", "Output file (default: stdout)")
	fl.StringVar(&f.store, "store", "", "SQLite database to store references in")
	fl.StringVar(&f.natsURL, "nats-url", "", "NATS server to publish graph entities to")
}

// apply copies the flags the user set onto cfg.
func (f *indexFlags) apply(cmd *cobra.Command, cfg *config.Config, args []string) {
	changed := cmd.Flags().Changed
	if len(args) > 0 {
		cfg.Index.Paths = args
	}
	if changed("root") {
		cfg.Index.Root = f.root
	}
	if changed("org") {
		cfg.Index.Org = f.org
	}
	if changed("project") {
		cfg.Index.Project = f.project
	}
	if changed("exclude") {
		cfg.Index.Excludes = f.excludes
	}
	if changed("workers") {
		cfg.Index.Workers = f.workers
	}
	if changed("no-references") {
		enabled := !f.noRefs
		cfg.Index.References = &enabled
	}
	if changed("format") {
		cfg.Output.Format = f.format
	}
	if changed("output") {
		cfg.Output.File = f.output
	}
	if changed("store") {
		cfg.Store.Path = f.store
	}
	if changed("nats-url") {
		cfg.NATS.URL = f.natsURL
	}
	if changed("debounce") {
		cfg.Index.Debounce = f.debounce
	}
	if changed("metrics-addr") {
		cfg.Metrics.Addr = f.metricsAddr
	}
	if changed("incremental") {
		cfg.Index.Incremental = f.incremental
	}
}

// setupApp loads config, applies flags and opens the publishers.
func setupApp(ctx context.Context, cmd *cobra.Command, g *globalFlags, f *indexFlags, args []string) (*App, error) {
	cfg, err := loadConfig(g)
	if err != nil {
		return nil, err
	}
	f.apply(cmd, cfg, args)

	app, err := NewApp(cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	if err := app.Open(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

func scanCmd(g *globalFlags) *cobra.Command {
	f := &indexFlags{}
	cmd := &cobra.Command{
		Use:   "scan [paths...]",
		Short: "Index unit files once",
		Long: `Scan files, directories or glob patterns for systemd unit files and
publish every reference they declare.

Examples:
  semunit scan /etc/systemd/system
  semunit scan --format table 'units/**/*.service'
  semunit scan --store units.db --nats-url nats://localhost:4222 .
  semunit scan --store units.db --incremental /etc/systemd/system`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			app, err := setupApp(ctx, cmd, g, f, args)
			if err != nil {
				return err
			}

			ix, err := app.Indexer(nil)
			if err != nil {
				_ = app.Close()
				return err
			}
			stats, err := ix.IndexAll(ctx)
			if cerr := app.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			if stats.Failures > 0 {
				return fmt.Errorf("%d of %d files failed to parse", stats.Failures, stats.Files+stats.Failures)
			}
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVar(&f.incremental, "incremental", false, "Skip files whose content is unchanged in the store")
	return cmd
}

func watchCmd(g *globalFlags) *cobra.Command {
	f := &indexFlags{}
	cmd := &cobra.Command{
		Use:   "watch [paths...]",
		Short: "Index unit files and keep the index current",
		Long: `Index the given directories, then republish unit files as they are
created, modified or deleted until interrupted.

Sending SIGHUP reloads the config files and applies index.references
without restarting.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			app, err := setupApp(ctx, cmd, g, f, args)
			if err != nil {
				return err
			}

			toggle := tags.NewAtomicToggle(app.cfg.Index.ReferencesEnabled())
			ix, err := app.Indexer(toggle)
			if err != nil {
				_ = app.Close()
				return err
			}

			eg, egCtx := errgroup.WithContext(ctx)
			eg.Go(func() error {
				defer cancel()
				return ix.Watch(egCtx)
			})
			if addr := app.cfg.Metrics.Addr; addr != "" {
				eg.Go(func() error {
					return app.serveMetrics(egCtx, addr)
				})
			}
			hup := make(chan os.Signal, 1)
			signal.Notify(hup, syscall.SIGHUP)
			defer signal.Stop(hup)
			eg.Go(func() error {
				reloadReferences(egCtx, app, g, f, toggle, hup)
				return nil
			})

			err = eg.Wait()
			if cerr := app.Close(); err == nil {
				err = cerr
			}
			return err
		},
	}
	f.register(cmd)
	cmd.Flags().DurationVar(&f.debounce, "debounce", 0, "Delay before a changed file is rescanned")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "Serve prometheus metrics on this address")
	return cmd
}

// reloadReferences re-reads the config on every signal from hup and
// updates toggle. An explicit --no-references always wins.
func reloadReferences(ctx context.Context, app *App, g *globalFlags, f *indexFlags, toggle *tags.AtomicToggle, hup <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			cfg, err := loadConfig(g)
			if err != nil {
				app.logger.Warn("Failed to reload config", "error", err)
				continue
			}
			enabled := cfg.Index.ReferencesEnabled() && !f.noRefs
			toggle.Set(enabled)
			app.logger.Info("Reloaded config", "references", enabled)
		}
	}
}

// queryFlags select references from a store.
type queryFlags struct {
	store     string
	name      string
	role      string
	path      string
	referrers string
	format    string
}

func queryCmd(g *globalFlags) *cobra.Command {
	f := &queryFlags{}
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query references stored by scan or watch",
		Long: `Query a reference store. Filters combine; with none, every stored
reference is listed.

Examples:
  semunit query --store units.db --name network-online.target
  semunit query --store units.db --role WantedBy --format json
  semunit query --store units.db --referrers sshd.service`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("store") {
				cfg.Store.Path = f.store
			}
			if cfg.Store.Path == "" {
				return errors.New("no store configured (use --store or store.path)")
			}
			if _, err := os.Stat(cfg.Store.Path); err != nil {
				return fmt.Errorf("open store: %w", err)
			}

			logger, logCloser := newLogger(cfg.Log, cmd.ErrOrStderr())
			if logCloser != nil {
				defer logCloser.Close()
			}

			store, err := storage.Open(cmd.Context(), cfg.Store.Path)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if f.referrers != "" {
				paths, err := store.Referrers(cmd.Context(), f.referrers)
				if err != nil {
					return err
				}
				for _, p := range paths {
					fmt.Fprintln(out, p)
				}
				return nil
			}

			rows, err := store.Query(cmd.Context(), storage.Filter{Name: f.name, Role: f.role, Path: f.path})
			if err != nil {
				return err
			}
			logger.Debug("Query complete", "rows", len(rows))
			return writeRows(out, f.format, rows)
		},
	}
	cmd.Flags().StringVar(&f.store, "store", "", "SQLite database written by scan or watch")
	cmd.Flags().StringVar(&f.name, "name", "", "Referenced unit name")
	cmd.Flags().StringVar(&f.role, "role", "", "Relationship (e.g. Requires, WantedBy)")
	cmd.Flags().StringVar(&f.path, "path", "", "Referring unit file path")
	cmd.Flags().StringVar(&f.referrers, "referrers", "", "List files referring to this unit")
	cmd.Flags().StringVarP(&f.format, "format", "f", "table", "Output format (table, json, ctags)")
	return cmd
}

// writeRows prints stored tags in a query output format.
func writeRows(w io.Writer, format string, rows []tags.Tag) error {
	switch export.Format(format) {
	case export.FormatTable:
		return export.RenderTable(w, rows)
	case export.FormatJSON:
		enc := json.NewEncoder(w)
		for _, r := range rows {
			if err := enc.Encode(r); err != nil {
				return fmt.Errorf("encode tag: %w", err)
			}
		}
		return nil
	case export.FormatCtags:
		for _, r := range rows {
			if _, err := fmt.Fprintln(w, export.CtagsLine(r)); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported query format %q (use table, json or ctags)", format)
	}
}

func listRolesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-roles",
		Short: "List the relationship keys that produce references",
		Run: func(cmd *cobra.Command, args []string) {
			t := newTable(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Key", "Description"})
			for _, r := range systemd.NewRoleTable().All() {
				t.AppendRow(table.Row{r.String(), r.Description()})
			}
			t.Render()
		},
	}
}

func listKindsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-kinds",
		Short: "List the tag kinds emitted for unit files",
		Run: func(cmd *cobra.Command, args []string) {
			k := systemd.NewRoleTable().UnitKind()
			roles := make([]string, len(k.Roles))
			for i, r := range k.Roles {
				roles[i] = r.String()
			}

			t := newTable(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Letter", "Name", "Description", "Reference Only", "Roles"})
			t.AppendRow(table.Row{string(k.Letter), k.Name, k.Description, k.ReferenceOnly, strings.Join(roles, ",")})
			t.Render()
		},
	}
}

func listExtensionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-extensions",
		Short: "List the file extensions each parser handles",
		Run: func(cmd *cobra.Command, args []string) {
			t := newTable(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Parser", "Extensions"})
			for _, name := range tags.DefaultRegistry.ListParsers() {
				t.AppendRow(table.Row{name, strings.Join(tags.DefaultRegistry.GetExtensionsForParser(name), " ")})
			}
			t.Render()
		},
	}
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}
