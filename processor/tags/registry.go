package tags

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"sync"
)

// ErrNoParser is returned when no parser handles a file or name.
var ErrNoParser = errors.New("no parser registered")

// FileParser extracts tags from a single file.
type FileParser interface {
	// ParseFile reads and parses the file at filePath.
	ParseFile(ctx context.Context, filePath string) (*ParseResult, error)

	// ParseReader parses content read from r, reporting it under filePath.
	ParseReader(ctx context.Context, r io.Reader, filePath string) (*ParseResult, error)
}

// ParserOptions configures a parser instance.
type ParserOptions struct {
	// RepoRoot is the directory result paths are made relative to
	RepoRoot string

	// References controls whether reference tags are emitted.
	// A nil toggle means enabled.
	References Toggle
}

// ReferencesEnabled returns the toggle, defaulting to enabled.
func (o ParserOptions) ReferencesEnabled() Toggle {
	if o.References == nil {
		return StaticToggle(true)
	}
	return o.References
}

// ParserFactory creates a FileParser configured with opts.
type ParserFactory func(opts ParserOptions) FileParser

// ParserRegistry maintains a registry of file parsers.
// Parsers are registered by name with their supported file extensions.
// Thread-safe for concurrent access.
type ParserRegistry struct {
	mu      sync.RWMutex
	parsers map[string]ParserFactory // name → factory
	extMap  map[string]string        // extension → parser name
}

// NewParserRegistry creates a new empty parser registry.
func NewParserRegistry() *ParserRegistry {
	return &ParserRegistry{
		parsers: make(map[string]ParserFactory),
		extMap:  make(map[string]string),
	}
}

// Register adds a parser factory for the given extensions.
// The first registration wins if there's an extension conflict.
// Extensions should include the leading dot (e.g., ".service").
func (r *ParserRegistry) Register(name string, extensions []string, factory ParserFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.parsers[name] = factory

	for _, ext := range extensions {
		if _, exists := r.extMap[ext]; !exists {
			r.extMap[ext] = name
		}
	}
}

// GetParserName returns the parser name registered for a file extension.
func (r *ParserRegistry) GetParserName(ext string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name, ok := r.extMap[ext]
	return name, ok
}

// ParserNameForFile returns the parser responsible for filePath, based on
// its final extension.
func (r *ParserRegistry) ParserNameForFile(filePath string) (string, bool) {
	ext := filepath.Ext(filePath)
	if ext == "" {
		return "", false
	}
	return r.GetParserName(ext)
}

// CreateParser instantiates a parser by name with the given options.
func (r *ParserRegistry) CreateParser(name string, opts ParserOptions) (FileParser, error) {
	r.mu.RLock()
	factory, ok := r.parsers[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoParser, name)
	}

	return factory(opts), nil
}

// CreateParserForFile creates the parser responsible for filePath.
func (r *ParserRegistry) CreateParserForFile(filePath string, opts ParserOptions) (FileParser, error) {
	name, ok := r.ParserNameForFile(filePath)
	if !ok {
		return nil, fmt.Errorf("%w for file: %s", ErrNoParser, filePath)
	}
	return r.CreateParser(name, opts)
}

// ListParsers returns all registered parser names, sorted.
func (r *ParserRegistry) ListParsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.parsers))
	for name := range r.parsers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListExtensions returns all registered file extensions, sorted.
func (r *ParserRegistry) ListExtensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	extensions := make([]string, 0, len(r.extMap))
	for ext := range r.extMap {
		extensions = append(extensions, ext)
	}
	sort.Strings(extensions)
	return extensions
}

// GetExtensionsForParser returns all extensions mapped to a parser name, sorted.
func (r *ParserRegistry) GetExtensionsForParser(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var extensions []string
	for ext, parserName := range r.extMap {
		if parserName == name {
			extensions = append(extensions, ext)
		}
	}
	sort.Strings(extensions)
	return extensions
}

// HasParser returns true if a parser with the given name is registered.
func (r *ParserRegistry) HasParser(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.parsers[name]
	return ok
}

// DefaultRegistry is the global parser registry.
// Parsers register themselves via init() functions.
var DefaultRegistry = NewParserRegistry()
