package systemd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/c360studio/semunit/processor/tags"
	"github.com/c360studio/semunit/processor/tags/iniconf"
)

// ParserName is the registry name of the systemd unit parser.
const ParserName = "SystemdUnit"

// Extensions lists the file extensions of systemd unit files.
var Extensions = []string{
	".unit", ".service", ".socket", ".device",
	".mount", ".automount", ".swap", ".target",
	".path", ".timer", ".snapshot", ".scope",
	".slice", ".time",
}

func init() {
	table := NewRoleTable()
	tags.DefaultRegistry.Register(ParserName, Extensions, func(opts tags.ParserOptions) tags.FileParser {
		return NewParser(table, opts)
	})
}

// Parser extracts unit references from systemd unit files
type Parser struct {
	table    *RoleTable
	repoRoot string
	toggle   tags.Toggle
}

// NewParser creates a parser sharing the read-only table.
func NewParser(table *RoleTable, opts tags.ParserOptions) *Parser {
	return &Parser{
		table:    table,
		repoRoot: opts.RepoRoot,
		toggle:   opts.ReferencesEnabled(),
	}
}

// ParseFile parses a single unit file and extracts its references
func (p *Parser) ParseFile(ctx context.Context, filePath string) (*tags.ParseResult, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	result, err := p.ParseReader(ctx, bytes.NewReader(content), filePath)
	if err != nil {
		return nil, err
	}
	result.Hash = tags.ComputeHash(content)
	return result, nil
}

// ParseReader parses unit file content from r. The result has no hash;
// ParseFile sets it from the file content.
func (p *Parser) ParseReader(ctx context.Context, r io.Reader, filePath string) (*tags.ParseResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	relPath := p.relPath(filePath)
	result := &tags.ParseResult{
		Path:      relPath,
		Parser:    ParserName,
		Tags:      make([]tags.Tag, 0),
		IndexedAt: time.Now(),
	}

	// current is the triple being processed; the sink reads its location
	var current iniconf.Triple
	sink := ReferenceSinkFunc(func(ref UnitReference) {
		result.Tags = append(result.Tags, tags.Tag{
			Name:    ref.Name,
			Kind:    KindUnit,
			Role:    ref.Role.String(),
			Path:    relPath,
			Section: current.Section,
			Line:    current.Line,
		})
	})
	extractor := NewExtractor(p.table, sink, p.toggle)

	err := iniconf.Scan(r, iniconf.HandlerFunc(func(t iniconf.Triple) {
		current = t
		extractor.OnTriple(t)
	}))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", relPath, err)
	}

	return result, nil
}

func (p *Parser) relPath(filePath string) string {
	if p.repoRoot == "" {
		return filepath.ToSlash(filePath)
	}
	// Files outside the root keep their own path
	rel, err := filepath.Rel(p.repoRoot, filePath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(filePath)
	}
	return filepath.ToSlash(rel)
}
