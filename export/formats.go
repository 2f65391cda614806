// Package export writes extracted unit references in tag, JSON, RDF, and
// table formats.
package export

import (
	"fmt"
	"sort"
)

// Format specifies the output serialization format.
type Format string

const (
	// FormatCtags produces extended ctags lines with a roles field.
	FormatCtags Format = "ctags"

	// FormatJSON produces one JSON object per tag per line.
	FormatJSON Format = "json"

	// FormatNTriples produces N-Triples (.nt) output.
	FormatNTriples Format = "ntriples"

	// FormatTable produces a human readable table.
	FormatTable Format = "table"
)

// FormatInfo provides metadata about an export format.
type FormatInfo struct {
	// Name is the format identifier.
	Name Format

	// MIMEType is the standard MIME type.
	MIMEType string

	// Extension is the file extension (with dot).
	Extension string

	// Description describes the format.
	Description string
}

// FormatRegistry contains metadata for all supported formats.
var FormatRegistry = map[Format]FormatInfo{
	FormatCtags: {
		Name:        FormatCtags,
		MIMEType:    "text/plain",
		Extension:   ".tags",
		Description: "Extended ctags lines: name, file, line, kind and roles",
	},
	FormatJSON: {
		Name:        FormatJSON,
		MIMEType:    "application/x-ndjson",
		Extension:   ".jsonl",
		Description: "JSON lines, one object per reference",
	},
	FormatNTriples: {
		Name:        FormatNTriples,
		MIMEType:    "application/n-triples",
		Extension:   ".nt",
		Description: "N-Triples - Line-based RDF format",
	},
	FormatTable: {
		Name:        FormatTable,
		MIMEType:    "text/plain",
		Extension:   ".txt",
		Description: "Table rendered after all files are indexed",
	},
}

// GetFormatInfo returns metadata for a format.
func GetFormatInfo(format Format) (FormatInfo, bool) {
	info, ok := FormatRegistry[format]
	return info, ok
}

// ParseFormat validates a format name.
func ParseFormat(name string) (Format, error) {
	f := Format(name)
	if _, ok := FormatRegistry[f]; !ok {
		return "", fmt.Errorf("unknown format %q (want one of %v)", name, ListFormats())
	}
	return f, nil
}

// ListFormats returns the supported format names, sorted.
func ListFormats() []string {
	names := make([]string, 0, len(FormatRegistry))
	for f := range FormatRegistry {
		names = append(names, string(f))
	}
	sort.Strings(names)
	return names
}
