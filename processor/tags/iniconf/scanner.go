// Package iniconf scans INI-like configuration files into
// section/key/value triples.
//
// The grammar is the one used by systemd unit files: "[Section]" headers,
// "key=value" entries, comment lines starting with '#' or ';', and a
// trailing backslash that continues a value on the next line.
package iniconf

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// MaxLineSize bounds a single physical line, newline included. Scan fails
// with bufio.ErrTooLong on a longer line.
const MaxLineSize = 1 << 20

// Triple is one entry of a scanned file.
type Triple struct {
	Section string
	Key     string

	// Value is only meaningful when HasValue is true. A bare directive
	// without '=' has no value.
	Value    string
	HasValue bool

	// Line is the 1-based line on which the entry starts
	Line int
}

// Handler receives triples in file order.
type Handler interface {
	OnTriple(t Triple)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(Triple)

// OnTriple calls f(t).
func (f HandlerFunc) OnTriple(t Triple) { f(t) }

// Scan reads r to the end and calls h once per entry. Malformed lines are
// delivered as best as they can be interpreted; only read errors are returned.
func Scan(r io.Reader, h Handler) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), MaxLineSize)

	var (
		section string
		pending strings.Builder // accumulated continuation lines
		start   int             // line of the pending entry
		lineNo  int
	)

	for sc.Scan() {
		lineNo++
		line := sc.Text()

		if pending.Len() == 0 {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" || trimmed[0] == '#' || trimmed[0] == ';' {
				continue
			}
			if trimmed[0] == '[' {
				section = parseSection(trimmed)
				continue
			}
			start = lineNo
		} else if t := strings.TrimSpace(line); t != "" && (t[0] == '#' || t[0] == ';') {
			// Comments inside a continuation are skipped
			continue
		}

		if cont, ok := strings.CutSuffix(strings.TrimRight(line, " \t\r"), `\`); ok {
			pending.WriteString(cont)
			pending.WriteByte(' ')
			continue
		}

		pending.WriteString(line)
		h.OnTriple(splitEntry(section, pending.String(), start))
		pending.Reset()
	}

	if err := sc.Err(); err != nil {
		return fmt.Errorf("scan line %d: %w", lineNo+1, err)
	}

	if pending.Len() > 0 {
		// File ended inside a continuation
		h.OnTriple(splitEntry(section, pending.String(), start))
	}

	return nil
}

// parseSection extracts the name from a "[Name]" header. A header without
// a closing bracket uses the rest of the line.
func parseSection(header string) string {
	name := strings.TrimPrefix(header, "[")
	if i := strings.IndexByte(name, ']'); i >= 0 {
		name = name[:i]
	}
	return strings.TrimSpace(name)
}

func splitEntry(section, entry string, line int) Triple {
	t := Triple{Section: section, Line: line}
	key, value, found := strings.Cut(entry, "=")
	t.Key = strings.TrimSpace(key)
	if found {
		t.Value = strings.TrimSpace(value)
		t.HasValue = true
	}
	return t
}
