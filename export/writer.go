package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/c360studio/semunit/processor/tags"
)

// Writer streams parse results to w in one format. Table output is
// buffered until Flush. Safe for concurrent use.
type Writer struct {
	mu      sync.Mutex
	format  Format
	w       io.Writer
	org     string
	project string
	rows    []tags.Tag // table format only
}

// NewWriter creates a writer. org and project qualify N-Triples subjects.
func NewWriter(format Format, w io.Writer, org, project string) (*Writer, error) {
	if _, ok := GetFormatInfo(format); !ok {
		return nil, fmt.Errorf("unknown format %q", format)
	}
	return &Writer{format: format, w: w, org: org, project: project}, nil
}

// Publish writes the tags of one file.
func (w *Writer) Publish(_ context.Context, result *tags.ParseResult) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.format {
	case FormatCtags:
		var sb strings.Builder
		for _, t := range result.Tags {
			sb.WriteString(CtagsLine(t))
			sb.WriteByte('\n')
		}
		_, err := io.WriteString(w.w, sb.String())
		return err

	case FormatJSON:
		enc := json.NewEncoder(w.w)
		for _, t := range result.Tags {
			if err := enc.Encode(t); err != nil {
				return fmt.Errorf("encode tag: %w", err)
			}
		}
		return nil

	case FormatNTriples:
		nt := NewNTriplesWriter()
		nt.WriteMessageTriples(result.Triples(w.org, w.project))
		_, err := io.WriteString(w.w, nt.String())
		return err

	case FormatTable:
		w.rows = append(w.rows, result.Tags...)
		return nil
	}
	return nil
}

// Retract is a no-op: streamed output cannot be taken back.
func (w *Writer) Retract(context.Context, string) error {
	return nil
}

// Flush renders buffered output. Only the table format buffers.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.format != FormatTable {
		return nil
	}
	err := RenderTable(w.w, w.rows)
	w.rows = nil
	return err
}

// CtagsLine formats a reference tag as an extended ctags line, using the
// line number as address.
func CtagsLine(t tags.Tag) string {
	var sb strings.Builder
	sb.WriteString(t.Name)
	sb.WriteByte('\t')
	sb.WriteString(t.Path)
	sb.WriteByte('\t')
	sb.WriteString(strconv.Itoa(t.Line))
	sb.WriteString(`;"`)
	sb.WriteString("\tkind:")
	sb.WriteString(t.Kind)
	if t.Section != "" {
		sb.WriteString("\tsection:")
		sb.WriteString(t.Section)
	}
	sb.WriteString("\troles:")
	sb.WriteString(t.Role)
	return sb.String()
}

// RenderTable writes tags as a table.
func RenderTable(w io.Writer, rows []tags.Tag) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "(0 references)")
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Unit", "Role", "File", "Line"})
	for _, r := range rows {
		t.AppendRow(table.Row{r.Name, r.Role, r.Path, r.Line})
	}
	t.Render()
	return nil
}
