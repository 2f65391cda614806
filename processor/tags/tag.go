package tags

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/c360studio/semstreams/message"
)

// Tag is a single reference recorded for a scanned file.
type Tag struct {
	// Name is the referenced unit name
	Name string `json:"name"`

	// Kind is the tag kind name (e.g. "unit")
	Kind string `json:"kind"`

	// Role is the relationship under which Name is referenced
	Role string `json:"role"`

	// Path is the scanned file, relative to the index root
	Path string `json:"path"`

	// Section and Line locate the key that produced the tag
	Section string `json:"section,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// Sink receives tags as parsers produce them.
type Sink interface {
	Add(tag Tag)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Tag)

// Add calls f(tag).
func (f SinkFunc) Add(tag Tag) { f(tag) }

// Collector is a Sink that keeps tags in emission order.
type Collector struct {
	Tags []Tag
}

// Add appends tag to the collected tags.
func (c *Collector) Add(tag Tag) {
	c.Tags = append(c.Tags, tag)
}

// Toggle reports whether reference tags should be produced.
// Parsers query it once per key they inspect.
type Toggle interface {
	Enabled() bool
}

// StaticToggle is a fixed Toggle.
type StaticToggle bool

// Enabled returns the fixed value.
func (t StaticToggle) Enabled() bool { return bool(t) }

// AtomicToggle is a Toggle that can be flipped while parsers run.
type AtomicToggle struct {
	v atomic.Bool
}

// NewAtomicToggle creates a toggle with the given initial value.
func NewAtomicToggle(enabled bool) *AtomicToggle {
	t := &AtomicToggle{}
	t.v.Store(enabled)
	return t
}

// Enabled returns the current value.
func (t *AtomicToggle) Enabled() bool { return t.v.Load() }

// Set changes the value.
func (t *AtomicToggle) Set(enabled bool) { t.v.Store(enabled) }

// ParseResult holds the tags extracted from one file.
type ParseResult struct {
	// Path is the file path relative to the index root
	Path string

	// Hash is the content hash
	Hash string

	// Parser is the name of the parser that produced the result
	Parser string

	// Tags are the references in file order
	Tags []Tag

	IndexedAt time.Time
}

// ComputeHash computes a SHA256 hash of the given content
func ComputeHash(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:8]) // First 8 bytes for brevity
}

// EntityID returns the 5-part entity identifier of the scanned file.
// Format: {org}.semunit.unit.{project}.{instance}
func EntityID(org, project, filePath string) string {
	return fmt.Sprintf("%s.semunit.unit.%s.%s", org, project, buildInstanceID(filePath))
}

// buildInstanceID sanitizes a path for use in an entity ID. Sanitizing is
// lossy (foo.bar and foo-bar both become foo-bar), so a short hash of the
// cleaned path keeps instances distinct.
func buildInstanceID(filePath string) string {
	cleaned := path.Clean(filePath)
	sanitized := strings.ReplaceAll(cleaned, "/", "-")
	sanitized = strings.ReplaceAll(sanitized, ".", "-")
	sum := sha256.Sum256([]byte(cleaned))
	return strings.TrimLeft(sanitized, "-") + "-" + hex.EncodeToString(sum[:4])
}

// Triples converts the result to graph triples. The file entity is the
// subject of every triple; each tag becomes one dependency triple.
func (r *ParseResult) Triples(org, project string) []message.Triple {
	id := EntityID(org, project, r.Path)
	source := "semunit." + strings.ToLower(r.Parser)
	ts := r.IndexedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	triple := func(predicate string, object any) message.Triple {
		return message.Triple{
			Subject:    id,
			Predicate:  predicate,
			Object:     object,
			Source:     source,
			Timestamp:  ts,
			Confidence: 1.0,
		}
	}

	triples := make([]message.Triple, 0, len(r.Tags)+5)
	triples = append(triples,
		triple(UnitType, "unit"),
		triple(DcTitle, path.Base(r.Path)),
		triple(UnitPath, r.Path),
	)
	if r.Hash != "" {
		triples = append(triples, triple(UnitHash, r.Hash))
	}
	if r.Parser != "" {
		triples = append(triples, triple(UnitParser, r.Parser))
	}

	for _, tag := range r.Tags {
		triples = append(triples, triple(RolePredicate(tag.Role), tag.Name))
	}

	triples = append(triples, triple(DcCreated, ts.Format(time.RFC3339)))
	return triples
}
