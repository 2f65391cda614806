package export

import (
	"fmt"
	"strings"

	"github.com/c360studio/semstreams/message"
)

// EntityNamespace is the IRI base for unit file entities.
const EntityNamespace = "https://semunit.dev/entity/"

// PredicateNamespace is the IRI base for dotted predicates.
const PredicateNamespace = "https://semunit.dev/predicate/"

// NTriplesWriter writes RDF in N-Triples format.
type NTriplesWriter struct {
	sb strings.Builder
}

// NewNTriplesWriter creates a new N-Triples writer.
func NewNTriplesWriter() *NTriplesWriter {
	return &NTriplesWriter{}
}

// WriteTriple writes a single triple.
func (w *NTriplesWriter) WriteTriple(subject, predicate string, object any) {
	fmt.Fprintf(&w.sb, "<%s> <%s> %s .\n", subject, predicate, formatObjectNTriples(object))
}

// WriteMessageTriples writes graph triples, mapping entity IDs and
// predicates to IRIs.
func (w *NTriplesWriter) WriteMessageTriples(triples []message.Triple) {
	for _, t := range triples {
		w.WriteTriple(entityIDToIRI(t.Subject), PredicateNamespace+t.Predicate, t.Object)
	}
}

// String returns the accumulated N-Triples output.
func (w *NTriplesWriter) String() string {
	return w.sb.String()
}

// Reset discards the accumulated output.
func (w *NTriplesWriter) Reset() {
	w.sb.Reset()
}

// entityIDToIRI converts a dotted entity ID into an IRI.
// {org}.semunit.unit.{project}.{instance} → {ns}{org}/{project}/{instance}
func entityIDToIRI(entityID string) string {
	parts := strings.Split(entityID, ".")
	if len(parts) < 5 {
		return EntityNamespace + entityID
	}
	return fmt.Sprintf("%s%s/%s/%s", EntityNamespace, parts[0], parts[3], strings.Join(parts[4:], "/"))
}

// formatObjectNTriples formats an object value for N-Triples output.
// Unit names are always literals, even when they look like IRIs.
func formatObjectNTriples(obj any) string {
	switch v := obj.(type) {
	case string:
		return fmt.Sprintf("\"%s\"", escapeString(v))
	case int, int32, int64:
		return fmt.Sprintf("\"%d\"^^<http://www.w3.org/2001/XMLSchema#integer>", v)
	case bool:
		return fmt.Sprintf("\"%t\"^^<http://www.w3.org/2001/XMLSchema#boolean>", v)
	default:
		return fmt.Sprintf("\"%s\"", escapeString(fmt.Sprint(v)))
	}
}

func escapeString(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	s = strings.ReplaceAll(s, "\r", "\\r")
	s = strings.ReplaceAll(s, "\t", "\\t")
	return s
}
