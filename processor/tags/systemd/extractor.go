package systemd

import (
	"github.com/c360studio/semunit/processor/tags"
	"github.com/c360studio/semunit/processor/tags/iniconf"
)

// UnitReference records that the scanned file references Name under Role.
type UnitReference struct {
	Name string
	Role Role
}

// ReferenceSink receives references as they are extracted.
type ReferenceSink interface {
	Emit(ref UnitReference)
}

// ReferenceSinkFunc adapts a function to the ReferenceSink interface.
type ReferenceSinkFunc func(UnitReference)

// Emit calls f(ref).
func (f ReferenceSinkFunc) Emit(ref UnitReference) { f(ref) }

// Extractor turns relationship keys into unit references. It keeps no
// state between triples.
type Extractor struct {
	table  *RoleTable
	sink   ReferenceSink
	toggle tags.Toggle
}

// NewExtractor creates an extractor emitting to sink. A nil toggle means
// references are always enabled.
func NewExtractor(table *RoleTable, sink ReferenceSink, toggle tags.Toggle) *Extractor {
	if toggle == nil {
		toggle = tags.StaticToggle(true)
	}
	return &Extractor{table: table, sink: sink, toggle: toggle}
}

// OnTriple implements iniconf.Handler. The toggle is read once per triple.
func (e *Extractor) OnTriple(t iniconf.Triple) {
	e.Process(t, e.toggle.Enabled())
}

// Process emits one reference per unit name in t's value when t's key is a
// known role. Disabled references, a missing value, or an unknown key
// produce nothing.
func (e *Extractor) Process(t iniconf.Triple, referencesEnabled bool) {
	if !referencesEnabled || !t.HasValue {
		return
	}

	role, ok := e.table.Lookup(t.Key)
	if !ok {
		return
	}

	eachUnit(t.Value, func(name string) {
		e.sink.Emit(UnitReference{Name: name, Role: role})
	})
}

// SplitUnitList returns the unit names of a relationship value.
// Commas separate names and whitespace is dropped wherever it occurs, so
// "a, b" and "a,b" both yield [a b] while "foo bar" yields [foobar].
func SplitUnitList(value string) []string {
	var names []string
	eachUnit(value, func(name string) {
		names = append(names, name)
	})
	return names
}

// eachUnit scans value once, calling fn for every non-empty name in order.
func eachUnit(value string, fn func(string)) {
	buf := make([]byte, 0, len(value))

	for i := 0; i < len(value); i++ {
		c := value[i]
		switch {
		case c == ',':
			if len(buf) > 0 {
				fn(string(buf))
				buf = buf[:0]
			}
		case isSpace(c):
			// dropped, not a separator
		default:
			buf = append(buf, c)
		}
	}

	if len(buf) > 0 {
		fn(string(buf))
	}
}

// isSpace matches the C locale's isspace.
func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}
