// Package tags provides the tag model, parser registry, and file watcher
// shared by the unit file parsers.
package tags

import "strings"

// Vocabulary predicates for unit entities.
// Uses three-part dotted notation: domain.category.property
const (
	// Identity predicates
	UnitPath   = "code.artifact.path"   // file path relative to repo root
	UnitHash   = "code.artifact.hash"   // content hash for change detection
	UnitType   = "code.artifact.type"   // always "unit" for unit files
	UnitParser = "code.artifact.parser" // parser that produced the tags

	// DependencyPrefix is joined with the lower-cased role name,
	// e.g. systemd.dependency.requires
	DependencyPrefix = "systemd.dependency"

	// Standard metadata (Dublin Core aligned)
	DcTitle   = "dc.terms.title"
	DcCreated = "dc.terms.created"
)

// RolePredicate returns the dependency predicate for a role name.
func RolePredicate(role string) string {
	return DependencyPrefix + "." + strings.ToLower(role)
}
