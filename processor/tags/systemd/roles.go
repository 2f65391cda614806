// Package systemd extracts unit dependency references from systemd unit
// files.
//
// Keys such as Requires= or WantedBy= name other units. Each name found in
// such a key becomes one reference tag of kind "unit", with the key as its
// role. Units are never defined by this parser, only referenced.
package systemd

// Role is the relationship under which a unit is referenced.
type Role int

const (
	RoleRequires Role = iota
	RoleWants
	RoleAfter
	RoleBefore
	RoleRequiredBy
	RoleWantedBy
)

var roleNames = [...]string{
	RoleRequires:   "Requires",
	RoleWants:      "Wants",
	RoleAfter:      "After",
	RoleBefore:     "Before",
	RoleRequiredBy: "RequiredBy",
	RoleWantedBy:   "WantedBy",
}

// String returns the key name of the role.
func (r Role) String() string {
	if r < 0 || int(r) >= len(roleNames) {
		return "Role(?)"
	}
	return roleNames[r]
}

// Description returns the one-line help text of the role.
func (r Role) Description() string {
	return "referred in " + r.String() + " key"
}

// RoleTable maps relationship keys to roles. It is built once and only
// read afterwards, so one table can serve any number of concurrent scans.
type RoleTable struct {
	roles []Role
}

// NewRoleTable returns the table of all known roles.
func NewRoleTable() *RoleTable {
	return &RoleTable{
		roles: []Role{
			RoleRequires,
			RoleWants,
			RoleAfter,
			RoleBefore,
			RoleRequiredBy,
			RoleWantedBy,
		},
	}
}

// Lookup returns the role whose name equals key exactly. Matching is
// case-sensitive: "requires" is not a role.
func (t *RoleTable) Lookup(key string) (Role, bool) {
	for _, r := range t.roles {
		if r.String() == key {
			return r, true
		}
	}
	return 0, false
}

// All returns the roles in declaration order.
func (t *RoleTable) All() []Role {
	out := make([]Role, len(t.roles))
	copy(out, t.roles)
	return out
}

// Kind describes the tag kind produced by this parser.
type Kind struct {
	Letter        byte
	Name          string
	Description   string
	ReferenceOnly bool
	Roles         []Role
}

// UnitKind returns the kind definition for referenced units, with the
// roles of t attached.
func (t *RoleTable) UnitKind() Kind {
	return Kind{
		Letter:        'u',
		Name:          KindUnit,
		Description:   "units",
		ReferenceOnly: true,
		Roles:         t.All(),
	}
}

// KindUnit is the kind name of every tag this parser emits.
const KindUnit = "unit"
