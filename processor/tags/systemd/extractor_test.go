package systemd

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/c360studio/semunit/processor/tags"
	"github.com/c360studio/semunit/processor/tags/iniconf"
)

// recorder collects emitted references
type recorder struct {
	refs []UnitReference
}

func (r *recorder) Emit(ref UnitReference) {
	r.refs = append(r.refs, ref)
}

func withValue(section, key, value string) iniconf.Triple {
	return iniconf.Triple{Section: section, Key: key, Value: value, HasValue: true}
}

func TestExtractor_Process(t *testing.T) {
	tests := []struct {
		name    string
		triple  iniconf.Triple
		enabled bool
		want    []UnitReference
	}{
		{
			name:    "single unit",
			triple:  withValue("Unit", "Requires", "network.target"),
			enabled: true,
			want:    []UnitReference{{"network.target", RoleRequires}},
		},
		{
			name:    "comma separated",
			triple:  withValue("Unit", "After", "a.service,b.service"),
			enabled: true,
			want:    []UnitReference{{"a.service", RoleAfter}, {"b.service", RoleAfter}},
		},
		{
			name:    "spaces around commas",
			triple:  withValue("Unit", "After", "a.service, b.service , c.service"),
			enabled: true,
			want: []UnitReference{
				{"a.service", RoleAfter},
				{"b.service", RoleAfter},
				{"c.service", RoleAfter},
			},
		},
		{
			name:    "unknown key",
			triple:  withValue("Unit", "Description", "My service"),
			enabled: true,
		},
		{
			name:    "no value",
			triple:  iniconf.Triple{Section: "Unit", Key: "Requires"},
			enabled: true,
		},
		{
			name:    "references disabled",
			triple:  withValue("Unit", "Requires", "a.service"),
			enabled: false,
		},
		{
			name:    "install section roles",
			triple:  withValue("Install", "WantedBy", "multi-user.target"),
			enabled: true,
			want:    []UnitReference{{"multi-user.target", RoleWantedBy}},
		},
		{
			name:    "empty section",
			triple:  withValue("", "Wants", "x.service"),
			enabled: true,
			want:    []UnitReference{{"x.service", RoleWants}},
		},
		{
			name:    "lower-case key",
			triple:  withValue("Unit", "wants", "x.service"),
			enabled: true,
		},
		{
			name:    "empty value",
			triple:  withValue("Unit", "Before", ""),
			enabled: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := &recorder{}
			NewExtractor(NewRoleTable(), rec, nil).Process(tc.triple, tc.enabled)
			assert.Equal(t, tc.want, rec.refs)
		})
	}
}

// countingToggle counts how often it is queried
type countingToggle struct {
	enabled bool
	calls   int
}

func (c *countingToggle) Enabled() bool {
	c.calls++
	return c.enabled
}

func TestExtractor_OnTripleQueriesToggleOncePerTriple(t *testing.T) {
	toggle := &countingToggle{enabled: true}
	rec := &recorder{}
	e := NewExtractor(NewRoleTable(), rec, toggle)

	e.OnTriple(withValue("Unit", "Wants", "a.service,b.service,c.service"))
	e.OnTriple(withValue("Unit", "Description", "x"))

	assert.Equal(t, 2, toggle.calls)
	assert.Len(t, rec.refs, 3)

	toggle.enabled = false
	e.OnTriple(withValue("Unit", "Wants", "d.service"))
	assert.Len(t, rec.refs, 3)
}

func TestExtractor_AtomicToggle(t *testing.T) {
	toggle := tags.NewAtomicToggle(false)
	rec := &recorder{}
	e := NewExtractor(NewRoleTable(), rec, toggle)

	e.OnTriple(withValue("Unit", "Requires", "a.service"))
	assert.Empty(t, rec.refs)

	toggle.Set(true)
	e.OnTriple(withValue("Unit", "Requires", "a.service"))
	assert.Equal(t, []UnitReference{{"a.service", RoleRequires}}, rec.refs)
}

func TestSplitUnitList(t *testing.T) {
	tests := []struct {
		value string
		want  []string
	}{
		{"a", []string{"a"}},
		{"a,b", []string{"a", "b"}},
		{"a, , b", []string{"a", "b"}},
		{"foo bar", []string{"foobar"}},
		{"foo bar, baz", []string{"foobar", "baz"}},
		{"a.service b.service", []string{"a.serviceb.service"}},
		{",,a,,", []string{"a"}},
		{"\ta\t,\nb\r\v\f", []string{"a", "b"}},
		{"", nil},
		{"   ", nil},
		{",", nil},
		{"getty@tty1.service", []string{"getty@tty1.service"}},
	}

	for _, tc := range tests {
		t.Run(tc.value, func(t *testing.T) {
			assert.Equal(t, tc.want, SplitUnitList(tc.value))
		})
	}
}

func TestSplitUnitList_IdempotentOnCleanInput(t *testing.T) {
	inputs := []string{
		"a.service",
		"a.service,b.target,c.socket",
		"sysinit.target,basic.target",
	}

	for _, in := range inputs {
		first := SplitUnitList(in)
		again := SplitUnitList(strings.Join(first, ","))
		assert.Equal(t, first, again, "input %q", in)
	}
}

func TestSplitUnitList_NoEmptyOrSpacedTokens(t *testing.T) {
	inputs := []string{"a , b", " , ", "x\ty,,z ", "é, ü"}

	for _, in := range inputs {
		for _, tok := range SplitUnitList(in) {
			assert.NotEmpty(t, tok)
			assert.NotContains(t, tok, ",")
			assert.Equal(t, -1, strings.IndexAny(tok, " \t\n\v\f\r"), "token %q", tok)
		}
	}
}
