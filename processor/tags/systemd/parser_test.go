package systemd

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semunit/processor/tags"
)

const sshdUnit = `[Unit]
Description=OpenSSH server daemon
Documentation=man:sshd(8) man:sshd_config(5)
After=network.target sshd-keygen.target
Wants=sshd-keygen.target

[Service]
Type=notify
ExecStart=/usr/sbin/sshd -D $OPTIONS
KillMode=process

[Install]
WantedBy=multi-user.target
`

func TestParseFile_Sshd(t *testing.T) {
	tmpDir := t.TempDir()
	filePath := filepath.Join(tmpDir, "sshd.service")
	require.NoError(t, os.WriteFile(filePath, []byte(sshdUnit), 0644))

	p := NewParser(NewRoleTable(), tags.ParserOptions{RepoRoot: tmpDir})
	result, err := p.ParseFile(context.Background(), filePath)
	require.NoError(t, err)

	assert.Equal(t, "sshd.service", result.Path)
	assert.Equal(t, ParserName, result.Parser)
	assert.NotEmpty(t, result.Hash)

	want := []tags.Tag{
		// whitespace-separated names are joined into one token
		{Name: "network.targetsshd-keygen.target", Kind: "unit", Role: "After", Path: "sshd.service", Section: "Unit", Line: 4},
		{Name: "sshd-keygen.target", Kind: "unit", Role: "Wants", Path: "sshd.service", Section: "Unit", Line: 5},
		{Name: "multi-user.target", Kind: "unit", Role: "WantedBy", Path: "sshd.service", Section: "Install", Line: 13},
	}
	assert.Equal(t, want, result.Tags)
}

func TestParseReader_ReferencesDisabled(t *testing.T) {
	p := NewParser(NewRoleTable(), tags.ParserOptions{References: tags.StaticToggle(false)})

	result, err := p.ParseReader(context.Background(), strings.NewReader(sshdUnit), "sshd.service")
	require.NoError(t, err)
	assert.Empty(t, result.Tags)
	assert.Equal(t, "sshd.service", result.Path)
}

func TestParseReader_ContinuationAndBareKeys(t *testing.T) {
	content := "[Unit]\n" +
		"Requires=a.service,\\\n" +
		"  b.service\n" +
		"Requires\n" +
		"Before=c.service\n"

	p := NewParser(NewRoleTable(), tags.ParserOptions{})
	result, err := p.ParseReader(context.Background(), strings.NewReader(content), "x.target")
	require.NoError(t, err)

	require.Len(t, result.Tags, 3)
	assert.Equal(t, "a.service", result.Tags[0].Name)
	assert.Equal(t, "b.service", result.Tags[1].Name)
	assert.Equal(t, 2, result.Tags[1].Line)
	assert.Equal(t, "c.service", result.Tags[2].Name)
	assert.Equal(t, "Before", result.Tags[2].Role)
}

func TestParseReader_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewParser(NewRoleTable(), tags.ParserOptions{})
	_, err := p.ParseReader(ctx, strings.NewReader(sshdUnit), "sshd.service")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseFile_Missing(t *testing.T) {
	p := NewParser(NewRoleTable(), tags.ParserOptions{})
	_, err := p.ParseFile(context.Background(), filepath.Join(t.TempDir(), "nope.service"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDefaultRegistryHasSystemdParser(t *testing.T) {
	require.True(t, tags.DefaultRegistry.HasParser(ParserName))

	for _, name := range []string{"sshd.service", "multi-user.target", "dbus.socket", "fstrim.timer", "x.time", "foo.unit"} {
		parserName, ok := tags.DefaultRegistry.ParserNameForFile(name)
		assert.True(t, ok, name)
		assert.Equal(t, ParserName, parserName, name)
	}

	for _, name := range []string{"sshd.conf", "README", "service", "unit", "sshd.service.bak"} {
		_, ok := tags.DefaultRegistry.ParserNameForFile(name)
		assert.False(t, ok, name)
	}

	parser, err := tags.DefaultRegistry.CreateParserForFile("a.service", tags.ParserOptions{})
	require.NoError(t, err)
	assert.IsType(t, &Parser{}, parser)
}
