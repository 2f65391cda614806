package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semunit/processor/tags"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "refs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sshdResult() *tags.ParseResult {
	return &tags.ParseResult{
		Path:      "system/sshd.service",
		Hash:      "h1",
		Parser:    "SystemdUnit",
		IndexedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Tags: []tags.Tag{
			{Name: "network.target", Kind: "unit", Role: "After", Path: "system/sshd.service", Section: "Unit", Line: 3},
			{Name: "multi-user.target", Kind: "unit", Role: "WantedBy", Path: "system/sshd.service", Section: "Install", Line: 9},
		},
	}
}

func TestStore_PublishAndQuery(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Publish(ctx, sshdResult()))
	require.NoError(t, s.Publish(ctx, &tags.ParseResult{
		Path:   "system/app.target",
		Hash:   "h2",
		Parser: "SystemdUnit",
		Tags: []tags.Tag{
			{Name: "network.target", Kind: "unit", Role: "Requires", Path: "system/app.target", Section: "Unit", Line: 2},
		},
	}))

	all, err := s.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "system/app.target", all[0].Path)
	assert.Equal(t, sshdResult().Tags, all[1:])

	after, err := s.Query(ctx, Filter{Role: "After"})
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, "network.target", after[0].Name)

	byName, err := s.Query(ctx, Filter{Name: "network.target", Path: "system/app.target"})
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, "Requires", byName[0].Role)

	referrers, err := s.Referrers(ctx, "network.target")
	require.NoError(t, err)
	assert.Equal(t, []string{"system/app.target", "system/sshd.service"}, referrers)
}

func TestStore_PublishReplaces(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Publish(ctx, sshdResult()))

	updated := sshdResult()
	updated.Hash = "h3"
	updated.Tags = updated.Tags[:1]
	require.NoError(t, s.Publish(ctx, updated))

	got, err := s.Query(ctx, Filter{Path: "system/sshd.service"})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	hash, err := s.FileHash(ctx, "system/sshd.service")
	require.NoError(t, err)
	assert.Equal(t, "h3", hash)
}

func TestStore_DuplicateReferencesKept(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	r := sshdResult()
	r.Tags = append(r.Tags, r.Tags[0])
	require.NoError(t, s.Publish(ctx, r))

	got, err := s.Query(ctx, Filter{Name: "network.target"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestStore_Retract(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Publish(ctx, sshdResult()))
	require.NoError(t, s.Retract(ctx, "system/sshd.service"))
	require.NoError(t, s.Retract(ctx, "never/indexed.service"))

	_, err := s.FileHash(ctx, "system/sshd.service")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := s.Query(ctx, Filter{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_InMemory(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, ":memory:")
	require.NoError(t, err)

	require.NoError(t, s.Publish(ctx, sshdResult()))
	got, err := s.Query(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Publish(ctx, sshdResult()), ErrClosed)
}
