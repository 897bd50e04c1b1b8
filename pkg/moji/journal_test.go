package moji

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/moji/internal/sqlite"
	"github.com/mesh-intelligence/moji/pkg/types"
)

func openJournal(t *testing.T, dir string) *Journal {
	t.Helper()
	cfg := types.DefaultConfig()
	cfg.DataDir = dir
	j, err := Open(cfg, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	cfg := types.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Headroom = 1.5
	_, err := Open(cfg, Options{})
	assert.ErrorIs(t, err, types.ErrHeadroomInvalid)

	_, err = Open(types.DefaultConfig(), Options{})
	assert.Error(t, err, "data directory required")
}

func TestJournalPersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	j := openJournal(t, dir)
	added, err := j.Logs.Append(ctx, types.NewEntry("first day #start", nil, nil, types.MoodGood, time.Now()))
	require.NoError(t, err)
	_, err = j.Backups.Snapshot(ctx, "", types.BackupOriginManual)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, sqlite.DatabaseFile), j.BackupPath())
	require.NoError(t, j.Close())
	require.NoError(t, j.Close(), "close is idempotent")

	j2 := openJournal(t, dir)
	got, err := j2.Logs.Get(ctx, added.ID)
	require.NoError(t, err)
	assert.Equal(t, "first day #start", got.TextContent)

	infos, err := j2.Backups.List(ctx)
	require.NoError(t, err)
	assert.Len(t, infos, 1)
}

func TestJournalRestoreFlow(t *testing.T) {
	ctx := context.Background()
	j := openJournal(t, t.TempDir())

	_, err := j.Logs.Append(ctx, types.NewEntry("keep", nil, nil, types.MoodGreat, time.Now()))
	require.NoError(t, err)
	rec, err := j.Backups.Snapshot(ctx, "", types.BackupOriginManual)
	require.NoError(t, err)

	require.NoError(t, j.Logs.Clear(ctx))

	var restored []sqlite.RestoreEvent
	unsubscribe := j.Backups.OnRestored(func(ev sqlite.RestoreEvent) { restored = append(restored, ev) })
	defer unsubscribe()

	n, err := j.Backups.Restore(ctx, rec.Filename)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, restored, 1)
	assert.Equal(t, rec.Filename, restored[0].Filename)

	coll, err := j.Logs.Load(ctx)
	require.NoError(t, err)
	require.Len(t, coll, 1)
	assert.Equal(t, "keep", coll[0].TextContent)
}
