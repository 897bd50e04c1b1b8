package sqlite

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/moji/internal/kv"
	"github.com/mesh-intelligence/moji/internal/logstore"
	"github.com/mesh-intelligence/moji/pkg/types"
)

const mib = 1024 * 1024

type fixture struct {
	ctx     context.Context
	backend *Backend
	slot    *kv.MemStore
	logs    *logstore.Store
	backups *BackupStore
	clock   time.Time
}

func newFixture(t *testing.T, capacityBytes int64) *fixture {
	t.Helper()
	f := &fixture{
		ctx:     context.Background(),
		backend: NewBackend(),
		slot:    kv.NewMemStore(20 * mib),
		clock:   time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, f.backend.Attach(testConfig(t.TempDir())))
	t.Cleanup(func() { f.backend.Detach() })

	f.logs = logstore.New(f.slot, logstore.Options{Capacity: capacityBytes, Headroom: 0.10})
	f.backups = NewBackupStore(f.backend, f.logs, BackupOptions{Clock: f.now})
	return f
}

func (f *fixture) now() time.Time { return f.clock }

func (f *fixture) advance(d time.Duration) { f.clock = f.clock.Add(d) }

func (f *fixture) add(t *testing.T, text string) types.Entry {
	t.Helper()
	e, err := f.logs.Append(f.ctx, types.Entry{TextContent: text})
	require.NoError(t, err)
	return e
}

func TestSnapshotAndList(t *testing.T) {
	f := newFixture(t, mib)
	f.add(t, "one")

	rec, err := f.backups.Snapshot(f.ctx, "first.json", types.BackupOriginManual)
	require.NoError(t, err)
	assert.Equal(t, "first.json", rec.Filename)
	assert.Equal(t, 1, rec.EntryCount)
	assert.Equal(t, int64(len(rec.Data)), rec.SizeBytes)

	f.advance(time.Hour)
	f.add(t, "two")
	_, err = f.backups.Snapshot(f.ctx, "second.json", types.BackupOriginManual)
	require.NoError(t, err)

	infos, err := f.backups.List(f.ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "second.json", infos[0].Filename, "newest first")
	assert.Equal(t, 2, infos[0].EntryCount)
	assert.Equal(t, "first.json", infos[1].Filename)
	assert.True(t, infos[0].Timestamp.After(infos[1].Timestamp))
}

func TestListEmpty(t *testing.T) {
	f := newFixture(t, mib)
	infos, err := f.backups.List(f.ctx)
	require.NoError(t, err)
	assert.NotNil(t, infos)
	assert.Empty(t, infos)
}

func TestSnapshotSameNameReplaces(t *testing.T) {
	f := newFixture(t, mib)
	f.add(t, "one")
	_, err := f.backups.Snapshot(f.ctx, "same.json", types.BackupOriginManual)
	require.NoError(t, err)

	f.advance(time.Minute)
	f.add(t, "two")
	_, err = f.backups.Snapshot(f.ctx, "same.json", types.BackupOriginManual)
	require.NoError(t, err)

	infos, err := f.backups.List(f.ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, 2, infos[0].EntryCount)
	assert.True(t, infos[0].Timestamp.Equal(f.clock))
}

func TestSnapshotGeneratedNames(t *testing.T) {
	f := newFixture(t, mib)

	auto, err := f.backups.Snapshot(f.ctx, "", types.BackupOriginAuto)
	require.NoError(t, err)
	assert.Equal(t, types.AutoBackupName(f.clock), auto.Filename)

	manual, err := f.backups.Snapshot(f.ctx, "  ", types.BackupOriginManual)
	require.NoError(t, err)
	assert.Equal(t, types.ManualBackupName(f.clock), manual.Filename)
}

func TestSnapshotRejectsBadInput(t *testing.T) {
	f := newFixture(t, mib)

	_, err := f.backups.Snapshot(f.ctx, "x", types.BackupOrigin("cron"))
	assert.Error(t, err)

	_, err = f.backups.Snapshot(f.ctx, strings.Repeat("n", 300), types.BackupOriginManual)
	assert.ErrorIs(t, err, types.ErrInvalidName)
}

func TestSnapshotOfCorruptPrimaryFails(t *testing.T) {
	f := newFixture(t, mib)
	require.NoError(t, f.slot.Set(f.ctx, logstore.DefaultKey, []byte("{")))

	_, err := f.backups.Snapshot(f.ctx, "bad.json", types.BackupOriginManual)
	require.ErrorIs(t, err, types.ErrCorruptData)

	infos, err := f.backups.List(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestRestore(t *testing.T) {
	f := newFixture(t, mib)
	kept := f.add(t, "kept")
	_, err := f.backups.Snapshot(f.ctx, "b.json", types.BackupOriginManual)
	require.NoError(t, err)

	f.add(t, "added after backup")

	var events []RestoreEvent
	unsubscribe := f.backups.OnRestored(func(ev RestoreEvent) { events = append(events, ev) })

	n, err := f.backups.Restore(f.ctx, "b.json")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	coll, err := f.logs.Load(f.ctx)
	require.NoError(t, err)
	require.Len(t, coll, 1)
	assert.Equal(t, kept.ID, coll[0].ID)

	require.Len(t, events, 1)
	assert.Equal(t, "b.json", events[0].Filename)
	assert.Equal(t, 1, events[0].Entries)

	unsubscribe()
	_, err = f.backups.Restore(f.ctx, "b.json")
	require.NoError(t, err)
	assert.Len(t, events, 1, "unsubscribed listener is not called")
}

func TestSnapshotRestoreReproducesCollection(t *testing.T) {
	f := newFixture(t, mib)
	f.add(t, "plain")
	_, err := f.logs.Append(f.ctx, types.Entry{
		TextContent: "rich #one #two",
		RichContent: []byte(`{"ops":[{"insert":"rich"}]}`),
		Images:      []string{"data:image/png;base64,AAAA"},
		Mood:        types.MoodGreat,
	})
	require.NoError(t, err)
	before, _, err := f.slot.Get(f.ctx, logstore.DefaultKey)
	require.NoError(t, err)

	_, err = f.backups.Snapshot(f.ctx, "exact.json", types.BackupOriginManual)
	require.NoError(t, err)
	require.NoError(t, f.logs.Clear(f.ctx))
	f.add(t, "unrelated")

	_, err = f.backups.Restore(f.ctx, "exact.json")
	require.NoError(t, err)

	after, _, err := f.slot.Get(f.ctx, logstore.DefaultKey)
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))
	assert.Equal(t, string(before), string(after))
}

func TestRestoreNotFound(t *testing.T) {
	f := newFixture(t, mib)
	f.add(t, "untouched")

	_, err := f.backups.Restore(f.ctx, "missing.json")
	require.ErrorIs(t, err, types.ErrNotFound)

	coll, err := f.logs.Load(f.ctx)
	require.NoError(t, err)
	assert.Len(t, coll, 1)
}

func TestRestoreCorruptBackup(t *testing.T) {
	f := newFixture(t, mib)
	f.add(t, "untouched")

	db, err := f.backend.conn()
	require.NoError(t, err)
	_, err = db.ExecContext(f.ctx, `INSERT INTO backups (filename, data, timestamp, origin, entry_count, size_bytes)
VALUES ('broken.json', 'not json', ?, 'manual', 0, 8)`, f.clock.Format(timeLayout))
	require.NoError(t, err)

	called := false
	f.backups.OnRestored(func(RestoreEvent) { called = true })

	_, err = f.backups.Restore(f.ctx, "broken.json")
	require.ErrorIs(t, err, types.ErrCorruptBackup)
	assert.False(t, called)

	coll, err := f.logs.Load(f.ctx)
	require.NoError(t, err)
	require.Len(t, coll, 1)
	assert.Equal(t, "untouched", coll[0].TextContent)
}

func TestRestoreTooLargeForPrimary(t *testing.T) {
	f := newFixture(t, 10*mib)
	f.add(t, strings.Repeat("b", 2*mib))
	_, err := f.backups.Snapshot(f.ctx, "big.json", types.BackupOriginManual)
	require.NoError(t, err)

	// A primary store with a smaller budget over the same backups.
	small := logstore.New(kv.NewMemStore(mib), logstore.Options{Capacity: mib, Headroom: 0.10})
	restorer := NewBackupStore(f.backend, small, BackupOptions{})

	_, err = restorer.Restore(f.ctx, "big.json")
	require.ErrorIs(t, err, types.ErrCapacityExceeded)
}

func TestGet(t *testing.T) {
	f := newFixture(t, mib)
	f.add(t, "x")
	_, err := f.backups.Snapshot(f.ctx, "g.json", types.BackupOriginManual)
	require.NoError(t, err)

	rec, err := f.backups.Get(f.ctx, "g.json")
	require.NoError(t, err)
	assert.Equal(t, types.BackupOriginManual, rec.Origin)
	assert.Contains(t, string(rec.Data), `"textContent":"x"`)

	_, err = f.backups.Get(f.ctx, "nope.json")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestDeleteIsIdempotent(t *testing.T) {
	f := newFixture(t, mib)
	_, err := f.backups.Snapshot(f.ctx, "d.json", types.BackupOriginManual)
	require.NoError(t, err)

	require.NoError(t, f.backups.Delete(f.ctx, "d.json"))
	require.NoError(t, f.backups.Delete(f.ctx, "d.json"))
	require.NoError(t, f.backups.Delete(f.ctx, "never.json"))

	infos, err := f.backups.List(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestPruneKeepsNewestAutomaticBackups(t *testing.T) {
	f := newFixture(t, mib)
	f.add(t, "x")

	for i := 0; i < 7; i++ {
		_, err := f.backups.Snapshot(f.ctx, fmt.Sprintf("auto-%d.json", i), types.BackupOriginAuto)
		require.NoError(t, err)
		f.advance(24 * time.Hour)
	}
	for i := 0; i < 2; i++ {
		_, err := f.backups.Snapshot(f.ctx, fmt.Sprintf("manual-%d.json", i), types.BackupOriginManual)
		require.NoError(t, err)
		f.advance(time.Hour)
	}

	n, err := f.backups.Prune(f.ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	infos, err := f.backups.List(f.ctx)
	require.NoError(t, err)
	var autos, manuals []string
	for _, info := range infos {
		if info.Origin == types.BackupOriginAuto {
			autos = append(autos, info.Filename)
		} else {
			manuals = append(manuals, info.Filename)
		}
	}
	assert.Equal(t, []string{"auto-6.json", "auto-5.json", "auto-4.json", "auto-3.json", "auto-2.json"}, autos)
	assert.Len(t, manuals, 2)

	n, err = f.backups.Prune(f.ctx, 5)
	require.NoError(t, err)
	assert.Zero(t, n, "prune is idempotent")

	_, err = f.backups.Prune(f.ctx, -1)
	assert.ErrorIs(t, err, types.ErrMaxBackupsInvalid)
}

func TestOperationsOnDetachedBackend(t *testing.T) {
	f := newFixture(t, mib)
	require.NoError(t, f.backend.Detach())

	_, err := f.backups.Snapshot(f.ctx, "x.json", types.BackupOriginManual)
	assert.ErrorIs(t, err, types.ErrStoreDetached)
	_, err = f.backups.List(f.ctx)
	assert.ErrorIs(t, err, types.ErrStoreDetached)
	_, err = f.backups.Restore(f.ctx, "x.json")
	assert.ErrorIs(t, err, types.ErrStoreDetached)
	assert.ErrorIs(t, f.backups.Delete(f.ctx, "x.json"), types.ErrStoreDetached)
	_, err = f.backups.Prune(f.ctx, 1)
	assert.ErrorIs(t, err, types.ErrStoreDetached)
}

func TestBackupsSurviveReattach(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	logs := logstore.New(kv.NewMemStore(mib), logstore.Options{Capacity: mib, Headroom: 0.10})

	b := NewBackend()
	require.NoError(t, b.Attach(testConfig(dir)))
	_, err := NewBackupStore(b, logs, BackupOptions{}).Snapshot(ctx, "keep.json", types.BackupOriginManual)
	require.NoError(t, err)
	require.NoError(t, b.Detach())

	b2 := NewBackend()
	require.NoError(t, b2.Attach(testConfig(dir)))
	defer b2.Detach()
	infos, err := NewBackupStore(b2, logs, BackupOptions{}).List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "keep.json", infos[0].Filename)
}
