package logstore

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/moji/internal/capacity"
	"github.com/mesh-intelligence/moji/internal/kv"
	"github.com/mesh-intelligence/moji/pkg/types"
)

const mib = 1024 * 1024

var baseTime = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

type notice struct {
	level types.NoticeLevel
	msg   string
}

type recorder struct {
	mu      sync.Mutex
	notices []notice
}

func (r *recorder) Notify(level types.NoticeLevel, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, notice{level, msg})
}

func newStore(t *testing.T, slot kv.Store, capacityBytes int64) (*Store, *recorder) {
	t.Helper()
	rec := &recorder{}
	clock := baseTime
	s := New(slot, Options{
		Capacity: capacityBytes,
		Headroom: 0.10,
		Notifier: rec,
		Clock: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
	})
	return s, rec
}

func entry(text string, at time.Time) types.Entry {
	return types.NewEntry(text, nil, nil, types.MoodNeutral, at)
}

func TestLoadMissingIsEmpty(t *testing.T) {
	s, _ := newStore(t, kv.NewMemStore(mib), mib)
	coll, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, coll)
	assert.Empty(t, coll)
}

func TestLoadCorruptReportsRecoverableError(t *testing.T) {
	ctx := context.Background()
	slot := kv.NewMemStore(mib)
	require.NoError(t, slot.Set(ctx, DefaultKey, []byte(`{not json`)))
	s, rec := newStore(t, slot, mib)

	coll, err := s.Load(ctx)
	require.ErrorIs(t, err, types.ErrCorruptData)
	assert.NotNil(t, coll)
	assert.Empty(t, coll)
	require.Len(t, rec.notices, 1)
	assert.Equal(t, types.NoticeWarning, rec.notices[0].level)

	// A mutation replaces the corrupt value.
	_, err = s.Append(ctx, entry("fresh start", baseTime))
	require.NoError(t, err)
	coll, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, coll, 1)
}

func TestSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, kv.NewMemStore(mib), mib)

	want := types.Collection{entry("b", baseTime.Add(time.Minute)), entry("a", baseTime)}
	require.NoError(t, s.Save(ctx, want))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, want[0].ID, got[0].ID)
	assert.Equal(t, want[1].ID, got[1].ID)
	assert.Equal(t, "b", got[0].TextContent)
}

func TestSaveOverCapacityWritesNothing(t *testing.T) {
	ctx := context.Background()
	slot := kv.NewMemStore(10 * mib)
	s, _ := newStore(t, slot, 1000)

	small := types.Collection{entry("small", baseTime)}
	require.NoError(t, s.Save(ctx, small))

	big := types.Collection{entry(strings.Repeat("x", 1000), baseTime)}
	err := s.Save(ctx, big)
	require.ErrorIs(t, err, types.ErrCapacityExceeded)

	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "small", got[0].TextContent)
}

func TestSaveQuotaExceededWhenEstimateIsWrong(t *testing.T) {
	ctx := context.Background()
	// The slot's hard quota is far below the capacity the store believes in.
	slot := kv.NewMemStore(500)
	s, _ := newStore(t, slot, mib)

	first := types.Collection{entry("kept", baseTime)}
	require.NoError(t, s.Save(ctx, first))

	err := s.Save(ctx, types.Collection{entry(strings.Repeat("y", 600), baseTime)})
	require.ErrorIs(t, err, types.ErrQuotaExceeded)
	assert.NotErrorIs(t, err, types.ErrCapacityExceeded)

	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "kept", got[0].TextContent)
}

func TestAppendPrependsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, kv.NewMemStore(mib), mib)

	first, err := s.Append(ctx, types.Entry{TextContent: "first #Morning"})
	require.NoError(t, err)
	second, err := s.Append(ctx, types.Entry{TextContent: "second"})
	require.NoError(t, err)

	assert.NotEmpty(t, first.ID)
	assert.False(t, first.Timestamp.IsZero(), "timestamp assigned from the clock")
	assert.Equal(t, []string{"morning"}, first.Tags)
	assert.Equal(t, types.MoodNeutral, first.Mood)

	coll, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, coll, 2)
	assert.Equal(t, second.ID, coll[0].ID)
	assert.Equal(t, first.ID, coll[1].ID)
}

func TestAppendRegeneratesCollidingID(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, kv.NewMemStore(mib), mib)

	e := entry("one", baseTime)
	e.ID = "dup"
	stored, err := s.Append(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, "dup", stored.ID)

	e2 := entry("two", baseTime)
	e2.ID = "dup"
	stored2, err := s.Append(ctx, e2)
	require.NoError(t, err)
	assert.NotEqual(t, "dup", stored2.ID)

	coll, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, coll.IDs(), 2, "ids stay unique")
}

func TestAppendInsufficientStorage(t *testing.T) {
	ctx := context.Background()
	slot := kv.NewMemStore(20 * mib)
	s, _ := newStore(t, slot, 5*mib)

	// Fill the slot directly to ~95% of capacity, past the safety margin.
	filler := types.Collection{entry(strings.Repeat("f", int(4.75*mib)), baseTime)}
	data, err := json.Marshal(filler)
	require.NoError(t, err)
	require.NoError(t, slot.Set(ctx, DefaultKey, data))

	_, err = s.Append(ctx, entry(strings.Repeat("n", mib), baseTime.Add(time.Hour)))
	require.ErrorIs(t, err, types.ErrInsufficientStorage)

	stored, _, err := slot.Get(ctx, DefaultKey)
	require.NoError(t, err)
	assert.Equal(t, data, stored, "collection unchanged")
}

func TestAppendNeverExceedsLimit(t *testing.T) {
	ctx := context.Background()
	slot := kv.NewMemStore(mib)
	s, _ := newStore(t, slot, 4096)

	var err error
	for i := 0; i < 100 && err == nil; i++ {
		_, err = s.Append(ctx, types.Entry{TextContent: strings.Repeat("z", 200)})
		stored, _, getErr := slot.Get(ctx, DefaultKey)
		require.NoError(t, getErr)
		assert.LessOrEqual(t, int64(len(stored)), capacity.Limit(4096, 0.10))
	}
	require.ErrorIs(t, err, types.ErrInsufficientStorage)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, kv.NewMemStore(mib), mib)

	a, err := s.Append(ctx, types.Entry{TextContent: "a"})
	require.NoError(t, err)
	b, err := s.Append(ctx, types.Entry{TextContent: "b"})
	require.NoError(t, err)

	require.NoError(t, s.Remove(ctx, a.ID))
	require.NoError(t, s.Remove(ctx, a.ID), "remove is idempotent")
	require.NoError(t, s.Remove(ctx, "never-existed"))

	coll, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, coll, 1)
	assert.Equal(t, b.ID, coll[0].ID)
}

func TestAppendThenRemoveRestoresCollection(t *testing.T) {
	ctx := context.Background()
	slot := kv.NewMemStore(mib)
	s, _ := newStore(t, slot, mib)

	_, err := s.Append(ctx, entry("first #a", baseTime))
	require.NoError(t, err)
	_, err = s.Append(ctx, entry("second #b", baseTime.Add(time.Minute)))
	require.NoError(t, err)
	before, _, err := slot.Get(ctx, DefaultKey)
	require.NoError(t, err)

	added, err := s.Append(ctx, types.Entry{
		TextContent: "transient",
		RichContent: []byte(`{"ops":[]}`),
		Images:      []string{"data:image/gif;base64,R0lG"},
	})
	require.NoError(t, err)
	require.NoError(t, s.Remove(ctx, added.ID))

	after, _, err := slot.Get(ctx, DefaultKey)
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))
	assert.Equal(t, string(before), string(after), "same order and bytes")
}

func TestRemoveShrinksOverfullCollection(t *testing.T) {
	ctx := context.Background()
	slot := kv.NewMemStore(20 * mib)
	s, _ := newStore(t, slot, 5*mib)

	big := entry(strings.Repeat("f", int(4.75*mib)), baseTime)
	small := entry("small", baseTime.Add(time.Minute))
	data, err := json.Marshal(types.Collection{small, big})
	require.NoError(t, err)
	require.NoError(t, slot.Set(ctx, DefaultKey, data))

	require.NoError(t, s.Remove(ctx, small.ID), "shrinking write allowed past the margin")
	require.NoError(t, s.Remove(ctx, big.ID))

	coll, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, coll)
}

func TestGet(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, kv.NewMemStore(mib), mib)

	a, err := s.Append(ctx, types.Entry{TextContent: "a"})
	require.NoError(t, err)

	got, err := s.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", got.TextContent)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, kv.NewMemStore(mib), mib)
	_, err := s.Append(ctx, types.Entry{TextContent: "a"})
	require.NoError(t, err)

	require.NoError(t, s.Clear(ctx))
	coll, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, coll)
}

func TestUsage(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, kv.NewMemStore(mib), 10000)

	u, err := s.Usage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, u.Entries)
	assert.Equal(t, int64(2), u.Used, "empty collection encodes as []")
	assert.Equal(t, int64(9000), u.Limit)
	assert.Equal(t, int64(10000), u.Capacity)
	assert.Equal(t, int64(8998), u.Available)

	_, err = s.Append(ctx, types.Entry{TextContent: strings.Repeat("q", 1000)})
	require.NoError(t, err)

	u, err = s.Usage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, u.Entries)
	assert.Greater(t, u.Used, int64(1000))
	assert.InDelta(t, float64(u.Used)/100, u.Percent, 0.0001)

	ok, err := s.HasRoomFor(ctx, 100)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.HasRoomFor(ctx, 9000)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreOverDirSlot(t *testing.T) {
	ctx := context.Background()
	slot, err := kv.NewDirStore(t.TempDir(), mib)
	require.NoError(t, err)
	s, _ := newStore(t, slot, mib)

	e, err := s.Append(ctx, types.Entry{TextContent: "on disk"})
	require.NoError(t, err)

	reopened := New(slot, Options{Capacity: mib, Headroom: 0.10})
	got, err := reopened.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "on disk", got.TextContent)
}

func TestConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, kv.NewMemStore(10*mib), 10*mib)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Append(ctx, types.Entry{TextContent: "concurrent"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	coll, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, coll, 20)
}
