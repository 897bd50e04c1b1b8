// Package logstore keeps the journal collection in a capacity-limited
// key/value slot. Every write replaces the whole collection and is checked
// against the capacity minus headroom before it reaches the slot, so the
// slot's hard quota is only hit when the estimate was wrong.
package logstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mesh-intelligence/moji/internal/capacity"
	"github.com/mesh-intelligence/moji/internal/kv"
	"github.com/mesh-intelligence/moji/internal/logging"
	"github.com/mesh-intelligence/moji/internal/metrics"
	"github.com/mesh-intelligence/moji/pkg/types"
)

// DefaultKey is the slot key holding the collection.
const DefaultKey = "logs"

// maxIDAttempts bounds id regeneration on collision.
const maxIDAttempts = 8

// Options configures a Store. An empty Key or a non-positive Capacity takes
// the default; Headroom is used as given.
type Options struct {
	Key      string
	Capacity int64
	Headroom float64
	Notifier types.Notifier
	Logger   *slog.Logger
	Clock    func() time.Time
}

// Store is the primary log store. It holds no cache: every operation reads
// the slot again.
type Store struct {
	mu       sync.Mutex
	slot     kv.Store
	key      string
	capacity int64
	headroom float64
	notify   types.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// New returns a Store over slot.
func New(slot kv.Store, opts Options) *Store {
	s := &Store{
		slot:     slot,
		key:      opts.Key,
		capacity: opts.Capacity,
		headroom: opts.Headroom,
		notify:   opts.Notifier,
		logger:   logging.Component(opts.Logger, "logstore"),
		now:      opts.Clock,
	}
	if s.key == "" {
		s.key = DefaultKey
	}
	if s.capacity <= 0 {
		s.capacity = types.DefaultCapacityBytes
	}
	if s.notify == nil {
		s.notify = types.NopNotifier{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Capacity returns the configured capacity in bytes.
func (s *Store) Capacity() int64 { return s.capacity }

// Limit returns the largest collection size a write may produce.
func (s *Store) Limit() int64 { return capacity.Limit(s.capacity, s.headroom) }

// Load returns the stored collection. A missing collection is empty. A
// collection that fails to decode is reported as an error wrapping
// types.ErrCorruptData together with an empty, usable collection; callers may
// treat it as a warning.
func (s *Store) Load(ctx context.Context) (types.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *Store) load(ctx context.Context) (types.Collection, error) {
	data, ok, err := s.slot.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("read collection: %w", err)
	}
	if !ok || len(data) == 0 {
		return types.Collection{}, nil
	}

	var coll types.Collection
	if err := json.Unmarshal(data, &coll); err != nil {
		metrics.CorruptLoad()
		s.logger.Error("stored collection failed to decode", "key", s.key, "bytes", len(data), "error", err)
		s.notify.Notify(types.NoticeWarning, types.UserMessage(types.ErrCorruptData))
		return types.Collection{}, fmt.Errorf("%w: %v", types.ErrCorruptData, err)
	}
	if coll == nil {
		coll = types.Collection{}
	}
	return coll, nil
}

// loadForWrite is load for mutating operations: a corrupt collection is
// replaced by the write rather than blocking it.
func (s *Store) loadForWrite(ctx context.Context) (types.Collection, error) {
	coll, err := s.load(ctx)
	if errors.Is(err, types.ErrCorruptData) {
		s.logger.Warn("overwriting corrupt collection")
		return coll, nil
	}
	return coll, err
}

// Save replaces the stored collection. It fails with
// types.ErrCapacityExceeded, without writing, when the collection is larger
// than capacity minus headroom, and with types.ErrQuotaExceeded when the
// slot refuses the write.
func (s *Store) Save(ctx context.Context, coll types.Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx, coll, true)
}

// save writes coll. When enforce is false only the slot's hard quota
// applies; Remove uses that so a collection already past the safety margin
// can still shrink.
func (s *Store) save(ctx context.Context, coll types.Collection, enforce bool) error {
	if coll == nil {
		coll = types.Collection{}
	}
	data, err := json.Marshal(coll)
	if err != nil {
		return fmt.Errorf("encode collection: %w", err)
	}
	size := int64(len(data))
	if enforce && !capacity.Fits(size, s.capacity, s.headroom) {
		metrics.CapacityRejected("save")
		s.logger.Warn("collection over capacity", "size", size, "limit", s.Limit())
		return fmt.Errorf("%w: %d bytes, limit %d", types.ErrCapacityExceeded, size, s.Limit())
	}

	if err := s.slot.Set(ctx, s.key, data); err != nil {
		if errors.Is(err, types.ErrQuotaExceeded) {
			metrics.QuotaFailure()
			s.logger.Error("slot quota exceeded", "size", size, "error", err)
			return err
		}
		return fmt.Errorf("write collection: %w", err)
	}
	metrics.LogWrite()
	s.logger.Debug("collection saved", "entries", len(coll), "size", size)
	return nil
}

// Append stores entry at the head of the collection and returns it as
// stored. The entry is normalized, gets a fresh id if it has none or its id
// is already taken, and gets the current time if it has no timestamp. The
// call fails with types.ErrInsufficientStorage, before anything is written,
// when the grown collection would pass the safety margin.
func (s *Store) Append(ctx context.Context, entry types.Entry) (types.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll, err := s.loadForWrite(ctx)
	if err != nil {
		return types.Entry{}, err
	}

	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now().UTC()
	}
	entry.Normalize()

	ids := coll.IDs()
	for attempt := 0; entry.ID == "" || contains(ids, entry.ID); attempt++ {
		if attempt == maxIDAttempts {
			return types.Entry{}, fmt.Errorf("could not generate a unique entry id")
		}
		entry.ID = types.NewID()
	}

	next := make(types.Collection, 0, len(coll)+1)
	next = append(next, entry)
	next = append(next, coll...)

	size := capacity.EstimateSize(next)
	if !capacity.Fits(size, s.capacity, s.headroom) {
		metrics.CapacityRejected("append")
		s.logger.Warn("append refused", "size", size, "limit", s.Limit(), "entry_bytes", capacity.EstimateSize(entry))
		return types.Entry{}, fmt.Errorf("%w: collection would be %d bytes, limit %d", types.ErrInsufficientStorage, size, s.Limit())
	}

	if err := s.save(ctx, next, true); err != nil {
		return types.Entry{}, err
	}
	return entry, nil
}

func contains(ids map[string]struct{}, id string) bool {
	_, ok := ids[id]
	return ok
}

// Get returns the entry with id or an error wrapping types.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (types.Entry, error) {
	coll, err := s.Load(ctx)
	if err != nil {
		return types.Entry{}, err
	}
	i := coll.Index(id)
	if i < 0 {
		return types.Entry{}, fmt.Errorf("entry %q: %w", id, types.ErrNotFound)
	}
	return coll[i], nil
}

// Remove deletes the entry with id. Removing an absent id succeeds without
// writing.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll, err := s.loadForWrite(ctx)
	if err != nil {
		return err
	}
	next, removed := coll.Without(id)
	if !removed {
		return nil
	}
	return s.save(ctx, next, false)
}

// Clear replaces the collection with an empty one.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx, types.Collection{}, false)
}

// Usage describes how much of the budget the collection occupies.
type Usage struct {
	Entries   int     `json:"entries"`
	Used      int64   `json:"used"`
	Limit     int64   `json:"limit"`
	Capacity  int64   `json:"capacity"`
	Available int64   `json:"available"`
	Percent   float64 `json:"percent"`
}

// Usage reports the serialized size of the collection against the budget.
// Percent is relative to the full capacity.
func (s *Store) Usage(ctx context.Context) (Usage, error) {
	coll, err := s.Load(ctx)
	if err != nil && !errors.Is(err, types.ErrCorruptData) {
		return Usage{}, err
	}
	used := capacity.EstimateSize(coll)
	limit := s.Limit()
	available := limit - used
	if available < 0 {
		available = 0
	}
	return Usage{
		Entries:   len(coll),
		Used:      used,
		Limit:     limit,
		Capacity:  s.capacity,
		Available: available,
		Percent:   float64(used) / float64(s.capacity) * 100,
	}, nil
}

// HasRoomFor reports whether required more bytes fit under the safety
// margin.
func (s *Store) HasRoomFor(ctx context.Context, required int64) (bool, error) {
	u, err := s.Usage(ctx)
	if err != nil {
		return false, err
	}
	return u.Available >= required, nil
}
