package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/mesh-intelligence/moji/internal/logging"
	"github.com/mesh-intelligence/moji/internal/metrics"
	"github.com/mesh-intelligence/moji/pkg/types"
)

// timeLayout is fixed width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const maxNameLength = 255

// LogSource is the part of the primary store the backup store reads from and
// restores into.
type LogSource interface {
	Load(ctx context.Context) (types.Collection, error)
	Save(ctx context.Context, coll types.Collection) error
}

// RestoreEvent is sent to restore listeners after the primary collection
// has been replaced.
type RestoreEvent struct {
	Filename string    `json:"filename"`
	Entries  int       `json:"entries"`
	At       time.Time `json:"at"`
}

// RestoreListener is called once per completed restore.
type RestoreListener func(RestoreEvent)

// BackupOptions configures a BackupStore.
type BackupOptions struct {
	Notifier types.Notifier
	Logger   *slog.Logger
	Clock    func() time.Time
}

// BackupStore takes, lists, restores, and prunes snapshots of the primary
// collection.
type BackupStore struct {
	backend   *Backend
	logs      LogSource
	listeners *xsync.MapOf[uint64, RestoreListener]
	nextID    atomic.Uint64
	notify    types.Notifier
	logger    *slog.Logger
	now       func() time.Time
}

// NewBackupStore returns a BackupStore over an attached backend.
func NewBackupStore(backend *Backend, logs LogSource, opts BackupOptions) *BackupStore {
	s := &BackupStore{
		backend:   backend,
		logs:      logs,
		listeners: xsync.NewMapOf[uint64, RestoreListener](),
		notify:    opts.Notifier,
		logger:    logging.Component(opts.Logger, "backups"),
		now:       opts.Clock,
	}
	if s.notify == nil {
		s.notify = types.NopNotifier{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// OnRestored registers fn to run after every successful restore. The
// returned function unregisters it.
func (s *BackupStore) OnRestored(fn RestoreListener) (unsubscribe func()) {
	id := s.nextID.Add(1)
	s.listeners.Store(id, fn)
	return func() { s.listeners.Delete(id) }
}

// Snapshot stores the current primary collection under name, replacing any
// backup with the same name. An empty name gets a generated one for the
// origin.
func (s *BackupStore) Snapshot(ctx context.Context, name string, origin types.BackupOrigin) (types.BackupRecord, error) {
	if !origin.Valid() {
		return types.BackupRecord{}, fmt.Errorf("unknown backup origin %q", origin)
	}
	db, err := s.backend.conn()
	if err != nil {
		return types.BackupRecord{}, err
	}

	now := s.now()
	name = strings.TrimSpace(name)
	if name == "" {
		if origin == types.BackupOriginAuto {
			name = types.AutoBackupName(now)
		} else {
			name = types.ManualBackupName(now)
		}
	}
	if len(name) > maxNameLength {
		return types.BackupRecord{}, fmt.Errorf("%w: longer than %d bytes", types.ErrInvalidName, maxNameLength)
	}

	coll, err := s.logs.Load(ctx)
	if err != nil {
		return types.BackupRecord{}, fmt.Errorf("read collection: %w", err)
	}
	data, err := json.Marshal(coll)
	if err != nil {
		return types.BackupRecord{}, fmt.Errorf("encode collection: %w", err)
	}

	rec := types.BackupRecord{
		BackupInfo: types.BackupInfo{
			Filename:   name,
			Timestamp:  now.UTC(),
			Origin:     origin,
			EntryCount: len(coll),
			SizeBytes:  int64(len(data)),
		},
		Data: data,
	}

	_, err = db.ExecContext(ctx, `INSERT INTO backups (filename, data, timestamp, origin, entry_count, size_bytes)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(filename) DO UPDATE SET
    data = excluded.data,
    timestamp = excluded.timestamp,
    origin = excluded.origin,
    entry_count = excluded.entry_count,
    size_bytes = excluded.size_bytes`,
		rec.Filename, string(rec.Data), rec.Timestamp.Format(timeLayout), string(rec.Origin), rec.EntryCount, rec.SizeBytes)
	if err != nil {
		return types.BackupRecord{}, fmt.Errorf("store backup %q: %w", name, err)
	}

	metrics.BackupCreated(string(origin))
	s.logger.Info("backup created", "filename", name, "origin", origin, "entries", rec.EntryCount, "bytes", rec.SizeBytes)
	return rec, nil
}

// List returns backup metadata, newest first.
func (s *BackupStore) List(ctx context.Context) ([]types.BackupInfo, error) {
	db, err := s.backend.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT filename, timestamp, origin, entry_count, size_bytes
FROM backups ORDER BY timestamp DESC, filename DESC`)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	defer rows.Close()

	infos := []types.BackupInfo{}
	for rows.Next() {
		info, err := scanInfo(rows)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInfo(row scanner, extra ...any) (types.BackupInfo, error) {
	var (
		info   types.BackupInfo
		ts     string
		origin string
	)
	dest := append([]any{&info.Filename, &ts, &origin, &info.EntryCount, &info.SizeBytes}, extra...)
	if err := row.Scan(dest...); err != nil {
		return types.BackupInfo{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return types.BackupInfo{}, fmt.Errorf("backup %q timestamp: %w", info.Filename, err)
	}
	info.Timestamp = t
	info.Origin = types.BackupOrigin(origin)
	return info, nil
}

// Get returns the full backup record, or an error wrapping
// types.ErrNotFound.
func (s *BackupStore) Get(ctx context.Context, filename string) (types.BackupRecord, error) {
	db, err := s.backend.conn()
	if err != nil {
		return types.BackupRecord{}, err
	}
	var data string
	row := db.QueryRowContext(ctx, `SELECT filename, timestamp, origin, entry_count, size_bytes, data
FROM backups WHERE filename = ?`, filename)
	info, err := scanInfo(row, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return types.BackupRecord{}, fmt.Errorf("backup %q: %w", filename, types.ErrNotFound)
	}
	if err != nil {
		return types.BackupRecord{}, fmt.Errorf("read backup %q: %w", filename, err)
	}
	return types.BackupRecord{BackupInfo: info, Data: []byte(data)}, nil
}

// Restore replaces the primary collection with the backup's payload and
// notifies restore listeners. It returns the number of restored entries.
// Capacity errors from the primary store are returned unchanged and leave
// the primary collection as it was.
func (s *BackupStore) Restore(ctx context.Context, filename string) (int, error) {
	rec, err := s.Get(ctx, filename)
	if err != nil {
		return 0, err
	}

	var coll types.Collection
	if err := json.Unmarshal(rec.Data, &coll); err != nil {
		s.logger.Error("backup payload failed to decode", "filename", filename, "error", err)
		return 0, fmt.Errorf("%w: %s: %v", types.ErrCorruptBackup, filename, err)
	}
	if coll == nil {
		coll = types.Collection{}
	}

	if err := s.logs.Save(ctx, coll); err != nil {
		return 0, fmt.Errorf("restore %q: %w", filename, err)
	}

	metrics.Restored()
	s.logger.Info("backup restored", "filename", filename, "entries", len(coll))
	s.notify.Notify(types.NoticeSuccess, fmt.Sprintf("restored %d entries from %s", len(coll), filename))

	ev := RestoreEvent{Filename: filename, Entries: len(coll), At: s.now()}
	s.listeners.Range(func(_ uint64, fn RestoreListener) bool {
		fn(ev)
		return true
	})
	return len(coll), nil
}

// Delete removes a backup. Deleting a missing backup succeeds.
func (s *BackupStore) Delete(ctx context.Context, filename string) error {
	db, err := s.backend.conn()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM backups WHERE filename = ?`, filename); err != nil {
		return fmt.Errorf("delete backup %q: %w", filename, err)
	}
	return nil
}

// Prune deletes the oldest automatic backups beyond max and returns how many
// were removed. Manual backups are never pruned.
func (s *BackupStore) Prune(ctx context.Context, max int) (int, error) {
	if max < 0 {
		return 0, types.ErrMaxBackupsInvalid
	}
	db, err := s.backend.conn()
	if err != nil {
		return 0, err
	}
	res, err := db.ExecContext(ctx, `DELETE FROM backups
WHERE origin = ? AND filename NOT IN (
    SELECT filename FROM backups WHERE origin = ?
    ORDER BY timestamp DESC, filename DESC LIMIT ?
)`, string(types.BackupOriginAuto), string(types.BackupOriginAuto), max)
	if err != nil {
		return 0, fmt.Errorf("prune backups: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	metrics.Pruned(int(n))
	if n > 0 {
		s.logger.Info("pruned automatic backups", "removed", n, "kept", max)
	}
	return int(n), nil
}
