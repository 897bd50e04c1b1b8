package moji

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/mesh-intelligence/moji/internal/kv"
	"github.com/mesh-intelligence/moji/internal/logstore"
	"github.com/mesh-intelligence/moji/internal/paths"
	"github.com/mesh-intelligence/moji/internal/scheduler"
	"github.com/mesh-intelligence/moji/internal/sqlite"
	"github.com/mesh-intelligence/moji/internal/transfer"
	"github.com/mesh-intelligence/moji/pkg/types"
)

// Options carries the collaborators shared by every component.
type Options struct {
	Logger   *slog.Logger
	Notifier types.Notifier
	Clock    func() time.Time
}

// Journal is an opened set of storage components. Close releases them.
type Journal struct {
	Config    types.Config
	Slot      kv.Store
	Logs      *logstore.Store
	Backups   *sqlite.BackupStore
	Scheduler *scheduler.Scheduler
	Transfer  *transfer.Bridge

	backend *sqlite.Backend
}

// Open validates cfg and opens the journal under cfg.DataDir. The primary
// slot lives in a subdirectory with a hard quota equal to the capacity; the
// backup database sits beside it.
//
// Example:
//
//	cfg := types.DefaultConfig()
//	cfg.DataDir = "/tmp/moji"
//	j, err := moji.Open(cfg, moji.Options{})
//	if err != nil {
//	    return err
//	}
//	defer j.Close()
func Open(cfg types.Config, opts Options) (*Journal, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.DataDir == "" {
		return nil, errors.New("data directory is required")
	}
	dataDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	cfg.DataDir = dataDir

	slot, err := kv.NewDirStore(paths.SlotDir(dataDir), cfg.CapacityBytes)
	if err != nil {
		return nil, fmt.Errorf("open primary slot: %w", err)
	}

	logs := logstore.New(slot, logstore.Options{
		Capacity: cfg.CapacityBytes,
		Headroom: cfg.Headroom,
		Notifier: opts.Notifier,
		Logger:   opts.Logger,
		Clock:    opts.Clock,
	})

	backend := sqlite.NewBackend()
	if err := backend.Attach(cfg); err != nil {
		return nil, fmt.Errorf("open backup store: %w", err)
	}

	backups := sqlite.NewBackupStore(backend, logs, sqlite.BackupOptions{
		Notifier: opts.Notifier,
		Logger:   opts.Logger,
		Clock:    opts.Clock,
	})

	sched := scheduler.New(backups, logs, slot, scheduler.Options{
		Interval:       cfg.BackupInterval,
		CheckPeriod:    cfg.CheckPeriod,
		MaxAutoBackups: cfg.MaxAutoBackups,
		Notifier:       opts.Notifier,
		Logger:         opts.Logger,
		Clock:          opts.Clock,
	})

	bridge, err := transfer.New(logs, transfer.Options{Logger: opts.Logger, Clock: opts.Clock})
	if err != nil {
		backend.Detach()
		return nil, err
	}

	return &Journal{
		Config:    cfg,
		Slot:      slot,
		Logs:      logs,
		Backups:   backups,
		Scheduler: sched,
		Transfer:  bridge,
		backend:   backend,
	}, nil
}

// Close releases the backup database. Close is idempotent.
func (j *Journal) Close() error {
	return j.backend.Detach()
}

// BackupPath returns the backup database file path.
func (j *Journal) BackupPath() string {
	return j.backend.Path()
}
