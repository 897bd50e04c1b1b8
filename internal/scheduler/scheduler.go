// Package scheduler takes automatic backups on a fixed interval. It wakes up
// every check period, compares the last automatic backup instant (kept in the
// key/value slot so it survives restarts) with the interval, and when a backup
// is due and the journal is not empty, snapshots it and prunes old automatic
// backups.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mesh-intelligence/moji/internal/kv"
	"github.com/mesh-intelligence/moji/internal/logging"
	"github.com/mesh-intelligence/moji/pkg/types"
)

// StateKey is the slot key holding the last automatic backup instant.
const StateKey = "last_auto_backup"

// Backups is the part of the backup store the scheduler drives.
type Backups interface {
	Snapshot(ctx context.Context, name string, origin types.BackupOrigin) (types.BackupRecord, error)
	Prune(ctx context.Context, max int) (int, error)
}

// Logs is the part of the primary store the scheduler reads.
type Logs interface {
	Load(ctx context.Context) (types.Collection, error)
}

// Options configures a Scheduler. Non-positive durations take the defaults;
// a negative MaxAutoBackups is treated as the default.
type Options struct {
	Interval       time.Duration
	CheckPeriod    time.Duration
	MaxAutoBackups int
	Notifier       types.Notifier
	Logger         *slog.Logger
	Clock          func() time.Time
}

// Scheduler decides when automatic backups are due.
type Scheduler struct {
	backups     Backups
	logs        Logs
	state       kv.Store
	interval    time.Duration
	checkPeriod time.Duration
	maxBackups  int
	notify      types.Notifier
	logger      *slog.Logger
	now         func() time.Time
}

// New returns a Scheduler.
func New(backups Backups, logs Logs, state kv.Store, opts Options) *Scheduler {
	s := &Scheduler{
		backups:     backups,
		logs:        logs,
		state:       state,
		interval:    opts.Interval,
		checkPeriod: opts.CheckPeriod,
		maxBackups:  opts.MaxAutoBackups,
		notify:      opts.Notifier,
		logger:      logging.Component(opts.Logger, "scheduler"),
		now:         opts.Clock,
	}
	if s.interval <= 0 {
		s.interval = types.DefaultBackupInterval
	}
	if s.checkPeriod <= 0 {
		s.checkPeriod = types.DefaultCheckPeriod
	}
	if s.maxBackups < 0 {
		s.maxBackups = types.DefaultMaxAutoBackups
	}
	if s.notify == nil {
		s.notify = types.NopNotifier{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Outcome says what a check did.
type Outcome string

// Check outcomes.
const (
	OutcomeNotDue     Outcome = "not_due"
	OutcomeEmpty      Outcome = "empty"
	OutcomeBackedUp   Outcome = "backed_up"
	OutcomeBackupFail Outcome = "failed"
)

// Result describes one check.
type Result struct {
	Outcome  Outcome   `json:"outcome"`
	Filename string    `json:"filename,omitempty"`
	Pruned   int       `json:"pruned"`
	Last     time.Time `json:"last"`
	Next     time.Time `json:"next"`
}

// LastBackup returns the last automatic backup instant and whether one has
// been recorded. An unreadable value is treated as never.
func (s *Scheduler) LastBackup(ctx context.Context) (time.Time, bool, error) {
	data, ok, err := s.state.Get(ctx, StateKey)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read last backup: %w", err)
	}
	if !ok {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(time.RFC3339Nano, string(data))
	if err != nil {
		s.logger.Warn("ignoring unreadable last backup instant", "value", string(data), "error", err)
		return time.Time{}, false, nil
	}
	return t, true, nil
}

func (s *Scheduler) setLastBackup(ctx context.Context, t time.Time) error {
	return s.state.Set(ctx, StateKey, []byte(t.UTC().Format(time.RFC3339Nano)))
}

// Due reports whether an automatic backup is due at now.
func (s *Scheduler) Due(ctx context.Context) (bool, error) {
	last, ok, err := s.LastBackup(ctx)
	if err != nil {
		return false, err
	}
	return !ok || s.now().Sub(last) > s.interval, nil
}

// Check runs one wake-up. A failed snapshot is logged and reported, leaves
// the last backup instant unchanged so the next wake retries, and is
// returned as an error. A failed prune is only logged.
func (s *Scheduler) Check(ctx context.Context) (Result, error) {
	now := s.now()
	last, ok, err := s.LastBackup(ctx)
	if err != nil {
		return Result{}, err
	}

	res := Result{Last: last}
	if ok && now.Sub(last) <= s.interval {
		res.Outcome = OutcomeNotDue
		res.Next = last.Add(s.interval)
		s.logger.Debug("automatic backup not due", "last", last, "next", res.Next)
		return res, nil
	}

	coll, err := s.logs.Load(ctx)
	if err != nil && !errors.Is(err, types.ErrCorruptData) {
		return res, err
	}
	if len(coll) == 0 {
		res.Outcome = OutcomeEmpty
		s.logger.Debug("automatic backup skipped, journal is empty")
		return res, nil
	}

	rec, err := s.backups.Snapshot(ctx, "", types.BackupOriginAuto)
	if err != nil {
		res.Outcome = OutcomeBackupFail
		s.logger.Error("automatic backup failed", "error", err)
		s.notify.Notify(types.NoticeError, "automatic backup failed: "+types.UserMessage(err))
		return res, fmt.Errorf("automatic backup: %w", err)
	}

	if err := s.setLastBackup(ctx, now); err != nil {
		s.logger.Error("recording last backup failed", "error", err)
		return res, fmt.Errorf("record last backup: %w", err)
	}
	res.Outcome = OutcomeBackedUp
	res.Filename = rec.Filename
	res.Last = now
	res.Next = now.Add(s.interval)
	s.notify.Notify(types.NoticeSuccess, "automatic backup saved as "+rec.Filename)

	pruned, err := s.backups.Prune(ctx, s.maxBackups)
	if err != nil {
		s.logger.Warn("pruning automatic backups failed", "error", err)
	}
	res.Pruned = pruned
	return res, nil
}

// Run checks once immediately and then every check period until ctx is
// done. Check errors are logged and do not stop the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval, "check_period", s.checkPeriod)

	ticker := time.NewTicker(s.checkPeriod)
	defer ticker.Stop()

	for {
		if _, err := s.Check(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("scheduled check failed", "error", err)
		}
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
