package types

import "time"

// BackupOrigin records whether a backup was taken by the scheduler or on
// request. Only automatic backups are subject to pruning.
type BackupOrigin string

// Backup origins.
const (
	BackupOriginAuto   BackupOrigin = "auto"
	BackupOriginManual BackupOrigin = "manual"
)

// Valid reports whether o is a known origin.
func (o BackupOrigin) Valid() bool {
	return o == BackupOriginAuto || o == BackupOriginManual
}

// BackupInfo is the metadata of a backup, returned by listings without the
// payload.
type BackupInfo struct {
	Filename   string       `json:"filename"`
	Timestamp  time.Time    `json:"timestamp"`
	Origin     BackupOrigin `json:"origin"`
	EntryCount int          `json:"entryCount"`
	SizeBytes  int64        `json:"sizeBytes"`
}

// BackupRecord is a full snapshot: metadata plus the serialized collection.
type BackupRecord struct {
	BackupInfo
	Data []byte `json:"data"`
}

// Backup filename prefixes.
const (
	AutoBackupPrefix   = "moji-auto-backup_"
	ManualBackupPrefix = "moji-backup_"
	ExportPrefix       = "moji-export_"
)

// AutoBackupName returns the name of the automatic backup for the day of t.
// One automatic backup exists per local calendar day; a second snapshot on
// the same day replaces the first.
func AutoBackupName(t time.Time) string {
	return AutoBackupPrefix + t.Local().Format(DateLayout) + ".json"
}

// ManualBackupName returns a second-resolution name for an on-demand backup.
func ManualBackupName(t time.Time) string {
	return ManualBackupPrefix + t.Local().Format("2006-01-02T150405") + ".json"
}

// ExportName returns the suggested file name for an export written at t.
func ExportName(t time.Time) string {
	return ExportPrefix + t.Local().Format(DateLayout) + ".json"
}
