package types

import "errors"

// Storage budget errors.
var (
	// ErrCapacityExceeded is returned when a collection's estimated size is
	// above the store capacity minus headroom. Nothing is written.
	ErrCapacityExceeded = errors.New("collection exceeds storage capacity")

	// ErrInsufficientStorage is returned by append when the entry would push
	// the collection past the safety margin. Nothing is written.
	ErrInsufficientStorage = errors.New("insufficient storage for entry")

	// ErrQuotaExceeded is the hard quota failure of the underlying key/value
	// store. The previously stored value is left untouched.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
)

// Data errors.
var (
	ErrCorruptData       = errors.New("stored collection is corrupt")
	ErrCorruptBackup     = errors.New("backup payload is corrupt")
	ErrInvalidFormat     = errors.New("invalid import format")
	ErrEmptyCollection   = errors.New("collection is empty")
	ErrUnsupportedSchema = errors.New("unsupported entry schema version")
	ErrNotFound          = errors.New("not found")
)

// Backup store lifecycle errors.
var (
	ErrStoreDetached   = errors.New("backup store is detached")
	ErrAlreadyAttached = errors.New("backup store is already attached")
)

// Argument errors.
var (
	ErrInvalidMode = errors.New("invalid import mode")
	ErrInvalidKey  = errors.New("invalid key")
	ErrInvalidName = errors.New("invalid backup name")
	ErrInvalidMood = errors.New("invalid mood")
)

// userMessages maps sentinel errors to short, actionable text for people.
// Order matters: the first match wins.
var userMessages = []struct {
	err error
	msg string
}{
	{ErrInsufficientStorage, "not enough space for this entry; delete old entries or export and clear the journal"},
	{ErrCapacityExceeded, "the journal is full; delete old entries or export and clear the journal"},
	{ErrQuotaExceeded, "storage quota reached; free space and try again"},
	{ErrCorruptData, "stored entries could not be read; restore a backup"},
	{ErrCorruptBackup, "the backup is damaged and cannot be restored"},
	{ErrInvalidFormat, "the file is not a valid journal export"},
	{ErrEmptyCollection, "there are no entries to export"},
	{ErrUnsupportedSchema, "the file was written by a newer version of moji"},
	{ErrNotFound, "not found"},
	{ErrInvalidMode, "import mode must be merge or replace"},
	{ErrInvalidName, "backup name must not be empty"},
	{ErrInvalidMood, "unknown mood"},
}

// UserMessage returns a short message suitable for display. Errors that are
// not part of the taxonomy are returned as their Error text.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	for _, m := range userMessages {
		if errors.Is(err, m.err) {
			return m.msg
		}
	}
	return err.Error()
}
