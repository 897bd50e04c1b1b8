// Package moji opens a journal: the capacity-limited primary log store, the
// SQLite backup store, the backup scheduler and the import/export bridge,
// all sharing one configuration.
package moji

// Version is the moji release version.
const Version = "0.1.0"

// ModulePath is the Go module path of moji.
const ModulePath = "github.com/mesh-intelligence/moji"
