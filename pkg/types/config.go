package types

import (
	"errors"
	"time"
)

// Defaults for Config fields.
const (
	DefaultCapacityBytes  int64 = 5 * 1024 * 1024
	DefaultHeadroom             = 0.10
	DefaultBackupInterval       = 7 * 24 * time.Hour
	DefaultCheckPeriod          = time.Hour
	DefaultMaxAutoBackups       = 5
	DefaultLogLevel             = "warn"
)

// Config holds the storage and backup parameters shared by the components.
type Config struct {
	DataDir        string        `json:"data_dir" yaml:"data_dir"`
	CapacityBytes  int64         `json:"capacity_bytes" yaml:"capacity_bytes"`
	Headroom       float64       `json:"headroom" yaml:"headroom"`
	BackupInterval time.Duration `json:"backup_interval" yaml:"backup_interval"`
	CheckPeriod    time.Duration `json:"check_period" yaml:"check_period"`
	MaxAutoBackups int           `json:"max_auto_backups" yaml:"max_auto_backups"`
	LogLevel       string        `json:"log_level" yaml:"log_level"`
}

// DefaultConfig returns a Config with every field at its default. DataDir is
// left empty for the caller to resolve.
func DefaultConfig() Config {
	return Config{
		CapacityBytes:  DefaultCapacityBytes,
		Headroom:       DefaultHeadroom,
		BackupInterval: DefaultBackupInterval,
		CheckPeriod:    DefaultCheckPeriod,
		MaxAutoBackups: DefaultMaxAutoBackups,
		LogLevel:       DefaultLogLevel,
	}
}

// Config validation errors.
var (
	ErrCapacityInvalid    = errors.New("capacity must be positive")
	ErrHeadroomInvalid    = errors.New("headroom must be at least 0 and below 1")
	ErrIntervalInvalid    = errors.New("backup interval must be positive")
	ErrCheckPeriodInvalid = errors.New("check period must be positive")
	ErrMaxBackupsInvalid  = errors.New("max auto backups must not be negative")
)

// Validate checks that the Config is well-formed. It returns a sentinel error
// from this package on failure.
func (c Config) Validate() error {
	if c.CapacityBytes <= 0 {
		return ErrCapacityInvalid
	}
	if c.Headroom < 0 || c.Headroom >= 1 {
		return ErrHeadroomInvalid
	}
	if c.BackupInterval <= 0 {
		return ErrIntervalInvalid
	}
	if c.CheckPeriod <= 0 {
		return ErrCheckPeriodInvalid
	}
	if c.MaxAutoBackups < 0 {
		return ErrMaxBackupsInvalid
	}
	return nil
}
