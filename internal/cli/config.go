package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/mesh-intelligence/moji/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"

	envPrefix = "moji"
)

// Config keys.
const (
	cfgKeyDataDir        = "data_dir"
	cfgKeyCapacity       = "capacity_bytes"
	cfgKeyHeadroom       = "headroom"
	cfgKeyBackupInterval = "backup.interval"
	cfgKeyCheckPeriod    = "backup.check_period"
	cfgKeyMaxAuto        = "backup.max_auto"
	cfgKeyLogLevel       = "log_level"
)

// defaultConfigYAML is the content written to config.yaml on first run.
const defaultConfigYAML = `# moji configuration
# Every key can be overridden with a MOJI_ environment variable, for example
# MOJI_CAPACITY_BYTES or MOJI_BACKUP_INTERVAL.

# Data directory (optional; overridable by --data-dir or MOJI_DATA_DIR)
# data_dir:

# Primary store budget in bytes and the share of it kept free.
capacity_bytes: 5242880
headroom: 0.10

backup:
  interval: 168h
  check_period: 1h
  max_auto: 5

log_level: warn
`

// loadEnvFiles loads .env and .env.local from the working directory.
// Variables already set in the environment win.
func loadEnvFiles() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")
}

// loadConfig reads config.yaml from configDir using Viper, creating the
// directory and a default file on first run. MOJI_* environment variables
// override file values.
func loadConfig(configDir string) (*viper.Viper, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure config dir: %w", err)
	}
	if err := ensureDefaultConfigFile(configDir); err != nil {
		return nil, fmt.Errorf("ensure default config: %w", err)
	}

	v := viper.New()
	v.SetDefault(cfgKeyCapacity, types.DefaultCapacityBytes)
	v.SetDefault(cfgKeyHeadroom, types.DefaultHeadroom)
	v.SetDefault(cfgKeyBackupInterval, types.DefaultBackupInterval)
	v.SetDefault(cfgKeyCheckPeriod, types.DefaultCheckPeriod)
	v.SetDefault(cfgKeyMaxAuto, types.DefaultMaxAutoBackups)
	v.SetDefault(cfgKeyLogLevel, types.DefaultLogLevel)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

// ensureDefaultConfigFile creates a default config.yaml if the file does not
// exist in configDir.
func ensureDefaultConfigFile(configDir string) error {
	path := filepath.Join(configDir, configFileExt)

	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}

// decodeConfig builds a validated types.Config from v. DataDir is left to
// the caller.
func decodeConfig(v *viper.Viper) (types.Config, error) {
	cfg := types.Config{
		CapacityBytes:  v.GetInt64(cfgKeyCapacity),
		Headroom:       v.GetFloat64(cfgKeyHeadroom),
		BackupInterval: v.GetDuration(cfgKeyBackupInterval),
		CheckPeriod:    v.GetDuration(cfgKeyCheckPeriod),
		MaxAutoBackups: v.GetInt(cfgKeyMaxAuto),
		LogLevel:       v.GetString(cfgKeyLogLevel),
	}
	if err := cfg.Validate(); err != nil {
		return types.Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
