package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// configFile is the structure init writes to config.yaml when a data
// directory is given explicitly.
type configFile struct {
	DataDir       string       `yaml:"data_dir,omitempty"`
	CapacityBytes int64        `yaml:"capacity_bytes"`
	Headroom      float64      `yaml:"headroom"`
	Backup        backupConfig `yaml:"backup"`
	LogLevel      string       `yaml:"log_level"`
}

type backupConfig struct {
	Interval    string `yaml:"interval"`
	CheckPeriod string `yaml:"check_period"`
	MaxAuto     int    `yaml:"max_auto"`
}

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize moji storage",
		Long: "Create the configuration and data directories, record the data directory\n" +
			"in config.yaml, and create the primary store and the backup database.",
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(a)
		},
	}
}

func runInit(a *app) error {
	if a.flags.dataDir != "" {
		if err := writeConfig(filepath.Join(a.configDir, configFileExt), a.configFile()); err != nil {
			return systemError{fmt.Errorf("write config: %w", err)}
		}
	}

	j, err := a.open()
	if err != nil {
		return err
	}

	if a.flags.jsonMode {
		return a.printJSON(map[string]string{
			"config_dir": a.configDir,
			"data_dir":   j.Config.DataDir,
			"backups":    j.BackupPath(),
		})
	}
	fmt.Fprintf(a.stdout, "moji initialized\nconfig: %s\ndata:   %s\n", a.configDir, j.Config.DataDir)
	return nil
}

// configFile returns the current configuration in config.yaml form.
func (a *app) configFile() configFile {
	return configFile{
		DataDir:       a.cfg.DataDir,
		CapacityBytes: a.cfg.CapacityBytes,
		Headroom:      a.cfg.Headroom,
		Backup: backupConfig{
			Interval:    a.cfg.BackupInterval.String(),
			CheckPeriod: a.cfg.CheckPeriod.String(),
			MaxAuto:     a.cfg.MaxAutoBackups,
		},
		LogLevel: a.cfg.LogLevel,
	}
}

// writeConfig replaces config.yaml with cfg.
func writeConfig(path string, cfg configFile) error {
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	header := []byte("# moji configuration, written by moji init\n")
	return os.WriteFile(path, append(header, data...), 0o644)
}
