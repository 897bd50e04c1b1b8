// Package cli implements the moji command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/moji/internal/logging"
	"github.com/mesh-intelligence/moji/internal/paths"
	"github.com/mesh-intelligence/moji/pkg/moji"
	"github.com/mesh-intelligence/moji/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir string
	dataDir   string
	jsonMode  bool
	logLevel  string
}

// app is the state shared by the commands of one invocation.
type app struct {
	flags rootFlags

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	configDir string
	cfg       types.Config
	logger    *slog.Logger
	journal   *moji.Journal

	// verboseNotices prints info and success notices, not only problems.
	verboseNotices bool

	// confirm asks a yes/no question; replaced in tests.
	confirm func(prompt string) (bool, error)
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *app {
	a := &app{
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		logger: logging.Discard(),
	}
	a.confirm = a.confirmTerminal
	return a
}

// NewRootCmd creates the top-level "moji" command with global flags and all
// subcommands registered, wired to the process's standard streams.
func NewRootCmd() *cobra.Command {
	return newRootCmd(newApp(os.Stdin, os.Stdout, os.Stderr))
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "moji",
		Short: "A private, local journal with automatic backups",
		Long: "moji keeps journal entries in a capacity-limited local store,\n" +
			"takes periodic backups, and moves entries in and out as JSON.",
		Version: moji.Version,
		// Do not print usage on errors returned by subcommands.
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch cmd.Name() {
			case "version", "help":
				return nil
			}
			return a.setup()
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetIn(a.stdin)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	root.PersistentFlags().StringVar(&a.flags.configDir, "config-dir", "", "configuration directory (default: platform config dir)")
	root.PersistentFlags().StringVar(&a.flags.dataDir, "data-dir", "", "data directory (default: platform data dir)")
	root.PersistentFlags().BoolVar(&a.flags.jsonMode, "json", false, "output in JSON format")
	root.PersistentFlags().StringVar(&a.flags.logLevel, "log-level", "", "log level: debug, info, warn, error (default from config)")

	root.AddCommand(newVersionCmd(a))
	root.AddCommand(newInitCmd(a))
	root.AddCommand(newAddCmd(a))
	root.AddCommand(newListCmd(a))
	root.AddCommand(newShowCmd(a))
	root.AddCommand(newDeleteCmd(a))
	root.AddCommand(newClearCmd(a))
	root.AddCommand(newUsageCmd(a))
	root.AddCommand(newBackupCmd(a))
	root.AddCommand(newExportCmd(a))
	root.AddCommand(newImportCmd(a))
	root.AddCommand(newScheduleCmd(a))
	root.AddCommand(newStatsCmd(a))

	return root
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := Run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// Run executes one command line and returns its exit code.
func Run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	a := newApp(stdin, stdout, stderr)
	root := newRootCmd(a)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if cerr := a.close(); cerr != nil && err == nil {
		err = systemError{cerr}
	}
	if err == nil {
		return exitSuccess
	}

	a.logger.Debug("command failed", "error", err)
	fmt.Fprintf(stderr, "Error: %s\n", err)
	if hint := types.UserMessage(err); !strings.Contains(err.Error(), hint) {
		fmt.Fprintf(stderr, "  %s\n", hint)
	}
	return exitCode(err)
}

// setup resolves directories, loads configuration, and builds the logger.
func (a *app) setup() error {
	loadEnvFiles()

	configDir, err := paths.ResolveConfigDir(a.flags.configDir)
	if err != nil {
		return systemError{fmt.Errorf("resolve config dir: %w", err)}
	}
	v, err := loadConfig(configDir)
	if err != nil {
		return systemError{err}
	}
	cfg, err := decodeConfig(v)
	if err != nil {
		return err
	}
	cfg.DataDir, err = paths.ResolveDataDir(a.flags.dataDir, v.GetString(cfgKeyDataDir))
	if err != nil {
		return systemError{fmt.Errorf("resolve data dir: %w", err)}
	}
	if a.flags.logLevel != "" {
		cfg.LogLevel = a.flags.logLevel
	}

	logger, err := logging.New(a.stderr, cfg.LogLevel)
	if err != nil {
		return usageError{err}
	}

	a.configDir = configDir
	a.cfg = cfg
	a.logger = logger
	a.logger.Debug("configuration loaded", "config_dir", configDir, "data_dir", cfg.DataDir)
	return nil
}

// open returns the journal, opening it on first use.
func (a *app) open() (*moji.Journal, error) {
	if a.journal != nil {
		return a.journal, nil
	}
	j, err := moji.Open(a.cfg, moji.Options{
		Logger:   a.logger,
		Notifier: types.NotifierFunc(a.notify),
	})
	if err != nil {
		return nil, systemError{err}
	}
	a.journal = j
	return j, nil
}

func (a *app) close() error {
	if a.journal == nil {
		return nil
	}
	err := a.journal.Close()
	a.journal = nil
	return err
}

// notify prints notices from the storage components to stderr. Info and
// success notices are shown only for long-running commands.
func (a *app) notify(level types.NoticeLevel, message string) {
	if !a.verboseNotices && (level == types.NoticeInfo || level == types.NoticeSuccess) {
		return
	}
	fmt.Fprintf(a.stderr, "[%s] %s\n", level, message)
}

// usageError marks a bad invocation.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// systemError marks a failure of the environment rather than of the input.
type systemError struct{ err error }

func (e systemError) Error() string { return e.err.Error() }
func (e systemError) Unwrap() error { return e.err }

// exitCode maps an error to a process exit code.
func exitCode(err error) int {
	var usage usageError
	if errors.As(err, &usage) {
		return exitUserError
	}
	var sys systemError
	var pathErr *fs.PathError
	switch {
	case errors.As(err, &sys),
		errors.As(err, &pathErr),
		errors.Is(err, types.ErrQuotaExceeded),
		errors.Is(err, types.ErrCorruptData),
		errors.Is(err, types.ErrStoreDetached):
		return exitSysError
	}
	return exitUserError
}
