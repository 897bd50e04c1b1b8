package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/moji/internal/metrics"
	"github.com/mesh-intelligence/moji/internal/scheduler"
	"github.com/mesh-intelligence/moji/pkg/types"
)

func newScheduleCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the automatic backup schedule",
	}
	cmd.AddCommand(newScheduleCheckCmd(a))
	cmd.AddCommand(newScheduleRunCmd(a))
	cmd.AddCommand(newScheduleStatusCmd(a))
	return cmd
}

func newScheduleCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Take an automatic backup if one is due",
		Long: `Check backs up the journal when the last automatic backup is older than
the backup interval, then prunes old automatic backups. Suitable for cron.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := a.open()
			if err != nil {
				return err
			}
			res, err := j.Scheduler.Check(cmd.Context())
			if err != nil {
				return err
			}
			return a.printResult(res)
		},
	}
}

func newScheduleRunCmd(a *app) *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Check for due backups until interrupted",
		Long: `Run checks immediately and then once per check period until interrupted.
With --metrics-addr the storage and backup counters of this process are
served in Prometheus text format at /metrics.

Example:
  moji schedule run --metrics-addr 127.0.0.1:9464`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.verboseNotices = true
			j, err := a.open()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			served := make(chan error, 1)
			if metricsAddr != "" {
				ln, err := net.Listen("tcp", metricsAddr)
				if err != nil {
					return systemError{fmt.Errorf("metrics listener: %w", err)}
				}
				fmt.Fprintf(a.stderr, "serving metrics on http://%s%s\n", ln.Addr(), metrics.Path)
				go func() { served <- metrics.Serve(ctx, ln) }()
			} else {
				served <- nil
			}

			fmt.Fprintf(a.stderr, "checking every %s, backing up every %s\n", a.cfg.CheckPeriod, a.cfg.BackupInterval)
			err = j.Scheduler.Run(ctx)
			cancel()
			if serveErr := <-served; serveErr != nil {
				a.logger.Error("metrics server stopped", "error", serveErr)
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}

func newScheduleStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the last automatic backup and whether one is due",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := a.open()
			if err != nil {
				return err
			}
			last, ok, err := j.Scheduler.LastBackup(cmd.Context())
			if err != nil {
				return err
			}
			due, err := j.Scheduler.Due(cmd.Context())
			if err != nil {
				return err
			}

			status := struct {
				LastBackup *time.Time    `json:"lastBackup"`
				Due        bool          `json:"due"`
				Interval   time.Duration `json:"interval"`
				MaxAuto    int           `json:"maxAutoBackups"`
			}{Due: due, Interval: a.cfg.BackupInterval, MaxAuto: a.cfg.MaxAutoBackups}
			if ok {
				status.LastBackup = &last
			}
			if a.flags.jsonMode {
				return a.printJSON(status)
			}

			lastText := "never"
			if ok {
				lastText = types.FormatDisplayTime(last)
			}
			fmt.Fprintf(a.stdout, "Last automatic backup: %s\n", lastText)
			fmt.Fprintf(a.stdout, "Due:                   %t\n", due)
			fmt.Fprintf(a.stdout, "Interval:              %s\n", a.cfg.BackupInterval)
			fmt.Fprintf(a.stdout, "Kept automatic:        %d\n", a.cfg.MaxAutoBackups)
			return nil
		},
	}
}

func (a *app) printResult(res scheduler.Result) error {
	if a.flags.jsonMode {
		return a.printJSON(res)
	}
	switch res.Outcome {
	case scheduler.OutcomeBackedUp:
		fmt.Fprintf(a.stdout, "backed up to %s, pruned %d\n", res.Filename, res.Pruned)
	case scheduler.OutcomeEmpty:
		fmt.Fprintln(a.stdout, "journal is empty, nothing to back up")
	case scheduler.OutcomeNotDue:
		fmt.Fprintf(a.stdout, "not due; next backup after %s\n", types.FormatDisplayTime(res.Next))
	default:
		fmt.Fprintf(a.stdout, "%s\n", res.Outcome)
	}
	return nil
}
