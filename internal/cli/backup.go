package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/moji/internal/sqlite"
	"github.com/mesh-intelligence/moji/pkg/types"
)

func newBackupCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Create, list, restore, and delete backups",
	}
	cmd.AddCommand(newBackupCreateCmd(a))
	cmd.AddCommand(newBackupListCmd(a))
	cmd.AddCommand(newBackupShowCmd(a))
	cmd.AddCommand(newBackupRestoreCmd(a))
	cmd.AddCommand(newBackupDeleteCmd(a))
	cmd.AddCommand(newBackupPruneCmd(a))
	return cmd
}

func newBackupCreateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "create [name]",
		Short: "Back up the journal now",
		Long: `Create stores a snapshot of the journal in the backup database.
Without a name one is generated from the current time. Backups made
here are never removed by pruning.`,
		Args: maxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var name string
			if len(args) == 1 {
				name = args[0]
			}
			j, err := a.open()
			if err != nil {
				return err
			}
			rec, err := j.Backups.Snapshot(cmd.Context(), name, types.BackupOriginManual)
			if err != nil {
				return err
			}
			if a.flags.jsonMode {
				return a.printJSON(rec.BackupInfo)
			}
			fmt.Fprintf(a.stdout, "created %s (%d entries, %s)\n", rec.Filename, rec.EntryCount, humanBytes(rec.SizeBytes))
			return nil
		},
	}
}

func newBackupListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List backups, newest first",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := a.open()
			if err != nil {
				return err
			}
			infos, err := j.Backups.List(cmd.Context())
			if err != nil {
				return err
			}
			if a.flags.jsonMode {
				return a.printJSON(infos)
			}
			if len(infos) == 0 {
				fmt.Fprintln(a.stdout, "No backups found.")
				return nil
			}
			w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "FILENAME\tCREATED\tORIGIN\tENTRIES\tSIZE")
			for _, info := range infos {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
					info.Filename, types.FormatDisplayTime(info.Timestamp), info.Origin, info.EntryCount, humanBytes(info.SizeBytes))
			}
			return w.Flush()
		},
	}
}

func newBackupShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <filename>",
		Short: "Print a backup's payload as JSON",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := a.open()
			if err != nil {
				return err
			}
			rec, err := j.Backups.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, string(rec.Data))
			return nil
		},
	}
}

func newBackupRestoreCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "restore <filename>",
		Short: "Replace the journal with a backup",
		Long:  "Restore replaces every journal entry with the backup's entries. Asks for confirmation unless --yes is given.",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := a.open()
			if err != nil {
				return err
			}
			// Check the backup exists before asking.
			if _, err := j.Backups.Get(cmd.Context(), args[0]); err != nil {
				return err
			}
			ok, err := a.confirmed(yes, fmt.Sprintf("Replace the journal with %s?", args[0]))
			if err != nil || !ok {
				return err
			}

			var event sqlite.RestoreEvent
			unsubscribe := j.Backups.OnRestored(func(ev sqlite.RestoreEvent) { event = ev })
			defer unsubscribe()

			if _, err := j.Backups.Restore(cmd.Context(), args[0]); err != nil {
				return err
			}
			if a.flags.jsonMode {
				return a.printJSON(event)
			}
			fmt.Fprintf(a.stdout, "restored %d entries from %s\n", event.Entries, event.Filename)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func newBackupDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <filename>",
		Short: "Delete a backup",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := a.open()
			if err != nil {
				return err
			}
			if err := j.Backups.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			if !a.flags.jsonMode {
				fmt.Fprintf(a.stdout, "deleted %s\n", args[0])
			}
			return nil
		},
	}
}

func newBackupPruneCmd(a *app) *cobra.Command {
	var max int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete the oldest automatic backups beyond the retention limit",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("max") {
				max = a.cfg.MaxAutoBackups
			}
			if max < 0 {
				return usageError{types.ErrMaxBackupsInvalid}
			}
			j, err := a.open()
			if err != nil {
				return err
			}
			n, err := j.Backups.Prune(cmd.Context(), max)
			if err != nil {
				return err
			}
			if a.flags.jsonMode {
				return a.printJSON(map[string]int{"pruned": n, "kept": max})
			}
			fmt.Fprintf(a.stdout, "pruned %d automatic backup(s)\n", n)
			return nil
		},
	}
	cmd.Flags().IntVar(&max, "max", types.DefaultMaxAutoBackups, "automatic backups to keep (default from config)")
	return cmd
}
