package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/moji/internal/transfer"
	"github.com/mesh-intelligence/moji/pkg/types"
)

func newExportCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the journal as JSON",
		Long: `Export writes every entry as an indented JSON array. With --out pointing
at a directory the file is named moji-export_YYYY-MM-DD.json; use - for
stdout.

Example:
  moji export --out ~/Documents
  moji export --out - > journal.json`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := a.open()
			if err != nil {
				return err
			}
			if out == "-" {
				_, err := j.Transfer.ExportTo(cmd.Context(), a.stdout)
				return err
			}

			path, err := exportPath(out, time.Now())
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			n, err := j.Transfer.ExportTo(cmd.Context(), &buf)
			if err != nil {
				return err
			}
			if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
				return systemError{fmt.Errorf("write export: %w", err)}
			}

			if a.flags.jsonMode {
				return a.printJSON(map[string]any{"path": path, "entries": n})
			}
			fmt.Fprintf(a.stdout, "exported %d entries to %s\n", n, path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", ".", "output file or directory, - for stdout")
	return cmd
}

// exportPath resolves --out: an existing directory gets the dated export
// name, anything else is used as the file path.
func exportPath(out string, now time.Time) (string, error) {
	if out == "" {
		out = "."
	}
	info, err := os.Stat(out)
	if err == nil && info.IsDir() {
		return filepath.Join(out, types.ExportName(now)), nil
	}
	if err != nil && !os.IsNotExist(err) {
		return "", systemError{err}
	}
	return out, nil
}

func newImportCmd(a *app) *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import entries from a JSON export",
		Long: `Import reads an export file (or - for stdin). In merge mode entries with
ids already in the journal are skipped; in replace mode the file becomes
the whole journal. Nothing changes if the file is invalid or too large.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := transfer.ParseMode(mode)
			if err != nil {
				return usageError{err}
			}
			data, err := a.readInput(args[0])
			if err != nil {
				return err
			}
			j, err := a.open()
			if err != nil {
				return err
			}
			n, err := j.Transfer.Import(cmd.Context(), bytes.NewReader(data), m)
			if err != nil {
				return err
			}
			if a.flags.jsonMode {
				return a.printJSON(map[string]any{"mode": m, "added": n})
			}
			fmt.Fprintf(a.stdout, "imported %d entries (%s)\n", n, m)
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", string(transfer.ModeMerge), "merge or replace")
	return cmd
}
