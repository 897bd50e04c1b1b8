package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// printJSON writes v as indented JSON to stdout.
func (a *app) printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	fmt.Fprintln(a.stdout, string(data))
	return nil
}

// stdinIsTerminal reports whether stdin is an interactive terminal.
func (a *app) stdinIsTerminal() bool {
	f, ok := a.stdin.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// errNeedsConfirmation is returned for destructive commands run without a
// terminal and without --yes.
var errNeedsConfirmation = errors.New("confirmation required: stdin is not a terminal, pass --yes")

// confirmTerminal asks prompt on stderr and reads a y/n answer from stdin.
func (a *app) confirmTerminal(prompt string) (bool, error) {
	if !a.stdinIsTerminal() {
		return false, usageError{errNeedsConfirmation}
	}
	fmt.Fprintf(a.stderr, "%s [y/N]: ", prompt)
	line, err := bufio.NewReader(a.stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// confirmed returns true when yes is set or the user agrees to prompt.
func (a *app) confirmed(yes bool, prompt string) (bool, error) {
	if yes {
		return true, nil
	}
	ok, err := a.confirm(prompt)
	if err != nil {
		return false, err
	}
	if !ok {
		fmt.Fprintln(a.stderr, "aborted")
	}
	return ok, nil
}

// readInput returns the content of path, or stdin when path is "-".
func (a *app) readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(a.stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, usageError{err}
	}
	return data, nil
}

// humanBytes formats n in KiB/MiB for display.
func humanBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.2f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}

// exactArgs is cobra.ExactArgs reported as a usage error.
func exactArgs(n int) cobra.PositionalArgs {
	return usageArgs(cobra.ExactArgs(n))
}

// maxArgs is cobra.MaximumNArgs reported as a usage error.
func maxArgs(n int) cobra.PositionalArgs {
	return usageArgs(cobra.MaximumNArgs(n))
}

func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}
