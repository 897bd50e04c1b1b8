package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/moji/internal/images"
	"github.com/mesh-intelligence/moji/internal/search"
	"github.com/mesh-intelligence/moji/pkg/types"
)

// previewLen is how many characters of text a list row shows.
const previewLen = 60

func newAddCmd(a *app) *cobra.Command {
	var (
		imagePaths []string
		mood       string
		richPath   string
	)
	cmd := &cobra.Command{
		Use:   "add [text]",
		Short: "Add a journal entry",
		Long: `Add appends a new entry to the journal. Text comes from the arguments,
or from stdin when no arguments are given and stdin is not a terminal.
Hashtags in the text become the entry's tags.

Example:
  moji add "Long walk by the river #outdoors" --mood great
  moji add --image photo.jpg "Sunset"
  echo "Quiet day" | moji add`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if text == "" && !a.stdinIsTerminal() {
				data, err := io.ReadAll(a.stdin)
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				text = string(data)
			}
			text = strings.TrimSpace(text)

			m, err := types.ParseMood(mood)
			if err != nil {
				return usageError{err}
			}

			var rich json.RawMessage
			if richPath != "" {
				data, err := a.readInput(richPath)
				if err != nil {
					return err
				}
				if !json.Valid(data) {
					return usageError{fmt.Errorf("rich content in %s is not JSON", richPath)}
				}
				rich = data
			}

			if text == "" && len(imagePaths) == 0 {
				return usageError{errors.New("entry is empty: give text or --image")}
			}

			required := int64(len(text) + len(rich))
			for _, p := range imagePaths {
				n, err := images.EstimateFile(p)
				if err != nil {
					return usageError{err}
				}
				required += n
			}

			j, err := a.open()
			if err != nil {
				return err
			}
			// Refuse early, before large images are read and encoded.
			ok, err := j.Logs.HasRoomFor(cmd.Context(), required)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: entry needs about %s", types.ErrInsufficientStorage, humanBytes(required))
			}

			encoded := make([]string, 0, len(imagePaths))
			for _, p := range imagePaths {
				img, err := images.EncodeFile(p)
				if err != nil {
					return usageError{err}
				}
				encoded = append(encoded, img)
			}

			entry, err := j.Logs.Append(cmd.Context(), types.NewEntry(text, rich, encoded, m, time.Now()))
			if err != nil {
				return err
			}

			if a.flags.jsonMode {
				return a.printJSON(entry)
			}
			fmt.Fprintf(a.stdout, "added %s (%s)\n", entry.ID, entry.DisplayTime)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&imagePaths, "image", nil, "attach an image file (repeatable)")
	cmd.Flags().StringVar(&mood, "mood", string(types.MoodNeutral), "mood: great, good, meh, bad, awful")
	cmd.Flags().StringVar(&richPath, "rich", "", "rich content JSON file, or - for stdin")
	return cmd
}

func newListCmd(a *app) *cobra.Command {
	var (
		text  string
		date  string
		tag   string
		mood  string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List journal entries, newest first",
		Long: `List shows the journal newest first.

Use --search to match any part of the text or display time, ignoring case,
such as "walk", "#work" or 2024/03, and --date to keep one UTC calendar day.

Example:
  moji list
  moji list --search "river wa"
  moji list --date 2024-03-09 --json`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := search.Query{Text: text, Date: date, Tag: tag}
			if mood != "" {
				m, err := types.ParseMood(mood)
				if err != nil {
					return usageError{err}
				}
				q.Mood = m
			}

			j, err := a.open()
			if err != nil {
				return err
			}
			coll, err := j.Logs.Load(cmd.Context())
			if err != nil && !errors.Is(err, types.ErrCorruptData) {
				return err
			}
			coll, err = search.Filter(cmd.Context(), coll, q)
			if err != nil {
				return usageError{err}
			}
			if limit > 0 && len(coll) > limit {
				coll = coll[:limit]
			}

			if a.flags.jsonMode {
				return a.printJSON(coll)
			}
			if len(coll) == 0 {
				fmt.Fprintln(a.stdout, "No entries found.")
				return nil
			}
			w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTIME\tMOOD\tTEXT")
			for _, e := range coll {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.ID, e.DisplayTime, e.Mood, preview(e))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&text, "search", "", "match part of the text or display time")
	cmd.Flags().StringVar(&date, "date", "", "keep entries of one UTC day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&tag, "tag", "", "keep entries with this tag")
	cmd.Flags().StringVar(&mood, "mood", "", "keep entries with this mood")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of results (0 = no limit)")
	return cmd
}

// preview returns the first line of an entry's text, shortened for a table
// cell.
func preview(e types.Entry) string {
	text, _, _ := strings.Cut(e.TextContent, "\n")
	r := []rune(text)
	if len(r) > previewLen {
		text = string(r[:previewLen-1]) + "…"
	}
	if n := len(e.Images); n > 0 {
		text += fmt.Sprintf(" [%d image(s)]", n)
	}
	return text
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one journal entry",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := a.open()
			if err != nil {
				return err
			}
			e, err := j.Logs.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if a.flags.jsonMode {
				return a.printJSON(e)
			}
			fmt.Fprintf(a.stdout, "ID:     %s\n", e.ID)
			fmt.Fprintf(a.stdout, "Time:   %s\n", e.DisplayTime)
			fmt.Fprintf(a.stdout, "Mood:   %s\n", e.Mood)
			if len(e.Tags) > 0 {
				fmt.Fprintf(a.stdout, "Tags:   %s\n", strings.Join(e.Tags, ", "))
			}
			if len(e.Images) > 0 {
				fmt.Fprintf(a.stdout, "Images: %d\n", len(e.Images))
			}
			fmt.Fprintf(a.stdout, "\n%s\n", e.TextContent)
			return nil
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a journal entry",
		Long:  "Delete removes the entry with the given id. Deleting a missing id succeeds.",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := a.open()
			if err != nil {
				return err
			}
			if err := j.Logs.Remove(cmd.Context(), args[0]); err != nil {
				return err
			}
			if !a.flags.jsonMode {
				fmt.Fprintf(a.stdout, "deleted %s\n", args[0])
			}
			return nil
		},
	}
}

func newClearCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every journal entry",
		Long:  "Clear empties the journal. Backups are kept. Asks for confirmation unless --yes is given.",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := a.confirmed(yes, "Delete every journal entry?")
			if err != nil || !ok {
				return err
			}
			j, err := a.open()
			if err != nil {
				return err
			}
			if err := j.Logs.Clear(cmd.Context()); err != nil {
				return err
			}
			if !a.flags.jsonMode {
				fmt.Fprintln(a.stdout, "journal cleared")
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func newUsageCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Show how much of the storage budget the journal uses",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := a.open()
			if err != nil {
				return err
			}
			u, err := j.Logs.Usage(cmd.Context())
			if err != nil {
				return err
			}
			if a.flags.jsonMode {
				return a.printJSON(u)
			}
			fmt.Fprintf(a.stdout, "Entries:   %d\n", u.Entries)
			fmt.Fprintf(a.stdout, "Used:      %s of %s (%.1f%%)\n", humanBytes(u.Used), humanBytes(u.Capacity), u.Percent)
			fmt.Fprintf(a.stdout, "Limit:     %s\n", humanBytes(u.Limit))
			fmt.Fprintf(a.stdout, "Available: %s\n", humanBytes(u.Available))
			return nil
		},
	}
}
