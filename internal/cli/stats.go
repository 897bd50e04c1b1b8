package cli

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/moji/internal/metrics"
	"github.com/mesh-intelligence/moji/pkg/types"
)

// topTags is how many tags the text summary lists.
const topTags = 5

func newStatsCmd(a *app) *cobra.Command {
	var prometheus bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize the journal and its backups",
		Long: `Stats counts entries by mood and tag, reports storage use, and counts
backups by origin. With --prometheus the numbers are printed as gauges in
Prometheus text format. Activity counters are served by
"moji schedule run --metrics-addr".`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := a.open()
			if err != nil {
				return err
			}
			coll, err := j.Logs.Load(cmd.Context())
			if err != nil && !errors.Is(err, types.ErrCorruptData) {
				return err
			}
			usage, err := j.Logs.Usage(cmd.Context())
			if err != nil {
				return err
			}
			infos, err := j.Backups.List(cmd.Context())
			if err != nil {
				return err
			}

			snap := metrics.Snapshot{
				Entries:       len(coll),
				UsedBytes:     usage.Used,
				LimitBytes:    usage.Limit,
				CapacityBytes: usage.Capacity,
				Backups:       map[string]int{},
				Moods:         map[string]int{},
				Tags:          map[string]int{},
			}
			for _, info := range infos {
				snap.Backups[string(info.Origin)]++
			}
			for _, e := range coll {
				snap.Moods[string(e.Mood)]++
				for _, tag := range e.Tags {
					snap.Tags[tag]++
				}
			}

			switch {
			case prometheus:
				metrics.WriteSnapshot(a.stdout, snap)
				return nil
			case a.flags.jsonMode:
				return a.printJSON(snap)
			}

			fmt.Fprintf(a.stdout, "Entries: %d (%s of %s)\n", snap.Entries, humanBytes(snap.UsedBytes), humanBytes(snap.LimitBytes))
			fmt.Fprintf(a.stdout, "Backups: %d automatic, %d manual\n",
				snap.Backups[string(types.BackupOriginAuto)], snap.Backups[string(types.BackupOriginManual)])
			fmt.Fprintln(a.stdout, "Moods:")
			for _, m := range types.Moods {
				fmt.Fprintf(a.stdout, "  %-6s %d\n", m, snap.Moods[string(m)])
			}
			if tags := rankTags(snap.Tags, topTags); len(tags) > 0 {
				fmt.Fprintln(a.stdout, "Top tags:")
				for _, tag := range tags {
					fmt.Fprintf(a.stdout, "  #%s %d\n", tag, snap.Tags[tag])
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&prometheus, "prometheus", false, "print in Prometheus text format")
	return cmd
}

// rankTags returns up to n tags by descending count, ties by name.
func rankTags(counts map[string]int, n int) []string {
	tags := make([]string, 0, len(counts))
	for tag := range counts {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool {
		if counts[tags[i]] != counts[tags[j]] {
			return counts[tags[i]] > counts[tags[j]]
		}
		return tags[i] < tags[j]
	})
	if len(tags) > n {
		tags = tags[:n]
	}
	return tags
}
