package cli

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// CacheStats describes one persisted course cache.
type CacheStats struct {
	Course   string    `json:"course"`
	Records  int       `json:"records"`
	Unsynced int       `json:"unsynced"`
	SavedAt  time.Time `json:"savedAt"`
}

// StatsOutput is the JSON form of the stats command.
type StatsOutput struct {
	Collections map[string]int `json:"collections"`
	Caches      []CacheStats   `json:"caches"`
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show document counts and course caches",
		Long: `Show the number of documents in each collection and the persisted
optimistic cache of each course, with its unsynced records.

Examples:
  ballotdesk stats
  ballotdesk stats --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(rootOpts, cmd)
		},
	}
	return cmd
}

func runStats(opts *RootOptions, cmd *cobra.Command) error {
	return withApp(cmd, opts, func(ctx context.Context, a *app, out *OutputFormatter) error {
		counts, err := a.store.Counts(ctx)
		if err != nil {
			return out.Fail("count documents failed", err)
		}

		sessions, err := a.openSessions()
		if err != nil {
			return err
		}
		result := StatsOutput{Collections: counts, Caches: []CacheStats{}}
		for _, c := range sessions.Courses() {
			cached, ok, err := sessions.Load(c)
			if err != nil {
				return out.Fail("read course cache failed", err)
			}
			if !ok {
				continue
			}
			result.Caches = append(result.Caches, CacheStats{
				Course:   cached.Course,
				Records:  len(cached.Records),
				Unsynced: len(cached.Unsynced),
				SavedAt:  cached.SavedAt,
			})
		}

		if out.JSON() {
			return out.Success(result)
		}

		tw := tabwriter.NewWriter(out.Writer, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "COLLECTION\tDOCUMENTS")
		for _, name := range slices.Sorted(maps.Keys(counts)) {
			fmt.Fprintf(tw, "%s\t%s\n", name, humanize.Comma(int64(counts[name])))
		}
		if err := tw.Flush(); err != nil {
			return err
		}

		if len(result.Caches) == 0 {
			fmt.Fprintln(out.Writer, "\nno course caches")
			return nil
		}
		fmt.Fprintln(out.Writer)
		tw = tabwriter.NewWriter(out.Writer, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "COURSE\tRECORDS\tUNSYNCED\tSAVED")
		for _, c := range result.Caches {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", c.Course, c.Records, c.Unsynced, humanize.Time(c.SavedAt))
		}
		return tw.Flush()
	})
}
