package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/roach88/ballotdesk/internal/reconcile"
)

// CourseOptions holds flags for the course command.
type CourseOptions struct {
	*RootOptions
	RosterKey  string
	Level      string
	Revalidate bool
}

// CourseOutput is the JSON form of a course load.
type CourseOutput struct {
	View   reconcile.View    `json:"view"`
	Counts reconcile.Counts  `json:"counts"`
	Drifts []reconcile.Drift `json:"drifts,omitempty"`
}

// NewCourseCommand creates the course command.
func NewCourseCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CourseOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "course <name>",
		Short: "Load and reconcile a course",
		Long: `Load a course the way a tutor session does: flush unsynced marks, derive
statuses from the roster and the vote log, merge with the optimistic cache and
record the session.

The course name is matched loosely ("primero de bachillerato A" finds
"1ro Bach A"). When the store is unavailable the cached view is shown and
marked as degraded.

With --revalidate the command waits reconcile.delay and then compares the
cache with the store, printing any corrections.

Examples:
  ballotdesk course "1ro Bach A"
  ballotdesk course "8vo A" --revalidate --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCourse(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.RosterKey, "roster-key", "", "roster key of the session")
	cmd.Flags().StringVar(&opts.Level, "level", "", "level of the session")
	cmd.Flags().BoolVar(&opts.Revalidate, "revalidate", false, "run a revalidation pass after reconcile.delay")

	return cmd
}

func runCourse(opts *CourseOptions, name string, cmd *cobra.Command) error {
	return withApp(cmd, opts.RootOptions, func(ctx context.Context, a *app, out *OutputFormatter) error {
		eng, err := a.openEngine()
		if err != nil {
			return err
		}

		view, err := eng.LoadCourse(ctx, reconcile.SessionContext{
			RosterKey: opts.RosterKey,
			Course:    name,
			Level:     opts.Level,
		})
		if err != nil {
			return out.Fail("load course failed", err)
		}

		var drifts []reconcile.Drift
		if opts.Revalidate && !view.Degraded {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(a.cfg.Reconcile.Delay):
			}
			if drifts, err = eng.Revalidate(ctx, view.Course); err != nil {
				return out.Fail("revalidate failed", err)
			}
			if view, err = eng.View(view.Course); err != nil {
				return out.Fail("read view failed", err)
			}
		}

		if out.JSON() {
			return out.Success(CourseOutput{View: view, Counts: view.Counts(), Drifts: drifts})
		}
		printView(out.Writer, view, time.Now())
		for _, d := range drifts {
			fmt.Fprintf(out.Writer, "corrected %s: %s (%s)\n", d.StudentID, d.Store.Status, d.Kind)
		}
		return nil
	})
}

// printView writes a course view as a table. Vote times are relative to now.
func printView(w io.Writer, view reconcile.View, now time.Time) {
	fmt.Fprintf(w, "Course: %s", view.Course)
	if view.Requested != "" {
		fmt.Fprintf(w, " (requested %q)", view.Requested)
	}
	fmt.Fprintln(w)
	if view.Degraded && view.Failure != nil {
		fmt.Fprintf(w, "DEGRADED: %s\n", view.Failure.Error())
	}

	unsynced := make(map[string]bool, len(view.Unsynced))
	for _, id := range view.Unsynced {
		unsynced[id] = true
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STUDENT\tSTATUS\tVOTED\t")
	for _, rec := range view.Records {
		voted := "-"
		if rec.VotedAt != nil {
			voted = humanize.RelTime(*rec.VotedAt, now, "ago", "from now")
		}
		mark := ""
		if unsynced[rec.StudentID] {
			mark = "unsynced"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", rec.StudentID, rec.Status, voted, mark)
	}
	tw.Flush()

	c := view.Counts()
	fmt.Fprintf(w, "%d pending, %d voted, %d absent\n", c.Pending, c.Voted, c.Absent)
}
