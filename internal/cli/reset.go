package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/ballotdesk/internal/election"
	"github.com/roach88/ballotdesk/internal/schema"
)

// ResetOptions holds flags for the reset command.
type ResetOptions struct {
	*RootOptions
	Yes      bool
	Votes    bool
	Roster   bool
	Sessions bool
}

// ResetOutput counts what a reset removed.
type ResetOutput struct {
	Votes        int      `json:"votes"`
	FlagsCleared int      `json:"flagsCleared"`
	Students     int      `json:"students"`
	Sessions     int      `json:"sessions"`
	Caches       []string `json:"caches"`
}

// NewResetCommand creates the reset command.
func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Prepare the store for a new election",
		Long: `Clear election state. By default the vote log is emptied and every
student's voted and absent flags are cleared. --roster also removes the
students; --sessions drops the session log and the optimistic course caches.

Nothing is changed without --yes.

Examples:
  ballotdesk reset --yes
  ballotdesk reset --yes --sessions
  ballotdesk reset --yes --votes=false --roster`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !opts.Yes {
				return NewExitError(ExitCommandError, "reset is destructive: pass --yes to confirm")
			}
			return runReset(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Yes, "yes", false, "confirm the reset")
	cmd.Flags().BoolVar(&opts.Votes, "votes", true, "clear the vote log and student flags")
	cmd.Flags().BoolVar(&opts.Roster, "roster", false, "remove every student")
	cmd.Flags().BoolVar(&opts.Sessions, "sessions", false, "clear the session log and course caches")

	return cmd
}

func runReset(opts *ResetOptions, cmd *cobra.Command) error {
	return withApp(cmd, opts.RootOptions, func(ctx context.Context, a *app, out *OutputFormatter) error {
		result := ResetOutput{Caches: []string{}}

		if opts.Votes {
			n, err := a.votes().Reset(ctx)
			if err != nil {
				return out.Fail("reset failed", err)
			}
			result.Votes = n

			if !opts.Roster {
				cleared, err := clearFlags(ctx, a.students())
				if err != nil {
					return out.Fail("reset failed", err)
				}
				result.FlagsCleared = cleared
			}
		}

		if opts.Roster {
			n, err := a.docs.Clear(ctx, schema.Students)
			if err != nil {
				return out.Fail("reset failed", err)
			}
			result.Students = n
		}

		if opts.Sessions {
			n, err := a.docs.Clear(ctx, schema.Sessions)
			if err != nil {
				return out.Fail("reset failed", err)
			}
			result.Sessions = n

			sessions, err := a.openSessions()
			if err != nil {
				return err
			}
			for _, c := range sessions.Courses() {
				if err := sessions.Delete(c); err != nil {
					return out.Fail("reset failed", err)
				}
				result.Caches = append(result.Caches, c)
			}
		}

		if out.JSON() {
			return out.Success(result)
		}
		return out.Success(fmt.Sprintf(
			"removed %d vote(s), %d student(s), %d session(s), %d course cache(s); cleared flags on %d student(s)",
			result.Votes, result.Students, result.Sessions, len(result.Caches), result.FlagsCleared))
	})
}

// clearFlags resets voted and absent on every flagged student.
func clearFlags(ctx context.Context, students *election.Students) (int, error) {
	all, err := students.All(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, st := range all {
		if !st.Voted && !st.Absent {
			continue
		}
		if _, err := students.SetFlags(ctx, st.ID, election.Flags{}); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
