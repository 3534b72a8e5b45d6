package cli

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/ballotdesk/internal/reconcile"
)

// MarkOutput is the JSON form of a mark.
type MarkOutput struct {
	Course string                 `json:"course"`
	Record reconcile.StatusRecord `json:"record"`
	Synced bool                   `json:"synced"`
}

var markMutations = map[string]reconcile.Mutation{
	"voted":   reconcile.MarkVoted,
	"absent":  reconcile.MarkAbsent,
	"present": reconcile.MarkPresent,
}

// NewMarkCommand creates the mark command.
func NewMarkCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mark <course> <student> <voted|absent|present>",
		Short: "Mark a student as voted, absent or present",
		Long: `Mark a student in a course. The student may be named by document id,
student id or national id.

The course is reconciled first. The mark is kept in the optimistic cache
even when the store write fails; it is flushed by the next pass.

Examples:
  ballotdesk mark "1ro Bach A" 1001 absent
  ballotdesk mark "1ro Bach A" 0911111111 present`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, ok := markMutations[args[2]]
			if !ok {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("unknown mark %q: must be one of %v", args[2], slices.Sorted(maps.Keys(markMutations))))
			}
			return runMark(rootOpts, args[0], args[1], m, cmd)
		},
	}
	return cmd
}

func runMark(opts *RootOptions, courseName, identifier string, m reconcile.Mutation, cmd *cobra.Command) error {
	return withApp(cmd, opts, func(ctx context.Context, a *app, out *OutputFormatter) error {
		eng, err := a.openEngine()
		if err != nil {
			return err
		}

		view, err := eng.Reconcile(ctx, courseName)
		if err != nil {
			out.VerboseLog("reconcile before mark failed: %v", err)
			view.Course = courseName
		}

		rec, err := eng.Apply(ctx, view.Course, identifier, m)
		if err != nil {
			return out.Fail("mark failed", err)
		}

		after, err := eng.View(view.Course)
		if err != nil {
			return out.Fail("read view failed", err)
		}
		synced := !slices.Contains(after.Unsynced, rec.StudentID)

		if out.JSON() {
			return out.Success(MarkOutput{Course: view.Course, Record: rec, Synced: synced})
		}
		line := fmt.Sprintf("%s is %s in %s", rec.StudentID, rec.Status, view.Course)
		if !synced {
			line += " (unsynced: will be written on the next pass)"
		}
		return out.Success(line)
	})
}
