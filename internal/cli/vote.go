package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/ballotdesk/internal/election"
)

// VoteOutput is the JSON form of a cast vote.
type VoteOutput struct {
	ID        string    `json:"id"`
	StudentID string    `json:"studentId"`
	ChoiceID  string    `json:"choiceId"`
	Course    string    `json:"course"`
	Timestamp time.Time `json:"timestamp"`
}

// NewVoteCommand creates the vote command.
func NewVoteCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vote <student> [choice]",
		Short: "Cast a student's vote",
		Long: `Record a vote for a student, named by document id, student id or national
id. The choice is a candidate list id, or "blank" (the default).

A student votes at most once; a second vote is refused. After the vote is
recorded the student's course is reconciled and the student marked as voted.

Exit codes:
  0 - Vote recorded
  1 - Student unknown, unknown choice or already voted
  2 - Command error

Examples:
  ballotdesk vote 1001 list_01J...
  ballotdesk vote 0911111111`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			choice := election.BlankChoice
			if len(args) == 2 {
				choice = args[1]
			}
			return runVote(rootOpts, args[0], choice, cmd)
		},
	}
	return cmd
}

func runVote(opts *RootOptions, identifier, choice string, cmd *cobra.Command) error {
	return withApp(cmd, opts, func(ctx context.Context, a *app, out *OutputFormatter) error {
		st, err := a.students().Resolve(ctx, identifier)
		if err != nil {
			return out.Fail("vote refused", err)
		}

		rec := election.VoteRecord{
			StudentID: st.Key(),
			ChoiceID:  choice,
			Timestamp: time.Now().UTC(),
			Course:    st.Course,
			Level:     st.Level,
		}
		id, err := a.votes().Cast(ctx, rec)
		if err != nil {
			return out.Fail("vote refused", err)
		}

		eng, err := a.openEngine()
		if err != nil {
			return err
		}
		if _, err := eng.Reconcile(ctx, st.Course); err != nil {
			a.logger.Warn("reconcile after vote failed", "course", st.Course, "error", err)
		}
		if _, err := eng.MarkVoted(ctx, st.Course, st.Key()); err != nil {
			a.logger.Warn("mark voted failed", "student", st.Key(), "error", err)
		}

		if out.JSON() {
			return out.Success(VoteOutput{
				ID:        id,
				StudentID: rec.StudentID,
				ChoiceID:  rec.ChoiceID,
				Course:    rec.Course,
				Timestamp: rec.Timestamp,
			})
		}
		return out.Success("vote recorded for " + rec.StudentID + " (" + rec.Course + ")")
	})
}
