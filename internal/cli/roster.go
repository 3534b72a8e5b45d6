package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/ballotdesk/internal/course"
	"github.com/roach88/ballotdesk/internal/election"
)

// CourseSummary is one course of the roster.
type CourseSummary struct {
	Course   string `json:"course"`
	Students int    `json:"students"`
}

// RosterStudent is one student of a course listing.
type RosterStudent struct {
	ID         string `json:"id"`
	StudentID  string `json:"studentId,omitempty"`
	NationalID string `json:"nationalId,omitempty"`
	Name       string `json:"name"`
	Voted      bool   `json:"voted"`
	Absent     bool   `json:"absent"`
}

// RosterOutput is the JSON form of a course listing.
type RosterOutput struct {
	Course      string          `json:"course"`
	Students    []RosterStudent `json:"students"`
	Suggestions []string        `json:"suggestions,omitempty"`
}

// NewRosterCommand creates the roster command.
func NewRosterCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roster [course]",
		Short: "List courses or the students of a course",
		Long: `Without arguments, list every course on the roster with its size.

With a course name, list its students. The name is matched loosely; when
nothing matches, the closest course names are suggested.

Examples:
  ballotdesk roster
  ballotdesk roster "octavo A"`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runCourses(rootOpts, cmd)
			}
			return runRoster(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runCourses(opts *RootOptions, cmd *cobra.Command) error {
	return withApp(cmd, opts, func(ctx context.Context, a *app, out *OutputFormatter) error {
		students := a.students()
		courses, err := students.Courses(ctx)
		if err != nil {
			return out.Fail("list courses failed", err)
		}

		summaries := make([]CourseSummary, 0, len(courses))
		for _, c := range courses {
			roster, err := students.ByCourse(ctx, c)
			if err != nil {
				return out.Fail("list courses failed", err)
			}
			summaries = append(summaries, CourseSummary{Course: c, Students: len(roster)})
		}

		if out.JSON() {
			return out.Success(summaries)
		}
		tw := tabwriter.NewWriter(out.Writer, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "COURSE\tSTUDENTS")
		for _, s := range summaries {
			fmt.Fprintf(tw, "%s\t%d\n", s.Course, s.Students)
		}
		return tw.Flush()
	})
}

func runRoster(opts *RootOptions, name string, cmd *cobra.Command) error {
	return withApp(cmd, opts, func(ctx context.Context, a *app, out *OutputFormatter) error {
		students := a.students()
		courses, err := students.Courses(ctx)
		if err != nil {
			return out.Fail("list courses failed", err)
		}

		result := RosterOutput{Course: name, Students: []RosterStudent{}}
		match, ok := course.FindMatchingCourse(name, courses)
		if !ok {
			for _, s := range course.Suggest(name, courses) {
				result.Suggestions = append(result.Suggestions, s.Course)
			}
		} else {
			result.Course = match
			roster, err := students.ByCourse(ctx, match)
			if err != nil {
				return out.Fail("list students failed", err)
			}
			result.Students = rosterStudents(roster)
		}

		if out.JSON() {
			return out.Success(result)
		}
		if !ok {
			fmt.Fprintf(out.Writer, "no course matches %q\n", name)
			for _, s := range result.Suggestions {
				fmt.Fprintf(out.Writer, "  did you mean %q?\n", s)
			}
			return NewExitError(ExitFailure, "course not found")
		}

		fmt.Fprintf(out.Writer, "Course: %s\n", result.Course)
		tw := tabwriter.NewWriter(out.Writer, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tNAME\tNATIONAL ID\tVOTED\tABSENT")
		for _, s := range result.Students {
			key := s.StudentID
			if key == "" {
				key = s.ID
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%t\n", key, s.Name, s.NationalID, s.Voted, s.Absent)
		}
		return tw.Flush()
	})
}

func rosterStudents(roster []election.Student) []RosterStudent {
	out := make([]RosterStudent, 0, len(roster))
	for _, st := range roster {
		out = append(out, RosterStudent{
			ID:         st.ID,
			StudentID:  st.StudentID,
			NationalID: st.NationalID,
			Name:       st.Name,
			Voted:      st.Voted,
			Absent:     st.Absent,
		})
	}
	return out
}
