package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/ballotdesk/internal/store"
	"github.com/roach88/ballotdesk/internal/value"
)

// FindOptions holds flags for the find command.
type FindOptions struct {
	*RootOptions
	Limit      int
	SortBy     string
	Descending bool
	Hint       string
	Explain    bool
}

// NewFindCommand creates the find command.
func NewFindCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FindOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "find <collection> [selector]",
		Short: "Query a collection with a selector",
		Long: `Query a collection with a JSON selector.

Selectors support field equality, $ne, $exists, $regex and $or. A malformed
selector matches nothing. Pure equality selectors on allow-listed fields are
served from the query cache.

Examples:
  ballotdesk find students '{"course": "1ro Bach A"}'
  ballotdesk find students '{"name": {"$regex": "^ana"}}' --sort name --limit 5
  ballotdesk find students '{"type": "STUDENT", "course": "8vo A"}' --explain`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			selector := "{}"
			if len(args) == 2 {
				selector = args[1]
			}
			return runFind(opts, args[0], selector, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of documents (0 = all)")
	cmd.Flags().StringVar(&opts.SortBy, "sort", "", "field to sort by")
	cmd.Flags().BoolVar(&opts.Descending, "desc", false, "sort descending")
	cmd.Flags().StringVar(&opts.Hint, "hint", "", `index name to use, or "$scan" for a full scan`)
	cmd.Flags().BoolVar(&opts.Explain, "explain", false, "print the query plan instead of documents")

	return cmd
}

// planOutput is the JSON form of a query plan.
type planOutput struct {
	Plan     string            `json:"plan"`
	Kind     string            `json:"kind"`
	Index    string            `json:"index,omitempty"`
	Pushdown map[string]string `json:"pushdown,omitempty"`
}

func runFind(opts *FindOptions, collection, selector string, cmd *cobra.Command) error {
	where, err := value.UnmarshalObject([]byte(selector))
	if err != nil {
		out := newFormatter(cmd, opts.RootOptions)
		_ = out.Error(CodeInvalidInput, fmt.Sprintf("selector is not a JSON object: %v", err), nil)
		return WrapExitError(ExitCommandError, "invalid selector", err)
	}

	return withApp(cmd, opts.RootOptions, func(ctx context.Context, a *app, out *OutputFormatter) error {
		if opts.Explain {
			plan, err := a.store.Explain(collection, where)
			if err != nil {
				out.VerboseLog("selector does not parse: %v", err)
			}
			if out.JSON() {
				return out.Success(planOutput{
					Plan:     plan.String(),
					Kind:     string(plan.Kind),
					Index:    plan.Index,
					Pushdown: plan.Pushdown,
				})
			}
			return out.Success(plan.String())
		}

		docs, err := a.docs.Find(ctx, collection, store.Query{
			Where:      where,
			Limit:      opts.Limit,
			SortBy:     opts.SortBy,
			Descending: opts.Descending,
			Hint:       opts.Hint,
		})
		if err != nil {
			return out.Fail("find failed", err)
		}

		if out.JSON() {
			rows := make([]any, 0, len(docs))
			for _, d := range docs {
				rows = append(rows, value.ToAny(d.Object()))
			}
			return out.Success(rows)
		}

		for _, d := range docs {
			line, err := value.MarshalCanonical(d.Object())
			if err != nil {
				return out.Fail("encode document", err)
			}
			fmt.Fprintln(out.Writer, string(line))
		}
		fmt.Fprintf(out.Writer, "%d document(s)\n", len(docs))
		return nil
	})
}
