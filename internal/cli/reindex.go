package cli

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// ReindexResult is the rebuild count of one collection.
type ReindexResult struct {
	Collection string `json:"collection"`
	Documents  int    `json:"documents"`
}

// NewReindexCommand creates the reindex command.
func NewReindexCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reindex [collection...]",
		Short: "Rebuild secondary indexes",
		Long: `Rebuild the secondary index entries of the named collections, or of
every cataloged collection when none are named. Use after importing data
written by another tool.

Examples:
  ballotdesk reindex
  ballotdesk reindex students votes`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReindex(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runReindex(opts *RootOptions, collections []string, cmd *cobra.Command) error {
	return withApp(cmd, opts, func(ctx context.Context, a *app, out *OutputFormatter) error {
		if len(collections) == 0 {
			collections = a.store.Catalog().Names()
		}

		results := make([]ReindexResult, 0, len(collections))
		for _, coll := range collections {
			n, err := a.store.RebuildIndexes(ctx, coll)
			if err != nil {
				return out.Fail(fmt.Sprintf("reindex %s failed", coll), err)
			}
			out.VerboseLog("reindexed %s: %d document(s)", coll, n)
			results = append(results, ReindexResult{Collection: coll, Documents: n})
		}

		if out.JSON() {
			return out.Success(results)
		}
		for _, r := range results {
			fmt.Fprintf(out.Writer, "%s: %s document(s) indexed\n", r.Collection, humanize.Comma(int64(r.Documents)))
		}
		return nil
	})
}
