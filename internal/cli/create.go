package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/roach88/ballotdesk/internal/value"
)

// CreateOptions holds flags for the create command.
type CreateOptions struct {
	*RootOptions
	File string // JSON array of rows for a bulk create
}

// BulkOutput is the JSON form of a bulk create.
type BulkOutput struct {
	Successful int          `json:"successful"`
	Total      int          `json:"total"`
	Failures   []BulkFailed `json:"failures"`
	IDs        []string     `json:"ids"`
}

// BulkFailed is one rejected row.
type BulkFailed struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CreateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create <collection> <type> [fields]",
		Short: "Create documents",
		Long: `Create one document from a JSON object, or many from a JSON array file.

Each row of a bulk create is stored independently; rows that violate a unique
index are reported and the rest are kept.

Exit codes:
  0 - All documents created
  1 - Document rejected (duplicate key) or some bulk rows failed
  2 - Command error

Examples:
  ballotdesk create students STUDENT '{"name": "Ana", "studentId": 1001, "course": "1ro Bach A"}'
  ballotdesk create students STUDENT --file roster.json`,
		Args:          cobra.RangeArgs(2, 3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.File != "" {
				return runBulkCreate(opts, args[0], args[1], cmd)
			}
			if len(args) != 3 {
				return NewExitError(ExitCommandError, "fields or --file is required")
			}
			return runCreate(opts, args[0], args[1], args[2], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "JSON array of rows to create")

	return cmd
}

func runCreate(opts *CreateOptions, collection, docType, raw string, cmd *cobra.Command) error {
	fields, err := value.UnmarshalObject([]byte(raw))
	if err != nil {
		return WrapExitError(ExitCommandError, "fields must be a JSON object", err)
	}

	return withApp(cmd, opts.RootOptions, func(ctx context.Context, a *app, out *OutputFormatter) error {
		id, err := a.docs.Create(ctx, collection, docType, fields)
		if err != nil {
			return out.Fail("create failed", err)
		}
		if out.JSON() {
			return out.Success(map[string]string{"id": id})
		}
		return out.Success(id)
	})
}

func runBulkCreate(opts *CreateOptions, collection, docType string, cmd *cobra.Command) error {
	rows, err := readRows(opts.File)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read rows", err)
	}

	return withApp(cmd, opts.RootOptions, func(ctx context.Context, a *app, out *OutputFormatter) error {
		res, err := a.docs.BulkCreate(ctx, collection, docType, rows)
		if err != nil {
			return out.Fail("bulk create failed", err)
		}

		result := BulkOutput{
			Successful: res.Successful,
			Total:      res.Total,
			Failures:   []BulkFailed{},
			IDs:        []string{},
		}
		for _, item := range res.Results {
			if item.OK() {
				result.IDs = append(result.IDs, item.ID)
				continue
			}
			result.Failures = append(result.Failures, BulkFailed{Index: item.Index, Error: item.Err.Error()})
		}

		if out.JSON() {
			if err := out.Success(result); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(out.Writer, "created %s of %s documents in %s\n",
				humanize.Comma(int64(result.Successful)), humanize.Comma(int64(result.Total)), collection)
			for _, f := range result.Failures {
				fmt.Fprintf(out.Writer, "  row %d: %s\n", f.Index, f.Error)
			}
		}

		if len(result.Failures) > 0 {
			return NewExitError(ExitFailure, fmt.Sprintf("%d row(s) failed", len(result.Failures)))
		}
		return nil
	})
}

// readRows decodes a JSON array of objects.
func readRows(path string) ([]value.Object, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	v, err := value.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	arr, ok := v.(value.Array)
	if !ok {
		return nil, fmt.Errorf("%s: want a JSON array of objects, got %s", path, value.KindOf(v))
	}

	rows := make([]value.Object, 0, len(arr))
	for i, elem := range arr {
		obj, ok := elem.(value.Object)
		if !ok {
			return nil, fmt.Errorf("%s: row %d is %s, want object", path, i, value.KindOf(elem))
		}
		rows = append(rows, obj)
	}
	return rows, nil
}
