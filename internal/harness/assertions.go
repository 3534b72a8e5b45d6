package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/roach88/ballotdesk/internal/reconcile"
)

// AssertionError is an unmet expectation.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// check evaluates exp and returns one message per unmet expectation, in a
// stable order.
func (h *Harness) check(ctx context.Context, exp Expectation, result *Result) []string {
	var errs []error

	if exp.Course != "" && result.View.Course != exp.Course {
		errs = append(errs, &AssertionError{
			Type:     "course",
			Expected: exp.Course,
			Actual:   result.View.Course,
		})
	}

	for _, id := range sortedKeys(exp.Statuses) {
		want := exp.Statuses[id]
		rec, ok := result.View.Record(id)
		switch {
		case !ok:
			errs = append(errs, &AssertionError{
				Type:     "status",
				Expected: fmt.Sprintf("%s is %s", id, want),
				Actual:   "no record",
			})
		case string(rec.Status) != want:
			errs = append(errs, &AssertionError{
				Type:     "status",
				Expected: fmt.Sprintf("%s is %s", id, want),
				Actual:   string(rec.Status),
			})
		}
	}

	for _, id := range sortedKeys(exp.VotedAt) {
		want := exp.VotedAt[id].UTC()
		rec, ok := result.View.Record(id)
		if !ok || rec.VotedAt == nil || !rec.VotedAt.Equal(want) {
			errs = append(errs, &AssertionError{
				Type:     "voted_at",
				Expected: fmt.Sprintf("%s voted at %s", id, want.Format(time.RFC3339)),
				Actual:   describeVotedAt(rec, ok),
			})
		}
	}

	if exp.Counts != nil {
		if got := result.View.Counts(); got != *exp.Counts {
			errs = append(errs, &AssertionError{
				Type:     "counts",
				Expected: fmt.Sprintf("%+v", *exp.Counts),
				Actual:   fmt.Sprintf("%+v", got),
			})
		}
	}

	if exp.Unsynced != nil {
		got := result.View.Unsynced
		if !slices.Equal(slices.Sorted(slices.Values(exp.Unsynced)), got) {
			errs = append(errs, &AssertionError{
				Type:     "unsynced",
				Expected: fmt.Sprintf("%v", exp.Unsynced),
				Actual:   fmt.Sprintf("%v", got),
			})
		}
	}

	if exp.Degraded != nil && result.View.Degraded != *exp.Degraded {
		errs = append(errs, &AssertionError{
			Type:     "degraded",
			Expected: fmt.Sprintf("%t", *exp.Degraded),
			Actual:   fmt.Sprintf("%t", result.View.Degraded),
		})
	}

	if exp.Drifts != nil && result.Drifts != *exp.Drifts {
		errs = append(errs, &AssertionError{
			Type:     "drifts",
			Expected: fmt.Sprintf("%d corrections", *exp.Drifts),
			Actual:   fmt.Sprintf("%d corrections", result.Drifts),
		})
	}

	for _, id := range sortedKeys(exp.Documents) {
		if err := h.checkDocument(ctx, id, exp.Documents[id]); err != nil {
			errs = append(errs, err)
		}
	}

	msgs := make([]string, 0, len(errs))
	for _, err := range errs {
		msgs = append(msgs, err.Error())
	}
	return msgs
}

func (h *Harness) checkDocument(ctx context.Context, id string, want DocumentExpectation) error {
	st, err := h.students.Resolve(ctx, id)
	if err != nil {
		return &AssertionError{
			Type:     "document",
			Expected: fmt.Sprintf("student document %s", id),
			Actual:   err.Error(),
		}
	}
	if want.Voted != nil && st.Voted != *want.Voted {
		return &AssertionError{
			Type:     "document",
			Expected: fmt.Sprintf("%s voted=%t", id, *want.Voted),
			Actual:   fmt.Sprintf("voted=%t", st.Voted),
		}
	}
	if want.Absent != nil && st.Absent != *want.Absent {
		return &AssertionError{
			Type:     "document",
			Expected: fmt.Sprintf("%s absent=%t", id, *want.Absent),
			Actual:   fmt.Sprintf("absent=%t", st.Absent),
		}
	}
	return nil
}

func describeVotedAt(rec reconcile.StatusRecord, ok bool) string {
	switch {
	case !ok:
		return "no record"
	case rec.VotedAt == nil:
		return "votedAt unset"
	}
	return rec.VotedAt.UTC().Format(time.RFC3339)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
