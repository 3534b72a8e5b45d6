package harness

import (
	"github.com/roach88/ballotdesk/internal/reconcile"
	"github.com/roach88/ballotdesk/internal/value"
)

// StepResult is the outcome of one scenario step.
type StepResult struct {
	Index  int    `json:"index"`
	Op     string `json:"op"`
	Course string `json:"course"`
	Drifts int    `json:"drifts,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when no step failed unexpectedly and every expectation
	// held.
	Pass bool `json:"pass"`

	Steps []StepResult `json:"steps"`

	// View is the course view after the last step.
	View reconcile.View `json:"view"`

	// Drifts counts corrections made by revalidate steps.
	Drifts int `json:"drifts"`

	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepResult{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Snapshot is the golden representation of a result: the final view and the
// drift count, keyed by scenario name.
func (r *Result) Snapshot(scenario string) value.Object {
	records := make(value.Array, 0, len(r.View.Records))
	for _, rec := range r.View.Records {
		var votedAt value.Value = value.Null{}
		if rec.VotedAt != nil {
			votedAt = value.NewTime(*rec.VotedAt)
		}
		records = append(records, value.Object{
			"studentId": value.String(rec.StudentID),
			"status":    value.String(string(rec.Status)),
			"isAbsent":  value.Bool(rec.IsAbsent),
			"votedAt":   votedAt,
		})
	}

	unsynced := make(value.Array, 0, len(r.View.Unsynced))
	for _, id := range r.View.Unsynced {
		unsynced = append(unsynced, value.String(id))
	}

	return value.Object{
		"scenario": value.String(scenario),
		"course":   value.String(r.View.Course),
		"degraded": value.Bool(r.View.Degraded),
		"drifts":   value.Int(r.Drifts),
		"records":  records,
		"unsynced": unsynced,
	}
}
