package harness

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ballotdesk/internal/reconcile"
	"github.com/roach88/ballotdesk/internal/value"
)

func TestScenarios_Golden(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		scenario, err := LoadScenario(file)
		require.NoError(t, err, file)

		t.Run(scenario.Name, func(t *testing.T) {
			require.NoError(t, RunWithGolden(t, scenario))
		})
	}
}

const baseScenario = `
name: base
description: two students, one vote
course: 1ro Bach A
students:
  - {name: Ana, studentId: 1001, course: 1ro Bach A}
  - {name: Bruno, studentId: 1002, course: 1ro Bach A}
votes:
  - {student: "1002", at: 2026-05-04T09:15:00Z}
steps:
  - op: load
`

func TestRun_ExpectationsHold(t *testing.T) {
	scenario, err := ParseScenario([]byte(baseScenario + `
expect:
  statuses: {"1001": pending, "1002": voted}
  counts: {pending: 1, voted: 1, absent: 0}
  degraded: false
  drifts: 0
`))
	require.NoError(t, err)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Steps, 1)
	assert.Equal(t, OpLoad, result.Steps[0].Op)
	assert.Equal(t, "1ro Bach A", result.Steps[0].Course)
}

func TestRun_ReportsUnmetExpectations(t *testing.T) {
	scenario, err := ParseScenario([]byte(baseScenario + `
expect:
  course: 8vo A
  statuses: {"1001": voted, "7777": pending}
  degraded: true
  documents:
    "1001": {voted: true}
`))
	require.NoError(t, err)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 5)

	joined := strings.Join(result.Errors, "\n")
	assert.Contains(t, joined, "Assertion failed: course")
	assert.Contains(t, joined, "Expected: 1001 is voted")
	assert.Contains(t, joined, "Actual: no record")
	assert.Contains(t, joined, "Assertion failed: degraded")
	assert.Contains(t, joined, "1001 voted=true")
}

func TestRun_StepErrors(t *testing.T) {
	scenario, err := ParseScenario([]byte(baseScenario + `
  - op: store_down
  - op: revalidate
`))
	require.NoError(t, err)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Steps, 3)
	assert.NotEmpty(t, result.Steps[2].Error)
	assert.Contains(t, result.Errors[0], "steps[2] revalidate")

	scenario.Steps[2].ExpectError = true
	result, err = Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestRun_ExpectedErrorThatDoesNotHappen(t *testing.T) {
	scenario, err := ParseScenario([]byte(baseScenario + `
  - {op: reconcile, expect_error: true}
`))
	require.NoError(t, err)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Equal(t, []string{"steps[1] reconcile: expected an error"}, result.Errors)
}

func TestParseScenario_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing name", "description: d\ncourse: c\nsteps: [{op: load}]\n", "name is required"},
		{"missing description", "name: n\ncourse: c\nsteps: [{op: load}]\n", "description is required"},
		{"missing course", "name: n\ndescription: d\nsteps: [{op: load}]\n", "course is required"},
		{"no steps", "name: n\ndescription: d\ncourse: c\n", "steps list is required"},
		{"unknown op", "name: n\ndescription: d\ncourse: c\nsteps: [{op: launch}]\n", `unknown op "launch"`},
		{"mark without student", "name: n\ndescription: d\ncourse: c\nsteps: [{op: mark_voted}]\n", "student is required for mark_voted"},
		{"unknown key", "name: n\ndescription: d\ncourse: c\nstep: [{op: load}]\n", "field step not found"},
		{"vote without time", "name: n\ndescription: d\ncourse: c\nvotes: [{student: \"1\"}]\nsteps: [{op: load}]\n", "votes[0]: at is required"},
		{"bad cache status", "name: n\ndescription: d\ncourse: c\ncache: {records: [{studentId: \"1\", status: gone}]}\nsteps: [{op: load}]\n", "unknown status"},
		{"bad expected status", "name: n\ndescription: d\ncourse: c\nsteps: [{op: load}]\nexpect: {statuses: {\"1\": gone}}\n", "unknown status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestResult_Snapshot(t *testing.T) {
	at := time.Date(2026, 5, 4, 9, 15, 0, 0, time.UTC)
	result := NewResult()
	result.View = reconcile.View{
		Course: "8vo A",
		Records: []reconcile.StatusRecord{
			{StudentID: "2001", Status: reconcile.StatusVoted, VotedAt: &at},
		},
		Unsynced: []string{"2001"},
	}
	result.Drifts = 2

	data, err := value.MarshalCanonical(result.Snapshot("snap"))
	require.NoError(t, err)
	assert.Equal(t,
		`{"course":"8vo A","degraded":false,"drifts":2,`+
			`"records":[{"isAbsent":false,"status":"voted","studentId":"2001","votedAt":"2026-05-04T09:15:00.000Z"}],`+
			`"scenario":"snap","unsynced":["2001"]}`,
		string(data))
}
