package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/ballotdesk/internal/reconcile"
	"github.com/roach88/ballotdesk/internal/sessioncache"
)

// Scenario describes one reconciliation run.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Course is the session course. Steps default to it.
	Course    string `yaml:"course"`
	Level     string `yaml:"level,omitempty"`
	RosterKey string `yaml:"roster_key,omitempty"`

	// Students are created in the students collection with type STUDENT.
	Students []map[string]any `yaml:"students"`

	// CandidateLists are created before votes so choices resolve.
	CandidateLists []map[string]any `yaml:"candidate_lists,omitempty"`

	Votes []VoteFixture `yaml:"votes,omitempty"`

	// Cache seeds the optimistic cache of Course before the first step.
	Cache *CacheFixture `yaml:"cache,omitempty"`

	Steps  []Step      `yaml:"steps"`
	Expect Expectation `yaml:"expect"`
}

// VoteFixture is a vote present in the log before the first step. Student is
// stored as written, so it may be any of the student's identifiers.
type VoteFixture struct {
	Student string    `yaml:"student"`
	Choice  string    `yaml:"choice,omitempty"`
	At      time.Time `yaml:"at"`
}

// CacheFixture is the optimistic cache left by an earlier session.
type CacheFixture struct {
	Records  []sessioncache.StatusRecord `yaml:"records"`
	Unsynced []string                    `yaml:"unsynced,omitempty"`
}

// Step is one operation against the engine or the store.
type Step struct {
	Op      string     `yaml:"op"`
	Course  string     `yaml:"course,omitempty"`
	Student string     `yaml:"student,omitempty"`
	Choice  string     `yaml:"choice,omitempty"`
	At      *time.Time `yaml:"at,omitempty"`

	// ExpectError marks a step that must fail.
	ExpectError bool `yaml:"expect_error,omitempty"`
}

// Step operations.
const (
	OpLoad        = "load"
	OpReconcile   = "reconcile"
	OpRevalidate  = "revalidate"
	OpMarkVoted   = "mark_voted"
	OpMarkAbsent  = "mark_absent"
	OpMarkPresent = "mark_present"
	OpCastVote    = "cast_vote"
	OpFailWrites  = "fail_writes"
	OpHealWrites  = "heal_writes"
	OpStoreDown   = "store_down"
)

var knownOps = map[string]bool{
	OpLoad: true, OpReconcile: true, OpRevalidate: true,
	OpMarkVoted: true, OpMarkAbsent: true, OpMarkPresent: true,
	OpCastVote: true, OpFailWrites: true, OpHealWrites: true, OpStoreDown: true,
}

// Expectation is checked against the result after the last step. Unset
// fields are not checked.
type Expectation struct {
	// Course is the resolved course name of the final view.
	Course string `yaml:"course,omitempty"`

	// Statuses maps student keys to their expected status.
	Statuses map[string]string    `yaml:"statuses,omitempty"`
	VotedAt  map[string]time.Time `yaml:"voted_at,omitempty"`

	Counts   *reconcile.Counts `yaml:"counts,omitempty"`
	Unsynced []string          `yaml:"unsynced,omitempty"`
	Degraded *bool             `yaml:"degraded,omitempty"`
	Drifts   *int              `yaml:"drifts,omitempty"`

	// Documents checks the student documents in the store.
	Documents map[string]DocumentExpectation `yaml:"documents,omitempty"`
}

// DocumentExpectation checks the flags of one student document.
type DocumentExpectation struct {
	Voted  *bool `yaml:"voted,omitempty"`
	Absent *bool `yaml:"absent,omitempty"`
}

// LoadScenario reads and validates a scenario file. Unknown keys are
// rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Course == "" {
		return fmt.Errorf("course is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, v := range s.Votes {
		if v.Student == "" {
			return fmt.Errorf("votes[%d]: student is required", i)
		}
		if v.At.IsZero() {
			return fmt.Errorf("votes[%d]: at is required", i)
		}
	}

	if s.Cache != nil {
		for i, r := range s.Cache.Records {
			if r.StudentID == "" {
				return fmt.Errorf("cache.records[%d]: studentId is required", i)
			}
			if !r.Status.Valid() {
				return fmt.Errorf("cache.records[%d]: unknown status %q", i, r.Status)
			}
		}
	}

	for i, step := range s.Steps {
		if !knownOps[step.Op] {
			return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
		}
		switch step.Op {
		case OpMarkVoted, OpMarkAbsent, OpMarkPresent, OpCastVote:
			if step.Student == "" {
				return fmt.Errorf("steps[%d]: student is required for %s", i, step.Op)
			}
		}
	}

	for id, status := range s.Expect.Statuses {
		if !sessioncache.Status(status).Valid() {
			return fmt.Errorf("expect.statuses[%s]: unknown status %q", id, status)
		}
	}
	return nil
}
