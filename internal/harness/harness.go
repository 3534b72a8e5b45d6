package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/roach88/ballotdesk/internal/cache"
	"github.com/roach88/ballotdesk/internal/election"
	"github.com/roach88/ballotdesk/internal/reconcile"
	"github.com/roach88/ballotdesk/internal/schema"
	"github.com/roach88/ballotdesk/internal/sessioncache"
	"github.com/roach88/ballotdesk/internal/store"
	"github.com/roach88/ballotdesk/internal/testutil"
	"github.com/roach88/ballotdesk/internal/value"
)

// errInjected is returned by writes while a fail_writes step is in effect.
var errInjected = errors.New("injected write failure")

// faultyDocs lets scenarios break student writes without closing the store.
type faultyDocs struct {
	*cache.Store
	failWrites bool
}

func (d *faultyDocs) Update(ctx context.Context, collection string, doc store.Document) (string, error) {
	if d.failWrites {
		return "", fmt.Errorf("update %s/%s: %w", collection, doc.ID, errInjected)
	}
	return d.Store.Update(ctx, collection, doc)
}

// Harness holds the components of one scenario run.
type Harness struct {
	backend  *store.Store
	docs     *faultyDocs
	sessions *sessioncache.Memory
	engine   *reconcile.Engine
	students *election.Students
	votes    *election.VoteLog
	clock    *testutil.FakeClock
	logger   *slog.Logger

	view reconcile.View
}

// Option configures Run.
type Option func(*runConfig)

type runConfig struct {
	logger *slog.Logger
}

// WithLogger sends engine and store logs to l. Logs are discarded by default.
func WithLogger(l *slog.Logger) Option {
	return func(c *runConfig) { c.logger = l }
}

// Run executes a scenario against a fresh store in a temporary directory.
//
// Execution flow:
//  1. Open the store with a stepping fake clock and sequential ids
//  2. Seed candidate lists, students, votes and the optimistic cache
//  3. Execute steps in order
//  4. Check expectations against the final view and the store
//
// The returned error covers setup failures only. Step failures and unmet
// expectations are reported in the result.
func Run(ctx context.Context, s *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&cfg)
	}

	dir, err := os.MkdirTemp("", "ballotdesk-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("create scenario dir: %w", err)
	}
	defer os.RemoveAll(dir)

	storeClock := testutil.NewFakeClock(time.Time{}).WithStep(time.Second)
	backend, err := store.Open(filepath.Join(dir, "scenario.db"),
		store.WithClock(storeClock.Now),
		store.WithIDGenerator(testutil.NewSequenceIDs("")),
		store.WithLogger(cfg.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open scenario store: %w", err)
	}
	defer backend.Close()

	h := &Harness{
		backend:  backend,
		docs:     &faultyDocs{Store: cache.New(backend, cache.WithLogger(cfg.logger))},
		sessions: sessioncache.NewMemory(),
		clock:    testutil.NewFakeClock(time.Time{}),
		logger:   cfg.logger,
	}
	h.students = election.NewStudents(h.docs)
	h.votes = election.NewVoteLog(h.docs)
	h.engine = reconcile.New(h.docs, h.sessions,
		reconcile.WithClock(h.clock.Now),
		reconcile.WithLogger(cfg.logger),
		reconcile.WithRevalidateDelay(0),
	)
	defer h.engine.Close()

	if err := h.seed(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to seed scenario: %w", err)
	}

	result := NewResult()
	viewed := false
	for i, step := range s.Steps {
		course := step.Course
		if course == "" {
			course = s.Course
		}
		sr := StepResult{Index: i, Op: step.Op, Course: course}

		stepErr := h.execute(ctx, s, step, course, &sr)
		switch {
		case stepErr != nil:
			sr.Error = stepErr.Error()
			if !step.ExpectError {
				result.AddError(fmt.Sprintf("steps[%d] %s: %v", i, step.Op, stepErr))
			}
		case step.ExpectError:
			result.AddError(fmt.Sprintf("steps[%d] %s: expected an error", i, step.Op))
		}
		result.Drifts += sr.Drifts
		result.Steps = append(result.Steps, sr)

		if producesView(step.Op) && stepErr == nil {
			viewed = true
		}
		h.logger.Debug("scenario step", "scenario", s.Name, "step", i, "op", step.Op, "error", sr.Error)
	}

	if !viewed {
		if err := h.refresh(s.Course); err != nil {
			return nil, fmt.Errorf("read final view: %w", err)
		}
	}
	result.View = h.view

	for _, msg := range h.check(ctx, s.Expect, result) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) seed(ctx context.Context, s *Scenario) error {
	lists := election.NewCandidateLists(h.docs)
	for i, raw := range s.CandidateLists {
		fields, err := value.ObjectFrom(raw)
		if err != nil {
			return fmt.Errorf("candidate_lists[%d]: %w", i, err)
		}
		if _, err := lists.Add(ctx, fields); err != nil {
			return fmt.Errorf("candidate_lists[%d]: %w", i, err)
		}
	}

	for i, raw := range s.Students {
		fields, err := value.ObjectFrom(raw)
		if err != nil {
			return fmt.Errorf("students[%d]: %w", i, err)
		}
		if _, err := h.docs.Create(ctx, schema.Students, election.TypeStudent, fields); err != nil {
			return fmt.Errorf("students[%d]: %w", i, err)
		}
	}

	for i, v := range s.Votes {
		if err := h.cast(ctx, s, v.Student, v.Choice, v.At, false); err != nil {
			return fmt.Errorf("votes[%d]: %w", i, err)
		}
	}

	if s.Cache != nil {
		c := sessioncache.New(s.Course)
		for _, rec := range s.Cache.Records {
			c.Set(rec, slices.Contains(s.Cache.Unsynced, rec.StudentID))
		}
		c.SavedAt = h.clock.Peek()
		if err := h.sessions.Save(c); err != nil {
			return fmt.Errorf("cache: %w", err)
		}
	}
	return nil
}

func (h *Harness) execute(ctx context.Context, s *Scenario, step Step, course string, sr *StepResult) error {
	switch step.Op {
	case OpLoad:
		view, err := h.engine.LoadCourse(ctx, reconcile.SessionContext{
			RosterKey: s.RosterKey,
			Course:    course,
			Level:     s.Level,
		})
		if err != nil {
			return err
		}
		h.view = view
		return nil

	case OpReconcile:
		view, err := h.engine.Reconcile(ctx, course)
		if err != nil {
			return err
		}
		h.view = view
		return nil

	case OpRevalidate:
		drifts, err := h.engine.Revalidate(ctx, course)
		if err != nil {
			return err
		}
		sr.Drifts = len(drifts)
		return h.refresh(course)

	case OpMarkVoted, OpMarkAbsent, OpMarkPresent:
		m := map[string]reconcile.Mutation{
			OpMarkVoted:   reconcile.MarkVoted,
			OpMarkAbsent:  reconcile.MarkAbsent,
			OpMarkPresent: reconcile.MarkPresent,
		}[step.Op]
		if _, err := h.engine.Apply(ctx, course, step.Student, m); err != nil {
			return err
		}
		return h.refresh(course)

	case OpCastVote:
		at := h.clock.Peek()
		if step.At != nil {
			at = *step.At
		}
		return h.cast(ctx, s, step.Student, step.Choice, at, true)

	case OpFailWrites:
		h.docs.failWrites = true
		return nil

	case OpHealWrites:
		h.docs.failWrites = false
		return nil

	case OpStoreDown:
		return h.backend.Close()
	}
	return fmt.Errorf("unknown op %q", step.Op)
}

// cast appends a vote for identifier, taking course and level from the
// student document when one resolves. With canonical set the vote is keyed by
// the student's key; otherwise identifier is stored as written.
func (h *Harness) cast(ctx context.Context, s *Scenario, identifier, choice string, at time.Time, canonical bool) error {
	rec := election.VoteRecord{
		StudentID: identifier,
		ChoiceID:  choice,
		Timestamp: at,
		Course:    s.Course,
		Level:     s.Level,
	}
	if rec.ChoiceID == "" {
		rec.ChoiceID = election.BlankChoice
	}
	if st, err := h.students.Resolve(ctx, identifier); err == nil {
		if canonical {
			rec.StudentID = st.Key()
		}
		rec.Course = st.Course
		rec.Level = st.Level
	}
	_, err := h.votes.Cast(ctx, rec)
	return err
}

// refresh replaces the current view with the optimistic cache of course. The
// degraded state of the last load is kept.
func (h *Harness) refresh(course string) error {
	view, err := h.engine.View(course)
	if err != nil {
		return err
	}
	view.Degraded, view.Failure = h.view.Degraded, h.view.Failure
	h.view = view
	return nil
}

func producesView(op string) bool {
	switch op {
	case OpLoad, OpReconcile, OpRevalidate, OpMarkVoted, OpMarkAbsent, OpMarkPresent:
		return true
	}
	return false
}
