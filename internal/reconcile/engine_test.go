package reconcile

import (
	"context"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ballotdesk/internal/election"
	"github.com/roach88/ballotdesk/internal/sessioncache"
	"github.com/roach88/ballotdesk/internal/value"
)

func TestLoadCourse_OneVoteOfThree(t *testing.T) {
	f := newFixture(t)
	f.seedCourse(t)
	f.castVote(t, "1002", voteTime)
	ctx := context.Background()

	view, err := f.engine.LoadCourse(ctx, SessionContext{RosterKey: "k", Course: course1})
	require.NoError(t, err)

	assert.Equal(t, course1, view.Course)
	assert.Empty(t, view.Requested)
	assert.False(t, view.Degraded)
	assert.Equal(t, map[string]Status{
		"1001": StatusPending,
		"1002": StatusVoted,
		"1003": StatusPending,
	}, statuses(view))

	s2, ok := view.Record("1002")
	require.True(t, ok)
	require.NotNil(t, s2.VotedAt)
	assert.True(t, voteTime.Equal(*s2.VotedAt))
	assert.False(t, s2.IsAbsent)

	assert.Equal(t, Counts{Pending: 2, Voted: 1}, view.Counts())

	// The student document is repaired from the vote log.
	st := f.student(t, "1002")
	assert.True(t, st.Voted)
	assert.True(t, voteTime.Equal(st.VotedAt))

	// The session is recorded.
	sessions, err := election.NewSessions(f.backend).ByCourse(ctx, course1)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, 1, sessions[0].Voted)
	assert.Equal(t, "k", sessions[0].RosterKey)

	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.ReconcilePasses.WithLabelValues("load")))
}

func TestLoadCourse_VoteKeyedByAnyIdentifier(t *testing.T) {
	f := newFixture(t)
	f.seedCourse(t)
	ctx := context.Background()

	s3 := f.student(t, "1003")
	f.castVote(t, "0911111111", voteTime)
	f.castVote(t, s3.ID, voteTime.Add(time.Minute))

	view, err := f.engine.LoadCourse(ctx, SessionContext{Course: course1})
	require.NoError(t, err)
	assert.Equal(t, map[string]Status{
		"1001": StatusVoted,
		"1002": StatusPending,
		"1003": StatusVoted,
	}, statuses(view))

	r3, ok := view.Record("1003")
	require.True(t, ok)
	require.NotNil(t, r3.VotedAt)
	assert.True(t, voteTime.Add(time.Minute).Equal(*r3.VotedAt))

	assert.True(t, f.student(t, "1001").Voted)
	assert.True(t, f.student(t, "1003").Voted)
	assert.False(t, f.student(t, "1002").Voted)

	drifts, err := f.engine.Revalidate(ctx, course1)
	require.NoError(t, err)
	assert.Empty(t, drifts)
}

func TestLoadCourse_DerivesFromFlags(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, row := range []map[string]any{
		{"name": "A", "studentId": 1, "course": course1, "absent": true},
		{"name": "B", "studentId": 2, "course": course1, "votado": true},
		{"name": "C", "studentId": 3, "course": course1, "voted": true, "absent": true},
		{"name": "D", "studentId": 4, "course": course1},
	} {
		_, err := f.backend.Create(ctx, "students", election.TypeStudent, value.MustObject(row))
		require.NoError(t, err)
	}

	view, err := f.engine.LoadCourse(ctx, SessionContext{Course: course1})
	require.NoError(t, err)
	assert.Equal(t, map[string]Status{
		"1": StatusAbsent,
		"2": StatusVoted,
		"3": StatusAbsent,
		"4": StatusPending,
	}, statuses(view))
}

func TestMarkAbsent_SurvivesReconcile(t *testing.T) {
	f := newFixture(t)
	f.seedCourse(t)
	ctx := context.Background()

	_, err := f.engine.LoadCourse(ctx, SessionContext{Course: course1})
	require.NoError(t, err)

	rec, err := f.engine.MarkAbsent(ctx, course1, "1001")
	require.NoError(t, err)
	assert.Equal(t, StatusAbsent, rec.Status)
	assert.True(t, rec.IsAbsent)

	view, err := f.engine.Reconcile(ctx, course1)
	require.NoError(t, err)
	got, _ := view.Record("1001")
	assert.Equal(t, StatusAbsent, got.Status)
	assert.Empty(t, view.Unsynced)

	st := f.student(t, "1001")
	assert.True(t, st.Absent)
	assert.False(t, st.AbsentAt.IsZero())
}

func TestReconcile_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.seedCourse(t)
	f.castVote(t, "1002", voteTime)
	ctx := context.Background()

	_, err := f.engine.MarkAbsent(ctx, course1, "1003")
	require.NoError(t, err)

	first, err := f.engine.Reconcile(ctx, course1)
	require.NoError(t, err)
	second, err := f.engine.Reconcile(ctx, course1)
	require.NoError(t, err)

	require.Len(t, second.Records, len(first.Records))
	for i := range first.Records {
		assert.True(t, first.Records[i].Equal(second.Records[i]), "record %s", first.Records[i].StudentID)
	}
	assert.Equal(t, first.Unsynced, second.Unsynced)
}

func TestReconcile_StatusPrecedence(t *testing.T) {
	tests := []struct {
		name   string
		cached sessioncache.StatusRecord
	}{
		{"cached pending", sessioncache.StatusRecord{StudentID: "1001", Status: StatusPending}},
		{"stale absent without flag", sessioncache.StatusRecord{StudentID: "1001", Status: StatusAbsent}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.seedCourse(t)
			f.castVote(t, "1001", voteTime)

			c := sessioncache.New(course1)
			c.Set(tt.cached, false)
			require.NoError(t, f.cache.Save(c))

			view, err := f.engine.Reconcile(context.Background(), course1)
			require.NoError(t, err)
			got, _ := view.Record("1001")
			assert.Equal(t, StatusVoted, got.Status)
			assert.False(t, got.IsAbsent)
		})
	}
}

func TestReconcile_AbsentIsNeverFlippedByVote(t *testing.T) {
	f := newFixture(t)
	f.seedCourse(t)
	ctx := context.Background()

	_, err := f.engine.MarkAbsent(ctx, course1, "1003")
	require.NoError(t, err)
	f.castVote(t, "1003", voteTime)

	view, err := f.engine.Reconcile(ctx, course1)
	require.NoError(t, err)
	got, _ := view.Record("1003")
	assert.Equal(t, StatusAbsent, got.Status)

	// Clearing absence lets the vote through on the next pass.
	rec, err := f.engine.MarkPresent(ctx, course1, "1003")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, rec.Status)

	view, err = f.engine.Reconcile(ctx, course1)
	require.NoError(t, err)
	got, _ = view.Record("1003")
	assert.Equal(t, StatusVoted, got.Status)
	require.NotNil(t, got.VotedAt)
	assert.True(t, voteTime.Equal(*got.VotedAt))
}

func TestMarkVoted_ClearsAbsence(t *testing.T) {
	f := newFixture(t)
	f.seedCourse(t)
	ctx := context.Background()

	_, err := f.engine.MarkAbsent(ctx, course1, "1002")
	require.NoError(t, err)
	rec, err := f.engine.MarkVoted(ctx, course1, "1002")
	require.NoError(t, err)

	assert.Equal(t, StatusVoted, rec.Status)
	assert.False(t, rec.IsAbsent)
	require.NotNil(t, rec.VotedAt)
	assert.True(t, f.clock.Peek().Equal(*rec.VotedAt))

	st := f.student(t, "1002")
	assert.True(t, st.Voted)
	assert.False(t, st.Absent)
	assert.True(t, st.AbsentAt.IsZero())
}

func TestMutations_ResolveIdentifiers(t *testing.T) {
	f := newFixture(t)
	f.seedCourse(t)
	ctx := context.Background()

	s1 := f.student(t, "1001")

	// Not loaded yet: resolved through the store.
	rec, err := f.engine.MarkAbsent(ctx, course1, "0911111111")
	require.NoError(t, err)
	assert.Equal(t, "1001", rec.StudentID)

	_, err = f.engine.LoadCourse(ctx, SessionContext{Course: course1})
	require.NoError(t, err)

	// Loaded: resolved in the roster by document id.
	rec, err = f.engine.MarkPresent(ctx, course1, s1.ID)
	require.NoError(t, err)
	assert.Equal(t, "1001", rec.StudentID)
	assert.Equal(t, StatusPending, rec.Status)

	assert.False(t, f.student(t, "1001").Absent)
}

func TestMutation_CacheOnlyWhenStudentUnknown(t *testing.T) {
	f := newFixture(t)
	f.seedCourse(t)
	ctx := context.Background()

	rec, err := f.engine.MarkAbsent(ctx, course1, "9999")
	require.NoError(t, err)
	assert.Equal(t, "9999", rec.StudentID)
	assert.Equal(t, StatusAbsent, rec.Status)

	view, err := f.engine.Reconcile(ctx, course1)
	require.NoError(t, err)
	got, ok := view.Record("9999")
	require.True(t, ok, "cache-only records are kept")
	assert.Equal(t, StatusAbsent, got.Status)
	assert.Equal(t, []string{"9999"}, view.Unsynced)
	assert.Len(t, view.Records, 4)
}

func TestMutation_WriteFailureIsFlushedLater(t *testing.T) {
	f := newFixture(t)
	f.seedCourse(t)
	ctx := context.Background()

	_, err := f.engine.LoadCourse(ctx, SessionContext{Course: course1})
	require.NoError(t, err)

	f.docs.failUpdates = true
	rec, err := f.engine.MarkAbsent(ctx, course1, "1002")
	require.NoError(t, err, "store failures do not fail the action")
	assert.Equal(t, StatusAbsent, rec.Status)

	view, err := f.engine.View(course1)
	require.NoError(t, err)
	assert.Equal(t, []string{"1002"}, view.Unsynced)
	assert.False(t, f.student(t, "1002").Absent)
	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.StoreWriteFailures.WithLabelValues("markAbsent")))

	// While the store keeps failing the optimistic state is kept.
	view, err = f.engine.Reconcile(ctx, course1)
	require.NoError(t, err)
	got, _ := view.Record("1002")
	assert.Equal(t, StatusAbsent, got.Status)
	assert.Equal(t, []string{"1002"}, view.Unsynced)

	f.docs.failUpdates = false
	view, err = f.engine.Reconcile(ctx, course1)
	require.NoError(t, err)
	assert.Empty(t, view.Unsynced)
	assert.True(t, f.student(t, "1002").Absent)
	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.UnsyncedFlushed))
}

func TestLoadCourse_FuzzyCourseName(t *testing.T) {
	f := newFixture(t)
	f.seedCourse(t)
	ctx := context.Background()

	view, err := f.engine.LoadCourse(ctx, SessionContext{Course: "Primero de Bachillerato A"})
	require.NoError(t, err)
	assert.Equal(t, course1, view.Course)
	assert.Equal(t, "Primero de Bachillerato A", view.Requested)
	assert.Len(t, view.Records, 3)

	// Later calls with the requested name reach the same roster.
	rec, err := f.engine.MarkVoted(ctx, "Primero de Bachillerato A", "1003")
	require.NoError(t, err)
	assert.Equal(t, StatusVoted, rec.Status)

	view, err = f.engine.View(course1)
	require.NoError(t, err)
	got, _ := view.Record("1003")
	assert.Equal(t, StatusVoted, got.Status)
}

func TestLoadCourse_UnknownCourseIsEmpty(t *testing.T) {
	f := newFixture(t)
	f.seedCourse(t)

	view, err := f.engine.LoadCourse(context.Background(), SessionContext{Course: "5to C"})
	require.NoError(t, err)
	assert.Equal(t, "5to C", view.Course)
	assert.Empty(t, view.Records)
	assert.False(t, view.Degraded)
}

func TestLoadCourse_DegradedWhenStoreUnavailable(t *testing.T) {
	f := newFixture(t)
	f.seedCourse(t)
	ctx := context.Background()

	_, err := f.engine.LoadCourse(ctx, SessionContext{Course: course1})
	require.NoError(t, err)
	_, err = f.engine.MarkAbsent(ctx, course1, "1001")
	require.NoError(t, err)

	require.NoError(t, f.backend.Close())

	view, err := f.engine.LoadCourse(ctx, SessionContext{Course: course1})
	require.NoError(t, err)
	assert.True(t, view.Degraded)
	require.NotNil(t, view.Failure)
	assert.Equal(t, FailureStoreUnavailable, view.Failure.Code)
	assert.Equal(t, map[string]Status{
		"1001": StatusAbsent,
		"1002": StatusPending,
		"1003": StatusPending,
	}, statuses(view))
	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.DegradedLoads))

	// Mutations still land in the optimistic cache.
	rec, err := f.engine.MarkVoted(ctx, course1, "1002")
	require.NoError(t, err)
	assert.Equal(t, StatusVoted, rec.Status)
	view, err = f.engine.View(course1)
	require.NoError(t, err)
	assert.Contains(t, view.Unsynced, "1002")
}

func TestRevalidate_CorrectsDrift(t *testing.T) {
	f := newFixture(t)
	f.seedCourse(t)
	f.castVote(t, "1002", voteTime)
	ctx := context.Background()

	_, err := f.engine.LoadCourse(ctx, SessionContext{Course: course1})
	require.NoError(t, err)

	drifts, err := f.engine.Revalidate(ctx, course1)
	require.NoError(t, err)
	assert.Empty(t, drifts, "a fresh load agrees with the store")

	c, ok, err := f.cache.Load(course1)
	require.NoError(t, err)
	require.True(t, ok)
	delete(c.Records, "1001")
	c.Set(sessioncache.StatusRecord{StudentID: "1002", Status: StatusPending}, false)
	c.Set(sessioncache.StatusRecord{StudentID: "1003", Status: StatusAbsent, IsAbsent: true}, true)
	require.NoError(t, f.cache.Save(c))

	drifts, err = f.engine.Revalidate(ctx, course1)
	require.NoError(t, err)
	require.Len(t, drifts, 2)
	assert.Equal(t, "1001", drifts[0].StudentID)
	assert.Equal(t, DriftMissing, drifts[0].Kind)
	assert.Equal(t, "1002", drifts[1].StudentID)
	assert.Equal(t, DriftMismatch, drifts[1].Kind)
	assert.Equal(t, StatusPending, drifts[1].Cached.Status)
	assert.Equal(t, StatusVoted, drifts[1].Store.Status)

	view, err := f.engine.View(course1)
	require.NoError(t, err)
	assert.Equal(t, map[string]Status{
		"1001": StatusPending,
		"1002": StatusVoted,
		"1003": StatusAbsent, // unsynced, left alone
	}, statuses(view))

	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.DriftCorrections.WithLabelValues("missing")))
	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.DriftCorrections.WithLabelValues("mismatch")))
}

func TestApply_UnknownMutation(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Apply(context.Background(), course1, "1001", Mutation("markLate"))
	assert.Error(t, err)
}

func TestEngine_BackgroundPassAfterLoad(t *testing.T) {
	f := newFixture(t)
	f.seedCourse(t)

	ran := make(chan string, 1)
	e := New(f.docs, f.cache, WithClock(f.clock.Now), WithRevalidateDelay(time.Millisecond))
	e.scheduler = NewScheduler(time.Millisecond, func(course string) {
		e.backgroundPass(course)
		ran <- course
	})
	defer e.Close()

	_, err := e.LoadCourse(context.Background(), SessionContext{Course: course1})
	require.NoError(t, err)

	select {
	case got := <-ran:
		assert.Equal(t, course1, got)
	case <-time.After(5 * time.Second):
		t.Fatal("background pass did not run")
	}
}
