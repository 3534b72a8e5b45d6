package reconcile

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/ballotdesk/internal/cache"
	"github.com/roach88/ballotdesk/internal/election"
	"github.com/roach88/ballotdesk/internal/metrics"
	"github.com/roach88/ballotdesk/internal/sessioncache"
	"github.com/roach88/ballotdesk/internal/store"
	"github.com/roach88/ballotdesk/internal/testutil"
	"github.com/roach88/ballotdesk/internal/value"
)

const course1 = "1ro Bach A"

var voteTime = time.Date(2026, 5, 4, 9, 15, 0, 0, time.UTC)

// flakyDocs fails student updates while failUpdates is set.
type flakyDocs struct {
	*cache.Store
	failUpdates bool
}

func (f *flakyDocs) Update(ctx context.Context, collection string, doc store.Document) (string, error) {
	if f.failUpdates {
		return "", errors.New("disk full")
	}
	return f.Store.Update(ctx, collection, doc)
}

type fixture struct {
	backend *store.Store
	docs    *flakyDocs
	cache   *sessioncache.Memory
	metrics *metrics.Metrics
	engine  *Engine
	clock   *testutil.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	storeClock := testutil.NewFakeClock(time.Time{}).WithStep(time.Second)
	backend, err := store.Open(filepath.Join(t.TempDir(), "reconcile.db"),
		store.WithClock(storeClock.Now),
		store.WithIDGenerator(testutil.NewSequenceIDs("")),
	)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	f := &fixture{
		backend: backend,
		docs:    &flakyDocs{Store: cache.New(backend)},
		cache:   sessioncache.NewMemory(),
		metrics: metrics.New(nil),
		clock:   testutil.NewFakeClock(time.Time{}),
	}
	f.engine = New(f.docs, f.cache,
		WithClock(f.clock.Now),
		WithMetrics(f.metrics),
		WithRevalidateDelay(0),
	)
	t.Cleanup(f.engine.Close)
	return f
}

// seedCourse creates S1..S3 (studentId 1001..1003) in course1 plus one
// student in another course.
func (f *fixture) seedCourse(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for _, row := range []map[string]any{
		{"name": "S1", "studentId": 1001, "nationalId": "0911111111", "course": course1},
		{"name": "S2", "studentId": 1002, "nationalId": "0922222222", "course": course1},
		{"name": "S3", "studentId": 1003, "course": course1},
		{"name": "Other", "studentId": 2001, "course": "8vo A"},
	} {
		_, err := f.backend.Create(ctx, "students", election.TypeStudent, value.MustObject(row))
		require.NoError(t, err)
	}
}

func (f *fixture) castVote(t *testing.T, studentID string, at time.Time) {
	t.Helper()
	_, err := election.NewVoteLog(f.backend).Cast(context.Background(), election.VoteRecord{
		StudentID: studentID,
		ChoiceID:  election.BlankChoice,
		Timestamp: at,
		Course:    course1,
	})
	require.NoError(t, err)
}

func (f *fixture) student(t *testing.T, identifier string) election.Student {
	t.Helper()
	st, err := election.NewStudents(f.backend).Resolve(context.Background(), identifier)
	require.NoError(t, err)
	return st
}

func statuses(v View) map[string]Status {
	out := make(map[string]Status, len(v.Records))
	for _, r := range v.Records {
		out[r.StudentID] = r.Status
	}
	return out
}
