package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/ballotdesk/internal/testutil"
	"github.com/roach88/ballotdesk/internal/value"
)

// createTestStore opens a store in a temp dir with a stepping fake clock and
// sequential ids.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	clock := testutil.NewFakeClock(time.Time{}).WithStep(time.Second)
	s, err := Open(path,
		WithClock(clock.Now),
		WithIDGenerator(testutil.NewSequenceIDs("")),
	)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// seedRoster creates a small mixed roster and returns the created ids in
// input order.
func seedRoster(t *testing.T, s *Store) []string {
	t.Helper()
	rows := []map[string]any{
		{"name": "Ana Paredes", "studentId": 1001, "nationalId": "0911111111", "course": "1ro Bach A", "level": "bach"},
		{"name": "Bruno Vera", "studentId": 1002, "nationalId": "0922222222", "course": "1ro Bach A", "level": "bach"},
		{"name": "Carla Mena", "studentId": 1003, "course": "1ro Bach A", "level": "bach", "absent": true},
		{"name": "Diego Ruiz", "studentId": 1004, "nationalId": "0944444444", "course": "8vo A", "level": "egb"},
		{"name": "Elena Paz", "studentId": "1005", "course": "8vo A", "level": "egb", "voted": true},
		{"name": "Fabian Lema", "course": "8vo A", "level": "egb"},
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		id, err := s.Create(context.Background(), "students", "STUDENT", value.MustObject(row))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	_, err := s.Create(context.Background(), "students", "TUTOR", value.MustObject(map[string]any{
		"name": "Gloria Tutor", "course": "1ro Bach A",
	}))
	require.NoError(t, err)

	return ids
}

func names(docs []Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Fields.StringField("name"))
	}
	return out
}

func ids(docs []Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.ID)
	}
	return out
}
