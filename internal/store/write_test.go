package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ballotdesk/internal/testutil"
	"github.com/roach88/ballotdesk/internal/value"
)

func TestCreate_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	input := value.MustObject(map[string]any{
		"name":       "Ana Paredes",
		"studentId":  1042,
		"nationalId": "0912345678",
		"course":     "1ro Bach A",
		"average":    8.5,
		"absent":     false,
		"votedAt":    nil,
		"profile":    map[string]any{"level": "bach"},
	})

	id, err := s.Create(ctx, "students", "STUDENT", input)
	require.NoError(t, err)

	found, err := s.Find(ctx, "students", Query{Where: value.Object{"id": value.String(id)}})
	require.NoError(t, err)
	require.Len(t, found, 1)

	doc := found[0]
	assert.Equal(t, id, doc.ID)
	assert.Equal(t, "STUDENT", doc.Type)
	assert.True(t, value.Equal(input, doc.Fields), "domain fields round-trip: %v", doc.Fields)
	assert.Equal(t, testutil.DefaultEpoch, doc.CreatedAt)
	assert.Equal(t, doc.CreatedAt, doc.UpdatedAt)

	got, err := s.Get(ctx, "students", id)
	require.NoError(t, err)
	assert.True(t, value.Equal(doc.Object(), got.Object()))
}

func TestCreate_IDAssignment(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	explicit, err := s.Create(ctx, "students", "STUDENT", value.Object{
		"id":        value.String("custom-1"),
		"studentId": value.Int(1),
	})
	require.NoError(t, err)
	assert.Equal(t, "custom-1", explicit)

	natural, err := s.Create(ctx, "students", "STUDENT", value.Object{"studentId": value.Int(2)})
	require.NoError(t, err)
	hash, err := value.NaturalKeyID("students", value.Array{value.Int(2)})
	require.NoError(t, err)
	assert.Equal(t, "student_"+hash, natural)

	random, err := s.Create(ctx, "candidateLists", "LIST", value.Object{"name": value.String("Lista A")})
	require.NoError(t, err)
	assert.Equal(t, "list_1", random)
}

func TestCreate_TypeFromFields(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, "sessions", "", value.Object{
		"type":   value.String("SESSION"),
		"course": value.String("8vo A"),
	})
	require.NoError(t, err)

	doc, err := s.Get(ctx, "sessions", id)
	require.NoError(t, err)
	assert.Equal(t, "SESSION", doc.Type)
	_, inBody := doc.Fields["type"]
	assert.False(t, inBody, "envelope fields are not stored in the body")

	_, err = s.Create(ctx, "sessions", "", value.Object{"course": value.String("8vo A")})
	assert.Error(t, err)
}

func TestCreate_DuplicateUniqueIndex(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "students", "STUDENT", value.Object{
		"id": value.String("a"), "studentId": value.Int(7),
	})
	require.NoError(t, err)

	_, err = s.Create(ctx, "students", "STUDENT", value.Object{
		"id": value.String("b"), "studentId": value.Float(7),
	})
	require.Error(t, err)
	assert.True(t, IsDuplicateKey(err))

	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "studentId", se.Index)
	assert.Equal(t, "students", se.Collection)

	n, err := s.Count(ctx, "students")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "a rejected create leaves nothing behind")
}

func TestCreate_DuplicateID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "sessions", "SESSION", value.Object{"id": value.String("s1")})
	require.NoError(t, err)

	_, err = s.Create(ctx, "sessions", "SESSION", value.Object{"id": value.String("s1")})
	require.Error(t, err)
	assert.True(t, IsDuplicateKey(err))

	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "id", se.Index)
}

func TestCreate_SameIDInOtherCollection(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "sessions", "SESSION", value.Object{"id": value.String("x")})
	require.NoError(t, err)
	_, err = s.Create(ctx, "config", "SETTING", value.Object{"id": value.String("x")})
	assert.NoError(t, err)
}

func TestUpdate_ReplacesDocument(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, "students", "STUDENT", value.MustObject(map[string]any{
		"name": "Ana", "studentId": 1, "course": "8vo A", "nickname": "ani",
	}))
	require.NoError(t, err)
	before, err := s.Get(ctx, "students", id)
	require.NoError(t, err)

	_, err = s.Update(ctx, "students", Document{
		ID:     id,
		Fields: value.MustObject(map[string]any{"name": "Ana", "studentId": 1, "course": "9no A"}),
	})
	require.NoError(t, err)

	after, err := s.Get(ctx, "students", id)
	require.NoError(t, err)
	assert.Equal(t, "STUDENT", after.Type, "empty type keeps the stored type")
	assert.Equal(t, before.CreatedAt, after.CreatedAt)
	assert.True(t, after.UpdatedAt.After(before.UpdatedAt))
	assert.Equal(t, "9no A", after.Fields.StringField("course"))
	_, kept := after.Fields["nickname"]
	assert.False(t, kept, "update is a full replace")

	old, err := s.Find(ctx, "students", Query{Where: value.Object{"course": value.String("8vo A")}})
	require.NoError(t, err)
	assert.Empty(t, old, "index entries follow the new contents")

	moved, err := s.Find(ctx, "students", Query{Where: value.Object{"course": value.String("9no A")}})
	require.NoError(t, err)
	assert.Equal(t, []string{id}, ids(moved))
}

func TestUpdate_LastWriteWins(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, "config", "SETTING", value.Object{"key": value.String("phase"), "value": value.String("setup")})
	require.NoError(t, err)

	for _, v := range []string{"voting", "closed"} {
		_, err := s.Update(ctx, "config", Document{ID: id, Fields: value.Object{
			"key": value.String("phase"), "value": value.String(v),
		}})
		require.NoError(t, err)
	}

	doc, err := s.Get(ctx, "config", id)
	require.NoError(t, err)
	assert.Equal(t, "closed", doc.Fields.StringField("value"))
}

func TestUpdate_UniqueConflictLeavesDocumentIntact(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	a, err := s.Create(ctx, "students", "STUDENT", value.Object{"studentId": value.Int(1), "name": value.String("A")})
	require.NoError(t, err)
	_, err = s.Create(ctx, "students", "STUDENT", value.Object{"studentId": value.Int(2), "name": value.String("B")})
	require.NoError(t, err)

	_, err = s.Update(ctx, "students", Document{ID: a, Fields: value.Object{
		"studentId": value.Int(2), "name": value.String("A2"),
	}})
	require.Error(t, err)
	assert.True(t, IsDuplicateKey(err))

	doc, err := s.Get(ctx, "students", a)
	require.NoError(t, err)
	assert.Equal(t, "A", doc.Fields.StringField("name"))

	found, err := s.Find(ctx, "students", Query{Where: value.Object{"studentId": value.Int(1)}})
	require.NoError(t, err)
	assert.Equal(t, []string{a}, ids(found))
}

func TestUpdate_KeepsOwnUniqueValue(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, "students", "STUDENT", value.Object{"studentId": value.Int(1)})
	require.NoError(t, err)

	_, err = s.Update(ctx, "students", Document{ID: id, Fields: value.Object{
		"studentId": value.Int(1), "absent": value.Bool(true),
	}})
	assert.NoError(t, err)
}

func TestUpdate_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.Update(context.Background(), "students", Document{ID: "missing", Fields: value.Object{}})
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestDelete(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	roster := seedRoster(t, s)

	deleted, err := s.Delete(ctx, "students", roster[0])
	require.NoError(t, err)
	assert.Equal(t, roster[0], deleted)

	_, err = s.Get(ctx, "students", roster[0])
	assert.True(t, IsNotFound(err))

	found, err := s.Find(ctx, "students", Query{Where: value.Object{"studentId": value.Int(1001)}})
	require.NoError(t, err)
	assert.Empty(t, found)

	_, err = s.Delete(ctx, "students", roster[0])
	assert.True(t, IsNotFound(err))

	// The unique value is free again.
	_, err = s.Create(ctx, "students", "STUDENT", value.Object{"studentId": value.Int(1001)})
	assert.NoError(t, err)
}

func TestClear(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedRoster(t, s)
	_, err := s.Create(ctx, "votes", "VOTE", value.Object{"studentId": value.Int(1001)})
	require.NoError(t, err)

	n, err := s.Clear(ctx, "students")
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"votes": 1}, counts)

	var entries int
	require.NoError(t, s.db.QueryRow(
		"SELECT COUNT(*) FROM index_entries WHERE collection = 'students'",
	).Scan(&entries))
	assert.Zero(t, entries)
}

func TestBulkCreate_PartialFailure(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rows := []value.Object{
		value.MustObject(map[string]any{"name": "S1", "studentId": 1, "course": "1ro Bach A"}),
		value.MustObject(map[string]any{"name": "S2", "studentId": 2, "course": "1ro Bach A"}),
		value.MustObject(map[string]any{"name": "S3", "studentId": 3, "course": "1ro Bach A"}),
		value.MustObject(map[string]any{"name": "S2 again", "id": "dup", "studentId": 2, "course": "1ro Bach A"}),
		value.MustObject(map[string]any{"name": "S4", "studentId": 4, "course": "1ro Bach A"}),
		value.MustObject(map[string]any{"name": "S5", "studentId": 5, "course": "1ro Bach A"}),
	}

	result, err := s.BulkCreate(ctx, "students", "STUDENT", rows)
	require.NoError(t, err)

	assert.Equal(t, 5, result.Successful)
	assert.Equal(t, 6, result.Total)
	require.Len(t, result.Results, 6)

	failed := result.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, 3, failed[0].Index)
	assert.True(t, IsDuplicateKey(failed[0].Err))
	assert.Empty(t, failed[0].ID)

	for i, item := range result.Results {
		if i == 3 {
			continue
		}
		assert.True(t, item.OK(), "row %d", i)
		assert.NotEmpty(t, item.ID)
	}

	n, err := s.Count(ctx, "students")
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestBulkCreate_CancelledContext(t *testing.T) {
	s := createTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := s.BulkCreate(ctx, "students", "STUDENT", []value.Object{{"studentId": value.Int(1)}})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Successful)
	assert.Equal(t, 1, result.Total)
	assert.ErrorIs(t, result.Results[0].Err, context.Canceled)
}

func TestOnWrite_NotifiesAfterCommit(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	var events []WriteEvent
	s.OnWrite(func(ev WriteEvent) { events = append(events, ev) })

	id, err := s.Create(ctx, "students", "STUDENT", value.Object{"studentId": value.Int(1)})
	require.NoError(t, err)
	_, err = s.Create(ctx, "students", "STUDENT", value.Object{"studentId": value.Int(1)})
	require.Error(t, err)
	_, err = s.Update(ctx, "students", Document{ID: id, Fields: value.Object{"studentId": value.Int(1)}})
	require.NoError(t, err)
	_, err = s.Delete(ctx, "students", id)
	require.NoError(t, err)
	_, err = s.Clear(ctx, "votes")
	require.NoError(t, err)

	assert.Equal(t, []WriteEvent{
		{Collection: "students", Op: OpCreate, ID: id},
		{Collection: "students", Op: OpUpdate, ID: id},
		{Collection: "students", Op: OpDelete, ID: id},
		{Collection: "votes", Op: OpClear},
	}, events, "failed writes are not reported")
}

func TestTimestampsUseInjectedClock(t *testing.T) {
	clock := testutil.NewFakeClock(time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC))
	s, err := Open(t.TempDir()+"/clock.db", WithClock(clock.Now))
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	id, err := s.Create(ctx, "sessions", "SESSION", value.Object{})
	require.NoError(t, err)

	clock.Advance(90 * time.Minute)
	_, err = s.Update(ctx, "sessions", Document{ID: id, Fields: value.Object{}})
	require.NoError(t, err)

	doc, err := s.Get(ctx, "sessions", id)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC), doc.CreatedAt)
	assert.Equal(t, time.Date(2026, 2, 1, 13, 30, 0, 0, time.UTC), doc.UpdatedAt)
	assert.Contains(t, doc.ID, "session_")
}
