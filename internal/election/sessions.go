package election

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/ballotdesk/internal/schema"
	"github.com/roach88/ballotdesk/internal/store"
	"github.com/roach88/ballotdesk/internal/value"
)

// Session is the record of one course load.
type Session struct {
	ID        string
	RosterKey string
	Course    string
	Level     string
	Pending   int
	Voted     int
	Absent    int
	Degraded  bool
	LoadedAt  time.Time
}

// Sessions is the course-load history.
type Sessions struct {
	docs Documents
}

// NewSessions returns the session history over docs.
func NewSessions(docs Documents) *Sessions {
	return &Sessions{docs: docs}
}

// Record appends a session document and returns its id.
func (s *Sessions) Record(ctx context.Context, sess Session) (string, error) {
	id, err := s.docs.Create(ctx, schema.Sessions, TypeSession, value.Object{
		"rosterKey": value.String(sess.RosterKey),
		FieldCourse: value.String(sess.Course),
		FieldLevel:  value.String(sess.Level),
		"pending":   value.Int(sess.Pending),
		"voted":     value.Int(sess.Voted),
		"absent":    value.Int(sess.Absent),
		"degraded":  value.Bool(sess.Degraded),
		"loadedAt":  value.NewTime(sess.LoadedAt),
	})
	if err != nil {
		return "", fmt.Errorf("record session: %w", err)
	}
	return id, nil
}

// ByCourse returns the sessions of course, newest first.
func (s *Sessions) ByCourse(ctx context.Context, course string) ([]Session, error) {
	docs, err := s.docs.Find(ctx, schema.Sessions, store.Query{
		Where:      value.Object{FieldCourse: value.String(course)},
		SortBy:     "loadedAt",
		Descending: true,
	})
	if err != nil {
		return nil, fmt.Errorf("find sessions: %w", err)
	}

	out := make([]Session, len(docs))
	for i, d := range docs {
		f := d.Fields
		out[i] = Session{
			ID:        d.ID,
			RosterKey: f.StringField("rosterKey"),
			Course:    f.StringField(FieldCourse),
			Level:     f.StringField(FieldLevel),
			Pending:   intField(f, "pending"),
			Voted:     intField(f, "voted"),
			Absent:    intField(f, "absent"),
			Degraded:  f.BoolField("degraded"),
		}
		out[i].LoadedAt, _ = f.TimeField("loadedAt")
	}
	return out, nil
}

func intField(o value.Object, key string) int {
	switch v := o[key].(type) {
	case value.Int:
		return int(v)
	case value.Float:
		return int(v)
	}
	return 0
}
