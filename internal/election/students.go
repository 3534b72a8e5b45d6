package election

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/roach88/ballotdesk/internal/schema"
	"github.com/roach88/ballotdesk/internal/store"
	"github.com/roach88/ballotdesk/internal/value"
)

// Student document fields.
const (
	FieldName       = "name"
	FieldStudentID  = "studentId"
	FieldNationalID = "nationalId"
	FieldCourse     = "course"
	FieldLevel      = "level"
	FieldVoted      = "voted"
	FieldVotado     = "votado" // legacy alias of voted
	FieldVotedAt    = "votedAt"
	FieldAbsent     = "absent"
	FieldAbsentAt   = "absentAt"
)

// Student is the typed view of a student document.
type Student struct {
	ID         string
	Name       string
	StudentID  string // external identifier as text, "" when missing
	NationalID string
	Course     string
	Level      string
	Voted      bool
	VotedAt    time.Time
	Absent     bool
	AbsentAt   time.Time

	doc store.Document
}

// StudentFromDocument decodes a student document. voted and the legacy
// votado flag are both honoured.
func StudentFromDocument(doc store.Document) Student {
	f := doc.Fields
	s := Student{
		ID:         doc.ID,
		Name:       f.StringField(FieldName),
		StudentID:  value.Text(f[FieldStudentID]),
		NationalID: value.Text(f[FieldNationalID]),
		Course:     f.StringField(FieldCourse),
		Level:      f.StringField(FieldLevel),
		Voted:      f.BoolField(FieldVoted) || f.BoolField(FieldVotado),
		Absent:     f.BoolField(FieldAbsent),
		doc:        doc.Clone(),
	}
	s.VotedAt, _ = f.TimeField(FieldVotedAt)
	s.AbsentAt, _ = f.TimeField(FieldAbsentAt)
	return s
}

// Key is the identifier status records and votes use: the external
// identifier when present, else the document id.
func (s Student) Key() string {
	if s.StudentID != "" {
		return s.StudentID
	}
	return s.ID
}

// Identifiers returns the distinct non-empty identifiers of the student in
// resolution order: document id, external identifier, national id.
func (s Student) Identifiers() []string {
	out := make([]string, 0, 3)
	for _, id := range []string{s.ID, s.StudentID, s.NationalID} {
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

// Document returns a copy of the document the student was decoded from.
func (s Student) Document() store.Document {
	return s.doc.Clone()
}

// Resolve finds a student in roster by identifier. All students are tried by
// document id first, then by external identifier, then by national id; the
// first match wins.
func Resolve(roster []Student, identifier string) (Student, bool) {
	if identifier == "" {
		return Student{}, false
	}
	for _, pick := range []func(Student) string{
		func(s Student) string { return s.ID },
		func(s Student) string { return s.StudentID },
		func(s Student) string { return s.NationalID },
	} {
		for _, s := range roster {
			if pick(s) == identifier {
				return s, true
			}
		}
	}
	return Student{}, false
}

// Students is the roster collection.
type Students struct {
	docs Documents
}

// NewStudents returns the roster over docs.
func NewStudents(docs Documents) *Students {
	return &Students{docs: docs}
}

// ByCourse returns the students whose course field equals course exactly.
func (s *Students) ByCourse(ctx context.Context, course string) ([]Student, error) {
	return s.find(ctx, value.Object{
		store.FieldType: value.String(TypeStudent),
		FieldCourse:     value.String(course),
	})
}

// All returns every student.
func (s *Students) All(ctx context.Context) ([]Student, error) {
	return s.find(ctx, value.Object{store.FieldType: value.String(TypeStudent)})
}

// Courses returns the distinct course names on the roster, sorted.
func (s *Students) Courses(ctx context.Context) ([]string, error) {
	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	courses := []string{}
	for _, st := range all {
		if st.Course != "" && !seen[st.Course] {
			seen[st.Course] = true
			courses = append(courses, st.Course)
		}
	}
	slices.Sort(courses)
	return courses, nil
}

func (s *Students) find(ctx context.Context, where value.Object) ([]Student, error) {
	docs, err := s.docs.Find(ctx, schema.Students, store.Query{Where: where, SortBy: FieldName})
	if err != nil {
		return nil, fmt.Errorf("find students: %w", err)
	}
	out := make([]Student, len(docs))
	for i, d := range docs {
		out[i] = StudentFromDocument(d)
	}
	return out, nil
}

// Resolve looks a student up in the store by document id, then external
// identifier, then national id. Returns ErrStudentNotFound when none match.
func (s *Students) Resolve(ctx context.Context, identifier string) (Student, error) {
	if identifier == "" {
		return Student{}, ErrStudentNotFound
	}

	doc, err := s.docs.Get(ctx, schema.Students, identifier)
	switch {
	case err == nil:
		return StudentFromDocument(doc), nil
	case !store.IsNotFound(err):
		return Student{}, fmt.Errorf("resolve student %q: %w", identifier, err)
	}

	candidates := []value.Object{{FieldStudentID: value.String(identifier)}}
	if n, err := strconv.ParseInt(identifier, 10, 64); err == nil {
		candidates = append(candidates, value.Object{FieldStudentID: value.Int(n)})
	}
	candidates = append(candidates, value.Object{FieldNationalID: value.String(identifier)})

	for _, where := range candidates {
		docs, err := s.docs.Find(ctx, schema.Students, store.Query{Where: where, Limit: 1})
		if err != nil {
			return Student{}, fmt.Errorf("resolve student %q: %w", identifier, err)
		}
		if len(docs) > 0 {
			return StudentFromDocument(docs[0]), nil
		}
	}
	return Student{}, ErrStudentNotFound
}

// Flags is the voting state written back to a student document.
type Flags struct {
	Voted    bool
	VotedAt  time.Time // zero clears votedAt
	Absent   bool
	AbsentAt time.Time // zero clears absentAt
}

// Flags returns the student's current flags.
func (s Student) Flags() Flags {
	return Flags{Voted: s.Voted, VotedAt: s.VotedAt, Absent: s.Absent, AbsentAt: s.AbsentAt}
}

// SetFlags replaces the voting flags of the student document with id. The
// legacy votado flag is rewritten as voted. Returns the updated student.
func (s *Students) SetFlags(ctx context.Context, id string, f Flags) (Student, error) {
	doc, err := s.docs.Get(ctx, schema.Students, id)
	if err != nil {
		return Student{}, fmt.Errorf("set flags %s: %w", id, err)
	}

	fields := doc.Fields.Clone()
	delete(fields, FieldVotado)
	fields[FieldVoted] = value.Bool(f.Voted)
	fields[FieldAbsent] = value.Bool(f.Absent)
	fields[FieldVotedAt] = timeOrNull(f.VotedAt)
	fields[FieldAbsentAt] = timeOrNull(f.AbsentAt)
	doc.Fields = fields

	if _, err := s.docs.Update(ctx, schema.Students, doc); err != nil {
		return Student{}, fmt.Errorf("set flags %s: %w", id, err)
	}
	return StudentFromDocument(doc), nil
}

func timeOrNull(t time.Time) value.Value {
	if t.IsZero() {
		return value.Null{}
	}
	return value.NewTime(t)
}
