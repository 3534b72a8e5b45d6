package election

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/ballotdesk/internal/schema"
	"github.com/roach88/ballotdesk/internal/store"
	"github.com/roach88/ballotdesk/internal/value"
)

// BlankChoice is the choice id of a blank ballot. It needs no candidate list.
const BlankChoice = "blank"

// Vote log document fields.
const (
	FieldChoiceID  = "choiceId"
	FieldTimestamp = "timestamp"
)

// VoteRecord is one completed ballot.
type VoteRecord struct {
	StudentID string    `json:"studentId" yaml:"studentId"`
	ChoiceID  string    `json:"choiceId" yaml:"choiceId"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Course    string    `json:"course" yaml:"course"`
	Level     string    `json:"level,omitempty" yaml:"level"`
}

func voteFromDocument(doc store.Document) VoteRecord {
	f := doc.Fields
	v := VoteRecord{
		StudentID: value.Text(f[FieldStudentID]),
		ChoiceID:  f.StringField(FieldChoiceID),
		Course:    f.StringField(FieldCourse),
		Level:     f.StringField(FieldLevel),
	}
	v.Timestamp, _ = f.TimeField(FieldTimestamp)
	return v
}

// VoteLog is the append-only vote collection. Records are created once per
// student and only removed by Reset.
type VoteLog struct {
	docs Documents
}

// NewVoteLog returns the vote log over docs.
func NewVoteLog(docs Documents) *VoteLog {
	return &VoteLog{docs: docs}
}

// Cast appends a vote. The choice must name a candidate list unless it is
// BlankChoice. Fails with ErrAlreadyVoted when the student has a record.
func (l *VoteLog) Cast(ctx context.Context, v VoteRecord) (string, error) {
	if v.StudentID == "" {
		return "", fmt.Errorf("cast vote: missing studentId")
	}
	if v.ChoiceID == "" {
		return "", fmt.Errorf("cast vote: %w: empty", ErrUnknownChoice)
	}
	if v.ChoiceID != BlankChoice {
		if _, err := l.docs.Get(ctx, schema.CandidateLists, v.ChoiceID); err != nil {
			if store.IsNotFound(err) {
				return "", fmt.Errorf("cast vote: %w: %s", ErrUnknownChoice, v.ChoiceID)
			}
			return "", fmt.Errorf("cast vote: %w", err)
		}
	}

	id, err := l.docs.Create(ctx, schema.Votes, TypeVote, value.Object{
		FieldStudentID: value.String(v.StudentID),
		FieldChoiceID:  value.String(v.ChoiceID),
		FieldTimestamp: value.NewTime(v.Timestamp),
		FieldCourse:    value.String(v.Course),
		FieldLevel:     value.String(v.Level),
	})
	if err != nil {
		if store.IsDuplicateKey(err) {
			return "", fmt.Errorf("cast vote for %s: %w", v.StudentID, ErrAlreadyVoted)
		}
		return "", fmt.Errorf("cast vote: %w", err)
	}
	return id, nil
}

// All returns every vote record ordered by timestamp.
func (l *VoteLog) All(ctx context.Context) ([]VoteRecord, error) {
	docs, err := l.docs.Find(ctx, schema.Votes, store.Query{SortBy: FieldTimestamp})
	if err != nil {
		return nil, fmt.Errorf("read vote log: %w", err)
	}
	out := make([]VoteRecord, len(docs))
	for i, d := range docs {
		out[i] = voteFromDocument(d)
	}
	return out, nil
}

// ForStudents returns the votes recorded under the given identifiers, keyed
// by identifier.
// Each key is an indexed lookup on the unique studentId index, so the cost
// follows the roster size rather than the size of the log.
func (l *VoteLog) ForStudents(ctx context.Context, keys []string) (map[string]VoteRecord, error) {
	out := make(map[string]VoteRecord, len(keys))
	for _, key := range keys {
		if key == "" {
			continue
		}
		docs, err := l.docs.Find(ctx, schema.Votes, store.Query{
			Where: value.Object{FieldStudentID: value.String(key)},
			Limit: 1,
		})
		if err != nil {
			return nil, fmt.Errorf("read votes for %s: %w", key, err)
		}
		if len(docs) > 0 {
			out[key] = voteFromDocument(docs[0])
		}
	}
	return out, nil
}

// Reset clears the whole log for a new election and returns how many
// records were removed.
func (l *VoteLog) Reset(ctx context.Context) (int, error) {
	n, err := l.docs.Clear(ctx, schema.Votes)
	if err != nil {
		return 0, fmt.Errorf("reset vote log: %w", err)
	}
	return n, nil
}

// IsAlreadyVoted reports whether err is ErrAlreadyVoted.
func IsAlreadyVoted(err error) bool {
	return errors.Is(err, ErrAlreadyVoted)
}
