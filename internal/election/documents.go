package election

import (
	"context"
	"errors"

	"github.com/roach88/ballotdesk/internal/store"
	"github.com/roach88/ballotdesk/internal/value"
)

// Documents is the subset of the document store the election collections use.
type Documents interface {
	Get(ctx context.Context, collection, id string) (store.Document, error)
	Find(ctx context.Context, collection string, q store.Query) ([]store.Document, error)
	Create(ctx context.Context, collection, docType string, fields value.Object) (string, error)
	Update(ctx context.Context, collection string, doc store.Document) (string, error)
	Delete(ctx context.Context, collection, id string) (string, error)
	Clear(ctx context.Context, collection string) (int, error)
}

// Document types.
const (
	TypeStudent = "STUDENT"
	TypeVote    = "VOTE"
	TypeSession = "SESSION"
	TypeSetting = "SETTING"
	TypeList    = "LIST"
)

var (
	// ErrStudentNotFound is returned when no identifier form matches.
	ErrStudentNotFound = errors.New("student not found")

	// ErrAlreadyVoted is returned when a student already has a vote record.
	ErrAlreadyVoted = errors.New("student already voted")

	// ErrUnknownChoice is returned for a vote naming no candidate list.
	ErrUnknownChoice = errors.New("unknown choice")
)
