package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// ErrorCode categorizes store errors.
type ErrorCode string

const (
	// ErrCodeUnavailable indicates the underlying database is not open.
	// Callers waiting for readiness retry; the store never retries itself.
	ErrCodeUnavailable ErrorCode = "STORE_UNAVAILABLE"

	// ErrCodeDuplicateKey indicates a unique index or id collision.
	ErrCodeDuplicateKey ErrorCode = "DUPLICATE_KEY"

	// ErrCodeNotFound indicates no document with the given id exists.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
)

// Error is a structured store failure.
type Error struct {
	Code       ErrorCode
	Op         string
	Collection string
	ID         string

	// Index names the violated unique index for DuplicateKey ("id" for a
	// primary key collision).
	Index string

	Err error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Code)
	if e.Collection != "" {
		msg += fmt.Sprintf(" (collection=%s", e.Collection)
		if e.ID != "" {
			msg += fmt.Sprintf(", id=%s", e.ID)
		}
		if e.Index != "" {
			msg += fmt.Sprintf(", index=%s", e.Index)
		}
		msg += ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsUnavailable returns true if the error means the store is not open.
// Uses errors.As to handle wrapped errors.
func IsUnavailable(err error) bool {
	return hasCode(err, ErrCodeUnavailable)
}

// IsDuplicateKey returns true if the error is a unique constraint violation.
func IsDuplicateKey(err error) bool {
	return hasCode(err, ErrCodeDuplicateKey)
}

// IsNotFound returns true if the error reports a missing document.
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

func hasCode(err error, code ErrorCode) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

func unavailable(op string, err error) *Error {
	return &Error{Code: ErrCodeUnavailable, Op: op, Err: err}
}

func notFound(op, collection, id string) *Error {
	return &Error{Code: ErrCodeNotFound, Op: op, Collection: collection, ID: id}
}

func duplicateKey(op, collection, id, index string) *Error {
	return &Error{Code: ErrCodeDuplicateKey, Op: op, Collection: collection, ID: id, Index: index}
}

// classify maps driver errors onto store error codes. Errors that do not map
// are returned wrapped with op.
func classify(op, collection, id string, err error) error {
	if err == nil {
		return nil
	}

	var se *Error
	if errors.As(err, &se) {
		return err
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintPrimaryKey:
			return duplicateKey(op, collection, id, "id")
		case sqlite3.ErrConstraintUnique:
			return duplicateKey(op, collection, id, "")
		}
	}

	if errors.Is(err, sql.ErrConnDone) {
		return unavailable(op, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}
