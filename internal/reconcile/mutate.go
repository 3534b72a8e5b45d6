package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/ballotdesk/internal/election"
)

// Mutation is a tutor action on one student.
type Mutation string

const (
	MarkVoted   Mutation = "markVoted"
	MarkAbsent  Mutation = "markAbsent"
	MarkPresent Mutation = "markPresent"
)

// MarkVoted records that the student voted. It clears absence.
func (e *Engine) MarkVoted(ctx context.Context, courseName, identifier string) (StatusRecord, error) {
	return e.Apply(ctx, courseName, identifier, MarkVoted)
}

// MarkAbsent records that the student is absent.
func (e *Engine) MarkAbsent(ctx context.Context, courseName, identifier string) (StatusRecord, error) {
	return e.Apply(ctx, courseName, identifier, MarkAbsent)
}

// MarkPresent clears the student's absence.
func (e *Engine) MarkPresent(ctx context.Context, courseName, identifier string) (StatusRecord, error) {
	return e.Apply(ctx, courseName, identifier, MarkPresent)
}

// Apply performs m on the student named by identifier in course.
//
// The optimistic record is updated first. The student is looked up in the
// loaded roster, then in the store by every identifier form; when found, the
// student document is updated. A store miss or write failure leaves the
// record unsynced for the next pass and is not an error. The error return
// covers only failures to persist the optimistic cache.
func (e *Engine) Apply(ctx context.Context, courseName, identifier string, m Mutation) (StatusRecord, error) {
	switch m {
	case MarkVoted, MarkAbsent, MarkPresent:
	default:
		return StatusRecord{}, fmt.Errorf("unknown mutation %q", m)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	resolved := e.resolvedName(courseName)
	cached, err := e.loadCache(resolved)
	if err != nil {
		return StatusRecord{}, err
	}

	st, found := election.Resolve(e.rosters[resolved], identifier)
	if !found {
		var lookupErr error
		st, lookupErr = e.students.Resolve(ctx, identifier)
		found = lookupErr == nil
		if !found {
			e.logger.Warn("student not found in store; updating optimistic cache only",
				"course", resolved,
				"student", identifier,
				"error", lookupErr)
		}
	}

	key := identifier
	prev := election.Flags{}
	if found {
		key = st.Key()
		prev = st.Flags()
	} else if rec, ok := cached.Records[identifier]; ok {
		prev = flagsFor(rec, election.Flags{}, e.now())
	}

	next := mutateFlags(m, prev, e.now())
	rec := recordFor(key, next)
	cached.Set(rec, true)

	if found {
		updated, err := e.students.SetFlags(ctx, st.ID, next)
		if err != nil {
			e.writeFailed(string(m), st.ID, err)
		} else {
			cached.Set(rec, false)
			e.replaceInRoster(resolved, updated)
		}
	}

	cached.SavedAt = e.now()
	if err := e.cache.Save(cached); err != nil {
		return rec, fmt.Errorf("%s %s: save session cache: %w", m, identifier, err)
	}

	e.logger.Info("student updated",
		"op", string(m),
		"course", resolved,
		"student", key,
		"status", string(rec.Status),
		"synced", !cached.Unsynced[key])
	return rec, nil
}

// mutateFlags applies m to prev. Voting clears absence; marking absent keeps
// any earlier vote.
func mutateFlags(m Mutation, prev election.Flags, now time.Time) election.Flags {
	next := prev
	switch m {
	case MarkVoted:
		if !prev.Voted || prev.VotedAt.IsZero() {
			next.VotedAt = now
		}
		next.Voted = true
		next.Absent = false
		next.AbsentAt = time.Time{}
	case MarkAbsent:
		next.Absent = true
		next.AbsentAt = now
	case MarkPresent:
		next.Absent = false
		next.AbsentAt = time.Time{}
	}
	return next
}

func (e *Engine) replaceInRoster(courseName string, st election.Student) {
	roster := e.rosters[courseName]
	for i := range roster {
		if roster[i].ID == st.ID {
			roster[i] = st
			return
		}
	}
}
