package reconcile

import (
	"fmt"
	"sort"

	"github.com/roach88/ballotdesk/internal/sessioncache"
)

// StatusRecord is one student's status in one course.
type StatusRecord = sessioncache.StatusRecord

// Status is a student's voting status.
type Status = sessioncache.Status

// Status values.
const (
	StatusPending = sessioncache.StatusPending
	StatusVoted   = sessioncache.StatusVoted
	StatusAbsent  = sessioncache.StatusAbsent
)

// SessionContext is supplied by the authentication collaborator at session
// start.
type SessionContext struct {
	RosterKey string `json:"rosterKey" yaml:"rosterKey"`
	Course    string `json:"course" yaml:"course"`
	Level     string `json:"level" yaml:"level"`
}

// FailureCode categorizes a degraded load.
type FailureCode string

const (
	// FailureStoreUnavailable means the document store is not open.
	FailureStoreUnavailable FailureCode = "STORE_UNAVAILABLE"

	// FailureStoreError means a store read failed for another reason.
	FailureStoreError FailureCode = "STORE_ERROR"
)

// Failure is the structured reason a view is degraded.
type Failure struct {
	Code    FailureCode `json:"code"`
	Message string      `json:"message"`
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

// View is the reconciled status of one course.
type View struct {
	// Course is the roster's course name. It differs from Requested when the
	// course was found by fuzzy match.
	Course    string `json:"course"`
	Requested string `json:"requested,omitempty"`

	// Records are sorted by student id.
	Records []StatusRecord `json:"records"`

	// Unsynced lists records whose last mutation has not reached the store.
	Unsynced []string `json:"unsynced,omitempty"`

	// Degraded views are served from the optimistic cache only.
	Degraded bool     `json:"degraded"`
	Failure  *Failure `json:"failure,omitempty"`
}

// Record returns the record of studentID.
func (v View) Record(studentID string) (StatusRecord, bool) {
	i := sort.Search(len(v.Records), func(i int) bool {
		return v.Records[i].StudentID >= studentID
	})
	if i < len(v.Records) && v.Records[i].StudentID == studentID {
		return v.Records[i], true
	}
	return StatusRecord{}, false
}

// Counts tallies records by status.
type Counts struct {
	Pending int `json:"pending"`
	Voted   int `json:"voted"`
	Absent  int `json:"absent"`
}

// Counts tallies the view.
func (v View) Counts() Counts {
	var c Counts
	for _, r := range v.Records {
		switch r.Status {
		case StatusVoted:
			c.Voted++
		case StatusAbsent:
			c.Absent++
		default:
			c.Pending++
		}
	}
	return c
}

func viewFrom(c sessioncache.CourseSessionCache, requested string) View {
	v := View{
		Course:   c.Course,
		Records:  make([]StatusRecord, 0, len(c.Records)),
		Unsynced: c.UnsyncedIDs(),
	}
	if requested != c.Course {
		v.Requested = requested
	}
	for _, id := range c.IDs() {
		v.Records = append(v.Records, c.Records[id])
	}
	if len(v.Unsynced) == 0 {
		v.Unsynced = nil
	}
	return v
}

// DriftKind names how the cache disagreed with the store.
type DriftKind string

const (
	// DriftMissing means the store has a record the cache lacks.
	DriftMissing DriftKind = "missing"

	// DriftMismatch means the cached record differs from the store.
	DriftMismatch DriftKind = "mismatch"
)

// Drift is one corrected disagreement between the cache and the store.
type Drift struct {
	Course    string        `json:"course"`
	StudentID string        `json:"studentId"`
	Kind      DriftKind     `json:"kind"`
	Cached    *StatusRecord `json:"cached,omitempty"`
	Store     StatusRecord  `json:"store"`
}
