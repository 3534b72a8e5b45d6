// Package sessioncache holds the optimistic per-course student status cache
// and its persistence.
//
// A CourseSessionCache is a disposable projection: the reconciliation engine
// can rebuild it at any time from the document store and the vote log. It is
// persisted so that the last known state survives a restart and can be
// served when the store is unavailable.
package sessioncache

import (
	"maps"
	"slices"
	"time"
)

// Status is a student's voting status within a course session.
type Status string

const (
	StatusPending Status = "pending"
	StatusVoted   Status = "voted"
	StatusAbsent  Status = "absent"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusVoted, StatusAbsent:
		return true
	}
	return false
}

// StatusRecord is one student's status in one course.
type StatusRecord struct {
	StudentID string     `json:"studentId" yaml:"studentId"`
	Status    Status     `json:"status" yaml:"status"`
	VotedAt   *time.Time `json:"votedAt" yaml:"votedAt"`
	IsAbsent  bool       `json:"isAbsent" yaml:"isAbsent"`
}

// Normalized repairs statuses that contradict the absence flag: an absent
// status without the flag is a stale pending, and a flagged pending record
// is absent.
func (r StatusRecord) Normalized() StatusRecord {
	switch {
	case r.Status == StatusAbsent && !r.IsAbsent:
		r.Status = StatusPending
	case r.Status == StatusPending && r.IsAbsent:
		r.Status = StatusAbsent
	case !r.Status.Valid():
		r.Status = StatusPending
	}
	return r
}

// Equal reports whether two records carry the same state.
func (r StatusRecord) Equal(o StatusRecord) bool {
	if r.StudentID != o.StudentID || r.Status != o.Status || r.IsAbsent != o.IsAbsent {
		return false
	}
	switch {
	case r.VotedAt == nil && o.VotedAt == nil:
		return true
	case r.VotedAt == nil || o.VotedAt == nil:
		return false
	}
	return r.VotedAt.Equal(*o.VotedAt)
}

// CourseSessionCache is the optimistic status set of one course.
type CourseSessionCache struct {
	Course  string                  `json:"course"`
	Records map[string]StatusRecord `json:"records"`

	// Unsynced marks records whose last mutation has not reached the store.
	Unsynced map[string]bool `json:"unsynced,omitempty"`

	SavedAt time.Time `json:"savedAt"`
}

// New returns an empty cache for course.
func New(course string) CourseSessionCache {
	return CourseSessionCache{
		Course:   course,
		Records:  make(map[string]StatusRecord),
		Unsynced: make(map[string]bool),
	}
}

// Clone returns a deep copy.
func (c CourseSessionCache) Clone() CourseSessionCache {
	out := c
	out.Records = make(map[string]StatusRecord, len(c.Records))
	for id, r := range c.Records {
		if r.VotedAt != nil {
			t := *r.VotedAt
			r.VotedAt = &t
		}
		out.Records[id] = r
	}
	out.Unsynced = maps.Clone(c.Unsynced)
	if out.Unsynced == nil {
		out.Unsynced = make(map[string]bool)
	}
	return out
}

// Merge combines the cache with store-derived records. Ids only in the cache
// are kept (normalized). For ids in both, the derived record wins unless the
// cached one is unsynced, in which case the user's last action is kept.
func (c CourseSessionCache) Merge(derived map[string]StatusRecord) CourseSessionCache {
	out := c.Clone()
	for id, cached := range out.Records {
		if _, ok := derived[id]; !ok {
			out.Records[id] = cached.Normalized()
		}
	}
	for id, r := range derived {
		if out.Unsynced[id] {
			if _, ok := out.Records[id]; ok {
				continue
			}
		}
		out.Records[id] = r
	}
	for id := range out.Unsynced {
		if _, ok := out.Records[id]; !ok {
			delete(out.Unsynced, id)
		}
	}
	return out
}

// Set stores r, marking it unsynced or synced.
func (c *CourseSessionCache) Set(r StatusRecord, unsynced bool) {
	if c.Records == nil {
		c.Records = make(map[string]StatusRecord)
	}
	if c.Unsynced == nil {
		c.Unsynced = make(map[string]bool)
	}
	c.Records[r.StudentID] = r
	if unsynced {
		c.Unsynced[r.StudentID] = true
	} else {
		delete(c.Unsynced, r.StudentID)
	}
}

// IDs returns the record ids in sorted order.
func (c CourseSessionCache) IDs() []string {
	return slices.Sorted(maps.Keys(c.Records))
}

// UnsyncedIDs returns the unsynced record ids in sorted order.
func (c CourseSessionCache) UnsyncedIDs() []string {
	return slices.Sorted(maps.Keys(c.Unsynced))
}
