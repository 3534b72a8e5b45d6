// Package reconcile derives each student's voting status from three
// independently writable sources and repairs drift between them:
//
//   - the optimistic per-course cache (sessioncache), written first by every
//     tutor action so the UI always reflects the last action
//   - the student documents in the document store, the authoritative roster
//   - the append-only vote log
//
// A course load flushes unsynced optimistic mutations to the store, derives
// records from the roster, upgrades pending records that have a vote, merges
// with the optimistic cache and persists the result. A background pass
// re-validates the cache against the store shortly after each load.
//
// INVARIANTS:
//   - A reconciliation pass on an unchanged store and vote log is idempotent
//   - An absent student is never flipped to voted by a vote record; an
//     explicit present or voted action clears absence first
//   - Store write failures never roll back an optimistic update; the record
//     stays unsynced and is flushed by the next pass
//   - Drift is corrected and logged, never returned as an error
//
// Thread-safety: Engine methods are serialized by a mutex. Background passes
// take the same mutex, so a stale pass for a previous course can run after a
// new course is loaded; it only writes its own course and is idempotent.
package reconcile
