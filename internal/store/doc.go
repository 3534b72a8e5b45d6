// Package store provides the SQLite-backed document store.
//
// Documents live in typed collections. Each document carries an envelope
// (id, type, createdAt, updatedAt) in dedicated columns and its domain fields
// as canonical JSON. Secondary indexes declared in the schema catalog are
// materialised in index_entries and rebuilt from document contents alone.
//
// # Invariants
//
// Index use is an optimisation only:
//   - Find narrows candidates through at most one index, then re-checks every
//     candidate with selector.Match against the full selector
//   - A document missing any indexed field has no entry in that index, so
//     equalities with null are never answered from an index
//   - Index keys are canonical encodings; values that are value.Equal share a key
//
// Identity:
//   - id is immutable once assigned; Update is a full replace keyed by id
//   - Unique indexes reject colliding values with DuplicateKey, synchronously
//
// Failure semantics:
//   - A closed or unopened store returns StoreUnavailable; callers retry
//   - BulkCreate attempts each row on its own and reports per-row results
//   - Malformed selectors match nothing and are logged, never returned
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Index entries cascade with their document
package store
