// Package election gives typed access to the election collections on top of
// the document store: the student roster, the append-only vote log, session
// records, settings and candidate lists.
//
// Every type here works against the Documents interface, which both
// *store.Store and the cache-fronted *cache.Store satisfy. Roster and
// candidate list reads use selectors on the query cache allow-list, so they
// are served from the cache when one is in front.
package election
