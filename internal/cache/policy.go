package cache

import (
	"fmt"

	"github.com/roach88/ballotdesk/internal/schema"
	"github.com/roach88/ballotdesk/internal/selector"
	"github.com/roach88/ballotdesk/internal/store"
	"github.com/roach88/ballotdesk/internal/value"
)

// Policy decides cacheability and derives cache keys.
type Policy struct {
	Catalog *schema.Catalog
}

// Key returns the cache key for a find. ok is false, with a reason, when the
// query must not be cached.
//
// The key hashes the collection, the rendered selector, limit and sort. The
// selector is parsed and rendered first, so structurally identical queries
// share a key whatever order their fields were written in.
func (p Policy) Key(collection string, q store.Query) (key string, ok bool, reason string) {
	sel, err := selector.Parse(q.Where)
	if err != nil {
		return "", false, err.Error()
	}

	a := selector.Analyze(sel)
	if !a.Cacheable {
		return "", false, fmt.Sprintf("not a pure equality: %v", a.Reasons)
	}

	fields := a.Fields()
	if !p.Catalog.Collection(collection).IsCacheable(fields) {
		return "", false, fmt.Sprintf("field set %v not on the %s allow-list", fields, collection)
	}

	h, err := value.Hash(value.DomainQuery, value.Object{
		"collection": value.String(collection),
		"where":      selector.Render(sel),
		"limit":      value.Int(q.Limit),
		"sortBy":     value.String(q.SortBy),
		"descending": value.Bool(q.Descending),
	})
	if err != nil {
		return "", false, err.Error()
	}
	return h, true, ""
}
