package selector

import (
	"fmt"
	"slices"

	"github.com/roach88/ballotdesk/internal/value"
)

// Analysis summarises what the planner and cache need to know about a selector.
type Analysis struct {
	// Cacheable is true when the selector is a pure conjunction of equalities.
	Cacheable bool

	// Equalities holds the top-level field equalities, including those found in
	// non-cacheable conjunctions. Index lookups are driven from these.
	Equalities map[string]value.Value

	// Reasons explains why a selector is not cacheable.
	Reasons []string
}

// Fields returns the equality field names in sorted order.
func (a Analysis) Fields() []string {
	fields := make([]string, 0, len(a.Equalities))
	for f := range a.Equalities {
		fields = append(fields, f)
	}
	slices.Sort(fields)
	return fields
}

// Analyze inspects a selector tree.
func Analyze(sel Selector) Analysis {
	a := Analysis{Cacheable: true, Equalities: make(map[string]value.Value)}

	var terms []Selector
	switch s := sel.(type) {
	case nil:
	case And:
		terms = s.Terms
	default:
		terms = []Selector{sel}
	}

	for _, term := range terms {
		switch t := term.(type) {
		case Eq:
			if prev, dup := a.Equalities[t.Field]; dup && !value.Equal(prev, t.Value) {
				a.Cacheable = false
				a.Reasons = append(a.Reasons, fmt.Sprintf("conflicting equalities on %q", t.Field))
				continue
			}
			a.Equalities[t.Field] = t.Value
		case Ne:
			a.notCacheable("$ne on %q", t.Field)
		case Exists:
			a.notCacheable("$exists on %q", t.Field)
		case Regex:
			a.notCacheable("$regex on %q", t.Field)
		case Or:
			a.notCacheable("$or with %d branches", len(t.Branches))
		case And:
			a.notCacheable("nested conjunction")
		case Never:
			a.notCacheable("malformed selector")
		default:
			a.notCacheable("unsupported node %T", term)
		}
	}
	return a
}

func (a *Analysis) notCacheable(format string, args ...any) {
	a.Cacheable = false
	a.Reasons = append(a.Reasons, fmt.Sprintf(format, args...))
}
