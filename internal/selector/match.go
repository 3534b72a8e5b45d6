package selector

import (
	"regexp"

	"github.com/roach88/ballotdesk/internal/value"
)

// Match evaluates sel against a document view.
//
// Match is the single source of truth for selector semantics. Index lookups in
// the store only narrow the candidate set; every candidate is re-checked here.
func Match(sel Selector, doc value.Object) bool {
	switch s := sel.(type) {
	case nil:
		return true
	case Eq:
		return matchEq(s.Field, s.Value, doc)
	case Ne:
		return !matchEq(s.Field, s.Value, doc)
	case Exists:
		return matchExists(s, doc)
	case Regex:
		return matchRegex(s, doc)
	case Or:
		return matchOr(s, doc)
	case And:
		return matchAnd(s, doc)
	default:
		// Never, or a node Parse does not build.
		return false
	}
}

func matchEq(field string, want value.Value, doc value.Object) bool {
	got, ok := value.Lookup(doc, field)
	if value.IsNull(want) {
		return !ok || value.IsNull(got)
	}
	return ok && value.Equal(got, want)
}

func matchExists(s Exists, doc value.Object) bool {
	got, ok := value.Lookup(doc, s.Field)
	present := ok && !value.IsNull(got)
	return present == s.Want
}

func matchRegex(s Regex, doc value.Object) bool {
	got, ok := value.Lookup(doc, s.Field)
	if !ok {
		return false
	}
	text := value.Text(got)
	if text == "" && value.KindOf(got) != value.KindString {
		return false
	}

	re := s.re
	if re == nil {
		compiled, err := regexp.Compile("(?i)" + s.Pattern)
		if err != nil {
			return false
		}
		re = compiled
	}
	return re.MatchString(text)
}

func matchOr(s Or, doc value.Object) bool {
	for _, b := range s.Branches {
		if Match(b, doc) {
			return true
		}
	}
	return false
}

func matchAnd(s And, doc value.Object) bool {
	for _, t := range s.Terms {
		if !Match(t, doc) {
			return false
		}
	}
	return true
}
