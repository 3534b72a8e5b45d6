package selector

import (
	"regexp"

	"github.com/roach88/ballotdesk/internal/value"
)

// Selector is a node in a parsed selector tree.
//
// This is a sealed interface - only types in this package implement it, which
// keeps type switches in Match, Analyze and Render exhaustive.
type Selector interface {
	selectorNode()
}

// Eq matches documents whose field equals Value (value.Equal semantics).
// An Eq against Null also matches documents where the field is missing.
type Eq struct {
	Field string
	Value value.Value
}

func (Eq) selectorNode() {}

// Ne is the negation of Eq: missing fields match.
type Ne struct {
	Field string
	Value value.Value
}

func (Ne) selectorNode() {}

// Exists matches when the field's presence equals Want.
// A field holding null counts as absent.
type Exists struct {
	Field string
	Want  bool
}

func (Exists) selectorNode() {}

// Regex matches scalar fields whose text contains a match for Pattern,
// compared case-insensitively.
type Regex struct {
	Field   string
	Pattern string
	re      *regexp.Regexp
}

func (Regex) selectorNode() {}

// Or matches when any branch matches. An empty Or matches nothing.
type Or struct {
	Branches []Selector
}

func (Or) selectorNode() {}

// And matches when every term matches. An empty And matches everything.
type And struct {
	Terms []Selector
}

func (And) selectorNode() {}

// Never matches nothing. Parse produces it for malformed input.
type Never struct {
	Reason string
}

func (Never) selectorNode() {}

// NewRegex compiles a case-insensitive Regex node.
func NewRegex(field, pattern string) (Regex, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return Regex{}, err
	}
	return Regex{Field: field, Pattern: pattern, re: re}, nil
}

// All returns a selector matching every document.
func All() Selector {
	return And{}
}
