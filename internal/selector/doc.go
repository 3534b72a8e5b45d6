// Package selector implements the declarative selector mini-language used to
// query document collections.
//
// A selector is written as an object:
//
//	{"course": "1ro Bach A"}                         field equality
//	{"course": "1ro Bach A", "type": "STUDENT"}     implicit conjunction
//	{"absent": {"$ne": true}}                        inequality
//	{"nationalId": {"$exists": true}}                presence
//	{"name": {"$regex": "pare"}}                     case-insensitive substring
//	{"$or": [{"studentId": 1042}, {"nationalId": "0912345678"}]}
//
// Parse turns that object into a tree of sealed Selector nodes; Match evaluates
// a tree against one document. There is no explicit $and: conjunction is only
// expressed by listing several fields.
//
// MALFORMED SELECTORS:
//
// Unknown operators, wrongly typed operands and invalid patterns do not fail the
// read path. Parse returns a Never node together with an error wrapping
// ErrMalformed; Never matches no document. Callers log the error and carry on.
//
// CACHEABILITY:
//
// Analyze reports whether a selector is a pure conjunction of equalities. Only
// such selectors can be cached, and only their equality fields are considered
// by the store's index planner. Anything with $regex, $ne, $exists or $or is
// evaluated by scanning.
package selector
