// Package value provides the tagged-union value model for stored documents.
//
// Documents are schema-light: a collection does not fix the shape of its
// documents, but every field value belongs to a small closed set of kinds.
// Value is a sealed interface implemented only by the types in this package:
//
//	Null, String, Int, Float, Bool, Time, Array, Object
//
// This package imports nothing internal. All other internal packages import
// value; value is the foundational layer.
//
// Key constraints:
//   - Time values are always UTC with millisecond precision on the wire
//   - Canonical encoding sorts object keys by UTF-16 code units (RFC 8785)
//   - Equal values always produce identical canonical bytes, so canonical
//     bytes are safe to use as index keys and cache keys
package value
