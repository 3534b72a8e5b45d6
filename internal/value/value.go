package value

import (
	"fmt"
	"slices"
	"time"
	"unicode/utf16"
)

// Value is a sealed interface representing the closed set of document value kinds.
// Only Null, String, Int, Float, Bool, Time, Array and Object implement it.
type Value interface {
	value() // Sealed - only types in this package implement it
}

// Kind identifies the concrete type behind a Value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindTime
	KindArray
	KindObject
)

// String returns the lower-case kind name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindTime:
		return "time"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Null represents an explicit JSON null.
type Null struct{}

func (Null) value() {}

// String is a text value.
type String string

func (String) value() {}

// Int is an integral number. JSON numbers without fraction or exponent decode to Int.
type Int int64

func (Int) value() {}

// Float is a non-integral number.
type Float float64

func (Float) value() {}

// Bool is a boolean value.
type Bool bool

func (Bool) value() {}

// Time is a timestamp. Stored and compared at millisecond precision in UTC.
type Time time.Time

func (Time) value() {}

// Array is an ordered list of values.
type Array []Value

func (Array) value() {}

// Object maps field names to values. Use SortedKeys for deterministic iteration.
type Object map[string]Value

func (Object) value() {}

// TimeLayout is the wire format for Time values.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// NewTime truncates t to milliseconds and converts it to UTC.
func NewTime(t time.Time) Time {
	return Time(t.UTC().Truncate(time.Millisecond))
}

// Std returns the time.Time behind a Time value.
func (t Time) Std() time.Time {
	return time.Time(t)
}

// Text returns the wire representation of t.
func (t Time) Text() string {
	return time.Time(t).UTC().Format(TimeLayout)
}

// KindOf reports the kind of v. A nil Value is reported as KindNull.
func KindOf(v Value) Kind {
	switch v.(type) {
	case nil, Null:
		return KindNull
	case String:
		return KindString
	case Int:
		return KindInt
	case Float:
		return KindFloat
	case Bool:
		return KindBool
	case Time:
		return KindTime
	case Array:
		return KindArray
	case Object:
		return KindObject
	default:
		return KindNull
	}
}

// IsNull reports whether v is nil or Null.
func IsNull(v Value) bool {
	return KindOf(v) == KindNull
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// Go's sort.Strings orders by UTF-8 bytes, which differs for some inputs.
func (o Object) SortedKeys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

// Clone returns a deep copy of o.
func (o Object) Clone() Object {
	if o == nil {
		return nil
	}
	out := make(Object, len(o))
	for k, v := range o {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v Value) Value {
	switch val := v.(type) {
	case Object:
		return val.Clone()
	case Array:
		arr := make(Array, len(val))
		for i, elem := range val {
			arr[i] = cloneValue(elem)
		}
		return arr
	default:
		return v
	}
}

// StringField returns the string at key, or "" when absent or not text.
// Time values are returned in their wire format.
func (o Object) StringField(key string) string {
	switch v := o[key].(type) {
	case String:
		return string(v)
	case Time:
		return v.Text()
	default:
		return ""
	}
}

// BoolField returns the boolean at key, or false when absent or not a Bool.
func (o Object) BoolField(key string) bool {
	b, ok := o[key].(Bool)
	return ok && bool(b)
}

// TimeField returns the timestamp at key. Strings in TimeLayout or RFC 3339
// are parsed; anything else reports ok=false.
func (o Object) TimeField(key string) (time.Time, bool) {
	switch v := o[key].(type) {
	case Time:
		return v.Std(), true
	case String:
		for _, layout := range []string{TimeLayout, time.RFC3339Nano} {
			if t, err := time.Parse(layout, string(v)); err == nil {
				return t.UTC(), true
			}
		}
	case Int:
		// Epoch milliseconds, as written by older clients.
		return time.UnixMilli(int64(v)).UTC(), true
	}
	return time.Time{}, false
}

// Text renders a scalar value as plain text for identifier comparisons.
// Int 1042 and String "1042" render identically. Non-scalars render as "".
func Text(v Value) string {
	switch val := v.(type) {
	case String:
		return string(val)
	case Int:
		return fmt.Sprintf("%d", int64(val))
	case Float:
		return formatFloat(float64(val))
	case Bool:
		if val {
			return "true"
		}
		return "false"
	case Time:
		return val.Text()
	default:
		return ""
	}
}

// compareUTF16 compares strings by UTF-16 code units as required by RFC 8785.
func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	default:
		return 0
	}
}
