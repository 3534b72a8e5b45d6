package value

import (
	"math"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Equal reports whether a and b are the same value.
//
// Equality is defined so that Equal(a, b) holds exactly when a and b have the
// same canonical encoding:
//   - Int equals a Float holding exactly the same integer (Int(3) == Float(3));
//     the Int is never rounded to float64
//   - Time equals a String holding its wire text
//   - Strings compare after NFC normalization
//   - Arrays and Objects compare element-wise
//   - nil and Null are equal
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case nil, Null:
		return IsNull(b)
	case String:
		switch bv := b.(type) {
		case String:
			return norm.NFC.String(string(av)) == norm.NFC.String(string(bv))
		case Time:
			return string(av) == bv.Text()
		}
	case Time:
		switch bv := b.(type) {
		case Time:
			return av.Text() == bv.Text()
		case String:
			return av.Text() == string(bv)
		}
	case Int:
		switch bv := b.(type) {
		case Int:
			return av == bv
		case Float:
			return intEqualsFloat(av, bv)
		}
	case Float:
		switch bv := b.(type) {
		case Float:
			return av == bv
		case Int:
			return intEqualsFloat(bv, av)
		}
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Array:
		bv, ok := b.(Array)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Object:
		bv, ok := b.(Object)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, elem := range av {
			other, ok := bv[k]
			if !ok || !Equal(elem, other) {
				return false
			}
		}
		return true
	}
	return false
}

// Lookup resolves a dotted field path ("profile.course") against obj.
// Returns ok=false when any segment is missing or is not an Object.
func Lookup(obj Object, path string) (Value, bool) {
	if v, ok := obj[path]; ok {
		return v, true
	}
	if !strings.Contains(path, ".") {
		return nil, false
	}

	current := Value(obj)
	for _, segment := range strings.Split(path, ".") {
		o, ok := current.(Object)
		if !ok {
			return nil, false
		}
		next, ok := o[segment]
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

// intEqualsFloat reports whether f is integral, inside the int64 range and
// exactly i.
func intEqualsFloat(i Int, f Float) bool {
	x := float64(f)
	if x != math.Trunc(x) || x < -(1<<63) || x >= 1<<63 {
		return false
	}
	return int64(x) == int64(i)
}
