package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// MarshalJSON implements json.Marshaler for Object using canonical encoding.
func (o Object) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(o)
}

// MarshalJSON implements json.Marshaler for Array using canonical encoding.
func (a Array) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(a)
}

// MarshalJSON implements json.Marshaler for Time.
func (t Time) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Text())
}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// UnmarshalJSON implements json.Unmarshaler for Object.
// Large integers keep full int64 precision.
func (o *Object) UnmarshalJSON(data []byte) error {
	v, err := Unmarshal(data)
	if err != nil {
		return err
	}
	obj, ok := v.(Object)
	if !ok {
		return fmt.Errorf("expected JSON object, got %s", KindOf(v))
	}
	*o = obj
	return nil
}

// UnmarshalJSON implements json.Unmarshaler for Array.
func (a *Array) UnmarshalJSON(data []byte) error {
	v, err := Unmarshal(data)
	if err != nil {
		return err
	}
	arr, ok := v.(Array)
	if !ok {
		return fmt.Errorf("expected JSON array, got %s", KindOf(v))
	}
	*a = arr
	return nil
}

// Unmarshal decodes JSON into a Value.
//
// Strings written in TimeLayout decode to Time so that documents round-trip
// through storage without losing their timestamp fields.
func Unmarshal(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return fromDecoded(raw)
}

// UnmarshalObject decodes a JSON object. Empty input yields an empty Object.
func UnmarshalObject(data []byte) (Object, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Object{}, nil
	}
	var obj Object
	if err := obj.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return obj, nil
}

func fromDecoded(raw any) (Value, error) {
	switch val := raw.(type) {
	case string:
		if t, ok := parseWireTime(val); ok {
			return t, nil
		}
		return String(val), nil
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			conv, err := fromDecoded(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = conv
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			conv, err := fromDecoded(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj[k] = conv
		}
		return obj, nil
	default:
		return From(val)
	}
}

// parseWireTime accepts only the exact TimeLayout with a Z suffix so that
// arbitrary strings never change kind.
func parseWireTime(s string) (Time, bool) {
	if len(s) != len("2006-01-02T15:04:05.000Z") || s[len(s)-1] != 'Z' {
		return Time{}, false
	}
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return Time{}, false
	}
	return NewTime(t), true
}
