package store

import (
	"time"

	"github.com/roach88/ballotdesk/internal/value"
)

// Envelope field names. They are stored in dedicated columns, never in the
// document body.
const (
	FieldID        = "id"
	FieldType      = "type"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

var envelopeFields = []string{FieldID, FieldType, FieldCreatedAt, FieldUpdatedAt}

// Document is the store's atomic unit.
type Document struct {
	ID        string
	Type      string
	CreatedAt time.Time
	UpdatedAt time.Time

	// Fields holds the domain fields. Envelope keys are ignored on write.
	Fields value.Object
}

// Object returns the view selectors are evaluated against: the domain fields
// plus id, type, createdAt and updatedAt.
func (d Document) Object() value.Object {
	obj := make(value.Object, len(d.Fields)+len(envelopeFields))
	for k, v := range d.Fields {
		obj[k] = v
	}
	obj[FieldID] = value.String(d.ID)
	obj[FieldType] = value.String(d.Type)
	obj[FieldCreatedAt] = value.NewTime(d.CreatedAt)
	obj[FieldUpdatedAt] = value.NewTime(d.UpdatedAt)
	return obj
}

// Clone returns a deep copy of d.
func (d Document) Clone() Document {
	d.Fields = d.Fields.Clone()
	return d
}

// Get returns a domain or envelope field from the document view.
func (d Document) Get(path string) (value.Value, bool) {
	switch path {
	case FieldID:
		return value.String(d.ID), true
	case FieldType:
		return value.String(d.Type), true
	case FieldCreatedAt:
		return value.NewTime(d.CreatedAt), true
	case FieldUpdatedAt:
		return value.NewTime(d.UpdatedAt), true
	}
	return value.Lookup(d.Fields, path)
}

// domainFields copies fields without the envelope keys.
func domainFields(fields value.Object) value.Object {
	out := make(value.Object, len(fields))
	for k, v := range fields {
		switch k {
		case FieldID, FieldType, FieldCreatedAt, FieldUpdatedAt:
			continue
		}
		out[k] = v
	}
	return out.Clone()
}
