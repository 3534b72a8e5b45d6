package store

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/ballotdesk/internal/schema"
	"github.com/roach88/ballotdesk/internal/value"
)

// IDGenerator produces the random suffix for documents without a natural key.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 suffixes.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// assignID picks the id for a new document: an explicit "id" field wins, then
// the collection's natural key, then a generated suffix. Derived ids are
// prefixed with the lower-cased document type.
func (s *Store) assignID(coll *schema.Collection, docType string, fields value.Object) (string, error) {
	if id, ok := fields[FieldID].(value.String); ok && id != "" {
		return string(id), nil
	}

	prefix := strings.ToLower(docType)

	if key, ok := naturalKey(coll, fields); ok {
		hash, err := value.NaturalKeyID(coll.Name, key)
		if err != nil {
			return "", fmt.Errorf("natural key: %w", err)
		}
		return prefix + "_" + hash, nil
	}

	return prefix + "_" + s.ids.Generate(), nil
}

// naturalKey collects the natural key values. ok is false when the collection
// declares none or any key field is missing or null.
func naturalKey(coll *schema.Collection, fields value.Object) (value.Array, bool) {
	if len(coll.NaturalKey) == 0 {
		return nil, false
	}
	key := make(value.Array, 0, len(coll.NaturalKey))
	for _, f := range coll.NaturalKey {
		v, ok := value.Lookup(fields, f)
		if !ok || value.IsNull(v) {
			return nil, false
		}
		key = append(key, v)
	}
	return key, true
}
