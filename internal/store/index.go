package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/ballotdesk/internal/schema"
	"github.com/roach88/ballotdesk/internal/value"
)

// indexKey computes the entry key of doc for idx: the canonical JSON array of
// the indexed values in index field order. ok is false when any indexed field
// is missing or null, in which case the document is not in the index.
func indexKey(idx schema.Index, doc value.Object) (string, bool, error) {
	vals := make(value.Array, 0, len(idx.Fields))
	for _, f := range idx.Fields {
		v, ok := value.Lookup(doc, f)
		if !ok || value.IsNull(v) {
			return "", false, nil
		}
		vals = append(vals, v)
	}
	key, err := value.MarshalCanonical(vals)
	if err != nil {
		return "", false, fmt.Errorf("index %s: %w", idx.Name, err)
	}
	return string(key), true, nil
}

// lookupKey computes the key for an index lookup from selector equalities.
// Canonical encoding makes this agree with indexKey exactly when the values
// are value.Equal.
func lookupKey(idx schema.Index, eq map[string]value.Value) (string, bool) {
	vals := make(value.Array, 0, len(idx.Fields))
	for _, f := range idx.Fields {
		v, ok := eq[f]
		if !ok || value.IsNull(v) {
			return "", false
		}
		vals = append(vals, v)
	}
	key, err := value.MarshalCanonical(vals)
	if err != nil {
		return "", false
	}
	return string(key), true
}

type indexEntry struct {
	index  schema.Index
	key    string
	unique bool
}

// entriesFor computes all index entries for a document view.
func entriesFor(coll *schema.Collection, doc value.Object) ([]indexEntry, error) {
	entries := []indexEntry{}
	for _, idx := range coll.Indexes {
		key, ok, err := indexKey(idx, doc)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		entries = append(entries, indexEntry{index: idx, key: key, unique: idx.Unique})
	}
	return entries, nil
}

// checkUnique reports DuplicateKey when a unique entry is already held by a
// different document. The partial unique index in schema.sql backs this up.
func checkUnique(ctx context.Context, tx *sql.Tx, op, collection, id string, entries []indexEntry) error {
	for _, e := range entries {
		if !e.unique {
			continue
		}
		var holder string
		err := tx.QueryRowContext(ctx, `
			SELECT doc_id FROM index_entries
			WHERE collection = ? AND index_name = ? AND key = ? AND uniq = 1 AND doc_id != ?
		`, collection, e.index.Name, e.key, id).Scan(&holder)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			continue
		case err != nil:
			return classify(op, collection, id, err)
		default:
			return duplicateKey(op, collection, id, e.index.Name)
		}
	}
	return nil
}

func insertEntries(ctx context.Context, tx *sql.Tx, op, collection, id string, entries []indexEntry) error {
	for _, e := range entries {
		uniq := 0
		if e.unique {
			uniq = 1
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO index_entries (collection, index_name, key, doc_id, uniq)
			VALUES (?, ?, ?, ?, ?)
		`, collection, e.index.Name, e.key, id, uniq)
		if err != nil {
			if cerr := classify(op, collection, id, err); IsDuplicateKey(cerr) {
				return duplicateKey(op, collection, id, e.index.Name)
			}
			return fmt.Errorf("%s: insert index entry %s: %w", op, e.index.Name, err)
		}
	}
	return nil
}

func deleteEntries(ctx context.Context, tx *sql.Tx, collection, id string) error {
	_, err := tx.ExecContext(ctx, `
		DELETE FROM index_entries WHERE collection = ? AND doc_id = ?
	`, collection, id)
	if err != nil {
		return fmt.Errorf("delete index entries: %w", err)
	}
	return nil
}

// RebuildIndexes regenerates every index entry of a collection from document
// contents. Returns the number of documents indexed.
func (s *Store) RebuildIndexes(ctx context.Context, collection string) (int, error) {
	if err := s.ready("rebuild indexes"); err != nil {
		return 0, err
	}
	coll := s.catalog.Collection(collection)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, classify("rebuild indexes", collection, "", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM index_entries WHERE collection = ?`, collection); err != nil {
		return 0, fmt.Errorf("rebuild indexes: clear: %w", err)
	}

	docs, err := queryDocuments(ctx, tx, `
		SELECT id, type, created_at, updated_at, body FROM documents
		WHERE collection = ?
		ORDER BY id COLLATE BINARY ASC
	`, collection)
	if err != nil {
		return 0, fmt.Errorf("rebuild indexes: %w", err)
	}

	for _, doc := range docs {
		entries, err := entriesFor(coll, doc.Object())
		if err != nil {
			return 0, fmt.Errorf("rebuild indexes: %w", err)
		}
		if err := insertEntries(ctx, tx, "rebuild indexes", collection, doc.ID, entries); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("rebuild indexes: commit: %w", err)
	}

	s.logger.Info("indexes rebuilt", "collection", collection, "documents", len(docs))
	return len(docs), nil
}
