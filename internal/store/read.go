package store

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/roach88/ballotdesk/internal/selector"
	"github.com/roach88/ballotdesk/internal/value"
)

// Query describes a Find.
type Query struct {
	// Where is a selector object; nil or empty matches every document.
	Where value.Object

	// Limit caps the result size; 0 means no limit.
	Limit int

	// SortBy orders results by a field path. Without it the order is
	// unspecified.
	SortBy     string
	Descending bool

	// Hint forces a plan: an index name, or HintScan for a full scan. A hint
	// that cannot serve the selector is ignored.
	Hint string
}

// HintScan forces a full collection scan.
const HintScan = "$scan"

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Get returns the document with the given id.
func (s *Store) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := s.ready("get"); err != nil {
		return Document{}, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, type, created_at, updated_at, body FROM documents
		WHERE collection = ? AND id = ?
	`, collection, id)

	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, notFound("get", collection, id)
	}
	if err != nil {
		return Document{}, classify("get", collection, id, err)
	}
	return doc, nil
}

// Find returns the documents matching q.Where.
//
// A malformed selector matches nothing: the parse error is logged and Find
// returns an empty result without error. Index use only narrows the candidate
// set; every candidate is checked against the full selector.
//
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) Find(ctx context.Context, collection string, q Query) ([]Document, error) {
	if err := s.ready("find"); err != nil {
		return nil, err
	}

	sel, err := selector.Parse(q.Where)
	if err != nil {
		s.logger.Warn("malformed selector matches nothing",
			"collection", collection,
			"error", err)
		return []Document{}, nil
	}

	plan := s.plan(collection, sel, q.Hint)
	s.logger.Debug("find", "collection", collection, "plan", plan.String())

	sqlText, args := plan.sql(collection)
	candidates, err := queryDocuments(ctx, s.db, sqlText, args...)
	if err != nil {
		return nil, classify("find", collection, "", err)
	}

	matched := []Document{}
	for _, doc := range candidates {
		if selector.Match(sel, doc.Object()) {
			matched = append(matched, doc)
		}
		if q.SortBy == "" && q.Limit > 0 && len(matched) == q.Limit {
			break
		}
	}

	if q.SortBy != "" {
		sortDocuments(matched, q.SortBy, q.Descending)
		if q.Limit > 0 && len(matched) > q.Limit {
			matched = matched[:q.Limit]
		}
	}

	return matched, nil
}

// Count returns the number of documents in a collection.
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	if err := s.ready("count"); err != nil {
		return 0, err
	}
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM documents WHERE collection = ?
	`, collection).Scan(&n)
	if err != nil {
		return 0, classify("count", collection, "", err)
	}
	return n, nil
}

// Counts returns document counts for every non-empty collection.
func (s *Store) Counts(ctx context.Context) (map[string]int, error) {
	if err := s.ready("counts"); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT collection, COUNT(*) FROM documents
		GROUP BY collection
		ORDER BY collection COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, classify("counts", "", "", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("scan counts: %w", err)
		}
		counts[name] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts: %w", err)
	}
	return counts, nil
}

func queryDocuments(ctx context.Context, q querier, query string, args ...any) ([]Document, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, error) {
	var (
		doc                  Document
		createdAt, updatedAt string
		body                 string
	)
	if err := row.Scan(&doc.ID, &doc.Type, &createdAt, &updatedAt, &body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, err
		}
		return Document{}, fmt.Errorf("scan document: %w", err)
	}

	var err error
	if doc.CreatedAt, err = parseTime(createdAt); err != nil {
		return Document{}, fmt.Errorf("scan document %s: %w", doc.ID, err)
	}
	if doc.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Document{}, fmt.Errorf("scan document %s: %w", doc.ID, err)
	}
	if doc.Fields, err = value.UnmarshalObject([]byte(body)); err != nil {
		return Document{}, fmt.Errorf("scan document %s: %w", doc.ID, err)
	}
	return doc, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(value.TimeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(value.TimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// sortDocuments orders docs by a field. Missing and null values sort first;
// ties keep their id order.
func sortDocuments(docs []Document, field string, descending bool) {
	slices.SortStableFunc(docs, func(a, b Document) int {
		av, _ := a.Get(field)
		bv, _ := b.Get(field)
		c := compareValues(av, bv)
		if descending {
			c = -c
		}
		return c
	})
}

// compareValues gives a total order across kinds: null < bool < number <
// text (strings and times) < everything else.
func compareValues(a, b value.Value) int {
	ra, rb := kindRank(a), kindRank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch ra {
	case 1:
		return cmp.Compare(value.Text(a), value.Text(b))
	case 2:
		return cmp.Compare(number(a), number(b))
	case 3:
		return cmp.Compare(value.Text(a), value.Text(b))
	default:
		return 0
	}
}

func kindRank(v value.Value) int {
	switch value.KindOf(v) {
	case value.KindNull:
		return 0
	case value.KindBool:
		return 1
	case value.KindInt, value.KindFloat:
		return 2
	case value.KindString, value.KindTime:
		return 3
	default:
		return 4
	}
}

func number(v value.Value) float64 {
	switch n := v.(type) {
	case value.Int:
		return float64(n)
	case value.Float:
		return float64(n)
	}
	return 0
}
