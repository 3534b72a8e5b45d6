package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/ballotdesk/internal/value"
)

// WriteOp names the kind of write reported to observers.
type WriteOp string

const (
	OpCreate WriteOp = "create"
	OpUpdate WriteOp = "update"
	OpDelete WriteOp = "delete"
	OpClear  WriteOp = "clear"
)

// WriteEvent is delivered to observers after a write commits.
type WriteEvent struct {
	Collection string
	Op         WriteOp
	ID         string // empty for OpClear
}

// OnWrite registers an observer called after every committed write.
// Observers run synchronously on the writing goroutine.
func (s *Store) OnWrite(fn func(WriteEvent)) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.observers = append(s.observers, fn)
}

func (s *Store) notify(ev WriteEvent) {
	s.obsMu.RLock()
	observers := s.observers
	s.obsMu.RUnlock()
	for _, fn := range observers {
		fn(ev)
	}
}

// Create inserts a new document and returns its id.
//
// The id comes from fields["id"] when present, else from the collection's
// natural key, else from the id generator. docType may be empty when fields
// carries a "type" string. Fails with DuplicateKey when the id or any unique
// index value is already taken.
func (s *Store) Create(ctx context.Context, collection, docType string, fields value.Object) (string, error) {
	if err := s.ready("create"); err != nil {
		return "", err
	}

	if docType == "" {
		docType = fields.StringField(FieldType)
	}
	if docType == "" {
		return "", fmt.Errorf("create: collection %s: document type is required", collection)
	}

	coll := s.catalog.Collection(collection)
	id, err := s.assignID(coll, docType, fields)
	if err != nil {
		return "", fmt.Errorf("create: %w", err)
	}

	now := s.now().UTC()
	doc := Document{
		ID:        id,
		Type:      docType,
		CreatedAt: now,
		UpdatedAt: now,
		Fields:    domainFields(fields),
	}

	if err := s.insert(ctx, "create", collection, doc); err != nil {
		return "", err
	}

	s.logger.Debug("document created", "collection", collection, "id", id, "type", docType)
	s.notify(WriteEvent{Collection: collection, Op: OpCreate, ID: id})
	return id, nil
}

func (s *Store) insert(ctx context.Context, op, collection string, doc Document) error {
	coll := s.catalog.Collection(collection)

	body, err := value.MarshalCanonical(doc.Fields)
	if err != nil {
		return fmt.Errorf("%s: marshal body: %w", op, err)
	}
	entries, err := entriesFor(coll, doc.Object())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(op, collection, doc.ID, err)
	}
	defer tx.Rollback()

	if err := checkUnique(ctx, tx, op, collection, doc.ID, entries); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (collection, id, type, created_at, updated_at, body)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		collection,
		doc.ID,
		doc.Type,
		formatTime(doc.CreatedAt),
		formatTime(doc.UpdatedAt),
		string(body),
	)
	if err != nil {
		return classify(op, collection, doc.ID, err)
	}

	if err := insertEntries(ctx, tx, op, collection, doc.ID, entries); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return classify(op, collection, doc.ID, err)
	}
	return nil
}

// Update replaces the document with doc.ID (last write wins) and returns the
// id. createdAt is preserved and updatedAt refreshed; an empty doc.Type keeps
// the stored type. Index entries are rebuilt from the new contents.
func (s *Store) Update(ctx context.Context, collection string, doc Document) (string, error) {
	if err := s.ready("update"); err != nil {
		return "", err
	}
	if doc.ID == "" {
		return "", fmt.Errorf("update: collection %s: document id is required", collection)
	}

	coll := s.catalog.Collection(collection)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", classify("update", collection, doc.ID, err)
	}
	defer tx.Rollback()

	var storedType, createdAt string
	err = tx.QueryRowContext(ctx, `
		SELECT type, created_at FROM documents WHERE collection = ? AND id = ?
	`, collection, doc.ID).Scan(&storedType, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", notFound("update", collection, doc.ID)
	}
	if err != nil {
		return "", classify("update", collection, doc.ID, err)
	}

	next := Document{
		ID:        doc.ID,
		Type:      doc.Type,
		UpdatedAt: s.now().UTC(),
		Fields:    domainFields(doc.Fields),
	}
	if next.Type == "" {
		next.Type = storedType
	}
	if next.CreatedAt, err = parseTime(createdAt); err != nil {
		return "", fmt.Errorf("update: %w", err)
	}

	body, err := value.MarshalCanonical(next.Fields)
	if err != nil {
		return "", fmt.Errorf("update: marshal body: %w", err)
	}
	entries, err := entriesFor(coll, next.Object())
	if err != nil {
		return "", fmt.Errorf("update: %w", err)
	}

	if err := checkUnique(ctx, tx, "update", collection, doc.ID, entries); err != nil {
		return "", err
	}
	if err := deleteEntries(ctx, tx, collection, doc.ID); err != nil {
		return "", fmt.Errorf("update: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE documents SET type = ?, updated_at = ?, body = ?
		WHERE collection = ? AND id = ?
	`, next.Type, formatTime(next.UpdatedAt), string(body), collection, doc.ID)
	if err != nil {
		return "", classify("update", collection, doc.ID, err)
	}

	if err := insertEntries(ctx, tx, "update", collection, doc.ID, entries); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", classify("update", collection, doc.ID, err)
	}

	s.logger.Debug("document updated", "collection", collection, "id", doc.ID)
	s.notify(WriteEvent{Collection: collection, Op: OpUpdate, ID: doc.ID})
	return doc.ID, nil
}

// Delete removes a document and its index entries.
func (s *Store) Delete(ctx context.Context, collection, id string) (string, error) {
	if err := s.ready("delete"); err != nil {
		return "", err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", classify("delete", collection, id, err)
	}
	defer tx.Rollback()

	if err := deleteEntries(ctx, tx, collection, id); err != nil {
		return "", fmt.Errorf("delete: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		DELETE FROM documents WHERE collection = ? AND id = ?
	`, collection, id)
	if err != nil {
		return "", classify("delete", collection, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return "", notFound("delete", collection, id)
	}

	if err := tx.Commit(); err != nil {
		return "", classify("delete", collection, id, err)
	}

	s.logger.Debug("document deleted", "collection", collection, "id", id)
	s.notify(WriteEvent{Collection: collection, Op: OpDelete, ID: id})
	return id, nil
}

// Clear deletes every document in a collection and returns how many were
// removed. Used for roster and new-election resets.
func (s *Store) Clear(ctx context.Context, collection string) (int, error) {
	if err := s.ready("clear"); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, classify("clear", collection, "", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM index_entries WHERE collection = ?`, collection); err != nil {
		return 0, fmt.Errorf("clear: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE collection = ?`, collection)
	if err != nil {
		return 0, fmt.Errorf("clear: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, classify("clear", collection, "", err)
	}

	s.logger.Info("collection cleared", "collection", collection, "documents", n)
	s.notify(WriteEvent{Collection: collection, Op: OpClear})
	return int(n), nil
}
