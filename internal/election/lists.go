package election

import (
	"context"
	"fmt"

	"github.com/roach88/ballotdesk/internal/schema"
	"github.com/roach88/ballotdesk/internal/store"
	"github.com/roach88/ballotdesk/internal/value"
)

// CandidateList is one ballot option.
type CandidateList struct {
	ID     string
	Name   string
	Fields value.Object
}

// CandidateLists is the ballot option collection.
type CandidateLists struct {
	docs Documents
}

// NewCandidateLists returns the candidate lists over docs.
func NewCandidateLists(docs Documents) *CandidateLists {
	return &CandidateLists{docs: docs}
}

// List returns all candidate lists ordered by name.
func (c *CandidateLists) List(ctx context.Context) ([]CandidateList, error) {
	docs, err := c.docs.Find(ctx, schema.CandidateLists, store.Query{
		Where:  value.Object{store.FieldType: value.String(TypeList)},
		SortBy: FieldName,
	})
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	out := make([]CandidateList, len(docs))
	for i, d := range docs {
		out[i] = CandidateList{ID: d.ID, Name: d.Fields.StringField(FieldName), Fields: d.Fields}
	}
	return out, nil
}

// Add creates a candidate list and returns its id. An "id" field in fields
// fixes the id, which is the choice id votes refer to.
func (c *CandidateLists) Add(ctx context.Context, fields value.Object) (string, error) {
	id, err := c.docs.Create(ctx, schema.CandidateLists, TypeList, fields)
	if err != nil {
		return "", fmt.Errorf("add candidate list: %w", err)
	}
	return id, nil
}
