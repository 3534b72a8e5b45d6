package store

import (
	"context"

	"github.com/roach88/ballotdesk/internal/value"
)

// BulkItem is the outcome for one row of a BulkCreate.
type BulkItem struct {
	Index int    // position in the input
	ID    string // set on success
	Err   error  // set on failure
}

// OK reports whether the row was stored.
func (i BulkItem) OK() bool {
	return i.Err == nil
}

// BulkResult reports a partially successful BulkCreate.
type BulkResult struct {
	Successful int
	Total      int
	Results    []BulkItem
}

// Failed returns the rows that were not stored.
func (r BulkResult) Failed() []BulkItem {
	failed := []BulkItem{}
	for _, item := range r.Results {
		if !item.OK() {
			failed = append(failed, item)
		}
	}
	return failed
}

// BulkCreate creates each row independently; a failing row does not affect
// the others. The returned error is non-nil only when the store is not open,
// in which case nothing was attempted.
func (s *Store) BulkCreate(ctx context.Context, collection, docType string, rows []value.Object) (BulkResult, error) {
	if err := s.ready("bulk create"); err != nil {
		return BulkResult{}, err
	}

	result := BulkResult{
		Total:   len(rows),
		Results: make([]BulkItem, 0, len(rows)),
	}

	for i, row := range rows {
		item := BulkItem{Index: i}
		if err := ctx.Err(); err != nil {
			item.Err = err
		} else {
			item.ID, item.Err = s.Create(ctx, collection, docType, row)
		}

		if item.Err != nil {
			s.logger.Warn("bulk create row failed",
				"collection", collection,
				"row", i,
				"error", item.Err)
		} else {
			result.Successful++
		}
		result.Results = append(result.Results, item)
	}

	s.logger.Info("bulk create finished",
		"collection", collection,
		"successful", result.Successful,
		"total", result.Total)
	return result, nil
}
