package reconcile

import (
	"context"
	"fmt"
	"maps"
	"slices"
)

// Revalidate compares the optimistic cache of course with the store-derived
// truth and overwrites disagreeing cache records. Unsynced records are left
// alone: they hold actions the store has not seen yet. Cache-only records are
// kept. Every correction is logged and returned; none is an error.
//
// Revalidate does not write to the store.
func (e *Engine) Revalidate(ctx context.Context, courseName string) ([]Drift, error) {
	start := e.now()
	e.mu.Lock()
	defer e.mu.Unlock()

	resolved := e.resolvedName(courseName)
	roster, err := e.students.ByCourse(ctx, resolved)
	if err != nil {
		return nil, fmt.Errorf("revalidate %s: %w", resolved, err)
	}
	derived, err := e.derive(ctx, roster, false)
	if err != nil {
		return nil, fmt.Errorf("revalidate %s: %w", resolved, err)
	}

	cached, err := e.loadCache(resolved)
	if err != nil {
		return nil, err
	}

	drifts := []Drift{}
	for _, id := range slices.Sorted(maps.Keys(derived)) {
		truth := derived[id]
		if cached.Unsynced[id] {
			continue
		}

		got, ok := cached.Records[id]
		switch {
		case !ok:
			drifts = append(drifts, Drift{Course: resolved, StudentID: id, Kind: DriftMissing, Store: truth})
		case !got.Equal(truth):
			c := got
			drifts = append(drifts, Drift{Course: resolved, StudentID: id, Kind: DriftMismatch, Cached: &c, Store: truth})
		default:
			continue
		}
		cached.Set(truth, false)
	}

	for _, d := range drifts {
		e.logger.Warn("reconciliation drift corrected",
			"course", d.Course,
			"student", d.StudentID,
			"kind", string(d.Kind),
			"store_status", string(d.Store.Status))
		if e.metrics != nil {
			e.metrics.DriftCorrections.WithLabelValues(string(d.Kind)).Inc()
		}
	}

	if len(drifts) > 0 {
		cached.SavedAt = e.now()
		if err := e.cache.Save(cached); err != nil {
			return drifts, fmt.Errorf("revalidate %s: save session cache: %w", resolved, err)
		}
	}

	e.rosters[resolved] = roster
	e.observePass("revalidate", start)
	return drifts, nil
}

// backgroundPass is the scheduled revalidation. It has no caller to report
// to, so failures are logged.
func (e *Engine) backgroundPass(courseName string) {
	drifts, err := e.Revalidate(context.Background(), courseName)
	if err != nil {
		e.logger.Warn("background revalidation failed", "course", courseName, "error", err)
		return
	}
	e.logger.Debug("background revalidation done", "course", courseName, "drifts", len(drifts))
}
