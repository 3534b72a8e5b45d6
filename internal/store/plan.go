package store

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/ballotdesk/internal/schema"
	"github.com/roach88/ballotdesk/internal/selector"
	"github.com/roach88/ballotdesk/internal/value"
)

// PlanKind is the access path chosen for a Find.
type PlanKind string

const (
	PlanComposite PlanKind = "composite-index"
	PlanIndex     PlanKind = "index"
	PlanScan      PlanKind = "scan"
	PlanEmpty     PlanKind = "empty" // malformed selector, nothing is read
)

// Plan describes how Find reads candidates.
type Plan struct {
	Kind  PlanKind
	Index string
	Key   string // canonical index key for index plans

	// Pushdown holds envelope equalities applied in SQL during a scan.
	Pushdown map[string]string
}

func (p Plan) String() string {
	switch p.Kind {
	case PlanComposite, PlanIndex:
		return fmt.Sprintf("%s(%s=%s)", p.Kind, p.Index, p.Key)
	case PlanScan:
		if len(p.Pushdown) == 0 {
			return string(p.Kind)
		}
		keys := make([]string, 0, len(p.Pushdown))
		for k := range p.Pushdown {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + "=" + p.Pushdown[k]
		}
		return fmt.Sprintf("scan(%s)", strings.Join(parts, ","))
	default:
		return string(p.Kind)
	}
}

// Explain reports the plan Find would use for where. A malformed selector
// yields PlanEmpty together with the parse error.
func (s *Store) Explain(collection string, where value.Object) (Plan, error) {
	sel, err := selector.Parse(where)
	if err != nil {
		return Plan{Kind: PlanEmpty}, err
	}
	return s.plan(collection, sel, ""), nil
}

// plan picks the access path. Preference: a composite index whose fields are
// exactly the selector's equality fields, then a single-field index on one of
// them (unique first), then a full scan.
func (s *Store) plan(collection string, sel selector.Selector, hint string) Plan {
	if _, never := sel.(selector.Never); never {
		return Plan{Kind: PlanEmpty}
	}

	coll := s.catalog.Collection(collection)
	eq := usableEqualities(selector.Analyze(sel))

	if hint == HintScan {
		return scanPlan(eq)
	}
	if hint != "" {
		if idx, ok := coll.Index(hint); ok {
			if p, ok := indexPlan(idx, eq); ok {
				return p
			}
		}
		s.logger.Debug("ignoring unusable plan hint", "collection", collection, "hint", hint)
	}

	fields := make([]string, 0, len(eq))
	for f := range eq {
		fields = append(fields, f)
	}

	for _, idx := range coll.Indexes {
		if idx.Composite() && idx.Covers(fields) {
			if p, ok := indexPlan(idx, eq); ok {
				return p
			}
		}
	}

	singles := make([]schema.Index, 0, len(coll.Indexes))
	for _, idx := range coll.Indexes {
		if !idx.Composite() {
			singles = append(singles, idx)
		}
	}
	slices.SortStableFunc(singles, func(a, b schema.Index) int {
		switch {
		case a.Unique && !b.Unique:
			return -1
		case b.Unique && !a.Unique:
			return 1
		}
		return 0
	})
	for _, idx := range singles {
		if p, ok := indexPlan(idx, eq); ok {
			return p
		}
	}

	return scanPlan(eq)
}

// usableEqualities drops equalities an index cannot answer. An equality with
// null also matches documents missing the field, and those are never indexed.
func usableEqualities(a selector.Analysis) map[string]value.Value {
	eq := make(map[string]value.Value, len(a.Equalities))
	for f, v := range a.Equalities {
		if value.IsNull(v) {
			continue
		}
		eq[f] = v
	}
	return eq
}

func indexPlan(idx schema.Index, eq map[string]value.Value) (Plan, bool) {
	key, ok := lookupKey(idx, eq)
	if !ok {
		return Plan{}, false
	}
	kind := PlanIndex
	if idx.Composite() {
		kind = PlanComposite
	}
	return Plan{Kind: kind, Index: idx.Name, Key: key}, true
}

func scanPlan(eq map[string]value.Value) Plan {
	p := Plan{Kind: PlanScan}
	for _, f := range []string{FieldType, FieldID} {
		// Only ASCII is pushed down: SQL compares bytes, selectors compare NFC.
		if v, ok := eq[f].(value.String); ok && isASCII(string(v)) {
			if p.Pushdown == nil {
				p.Pushdown = make(map[string]string)
			}
			p.Pushdown[f] = string(v)
		}
	}
	return p
}

// sql renders the candidate query. All values are parameterized and every
// query orders by id for deterministic candidate order.
func (p Plan) sql(collection string) (string, []any) {
	switch p.Kind {
	case PlanComposite, PlanIndex:
		return `
			SELECT d.id, d.type, d.created_at, d.updated_at, d.body
			FROM index_entries e
			JOIN documents d ON d.collection = e.collection AND d.id = e.doc_id
			WHERE e.collection = ? AND e.index_name = ? AND e.key = ?
			ORDER BY d.id COLLATE BINARY ASC
		`, []any{collection, p.Index, p.Key}
	case PlanEmpty:
		return `
			SELECT id, type, created_at, updated_at, body FROM documents
			WHERE 0
		`, nil
	}

	where := []string{"collection = ?"}
	args := []any{collection}
	if t, ok := p.Pushdown[FieldType]; ok {
		where = append(where, "type = ?")
		args = append(args, t)
	}
	if id, ok := p.Pushdown[FieldID]; ok {
		where = append(where, "id = ?")
		args = append(args, id)
	}
	return fmt.Sprintf(`
		SELECT id, type, created_at, updated_at, body FROM documents
		WHERE %s
		ORDER BY id COLLATE BINARY ASC
	`, strings.Join(where, " AND ")), args
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
