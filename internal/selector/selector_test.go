package selector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ballotdesk/internal/value"
)

func student(fields map[string]any) value.Object {
	return value.MustObject(fields)
}

func TestParseEquality(t *testing.T) {
	sel, err := Parse(value.Object{"course": value.String("1ro Bach A")})
	require.NoError(t, err)
	assert.Equal(t, Eq{Field: "course", Value: value.String("1ro Bach A")}, sel)

	sel, err = Parse(value.Object{
		"type":   value.String("STUDENT"),
		"course": value.String("8vo A"),
	})
	require.NoError(t, err)
	assert.Equal(t, And{Terms: []Selector{
		Eq{Field: "course", Value: value.String("8vo A")},
		Eq{Field: "type", Value: value.String("STUDENT")},
	}}, sel, "terms are ordered by field name")
}

func TestParseEmptyMatchesAll(t *testing.T) {
	sel, err := Parse(value.Object{})
	require.NoError(t, err)
	assert.True(t, Match(sel, student(map[string]any{"x": 1})))
}

func TestParseOperators(t *testing.T) {
	sel, err := Parse(value.Object{
		"absent":     value.Object{"$ne": value.Bool(true)},
		"nationalId": value.Object{"$exists": value.Bool(true)},
		"name":       value.Object{"$regex": value.String("pare")},
	})
	require.NoError(t, err)

	and, ok := sel.(And)
	require.True(t, ok)
	require.Len(t, and.Terms, 3)
	assert.IsType(t, Ne{}, and.Terms[0])
	assert.IsType(t, Regex{}, and.Terms[1])
	assert.IsType(t, Exists{}, and.Terms[2])
}

func TestParseMultipleOperatorsOnOneField(t *testing.T) {
	sel, err := Parse(value.Object{
		"name": value.Object{
			"$exists": value.Bool(true),
			"$ne":     value.String("Ana"),
		},
	})
	require.NoError(t, err)

	assert.True(t, Match(sel, student(map[string]any{"name": "Luis"})))
	assert.False(t, Match(sel, student(map[string]any{"name": "Ana"})))
	assert.False(t, Match(sel, student(map[string]any{})))
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  value.Object
	}{
		{"unknown field operator", value.Object{"age": value.Object{"$gt": value.Int(3)}}},
		{"unknown top-level operator", value.Object{"$and": value.Array{}}},
		{"or not array", value.Object{"$or": value.Object{}}},
		{"or empty", value.Object{"$or": value.Array{}}},
		{"or branch not object", value.Object{"$or": value.Array{value.Int(1)}}},
		{"exists not bool", value.Object{"x": value.Object{"$exists": value.String("yes")}}},
		{"regex not string", value.Object{"x": value.Object{"$regex": value.Int(1)}}},
		{"regex invalid", value.Object{"x": value.Object{"$regex": value.String("(")}}},
		{"mixed operator and literal", value.Object{"x": value.Object{"$ne": value.Int(1), "y": value.Int(2)}}},
		{"empty field", value.Object{"": value.Int(1)}},
		{"nested or malformed", value.Object{"$or": value.Array{value.Object{"x": value.Object{"$lt": value.Int(1)}}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := Parse(tt.raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformed)
			assert.IsType(t, Never{}, sel)
			assert.False(t, Match(sel, student(map[string]any{"x": 1, "age": 4})),
				"malformed selectors match nothing")
		})
	}
}

func TestMatch(t *testing.T) {
	doc := student(map[string]any{
		"id":         "student_1",
		"type":       "STUDENT",
		"name":       "Ana Paredes",
		"studentId":  1042,
		"nationalId": "0912345678",
		"course":     "1ro Bach A",
		"absent":     false,
		"votedAt":    nil,
		"profile":    map[string]any{"level": "bach"},
	})

	tests := []struct {
		name string
		raw  map[string]any
		want bool
	}{
		{"equality", map[string]any{"course": "1ro Bach A"}, true},
		{"equality miss", map[string]any{"course": "8vo A"}, false},
		{"numeric equality across kinds", map[string]any{"studentId": 1042.0}, true},
		{"string does not equal int", map[string]any{"studentId": "1042"}, false},
		{"conjunction", map[string]any{"course": "1ro Bach A", "type": "STUDENT"}, true},
		{"conjunction partial miss", map[string]any{"course": "1ro Bach A", "type": "LIST"}, false},
		{"null equals null", map[string]any{"votedAt": nil}, true},
		{"null equals missing", map[string]any{"absentAt": nil}, true},
		{"nested path", map[string]any{"profile.level": "bach"}, true},
		{"ne differs", map[string]any{"absent": map[string]any{"$ne": true}}, true},
		{"ne same", map[string]any{"absent": map[string]any{"$ne": false}}, false},
		{"ne missing field", map[string]any{"voted": map[string]any{"$ne": true}}, true},
		{"exists true", map[string]any{"nationalId": map[string]any{"$exists": true}}, true},
		{"exists on null", map[string]any{"votedAt": map[string]any{"$exists": true}}, false},
		{"not exists", map[string]any{"absentAt": map[string]any{"$exists": false}}, true},
		{"regex substring", map[string]any{"name": map[string]any{"$regex": "pare"}}, true},
		{"regex case insensitive", map[string]any{"name": map[string]any{"$regex": "ANA"}}, true},
		{"regex on number text", map[string]any{"studentId": map[string]any{"$regex": "^104"}}, true},
		{"regex miss", map[string]any{"name": map[string]any{"$regex": "^paredes"}}, false},
		{"regex missing field", map[string]any{"missing": map[string]any{"$regex": ""}}, false},
		{"regex on object", map[string]any{"profile": map[string]any{"$regex": ""}}, false},
		{"or any branch", map[string]any{"$or": []any{
			map[string]any{"studentId": 9},
			map[string]any{"nationalId": "0912345678"},
		}}, true},
		{"or no branch", map[string]any{"$or": []any{
			map[string]any{"studentId": 9},
			map[string]any{"nationalId": "x"},
		}}, false},
		{"or with sibling field", map[string]any{
			"type": "STUDENT",
			"$or":  []any{map[string]any{"studentId": 1042}},
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := Parse(value.MustObject(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, Match(sel, doc))
		})
	}
}

func TestMatchBareNodes(t *testing.T) {
	doc := student(map[string]any{"name": "Luis"})

	assert.True(t, Match(nil, doc))
	assert.True(t, Match(All(), doc))
	assert.False(t, Match(Or{}, doc), "empty Or matches nothing")
	assert.False(t, Match(Never{Reason: "x"}, doc))
	assert.True(t, Match(Regex{Field: "name", Pattern: "LU"}, doc), "uncompiled regex compiles on demand")
	assert.False(t, Match(Regex{Field: "name", Pattern: "("}, doc))
}

func TestPointerNodesMatchNothing(t *testing.T) {
	doc := student(map[string]any{"name": "Luis", "course": "8vo A"})
	eq := Eq{Field: "course", Value: value.String("8vo A")}
	require.True(t, Match(eq, doc))

	for _, sel := range []Selector{&eq, &And{Terms: []Selector{eq}}, &Exists{Field: "name", Want: true}} {
		assert.False(t, Match(sel, doc), "%T", sel)

		a := Analyze(sel)
		assert.False(t, a.Cacheable, "%T", sel)
		assert.Empty(t, a.Fields(), "%T", sel)
	}
}

func TestAnalyze(t *testing.T) {
	a := Analyze(MustParse(value.MustObject(map[string]any{"type": "STUDENT", "course": "8vo A"})))
	assert.True(t, a.Cacheable)
	assert.Equal(t, []string{"course", "type"}, a.Fields())
	assert.Empty(t, a.Reasons)

	a = Analyze(MustParse(value.Object{}))
	assert.True(t, a.Cacheable)
	assert.Empty(t, a.Fields())

	a = Analyze(MustParse(value.MustObject(map[string]any{
		"course": "8vo A",
		"name":   map[string]any{"$regex": "ana"},
	})))
	assert.False(t, a.Cacheable)
	assert.Equal(t, []string{"course"}, a.Fields(), "equalities survive next to other operators")
	assert.Len(t, a.Reasons, 1)

	for _, raw := range []map[string]any{
		{"x": map[string]any{"$ne": 1}},
		{"x": map[string]any{"$exists": true}},
		{"$or": []any{map[string]any{"x": 1}}},
	} {
		assert.False(t, Analyze(MustParse(value.MustObject(raw))).Cacheable, "%v", raw)
	}

	a = Analyze(Never{Reason: "bad"})
	assert.False(t, a.Cacheable)
}

func TestRenderIsOrderIndependent(t *testing.T) {
	a := MustParse(value.MustObject(map[string]any{"type": "STUDENT", "course": "8vo A"}))
	b := MustParse(value.MustObject(map[string]any{"course": "8vo A", "type": "STUDENT"}))

	assert.Equal(t,
		string(value.MustCanonical(Render(a))),
		string(value.MustCanonical(Render(b))))
}

func TestRenderRoundTrip(t *testing.T) {
	raws := []map[string]any{
		{},
		{"course": "1ro Bach A"},
		{"course": "1ro Bach A", "type": "STUDENT"},
		{"name": map[string]any{"$regex": "pa", "$exists": true}},
		{"absent": map[string]any{"$ne": true}, "$or": []any{
			map[string]any{"studentId": 1},
			map[string]any{"nationalId": "x"},
		}},
	}

	for _, raw := range raws {
		original := value.MustObject(raw)
		sel := MustParse(original)
		rendered := Render(sel)
		assert.True(t, value.Equal(original, rendered), "render %v -> %v", original, rendered)

		again, err := Parse(rendered)
		require.NoError(t, err)
		assert.Equal(t, Render(again), rendered)
	}
}
