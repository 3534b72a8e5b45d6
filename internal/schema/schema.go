// Package schema declares the document collections, their secondary indexes
// and the query cache allow-list.
//
// The catalog is written in CUE (collections.cue, embedded at build time) and
// compiled once with the CUE Go API. Collections stay schema-light: the catalog
// constrains how documents are indexed and identified, not which fields they
// carry.
package schema

import (
	_ "embed"
	"fmt"
	"slices"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

//go:embed collections.cue
var catalogSource string

// Collection names used across the module.
const (
	Students        = "students"
	CandidateLists  = "candidateLists"
	Votes           = "votes"
	Sessions        = "sessions"
	Config          = "config"
	ActivationCodes = "activationCodes"
)

// Index is a secondary index over one or more document fields.
// Field order is significant: it defines the order of the index key tuple.
type Index struct {
	Name   string   `json:"name"`
	Fields []string `json:"fields"`
	Unique bool     `json:"unique"`
}

// Composite reports whether the index spans more than one field.
func (i Index) Composite() bool {
	return len(i.Fields) > 1
}

// Covers reports whether the index fields are exactly the given set.
func (i Index) Covers(fields []string) bool {
	if len(i.Fields) != len(fields) {
		return false
	}
	for _, f := range i.Fields {
		if !slices.Contains(fields, f) {
			return false
		}
	}
	return true
}

// Collection describes one named collection.
type Collection struct {
	Name       string
	NaturalKey []string
	Indexes    []Index

	// Cacheable holds the allowed equality field sets, each sorted.
	Cacheable [][]string
}

// Index returns the index with the given name.
func (c *Collection) Index(name string) (Index, bool) {
	for _, idx := range c.Indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return Index{}, false
}

// UniqueIndexes returns the collection's unique indexes.
func (c *Collection) UniqueIndexes() []Index {
	out := []Index{}
	for _, idx := range c.Indexes {
		if idx.Unique {
			out = append(out, idx)
		}
	}
	return out
}

// IsCacheable reports whether a pure-equality query over exactly these fields
// is on the collection's allow-list.
func (c *Collection) IsCacheable(fields []string) bool {
	sorted := slices.Clone(fields)
	slices.Sort(sorted)
	for _, allowed := range c.Cacheable {
		if slices.Equal(allowed, sorted) {
			return true
		}
	}
	return false
}

// Catalog is the compiled set of collections.
type Catalog struct {
	collections map[string]*Collection
	names       []string
}

// Collection returns the definition for name. Collections that are not
// declared get an empty definition: no indexes, no natural key, never cached.
func (c *Catalog) Collection(name string) *Collection {
	if coll, ok := c.collections[name]; ok {
		return coll
	}
	return &Collection{Name: name}
}

// Known reports whether name is declared in the catalog.
func (c *Catalog) Known(name string) bool {
	_, ok := c.collections[name]
	return ok
}

// Names returns declared collection names in sorted order.
func (c *Catalog) Names() []string {
	return slices.Clone(c.names)
}

var defaultCatalog = sync.OnceValues(func() (*Catalog, error) {
	return Compile("collections.cue", catalogSource)
})

// Default returns the embedded catalog. It panics if the embedded source does
// not compile, which the package tests rule out.
func Default() *Catalog {
	cat, err := defaultCatalog()
	if err != nil {
		panic(fmt.Sprintf("schema: embedded catalog: %v", err))
	}
	return cat
}

// Compile builds a Catalog from CUE source. The source must define a
// top-level "collections" struct shaped like collections.cue.
func Compile(filename, src string) (*Catalog, error) {
	ctx := cuecontext.New()
	root := ctx.CompileString(src, cue.Filename(filename))
	if err := root.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	collsVal := root.LookupPath(cue.ParsePath("collections"))
	if !collsVal.Exists() {
		return nil, &CompileError{
			Field:   "collections",
			Message: "collections is required",
			Pos:     root.Pos(),
		}
	}
	if err := collsVal.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	iter, err := collsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	cat := &Catalog{collections: make(map[string]*Collection)}
	for iter.Next() {
		coll, err := compileCollection(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		cat.collections[coll.Name] = coll
		cat.names = append(cat.names, coll.Name)
	}
	slices.Sort(cat.names)

	return cat, nil
}

func compileCollection(name string, v cue.Value) (*Collection, error) {
	var raw struct {
		NaturalKey []string   `json:"naturalKey"`
		Indexes    []Index    `json:"indexes"`
		Cacheable  [][]string `json:"cacheable"`
	}
	if err := v.Decode(&raw); err != nil {
		return nil, formatCUEError(err)
	}

	coll := &Collection{
		Name:       name,
		NaturalKey: raw.NaturalKey,
		Indexes:    raw.Indexes,
	}
	if coll.Indexes == nil {
		coll.Indexes = []Index{}
	}

	seen := make(map[string]bool, len(raw.Indexes))
	for _, idx := range raw.Indexes {
		if seen[idx.Name] {
			return nil, &CompileError{
				Field:   name + ".indexes",
				Message: fmt.Sprintf("duplicate index name %q", idx.Name),
				Pos:     v.Pos(),
			}
		}
		seen[idx.Name] = true

		for _, f := range idx.Fields {
			if strings.TrimSpace(f) == "" {
				return nil, &CompileError{
					Field:   name + ".indexes." + idx.Name,
					Message: "index fields must not be empty",
					Pos:     v.Pos(),
				}
			}
		}
	}

	for _, set := range raw.Cacheable {
		sorted := slices.Clone(set)
		slices.Sort(sorted)
		if len(slices.Compact(slices.Clone(sorted))) != len(sorted) {
			return nil, &CompileError{
				Field:   name + ".cacheable",
				Message: fmt.Sprintf("field set %v repeats a field", set),
				Pos:     v.Pos(),
			}
		}
		coll.Cacheable = append(coll.Cacheable, sorted)
	}

	return coll, nil
}

// CompileError is a catalog error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	positions := errors.Positions(first)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
