package server

import (
	"fmt"

	language "github.com/hanpama/typegraph/internal/language"
	schema "github.com/hanpama/typegraph/internal/schema"
	lru "github.com/hashicorp/golang-lru/v2"
)

// documents parses and validates query documents, keeping the most recently
// used ones. Cached documents are shared between requests and never mutated.
type documents struct {
	schema *language.Schema
	cache  *lru.Cache[string, *language.QueryDocument]
}

func newDocuments(sch *schema.Schema, size int) (*documents, error) {
	s, err := language.LoadSchema("schema.graphql", schema.Render(sch))
	if err != nil {
		return nil, fmt.Errorf("load validation schema: %w", err)
	}
	d := &documents{schema: s}
	if size > 0 {
		cache, err := lru.New[string, *language.QueryDocument](size)
		if err != nil {
			return nil, err
		}
		d.cache = cache
	}
	return d, nil
}

func (d *documents) load(query string) (*language.QueryDocument, language.ErrorList) {
	if d.cache != nil {
		if doc, ok := d.cache.Get(query); ok {
			return doc, nil
		}
	}
	doc, errs := language.ParseAndValidate(d.schema, query)
	if len(errs) > 0 {
		return nil, errs
	}
	if d.cache != nil {
		d.cache.Add(query, doc)
	}
	return doc, nil
}
