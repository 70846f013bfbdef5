// Package query compiles the query language into an immutable Query.
//
// A query is a whitespace-separated sequence of clauses:
//
//	word          free-text term, AND-ed with the others
//	"a phrase"    contiguous terms
//	-word         excludes documents containing word ("-" also negates phrases)
//	tag:v -tag:v  tag inclusion / exclusion
//	since:d       documents dated at or after d
//	until:d       documents dated at or before d (a bare date covers the whole day)
//	author:v      documents with an author containing v
//	title:word    free text restricted to the title
//
// Filter values may be quoted. Unknown key:value words are free text.
package query

import (
	"slices"
	"strings"
	"time"
)

// Clause is one free-text requirement. A clause with several terms matches
// only where the terms appear contiguously in one field. Field restricts the
// match to a single document field; empty means any field.
type Clause struct {
	Terms  []string
	Phrase bool
	Field  string
}

func (c Clause) String() string {
	s := strings.Join(c.Terms, " ")
	if c.Phrase {
		s = `"` + s + `"`
	}
	if c.Field != "" {
		s = c.Field + ":" + s
	}
	return s
}

// Query is the compiled form of a query string. It is never mutated after
// Compile returns it.
type Query struct {
	Must    []Clause
	MustNot []Clause
	TagIn   []string
	TagOut  []string
	Authors []string
	Since   *time.Time
	Until   *time.Time
}

// Terms returns the sorted set of positive terms, used to highlight matches.
func (q *Query) Terms() []string {
	var out []string
	for _, c := range q.Must {
		out = append(out, c.Terms...)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// IsEmpty reports whether the query places no constraint at all.
func (q *Query) IsEmpty() bool {
	return len(q.Must) == 0 && len(q.MustNot) == 0 && len(q.TagIn) == 0 &&
		len(q.TagOut) == 0 && len(q.Authors) == 0 && q.Since == nil && q.Until == nil
}

// String renders the query in canonical form. Compiling the result yields
// an equal Query.
func (q *Query) String() string {
	var parts []string
	for _, c := range q.Must {
		parts = append(parts, c.String())
	}
	for _, c := range q.MustNot {
		parts = append(parts, "-"+c.String())
	}
	for _, t := range q.TagIn {
		parts = append(parts, "tag:"+quoteIfNeeded(t))
	}
	for _, t := range q.TagOut {
		parts = append(parts, "-tag:"+quoteIfNeeded(t))
	}
	for _, a := range q.Authors {
		parts = append(parts, "author:"+quoteIfNeeded(a))
	}
	if q.Since != nil {
		parts = append(parts, "since:"+q.Since.Format(time.RFC3339Nano))
	}
	if q.Until != nil {
		parts = append(parts, "until:"+q.Until.Format(time.RFC3339Nano))
	}
	return strings.Join(parts, " ")
}

func quoteIfNeeded(s string) string {
	if strings.ContainsAny(s, " \t") {
		return `"` + s + `"`
	}
	return s
}
