package query

import (
	"slices"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/starford/xq/internal/analysis"
	"github.com/starford/xq/internal/apperr"
	"github.com/starford/xq/internal/parser"
)

// Compile parses s into a Query. It depends only on s, never on index state.
func Compile(s string) (*Query, error) {
	q := &Query{}
	c := &compiler{src: s, q: q}
	for {
		tok, err := c.next()
		if err != nil {
			return nil, err
		}
		if tok == nil {
			break
		}
		if err := c.apply(tok); err != nil {
			return nil, err
		}
	}
	q.TagIn = parser.NormalizeTags(q.TagIn)
	q.TagOut = parser.NormalizeTags(q.TagOut)
	slices.Sort(q.Authors)
	q.Authors = slices.Compact(q.Authors)
	return q, nil
}

type token struct {
	raw    string // full clause text as written
	pos    int
	neg    bool
	key    string // lowercased filter keyword, empty for free text
	value  string
	quoted bool // the free text or the value was quoted
}

type compiler struct {
	src string
	off int
	q   *Query
}

var filterKeys = map[string]bool{"tag": true, "since": true, "until": true, "author": true, "title": true}

// next scans one whitespace-delimited clause. Quotes may span whitespace.
func (c *compiler) next() (*token, error) {
	for c.off < len(c.src) {
		r, size := utf8.DecodeRuneInString(c.src[c.off:])
		if !unicode.IsSpace(r) {
			break
		}
		c.off += size
	}
	if c.off >= len(c.src) {
		return nil, nil
	}

	start := c.off
	end := start
	for end < len(c.src) {
		r, size := utf8.DecodeRuneInString(c.src[end:])
		if unicode.IsSpace(r) {
			break
		}
		if r == '"' {
			closing := strings.IndexByte(c.src[end+1:], '"')
			if closing < 0 {
				return nil, &apperr.QuerySyntaxError{Token: c.src[start:], Pos: start, Reason: "unterminated quote"}
			}
			end += closing + 2
			continue
		}
		end += size
	}
	c.off = end

	tok := &token{raw: c.src[start:end], pos: start}
	body := tok.raw
	if strings.HasPrefix(body, "-") {
		tok.neg = true
		body = body[1:]
	}
	if key, val, ok := strings.Cut(body, ":"); ok && filterKeys[strings.ToLower(key)] {
		tok.key = strings.ToLower(key)
		body = val
	}
	if len(body) >= 2 && strings.HasPrefix(body, `"`) && strings.HasSuffix(body, `"`) {
		tok.quoted = true
		body = body[1 : len(body)-1]
	}
	tok.value = body
	return tok, nil
}

func (c *compiler) apply(tok *token) error {
	if tok.key == "" || tok.key == "title" {
		terms := analysis.Terms(tok.value)
		if len(terms) == 0 {
			if tok.key != "" {
				return &apperr.QuerySyntaxError{Token: tok.raw, Pos: tok.pos, Reason: "missing value for " + tok.key}
			}
			return nil
		}
		clause := Clause{Terms: terms, Phrase: tok.quoted || len(terms) > 1, Field: tok.key}
		if tok.neg {
			c.q.MustNot = append(c.q.MustNot, clause)
		} else {
			c.q.Must = append(c.q.Must, clause)
		}
		return nil
	}

	value := strings.TrimSpace(tok.value)
	if value == "" {
		return &apperr.QuerySyntaxError{Token: tok.raw, Pos: tok.pos, Reason: "missing value for " + tok.key}
	}

	switch tok.key {
	case "tag":
		if tok.neg {
			c.q.TagOut = append(c.q.TagOut, value)
		} else {
			c.q.TagIn = append(c.q.TagIn, value)
		}
	case "author":
		if tok.neg {
			return &apperr.QuerySyntaxError{Token: tok.raw, Pos: tok.pos, Reason: "author filter cannot be negated"}
		}
		c.q.Authors = append(c.q.Authors, strings.ToLower(value))
	case "since", "until":
		if tok.neg {
			return &apperr.QuerySyntaxError{Token: tok.raw, Pos: tok.pos, Reason: tok.key + " filter cannot be negated"}
		}
		t, layout, err := parser.ParseDateLayout(value)
		if err != nil {
			return &apperr.QuerySyntaxError{Token: tok.raw, Pos: tok.pos, Reason: "invalid date"}
		}
		if tok.key == "since" {
			if c.q.Since == nil || t.After(*c.q.Since) {
				c.q.Since = &t
			}
			return nil
		}
		if layout != "" && !parser.HasClock(layout) {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		if c.q.Until == nil || t.Before(*c.q.Until) {
			c.q.Until = &t
		}
	}
	return nil
}
