// Package parser turns the raw bytes of a Markdown note into a Document:
// a leading YAML frontmatter block followed by a free-text body.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"gopkg.in/yaml.v3"

	"github.com/starford/xq/internal/apperr"
	"github.com/starford/xq/internal/checksum"
	"github.com/starford/xq/internal/models"
)

const delim = "---"

// dateLayouts are tried before falling back to dateparse.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05-0700",
	"2006-01-02",
}

// Parse builds a Document from the content of the file at path.
// The content hash covers the raw bytes, so formatting-only edits still
// produce a new hash.
func Parse(path string, data []byte) (*models.Document, error) {
	block, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, withPath(err, path)
	}

	doc := &models.Document{
		ID:          checksum.DocID(path),
		Path:        path,
		ContentHash: checksum.Sum(data),
		Body:        body,
		Text:        PlainText([]byte(body)),
	}
	if err := decodeFrontmatter(block, doc); err != nil {
		return nil, withPath(err, path)
	}
	return doc, nil
}

// splitFrontmatter separates the YAML block between the leading delimiters
// from the Markdown body.
func splitFrontmatter(data []byte) ([]byte, string, error) {
	trimmed := bytes.TrimPrefix(data, []byte("\ufeff"))
	trimmed = bytes.TrimLeft(trimmed, "\n\r")

	first, rest, _ := bytes.Cut(trimmed, []byte("\n"))
	if string(bytes.TrimRight(first, " \t\r")) != delim {
		return nil, "", &apperr.ParseError{Kind: apperr.ErrNoFrontmatter}
	}

	offset := 0
	for offset <= len(rest) {
		line, after, found := bytes.Cut(rest[offset:], []byte("\n"))
		switch string(bytes.TrimRight(line, " \t\r")) {
		case delim, "...":
			body := ""
			if found {
				body = strings.TrimLeft(string(after), "\n\r")
			}
			return rest[:offset], body, nil
		}
		if !found {
			break
		}
		offset += len(line) + 1
	}
	return nil, "", &apperr.ParseError{
		Kind: apperr.ErrMalformedFrontmatter,
		Err:  errors.New("unterminated frontmatter block"),
	}
}

func decodeFrontmatter(block []byte, doc *models.Document) error {
	var root yaml.Node
	if err := yaml.Unmarshal(block, &root); err != nil {
		return &apperr.ParseError{Kind: apperr.ErrMalformedFrontmatter, Err: err}
	}

	var fields *yaml.Node
	switch {
	case root.Kind == 0 || len(root.Content) == 0:
		fields = &yaml.Node{Kind: yaml.MappingNode}
	case root.Content[0].Kind == yaml.MappingNode:
		fields = root.Content[0]
	default:
		return &apperr.ParseError{
			Kind: apperr.ErrMalformedFrontmatter,
			Err:  errors.New("frontmatter is not a key/value mapping"),
		}
	}

	var authors, tags []string
	for i := 0; i+1 < len(fields.Content); i += 2 {
		key := strings.ToLower(strings.TrimSpace(fields.Content[i].Value))
		val := fields.Content[i+1]

		var err error
		switch key {
		case "title":
			doc.Title, err = scalar(val)
		case "subtitle":
			doc.Subtitle, err = scalar(val)
		case "author", "authors":
			var list []string
			list, err = stringList(val)
			authors = append(authors, list...)
		case "tags":
			tags, err = stringList(val)
		case "date":
			doc.Date, err = parseDate(val)
		}
		if err != nil {
			return &apperr.ParseError{Kind: apperr.ErrMalformedFrontmatter, Field: key, Err: err}
		}
	}

	doc.Title = strings.TrimSpace(doc.Title)
	if doc.Title == "" {
		return &apperr.ParseError{Kind: apperr.ErrMissingField, Field: "title"}
	}
	doc.Subtitle = strings.TrimSpace(doc.Subtitle)
	doc.Authors = dedup(authors, strings.TrimSpace)
	doc.Tags = NormalizeTags(tags)
	return nil
}

func scalar(n *yaml.Node) (string, error) {
	if n.Kind != yaml.ScalarNode {
		return "", fmt.Errorf("expected a single value at line %d", n.Line)
	}
	if n.Tag == "!!null" {
		return "", nil
	}
	return n.Value, nil
}

// stringList accepts either a single scalar or a sequence of scalars.
func stringList(n *yaml.Node) ([]string, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Tag == "!!null" || strings.TrimSpace(n.Value) == "" {
			return nil, nil
		}
		return []string{n.Value}, nil
	case yaml.SequenceNode:
		out := make([]string, 0, len(n.Content))
		for _, item := range n.Content {
			v, err := scalar(item)
			if err != nil {
				return nil, err
			}
			if strings.TrimSpace(v) != "" {
				out = append(out, v)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a string or a list at line %d", n.Line)
	}
}

func parseDate(n *yaml.Node) (time.Time, error) {
	v, err := scalar(n)
	if err != nil || v == "" {
		return time.Time{}, err
	}
	if n.Tag == "!!int" {
		secs, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(secs, 0).UTC(), nil
	}
	return ParseDate(v)
}

// ParseDate parses a date the way frontmatter and query filters accept it.
// Values without a zone are interpreted as UTC.
func ParseDate(v string) (time.Time, error) {
	t, _, err := ParseDateLayout(v)
	return t, err
}

// ParseDateLayout parses v like ParseDate and also returns the layout that
// matched it. The layout is empty when v has no fixed layout, e.g. an epoch.
func ParseDateLayout(v string) (time.Time, string, error) {
	v = strings.TrimSpace(v)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), layout, nil
		}
	}
	t, err := dateparse.ParseIn(v, time.UTC)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("unrecognised date %q", v)
	}
	layout, err := dateparse.ParseFormat(v)
	if err != nil {
		layout = ""
	}
	return t.UTC(), layout, nil
}

// HasClock reports whether a layout returned by ParseDateLayout carries a
// time of day.
func HasClock(layout string) bool {
	return strings.Contains(layout, ":") || strings.Contains(layout, "15")
}

// NormalizeTags lowercases, trims and deduplicates tags, returning them sorted.
func NormalizeTags(tags []string) []string {
	out := dedup(tags, func(s string) string { return strings.ToLower(strings.TrimSpace(s)) })
	slices.Sort(out)
	return out
}

func dedup(in []string, norm func(string) string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = norm(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func withPath(err error, path string) error {
	var pe *apperr.ParseError
	if errors.As(err, &pe) {
		pe.Path = path
	}
	return err
}

// ParsePlain builds a Document for a file that has no frontmatter. The title
// is the file name without its extension and the whole content is the body.
func ParsePlain(path string, data []byte) *models.Document {
	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	body := string(data)
	return &models.Document{
		ID:          checksum.DocID(path),
		Path:        path,
		ContentHash: checksum.Sum(data),
		Title:       title,
		Body:        body,
		Text:        PlainText(data),
	}
}
