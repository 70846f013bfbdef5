package parser

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/starford/xq/internal/apperr"
	"github.com/starford/xq/internal/checksum"
)

func TestParse_FrontmatterAndBody(t *testing.T) {
	input := []byte("---\ntitle: Hello\nsubtitle: again\ntags:\n  - Go\n  - vim\n  - go\nauthor: Ada\ndate: 2021-03-04T10:00:00Z\n---\n\n# Hello\nBody *text*.\n")
	d, err := Parse("/notes/hello.md", input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Title != "Hello" || d.Subtitle != "again" {
		t.Errorf("title/subtitle = %q/%q", d.Title, d.Subtitle)
	}
	if !reflect.DeepEqual(d.Tags, []string{"go", "vim"}) {
		t.Errorf("tags = %v, want [go vim]", d.Tags)
	}
	if !reflect.DeepEqual(d.Authors, []string{"Ada"}) {
		t.Errorf("authors = %v", d.Authors)
	}
	if want := time.Date(2021, 3, 4, 10, 0, 0, 0, time.UTC); !d.Date.Equal(want) {
		t.Errorf("date = %v, want %v", d.Date, want)
	}
	if d.Body != "# Hello\nBody *text*.\n" {
		t.Errorf("body = %q", d.Body)
	}
	if d.Text != "Hello\nBody text." {
		t.Errorf("text = %q", d.Text)
	}
	if d.ID != checksum.DocID("/notes/hello.md") {
		t.Errorf("id not derived from path")
	}
	if d.ContentHash != checksum.Sum(input) {
		t.Errorf("content hash not computed over raw bytes")
	}
}

func TestParse_HashChangesOnFormattingOnly(t *testing.T) {
	a, err := Parse("a.md", []byte("---\ntitle: A\n---\nbody\n"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Parse("a.md", []byte("---\ntitle:  A\n---\nbody\n"))
	if err != nil {
		t.Fatal(err)
	}
	if a.ContentHash == b.ContentHash {
		t.Error("formatting change must change the content hash")
	}
	if a.Title != b.Title {
		t.Error("parsed title should not differ")
	}
}

func TestParse_NoFrontmatter(t *testing.T) {
	_, err := Parse("plain.md", []byte("# Just a heading\nSome text.\n"))
	if !errors.Is(err, apperr.ErrNoFrontmatter) {
		t.Fatalf("err = %v, want ErrNoFrontmatter", err)
	}
	var pe *apperr.ParseError
	if !errors.As(err, &pe) || pe.Path != "plain.md" {
		t.Errorf("ParseError path not set: %v", err)
	}
}

func TestParse_MissingTitle(t *testing.T) {
	_, err := Parse("x.md", []byte("---\ntags: [a]\n---\nbody\n"))
	if !errors.Is(err, apperr.ErrMissingField) {
		t.Fatalf("err = %v, want ErrMissingField", err)
	}
	var pe *apperr.ParseError
	if errors.As(err, &pe) && pe.Field != "title" {
		t.Errorf("field = %q, want title", pe.Field)
	}

	_, err = Parse("x.md", []byte("---\ntitle: \"  \"\n---\nbody\n"))
	if !errors.Is(err, apperr.ErrMissingField) {
		t.Errorf("blank title: err = %v, want ErrMissingField", err)
	}
}

func TestParse_Malformed(t *testing.T) {
	cases := map[string]string{
		"invalid yaml": "---\ntitle: [unclosed\n---\nbody\n",
		"unterminated": "---\ntitle: A\nbody without closing\n",
		"not a map":    "---\n- a\n- b\n---\nbody\n",
		"bad date":     "---\ntitle: A\ndate: not a date at all\n---\n",
		"nested tags":  "---\ntitle: A\ntags:\n  k: v\n---\n",
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse("m.md", []byte(input))
			if !errors.Is(err, apperr.ErrMalformedFrontmatter) {
				t.Errorf("err = %v, want ErrMalformedFrontmatter", err)
			}
		})
	}
}

func TestParse_StringOrListFields(t *testing.T) {
	d, err := Parse("s.md", []byte("---\ntitle: S\ntags: Draft\nauthor: Ada\nauthors:\n  - Grace\n  - Ada\n---\n"))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(d.Tags, []string{"draft"}) {
		t.Errorf("tags = %v", d.Tags)
	}
	if !reflect.DeepEqual(d.Authors, []string{"Ada", "Grace"}) {
		t.Errorf("authors = %v", d.Authors)
	}
	if d.Body != "" {
		t.Errorf("body = %q, want empty", d.Body)
	}
}

func TestParse_DateFormats(t *testing.T) {
	want := time.Date(2021, 1, 2, 3, 4, 5, 0, time.UTC)
	cases := map[string]string{
		"rfc3339":      "2021-01-02T03:04:05Z",
		"numeric zone": "2021-01-02T04:04:05+0100",
		"epoch":        "1609556645",
	}
	for name, v := range cases {
		t.Run(name, func(t *testing.T) {
			d, err := Parse("d.md", []byte("---\ntitle: D\ndate: "+v+"\n---\n"))
			if err != nil {
				t.Fatal(err)
			}
			if !d.Date.Equal(want) {
				t.Errorf("date = %v, want %v", d.Date, want)
			}
		})
	}

	d, err := Parse("d.md", []byte("---\ntitle: D\ndate: 2021-01-02\n---\n"))
	if err != nil {
		t.Fatal(err)
	}
	if !d.Date.Equal(time.Date(2021, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("plain date = %v", d.Date)
	}
}

func TestParseDateLayout(t *testing.T) {
	cases := []struct {
		in    string
		clock bool
	}{
		{"2021-10-03", false},
		{"2021-10-03T10:00:00Z", true},
		{"OCT 3 2021", false},
		{"2021-10-03 10:30:00", true},
	}
	for _, tc := range cases {
		_, layout, err := ParseDateLayout(tc.in)
		if err != nil {
			t.Fatalf("%q: %v", tc.in, err)
		}
		if layout == "" {
			t.Fatalf("%q: no layout", tc.in)
		}
		if got := HasClock(layout); got != tc.clock {
			t.Errorf("%q: layout %q clock = %v, want %v", tc.in, layout, got, tc.clock)
		}
	}
}

func TestParse_LeadingBlankLinesAndDotsDelimiter(t *testing.T) {
	d, err := Parse("l.md", []byte("\n\n---\ntitle: L\n...\nrest\n"))
	if err != nil {
		t.Fatal(err)
	}
	if d.Body != "rest\n" {
		t.Errorf("body = %q", d.Body)
	}
}

func TestPlainText_StripsMarkup(t *testing.T) {
	got := PlainText([]byte("Some [link](http://x) and `code`.\n\n```\nfenced block\n```\n<div>html</div>\n"))
	if !strings.Contains(got, "Some link and code.") {
		t.Errorf("text = %q", got)
	}
	if !strings.Contains(got, "fenced block") {
		t.Errorf("fenced code dropped: %q", got)
	}
	if strings.Contains(got, "<div>") {
		t.Errorf("html kept: %q", got)
	}
}

func TestParsePlain(t *testing.T) {
	d := ParsePlain("/notes/todo list.md", []byte("# Todo\n- milk\n"))
	if d.Title != "todo list" {
		t.Errorf("title = %q", d.Title)
	}
	if d.Body != "# Todo\n- milk\n" || !strings.Contains(d.Text, "milk") {
		t.Errorf("body/text = %q/%q", d.Body, d.Text)
	}
}
