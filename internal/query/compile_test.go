package query

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/starford/xq/internal/apperr"
)

func TestCompile_PhraseTagsAndDate(t *testing.T) {
	q, err := Compile(`"exact phrase" tag:vim -tag:draft since:2021-01-01`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	wantMust := []Clause{{Terms: []string{"exact", "phrase"}, Phrase: true}}
	if !reflect.DeepEqual(q.Must, wantMust) {
		t.Errorf("must = %+v, want %+v", q.Must, wantMust)
	}
	if !reflect.DeepEqual(q.TagIn, []string{"vim"}) {
		t.Errorf("tag_in = %v", q.TagIn)
	}
	if !reflect.DeepEqual(q.TagOut, []string{"draft"}) {
		t.Errorf("tag_out = %v", q.TagOut)
	}
	if q.Since == nil || !q.Since.Equal(time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("since = %v", q.Since)
	}
	if q.Until != nil || len(q.MustNot) != 0 {
		t.Errorf("unexpected clauses: %+v", q)
	}
}

func TestCompile_Deterministic(t *testing.T) {
	const s = `"exact phrase" tag:vim -tag:draft since:2021-01-01 foo -bar author:Ada`
	a, err := Compile(s)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Compile(s)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Errorf("compiling twice differs:\n%+v\n%+v", a, b)
	}
}

func TestCompile_CanonicalStringRoundTrip(t *testing.T) {
	a, err := Compile(`Foo "a b" -c tag:"two words" title:plan until:2022-05-01 author:ada`)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Compile(a.String())
	if err != nil {
		t.Fatalf("recompile %q: %v", a.String(), err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Errorf("round trip differs:\n%+v\n%+v", a, b)
	}
}

func TestCompile_FreeText(t *testing.T) {
	q, err := Compile(`Vim  -Emacs vim-mode -"bad idea" - notes:here`)
	if err != nil {
		t.Fatal(err)
	}
	wantMust := []Clause{
		{Terms: []string{"vim"}},
		{Terms: []string{"vim", "mode"}, Phrase: true},
		{Terms: []string{"notes", "here"}, Phrase: true},
	}
	if !reflect.DeepEqual(q.Must, wantMust) {
		t.Errorf("must = %+v", q.Must)
	}
	wantNot := []Clause{
		{Terms: []string{"emacs"}},
		{Terms: []string{"bad", "idea"}, Phrase: true},
	}
	if !reflect.DeepEqual(q.MustNot, wantNot) {
		t.Errorf("must_not = %+v", q.MustNot)
	}
	if got := q.Terms(); !reflect.DeepEqual(got, []string{"here", "mode", "notes", "vim"}) {
		t.Errorf("terms = %v", got)
	}
}

func TestCompile_TitleField(t *testing.T) {
	q, err := Compile(`title:roadmap`)
	if err != nil {
		t.Fatal(err)
	}
	want := []Clause{{Terms: []string{"roadmap"}, Field: "title"}}
	if !reflect.DeepEqual(q.Must, want) {
		t.Errorf("must = %+v", q.Must)
	}
}

func TestCompile_UntilDateCoversWholeDay(t *testing.T) {
	q, err := Compile("until:2021-06-30")
	if err != nil {
		t.Fatal(err)
	}
	if q.Until == nil {
		t.Fatal("until not set")
	}
	inside := time.Date(2021, 6, 30, 23, 0, 0, 0, time.UTC)
	if q.Until.Before(inside) {
		t.Errorf("until = %v excludes %v", q.Until, inside)
	}
	if !q.Until.Before(time.Date(2021, 7, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("until = %v spills into the next day", q.Until)
	}
}

func TestCompile_UntilSpelledOutDateCoversWholeDay(t *testing.T) {
	for _, in := range []string{`until:"OCT 3 2021"`, `until:"Oct 3 2021"`} {
		q, err := Compile(in)
		if err != nil {
			t.Fatalf("%s: %v", in, err)
		}
		want := time.Date(2021, 10, 3, 23, 59, 59, 999999999, time.UTC)
		if q.Until == nil || !q.Until.Equal(want) {
			t.Errorf("%s: until = %v, want %v", in, q.Until, want)
		}
	}
}

func TestCompile_UntilWithClockIsExact(t *testing.T) {
	q, err := Compile("until:2021-10-03T10:00:00Z")
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2021, 10, 3, 10, 0, 0, 0, time.UTC)
	if q.Until == nil || !q.Until.Equal(want) {
		t.Errorf("until = %v, want %v", q.Until, want)
	}
}

func TestCompile_EmptyInput(t *testing.T) {
	q, err := Compile("   ")
	if err != nil {
		t.Fatal(err)
	}
	if !q.IsEmpty() {
		t.Errorf("expected empty query, got %+v", q)
	}
}

func TestCompile_SyntaxErrors(t *testing.T) {
	cases := []struct {
		input string
		token string
		pos   int
	}{
		{`foo "unterminated phrase`, `"unterminated phrase`, 4},
		{`tag:`, `tag:`, 0},
		{`foo -tag:`, `-tag:`, 4},
		{`since:yesterdayish`, `since:yesterdayish`, 0},
		{`a until:`, `until:`, 2},
		{`-author:x`, `-author:x`, 0},
		{`title:""`, `title:""`, 0},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			_, err := Compile(tc.input)
			if !errors.Is(err, apperr.ErrQuerySyntax) {
				t.Fatalf("err = %v, want ErrQuerySyntax", err)
			}
			var se *apperr.QuerySyntaxError
			if !errors.As(err, &se) {
				t.Fatalf("err %T is not a QuerySyntaxError", err)
			}
			if se.Token != tc.token || se.Pos != tc.pos {
				t.Errorf("token/pos = %q/%d, want %q/%d", se.Token, se.Pos, tc.token, tc.pos)
			}
		})
	}
}
