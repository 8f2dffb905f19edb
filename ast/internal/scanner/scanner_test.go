// Copyright 2020 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package scanner

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/regolith-dev/regolith/ast/internal/tokens"
)

type scanned struct {
	Tok tokens.Token
	Lit string
}

func scanAll(t *testing.T, input string) ([]scanned, []Position) {
	t.Helper()
	s, err := New(bytes.NewBufferString(input))
	if err != nil {
		t.Fatal(err)
	}
	var out []scanned
	var pos []Position
	for {
		tok, p, lit, errs := s.Scan()
		if len(errs) > 0 {
			t.Fatalf("Unexpected error(s) on %q: %v", input, errs)
		}
		if tok == tokens.Whitespace {
			continue
		}
		out = append(out, scanned{tok, lit})
		pos = append(pos, p)
		if tok == tokens.EOF {
			return out, pos
		}
	}
}

func TestScanRule(t *testing.T) {
	got, _ := scanAll(t, "p contains x if { x := 1.5e3; x != \"a\" } # done")
	want := []scanned{
		{tokens.Ident, "p"},
		{tokens.Contains, "contains"},
		{tokens.Ident, "x"},
		{tokens.If, "if"},
		{tokens.LBrace, ""},
		{tokens.Ident, "x"},
		{tokens.Assign, ""},
		{tokens.Number, "1.5e3"},
		{tokens.Semicolon, ""},
		{tokens.Ident, "x"},
		{tokens.Neq, ""},
		{tokens.String, `"a"`},
		{tokens.RBrace, ""},
		{tokens.Comment, "# done"},
		{tokens.EOF, ""},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Unexpected tokens (-want, +got):\n%s", diff)
	}
}

func TestScanOperators(t *testing.T) {
	tests := []struct {
		input string
		want  tokens.Token
	}{
		{"=", tokens.Unify},
		{"==", tokens.Equal},
		{":=", tokens.Assign},
		{":", tokens.Colon},
		{"<", tokens.Lt},
		{"<=", tokens.Lte},
		{">", tokens.Gt},
		{">=", tokens.Gte},
		{"&", tokens.And},
		{"|", tokens.Or},
		{"%", tokens.Rem},
		{"not", tokens.Not},
		{"every", tokens.Every},
		{"notx", tokens.Ident},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			got, _ := scanAll(t, tc.input)
			if len(got) != 2 || got[0].Tok != tc.want {
				t.Fatalf("Expected %v but got %v", tc.want, got)
			}
		})
	}
}

func TestPositions(t *testing.T) {
	tests := []struct {
		note      string
		input     string
		wantStart int
		wantEnd   int
	}{
		{note: "symbol", input: "(", wantEnd: 1},
		{note: "assign", input: ":=", wantEnd: 2},
		{note: "ident", input: "foo", wantEnd: 3},
		{note: "string with wide char", input: `"foo÷"`, wantEnd: 7},
		{note: "raw string", input: "`a\nb`", wantEnd: 5},
		{note: "comment stops at newline", input: "# foo\n", wantEnd: 5},
		{note: "leading bom", input: "\ufeffx", wantStart: 3, wantEnd: 4},
	}

	for _, tc := range tests {
		t.Run(tc.note, func(t *testing.T) {
			s, err := New(bytes.NewBufferString(tc.input))
			if err != nil {
				t.Fatal(err)
			}
			_, pos, _, _ := s.Scan()
			if pos.Offset != tc.wantStart || pos.End != tc.wantEnd {
				t.Fatalf("Expected [%d, %d) but got [%d, %d)", tc.wantStart, tc.wantEnd, pos.Offset, pos.End)
			}
		})
	}
}

func TestRowsAndColumns(t *testing.T) {
	_, pos := scanAll(t, "a\n  b")
	if pos[0].Row != 1 || pos[0].Col != 1 {
		t.Fatalf("Expected a at 1:1 but got %d:%d", pos[0].Row, pos[0].Col)
	}
	if pos[1].Row != 2 || pos[1].Col != 3 {
		t.Fatalf("Expected b at 2:3 but got %d:%d", pos[1].Row, pos[1].Col)
	}
}

func TestScanErrors(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{input: "0e", want: "expected exponent"},
		{input: "1.", want: "expected fraction"},
		{input: "12ab", want: "illegal number format"},
		{input: `"abc`, want: "non-terminated string"},
		{input: "`abc", want: "non-terminated string"},
		{input: `"\q"`, want: "illegal escape sequence"},
		{input: "!", want: "illegal ! character"},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			s, err := New(bytes.NewBufferString(tc.input))
			if err != nil {
				t.Fatal(err)
			}
			_, _, _, errs := s.Scan()
			if len(errs) == 0 || errs[0].Message != tc.want {
				t.Fatalf("Expected %q but got %v", tc.want, errs)
			}
		})
	}
}

func TestIllegalRune(t *testing.T) {
	s, err := New(bytes.NewBufferString(`墳`))
	if err != nil {
		t.Fatal(err)
	}
	if tok, _, _, _ := s.Scan(); tok != tokens.Illegal {
		t.Fatalf("Expected illegal token but got %v", tok)
	}
}
