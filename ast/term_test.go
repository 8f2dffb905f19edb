// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package ast

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCompareKinds(t *testing.T) {
	ordered := []*Term{
		NullTerm(),
		BooleanTerm(false),
		BooleanTerm(true),
		IntNumberTerm(-1),
		NumberTerm("0.5"),
		IntNumberTerm(2),
		StringTerm(""),
		StringTerm("a"),
		VarTerm("x"),
		MustParseTerm("data.a"),
		ArrayTerm(),
		ArrayTerm(IntNumberTerm(1)),
		ObjectTerm(),
		ObjectTerm(Item(StringTerm("a"), IntNumberTerm(1))),
		SetTerm(),
		SetTerm(IntNumberTerm(1)),
		MustParseTerm("[x | x := 1]"),
	}

	for i := 0; i < len(ordered); i++ {
		for j := 0; j < len(ordered); j++ {
			exp := 0
			if i < j {
				exp = -1
			} else if i > j {
				exp = 1
			}
			if cmp := Compare(ordered[i], ordered[j]); cmp != exp {
				t.Fatalf("Compare(%v, %v): expected %d but got %d", ordered[i], ordered[j], exp, cmp)
			}
		}
	}
}

func TestCompareNumbers(t *testing.T) {
	tests := []struct {
		a, b string
		exp  int
	}{
		{"1", "1.0", 0},
		{"1e2", "100", 0},
		{"0.1", "0.10000000000000000001", -1},
		{"12345678901234567890", "12345678901234567891", -1},
		{"-3", "-2.5", -1},
	}

	for _, tc := range tests {
		if cmp := Compare(Number(tc.a), Number(tc.b)); cmp != tc.exp {
			t.Errorf("Compare(%v, %v): expected %d but got %d", tc.a, tc.b, tc.exp, cmp)
		}
	}
}

func TestCompareComposites(t *testing.T) {
	tests := []struct {
		note string
		a, b string
		exp  int
	}{
		{"array prefix", "[1, 2]", "[1, 2, 3]", -1},
		{"array element", "[1, 3]", "[1, 2, 3]", 1},
		{"object keys", `{"a": 1}`, `{"b": 0}`, -1},
		{"object values", `{"a": 1}`, `{"a": 2}`, -1},
		{"object order independent", `{"a": 1, "b": 2}`, `{"b": 2, "a": 1}`, 0},
		{"set order independent", "{3, 1, 2}", "{1, 2, 3}", 0},
		{"set elements", "{1, 2}", "{1, 3}", -1},
	}

	for _, tc := range tests {
		t.Run(tc.note, func(t *testing.T) {
			if cmp := Compare(MustParseTerm(tc.a), MustParseTerm(tc.b)); cmp != tc.exp {
				t.Fatalf("Expected %d but got %d", tc.exp, cmp)
			}
		})
	}
}

func TestHashEqualValues(t *testing.T) {
	pairs := [][2]string{
		{`{"a": [1, {2}], "b": null}`, `{"b": null, "a": [1, {2}]}`},
		{"{1, 2, 3}", "{3, 2, 1}"},
		{`"foo"`, `"foo"`},
	}

	for _, p := range pairs {
		a, b := MustParseTerm(p[0]), MustParseTerm(p[1])
		if !a.Equal(b) {
			t.Fatalf("Expected %v to equal %v", a, b)
		}
		if a.Hash() != b.Hash() {
			t.Fatalf("Expected equal hashes for %v and %v", a, b)
		}
	}
}

func TestSetDeduplicates(t *testing.T) {
	s := NewSet(IntNumberTerm(2), IntNumberTerm(1), IntNumberTerm(2), NumberTerm("1.0"))
	if s.Len() != 2 {
		t.Fatalf("Expected two elements but got %v", s)
	}
	if !s.Contains(IntNumberTerm(1)) {
		t.Fatalf("Expected set to contain 1: %v", s)
	}
}

func TestObjectInsertReplaces(t *testing.T) {
	obj := NewObject(Item(StringTerm("b"), IntNumberTerm(1)))
	obj.Insert(StringTerm("a"), IntNumberTerm(2))
	obj.Insert(StringTerm("b"), IntNumberTerm(3))

	var keys []string
	for _, k := range obj.Keys() {
		keys = append(keys, string(k.Value.(String)))
	}
	if diff := cmp.Diff([]string{"a", "b"}, keys); diff != "" {
		t.Fatalf("Unexpected keys (-want, +got):\n%s", diff)
	}
	if Compare(obj.Get(StringTerm("b")), IntNumberTerm(3)) != 0 {
		t.Fatalf("Expected replaced value but got %v", obj.Get(StringTerm("b")))
	}
}

func TestJSONToValuePrecision(t *testing.T) {
	v, err := JSONToValue([]byte(`{"big": 123456789012345678901234567890, "xs": [1.50, "a", null, true]}`))
	if err != nil {
		t.Fatal(err)
	}
	big := v.(Object).Get(StringTerm("big"))
	if big.Value.(Number) != "123456789012345678901234567890" {
		t.Fatalf("Expected number text to be preserved but got %v", big)
	}

	if _, err := JSONToValue([]byte(`{} {}`)); err == nil {
		t.Fatal("Expected error for trailing data")
	}
}

func TestValueToInterface(t *testing.T) {
	tests := []struct {
		note  string
		input string
		exp   string
	}{
		{"set becomes sorted array", "{3, 1, 2}", "[1,2,3]"},
		{"non-string key", `{1: "a", "b": {true}}`, `{"1":"a","b":[true]}`},
		{"nested", `[null, {"x": [1.5]}]`, `[null,{"x":[1.5]}]`},
	}

	for _, tc := range tests {
		t.Run(tc.note, func(t *testing.T) {
			x, err := JSON(MustParseTerm(tc.input).Value)
			if err != nil {
				t.Fatal(err)
			}
			bs, err := json.Marshal(x)
			if err != nil {
				t.Fatal(err)
			}
			if string(bs) != tc.exp {
				t.Fatalf("Expected %v but got %v", tc.exp, string(bs))
			}
		})
	}

	if _, err := JSON(MustParseTerm("[x | x := 1]").Value); err == nil {
		t.Fatal("Expected error for non-ground value")
	}
}

func TestRefHelpers(t *testing.T) {
	ref := MustParseRef(`data.a.b[x]["c"]`)

	if !ref.HasPrefix(MustParseRef("data.a")) {
		t.Fatal("Expected prefix")
	}
	if ref.HasPrefix(MustParseRef("data.b")) {
		t.Fatal("Unexpected prefix")
	}
	if ref.GroundPrefix().String() != "data.a.b" {
		t.Fatalf("Unexpected ground prefix: %v", ref.GroundPrefix())
	}
	if ref.Append(StringTerm("d")).String() != `data.a.b[x].c.d` {
		t.Fatalf("Unexpected append result: %v", ref.Append(StringTerm("d")))
	}
}

func TestVarSet(t *testing.T) {
	a := NewVarSet("x", "y")
	b := NewVarSet("y", "z")

	if diff := cmp.Diff([]Var{"x"}, a.Diff(b).Sorted()); diff != "" {
		t.Fatalf("Unexpected diff:\n%s", diff)
	}
	if diff := cmp.Diff([]Var{"y"}, a.Intersect(b).Sorted()); diff != "" {
		t.Fatalf("Unexpected intersection:\n%s", diff)
	}
	c := a.Copy()
	c.Update(b)
	if diff := cmp.Diff([]Var{"x", "y", "z"}, c.Sorted()); diff != "" {
		t.Fatalf("Unexpected union:\n%s", diff)
	}
	if a.Contains("z") {
		t.Fatal("Copy modified original")
	}
}
