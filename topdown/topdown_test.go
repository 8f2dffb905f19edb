// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package topdown

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/regolith-dev/regolith/ast"
	"github.com/regolith-dev/regolith/metrics"
	"github.com/regolith-dev/regolith/util"
	testutil "github.com/regolith-dev/regolith/util/test"
)

func TestTopDownCompleteDoc(t *testing.T) {
	tests := []struct {
		note     string
		rule     string
		expected interface{}
	}{
		{"undefined", `p := null if { false }`, ""},
		{"null", `p := null if { true }`, "null"},
		{"bool: true", `p := true if { true }`, "true"},
		{"bool: false", `p := false if { true }`, "false"},
		{"implicit true", `p if { true }`, "true"},
		{"number: 3", `p := 3 if { true }`, "3"},
		{"number: 3.0", `p := 3.0 if { true }`, "3"},
		{"number: 66.66667", `p := 66.66667 if { true }`, "66.66667"},
		{`string: "hello"`, `p := "hello" if { true }`, `"hello"`},
		{`string: ""`, `p := "" if { true }`, `""`},
		{"array: [1,2,3,4]", `p := [1, 2, 3, 4] if { true }`, "[1,2,3,4]"},
		{"array: []", `p := [] if { true }`, "[]"},
		{"object nested composites", `p := {"a": [1], "b": [2], "c": [3]} if { true }`, `{"a": [1], "b": [2], "c": [3]}`},
		{"set nested", `p := {{1, 2}, {2, 3}} if { true }`, "{{1,2}, {2,3}}"},
		{"vars", `p := {"a": [x, y]} if { x := 1; y := 2 }`, `{"a": [1,2]}`},
		{"no body", `p := 7`, "7"},
		{"same value twice", `p := x if { x := [1, 1][_] }`, "1"},
		{"vars conflict", `p := {"a": [x, y]} if { xs := [1, 2]; ys := [1, 2]; x := xs[_]; y := ys[_] }`,
			errors.New("complete rules must not produce multiple outputs")},
	}

	data := loadSmallTestData()

	for _, tc := range tests {
		runTopDownTestCase(t, data, tc.note, []string{tc.rule}, tc.expected)
	}
}

func TestTopDownQueryIDsUnique(t *testing.T) {

	compiler := compileModules([]string{`package x

p if { 1 }
p if { 2 }

q if { true }`})

	tr := NewBufferTracer()

	query := NewQuery(ast.MustParseBody("data.x.p; data.x.q")).
		WithCompiler(compiler).
		WithTracer(tr)

	if _, err := query.Run(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	queryIDs := map[uint64]bool{}

	for _, evt := range *tr {
		if evt.Op != EnterOp {
			continue
		}
		if queryIDs[evt.QueryID] {
			t.Errorf("Duplicate query ID: %v", evt)
		}
		queryIDs[evt.QueryID] = true
	}

	if len(queryIDs) < 4 {
		t.Fatalf("Expected an enter event per query and rule body but got: %v", queryIDs)
	}
}

func TestTopDownPartialSetDoc(t *testing.T) {
	tests := []struct {
		note     string
		rule     string
		expected interface{}
	}{
		{"array values", `p contains x if { x := data.a[_] }`, `{1, 2, 3, 4}`},
		{"bracket syntax", `p[x] if { x := data.a[_] }`, `{1, 2, 3, 4}`},
		{"array indices", `p contains x if { data.a[x] }`, `{0, 1, 2, 3}`},
		{"object keys", `p contains x if { data.b[x] }`, `{"v1", "v2"}`},
		{"object values", `p contains x if { x := data.b[_] }`, `{"hello", "goodbye"}`},
		{"nested composites", `p contains x if { x := data.f[_] }`, `{{"xs": [1.0], "ys": [2.0]}, {"xs": [2.0], "ys": [3.0]}}`},
		{"deduplicated", `p contains x if { x := [1, 1, 2][_] }`, `{1, 2}`},
		{"empty", `p contains x if { x := data.m[_] }`, `set()`},
	}

	data := loadSmallTestData()

	for _, tc := range tests {
		runTopDownTestCase(t, data, tc.note, []string{tc.rule}, tc.expected)
	}
}

func TestTopDownPartialObjectDoc(t *testing.T) {
	tests := []struct {
		note     string
		rules    []string
		expected interface{}
	}{
		{"identity", []string{`p[k] := v if { v := data.b[k] }`}, `{"v1": "hello", "v2": "goodbye"}`},
		{"composites", []string{`p[k] := v if { v := data.d[k] }`}, `{"e": ["bar", "baz"]}`},
		{"body/join var", []string{`p[c] := z if { data.g[c][z] = data.a[z] }`}, `{"a": 0, "b": 1, "c": 3}`},
		{"multiple rules", []string{`p["a"] := 1`, `p["b"] := 2`}, `{"a": 1, "b": 2}`},
		{"same key same value", []string{`p[k] := 1 if { k := ["x", "x"][_] }`}, `{"x": 1}`},
		{"non-string key", []string{`p[k] := v if { v := data.a[k] }`}, `{0: 1, 1: 2, 2: 3, 3: 4}`},
		{"same key different value", []string{`p[k] := v if { k := "x"; v := data.a[_] }`}, errors.New("object keys must be unique")},
	}

	data := loadSmallTestData()

	for _, tc := range tests {
		runTopDownTestCase(t, data, tc.note, tc.rules, tc.expected)
	}
}

func TestTopDownEvalTermExpr(t *testing.T) {
	tests := []struct {
		note     string
		rule     string
		expected string
	}{
		{"true", `p if { true }`, "true"},
		{"false", `p if { false }`, ""},
		{"number non-zero", `p if { -3.14 }`, "true"},
		{"number zero", `p if { 0 }`, "true"},
		{"null", `p if { null }`, "true"},
		{"string", `p if { "abc" }`, "true"},
		{"empty string", `p if { "" }`, "true"},
		{"array", `p if { [1, 2, 3] }`, "true"},
		{"empty array", `p if { [] }`, "true"},
		{"object", `p if { {"a": 1} }`, "true"},
		{"ref false", `p if { data.c[0].x[1] }`, ""},
		{"ref true", `p if { data.c[0].x[0] }`, "true"},
		{"ref undefined", `p if { data.c[0].x[9] }`, ""},
	}

	data := loadSmallTestData()

	for _, tc := range tests {
		runTopDownTestCase(t, data, tc.note, []string{tc.rule}, tc.expected)
	}
}

func TestTopDownEqExpr(t *testing.T) {
	tests := []struct {
		note     string
		rule     string
		expected interface{}
	}{
		{"scalar undefined", `p if { 1 = 2 }`, ""},
		{"var bound to scalar", `p := x if { x = 1 }`, "1"},
		{"array pattern", `p := [x, y] if { [x, 1, y] = [2, 1, 3] }`, "[2, 3]"},
		{"array pattern mismatch", `p := x if { [x, 1] = [2, 2] }`, ""},
		{"array length mismatch", `p := x if { [x] = data.a }`, ""},
		{"object pattern", `p := x if { {"a": x} = {"a": 7} }`, "7"},
		{"object keys mismatch", `p := x if { {"a": x} = {"b": 7} }`, ""},
		{"nested pattern", `p := [x, y] if { [{"k": x}, [y]] = [{"k": 1}, [2]] }`, "[1, 2]"},
		{"ref in pattern", `p := x if { [x, data.three] = [1, 3] }`, "1"},
		{"same var twice", `p := x if { [x, x] = [1, 1] }`, "1"},
		{"same var twice mismatch", `p := x if { [x, x] = [1, 2] }`, ""},
		{"number text", `p if { 1.0 = 1 }`, "true"},
		{"var to var", `p := y if { x = y; x = 5 }`, "5"},
		{"bound by later expression", `p := [a, b] if { a = b; b = 5 }`, "[5, 5]"},
		{"iterate and filter", `p contains x if { data.l[_] = {"a": x, "b": 1, "c": _, "d": null} }`, `{"alice"}`},
	}

	data := loadSmallTestData()

	for _, tc := range tests {
		runTopDownTestCase(t, data, tc.note, []string{tc.rule}, tc.expected)
	}
}

func TestTopDownComparisonExpr(t *testing.T) {
	tests := []struct {
		note     string
		rule     string
		expected interface{}
	}{
		{"equal", `p if { 1 == 1 }`, "true"},
		{"not equal", `p if { 1 != 2 }`, "true"},
		{"less than", `p if { 1 < 2 }`, "true"},
		{"less than or equal", `p if { 2 <= 2 }`, "true"},
		{"greater than", `p if { 2 > 1 }`, "true"},
		{"greater than or equal", `p if { 2 >= 2 }`, "true"},
		{"undefined", `p if { 1 > 2 }`, ""},
		{"numeric text", `p if { 1.50 == 1.5 }`, "true"},
		{"large numbers", `p if { 100000000000000000000001 > 100000000000000000000000 }`, "true"},
		{"strings", `p if { "a" < "b" }`, "true"},
		{"cross type order", `p if { null < false; false < 0; 0 < ""; "" < []; [] < {}; {} < set() }`, "true"},
		{"arrays", `p if { [1, 2] < [1, 3] }`, "true"},
		{"sets", `p if { {1, 2} == {2, 1} }`, "true"},
		{"value", `p := x if { x := 1 < 2 }`, "true"},
	}

	data := loadSmallTestData()

	for _, tc := range tests {
		runTopDownTestCase(t, data, tc.note, []string{tc.rule}, tc.expected)
	}
}

func TestTopDownVirtualDocs(t *testing.T) {
	tests := []struct {
		note     string
		rules    []string
		expected interface{}
	}{
		{"input: set", []string{`p contains x if { q[x] }`, `q contains x if { x := data.a[_] }`}, `{1, 2, 3, 4}`},
		{"input: set ground", []string{`p if { q[3] }`, `q contains x if { x := data.a[_] }`}, "true"},
		{"input: set undefined", []string{`p if { q[99] }`, `q contains x if { x := data.a[_] }`}, ""},
		{"input: object", []string{`p contains k if { q[k] }`, `q[k] := v if { v := data.b[k] }`}, `{"v1", "v2"}`},
		{"input: object dereference", []string{`p := q.v1`, `q[k] := v if { v := data.b[k] }`}, `"hello"`},
		{"input: object undefined key", []string{`p := q.v9`, `q[k] := v if { v := data.b[k] }`}, ""},
		{"input: complete array", []string{`p contains x if { x := q[_] }`, `q := [1, 2, 3]`}, `{1, 2, 3}`},
		{"input: complete array dereference", []string{`p := q[1]`, `q := [1, 2, 3]`}, `2`},
		{"input: complete object nested", []string{`p := q.a.b`, `q := {"a": {"b": "c"}}`}, `"c"`},
		{"input: complete undefined", []string{`p := q`, `q := 1 if { false }`}, ""},
		{"output: set in rule", []string{`p := x if { x := q }`, `q contains x if { x := data.a[_]; x > 2 }`}, `{3, 4}`},
		{"output: object in rule", []string{`p := x if { x := q }`, `q[k] := 1 if { k := data.b[_] }`}, `{"hello": 1, "goodbye": 1}`},
		{"multi segment head", []string{`p := q`, `q.r := 1`, `q.s := 2`}, `{"r": 1, "s": 2}`},
		{"chained rules", []string{`p := q + 1`, `q := r * 2`, `r := 3`}, `7`},
		{"value reused", []string{`p := [q, q]`, `q := x if { x := data.three }`}, `[3, 3]`},
	}

	data := loadSmallTestData()

	for _, tc := range tests {
		runTopDownTestCase(t, data, tc.note, tc.rules, tc.expected)
	}
}

func TestTopDownCrossModuleRules(t *testing.T) {

	compiler := compileModules([]string{
		`package a

x := data.b.y * 2`,
		`package b

y := 10

z := data.a.x + 5`,
	})

	tests := []struct {
		note     string
		path     []string
		expected string
	}{
		{"refers forward", []string{"a", "x"}, "20"},
		{"constant", []string{"b", "y"}, "10"},
		{"refers back", []string{"b", "z"}, "25"},
	}

	for _, tc := range tests {
		assertTopDownWithPath(t, compiler, nil, tc.note, tc.path, "", tc.expected)
	}
}

func TestTopDownBaseAndVirtualDocs(t *testing.T) {

	compiler := compileModules([]string{
		`package topdown.virtual

q := 1

r contains x if { x := data.topdown.base.xs[_] }`,
		`package z

p := [data.topdown.base.y, data.topdown.virtual.q]

keys contains k if { data.topdown[k] }

merged := data.topdown.virtual

base := data.topdown.base`,
	})

	data := util.MustUnmarshalJSON([]byte(`{
		"topdown": {
			"base": {"y": "base", "xs": [1, 2]},
			"virtual": {"q": "shadowed", "extra": true}
		}
	}`)).(map[string]interface{})

	tests := []struct {
		note     string
		path     []string
		expected string
	}{
		{"base and virtual siblings", []string{"z", "p"}, `["base", 1]`},
		{"keys of base and virtual", []string{"z", "keys"}, `{"base", "virtual"}`},
		{"virtual replaces base at same path", []string{"z", "merged"}, `{"q": 1, "r": {1, 2}, "extra": true}`},
		{"base document", []string{"z", "base"}, `{"y": "base", "xs": [1, 2]}`},
	}

	for _, tc := range tests {
		assertTopDownWithPath(t, compiler, data, tc.note, tc.path, "", tc.expected)
	}
}

func TestTopDownNestedReferences(t *testing.T) {
	tests := []struct {
		note     string
		rule     string
		expected interface{}
	}{
		{"ground ref", `p if { data.a[data.h[0][0]] = 2 }`, "true"},
		{"non-ground ref", `p contains x if { x := data.a[data.h[_][0]] }`, `{2, 3}`},
		{"two deep", `p contains x if { x := data.a[data.a[data.a[i]]] }`, `{3, 4}`},
		{"composite operand", `p := data.g[data.d.e[0]]`, ""},
		{"set key", `p contains x if { x := {1, 2}[_] }`, `{1, 2}`},
		{"set membership", `p if { {1, 2}[2] }`, "true"},
	}

	data := loadSmallTestData()

	for _, tc := range tests {
		runTopDownTestCase(t, data, tc.note, []string{tc.rule}, tc.expected)
	}
}

func TestTopDownDisjunction(t *testing.T) {
	tests := []struct {
		note     string
		rules    []string
		expected interface{}
	}{
		{"incremental set", []string{`p contains x if { x := data.a[_] }`, `p contains y if { y := data.b[_] }`}, `{1, 2, 3, 4, "hello", "goodbye"}`},
		{"incremental object", []string{`p[k] := v if { v := data.b[k] }`, `p[k] := v if { v := {"a": 1}[k] }`}, `{"v1": "hello", "v2": "goodbye", "a": 1}`},
		{"complete: same value", []string{`p := true if { true }`, `p := true if { data.a[0] = 1 }`}, "true"},
		{"complete: one defined", []string{`p := 1 if { false }`, `p := 2 if { true }`}, "2"},
		{"complete: conflict", []string{`p := 1 if { true }`, `p := 2 if { true }`}, errors.New("complete rules must not produce multiple outputs")},
	}

	data := loadSmallTestData()

	for _, tc := range tests {
		runTopDownTestCase(t, data, tc.note, tc.rules, tc.expected)
	}
}

func TestTopDownNegation(t *testing.T) {
	tests := []struct {
		note     string
		rules    []string
		expected interface{}
	}{
		{"neg: constants", []string{`p if { not true = false }`}, "true"},
		{"neg: constants false", []string{`p if { not true }`}, ""},
		{"neg: set contains", []string{`p if { not q[99] }`, `q contains x if { x := data.a[_] }`}, "true"},
		{"neg: set contains undefined", []string{`p if { not q[1] }`, `q contains x if { x := data.a[_] }`}, ""},
		{"neg: undefined rule", []string{`p if { not q }`, `q if { false }`}, "true"},
		{"neg: undefined in array", []string{`p if { not [q] }`, `q if { false }`}, "true"},
		{"neg: undefined in object", []string{`p if { not {"k": q} }`, `q if { false }`}, "true"},
		{"neg: bindings discarded", []string{`p := x if { x := 1; not data.a[_] = 7 }`}, "1"},
		{"neg: iteration", []string{`p contains x if { x := data.a[_]; not x > 2 }`}, `{1, 2}`},
		{"neg: builtin", []string{`p if { not startswith("abc", "b") }`}, "true"},
	}

	data := loadSmallTestData()

	for _, tc := range tests {
		runTopDownTestCase(t, data, tc.note, tc.rules, tc.expected)
	}
}

func TestTopDownComprehensions(t *testing.T) {
	tests := []struct {
		note     string
		rules    []string
		expected interface{}
	}{
		{"array simple", []string{`p := [x | x := data.a[_]; x > 1]`}, `[2, 3, 4]`},
		{"array nested", []string{`p := [[x, ys] | x := data.a[_]; ys := [y | y := data.a[_]; y > x]; count(ys) == 1]`}, `[[3, [4]]]`},
		{"array empty", []string{`p := [x | x := data.a[_]; x > 9]`}, `[]`},
		{"array closure", []string{`p := [x | x := data.a[_]; x > y]`, `y := 2`}, `[3, 4]`},
		{"set simple", []string{`p := {x | x := [1, 1, 2][_]}`}, `{1, 2}`},
		{"object simple", []string{`p := {x: y | x := data.a[_]; y := x * 2}`}, `{1: 2, 2: 4, 3: 6, 4: 8}`},
		{"object conflict", []string{`p := {k: v | v := data.a[_]; k := "a"}`}, errors.New("object keys must be unique")},
		{"outer var", []string{`p := xs if { y := 3; xs := [x | x := data.a[_]; x >= y] }`}, `[3, 4]`},
		{"count virtual", []string{`p := count([y | q[y]])`, `q contains x if { x := data.a[_] }`}, "4"},
	}

	data := loadSmallTestData()

	for _, tc := range tests {
		runTopDownTestCase(t, data, tc.note, tc.rules, tc.expected)
	}
}

func TestTopDownSomeIn(t *testing.T) {
	tests := []struct {
		note     string
		rules    []string
		expected interface{}
	}{
		{"array values", []string{`p contains x if { some x in [1, 2, 3]; x > 1 }`}, `{2, 3}`},
		{"array index and value", []string{`p[i] := x if { some i, x in ["a", "b"] }`}, `{0: "a", 1: "b"}`},
		{"object values", []string{`p contains x if { some x in {"a": 1, "b": 2} }`}, `{1, 2}`},
		{"object keys and values", []string{`p[v] := k if { some k, v in {"a": 1, "b": 2} }`}, `{1: "a", 2: "b"}`},
		{"set elements", []string{`p contains x if { some x in {"x", "y"} }`}, `{"x", "y"}`},
		{"pattern", []string{`p contains x if { some [x, 1] in [[1, 1], [2, 2], [3, 1]] }`}, `{1, 3}`},
		{"virtual domain", []string{`p contains x if { some x in q; x > 3 }`, `q contains x if { x := data.a[_] }`}, `{4}`},
		{"membership", []string{`p if { 2 in [1, 2] }`}, "true"},
		{"membership false", []string{`p if { 3 in [1, 2] }`}, ""},
		{"membership object value", []string{`p if { "hello" in data.b }`}, "true"},
		{"not a collection", []string{`p contains x if { some x in data.three }`}, errors.New("`some .. in collection` expects array/set/object, got number")},
	}

	data := loadSmallTestData()

	for _, tc := range tests {
		runTopDownTestCase(t, data, tc.note, tc.rules, tc.expected)
	}
}

func TestTopDownEvery(t *testing.T) {
	tests := []struct {
		note     string
		rules    []string
		expected interface{}
	}{
		{"all pass", []string{`p if { every x in [1, 2, 3] { x > 0 } }`}, "true"},
		{"one fails", []string{`p if { every x in [1, 2, 3] { x > 1 } }`}, ""},
		{"empty domain", []string{`p if { every x in [] { x > 1 } }`}, "true"},
		{"key and value", []string{`p if { every i, x in [0, 1, 2] { i == x } }`}, "true"},
		{"object", []string{`p if { every k, v in {"a": "a"} { k == v } }`}, "true"},
		{"outer binding", []string{`p if { y := 1; every x in data.a { x >= y } }`}, "true"},
		{"scalar domain", []string{`p if { every x in 7 { false } }`}, "true"},
		{"null domain", []string{`p if { every x in null { false } }`}, "true"},
		{"false domain", []string{`p if { every x in false { false } }`}, "true"},
	}

	data := loadSmallTestData()

	for _, tc := range tests {
		runTopDownTestCase(t, data, tc.note, tc.rules, tc.expected)
	}
}

func TestTopDownDefaultKeyword(t *testing.T) {
	tests := []struct {
		note     string
		rules    []string
		expected interface{}
	}{
		{"undefined", []string{`q := 1 if { false }`, `default q := 0`, `p := q`}, "0"},
		{"defined", []string{`q := 1 if { true }`, `default q := 0`, `p := q`}, "1"},
		{"composite value", []string{`q := 1 if { false }`, `default q := {"a": [1]}`, `p := q`}, `{"a": [1]}`},
		{"negative value", []string{`q := 1 if { false }`, `default q := -1`, `p := q`}, "-1"},
		{"only default", []string{`default q := "d"`, `p := q`}, `"d"`},
		{"default false", []string{`default q := false`, `q if { false }`, `p := q`}, "false"},
		{"comprehension over rule", []string{`x := 5`, `default q := [x | 1]`, `p := q`}, "[5]"},
		{"object defaults per key", []string{`default p[true] := 1`, `default p[false] := 2`, `p[k] := 3 if { k := "hello" }`}, `{true: 1, false: 2, "hello": 3}`},
		{"object default replaced by body", []string{`default p[true] := 1`, `default p[false] := 2`, `p[k] := 9 if { k := true }`}, `{true: 9, false: 2}`},
		{"object defaults with constant key", []string{`default p[true] := 1`, `p["hello"] := 3`}, `{true: 1, "hello": 3}`},
		{"object defaults only", []string{`default p[1] := "a"`, `default p[2] := "b"`}, `{1: "a", 2: "b"}`},
		{"object default key repeated", []string{`default p[1] := "a"`, `default p[1] := "b"`}, errors.New("multiple default rules data.test.p found for key 1")},
	}

	data := loadSmallTestData()

	for _, tc := range tests {
		runTopDownTestCase(t, data, tc.note, tc.rules, tc.expected)
	}
}

func TestTopDownElseKeyword(t *testing.T) {
	tests := []struct {
		note     string
		rules    []string
		expected interface{}
	}{
		{"first", []string{`p := 1 if { true } else := 2`}, "1"},
		{"second", []string{`p := 1 if { false } else := 2 if { true }`}, "2"},
		{"last", []string{`p := 1 if { false } else := 2 if { false } else := 3`}, "3"},
		{"none", []string{`p := 1 if { false } else := 2 if { false }`}, ""},
		{"implicit true", []string{`p if { false } else := "no"`}, `"no"`},
		{"function", []string{`f(x) := "neg" if { x < 0 } else := "pos"`, `p := [f(-1), f(1)]`}, `["neg", "pos"]`},
		{"with default", []string{`default p := 0`, `p := 1 if { false } else := 2 if { false }`}, "0"},
	}

	data := loadSmallTestData()

	for _, tc := range tests {
		runTopDownTestCase(t, data, tc.note, tc.rules, tc.expected)
	}
}

func TestTopDownFunctions(t *testing.T) {
	tests := []struct {
		note     string
		rules    []string
		expected interface{}
	}{
		{"basic", []string{`f(x) := y if { y := x * 2 }`, `p := f(3)`}, "6"},
		{"boolean", []string{`f(x) if { x > 1 }`, `p := [x | x := data.a[_]; f(x)]`}, `[2, 3, 4]`},
		{"undefined", []string{`f(x) := 1 if { x > 10 }`, `p := f(3)`}, ""},
		{"multiple args", []string{`f(x, y) := x + y`, `p := f(1, 2)`}, "3"},
		{"pattern args", []string{`f([x, y]) := x + y`, `p := f([1, 2])`}, "3"},
		{"pattern args mismatch", []string{`f([x, "b"]) := x`, `p := f([1, "c"])`}, ""},
		{"multiple definitions", []string{`f(x) := "small" if { x < 5 }`, `f(x) := "big" if { x >= 5 }`, `p := [f(1), f(9)]`}, `["small", "big"]`},
		{"same output", []string{`f(x) := 1 if { x > 0 }`, `f(x) := 1 if { x > 1 }`, `p := f(5)`}, "1"},
		{"conflict", []string{`f(x) := 1 if { x > 0 }`, `f(x) := 2 if { x > 1 }`, `p := f(5)`}, errors.New("functions must not produce multiple outputs for same inputs")},
		{"calls function", []string{`f(x) := g(x) + 1`, `g(x) := x * 10`, `p := f(2)`}, "21"},
		{"iteration over calls", []string{`f(x) := x * x`, `p := {f(x) | x := data.a[_]}`}, `{1, 4, 9, 16}`},
		{"reads data", []string{`f(i) := data.a[i]`, `p := f(2)`}, "3"},
	}

	data := loadSmallTestData()

	for _, tc := range tests {
		runTopDownTestCase(t, data, tc.note, tc.rules, tc.expected)
	}
}

func TestTopDownWith(t *testing.T) {
	tests := []struct {
		note     string
		rules    []string
		input    string
		expected interface{}
	}{
		{"input", []string{`p := x if { x := q with input.a as 2 }`, `q := input.a`}, `{"a": 1}`, "2"},
		{"input whole", []string{`p := x if { x := q with input as {"a": 5} }`, `q := input.a`}, "", "5"},
		{"input restored", []string{`p := [a, b] if { a := q with input.a as 2; b := q }`, `q := input.a`}, `{"a": 1}`, "[2, 1]"},
		{"input nested path created", []string{`p := x if { x := q with input.a.b as 3 }`, `q := input.a.b`}, "", "3"},
		{"input sibling kept", []string{`p := x if { x := q with input.a as 2 }`, `q := input.b`}, `{"a": 1, "b": 9}`, "9"},
		{"virtual doc", []string{`p := x if { x := q with data.test.r as 10 }`, `q := r + 1`, `r := 1`}, "", "11"},
		{"virtual doc restored", []string{`p := [a, b] if { a := q with data.test.r as 10; b := q }`, `q := r + 1`, `r := 1`}, "", "[11, 2]"},
		{"base doc", []string{`p := x if { x := q with data.a as [9] }`, `q := data.a`}, "", "[9]"},
		{"base doc nested", []string{`p := x if { x := q with data.b.v1 as "x" }`, `q := data.b`}, "", `{"v1": "x", "v2": "goodbye"}`},
		{"multiple", []string{`p := x if { x := q with input.a as 1 with data.test.r as 2 }`, `q := input.a + r`, `r := 0`}, "", "3"},
		{"folded overrides", []string{`p := x if { x := q with data.b as {"v1": 1} with data.b.v2 as 2 }`, `q := data.b`}, "", `{"v1": 1, "v2": 2}`},
		{"value from var", []string{`p := x if { y := 7; x := q with input as y }`, `q := input`}, "", "7"},
		{"function call", []string{`p := x if { x := f(1) with input.k as 10 }`, `f(a) := a + input.k`}, "", "11"},
		{"comprehension", []string{`p := x if { x := [y | y := input[_]] with input as [1, 2] }`}, "", "[1, 2]"},
		{"negation", []string{`p if { not q with input.x as false }`, `q if { input.x }`}, `{"x": true}`, "true"},
	}

	data := loadSmallTestData()

	for _, tc := range tests {
		module := "package test\n\n" + strings.Join(tc.rules, "\n\n")
		compiler, err := ast.CompileModules(map[string]string{"test.rego": module})
		if err != nil {
			t.Errorf("%v: Compiler error: %v", tc.note, err)
			continue
		}
		assertTopDownWithPath(t, compiler, data, tc.note, []string{"test", "p"}, tc.input, tc.expected)
	}
}

func TestTopDownInput(t *testing.T) {
	tests := []struct {
		note     string
		rules    []string
		input    string
		expected interface{}
	}{
		{"scalar", []string{`p := input.x + 1`}, `{"x": 1}`, "2"},
		{"undefined", []string{`p := input.x`}, `{"y": 1}`, ""},
		{"no input", []string{`p := input.x`}, "", ""},
		{"iteration", []string{`p contains k if { input[k] > 1 }`}, `{"a": 1, "b": 2, "c": 3}`, `{"b", "c"}`},
		{"whole input", []string{`p := input`}, `[1, 2]`, "[1, 2]"},
		{"set input", []string{`p if { input[3] }`}, `{1, 2, 3}`, "true"},
	}

	for _, tc := range tests {
		module := "package test\n\n" + strings.Join(tc.rules, "\n\n")
		compiler, err := ast.CompileModules(map[string]string{"test.rego": module})
		if err != nil {
			t.Errorf("%v: Compiler error: %v", tc.note, err)
			continue
		}
		assertTopDownWithPath(t, compiler, nil, tc.note, []string{"test", "p"}, tc.input, tc.expected)
	}
}

func TestTopDownQueryResultVars(t *testing.T) {

	compiler := compileModules([]string{`package test

q contains x if { x := data.a[_] }`})

	data := loadSmallTestData()

	query := NewQuery(ast.MustParseBody(`data.test.q[x]; x > 2; _ = x; input = _`)).
		WithCompiler(compiler).
		WithData(ast.MustInterfaceToValue(data).(ast.Object)).
		WithInput(ast.MustParseTerm(`{}`))

	qrs, err := query.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if len(qrs) != 2 {
		t.Fatalf("Expected two results but got: %v", qrs)
	}

	for _, qr := range qrs {
		if len(qr) != 1 || qr[ast.Var("x")] == nil {
			t.Fatalf("Expected only x to be bound but got: %v", qr)
		}
	}

	if !qrs[0][ast.Var("x")].Equal(ast.IntNumberTerm(3)) || !qrs[1][ast.Var("x")].Equal(ast.IntNumberTerm(4)) {
		t.Fatalf("Unexpected results: %v", qrs)
	}
}

func TestTopDownCancel(t *testing.T) {

	compiler := compileModules([]string{`package test

p := 1`})

	c := NewCancel()
	c.Cancel()

	query := NewQuery(ast.MustParseBody("data.test.p = x")).
		WithCompiler(compiler).
		WithCancel(c)

	_, err := query.Run(context.Background())
	if !IsCancel(err) {
		t.Fatalf("Expected cancel error but got: %v", err)
	}
}

func TestTopDownRuleEvalMetrics(t *testing.T) {

	compiler := compileModules([]string{`package test

p := [q, q, r]

q := 1

r := q + 1`})

	m := metrics.New()
	instr := NewInstrumentation(m)

	query := NewQuery(ast.MustParseBody("data.test.p = x")).
		WithCompiler(compiler).
		WithMetrics(m).
		WithInstrumentation(instr)

	qrs, err := query.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if len(qrs) != 1 || !qrs[0][ast.Var("x")].Equal(ast.MustParseTerm("[1, 1, 2]")) {
		t.Fatalf("Unexpected results: %v", qrs)
	}

	if v := m.Counter(metrics.RuleEvals).Value(); v != uint64(3) {
		t.Fatalf("Expected each rule to be evaluated once but got %v evaluations", v)
	}

	if v := m.Counter(evalOpRuleCacheHit).Value(); v != uint64(2) {
		t.Fatalf("Expected two cache hits but got %v", v)
	}
}

func TestTopDownFunctionMemo(t *testing.T) {

	compiler := compileModules([]string{`package test

f(x) := y if { y := x + 1 }

p := [f(1), f(1), f(2)]`})

	m := metrics.New()

	query := NewQuery(ast.MustParseBody("data.test.p = x")).
		WithCompiler(compiler).
		WithInstrumentation(NewInstrumentation(m))

	if _, err := query.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	if v := m.Counter(evalOpFuncCacheHit).Value(); v != uint64(1) {
		t.Fatalf("Expected one function cache hit but got %v", v)
	}
}

func TestTopDownCustomBuiltins(t *testing.T) {

	decl := &ast.Builtin{Name: "test.double", Arity: 1}

	compiler := ast.NewCompiler()
	compiler.Compile(nil)

	query := NewQuery(ast.NewBody(ast.Equality.Expr(ast.VarTerm("x"), decl.Call(ast.IntNumberTerm(21))))).
		WithCompiler(compiler).
		WithBuiltins(map[string]*Builtin{
			decl.Name: {
				Decl: decl,
				Func: func(_ BuiltinContext, operands []*ast.Term, iter func(*ast.Term) error) error {
					n, ok := operands[0].Value.(ast.Number).Int()
					if !ok {
						return errors.New("not an int")
					}
					return iter(ast.IntNumberTerm(n * 2))
				},
			},
		})

	qrs, err := query.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if len(qrs) != 1 || !qrs[0][ast.Var("x")].Equal(ast.IntNumberTerm(42)) {
		t.Fatalf("Unexpected results: %v", qrs)
	}
}

func TestTopDownIterErrorPassthrough(t *testing.T) {

	compiler := compileModules([]string{`package test

p contains x if { x := data.a[_] }`})

	data := loadSmallTestData()
	sentinel := errors.New("stop")

	query := NewQuery(ast.MustParseBody("data.test.p[x]; count([x]) == 1")).
		WithCompiler(compiler).
		WithData(ast.MustInterfaceToValue(data).(ast.Object))

	err := query.Iter(context.Background(), func(QueryResult) error {
		return sentinel
	})

	if !errors.Is(err, sentinel) {
		t.Fatalf("Expected iterator error to be returned unchanged but got: %v", err)
	}

	if IsError(err) {
		t.Fatalf("Expected iterator error not to be wrapped but got: %v", err)
	}
}

func compileModules(input []string) *ast.Compiler {

	mods := map[string]string{}

	for idx, i := range input {
		mods[strings.Repeat("m", idx+1)+".rego"] = i
	}

	return ast.MustCompileModules(mods)
}

// loadSmallTestData returns base documents that are referenced
// throughout the topdown test suite.
//
// Avoid the following top-level keys: i, j, k, p, q, r, v, x, y, z.
// These are used for rule names, local variables, etc.
func loadSmallTestData() map[string]interface{} {
	var data map[string]interface{}
	err := util.UnmarshalJSON([]byte(`{
        "a": [1,2,3,4],
        "b": {
            "v1": "hello",
            "v2": "goodbye"
        },
        "c": [{
            "x": [true, false, "foo"],
            "y": [null, 3.14159],
            "z": {"p": true, "q": false}
        }],
        "d": {
            "e": ["bar", "baz"]
        },
        "f": [
            {"xs": [1.0], "ys": [2.0]},
            {"xs": [2.0], "ys": [3.0]}
        ],
        "g": {
            "a": [1, 0, 0, 0],
            "b": [0, 2, 0, 0],
            "c": [0, 0, 0, 4]
        },
        "h": [
            [1,2,3],
            [2,3,4]
        ],
        "l": [
            {
                "a": "bob",
                "b": -1,
                "c": [1,2,3,4]
            },
            {
                "a": "alice",
                "b": 1,
                "c": [2,3,4,5],
                "d": null
            }
        ],
        "strings": {
            "foo": 1,
            "bar": 2,
            "baz": 3
        },
        "three": 3,
        "m": [],
        "numbers": [
            "1",
            "2",
            "3",
            "4"
        ]
    }`), &data)
	if err != nil {
		panic(err)
	}
	return data
}

func runTopDownTestCase(t *testing.T, data map[string]interface{}, note string, rules []string, expected interface{}) {
	t.Helper()

	module := "package test\n\n" + strings.Join(rules, "\n\n")

	compiler, err := ast.CompileModules(map[string]string{"test.rego": module})
	if err != nil {
		if e, ok := expected.(error); ok && strings.Contains(err.Error(), e.Error()) {
			return
		}
		t.Errorf("%v: Compiler error: %v", note, err)
		return
	}

	assertTopDownWithPath(t, compiler, data, note, []string{"test", "p"}, "", expected)
}

func assertTopDownWithPath(t *testing.T, compiler *ast.Compiler, data map[string]interface{}, note string, path []string, input string, expected interface{}) {
	t.Helper()

	var inputTerm *ast.Term

	if len(input) > 0 {
		inputTerm = ast.MustParseTerm(input)
	}

	lhs := ast.MustParseTerm("data." + strings.Join(path, "."))
	rhs := ast.VarTerm("result")
	body := ast.NewBody(ast.Equality.Expr(lhs, rhs))

	query := NewQuery(body).
		WithCompiler(compiler).
		WithInput(inputTerm)

	if data != nil {
		query = query.WithData(ast.MustInterfaceToValue(data).(ast.Object))
	}

	tracer := NewBufferTracer()

	if os.Getenv("REGOLITH_TRACE_TEST") != "" {
		query = query.WithTracer(tracer)
	}

	testutil.Subtest(t, note, func(t *testing.T) {
		switch e := expected.(type) {
		case error:
			result, err := query.Run(context.Background())
			if err == nil {
				t.Errorf("Expected error but got: %v", result)
				return
			}

			if !strings.Contains(err.Error(), e.Error()) {
				t.Errorf("Expected error %v but got: %v", e, err)
			}

		case string:
			qrs, err := query.Run(context.Background())

			if len(*tracer) > 0 {
				PrettyTrace(os.Stdout, *tracer)
			}

			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}

			if len(e) == 0 {
				if len(qrs) != 0 {
					t.Fatalf("Expected undefined result but got: %v", qrs)
				}
				return
			}

			if len(qrs) == 0 {
				t.Fatalf("Expected %v but got undefined", e)
			}

			result := qrs[0][rhs.Value.(ast.Var)]
			exp := ast.MustParseTerm(e)

			if ast.Compare(result.Value, exp.Value) != 0 {
				t.Fatalf("Unexpected result:\nGot: %v\nExp: %v", result, exp)
			}
		}
	})
}
