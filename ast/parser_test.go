// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package ast

import (
	"strings"
	"testing"
)

func TestParseScalars(t *testing.T) {
	tests := []struct {
		note  string
		input string
		exp   Value
	}{
		{"null", "null", Null{}},
		{"true", "true", Boolean(true)},
		{"false", "false", Boolean(false)},
		{"integer", "42", Number("42")},
		{"decimal", "1.5", Number("1.5")},
		{"exponent", "1e3", Number("1000")},
		{"negative literal", "-7", Number("-7")},
		{"string", `"foo"`, String("foo")},
		{"escaped string", `"a\nb"`, String("a\nb")},
		{"raw string", "`a\\nb`", String(`a\nb`)},
	}

	for _, tc := range tests {
		t.Run(tc.note, func(t *testing.T) {
			term, err := ParseTerm(tc.input)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if Compare(term.Value, tc.exp) != 0 {
				t.Fatalf("Expected %v but got %v", tc.exp, term.Value)
			}
		})
	}
}

func TestParseComposites(t *testing.T) {
	tests := []struct {
		note  string
		input string
		exp   Value
	}{
		{"empty array", "[]", NewArray()},
		{"array", "[1, 2, 3]", NewArray(IntNumberTerm(1), IntNumberTerm(2), IntNumberTerm(3))},
		{"trailing comma", "[1, 2,]", NewArray(IntNumberTerm(1), IntNumberTerm(2))},
		{"empty object", "{}", NewObject()},
		{"object", `{"a": 1, "b": [true]}`, NewObject(
			Item(StringTerm("a"), IntNumberTerm(1)),
			Item(StringTerm("b"), ArrayTerm(BooleanTerm(true))),
		)},
		{"set", "{3, 1, 2, 1}", NewSet(IntNumberTerm(1), IntNumberTerm(2), IntNumberTerm(3))},
		{"empty set", "set()", NewSet()},
		{"nested", `[{"a": {1}}]`, NewArray(ObjectTerm(Item(StringTerm("a"), SetTerm(IntNumberTerm(1)))))},
	}

	for _, tc := range tests {
		t.Run(tc.note, func(t *testing.T) {
			term := MustParseTerm(tc.input)
			if Compare(term.Value, tc.exp) != 0 {
				t.Fatalf("Expected %v but got %v", tc.exp, term.Value)
			}
		})
	}
}

func TestParseComprehensions(t *testing.T) {
	arr := MustParseTerm("[x | x := xs[_]]")
	if _, ok := arr.Value.(*ArrayComprehension); !ok {
		t.Fatalf("Expected array comprehension but got %T", arr.Value)
	}

	set := MustParseTerm("{x | some x in xs}")
	if _, ok := set.Value.(*SetComprehension); !ok {
		t.Fatalf("Expected set comprehension but got %T", set.Value)
	}

	obj := MustParseTerm("{k: v | some k, v in xs; v > 1}")
	oc, ok := obj.Value.(*ObjectComprehension)
	if !ok {
		t.Fatalf("Expected object comprehension but got %T", obj.Value)
	}
	if len(oc.Body) != 2 {
		t.Fatalf("Expected two statements in body but got: %v", oc.Body)
	}
}

func TestParseOperatorPrecedence(t *testing.T) {
	tests := []struct {
		note  string
		input string
		ops   []string
	}{
		{"mul binds tighter", "1 + 2 * 3", []string{"plus", "mul"}},
		{"parens", "(1 + 2) * 3", []string{"mul", "plus"}},
		{"relation over arith", "a + 1 == b", []string{"equal", "plus"}},
		{"or over and", "a | b & c", []string{"or", "and"}},
		{"unary minus", "-x", []string{"internal.negate"}},
		{"membership", "x in xs", []string{"internal.member_2"}},
	}

	for _, tc := range tests {
		t.Run(tc.note, func(t *testing.T) {
			term := MustParseTerm(tc.input)
			var ops []string
			for x := term; x != nil; {
				call, ok := x.Value.(Call)
				if !ok {
					break
				}
				ops = append(ops, call.Operator().String())
				x = nil
				for _, operand := range call.Operands() {
					if _, ok := operand.Value.(Call); ok {
						x = operand
						break
					}
				}
			}
			if strings.Join(ops, ",") != strings.Join(tc.ops, ",") {
				t.Fatalf("Expected operators %v but got %v", tc.ops, ops)
			}
		})
	}
}

func TestParseRefs(t *testing.T) {
	tests := []struct {
		note  string
		input string
		exp   string
	}{
		{"dotted", "data.a.b", "data.a.b"},
		{"brackets", `data.a["b c"][x]`, `data.a["b c"][x]`},
		{"string brackets", `input["x"]`, "input.x"},
		{"number index", "xs[0]", "xs[0]"},
		{"var becomes ref", "p", "p"},
	}

	for _, tc := range tests {
		t.Run(tc.note, func(t *testing.T) {
			ref := MustParseRef(tc.input)
			if ref.String() != tc.exp {
				t.Fatalf("Expected %v but got %v", tc.exp, ref)
			}
		})
	}
}

func TestParseBodyStatements(t *testing.T) {
	tests := []struct {
		note  string
		input string
		check func(Body) bool
	}{
		{"semicolons", "x := 1; y := 2", func(b Body) bool { return len(b) == 2 }},
		{"newlines", "x := 1\ny := 2\nx < y", func(b Body) bool { return len(b) == 3 }},
		{"assignment", "x := 1", func(b Body) bool { return b[0].IsAssignment() }},
		{"unification", "[x, 1] = [2, y]", func(b Body) bool { return b[0].IsEquality() }},
		{"negation", "not p", func(b Body) bool { return b[0].Negated }},
		{"some vars", "some x, y", func(b Body) bool {
			decl, ok := b[0].Terms.(*SomeDecl)
			return ok && len(decl.Symbols) == 2
		}},
		{"some in", "some k, v in xs", func(b Body) bool {
			decl, ok := b[0].Terms.(*SomeDecl)
			return ok && decl.Symbols[0].Value.(Call).Operator().String() == MemberWithKey.Name
		}},
		{"every", "every x in xs { x > 0 }", func(b Body) bool {
			every, ok := b[0].Terms.(*Every)
			return ok && every.Key == nil && len(every.Body) == 1
		}},
		{"every key value", "every i, x in xs { x > i }", func(b Body) bool {
			every, ok := b[0].Terms.(*Every)
			return ok && every.Key != nil
		}},
		{"with", `x := input.a with input as {"a": 1} with data.b as 2`, func(b Body) bool {
			return len(b[0].With) == 2
		}},
		{"call", `startswith("foo", "f")`, func(b Body) bool {
			return b[0].IsCall() && b[0].Operator().String() == "startswith"
		}},
	}

	for _, tc := range tests {
		t.Run(tc.note, func(t *testing.T) {
			body, err := ParseBody(tc.input)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if !tc.check(body) {
				t.Fatalf("Unexpected body: %v", body)
			}
		})
	}
}

func TestParseRuleKinds(t *testing.T) {
	tests := []struct {
		note  string
		input string
		kind  DocKind
		ref   string
	}{
		{"complete", "p := 1", CompleteDoc, "p"},
		{"complete with body", `p := x if { x := 1 }`, CompleteDoc, "p"},
		{"implicit true", "p if { true }", CompleteDoc, "p"},
		{"contains", "p contains x if { x := 1 }", PartialSetDoc, "p"},
		{"bracket set", "p[x] if { x := 1 }", PartialSetDoc, "p"},
		{"partial object", "p[k] := v if { k := 1; v := 2 }", PartialObjectDoc, "p"},
		{"function", "f(x) := y if { y := x }", FunctionDoc, "f"},
		{"multi segment", "a.b.c := 1", CompleteDoc, "a.b.c"},
		{"multi segment object", `a.b[k] := 1 if { k := "x" }`, PartialObjectDoc, "a.b"},
		{"string bracket value", `a["b"] := 1`, CompleteDoc, "a.b"},
	}

	for _, tc := range tests {
		t.Run(tc.note, func(t *testing.T) {
			rule := MustParseRule(tc.input)
			if rule.DocKind() != tc.kind {
				t.Fatalf("Expected %v but got %v", tc.kind, rule.DocKind())
			}
			if rule.Head.Reference.String() != tc.ref {
				t.Fatalf("Expected head ref %v but got %v", tc.ref, rule.Head.Reference)
			}
		})
	}
}

func TestParseElseChain(t *testing.T) {
	rule := MustParseRule(`p := 1 if { false } else := 2 if { false } else := 3`)
	n := 0
	for r := rule; r != nil; r = r.Else {
		n++
	}
	if n != 3 {
		t.Fatalf("Expected chain of 3 rules but got %d", n)
	}
	if Compare(rule.Else.Else.Head.Value.Value, Number("3")) != 0 {
		t.Fatalf("Unexpected last value: %v", rule.Else.Else.Head.Value)
	}
}

func TestParseModule(t *testing.T) {
	mod := MustParseModule(`package a.b

import data.x.y
import data.z as w
import rego.v1
import future.keywords.in

default allow := false

allow if {
	input.user == "admin"
}

q contains x if {
	some x in w
} {
	x := y[_]
}
`)

	if mod.Package.Path.String() != "data.a.b" {
		t.Fatalf("Unexpected package: %v", mod.Package)
	}
	if len(mod.Imports) != 2 {
		t.Fatalf("Expected two imports but got: %v", mod.Imports)
	}
	if mod.Imports[1].Name() != "w" {
		t.Fatalf("Unexpected import name: %v", mod.Imports[1].Name())
	}
	if len(mod.Rules) != 4 {
		t.Fatalf("Expected four rules but got %d", len(mod.Rules))
	}
	if !mod.Rules[0].Default {
		t.Fatal("Expected default rule first")
	}
	for _, rule := range mod.Rules {
		if rule.Module != mod {
			t.Fatalf("Rule %v not linked to module", rule.Head.Reference)
		}
	}
	if mod.Rules[3].Head.Key == nil {
		t.Fatal("Expected extra body to share the partial set head")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		note  string
		input string
		exp   string
	}{
		{"missing package", "p := 1", "package expected"},
		{"default without value", "package a\ndefault p", "default rules must have a value"},
		{"default multi-value", "package a\ndefault s contains 1", "default rules must have a value"},
		{"rule named data", "package a\ndata := 1", "rules cannot be named data"},
		{"rule without value or body", "package a\np", "rule must have value assignment and/or body"},
		{"multi-value with value", "package a\np contains 1 := 2", "multi-value rules cannot be assigned a value"},
		{"function multi-value", "package a\nf(x) contains x", "functions cannot be multi-value rules"},
		{"else on partial", "package a\np[x] := 1 if { x := 1 } else := 2", "else keyword cannot be used on partial rules"},
		{"empty body", "package a\np if {}", "found empty body"},
		{"var in middle of head", "package a\np[x].q := 1", "rule head may only contain a variable in the last segment"},
		{"bad import", "package a\nimport foo.bar", "path must begin with input or data"},
		{"unterminated array", "package a\np := [1, 2", "unexpected"},
	}

	for _, tc := range tests {
		t.Run(tc.note, func(t *testing.T) {
			_, err := ParseModule("test.rego", tc.input)
			if err == nil {
				t.Fatalf("Expected error containing %q", tc.exp)
			}
			if !strings.Contains(err.Error(), tc.exp) {
				t.Fatalf("Expected error containing %q but got: %v", tc.exp, err)
			}
			if !IsError(ParseErr, err) {
				t.Fatalf("Expected parse error code but got: %v", err)
			}
		})
	}
}

func TestParseStatements(t *testing.T) {
	tests := []struct {
		note   string
		input  string
		isRule bool
	}{
		{"unification query", "x = 1", false},
		{"ref query", "data.a.b", false},
		{"assignment rule", "x := 1", true},
		{"rule with body", `p if { input.x == 1 }`, true},
		{"default", "default p := 1", true},
		{"function", "f(x) := x", true},
	}

	for _, tc := range tests {
		t.Run(tc.note, func(t *testing.T) {
			stmts, err := ParseStatements("", tc.input)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if len(stmts) != 1 {
				t.Fatalf("Expected one statement but got: %v", stmts)
			}
			_, isRule := stmts[0].(*Rule)
			if isRule != tc.isRule {
				t.Fatalf("Expected rule=%v but got %T", tc.isRule, stmts[0])
			}
		})
	}
}

func TestParseLocations(t *testing.T) {
	mod, err := ParseModule("x.rego", "package a\n\np := 1\n")
	if err != nil {
		t.Fatal(err)
	}
	loc := mod.Rules[0].Location
	if loc.File != "x.rego" || loc.Row != 3 || loc.Col != 1 {
		t.Fatalf("Unexpected location: %+v", loc)
	}
}

func TestParseExprText(t *testing.T) {
	body := MustParseBody("x := 1; x > 0 with input as 2")
	if exp, act := "x := 1", string(body[0].Location.Text); exp != act {
		t.Fatalf("Expected %q but got %q", exp, act)
	}
	if exp, act := "x > 0 with input as 2", string(body[1].Location.Text); exp != act {
		t.Fatalf("Expected %q but got %q", exp, act)
	}
}
