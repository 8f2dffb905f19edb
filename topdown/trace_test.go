// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package topdown

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/regolith-dev/regolith/ast"
)

func TestEventEqual(t *testing.T) {

	tests := []struct {
		a     *Event
		b     *Event
		equal bool
	}{
		{&Event{}, &Event{}, true},
		{&Event{Op: EvalOp}, &Event{Op: EnterOp}, false},
		{&Event{QueryID: 1}, &Event{QueryID: 2}, false},
		{&Event{ParentID: 1}, &Event{ParentID: 2}, false},
		{&Event{Node: ast.MustParseBody("true")}, &Event{Node: ast.MustParseBody("false")}, false},
		{&Event{Node: ast.MustParseBody("true")[0]}, &Event{Node: ast.MustParseBody("false")[0]}, false},
		{&Event{Node: ast.MustParseRule(`p := true`)}, &Event{Node: ast.MustParseRule(`p := false`)}, false},
		{&Event{Node: "foo"}, &Event{Node: "foo"}, false},
		{&Event{Locals: map[ast.Var]*ast.Term{"x": ast.IntNumberTerm(1)}}, &Event{Locals: map[ast.Var]*ast.Term{"x": ast.IntNumberTerm(2)}}, false},
		{&Event{Locals: map[ast.Var]*ast.Term{"x": ast.IntNumberTerm(1)}}, &Event{Locals: map[ast.Var]*ast.Term{"x": ast.IntNumberTerm(1)}}, true},
	}

	for _, tc := range tests {
		if tc.a.Equal(tc.b) != tc.equal {
			var s string
			if tc.equal {
				s = "=="
			} else {
				s = "!="
			}
			t.Errorf("Expected %v %v %v", tc.a, s, tc.b)
		}
	}
}

func TestPrettyTrace(t *testing.T) {

	body := ast.MustParseBody("x = 1; y = 2")
	tracer := NewBufferTracer()

	_, err := NewQuery(body).WithTracer(tracer).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	expected := []string{
		fmt.Sprintf("Enter %v", body),
		fmt.Sprintf("| Eval %v", body[0]),
		fmt.Sprintf("| Eval %v", body[1]),
		fmt.Sprintf("| Exit %v", body),
		fmt.Sprintf("Redo %v", body),
		fmt.Sprintf("| Redo %v", body[1]),
		fmt.Sprintf("| Redo %v", body[0]),
	}

	var buf bytes.Buffer
	PrettyTrace(&buf, *tracer)

	got := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")

	if diff := cmp.Diff(expected, got); diff != "" {
		t.Fatalf("Unexpected trace (-want, +got):\n%v", diff)
	}
}

func TestTraceRuleDepth(t *testing.T) {

	compiler := compileModules([]string{`package test

p if { q }

q if { not r }

r if { false }`})

	tracer := NewBufferTracer()

	_, err := NewQuery(ast.MustParseBody("data.test.p")).
		WithCompiler(compiler).
		WithTracer(tracer).
		Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	var rules []string
	for _, evt := range *tracer {
		if evt.Op == EnterOp && evt.HasRule() {
			ref := evt.Node.(*ast.Rule).Head.Reference
			rules = append(rules, ref[len(ref)-1].Value.String())
		}
		if evt.ParentID == evt.QueryID && evt.QueryID != 0 {
			t.Fatalf("Event has itself as parent: %v", evt)
		}
	}

	if diff := cmp.Diff([]string{"p", "q", "r"}, rules); diff != "" {
		t.Fatalf("Unexpected rule enter events (-want, +got):\n%v", diff)
	}

	var fails int
	for _, evt := range *tracer {
		if evt.Op == FailOp {
			fails++
		}
	}

	if fails == 0 {
		t.Fatal("Expected fail event for r")
	}
}

func TestBufferTracerDisabled(t *testing.T) {

	var tracer *BufferTracer

	if tracer.Enabled() {
		t.Fatal("Expected nil tracer to be disabled")
	}
}
