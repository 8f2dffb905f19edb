// Copyright 2017 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package topdown

import (
	"testing"

	"github.com/regolith-dev/regolith/ast"
)

func TestBindingsPlug(t *testing.T) {

	b := newBindings()
	b.bind(ast.Var("x"), ast.VarTerm("y"))
	b.bind(ast.Var("y"), ast.MustParseTerm(`[1, z]`))
	b.bind(ast.Var("z"), ast.StringTerm("a"))

	result := b.plug(ast.MustParseTerm(`{"k": x, "s": {z}, "u": w}`))
	expected := ast.MustParseTerm(`{"k": [1, "a"], "s": {"a"}, "u": w}`)

	if !result.Equal(expected) {
		t.Fatalf("Expected %v but got %v", expected, result)
	}
}

func TestBindingsUndo(t *testing.T) {

	b := newBindings()
	b.bind(ast.Var("x"), ast.IntNumberTerm(1))

	mark := b.mark()
	b.bind(ast.Var("y"), ast.IntNumberTerm(2))
	b.bind(ast.Var("z"), ast.IntNumberTerm(3))

	if b.String() != "{x: 1, y: 2, z: 3}" {
		t.Fatalf("Unexpected bindings: %v", b)
	}

	b.undo(mark)

	if _, ok := b.lookup(ast.Var("y")); ok {
		t.Fatal("Expected y to be unbound")
	}

	if _, ok := b.lookup(ast.Var("z")); ok {
		t.Fatal("Expected z to be unbound")
	}

	if v, ok := b.lookup(ast.Var("x")); !ok || !v.Equal(ast.IntNumberTerm(1)) {
		t.Fatalf("Expected x to remain bound but got %v", v)
	}
}

func TestBindingsDeref(t *testing.T) {

	b := newBindings()
	b.bind(ast.Var("a"), ast.VarTerm("b"))
	b.bind(ast.Var("b"), ast.MustParseTerm(`[c]`))

	result := b.deref(ast.VarTerm("a"))
	if !result.Equal(ast.MustParseTerm(`[c]`)) {
		t.Fatalf("Expected deref to stop at the first non-var term but got %v", result)
	}

	if free := b.deref(ast.VarTerm("c")); !free.Equal(ast.VarTerm("c")) {
		t.Fatalf("Expected unbound var to deref to itself but got %v", free)
	}
}

func TestBindingsSnapshot(t *testing.T) {

	b := newBindings()
	b.bind(ast.Var("x"), ast.VarTerm("y"))
	b.bind(ast.Var("y"), ast.BooleanTerm(true))

	snap := b.snapshot(ast.NewVarSet(ast.Var("x"), ast.Var("q")))

	if len(snap) != 1 || !snap[ast.Var("x")].Equal(ast.BooleanTerm(true)) {
		t.Fatalf("Unexpected snapshot: %v", snap)
	}
}
