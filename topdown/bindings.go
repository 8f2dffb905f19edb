// Copyright 2017 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package topdown

import (
	"fmt"
	"strings"

	"github.com/regolith-dev/regolith/ast"
)

// bindings maps variables to the terms they are bound to. Every binding is
// recorded on a trail so that backtracking can remove bindings in the
// reverse order they were made.
type bindings struct {
	values map[ast.Var]*ast.Term
	trail  []ast.Var
}

func newBindings() *bindings {
	return &bindings{values: map[ast.Var]*ast.Term{}}
}

// mark returns the current position of the trail. Passing the position to
// undo removes every binding made since.
func (b *bindings) mark() int {
	return len(b.trail)
}

func (b *bindings) undo(mark int) {
	for i := len(b.trail) - 1; i >= mark; i-- {
		delete(b.values, b.trail[i])
	}
	b.trail = b.trail[:mark]
}

// bind binds v to t. Callers must check that v is unbound.
func (b *bindings) bind(v ast.Var, t *ast.Term) {
	b.values[v] = t
	b.trail = append(b.trail, v)
}

func (b *bindings) lookup(v ast.Var) (*ast.Term, bool) {
	t, ok := b.values[v]
	return t, ok
}

// deref follows variable bindings at the top level of t.
func (b *bindings) deref(t *ast.Term) *ast.Term {
	for {
		v, ok := t.Value.(ast.Var)
		if !ok {
			return t
		}
		next, ok := b.values[v]
		if !ok {
			return t
		}
		t = next
	}
}

// plug returns a copy of t with every bound variable replaced by its value.
// Terms that contain no variables are returned as is.
func (b *bindings) plug(t *ast.Term) *ast.Term {
	switch v := t.Value.(type) {
	case ast.Null, ast.Boolean, ast.Number, ast.String:
		return t
	case ast.Var:
		if next, ok := b.values[v]; ok {
			return b.plug(next)
		}
		return t
	case *ast.Array:
		if v.Len() == 0 {
			return t
		}
		elems := make([]*ast.Term, v.Len())
		for i := range elems {
			elems[i] = b.plug(v.Elem(i))
		}
		return ast.NewTerm(ast.NewArray(elems...)).SetLocation(t.Location)
	case ast.Object:
		if v.Len() == 0 {
			return t
		}
		obj := ast.NewObject()
		v.Foreach(func(k, x *ast.Term) {
			obj.Insert(b.plug(k), b.plug(x))
		})
		return ast.NewTerm(obj).SetLocation(t.Location)
	case ast.Set:
		if v.Len() == 0 {
			return t
		}
		set := ast.NewSet()
		v.Foreach(func(x *ast.Term) {
			set.Add(b.plug(x))
		})
		return ast.NewTerm(set).SetLocation(t.Location)
	case ast.Ref:
		ref := make(ast.Ref, len(v))
		for i := range v {
			ref[i] = b.plug(v[i])
		}
		return ast.NewTerm(ref).SetLocation(t.Location)
	case ast.Call:
		call := make(ast.Call, len(v))
		for i := range v {
			call[i] = b.plug(v[i])
		}
		return ast.NewTerm(call).SetLocation(t.Location)
	}
	return t
}

// snapshot returns the plugged values of the variables in vars that are
// currently bound.
func (b *bindings) snapshot(vars ast.VarSet) map[ast.Var]*ast.Term {
	result := make(map[ast.Var]*ast.Term, len(vars))
	for v := range vars {
		if t, ok := b.values[v]; ok {
			result[v] = b.plug(t)
		}
	}
	return result
}

func (b *bindings) String() string {
	buf := make([]string, 0, len(b.trail))
	for _, v := range b.trail {
		buf = append(buf, fmt.Sprintf("%v: %v", v, b.plug(b.values[v])))
	}
	return "{" + strings.Join(buf, ", ") + "}"
}

// locals returns the plugged values of every bound variable.
func (b *bindings) locals() map[ast.Var]*ast.Term {
	result := make(map[ast.Var]*ast.Term, len(b.values))
	for v, t := range b.values {
		result[v] = b.plug(t)
	}
	return result
}
