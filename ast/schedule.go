// Copyright 2024 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package ast

import (
	"sort"
	"strings"
)

// Definition records that a statement binds Var once every var in Uses is
// bound. A definition with an empty Var holds the reads of the statement.
type Definition struct {
	Var  Var
	Uses VarSet
}

// StatementInfo holds the definitions computed for one statement of a body.
type StatementInfo struct {
	Expr        *Expr
	Definitions []Definition
}

// Defines returns the vars bound by the statement.
func (info *StatementInfo) Defines() VarSet {
	vs := NewVarSet()
	for _, d := range info.Definitions {
		if d.Var != "" {
			vs.Add(d.Var)
		}
	}
	return vs
}

// Uses returns the vars that must be bound before the statement can run,
// excluding the vars it binds itself.
func (info *StatementInfo) Uses() VarSet {
	vs := NewVarSet()
	for _, d := range info.Definitions {
		vs.Update(d.Uses)
	}
	return vs.Diff(info.Defines())
}

// resolve determines which vars the statement binds given the bound set. The
// second return value is false if some definition cannot be satisfied.
func (info *StatementInfo) resolve(bound VarSet) (VarSet, bool) {
	defined := NewVarSet()
	pending := info.Definitions
	for len(pending) > 0 {
		var next []Definition
		for _, d := range pending {
			if satisfied(d.Uses, bound, defined) {
				if d.Var != "" {
					defined.Add(d.Var)
				}
			} else {
				next = append(next, d)
			}
		}
		if len(next) == len(pending) {
			return defined, false
		}
		pending = next
	}
	return defined, true
}

// missing returns the vars read by unsatisfied definitions of the statement.
func (info *StatementInfo) missing(bound VarSet) VarSet {
	defined, _ := info.resolve(bound)
	result := NewVarSet()
	for _, d := range info.Definitions {
		for v := range d.Uses {
			if !bound.Contains(v) && !defined.Contains(v) {
				result.Add(v)
			}
		}
	}
	return result
}

func satisfied(uses, bound, defined VarSet) bool {
	for v := range uses {
		if !bound.Contains(v) && !defined.Contains(v) {
			return false
		}
	}
	return true
}

// ScheduleBody orders the statements of body so that every statement runs
// after the statements that bind the vars it reads. Vars in globals are
// treated as bound on entry. Closure bodies nested inside body are ordered in
// place. The statement information is returned in evaluation order.
func ScheduleBody(globals VarSet, body Body) (Body, []*StatementInfo, error) {
	s := newScheduler(nil)
	scheduled, infos, _ := s.body(globals, body)
	if len(s.errs) > 0 {
		return nil, nil, s.errs
	}
	if errs := s.unsafe.errors(s.display); len(errs) > 0 {
		return nil, nil, errs
	}
	return scheduled, infos, nil
}

type scheduler struct {
	display func(Var) Var
	errs    Errors
	unsafe  unsafeVars
}

func newScheduler(display func(Var) Var) *scheduler {
	if display == nil {
		display = func(v Var) Var { return v }
	}
	return &scheduler{
		display: display,
		unsafe:  unsafeVars{},
	}
}

func (s *scheduler) err(err *Error) {
	s.errs = append(s.errs, err)
}

// body schedules body and returns the reordered body, the statement
// information in evaluation order, and the set of vars bound once the body
// has been evaluated.
func (s *scheduler) body(globals VarSet, body Body) (Body, []*StatementInfo, VarSet) {

	locals := bodyLocals(globals, body)
	visible := globals.Copy()
	visible.Update(locals)

	infos := make([]*StatementInfo, len(body))
	for i, expr := range body {
		infos[i] = s.statement(visible, locals, expr)
	}

	order, done, bound := orderStatements(infos)

	if len(order) < len(infos) {
		var pending []int
		definable := NewVarSet()
		for i := range infos {
			if !done[i] {
				pending = append(pending, i)
				definable.Update(infos[i].Defines())
			}
		}

		cycle := NewVarSet()
		foundUnsafe := false
		for _, i := range pending {
			for v := range infos[i].missing(bound) {
				if definable.Contains(v) {
					cycle.Add(v)
				} else {
					s.unsafe.Add(infos[i].Expr, v)
					foundUnsafe = true
				}
			}
		}

		if !foundUnsafe && len(cycle) > 0 {
			names := make([]string, 0, len(cycle))
			for _, v := range cycle.Sorted() {
				names = append(names, string(s.display(v)))
			}
			sort.Strings(names)
			s.err(NewError(RecursionErr, infos[pending[0]].Expr.Location,
				"recursion detected in body: variables %s depend on each other", strings.Join(names, ", ")))
		}

		order = append(order, pending...)
	}

	scheduled := make(Body, len(order))
	sorted := make([]*StatementInfo, len(order))
	for i, idx := range order {
		scheduled[i] = infos[idx].Expr
		sorted[i] = infos[idx]
	}

	bound.Update(globals)

	return NewBody(scheduled...), sorted, bound
}

// orderStatements repeatedly picks the first statement in written order
// whose definitions can be satisfied. Statements that are already in a valid
// order keep it.
func orderStatements(infos []*StatementInfo) ([]int, []bool, VarSet) {
	bound := NewVarSet()
	done := make([]bool, len(infos))
	order := make([]int, 0, len(infos))

	for len(order) < len(infos) {
		next := -1
		var defined VarSet
		for i := range infos {
			if done[i] {
				continue
			}
			if vs, ok := infos[i].resolve(bound); ok {
				next, defined = i, vs
				break
			}
		}
		if next < 0 {
			break
		}
		done[next] = true
		order = append(order, next)
		bound.Update(defined)
	}

	return order, done, bound
}

// bodyLocals returns the vars that belong to the scope of body: the vars that
// appear outside of nested closures and are not bound by an enclosing scope.
func bodyLocals(globals VarSet, body Body) VarSet {
	vis := NewVarVisitor().WithParams(VarVisitorParams{
		SkipClosures:    true,
		SkipRefCallHead: true,
		SkipWithTarget:  true,
	})
	vis.WalkBody(body)
	locals := NewVarSet()
	for v := range vis.Vars() {
		if globals.Contains(v) || v.IsWildcard() || RootDocumentNames.Contains(v) {
			continue
		}
		locals.Add(v)
	}
	return locals
}

// analysis computes the definitions of a single statement.
type analysis struct {
	s       *scheduler
	visible VarSet
	locals  VarSet
	info    *StatementInfo
	noDefs  bool
}

func (s *scheduler) statement(visible, locals VarSet, expr *Expr) *StatementInfo {

	a := &analysis{
		s:       s,
		visible: visible,
		locals:  locals,
		info:    &StatementInfo{Expr: expr},
		noDefs:  expr.Negated,
	}

	switch terms := expr.Terms.(type) {
	case *SomeDecl:
		if len(terms.Symbols) == 1 {
			if call, ok := terms.Symbols[0].Value.(Call); ok {
				operands := call[1:]
				domain := a.uses(operands[len(operands)-1])
				for _, p := range operands[:len(operands)-1] {
					a.pattern(p, domain)
				}
				a.read(domain)
			}
		}
	case *Every:
		uses := a.uses(terms.Domain)
		inner := visible.Copy()
		inner.Update(terms.KeyValueVars())
		terms.Body, _ = s.closureBody(inner, terms.Body)
		uses.Update(a.free(terms.Body))
		a.read(uses)
	case *Term:
		a.read(a.uses(terms))
	case []*Term:
		if !expr.Negated && len(terms) == 3 && (expr.IsEquality() || expr.IsAssignment()) {
			a.unify(terms[1], terms[2], expr.IsAssignment())
		} else {
			uses := NewVarSet()
			for _, t := range terms[1:] {
				a.walk(t, uses)
			}
			a.read(uses)
		}
	}

	for _, w := range expr.With {
		a.read(a.uses(w.Value))
	}

	if len(a.info.Definitions) == 0 {
		a.read(NewVarSet())
	}

	return a.info
}

func (a *analysis) read(uses VarSet) {
	a.info.Definitions = append(a.info.Definitions, Definition{Uses: uses})
}

func (a *analysis) define(v Var, uses VarSet) {
	a.info.Definitions = append(a.info.Definitions, Definition{Var: v, Uses: uses.Copy()})
}

func (a *analysis) uses(t *Term) VarSet {
	vs := NewVarSet()
	a.walk(t, vs)
	return vs
}

func (a *analysis) walk(t *Term, vs VarSet) {
	switch v := t.Value.(type) {
	case Var:
		if a.locals.Contains(v) {
			vs.Add(v)
		}
	case Ref:
		prefix := NewVarSet()
		a.walk(v[0], prefix)
		for _, x := range v[1:] {
			// An unbound var used as a ref operand iterates over the keys of
			// the prefix.
			if iv, ok := x.Value.(Var); ok && a.locals.Contains(iv) && !a.noDefs {
				a.define(iv, prefix)
			}
			a.walk(x, prefix)
		}
		vs.Update(prefix)
	case Call:
		for _, x := range v[1:] {
			a.walk(x, vs)
		}
	case *Array:
		v.Foreach(func(x *Term) {
			a.walk(x, vs)
		})
	case Object:
		v.Foreach(func(k, x *Term) {
			a.walk(k, vs)
			a.walk(x, vs)
		})
	case Set:
		v.Foreach(func(x *Term) {
			a.walk(x, vs)
		})
	case *ArrayComprehension:
		var bound VarSet
		v.Body, bound = a.s.closureBody(a.visible, v.Body)
		a.s.checkClosureHead(a.visible, bound, v.Term)
		vs.Update(a.free(v))
	case *SetComprehension:
		var bound VarSet
		v.Body, bound = a.s.closureBody(a.visible, v.Body)
		a.s.checkClosureHead(a.visible, bound, v.Term)
		vs.Update(a.free(v))
	case *ObjectComprehension:
		var bound VarSet
		v.Body, bound = a.s.closureBody(a.visible, v.Body)
		a.s.checkClosureHead(a.visible, bound, v.Key, v.Value)
		vs.Update(a.free(v))
	}
}

// free returns the vars of the current scope referenced inside x.
func (a *analysis) free(x interface{}) VarSet {
	vs := NewVarSet()
	WalkVars(x, func(v Var) bool {
		if a.locals.Contains(v) {
			vs.Add(v)
		}
		return false
	})
	return vs
}

// unify records the definitions of `lhs = rhs` and `lhs := rhs`. The right
// hand side of an assignment is never bound by it.
func (a *analysis) unify(lhs, rhs *Term, assign bool) {

	if la, ok := lhs.Value.(*Array); ok {
		if ra, ok := rhs.Value.(*Array); ok {
			if la.Len() != ra.Len() {
				a.s.err(NewError(PatternMismatchErr, rhs.Location, "mismatch in number of array elements"))
				a.read(NewVarSet())
				return
			}
			for i := 0; i < la.Len(); i++ {
				a.unify(la.Elem(i), ra.Elem(i), assign)
			}
			return
		}
	}

	lhsUses := a.uses(lhs)
	rhsUses := a.uses(rhs)

	lhsVars := a.patternVars(lhs)
	uses := rhsUses.Copy()
	uses.Update(lhsUses.Diff(lhsVars))
	for _, v := range lhsVars.Sorted() {
		a.define(v, uses)
	}

	if !assign {
		rhsVars := a.patternVars(rhs)
		uses := lhsUses.Copy()
		uses.Update(rhsUses.Diff(rhsVars))
		for _, v := range rhsVars.Sorted() {
			a.define(v, uses)
		}
	}

	all := lhsUses.Copy()
	all.Update(rhsUses)
	a.read(all)
}

// pattern records the definitions of the vars in a `some ... in` pattern.
func (a *analysis) pattern(p *Term, domain VarSet) {
	vars := a.patternVars(p)
	uses := domain.Copy()
	uses.Update(a.uses(p).Diff(vars))
	for _, v := range vars.Sorted() {
		a.define(v, uses)
	}
}

// patternVars returns the vars of the current scope that t binds when it is
// unified with a value: top-level vars, array elements and object values.
func (a *analysis) patternVars(t *Term) VarSet {
	vs := NewVarSet()
	var walk func(*Term)
	walk = func(t *Term) {
		switch v := t.Value.(type) {
		case Var:
			if a.locals.Contains(v) {
				vs.Add(v)
			}
		case *Array:
			v.Foreach(walk)
		case Object:
			v.Foreach(func(_, x *Term) {
				walk(x)
			})
		}
	}
	walk(t)
	return vs
}

// closureBody schedules the body of a comprehension or every statement.
func (s *scheduler) closureBody(globals VarSet, body Body) (Body, VarSet) {
	scheduled, _, bound := s.body(globals, body)
	return scheduled, bound
}

// checkClosureHead reports vars in a comprehension head that its body never
// binds.
func (s *scheduler) checkClosureHead(outer, bound VarSet, terms ...*Term) {
	for _, t := range terms {
		WalkVars(t, func(v Var) bool {
			if v.IsWildcard() || RootDocumentNames.Contains(v) {
				return false
			}
			if !outer.Contains(v) && !bound.Contains(v) {
				s.err(NewError(UnsafeVarErr, t.Location, "var %v is unsafe", s.display(v)))
			}
			return false
		})
	}
}

type unsafeVars map[*Expr]VarSet

func (vs unsafeVars) Add(e *Expr, v Var) {
	if u, ok := vs[e]; ok {
		u.Add(v)
	} else {
		vs[e] = NewVarSet(v)
	}
}

func (vs unsafeVars) Vars() VarSet {
	r := NewVarSet()
	for _, s := range vs {
		r.Update(s)
	}
	return r
}

// errors returns one error per unsafe var, sorted by location.
func (vs unsafeVars) errors(display func(Var) Var) Errors {
	var errs Errors
	for e, s := range vs {
		for _, v := range s.Sorted() {
			errs = append(errs, NewError(UnsafeVarErr, e.Location, "var %v is unsafe", display(v)))
		}
	}
	errs.Sort()
	return errs
}
