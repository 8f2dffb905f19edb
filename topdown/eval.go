// Copyright 2017 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package topdown

import (
	"context"
	"io"

	"github.com/regolith-dev/regolith/ast"
	"github.com/regolith-dev/regolith/logging"
	"github.com/regolith-dev/regolith/metrics"
	"github.com/regolith-dev/regolith/topdown/builtins"
	"github.com/regolith-dev/regolith/topdown/print"
)

type queryIDFactory struct {
	curr uint64
}

// Note: The first call to Next() returns 0.
func (f *queryIDFactory) Next() uint64 {
	curr := f.curr
	f.curr++
	return curr
}

// earlyExitError stops enumeration once a single solution is enough.
type earlyExitError struct{}

func (*earlyExitError) Error() string {
	return "<early exit>"
}

var errEarlyExit error = &earlyExitError{}

// dataOverride replaces the document at path for the duration of a with
// modifier. Overrides never nest: a later override under an existing one is
// folded into its value.
type dataOverride struct {
	path  ast.Ref
	value *ast.Term
}

type eval struct {
	ctx          context.Context
	queryID      uint64
	parentID     uint64
	queryIDFact  *queryIDFactory
	compiler     *ast.Compiler
	query        ast.Body
	input        *ast.Term
	data         *ast.Term
	overrides    []dataOverride
	bindings     *bindings
	cache        *ruleCache
	builtinCache builtins.Cache
	builtins     map[string]*Builtin
	tracers      []Tracer
	traceEnabled bool
	instr        *Instrumentation
	metrics      metrics.Metrics
	logger       logging.Logger
	printHook    print.Hook
	seed         io.Reader
	cancel       Cancel
}

// child returns an evaluator for a rule or function body. The body gets its
// own bindings.
func (e *eval) child(query ast.Body) *eval {
	cpy := *e
	cpy.bindings = newBindings()
	cpy.query = query
	cpy.parentID = e.queryID
	cpy.queryID = e.queryIDFact.Next()
	return &cpy
}

// closure returns an evaluator for a comprehension, every or negated body.
// The body shares bindings with e.
func (e *eval) closure(query ast.Body) *eval {
	cpy := *e
	cpy.query = query
	cpy.parentID = e.queryID
	cpy.queryID = e.queryIDFact.Next()
	return &cpy
}

func (e *eval) traceEnter(x interface{}, loc *ast.Location) {
	e.traceEvent(EnterOp, x, loc)
}

func (e *eval) traceExit(x interface{}, loc *ast.Location) {
	e.traceEvent(ExitOp, x, loc)
}

func (e *eval) traceEval(x *ast.Expr) {
	e.traceEvent(EvalOp, x, x.Location)
}

func (e *eval) traceFail(x *ast.Expr) {
	e.traceEvent(FailOp, x, x.Location)
}

func (e *eval) traceRedo(x interface{}, loc *ast.Location) {
	e.traceEvent(RedoOp, x, loc)
}

func (e *eval) traceEvent(op Op, x interface{}, loc *ast.Location) {

	if !e.traceEnabled {
		return
	}

	evt := Event{
		Op:       op,
		Node:     x,
		Location: loc,
		QueryID:  e.queryID,
		ParentID: e.parentID,
		Locals:   e.bindings.locals(),
	}

	for i := range e.tracers {
		if e.tracers[i].Enabled() {
			e.tracers[i].TraceEvent(evt)
		}
	}
}

func (e *eval) cancelled() bool {
	if e.cancel != nil && e.cancel.Cancelled() {
		return true
	}
	return false
}

// evalBody evaluates the statements of body in order and calls iter once
// per solution.
func (e *eval) evalBody(body ast.Body, iter func() error) error {
	return e.evalStep(body, 0, iter)
}

func (e *eval) evalStep(body ast.Body, index int, iter func() error) error {

	if index >= len(body) {
		return iter()
	}

	expr := body[index]
	e.traceEval(expr)

	found := false
	err := e.evalExpr(expr, func() error {
		found = true
		if err := e.evalStep(body, index+1, iter); err != nil {
			return err
		}
		e.traceRedo(expr, expr.Location)
		return nil
	})

	if err == nil && !found {
		e.traceFail(expr)
	}

	return err
}

func (e *eval) evalExpr(expr *ast.Expr, iter func() error) error {
	if len(expr.With) > 0 {
		return e.evalWith(expr, iter)
	}
	return e.evalExprNoWith(expr, iter)
}

func (e *eval) evalExprNoWith(expr *ast.Expr, iter func() error) error {

	if expr.Negated {
		return e.evalNot(expr, iter)
	}

	switch terms := expr.Terms.(type) {
	case *ast.SomeDecl:
		return e.evalSome(expr, terms, iter)
	case *ast.Every:
		return e.evalEvery(expr, terms, iter)
	case *ast.Term:
		return e.resolve(terms, func(t *ast.Term) error {
			if isFalse(t) {
				return nil
			}
			return iter()
		})
	case []*ast.Term:
		return e.evalCall(expr.Location, ast.Call(terms), func(t *ast.Term) error {
			if isFalse(t) {
				return nil
			}
			return iter()
		})
	}

	return &Error{Code: InternalErr, Location: expr.Location, Message: "illegal expression"}
}

func isFalse(t *ast.Term) bool {
	b, ok := t.Value.(ast.Boolean)
	return ok && !bool(b)
}

// evalNot succeeds iff the complement of expr has no solution. Bindings made
// while searching are discarded.
func (e *eval) evalNot(expr *ast.Expr, iter func() error) error {

	positive := expr.Complement()
	child := e.closure(ast.NewBody(positive))

	child.traceEnter(positive, expr.Location)

	found := false
	mark := e.bindings.mark()
	err := child.evalExprNoWith(positive, func() error {
		found = true
		return errEarlyExit
	})
	e.bindings.undo(mark)

	if err != nil && err != errEarlyExit {
		return err
	}

	if found {
		return nil
	}

	return iter()
}

// evalSome evaluates `some` declarations. A plain declaration only
// introduces names. A membership declaration enumerates the domain.
func (e *eval) evalSome(expr *ast.Expr, decl *ast.SomeDecl, iter func() error) error {

	if len(decl.Symbols) != 1 {
		return iter()
	}

	call, ok := decl.Symbols[0].Value.(ast.Call)
	if !ok {
		return iter()
	}

	operands := call.Operands()
	domain := operands[len(operands)-1]

	return e.resolve(domain, func(d *ast.Term) error {

		switch d.Value.(type) {
		case *ast.Array, ast.Object, ast.Set:
		default:
			return invalidIterableErr(expr.Location, d.Value)
		}

		return e.enumerate(d, func(k, v *ast.Term) error {
			if len(operands) == 2 {
				return e.unify(operands[0], v, iter)
			}
			return e.unify(operands[0], k, func() error {
				return e.unify(operands[1], v, iter)
			})
		})
	})
}

// evalEvery succeeds iff the body has a solution for every element of the
// domain. Domains that are not collections are treated as empty.
func (e *eval) evalEvery(expr *ast.Expr, every *ast.Every, iter func() error) error {

	return e.resolve(every.Domain, func(domain *ast.Term) error {

		if !ast.IsCollection(domain.Value) {
			return iter()
		}

		child := e.closure(every.Body)
		child.traceEnter(every, expr.Location)

		all := true
		err := e.enumerate(domain, func(k, v *ast.Term) error {

			found := false
			body := func() error {
				err := child.evalBody(every.Body, func() error {
					found = true
					return errEarlyExit
				})
				if err == errEarlyExit {
					return nil
				}
				return err
			}

			var err error
			if every.Key != nil {
				err = e.unify(every.Key, k, func() error {
					return e.unify(every.Value, v, body)
				})
			} else {
				err = e.unify(every.Value, v, body)
			}
			if err != nil {
				return err
			}

			if !found {
				all = false
				return errEarlyExit
			}
			return nil
		})

		if err != nil && err != errEarlyExit {
			return err
		}

		if !all {
			return nil
		}

		child.traceExit(every, expr.Location)
		return iter()
	})
}

// evalWith evaluates expr with the documents named by its with modifiers
// replaced. The replacements are visible to expr only. The statements that
// follow see the original documents.
func (e *eval) evalWith(expr *ast.Expr, iter func() error) error {

	values := make([]*ast.Term, len(expr.With))
	for i := range expr.With {
		values[i] = expr.With[i].Value
	}

	return e.resolveAll(values, func(values []*ast.Term) error {

		saved := e.saveDocs()

		for i, w := range expr.With {
			if err := e.applyWith(w, values[i]); err != nil {
				e.restoreDocs(saved)
				return err
			}
		}

		e.cache = newRuleCache()
		modified := e.saveDocs()

		err := e.evalExprNoWith(expr, func() error {
			e.restoreDocs(saved)
			err := iter()
			e.restoreDocs(modified)
			return err
		})

		e.restoreDocs(saved)
		return err
	})
}

type docState struct {
	input     *ast.Term
	overrides []dataOverride
	cache     *ruleCache
}

func (e *eval) saveDocs() docState {
	return docState{input: e.input, overrides: e.overrides, cache: e.cache}
}

func (e *eval) restoreDocs(s docState) {
	e.input = s.input
	e.overrides = s.overrides
	e.cache = s.cache
}

func (e *eval) applyWith(w *ast.With, value *ast.Term) error {

	var ref ast.Ref
	switch t := w.Target.Value.(type) {
	case ast.Ref:
		ref = t
	case ast.Var:
		ref = ast.Ref{w.Target}
	default:
		return withTargetErr(w.Location, w.Target)
	}

	path := make(ast.Ref, len(ref))
	for i := range ref {
		path[i] = e.bindings.plug(ref[i])
		if i > 0 && !path[i].IsGround() {
			return withTargetErr(w.Location, w.Target)
		}
	}

	switch {
	case path[0].Equal(ast.InputRootDocument):
		e.input = setPath(e.input, path[1:], value)
	case path[0].Equal(ast.DefaultRootDocument):
		e.addOverride(path, value)
	default:
		return withTargetErr(w.Location, w.Target)
	}

	return nil
}

func (e *eval) addOverride(path ast.Ref, value *ast.Term) {

	next := make([]dataOverride, 0, len(e.overrides)+1)
	folded := false

	for _, ov := range e.overrides {
		switch {
		case len(path) > len(ov.path) && path.HasPrefix(ov.path):
			ov = dataOverride{path: ov.path, value: setPath(ov.value, path[len(ov.path):], value)}
			folded = true
		case ov.path.HasPrefix(path):
			continue
		}
		next = append(next, ov)
	}

	if !folded {
		next = append(next, dataOverride{path: path, value: value})
	}

	e.overrides = next
}

// setPath returns a copy of doc with the value at path replaced. Objects are
// created along the path where needed.
func setPath(doc *ast.Term, path ast.Ref, value *ast.Term) *ast.Term {

	if len(path) == 0 {
		return value
	}

	obj := ast.NewObject()
	if doc != nil {
		if o, ok := doc.Value.(ast.Object); ok {
			o.Foreach(func(k, v *ast.Term) {
				obj.Insert(k, v)
			})
		}
	}

	obj.Insert(path[0], setPath(obj.Get(path[0]), path[1:], value))
	return ast.NewTerm(obj)
}

// unify resolves a and b and unifies the results.
func (e *eval) unify(a, b *ast.Term, iter func() error) error {
	return e.resolve(a, func(a *ast.Term) error {
		return e.resolve(b, func(b *ast.Term) error {
			return e.unifyTerms(a, b, iter)
		})
	})
}

func (e *eval) unifyTerms(a, b *ast.Term, iter func() error) error {

	a, b = e.bindings.deref(a), e.bindings.deref(b)

	if v, ok := a.Value.(ast.Var); ok {
		return e.unifyVar(v, b, iter)
	}

	if v, ok := b.Value.(ast.Var); ok {
		return e.unifyVar(v, a, iter)
	}

	switch av := a.Value.(type) {
	case *ast.Array:
		bv, ok := b.Value.(*ast.Array)
		if !ok || av.Len() != bv.Len() {
			return nil
		}
		return e.unifyArrays(av, bv, 0, iter)
	case ast.Object:
		bv, ok := b.Value.(ast.Object)
		if !ok || av.Len() != bv.Len() {
			return nil
		}
		keys := av.Keys()
		for _, k := range keys {
			if bv.Get(k) == nil {
				return nil
			}
		}
		return e.unifyObjects(av, bv, keys, 0, iter)
	}

	if !e.bindings.plug(a).Equal(e.bindings.plug(b)) {
		return nil
	}

	return iter()
}

func (e *eval) unifyVar(v ast.Var, t *ast.Term, iter func() error) error {

	if other, ok := t.Value.(ast.Var); ok && other == v {
		return iter()
	}

	mark := e.bindings.mark()
	e.bindings.bind(v, e.bindings.plug(t))
	err := iter()
	e.bindings.undo(mark)
	return err
}

func (e *eval) unifyArrays(a, b *ast.Array, i int, iter func() error) error {
	if i == a.Len() {
		return iter()
	}
	return e.unifyTerms(a.Elem(i), b.Elem(i), func() error {
		return e.unifyArrays(a, b, i+1, iter)
	})
}

func (e *eval) unifyObjects(a, b ast.Object, keys []*ast.Term, i int, iter func() error) error {
	if i == len(keys) {
		return iter()
	}
	return e.unifyTerms(a.Get(keys[i]), b.Get(keys[i]), func() error {
		return e.unifyObjects(a, b, keys, i+1, iter)
	})
}

// resolve evaluates the refs, calls and comprehensions contained in t and
// calls iter once per resulting value. Bound variables are replaced by their
// values. Unbound variables are left in place for unification.
func (e *eval) resolve(t *ast.Term, iter func(*ast.Term) error) error {

	switch v := t.Value.(type) {
	case ast.Null, ast.Boolean, ast.Number, ast.String:
		return iter(t)
	case ast.Var:
		plugged := e.bindings.plug(t)
		if _, ok := plugged.Value.(ast.Var); ok && ast.RootDocumentNames.Contains(v) {
			return e.evalRef(ast.Ref{t}, iter)
		}
		return iter(plugged)
	case ast.Ref:
		return e.evalRef(v, iter)
	case ast.Call:
		return e.evalCall(t.Location, v, iter)
	case *ast.Array:
		if ast.IsConstant(v) {
			return iter(t)
		}
		elems := make([]*ast.Term, v.Len())
		for i := range elems {
			elems[i] = v.Elem(i)
		}
		return e.resolveAll(elems, func(elems []*ast.Term) error {
			return iter(ast.NewTerm(ast.NewArray(elems...)).SetLocation(t.Location))
		})
	case ast.Object:
		if ast.IsConstant(v) {
			return iter(t)
		}
		terms := make([]*ast.Term, 0, v.Len()*2)
		v.Foreach(func(k, x *ast.Term) {
			terms = append(terms, k, x)
		})
		return e.resolveAll(terms, func(terms []*ast.Term) error {
			obj := ast.NewObject()
			for i := 0; i < len(terms); i += 2 {
				obj.Insert(terms[i], terms[i+1])
			}
			return iter(ast.NewTerm(obj).SetLocation(t.Location))
		})
	case ast.Set:
		if ast.IsConstant(v) {
			return iter(t)
		}
		return e.resolveAll(v.Slice(), func(elems []*ast.Term) error {
			return iter(ast.NewTerm(ast.NewSet(elems...)).SetLocation(t.Location))
		})
	case *ast.ArrayComprehension:
		return e.evalArrayComprehension(t, v, iter)
	case *ast.SetComprehension:
		return e.evalSetComprehension(t, v, iter)
	case *ast.ObjectComprehension:
		return e.evalObjectComprehension(t, v, iter)
	}

	return iter(t)
}

func (e *eval) resolveAll(terms []*ast.Term, iter func([]*ast.Term) error) error {
	out := make([]*ast.Term, len(terms))
	var rec func(int) error
	rec = func(i int) error {
		if i == len(terms) {
			cpy := make([]*ast.Term, len(out))
			copy(cpy, out)
			return iter(cpy)
		}
		return e.resolve(terms[i], func(t *ast.Term) error {
			out[i] = t
			return rec(i + 1)
		})
	}
	return rec(0)
}

func (e *eval) evalArrayComprehension(t *ast.Term, ac *ast.ArrayComprehension, iter func(*ast.Term) error) error {

	e.instr.counterIncr(evalOpComprehension)

	child := e.closure(ac.Body)
	child.traceEnter(ac.Body, t.Location)

	var result []*ast.Term
	err := child.evalBody(ac.Body, func() error {
		return child.resolve(ac.Term, func(x *ast.Term) error {
			result = append(result, child.bindings.plug(x))
			return nil
		})
	})
	if err != nil {
		return err
	}

	return iter(ast.NewTerm(ast.NewArray(result...)).SetLocation(t.Location))
}

func (e *eval) evalSetComprehension(t *ast.Term, sc *ast.SetComprehension, iter func(*ast.Term) error) error {

	e.instr.counterIncr(evalOpComprehension)

	child := e.closure(sc.Body)
	child.traceEnter(sc.Body, t.Location)

	result := ast.NewSet()
	err := child.evalBody(sc.Body, func() error {
		return child.resolve(sc.Term, func(x *ast.Term) error {
			result.Add(child.bindings.plug(x))
			return nil
		})
	})
	if err != nil {
		return err
	}

	return iter(ast.NewTerm(result).SetLocation(t.Location))
}

func (e *eval) evalObjectComprehension(t *ast.Term, oc *ast.ObjectComprehension, iter func(*ast.Term) error) error {

	e.instr.counterIncr(evalOpComprehension)

	child := e.closure(oc.Body)
	child.traceEnter(oc.Body, t.Location)

	result := ast.NewObject()
	err := child.evalBody(oc.Body, func() error {
		return child.resolve(oc.Key, func(k *ast.Term) error {
			return child.resolve(oc.Value, func(v *ast.Term) error {
				k, v = child.bindings.plug(k), child.bindings.plug(v)
				if existing := result.Get(k); existing != nil {
					if !existing.Equal(v) {
						return objectDocKeyConflictErr(t.Location)
					}
					return nil
				}
				result.Insert(k, v)
				return nil
			})
		})
	})
	if err != nil {
		return err
	}

	return iter(ast.NewTerm(result).SetLocation(t.Location))
}

// evalCall evaluates a call to a built-in or a user function.
func (e *eval) evalCall(loc *ast.Location, call ast.Call, iter func(*ast.Term) error) error {

	ref := call.Operator()
	operands := call.Operands()

	if ref.HasPrefix(ast.DefaultRootRef) {
		return e.evalFuncCall(loc, ref, operands, iter)
	}

	name := ref.String()

	switch name {
	case ast.Equality.Name, ast.Assign.Name:
		return e.unify(operands[0], operands[1], func() error {
			return iter(ast.BooleanTerm(true))
		})
	case ast.Print.Name:
		return e.evalPrint(loc, operands, iter)
	}

	var f BuiltinFunc
	arity := -1

	if bi, ok := e.builtins[name]; ok {
		f = bi.Func
		arity = bi.Decl.Arity
	} else if decl, ok := ast.BuiltinMap[name]; ok {
		f = builtinFunctions[name]
		arity = decl.Arity
	}

	if f == nil {
		return unsupportedBuiltinErr(loc, name)
	}

	if arity >= 0 && len(operands) != arity {
		return arityErr(loc, name, arity, len(operands))
	}

	return e.resolveAll(operands, func(args []*ast.Term) error {
		for i := range args {
			args[i] = e.bindings.plug(args[i])
		}
		return e.callBuiltin(loc, f, args, iter)
	})
}

func (e *eval) callBuiltin(loc *ast.Location, f BuiltinFunc, args []*ast.Term, iter func(*ast.Term) error) error {

	e.instr.counterIncr(evalOpBuiltinCall)
	start := e.instr.now()
	observed := false

	bctx := BuiltinContext{
		Context:   e.ctx,
		Metrics:   e.metrics,
		Logger:    e.logger,
		Seed:      e.seed,
		PrintHook: e.printHook,
		Cancel:    e.cancel,
		Location:  loc,
		Cache:     e.builtinCache,
		QueryID:   e.queryID,
		ParentID:  e.parentID,
	}

	return f(bctx, args, func(result *ast.Term) error {
		if !observed {
			observed = true
			e.instr.observe(evalOpBuiltinCallTime, start)
		}
		return iter(result)
	})
}

// evalPrint collects every value of each operand before calling print so
// that undefined operands are printed instead of making the call fail.
func (e *eval) evalPrint(loc *ast.Location, operands []*ast.Term, iter func(*ast.Term) error) error {

	sets := make([]*ast.Term, len(operands))

	for i := range operands {
		s := ast.NewSet()
		mark := e.bindings.mark()
		err := e.resolve(operands[i], func(t *ast.Term) error {
			s.Add(e.bindings.plug(t))
			return nil
		})
		e.bindings.undo(mark)
		if err != nil {
			return err
		}
		sets[i] = ast.NewTerm(s)
	}

	return e.callBuiltin(loc, builtinFunctions[ast.Print.Name], sets, iter)
}

// evalRef evaluates ref and calls iter once per value. Operands that are
// unbound variables enumerate the keys of the document they are applied to.
func (e *eval) evalRef(ref ast.Ref, iter func(*ast.Term) error) error {

	head := ref[0]

	if v, ok := head.Value.(ast.Var); ok {
		switch {
		case head.Equal(ast.DefaultRootDocument):
			node := e.compiler.RuleTree.Child(v)
			return e.walkData(node, e.data, ast.DefaultRootRef, ref, 1, iter)
		case head.Equal(ast.InputRootDocument):
			if e.input == nil {
				return nil
			}
			return e.walk(e.input, ref, 1, iter)
		}
		t, ok := e.bindings.lookup(v)
		if !ok {
			return nil
		}
		return e.walk(e.bindings.plug(t), ref, 1, iter)
	}

	return e.resolve(head, func(t *ast.Term) error {
		return e.walk(t, ref, 1, iter)
	})
}

// walk applies the operands of ref starting at pos to the value.
func (e *eval) walk(value *ast.Term, ref ast.Ref, pos int, iter func(*ast.Term) error) error {

	if pos == len(ref) {
		return iter(value)
	}

	return e.resolve(ref[pos], func(key *ast.Term) error {

		if key.IsGround() {
			child := lookup(value, key)
			if child == nil {
				return nil
			}
			return e.walk(child, ref, pos+1, iter)
		}

		return e.enumerate(value, func(k, v *ast.Term) error {
			return e.unifyTerms(key, k, func() error {
				return e.walk(v, ref, pos+1, iter)
			})
		})
	})
}

// lookup returns the element of the collection at key. A set returns the
// key itself when it is a member.
func lookup(value *ast.Term, key *ast.Term) *ast.Term {
	if value == nil {
		return nil
	}
	switch v := value.Value.(type) {
	case *ast.Array:
		return v.Get(key)
	case ast.Object:
		return v.Get(key)
	case ast.Set:
		if v.Contains(key) {
			return key
		}
	}
	return nil
}

// enumerate calls f with the key and value of each element of a collection.
// Arrays yield indices, sets yield each element as both key and value.
func (e *eval) enumerate(value *ast.Term, f func(k, v *ast.Term) error) error {
	switch v := value.Value.(type) {
	case *ast.Array:
		for i := 0; i < v.Len(); i++ {
			if err := f(ast.IntNumberTerm(i), v.Elem(i)); err != nil {
				return err
			}
		}
	case ast.Object:
		return v.Iter(f)
	case ast.Set:
		return v.Iter(func(x *ast.Term) error {
			return f(x, x)
		})
	}
	return nil
}
