// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package ast

import (
	"fmt"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/regolith-dev/regolith/metrics"
)

// CompileErrorLimitDefault is the default number errors a compiler will allow before
// exiting.
const CompileErrorLimitDefault = 10

var errLimitReached = NewError(CompileErr, nil, "error limit reached")

// Compiler contains the state of a compilation process.
type Compiler struct {

	// Errors contains errors that occurred during the compilation process.
	// If there are one or more errors, the compilation process is considered
	// "failed".
	Errors Errors

	// Modules contains the compiled modules. The compiled modules are the
	// output of the compilation process. If the compilation process failed,
	// there is no guarantee about the state of the modules.
	Modules map[string]*Module

	// RuleTree organizes rules into a tree where each node is keyed by an
	// element in the rule's path. The rule path is the concatenation of the
	// containing package and the rule's head reference. E.g., given the
	// following module:
	//
	//  package ex
	//  p contains 1
	//  p contains 2
	//  q := true
	//
	//  root
	//    |
	//    +--- data (no rules)
	//           |
	//           +--- ex (no rules)
	//                |
	//                +--- p (2 rules)
	//                |
	//                +--- q (1 rule)
	RuleTree *RuleTreeNode

	// Graph contains the rule dependency graph. An edge (u, v) exists if a
	// rule at u refers to the document produced at v.
	Graph *Graph

	// RewrittenVars maps generated local var names to the names written in
	// the source.
	RewrittenVars map[Var]Var

	stages      []stage
	maxErrs     int
	metrics     metrics.Metrics
	index       *ruleIndex
	localvargen *localVarGenerator
	sorted      []string
	unsafe      unsafeVars
	unsafeHeads Errors
}

type stage struct {
	name       string
	metricName string
	f          func()
}

// CompileModule is a helper function to compile a module represented as a string.
func CompileModule(m string) (*Compiler, *Module, error) {

	mod, err := ParseModule("", m)
	if err != nil {
		return nil, nil, err
	}

	c := NewCompiler()

	key := "module.rego"
	mods := map[string]*Module{
		key: mod,
	}

	if c.Compile(mods); c.Failed() {
		return nil, nil, c.Errors
	}

	return c, c.Modules[key], nil
}

// CompileModules takes a set of policy source files, keyed by filename, and
// returns a compiler with the compiled modules.
func CompileModules(modules map[string]string) (*Compiler, error) {

	parsed := make(map[string]*Module, len(modules))

	for f, module := range modules {
		pm, err := ParseModule(f, module)
		if err != nil {
			return nil, err
		}
		parsed[f] = pm
	}

	c := NewCompiler()
	c.Compile(parsed)

	if c.Failed() {
		return nil, c.Errors
	}

	return c, nil
}

// MustCompileModules compiles a set of policy source files, keyed by
// filename, and panics on error.
func MustCompileModules(modules map[string]string) *Compiler {
	compiler, err := CompileModules(modules)
	if err != nil {
		panic(err)
	}
	return compiler
}

// NewCompiler returns a new empty compiler.
func NewCompiler() *Compiler {

	c := &Compiler{
		Modules:       map[string]*Module{},
		RewrittenVars: map[Var]Var{},
		RuleTree:      NewRuleTree(nil),
		Graph:         NewGraph(),
		maxErrs:       CompileErrorLimitDefault,
		metrics:       metrics.NoOp(),
		index:         newRuleIndex(),
		localvargen:   newLocalVarGenerator(LocalVarPrefix),
		unsafe:        unsafeVars{},
	}

	c.stages = []stage{
		{"CheckDefaultValues", "compile_stage_check_default_values", c.checkDefaultValues},
		{"ResolveRefs", "compile_stage_resolve_refs", c.resolveAllRefs},
		{"SetRuleTree", "compile_stage_set_rule_tree", c.setRuleTree},
		{"CheckRuleConflicts", "compile_stage_check_rule_conflicts", c.checkRuleConflicts},
		{"CheckUndefinedFuncs", "compile_stage_check_undefined_funcs", c.checkUndefinedFuncs},
		{"BuildRuleGraph", "compile_stage_build_rule_graph", c.setGraph},
		{"CheckRecursion", "compile_stage_check_recursion", c.checkRecursion},
		{"ScheduleBodies", "compile_stage_schedule_bodies", c.scheduleBodies},
		{"CheckSafety", "compile_stage_check_safety", c.checkSafety},
	}

	return c
}

// WithMaxErrors sets the maximum number of errors the compiler will collect
// before stopping. Zero disables the limit.
func (c *Compiler) WithMaxErrors(n int) *Compiler {
	c.maxErrs = n
	return c
}

// WithMetrics records the time spent in each compiler stage on m.
func (c *Compiler) WithMetrics(m metrics.Metrics) *Compiler {
	if m != nil {
		c.metrics = m
	}
	return c
}

// Compile runs the compilation process on the input modules. The compiled
// version of the modules and associated data structures are stored on the
// compiler. If the compilation process fails for any reason, the compiler will
// contain a slice of errors. The input modules are not modified.
func (c *Compiler) Compile(modules map[string]*Module) {
	c.Modules = make(map[string]*Module, len(modules))
	for k, mod := range modules {
		c.Modules[k] = mod.Copy()
	}
	c.sorted = sortedModuleKeys(c.Modules)
	c.compile()
}

// Failed returns true if a compilation error has been encountered.
func (c *Compiler) Failed() bool {
	return len(c.Errors) > 0
}

// GetRulesExact returns a slice of rules referred to by the reference.
//
// E.g., given the following module:
//
//	package a.b.c
//
//	p[k] = v if { ... }    # rule1
//	p[k1] = v1 if { ... }  # rule2
//
// The following calls yield the rules on the right.
//
//	GetRulesExact("data.a.b.c.p")   => [rule1, rule2]
//	GetRulesExact("data.a.b.c.p.x") => nil
//	GetRulesExact("data.a.b.c")     => nil
func (c *Compiler) GetRulesExact(ref Ref) []*Rule {
	node := c.RuleTree.Find(ref)
	if node == nil {
		return nil
	}
	return node.Values
}

// GetRulesForVirtualDocument returns a slice of rules that produce the virtual
// document referred to by the reference.
//
// E.g., given the same module as GetRulesExact:
//
//	GetRulesForVirtualDocument("data.a.b.c.p")   => [rule1, rule2]
//	GetRulesForVirtualDocument("data.a.b.c.p.x") => [rule1, rule2]
//	GetRulesForVirtualDocument("data.a.b.c")     => nil
func (c *Compiler) GetRulesForVirtualDocument(ref Ref) []*Rule {
	node := c.RuleTree
	for _, x := range ref {
		if node = node.Child(x.Value); node == nil {
			return nil
		}
		if len(node.Values) > 0 {
			return node.Values
		}
	}
	return node.Values
}

// GetRulesWithPrefix returns a slice of rules that share the prefix ref.
//
// E.g., given the same module as GetRulesExact:
//
//	GetRulesWithPrefix("data.a.b.c.p")   => [rule1, rule2]
//	GetRulesWithPrefix("data.a.b.c.p.a") => nil
//	GetRulesWithPrefix("data.a.b.c")     => [rule1, rule2]
func (c *Compiler) GetRulesWithPrefix(ref Ref) []*Rule {
	node := c.RuleTree.Find(ref)
	if node == nil {
		return nil
	}
	var rules []*Rule
	node.DepthFirst(func(n *RuleTreeNode) bool {
		rules = append(rules, n.Values...)
		return false
	})
	return rules
}

// RuleOrder returns the paths of the rules that must be evaluated to produce
// the document at ref, dependencies first. If ref is a package path, every
// rule below it is an entry point.
func (c *Compiler) RuleOrder(ref Ref) ([]Ref, error) {
	var entries []RuleNodeID
	if id, ok := c.Graph.Lookup(ref); ok {
		entries = []RuleNodeID{id}
	} else if id, ok := c.index.Covering(ref); ok {
		entries = []RuleNodeID{id}
	} else {
		entries = c.index.Under(ref)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no rules found at %v", ref)
	}
	order, err := c.Graph.Order(entries...)
	if err != nil {
		return nil, err
	}
	paths := make([]Ref, len(order))
	for i, id := range order {
		paths[i] = c.Graph.Node(id).Path
	}
	return paths, nil
}

// PackageRules returns the names of the rules declared directly in the
// package at path.
func (c *Compiler) PackageRules(path Ref) []Var {
	node := c.RuleTree.Find(path)
	if node == nil {
		return nil
	}
	var names []Var
	for _, k := range node.Sorted {
		if s, ok := k.(String); ok {
			names = append(names, Var(s))
		}
	}
	return names
}

func (c *Compiler) compile() {
	for _, s := range c.stages {
		c.metrics.Timer(s.metricName).Start()
		s.f()
		c.metrics.Timer(s.metricName).Stop()
		if c.Failed() {
			c.Errors.Sort()
			return
		}
	}
}

func (c *Compiler) err(err *Error) {
	if c.maxErrs > 0 && len(c.Errors) >= c.maxErrs {
		if c.Errors[len(c.Errors)-1] != errLimitReached {
			c.Errors = append(c.Errors, errLimitReached)
		}
		return
	}
	c.Errors = append(c.Errors, err)
}

func (c *Compiler) displayVar(v Var) Var {
	if orig, ok := c.RewrittenVars[v]; ok {
		return orig
	}
	return v
}

func (c *Compiler) forEachRule(f func(mod *Module, rule *Rule)) {
	for _, name := range c.sorted {
		mod := c.Modules[name]
		for _, rule := range mod.Rules {
			for r := rule; r != nil; r = r.Else {
				f(mod, r)
			}
		}
	}
}

// checkDefaultValues ensures that default rule values are closed: scalars,
// composites of allowed values, or comprehensions.
func (c *Compiler) checkDefaultValues() {
	for _, name := range c.sorted {
		for _, rule := range c.Modules[name].Rules {
			if !rule.Default {
				continue
			}
			if rule.Head.Key != nil {
				if err := CheckDefaultValue(rule.Head.Key); err != nil {
					c.err(err)
				}
			}
			if err := CheckDefaultValue(rule.Head.Value); err != nil {
				c.err(err)
			}
		}
	}
}

// CheckDefaultValue returns an error if t may not be used as the value of a
// default rule.
func CheckDefaultValue(t *Term) *Error {
	if bad, kind := invalidDefault(t); bad != nil {
		return NewError(DefaultValueErr, bad.Location, "invalid `%s` in default value", kind)
	}
	return nil
}

func invalidDefault(t *Term) (*Term, string) {
	switch v := t.Value.(type) {
	case Null, Boolean, Number, String:
		return nil, ""
	case *ArrayComprehension, *SetComprehension, *ObjectComprehension:
		return nil, ""
	case Var:
		return t, "var"
	case Ref:
		return t, "ref"
	case *Array:
		for i := 0; i < v.Len(); i++ {
			if bad, kind := invalidDefault(v.Elem(i)); bad != nil {
				return bad, kind
			}
		}
	case Set:
		for _, x := range v.Slice() {
			if bad, kind := invalidDefault(x); bad != nil {
				return bad, kind
			}
		}
	case Object:
		for _, k := range v.Keys() {
			if bad, kind := invalidDefault(k); bad != nil {
				return bad, kind
			}
			if bad, kind := invalidDefault(v.Get(k)); bad != nil {
				return bad, kind
			}
		}
	case Call:
		return t, callKind(v)
	}
	return nil, ""
}

// callKind names the construct a call term was written as.
func callKind(call Call) string {
	switch call[0].Value.(Ref).String() {
	case UnaryMinus.Name:
		if _, ok := call[1].Value.(Number); ok {
			return ""
		}
		return "unaryexpr"
	case Or.Name, And.Name:
		return "binexpr"
	case Equal.Name, NotEqual.Name, LessThan.Name, LessThanEq.Name, GreaterThan.Name, GreaterThanEq.Name:
		return "boolexpr"
	case Plus.Name, Minus.Name, Multiply.Name, Divide.Name, Rem.Name:
		return "arithexpr"
	case Equality.Name, Assign.Name:
		return "assignexpr"
	case Member.Name, MemberWithKey.Name:
		return "membership"
	}
	return "call"
}

// resolveAllRefs rewrites declared local vars to unique names and resolves
// references to rules and imports into fully qualified refs.
//
// For instance, given the following module:
//
//	package a.b
//	import data.foo.bar
//	p contains x if { x := bar[_] }
//
// The body is rewritten to `__local0__ := data.foo.bar[_]`. Since declared
// vars are renamed first, a local declared with `:=` or `some` shadows a rule
// of the same name.
func (c *Compiler) resolveAllRefs() {

	exports := map[string]VarSet{}
	for _, name := range c.sorted {
		mod := c.Modules[name]
		key := mod.Package.Path.String()
		if exports[key] == nil {
			exports[key] = NewVarSet()
		}
		for _, rule := range mod.Rules {
			exports[key].Add(rule.Head.Name())
		}
	}

	for _, name := range c.sorted {
		mod := c.Modules[name]
		globals := moduleGlobals(mod.Package, mod.Imports, exports[mod.Package.Path.String()].Sorted())
		for _, rule := range mod.Rules {
			for r := rule; r != nil; r = r.Else {
				rw := newLocalRewriter(c.localvargen, c.RewrittenVars)
				rw.rule(r)
				for _, err := range rw.errs {
					c.err(err)
				}
				resolveRule(globals, r)
			}
		}
	}
}

// moduleGlobals returns the mapping of names visible in a module to the refs
// they stand for: the rules of the package and the imports.
func moduleGlobals(pkg *Package, imports []*Import, rules []Var) map[Var]*Term {
	globals := map[Var]*Term{}
	for _, v := range rules {
		globals[v] = NewTerm(pkg.Path.Append(StringTerm(string(v))))
	}
	for _, imp := range imports {
		var path Ref
		switch p := imp.Path.Value.(type) {
		case Ref:
			path = p
		case Var:
			path = Ref{imp.Path}
		}
		globals[imp.Name()] = NewTerm(path)
	}
	return globals
}

func resolveRule(globals map[Var]*Term, rule *Rule) {
	if rule.Head.Key != nil {
		rule.Head.Key = resolveTerm(globals, rule.Head.Key)
	}
	if rule.Head.Value != nil {
		rule.Head.Value = resolveTerm(globals, rule.Head.Value)
	}
	rule.Body = resolveBody(globals, rule.Body)
}

func resolveBody(globals map[Var]*Term, body Body) Body {
	for _, expr := range body {
		resolveExpr(globals, expr)
	}
	return body
}

func resolveExpr(globals map[Var]*Term, expr *Expr) {
	switch ts := expr.Terms.(type) {
	case *Term:
		expr.Terms = resolveTerm(globals, ts)
	case []*Term:
		for i := range ts {
			ts[i] = resolveTerm(globals, ts[i])
		}
	case *SomeDecl:
		for i := range ts.Symbols {
			ts.Symbols[i] = resolveTerm(globals, ts.Symbols[i])
		}
	case *Every:
		ts.Domain = resolveTerm(globals, ts.Domain)
		ts.Body = resolveBody(globals, ts.Body)
	}
	for _, w := range expr.With {
		w.Value = resolveTerm(globals, w.Value)
	}
}

func resolveTerm(globals map[Var]*Term, term *Term) *Term {
	switch v := term.Value.(type) {
	case Var:
		if g, ok := globals[v]; ok {
			return &Term{Value: g.Value, Location: term.Location}
		}
		return term
	case Ref:
		return &Term{Value: resolveRef(globals, v), Location: term.Location}
	case Call:
		cpy := make(Call, len(v))
		for i := range v {
			cpy[i] = resolveTerm(globals, v[i])
		}
		return &Term{Value: cpy, Location: term.Location}
	case *Array:
		elems := make([]*Term, v.Len())
		for i := range elems {
			elems[i] = resolveTerm(globals, v.Elem(i))
		}
		return &Term{Value: NewArray(elems...), Location: term.Location}
	case Object:
		items := make([][2]*Term, 0, v.Len())
		v.Foreach(func(k, x *Term) {
			items = append(items, Item(resolveTerm(globals, k), resolveTerm(globals, x)))
		})
		return &Term{Value: NewObject(items...), Location: term.Location}
	case Set:
		elems := make([]*Term, 0, v.Len())
		v.Foreach(func(x *Term) {
			elems = append(elems, resolveTerm(globals, x))
		})
		return &Term{Value: NewSet(elems...), Location: term.Location}
	case *ArrayComprehension:
		return &Term{Value: &ArrayComprehension{
			Term: resolveTerm(globals, v.Term),
			Body: resolveBody(globals, v.Body),
		}, Location: term.Location}
	case *SetComprehension:
		return &Term{Value: &SetComprehension{
			Term: resolveTerm(globals, v.Term),
			Body: resolveBody(globals, v.Body),
		}, Location: term.Location}
	case *ObjectComprehension:
		return &Term{Value: &ObjectComprehension{
			Key:   resolveTerm(globals, v.Key),
			Value: resolveTerm(globals, v.Value),
			Body:  resolveBody(globals, v.Body),
		}, Location: term.Location}
	}
	return term
}

func resolveRef(globals map[Var]*Term, ref Ref) Ref {
	r := Ref{}
	for i, x := range ref {
		switch v := x.Value.(type) {
		case Var:
			g, ok := globals[v]
			if !ok {
				r = append(r, x)
				continue
			}
			if i == 0 {
				if gr, ok := g.Value.(Ref); ok {
					for _, y := range gr {
						r = append(r, y.Copy().SetLocation(x.Location))
					}
					continue
				}
			}
			r = append(r, &Term{Value: g.Value, Location: x.Location})
		default:
			r = append(r, resolveTerm(globals, x))
		}
	}
	return r
}

func (c *Compiler) setRuleTree() {
	c.foldObjectEntries()
	c.RuleTree = NewRuleTree(c.Modules)
}

// foldObjectEntries turns constant-key rules such as `p["hello"] := 3` into
// entries of the partial object p when p is also defined by keyed rules,
// e.g. `p[k] := v` or `default p[true] := 1`.
func (c *Compiler) foldObjectEntries() {
	objects := map[string]struct{}{}
	for _, name := range c.sorted {
		for _, rule := range c.Modules[name].Rules {
			if rule.DocKind() == PartialObjectDoc {
				objects[rule.Path().String()] = struct{}{}
			}
		}
	}
	if len(objects) == 0 {
		return
	}
	for _, name := range c.sorted {
		for _, rule := range c.Modules[name].Rules {
			n := len(rule.Head.Reference)
			if rule.DocKind() != CompleteDoc || n < 2 {
				continue
			}
			path := rule.Path()
			if _, ok := objects[path[:len(path)-1].String()]; !ok {
				continue
			}
			for r := rule; r != nil; r = r.Else {
				r.Head.Key = r.Head.Reference[n-1]
				r.Head.Reference = r.Head.Reference[:n-1]
			}
		}
	}
}

// checkRuleConflicts ensures that rules sharing a path agree on their kind,
// that defaults are not repeated, that functions have a consistent
// arity, and that no rule path is a prefix of another.
func (c *Compiler) checkRuleConflicts() {
	c.RuleTree.DepthFirst(func(node *RuleTreeNode) bool {
		if len(node.Values) == 0 {
			return false
		}

		first := node.Values[0]
		path := first.Path()

		kinds := map[DocKind]struct{}{}
		arities := map[int]struct{}{}
		var defaults []*Rule
		complete, assigned := 0, 0

		for _, rule := range node.Values {
			kinds[rule.DocKind()] = struct{}{}
			if rule.IsFunction() {
				arities[len(rule.Head.Args)] = struct{}{}
			}
			if rule.Default {
				defaults = append(defaults, rule)
			} else if rule.DocKind() == CompleteDoc {
				complete++
				if rule.Head.Assign {
					assigned++
				}
			}
		}

		switch {
		case len(kinds) > 1:
			c.err(NewError(TypeErr, first.Location, "conflicting rules %v found", path))
		case len(arities) > 1:
			c.err(NewError(TypeErr, first.Location, "function %v has inconsistent arity", path))
		}

		c.checkDefaultRules(path, defaults)

		// A rule defined with := may not have other definitions.
		if assigned > 0 && complete > 1 {
			c.err(NewError(TypeErr, first.Location, "rule %v redeclared", path))
		}

		var extensions []string
		for _, k := range node.Sorted {
			node.Children[k].DepthFirst(func(n *RuleTreeNode) bool {
				if len(n.Values) > 0 {
					extensions = append(extensions, n.Values[0].Path().String())
					return true
				}
				return false
			})
		}
		if len(extensions) > 0 {
			c.err(NewError(TypeErr, first.Location, "rule %v conflicts with [%v]", path, strings.Join(extensions, " ")))
		}

		return false
	})
}

// checkDefaultRules allows one default per key for partial objects and a
// single default for every other kind of rule.
func (c *Compiler) checkDefaultRules(path Ref, defaults []*Rule) {
	for i := 1; i < len(defaults); i++ {
		key := defaults[i].Head.Key
		if key == nil || defaults[0].Head.Key == nil {
			c.err(NewError(TypeErr, defaults[0].Location, "multiple default rules %v found", path))
			return
		}
		for _, prev := range defaults[:i] {
			if prev.Head.Key.Equal(key) {
				c.err(NewError(TypeErr, defaults[i].Location, "multiple default rules %v found for key %v", path, key))
				break
			}
		}
	}
}

// checkUndefinedFuncs ensures that every call refers to a built-in function
// or a user function and supplies the right number of arguments.
func (c *Compiler) checkUndefinedFuncs() {
	for _, name := range c.sorted {
		for _, rule := range c.Modules[name].Rules {
			for _, err := range checkCalls(c.RuleTree, rule) {
				c.err(err)
			}
		}
	}
}

func checkCalls(tree *RuleTreeNode, x interface{}) Errors {
	var errs Errors
	vis := NewGenericVisitor(func(x interface{}) bool {
		switch x := x.(type) {
		case *Expr:
			if ts, ok := x.Terms.([]*Term); ok {
				if err := checkCall(tree, x.Location, ts[0], len(ts)-1); err != nil {
					errs = append(errs, err)
				}
			}
		case Call:
			loc := x[0].Location
			if err := checkCall(tree, loc, x[0], len(x)-1); err != nil {
				errs = append(errs, err)
			}
		}
		return false
	})
	vis.Walk(x)
	return errs
}

func checkCall(tree *RuleTreeNode, loc *Location, operator *Term, n int) *Error {
	ref, ok := operator.Value.(Ref)
	if !ok {
		return NewError(TypeErr, loc, "illegal call %v", operator)
	}

	if ref.HasPrefix(DefaultRootRef) {
		if node := tree.Find(ref); node != nil && len(node.Values) > 0 {
			rule := node.Values[0]
			if !rule.IsFunction() {
				return NewError(TypeErr, loc, "%v is not a function", ref)
			}
			if len(rule.Head.Args) != n {
				return NewError(TypeErr, loc, "function %v has arity %d, got %d arguments", ref, len(rule.Head.Args), n)
			}
			return nil
		}
	} else if bi, ok := BuiltinMap[ref.String()]; ok {
		if !bi.IsVariadic() && bi.Arity != n {
			return NewError(TypeErr, loc, "function %v has arity %d, got %d arguments", ref, bi.Arity, n)
		}
		return nil
	}

	err := NewError(TypeErr, loc, "undefined function %v", ref)
	if suggestions := suggestFunctions(tree, ref.String()); len(suggestions) > 0 {
		err.Details = &SuggestionDetails{Suggestions: suggestions}
	}
	return err
}

const maxSuggestionDistance = 2

// suggestFunctions returns known function names within a small edit distance
// of name, closest first.
func suggestFunctions(tree *RuleTreeNode, name string) []string {
	type candidate struct {
		name string
		dist int
	}

	var candidates []candidate
	add := func(s string) {
		if d := levenshtein.ComputeDistance(name, s); d <= maxSuggestionDistance {
			candidates = append(candidates, candidate{s, d})
		}
	}

	for _, bi := range Builtins {
		if !strings.HasPrefix(bi.Name, "internal.") {
			add(bi.Name)
		}
	}

	tree.DepthFirst(func(n *RuleTreeNode) bool {
		if len(n.Values) > 0 {
			if n.Values[0].IsFunction() {
				add(n.Values[0].Path().String())
				ref := n.Values[0].Head.Reference
				switch last := ref[len(ref)-1].Value.(type) {
				case Var:
					add(string(last))
				case String:
					add(string(last))
				}
			}
			return true
		}
		return false
	})

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].dist != candidates[j].dist {
			return candidates[i].dist < candidates[j].dist
		}
		return candidates[i].name < candidates[j].name
	})

	result := make([]string, 0, len(candidates))
	seen := map[string]struct{}{}
	for _, c := range candidates {
		if _, ok := seen[c.name]; !ok {
			seen[c.name] = struct{}{}
			result = append(result, c.name)
		}
	}
	return result
}

// setGraph builds the rule dependency graph. Every ref into data that reaches
// a rule path produces an edge. A ref whose constant prefix stops above the
// rule paths depends on every rule below the prefix.
func (c *Compiler) setGraph() {
	c.Graph = NewGraph()
	c.index = newRuleIndex()

	c.RuleTree.DepthFirst(func(node *RuleTreeNode) bool {
		if len(node.Values) > 0 {
			path := node.Values[0].Path()
			id := c.Graph.AddNode(path, node.Values...)
			c.index.Insert(path, id)
		}
		return false
	})

	for _, node := range c.Graph.Nodes() {
		for _, rule := range node.Rules {
			WalkRefs(rule, func(ref Ref) bool {
				for _, dep := range c.dependencies(ref) {
					c.Graph.AddEdge(node.ID, dep)
				}
				return false
			})
		}
	}
}

func (c *Compiler) dependencies(ref Ref) []RuleNodeID {
	if !ref.HasPrefix(DefaultRootRef) {
		return nil
	}
	n := 1
	for n < len(ref) {
		if _, ok := ref[n].Value.(String); !ok {
			break
		}
		n++
	}
	prefix := ref[:n]
	if id, ok := c.index.Covering(prefix); ok {
		return []RuleNodeID{id}
	}
	return c.index.Under(prefix)
}

// checkRecursion ensures that there are no recursive rule definitions, i.e.,
// there are no cycles in the rule graph.
func (c *Compiler) checkRecursion() {
	for _, cycle := range c.Graph.Cycles() {
		loc := cycle.Path[0].Rules[0].Location
		c.err(NewError(RecursionErr, loc, "%v", cycle.Error()))
	}
}

// scheduleBodies orders the statements of every body so that vars are bound
// before they are read.
func (c *Compiler) scheduleBodies() {
	s := newScheduler(c.displayVar)
	c.forEachRule(func(_ *Module, rule *Rule) {
		c.unsafeHeads = append(c.unsafeHeads, scheduleRule(s, rule)...)
	})
	for _, err := range s.errs {
		c.err(err)
	}
	c.unsafe = s.unsafe
}

// scheduleRule orders the body of rule and the closures in its head. Head vars
// that the body never binds are returned as errors.
func scheduleRule(s *scheduler, rule *Rule) Errors {
	globals := rule.Head.Args.Vars()

	body, _, bound := s.body(globals, rule.Body)
	rule.Body = body

	var errs Errors
	for _, t := range []*Term{rule.Head.Key, rule.Head.Value} {
		if t == nil {
			continue
		}
		WalkClosures(t, func(x interface{}) bool {
			var inner VarSet
			switch x := x.(type) {
			case *ArrayComprehension:
				x.Body, inner = s.closureBody(bound, x.Body)
				s.checkClosureHead(bound, inner, x.Term)
			case *SetComprehension:
				x.Body, inner = s.closureBody(bound, x.Body)
				s.checkClosureHead(bound, inner, x.Term)
			case *ObjectComprehension:
				x.Body, inner = s.closureBody(bound, x.Body)
				s.checkClosureHead(bound, inner, x.Key, x.Value)
			}
			return true
		})
		vis := NewVarVisitor().WithParams(VarVisitorParams{SkipClosures: true, SkipRefCallHead: true})
		vis.Walk(t)
		for _, v := range vis.Vars().Sorted() {
			if v.IsWildcard() || RootDocumentNames.Contains(v) || bound.Contains(v) {
				continue
			}
			errs = append(errs, NewError(UnsafeVarErr, t.Location, "var %v is unsafe", s.display(v)))
		}
	}
	return errs
}

// checkSafety reports vars that no statement binds before they are read.
func (c *Compiler) checkSafety() {
	for _, err := range c.unsafe.errors(c.displayVar) {
		c.err(err)
	}
	for _, err := range c.unsafeHeads {
		c.err(err)
	}
}

// localVarGenerator produces the unique names of declared local vars.
type localVarGenerator struct {
	prefix string
	next   int
}

func newLocalVarGenerator(prefix string) *localVarGenerator {
	return &localVarGenerator{prefix: prefix}
}

func (l *localVarGenerator) Generate() Var {
	v := Var(fmt.Sprintf("%s%d__", l.prefix, l.next))
	l.next++
	return v
}

type declScope struct {
	declared map[Var]Var
	seen     VarSet
}

// localRewriter renames vars declared with `:=`, `some`, `every` and function
// arguments so that every declaration has a unique name.
type localRewriter struct {
	gen       *localVarGenerator
	rewritten map[Var]Var
	scopes    []*declScope
	errs      Errors
}

func newLocalRewriter(gen *localVarGenerator, rewritten map[Var]Var) *localRewriter {
	return &localRewriter{gen: gen, rewritten: rewritten}
}

func (rw *localRewriter) push() {
	rw.scopes = append(rw.scopes, &declScope{declared: map[Var]Var{}, seen: NewVarSet()})
}

func (rw *localRewriter) pop() {
	rw.scopes = rw.scopes[:len(rw.scopes)-1]
}

func (rw *localRewriter) lookup(v Var) (Var, bool) {
	for i := len(rw.scopes) - 1; i >= 0; i-- {
		if g, ok := rw.scopes[i].declared[v]; ok {
			return g, true
		}
	}
	return "", false
}

func (rw *localRewriter) see(v Var) {
	for _, s := range rw.scopes {
		s.seen.Add(v)
	}
}

func (rw *localRewriter) declare(t *Term) {
	v, ok := t.Value.(Var)
	if !ok || v.IsWildcard() {
		return
	}
	scope := rw.scopes[len(rw.scopes)-1]
	if _, ok := scope.declared[v]; ok {
		rw.errs = append(rw.errs, NewError(CompileErr, t.Location, "var %v assigned above", v))
		return
	}
	if scope.seen.Contains(v) {
		rw.errs = append(rw.errs, NewError(CompileErr, t.Location, "var %v referenced above", v))
		return
	}
	g := rw.gen.Generate()
	scope.declared[v] = g
	rw.rewritten[g] = v
}

func (rw *localRewriter) declarePattern(t *Term) {
	switch v := t.Value.(type) {
	case Var:
		rw.declare(t)
	case *Array:
		v.Foreach(rw.declarePattern)
	case Object:
		v.Foreach(func(_, x *Term) {
			rw.declarePattern(x)
		})
	}
}

func (rw *localRewriter) rule(rule *Rule) {
	rw.push()
	defer rw.pop()

	for _, arg := range rule.Head.Args {
		WalkVars(arg, func(v Var) bool {
			if _, ok := rw.lookup(v); !ok {
				rw.declare(&Term{Value: v, Location: arg.Location})
			}
			return false
		})
	}
	for i := range rule.Head.Args {
		rule.Head.Args[i] = rw.term(rule.Head.Args[i])
	}

	rule.Body = rw.body(rule.Body)

	if rule.Head.Key != nil {
		rule.Head.Key = rw.term(rule.Head.Key)
	}
	if rule.Head.Value != nil {
		rule.Head.Value = rw.term(rule.Head.Value)
	}
}

func (rw *localRewriter) body(body Body) Body {
	for _, expr := range body {
		rw.expr(expr)
	}
	return body
}

func (rw *localRewriter) expr(expr *Expr) {
	switch ts := expr.Terms.(type) {
	case *SomeDecl:
		if len(ts.Symbols) == 1 {
			if call, ok := ts.Symbols[0].Value.(Call); ok {
				cpy := make(Call, len(call))
				cpy[0] = call[0]
				last := len(call) - 1
				cpy[last] = rw.term(call[last])
				for i := 1; i < last; i++ {
					rw.declarePattern(call[i])
					cpy[i] = rw.term(call[i])
				}
				ts.Symbols[0] = &Term{Value: cpy, Location: ts.Symbols[0].Location}
				break
			}
		}
		for i, sym := range ts.Symbols {
			rw.declare(sym)
			ts.Symbols[i] = rw.term(sym)
		}
	case *Every:
		ts.Domain = rw.term(ts.Domain)
		rw.push()
		if ts.Key != nil {
			rw.declare(ts.Key)
			ts.Key = rw.term(ts.Key)
		}
		rw.declare(ts.Value)
		ts.Value = rw.term(ts.Value)
		ts.Body = rw.body(ts.Body)
		rw.pop()
	case *Term:
		expr.Terms = rw.term(ts)
	case []*Term:
		if expr.IsAssignment() && len(ts) == 3 {
			ts[2] = rw.term(ts[2])
			switch ts[1].Value.(type) {
			case Var, *Array, Object:
				rw.declarePattern(ts[1])
			default:
				rw.errs = append(rw.errs, NewError(CompileErr, ts[1].Location, "cannot assign to %v", TypeName(ts[1].Value)))
			}
			ts[1] = rw.term(ts[1])
		} else {
			for i := 1; i < len(ts); i++ {
				ts[i] = rw.term(ts[i])
			}
		}
	}
	for _, w := range expr.With {
		w.Value = rw.term(w.Value)
	}
}

func (rw *localRewriter) term(t *Term) *Term {
	switch v := t.Value.(type) {
	case Var:
		if v.IsWildcard() || RootDocumentNames.Contains(v) {
			return t
		}
		if g, ok := rw.lookup(v); ok {
			return &Term{Value: g, Location: t.Location}
		}
		rw.see(v)
		return t
	case Ref:
		cpy := make(Ref, len(v))
		for i := range v {
			cpy[i] = rw.term(v[i])
		}
		return &Term{Value: cpy, Location: t.Location}
	case Call:
		cpy := make(Call, len(v))
		cpy[0] = v[0]
		for i := 1; i < len(v); i++ {
			cpy[i] = rw.term(v[i])
		}
		return &Term{Value: cpy, Location: t.Location}
	case *Array:
		elems := make([]*Term, v.Len())
		for i := range elems {
			elems[i] = rw.term(v.Elem(i))
		}
		return &Term{Value: NewArray(elems...), Location: t.Location}
	case Object:
		items := make([][2]*Term, 0, v.Len())
		v.Foreach(func(k, x *Term) {
			items = append(items, Item(rw.term(k), rw.term(x)))
		})
		return &Term{Value: NewObject(items...), Location: t.Location}
	case Set:
		elems := make([]*Term, 0, v.Len())
		v.Foreach(func(x *Term) {
			elems = append(elems, rw.term(x))
		})
		return &Term{Value: NewSet(elems...), Location: t.Location}
	case *ArrayComprehension:
		rw.push()
		defer rw.pop()
		body := rw.body(v.Body)
		return &Term{Value: &ArrayComprehension{Term: rw.term(v.Term), Body: body}, Location: t.Location}
	case *SetComprehension:
		rw.push()
		defer rw.pop()
		body := rw.body(v.Body)
		return &Term{Value: &SetComprehension{Term: rw.term(v.Term), Body: body}, Location: t.Location}
	case *ObjectComprehension:
		rw.push()
		defer rw.pop()
		body := rw.body(v.Body)
		return &Term{Value: &ObjectComprehension{Key: rw.term(v.Key), Value: rw.term(v.Value), Body: body}, Location: t.Location}
	}
	return t
}

// QueryContext contains contextual information for running an ad-hoc query.
//
// Ad-hoc queries can be run in the context of a package and imports may be
// included to provide concise access to data.
type QueryContext struct {
	Package *Package
	Imports []*Import
}

// NewQueryContext returns a new QueryContext object.
func NewQueryContext() *QueryContext {
	return &QueryContext{}
}

// WithPackage sets the pkg on qc.
func (qc *QueryContext) WithPackage(pkg *Package) *QueryContext {
	qc.Package = pkg
	return qc
}

// WithImports sets the imports on qc.
func (qc *QueryContext) WithImports(imports []*Import) *QueryContext {
	qc.Imports = imports
	return qc
}

// QueryCompiler defines the interface for compiling ad-hoc queries.
type QueryCompiler interface {

	// Compile should be called to compile ad-hoc queries. The return value is
	// the compiled version of the query.
	Compile(q Body) (Body, error)

	// WithContext sets the QueryContext on the QueryCompiler. Subsequent calls
	// to Compile will take the QueryContext into account.
	WithContext(qctx *QueryContext) QueryCompiler

	// RewrittenVars maps generated vars in the compiled query to vars from
	// the parsed query.
	RewrittenVars() map[Var]Var
}

type queryCompiler struct {
	compiler  *Compiler
	qctx      *QueryContext
	gen       *localVarGenerator
	rewritten map[Var]Var
}

// QueryCompiler returns a new QueryCompiler object. Query compilers do not
// modify the compiler and may be used concurrently.
func (c *Compiler) QueryCompiler() QueryCompiler {
	return &queryCompiler{
		compiler:  c,
		gen:       newLocalVarGenerator(LocalVarPrefix + "q"),
		rewritten: map[Var]Var{},
	}
}

func (qc *queryCompiler) WithContext(qctx *QueryContext) QueryCompiler {
	qc.qctx = qctx
	return qc
}

func (qc *queryCompiler) RewrittenVars() map[Var]Var {
	return qc.rewritten
}

func (qc *queryCompiler) display(v Var) Var {
	if orig, ok := qc.rewritten[v]; ok {
		return orig
	}
	return v
}

func (qc *queryCompiler) Compile(query Body) (Body, error) {

	if len(query) == 0 {
		return nil, Errors{NewError(CompileErr, nil, "empty query cannot be compiled")}
	}

	query = query.Copy()

	rw := newLocalRewriter(qc.gen, qc.rewritten)
	rw.push()
	query = rw.body(query)
	rw.pop()
	if len(rw.errs) > 0 {
		return nil, rw.errs
	}

	if qc.qctx != nil {
		var rules []Var
		var pkg *Package
		if qc.qctx.Package != nil {
			pkg = qc.qctx.Package
			rules = qc.compiler.PackageRules(pkg.Path)
		} else {
			pkg = &Package{Path: DefaultRootRef}
		}
		query = resolveBody(moduleGlobals(pkg, qc.qctx.Imports, rules), query)
	}

	if errs := checkCalls(qc.compiler.RuleTree, query); len(errs) > 0 {
		return nil, errs
	}

	s := newScheduler(qc.display)
	body, _, _ := s.body(NewVarSet(), query)
	if len(s.errs) > 0 {
		return nil, s.errs
	}
	if errs := s.unsafe.errors(qc.display); len(errs) > 0 {
		return nil, errs
	}

	return body, nil
}
