// Copyright 2017 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package topdown

import (
	"github.com/regolith-dev/regolith/ast"
	"github.com/regolith-dev/regolith/metrics"
)

// walkData evaluates ref against the data document. Base data and virtual
// documents produced by rules are walked together: node is the rule tree
// node at path and base is the base document at path (either may be nil).
func (e *eval) walkData(node *ast.RuleTreeNode, base *ast.Term, path ast.Ref, ref ast.Ref, pos int, iter func(*ast.Term) error) error {

	if value := e.overrideAt(path); value != nil {
		return e.walk(value, ref, pos, iter)
	}

	if node == nil {
		value := e.patch(base, path)
		if value == nil {
			return nil
		}
		return e.walk(value, ref, pos, iter)
	}

	if len(node.Values) > 0 {
		if node.Values[0].IsFunction() {
			return nil
		}
		value, err := e.ruleValue(ref[0].Location, path, node.Values)
		if err != nil || value == nil {
			return err
		}
		return e.walk(e.patch(value, path), ref, pos, iter)
	}

	if pos == len(ref) {
		doc, err := e.buildDoc(node, base, path)
		if err != nil {
			return err
		}
		return iter(doc)
	}

	return e.resolve(ref[pos], func(key *ast.Term) error {

		if key.IsGround() {
			return e.walkData(childNode(node, key), lookup(base, key), path.Append(key), ref, pos+1, iter)
		}

		for _, k := range e.dataKeys(node, base, path) {
			err := e.unifyTerms(key, k, func() error {
				return e.walkData(childNode(node, k), lookup(base, k), path.Append(k), ref, pos+1, iter)
			})
			if err != nil {
				return err
			}
		}

		return nil
	})
}

func childNode(node *ast.RuleTreeNode, key *ast.Term) *ast.RuleTreeNode {
	if node == nil {
		return nil
	}
	if _, ok := key.Value.(ast.String); !ok {
		return nil
	}
	return node.Child(key.Value)
}

// buildDoc returns the document at a rule tree prefix: the base document
// merged with the values of the rules underneath. Virtual documents replace
// base documents at the same path.
func (e *eval) buildDoc(node *ast.RuleTreeNode, base *ast.Term, path ast.Ref) (*ast.Term, error) {

	obj := ast.NewObject()

	for _, k := range e.dataKeys(node, base, path) {
		childPath := path.Append(k)
		err := e.walkData(childNode(node, k), lookup(base, k), childPath, childPath, len(childPath), func(v *ast.Term) error {
			obj.Insert(k, v)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return ast.NewTerm(obj), nil
}

// dataKeys returns the sorted keys that may be defined directly under path.
func (e *eval) dataKeys(node *ast.RuleTreeNode, base *ast.Term, path ast.Ref) []*ast.Term {

	keys := ast.NewSet()

	if node != nil {
		for _, k := range node.Sorted {
			keys.Add(ast.NewTerm(k))
		}
	}

	if base != nil {
		if obj, ok := base.Value.(ast.Object); ok {
			for _, k := range obj.Keys() {
				keys.Add(k)
			}
		}
	}

	for _, ov := range e.overrides {
		if len(ov.path) > len(path) && ov.path.HasPrefix(path) {
			keys.Add(ov.path[len(path)])
		}
	}

	return keys.Slice()
}

func (e *eval) overrideAt(path ast.Ref) *ast.Term {
	for _, ov := range e.overrides {
		if ov.path.Equal(path) {
			return ov.value
		}
	}
	return nil
}

// patch applies the overrides underneath path to value.
func (e *eval) patch(value *ast.Term, path ast.Ref) *ast.Term {
	for _, ov := range e.overrides {
		if len(ov.path) > len(path) && ov.path.HasPrefix(path) {
			value = setPath(value, ov.path[len(path):], ov.value)
		}
	}
	return value
}

// ruleValue returns the value of the rule set at path or nil if the rule set
// is undefined. Values are computed once per cache and written only after
// the rule set has been fully evaluated.
func (e *eval) ruleValue(loc *ast.Location, path ast.Ref, rules []*ast.Rule) (*ast.Term, error) {

	key := path.String()
	entry := e.cache.rule(key)

	switch entry.state {
	case ruleEvaluating:
		return nil, recursionErr(loc, path)
	case ruleDefined, ruleDefaulted, ruleUndefined:
		e.instr.counterIncr(evalOpRuleCacheHit)
		return entry.value, nil
	case ruleFailed:
		return nil, entry.err
	}

	if e.cancelled() {
		return nil, cancelledErr(loc)
	}

	entry.state = ruleEvaluating

	if e.metrics != nil {
		e.metrics.Counter(metrics.RuleEvals).Incr()
	}

	rules, defs := splitDefault(rules)
	kind := ast.CompleteDoc
	if len(rules) > 0 {
		kind = rules[0].DocKind()
	} else if len(defs) > 0 {
		kind = defs[0].DocKind()
	}

	var value *ast.Term
	var defaulted bool
	var err error

	switch kind {
	case ast.PartialSetDoc:
		value, err = e.evalPartialSet(rules)
	case ast.PartialObjectDoc:
		value, err = e.evalPartialObject(rules, defs)
	default:
		value, defaulted, err = e.evalComplete(rules, firstDefault(defs))
	}

	if err != nil {
		if IsCancel(err) {
			e.cache.reset(key)
		} else {
			entry.fail(err)
		}
		return nil, err
	}

	entry.finish(value, defaulted)

	if e.logger != nil {
		e.logger.Debug("Evaluated %v: %v (%v).", key, value, entry.state)
	}

	return value, nil
}

// splitDefault separates the default rules from the rest. Only partial
// objects may have more than one default, each for a different key.
func splitDefault(rules []*ast.Rule) ([]*ast.Rule, []*ast.Rule) {
	var defs []*ast.Rule
	result := make([]*ast.Rule, 0, len(rules))
	for _, rule := range rules {
		if rule.Default {
			defs = append(defs, rule)
			continue
		}
		result = append(result, rule)
	}
	return result, defs
}

func firstDefault(defs []*ast.Rule) *ast.Rule {
	if len(defs) == 0 {
		return nil
	}
	return defs[0]
}

func headValue(rule *ast.Rule) *ast.Term {
	if rule.Head.Value == nil {
		return ast.BooleanTerm(true).SetLocation(rule.Head.Location)
	}
	return rule.Head.Value
}

// evalRuleChain evaluates rule and its else chain. The first rule in the
// chain whose body has a solution wins. onSolution is called once per
// solution with the evaluator holding the body bindings.
func (e *eval) evalRuleChain(rule *ast.Rule, args []*ast.Term, onSolution func(*ast.Rule, *eval) error) error {

	for r := rule; r != nil; r = r.Else {

		child := e.child(r.Body)
		child.traceEnter(r, r.Location)

		found := false
		err := child.unifyArgs(r.Head.Args, args, 0, func() error {
			return child.evalBody(r.Body, func() error {
				found = true
				child.traceExit(r, r.Location)
				if err := onSolution(r, child); err != nil {
					return err
				}
				child.traceRedo(r, r.Location)
				return nil
			})
		})

		if err != nil {
			return err
		}

		if found {
			return nil
		}
	}

	return nil
}

func (e *eval) unifyArgs(params ast.Args, args []*ast.Term, i int, iter func() error) error {
	if i >= len(params) || i >= len(args) {
		return iter()
	}
	return e.unify(params[i], args[i], func() error {
		return e.unifyArgs(params, args, i+1, iter)
	})
}

func (e *eval) evalComplete(rules []*ast.Rule, def *ast.Rule) (*ast.Term, bool, error) {

	var result *ast.Term

	for _, rule := range rules {
		err := e.evalRuleChain(rule, nil, func(r *ast.Rule, child *eval) error {
			return child.resolve(headValue(r), func(v *ast.Term) error {
				v = child.bindings.plug(v)
				if result == nil {
					result = v
					return nil
				}
				if !result.Equal(v) {
					return completeDocConflictErr(r.Location)
				}
				return nil
			})
		})
		if err != nil {
			return nil, false, err
		}
	}

	if result != nil || def == nil {
		return result, false, nil
	}

	value, err := e.evalDefault(def, nil, headValue(def))
	return value, value != nil, err
}

func (e *eval) evalPartialSet(rules []*ast.Rule) (*ast.Term, error) {

	result := ast.NewSet()

	for _, rule := range rules {
		err := e.evalRuleChain(rule, nil, func(r *ast.Rule, child *eval) error {
			return child.resolve(r.Head.Key, func(k *ast.Term) error {
				result.Add(child.bindings.plug(k))
				return nil
			})
		})
		if err != nil {
			return nil, err
		}
	}

	return ast.NewTerm(result), nil
}

func (e *eval) evalPartialObject(rules []*ast.Rule, defs []*ast.Rule) (*ast.Term, error) {

	result := ast.NewObject()

	for _, rule := range rules {
		err := e.evalRuleChain(rule, nil, func(r *ast.Rule, child *eval) error {
			return child.resolve(r.Head.Key, func(k *ast.Term) error {
				return child.resolve(r.Head.Value, func(v *ast.Term) error {
					k, v = child.bindings.plug(k), child.bindings.plug(v)
					if existing := result.Get(k); existing != nil {
						if !existing.Equal(v) {
							return objectDocKeyConflictErr(r.Location)
						}
						return nil
					}
					result.Insert(k, v)
					return nil
				})
			})
		})
		if err != nil {
			return nil, err
		}
	}

	// Defaults fill in the keys that no body produced.
	for _, def := range defs {
		k, err := e.evalDefault(def, nil, def.Head.Key)
		if err != nil {
			return nil, err
		}
		v, err := e.evalDefault(def, nil, def.Head.Value)
		if err != nil {
			return nil, err
		}
		if k != nil && v != nil && result.Get(k) == nil {
			result.Insert(k, v)
		}
	}

	return ast.NewTerm(result), nil
}

// evalDefault evaluates a term of a default rule. Default values are
// constant apart from unary minus, so the first value is returned.
func (e *eval) evalDefault(def *ast.Rule, args []*ast.Term, term *ast.Term) (*ast.Term, error) {

	if term == nil {
		return nil, nil
	}

	child := e.child(def.Body)
	var result *ast.Term

	err := child.unifyArgs(def.Head.Args, args, 0, func() error {
		return child.resolve(term, func(v *ast.Term) error {
			result = child.bindings.plug(v)
			return errEarlyExit
		})
	})

	if err != nil && err != errEarlyExit {
		return nil, err
	}

	return result, nil
}

// evalFuncCall evaluates a call to the user function at ref.
func (e *eval) evalFuncCall(loc *ast.Location, ref ast.Ref, operands []*ast.Term, iter func(*ast.Term) error) error {

	node := e.compiler.RuleTree.Find(ref)
	if node == nil || len(node.Values) == 0 || !node.Values[0].IsFunction() {
		return unsupportedBuiltinErr(loc, ref.String())
	}

	rules := node.Values
	if arity := len(rules[0].Head.Args); arity != len(operands) {
		return arityErr(loc, ref.String(), arity, len(operands))
	}

	return e.resolveAll(operands, func(args []*ast.Term) error {
		for i := range args {
			args[i] = e.bindings.plug(args[i])
		}
		value, err := e.funcValue(loc, ref, rules, args)
		if err != nil || value == nil {
			return err
		}
		return iter(value)
	})
}

// funcValue returns the output of the function for args or nil if no body
// matches and there is no default. Outputs are memoized per argument list.
func (e *eval) funcValue(loc *ast.Location, path ast.Ref, rules []*ast.Rule, args []*ast.Term) (*ast.Term, error) {

	memo := e.cache.function(path.String())
	key := ast.ArrayTerm(args...)

	if entry := memo.get(key); entry != nil {
		if entry.state == ruleEvaluating {
			return nil, recursionErr(loc, path)
		}
		e.instr.counterIncr(evalOpFuncCacheHit)
		return entry.value, nil
	}

	if e.cancelled() {
		return nil, cancelledErr(loc)
	}

	entry := memo.put(key)

	rules, defs := splitDefault(rules)
	def := firstDefault(defs)
	var result *ast.Term

	for _, rule := range rules {
		err := e.evalRuleChain(rule, args, func(r *ast.Rule, child *eval) error {
			return child.resolve(headValue(r), func(v *ast.Term) error {
				v = child.bindings.plug(v)
				if result == nil {
					result = v
					return nil
				}
				if !result.Equal(v) {
					return functionConflictErr(r.Location)
				}
				return nil
			})
		})
		if err != nil {
			memo.remove(entry)
			return nil, err
		}
	}

	if result == nil && def != nil {
		v, err := e.evalDefault(def, args, headValue(def))
		if err != nil {
			memo.remove(entry)
			return nil, err
		}
		result = v
	}

	entry.value = result
	if result == nil {
		entry.state = ruleUndefined
	} else {
		entry.state = ruleDefined
	}

	return result, nil
}
