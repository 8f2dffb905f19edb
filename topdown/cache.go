// Copyright 2017 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package topdown

import (
	"github.com/regolith-dev/regolith/ast"
)

type ruleState int

const (
	ruleUnevaluated ruleState = iota
	ruleEvaluating
	ruleDefined
	ruleDefaulted
	ruleUndefined
	ruleFailed
)

func (s ruleState) String() string {
	switch s {
	case ruleUnevaluated:
		return "unevaluated"
	case ruleEvaluating:
		return "evaluating"
	case ruleDefined:
		return "defined"
	case ruleDefaulted:
		return "defaulted"
	case ruleUndefined:
		return "undefined"
	case ruleFailed:
		return "failed"
	}
	return "unknown"
}

type ruleEntry struct {
	state ruleState
	value *ast.Term
	err   error
}

// finish records the outcome of evaluating the rule set. It is called once
// the whole rule set has been evaluated.
func (e *ruleEntry) finish(value *ast.Term, defaulted bool) {
	switch {
	case value == nil:
		e.state = ruleUndefined
	case defaulted:
		e.state = ruleDefaulted
	default:
		e.state = ruleDefined
	}
	e.value = value
}

func (e *ruleEntry) fail(err error) {
	e.state = ruleFailed
	e.err = err
}

// funcEntry memoizes one call of a function with ground arguments.
type funcEntry struct {
	args  *ast.Term
	state ruleState
	value *ast.Term
}

// funcMemo holds the calls made to a single function, bucketed by the hash
// of the argument array.
type funcMemo struct {
	buckets map[int][]*funcEntry
}

func (m *funcMemo) get(args *ast.Term) *funcEntry {
	for _, entry := range m.buckets[args.Hash()] {
		if entry.args.Equal(args) {
			return entry
		}
	}
	return nil
}

func (m *funcMemo) put(args *ast.Term) *funcEntry {
	entry := &funcEntry{args: args, state: ruleEvaluating}
	h := args.Hash()
	m.buckets[h] = append(m.buckets[h], entry)
	return entry
}

func (m *funcMemo) remove(entry *funcEntry) {
	h := entry.args.Hash()
	bucket := m.buckets[h]
	for i := range bucket {
		if bucket[i] == entry {
			m.buckets[h] = append(bucket[:i:i], bucket[i+1:]...)
			return
		}
	}
}

// ruleCache memoizes virtual documents and function results for a single
// evaluation pass. Evaluation under a with modifier uses a separate cache.
type ruleCache struct {
	rules map[string]*ruleEntry
	funcs map[string]*funcMemo
}

func newRuleCache() *ruleCache {
	return &ruleCache{
		rules: map[string]*ruleEntry{},
		funcs: map[string]*funcMemo{},
	}
}

// rule returns the entry for the rule set at path, creating an unevaluated
// entry if needed.
func (c *ruleCache) rule(path string) *ruleEntry {
	entry, ok := c.rules[path]
	if !ok {
		entry = &ruleEntry{}
		c.rules[path] = entry
	}
	return entry
}

// reset forgets the rule set at path so that it is evaluated again.
func (c *ruleCache) reset(path string) {
	delete(c.rules, path)
}

func (c *ruleCache) function(path string) *funcMemo {
	memo, ok := c.funcs[path]
	if !ok {
		memo = &funcMemo{buckets: map[int][]*funcEntry{}}
		c.funcs[path] = memo
	}
	return memo
}
