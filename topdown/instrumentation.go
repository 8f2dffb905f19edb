// Copyright 2018 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package topdown

import (
	"time"

	"github.com/regolith-dev/regolith/metrics"
)

const (
	evalOpRuleCacheHit    = "eval_op_rule_cache_hit"
	evalOpFuncCacheHit    = "eval_op_function_cache_hit"
	evalOpComprehension   = "eval_op_comprehension"
	evalOpBuiltinCall     = "eval_op_builtin_call"
	evalOpBuiltinCallTime = "eval_op_builtin_call_ns"
)

// Instrumentation implements helper functions to instrument query evaluation
// to diagnose performance issues. Instrumentation may be expensive in some
// cases, so it is disabled by default.
type Instrumentation struct {
	m metrics.Metrics
}

// NewInstrumentation returns a new Instrumentation object. Performance
// diagnostics recorded on this Instrumentation object will stored in m.
func NewInstrumentation(m metrics.Metrics) *Instrumentation {
	return &Instrumentation{m: m}
}

func (instr *Instrumentation) counterIncr(name string) {
	if instr == nil {
		return
	}
	instr.m.Counter(name).Incr()
}

// observe records the time elapsed since start in the histogram name.
func (instr *Instrumentation) observe(name string, start time.Time) {
	if instr == nil {
		return
	}
	instr.m.Histogram(name).Update(time.Since(start).Nanoseconds())
}

func (instr *Instrumentation) now() time.Time {
	if instr == nil {
		return time.Time{}
	}
	return time.Now()
}
