// Copyright 2017 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package topdown

import (
	"context"
	"crypto/rand"
	"io"
	"sort"

	"github.com/regolith-dev/regolith/ast"
	"github.com/regolith-dev/regolith/logging"
	"github.com/regolith-dev/regolith/metrics"
	"github.com/regolith-dev/regolith/topdown/builtins"
	"github.com/regolith-dev/regolith/topdown/print"
)

// QueryResultSet represents a collection of results returned by a query.
type QueryResultSet []QueryResult

// QueryResult represents a single result returned by a query. The result
// contains bindings for all variables that appear in the query.
type QueryResult map[ast.Var]*ast.Term

// Builtin represents a built-in function that queries can call.
type Builtin struct {
	Decl *ast.Builtin
	Func BuiltinFunc
}

// Query provides a configurable interface for performing query evaluation.
type Query struct {
	seed      io.Reader
	cancel    Cancel
	query     ast.Body
	compiler  *ast.Compiler
	input     *ast.Term
	data      *ast.Term
	tracers   []Tracer
	metrics   metrics.Metrics
	instr     *Instrumentation
	logger    logging.Logger
	printHook print.Hook
	builtins  map[string]*Builtin
}

// NewQuery returns a new Query object that can be run.
func NewQuery(query ast.Body) *Query {
	return &Query{
		query: query,
	}
}

// WithCompiler sets the compiler to use for the query.
func (q *Query) WithCompiler(compiler *ast.Compiler) *Query {
	q.compiler = compiler
	return q
}

// WithInput sets the input object to use for the query. References rooted at
// input will be evaluated against this value. This is optional.
func (q *Query) WithInput(input *ast.Term) *Query {
	q.input = input
	return q
}

// WithData sets the base data document that references rooted at data are
// evaluated against, together with the virtual documents produced by rules.
func (q *Query) WithData(data ast.Object) *Query {
	if data != nil {
		q.data = ast.NewTerm(data)
	}
	return q
}

// WithTracer adds a query tracer to use during evaluation. This is optional.
func (q *Query) WithTracer(tracer Tracer) *Query {
	q.tracers = append(q.tracers, tracer)
	return q
}

// WithMetrics sets the metrics collection to add evaluation metrics to. This
// is optional.
func (q *Query) WithMetrics(m metrics.Metrics) *Query {
	q.metrics = m
	return q
}

// WithInstrumentation sets the instrumentation configuration to enable on the
// evaluation process. By default, instrumentation is turned off.
func (q *Query) WithInstrumentation(instr *Instrumentation) *Query {
	q.instr = instr
	return q
}

// WithCancel sets the cancellation object to use for the query. Set this if
// you need to abort queries based on a deadline. This is optional.
func (q *Query) WithCancel(cancel Cancel) *Query {
	q.cancel = cancel
	return q
}

// WithLogger sets the logger used for debug output. Unless a print hook is
// set, print calls are logged through it as well.
func (q *Query) WithLogger(logger logging.Logger) *Query {
	q.logger = logger
	return q
}

// WithPrintHook sets the object that receives the output of print calls.
func (q *Query) WithPrintHook(h print.Hook) *Query {
	q.printHook = h
	return q
}

// WithBuiltins adds a set of built-in functions that can be called by the
// query.
func (q *Query) WithBuiltins(builtins map[string]*Builtin) *Query {
	q.builtins = builtins
	return q
}

// WithSeed sets a reader that will seed randomization required by built-in
// functions.
func (q *Query) WithSeed(r io.Reader) *Query {
	q.seed = r
	return q
}

// Run is a wrapper around Iter that accumulates query results and returns
// them in one shot.
func (q *Query) Run(ctx context.Context) (QueryResultSet, error) {
	qrs := QueryResultSet{}
	return qrs, q.Iter(ctx, func(qr QueryResult) error {
		qrs = append(qrs, qr)
		return nil
	})
}

// Iter executes the query and invokes the iter function with query results
// produced by evaluating the query.
func (q *Query) Iter(ctx context.Context, iter func(QueryResult) error) error {

	if q.cancel == nil {
		q.cancel = NewCancel()
	}

	exit := make(chan struct{})
	defer close(exit)
	go waitForDone(ctx, exit, func() {
		q.cancel.Cancel()
	})

	e := q.newEval(ctx)
	vars := q.resultVars()

	e.traceEnter(q.query, q.query.Loc())

	return e.evalBody(q.query, func() error {
		e.traceExit(q.query, q.query.Loc())
		qr := QueryResult{}
		for _, v := range vars {
			if t, ok := e.bindings.lookup(v); ok {
				qr[v] = e.bindings.plug(t)
			}
		}
		if err := iter(qr); err != nil {
			return err
		}
		e.traceRedo(q.query, q.query.Loc())
		return nil
	})
}

func (q *Query) newEval(ctx context.Context) *eval {

	compiler := q.compiler
	if compiler == nil {
		compiler = ast.NewCompiler()
		compiler.Compile(nil)
	}

	seed := q.seed
	if seed == nil {
		seed = rand.Reader
	}

	printHook := q.printHook
	if printHook == nil && q.logger != nil {
		printHook = NewLoggerPrintHook(q.logger)
	}

	traceEnabled := false
	for i := range q.tracers {
		if q.tracers[i].Enabled() {
			traceEnabled = true
		}
	}

	qid := &queryIDFactory{}

	return &eval{
		ctx:          ctx,
		queryID:      qid.Next(),
		queryIDFact:  qid,
		compiler:     compiler,
		query:        q.query,
		input:        q.input,
		data:         q.data,
		bindings:     newBindings(),
		cache:        newRuleCache(),
		builtinCache: builtins.Cache{},
		builtins:     q.builtins,
		tracers:      q.tracers,
		traceEnabled: traceEnabled,
		instr:        q.instr,
		metrics:      q.metrics,
		logger:       q.logger,
		printHook:    printHook,
		seed:         seed,
		cancel:       q.cancel,
	}
}

// resultVars returns the variables of the query that are reported in each
// result. Wildcards and the root documents are excluded.
func (q *Query) resultVars() []ast.Var {
	vis := ast.NewVarVisitor().WithParams(ast.VarVisitorParams{
		SkipClosures:    true,
		SkipRefCallHead: true,
		SkipWithTarget:  true,
	})
	vis.WalkBody(q.query)

	var vars []ast.Var
	for v := range vis.Vars() {
		if v.IsWildcard() || ast.RootDocumentNames.Contains(v) {
			continue
		}
		vars = append(vars, v)
	}
	sort.Slice(vars, func(i, j int) bool {
		return vars[i].Compare(vars[j]) < 0
	})
	return vars
}

func waitForDone(ctx context.Context, exit chan struct{}, f func()) {
	select {
	case <-exit:
		return
	case <-ctx.Done():
		f()
		return
	}
}
