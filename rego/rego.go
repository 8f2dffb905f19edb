// Copyright 2017 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package rego exposes the policy engine: a versioned set of modules, a base
// data document and an input document that queries are evaluated against.
package rego

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel/trace"

	"github.com/regolith-dev/regolith/ast"
	"github.com/regolith-dev/regolith/logging"
	"github.com/regolith-dev/regolith/metrics"
	"github.com/regolith-dev/regolith/topdown"
	"github.com/regolith-dev/regolith/topdown/print"
	"github.com/regolith-dev/regolith/tracing"
	"github.com/regolith-dev/regolith/util"
)

// DefaultQueryCacheSize is the number of compiled queries an Engine keeps.
const DefaultQueryCacheSize = 128

const termVarPrefix = "__term"

var versions atomic.Uint64

// Engine evaluates queries against a set of policy modules, a data document
// and an input document. Adding a policy produces a new module-set version;
// the compiled form of a version is built once and shared read-only by every
// clone that holds it. Rule values computed during a query are discarded when
// the query completes.
type Engine struct {
	set   *moduleSet
	data  ast.Object
	input *ast.Term

	logger     logging.Logger
	metrics    metrics.Metrics
	printHook  print.Hook
	tracers    []topdown.Tracer
	instrument bool
	otel       *tracing.Tracer
	cache      *lru.Cache[string, *compiledQuery]

	mtx          sync.Mutex
	gatherPrints bool
	prints       []string
}

// Option configures an Engine.
type Option func(*Engine)

// Logger sets the logger used for debug output and, unless a print hook is
// set, for print output.
func Logger(l logging.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// Metrics sets the metrics collection that parse, compile and eval timers
// are recorded on.
func Metrics(m metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// PrintHook sets the receiver of print output.
func PrintHook(h print.Hook) Option {
	return func(e *Engine) {
		e.printHook = h
	}
}

// Tracer adds an evaluation tracer to every query.
func Tracer(t topdown.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracers = append(e.tracers, t)
		}
	}
}

// Instrument enables detailed evaluation counters on the engine metrics.
func Instrument(yes bool) Option {
	return func(e *Engine) {
		e.instrument = yes
	}
}

// TracerProvider sets the OpenTelemetry provider spans are emitted to.
func TracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) {
		e.otel = tracing.NewTracer(tp)
	}
}

// QueryCacheSize sets how many compiled queries are kept.
func QueryCacheSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.cache, _ = lru.New[string, *compiledQuery](n)
		}
	}
}

// NewEngine returns an Engine with no modules and empty documents.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		set: newModuleSet(nil),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.NewNoOpLogger()
	}
	if e.metrics == nil {
		e.metrics = metrics.NoOp()
	}
	if e.otel == nil {
		e.otel = tracing.NewTracer(nil)
	}
	if e.cache == nil {
		e.cache, _ = lru.New[string, *compiledQuery](DefaultQueryCacheSize)
	}
	return e
}

// Clone returns an engine that shares the modules, compiled state, documents
// and query cache of e. Later changes to either engine do not affect the
// other.
func (e *Engine) Clone() *Engine {
	cpy := &Engine{
		set:        e.set,
		data:       e.data,
		input:      e.input,
		logger:     e.logger,
		metrics:    e.metrics,
		printHook:  e.printHook,
		tracers:    append([]topdown.Tracer(nil), e.tracers...),
		instrument: e.instrument,
		otel:       e.otel,
		cache:      e.cache,
	}
	e.mtx.Lock()
	cpy.gatherPrints = e.gatherPrints
	e.mtx.Unlock()
	return cpy
}

// Version returns the identifier of the current module set. Every call that
// changes the modules produces a new, never reused, version.
func (e *Engine) Version() uint64 {
	return e.set.version
}

// AddPolicy parses source and adds it to the module set under filename,
// replacing any module previously added with the same name. The package
// path of the module is returned, e.g., "data.authz".
func (e *Engine) AddPolicy(filename, source string) (string, error) {
	t := e.metrics.Timer(metrics.ModuleParse)
	t.Start()
	module, err := ast.ParseModule(filename, source)
	t.Stop()
	if err != nil {
		return "", err
	}

	modules := make(map[string]*ast.Module, len(e.set.modules)+1)
	for k, v := range e.set.modules {
		modules[k] = v
	}
	modules[filename] = module
	e.set = newModuleSet(modules)

	e.logger.WithFields(map[string]interface{}{
		"filename": filename,
		"version":  e.set.version,
	}).Debug("Added policy.")

	return module.Package.Path.String(), nil
}

// AddPolicyFromFile reads the file at path and adds it with AddPolicy.
func (e *Engine) AddPolicyFromFile(path string) (string, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return e.AddPolicy(path, string(bs))
}

// RemovePolicy removes the module added under filename.
func (e *Engine) RemovePolicy(filename string) error {
	if _, ok := e.set.modules[filename]; !ok {
		return fmt.Errorf("policy %q not found", filename)
	}
	modules := make(map[string]*ast.Module, len(e.set.modules))
	for k, v := range e.set.modules {
		if k != filename {
			modules[k] = v
		}
	}
	e.set = newModuleSet(modules)
	return nil
}

// Policies returns the filenames of the modules in sorted order.
func (e *Engine) Policies() []string {
	names := make([]string, 0, len(e.set.modules))
	for k := range e.set.modules {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Modules returns the parsed modules keyed by filename. The modules must not
// be modified.
func (e *Engine) Modules() map[string]*ast.Module {
	return e.set.modules
}

// Packages returns the distinct package paths of the modules in sorted
// order.
func (e *Engine) Packages() []string {
	seen := map[string]struct{}{}
	for _, m := range e.set.modules {
		seen[m.Package.Path.String()] = struct{}{}
	}
	pkgs := make([]string, 0, len(seen))
	for k := range seen {
		pkgs = append(pkgs, k)
	}
	sort.Strings(pkgs)
	return pkgs
}

// AddData merges x into the data document. x must be an object. Keys that
// exist on both sides are merged recursively when both values are objects;
// any other overlap is an error and leaves the data document unchanged.
func (e *Engine) AddData(x interface{}) error {
	v, err := ast.InterfaceToValue(x)
	if err != nil {
		return err
	}
	return e.AddDataValue(v)
}

// AddDataJSON parses s as JSON and merges it with AddData.
func (e *Engine) AddDataJSON(s string) error {
	t := e.metrics.Timer(metrics.DataParse)
	t.Start()
	v, err := ast.JSONToValue([]byte(s))
	t.Stop()
	if err != nil {
		return err
	}
	return e.AddDataValue(v)
}

// AddDataValue merges an already converted value into the data document.
func (e *Engine) AddDataValue(v ast.Value) error {
	obj, ok := v.(ast.Object)
	if !ok {
		return fmt.Errorf("data must be an object but got %v", ast.TypeName(v))
	}
	if e.data == nil {
		e.data = obj
		return nil
	}
	merged, ok := e.data.Merge(obj)
	if !ok {
		return errors.New("data merge conflict")
	}
	e.data = merged
	return nil
}

// ClearData resets the data document to the empty object.
func (e *Engine) ClearData() {
	e.data = nil
}

// Data returns the data document. The document does not include the values
// of rules.
func (e *Engine) Data() ast.Object {
	if e.data == nil {
		return ast.NewObject()
	}
	return e.data
}

// SetInput sets the input document.
func (e *Engine) SetInput(x interface{}) error {
	v, err := ast.InterfaceToValue(x)
	if err != nil {
		return err
	}
	e.input = ast.NewTerm(v)
	return nil
}

// SetInputJSON parses s as JSON and sets it as the input document.
func (e *Engine) SetInputJSON(s string) error {
	v, err := ast.JSONToValue([]byte(s))
	if err != nil {
		return err
	}
	e.input = ast.NewTerm(v)
	return nil
}

// SetInputValue sets an already converted input document. A nil value
// clears the input.
func (e *Engine) SetInputValue(v ast.Value) {
	if v == nil {
		e.input = nil
		return
	}
	e.input = ast.NewTerm(v)
}

// SetGatherPrints controls whether print output is buffered on the engine
// instead of being sent to the print hook. Buffered output is returned by
// TakePrints.
func (e *Engine) SetGatherPrints(yes bool) {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	e.gatherPrints = yes
}

// TakePrints returns the buffered print output and clears the buffer.
func (e *Engine) TakePrints() []string {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	prints := e.prints
	e.prints = nil
	return prints
}

// Compile builds the compiled form of the current module set. It is called
// implicitly by evaluation; calling it directly reports compile errors early.
func (e *Engine) Compile(context.Context) error {
	_, err := e.compiler()
	return err
}

// Compiler returns the compiler holding the current module set.
func (e *Engine) Compiler() (*ast.Compiler, error) {
	return e.compiler()
}

// RuleOrder returns the paths of the rules that must be evaluated to produce
// the document at path, dependencies first.
func (e *Engine) RuleOrder(path string) ([]string, error) {
	ref, err := parseDataRef(path)
	if err != nil {
		return nil, err
	}
	c, err := e.compiler()
	if err != nil {
		return nil, err
	}
	order, err := c.RuleOrder(ref)
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(order))
	for i := range order {
		paths[i] = order[i].String()
	}
	return paths, nil
}

// EvalRule evaluates the rule at path, e.g., "data.authz.allow". A nil term
// with a nil error means the rule is undefined. Paths that do not name a rule
// are errors.
func (e *Engine) EvalRule(ctx context.Context, path string, opts ...EvalOption) (*ast.Term, error) {
	ref, err := parseDataRef(path)
	if err != nil {
		return nil, err
	}

	c, err := e.compiler()
	if err != nil {
		return nil, err
	}

	rules := c.GetRulesExact(ref)
	if len(rules) == 0 {
		if len(c.GetRulesWithPrefix(ref)) > 0 {
			return nil, fmt.Errorf("%v is a package, not a rule", ref)
		}
		return nil, fmt.Errorf("no rule found at %v", ref)
	}
	if rules[0].IsFunction() {
		return nil, fmt.Errorf("%v is a function and cannot be evaluated without arguments", ref)
	}

	ctx, span := e.otel.Start(ctx, "regolith.EvalRule",
		tracing.PathKey.String(path),
		tracing.VersionKey.Int64(int64(e.set.version)))

	result := ast.VarTerm(termVarPrefix + "rule__")
	query := ast.NewBody(ast.Equality.Expr(result, ast.NewTerm(ref)))

	var value *ast.Term
	err = e.run(ctx, c, query, newEvalContext(opts), func(qr topdown.QueryResult) error {
		value = qr[result.Value.(ast.Var)]
		return nil
	})
	span.End(err)
	if err != nil {
		return nil, err
	}
	return value, nil
}

// EvalQuery evaluates the query q, e.g., "x := data.a; x > 1". Each result
// holds the value of every expression of q and the bindings of the query's
// variables. An empty result set means the query is undefined.
func (e *Engine) EvalQuery(ctx context.Context, q string, opts ...EvalOption) (ResultSet, error) {

	ctx, span := e.otel.Start(ctx, "regolith.EvalQuery",
		tracing.QueryKey.String(q),
		tracing.VersionKey.Int64(int64(e.set.version)))

	rs, err := e.evalQuery(ctx, q, newEvalContext(opts))
	span.SetAttributes(tracing.ResultsKey.Int(len(rs)))
	span.End(err)
	return rs, err
}

// EvalBoolQuery evaluates q and returns its boolean value. The query must
// produce exactly one result with a single boolean expression value.
func (e *Engine) EvalBoolQuery(ctx context.Context, q string, opts ...EvalOption) (bool, error) {
	rs, err := e.EvalQuery(ctx, q, opts...)
	if err != nil {
		return false, err
	}
	switch {
	case len(rs) == 0:
		return false, errors.New("query did not produce any values")
	case len(rs) > 1 || len(rs[0].Expressions) != 1:
		return false, errors.New("query produced more than one value")
	}
	b, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("query produced a non-boolean value: %v", rs[0].Expressions[0].Value)
	}
	return b, nil
}

// EvalAllowQuery returns true only if q evaluates to exactly true. Errors
// count as not allowed.
func (e *Engine) EvalAllowQuery(ctx context.Context, q string, opts ...EvalOption) bool {
	b, err := e.EvalBoolQuery(ctx, q, opts...)
	return err == nil && b
}

// EvalDenyQuery returns false only if q evaluates to exactly false. Errors
// count as denied.
func (e *Engine) EvalDenyQuery(ctx context.Context, q string, opts ...EvalOption) bool {
	b, err := e.EvalBoolQuery(ctx, q, opts...)
	return err != nil || b
}

func (e *Engine) evalQuery(ctx context.Context, q string, ectx *EvalContext) (ResultSet, error) {

	c, err := e.compiler()
	if err != nil {
		return nil, err
	}

	cq, err := e.compileQuery(c, q, ectx.qctx)
	if err != nil {
		return nil, err
	}

	var rs ResultSet
	err = e.run(ctx, c, cq.query, ectx, func(qr topdown.QueryResult) error {
		result, err := cq.result(qr)
		if err != nil {
			return err
		}
		rs = append(rs, result)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rs, nil
}

func (e *Engine) run(ctx context.Context, c *ast.Compiler, query ast.Body, ectx *EvalContext, iter func(topdown.QueryResult) error) error {

	m := e.metrics
	if ectx.metrics != nil {
		m = ectx.metrics
	}

	input := e.input
	if ectx.input != nil {
		input = ectx.input
	}

	q := topdown.NewQuery(query).
		WithCompiler(c).
		WithData(e.data).
		WithInput(input).
		WithMetrics(m).
		WithLogger(e.logger)

	if e.instrument {
		q = q.WithInstrumentation(topdown.NewInstrumentation(m))
	}

	if hook := e.currentPrintHook(); hook != nil {
		q = q.WithPrintHook(hook)
	}

	for _, t := range e.tracers {
		q = q.WithTracer(t)
	}
	for _, t := range ectx.tracers {
		q = q.WithTracer(t)
	}

	e.logger.WithFields(map[string]interface{}{
		"query":   query.String(),
		"version": e.set.version,
	}).Debug("Evaluating query.")

	t := m.Timer(metrics.QueryEval)
	t.Start()
	defer t.Stop()

	return q.Iter(ctx, iter)
}

func (e *Engine) currentPrintHook() print.Hook {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	if e.gatherPrints {
		return gatherHook{e: e}
	}
	return e.printHook
}

type gatherHook struct {
	e *Engine
}

func (h gatherHook) Print(pctx print.Context, msg string) error {
	h.e.mtx.Lock()
	defer h.e.mtx.Unlock()
	if pctx.Location != nil {
		msg = pctx.Location.String() + ": " + msg
	}
	h.e.prints = append(h.e.prints, msg)
	return nil
}

func (e *Engine) compiler() (*ast.Compiler, error) {
	return e.set.compile(e.metrics, e.logger)
}

func (e *Engine) compileQuery(c *ast.Compiler, q string, qctx *ast.QueryContext) (*compiledQuery, error) {

	key := fmt.Sprintf("%d\x00%s", e.set.version, q)
	if qctx != nil {
		key += "\x00" + queryContextKey(qctx)
	}
	if cq, ok := e.cache.Get(key); ok {
		e.metrics.Counter(metrics.QueryCacheHit).Incr()
		return cq, nil
	}

	t := e.metrics.Timer(metrics.QueryParse)
	t.Start()
	parsed, err := ast.ParseQuery(q)
	t.Stop()
	if err != nil {
		return nil, err
	}

	captured, captures := captureExpressions(parsed)

	t = e.metrics.Timer(metrics.QueryCompile)
	t.Start()
	qc := c.QueryCompiler()
	if qctx != nil {
		qc = qc.WithContext(qctx)
	}
	compiled, err := qc.Compile(captured)
	t.Stop()
	if err != nil {
		return nil, err
	}

	cq := &compiledQuery{
		parsed:    parsed,
		query:     compiled,
		captures:  captures,
		rewritten: qc.RewrittenVars(),
	}
	e.cache.Add(key, cq)
	return cq, nil
}

// moduleSet is one immutable version of the engine's modules together with
// its lazily built compiler.
type moduleSet struct {
	version  uint64
	modules  map[string]*ast.Module
	once     sync.Once
	compiled *ast.Compiler
	err      error
}

func newModuleSet(modules map[string]*ast.Module) *moduleSet {
	if modules == nil {
		modules = map[string]*ast.Module{}
	}
	return &moduleSet{
		version: versions.Add(1),
		modules: modules,
	}
}

func (s *moduleSet) compile(m metrics.Metrics, logger logging.Logger) (*ast.Compiler, error) {
	s.once.Do(func() {
		c := ast.NewCompiler().WithMetrics(m)
		c.Compile(s.modules)
		if c.Failed() {
			s.err = c.Errors
			logger.WithFields(map[string]interface{}{
				"version": s.version,
				"errors":  len(c.Errors),
			}).Debug("Compilation failed.")
			return
		}
		s.compiled = c
	})
	return s.compiled, s.err
}

func queryContextKey(qctx *ast.QueryContext) string {
	var sb strings.Builder
	if qctx.Package != nil {
		sb.WriteString(qctx.Package.Path.String())
	}
	for _, imp := range qctx.Imports {
		sb.WriteByte(';')
		sb.WriteString(imp.String())
	}
	return sb.String()
}

// EvalContext holds per-call evaluation settings.
type EvalContext struct {
	input   *ast.Term
	metrics metrics.Metrics
	tracers []topdown.Tracer
	qctx    *ast.QueryContext
}

// EvalOption configures a single evaluation.
type EvalOption func(*EvalContext)

// EvalInput sets the input document for this evaluation only.
func EvalInput(x interface{}) EvalOption {
	return func(ectx *EvalContext) {
		ectx.input = ast.NewTerm(ast.MustInterfaceToValue(x))
	}
}

// EvalParsedInput sets an already converted input document for this
// evaluation only.
func EvalParsedInput(v ast.Value) EvalOption {
	return func(ectx *EvalContext) {
		ectx.input = ast.NewTerm(v)
	}
}

// EvalMetrics sets the metrics collection for this evaluation only.
func EvalMetrics(m metrics.Metrics) EvalOption {
	return func(ectx *EvalContext) {
		ectx.metrics = m
	}
}

// EvalTracer adds a tracer to this evaluation only.
func EvalTracer(t topdown.Tracer) EvalOption {
	return func(ectx *EvalContext) {
		if t != nil {
			ectx.tracers = append(ectx.tracers, t)
		}
	}
}

// EvalQueryContext resolves references in the query against the package and
// imports of qctx, as if the query were a rule body inside that package.
func EvalQueryContext(qctx *ast.QueryContext) EvalOption {
	return func(ectx *EvalContext) {
		ectx.qctx = qctx
	}
}

func newEvalContext(opts []EvalOption) *EvalContext {
	ectx := &EvalContext{}
	for _, opt := range opts {
		opt(ectx)
	}
	return ectx
}

// compiledQuery is a parsed query, its compiled form and the variables that
// capture the values of the parsed expressions.
type compiledQuery struct {
	parsed    ast.Body
	query     ast.Body
	captures  []ast.Var
	rewritten map[ast.Var]ast.Var
}

func (cq *compiledQuery) result(qr topdown.QueryResult) (Result, error) {

	result := newResult()

	for k, t := range qr {
		if rw, ok := cq.rewritten[k]; ok {
			k = rw
		}
		if isTermVar(k) || k.IsGenerated() {
			continue
		}
		v, err := ast.JSON(t.Value)
		if err != nil {
			return Result{}, err
		}
		result.Bindings[string(k)] = v
	}

	for i, expr := range cq.parsed {
		if cq.captures[i] == "" {
			result.Expressions = append(result.Expressions, newExpressionValue(expr, true))
			continue
		}
		t, ok := qr[cq.captures[i]]
		if !ok {
			return Result{}, fmt.Errorf("missing value for expression %v", expr)
		}
		v, err := ast.JSON(t.Value)
		if err != nil {
			return Result{}, err
		}
		result.Expressions = append(result.Expressions, newExpressionValue(expr, v))
	}

	return result, nil
}

// captureExpressions rewrites the expressions of query whose value is
// reported back to the caller so that the value is bound to a variable.
// Comparisons become `__termN__ = gt(x, 1)`. When the query has more than
// one expression or iterates, a check on the captured variable is appended
// so that false values still fail the query. The returned slice holds the
// capture variable for each expression of the input, or "" if the
// expression is reported as true.
func captureExpressions(query ast.Body) (ast.Body, []ast.Var) {

	checkCapture := len(query) > 1 || iteration(query)

	out := make(ast.Body, 0, len(query))
	captures := make([]ast.Var, len(query))
	var checks ast.Body

	for i, expr := range query {

		if expr.Negated || expr.IsAssignment() || expr.IsEquality() {
			out = append(out, expr.Copy())
			continue
		}

		var value *ast.Term
		switch terms := expr.Terms.(type) {
		case *ast.Term:
			value = terms
		case []*ast.Term:
			value = ast.CallTerm(terms...)
		default:
			out = append(out, expr.Copy())
			continue
		}

		capture := ast.VarTerm(fmt.Sprintf("%s%d__", termVarPrefix, i+1))
		captures[i] = capture.Value.(ast.Var)

		cpy := expr.Copy()
		cpy.Terms = ast.Equality.Expr(capture, value).Terms
		out = append(out, cpy)

		if checkCapture {
			check := ast.NewExpr(capture)
			check.Location = expr.Location
			checks = append(checks, check)
		}
	}

	out = append(out, checks...)
	for i := range out {
		out[i].Index = i
	}

	return out, captures
}

// iteration returns true if x contains a reference with a variable in a
// non-head position outside of a closure.
func iteration(x interface{}) bool {

	var found bool

	vis := ast.NewGenericVisitor(func(x interface{}) bool {
		if found {
			return true
		}
		switch x := x.(type) {
		case *ast.Term:
			if ast.IsComprehension(x.Value) {
				return true
			}
		case *ast.Every:
			return true
		case ast.Ref:
			for i := 1; i < len(x); i++ {
				if _, ok := x[i].Value.(ast.Var); ok {
					found = true
					return true
				}
			}
		}
		return false
	})

	vis.Walk(x)

	return found
}

func isTermVar(v ast.Var) bool {
	return strings.HasPrefix(string(v), termVarPrefix)
}

func parseDataRef(path string) (ast.Ref, error) {
	ref, err := ast.ParseRef(path)
	if err != nil {
		return nil, err
	}
	if !ref.HasPrefix(ast.DefaultRootRef) {
		return nil, fmt.Errorf("path must begin with data: %v", path)
	}
	if !ref.IsGround() {
		return nil, fmt.Errorf("path must be ground: %v", path)
	}
	return ref, nil
}

// LoadDataFile merges the JSON or YAML document in the file at path into the
// engine's data document.
func (e *Engine) LoadDataFile(path string) error {
	bs, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var x interface{}
	if err := util.Unmarshal(bs, &x); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return e.AddData(x)
}
