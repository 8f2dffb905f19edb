// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package repl implements a Read-Eval-Print-Loop (REPL) for interacting with the policy engine.
//
// The REPL is typically used from the command line, however, it can also be used as a library.
package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/peterh/liner"

	"github.com/regolith-dev/regolith/ast"
	"github.com/regolith-dev/regolith/logging"
	"github.com/regolith-dev/regolith/presentation"
	"github.com/regolith-dev/regolith/rego"
	"github.com/regolith-dev/regolith/topdown"
)

const defaultPackage = "repl"

// REPL represents an instance of the interactive shell.
type REPL struct {
	output io.Writer
	engine *rego.Engine
	logger logging.Logger
	id     string

	modules map[string]*module
	current string

	buffer []string

	outputFormat string
	explain      bool
	historyPath  string
	initPrompt   string
	bufferPrompt string
	banner       string

	bufferDisabled    bool
	undefinedDisabled bool
}

// module is the source of one package entered at the prompt.
type module struct {
	pkg     *ast.Package
	imports []*ast.Import
	rules   []rule
}

type rule struct {
	name ast.Var
	text string
}

func (m *module) filename() string {
	return "repl:" + m.pkg.Path.String()
}

func (m *module) source() string {
	var sb strings.Builder
	sb.WriteString(m.pkg.String())
	sb.WriteString("\n")
	if len(m.imports) > 0 {
		sb.WriteString("\n")
	}
	for _, imp := range m.imports {
		sb.WriteString(imp.String())
		sb.WriteString("\n")
	}
	for _, r := range m.rules {
		sb.WriteString("\n")
		sb.WriteString(r.text)
		sb.WriteString("\n")
	}
	return sb.String()
}

// New returns a new instance of the REPL evaluating against engine.
func New(engine *rego.Engine, historyPath string, output io.Writer, outputFormat string, banner string) *REPL {

	pkg := ast.MustParseModule("package " + defaultPackage).Package
	m := &module{pkg: pkg}

	return &REPL{
		output: output,
		engine: engine,
		logger: logging.NewNoOpLogger(),
		id:     uuid.NewString(),
		modules: map[string]*module{
			pkg.Path.String(): m,
		},
		current:      pkg.Path.String(),
		outputFormat: outputFormat,
		historyPath:  historyPath,
		initPrompt:   "> ",
		bufferPrompt: "| ",
		banner:       banner,
	}
}

// WithLogger sets the logger the REPL reports session events on.
func (r *REPL) WithLogger(logger logging.Logger) *REPL {
	r.logger = logger
	return r
}

// SessionID returns the identifier of this REPL session.
func (r *REPL) SessionID() string {
	return r.id
}

// Loop will run until the user enters "exit", Ctrl+C, Ctrl+D, or an unexpected error occurs.
func (r *REPL) Loop(ctx context.Context) {

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetMultiLineMode(true)
	r.loadHistory(line)

	if len(r.banner) > 0 {
		fmt.Fprintln(r.output, r.banner)
	}

	line.SetCompleter(r.complete)

	r.logger.WithFields(map[string]interface{}{"session": r.id}).Debug("REPL session started.")

	for {
		input, err := line.Prompt(r.getPrompt())

		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			fmt.Fprintln(r.output, "Exiting")
			break
		}

		if err != nil {
			fmt.Fprintln(r.output, "error (fatal):", err)
			break
		}

		if err := r.OneShot(ctx, input); err != nil {
			var s stop
			if errors.As(err, &s) {
				break
			}
			fmt.Fprintln(r.output, "error:", err)
		}

		line.AppendHistory(input)
	}

	r.saveHistory(line)
	r.logger.WithFields(map[string]interface{}{"session": r.id}).Debug("REPL session ended.")
}

// OneShot evaluates the line and prints the result. If an error occurs it is
// returned for the caller to display.
func (r *REPL) OneShot(ctx context.Context, line string) error {

	if len(r.buffer) == 0 {
		if cmd := newCommand(line); cmd != nil {
			switch cmd.op {
			case "dump":
				return r.cmdDump()
			case "json":
				return r.cmdFormat(presentation.JSONFormat)
			case "pretty":
				return r.cmdFormat(presentation.PrettyFormat)
			case "show":
				return r.cmdShow()
			case "unset":
				return r.cmdUnset(ctx, cmd.args)
			case "trace":
				return r.cmdTrace()
			case "help":
				return r.cmdHelp()
			case "exit", "quit":
				return stop{}
			}
		}
		if strings.TrimSpace(line) == "" {
			return nil
		}
		r.buffer = append(r.buffer, line)
		return r.evalBufferOne(ctx)
	}

	r.buffer = append(r.buffer, line)
	if len(strings.TrimSpace(line)) == 0 {
		return r.evalBufferMulti(ctx)
	}

	return nil
}

// DisableMultiLineBuffering causes the REPL to not buffer lines when a parse
// error occurs. Instead, the error will be returned to the caller.
func (r *REPL) DisableMultiLineBuffering(yes bool) *REPL {
	r.bufferDisabled = yes
	return r
}

// DisableUndefinedOutput causes the REPL to not print any output when the query
// is undefined.
func (r *REPL) DisableUndefinedOutput(yes bool) *REPL {
	r.undefinedDisabled = yes
	return r
}

func (r *REPL) complete(line string) (c []string) {
	for _, m := range r.engine.Modules() {
		for _, rule := range m.Rules {
			path := rule.Path().String()
			if strings.HasPrefix(path, line) {
				c = append(c, path)
			}
		}
	}
	sort.Strings(c)
	return c
}

func (r *REPL) cmdDump() error {
	data, err := ast.JSON(r.engine.Data())
	if err != nil {
		return err
	}
	return presentation.JSON(r.output, data)
}

func (r *REPL) cmdFormat(s string) error {
	r.outputFormat = s
	return nil
}

func (r *REPL) cmdHelp() error {
	fmt.Fprintln(r.output, "")
	printHelpExamples(r.output, r.initPrompt)
	printHelpCommands(r.output)
	return nil
}

func (r *REPL) cmdShow() error {
	fmt.Fprint(r.output, r.modules[r.current].source())
	return nil
}

func (r *REPL) cmdTrace() error {
	r.explain = !r.explain
	return nil
}

func (r *REPL) cmdUnset(ctx context.Context, args []string) error {

	if len(args) != 1 {
		return newBadArgsErr("unset <var>: expects exactly one argument")
	}

	term, err := ast.ParseTerm(args[0])
	if err != nil {
		return newBadArgsErr("argument must identify a rule")
	}

	v, ok := term.Value.(ast.Var)
	if !ok {
		return newBadArgsErr("argument must identify a rule")
	}

	m := r.modules[r.current]
	var kept []rule
	for _, rule := range m.rules {
		if rule.name != v {
			kept = append(kept, rule)
		}
	}

	if len(kept) == len(m.rules) {
		fmt.Fprintln(r.output, "warning: no matching rules in current module")
		return nil
	}

	return r.update(ctx, m, func(m *module) { m.rules = kept })
}

func (r *REPL) evalBufferOne(ctx context.Context) error {

	line := strings.Join(r.buffer, "\n")

	if len(strings.TrimSpace(line)) == 0 {
		r.buffer = []string{}
		return nil
	}

	// The user may enter lines with comments on the end or
	// multiple lines with comments interspersed. In these cases
	// the parser will return an empty set of statements.
	stmts, err := ast.ParseStatements("", line)
	if err != nil {
		if r.bufferDisabled {
			r.buffer = []string{}
			return err
		}
		return nil
	}

	r.buffer = []string{}
	return r.evalStatements(ctx, line, stmts)
}

func (r *REPL) evalBufferMulti(ctx context.Context) error {

	defer func() {
		r.buffer = []string{}
	}()

	line := strings.Join(r.buffer, "\n")

	stmts, err := ast.ParseStatements("", line)
	if err != nil {
		return err
	}

	return r.evalStatements(ctx, line, stmts)
}

func (r *REPL) evalStatements(ctx context.Context, src string, stmts []ast.Statement) error {

	var rules []*ast.Rule
	var bodies []ast.Body
	var other []ast.Statement

	for _, stmt := range stmts {
		switch s := stmt.(type) {
		case *ast.Rule:
			rules = append(rules, s)
		case ast.Body:
			bodies = append(bodies, s)
		default:
			other = append(other, s)
		}
	}

	switch {
	case len(other) > 0 && (len(rules) > 0 || len(bodies) > 0):
		return errors.New("package and import statements must be entered on their own")
	case len(rules) > 0 && len(bodies) > 0:
		return errors.New("rules and queries must be entered separately")
	case len(rules) > 0:
		return r.evalRules(ctx, src, rules)
	case len(bodies) > 0:
		return r.evalQuery(ctx, src)
	}

	for _, stmt := range other {
		switch s := stmt.(type) {
		case *ast.Package:
			r.evalPackage(s)
		case *ast.Import:
			if err := r.evalImport(ctx, s); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *REPL) evalPackage(pkg *ast.Package) {
	key := pkg.Path.String()
	if _, ok := r.modules[key]; !ok {
		r.modules[key] = &module{pkg: pkg}
	}
	r.current = key
}

func (r *REPL) evalImport(ctx context.Context, imp *ast.Import) error {
	m := r.modules[r.current]
	for _, other := range m.imports {
		if other.Equal(imp) {
			return nil
		}
	}
	imports := append(append([]*ast.Import(nil), m.imports...), imp)
	return r.update(ctx, m, func(m *module) { m.imports = imports })
}

// evalRules adds the rules to the current module. Every addition produces a
// new module-set version in the engine; a change that fails to compile is
// rolled back.
func (r *REPL) evalRules(ctx context.Context, src string, parsed []*ast.Rule) error {
	m := r.modules[r.current]
	rules := append([]rule(nil), m.rules...)
	rules = append(rules, rule{name: parsed[0].Head.Name(), text: src})
	return r.update(ctx, m, func(m *module) { m.rules = rules })
}

func (r *REPL) update(ctx context.Context, m *module, f func(*module)) error {
	prev := *m
	f(m)

	var err error
	switch {
	case len(m.rules) > 0:
		_, err = r.engine.AddPolicy(m.filename(), m.source())
	case len(prev.rules) > 0:
		err = r.engine.RemovePolicy(m.filename())
	}
	if err == nil {
		err = r.engine.Compile(ctx)
	}

	if err != nil {
		*m = prev
		if len(prev.rules) > 0 {
			_, _ = r.engine.AddPolicy(m.filename(), m.source())
		} else {
			_ = r.engine.RemovePolicy(m.filename())
		}
		return err
	}

	r.logger.WithFields(map[string]interface{}{
		"session": r.id,
		"package": m.pkg.Path.String(),
		"version": r.engine.Version(),
	}).Debug("Updated REPL module.")

	return nil
}

func (r *REPL) evalQuery(ctx context.Context, src string) error {

	m := r.modules[r.current]
	qctx := ast.NewQueryContext().WithPackage(m.pkg).WithImports(m.imports)
	opts := []rego.EvalOption{rego.EvalQueryContext(qctx)}

	var tracer *topdown.BufferTracer
	if r.explain {
		tracer = topdown.NewBufferTracer()
		opts = append(opts, rego.EvalTracer(tracer))
	}

	rs, err := r.engine.EvalQuery(ctx, src, opts...)

	if tracer != nil {
		topdown.PrettyTrace(r.output, *tracer)
	}

	if err != nil {
		return err
	}

	if len(rs) == 0 {
		if !r.undefinedDisabled {
			fmt.Fprintln(r.output, "undefined")
		}
		return nil
	}

	return presentation.Write(r.output, r.outputFormat, presentation.Output{Result: rs})
}

func (r *REPL) getPrompt() string {
	if len(r.buffer) > 0 {
		return r.bufferPrompt
	}
	return r.initPrompt
}

func (r *REPL) loadHistory(prompt *liner.State) {
	if r.historyPath == "" {
		return
	}
	if f, err := os.Open(r.historyPath); err == nil {
		_, _ = prompt.ReadHistory(f)
		f.Close()
	}
}

func (r *REPL) saveHistory(prompt *liner.State) {
	if r.historyPath == "" {
		return
	}
	if f, err := os.Create(r.historyPath); err == nil {
		_, _ = prompt.WriteHistory(f)
		f.Close()
	}
}

type commandDesc struct {
	name string
	args []string
	help string
}

func (c commandDesc) syntax() string {
	if len(c.args) > 0 {
		return fmt.Sprintf("%v %v", c.name, strings.Join(c.args, " "))
	}
	return c.name
}

type exampleDesc struct {
	example string
	comment string
}

var examples = [...]exampleDesc{
	{"data", "show all documents"},
	{"data[x] = _", "show all top level keys"},
	{"p := 1", "define a rule in the current package"},
}

var extra = [...]commandDesc{
	{"<stmt>", []string{}, "evaluate the statement"},
	{"package", []string{"<term>"}, "change active package"},
	{"import", []string{"<term>"}, "add import to active module"},
}

var builtin = [...]commandDesc{
	{"show", []string{}, "show active module definition"},
	{"unset", []string{"<var>"}, "undefine rules in currently active module"},
	{"json", []string{}, "set output format to JSON"},
	{"pretty", []string{}, "set output format to pretty"},
	{"trace", []string{}, "toggle full trace"},
	{"dump", []string{}, "dump the data document"},
	{"help", []string{}, "print this message"},
	{"exit", []string{}, "exit back to shell (or ctrl+c, ctrl+d)"},
	{"quit", []string{}, "same as exit"},
}

type command struct {
	op   string
	args []string
}

func newCommand(line string) *command {
	p := strings.Fields(strings.TrimSpace(line))
	if len(p) == 0 {
		return nil
	}
	for _, c := range builtin {
		if c.name == strings.ToLower(p[0]) {
			// Only bare commands are recognized so that rules named like
			// commands still parse as statements.
			if len(c.args) == 0 && len(p) > 1 {
				return nil
			}
			return &command{
				op:   c.name,
				args: p[1:],
			}
		}
	}
	return nil
}

func printHelpExamples(output io.Writer, promptSymbol string) {

	fmt.Fprintln(output, "Examples")
	fmt.Fprintln(output, "========")
	fmt.Fprintln(output, "")

	maxLength := 0
	for _, ex := range examples {
		if len(ex.example) > maxLength {
			maxLength = len(ex.example)
		}
	}

	f := fmt.Sprintf("%v%%-%dv # %%v\n", promptSymbol, maxLength+1)

	for _, ex := range examples {
		fmt.Fprintf(output, f, ex.example, ex.comment)
	}

	fmt.Fprintln(output, "")
}

func printHelpCommands(output io.Writer) {

	fmt.Fprintln(output, "Commands")
	fmt.Fprintln(output, "========")
	fmt.Fprintln(output, "")

	all := extra[:]
	all = append(all, builtin[:]...)

	maxLength := 0

	for _, c := range all {
		length := len(c.syntax())
		if length > maxLength {
			maxLength = length
		}
	}

	f := fmt.Sprintf("%%%dv : %%v\n", maxLength)

	for _, c := range all {
		fmt.Fprintf(output, f, c.syntax(), c.help)
	}

	fmt.Fprintln(output, "")
}
