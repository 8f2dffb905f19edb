// Copyright 2018 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/regolith-dev/regolith/ast"
	"github.com/regolith-dev/regolith/filewatcher"
	"github.com/regolith-dev/regolith/loader"
	"github.com/regolith-dev/regolith/logging"
	"github.com/regolith-dev/regolith/metrics"
	pr "github.com/regolith-dev/regolith/presentation"
	"github.com/regolith-dev/regolith/rego"
	"github.com/regolith-dev/regolith/topdown"
	"github.com/regolith-dev/regolith/util"
)

type evalCommandParams struct {
	dataPaths     repeatedStringFlag
	inputPath     string
	imports       repeatedStringFlag
	pkg           string
	stdin         bool
	stdinInput    bool
	explain       *util.EnumFlag
	metrics       bool
	metricsFormat *util.EnumFlag
	instrument    bool
	ignore        []string
	outputFormat  *util.EnumFlag
	prettyLimit   intFlag
	fail          bool
	failDefined   bool
	watch         bool

	// stderr receives print output and, in watch mode, reload notices.
	stderr io.Writer
	logger logging.Logger
}

const (
	metricsFormatJSON       = "json"
	metricsFormatPrometheus = "prometheus"

	defaultPrettyLimit = 80
)

func newEvalCommandParams() evalCommandParams {
	return evalCommandParams{
		outputFormat:  util.NewEnumFlag(pr.JSONFormat, pr.Formats),
		explain:       newExplainFlag([]string{explainModeOff, explainModeFull}),
		metricsFormat: util.NewEnumFlag(metricsFormatJSON, []string{metricsFormatJSON, metricsFormatPrometheus}),
		prettyLimit:   newIntFlag(defaultPrettyLimit),
		stderr:        io.Discard,
	}
}

type regoError struct{}

func (regoError) Error() string {
	return "rego"
}

func init() {

	params := newEvalCommandParams()

	evalCommand := &cobra.Command{
		Use:   "eval <query>",
		Short: "Evaluate a Rego query",
		Long: `Evaluate a Rego query and print the result.

Examples
--------

To evaluate a simple query:

	$ regolith eval 'x = 1; y = 2; x < y'

To evaluate a query against JSON data:

	$ regolith eval --data data.json 'data.names[_] = name'

To evaluate a rule of a policy against an input document:

	$ regolith eval -d policy.rego -i input.json 'data.authz.allow'

File Loading
------------

The --data flag recursively loads all *.rego, *.json, *.yaml and *.yml files
under the specified directory. Documents in nested directories are rooted
under the path given by the directory names. A path may be prefixed with a
dotted document path and a colon to load its content under that path:

	$ regolith eval --data users:users.json 'data.users'

Output Formats
--------------

Set the output format with the --format flag.

	--format=json      : output raw query results as JSON
	--format=values    : output line separated JSON arrays containing expression values
	--format=bindings  : output line separated JSON objects containing variable bindings
	--format=pretty    : output query results in a human-readable format
	--format=raw       : output the values of the query expressions, strings unquoted

Watching
--------

With --watch the query is evaluated again whenever a file below one of the
--data paths changes, until the process is interrupted.
`,

		PreRunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 && params.stdin {
				return errors.New("specify query argument or --stdin but not both")
			} else if len(args) == 0 && !params.stdin {
				return errors.New("specify query argument or --stdin")
			} else if len(args) > 1 {
				return errors.New("specify at most one query argument")
			}
			if params.stdin && params.stdinInput {
				return errors.New("specify --stdin or --stdin-input but not both")
			}
			if params.stdinInput && params.inputPath != "" {
				return errors.New("specify --stdin-input or --input but not both")
			}
			if params.fail && params.failDefined {
				return errors.New("specify --fail or --fail-defined but not both")
			}
			if params.watch && len(params.dataPaths.v) == 0 {
				return errors.New("specify --data with --watch")
			}
			if params.instrument || params.metricsFormat.IsSet() {
				params.metrics = true
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := rootParams.newLogger(os.Stderr)
			if err != nil {
				return err
			}
			params.logger = logger
			params.stderr = os.Stderr

			if params.watch {
				ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
				defer cancel()
				return watchEval(ctx, args, params, os.Stdout)
			}

			defined, err := eval(args, params, os.Stdout)
			if err != nil {
				if _, ok := err.(regoError); ok {
					return newExitError(2)
				}
				return newExitErrorWrap(2, err)
			}

			if (params.fail && !defined) || (params.failDefined && defined) {
				return newExitError(1)
			}
			return nil
		},
	}

	setDataPaths(evalCommand.Flags(), &params.dataPaths)
	evalCommand.Flags().StringVarP(&params.inputPath, "input", "i", "", "set input file path")
	evalCommand.Flags().VarP(&params.imports, "import", "", "set query import(s). This flag can be repeated.")
	evalCommand.Flags().StringVarP(&params.pkg, "package", "", "", "set query package")
	evalCommand.Flags().BoolVarP(&params.stdin, "stdin", "", false, "read query from stdin")
	evalCommand.Flags().BoolVarP(&params.stdinInput, "stdin-input", "I", false, "read input document from stdin")
	evalCommand.Flags().BoolVarP(&params.metrics, "metrics", "", false, "report query performance metrics")
	evalCommand.Flags().VarP(params.metricsFormat, "metrics-format", "", "set metrics output format (implies --metrics)")
	evalCommand.Flags().BoolVarP(&params.instrument, "instrument", "", false, "enable query instrumentation metrics (implies --metrics)")
	setOutputFormat(evalCommand.Flags(), params.outputFormat)
	evalCommand.Flags().VarP(&params.prettyLimit, "pretty-limit", "", "set limit after which pretty output gets truncated")
	evalCommand.Flags().BoolVarP(&params.fail, "fail", "", false, "exits with non-zero exit code on undefined/empty result and errors")
	evalCommand.Flags().BoolVarP(&params.failDefined, "fail-defined", "", false, "exits with non-zero exit code on defined/non-empty result and errors")
	evalCommand.Flags().BoolVarP(&params.watch, "watch", "w", false, "evaluate again when files below the data paths change")
	setIgnore(evalCommand.Flags(), &params.ignore)
	setExplain(evalCommand.Flags(), params.explain)
	RootCommand.AddCommand(evalCommand)
}

// evalRequest holds the parts of an evaluation that are read once, even when
// the query is evaluated repeatedly.
type evalRequest struct {
	query string
	input ast.Value
	qctx  *ast.QueryContext
}

func newEvalRequest(args []string, params evalCommandParams) (*evalRequest, error) {
	var req evalRequest

	if params.stdin {
		bs, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, err
		}
		req.query = string(bs)
	} else {
		req.query = args[0]
	}

	inputBytes, err := readInputBytes(params)
	if err != nil {
		return nil, err
	} else if inputBytes != nil {
		var input interface{}
		if err := util.Unmarshal(inputBytes, &input); err != nil {
			return nil, fmt.Errorf("unable to parse input: %s", err.Error())
		}
		req.input, err = ast.InterfaceToValue(input)
		if err != nil {
			return nil, fmt.Errorf("unable to process input: %s", err.Error())
		}
	}

	req.qctx, err = newQueryContext(params.pkg, params.imports.v)
	if err != nil {
		return nil, err
	}

	return &req, nil
}

// eval loads the data paths, evaluates the query and writes the result to
// w. It reports whether the result was defined. Evaluation errors are
// written to w as part of the output and returned as regoError.
func eval(args []string, params evalCommandParams, w io.Writer) (bool, error) {
	req, err := newEvalRequest(args, params)
	if err != nil {
		return false, err
	}

	m := newEvalMetrics(params)

	loaded, err := loadPaths(params.dataPaths.v, params.ignore, m)
	if err != nil {
		return false, writeEvalError(w, params, err)
	}

	return req.eval(context.Background(), loaded, m, params, w)
}

func (req *evalRequest) eval(ctx context.Context, loaded *loader.Result, m metrics.Metrics, params evalCommandParams, w io.Writer) (bool, error) {

	opts := []rego.Option{
		rego.Metrics(m),
		rego.Instrument(params.instrument),
		rego.PrintHook(topdown.NewPrintHook(params.stderr)),
	}
	if params.logger != nil {
		opts = append(opts, rego.Logger(params.logger))
	}

	var result pr.Output

	engine, err := newEngine(loaded, opts...)
	if err == nil {
		var evalOpts []rego.EvalOption
		if req.input != nil {
			evalOpts = append(evalOpts, rego.EvalParsedInput(req.input))
		}
		if req.qctx != nil {
			evalOpts = append(evalOpts, rego.EvalQueryContext(req.qctx))
		}

		var tracer *topdown.BufferTracer
		if params.explain.String() == explainModeFull {
			tracer = topdown.NewBufferTracer()
			evalOpts = append(evalOpts, rego.EvalTracer(tracer))
		}

		result.Result, err = engine.EvalQuery(ctx, req.query, evalOpts...)

		if tracer != nil {
			result.Explanation = *tracer
		}
	}

	result.Errors = pr.NewOutputErrors(err)

	if m != nil && params.metricsFormat.String() == metricsFormatJSON {
		result.Metrics = m
	}

	if err := pr.Write(w, params.outputFormat.String(), result.WithLimit(params.prettyLimit.v)); err != nil {
		return false, err
	}

	if m != nil && params.metricsFormat.String() == metricsFormatPrometheus {
		if err := metrics.WritePrometheus(w, m); err != nil {
			return false, err
		}
	}

	if result.Errors != nil {
		// The error has been written by the presentation package already.
		return false, regoError{}
	}
	return len(result.Result) > 0, nil
}

// watchEval evaluates the query once and again after every change below the
// data paths until ctx is done.
func watchEval(ctx context.Context, args []string, params evalCommandParams, w io.Writer) error {
	req, err := newEvalRequest(args, params)
	if err != nil {
		return err
	}

	m := newEvalMetrics(params)
	loaded, err := loadPaths(params.dataPaths.v, params.ignore, m)
	if err != nil {
		_ = writeEvalError(w, params, err)
	} else {
		_, _ = req.eval(ctx, loaded, m, params, w)
	}

	f := loaderFilter{
		Ignore: params.ignore,
	}

	onReload := func(ctx context.Context, loaded *loader.Result, elapsed time.Duration, err error) {
		fmt.Fprintf(params.stderr, "# reloaded files in %v\n", elapsed)
		if err != nil {
			_ = writeEvalError(w, params, err)
			return
		}
		_, _ = req.eval(ctx, loaded, newEvalMetrics(params), params, w)
	}

	watcher := filewatcher.NewFileWatcher(params.dataPaths.v, f.Apply, onReload, params.logger)
	if err := watcher.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	return nil
}

func newEvalMetrics(params evalCommandParams) metrics.Metrics {
	if params.metrics {
		return metrics.New()
	}
	return nil
}

func writeEvalError(w io.Writer, params evalCommandParams, err error) error {
	result := pr.Output{Errors: pr.NewOutputErrors(err)}
	if err := pr.Write(w, params.outputFormat.String(), result); err != nil {
		return err
	}
	return regoError{}
}

// newQueryContext returns the package and imports the query is evaluated
// in, or nil when neither is set.
func newQueryContext(pkg string, imports []string) (*ast.QueryContext, error) {
	if pkg == "" && len(imports) == 0 {
		return nil, nil
	}

	var lines []string
	if pkg != "" {
		lines = append(lines, "package "+pkg)
	}
	for _, imp := range imports {
		lines = append(lines, "import "+imp)
	}

	stmts, err := ast.ParseStatements("", strings.Join(lines, "\n"))
	if err != nil {
		return nil, err
	}

	qctx := ast.NewQueryContext()
	for _, stmt := range stmts {
		switch stmt := stmt.(type) {
		case *ast.Package:
			qctx.WithPackage(stmt)
		case *ast.Import:
			qctx.Imports = append(qctx.Imports, stmt)
		default:
			return nil, fmt.Errorf("invalid package or import: %v", stmt)
		}
	}
	return qctx, nil
}

func readInputBytes(params evalCommandParams) ([]byte, error) {
	if params.stdinInput {
		return io.ReadAll(os.Stdin)
	} else if params.inputPath != "" {
		return os.ReadFile(params.inputPath)
	}
	return nil, nil
}
