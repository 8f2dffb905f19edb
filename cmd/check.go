// Copyright 2017 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/regolith-dev/regolith/ast"
	"github.com/regolith-dev/regolith/loader"
	"github.com/regolith-dev/regolith/metrics"
	pr "github.com/regolith-dev/regolith/presentation"
	"github.com/regolith-dev/regolith/util"
)

type checkParams struct {
	format   *util.EnumFlag
	errLimit int
	ignore   []string
	metrics  bool
}

func newCheckParams() checkParams {
	return checkParams{
		format: util.NewEnumFlag(checkFormatPretty, []string{
			checkFormatPretty, checkFormatJSON,
		}),
	}
}

const (
	checkFormatPretty = "pretty"
	checkFormatJSON   = "json"
)

// checkModules parses and compiles the policy files below args.
func checkModules(params checkParams, args []string, m metrics.Metrics) error {

	f := loaderFilter{
		Ignore:   params.ignore,
		OnlyRego: true,
	}

	result, err := loader.NewFileLoader().
		WithMetrics(m).
		WithFilter(f.Apply).
		All(args)
	if err != nil {
		return err
	}

	compiler := ast.NewCompiler().
		WithMaxErrors(params.errLimit).
		WithMetrics(m)

	compiler.Compile(result.ParsedModules())
	if compiler.Failed() {
		return compiler.Errors
	}
	return nil
}

func outputErrors(w io.Writer, format string, err error) {
	switch format {
	case checkFormatJSON:
		result := pr.Output{
			Errors: pr.NewOutputErrors(err),
		}
		if err := pr.JSON(w, result); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
		}
	default:
		fmt.Fprintln(w, err)
	}
}

func init() {
	checkParams := newCheckParams()

	checkCommand := &cobra.Command{
		Use:   "check <path> [path [...]]",
		Short: "Check Rego source files",
		Long: `Check Rego source files for parse and compilation errors.

If the 'check' command succeeds in parsing and compiling the source file(s), no output
is produced. If the parsing or compiling fails, 'check' will output the errors
and exit with a non-zero exit code.`,

		PreRunE: func(_ *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errors.New("specify at least one file")
			}
			return nil
		},

		RunE: func(_ *cobra.Command, args []string) error {
			return runCheck(checkParams, args, os.Stdout, os.Stderr)
		},
	}

	setMaxErrors(checkCommand.Flags(), &checkParams.errLimit)
	setIgnore(checkCommand.Flags(), &checkParams.ignore)
	setOutputFormat(checkCommand.Flags(), checkParams.format)
	checkCommand.Flags().BoolVarP(&checkParams.metrics, "metrics", "", false, "report parse and compile timers")
	RootCommand.AddCommand(checkCommand)
}

func runCheck(params checkParams, args []string, stdout, stderr io.Writer) error {
	var m metrics.Metrics
	if params.metrics {
		m = metrics.New()
	}

	if err := checkModules(params, args, m); err != nil {
		outputErrors(stderr, params.format.String(), err)
		return newExitError(1)
	}

	if m != nil {
		return pr.JSON(stdout, m)
	}
	return nil
}
