// Copyright 2018 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/regolith-dev/regolith/ast"
	"github.com/regolith-dev/regolith/loader"
	pr "github.com/regolith-dev/regolith/presentation"
	"github.com/regolith-dev/regolith/util"
)

const (
	parseFormatPretty = "pretty"
	parseFormatJSON   = "json"
)

type parseParams struct {
	format *util.EnumFlag
}

var configuredParseParams = parseParams{
	format: util.NewEnumFlag(parseFormatPretty, []string{parseFormatPretty, parseFormatJSON}),
}

var parseCommand = &cobra.Command{
	Use:   "parse <path>",
	Short: "Parse Rego source file",
	Long:  `Parse Rego source file and print AST.`,
	PreRunE: func(_ *cobra.Command, args []string) error {
		if len(args) == 0 {
			return errors.New("no source file specified")
		}
		return nil
	},
	RunE: func(_ *cobra.Command, args []string) error {
		if code := parse(args, &configuredParseParams, os.Stdout, os.Stderr); code != 0 {
			return newExitError(code)
		}
		return nil
	},
}

func parse(args []string, params *parseParams, stdout io.Writer, stderr io.Writer) int {
	if len(args) == 0 {
		return 0
	}

	result, err := loader.Rego(args[0])
	if err != nil {
		_ = pr.JSON(stderr, pr.Output{Errors: pr.NewOutputErrors(err)})
		return 1
	}

	switch params.format.String() {
	case parseFormatJSON:
		bs, err := json.MarshalIndent(result.Parsed, "", "  ")
		if err != nil {
			_ = pr.JSON(stderr, pr.Output{Errors: pr.NewOutputErrors(err)})
			return 1
		}

		_, _ = fmt.Fprint(stdout, string(bs)+"\n")
	default:
		ast.Pretty(stdout, result.Parsed)
	}

	return 0
}

func init() {
	setOutputFormat(parseCommand.Flags(), configuredParseParams.format)
	RootCommand.AddCommand(parseCommand)
}
