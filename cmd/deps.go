// Copyright 2018 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package cmd

import (
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/regolith-dev/regolith/presentation"
	"github.com/regolith-dev/regolith/util"
)

type depsCommandParams struct {
	dataPaths repeatedStringFlag
	format    *util.EnumFlag
	ignore    []string
}

const (
	depsFormatPretty = "pretty"
	depsFormatJSON   = "json"
)

func newDepsCommandParams() depsCommandParams {
	return depsCommandParams{
		format: util.NewEnumFlag(depsFormatPretty, []string{
			depsFormatPretty, depsFormatJSON,
		}),
	}
}

func init() {

	params := newDepsCommandParams()

	depsCommand := &cobra.Command{
		Use:   "deps <rule>",
		Short: "Print the evaluation order of a rule",
		Long: `Print the rules a rule depends on, directly or transitively, in the
order they are evaluated. The rule itself comes last.

Example
-------

	$ regolith deps -d policy.rego data.authz.allow
`,
		PreRunE: func(_ *cobra.Command, args []string) error {
			if len(args) != 1 {
				return errors.New("specify exactly one rule argument")
			}
			return nil
		},
		RunE: func(_ *cobra.Command, args []string) error {
			if err := deps(args, params, os.Stdout); err != nil {
				return newExitErrorWrap(1, err)
			}
			return nil
		},
	}

	setOutputFormat(depsCommand.Flags(), params.format)
	setDataPaths(depsCommand.Flags(), &params.dataPaths)
	setIgnore(depsCommand.Flags(), &params.ignore)

	RootCommand.AddCommand(depsCommand)
}

func deps(args []string, params depsCommandParams, w io.Writer) error {

	loaded, err := loadPaths(params.dataPaths.v, params.ignore, nil)
	if err != nil {
		return err
	}

	engine, err := newEngine(loaded)
	if err != nil {
		return err
	}

	order, err := engine.RuleOrder(args[0])
	if err != nil {
		return err
	}

	output := presentation.DepsOutput{
		Rule:  args[0],
		Order: order,
	}

	switch params.format.String() {
	case depsFormatJSON:
		return output.JSON(w)
	default:
		return output.Pretty(w)
	}
}
