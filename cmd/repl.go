// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package cmd

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	pr "github.com/regolith-dev/regolith/presentation"
	"github.com/regolith-dev/regolith/rego"
	"github.com/regolith-dev/regolith/repl"
	"github.com/regolith-dev/regolith/topdown"
	"github.com/regolith-dev/regolith/util"
	"github.com/regolith-dev/regolith/version"
)

const defaultHistoryFile = ".regolith_history"

type replCommandParams struct {
	historyPath  string
	outputFormat *util.EnumFlag
	ignore       []string
}

func newReplCommandParams() replCommandParams {
	return replCommandParams{
		outputFormat: util.NewEnumFlag(pr.PrettyFormat, []string{pr.PrettyFormat, pr.JSONFormat}),
	}
}

func init() {
	params := newReplCommandParams()

	replCommand := &cobra.Command{
		Use:   "repl [path [...]]",
		Short: "Start an interactive shell",
		Long: `Start an interactive shell for evaluating queries and defining rules.

Policy and data files below the given paths are loaded before the shell
starts. Rules entered in the shell are added to the current package.`,
		RunE: func(_ *cobra.Command, args []string) error {
			logger, err := rootParams.newLogger(os.Stderr)
			if err != nil {
				return err
			}

			loaded, err := loadPaths(args, params.ignore, nil)
			if err != nil {
				return newExitErrorWrap(1, err)
			}

			engine, err := newEngine(loaded,
				rego.Logger(logger),
				rego.PrintHook(topdown.NewPrintHook(os.Stdout)))
			if err != nil {
				return newExitErrorWrap(1, err)
			}

			banner := "Regolith " + version.Version + " (" + version.Platform + ")\nRun 'help' to see a list of commands."

			r := repl.New(engine, params.historyPath, os.Stdout, params.outputFormat.String(), banner).
				WithLogger(logger)
			r.Loop(context.Background())
			return nil
		},
	}

	replCommand.Flags().StringVarP(&params.historyPath, "history", "H", historyPath(), "set path of history file")
	replCommand.Flags().VarP(params.outputFormat, "format", "f", "set shell output format")
	setIgnore(replCommand.Flags(), &params.ignore)
	RootCommand.AddCommand(replCommand)
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return defaultHistoryFile
	}
	return filepath.Join(home, defaultHistoryFile)
}
