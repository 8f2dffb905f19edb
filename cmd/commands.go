// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package cmd

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/regolith-dev/regolith/cmd/internal/env"
	internal_logging "github.com/regolith-dev/regolith/internal/logging"
	"github.com/regolith-dev/regolith/logging"
	"github.com/regolith-dev/regolith/util"
)

type rootCommandParams struct {
	logLevel   *util.EnumFlag
	logFormat  *util.EnumFlag
	configFile string
}

func newRootCommandParams() rootCommandParams {
	return rootCommandParams{
		logLevel:  util.NewEnumFlag("info", []string{"debug", "info", "warn", "error"}),
		logFormat: util.NewEnumFlag("text", []string{"text", "json", "json-pretty"}),
	}
}

// newLogger returns a logger writing to w configured by the root flags.
func (p rootCommandParams) newLogger(w io.Writer) (logging.Logger, error) {
	logger, err := internal_logging.NewLogger(w, p.logLevel.String(), p.logFormat.String())
	if err != nil {
		return nil, err
	}
	return logger, nil
}

var rootParams = newRootCommandParams()

// RootCommand is the base CLI command that all subcommands are added to.
var RootCommand = &cobra.Command{
	Use:   "regolith",
	Short: "Regolith policy interpreter",
	Long:  "Evaluate Rego policies against JSON and YAML documents.",

	// Commands print their own errors and report failures via ExitError.
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return applyDefaults(cmd)
	},
}

// applyDefaults sets the flags of cmd and the root command that were not
// given on the command line from the environment and then from the
// configuration file.
func applyDefaults(cmd *cobra.Command) error {
	cmds := []*cobra.Command{cmd.Root()}
	if cmd != cmd.Root() {
		cmds = append(cmds, cmd)
	}
	for _, c := range cmds {
		if err := env.CmdFlags.CheckEnvironmentVariables(c); err != nil {
			return err
		}
	}
	for _, c := range cmds {
		if err := env.CmdFlags.CheckConfigFile(c, rootParams.configFile); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	RootCommand.PersistentFlags().Var(rootParams.logLevel, "log-level", "set log level")
	RootCommand.PersistentFlags().Var(rootParams.logFormat, "log-format", "set log format")
	RootCommand.PersistentFlags().StringVarP(&rootParams.configFile, "config-file", "c", "", "set path of configuration file")
}
