// Copyright 2022 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package env maps environment variables and configuration file entries onto
// command line flags that were not set explicitly.
package env

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type cmdFlags interface {
	CheckEnvironmentVariables(command *cobra.Command) error
	CheckConfigFile(command *cobra.Command, path string) error
}

type cmdFlagsImpl struct{}

var (
	CmdFlags           cmdFlags = cmdFlagsImpl{}
	errorMessagePrefix          = "error mapping environment variables to command flags"
	configErrorPrefix           = "error mapping configuration file to command flags"
)

const globalPrefix = "regolith"

// CheckEnvironmentVariables sets every flag of command that was not given on
// the command line from REGOLITH_<FLAG> (root command) or
// REGOLITH_<COMMAND>_<FLAG> (subcommands). Dashes in flag names become
// underscores.
func (cf cmdFlagsImpl) CheckEnvironmentVariables(command *cobra.Command) error {
	var errs []string
	v := viper.New()
	v.AutomaticEnv()
	if !command.HasParent() {
		v.SetEnvPrefix(globalPrefix)
	} else {
		v.SetEnvPrefix(fmt.Sprintf("%s_%s", globalPrefix, command.Name()))
	}
	command.Flags().VisitAll(func(f *pflag.Flag) {
		configName := f.Name
		configName = strings.ReplaceAll(configName, "-", "_")
		if !f.Changed && v.IsSet(configName) {
			val := v.Get(configName)
			err := command.Flags().Set(f.Name, fmt.Sprintf("%v", val))
			if err != nil {
				errs = append(errs, err.Error())
			}
		}
	})

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%s: %s", errorMessagePrefix, strings.Join(errs, "; "))
}

// CheckConfigFile sets every flag of command that is still unset from the
// configuration file at path. Root command flags are read from top level
// keys and subcommand flags from the section named after the subcommand:
//
//	log-level: debug
//	eval:
//	  format: pretty
//	  data: [policy/, data.json]
//
// An empty path is a no-op.
func (cf cmdFlagsImpl) CheckConfigFile(command *cobra.Command, path string) error {
	if path == "" {
		return nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("%s: %w", configErrorPrefix, err)
	}

	if command.HasParent() {
		v = v.Sub(command.Name())
		if v == nil {
			return nil
		}
	}

	var errs []string
	command.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed || !v.IsSet(f.Name) {
			return
		}
		var vals []interface{}
		switch x := v.Get(f.Name).(type) {
		case []interface{}:
			vals = x
		default:
			vals = []interface{}{x}
		}
		for _, val := range vals {
			if err := command.Flags().Set(f.Name, fmt.Sprintf("%v", val)); err != nil {
				errs = append(errs, err.Error())
			}
		}
	})

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%s: %s", configErrorPrefix, strings.Join(errs, "; "))
}
