// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/regolith-dev/regolith/cmd"
)

func main() {
	if err := cmd.RootCommand.Execute(); err != nil {
		var exit *cmd.ExitError
		if errors.As(err, &exit) {
			if exit.Unwrap() != nil {
				fmt.Fprintln(os.Stderr, exit.Unwrap())
			}
			os.Exit(exit.Exit)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
