// Copyright 2021 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package print defines the hook that receives the output of print calls
// made during evaluation.
package print

import (
	"context"

	"github.com/regolith-dev/regolith/ast"
)

// Context provides the Hook implementation context about the print() call.
type Context struct {
	Context  context.Context
	Location *ast.Location
}

// Hook defines the interface that callers can implement to receive print
// statement outputs. Errors returned by the hook halt evaluation.
type Hook interface {
	Print(Context, string) error
}
