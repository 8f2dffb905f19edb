// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package topdown

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/regolith-dev/regolith/ast"
	"github.com/regolith-dev/regolith/logging"
	"github.com/regolith-dev/regolith/metrics"
	"github.com/regolith-dev/regolith/topdown/builtins"
	"github.com/regolith-dev/regolith/topdown/print"
)

type (
	// BuiltinContext contains context from the evaluator that may be used by
	// built-in functions.
	BuiltinContext struct {
		Context   context.Context
		Metrics   metrics.Metrics
		Logger    logging.Logger
		Seed      io.Reader
		PrintHook print.Hook
		Cancel    Cancel
		Location  *ast.Location
		Cache     builtins.Cache
		QueryID   uint64
		ParentID  uint64
	}

	// BuiltinFunc defines an interface for implementing built-in functions.
	// The built-in function is called with the plugged operands from the call.
	// The implementation should evaluate the operands and invoke the iterator
	// for each successful/defined output value.
	BuiltinFunc func(bctx BuiltinContext, operands []*ast.Term, iter func(*ast.Term) error) error
)

// RegisterBuiltinFunc adds a new built-in function to the evaluation engine.
func RegisterBuiltinFunc(name string, f BuiltinFunc) {
	builtinFunctions[name] = builtinErrorWrapper(name, f)
}

// GetBuiltin returns a built-in function implementation, nil if no built-in found.
func GetBuiltin(name string) BuiltinFunc {
	return builtinFunctions[name]
}

var builtinFunctions = map[string]BuiltinFunc{}

func builtinErrorWrapper(name string, fn BuiltinFunc) BuiltinFunc {
	return func(bctx BuiltinContext, args []*ast.Term, iter func(*ast.Term) error) error {
		var iterErr error
		err := fn(bctx, args, func(t *ast.Term) error {
			iterErr = iter(t)
			return iterErr
		})
		if err == nil {
			return nil
		}
		// Errors raised by the continuation are not the built-in's own.
		if iterErr != nil && errors.Is(err, iterErr) {
			return err
		}
		return handleBuiltinErr(name, bctx.Location, err)
	}
}

func handleBuiltinErr(name string, loc *ast.Location, err error) error {
	var topdownErr *Error
	if errors.As(err, &topdownErr) {
		return err
	}
	var operandErr builtins.ErrOperand
	if errors.As(err, &operandErr) {
		e := &Error{
			Code:     TypeErr,
			Message:  fmt.Sprintf("%v: %v", name, operandErr.Error()),
			Location: loc,
		}
		return e.Wrap(err)
	}
	e := &Error{
		Code:     BuiltinErr,
		Message:  fmt.Sprintf("%v: %v", name, err.Error()),
		Location: loc,
	}
	return e.Wrap(err)
}
