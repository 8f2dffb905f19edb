// Copyright 2017 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package topdown

import (
	"errors"
	"fmt"

	"github.com/regolith-dev/regolith/ast"
)

// Error is the error type returned by the Eval and Query functions when
// an evaluation error occurs.
type Error struct {
	Code     string        `json:"code"`
	Message  string        `json:"message"`
	Location *ast.Location `json:"location,omitempty"`
	err      error         `json:"-"`
}

const (

	// InternalErr represents an unknown evaluation error.
	InternalErr string = "eval_internal_error"

	// CancelErr indicates the evaluation process was cancelled.
	CancelErr string = "eval_cancel_error"

	// ConflictErr indicates a conflict was encountered during evaluation. For
	// instance, a conflict occurs if a rule produces multiple, differing values
	// for the same key in an object. Conflict errors indicate the policy does
	// not account for the data loaded into the policy engine.
	ConflictErr string = "eval_conflict_error"

	// TypeErr indicates evaluation stopped because an expression was applied to
	// a value of an inappropriate type.
	TypeErr string = "eval_type_error"

	// BuiltinErr indicates a built-in function received a semantically invalid
	// input or encountered some kind of runtime error, e.g., division by zero.
	BuiltinErr string = "eval_builtin_error"

	// RecursionErr indicates a rule was entered while it was being evaluated.
	RecursionErr string = "eval_recursion_error"
)

// IsError returns true if the err is an Error.
func IsError(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

// IsCancel returns true if err was caused by cancellation.
func IsCancel(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == CancelErr
}

func (e *Error) Error() string {

	msg := fmt.Sprintf("%v: %v", e.Code, e.Message)

	if e.Location != nil {
		msg = e.Location.String() + ": " + msg
	}

	return msg
}

// Wrap records err as the cause of e.
func (e *Error) Wrap(err error) *Error {
	e.err = err
	return e
}

func (e *Error) Unwrap() error {
	return e.err
}

func completeDocConflictErr(loc *ast.Location) error {
	return &Error{
		Code:     ConflictErr,
		Location: loc,
		Message:  "complete rules must not produce multiple outputs",
	}
}

func functionConflictErr(loc *ast.Location) error {
	return &Error{
		Code:     ConflictErr,
		Location: loc,
		Message:  "functions must not produce multiple outputs for same inputs",
	}
}

func objectDocKeyConflictErr(loc *ast.Location) error {
	return &Error{
		Code:     ConflictErr,
		Location: loc,
		Message:  "object keys must be unique",
	}
}

func invalidIterableErr(loc *ast.Location, v ast.Value) error {
	return &Error{
		Code:     TypeErr,
		Location: loc,
		Message:  fmt.Sprintf("`some .. in collection` expects array/set/object, got %v", ast.TypeName(v)),
	}
}

func arityErr(loc *ast.Location, name string, want, got int) error {
	return &Error{
		Code:     TypeErr,
		Location: loc,
		Message:  fmt.Sprintf("%v: arity mismatch: expected %d arguments, got %d", name, want, got),
	}
}

func recursionErr(loc *ast.Location, path ast.Ref) error {
	return &Error{
		Code:     RecursionErr,
		Location: loc,
		Message:  fmt.Sprintf("rule %v is recursive", path),
	}
}

func unsupportedBuiltinErr(loc *ast.Location, name string) error {
	return &Error{
		Code:     InternalErr,
		Location: loc,
		Message:  fmt.Sprintf("unsupported built-in %v", name),
	}
}

func withTargetErr(loc *ast.Location, target *ast.Term) error {
	return &Error{
		Code:     TypeErr,
		Location: loc,
		Message:  fmt.Sprintf("with target %v must be a ref into input or data", target),
	}
}

func cancelledErr(loc *ast.Location) error {
	return &Error{
		Code:     CancelErr,
		Location: loc,
		Message:  "caller cancelled query execution",
	}
}
