// Copyright 2020 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package topdown

import (
	"github.com/regolith-dev/regolith/ast"
	"github.com/regolith-dev/regolith/topdown/builtins"
)

// builtinNumbersRange returns the integers from a to b inclusive, descending
// when b is less than a.
func builtinNumbersRange(bctx BuiltinContext, operands []*ast.Term, iter func(*ast.Term) error) error {

	a, err := builtins.IntOperand(operands[0].Value, 1)
	if err != nil {
		return err
	}

	b, err := builtins.IntOperand(operands[1].Value, 2)
	if err != nil {
		return err
	}

	step := 1
	if b < a {
		step = -1
	}

	n := (b-a)*step + 1
	result := make([]*ast.Term, 0, n)

	for i := a; ; i += step {
		if len(result)%1000 == 0 && bctx.Cancel != nil && bctx.Cancel.Cancelled() {
			return &Error{Code: CancelErr, Message: "numbers.range: timed out before generating all numbers in range"}
		}
		result = append(result, ast.IntNumberTerm(i))
		if i == b {
			break
		}
	}

	return iter(ast.ArrayTerm(result...))
}

func init() {
	RegisterBuiltinFunc(ast.NumbersRange.Name, builtinNumbersRange)
}
