// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package topdown

import (
	"errors"
	"math/big"

	"github.com/cockroachdb/apd/v3"

	"github.com/regolith-dev/regolith/ast"
	"github.com/regolith-dev/regolith/topdown/builtins"
)

type arithArity1 func(x *apd.Decimal) (*apd.Decimal, error)
type arithArity2 func(x, y *apd.Decimal) (*apd.Decimal, error)

var (
	errDivideByZero = errors.New("divide by zero")
	errModuloByZero = errors.New("modulo by zero")
	errModuloFloat  = errors.New("modulo on floating-point number")
)

func arithAdd(x, y *apd.Decimal) (*apd.Decimal, error) {
	var z apd.Decimal
	_, err := ast.DecimalContext.Add(&z, x, y)
	return &z, err
}

func arithSubtract(x, y *apd.Decimal) (*apd.Decimal, error) {
	var z apd.Decimal
	_, err := ast.DecimalContext.Sub(&z, x, y)
	return &z, err
}

func arithMultiply(x, y *apd.Decimal) (*apd.Decimal, error) {
	var z apd.Decimal
	_, err := ast.DecimalContext.Mul(&z, x, y)
	return &z, err
}

func arithDivide(x, y *apd.Decimal) (*apd.Decimal, error) {
	if y.IsZero() {
		return nil, errDivideByZero
	}
	var z apd.Decimal
	_, err := ast.DecimalContext.Quo(&z, x, y)
	return &z, err
}

func arithNegate(x *apd.Decimal) (*apd.Decimal, error) {
	var z apd.Decimal
	z.Neg(x)
	return &z, nil
}

func arithAbs(x *apd.Decimal) (*apd.Decimal, error) {
	var z apd.Decimal
	z.Abs(x)
	return &z, nil
}

// arithRoundWith returns a rounding function for the given mode. round uses
// half away from zero.
func arithRoundWith(mode apd.Rounder) arithArity1 {
	return func(x *apd.Decimal) (*apd.Decimal, error) {
		ctx := ast.DecimalContext.WithPrecision(ast.DecimalContext.Precision)
		ctx.Rounding = mode
		var z apd.Decimal
		_, err := ctx.RoundToIntegralValue(&z, x)
		return &z, err
	}
}

func builtinArithArity1(fn arithArity1) BuiltinFunc {
	return func(_ BuiltinContext, operands []*ast.Term, iter func(*ast.Term) error) error {
		n, err := builtins.DecimalOperand(operands[0].Value, 1)
		if err != nil {
			return err
		}
		r, err := fn(n)
		if err != nil {
			return err
		}
		return iter(ast.NewTerm(ast.DecimalNumber(r)))
	}
}

func builtinArithArity2(fn arithArity2) BuiltinFunc {
	return func(_ BuiltinContext, operands []*ast.Term, iter func(*ast.Term) error) error {
		n1, err := builtins.DecimalOperand(operands[0].Value, 1)
		if err != nil {
			return err
		}
		n2, err := builtins.DecimalOperand(operands[1].Value, 2)
		if err != nil {
			return err
		}
		r, err := fn(n1, n2)
		if err != nil {
			return err
		}
		return iter(ast.NewTerm(ast.DecimalNumber(r)))
	}
}

// builtinMinus subtracts numbers or computes the difference of two sets.
func builtinMinus(_ BuiltinContext, operands []*ast.Term, iter func(*ast.Term) error) error {

	n1, ok1 := operands[0].Value.(ast.Number)
	n2, ok2 := operands[1].Value.(ast.Number)

	if ok1 && ok2 {
		x, err := builtins.DecimalOperand(n1, 1)
		if err != nil {
			return err
		}
		y, err := builtins.DecimalOperand(n2, 2)
		if err != nil {
			return err
		}
		r, err := arithSubtract(x, y)
		if err != nil {
			return err
		}
		return iter(ast.NewTerm(ast.DecimalNumber(r)))
	}

	s1, ok3 := operands[0].Value.(ast.Set)
	s2, ok4 := operands[1].Value.(ast.Set)

	if ok3 && ok4 {
		return iter(ast.NewTerm(s1.Diff(s2)))
	}

	if !ok1 && !ok3 {
		return builtins.NewOperandTypeErr(1, operands[0].Value, "number", "set")
	}

	if ok2 {
		return builtins.NewOperandTypeErr(2, operands[1].Value, "set")
	}

	return builtins.NewOperandTypeErr(2, operands[1].Value, "number")
}

// builtinRem computes the remainder of integer division. The result has the
// sign of the dividend.
func builtinRem(_ BuiltinContext, operands []*ast.Term, iter func(*ast.Term) error) error {

	n1, err := builtins.NumberOperand(operands[0].Value, 1)
	if err != nil {
		return err
	}

	n2, err := builtins.NumberOperand(operands[1].Value, 2)
	if err != nil {
		return err
	}

	x, ok1 := n1.BigInt()
	y, ok2 := n2.BigInt()

	if !ok1 || !ok2 {
		return errModuloFloat
	}

	if y.Sign() == 0 {
		return errModuloByZero
	}

	return iter(ast.NewTerm(ast.BigIntNumber(new(big.Int).Rem(x, y))))
}

func init() {
	RegisterBuiltinFunc(ast.Plus.Name, builtinArithArity2(arithAdd))
	RegisterBuiltinFunc(ast.Minus.Name, builtinMinus)
	RegisterBuiltinFunc(ast.Multiply.Name, builtinArithArity2(arithMultiply))
	RegisterBuiltinFunc(ast.Divide.Name, builtinArithArity2(arithDivide))
	RegisterBuiltinFunc(ast.Rem.Name, builtinRem)
	RegisterBuiltinFunc(ast.UnaryMinus.Name, builtinArithArity1(arithNegate))
	RegisterBuiltinFunc(ast.Round.Name, builtinArithArity1(arithRoundWith(apd.RoundHalfUp)))
	RegisterBuiltinFunc(ast.Ceil.Name, builtinArithArity1(arithRoundWith(apd.RoundCeiling)))
	RegisterBuiltinFunc(ast.Floor.Name, builtinArithArity1(arithRoundWith(apd.RoundFloor)))
	RegisterBuiltinFunc(ast.Abs.Name, builtinArithArity1(arithAbs))
}
