// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package topdown

import (
	"unicode/utf8"

	"github.com/cockroachdb/apd/v3"

	"github.com/regolith-dev/regolith/ast"
	"github.com/regolith-dev/regolith/topdown/builtins"
)

func builtinCount(_ BuiltinContext, operands []*ast.Term, iter func(*ast.Term) error) error {
	switch a := operands[0].Value.(type) {
	case *ast.Array:
		return iter(ast.IntNumberTerm(a.Len()))
	case ast.Object:
		return iter(ast.IntNumberTerm(a.Len()))
	case ast.Set:
		return iter(ast.IntNumberTerm(a.Len()))
	case ast.String:
		return iter(ast.IntNumberTerm(utf8.RuneCountInString(string(a))))
	}
	return builtins.NewOperandTypeErr(1, operands[0].Value, "array", "object", "set", "string")
}

// numbersOperand returns the numbers contained in an array or set.
func numbersOperand(x ast.Value, pos int) ([]*apd.Decimal, error) {
	elems, err := builtins.CollectionOperand(x, pos)
	if err != nil {
		return nil, err
	}
	result := make([]*apd.Decimal, len(elems))
	for i, elem := range elems {
		n, ok := elem.Value.(ast.Number)
		if !ok {
			return nil, builtins.NewOperandElementErr(pos, x, elem.Value, "number")
		}
		d, err := builtins.DecimalOperand(n, pos)
		if err != nil {
			return nil, err
		}
		result[i] = d
	}
	return result, nil
}

func builtinSum(_ BuiltinContext, operands []*ast.Term, iter func(*ast.Term) error) error {
	nums, err := numbersOperand(operands[0].Value, 1)
	if err != nil {
		return err
	}
	sum := apd.New(0, 0)
	for _, n := range nums {
		if sum, err = arithAdd(sum, n); err != nil {
			return err
		}
	}
	return iter(ast.NewTerm(ast.DecimalNumber(sum)))
}

func builtinProduct(_ BuiltinContext, operands []*ast.Term, iter func(*ast.Term) error) error {
	nums, err := numbersOperand(operands[0].Value, 1)
	if err != nil {
		return err
	}
	product := apd.New(1, 0)
	for _, n := range nums {
		if product, err = arithMultiply(product, n); err != nil {
			return err
		}
	}
	return iter(ast.NewTerm(ast.DecimalNumber(product)))
}

// builtinExtreme returns max or min over the elements of an array or set.
// The result is undefined for empty collections.
func builtinExtreme(sign int) BuiltinFunc {
	return func(_ BuiltinContext, operands []*ast.Term, iter func(*ast.Term) error) error {
		elems, err := builtins.CollectionOperand(operands[0].Value, 1)
		if err != nil {
			return err
		}
		if len(elems) == 0 {
			return nil
		}
		result := elems[0]
		for _, elem := range elems[1:] {
			if ast.Compare(elem.Value, result.Value)*sign > 0 {
				result = elem
			}
		}
		return iter(result)
	}
}

func builtinSort(_ BuiltinContext, operands []*ast.Term, iter func(*ast.Term) error) error {
	switch a := operands[0].Value.(type) {
	case *ast.Array:
		return iter(ast.NewTerm(a.Sorted()))
	case ast.Set:
		return iter(ast.NewTerm(a.Sorted()))
	}
	return builtins.NewOperandTypeErr(1, operands[0].Value, "array", "set")
}

func builtinAll(_ BuiltinContext, operands []*ast.Term, iter func(*ast.Term) error) error {
	elems, err := builtins.CollectionOperand(operands[0].Value, 1)
	if err != nil {
		return err
	}
	for _, elem := range elems {
		if !ast.BooleanTerm(true).Equal(elem) {
			return iter(ast.BooleanTerm(false))
		}
	}
	return iter(ast.BooleanTerm(true))
}

func builtinAny(_ BuiltinContext, operands []*ast.Term, iter func(*ast.Term) error) error {
	elems, err := builtins.CollectionOperand(operands[0].Value, 1)
	if err != nil {
		return err
	}
	for _, elem := range elems {
		if ast.BooleanTerm(true).Equal(elem) {
			return iter(ast.BooleanTerm(true))
		}
	}
	return iter(ast.BooleanTerm(false))
}

func init() {
	RegisterBuiltinFunc(ast.Count.Name, builtinCount)
	RegisterBuiltinFunc(ast.Sum.Name, builtinSum)
	RegisterBuiltinFunc(ast.Product.Name, builtinProduct)
	RegisterBuiltinFunc(ast.Max.Name, builtinExtreme(1))
	RegisterBuiltinFunc(ast.Min.Name, builtinExtreme(-1))
	RegisterBuiltinFunc(ast.Sort.Name, builtinSort)
	RegisterBuiltinFunc(ast.All.Name, builtinAll)
	RegisterBuiltinFunc(ast.Any.Name, builtinAny)
}
