// Copyright 2020 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package topdown

import (
	"github.com/regolith-dev/regolith/ast"
	"github.com/regolith-dev/regolith/topdown/builtins"
)

// builtinObjectGet returns the value at the key, or at the path when the key
// is an array, falling back to the default when nothing is found.
func builtinObjectGet(_ BuiltinContext, operands []*ast.Term, iter func(*ast.Term) error) error {
	object, err := builtins.ObjectOperand(operands[0].Value, 1)
	if err != nil {
		return err
	}

	path, ok := operands[1].Value.(*ast.Array)
	if !ok {
		if ret := object.Get(operands[1]); ret != nil {
			return iter(ret)
		}
		return iter(operands[2])
	}

	if path.Len() == 0 {
		return iter(operands[0])
	}

	var value ast.Value = object
	for i := 0; i < path.Len(); i++ {
		next, ok := objectPathStep(value, path.Elem(i))
		if !ok {
			return iter(operands[2])
		}
		value = next
	}

	return iter(ast.NewTerm(value))
}

func objectPathStep(x ast.Value, key *ast.Term) (ast.Value, bool) {
	switch x := x.(type) {
	case ast.Object:
		if v := x.Get(key); v != nil {
			return v.Value, true
		}
	case *ast.Array:
		if v := x.Get(key); v != nil {
			return v.Value, true
		}
	case ast.Set:
		if x.Contains(key) {
			return key.Value, true
		}
	}
	return nil, false
}

func builtinObjectKeys(_ BuiltinContext, operands []*ast.Term, iter func(*ast.Term) error) error {
	object, err := builtins.ObjectOperand(operands[0].Value, 1)
	if err != nil {
		return err
	}
	return iter(ast.SetTerm(object.Keys()...))
}

func builtinArrayConcat(_ BuiltinContext, operands []*ast.Term, iter func(*ast.Term) error) error {
	arrA, err := builtins.ArrayOperand(operands[0].Value, 1)
	if err != nil {
		return err
	}

	arrB, err := builtins.ArrayOperand(operands[1].Value, 2)
	if err != nil {
		return err
	}

	arrC := make([]*ast.Term, 0, arrA.Len()+arrB.Len())
	arrA.Foreach(func(t *ast.Term) { arrC = append(arrC, t) })
	arrB.Foreach(func(t *ast.Term) { arrC = append(arrC, t) })

	return iter(ast.ArrayTerm(arrC...))
}

// builtinArraySlice clamps both indices to the bounds of the array. An empty
// array results when start is not less than stop.
func builtinArraySlice(_ BuiltinContext, operands []*ast.Term, iter func(*ast.Term) error) error {
	arr, err := builtins.ArrayOperand(operands[0].Value, 1)
	if err != nil {
		return err
	}

	startIndex, err := builtins.IntOperand(operands[1].Value, 2)
	if err != nil {
		return err
	}

	stopIndex, err := builtins.IntOperand(operands[2].Value, 3)
	if err != nil {
		return err
	}

	if startIndex < 0 {
		startIndex = 0
	}

	if stopIndex > arr.Len() {
		stopIndex = arr.Len()
	}

	if startIndex >= stopIndex {
		return iter(ast.ArrayTerm())
	}

	return iter(ast.NewTerm(arr.Slice(startIndex, stopIndex)))
}

func init() {
	RegisterBuiltinFunc(ast.ObjectGet.Name, builtinObjectGet)
	RegisterBuiltinFunc(ast.ObjectKeys.Name, builtinObjectKeys)
	RegisterBuiltinFunc(ast.ArrayConcat.Name, builtinArrayConcat)
	RegisterBuiltinFunc(ast.ArraySlice.Name, builtinArraySlice)
}
