// Copyright 2021 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package topdown

import (
	"github.com/regolith-dev/regolith/ast"
)

// builtinMember is true when the first operand is a value of the collection
// in the second operand. Object membership checks values, not keys.
func builtinMember(_ BuiltinContext, operands []*ast.Term, iter func(*ast.Term) error) error {
	containee := operands[0]
	switch c := operands[1].Value.(type) {
	case ast.Set:
		return iter(ast.BooleanTerm(c.Contains(containee)))
	case *ast.Array:
		found := c.Until(func(v *ast.Term) bool {
			return v.Value.Compare(containee.Value) == 0
		})
		return iter(ast.BooleanTerm(found))
	case ast.Object:
		found := c.Until(func(_, v *ast.Term) bool {
			return v.Value.Compare(containee.Value) == 0
		})
		return iter(ast.BooleanTerm(found))
	}
	return iter(ast.BooleanTerm(false))
}

// builtinMemberWithKey is true when the collection holds the value at the key.
func builtinMemberWithKey(_ BuiltinContext, operands []*ast.Term, iter func(*ast.Term) error) error {
	key, val := operands[0], operands[1]
	switch c := operands[2].Value.(type) {
	case *ast.Array, ast.Object:
		var v *ast.Term
		if arr, ok := c.(*ast.Array); ok {
			v = arr.Get(key)
		} else {
			v = c.(ast.Object).Get(key)
		}
		return iter(ast.BooleanTerm(v != nil && v.Value.Compare(val.Value) == 0))
	case ast.Set:
		return iter(ast.BooleanTerm(key.Equal(val) && c.Contains(key)))
	}
	return iter(ast.BooleanTerm(false))
}

func init() {
	RegisterBuiltinFunc(ast.Member.Name, builtinMember)
	RegisterBuiltinFunc(ast.MemberWithKey.Name, builtinMemberWithKey)
}
