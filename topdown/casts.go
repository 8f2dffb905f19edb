// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package topdown

import (
	"strings"

	"github.com/cockroachdb/apd/v3"

	"github.com/regolith-dev/regolith/ast"
	"github.com/regolith-dev/regolith/topdown/builtins"
)

func builtinToNumber(_ BuiltinContext, operands []*ast.Term, iter func(*ast.Term) error) error {
	switch a := operands[0].Value.(type) {
	case ast.Null:
		return iter(ast.IntNumberTerm(0))
	case ast.Boolean:
		if a {
			return iter(ast.IntNumberTerm(1))
		}
		return iter(ast.IntNumberTerm(0))
	case ast.Number:
		return iter(ast.NewTerm(a))
	case ast.String:
		s := strings.TrimSpace(string(a))
		d, _, err := apd.NewFromString(s)
		if err != nil || d.Form != apd.Finite {
			return builtins.NewOperandErr(1, "invalid syntax: %q", string(a))
		}
		return iter(ast.NewTerm(ast.DecimalNumber(d)))
	}
	return builtins.NewOperandTypeErr(1, operands[0].Value, "null", "boolean", "number", "string")
}

// builtinTypeCheck returns a predicate built-in that is true when the operand
// has the given type name and false otherwise.
func builtinTypeCheck(name string) BuiltinFunc {
	return func(_ BuiltinContext, operands []*ast.Term, iter func(*ast.Term) error) error {
		return iter(ast.BooleanTerm(ast.TypeName(operands[0].Value) == name))
	}
}

func builtinTypeName(_ BuiltinContext, operands []*ast.Term, iter func(*ast.Term) error) error {
	return iter(ast.StringTerm(ast.TypeName(operands[0].Value)))
}

func init() {
	RegisterBuiltinFunc(ast.ToNumber.Name, builtinToNumber)
	RegisterBuiltinFunc(ast.IsNumber.Name, builtinTypeCheck("number"))
	RegisterBuiltinFunc(ast.IsString.Name, builtinTypeCheck("string"))
	RegisterBuiltinFunc(ast.IsBoolean.Name, builtinTypeCheck("boolean"))
	RegisterBuiltinFunc(ast.IsArray.Name, builtinTypeCheck("array"))
	RegisterBuiltinFunc(ast.IsSet.Name, builtinTypeCheck("set"))
	RegisterBuiltinFunc(ast.IsObject.Name, builtinTypeCheck("object"))
	RegisterBuiltinFunc(ast.IsNull.Name, builtinTypeCheck("null"))
	RegisterBuiltinFunc(ast.TypeNameBuiltin.Name, builtinTypeName)
}
