// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package topdown

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/apd/v3"

	"github.com/regolith-dev/regolith/ast"
	"github.com/regolith-dev/regolith/topdown/builtins"
)

func builtinFormatInt(_ BuiltinContext, operands []*ast.Term, iter func(*ast.Term) error) error {

	d, err := builtins.DecimalOperand(operands[0].Value, 1)
	if err != nil {
		return err
	}

	base, err := builtins.NumberOperand(operands[1].Value, 2)
	if err != nil {
		return err
	}

	var format string
	switch base {
	case ast.Number("2"):
		format = "%b"
	case ast.Number("8"):
		format = "%o"
	case ast.Number("10"):
		format = "%d"
	case ast.Number("16"):
		format = "%x"
	default:
		return builtins.NewOperandEnumErr(2, "2", "8", "10", "16")
	}

	floored, err := arithRoundWith(apd.RoundFloor)(d)
	if err != nil {
		return err
	}

	i, ok := new(big.Int).SetString(floored.Text('f'), 10)
	if !ok {
		return fmt.Errorf("cannot format %v", operands[0])
	}

	return iter(ast.StringTerm(fmt.Sprintf(format, i)))
}

func builtinConcat(_ BuiltinContext, operands []*ast.Term, iter func(*ast.Term) error) error {

	join, err := builtins.StringOperand(operands[0].Value, 1)
	if err != nil {
		return err
	}

	strs, err := builtins.StringSliceOperand(operands[1].Value, 2)
	if err != nil {
		return err
	}

	return iter(ast.StringTerm(strings.Join(strs, string(join))))
}

// runeIndex returns the number of runes before the byte offset i of s.
func runeIndex(s string, i int) int {
	return utf8.RuneCountInString(s[:i])
}

func builtinIndexOf(_ BuiltinContext, operands []*ast.Term, iter func(*ast.Term) error) error {

	base, err := builtins.StringOperand(operands[0].Value, 1)
	if err != nil {
		return err
	}

	search, err := builtins.StringOperand(operands[1].Value, 2)
	if err != nil {
		return err
	}

	if len(search) == 0 {
		return errors.New("empty search character")
	}

	i := strings.Index(string(base), string(search))
	if i < 0 {
		return iter(ast.IntNumberTerm(-1))
	}

	return iter(ast.IntNumberTerm(runeIndex(string(base), i)))
}

func builtinSubstring(_ BuiltinContext, operands []*ast.Term, iter func(*ast.Term) error) error {

	runes, err := builtins.RuneSliceOperand(operands[0].Value, 1)
	if err != nil {
		return err
	}

	startIndex, err := builtins.IntOperand(operands[1].Value, 2)
	if err != nil {
		return err
	} else if startIndex < 0 {
		return errors.New("negative offset")
	}

	length, err := builtins.IntOperand(operands[2].Value, 3)
	if err != nil {
		return err
	}

	if startIndex >= len(runes) {
		return iter(ast.StringTerm(""))
	}

	if length < 0 || startIndex+length > len(runes) {
		return iter(ast.StringTerm(string(runes[startIndex:])))
	}

	return iter(ast.StringTerm(string(runes[startIndex : startIndex+length])))
}

// builtinStringPredicate returns a built-in that applies f to two string
// operands.
func builtinStringPredicate(f func(s, x string) bool) BuiltinFunc {
	return func(_ BuiltinContext, operands []*ast.Term, iter func(*ast.Term) error) error {
		s, err := builtins.StringOperand(operands[0].Value, 1)
		if err != nil {
			return err
		}
		x, err := builtins.StringOperand(operands[1].Value, 2)
		if err != nil {
			return err
		}
		return iter(ast.BooleanTerm(f(string(s), string(x))))
	}
}

// builtinStringMap returns a built-in that transforms a single string.
func builtinStringMap(f func(string) string) BuiltinFunc {
	return func(_ BuiltinContext, operands []*ast.Term, iter func(*ast.Term) error) error {
		s, err := builtins.StringOperand(operands[0].Value, 1)
		if err != nil {
			return err
		}
		return iter(ast.StringTerm(f(string(s))))
	}
}

func builtinSplit(_ BuiltinContext, operands []*ast.Term, iter func(*ast.Term) error) error {

	s, err := builtins.StringOperand(operands[0].Value, 1)
	if err != nil {
		return err
	}

	d, err := builtins.StringOperand(operands[1].Value, 2)
	if err != nil {
		return err
	}

	elems := strings.Split(string(s), string(d))
	arr := make([]*ast.Term, len(elems))
	for i := range elems {
		arr[i] = ast.StringTerm(elems[i])
	}

	return iter(ast.ArrayTerm(arr...))
}

func builtinReplace(_ BuiltinContext, operands []*ast.Term, iter func(*ast.Term) error) error {

	s, err := builtins.StringOperand(operands[0].Value, 1)
	if err != nil {
		return err
	}

	old, err := builtins.StringOperand(operands[1].Value, 2)
	if err != nil {
		return err
	}

	n, err := builtins.StringOperand(operands[2].Value, 3)
	if err != nil {
		return err
	}

	return iter(ast.StringTerm(strings.ReplaceAll(string(s), string(old), string(n))))
}

func builtinTrim(_ BuiltinContext, operands []*ast.Term, iter func(*ast.Term) error) error {

	s, err := builtins.StringOperand(operands[0].Value, 1)
	if err != nil {
		return err
	}

	c, err := builtins.StringOperand(operands[1].Value, 2)
	if err != nil {
		return err
	}

	return iter(ast.StringTerm(strings.Trim(string(s), string(c))))
}

func builtinSprintf(_ BuiltinContext, operands []*ast.Term, iter func(*ast.Term) error) error {

	s, err := builtins.StringOperand(operands[0].Value, 1)
	if err != nil {
		return err
	}

	astArr, ok := operands[1].Value.(*ast.Array)
	if !ok {
		return builtins.NewOperandTypeErr(2, operands[1].Value, "array")
	}

	args := make([]interface{}, astArr.Len())

	for i := range args {
		switch v := astArr.Elem(i).Value.(type) {
		case ast.Number:
			if n, ok := v.Int(); ok {
				args[i] = n
			} else if b, ok := new(big.Int).SetString(v.String(), 10); ok {
				args[i] = b
			} else if f, ok := v.Float64(); ok {
				args[i] = f
			} else {
				args[i] = v.String()
			}
		case ast.String:
			args[i] = string(v)
		default:
			args[i] = astArr.Elem(i).String()
		}
	}

	return iter(ast.StringTerm(fmt.Sprintf(string(s), args...)))
}

func init() {
	RegisterBuiltinFunc(ast.FormatInt.Name, builtinFormatInt)
	RegisterBuiltinFunc(ast.Concat.Name, builtinConcat)
	RegisterBuiltinFunc(ast.IndexOf.Name, builtinIndexOf)
	RegisterBuiltinFunc(ast.Substring.Name, builtinSubstring)
	RegisterBuiltinFunc(ast.Contains.Name, builtinStringPredicate(strings.Contains))
	RegisterBuiltinFunc(ast.StartsWith.Name, builtinStringPredicate(strings.HasPrefix))
	RegisterBuiltinFunc(ast.EndsWith.Name, builtinStringPredicate(strings.HasSuffix))
	RegisterBuiltinFunc(ast.Lower.Name, builtinStringMap(strings.ToLower))
	RegisterBuiltinFunc(ast.Upper.Name, builtinStringMap(strings.ToUpper))
	RegisterBuiltinFunc(ast.Split.Name, builtinSplit)
	RegisterBuiltinFunc(ast.Replace.Name, builtinReplace)
	RegisterBuiltinFunc(ast.Trim.Name, builtinTrim)
	RegisterBuiltinFunc(ast.TrimSpace.Name, builtinStringMap(strings.TrimSpace))
	RegisterBuiltinFunc(ast.Sprintf.Name, builtinSprintf)
}
