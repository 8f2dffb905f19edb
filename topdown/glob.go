// Copyright 2020 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package topdown

import (
	"strings"

	"github.com/gobwas/glob"
	lru "github.com/hashicorp/golang-lru/v2"
	gintersect "github.com/yashtewari/glob-intersection"

	"github.com/regolith-dev/regolith/ast"
	"github.com/regolith-dev/regolith/topdown/builtins"
)

const globCacheMaxSize = 100

var globCache *lru.Cache[string, glob.Glob]

func builtinGlobMatch(_ BuiltinContext, operands []*ast.Term, iter func(*ast.Term) error) error {
	pattern, err := builtins.StringOperand(operands[0].Value, 1)
	if err != nil {
		return err
	}

	var delimiters []rune
	switch operands[1].Value.(type) {
	case ast.Null:
		delimiters = []rune{}
	case *ast.Array:
		strs, err := builtins.StringSliceOperand(operands[1].Value, 2)
		if err != nil {
			return err
		}
		for _, s := range strs {
			delimiters = append(delimiters, []rune(s)...)
		}
		if len(delimiters) == 0 {
			delimiters = []rune{'.'}
		}
	default:
		return builtins.NewOperandTypeErr(2, operands[1].Value, "array", "null")
	}

	match, err := builtins.StringOperand(operands[2].Value, 3)
	if err != nil {
		return err
	}

	g, err := globCompileAndCache(string(pattern), delimiters)
	if err != nil {
		return err
	}

	return iter(ast.BooleanTerm(g.Match(string(match))))
}

func globCompileAndCache(pattern string, delimiters []rune) (glob.Glob, error) {
	var sb strings.Builder
	sb.WriteString(pattern)
	sb.WriteByte(0)
	sb.WriteString(string(delimiters))
	id := sb.String()

	if g, ok := globCache.Get(id); ok {
		return g, nil
	}

	g, err := glob.Compile(pattern, delimiters...)
	if err != nil {
		return nil, err
	}

	globCache.Add(id, g)
	return g, nil
}

func builtinGlobIntersect(_ BuiltinContext, operands []*ast.Term, iter func(*ast.Term) error) error {
	g1, err := builtins.StringOperand(operands[0].Value, 1)
	if err != nil {
		return err
	}

	g2, err := builtins.StringOperand(operands[1].Value, 2)
	if err != nil {
		return err
	}

	ne, err := gintersect.NonEmpty(string(g1), string(g2))
	if err != nil {
		return err
	}

	return iter(ast.BooleanTerm(ne))
}

func init() {
	var err error
	globCache, err = lru.New[string, glob.Glob](globCacheMaxSize)
	if err != nil {
		panic(err)
	}
	RegisterBuiltinFunc(ast.GlobMatch.Name, builtinGlobMatch)
	RegisterBuiltinFunc(ast.GlobIntersect.Name, builtinGlobIntersect)
}
