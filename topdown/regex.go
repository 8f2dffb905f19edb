// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package topdown

import (
	"regexp"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/regolith-dev/regolith/ast"
	"github.com/regolith-dev/regolith/topdown/builtins"
)

const regexCacheMaxSize = 100

var regexpCache *lru.Cache[string, *regexp.Regexp]

func builtinRegexMatch(_ BuiltinContext, operands []*ast.Term, iter func(*ast.Term) error) error {
	s1, err := builtins.StringOperand(operands[0].Value, 1)
	if err != nil {
		return err
	}
	s2, err := builtins.StringOperand(operands[1].Value, 2)
	if err != nil {
		return err
	}
	re, err := getRegexp(string(s1))
	if err != nil {
		return err
	}
	return iter(ast.BooleanTerm(re.MatchString(string(s2))))
}

func getRegexp(pat string) (*regexp.Regexp, error) {
	if re, ok := regexpCache.Get(pat); ok {
		return re, nil
	}
	re, err := regexp.Compile(pat)
	if err != nil {
		return nil, err
	}
	regexpCache.Add(pat, re)
	return re, nil
}

func init() {
	var err error
	regexpCache, err = lru.New[string, *regexp.Regexp](regexCacheMaxSize)
	if err != nil {
		panic(err)
	}
	RegisterBuiltinFunc(ast.RegexMatch.Name, builtinRegexMatch)
}
