// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// This file contains extra functions for parsing policy source text.

package ast

import (
	"fmt"

	"github.com/regolith-dev/regolith/ast/internal/tokens"
)

// MustParseBody returns a parsed body.
// If an error occurs during parsing, panic.
func MustParseBody(input string) Body {
	parsed, err := ParseBody(input)
	if err != nil {
		panic(err)
	}
	return parsed
}

// MustParseExpr returns a parsed expression.
// If an error occurs during parsing, panic.
func MustParseExpr(input string) *Expr {
	parsed, err := ParseExpr(input)
	if err != nil {
		panic(err)
	}
	return parsed
}

// MustParseModule returns a parsed module.
// If an error occurs during parsing, panic.
func MustParseModule(input string) *Module {
	parsed, err := ParseModule("", input)
	if err != nil {
		panic(err)
	}
	return parsed
}

// MustParseRef returns a parsed reference.
// If an error occurs during parsing, panic.
func MustParseRef(input string) Ref {
	parsed, err := ParseRef(input)
	if err != nil {
		panic(err)
	}
	return parsed
}

// MustParseRule returns a parsed rule.
// If an error occurs during parsing, panic.
func MustParseRule(input string) *Rule {
	parsed, err := ParseRule(input)
	if err != nil {
		panic(err)
	}
	return parsed
}

// MustParseTerm returns a parsed term.
// If an error occurs during parsing, panic.
func MustParseTerm(input string) *Term {
	parsed, err := ParseTerm(input)
	if err != nil {
		panic(err)
	}
	return parsed
}

// ParseModule returns a parsed Module object.
// For details on Module objects and their fields, see policy.go.
// Empty input will return nil, nil.
func ParseModule(filename, input string) (*Module, error) {
	stmts, err := NewParser().WithFilename(filename).WithReader([]byte(input)).Parse()
	if err != nil {
		return nil, err
	}
	return parseModule(stmts)
}

// ParseStatements returns a slice of parsed statements. Unlike ParseModule,
// free-standing queries are accepted. This is used by the interactive shell.
func ParseStatements(filename, input string) ([]Statement, error) {
	return NewParser().WithFilename(filename).WithReader([]byte(input)).WithStatements(true).Parse()
}

// ParseBody returns exactly one body.
// If multiple bodies are parsed, an error is returned.
func ParseBody(input string) (Body, error) {
	p := NewParser().WithReader([]byte(input))
	p.scan()

	if p.s.tok == tokens.EOF {
		return nil, Errors{NewError(ParseErr, p.s.Loc(), "empty query")}
	}

	body := p.parseQuery(tokens.EOF, false)
	if body != nil && p.s.tok != tokens.EOF {
		p.illegalToken()
	}

	if len(p.errors) > 0 {
		return nil, p.errors
	}

	return body, nil
}

// ParseQuery is an alias for ParseBody.
func ParseQuery(input string) (Body, error) {
	return ParseBody(input)
}

// ParseExpr returns exactly one expression.
// If multiple expressions are parsed, an error is returned.
func ParseExpr(input string) (*Expr, error) {
	body, err := ParseBody(input)
	if err != nil {
		return nil, fmt.Errorf("failed to parse expression: %w", err)
	}
	if len(body) != 1 {
		return nil, fmt.Errorf("expected exactly one expression but got: %v", body)
	}
	return body[0], nil
}

// ParseTerm returns exactly one term.
// If multiple terms are parsed, an error is returned.
func ParseTerm(input string) (*Term, error) {
	p := NewParser().WithReader([]byte(input))
	p.scan()

	term := p.parseTermIn()
	if term != nil && p.s.tok != tokens.EOF {
		p.illegal("expected end of input")
	}

	if len(p.errors) > 0 {
		return nil, p.errors
	}

	return term, nil
}

// ParseRef returns exactly one reference.
func ParseRef(input string) (Ref, error) {
	term, err := ParseTerm(input)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ref: %w", err)
	}
	switch v := term.Value.(type) {
	case Ref:
		return v, nil
	case Var:
		return Ref{term}, nil
	}
	return nil, fmt.Errorf("expected ref but got %v", term)
}

// ParseRule returns exactly one rule.
// If multiple rules are parsed, an error is returned.
func ParseRule(input string) (*Rule, error) {
	stmts, err := NewParser().WithReader([]byte(input)).Parse()
	if err != nil {
		return nil, err
	}
	if len(stmts) != 1 {
		return nil, fmt.Errorf("expected exactly one statement (rule) but got %d", len(stmts))
	}
	rule, ok := stmts[0].(*Rule)
	if !ok {
		return nil, fmt.Errorf("expected rule but got %T", stmts[0])
	}
	return rule, nil
}

func parseModule(stmts []Statement) (*Module, error) {

	if len(stmts) == 0 {
		return nil, nil
	}

	var errs Errors

	pkg, ok := stmts[0].(*Package)
	if !ok {
		loc := stmts[0].Loc()
		errs = append(errs, NewError(ParseErr, loc, "package expected"))
		return nil, errs
	}

	mod := &Module{
		Package: pkg,
	}

	for _, stmt := range stmts[1:] {
		switch stmt := stmt.(type) {
		case *Import:
			mod.Imports = append(mod.Imports, stmt)
		case *Rule:
			setRuleModule(stmt, mod)
			mod.Rules = append(mod.Rules, stmt)
		case *Package:
			errs = append(errs, NewError(ParseErr, stmt.Loc(), "unexpected package"))
		default:
			errs = append(errs, NewError(ParseErr, stmt.Loc(), "expected rule"))
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}

	return mod, nil
}

func setRuleModule(rule *Rule, module *Module) {
	rule.Module = module
	if rule.Else != nil {
		setRuleModule(rule.Else, module)
	}
}
