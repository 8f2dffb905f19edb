// Copyright 2020 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package ast

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/regolith-dev/regolith/ast/internal/scanner"
	"github.com/regolith-dev/regolith/ast/internal/tokens"
)

// Statement represents a single statement in a policy module: a package
// declaration, an import, a rule or a query body.
type Statement interface {
	Loc() *Location
}

// Loc returns the location of the package declaration.
func (pkg *Package) Loc() *Location {
	return pkg.Location
}

// Loc returns the location of the import.
func (imp *Import) Loc() *Location {
	return imp.Location
}

// Loc returns the location of the rule.
func (rule *Rule) Loc() *Location {
	return rule.Location
}

// SetLoc updates the location of the rule.
func (rule *Rule) SetLoc(loc *Location) {
	rule.Location = loc
}

type state struct {
	s         *scanner.Scanner
	lastEnd   int
	skippedNL bool
	skippedWS bool
	tok       tokens.Token
	lit       string
	loc       Location
}

func (s *state) Loc() *Location {
	cpy := s.loc
	return &cpy
}

// Parser is used to parse policy source text into AST nodes.
type Parser struct {
	s          *state
	filename   string
	errors     Errors
	wildcard   int
	parens     int
	statements bool
}

type snapshot struct {
	s      state
	sc     scanner.Scanner
	errors int
	parens int
}

// NewParser creates and initializes a Parser.
func NewParser() *Parser {
	return &Parser{s: &state{}}
}

// WithFilename provides the filename for Location details
// on parsed statements.
func (p *Parser) WithFilename(filename string) *Parser {
	p.filename = filename
	return p
}

// WithReader provides the io.Reader that the parser will
// use as its source.
func (p *Parser) WithReader(bs []byte) *Parser {
	s, _ := scanner.New(bytes.NewReader(bs))
	p.s = &state{s: s}
	return p
}

// WithStatements lets the parser accept free-standing queries in addition to
// packages, imports and rules.
func (p *Parser) WithStatements(yes bool) *Parser {
	p.statements = yes
	return p
}

func (p *Parser) save() *snapshot {
	return &snapshot{
		s:      *p.s,
		sc:     *p.s.s,
		errors: len(p.errors),
		parens: p.parens,
	}
}

func (p *Parser) restore(snap *snapshot) {
	st := snap.s
	sc := snap.sc
	st.s = &sc
	p.s = &st
	p.errors = p.errors[:snap.errors]
	p.parens = snap.parens
}

func (p *Parser) scan() {
	p.s.lastEnd = p.s.loc.Offset + len(p.s.loc.Text)
	p.s.skippedNL = false
	p.s.skippedWS = false

	for {
		tok, pos, lit, errs := p.s.s.Scan()

		p.s.tok = tok
		p.s.lit = lit
		p.s.loc = Location{
			Text:   p.text(pos.Offset, pos.End),
			File:   p.filename,
			Row:    pos.Row,
			Col:    pos.Col,
			Offset: pos.Offset,
		}

		for _, err := range errs {
			loc := &Location{File: p.filename, Row: err.Pos.Row, Col: err.Pos.Col, Offset: err.Pos.Offset}
			p.error(loc, err.Message)
		}

		switch tok {
		case tokens.Whitespace:
			if lit == "\n" {
				p.s.skippedNL = true
			}
			p.s.skippedWS = true
		case tokens.Comment:
			p.s.skippedWS = true
		default:
			return
		}
	}
}

func (p *Parser) text(start, end int) []byte {
	bs := p.s.s.Bytes()
	if start > len(bs) {
		start = len(bs)
	}
	if end > len(bs) {
		end = len(bs)
	}
	if end < start {
		end = start
	}
	return bs[start:end]
}

func (p *Parser) error(loc *Location, reason string) {
	p.errorf(loc, "%s", reason)
}

func (p *Parser) errorf(loc *Location, f string, a ...interface{}) {
	p.errors = append(p.errors, NewError(ParseErr, loc, f, a...))
}

func (p *Parser) illegal(note string, a ...interface{}) {
	tok := p.s.tok.String()

	if p.s.tok == tokens.Illegal {
		p.errorf(p.s.Loc(), "illegal token")
		return
	}

	tokType := "token"
	if tokens.IsKeyword(p.s.tok) {
		tokType = "keyword"
	}

	note = fmt.Sprintf(note, a...)
	if len(note) > 0 {
		p.errorf(p.s.Loc(), "unexpected %s %s: %s", tok, tokType, note)
	} else {
		p.errorf(p.s.Loc(), "unexpected %s %s", tok, tokType)
	}
}

func (p *Parser) illegalToken() {
	p.illegal("")
}

func (p *Parser) expect(tok tokens.Token) bool {
	if p.s.tok != tok {
		p.illegal("expected %v", tok)
		return false
	}
	return true
}

// breaksLine reports whether the current token starts a new statement because
// it follows a newline outside of any parentheses.
func (p *Parser) breaksLine() bool {
	return p.s.skippedNL && p.parens == 0
}

// Parse will read the source text from the parser and return a list of
// statements that make up a module.
func (p *Parser) Parse() ([]Statement, error) {
	var stmts []Statement

	p.scan()

	for p.s.tok != tokens.EOF {
		if len(p.errors) > 0 {
			break
		}

		switch p.s.tok {
		case tokens.Package:
			if pkg := p.parsePackage(); pkg != nil {
				stmts = append(stmts, pkg)
			}
			continue
		case tokens.Import:
			if imp, ok := p.parseImport(); ok {
				if imp != nil {
					stmts = append(stmts, imp)
				}
			}
			continue
		}

		if !p.statements {
			rules := p.parseRules()
			if rules == nil {
				break
			}
			for _, rule := range rules {
				stmts = append(stmts, rule)
			}
			continue
		}

		snap := p.save()
		if rules := p.parseRules(); rules != nil && isStatementRule(rules[0]) {
			for _, rule := range rules {
				stmts = append(stmts, rule)
			}
			continue
		}
		p.restore(snap)

		if body := p.parseQuery(tokens.EOF, true); body != nil {
			stmts = append(stmts, body)
		}
	}

	if len(p.errors) > 0 {
		return nil, p.errors
	}

	return stmts, nil
}

// isStatementRule reports whether a rule parsed from free-standing statements
// should be kept as a rule. Bodiless unifications like `x = 1` are queries.
func isStatementRule(rule *Rule) bool {
	if rule.Default || rule.Head.Assign || rule.Head.Args != nil || rule.Head.Key != nil {
		return true
	}
	return len(rule.Body) != 1 || rule.Body[0].Location != rule.Location
}

func (p *Parser) parsePackage() *Package {

	var pkg Package
	pkg.Location = p.s.Loc()

	p.scan()
	if p.s.tok != tokens.Ident {
		p.illegal("expected ident")
		return nil
	}

	term := p.parseTerm()
	if term == nil {
		return nil
	}

	path := Ref{DefaultRootDocument.Copy().SetLocation(term.Location)}

	switch v := term.Value.(type) {
	case Var:
		path = append(path, StringTerm(string(v)).SetLocation(term.Location))
	case Ref:
		head, ok := v[0].Value.(Var)
		if !ok {
			p.errorf(term.Location, "package name must be a ref of strings")
			return nil
		}
		path = append(path, StringTerm(string(head)).SetLocation(v[0].Location))
		for _, x := range v[1:] {
			if _, ok := x.Value.(String); !ok {
				p.errorf(x.Location, "unexpected %v token: expected string", TypeName(x.Value))
				return nil
			}
			path = append(path, x)
		}
	default:
		p.errorf(term.Location, "package name must be a ref of strings")
		return nil
	}

	pkg.Path = path
	return &pkg
}

// parseImport returns the parsed import. Imports of language extensions
// (future.keywords, rego.v1) return nil with ok set.
func (p *Parser) parseImport() (*Import, bool) {

	var imp Import
	imp.Location = p.s.Loc()

	p.scan()
	if p.s.tok != tokens.Ident {
		p.illegal("expected ident")
		return nil, false
	}

	term := p.parseTerm()
	if term == nil {
		return nil, false
	}

	var head Var
	switch v := term.Value.(type) {
	case Var:
		head = v
	case Ref:
		var ok bool
		if head, ok = v[0].Value.(Var); !ok {
			p.errorf(term.Location, "invalid import path")
			return nil, false
		}
		for _, x := range v[1:] {
			if _, ok := x.Value.(String); !ok {
				p.errorf(x.Location, "invalid path %v: path elements must be strings", v)
				return nil, false
			}
		}
	default:
		p.errorf(term.Location, "invalid import path")
		return nil, false
	}

	switch head {
	case "future", "rego":
		if p.s.tok == tokens.As {
			p.illegal("extension imports cannot be aliased")
			return nil, false
		}
		return nil, true
	case "data", "input":
	default:
		p.errorf(term.Location, "invalid import %v: path must begin with input or data", term)
		return nil, false
	}

	imp.Path = term

	if p.s.tok == tokens.As {
		p.scan()
		if p.s.tok != tokens.Ident {
			p.illegal("expected var")
			return nil, false
		}
		imp.Alias = Var(p.s.lit)
		p.scan()
	}

	return &imp, true
}

func (p *Parser) parseRules() []*Rule {

	var rule Rule
	rule.SetLoc(p.s.Loc())

	if p.s.tok == tokens.Default {
		p.scan()
		rule.Default = true
	}

	if p.s.tok != tokens.Ident {
		p.illegal("expected ident")
		return nil
	}

	head, explicitValue := p.parseHead()
	if head == nil {
		return nil
	}
	rule.Head = head

	if rule.Default {
		if !explicitValue {
			p.errorf(rule.Location, "default rules must have a value")
			return nil
		}
		if head.DocKind() == PartialSetDoc {
			p.errorf(rule.Location, "default rules cannot be multi-value rules")
			return nil
		}
		rule.Body = NewBody(NewExpr(BooleanTerm(true).SetLocation(rule.Location)).SetLocation(rule.Location))
		return []*Rule{&rule}
	}

	body, hasBody := p.parseRuleBody()
	if hasBody && body == nil {
		return nil
	}

	if !hasBody {
		if !explicitValue && head.DocKind() != PartialSetDoc {
			p.errorf(rule.Location, "rule must have value assignment and/or body")
			return nil
		}
		body = NewBody(NewExpr(BooleanTerm(true).SetLocation(rule.Location)).SetLocation(rule.Location))
	}
	rule.Body = body

	if p.s.tok == tokens.Else {
		if k := head.DocKind(); k == PartialSetDoc || k == PartialObjectDoc {
			p.illegal("else keyword cannot be used on partial rules")
			return nil
		}
		if rule.Else = p.parseElse(head); rule.Else == nil {
			return nil
		}
	}

	rules := []*Rule{&rule}

	// Additional bodies produce rules that share the head.
	for p.s.tok == tokens.LBrace && rule.Else == nil {
		loc := p.s.Loc()
		p.scan()
		next := p.parseBody(tokens.RBrace)
		if next == nil {
			return nil
		}
		p.scan()
		r := &Rule{
			Location: loc,
			Head:     head.Copy(),
			Body:     next,
		}
		rules = append(rules, r)
	}

	return rules
}

// parseRuleBody parses an optional `if`, `{ ... }` or `if <literal>` body. The
// second return value is false if no body was present.
func (p *Parser) parseRuleBody() (Body, bool) {
	hasIf := false
	if p.s.tok == tokens.If {
		hasIf = true
		p.scan()
	}

	switch {
	case p.s.tok == tokens.LBrace:
		p.scan()
		body := p.parseBody(tokens.RBrace)
		if body == nil {
			return nil, true
		}
		p.scan()
		return body, true
	case hasIf:
		expr := p.parseLiteral()
		if expr == nil {
			return nil, true
		}
		return NewBody(expr), true
	}

	return nil, false
}

func (p *Parser) parseElse(head *Head) *Rule {

	var rule Rule
	rule.SetLoc(p.s.Loc())

	rule.Head = head.Copy()
	rule.Head.Value = nil
	rule.Head.Assign = false

	p.scan()

	switch p.s.tok {
	case tokens.Unify, tokens.Assign:
		rule.Head.Assign = p.s.tok == tokens.Assign
		p.scan()
		rule.Head.Value = p.parseTermIn()
		if rule.Head.Value == nil {
			return nil
		}
	}

	if rule.Head.Value == nil {
		rule.Head.Value = BooleanTerm(true).SetLocation(rule.Location)
	}

	body, hasBody := p.parseRuleBody()
	if hasBody && body == nil {
		return nil
	}
	if !hasBody {
		body = NewBody(NewExpr(BooleanTerm(true).SetLocation(rule.Location)).SetLocation(rule.Location))
	}
	rule.Body = body

	if p.s.tok == tokens.Else {
		if rule.Else = p.parseElse(head); rule.Else == nil {
			return nil
		}
	}

	return &rule
}

// parseHead parses a rule head. The second return value reports whether the
// head carried an explicit value.
func (p *Parser) parseHead() (*Head, bool) {

	var head Head
	head.Location = p.s.Loc()

	name := Var(p.s.lit)
	if RootDocumentNames.Contains(name) {
		p.errorf(head.Location, "rules cannot be named %v", name)
		return nil, false
	}

	ref := Ref{VarTerm(string(name)).SetLocation(head.Location)}
	var brackets []bool

	p.scan()

	for !p.s.skippedWS {
		if p.s.tok == tokens.Dot {
			p.scan()
			if p.s.tok != tokens.Ident && !tokens.IsKeyword(p.s.tok) {
				p.illegal("expected ident")
				return nil, false
			}
			ref = append(ref, StringTerm(p.s.lit).SetLocation(p.s.Loc()))
			brackets = append(brackets, false)
			p.scan()
			continue
		}
		if p.s.tok == tokens.LBrack {
			p.scan()
			p.parens++
			term := p.parseTermIn()
			p.parens--
			if term == nil || !p.expect(tokens.RBrack) {
				return nil, false
			}
			p.scan()
			ref = append(ref, term)
			brackets = append(brackets, true)
			continue
		}
		break
	}

	if p.s.tok == tokens.LParen && !p.s.skippedWS {
		args := p.parseTermList(tokens.RParen)
		if args == nil {
			return nil, false
		}
		head.Args = Args(args)
	}

	if p.s.tok == tokens.Contains {
		p.scan()
		head.Key = p.parseTermIn()
		if head.Key == nil {
			return nil, false
		}
	}

	explicitValue := false

	switch p.s.tok {
	case tokens.Unify, tokens.Assign:
		if head.Key != nil {
			p.illegal("multi-value rules cannot be assigned a value")
			return nil, false
		}
		head.Assign = p.s.tok == tokens.Assign
		p.scan()
		head.Value = p.parseTermIn()
		if head.Value == nil {
			return nil, false
		}
		explicitValue = true
	}

	// The last bracketed segment is the key of a partial rule unless it is a
	// string and the rule carries a value.
	if head.Key == nil && len(brackets) > 0 && brackets[len(brackets)-1] {
		last := ref[len(ref)-1]
		_, isString := last.Value.(String)
		if head.Value == nil || !isString {
			head.Key = last
			ref = ref[:len(ref)-1]
		}
	}

	for _, x := range ref[1:] {
		if _, ok := x.Value.(String); !ok {
			p.errorf(x.Location, "rule head may only contain a variable in the last segment: %v", x)
			return nil, false
		}
	}

	if head.Args != nil && head.Key != nil {
		p.errorf(head.Location, "functions cannot be multi-value rules")
		return nil, false
	}

	head.Reference = ref

	if head.Value == nil && head.Key == nil {
		head.Value = BooleanTerm(true).SetLocation(head.Location)
	}

	return &head, explicitValue
}

// parseQuery parses a sequence of literals until end. When stopAtLine is set
// the query ends at the first newline.
func (p *Parser) parseQuery(end tokens.Token, stopAtLine bool) Body {
	var body Body

	for {
		expr := p.parseLiteral()
		if expr == nil {
			return nil
		}
		body.Append(expr)

		if p.s.tok == tokens.Semicolon {
			p.scan()
			continue
		}

		if p.s.tok == end {
			return body
		}

		if p.s.skippedNL {
			if stopAtLine {
				return body
			}
			continue
		}

		p.illegalToken()
		return nil
	}
}

func (p *Parser) parseBody(end tokens.Token) Body {
	if p.s.tok == end {
		p.error(p.s.Loc(), "found empty body")
		return nil
	}

	parens := p.parens
	p.parens = 0
	body := p.parseQuery(end, false)
	p.parens = parens
	if body == nil {
		return nil
	}

	if !p.expect(end) {
		return nil
	}

	return body
}

func (p *Parser) parseLiteral() *Expr {

	loc := p.s.Loc()

	var negated bool
	if p.s.tok == tokens.Not {
		p.scan()
		negated = true
	}

	var expr *Expr

	switch p.s.tok {
	case tokens.Some:
		if negated {
			p.illegal("illegal negation of 'some'")
			return nil
		}
		expr = p.parseSome()
	case tokens.Every:
		if negated {
			p.illegal("illegal negation of 'every'")
			return nil
		}
		expr = p.parseEvery()
	default:
		expr = p.parseExpr()
	}

	if expr == nil {
		return nil
	}

	expr.Negated = negated
	expr.Location = loc

	for p.s.tok == tokens.With {
		w := p.parseWith()
		if w == nil {
			return nil
		}
		expr.With = append(expr.With, w)
	}

	if p.s.lastEnd > loc.Offset {
		loc.Text = p.text(loc.Offset, p.s.lastEnd)
	}

	return expr
}

func (p *Parser) parseWith() *With {

	with := With{Location: p.s.Loc()}
	p.scan()

	if p.s.tok != tokens.Ident {
		p.illegal("expected ident")
		return nil
	}

	if with.Target = p.parseTerm(); with.Target == nil {
		return nil
	}

	if !p.expect(tokens.As) {
		return nil
	}

	p.scan()

	if with.Value = p.parseTermIn(); with.Value == nil {
		return nil
	}

	return &with
}

func (p *Parser) parseSome() *Expr {

	decl := &SomeDecl{Location: p.s.Loc()}
	p.scan()

	var symbols []*Term
	for {
		term := p.parseTermOr()
		if term == nil {
			return nil
		}
		symbols = append(symbols, term)
		if p.s.tok != tokens.Comma {
			break
		}
		p.scan()
	}

	if p.s.tok == tokens.In {
		if len(symbols) > 2 {
			p.illegal("too many declarations in 'some ... in'")
			return nil
		}
		p.scan()
		domain := p.parseTermOr()
		if domain == nil {
			return nil
		}
		var call *Term
		if len(symbols) == 1 {
			call = Member.Call(symbols[0], domain)
		} else {
			call = MemberWithKey.Call(symbols[0], symbols[1], domain)
		}
		call.Location = decl.Location
		decl.Symbols = []*Term{call}
		return NewExpr(decl)
	}

	for _, s := range symbols {
		if _, ok := s.Value.(Var); !ok {
			p.errorf(s.Location, "expected var but got %v", TypeName(s.Value))
			return nil
		}
	}

	decl.Symbols = symbols
	return NewExpr(decl)
}

func (p *Parser) parseEvery() *Expr {

	qb := &Every{Location: p.s.Loc()}
	p.scan()

	first := p.parseTermOr()
	if first == nil {
		return nil
	}

	if p.s.tok == tokens.Comma {
		p.scan()
		second := p.parseTermOr()
		if second == nil {
			return nil
		}
		qb.Key = first
		qb.Value = second
	} else {
		qb.Value = first
	}

	for _, t := range []*Term{qb.Key, qb.Value} {
		if t == nil {
			continue
		}
		if _, ok := t.Value.(Var); !ok {
			p.errorf(t.Location, "expected var but got %v", TypeName(t.Value))
			return nil
		}
	}

	if !p.expect(tokens.In) {
		return nil
	}
	p.scan()

	if qb.Domain = p.parseTermOr(); qb.Domain == nil {
		return nil
	}

	if !p.expect(tokens.LBrace) {
		return nil
	}
	p.scan()

	if qb.Body = p.parseBody(tokens.RBrace); qb.Body == nil {
		return nil
	}
	p.scan()

	return NewExpr(qb)
}

func (p *Parser) parseExpr() *Expr {

	lhs := p.parseTermIn()
	if lhs == nil {
		return nil
	}

	if p.s.tok == tokens.Comma && p.parens == 0 {
		p.scan()
		value := p.parseTermRelation()
		if value == nil {
			return nil
		}
		if !p.expect(tokens.In) {
			return nil
		}
		p.scan()
		domain := p.parseTermRelation()
		if domain == nil {
			return nil
		}
		return MemberWithKey.Expr(lhs, value, domain)
	}

	switch p.s.tok {
	case tokens.Unify, tokens.Assign:
		op := Equality
		if p.s.tok == tokens.Assign {
			op = Assign
		}
		p.scan()
		rhs := p.parseTermIn()
		if rhs == nil {
			return nil
		}
		return op.Expr(lhs, rhs)
	}

	if call, ok := lhs.Value.(Call); ok {
		return NewExpr([]*Term(call))
	}

	return NewExpr(lhs)
}

func (p *Parser) parseTermIn() *Term {
	lhs := p.parseTermRelation()
	for lhs != nil && p.s.tok == tokens.In && !p.breaksLine() {
		p.scan()
		rhs := p.parseTermRelation()
		if rhs == nil {
			return nil
		}
		lhs = Member.Call(lhs, rhs).SetLocation(lhs.Location)
	}
	return lhs
}

var relationOps = map[tokens.Token]*Builtin{
	tokens.Equal: Equal,
	tokens.Neq:   NotEqual,
	tokens.Lt:    LessThan,
	tokens.Gt:    GreaterThan,
	tokens.Lte:   LessThanEq,
	tokens.Gte:   GreaterThanEq,
}

func (p *Parser) parseTermRelation() *Term {
	lhs := p.parseTermOr()
	for lhs != nil && !p.breaksLine() {
		op, ok := relationOps[p.s.tok]
		if !ok {
			break
		}
		p.scan()
		rhs := p.parseTermOr()
		if rhs == nil {
			return nil
		}
		lhs = op.Call(lhs, rhs).SetLocation(lhs.Location)
	}
	return lhs
}

func (p *Parser) parseTermOr() *Term {
	lhs := p.parseTermAnd()
	for lhs != nil && p.s.tok == tokens.Or && !p.breaksLine() {
		p.scan()
		rhs := p.parseTermAnd()
		if rhs == nil {
			return nil
		}
		lhs = Or.Call(lhs, rhs).SetLocation(lhs.Location)
	}
	return lhs
}

func (p *Parser) parseTermAnd() *Term {
	lhs := p.parseTermArith()
	for lhs != nil && p.s.tok == tokens.And && !p.breaksLine() {
		p.scan()
		rhs := p.parseTermArith()
		if rhs == nil {
			return nil
		}
		lhs = And.Call(lhs, rhs).SetLocation(lhs.Location)
	}
	return lhs
}

func (p *Parser) parseTermArith() *Term {
	lhs := p.parseTermFactor()
	for lhs != nil && !p.breaksLine() {
		var op *Builtin
		switch p.s.tok {
		case tokens.Add:
			op = Plus
		case tokens.Sub:
			op = Minus
		default:
			return lhs
		}
		p.scan()
		rhs := p.parseTermFactor()
		if rhs == nil {
			return nil
		}
		lhs = op.Call(lhs, rhs).SetLocation(lhs.Location)
	}
	return lhs
}

func (p *Parser) parseTermFactor() *Term {
	lhs := p.parseTerm()
	for lhs != nil && !p.breaksLine() {
		var op *Builtin
		switch p.s.tok {
		case tokens.Mul:
			op = Multiply
		case tokens.Quo:
			op = Divide
		case tokens.Rem:
			op = Rem
		default:
			return lhs
		}
		p.scan()
		rhs := p.parseTerm()
		if rhs == nil {
			return nil
		}
		lhs = op.Call(lhs, rhs).SetLocation(lhs.Location)
	}
	return lhs
}

func (p *Parser) parseTerm() *Term {

	loc := p.s.Loc()

	if p.s.tok == tokens.Sub {
		p.scan()
		if p.s.tok == tokens.Number && !p.s.skippedWS {
			term := p.parseNumber("-")
			if term == nil {
				return nil
			}
			return term.SetLocation(loc)
		}
		operand := p.parseTerm()
		if operand == nil {
			return nil
		}
		return UnaryMinus.Call(operand).SetLocation(loc)
	}

	var term *Term

	switch p.s.tok {
	case tokens.Null:
		term = NullTerm().SetLocation(loc)
		p.scan()
	case tokens.True:
		term = BooleanTerm(true).SetLocation(loc)
		p.scan()
	case tokens.False:
		term = BooleanTerm(false).SetLocation(loc)
		p.scan()
	case tokens.Number:
		term = p.parseNumber("")
	case tokens.String:
		term = p.parseString()
	case tokens.Ident:
		term = p.parseVar()
	case tokens.Contains:
		// contains is both a keyword and the name of a built-in function.
		snap := p.save()
		p.scan()
		isCall := p.s.tok == tokens.LParen && !p.s.skippedWS
		p.restore(snap)
		if !isCall {
			p.illegalToken()
			return nil
		}
		term = VarTerm(p.s.lit).SetLocation(loc)
		p.scan()
	case tokens.LBrack:
		term = p.parseArray()
	case tokens.LBrace:
		term = p.parseSetOrObject()
	case tokens.LParen:
		p.scan()
		p.parens++
		term = p.parseTermIn()
		p.parens--
		if term == nil || !p.expect(tokens.RParen) {
			return nil
		}
		p.scan()
	default:
		p.illegal("expected term")
		return nil
	}

	if term == nil {
		return nil
	}

	return p.parsePostfix(term)
}

func (p *Parser) parsePostfix(term *Term) *Term {
	for !p.s.skippedWS {
		switch p.s.tok {
		case tokens.Dot:
			p.scan()
			if p.s.tok != tokens.Ident && !tokens.IsKeyword(p.s.tok) {
				p.illegal("expected ident")
				return nil
			}
			term = appendRef(term, StringTerm(p.s.lit).SetLocation(p.s.Loc()))
			p.scan()
		case tokens.LBrack:
			p.scan()
			p.parens++
			idx := p.parseTermIn()
			p.parens--
			if idx == nil || !p.expect(tokens.RBrack) {
				return nil
			}
			p.scan()
			term = appendRef(term, idx)
		case tokens.LParen:
			var operator Ref
			switch v := term.Value.(type) {
			case Var:
				operator = Ref{term}
			case Ref:
				operator = v
			default:
				p.illegal("expected function name")
				return nil
			}
			args := p.parseTermList(tokens.RParen)
			if args == nil {
				return nil
			}
			if len(operator) == 1 && operator[0].Value.Compare(Var("set")) == 0 && len(args) == 0 {
				term = SetTerm().SetLocation(term.Location)
				continue
			}
			call := make(Call, 0, len(args)+1)
			call = append(call, RefTerm(operator...).SetLocation(term.Location))
			call = append(call, args...)
			term = NewTerm(call).SetLocation(term.Location)
		default:
			return term
		}
	}
	return term
}

func appendRef(head *Term, part *Term) *Term {
	switch v := head.Value.(type) {
	case Ref:
		return RefTerm(v.Append(part)...).SetLocation(head.Location)
	default:
		return RefTerm(head, part).SetLocation(head.Location)
	}
}

// parseTermList parses a comma separated list of terms. The current token must
// be the opening delimiter. A non-nil (possibly empty) slice is returned on
// success.
func (p *Parser) parseTermList(end tokens.Token) []*Term {
	p.scan()
	p.parens++
	defer func() { p.parens-- }()

	terms := []*Term{}

	for p.s.tok != end {
		term := p.parseTermIn()
		if term == nil {
			return nil
		}
		terms = append(terms, term)
		if p.s.tok == tokens.Comma {
			p.scan()
			continue
		}
		if p.s.tok != end {
			p.illegal("expected %v", end)
			return nil
		}
	}

	p.scan()
	return terms
}

func (p *Parser) parseNumber(prefix string) *Term {
	loc := p.s.Loc()
	lit := prefix + p.s.lit
	if _, ok := Number(lit).Decimal(); !ok {
		p.errorf(loc, "invalid number: %v", lit)
		return nil
	}
	p.scan()
	return NumberTerm(json.Number(lit)).SetLocation(loc)
}

func (p *Parser) parseString() *Term {
	loc := p.s.Loc()
	lit := p.s.lit
	if strings.HasPrefix(lit, "`") {
		p.scan()
		return StringTerm(lit[1 : len(lit)-1]).SetLocation(loc)
	}
	var s string
	if err := json.Unmarshal([]byte(lit), &s); err != nil {
		p.errorf(loc, "illegal string literal: %s", lit)
		return nil
	}
	p.scan()
	return StringTerm(s).SetLocation(loc)
}

func (p *Parser) parseVar() *Term {
	loc := p.s.Loc()
	name := p.s.lit
	p.scan()
	if name == Wildcard.Value.(Var).String() {
		name = fmt.Sprintf("%s%d", WildcardPrefix, p.wildcard)
		p.wildcard++
	}
	return VarTerm(name).SetLocation(loc)
}

func (p *Parser) parseArray() *Term {

	loc := p.s.Loc()
	p.scan()
	p.parens++
	defer func() { p.parens-- }()

	if p.s.tok == tokens.RBrack {
		p.scan()
		return ArrayTerm().SetLocation(loc)
	}

	// [x | body] is an array comprehension rather than a set union.
	snap := p.save()
	head := p.parseTermAnd()
	if head != nil && p.s.tok == tokens.Or {
		p.scan()
		body := p.parseBody(tokens.RBrack)
		if body == nil {
			return nil
		}
		p.scan()
		return ArrayComprehensionTerm(head, body).SetLocation(loc)
	}
	p.restore(snap)

	var elems []*Term
	for p.s.tok != tokens.RBrack {
		term := p.parseTermIn()
		if term == nil {
			return nil
		}
		elems = append(elems, term)
		if p.s.tok == tokens.Comma {
			p.scan()
			continue
		}
		if !p.expect(tokens.RBrack) {
			return nil
		}
	}

	p.scan()
	return ArrayTerm(elems...).SetLocation(loc)
}

func (p *Parser) parseSetOrObject() *Term {

	loc := p.s.Loc()
	p.scan()
	p.parens++
	defer func() { p.parens-- }()

	if p.s.tok == tokens.RBrace {
		p.scan()
		return ObjectTerm().SetLocation(loc)
	}

	snap := p.save()
	head := p.parseTermAnd()
	if head != nil {
		switch p.s.tok {
		case tokens.Or:
			p.scan()
			body := p.parseBody(tokens.RBrace)
			if body == nil {
				return nil
			}
			p.scan()
			return SetComprehensionTerm(head, body).SetLocation(loc)
		case tokens.Colon:
			p.scan()
			value := p.parseTermAnd()
			if value != nil && p.s.tok == tokens.Or {
				p.scan()
				body := p.parseBody(tokens.RBrace)
				if body == nil {
					return nil
				}
				p.scan()
				return ObjectComprehensionTerm(head, value, body).SetLocation(loc)
			}
		}
	}
	p.restore(snap)

	first := p.parseTermIn()
	if first == nil {
		return nil
	}

	if p.s.tok == tokens.Colon {
		return p.parseObjectFinish(loc, first)
	}

	return p.parseSetFinish(loc, first)
}

func (p *Parser) parseObjectFinish(loc *Location, key *Term) *Term {
	var items [][2]*Term
	for {
		if !p.expect(tokens.Colon) {
			return nil
		}
		p.scan()
		value := p.parseTermIn()
		if value == nil {
			return nil
		}
		items = append(items, Item(key, value))
		if p.s.tok == tokens.Comma {
			p.scan()
			if p.s.tok == tokens.RBrace {
				break
			}
			if key = p.parseTermIn(); key == nil {
				return nil
			}
			continue
		}
		if !p.expect(tokens.RBrace) {
			return nil
		}
		break
	}
	p.scan()
	return ObjectTerm(items...).SetLocation(loc)
}

func (p *Parser) parseSetFinish(loc *Location, first *Term) *Term {
	elems := []*Term{first}
	for {
		if p.s.tok == tokens.Comma {
			p.scan()
			if p.s.tok == tokens.RBrace {
				break
			}
			term := p.parseTermIn()
			if term == nil {
				return nil
			}
			elems = append(elems, term)
			continue
		}
		if !p.expect(tokens.RBrace) {
			return nil
		}
		break
	}
	p.scan()
	return SetTerm(elems...).SetLocation(loc)
}
