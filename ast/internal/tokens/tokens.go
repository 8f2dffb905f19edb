// Copyright 2020 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package tokens defines the lexical tokens of the policy language.
package tokens

// Token represents a single lexical token in the policy language.
type Token int

func (t Token) String() string {
	if t < 0 || int(t) >= len(strings) {
		return "unknown"
	}
	return strings[t]
}

// All tokens must be defined here
const (
	Illegal Token = iota
	EOF
	Whitespace
	Ident
	Comment

	Package
	Import
	As
	Default
	Else
	Not
	Some
	With
	Null
	True
	False
	Every
	In
	Contains
	If

	Number
	String

	LBrack
	RBrack
	LBrace
	RBrace
	LParen
	RParen
	Comma
	Colon

	Add
	Sub
	Mul
	Quo
	Rem
	And
	Or
	Unify
	Equal
	Assign
	Neq
	Gt
	Lt
	Gte
	Lte
	Dot
	Semicolon
)

var strings = [...]string{
	Illegal:    "illegal",
	EOF:        "eof",
	Whitespace: "whitespace",
	Comment:    "comment",
	Ident:      "identifier",
	Package:    "package",
	Import:     "import",
	As:         "as",
	Default:    "default",
	Else:       "else",
	Not:        "not",
	Some:       "some",
	With:       "with",
	Null:       "null",
	True:       "true",
	False:      "false",
	Every:      "every",
	In:         "in",
	Contains:   "contains",
	If:         "if",
	Number:     "number",
	String:     "string",
	LBrack:     "[",
	RBrack:     "]",
	LBrace:     "{",
	RBrace:     "}",
	LParen:     "(",
	RParen:     ")",
	Comma:      ",",
	Colon:      ":",
	Add:        "plus",
	Sub:        "minus",
	Mul:        "mul",
	Quo:        "div",
	Rem:        "rem",
	And:        "and",
	Or:         "or",
	Unify:      "eq",
	Equal:      "equal",
	Assign:     "assign",
	Neq:        "neq",
	Gt:         "gt",
	Lt:         "lt",
	Gte:        "gte",
	Lte:        "lte",
	Dot:        ".",
	Semicolon:  ";",
}

var keywords = map[string]Token{
	"package":  Package,
	"import":   Import,
	"as":       As,
	"default":  Default,
	"else":     Else,
	"not":      Not,
	"some":     Some,
	"with":     With,
	"null":     Null,
	"true":     True,
	"false":    False,
	"every":    Every,
	"in":       In,
	"contains": Contains,
	"if":       If,
}

// Keyword will return a token for the passed in string if it is a keyword.
// If it is not a keyword, it returns false.
func Keyword(lit string) (Token, bool) {
	tok, ok := keywords[lit]
	return tok, ok
}

// IsKeyword returns if a token is a keyword
func IsKeyword(tok Token) bool {
	for _, t := range keywords {
		if t == tok {
			return true
		}
	}
	return false
}
