// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package ast

import (
	"strings"
)

// Builtins is the registry of built-in functions supported by the
// interpreter. Call RegisterBuiltin to add a new built-in.
var Builtins []*Builtin

// RegisterBuiltin adds a new built-in function to the registry.
func RegisterBuiltin(b *Builtin) {
	Builtins = append(Builtins, b)
	BuiltinMap[b.Name] = b
}

// DefaultBuiltins is the registry of built-in functions supported by default.
// When adding a new built-in function, update this list.
var DefaultBuiltins = [...]*Builtin{
	Equality, Assign,
	Member, MemberWithKey,
	Equal, GreaterThan, GreaterThanEq, LessThan, LessThanEq, NotEqual,
	Plus, Minus, Multiply, Divide, Rem, UnaryMinus,
	Round, Ceil, Floor, Abs, NumbersRange,
	And, Or, Union, Intersection,
	Count, Sum, Product, Max, Min, Sort, Any, All,
	ToNumber,
	IsNumber, IsString, IsBoolean, IsArray, IsSet, IsObject, IsNull, TypeNameBuiltin,
	ObjectGet, ObjectKeys, ArrayConcat, ArraySlice,
	Concat, FormatInt, IndexOf, Substring, Lower, Upper, Contains, StartsWith,
	EndsWith, Split, Replace, Trim, TrimSpace, Sprintf,
	JSONMarshal, JSONUnmarshal, YAMLMarshal,
	GlobMatch, GlobIntersect, UUIDRFC4122, RegexMatch,
	Print,
}

// BuiltinMap provides a convenient mapping of built-in names to
// built-in definitions.
var BuiltinMap map[string]*Builtin

/**
 * Unification
 */

// Equality represents the "=" operator.
var Equality = &Builtin{
	Name:  "eq",
	Infix: "=",
	Arity: 2,
}

// Assign represents the assignment (":=") operator.
var Assign = &Builtin{
	Name:  "assign",
	Infix: ":=",
	Arity: 2,
}

// Member represents the `in` (infix) operator.
var Member = &Builtin{
	Name:  "internal.member_2",
	Infix: "in",
	Arity: 2,
}

// MemberWithKey represents the `in` (infix) operator when used
// with two terms on the lhs, i.e., `k, v in obj`.
var MemberWithKey = &Builtin{
	Name:  "internal.member_3",
	Infix: "in",
	Arity: 3,
}

/**
 * Comparisons
 */

// GreaterThan represents the ">" comparison operator.
var GreaterThan = &Builtin{
	Name:  "gt",
	Infix: ">",
	Arity: 2,
}

// GreaterThanEq represents the ">=" comparison operator.
var GreaterThanEq = &Builtin{
	Name:  "gte",
	Infix: ">=",
	Arity: 2,
}

// LessThan represents the "<" comparison operator.
var LessThan = &Builtin{
	Name:  "lt",
	Infix: "<",
	Arity: 2,
}

// LessThanEq represents the "<=" comparison operator.
var LessThanEq = &Builtin{
	Name:  "lte",
	Infix: "<=",
	Arity: 2,
}

// NotEqual represents the "!=" comparison operator.
var NotEqual = &Builtin{
	Name:  "neq",
	Infix: "!=",
	Arity: 2,
}

// Equal represents the "==" comparison operator.
var Equal = &Builtin{
	Name:  "equal",
	Infix: "==",
	Arity: 2,
}

/**
 * Arithmetic
 */

// Plus adds two numbers together.
var Plus = &Builtin{
	Name:  "plus",
	Infix: "+",
	Arity: 2,
}

// Minus subtracts the second number from the first number or computes the
// difference between two sets.
var Minus = &Builtin{
	Name:  "minus",
	Infix: "-",
	Arity: 2,
}

// Multiply multiplies two numbers together.
var Multiply = &Builtin{
	Name:  "mul",
	Infix: "*",
	Arity: 2,
}

// Divide divides the first number by the second number.
var Divide = &Builtin{
	Name:  "div",
	Infix: "/",
	Arity: 2,
}

// Rem returns the remainder for x%y for y != 0.
var Rem = &Builtin{
	Name:  "rem",
	Infix: "%",
	Arity: 2,
}

// UnaryMinus negates a number. Literal numbers following a minus sign are
// folded by the parser and never reach this built-in.
var UnaryMinus = &Builtin{
	Name:  "internal.negate",
	Arity: 1,
}

// Round rounds the number to the nearest integer.
var Round = &Builtin{
	Name:  "round",
	Arity: 1,
}

// Ceil rounds the number up to the nearest integer.
var Ceil = &Builtin{
	Name:  "ceil",
	Arity: 1,
}

// Floor rounds the number down to the nearest integer.
var Floor = &Builtin{
	Name:  "floor",
	Arity: 1,
}

// Abs returns the number without its sign.
var Abs = &Builtin{
	Name:  "abs",
	Arity: 1,
}

// NumbersRange returns an array of integers between the two operands.
var NumbersRange = &Builtin{
	Name:  "numbers.range",
	Arity: 2,
}

/**
 * Sets
 */

// And performs an intersection operation on sets.
var And = &Builtin{
	Name:  "and",
	Infix: "&",
	Arity: 2,
}

// Or performs a union operation on sets.
var Or = &Builtin{
	Name:  "or",
	Infix: "|",
	Arity: 2,
}

// Union returns the union of a set of sets.
var Union = &Builtin{
	Name:  "union",
	Arity: 1,
}

// Intersection returns the intersection of a set of sets.
var Intersection = &Builtin{
	Name:  "intersection",
	Arity: 1,
}

/**
 * Aggregates
 */

// Count takes a collection or string and counts the number of elements in it.
var Count = &Builtin{
	Name:  "count",
	Arity: 1,
}

// Sum takes an array or set of numbers and sums them.
var Sum = &Builtin{
	Name:  "sum",
	Arity: 1,
}

// Product takes an array or set of numbers and multiplies them.
var Product = &Builtin{
	Name:  "product",
	Arity: 1,
}

// Max returns the maximum value in a collection.
var Max = &Builtin{
	Name:  "max",
	Arity: 1,
}

// Min returns the minimum value in a collection.
var Min = &Builtin{
	Name:  "min",
	Arity: 1,
}

// Sort returns a sorted array.
var Sort = &Builtin{
	Name:  "sort",
	Arity: 1,
}

// Any returns true if any of the values in the collection is true.
var Any = &Builtin{
	Name:  "any",
	Arity: 1,
}

// All returns true if all of the values in the collection are true.
var All = &Builtin{
	Name:  "all",
	Arity: 1,
}

/**
 * Casting
 */

// ToNumber takes a string, bool, or number value and converts it to a number.
// Strings are converted to numbers using strconv.ParseFloat.
// Boolean false is converted to 0 and boolean true is converted to 1.
var ToNumber = &Builtin{
	Name:  "to_number",
	Arity: 1,
}

/**
 * Type checking
 */

// IsNumber returns true if the input value is a number
var IsNumber = &Builtin{
	Name:  "is_number",
	Arity: 1,
}

// IsString returns true if the input value is a string.
var IsString = &Builtin{
	Name:  "is_string",
	Arity: 1,
}

// IsBoolean returns true if the input value is a boolean.
var IsBoolean = &Builtin{
	Name:  "is_boolean",
	Arity: 1,
}

// IsArray returns true if the input value is an array.
var IsArray = &Builtin{
	Name:  "is_array",
	Arity: 1,
}

// IsSet returns true if the input value is a set.
var IsSet = &Builtin{
	Name:  "is_set",
	Arity: 1,
}

// IsObject returns true if the input value is an object.
var IsObject = &Builtin{
	Name:  "is_object",
	Arity: 1,
}

// IsNull returns true if the input value is null.
var IsNull = &Builtin{
	Name:  "is_null",
	Arity: 1,
}

// TypeNameBuiltin returns the type of the input.
var TypeNameBuiltin = &Builtin{
	Name:  "type_name",
	Arity: 1,
}

/**
 * Objects and arrays
 */

// ObjectGet returns takes an object and returns a value under its key if
// present, otherwise it returns the default.
var ObjectGet = &Builtin{
	Name:  "object.get",
	Arity: 3,
}

// ObjectKeys returns a set of the object's keys.
var ObjectKeys = &Builtin{
	Name:  "object.keys",
	Arity: 1,
}

// ArrayConcat returns the result of concatenating two arrays together.
var ArrayConcat = &Builtin{
	Name:  "array.concat",
	Arity: 2,
}

// ArraySlice returns a slice of a given array.
var ArraySlice = &Builtin{
	Name:  "array.slice",
	Arity: 3,
}

/**
 * Strings
 */

// Concat joins an array of strings with an input string.
var Concat = &Builtin{
	Name:  "concat",
	Arity: 2,
}

// FormatInt returns the string representation of the number in the given base
// after converting it to an integer value.
var FormatInt = &Builtin{
	Name:  "format_int",
	Arity: 2,
}

// IndexOf returns the index of a substring contained inside a string.
var IndexOf = &Builtin{
	Name:  "indexof",
	Arity: 2,
}

// Substring returns the portion of a string for a given start index and a
// length. If the length is less than zero, then substring returns the
// remainder of the string.
var Substring = &Builtin{
	Name:  "substring",
	Arity: 3,
}

// Contains returns true if the search string is included in the base string.
var Contains = &Builtin{
	Name:  "contains",
	Arity: 2,
}

// StartsWith returns true if the search string begins with the base string.
var StartsWith = &Builtin{
	Name:  "startswith",
	Arity: 2,
}

// EndsWith returns true if the search string begins with the base string.
var EndsWith = &Builtin{
	Name:  "endswith",
	Arity: 2,
}

// Lower returns the input string but with all characters in lower-case.
var Lower = &Builtin{
	Name:  "lower",
	Arity: 1,
}

// Upper returns the input string but with all characters in upper-case.
var Upper = &Builtin{
	Name:  "upper",
	Arity: 1,
}

// Split returns an array containing elements of the input string split on a
// delimiter.
var Split = &Builtin{
	Name:  "split",
	Arity: 2,
}

// Replace returns the given string with all instances of the second argument
// replaced by the third.
var Replace = &Builtin{
	Name:  "replace",
	Arity: 3,
}

// Trim returns the given string with all leading or trailing instances of the
// second argument removed.
var Trim = &Builtin{
	Name:  "trim",
	Arity: 2,
}

// TrimSpace returns the given string with all leading and trailing white
// space removed.
var TrimSpace = &Builtin{
	Name:  "trim_space",
	Arity: 1,
}

// Sprintf returns the given string, formatted.
var Sprintf = &Builtin{
	Name:  "sprintf",
	Arity: 2,
}

/**
 * Encoding
 */

// JSONMarshal serializes the input term.
var JSONMarshal = &Builtin{
	Name:  "json.marshal",
	Arity: 1,
}

// JSONUnmarshal deserializes the input string.
var JSONUnmarshal = &Builtin{
	Name:  "json.unmarshal",
	Arity: 1,
}

// YAMLMarshal serializes the input term as YAML.
var YAMLMarshal = &Builtin{
	Name:  "yaml.marshal",
	Arity: 1,
}

/**
 * Matching and identifiers
 */

// GlobMatch - not to be confused with regex.globs_match - parses and matches
// strings against the glob notation.
var GlobMatch = &Builtin{
	Name:  "glob.match",
	Arity: 3,
}

// GlobIntersect returns true if the languages of two glob patterns share at
// least one string.
var GlobIntersect = &Builtin{
	Name:  "glob.intersect",
	Arity: 2,
}

// UUIDRFC4122 returns a version 4 UUID string. The same key yields the same
// UUID within one query.
var UUIDRFC4122 = &Builtin{
	Name:  "uuid.rfc4122",
	Arity: 1,
}

// RegexMatch takes two strings and evaluates to true if the string in the second
// position matches the pattern in the first position.
var RegexMatch = &Builtin{
	Name:  "regex.match",
	Arity: 2,
}

/**
 * Debugging
 */

// Print writes its operands to the query's print output. It always succeeds.
var Print = &Builtin{
	Name:  "print",
	Arity: -1,
}

// Builtin represents a built-in function. Every built-in function is uniquely
// identified by a name.
type Builtin struct {
	Name  string `json:"name"`
	Infix string `json:"infix,omitempty"`

	// Arity is the number of operands. Variadic built-ins use -1.
	Arity int `json:"arity"`
}

// Ref returns a Ref that refers to the built-in function.
func (b *Builtin) Ref() Ref {
	parts := strings.Split(b.Name, ".")
	ref := make(Ref, len(parts))
	ref[0] = VarTerm(parts[0])
	for i := 1; i < len(parts); i++ {
		ref[i] = StringTerm(parts[i])
	}
	return ref
}

// Expr creates a new expression for the built-in with the given operands.
func (b *Builtin) Expr(operands ...*Term) *Expr {
	ts := make([]*Term, len(operands)+1)
	ts[0] = NewTerm(b.Ref())
	for i := range operands {
		ts[i+1] = operands[i]
	}
	return &Expr{
		Terms: ts,
	}
}

// Call creates a new term for the built-in with the given operands.
func (b *Builtin) Call(operands ...*Term) *Term {
	call := make(Call, len(operands)+1)
	call[0] = NewTerm(b.Ref())
	for i := range operands {
		call[i+1] = operands[i]
	}
	return NewTerm(call)
}

// IsVariadic returns true if the built-in accepts any number of operands.
func (b *Builtin) IsVariadic() bool {
	return b.Arity < 0
}

func init() {
	BuiltinMap = map[string]*Builtin{}
	for _, b := range DefaultBuiltins {
		RegisterBuiltin(b)
	}
}
