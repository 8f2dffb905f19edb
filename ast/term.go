// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package ast

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/regolith-dev/regolith/ast/location"
)

var errFindNotFound = errors.New("find: not found")

// Location records a position in source code.
type Location = location.Location

// NewLocation returns a new Location object.
func NewLocation(text []byte, file string, row int, col int) *Location {
	return location.NewLocation(text, file, row, col)
}

// Value declares the common interface for all Term values. Every kind of Term value
// in the language is represented as a type that implements this interface:
//
// - Null, Boolean, Number, String
// - Object, Array, Set
// - Variables, References
// - Array, Set, and Object Comprehensions
// - Calls
type Value interface {
	Compare(other Value) int      // Compare returns <0, 0, or >0 if this Value is less than, equal to, or greater than other, respectively.
	Find(path Ref) (Value, error) // Find returns value referred to by path or an error if path is not found.
	Hash() int                    // Returns hash code of the value.
	IsGround() bool               // IsGround returns true if this value is not a variable or contains no variables.
	String() string               // String returns a human readable string representation of the value.
}

// InterfaceToValue converts a native Go value x to a Value.
func InterfaceToValue(x interface{}) (Value, error) {
	switch x := x.(type) {
	case nil:
		return Null{}, nil
	case bool:
		return Boolean(x), nil
	case json.Number:
		if _, ok := Number(x).Decimal(); !ok {
			return nil, fmt.Errorf("invalid number: %q", x)
		}
		return Number(x), nil
	case int:
		return Number(strconv.Itoa(x)), nil
	case int64:
		return Number(strconv.FormatInt(x, 10)), nil
	case uint64:
		return Number(strconv.FormatUint(x, 10)), nil
	case float64:
		return Number(strconv.FormatFloat(x, 'g', -1, 64)), nil
	case string:
		return String(x), nil
	case []string:
		r := make([]*Term, len(x))
		for i, e := range x {
			r[i] = StringTerm(e)
		}
		return NewArray(r...), nil
	case []interface{}:
		r := make([]*Term, len(x))
		for i, e := range x {
			e, err := InterfaceToValue(e)
			if err != nil {
				return nil, err
			}
			r[i] = &Term{Value: e}
		}
		return NewArray(r...), nil
	case map[string]interface{}:
		r := NewObject()
		for k, v := range x {
			v, err := InterfaceToValue(v)
			if err != nil {
				return nil, err
			}
			r.Insert(StringTerm(k), NewTerm(v))
		}
		return r, nil
	case map[string]string:
		r := NewObject()
		for k, v := range x {
			r.Insert(StringTerm(k), StringTerm(v))
		}
		return r, nil
	case Value:
		return x, nil
	case *Term:
		return x.Value, nil
	default:
		return nil, fmt.Errorf("illegal value: %T", x)
	}
}

// MustInterfaceToValue converts a native Go value x to a Value. If the
// conversion fails, this function will panic. This function is mostly for test
// purposes.
func MustInterfaceToValue(x interface{}) Value {
	v, err := InterfaceToValue(x)
	if err != nil {
		panic(err)
	}
	return v
}

// JSONToValue decodes bs as JSON and converts the result to a Value. Numbers
// keep their textual precision.
func JSONToValue(bs []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(bs))
	dec.UseNumber()
	var x interface{}
	if err := dec.Decode(&x); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("unexpected data after JSON value")
	}
	return InterfaceToValue(x)
}

// ValueToInterface returns the Go representation of an AST value. The AST
// value should not contain any values that require evaluation (e.g., vars,
// comprehensions, etc.) Sets are converted to sorted arrays. Object keys that
// are not strings are converted to their JSON text.
func ValueToInterface(v Value) (interface{}, error) {
	switch v := v.(type) {
	case Null:
		return nil, nil
	case Boolean:
		return bool(v), nil
	case Number:
		return json.Number(v), nil
	case String:
		return string(v), nil
	case *Array:
		buf := make([]interface{}, 0, v.Len())
		err := v.Iter(func(x *Term) error {
			x1, err := ValueToInterface(x.Value)
			if err != nil {
				return err
			}
			buf = append(buf, x1)
			return nil
		})
		return buf, err
	case Object:
		buf := make(map[string]interface{}, v.Len())
		err := v.Iter(func(k, v *Term) error {
			ki, err := ValueToInterface(k.Value)
			if err != nil {
				return err
			}
			var str string
			if s, ok := ki.(string); ok {
				str = s
			} else {
				bs, err := json.Marshal(ki)
				if err != nil {
					return err
				}
				str = string(bs)
			}
			vi, err := ValueToInterface(v.Value)
			if err != nil {
				return err
			}
			buf[str] = vi
			return nil
		})
		return buf, err
	case Set:
		buf := make([]interface{}, 0, v.Len())
		err := v.Iter(func(x *Term) error {
			x1, err := ValueToInterface(x.Value)
			if err != nil {
				return err
			}
			buf = append(buf, x1)
			return nil
		})
		return buf, err
	default:
		return nil, fmt.Errorf("%v requires evaluation", TypeName(v))
	}
}

// JSON returns the JSON representation of v. The value must be ground.
func JSON(v Value) (interface{}, error) {
	return ValueToInterface(v)
}

// MustJSON returns the JSON representation of v. If the value cannot be
// converted, this function panics.
func MustJSON(v Value) interface{} {
	r, err := JSON(v)
	if err != nil {
		panic(err)
	}
	return r
}

// Term is an argument to a function.
type Term struct {
	Value    Value     `json:"value"`              // the value of the Term as represented in Go
	Location *Location `json:"location,omitempty"` // the location of the Term in the source
}

// NewTerm returns a new Term object.
func NewTerm(v Value) *Term {
	return &Term{
		Value: v,
	}
}

// SetLocation updates the term's Location and returns the term itself.
func (term *Term) SetLocation(loc *Location) *Term {
	term.Location = loc
	return term
}

// Loc returns the Location of term.
func (term *Term) Loc() *Location {
	if term == nil {
		return nil
	}
	return term.Location
}

// Copy returns a deep copy of term.
func (term *Term) Copy() *Term {
	if term == nil {
		return nil
	}
	cpy := *term
	cpy.Value = copyValue(term.Value)
	return &cpy
}

func copyValue(v Value) Value {
	switch v := v.(type) {
	case Null, Boolean, Number, String, Var:
		return v
	case Ref:
		return v.Copy()
	case *Array:
		return v.Copy()
	case Object:
		return v.Copy()
	case Set:
		return v.Copy()
	case *ArrayComprehension:
		return v.Copy()
	case *ObjectComprehension:
		return v.Copy()
	case *SetComprehension:
		return v.Copy()
	case Call:
		return v.Copy()
	}
	return v
}

// Equal returns true if this term equals the other term. Equality is
// defined for each kind of term.
func (term *Term) Equal(other *Term) bool {
	if term == nil && other != nil {
		return false
	} else if term != nil && other == nil {
		return false
	} else if term == other {
		return true
	}
	return Compare(term.Value, other.Value) == 0
}

// Hash returns the hash code of the Term's Value. Its Location
// is ignored.
func (term *Term) Hash() int {
	return term.Value.Hash()
}

// IsGround returns true if this term's Value is ground.
func (term *Term) IsGround() bool {
	return term.Value.IsGround()
}

// MarshalJSON returns the JSON encoding of the term.
//
// Specialized marshalling logic is required to include a type hint for Value.
func (term *Term) MarshalJSON() ([]byte, error) {
	d := map[string]interface{}{
		"type":  TypeName(term.Value),
		"value": term.Value,
	}
	if term.Location != nil {
		d["location"] = term.Location
	}
	return json.Marshal(d)
}

func (term *Term) String() string {
	return term.Value.String()
}

// Vars returns a VarSet with variables contained in this term.
func (term *Term) Vars() VarSet {
	vis := NewVarVisitor()
	vis.Walk(term)
	return vis.Vars()
}

// TypeName returns a human readable name for the AST element type.
func TypeName(x interface{}) string {
	switch x.(type) {
	case Null:
		return "null"
	case Boolean:
		return "boolean"
	case Number:
		return "number"
	case String:
		return "string"
	case Var:
		return "var"
	case Ref:
		return "ref"
	case *Array:
		return "array"
	case Object:
		return "object"
	case Set:
		return "set"
	case *ArrayComprehension:
		return "arraycomprehension"
	case *ObjectComprehension:
		return "objectcomprehension"
	case *SetComprehension:
		return "setcomprehension"
	case Call:
		return "call"
	}
	return strings.ToLower(fmt.Sprintf("%T", x))
}

func hashString(s string) uint64 {
	return xxhash.Sum64String(s)
}

// Null represents the null value defined by JSON.
type Null struct{}

// NullTerm creates a new Term with a Null value.
func NullTerm() *Term {
	return &Term{Value: Null{}}
}

// Compare compares null to other, return <0, 0, or >0 if it is less than, equal to,
// or greater than other.
func (null Null) Compare(other Value) int {
	return Compare(null, other)
}

// Find returns the current value or a not found error.
func (null Null) Find(path Ref) (Value, error) {
	if len(path) == 0 {
		return null, nil
	}
	return nil, errFindNotFound
}

// Hash returns the hash code for the Value.
func (null Null) Hash() int {
	return 0
}

// IsGround always returns true.
func (Null) IsGround() bool {
	return true
}

// MarshalJSON returns JSON encoded bytes representing null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

func (Null) String() string {
	return "null"
}

// Boolean represents a boolean value defined by JSON.
type Boolean bool

// BooleanTerm creates a new Term with a Boolean value.
func BooleanTerm(b bool) *Term {
	return &Term{Value: Boolean(b)}
}

// Compare compares bol to other, return <0, 0, or >0 if it is less than, equal to,
// or greater than other.
func (bol Boolean) Compare(other Value) int {
	return Compare(bol, other)
}

// Find returns the current value or a not found error.
func (bol Boolean) Find(path Ref) (Value, error) {
	if len(path) == 0 {
		return bol, nil
	}
	return nil, errFindNotFound
}

// Hash returns the hash code for the Value.
func (bol Boolean) Hash() int {
	if bol {
		return 1
	}
	return 0
}

// IsGround always returns true.
func (Boolean) IsGround() bool {
	return true
}

func (bol Boolean) String() string {
	return strconv.FormatBool(bool(bol))
}

// String represents a string value as defined by JSON.
type String string

// StringTerm creates a new Term with a String value.
func StringTerm(s string) *Term {
	return &Term{Value: String(s)}
}

// Compare compares str to other, return <0, 0, or >0 if it is less than, equal to,
// or greater than other.
func (str String) Compare(other Value) int {
	return Compare(str, other)
}

// Find returns the current value or a not found error.
func (str String) Find(path Ref) (Value, error) {
	if len(path) == 0 {
		return str, nil
	}
	return nil, errFindNotFound
}

// IsGround always returns true.
func (String) IsGround() bool {
	return true
}

func (str String) String() string {
	return strconv.Quote(string(str))
}

// Hash returns the hash code for the Value.
func (str String) Hash() int {
	return int(hashString(string(str)))
}

// Var represents a variable as defined by the language.
type Var string

// VarTerm creates a new Term with a Variable value.
func VarTerm(v string) *Term {
	return &Term{Value: Var(v)}
}

// Compare compares v to other, return <0, 0, or >0 if it is less than, equal to,
// or greater than other.
func (v Var) Compare(other Value) int {
	return Compare(v, other)
}

// Find returns the current value or a not found error.
func (v Var) Find(path Ref) (Value, error) {
	if len(path) == 0 {
		return v, nil
	}
	return nil, errFindNotFound
}

// Hash returns the hash code for the Value.
func (v Var) Hash() int {
	return int(hashString(string(v)))
}

// IsGround always returns false.
func (Var) IsGround() bool {
	return false
}

// IsWildcard returns true if this is a wildcard variable.
func (v Var) IsWildcard() bool {
	return strings.HasPrefix(string(v), WildcardPrefix)
}

// IsGenerated returns true if this variable was generated during compilation.
func (v Var) IsGenerated() bool {
	return v.IsWildcard() || strings.HasPrefix(string(v), LocalVarPrefix)
}

func (v Var) String() string {
	// Special case for wildcard so that string representation is parseable. The
	// parser mangles wildcard variables to make their names unique and uses an
	// illegal variable name character (WildcardPrefix) to avoid conflicts. When
	// we serialize the variable here, we need to make sure it's parseable.
	if v.IsWildcard() {
		return Wildcard.String()
	}
	return string(v)
}

// Ref represents a reference as defined by the language.
type Ref []*Term

// EmptyRef returns a new, empty reference.
func EmptyRef() Ref {
	return Ref([]*Term{})
}

// RefTerm creates a new Term with a Ref value.
func RefTerm(r ...*Term) *Term {
	return &Term{Value: Ref(r)}
}

// PtrRef returns a new reference against the head for the slash separated path.
func PtrRef(head *Term, s string) Ref {
	s = strings.Trim(s, "/")
	if s == "" {
		return Ref{head}
	}
	parts := strings.Split(s, "/")
	ref := make(Ref, len(parts)+1)
	ref[0] = head
	for i := 1; i < len(ref); i++ {
		ref[i] = StringTerm(parts[i-1])
	}
	return ref
}

// Append returns a copy of ref with the term appended to the end.
func (ref Ref) Append(term *Term) Ref {
	n := len(ref)
	dst := make(Ref, n+1)
	copy(dst, ref)
	dst[n] = term
	return dst
}

// Concat returns a ref with the terms appended.
func (ref Ref) Concat(terms []*Term) Ref {
	if len(terms) == 0 {
		return ref
	}
	cpy := make(Ref, len(ref)+len(terms))
	copy(cpy, ref)
	copy(cpy[len(ref):], terms)
	return cpy
}

// Dynamic returns the offset of the first non-constant operand of ref.
func (ref Ref) Dynamic() int {
	switch ref[0].Value.(type) {
	case Call:
		return 0
	}
	for i := 1; i < len(ref); i++ {
		if !IsConstant(ref[i].Value) {
			return i
		}
	}
	return -1
}

// Copy returns a deep copy of ref.
func (ref Ref) Copy() Ref {
	return termSliceCopy(ref)
}

// Equal returns true if ref is equal to other.
func (ref Ref) Equal(other Value) bool {
	return Compare(ref, other) == 0
}

// Compare compares ref to other, return <0, 0, or >0 if it is less than, equal to,
// or greater than other.
func (ref Ref) Compare(other Value) int {
	return Compare(ref, other)
}

// Find returns the current value or a "not found" error.
func (ref Ref) Find(path Ref) (Value, error) {
	if len(path) == 0 {
		return ref, nil
	}
	return nil, errFindNotFound
}

// Hash returns the hash code for the Value.
func (ref Ref) Hash() int {
	return termSliceHash(ref)
}

// HasPrefix returns true if the other ref is a prefix of this ref.
func (ref Ref) HasPrefix(other Ref) bool {
	if len(other) > len(ref) {
		return false
	}
	for i := range other {
		if !ref[i].Equal(other[i]) {
			return false
		}
	}
	return true
}

// ConstantPrefix returns the constant portion of the ref starting from the head.
func (ref Ref) ConstantPrefix() Ref {
	i := ref.Dynamic()
	if i < 0 {
		return ref.Copy()
	}
	return ref[:i].Copy()
}

// GroundPrefix returns the ground portion of the ref starting from the head. By
// definition, the head of the reference is always ground.
func (ref Ref) GroundPrefix() Ref {
	if ref.IsGround() {
		return ref
	}
	prefix := make(Ref, 0, len(ref))
	for i, x := range ref {
		if i > 0 && !x.IsGround() {
			break
		}
		prefix = append(prefix, x)
	}
	return prefix
}

// IsGround returns true if all of the parts of the Ref are ground.
func (ref Ref) IsGround() bool {
	if len(ref) == 0 {
		return true
	}
	return termSliceIsGround(ref[1:])
}

// IsNested returns true if this ref contains other Refs.
func (ref Ref) IsNested() bool {
	for _, x := range ref {
		if _, ok := x.Value.(Ref); ok {
			return true
		}
	}
	return false
}

// Ptr returns a slash-separated path string for this ref. If the ref
// contains non-string terms this function returns an error. Path
// components are escaped.
func (ref Ref) Ptr() (string, error) {
	parts := make([]string, 0, len(ref)-1)
	for _, term := range ref[1:] {
		if str, ok := term.Value.(String); ok {
			parts = append(parts, strings.ReplaceAll(string(str), "/", "%2F"))
		} else {
			return "", errors.New("invalid path value type")
		}
	}
	return strings.Join(parts, "/"), nil
}

var varRegexp = regexp.MustCompile("^[[:alpha:]_][[:alpha:][:digit:]_]*$")

// IsVarCompatibleString returns true if s can be written as a var name.
func IsVarCompatibleString(s string) bool {
	return varRegexp.MatchString(s) && !IsKeyword(s)
}

func (ref Ref) String() string {
	if len(ref) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(ref[0].Value.String())
	for _, p := range ref[1:] {
		switch p := p.Value.(type) {
		case String:
			str := string(p)
			if IsVarCompatibleString(str) {
				sb.WriteByte('.')
				sb.WriteString(str)
			} else {
				sb.WriteByte('[')
				sb.WriteString(p.String())
				sb.WriteByte(']')
			}
		default:
			sb.WriteByte('[')
			sb.WriteString(p.String())
			sb.WriteByte(']')
		}
	}
	return sb.String()
}

// OutputVars returns a VarSet containing variables that would be bound by evaluating
// this expression in isolation.
func (ref Ref) OutputVars() VarSet {
	vis := NewVarVisitor().WithParams(VarVisitorParams{SkipRefHead: true})
	vis.WalkRef(ref)
	return vis.Vars()
}

// Array represents an array as defined by the language. Arrays are similar to the
// same types as defined by JSON with the exception that they can contain Vars
// and References.
type Array struct {
	elems []*Term
}

// NewArray creates an Array with the terms provided.
func NewArray(a ...*Term) *Array {
	return &Array{elems: a}
}

// ArrayTerm creates a new Term with an Array value.
func ArrayTerm(a ...*Term) *Term {
	return NewTerm(NewArray(a...))
}

// Copy returns a deep copy of arr.
func (arr *Array) Copy() *Array {
	return NewArray(termSliceCopy(arr.elems)...)
}

// Equal returns true if arr is equal to other.
func (arr *Array) Equal(other Value) bool {
	return Compare(arr, other) == 0
}

// Compare compares arr to other, return <0, 0, or >0 if it is less than, equal to,
// or greater than other.
func (arr *Array) Compare(other Value) int {
	return Compare(arr, other)
}

// Find returns the value at the index or an out-of-range error.
func (arr *Array) Find(path Ref) (Value, error) {
	if len(path) == 0 {
		return arr, nil
	}
	num, ok := path[0].Value.(Number)
	if !ok {
		return nil, errFindNotFound
	}
	i, ok := num.Int()
	if !ok || i < 0 || i >= arr.Len() {
		return nil, errFindNotFound
	}
	return arr.Elem(i).Value.Find(path[1:])
}

// Get returns the element at pos or nil if not possible.
func (arr *Array) Get(pos *Term) *Term {
	num, ok := pos.Value.(Number)
	if !ok {
		return nil
	}
	i, ok := num.Int()
	if !ok || i < 0 || i >= len(arr.elems) {
		return nil
	}
	return arr.elems[i]
}

// Sorted returns a new Array that contains the sorted elements of arr.
func (arr *Array) Sorted() *Array {
	cpy := make([]*Term, len(arr.elems))
	copy(cpy, arr.elems)
	sort.Sort(termSlice(cpy))
	return NewArray(cpy...)
}

// Hash returns the hash code for the Value.
func (arr *Array) Hash() int {
	return termSliceHash(arr.elems)
}

// IsGround returns true if all of the Array elements are ground.
func (arr *Array) IsGround() bool {
	return termSliceIsGround(arr.elems)
}

// MarshalJSON returns JSON encoded bytes representing arr.
func (arr *Array) MarshalJSON() ([]byte, error) {
	if len(arr.elems) == 0 {
		return []byte(`[]`), nil
	}
	return json.Marshal(arr.elems)
}

func (arr *Array) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, e := range arr.elems {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(e.String())
	}
	sb.WriteByte(']')
	return sb.String()
}

// Len returns the number of elements in the array.
func (arr *Array) Len() int {
	return len(arr.elems)
}

// Elem returns the element i of arr.
func (arr *Array) Elem(i int) *Term {
	return arr.elems[i]
}

// Set sets the element i of arr. It must only be called while the array is
// being constructed.
func (arr *Array) Set(i int, v *Term) {
	arr.elems[i] = v
}

// Slice returns a slice of arr starting from i index to j. -1
// indicates the end of the array. The returned value array is not a
// copy and any modifications to either of arrays may be reflected to
// the other.
func (arr *Array) Slice(i, j int) *Array {
	if j == -1 {
		return NewArray(arr.elems[i:]...)
	}
	return NewArray(arr.elems[i:j]...)
}

// Iter calls f on each element in arr. If f returns an error,
// iteration stops and the return value is the error.
func (arr *Array) Iter(f func(*Term) error) error {
	for i := range arr.elems {
		if err := f(arr.elems[i]); err != nil {
			return err
		}
	}
	return nil
}

// Until calls f on each element in arr. If f returns true, iteration stops.
func (arr *Array) Until(f func(*Term) bool) bool {
	for _, term := range arr.elems {
		if f(term) {
			return true
		}
	}
	return false
}

// Foreach calls f on each element in arr.
func (arr *Array) Foreach(f func(*Term)) {
	for _, term := range arr.elems {
		f(term)
	}
}

// Append appends a term to arr, returning the appended array.
func (arr *Array) Append(v *Term) *Array {
	cpy := make([]*Term, len(arr.elems), len(arr.elems)+1)
	copy(cpy, arr.elems)
	return NewArray(append(cpy, v)...)
}

// Set represents a set as defined by the language.
type Set interface {
	Value
	Len() int
	Copy() Set
	Diff(Set) Set
	Intersect(Set) Set
	Union(Set) Set
	Add(*Term)
	Iter(func(*Term) error) error
	Until(func(*Term) bool) bool
	Foreach(func(*Term))
	Contains(*Term) bool
	Slice() []*Term
	Sorted() *Array
}

// NewSet returns a new Set containing t.
func NewSet(t ...*Term) Set {
	s := &set{elems: make([]*Term, 0, len(t))}
	for i := range t {
		s.Add(t[i])
	}
	return s
}

// SetTerm returns a new Term representing a set containing terms t.
func SetTerm(t ...*Term) *Term {
	return NewTerm(NewSet(t...))
}

// set keeps its elements sorted by the total order so that iteration and
// serialization are deterministic.
type set struct {
	elems []*Term
}

// Copy returns a deep copy of s.
func (s *set) Copy() Set {
	return &set{elems: termSliceCopy(s.elems)}
}

// IsGround returns true if all terms in s are ground.
func (s *set) IsGround() bool {
	return termSliceIsGround(s.elems)
}

// Hash returns a hash code for s.
func (s *set) Hash() int {
	var hash int
	for _, x := range s.elems {
		hash += x.Hash()
	}
	return hash
}

func (s *set) String() string {
	if s.Len() == 0 {
		return "set()"
	}
	var sb strings.Builder
	sb.WriteByte('{')
	for i, e := range s.elems {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(e.String())
	}
	sb.WriteByte('}')
	return sb.String()
}

// Compare compares s to other, return <0, 0, or >0 if it is less than, equal to,
// or greater than other.
func (s *set) Compare(other Value) int {
	return Compare(s, other)
}

// Find returns the set or dereferences the element itself.
func (s *set) Find(path Ref) (Value, error) {
	if len(path) == 0 {
		return s, nil
	}
	if !s.Contains(path[0]) {
		return nil, errFindNotFound
	}
	return path[0].Value.Find(path[1:])
}

// Diff returns elements in s that are not in other.
func (s *set) Diff(other Set) Set {
	r := &set{}
	for _, x := range s.elems {
		if !other.Contains(x) {
			r.elems = append(r.elems, x)
		}
	}
	return r
}

// Intersect returns the set containing elements in both s and other.
func (s *set) Intersect(other Set) Set {
	r := &set{}
	for _, x := range s.elems {
		if other.Contains(x) {
			r.elems = append(r.elems, x)
		}
	}
	return r
}

// Union returns the set containing all elements of s and other.
func (s *set) Union(other Set) Set {
	r := &set{elems: make([]*Term, len(s.elems))}
	copy(r.elems, s.elems)
	other.Foreach(r.Add)
	return r
}

// Add updates s to include t. It must only be called while the set is being
// constructed.
func (s *set) Add(t *Term) {
	i, found := s.search(t)
	if found {
		return
	}
	s.elems = append(s.elems, nil)
	copy(s.elems[i+1:], s.elems[i:])
	s.elems[i] = t
}

func (s *set) search(t *Term) (int, bool) {
	i := sort.Search(len(s.elems), func(i int) bool {
		return Compare(s.elems[i].Value, t.Value) >= 0
	})
	return i, i < len(s.elems) && Compare(s.elems[i].Value, t.Value) == 0
}

// Iter calls f on each element in s. If f returns an error, iteration stops
// and the return value is the error.
func (s *set) Iter(f func(*Term) error) error {
	for i := range s.elems {
		if err := f(s.elems[i]); err != nil {
			return err
		}
	}
	return nil
}

// Until calls f on each element in s. If f returns true, iteration stops.
func (s *set) Until(f func(*Term) bool) bool {
	for _, term := range s.elems {
		if f(term) {
			return true
		}
	}
	return false
}

// Foreach calls f on each element in s.
func (s *set) Foreach(f func(*Term)) {
	for _, term := range s.elems {
		f(term)
	}
}

// Contains returns true if t is in s.
func (s *set) Contains(t *Term) bool {
	_, found := s.search(t)
	return found
}

// Len returns the number of elements in the set.
func (s *set) Len() int {
	return len(s.elems)
}

// MarshalJSON returns JSON encoded bytes representing s.
func (s *set) MarshalJSON() ([]byte, error) {
	if s.elems == nil {
		return []byte(`[]`), nil
	}
	return json.Marshal(s.elems)
}

// Sorted returns an Array that contains the sorted elements of s.
func (s *set) Sorted() *Array {
	cpy := make([]*Term, len(s.elems))
	copy(cpy, s.elems)
	return NewArray(cpy...)
}

// Slice returns a slice of terms contained in the set.
func (s *set) Slice() []*Term {
	return s.elems
}

// Object represents an object as defined by the language.
type Object interface {
	Value
	Len() int
	Get(*Term) *Term
	Copy() Object
	Insert(*Term, *Term)
	Iter(func(*Term, *Term) error) error
	Until(func(key, value *Term) bool) bool
	Foreach(func(key, value *Term))
	Keys() []*Term
	Elem(i int) (*Term, *Term)
	Merge(other Object) (Object, bool)
	MergeWith(other Object, conflictResolver func(v1, v2 *Term) (*Term, bool)) (Object, bool)
}

// NewObject creates a new Object with t.
func NewObject(t ...[2]*Term) Object {
	obj := &object{elems: make([]objectElem, 0, len(t))}
	for _, pair := range t {
		obj.Insert(pair[0], pair[1])
	}
	return obj
}

// ObjectTerm creates a new Term with an Object value.
func ObjectTerm(o ...[2]*Term) *Term {
	return &Term{Value: NewObject(o...)}
}

// Item is a helper for constructing an tuple containing two Terms
// representing a key/value pair in an Object.
func Item(key, value *Term) [2]*Term {
	return [2]*Term{key, value}
}

type objectElem struct {
	key   *Term
	value *Term
}

// object keeps its elements sorted by key.
type object struct {
	elems []objectElem
}

// Compare compares obj to other, return <0, 0, or >0 if it is less than, equal to,
// or greater than other.
func (obj *object) Compare(other Value) int {
	return Compare(obj, other)
}

// Find returns the value at the key or undefined.
func (obj *object) Find(path Ref) (Value, error) {
	if len(path) == 0 {
		return obj, nil
	}
	value := obj.Get(path[0])
	if value == nil {
		return nil, errFindNotFound
	}
	return value.Value.Find(path[1:])
}

func (obj *object) search(k *Term) (int, bool) {
	i := sort.Search(len(obj.elems), func(i int) bool {
		return Compare(obj.elems[i].key.Value, k.Value) >= 0
	})
	return i, i < len(obj.elems) && Compare(obj.elems[i].key.Value, k.Value) == 0
}

// Insert adds k to the object with value v. If k already exists, the value
// is replaced. It must only be called while the object is being constructed.
func (obj *object) Insert(k, v *Term) {
	i, found := obj.search(k)
	if found {
		obj.elems[i].value = v
		return
	}
	obj.elems = append(obj.elems, objectElem{})
	copy(obj.elems[i+1:], obj.elems[i:])
	obj.elems[i] = objectElem{key: k, value: v}
}

// Get returns the value of k in obj if k exists, otherwise nil.
func (obj *object) Get(k *Term) *Term {
	i, found := obj.search(k)
	if !found {
		return nil
	}
	return obj.elems[i].value
}

// Hash returns the hash code for the Value.
func (obj *object) Hash() int {
	var hash int
	for _, e := range obj.elems {
		hash += e.key.Hash()*31 + e.value.Hash()
	}
	return hash
}

// IsGround returns true if all of the Object key/value pairs are ground.
func (obj *object) IsGround() bool {
	for _, e := range obj.elems {
		if !e.key.IsGround() || !e.value.IsGround() {
			return false
		}
	}
	return true
}

// Copy returns a deep copy of obj.
func (obj *object) Copy() Object {
	cpy := &object{elems: make([]objectElem, len(obj.elems))}
	for i, e := range obj.elems {
		cpy.elems[i] = objectElem{key: e.key.Copy(), value: e.value.Copy()}
	}
	return cpy
}

// Keys returns the keys of obj.
func (obj *object) Keys() []*Term {
	keys := make([]*Term, len(obj.elems))
	for i, e := range obj.elems {
		keys[i] = e.key
	}
	return keys
}

// Elem returns the key/value pair at position i.
func (obj *object) Elem(i int) (*Term, *Term) {
	return obj.elems[i].key, obj.elems[i].value
}

// Iter calls the function f for each key-value pair in the object. If f
// returns an error, iteration stops and the error is returned.
func (obj *object) Iter(f func(*Term, *Term) error) error {
	for _, e := range obj.elems {
		if err := f(e.key, e.value); err != nil {
			return err
		}
	}
	return nil
}

// Until calls f for each key-value pair in the object. If f returns
// true, iteration stops and Until returns true. Otherwise, return
// false.
func (obj *object) Until(f func(*Term, *Term) bool) bool {
	for _, e := range obj.elems {
		if f(e.key, e.value) {
			return true
		}
	}
	return false
}

// Foreach calls f for each key-value pair in the object.
func (obj *object) Foreach(f func(*Term, *Term)) {
	for _, e := range obj.elems {
		f(e.key, e.value)
	}
}

// Len returns the number of elements in the object.
func (obj *object) Len() int {
	return len(obj.elems)
}

// Merge returns a new Object containing the non-overlapping keys of obj and other. If there are
// overlapping keys between obj and other, the values of associated with the keys are merged. Only
// objects can be merged with other objects. If the values cannot be merged, the second turn value
// will be false.
func (obj *object) Merge(other Object) (Object, bool) {
	return obj.MergeWith(other, func(v1, v2 *Term) (*Term, bool) {
		obj1, ok1 := v1.Value.(Object)
		obj2, ok2 := v2.Value.(Object)
		if !ok1 || !ok2 {
			return nil, true
		}
		obj3, ok := obj1.Merge(obj2)
		if !ok {
			return nil, true
		}
		return NewTerm(obj3), false
	})
}

// MergeWith returns a new Object containing the merged keys of obj and other.
// If there are overlapping keys between obj and other, the conflictResolver
// is called. The conflictResolver can return a merged value and a boolean
// indicating if the merge has failed and should stop.
func (obj *object) MergeWith(other Object, conflictResolver func(v1, v2 *Term) (*Term, bool)) (Object, bool) {
	result := &object{elems: make([]objectElem, len(obj.elems))}
	copy(result.elems, obj.elems)
	stop := other.Until(func(k, v *Term) bool {
		v2 := obj.Get(k)
		if v2 == nil {
			result.Insert(k, v)
			return false
		}
		merged, stop := conflictResolver(v2, v)
		if stop {
			return true
		}
		result.Insert(k, merged)
		return false
	})
	if stop {
		return nil, false
	}
	return result, true
}

// MarshalJSON returns JSON encoded bytes representing obj.
func (obj *object) MarshalJSON() ([]byte, error) {
	sl := make([][2]*Term, len(obj.elems))
	for i, e := range obj.elems {
		sl[i] = [2]*Term{e.key, e.value}
	}
	return json.Marshal(sl)
}

func (obj *object) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, e := range obj.elems {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(e.key.String())
		sb.WriteString(": ")
		sb.WriteString(e.value.String())
	}
	sb.WriteByte('}')
	return sb.String()
}

// ArrayComprehension represents an array comprehension as defined in the language.
type ArrayComprehension struct {
	Term *Term `json:"term"`
	Body Body  `json:"body"`
}

// ArrayComprehensionTerm creates a new Term with an ArrayComprehension value.
func ArrayComprehensionTerm(term *Term, body Body) *Term {
	return &Term{
		Value: &ArrayComprehension{
			Term: term,
			Body: body,
		},
	}
}

// Copy returns a deep copy of ac.
func (ac *ArrayComprehension) Copy() *ArrayComprehension {
	cpy := *ac
	cpy.Body = ac.Body.Copy()
	cpy.Term = ac.Term.Copy()
	return &cpy
}

// Equal returns true if ac is equal to other.
func (ac *ArrayComprehension) Equal(other Value) bool {
	return Compare(ac, other) == 0
}

// Compare compares ac to other, return <0, 0, or >0 if it is less than, equal to,
// or greater than other.
func (ac *ArrayComprehension) Compare(other Value) int {
	return Compare(ac, other)
}

// Find returns the current value or a not found error.
func (ac *ArrayComprehension) Find(path Ref) (Value, error) {
	if len(path) == 0 {
		return ac, nil
	}
	return nil, errFindNotFound
}

// Hash returns the hash code of the Value.
func (ac *ArrayComprehension) Hash() int {
	return ac.Term.Hash() + ac.Body.Hash()
}

// IsGround returns true if the Term and Body are ground.
func (ac *ArrayComprehension) IsGround() bool {
	return ac.Term.IsGround() && ac.Body.IsGround()
}

func (ac *ArrayComprehension) String() string {
	return "[" + ac.Term.String() + " | " + ac.Body.String() + "]"
}

// ObjectComprehension represents an object comprehension as defined in the language.
type ObjectComprehension struct {
	Key   *Term `json:"key"`
	Value *Term `json:"value"`
	Body  Body  `json:"body"`
}

// ObjectComprehensionTerm creates a new Term with an ObjectComprehension value.
func ObjectComprehensionTerm(key, value *Term, body Body) *Term {
	return &Term{
		Value: &ObjectComprehension{
			Key:   key,
			Value: value,
			Body:  body,
		},
	}
}

// Copy returns a deep copy of oc.
func (oc *ObjectComprehension) Copy() *ObjectComprehension {
	cpy := *oc
	cpy.Body = oc.Body.Copy()
	cpy.Key = oc.Key.Copy()
	cpy.Value = oc.Value.Copy()
	return &cpy
}

// Equal returns true if oc is equal to other.
func (oc *ObjectComprehension) Equal(other Value) bool {
	return Compare(oc, other) == 0
}

// Compare compares oc to other, return <0, 0, or >0 if it is less than, equal to,
// or greater than other.
func (oc *ObjectComprehension) Compare(other Value) int {
	return Compare(oc, other)
}

// Find returns the current value or a not found error.
func (oc *ObjectComprehension) Find(path Ref) (Value, error) {
	if len(path) == 0 {
		return oc, nil
	}
	return nil, errFindNotFound
}

// Hash returns the hash code of the Value.
func (oc *ObjectComprehension) Hash() int {
	return oc.Key.Hash() + oc.Value.Hash() + oc.Body.Hash()
}

// IsGround returns true if the Key, Value and Body are ground.
func (oc *ObjectComprehension) IsGround() bool {
	return oc.Key.IsGround() && oc.Value.IsGround() && oc.Body.IsGround()
}

func (oc *ObjectComprehension) String() string {
	return "{" + oc.Key.String() + ": " + oc.Value.String() + " | " + oc.Body.String() + "}"
}

// SetComprehension represents a set comprehension as defined in the language.
type SetComprehension struct {
	Term *Term `json:"term"`
	Body Body  `json:"body"`
}

// SetComprehensionTerm creates a new Term with an SetComprehension value.
func SetComprehensionTerm(term *Term, body Body) *Term {
	return &Term{
		Value: &SetComprehension{
			Term: term,
			Body: body,
		},
	}
}

// Copy returns a deep copy of sc.
func (sc *SetComprehension) Copy() *SetComprehension {
	cpy := *sc
	cpy.Body = sc.Body.Copy()
	cpy.Term = sc.Term.Copy()
	return &cpy
}

// Equal returns true if sc is equal to other.
func (sc *SetComprehension) Equal(other Value) bool {
	return Compare(sc, other) == 0
}

// Compare compares sc to other, return <0, 0, or >0 if it is less than, equal to,
// or greater than other.
func (sc *SetComprehension) Compare(other Value) int {
	return Compare(sc, other)
}

// Find returns the current value or a not found error.
func (sc *SetComprehension) Find(path Ref) (Value, error) {
	if len(path) == 0 {
		return sc, nil
	}
	return nil, errFindNotFound
}

// Hash returns the hash code of the Value.
func (sc *SetComprehension) Hash() int {
	return sc.Term.Hash() + sc.Body.Hash()
}

// IsGround returns true if the Term and Body are ground.
func (sc *SetComprehension) IsGround() bool {
	return sc.Term.IsGround() && sc.Body.IsGround()
}

func (sc *SetComprehension) String() string {
	return "{" + sc.Term.String() + " | " + sc.Body.String() + "}"
}

// Call represents as function call in the language.
type Call []*Term

// CallTerm returns a new Term with a Call value defined by terms. The first
// term is the operator and the rest are operands.
func CallTerm(terms ...*Term) *Term {
	return NewTerm(Call(terms))
}

// Copy returns a deep copy of c.
func (c Call) Copy() Call {
	return termSliceCopy(c)
}

// Compare compares c to other, return <0, 0, or >0 if it is less than, equal to,
// or greater than other.
func (c Call) Compare(other Value) int {
	return Compare(c, other)
}

// Find returns the current value or a not found error.
func (Call) Find(Ref) (Value, error) {
	return nil, errFindNotFound
}

// Hash returns the hash code for the Value.
func (c Call) Hash() int {
	return termSliceHash(c)
}

// IsGround returns false.
func (Call) IsGround() bool {
	return false
}

// Operator returns the reference of the function being called.
func (c Call) Operator() Ref {
	return c[0].Value.(Ref)
}

// Operands returns the arguments of the call.
func (c Call) Operands() []*Term {
	return c[1:]
}

func (c Call) String() string {
	args := make([]string, len(c)-1)
	for i := 1; i < len(c); i++ {
		args[i-1] = c[i].String()
	}
	return fmt.Sprintf("%v(%v)", c[0], strings.Join(args, ", "))
}

// IsConstant returns true if the AST value is constant.
func IsConstant(v Value) bool {
	found := false
	vis := NewGenericVisitor(func(x interface{}) bool {
		switch x.(type) {
		case Var, Ref, *ArrayComprehension, *ObjectComprehension, *SetComprehension, Call:
			found = true
			return true
		}
		return false
	})
	vis.Walk(v)
	return !found
}

// IsScalar returns true if the AST value is a scalar.
func IsScalar(v Value) bool {
	switch v.(type) {
	case String, Number, Boolean, Null:
		return true
	}
	return false
}

// IsComprehension returns true if the supplied value is a comprehension.
func IsComprehension(x Value) bool {
	switch x.(type) {
	case *ArrayComprehension, *ObjectComprehension, *SetComprehension:
		return true
	}
	return false
}

// IsCollection returns true if v is an array, object, or set.
func IsCollection(v Value) bool {
	switch v.(type) {
	case *Array, Object, Set:
		return true
	}
	return false
}

func termSliceCopy(a []*Term) []*Term {
	cpy := make([]*Term, len(a))
	for i := range a {
		cpy[i] = a[i].Copy()
	}
	return cpy
}

func termSliceEqual(a, b []*Term) bool {
	if len(a) == len(b) {
		for i := range a {
			if !a[i].Equal(b[i]) {
				return false
			}
		}
		return true
	}
	return false
}

func termSliceHash(a []*Term) int {
	var hash int
	for _, v := range a {
		hash = hash*31 + v.Value.Hash()
	}
	return hash
}

func termSliceIsGround(a []*Term) bool {
	for _, v := range a {
		if !v.IsGround() {
			return false
		}
	}
	return true
}
