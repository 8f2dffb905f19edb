// Copyright 2024 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package ast

import (
	"encoding/json"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// DecimalContext is the context used for arithmetic on Number values. Results
// that cannot be represented exactly are rounded to 34 significant digits.
var DecimalContext = apd.BaseContext.WithPrecision(34)

// Number represents a numeric value as defined by JSON. The textual form is
// kept as-is so that precision is never lost while a value is passed through
// the interpreter.
type Number json.Number

// NumberTerm creates a new Term with a Number value.
func NumberTerm(n json.Number) *Term {
	return &Term{Value: Number(n)}
}

// IntNumberTerm creates a new Term with an integer Number value.
func IntNumberTerm(i int) *Term {
	return &Term{Value: Number(strconv.Itoa(i))}
}

// Int64NumberTerm creates a new Term with an int64 Number value.
func Int64NumberTerm(i int64) *Term {
	return &Term{Value: Number(strconv.FormatInt(i, 10))}
}

// FloatNumberTerm creates a new Term with a floating point Number value.
func FloatNumberTerm(f float64) *Term {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	return &Term{Value: Number(s)}
}

// DecimalNumber returns the canonical Number for d: trailing zeros are
// removed and negative zero becomes zero.
func DecimalNumber(d *apd.Decimal) Number {
	var r apd.Decimal
	r.Reduce(d)
	if r.IsZero() {
		return Number("0")
	}
	if r.Exponent > 1000 || r.Exponent < -1000 {
		return Number(r.Text('E'))
	}
	return Number(r.Text('f'))
}

// BigIntNumber returns the Number for the integer i.
func BigIntNumber(i *big.Int) Number {
	return Number(i.String())
}

// Decimal returns the arbitrary precision decimal for num.
func (num Number) Decimal() (*apd.Decimal, bool) {
	d, _, err := apd.NewFromString(string(num))
	if err != nil {
		return nil, false
	}
	return d, true
}

// BigInt returns the integer value of num if num is integral.
func (num Number) BigInt() (*big.Int, bool) {
	i, ok := new(big.Int).SetString(string(num), 10)
	if ok {
		return i, true
	}
	d, ok := num.Decimal()
	if !ok {
		return nil, false
	}
	var r apd.Decimal
	r.Reduce(d)
	if r.Exponent < 0 {
		return nil, false
	}
	var integ apd.Decimal
	if _, err := DecimalContext.RoundToIntegralExact(&integ, &r); err != nil {
		return nil, false
	}
	return new(big.Int).SetString(integ.Text('f'), 10)
}

// Int returns the int representation of num if possible.
func (num Number) Int() (int, bool) {
	i64, ok := num.Int64()
	if !ok || i64 > math.MaxInt || i64 < math.MinInt {
		return 0, false
	}
	return int(i64), true
}

// Int64 returns the int64 representation of num if possible.
func (num Number) Int64() (int64, bool) {
	if i, err := strconv.ParseInt(string(num), 10, 64); err == nil {
		return i, true
	}
	d, ok := num.Decimal()
	if !ok {
		return 0, false
	}
	var r apd.Decimal
	r.Reduce(d)
	i, err := r.Int64()
	if err != nil {
		return 0, false
	}
	return i, true
}

// Float64 returns the float64 representation of num if possible.
func (num Number) Float64() (float64, bool) {
	f, err := strconv.ParseFloat(string(num), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// IsInteger returns true if num has no fractional part.
func (num Number) IsInteger() bool {
	if _, err := strconv.ParseInt(string(num), 10, 64); err == nil {
		return true
	}
	d, ok := num.Decimal()
	if !ok {
		return false
	}
	var r apd.Decimal
	r.Reduce(d)
	return r.Exponent >= 0
}

// Compare compares num to other, return <0, 0, or >0 if it is less than, equal to,
// or greater than other.
func (num Number) Compare(other Value) int {
	return Compare(num, other)
}

// Find returns the current value or a not found error.
func (num Number) Find(path Ref) (Value, error) {
	if len(path) == 0 {
		return num, nil
	}
	return nil, errFindNotFound
}

// Hash returns the hash code for the Value. Numbers that compare equal hash
// equally regardless of their textual form.
func (num Number) Hash() int {
	f, ok := num.Float64()
	if !ok {
		return int(hashString(string(num)))
	}
	if f == 0 {
		return 0
	}
	return int(math.Float64bits(f))
}

// IsGround always returns true.
func (Number) IsGround() bool {
	return true
}

// MarshalJSON returns JSON encoded bytes representing num.
func (num Number) MarshalJSON() ([]byte, error) {
	return json.Marshal(json.Number(num))
}

func (num Number) String() string {
	return string(num)
}

// NumberCompare compares x and y as arbitrary precision decimals.
func NumberCompare(x, y Number) int {
	if x == y {
		return 0
	}
	if a, err := strconv.ParseInt(string(x), 10, 64); err == nil {
		if b, err := strconv.ParseInt(string(y), 10, 64); err == nil {
			switch {
			case a < b:
				return -1
			case a > b:
				return 1
			}
			return 0
		}
	}
	a, okA := x.Decimal()
	b, okB := y.Decimal()
	if !okA || !okB {
		return strings.Compare(string(x), string(y))
	}
	return a.Cmp(b)
}
