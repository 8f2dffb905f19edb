// Copyright 2018 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package presentation prints results of an expression evaluation in
// json and tabular formats.
package presentation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/regolith-dev/regolith/ast"
	"github.com/regolith-dev/regolith/loader"
	"github.com/regolith-dev/regolith/metrics"
	"github.com/regolith-dev/regolith/rego"
	"github.com/regolith-dev/regolith/topdown"
)

// Output formats accepted by the eval command.
const (
	JSONFormat     = "json"
	ValuesFormat   = "values"
	BindingsFormat = "bindings"
	PrettyFormat   = "pretty"
	RawFormat      = "raw"
)

// Formats lists the names accepted by Write.
var Formats = []string{JSONFormat, ValuesFormat, BindingsFormat, PrettyFormat, RawFormat}

// DepsOutput contains the evaluation order of a rule and its transitive
// dependencies.
type DepsOutput struct {
	Rule  string   `json:"rule"`
	Order []string `json:"order"`
}

// JSON outputs o to w as JSON.
func (o DepsOutput) JSON(w io.Writer) error {
	return JSON(w, o)
}

// Pretty outputs o to w as a single column table in evaluation order.
func (o DepsOutput) Pretty(w io.Writer) error {
	if len(o.Order) == 0 {
		return nil
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Evaluation Order"})
	table.SetAutoWrapText(false)
	for _, r := range o.Order {
		table.Append([]string{r})
	}
	table.Render()

	return nil
}

// Output contains the result of evaluation to be presented.
type Output struct {
	Errors      OutputErrors     `json:"errors,omitempty"`
	Result      rego.ResultSet   `json:"result,omitempty"`
	Metrics     metrics.Metrics  `json:"metrics,omitempty"`
	Explanation []*topdown.Event `json:"explanation,omitempty"`
	limit       int
}

// WithLimit sets the output limit to set on stringified values.
func (e Output) WithLimit(n int) Output {
	e.limit = n
	return e
}

func (e Output) undefined() bool {
	return len(e.Result) == 0
}

// Write prints r to w in the named format.
func Write(w io.Writer, format string, r Output) error {
	switch format {
	case ValuesFormat:
		return Values(w, r)
	case BindingsFormat:
		return Bindings(w, r)
	case PrettyFormat:
		return Pretty(w, r)
	case RawFormat:
		return Raw(w, r)
	case JSONFormat, "":
		return JSON(w, r)
	}
	return fmt.Errorf("unknown output format %q", format)
}

// NewOutputErrors creates a new slice of OutputError's based
// on the type of error passed in. Known structured types will
// be translated as appropriate, while unknown errors are
// placed into a structured format with their string value.
func NewOutputErrors(err error) []OutputError {
	var errs []OutputError
	if err == nil {
		return nil
	}

	var astErr *ast.Error
	var evalErr *topdown.Error

	switch typedErr := err.(type) {

	// Wrappers for other errors are formatted recursively.
	case ast.Errors:
		for _, e := range typedErr {
			if e != nil {
				errs = append(errs, NewOutputErrors(e)...)
			}
		}
		return errs
	case rego.Errors:
		for _, e := range typedErr {
			if e != nil {
				errs = append(errs, NewOutputErrors(e)...)
			}
		}
		return errs
	case loader.Errors:
		for _, e := range typedErr {
			if e != nil {
				errs = append(errs, NewOutputErrors(e)...)
			}
		}
		return errs
	}

	switch {
	case errors.As(err, &astErr):
		oe := OutputError{
			Code:    astErr.Code,
			Message: astErr.Message,
			Details: astErr.Details,
			err:     err,
		}
		if astErr.Location != nil {
			oe.Location = astErr.Location
		}
		errs = []OutputError{oe}
	case errors.As(err, &evalErr):
		oe := OutputError{
			Code:    evalErr.Code,
			Message: evalErr.Message,
			err:     err,
		}
		if evalErr.Location != nil {
			oe.Location = evalErr.Location
		}
		errs = []OutputError{oe}
	default:
		// Errors without a known structure keep their string form only.
		errs = []OutputError{{
			Message: err.Error(),
			err:     err,
		}}
	}
	return errs
}

// OutputErrors is a list of errors encountered
// which are to presented.
type OutputErrors []OutputError

func (e OutputErrors) Error() string {
	if len(e) == 0 {
		return "no error(s)"
	}

	var prefix string
	if len(e) == 1 {
		prefix = "1 error occurred: "
	} else {
		prefix = fmt.Sprintf("%d errors occurred:\n", len(e))
	}

	s := make([]string, 0, len(e))
	for _, err := range e {
		s = append(s, err.Error())
	}

	return prefix + strings.Join(s, "\n")
}

// OutputError provides a common structure for all errors so that the JSON
// output given by the presentation package is consistent and parsable.
type OutputError struct {
	Message  string      `json:"message"`
	Code     string      `json:"code,omitempty"`
	Location interface{} `json:"location,omitempty"`
	Details  interface{} `json:"details,omitempty"`
	err      error
}

func (j OutputError) Error() string {
	if j.err == nil {
		return j.Message
	}
	return j.err.Error()
}

// JSON writes x to w with indentation.
func JSON(w io.Writer, x interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(x)
}

// Bindings prints the bindings from r to w.
func Bindings(w io.Writer, r Output) error {
	if r.Errors != nil {
		return prettyError(w, r.Errors)
	}
	for _, rs := range r.Result {
		if err := JSON(w, rs.Bindings); err != nil {
			return err
		}
	}
	return nil
}

// Values prints the values from r to w.
func Values(w io.Writer, r Output) error {
	if r.Errors != nil {
		return prettyError(w, r.Errors)
	}
	for _, rs := range r.Result {
		line := make([]interface{}, len(rs.Expressions))
		for i := range line {
			line[i] = rs.Expressions[i].Value
		}
		if err := JSON(w, line); err != nil {
			return err
		}
	}
	return nil
}

// Pretty prints all of r to w in a human-readable format.
func Pretty(w io.Writer, r Output) error {
	if len(r.Explanation) > 0 {
		topdown.PrettyTraceWithLocation(w, r.Explanation)
	}
	if r.Errors != nil {
		if err := prettyError(w, r.Errors); err != nil {
			return err
		}
	} else if r.undefined() {
		fmt.Fprintln(w, "undefined")
	} else if err := prettyResult(w, r.Result, r.limit); err != nil {
		return err
	}
	if r.Metrics != nil {
		prettyMetrics(w, r.Metrics, r.limit)
	}
	return nil
}

// Raw prints the values from r to w. Each result is written on a separate
// line, and the expressions are separated by spaces. Strings are written
// directly rather than formatted as compact JSON strings.
func Raw(w io.Writer, r Output) error {
	if r.Errors != nil {
		return prettyError(w, r.Errors)
	}

	for _, rs := range r.Result {
		for i, expr := range rs.Expressions {
			if str, ok := expr.Value.(string); ok {
				fmt.Fprint(w, str)
			} else {
				bs, err := json.Marshal(expr.Value)
				if err != nil {
					return err
				}
				fmt.Fprint(w, string(bs))
			}

			if i+1 >= len(rs.Expressions) {
				fmt.Fprintln(w, "")
			} else {
				fmt.Fprint(w, " ")
			}
		}
	}

	return nil
}

func prettyError(w io.Writer, errs OutputErrors) error {
	_, err := fmt.Fprintln(w, errs)
	return err
}

func prettyResult(w io.Writer, rs rego.ResultSet, limit int) error {

	if len(rs) == 1 && len(rs[0].Bindings) == 0 {
		if len(rs[0].Expressions) == 1 || allBoolean(rs[0].Expressions) {
			return JSON(w, rs[0].Expressions[0].Value)
		}
	}

	keys := generateResultKeys(rs)
	table := generateTableBindings(w, keys, rs, limit)
	if table.NumLines() > 0 {
		table.Render()
	}

	return nil
}

func prettyMetrics(w io.Writer, m metrics.Metrics, limit int) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Metric", "Value"})
	table.SetAlignment(tablewriter.ALIGN_CENTER)
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT})

	lines := [][]string{}
	for name, value := range m.All() {
		stats, ok := value.(map[string]interface{})
		if !ok {
			lines = append(lines, []string{name, checkStrLimit(fmt.Sprint(value), limit)})
			continue
		}
		for k, v := range stats {
			lines = append(lines, []string{name + "_" + k, checkStrLimit(fmt.Sprint(v), limit)})
		}
	}
	sort.Slice(lines, func(i, j int) bool {
		return lines[i][0] < lines[j][0]
	})
	table.AppendBulk(lines)

	if table.NumLines() > 0 {
		table.Render()
	}
}

func checkStrLimit(input string, limit int) string {
	if limit > 0 && len(input) > limit {
		return input[:limit] + "..."
	}
	return input
}

func generateTableBindings(w io.Writer, keys []resultKey, rs rego.ResultSet, limit int) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAlignment(tablewriter.ALIGN_CENTER)
	table.SetAutoFormatHeaders(false)
	header := make([]string, len(keys))
	alignment := make([]int, len(keys))
	for i := range keys {
		header[i] = keys[i].string()
		alignment[i] = tablewriter.ALIGN_LEFT
	}
	table.SetHeader(header)
	table.SetColumnAlignment(alignment)

	for _, row := range rs {
		buf := make([]string, 0, len(keys))
		for _, k := range keys {
			js, err := json.Marshal(k.selectVarValue(row))
			if err != nil {
				buf = append(buf, err.Error())
				continue
			}
			buf = append(buf, checkStrLimit(string(js), limit))
		}
		table.Append(buf)
	}
	return table
}

// resultKey names a column of the bindings table: either a variable or an
// expression by position.
type resultKey struct {
	varName   string
	exprIndex int
	exprText  string
}

func resultKeyLess(a, b resultKey) bool {
	if a.varName != "" {
		if b.varName == "" {
			return true
		}
		return a.varName < b.varName
	}
	return a.exprIndex < b.exprIndex
}

func (rk resultKey) string() string {
	if rk.varName != "" {
		return rk.varName
	}
	return rk.exprText
}

func (rk resultKey) selectVarValue(result rego.Result) interface{} {
	if rk.varName != "" {
		return result.Bindings[rk.varName]
	}
	return result.Expressions[rk.exprIndex].Value
}

func generateResultKeys(rs rego.ResultSet) []resultKey {
	keys := []resultKey{}
	if len(rs) == 0 {
		return keys
	}

	for k := range rs[0].Bindings {
		keys = append(keys, resultKey{varName: k})
	}

	// Expressions that evaluated to true only contribute when nothing was
	// bound.
	for i, expr := range rs[0].Expressions {
		if _, ok := expr.Value.(bool); !ok || len(rs[0].Bindings) == 0 {
			keys = append(keys, resultKey{exprIndex: i, exprText: expr.Text})
		}
	}

	sort.Slice(keys, func(i, j int) bool {
		return resultKeyLess(keys[i], keys[j])
	})
	return keys
}

func allBoolean(ev []*rego.ExpressionValue) bool {
	for i := range ev {
		if _, ok := ev[i].Value.(bool); !ok {
			return false
		}
	}
	return true
}
