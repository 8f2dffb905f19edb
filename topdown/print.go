// Copyright 2021 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package topdown

import (
	"fmt"
	"io"
	"strings"

	"github.com/regolith-dev/regolith/ast"
	"github.com/regolith-dev/regolith/logging"
	"github.com/regolith-dev/regolith/topdown/builtins"
	"github.com/regolith-dev/regolith/topdown/print"
)

// NewPrintHook returns a print.Hook that writes each message on its own
// line to w.
func NewPrintHook(w io.Writer) print.Hook {
	return printHook{w: w}
}

type printHook struct {
	w io.Writer
}

func (h printHook) Print(_ print.Context, msg string) error {
	_, err := fmt.Fprintln(h.w, msg)
	return err
}

// NewLoggerPrintHook returns a print.Hook that logs each message at info
// level together with the location of the print call.
func NewLoggerPrintHook(logger logging.Logger) print.Hook {
	return loggerPrintHook{logger: logger}
}

type loggerPrintHook struct {
	logger logging.Logger
}

func (h loggerPrintHook) Print(pctx print.Context, msg string) error {
	logger := h.logger
	if pctx.Location != nil {
		logger = logger.WithFields(map[string]interface{}{"location": pctx.Location.String()})
	}
	logger.Info("%v", msg)
	return nil
}

// builtinPrint receives one set per print operand holding every value the
// operand evaluated to. An empty set prints as <undefined>. Operands with
// several values print one line per combination.
func builtinPrint(bctx BuiltinContext, operands []*ast.Term, iter func(*ast.Term) error) error {

	if bctx.PrintHook == nil {
		return iter(ast.BooleanTerm(true))
	}

	sets := make([]ast.Set, len(operands))
	for i := range operands {
		s, err := builtins.SetOperand(operands[i].Value, i+1)
		if err != nil {
			return err
		}
		sets[i] = s
	}

	buf := make([]string, len(sets))
	pctx := print.Context{
		Context:  bctx.Context,
		Location: bctx.Location,
	}

	err := printCrossProduct(buf, sets, 0, func(buf []string) error {
		return bctx.PrintHook.Print(pctx, strings.Join(buf, " "))
	})
	if err != nil {
		return err
	}

	return iter(ast.BooleanTerm(true))
}

func printCrossProduct(buf []string, sets []ast.Set, i int, f func([]string) error) error {

	if i >= len(sets) {
		return f(buf)
	}

	if sets[i].Len() == 0 {
		buf[i] = "<undefined>"
		return printCrossProduct(buf, sets, i+1, f)
	}

	return sets[i].Iter(func(x *ast.Term) error {
		buf[i] = formatPrintOperand(x)
		return printCrossProduct(buf, sets, i+1, f)
	})
}

func formatPrintOperand(x *ast.Term) string {
	if s, ok := x.Value.(ast.String); ok {
		return string(s)
	}
	return x.String()
}

func init() {
	RegisterBuiltinFunc(ast.Print.Name, builtinPrint)
}
