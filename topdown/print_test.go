// Copyright 2021 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package topdown

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/regolith-dev/regolith/ast"
	"github.com/regolith-dev/regolith/logging"
	loggingtest "github.com/regolith-dev/regolith/logging/test"
)

func TestTopDownPrint(t *testing.T) {

	tests := []struct {
		note     string
		rules    []string
		input    string
		expected string
	}{
		{
			note:     "strings and values",
			rules:    []string{`p if { print("hello", 1, [2], {"a": "b"}) }`},
			expected: "hello 1 [2] {\"a\": \"b\"}\n",
		},
		{
			note:     "undefined operand",
			rules:    []string{`p if { print("x:", input.missing) }`},
			input:    `{}`,
			expected: "x: <undefined>\n",
		},
		{
			note:     "multiple values",
			rules:    []string{`p if { print("v", q[_]) }`, `q := [1, 2]`},
			expected: "v 1\nv 2\n",
		},
		{
			note:     "iteration",
			rules:    []string{`p if { some x in [1, 2]; print(x) }`},
			expected: "1\n2\n",
		},
	}

	for _, tc := range tests {
		t.Run(tc.note, func(t *testing.T) {
			compiler := compileModules([]string{"package test\n\n" + joinRules(tc.rules)})

			buf := bytes.NewBuffer(nil)

			query := NewQuery(ast.MustParseBody("data.test.p = x")).
				WithCompiler(compiler).
				WithPrintHook(NewPrintHook(buf))

			if tc.input != "" {
				query = query.WithInput(ast.MustParseTerm(tc.input))
			}

			qrs, err := query.Run(context.Background())
			if err != nil {
				t.Fatal(err)
			}

			if len(qrs) != 1 {
				t.Fatalf("Expected print to succeed but got: %v", qrs)
			}

			if diff := cmp.Diff(tc.expected, buf.String()); diff != "" {
				t.Fatalf("Unexpected output (-want, +got):\n%v", diff)
			}
		})
	}
}

func TestTopDownPrintWithoutHook(t *testing.T) {

	compiler := compileModules([]string{`package test

p if { print("ignored") }`})

	qrs, err := NewQuery(ast.MustParseBody("data.test.p = x")).WithCompiler(compiler).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if len(qrs) != 1 {
		t.Fatalf("Expected print to succeed without a hook but got: %v", qrs)
	}
}

func TestTopDownPrintToLogger(t *testing.T) {

	compiler := compileModules([]string{`package test

p if { print("to the log", 7) }`})

	logger := loggingtest.New()

	_, err := NewQuery(ast.MustParseBody("data.test.p = x")).
		WithCompiler(compiler).
		WithLogger(logger).
		Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	entries := logger.Entries()
	if len(entries) != 1 {
		t.Fatalf("Expected one log entry but got: %v", entries)
	}

	if entries[0].Level != logging.Info || entries[0].Message != "to the log 7" {
		t.Fatalf("Unexpected log entry: %+v", entries[0])
	}

	if _, ok := entries[0].Fields["location"]; !ok {
		t.Fatalf("Expected location field but got: %v", entries[0].Fields)
	}
}

func joinRules(rules []string) string {
	var buf bytes.Buffer
	for i, r := range rules {
		if i > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(r)
	}
	return buf.String()
}
