// Copyright 2018 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/sebdah/goldie/v2"

	"github.com/regolith-dev/regolith/loader"
	"github.com/regolith-dev/regolith/logging"
	"github.com/regolith-dev/regolith/logging/test"
	pr "github.com/regolith-dev/regolith/presentation"
	utiltest "github.com/regolith-dev/regolith/util/test"
)

func TestEvalExitCode(t *testing.T) {
	params := newEvalCommandParams()
	params.fail = true

	tests := []struct {
		note        string
		query       string
		wantDefined bool
		wantErr     bool
	}{
		{"defined result", "true=true", true, false},
		{"undefined result", "true = false", false, false},
		{"on error", `{k: v | v = [0,1][_]; k = "a"}`, false, true},
	}

	for _, tc := range tests {
		t.Run(tc.note, func(t *testing.T) {
			var buf bytes.Buffer
			defined, err := eval([]string{tc.query}, params, &buf)
			if tc.wantErr && err == nil {
				t.Fatal("wanted error but got success")
			} else if !tc.wantErr && err != nil {
				t.Fatal("wanted success but got error:", err)
			} else if (tc.wantDefined && !defined) || (!tc.wantDefined && defined) {
				t.Fatalf("wanted defined %v but got defined %v", tc.wantDefined, defined)
			}
		})
	}
}

func TestEvalErrorOutput(t *testing.T) {
	params := newEvalCommandParams()

	var buf bytes.Buffer
	_, err := eval([]string{`{k: v | v = [0,1][_]; k = "a"}`}, params, &buf)
	if _, ok := err.(regoError); !ok {
		t.Fatalf("Expected rego error but got: %v", err)
	}

	var output pr.Output
	if err := json.Unmarshal(buf.Bytes(), &output); err != nil {
		t.Fatal(err)
	}
	if len(output.Errors) != 1 || output.Errors[0].Code != "eval_conflict_error" {
		t.Fatalf("Expected conflict error but got: %v", buf.String())
	}
}

func TestEvalWithData(t *testing.T) {
	files := map[string]string{
		"/policy.rego": "package test\n\np := data.base + 1",
		"/data.json":   `{"base": 1}`,
	}

	utiltest.WithTempFS(files, func(path string) {
		params := newEvalCommandParams()
		params.dataPaths = newrepeatedStringFlag([]string{path})
		_ = params.outputFormat.Set(pr.ValuesFormat)

		var buf bytes.Buffer
		defined, err := eval([]string{"data.test.p"}, params, &buf)
		if !defined || err != nil {
			t.Fatalf("Unexpected undefined or error: %v", err)
		}

		if exp := "[\n  2\n]\n"; buf.String() != exp {
			t.Fatalf("Expected %q but got %q", exp, buf.String())
		}
	})
}

func TestEvalLoadError(t *testing.T) {
	files := map[string]string{
		"/a.json": `{"x": 1}`,
		"/b.json": `{"x": 2}`,
	}

	utiltest.WithTempFS(files, func(path string) {
		params := newEvalCommandParams()
		params.dataPaths = newrepeatedStringFlag([]string{path})

		var buf bytes.Buffer
		_, err := eval([]string{"data"}, params, &buf)
		if _, ok := err.(regoError); !ok {
			t.Fatalf("Expected rego error but got: %v", err)
		}
		if !strings.Contains(buf.String(), "merge error") {
			t.Fatalf("Expected merge error in output but got: %v", buf.String())
		}
	})
}

func TestEvalInput(t *testing.T) {
	files := map[string]string{
		"/input.yaml": "user: alice\nroles: [admin]\n",
	}

	utiltest.WithTempFS(files, func(path string) {
		params := newEvalCommandParams()
		params.inputPath = filepath.Join(path, "input.yaml")
		_ = params.outputFormat.Set(pr.RawFormat)

		var buf bytes.Buffer
		defined, err := eval([]string{`input.user; input.roles[0] == "admin"`}, params, &buf)
		if !defined || err != nil {
			t.Fatalf("Unexpected undefined or error: %v", err)
		}

		if exp := "alice true\n"; buf.String() != exp {
			t.Fatalf("Expected %q but got %q", exp, buf.String())
		}
	})
}

func TestEvalPackageAndImports(t *testing.T) {
	files := map[string]string{
		"/policy.rego": "package test\n\np := 7\n\nq := {\"a\": 1}",
	}

	tests := []struct {
		note    string
		pkg     string
		imports []string
		query   string
	}{
		{note: "package", pkg: "test", query: "p"},
		{note: "import", imports: []string{"data.test.p"}, query: "p"},
		{note: "import alias", imports: []string{"data.test.p as seven"}, query: "seven"},
		{note: "package and import", pkg: "other", imports: []string{"data.test.q"}, query: "q.a + 6"},
	}

	utiltest.WithTempFS(files, func(path string) {
		for _, tc := range tests {
			t.Run(tc.note, func(t *testing.T) {
				params := newEvalCommandParams()
				params.dataPaths = newrepeatedStringFlag([]string{path})
				params.pkg = tc.pkg
				params.imports = newrepeatedStringFlag(tc.imports)
				_ = params.outputFormat.Set(pr.ValuesFormat)

				var buf bytes.Buffer
				defined, err := eval([]string{tc.query}, params, &buf)
				if !defined || err != nil {
					t.Fatalf("Unexpected undefined or error: %v\n%v", err, buf.String())
				}
				if exp := "[\n  7\n]\n"; buf.String() != exp {
					t.Fatalf("Expected %q but got %q", exp, buf.String())
				}
			})
		}
	})
}

func TestNewQueryContext(t *testing.T) {
	qctx, err := newQueryContext("", nil)
	if qctx != nil || err != nil {
		t.Fatalf("Expected no query context but got %v %v", qctx, err)
	}

	qctx, err = newQueryContext("a.b", []string{"data.x", "data.y as z"})
	if err != nil {
		t.Fatal(err)
	}
	if qctx.Package.Path.String() != "data.a.b" || len(qctx.Imports) != 2 || qctx.Imports[1].Alias != "z" {
		t.Fatalf("Unexpected query context: %v %v", qctx.Package, qctx.Imports)
	}

	if _, err := newQueryContext("a", []string{"p := 1"}); err == nil {
		t.Fatal("Expected error for non-import statement")
	}
}

func TestEvalPretty(t *testing.T) {
	files := map[string]string{
		"/a.json": `{"a": [1, 2]}`,
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata"),
		goldie.WithNameSuffix(".golden"),
	)

	utiltest.WithTempFS(files, func(path string) {
		params := newEvalCommandParams()
		params.dataPaths = newrepeatedStringFlag([]string{path})
		_ = params.outputFormat.Set(pr.PrettyFormat)

		var buf bytes.Buffer
		if _, err := eval([]string{"x = data.a[_]"}, params, &buf); err != nil {
			t.Fatal(err)
		}
		g.Assert(t, "eval_pretty", buf.Bytes())
	})
}

func TestEvalExplain(t *testing.T) {
	params := newEvalCommandParams()
	_ = params.explain.Set(explainModeFull)
	_ = params.outputFormat.Set(pr.PrettyFormat)

	var buf bytes.Buffer
	if _, err := eval([]string{"1 == 1"}, params, &buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Enter") || !strings.HasSuffix(buf.String(), "true\n") {
		t.Fatalf("Expected explanation followed by result but got:\n%v", buf.String())
	}
}

func TestEvalMetrics(t *testing.T) {
	tests := []struct {
		note   string
		format string
		want   string
	}{
		{note: "json", format: metricsFormatJSON, want: `"timer_regolith_query_eval_ns"`},
		{note: "prometheus", format: metricsFormatPrometheus, want: "# TYPE timer_regolith_query_eval_ns counter"},
	}

	for _, tc := range tests {
		t.Run(tc.note, func(t *testing.T) {
			params := newEvalCommandParams()
			params.metrics = true
			_ = params.metricsFormat.Set(tc.format)

			var buf bytes.Buffer
			if _, err := eval([]string{"x := 1"}, params, &buf); err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(buf.String(), tc.want) {
				t.Fatalf("Expected %q in output:\n%v", tc.want, buf.String())
			}
		})
	}
}

func TestEvalPrint(t *testing.T) {
	params := newEvalCommandParams()
	var stderr bytes.Buffer
	params.stderr = &stderr

	var buf bytes.Buffer
	if _, err := eval([]string{`print("hello")`}, params, &buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stderr.String(), "hello\n") {
		t.Fatalf("Expected print output but got %q", stderr.String())
	}
}

func TestEvalLogging(t *testing.T) {
	logger := test.New()
	logger.SetLevel(logging.Debug)

	params := newEvalCommandParams()
	params.logger = logger

	var buf bytes.Buffer
	if _, err := eval([]string{"true"}, params, &buf); err != nil {
		t.Fatal(err)
	}

	found := false
	for _, e := range logger.Entries() {
		if e.Message == "Evaluating query." {
			found = true
		}
	}
	if !found {
		t.Fatalf("Expected evaluation to be logged but got %v", logger.Entries())
	}
}

func TestEvalRequestReload(t *testing.T) {
	params := newEvalCommandParams()
	_ = params.outputFormat.Set(pr.ValuesFormat)

	req, err := newEvalRequest([]string{"data.test.p"}, params)
	if err != nil {
		t.Fatal(err)
	}

	for i, src := range []string{"package test\n\np := 1", "package test\n\np := 2"} {
		fsys := fstest.MapFS{"policy.rego": {Data: []byte(src)}}
		loaded, err := loader.NewFileLoader().WithFS(fsys).All([]string{"."})
		if err != nil {
			t.Fatal(err)
		}

		var buf bytes.Buffer
		if _, err := req.eval(context.Background(), loaded, nil, params, &buf); err != nil {
			t.Fatal(err)
		}
		if exp := fmt.Sprintf("[\n  %d\n]\n", i+1); buf.String() != exp {
			t.Fatalf("Expected %q but got %q", exp, buf.String())
		}
	}
}
