// Copyright 2017 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package loader

import (
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"

	"github.com/regolith-dev/regolith/ast"
	"github.com/regolith-dev/regolith/metrics"
	"github.com/regolith-dev/regolith/util"
	"github.com/regolith-dev/regolith/util/test"
)

func TestLoadAll(t *testing.T) {

	files := map[string]string{
		"/foo.json":       `{"k": [1,2,3]}`,
		"/a/b/c.yaml":     "x: 1\ny: [a, b]",
		"/a/b/d.json":     `{"z": true}`,
		"/policy.rego":    "package ex\n\np := data.a",
		"/a/policy.rego":  "package ex.a\n\nq := 1",
		"/a/b/README.txt": "ignored at depth > 0",
	}

	test.WithTempFS(files, func(rootDir string) {

		m := metrics.New()
		loaded, err := NewFileLoader().WithMetrics(m).All([]string{rootDir})
		if err != nil {
			t.Fatal(err)
		}

		expected := util.MustUnmarshalJSON([]byte(`{
			"k": [1,2,3],
			"a": {
				"b": {
					"x": 1,
					"y": ["a", "b"],
					"z": true
				}
			}
		}`))

		if diff := cmp.Diff(expected, interface{}(loaded.Documents)); diff != "" {
			t.Fatalf("Unexpected documents (-want, +got):\n%s", diff)
		}

		expMods := []string{
			CleanPath(filepath.Join(rootDir, "a", "policy.rego")),
			CleanPath(filepath.Join(rootDir, "policy.rego")),
		}

		if diff := cmp.Diff(expMods, loaded.ModuleNames()); diff != "" {
			t.Fatalf("Unexpected modules (-want, +got):\n%s", diff)
		}

		if _, err := loaded.Compiler(); err != nil {
			t.Fatalf("Unexpected compile error: %v", err)
		}

		if _, ok := m.All()[metrics.TimerKey(metrics.LoadFiles)]; !ok {
			t.Fatalf("Expected load timer but got %v", m.All())
		}
	})
}

func TestLoadPrefix(t *testing.T) {
	files := map[string]string{
		"/data.json": `{"x": 1}`,
	}

	test.WithTempFS(files, func(rootDir string) {
		loaded, err := All([]string{"foo.bar:" + filepath.Join(rootDir, "data.json")})
		if err != nil {
			t.Fatal(err)
		}
		expected := util.MustUnmarshalJSON([]byte(`{"foo": {"bar": {"x": 1}}}`))
		if diff := cmp.Diff(expected, interface{}(loaded.Documents)); diff != "" {
			t.Fatalf("Unexpected documents (-want, +got):\n%s", diff)
		}
	})
}

func TestLoadErrors(t *testing.T) {

	tests := []struct {
		note    string
		files   map[string]string
		wantErr []string
	}{
		{
			note: "merge conflict",
			files: map[string]string{
				"a.json": `{"x": 1}`,
				"b.json": `{"x": 2}`,
			},
			wantErr: []string{"b.json: merge error at x"},
		},
		{
			note: "non-object document",
			files: map[string]string{
				"a.json": `[1,2,3]`,
			},
			wantErr: []string{"a.json: document must be of type object"},
		},
		{
			note: "multiple yaml documents",
			files: map[string]string{
				"a.yaml": "x: 1\n---\ny: 2\n",
			},
			wantErr: []string{"a.yaml: multiple YAML documents are not supported"},
		},
		{
			note: "parse errors",
			files: map[string]string{
				"a.rego": "package",
				"b.json": `{"x":`,
			},
			wantErr: []string{"rego_parse_error", "b.json"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.note, func(t *testing.T) {
			fsys := fstest.MapFS{}
			for k, v := range tc.files {
				fsys[k] = &fstest.MapFile{Data: []byte(v)}
			}

			_, err := NewFileLoader().WithFS(fsys).All([]string{"."})
			if err == nil {
				t.Fatal("Expected error")
			}

			errs, ok := err.(Errors)
			if !ok {
				t.Fatalf("Expected loader errors but got %T", err)
			}

			if len(errs) < len(tc.wantErr) {
				t.Fatalf("Expected %d errors but got: %v", len(tc.wantErr), err)
			}

			for _, want := range tc.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Fatalf("Expected error to contain %q but got:\n%v", want, err)
				}
			}
		})
	}
}

func TestLoadFiltered(t *testing.T) {
	fsys := fstest.MapFS{
		"x.rego":         {Data: []byte("package x\n\np := 1")},
		"x_test.rego":    {Data: []byte("package x\n\ntest_p if p == 1")},
		"data.json":      {Data: []byte(`{"a": 1}`)},
		"vendor/y.rego":  {Data: []byte("package y\n\nq := 1")},
		"vendor/z.json":  {Data: []byte(`{"b": 1}`)},
		"other/not.rego": {Data: []byte("package other\n\nr := 1")},
	}

	loaded, err := NewFileLoader().
		WithFS(fsys).
		WithFilter(func(abspath string, info fs.FileInfo, depth int) bool {
			return strings.HasSuffix(info.Name(), "_test.rego") || (info.IsDir() && info.Name() == "vendor")
		}).
		AllRegos([]string{"."})
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]string{"other/not.rego", "x.rego"}, loaded.ModuleNames()); diff != "" {
		t.Fatalf("Unexpected modules (-want, +got):\n%s", diff)
	}

	if len(loaded.Documents) != 0 {
		t.Fatalf("Expected no documents but got %v", loaded.Documents)
	}
}

func TestGlobExcludeName(t *testing.T) {
	fsys := fstest.MapFS{
		"a.json":         {Data: []byte(`{"a": 1}`)},
		".hidden/b.json": {Data: []byte(`{"b": 1}`)},
	}

	loaded, err := NewFileLoader().WithFS(fsys).WithFilter(GlobExcludeName(".*", 1)).All([]string{"."})
	if err != nil {
		t.Fatal(err)
	}

	expected := util.MustUnmarshalJSON([]byte(`{"a": 1}`))
	if diff := cmp.Diff(expected, interface{}(loaded.Documents)); diff != "" {
		t.Fatalf("Unexpected documents (-want, +got):\n%s", diff)
	}
}

func TestLoadRego(t *testing.T) {
	files := map[string]string{
		"/x.rego": "package x\n\np := 1",
	}

	test.WithTempFS(files, func(rootDir string) {
		path := filepath.Join(rootDir, "x.rego")
		rf, err := Rego(path)
		if err != nil {
			t.Fatal(err)
		}
		exp := ast.MustParseModule(files["/x.rego"])
		if !exp.Equal(rf.Parsed) {
			t.Fatalf("Expected %v but got %v", exp, rf.Parsed)
		}
	})
}

func TestSplitPrefix(t *testing.T) {
	tests := []struct {
		input     string
		wantParts []string
		wantPath  string
	}{
		{input: "foo/bar", wantPath: "foo/bar"},
		{input: "foo:/bar", wantParts: []string{"foo"}, wantPath: "/bar"},
		{input: "foo.bar:/baz", wantParts: []string{"foo", "bar"}, wantPath: "/baz"},
		{input: "C:/data.json", wantPath: "C:/data.json"},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			parts, path := SplitPrefix(tc.input)
			if diff := cmp.Diff(tc.wantParts, parts); diff != "" || path != tc.wantPath {
				t.Fatalf("Unexpected result: %v %v", parts, path)
			}
		})
	}
}
