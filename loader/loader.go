// Copyright 2017 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package loader contains utilities for loading policy and data files.
package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/regolith-dev/regolith/ast"
	"github.com/regolith-dev/regolith/loader/extension"
	"github.com/regolith-dev/regolith/metrics"
	"github.com/regolith-dev/regolith/util"
)

// RegoExt is the extension of policy files.
const RegoExt = ".rego"

// Result represents the result of successfully loading zero or more files.
type Result struct {
	Documents map[string]interface{}
	Modules   map[string]*RegoFile
	path      []string
}

func newResult() *Result {
	return &Result{
		Documents: map[string]interface{}{},
		Modules:   map[string]*RegoFile{},
	}
}

// ParsedModules returns the parsed modules stored on the result.
func (l *Result) ParsedModules() map[string]*ast.Module {
	modules := make(map[string]*ast.Module)
	for _, module := range l.Modules {
		modules[module.Name] = module.Parsed
	}
	return modules
}

// ModuleNames returns the names of the loaded modules in sorted order.
func (l *Result) ModuleNames() []string {
	names := make([]string, 0, len(l.Modules))
	for k := range l.Modules {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Compiler returns a Compiler object with the compiled modules from this loader
// result.
func (l *Result) Compiler() (*ast.Compiler, error) {
	compiler := ast.NewCompiler()
	compiler.Compile(l.ParsedModules())
	if compiler.Failed() {
		return nil, compiler.Errors
	}
	return compiler, nil
}

// RegoFile represents the result of loading a single policy source file.
type RegoFile struct {
	Name   string
	Parsed *ast.Module
	Raw    []byte
}

// Filter defines the interface for filtering files during loading. If the
// filter returns true, the file should be excluded from the result.
type Filter func(abspath string, info fs.FileInfo, depth int) bool

// GlobExcludeName excludes files and directories whose names do not match the
// shell style pattern at minDepth or greater.
func GlobExcludeName(pattern string, minDepth int) Filter {
	return func(_ string, info fs.FileInfo, depth int) bool {
		match, _ := filepath.Match(pattern, info.Name())
		return match && depth >= minDepth
	}
}

// FileLoader loads policy and data files from the local file system or from
// an fs.FS.
type FileLoader struct {
	fsys    fs.FS
	filter  Filter
	metrics metrics.Metrics
}

// NewFileLoader returns a new FileLoader reading from the local file system.
func NewFileLoader() *FileLoader {
	return &FileLoader{
		metrics: metrics.NoOp(),
	}
}

// WithFS makes the loader read from fsys instead of the local file system.
func (fl *FileLoader) WithFS(fsys fs.FS) *FileLoader {
	fl.fsys = fsys
	return fl
}

// WithFilter sets a filter that excludes files and directories.
func (fl *FileLoader) WithFilter(filter Filter) *FileLoader {
	fl.filter = filter
	return fl
}

// WithMetrics sets the metrics collection the load timer is recorded on.
func (fl *FileLoader) WithMetrics(m metrics.Metrics) *FileLoader {
	if m != nil {
		fl.metrics = m
	}
	return fl
}

// All returns a Result object loaded (recursively) from the specified paths.
// Paths can be prefixed with a dotted document path followed by a colon,
// e.g., "foo.bar:/path/to/data.json", to load their content under that
// path in the data document. Documents from every file are merged; keys
// present in two files must both hold objects.
func (fl *FileLoader) All(paths []string) (*Result, error) {
	t := fl.metrics.Timer(metrics.LoadFiles)
	t.Start()
	defer t.Stop()

	errs := Errors{}
	root := newResult()

	for _, p := range paths {
		loaded := root
		prefix, p := SplitPrefix(p)
		for _, part := range prefix {
			loaded = loaded.withParent(part)
		}
		fl.allRec(p, &errs, loaded, 0)
	}

	if len(errs) > 0 {
		return nil, errs
	}

	return root, nil
}

// AllRegos returns a Result object loaded (recursively) with all policy
// files from the specified paths.
func (fl *FileLoader) AllRegos(paths []string) (*Result, error) {
	filter := fl.filter
	fl.filter = func(abspath string, info fs.FileInfo, depth int) bool {
		if !info.IsDir() && !strings.HasSuffix(info.Name(), RegoExt) {
			return true
		}
		return filter != nil && filter(abspath, info, depth)
	}
	defer func() { fl.filter = filter }()
	return fl.All(paths)
}

// All returns a Result object loaded (recursively) from the local file
// system.
func All(paths []string) (*Result, error) {
	return NewFileLoader().All(paths)
}

// Filtered returns a Result object loaded (recursively) from the specified
// paths while applying the given filter. If the filter returns true, the
// file or directory is excluded.
func Filtered(paths []string, filter Filter) (*Result, error) {
	return NewFileLoader().WithFilter(filter).All(paths)
}

// Rego returns a RegoFile object loaded from the given path.
func Rego(path string) (*RegoFile, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return loadRego(path, bs)
}

// CleanPath returns the normalized version of a path that can be used as an identifier.
func CleanPath(path string) string {
	return strings.Trim(path, "/")
}

// SplitPrefix returns a tuple specifying the document prefix and the file
// path.
func SplitPrefix(path string) ([]string, string) {
	parts := strings.SplitN(path, ":", 2)
	if len(parts) == 2 && len(parts[0]) > 0 && !isWindowsDrive(parts[0]) {
		return strings.Split(parts[0], "."), parts[1]
	}
	return nil, path
}

func isWindowsDrive(s string) bool {
	return len(s) == 1 && ((s[0] >= 'a' && s[0] <= 'z') || (s[0] >= 'A' && s[0] <= 'Z'))
}

func (fl *FileLoader) stat(p string) (fs.FileInfo, error) {
	if fl.fsys != nil {
		return fs.Stat(fl.fsys, p)
	}
	return os.Stat(p)
}

func (fl *FileLoader) readDir(p string) ([]fs.DirEntry, error) {
	if fl.fsys != nil {
		return fs.ReadDir(fl.fsys, p)
	}
	return os.ReadDir(p)
}

func (fl *FileLoader) readFile(p string) ([]byte, error) {
	if fl.fsys != nil {
		return fs.ReadFile(fl.fsys, p)
	}
	return os.ReadFile(p)
}

func (fl *FileLoader) join(elem ...string) string {
	if fl.fsys != nil {
		return path.Join(elem...)
	}
	return filepath.Join(elem...)
}

func (fl *FileLoader) allRec(p string, errs *Errors, loaded *Result, depth int) {
	info, err := fl.stat(p)
	if err != nil {
		errs.add(err)
		return
	}

	if fl.filter != nil && fl.filter(p, info, depth) {
		return
	}

	if !info.IsDir() {
		if err := fl.loadFile(loaded, p, depth); err != nil {
			errs.add(err)
		}
		return
	}

	// Content of nested directories is loaded under the path given by the
	// directory names.
	if depth > 0 {
		loaded = loaded.withParent(info.Name())
	}

	entries, err := fl.readDir(p)
	if err != nil {
		errs.add(err)
		return
	}

	for _, entry := range entries {
		fl.allRec(fl.join(p, entry.Name()), errs, loaded, depth+1)
	}
}

func (fl *FileLoader) loadFile(curr *Result, p string, depth int) error {

	bs, err := fl.readFile(p)
	if err != nil {
		return err
	}

	result, err := loadKnownTypes(p, bs)
	if err != nil {
		if !isUnrecognizedFile(err) {
			return err
		}
		if depth > 0 {
			return nil
		}
		result, err = loadFileForAnyType(p, bs)
		if err != nil {
			return err
		}
	}

	return curr.merge(p, result)
}

func (l *Result) merge(path string, result interface{}) error {
	switch result := result.(type) {
	case *RegoFile:
		l.Modules[CleanPath(path)] = result
		return nil
	default:
		return l.mergeDocument(path, result)
	}
}

func (l *Result) mergeDocument(path string, doc interface{}) error {
	obj, ok := makeDir(l.path, doc)
	if !ok {
		return unsupportedDocumentType(path)
	}
	merged, conflict := mergeDocs(l.Documents, obj)
	if conflict != nil {
		return mergeError{path: path, conflict: conflict}
	}
	l.Documents = merged
	return nil
}

func (l *Result) withParent(p string) *Result {
	path := append(append([]string(nil), l.path...), p)
	return &Result{
		Documents: l.Documents,
		Modules:   l.Modules,
		path:      path,
	}
}

func loadKnownTypes(path string, bs []byte) (interface{}, error) {
	ext := filepath.Ext(path)
	if handler := extension.FindExtension(ext); handler != nil {
		var x interface{}
		if err := handler(bs, &x); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return x, nil
	}
	switch ext {
	case ".json":
		return loadJSON(path, bs)
	case RegoExt:
		return loadRego(path, bs)
	case ".yaml", ".yml":
		return loadYAML(path, bs)
	}
	return nil, unrecognizedFile(path)
}

func loadFileForAnyType(path string, bs []byte) (interface{}, error) {
	module, err := loadRego(path, bs)
	if err == nil {
		return module, nil
	}
	doc, err := loadJSON(path, bs)
	if err == nil {
		return doc, nil
	}
	doc, err = loadYAML(path, bs)
	if err == nil {
		return doc, nil
	}
	return nil, unrecognizedFile(path)
}

func loadRego(path string, bs []byte) (*RegoFile, error) {
	module, err := ast.ParseModule(path, string(bs))
	if err != nil {
		return nil, err
	}
	if module == nil {
		return nil, emptyModuleError(path)
	}
	result := &RegoFile{
		Name:   path,
		Parsed: module,
		Raw:    bs,
	}
	return result, nil
}

func loadJSON(path string, bs []byte) (interface{}, error) {
	var x interface{}
	if err := util.UnmarshalJSON(bs, &x); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return x, nil
}

// loadYAML accepts a file holding a single YAML document.
func loadYAML(path string, bs []byte) (interface{}, error) {
	dec := yaml.NewDecoder(bytes.NewReader(bs))
	n := 0
	for {
		var node yaml.Node
		err := dec.Decode(&node)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		n++
	}
	if n > 1 {
		return nil, multiDocumentError(path)
	}

	var x interface{}
	if err := util.Unmarshal(bs, &x); err != nil {
		return nil, fmt.Errorf("%s: error converting YAML to JSON: %w", path, err)
	}
	return x, nil
}

func makeDir(path []string, x interface{}) (map[string]interface{}, bool) {
	if len(path) == 0 {
		obj, ok := x.(map[string]interface{})
		if !ok {
			return nil, false
		}
		return obj, true
	}
	return makeDir(path[:len(path)-1], map[string]interface{}{path[len(path)-1]: x})
}
