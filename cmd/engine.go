// Copyright 2018 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package cmd

import (
	"fmt"

	"github.com/regolith-dev/regolith/loader"
	"github.com/regolith-dev/regolith/metrics"
	"github.com/regolith-dev/regolith/rego"
)

// loadPaths loads the policy and data files below paths. Names matching one
// of the ignore patterns are skipped.
func loadPaths(paths []string, ignore []string, m metrics.Metrics) (*loader.Result, error) {
	f := loaderFilter{
		Ignore: ignore,
	}
	return loader.NewFileLoader().
		WithMetrics(m).
		WithFilter(f.Apply).
		All(paths)
}

// newEngine returns an engine holding the modules and documents of loaded.
// Modules are added in name order so that versions are reproducible.
func newEngine(loaded *loader.Result, opts ...rego.Option) (*rego.Engine, error) {
	engine := rego.NewEngine(opts...)
	if loaded == nil {
		return engine, nil
	}
	for _, name := range loaded.ModuleNames() {
		if _, err := engine.AddPolicy(name, string(loaded.Modules[name].Raw)); err != nil {
			return nil, err
		}
	}
	if len(loaded.Documents) > 0 {
		if err := engine.AddData(loaded.Documents); err != nil {
			return nil, fmt.Errorf("data: %w", err)
		}
	}
	return engine, nil
}
