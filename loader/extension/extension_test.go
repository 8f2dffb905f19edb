// Copyright 2023 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package extension_test

import (
	"fmt"
	"reflect"
	"testing"
	"testing/fstest"

	"github.com/regolith-dev/regolith/loader"
	"github.com/regolith-dev/regolith/loader/extension"
)

func TestLoaderExtensionHandlerError(t *testing.T) {
	sentinelErr := fmt.Errorf("test handler called")
	extension.RegisterExtension(".json", func([]byte, any) error {
		return sentinelErr
	})
	defer extension.RegisterExtension(".json", nil)

	fs := fstest.MapFS{
		"data.json": {Data: []byte(`{}`)},
	}
	_, err := loader.NewFileLoader().WithFS(fs).All([]string{"."})
	if err == nil {
		t.Fatal("expected error")
	}
	errs, ok := err.(loader.Errors)
	if !ok || len(errs) != 1 {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoaderExtensionData(t *testing.T) {
	data := map[string]any{"foo": "bar"}
	extension.RegisterExtension(".json", func(_ []byte, x any) error {
		*(x.(*any)) = data
		return nil
	})
	defer extension.RegisterExtension(".json", nil)

	fs := fstest.MapFS{
		"data.json": {},
	}
	ldr := loader.NewFileLoader().WithFS(fs)
	res, err := ldr.All([]string{"."})
	if err != nil {
		t.Error(err)
	}
	if exp, act := data, res.Documents; !reflect.DeepEqual(exp, act) {
		t.Errorf("expected %v, got %v", exp, act)
	}
}

func TestLoaderExtensionCustomType(t *testing.T) {
	extension.RegisterExtension(".env", func(bs []byte, x any) error {
		*(x.(*any)) = map[string]any{"env": string(bs)}
		return nil
	})
	defer extension.RegisterExtension(".env", nil)

	fs := fstest.MapFS{
		"config/app.env": {Data: []byte("prod")},
	}
	res, err := loader.NewFileLoader().WithFS(fs).All([]string{"."})
	if err != nil {
		t.Fatal(err)
	}
	exp := map[string]any{"config": map[string]any{"env": "prod"}}
	if !reflect.DeepEqual(exp, res.Documents) {
		t.Errorf("expected %v, got %v", exp, res.Documents)
	}

	extension.RegisterExtension(".env", nil)
	if extension.FindExtension(".env") != nil {
		t.Fatal("expected handler to be removed")
	}
}
