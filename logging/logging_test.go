// Copyright 2021 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestWithFields(t *testing.T) {
	logger := New().WithFields(map[string]any{"context": "contextvalue"})

	fieldvalue, ok := logger.(*StandardLogger).fields["context"]
	if !ok {
		t.Fatal("Logger did not contain configured field")
	}
	if fieldvalue.(string) != "contextvalue" {
		t.Fatal("Logger did not contain configured field value")
	}
}

func TestWithFieldsOverrides(t *testing.T) {
	logger := New().
		WithFields(map[string]any{"context": "contextvalue"}).
		WithFields(map[string]any{"context": "changedcontextvalue"})

	if v := logger.(*StandardLogger).fields["context"]; v != "changedcontextvalue" {
		t.Fatalf("Logger did not contain configured field value: %v", v)
	}
}

func TestWithFieldsMerges(t *testing.T) {
	base := New().WithFields(map[string]any{"context": "contextvalue"})
	logger := base.WithFields(map[string]any{"anothercontext": "anothercontextvalue"})

	fields := logger.(*StandardLogger).fields
	if fields["context"] != "contextvalue" || fields["anothercontext"] != "anothercontextvalue" {
		t.Fatalf("Logger did not merge fields: %v", fields)
	}
	if _, ok := base.(*StandardLogger).fields["anothercontext"]; ok {
		t.Fatal("WithFields modified the parent logger")
	}
}

func TestLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	for _, lvl := range []Level{Error, Warn, Info, Debug} {
		logger.SetLevel(lvl)
		if got := logger.GetLevel(); got != lvl {
			t.Fatalf("Expected level %v but got %v", lvl, got)
		}
	}

	logger.SetLevel(Warn)
	logger.Info("hidden")
	logger.Warn("shown %d", 1)

	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown 1") {
		t.Fatalf("Unexpected output: %q", buf.String())
	}
}

func TestNoOpLogger(t *testing.T) {
	logger := NewNoOpLogger()
	logger.SetLevel(Debug)
	if logger.GetLevel() != Debug {
		t.Fatal("Expected level to be recorded")
	}
	logger.WithFields(map[string]any{"a": 1}).Info("dropped")
}
