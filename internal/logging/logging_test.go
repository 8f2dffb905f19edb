// Copyright 2021 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/regolith-dev/regolith/logging"
)

func TestGetLevel(t *testing.T) {
	tests := []struct {
		input string
		exp   logging.Level
		err   bool
	}{
		{"", logging.Info, false},
		{"DEBUG", logging.Debug, false},
		{"warn", logging.Warn, false},
		{"error", logging.Error, false},
		{"verbose", logging.Debug, true},
	}

	for _, tc := range tests {
		lvl, err := GetLevel(tc.input)
		if (err != nil) != tc.err {
			t.Fatalf("GetLevel(%q): unexpected error: %v", tc.input, err)
		}
		if lvl != tc.exp {
			t.Fatalf("GetLevel(%q): expected %v but got %v", tc.input, tc.exp, lvl)
		}
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, "warn", "json")
	if err != nil {
		t.Fatal(err)
	}
	logger.WithFields(map[string]any{"rule": "data.a.p"}).Warn("slow rule")
	logger.Info("dropped")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Expected a single JSON entry: %v\n%s", err, buf.String())
	}
	if entry["msg"] != "slow rule" || entry["rule"] != "data.a.p" || entry["level"] != "warning" {
		t.Fatalf("Unexpected entry: %v", entry)
	}

	if _, err := NewLogger(&buf, "loud", "text"); err == nil {
		t.Fatal("Expected error for bad level")
	}
}

func newEntry(fields logrus.Fields) *logrus.Entry {
	e := logrus.WithFields(fields)
	e.Message = "test"
	e.Level = logrus.InfoLevel
	return e
}

func TestPrettyFormatterNoFields(t *testing.T) {
	out, err := (&prettyFormatter{}).Format(newEntry(nil))
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "[INFO] test\n\n" {
		t.Fatalf("Unexpected output: %q", out)
	}
}

func TestPrettyFormatterBasicFields(t *testing.T) {
	out, err := (&prettyFormatter{}).Format(newEntry(logrus.Fields{
		"number": 5,
		"string": "field_string",
		"nil":    nil,
	}))
	if err != nil {
		t.Fatal(err)
	}

	exp := "[INFO] test\n  nil = null\n  number = 5\n  string = \"field_string\"\n\n"
	if string(out) != exp {
		t.Fatalf("Expected:\n%q\n\nGot:\n%q", exp, out)
	}
}

func TestPrettyFormatterMultilineStringFields(t *testing.T) {
	src := "package example\n\nallow if {\n\tinput.user == \"admin\"\n}"

	out, err := (&prettyFormatter{}).Format(newEntry(logrus.Fields{"module": src}))
	if err != nil {
		t.Fatal(err)
	}

	for _, line := range strings.Split(src, "\n") {
		if !strings.Contains(string(out), line+"\n") {
			t.Errorf("Expected line %q in output:\n%s", line, out)
		}
	}
	if !strings.Contains(string(out), "module = |\n") {
		t.Errorf("Expected block marker in output:\n%s", out)
	}
}

func TestPrettyFormatterJSONFields(t *testing.T) {
	obj := map[string]any{"a": 123, "e": map[string]any{"test": []string{"aa", "bb"}}}

	out, err := (&prettyFormatter{}).Format(newEntry(logrus.Fields{"doc": obj}))
	if err != nil {
		t.Fatal(err)
	}

	exp, err := json.MarshalIndent(obj, "      ", "  ")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), string(exp)) {
		t.Errorf("Expected JSON in output:\n%s\n\nGot:\n%s", exp, out)
	}
}
