// Copyright 2020 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package cmd

import (
	"bytes"
	"strings"
	"testing"
)

func TestGenerateCmdOutput(t *testing.T) {
	var stdout bytes.Buffer

	generateCmdOutput(&stdout)

	expectOutputKeys(t, stdout.String(), []string{
		"Version",
		"Build Commit",
		"Build Timestamp",
		"Build Hostname",
		"Go Version",
		"Platform",
	})
}

func expectOutputKeys(t *testing.T, stdout string, expectedKeys []string) {
	t.Helper()

	lines := strings.Split(strings.Trim(stdout, "\n"), "\n")
	gotKeys := make([]string, 0, len(lines))

	for _, line := range lines {
		gotKeys = append(gotKeys, strings.Split(line, ":")[0])
	}

	if len(gotKeys) != len(expectedKeys) {
		t.Fatalf("Expected %v but got %v", expectedKeys, gotKeys)
	}
	for i := range expectedKeys {
		if gotKeys[i] != expectedKeys[i] {
			t.Fatalf("Expected %v but got %v", expectedKeys, gotKeys)
		}
	}
}
