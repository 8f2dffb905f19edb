// Copyright 2021 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package logging configures the standard logger from command line settings.
package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/regolith-dev/regolith/logging"
)

// GetLevel parses a level name. The empty string means info.
func GetLevel(level string) (logging.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return logging.Debug, nil
	case "", "info":
		return logging.Info, nil
	case "warn":
		return logging.Warn, nil
	case "error":
		return logging.Error, nil
	default:
		return logging.Debug, fmt.Errorf("invalid log level: %v", level)
	}
}

// GetFormatter returns the logrus formatter for a format name: text,
// json-pretty or json (the default).
func GetFormatter(format string) logrus.Formatter {
	switch format {
	case "text":
		return &prettyFormatter{}
	case "json-pretty":
		return &logrus.JSONFormatter{PrettyPrint: true}
	default:
		return &logrus.JSONFormatter{}
	}
}

// NewLogger returns a standard logger writing to w at the given level and format.
func NewLogger(w io.Writer, level, format string) (*logging.StandardLogger, error) {
	lvl, err := GetLevel(level)
	if err != nil {
		return nil, err
	}
	logger := logging.New()
	logger.SetOutput(w)
	logger.SetFormatter(GetFormatter(format))
	logger.SetLevel(lvl)
	return logger, nil
}

// prettyFormatter prints the level and message on one line followed by one
// indented line per field. Multi-line strings are kept as-is and other
// values are printed as indented JSON.
type prettyFormatter struct{}

const (
	fieldIndent     = 2
	multiLineIndent = 6
)

func (p *prettyFormatter) Format(e *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer

	fmt.Fprintf(&b, "[%s] %s\n", strings.ToUpper(e.Level.String()), e.Message)

	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		s, err := formatField(e.Data[k])
		if err != nil {
			return nil, err
		}
		b.WriteString(strings.Repeat(" ", fieldIndent))
		b.WriteString(k)
		if strings.Contains(s, "\n") {
			b.WriteString(" = |\n")
			b.WriteString(strings.Repeat(" ", multiLineIndent))
		} else {
			b.WriteString(" = ")
		}
		b.WriteString(s)
		b.WriteByte('\n')
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}

func formatField(v any) (string, error) {
	indent := strings.Repeat(" ", multiLineIndent)

	if s, ok := v.(string); ok {
		if strings.Contains(s, "\n") {
			lines := strings.Split(s, "\n")
			return strings.Join(lines, "\n"+indent) + "\n", nil
		}
		if json.Valid([]byte(s)) {
			var buf bytes.Buffer
			if err := json.Indent(&buf, []byte(s), indent, "  "); err != nil {
				return "", err
			}
			return buf.String(), nil
		}
	}

	bs, err := json.MarshalIndent(v, indent, "  ")
	if err != nil {
		return "", err
	}
	return string(bs), nil
}
