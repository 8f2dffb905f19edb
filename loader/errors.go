// Copyright 2017 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package loader

import (
	"errors"
	"fmt"
	"strings"

	"github.com/regolith-dev/regolith/ast"
)

// Errors is a wrapper for multiple loader errors.
type Errors []error

func (e Errors) Error() string {
	if len(e) == 0 {
		return "no error(s)"
	}
	if len(e) == 1 {
		return "1 error occurred during loading: " + e[0].Error()
	}
	buf := make([]string, len(e))
	for i := range buf {
		buf[i] = e[i].Error()
	}
	return fmt.Sprintf("%v errors occurred during loading:\n", len(e)) + strings.Join(buf, "\n")
}

func (e *Errors) add(err error) {
	var errs ast.Errors
	if errors.As(err, &errs) {
		for _, x := range errs {
			*e = append(*e, x)
		}
		return
	}
	*e = append(*e, err)
}

type unsupportedDocumentType string

func (path unsupportedDocumentType) Error() string {
	return string(path) + ": document must be of type object"
}

type unrecognizedFile string

func (path unrecognizedFile) Error() string {
	return string(path) + ": can't recognize file type"
}

func isUnrecognizedFile(err error) bool {
	_, ok := err.(unrecognizedFile)
	return ok
}

type mergeError struct {
	path     string
	conflict []string
}

func (e mergeError) Error() string {
	if len(e.conflict) == 0 {
		return e.path + ": merge error"
	}
	return e.path + ": merge error at " + strings.Join(e.conflict, ".")
}

type emptyModuleError string

func (e emptyModuleError) Error() string {
	return string(e) + ": empty policy"
}

type multiDocumentError string

func (e multiDocumentError) Error() string {
	return string(e) + ": multiple YAML documents are not supported"
}
