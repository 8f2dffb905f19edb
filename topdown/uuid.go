// Copyright 2017 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package topdown

import (
	"github.com/google/uuid"

	"github.com/regolith-dev/regolith/ast"
)

type uuidCachingKey string

// builtinUUID returns a random version 4 UUID. Calls with the same key in one
// query return the same UUID.
func builtinUUID(bctx BuiltinContext, operands []*ast.Term, iter func(*ast.Term) error) error {
	var cachingKey = uuidCachingKey(operands[0].Value.String())

	if v, ok := bctx.Cache.Get(cachingKey); ok {
		return iter(v.(*ast.Term))
	}

	id, err := uuid.NewRandomFromReader(bctx.Seed)
	if err != nil {
		return err
	}

	result := ast.StringTerm(id.String())
	bctx.Cache.Put(cachingKey, result)

	return iter(result)
}

func init() {
	RegisterBuiltinFunc(ast.UUIDRFC4122.Name, builtinUUID)
}
