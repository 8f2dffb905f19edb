// Copyright 2023 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package extension lets callers decode additional document file types in
// the loader.
package extension

import (
	"sync"
)

// Handler is used to unmarshal a byte slice of a registered extension into
// the value pointed to by x.
type Handler func(bs []byte, x any) error

var handlers sync.Map

// RegisterExtension registers a Handler for a certain file extension, including
// the dot: ".json", not "json". A nil handler removes the registration.
func RegisterExtension(name string, handler Handler) {
	if handler == nil {
		handlers.Delete(name)
		return
	}
	handlers.Store(name, handler)
}

// FindExtension is used to look up a registered extension Handler. It
// returns nil if none is registered.
func FindExtension(ext string) Handler {
	h, ok := handlers.Load(ext)
	if !ok {
		return nil
	}
	return h.(Handler)
}
