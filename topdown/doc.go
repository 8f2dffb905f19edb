// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package topdown provides query evaluation support.
//
// Evaluation is top-down and depth-first. A query body is evaluated one
// expression at a time and each expression calls a continuation once per
// solution, so backtracking is just returning from the continuation. Variable
// bindings live on a trail and are undone in reverse order as the search
// unwinds.
//
// References rooted at data walk the rule tree and the base document
// together. The first time a rule set is needed its value is computed in full
// and stored in a per-evaluation cache:
//
//  1. Complete rules must agree on a single value or fall back to the default.
//  2. Partial set rules collect every value produced by every body.
//  3. Partial object rules collect key/value pairs and reject duplicate keys
//     with different values.
//  4. Functions are memoized per argument list.
//
// Expressions carrying with modifiers replace input or parts of data for the
// duration of the expression. Replaced documents are evaluated with a fresh
// cache so that values computed under one set of overrides never leak into
// another.
package topdown
