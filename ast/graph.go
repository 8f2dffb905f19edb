// Copyright 2024 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package ast

import (
	"fmt"
	"sort"
	"strings"
)

// RuleNodeID identifies a node in a Graph.
type RuleNodeID int

// RuleNode is a node in the rule dependency graph. A node holds all rules
// that share the same path.
type RuleNode struct {
	ID    RuleNodeID
	Path  Ref
	Rules []*Rule
	Edges []RuleNodeID
}

// Graph is the rule dependency graph. An edge (u, v) exists if a rule at
// node u refers to the document produced at node v. Nodes are stored in an
// arena and referenced by id. The graph is read-only once built.
type Graph struct {
	nodes  []*RuleNode
	byPath map[string]RuleNodeID
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		byPath: map[string]RuleNodeID{},
	}
}

// AddNode adds a node for path holding rules and returns its id. If a node
// already exists for path, the rules are appended to it.
func (g *Graph) AddNode(path Ref, rules ...*Rule) RuleNodeID {
	key := path.String()
	if id, ok := g.byPath[key]; ok {
		g.nodes[id].Rules = append(g.nodes[id].Rules, rules...)
		return id
	}
	id := RuleNodeID(len(g.nodes))
	g.nodes = append(g.nodes, &RuleNode{ID: id, Path: path, Rules: rules})
	g.byPath[key] = id
	return id
}

// AddEdge records that node u depends on node v. Duplicate edges are ignored.
func (g *Graph) AddEdge(u, v RuleNodeID) {
	n := g.nodes[u]
	i := sort.Search(len(n.Edges), func(i int) bool { return n.Edges[i] >= v })
	if i < len(n.Edges) && n.Edges[i] == v {
		return
	}
	n.Edges = append(n.Edges, 0)
	copy(n.Edges[i+1:], n.Edges[i:])
	n.Edges[i] = v
}

// Node returns the node identified by id.
func (g *Graph) Node(id RuleNodeID) *RuleNode {
	return g.nodes[id]
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []*RuleNode {
	return g.nodes
}

// Lookup returns the id of the node at path.
func (g *Graph) Lookup(path Ref) (RuleNodeID, bool) {
	id, ok := g.byPath[path.String()]
	return id, ok
}

// Dependencies returns the direct dependencies of id.
func (g *Graph) Dependencies(id RuleNodeID) []RuleNodeID {
	return g.nodes[id].Edges
}

const (
	white = iota
	grey
	black
)

// CycleError is returned when the graph contains a cycle.
type CycleError struct {
	Path []*RuleNode
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("rule %v is recursive: %v", e.Path[0].Path, e.String())
}

// String returns the cycle as `a -> b -> a`.
func (e *CycleError) String() string {
	parts := make([]string, len(e.Path))
	for i, n := range e.Path {
		parts[i] = n.Path.String()
	}
	return strings.Join(parts, " -> ")
}

// Cycles returns one cycle per back edge found by a depth-first traversal
// from every node in id order. The last element of each cycle equals the
// first. Diamonds (shared dependencies) are not cycles.
func (g *Graph) Cycles() []*CycleError {
	color := make([]int, len(g.nodes))
	var stack []RuleNodeID
	var cycles []*CycleError

	var visit func(u RuleNodeID)
	visit = func(u RuleNodeID) {
		color[u] = grey
		stack = append(stack, u)
		for _, v := range g.nodes[u].Edges {
			switch color[v] {
			case white:
				visit(v)
			case grey:
				start := len(stack) - 1
				for stack[start] != v {
					start--
				}
				path := make([]*RuleNode, 0, len(stack)-start+1)
				for _, id := range stack[start:] {
					path = append(path, g.nodes[id])
				}
				path = append(path, g.nodes[v])
				cycles = append(cycles, &CycleError{Path: path})
			}
		}
		stack = stack[:len(stack)-1]
		color[u] = black
	}

	for i := range g.nodes {
		if color[i] == white {
			visit(RuleNodeID(i))
		}
	}

	return cycles
}

// Order returns the transitive dependencies of the entry nodes, entries
// included, such that every node appears after the nodes it depends on.
func (g *Graph) Order(entries ...RuleNodeID) ([]RuleNodeID, error) {
	color := make([]int, len(g.nodes))
	var order []RuleNodeID
	var stack []RuleNodeID

	var visit func(u RuleNodeID) error
	visit = func(u RuleNodeID) error {
		color[u] = grey
		stack = append(stack, u)
		for _, v := range g.nodes[u].Edges {
			switch color[v] {
			case white:
				if err := visit(v); err != nil {
					return err
				}
			case grey:
				start := len(stack) - 1
				for stack[start] != v {
					start--
				}
				cycle := &CycleError{}
				for _, id := range stack[start:] {
					cycle.Path = append(cycle.Path, g.nodes[id])
				}
				cycle.Path = append(cycle.Path, g.nodes[v])
				return cycle
			}
		}
		stack = stack[:len(stack)-1]
		color[u] = black
		order = append(order, u)
		return nil
	}

	for _, id := range entries {
		if color[id] == white {
			if err := visit(id); err != nil {
				return nil, err
			}
		}
	}

	return order, nil
}

// Sort returns a dependency-first order over every node in the graph.
func (g *Graph) Sort() ([]RuleNodeID, error) {
	all := make([]RuleNodeID, len(g.nodes))
	for i := range g.nodes {
		all[i] = RuleNodeID(i)
	}
	return g.Order(all...)
}
