// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package ast

import (
	"sort"
	"strings"

	"github.com/tchap/go-patricia/v2/patricia"
)

// RuleTreeNode represents a node in the rule tree. The rule tree is keyed by
// rule path.
type RuleTreeNode struct {
	Key      Value
	Values   []*Rule
	Children map[Value]*RuleTreeNode
	Sorted   []Value
}

// NewRuleTree returns a new RuleTreeNode that represents the root
// of the rule tree populated with the given rules.
func NewRuleTree(modules map[string]*Module) *RuleTreeNode {
	root := &RuleTreeNode{
		Children: map[Value]*RuleTreeNode{},
	}
	for _, name := range sortedModuleKeys(modules) {
		for _, rule := range modules[name].Rules {
			root.add(rule.Path(), rule)
		}
	}
	root.sort()
	return root
}

func (n *RuleTreeNode) add(path Ref, rule *Rule) {
	node := n
	for _, x := range path {
		c := node.Children[x.Value]
		if c == nil {
			c = &RuleTreeNode{
				Key:      x.Value,
				Children: map[Value]*RuleTreeNode{},
			}
			node.Children[x.Value] = c
		}
		node = c
	}
	node.Values = append(node.Values, rule)
}

func (n *RuleTreeNode) sort() {
	n.Sorted = make([]Value, 0, len(n.Children))
	for k, c := range n.Children {
		n.Sorted = append(n.Sorted, k)
		c.sort()
	}
	sort.Slice(n.Sorted, func(i, j int) bool {
		return n.Sorted[i].Compare(n.Sorted[j]) < 0
	})
}

// Size returns the number of rules in the tree.
func (n *RuleTreeNode) Size() int {
	s := len(n.Values)
	for _, c := range n.Children {
		s += c.Size()
	}
	return s
}

// Child returns n's child with key k.
func (n *RuleTreeNode) Child(k Value) *RuleTreeNode {
	return n.Children[k]
}

// Find dereferences ref along the tree. The node reached by the full ref is
// returned, or nil if there is none.
func (n *RuleTreeNode) Find(ref Ref) *RuleTreeNode {
	node := n
	for _, x := range ref {
		node = node.Children[x.Value]
		if node == nil {
			return nil
		}
	}
	return node
}

// DepthFirst performs a depth-first traversal of the rule tree rooted at n.
// If f returns true, traversal will not continue to the children of the node.
func (n *RuleTreeNode) DepthFirst(f func(*RuleTreeNode) bool) {
	if f(n) {
		return
	}
	for _, k := range n.Sorted {
		n.Children[k].DepthFirst(f)
	}
}

// pathKey encodes a ref of string segments as a trie key. Every segment is
// terminated so that prefixes of the key correspond to prefixes of the path.
func pathKey(ref Ref) patricia.Prefix {
	var sb strings.Builder
	for _, x := range ref {
		switch v := x.Value.(type) {
		case Var:
			sb.WriteString(string(v))
		case String:
			sb.WriteString(string(v))
		default:
			sb.WriteString(v.String())
		}
		sb.WriteByte(0)
	}
	return patricia.Prefix(sb.String())
}

// ruleIndex maps rule paths to graph nodes and supports the prefix queries
// needed to resolve references.
type ruleIndex struct {
	trie *patricia.Trie
}

func newRuleIndex() *ruleIndex {
	return &ruleIndex{trie: patricia.NewTrie()}
}

func (idx *ruleIndex) Insert(path Ref, id RuleNodeID) {
	idx.trie.Insert(pathKey(path), id)
}

// Covering returns the node whose path is the longest prefix of ref.
func (idx *ruleIndex) Covering(ref Ref) (RuleNodeID, bool) {
	var found RuleNodeID
	var ok bool
	_ = idx.trie.VisitPrefixes(pathKey(ref), func(_ patricia.Prefix, item patricia.Item) error {
		found, ok = item.(RuleNodeID), true
		return nil
	})
	return found, ok
}

// Under returns the nodes whose paths extend ref, in path order.
func (idx *ruleIndex) Under(ref Ref) []RuleNodeID {
	var ids []RuleNodeID
	_ = idx.trie.VisitSubtree(pathKey(ref), func(_ patricia.Prefix, item patricia.Item) error {
		ids = append(ids, item.(RuleNodeID))
		return nil
	})
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func sortedModuleKeys(modules map[string]*Module) []string {
	keys := make([]string, 0, len(modules))
	for k := range modules {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
