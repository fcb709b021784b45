package jstree

import sitter "github.com/smacker/go-tree-sitter"

// VisitFunc is called for every node during a walk. Returning false prunes
// the node's subtree: its children are not visited.
type VisitFunc func(node *sitter.Node) bool

// Walk performs a depth-first, document-order traversal starting at node,
// including anonymous nodes. The visitor controls descent per node.
func Walk(node *sitter.Node, visit VisitFunc) {
	if node == nil {
		return
	}
	if !visit(node) {
		return
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		Walk(node.Child(i), visit)
	}
}

// WalkNamed is like Walk but visits only named nodes, skipping punctuation
// and keyword tokens.
func WalkNamed(node *sitter.Node, visit VisitFunc) {
	if node == nil {
		return
	}
	if !visit(node) {
		return
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		WalkNamed(node.NamedChild(i), visit)
	}
}
