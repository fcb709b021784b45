package remap

import (
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/migr8/internal/extract"
	"github.com/jward/migr8/internal/jstree"
)

// EnsureImportEdit returns the edit that guarantees need is importable in
// ft. When an import from exactly need.Source already binds the name,
// ok=false and no edit is needed. An existing import from a different
// specifier is never mutated, even if it exports the same name: a new
// declaration from the target specifier is inserted instead.
func EnsureImportEdit(ft *jstree.FileTree, need ImportNeed) (jstree.Edit, bool) {
	var sameSourceNamed *sitter.Node // named_imports braces of a same-source import

	satisfied := false
	jstree.WalkNamed(ft.Root(), func(node *sitter.Node) bool {
		if satisfied || node.Type() != "import_statement" {
			return node.Type() != "import_statement"
		}
		source := node.ChildByFieldName("source")
		if source == nil || importSourceText(ft, source) != need.Source {
			return false
		}
		for _, item := range clauseItems(ft, node) {
			switch item.node.Type() {
			case "identifier":
				if need.Kind == extract.ImportDefault && ft.Text(item.node) == need.LocalName {
					satisfied = true
				}
			case "namespace_import":
				if need.Kind == extract.ImportNamespace && namespaceLocal(ft, item.node) == need.LocalName {
					satisfied = true
				}
			case "named_imports":
				if sameSourceNamed == nil {
					sameSourceNamed = item.node
				}
				for _, spec := range namedSpecifiers(item.node) {
					if specifierLocal(ft, spec) == need.LocalName {
						satisfied = true
					}
				}
			}
		}
		return false
	})
	if satisfied {
		return jstree.Edit{}, false
	}

	// Same-source named import exists: splice the name into its braces.
	if need.Kind == extract.ImportNamed && sameSourceNamed != nil {
		pos := sameSourceNamed.EndByte() - 1 // before the closing brace
		text := ", " + need.LocalName
		if len(namedSpecifiers(sameSourceNamed)) == 0 {
			text = " " + need.LocalName + " "
		}
		return jstree.Edit{Start: pos, End: pos, New: []byte(text)}, true
	}

	var decl string
	switch need.Kind {
	case extract.ImportDefault:
		decl = fmt.Sprintf("import %s from %q;\n", need.LocalName, need.Source)
	case extract.ImportNamespace:
		decl = fmt.Sprintf("import * as %s from %q;\n", need.LocalName, need.Source)
	default:
		decl = fmt.Sprintf("import { %s } from %q;\n", need.LocalName, need.Source)
	}

	pos := prologueEnd(ft)
	if pos > 0 {
		decl = "\n" + decl
	}
	return jstree.Edit{Start: pos, End: pos, New: []byte(decl)}, true
}

// RenameImportSpecifierEdit rewrites binding's own specifier to newName,
// covering migrations that stay within the same module and only change the
// exported name. The rename replaces the whole specifier, so an aliased
// `Old as Local` collapses to the new name too.
func RenameImportSpecifierEdit(ft *jstree.FileTree, binding *extract.ImportBinding, newName string) (jstree.Edit, bool) {
	stmt := binding.Node
	if stmt == nil || binding.ImportKind != extract.ImportNamed {
		return jstree.Edit{}, false
	}
	for _, item := range clauseItems(ft, stmt) {
		if item.node.Type() != "named_imports" {
			continue
		}
		for _, spec := range namedSpecifiers(item.node) {
			if specifierLocal(ft, spec) == binding.LocalName {
				return jstree.Edit{
					Start: spec.StartByte(),
					End:   spec.EndByte(),
					New:   []byte(newName),
				}, true
			}
		}
	}
	return jstree.Edit{}, false
}

// PruneImportEdit strips one binding's specifier from its declaration,
// deleting the whole declaration when it was the only specifier left.
func PruneImportEdit(ft *jstree.FileTree, binding *extract.ImportBinding) (jstree.Edit, bool) {
	stmt := binding.Node
	if stmt == nil {
		return jstree.Edit{}, false
	}

	items := clauseItems(ft, stmt)
	targetIdx := -1
	var insideNamed *sitter.Node // the import_specifier when pruning inside shared braces

	for i, item := range items {
		switch item.node.Type() {
		case "identifier":
			if binding.ImportKind == extract.ImportDefault && ft.Text(item.node) == binding.LocalName {
				targetIdx = i
			}
		case "namespace_import":
			if binding.ImportKind == extract.ImportNamespace && namespaceLocal(ft, item.node) == binding.LocalName {
				targetIdx = i
			}
		case "named_imports":
			if binding.ImportKind != extract.ImportNamed {
				continue
			}
			specs := namedSpecifiers(item.node)
			for _, spec := range specs {
				if specifierLocal(ft, spec) == binding.LocalName {
					if len(specs) > 1 {
						insideNamed = spec
					}
					targetIdx = i
				}
			}
		}
	}
	if targetIdx < 0 {
		return jstree.Edit{}, false
	}

	// Removing one specifier from shared braces keeps the declaration.
	if insideNamed != nil {
		return removeListItem(namedSpecifiers(items[targetIdx].node), insideNamed), true
	}

	// The target is a whole clause item; if it is the only one, the
	// declaration itself goes away.
	if len(items) == 1 {
		end := stmt.EndByte()
		if int(end) < len(ft.Source) && ft.Source[end] == '\n' {
			end++
		}
		return jstree.Edit{Start: stmt.StartByte(), End: end}, true
	}
	nodes := make([]*sitter.Node, len(items))
	for i, item := range items {
		nodes[i] = item.node
	}
	return removeListItemAt(nodes, targetIdx), true
}

type clauseItem struct {
	node *sitter.Node
}

// clauseItems returns the top-level specifiers of an import declaration in
// source order: a default identifier, a namespace import, or one
// named-imports brace group.
func clauseItems(ft *jstree.FileTree, stmt *sitter.Node) []clauseItem {
	var items []clauseItem
	for i := 0; i < int(stmt.NamedChildCount()); i++ {
		clause := stmt.NamedChild(i)
		if clause.Type() != "import_clause" {
			continue
		}
		for j := 0; j < int(clause.NamedChildCount()); j++ {
			c := clause.NamedChild(j)
			switch c.Type() {
			case "identifier", "namespace_import", "named_imports":
				items = append(items, clauseItem{node: c})
			}
		}
	}
	return items
}

func namedSpecifiers(namedImports *sitter.Node) []*sitter.Node {
	var specs []*sitter.Node
	for i := 0; i < int(namedImports.NamedChildCount()); i++ {
		if c := namedImports.NamedChild(i); c.Type() == "import_specifier" {
			specs = append(specs, c)
		}
	}
	return specs
}

func specifierLocal(ft *jstree.FileTree, spec *sitter.Node) string {
	if alias := spec.ChildByFieldName("alias"); alias != nil {
		return ft.Text(alias)
	}
	if name := spec.ChildByFieldName("name"); name != nil {
		return ft.Text(name)
	}
	return ""
}

func namespaceLocal(ft *jstree.FileTree, ns *sitter.Node) string {
	for i := 0; i < int(ns.NamedChildCount()); i++ {
		if c := ns.NamedChild(i); c.Type() == "identifier" {
			return ft.Text(c)
		}
	}
	return ""
}

func importSourceText(ft *jstree.FileTree, source *sitter.Node) string {
	text := ft.Text(source)
	if len(text) >= 2 {
		switch text[0] {
		case '"', '\'', '`':
			return text[1 : len(text)-1]
		}
	}
	return text
}

// removeListItem deletes target from a comma-separated node list, eating
// the separator toward its neighbor.
func removeListItem(list []*sitter.Node, target *sitter.Node) jstree.Edit {
	for i, n := range list {
		if n.StartByte() == target.StartByte() && n.EndByte() == target.EndByte() {
			return removeListItemAt(list, i)
		}
	}
	return jstree.Edit{Start: target.StartByte(), End: target.EndByte()}
}

func removeListItemAt(list []*sitter.Node, i int) jstree.Edit {
	if i < len(list)-1 {
		return jstree.Edit{Start: list[i].StartByte(), End: list[i+1].StartByte()}
	}
	if i > 0 {
		return jstree.Edit{Start: list[i-1].EndByte(), End: list[i].EndByte()}
	}
	return jstree.Edit{Start: list[i].StartByte(), End: list[i].EndByte()}
}

// prologueEnd returns the byte offset where a new import may be inserted:
// after a hashbang line and any leading string directives ("use client",
// "use strict"), otherwise the top of the file.
func prologueEnd(ft *jstree.FileTree) uint32 {
	var pos uint32
	root := ft.Root()
	for i := 0; i < int(root.NamedChildCount()); i++ {
		c := root.NamedChild(i)
		switch c.Type() {
		case "hash_bang_line":
			pos = c.EndByte()
		case "expression_statement":
			if c.NamedChildCount() == 1 && c.NamedChild(0).Type() == "string" {
				pos = c.EndByte()
				continue
			}
			return pos
		default:
			return pos
		}
	}
	return pos
}

// DescribeOutcome renders a short human-readable summary for reports.
func DescribeOutcome(o Outcome) string {
	var b strings.Builder
	b.WriteString(o.Status.String())
	if o.Rule != nil {
		fmt.Fprintf(&b, " (rule order %d)", o.Rule.Order)
	}
	if o.Reason != "" {
		fmt.Fprintf(&b, ": %s", o.Reason)
	}
	return b.String()
}
