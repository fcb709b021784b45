// Package extract turns one parsed JavaScript/TypeScript/JSX file into two
// correlated record sets: import bindings, and JSX element usages whose tag
// resolves to one of those bindings. Extraction is a pure function of a
// single file's tree; it never touches shared state, which is what makes
// per-file extraction safely parallelizable.
package extract

import (
	"fmt"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/migr8/internal/jstree"
)

// Extract runs both extraction passes over ft: imports first, then JSX
// usages correlated against them. A malformed node is skipped with a
// warning; it never aborts the rest of the file.
func Extract(ft *jstree.FileTree) *Result {
	res := &Result{}
	extractImports(ft, res)
	extractJSX(ft, res)
	return res
}

// extractImports is pass 1: every import_statement contributes one binding
// per specifier. Specifiers whose derived names cannot both be produced
// non-empty are skipped with a warning, never inserted.
func extractImports(ft *jstree.FileTree, res *Result) {
	jstree.WalkNamed(ft.Root(), func(node *sitter.Node) bool {
		if node.Type() != "import_statement" {
			return true
		}
		processImport(ft, node, res)
		return false // nothing of interest below an import statement
	})
}

func processImport(ft *jstree.FileTree, stmt *sitter.Node, res *Result) {
	defer recoverNodeError(ft, stmt, res, "import statement")

	source := stmt.ChildByFieldName("source")
	if source == nil {
		return
	}
	pkg := stringContent(ft, source)
	if pkg == "" {
		res.Warnings = append(res.Warnings, warnAt(ft, stmt, "import with empty module specifier skipped"))
		return
	}

	for i := 0; i < int(stmt.NamedChildCount()); i++ {
		clause := stmt.NamedChild(i)
		if clause.Type() != "import_clause" {
			continue
		}
		for j := 0; j < int(clause.NamedChildCount()); j++ {
			spec := clause.NamedChild(j)
			switch spec.Type() {
			case "identifier":
				// Default import: import Button from "pkg".
				addBinding(ft, res, stmt, pkg, DefaultImportName, ft.Text(spec), ImportDefault)
			case "namespace_import":
				// import * as UI from "pkg".
				local := ""
				for k := 0; k < int(spec.NamedChildCount()); k++ {
					if c := spec.NamedChild(k); c.Type() == "identifier" {
						local = ft.Text(c)
					}
				}
				addBinding(ft, res, stmt, pkg, NamespaceImportName, local, ImportNamespace)
			case "named_imports":
				for k := 0; k < int(spec.NamedChildCount()); k++ {
					is := spec.NamedChild(k)
					if is.Type() != "import_specifier" {
						continue
					}
					imported, local := namedSpecifierNames(ft, is)
					addBinding(ft, res, stmt, pkg, imported, local, ImportNamed)
				}
			}
		}
	}
}

// namedSpecifierNames derives (importedName, localName) from an
// import_specifier, honoring `as`-aliasing. Without an alias the local name
// equals the imported name.
func namedSpecifierNames(ft *jstree.FileTree, spec *sitter.Node) (string, string) {
	imported := ""
	if name := spec.ChildByFieldName("name"); name != nil {
		imported = ft.Text(name)
	}
	local := imported
	if alias := spec.ChildByFieldName("alias"); alias != nil {
		local = ft.Text(alias)
	}
	return imported, local
}

func addBinding(ft *jstree.FileTree, res *Result, stmt *sitter.Node, pkg, imported, local string, kind ImportKind) {
	if imported == "" || local == "" {
		res.Warnings = append(res.Warnings, warnAt(ft, stmt,
			fmt.Sprintf("import from %q with empty derived name skipped", pkg)))
		return
	}
	res.Imports = append(res.Imports, &ImportBinding{
		Package:      pkg,
		File:         ft.Path,
		ImportedName: imported,
		ImportKind:   kind,
		LocalName:    local,
		Node:         stmt,
	})
}

// extractJSX is pass 2: correlate opening elements against the bindings
// found in pass 1. Elements whose tag matches no binding are descended into,
// so nested usages under unrelated markup are still found. When several
// bindings share a local name, the last-declared one wins.
func extractJSX(ft *jstree.FileTree, res *Result) {
	byLocal := make(map[string]*ImportBinding, len(res.Imports))
	for _, b := range res.Imports {
		byLocal[b.LocalName] = b
	}
	if len(byLocal) == 0 {
		return
	}

	jstree.WalkNamed(ft.Root(), func(node *sitter.Node) bool {
		switch node.Type() {
		case "jsx_opening_element":
			element := node.Parent() // enclosing jsx_element
			if element == nil {
				element = node
			}
			processElement(ft, byLocal, node, element, false, res)
		case "jsx_self_closing_element":
			processElement(ft, byLocal, node, node, true, res)
		}
		return true
	})
}

func processElement(ft *jstree.FileTree, byLocal map[string]*ImportBinding, opener, element *sitter.Node, selfClosing bool, res *Result) {
	defer recoverNodeError(ft, opener, res, "jsx element")

	tag := tagNameNode(opener)
	if tag == nil || tag.Type() != "identifier" {
		return // member expressions like <Foo.Bar> are out of scope
	}
	binding, ok := byLocal[ft.Text(tag)]
	if !ok {
		return // unrelated element; the walk keeps descending regardless
	}

	name := displayName(binding)
	if name == "" {
		res.Warnings = append(res.Warnings, warnAt(ft, opener, "jsx usage with empty component name skipped"))
		return
	}

	res.JSX = append(res.JSX, &JSXUsage{
		File:          ft.Path,
		ComponentName: name,
		Import:        binding,
		Props:         extractProps(ft, opener),
		Opener:        opener,
		Element:       element,
		SelfClosing:   selfClosing,
	})
}

// displayName canonicalizes a usage's component name: default and namespace
// imports display as the local name, named imports as the source-exported
// name so the graph stays stable across local aliasing.
func displayName(b *ImportBinding) string {
	switch b.ImportKind {
	case ImportNamed:
		return b.ImportedName
	default:
		return b.LocalName
	}
}

// tagNameNode returns the tag-name node of an opening or self-closing
// element, preferring the grammar's name field.
func tagNameNode(opener *sitter.Node) *sitter.Node {
	if n := opener.ChildByFieldName("name"); n != nil {
		return n
	}
	for i := 0; i < int(opener.NamedChildCount()); i++ {
		c := opener.NamedChild(i)
		switch c.Type() {
		case "identifier", "member_expression", "nested_identifier", "jsx_namespace_name":
			return c
		case "jsx_attribute":
			return nil
		}
	}
	return nil
}

// extractProps builds the attribute map for an opening element. String
// attribute values and simple literal expressions ({3}, {true}, {null},
// {"x"}) become literals; any other {expr} form stays an opaque expression
// handle; boolean shorthand attributes become the literal true. Spread
// attributes are opaque to prop matching and are not recorded.
func extractProps(ft *jstree.FileTree, opener *sitter.Node) map[string]PropValue {
	props := make(map[string]PropValue)
	for i := 0; i < int(opener.NamedChildCount()); i++ {
		attr := opener.NamedChild(i)
		if attr.Type() != "jsx_attribute" {
			continue
		}
		nameNode := attr.NamedChild(0)
		if nameNode == nil {
			continue
		}
		name := ft.Text(nameNode)
		if name == "" {
			continue
		}
		if attr.NamedChildCount() < 2 {
			props[name] = BoolValue(true) // <Button disabled>
			continue
		}
		props[name] = attrValue(ft, attr.NamedChild(1))
	}
	return props
}

func attrValue(ft *jstree.FileTree, value *sitter.Node) PropValue {
	switch value.Type() {
	case "string":
		return StringValue(stringContent(ft, value))
	case "jsx_expression":
		if value.NamedChildCount() == 1 {
			if v, ok := literalExpr(ft, value.NamedChild(0)); ok {
				return v
			}
		}
		return ExprValue(value, ft.Text(value))
	default:
		return ExprValue(value, ft.Text(value))
	}
}

// literalExpr unwraps a simple literal inside an expression container.
func literalExpr(ft *jstree.FileTree, expr *sitter.Node) (PropValue, bool) {
	switch expr.Type() {
	case "string":
		return StringValue(stringContent(ft, expr)), true
	case "number":
		raw := ft.Text(expr)
		if n, err := strconv.ParseFloat(raw, 64); err == nil {
			return NumberValue(n, raw), true
		}
		return PropValue{}, false
	case "true":
		return BoolValue(true), true
	case "false":
		return BoolValue(false), true
	case "null":
		return NullValue(), true
	default:
		return PropValue{}, false
	}
}

// stringContent returns the text inside a string node without its quotes.
func stringContent(ft *jstree.FileTree, node *sitter.Node) string {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		if c := node.NamedChild(i); c.Type() == "string_fragment" {
			return ft.Text(c)
		}
	}
	text := ft.Text(node)
	if len(text) >= 2 && (strings.HasPrefix(text, `"`) || strings.HasPrefix(text, "'") || strings.HasPrefix(text, "`")) {
		return text[1 : len(text)-1]
	}
	return text
}

func warnAt(ft *jstree.FileTree, node *sitter.Node, msg string) Warning {
	return Warning{File: ft.Path, Line: int(node.StartPoint().Row) + 1, Message: msg}
}

// recoverNodeError converts a panic while processing one node into a
// warning so a single bad node cannot take down the whole-file walk.
func recoverNodeError(ft *jstree.FileTree, node *sitter.Node, res *Result, what string) {
	if r := recover(); r != nil {
		res.Warnings = append(res.Warnings, warnAt(ft, node,
			fmt.Sprintf("skipped malformed %s: %v", what, r)))
	}
}
