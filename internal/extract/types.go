package extract

import (
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// ImportKind classifies how a binding was imported.
type ImportKind string

const (
	ImportNamed     ImportKind = "named"
	ImportDefault   ImportKind = "default"
	ImportNamespace ImportKind = "namespace"
)

// DefaultImportName is the sentinel imported name for default imports, and
// NamespaceImportName for `* as ns` imports.
const (
	DefaultImportName   = "default"
	NamespaceImportName = "*"
)

// ImportBinding links a locally bound identifier to the module and exported
// name it came from. Node is a non-owning handle into the file's tree.
type ImportBinding struct {
	Package      string
	File         string
	ImportedName string
	ImportKind   ImportKind
	LocalName    string
	Node         *sitter.Node
}

// Key identifies a binding for deduplication purposes.
func (b *ImportBinding) Key() string {
	return b.File + "\x00" + b.Package + "\x00" + b.ImportedName + "\x00" + b.LocalName
}

// PropKind tags the variant held by a PropValue.
type PropKind int

const (
	PropString PropKind = iota
	PropNumber
	PropBool
	PropNull
	PropExpr
)

// PropValue is a tagged variant: either a literal (string, number, boolean,
// null) or an opaque expression node handle into the owning file's tree.
// Raw always carries the value's source text as written.
type PropValue struct {
	Kind PropKind
	Str  string
	Num  float64
	Bool bool
	Expr *sitter.Node
	Raw  string
}

// StringValue builds a string literal PropValue.
func StringValue(s string) PropValue { return PropValue{Kind: PropString, Str: s, Raw: s} }

// BoolValue builds a boolean literal PropValue.
func BoolValue(b bool) PropValue {
	return PropValue{Kind: PropBool, Bool: b, Raw: fmt.Sprintf("%t", b)}
}

// NumberValue builds a numeric literal PropValue.
func NumberValue(n float64, raw string) PropValue {
	return PropValue{Kind: PropNumber, Num: n, Raw: raw}
}

// NullValue builds a null literal PropValue.
func NullValue() PropValue { return PropValue{Kind: PropNull, Raw: "null"} }

// ExprValue builds an opaque expression PropValue for {expr}-form attributes.
func ExprValue(node *sitter.Node, raw string) PropValue {
	return PropValue{Kind: PropExpr, Expr: node, Raw: raw}
}

// IsLiteral reports whether the value is a literal (not an opaque expression).
func (v PropValue) IsLiteral() bool { return v.Kind != PropExpr }

// Equal compares two prop values. Expressions compare by raw source text;
// literals compare by kind and value.
func (v PropValue) Equal(o PropValue) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case PropString:
		return v.Str == o.Str
	case PropNumber:
		return v.Num == o.Num
	case PropBool:
		return v.Bool == o.Bool
	case PropNull:
		return true
	default:
		return v.Raw == o.Raw
	}
}

// JSXUsage is one occurrence of an imported component's tag in a file.
// Element is the outermost node to replace for structural rewrites (the
// jsx_element, or the jsx_self_closing_element itself); Opener is the
// opening element carrying the attributes. Both are non-owning handles.
type JSXUsage struct {
	File          string
	ComponentName string
	Import        *ImportBinding
	Props         map[string]PropValue
	Opener        *sitter.Node
	Element       *sitter.Node
	SelfClosing   bool
}

// Warning records a specifier or element the extractor skipped without
// aborting the rest of the file.
type Warning struct {
	File    string
	Line    int
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s:%d: %s", w.File, w.Line, w.Message)
}

// Result is the extraction output for one file.
type Result struct {
	Imports  []*ImportBinding
	JSX      []*JSXUsage
	Warnings []Warning
}
