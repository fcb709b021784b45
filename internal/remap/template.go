package remap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/migr8/internal/jstree"
)

// ErrTemplateShape is returned when a replaceWith template does not contain
// exactly one top-level JSX element.
var ErrTemplateShape = errors.New("template must contain one JSX element")

// Placeholder names a template may carry. OuterProps and InnerProps are
// spread-attribute placeholders; Children is an expression placeholder.
const (
	OuterPropsPlaceholder = "OUTER_PROPS"
	InnerPropsPlaceholder = "INNER_PROPS"
	ChildrenPlaceholder   = "CHILDREN"
)

// Substitution carries the concrete values for a template's placeholders:
// rendered attribute texts for the two spread buckets and the verbatim
// children source for {CHILDREN}.
type Substitution struct {
	Outer    []string
	Inner    []string
	Children string
}

// placeholderSpan is one placeholder occurrence, rebased to the element's
// own byte range.
type placeholderSpan struct {
	start, end uint32
	name       string
}

// Template is a compiled replaceWith template: the single top-level
// element's source text plus the placeholder spans inside it. Compile once
// per distinct code string; Render is cheap.
type Template struct {
	element      []byte
	placeholders []placeholderSpan
	hasInner     bool
}

// CompileTemplate parses code wrapped in a JSX fragment and locates its
// placeholders. The template must contain exactly one top-level element.
func CompileTemplate(code string) (*Template, error) {
	wrapped := []byte("<>" + code + "</>")
	ft, err := jstree.ParseAs(context.Background(), "template.tsx", wrapped, "tsx")
	if err != nil {
		return nil, fmt.Errorf("remap: parse template: %w", err)
	}
	defer ft.Close()

	element, err := singleTemplateElement(ft)
	if err != nil {
		return nil, err
	}

	base := element.StartByte()
	t := &Template{
		element: append([]byte(nil), wrapped[element.StartByte():element.EndByte()]...),
	}
	jstree.WalkNamed(element, func(node *sitter.Node) bool {
		if node.Type() != "jsx_expression" || node.NamedChildCount() != 1 {
			return true
		}
		inner := node.NamedChild(0)
		switch inner.Type() {
		case "identifier":
			if ft.Text(inner) == ChildrenPlaceholder {
				t.placeholders = append(t.placeholders, placeholderSpan{
					start: node.StartByte() - base,
					end:   node.EndByte() - base,
					name:  ChildrenPlaceholder,
				})
			}
		case "spread_element":
			if inner.NamedChildCount() != 1 {
				return true
			}
			arg := inner.NamedChild(0)
			if arg.Type() != "identifier" {
				return true
			}
			name := ft.Text(arg)
			if name != OuterPropsPlaceholder && name != InnerPropsPlaceholder {
				return true // a real spread, not ours
			}
			if name == InnerPropsPlaceholder {
				t.hasInner = true
			}
			t.placeholders = append(t.placeholders, placeholderSpan{
				start: node.StartByte() - base,
				end:   node.EndByte() - base,
				name:  name,
			})
		}
		return true
	})
	return t, nil
}

// HasInnerProps reports whether the template declares an inner spread
// placeholder (i.e. nests a second element that takes attributes).
func (t *Template) HasInnerProps() bool { return t.hasInner }

// Render substitutes the placeholders and returns the element's new source
// text. An unmapped or empty placeholder is removed entirely along with the
// whitespace that introduced it.
func (t *Template) Render(sub Substitution) string {
	var edits []jstree.Edit
	for _, p := range t.placeholders {
		var text string
		switch p.name {
		case OuterPropsPlaceholder:
			text = strings.Join(sub.Outer, " ")
		case InnerPropsPlaceholder:
			text = strings.Join(sub.Inner, " ")
		case ChildrenPlaceholder:
			text = sub.Children
		}
		start := p.start
		if text == "" {
			start = eatLeadingSpace(t.element, start)
		}
		edits = append(edits, jstree.Edit{Start: start, End: p.end, New: []byte(text)})
	}
	out, _ := jstree.ApplyEdits(t.element, edits)
	return string(out)
}

// singleTemplateElement returns the one top-level element inside the
// wrapping fragment, or ErrTemplateShape.
func singleTemplateElement(ft *jstree.FileTree) (*sitter.Node, error) {
	var fragment *sitter.Node
	jstree.WalkNamed(ft.Root(), func(node *sitter.Node) bool {
		if fragment != nil {
			return false
		}
		if node.Type() == "jsx_fragment" {
			fragment = node
			return false
		}
		return true
	})
	if fragment == nil {
		return nil, ErrTemplateShape
	}

	var elements []*sitter.Node
	for i := 0; i < int(fragment.NamedChildCount()); i++ {
		c := fragment.NamedChild(i)
		switch c.Type() {
		case "jsx_element", "jsx_self_closing_element":
			elements = append(elements, c)
		case "jsx_text":
			if strings.TrimSpace(ft.Text(c)) != "" {
				return nil, ErrTemplateShape
			}
		case "jsx_expression":
			return nil, ErrTemplateShape
		}
	}
	if len(elements) != 1 {
		return nil, ErrTemplateShape
	}
	return elements[0], nil
}

// eatLeadingSpace extends a deletion span backward over the whitespace run
// that precedes it, so removed placeholders leave no double gaps behind.
func eatLeadingSpace(src []byte, start uint32) uint32 {
	for start > 0 && unicode.IsSpace(rune(src[start-1])) {
		start--
	}
	return start
}
