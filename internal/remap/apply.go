package remap

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/migr8/internal/extract"
	"github.com/jward/migr8/internal/jstree"
)

// Status is the terminal state of one usage's migration pass.
type Status int

const (
	StatusSkipped Status = iota
	StatusPatched
	StatusReplaced
)

func (s Status) String() string {
	switch s {
	case StatusPatched:
		return "patched"
	case StatusReplaced:
		return "replaced"
	default:
		return "skipped"
	}
}

// ImportNeed asks the caller to guarantee an import for a newly referenced
// component name.
type ImportNeed struct {
	LocalName string
	Source    string
	Kind      extract.ImportKind
}

// Outcome is the result of applying (or failing to apply) a rule to one
// usage. A usage reaches exactly one terminal state per pass.
type Outcome struct {
	Status       Status
	Rule         *Rule
	Edits        []jstree.Edit
	EnsureImport *ImportNeed
	PruneOld     bool
	Reason       string
}

// Applier applies migrations to usages. It owns the compiled-template
// cache, whose lifecycle is one migration run; it is not a process-wide
// registry.
type Applier struct {
	templates map[string]*Template
	logger    *slog.Logger
}

// NewApplier returns an Applier with an empty template cache.
func NewApplier(logger *slog.Logger) *Applier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Applier{templates: make(map[string]*Template), logger: logger}
}

// Apply selects the winning rule for usage from mig and produces the edits
// that realize it. Rule failures are local: the usage is skipped with a
// reason and the rest of the batch proceeds.
func (a *Applier) Apply(ft *jstree.FileTree, usage *extract.JSXUsage, mig *Migration) Outcome {
	rule := SelectRule(mig.Rules, usage.Props)
	if rule == nil {
		return Outcome{Status: StatusSkipped, Reason: "no rule matched"}
	}
	if rule.ReplaceWith != nil {
		return a.applyReplace(ft, usage, mig, rule)
	}
	return a.applyInPlace(ft, usage, mig, rule)
}

// applyInPlace patches the opening element's attributes: remove, then
// rename (preserving the original value bytes), then set. When the
// migration redirects the import, the tag itself is renamed as well.
func (a *Applier) applyInPlace(ft *jstree.FileTree, usage *extract.JSXUsage, mig *Migration, rule *Rule) Outcome {
	out := Outcome{Status: StatusPatched, Rule: rule}

	removed := make(map[string]bool, len(rule.Remove))
	for _, name := range rule.Remove {
		removed[name] = true
	}
	consumed := make(map[string]bool)

	attrs := attributeNodes(ft, usage.Opener)
	insertAt := attrInsertionPoint(usage.Opener, attrs)

	for _, attr := range attrs {
		switch {
		case removed[attr.name]:
			out.Edits = append(out.Edits, jstree.Edit{
				Start: eatLeadingSpace(ft.Source, attr.node.StartByte()),
				End:   attr.node.EndByte(),
			})
		default:
			newName := attr.name
			if to, ok := rule.Rename[attr.name]; ok && to != "" {
				newName = to
			}
			if val, ok := rule.Set[newName]; ok {
				out.Edits = append(out.Edits, jstree.Edit{
					Start: attr.node.StartByte(),
					End:   attr.node.EndByte(),
					New:   []byte(renderAttr(newName, val)),
				})
				consumed[newName] = true
			} else if newName != attr.name {
				out.Edits = append(out.Edits, jstree.Edit{
					Start: attr.nameNode.StartByte(),
					End:   attr.nameNode.EndByte(),
					New:   []byte(newName),
				})
			}
		}
	}

	var inserted []string
	for _, name := range sortedSetKeys(rule.Set) {
		if consumed[name] {
			continue
		}
		inserted = append(inserted, renderAttr(name, rule.Set[name]))
	}
	if len(inserted) > 0 {
		out.Edits = append(out.Edits, jstree.Edit{
			Start: insertAt,
			End:   insertAt,
			New:   []byte(" " + strings.Join(inserted, " ")),
		})
	}

	a.applyImportTarget(ft, usage, mig, &out)
	return out
}

// applyReplace swaps the whole element for the rule's compiled template.
// Retained attributes (everything not removed, renamed, plus set values)
// are partitioned into the outer and inner placeholder buckets; the
// original children source is carried over verbatim.
func (a *Applier) applyReplace(ft *jstree.FileTree, usage *extract.JSXUsage, mig *Migration, rule *Rule) Outcome {
	tmpl, err := a.template(rule.ReplaceWith.Code)
	if err != nil {
		a.logger.Error("replaceWith template rejected",
			"file", usage.File, "component", usage.ComponentName, "error", err)
		return Outcome{Status: StatusSkipped, Rule: rule, Reason: err.Error()}
	}

	removed := make(map[string]bool, len(rule.Remove))
	for _, name := range rule.Remove {
		removed[name] = true
	}
	inner := make(map[string]bool, len(rule.ReplaceWith.InnerProps))
	for _, name := range rule.ReplaceWith.InnerProps {
		inner[name] = true
	}

	var sub Substitution
	add := func(name, text string) {
		// Without declared inner props every retained attribute goes to
		// the single outer placeholder.
		if len(inner) > 0 && inner[name] {
			sub.Inner = append(sub.Inner, text)
		} else {
			sub.Outer = append(sub.Outer, text)
		}
	}

	consumed := make(map[string]bool)
	for _, attr := range attributeNodes(ft, usage.Opener) {
		if removed[attr.name] {
			continue
		}
		newName := attr.name
		if to, ok := rule.Rename[attr.name]; ok && to != "" {
			newName = to
		}
		if val, ok := rule.Set[newName]; ok {
			add(newName, renderAttr(newName, val))
			consumed[newName] = true
			continue
		}
		// Original value bytes preserved verbatim, name possibly renamed.
		text := newName + string(ft.Source[attr.nameNode.EndByte():attr.node.EndByte()])
		add(newName, text)
	}
	for _, name := range sortedSetKeys(rule.Set) {
		if !consumed[name] {
			add(name, renderAttr(name, rule.Set[name]))
		}
	}

	sub.Children = childrenSource(ft, usage)

	out := Outcome{Status: StatusReplaced, Rule: rule}
	out.Edits = append(out.Edits, jstree.Edit{
		Start: usage.Element.StartByte(),
		End:   usage.Element.EndByte(),
		New:   []byte(tmpl.Render(sub)),
	})

	a.applyImportTarget(ft, usage, mig, &out)
	return out
}

// applyImportTarget handles the migration's importTo redirection: rename
// the tag in place (structural replacements already carry the new tag in
// their template), request the new import, and flag the old specifier for
// pruning.
func (a *Applier) applyImportTarget(ft *jstree.FileTree, usage *extract.JSXUsage, mig *Migration, out *Outcome) {
	to := mig.ImportTo
	if to == nil || to.ImportStm == "" {
		return
	}

	newLocal := to.Component
	if newLocal == "" {
		newLocal = usage.Import.LocalName
	}

	if out.Status == StatusPatched && newLocal != usage.Import.LocalName {
		for _, tag := range tagNameNodes(usage) {
			out.Edits = append(out.Edits, jstree.Edit{
				Start: tag.StartByte(),
				End:   tag.EndByte(),
				New:   []byte(newLocal),
			})
		}
	}

	kind := extract.ImportKind(to.ImportType)
	if kind == "" {
		kind = extract.ImportNamed
	}
	out.EnsureImport = &ImportNeed{LocalName: newLocal, Source: to.ImportStm, Kind: kind}
	out.PruneOld = to.ImportStm != usage.Import.Package || newLocal != usage.Import.LocalName
}

// template returns the compiled template for code, compiling it at most
// once per Applier.
func (a *Applier) template(code string) (*Template, error) {
	if t, ok := a.templates[code]; ok {
		return t, nil
	}
	t, err := CompileTemplate(code)
	if err != nil {
		return nil, err
	}
	a.templates[code] = t
	return t, nil
}

type attrNode struct {
	name     string
	node     *sitter.Node
	nameNode *sitter.Node
}

func attributeNodes(ft *jstree.FileTree, opener *sitter.Node) []attrNode {
	var out []attrNode
	for i := 0; i < int(opener.NamedChildCount()); i++ {
		c := opener.NamedChild(i)
		if c.Type() != "jsx_attribute" {
			continue
		}
		nameNode := c.NamedChild(0)
		if nameNode == nil {
			continue
		}
		out = append(out, attrNode{name: ft.Text(nameNode), node: c, nameNode: nameNode})
	}
	return out
}

// attrInsertionPoint is where new attributes are spliced in: after the last
// attribute, or after the tag name when there are none.
func attrInsertionPoint(opener *sitter.Node, attrs []attrNode) uint32 {
	if len(attrs) > 0 {
		return attrs[len(attrs)-1].node.EndByte()
	}
	var last uint32
	for i := 0; i < int(opener.NamedChildCount()); i++ {
		c := opener.NamedChild(i)
		if c.EndByte() > last && c.Type() != "jsx_attribute" {
			last = c.EndByte()
		}
	}
	return last
}

// tagNameNodes returns the opening (and closing, when present) tag-name
// nodes of a usage's element.
func tagNameNodes(usage *extract.JSXUsage) []*sitter.Node {
	var out []*sitter.Node
	if n := usage.Opener.ChildByFieldName("name"); n != nil {
		out = append(out, n)
	}
	if usage.SelfClosing {
		return out
	}
	for i := 0; i < int(usage.Element.NamedChildCount()); i++ {
		c := usage.Element.NamedChild(i)
		if c.Type() == "jsx_closing_element" {
			if n := c.ChildByFieldName("name"); n != nil {
				out = append(out, n)
			}
		}
	}
	return out
}

// childrenSource returns the verbatim source between the opening and
// closing tags, or "" for self-closing usages.
func childrenSource(ft *jstree.FileTree, usage *extract.JSXUsage) string {
	if usage.SelfClosing {
		return ""
	}
	var closing *sitter.Node
	for i := 0; i < int(usage.Element.NamedChildCount()); i++ {
		c := usage.Element.NamedChild(i)
		if c.Type() == "jsx_closing_element" {
			closing = c
		}
	}
	if closing == nil {
		return ""
	}
	return strings.TrimSpace(string(ft.Source[usage.Opener.EndByte():closing.StartByte()]))
}

// renderAttr renders a literal-typed attribute: strings as quoted JSX
// strings, booleans/numbers/null as expression-container literals.
func renderAttr(name string, v any) string {
	switch val := v.(type) {
	case string:
		if strings.Contains(val, `"`) {
			return fmt.Sprintf("%s='%s'", name, val)
		}
		return fmt.Sprintf("%s=%q", name, val)
	case bool:
		return fmt.Sprintf("%s={%t}", name, val)
	case float64:
		return fmt.Sprintf("%s={%s}", name, strconv.FormatFloat(val, 'g', -1, 64))
	case nil:
		return fmt.Sprintf("%s={null}", name)
	default:
		// Unreachable for validated rule files.
		return fmt.Sprintf("%s={null}", name)
	}
}

func sortedSetKeys(set map[string]any) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	// Deterministic insertion order keeps rewrites reproducible.
	sort.Strings(keys)
	return keys
}
