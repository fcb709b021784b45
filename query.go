package migr8

import (
	"sort"

	"github.com/jward/migr8/internal/extract"
	"github.com/jward/migr8/internal/graph"
)

// QueryBuilder is a fluent filter over a built graph. Builders are cheap;
// construct one per query and finish with Usages, Imports, Files, or Count.
//
//	hits := migr8.Query(g).FromPackage("@ui/kit").Component("Button").WithProp("variant").Usages()
type QueryBuilder struct {
	g         *graph.Graph
	pkg       string
	component string
	file      string
	props     []propFilter
}

type propFilter struct {
	name     string
	value    any
	hasValue bool
}

// Query starts a query over g.
func Query(g *graph.Graph) *QueryBuilder {
	return &QueryBuilder{g: g}
}

// FromPackage keeps usages whose import resolves to the given module
// specifier.
func (q *QueryBuilder) FromPackage(pkg string) *QueryBuilder {
	q.pkg = pkg
	return q
}

// Component keeps usages of the given component display name.
func (q *QueryBuilder) Component(name string) *QueryBuilder {
	q.component = name
	return q
}

// InFile keeps usages found in the given file.
func (q *QueryBuilder) InFile(path string) *QueryBuilder {
	q.file = path
	return q
}

// WithProp keeps usages carrying the named prop, whatever its value.
func (q *QueryBuilder) WithProp(name string) *QueryBuilder {
	q.props = append(q.props, propFilter{name: name})
	return q
}

// WithPropValue keeps usages whose named prop is a literal equal to value
// (string, bool, number, or nil). Expression-valued props never match.
func (q *QueryBuilder) WithPropValue(name string, value any) *QueryBuilder {
	q.props = append(q.props, propFilter{name: name, value: value, hasValue: true})
	return q
}

// Usages runs the query, ordered by file then source position.
func (q *QueryBuilder) Usages() []*extract.JSXUsage {
	var out []*extract.JSXUsage
	for _, id := range q.candidateIDs() {
		u, ok := q.g.Usage(id)
		if !ok || !q.matches(u) {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].File != out[j].File {
			return out[i].File < out[j].File
		}
		return openerStart(out[i]) < openerStart(out[j])
	})
	return out
}

// Count returns the number of matching usages.
func (q *QueryBuilder) Count() int {
	return len(q.Usages())
}

// Files returns the sorted set of files containing a match.
func (q *QueryBuilder) Files() []string {
	seen := make(map[string]struct{})
	for _, u := range q.Usages() {
		seen[u.File] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Imports returns the distinct import bindings behind the matching usages.
func (q *QueryBuilder) Imports() []*extract.ImportBinding {
	seen := make(map[*extract.ImportBinding]struct{})
	var out []*extract.ImportBinding
	for _, u := range q.Usages() {
		if _, dup := seen[u.Import]; dup {
			continue
		}
		seen[u.Import] = struct{}{}
		out = append(out, u.Import)
	}
	return out
}

// candidateIDs picks the narrowest available index as the scan set.
func (q *QueryBuilder) candidateIDs() []string {
	switch {
	case q.component != "":
		return q.g.UsageIDsByComponent(q.component)
	case q.file != "":
		return q.g.UsageIDsByFile(q.file)
	default:
		var ids []string
		for _, f := range q.g.Files() {
			ids = append(ids, q.g.UsageIDsByFile(f)...)
		}
		return ids
	}
}

func (q *QueryBuilder) matches(u *extract.JSXUsage) bool {
	if q.component != "" && u.ComponentName != q.component {
		return false
	}
	if q.file != "" && u.File != q.file {
		return false
	}
	if q.pkg != "" && (u.Import == nil || u.Import.Package != q.pkg) {
		return false
	}
	for _, pf := range q.props {
		v, ok := u.Props[pf.name]
		if !ok {
			return false
		}
		if pf.hasValue && !literalPropEqual(v, pf.value) {
			return false
		}
	}
	return true
}

func literalPropEqual(v extract.PropValue, want any) bool {
	switch w := want.(type) {
	case string:
		return v.Kind == extract.PropString && v.Str == w
	case bool:
		return v.Kind == extract.PropBool && v.Bool == w
	case float64:
		return v.Kind == extract.PropNumber && v.Num == w
	case int:
		return v.Kind == extract.PropNumber && v.Num == float64(w)
	case nil:
		return v.Kind == extract.PropNull
	}
	return false
}

func openerStart(u *extract.JSXUsage) uint32 {
	if u.Opener == nil {
		return 0
	}
	return u.Opener.StartByte()
}
