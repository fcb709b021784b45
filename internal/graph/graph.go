// Package graph holds the aggregate, queryable index over every file's
// import bindings and JSX usages: two primary id-keyed maps plus four
// reverse indexes (by file, by package, by file, by component). The graph
// owns its maps exclusively; the tree-node handles inside bindings and
// usages are non-owning references into per-file trees that must outlive
// the graph for any operation that later rewrites source.
package graph

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jward/migr8/internal/extract"
)

// Graph is the project-wide import/JSX index.
type Graph struct {
	imports map[string]*extract.ImportBinding
	jsx     map[string]*extract.JSXUsage

	importsByFile    map[string]map[string]struct{}
	importsByPackage map[string]map[string]struct{}
	jsxByFile        map[string]map[string]struct{}
	jsxByComponent   map[string]map[string]struct{}

	// importKeys maps a binding's dedup key to its id (first-seen wins).
	importKeys map[string]string

	nextImport int
	nextJSX    int

	TotalFiles   int
	TotalImports int
	TotalJSX     int
	BuiltAt      time.Time
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		imports:          make(map[string]*extract.ImportBinding),
		jsx:              make(map[string]*extract.JSXUsage),
		importsByFile:    make(map[string]map[string]struct{}),
		importsByPackage: make(map[string]map[string]struct{}),
		jsxByFile:        make(map[string]map[string]struct{}),
		jsxByComponent:   make(map[string]map[string]struct{}),
		importKeys:       make(map[string]string),
		BuiltAt:          time.Now(),
	}
}

// AddFile merges one file's extraction into the graph and recomputes the
// aggregate counters. Bindings whose (file, package, importedName,
// localName) already exist are dropped (first-seen wins), so re-adding a
// file without removing it first cannot duplicate bindings; usages arriving
// with a dropped binding are repointed at the stored one, so every usage in
// the graph resolves to a binding the graph actually holds. Each inserted
// record updates the primary map and its reverse indexes together; callers
// never observe a partial-index state.
func (g *Graph) AddFile(path string, res *extract.Result) {
	stored := make(map[*extract.ImportBinding]*extract.ImportBinding)
	for _, b := range res.Imports {
		key := b.Key()
		if prev, dup := g.importKeys[key]; dup {
			stored[b] = g.imports[prev]
			continue
		}
		id := g.newImportID()
		g.imports[id] = b
		g.importKeys[key] = id
		addToIndex(g.importsByFile, b.File, id)
		addToIndex(g.importsByPackage, b.Package, id)
	}
	for _, u := range res.JSX {
		if kept, ok := stored[u.Import]; ok {
			u.Import = kept
		}
		id := g.newJSXID()
		g.jsx[id] = u
		addToIndex(g.jsxByFile, u.File, id)
		addToIndex(g.jsxByComponent, u.ComponentName, id)
	}
	g.Recount()
}

// RemoveFile removes every binding and usage belonging to path, cascading
// to usages whose import reference came from that file and deleting any
// reverse-index bucket that becomes empty.
func (g *Graph) RemoveFile(path string) {
	for _, id := range setToSorted(g.jsxByFile[path]) {
		g.removeUsage(id)
	}
	removedImports := make(map[*extract.ImportBinding]bool)
	for _, id := range setToSorted(g.importsByFile[path]) {
		b := g.imports[id]
		removedImports[b] = true
		delete(g.imports, id)
		delete(g.importKeys, b.Key())
		removeFromIndex(g.importsByFile, b.File, id)
		removeFromIndex(g.importsByPackage, b.Package, id)
	}
	// A usage without a valid import reference is meaningless; sweep any
	// stragglers pointing at a binding that was just removed.
	for id, u := range g.jsx {
		if removedImports[u.Import] {
			g.removeUsage(id)
		}
	}
	g.Recount()
}

func (g *Graph) removeUsage(id string) {
	u, ok := g.jsx[id]
	if !ok {
		return
	}
	delete(g.jsx, id)
	removeFromIndex(g.jsxByFile, u.File, id)
	removeFromIndex(g.jsxByComponent, u.ComponentName, id)
}

// Files returns every file path the graph currently covers, sorted.
func (g *Graph) Files() []string {
	seen := make(map[string]struct{}, len(g.importsByFile))
	for f := range g.importsByFile {
		seen[f] = struct{}{}
	}
	for f := range g.jsxByFile {
		seen[f] = struct{}{}
	}
	return sortedKeys(seen)
}

// Import returns the binding stored under id.
func (g *Graph) Import(id string) (*extract.ImportBinding, bool) {
	b, ok := g.imports[id]
	return b, ok
}

// Usage returns the usage stored under id.
func (g *Graph) Usage(id string) (*extract.JSXUsage, bool) {
	u, ok := g.jsx[id]
	return u, ok
}

// ImportIDsByFile returns the sorted import ids for a file.
func (g *Graph) ImportIDsByFile(path string) []string {
	return setToSorted(g.importsByFile[path])
}

// ImportIDsByPackage returns the sorted import ids for a module specifier.
func (g *Graph) ImportIDsByPackage(pkg string) []string {
	return setToSorted(g.importsByPackage[pkg])
}

// UsageIDsByFile returns the sorted usage ids for a file.
func (g *Graph) UsageIDsByFile(path string) []string {
	return setToSorted(g.jsxByFile[path])
}

// UsageIDsByComponent returns the sorted usage ids for a component name.
func (g *Graph) UsageIDsByComponent(name string) []string {
	return setToSorted(g.jsxByComponent[name])
}

// UsagesByComponent returns the usages for a component name in id order.
func (g *Graph) UsagesByComponent(name string) []*extract.JSXUsage {
	ids := g.UsageIDsByComponent(name)
	out := make([]*extract.JSXUsage, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.jsx[id])
	}
	return out
}

// Packages returns every imported module specifier, sorted.
func (g *Graph) Packages() []string {
	set := make(map[string]struct{}, len(g.importsByPackage))
	for p := range g.importsByPackage {
		set[p] = struct{}{}
	}
	return sortedKeys(set)
}

// Components returns every component name with at least one usage, sorted.
func (g *Graph) Components() []string {
	set := make(map[string]struct{}, len(g.jsxByComponent))
	for c := range g.jsxByComponent {
		set[c] = struct{}{}
	}
	return sortedKeys(set)
}

// Recount recomputes the derived counters from the primary maps. Counters
// are never incrementally tracked; recomputation cannot drift.
func (g *Graph) Recount() {
	g.TotalImports = len(g.imports)
	g.TotalJSX = len(g.jsx)
	g.TotalFiles = len(g.Files())
}

// Clone returns a deep value-copy of the graph: fresh maps, fresh index
// sets, fresh binding and usage records. Tree-node handles are shared —
// they are non-owning references and remain valid only as long as the
// owning trees do.
func (g *Graph) Clone() *Graph {
	c := New()
	c.nextImport = g.nextImport
	c.nextJSX = g.nextJSX
	c.BuiltAt = g.BuiltAt

	bindingMap := make(map[*extract.ImportBinding]*extract.ImportBinding, len(g.imports))
	for id, b := range g.imports {
		nb := *b
		c.imports[id] = &nb
		c.importKeys[nb.Key()] = id
		bindingMap[b] = &nb
		addToIndex(c.importsByFile, nb.File, id)
		addToIndex(c.importsByPackage, nb.Package, id)
	}
	for id, u := range g.jsx {
		nu := *u
		nu.Props = make(map[string]extract.PropValue, len(u.Props))
		for k, v := range u.Props {
			nu.Props[k] = v
		}
		if mapped, ok := bindingMap[u.Import]; ok {
			nu.Import = mapped
		}
		c.jsx[id] = &nu
		addToIndex(c.jsxByFile, nu.File, id)
		addToIndex(c.jsxByComponent, nu.ComponentName, id)
	}
	c.Recount()
	return c
}

func (g *Graph) newImportID() string {
	g.nextImport++
	return fmt.Sprintf("imp_%d", g.nextImport)
}

func (g *Graph) newJSXID() string {
	g.nextJSX++
	return fmt.Sprintf("jsx_%d", g.nextJSX)
}

// bumpCounters raises the id counters above any id already present, so ids
// minted after a Deserialize cannot collide.
func (g *Graph) bumpCounters() {
	for id := range g.imports {
		if n, ok := idNumber(id, "imp_"); ok && n > g.nextImport {
			g.nextImport = n
		}
	}
	for id := range g.jsx {
		if n, ok := idNumber(id, "jsx_"); ok && n > g.nextJSX {
			g.nextJSX = n
		}
	}
}

func idNumber(id, prefix string) (int, bool) {
	if !strings.HasPrefix(id, prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(id[len(prefix):])
	if err != nil {
		return 0, false
	}
	return n, true
}

func addToIndex(index map[string]map[string]struct{}, key, id string) {
	set, ok := index[key]
	if !ok {
		set = make(map[string]struct{})
		index[key] = set
	}
	set[id] = struct{}{}
}

// removeFromIndex removes id from the bucket under key and deletes the
// bucket entirely when it becomes empty — no empty containers linger.
func removeFromIndex(index map[string]map[string]struct{}, key, id string) {
	set, ok := index[key]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(index, key)
	}
}

func setToSorted(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	return sortedKeys(set)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
