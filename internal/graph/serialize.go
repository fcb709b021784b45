package graph

import (
	"fmt"
	"sort"
	"time"

	"github.com/jward/migr8/internal/extract"
)

// The serialized form flattens every map into a sorted array of pairs and
// every set into a sorted array, so it round-trips through JSON without
// losing structure. Tree-node handles do not survive serialization: an
// expression prop value keeps only its kind and raw source text, and
// binding/usage node handles come back nil until the file is re-extracted.

type ImportRecord struct {
	ID           string `json:"id"`
	Package      string `json:"package"`
	File         string `json:"file"`
	ImportedName string `json:"importedName"`
	ImportKind   string `json:"importKind"`
	LocalName    string `json:"localName"`
}

type PropRecord struct {
	Name   string  `json:"name"`
	Kind   string  `json:"kind"`
	String string  `json:"string,omitempty"`
	Number float64 `json:"number,omitempty"`
	Bool   bool    `json:"bool,omitempty"`
	Raw    string  `json:"raw,omitempty"`
}

type UsageRecord struct {
	ID            string       `json:"id"`
	File          string       `json:"file"`
	ComponentName string       `json:"componentName"`
	ImportID      string       `json:"importId"`
	SelfClosing   bool         `json:"selfClosing"`
	Props         []PropRecord `json:"props,omitempty"`
}

type IndexEntry struct {
	Key string   `json:"key"`
	IDs []string `json:"ids"`
}

type Serialized struct {
	Imports          []ImportRecord `json:"imports"`
	JSX              []UsageRecord  `json:"jsx"`
	ImportsByFile    []IndexEntry   `json:"importsByFile"`
	ImportsByPackage []IndexEntry   `json:"importsByPackage"`
	JSXByFile        []IndexEntry   `json:"jsxByFile"`
	JSXByComponent   []IndexEntry   `json:"jsxByComponent"`
	TotalFiles       int            `json:"totalFiles"`
	TotalImports     int            `json:"totalImports"`
	TotalJSX         int            `json:"totalJsx"`
	BuiltAt          time.Time      `json:"builtAt"`
}

// Serialize converts the graph to its array-of-pairs form.
func (g *Graph) Serialize() *Serialized {
	s := &Serialized{
		TotalFiles:   g.TotalFiles,
		TotalImports: g.TotalImports,
		TotalJSX:     g.TotalJSX,
		BuiltAt:      g.BuiltAt,
	}

	idByBinding := make(map[*extract.ImportBinding]string, len(g.imports))
	for id, b := range g.imports {
		idByBinding[b] = id
		s.Imports = append(s.Imports, ImportRecord{
			ID:           id,
			Package:      b.Package,
			File:         b.File,
			ImportedName: b.ImportedName,
			ImportKind:   string(b.ImportKind),
			LocalName:    b.LocalName,
		})
	}
	sort.Slice(s.Imports, func(i, j int) bool { return s.Imports[i].ID < s.Imports[j].ID })

	for id, u := range g.jsx {
		rec := UsageRecord{
			ID:            id,
			File:          u.File,
			ComponentName: u.ComponentName,
			ImportID:      idByBinding[u.Import],
			SelfClosing:   u.SelfClosing,
		}
		for name, v := range u.Props {
			rec.Props = append(rec.Props, propRecord(name, v))
		}
		sort.Slice(rec.Props, func(i, j int) bool { return rec.Props[i].Name < rec.Props[j].Name })
		s.JSX = append(s.JSX, rec)
	}
	sort.Slice(s.JSX, func(i, j int) bool { return s.JSX[i].ID < s.JSX[j].ID })

	s.ImportsByFile = indexEntries(g.importsByFile)
	s.ImportsByPackage = indexEntries(g.importsByPackage)
	s.JSXByFile = indexEntries(g.jsxByFile)
	s.JSXByComponent = indexEntries(g.jsxByComponent)
	return s
}

// Deserialize rebuilds a graph from its serialized form. The reverse
// indexes are rebuilt from the primary records rather than trusted from the
// input, which restores the bidirectional map/index invariant by
// construction.
func Deserialize(s *Serialized) (*Graph, error) {
	g := New()
	g.BuiltAt = s.BuiltAt

	for _, rec := range s.Imports {
		if rec.ID == "" || rec.LocalName == "" || rec.ImportedName == "" {
			return nil, fmt.Errorf("graph: invalid import record %+v", rec)
		}
		b := &extract.ImportBinding{
			Package:      rec.Package,
			File:         rec.File,
			ImportedName: rec.ImportedName,
			ImportKind:   extract.ImportKind(rec.ImportKind),
			LocalName:    rec.LocalName,
		}
		g.imports[rec.ID] = b
		g.importKeys[b.Key()] = rec.ID
		addToIndex(g.importsByFile, b.File, rec.ID)
		addToIndex(g.importsByPackage, b.Package, rec.ID)
	}

	for _, rec := range s.JSX {
		b, ok := g.imports[rec.ImportID]
		if !ok {
			return nil, fmt.Errorf("graph: usage %s references unknown import %s", rec.ID, rec.ImportID)
		}
		u := &extract.JSXUsage{
			File:          rec.File,
			ComponentName: rec.ComponentName,
			Import:        b,
			Props:         make(map[string]extract.PropValue, len(rec.Props)),
			SelfClosing:   rec.SelfClosing,
		}
		for _, p := range rec.Props {
			v, err := propValue(p)
			if err != nil {
				return nil, err
			}
			u.Props[p.Name] = v
		}
		g.jsx[rec.ID] = u
		addToIndex(g.jsxByFile, u.File, rec.ID)
		addToIndex(g.jsxByComponent, u.ComponentName, rec.ID)
	}

	g.bumpCounters()
	g.Recount()
	return g, nil
}

func propRecord(name string, v extract.PropValue) PropRecord {
	rec := PropRecord{Name: name, Raw: v.Raw}
	switch v.Kind {
	case extract.PropString:
		rec.Kind = "string"
		rec.String = v.Str
	case extract.PropNumber:
		rec.Kind = "number"
		rec.Number = v.Num
	case extract.PropBool:
		rec.Kind = "boolean"
		rec.Bool = v.Bool
	case extract.PropNull:
		rec.Kind = "null"
	default:
		rec.Kind = "expression"
	}
	return rec
}

func propValue(rec PropRecord) (extract.PropValue, error) {
	switch rec.Kind {
	case "string":
		v := extract.StringValue(rec.String)
		v.Raw = rec.Raw
		return v, nil
	case "number":
		return extract.NumberValue(rec.Number, rec.Raw), nil
	case "boolean":
		v := extract.BoolValue(rec.Bool)
		v.Raw = rec.Raw
		return v, nil
	case "null":
		v := extract.NullValue()
		v.Raw = rec.Raw
		return v, nil
	case "expression":
		return extract.ExprValue(nil, rec.Raw), nil
	default:
		return extract.PropValue{}, fmt.Errorf("graph: unknown prop kind %q", rec.Kind)
	}
}

func indexEntries(index map[string]map[string]struct{}) []IndexEntry {
	out := make([]IndexEntry, 0, len(index))
	for key, set := range index {
		out = append(out, IndexEntry{Key: key, IDs: setToSorted(set)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
