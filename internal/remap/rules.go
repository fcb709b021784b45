// Package remap applies ordered, declarative migration rules to JSX usages:
// prop removal, renaming and setting in place, or wholesale structural
// replacement driven by a JSX template with placeholders. All rewriting is
// expressed as byte-range edits against the original source, so untouched
// code survives byte-identical.
package remap

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// RuleFile is the migration rule authoring format.
type RuleFile struct {
	Lookup     Lookup      `json:"lookup"`
	Migrations []Migration `json:"migr8rules"`
}

// Lookup records what the rule file was generated against.
type Lookup struct {
	RootPath   string   `json:"rootPath"`
	Packages   []string `json:"packages"`
	Components []string `json:"components"`
}

// Migration scopes an ordered rule list to one (package, component) pair,
// optionally redirecting the import to a new module.
type Migration struct {
	Package    string    `json:"package"`
	ImportType string    `json:"importType"`
	Component  string    `json:"component"`
	ImportTo   *ImportTo `json:"importTo,omitempty"`
	Rules      []Rule    `json:"rules"`
}

// ImportTo names the migration target: the module specifier to import from
// and the component name to use there.
type ImportTo struct {
	ImportStm  string `json:"importStm"`
	Component  string `json:"component"`
	ImportType string `json:"importType"`
}

// Rule is one match/transform instruction. Match is a disjunction of
// conjunctions: the rule matches a usage when any one object in Match has
// all of its props present on the usage with equal literal values. Lower
// Order wins among matching rules.
type Rule struct {
	Order       int               `json:"order"`
	Match       []map[string]any  `json:"match"`
	Set         map[string]any    `json:"set,omitempty"`
	Remove      []string          `json:"remove,omitempty"`
	Rename      map[string]string `json:"rename,omitempty"`
	ReplaceWith *Replacement      `json:"replaceWith,omitempty"`
}

// Replacement swaps the whole JSX node for the template in Code. Props named
// in InnerProps land on the template's inner spread placeholder; everything
// else goes to the outer one.
type Replacement struct {
	Code       string   `json:"code"`
	InnerProps []string `json:"INNER_PROPS,omitempty"`
}

// LoadRuleFile reads and validates a rule file. Validation is strict about
// value types: literal values in match and set must be strings, booleans,
// numbers, or null — anything richer is rejected here with a clear error
// rather than silently dropped during application.
func LoadRuleFile(path string) (*RuleFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("remap: read rules %s: %w", path, err)
	}
	var rf RuleFile
	if err := json.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("remap: parse rules %s: %w", path, err)
	}
	if err := rf.Validate(); err != nil {
		return nil, fmt.Errorf("remap: invalid rules %s: %w", path, err)
	}
	return &rf, nil
}

// Validate checks every migration and rule for structural problems.
func (rf *RuleFile) Validate() error {
	for mi, mig := range rf.Migrations {
		if mig.Package == "" || mig.Component == "" {
			return fmt.Errorf("migr8rules[%d]: package and component are required", mi)
		}
		for ri, rule := range mig.Rules {
			where := fmt.Sprintf("migr8rules[%d].rules[%d]", mi, ri)
			for _, conj := range rule.Match {
				for k, v := range conj {
					if !isLiteralValue(v) {
						return fmt.Errorf("%s: match value for %q must be string, boolean, number, or null", where, k)
					}
				}
			}
			for k, v := range rule.Set {
				if !isLiteralValue(v) {
					return fmt.Errorf("%s: set value for %q must be string, boolean, number, or null", where, k)
				}
				// Rendered string attributes pick whichever quote the value
				// does not contain; a value with both has no valid quoting.
				if s, ok := v.(string); ok && strings.Contains(s, `"`) && strings.Contains(s, "'") {
					return fmt.Errorf("%s: set value for %q cannot contain both single and double quotes", where, k)
				}
			}
			if rule.ReplaceWith != nil && rule.ReplaceWith.Code == "" {
				return fmt.Errorf("%s: replaceWith.code must be a non-empty template string", where)
			}
		}
	}
	return nil
}

// ForUsage returns the migration scoped to a (package, component) pair.
func (rf *RuleFile) ForUsage(pkg, component string) *Migration {
	for i := range rf.Migrations {
		m := &rf.Migrations[i]
		if m.Package == pkg && m.Component == component {
			return m
		}
	}
	return nil
}

// isLiteralValue reports whether a decoded JSON value is one of the literal
// types rules may carry.
func isLiteralValue(v any) bool {
	switch v.(type) {
	case string, bool, float64, nil:
		return true
	default:
		return false
	}
}

// SortRules orders rules ascending by Order, falling back to higher
// specificity (more match keys) and original position. Rule generators can
// merge lists from several passes and rely on this single deterministic
// final sort instead of threading counters through callbacks.
func SortRules(rules []Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Order != rules[j].Order {
			return rules[i].Order < rules[j].Order
		}
		return maxMatchKeys(rules[i]) > maxMatchKeys(rules[j])
	})
}

func maxMatchKeys(r Rule) int {
	most := 0
	for _, conj := range r.Match {
		if len(conj) > most {
			most = len(conj)
		}
	}
	return most
}
