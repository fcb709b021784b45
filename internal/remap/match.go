package remap

import "github.com/jward/migr8/internal/extract"

// Matches reports whether a usage's current prop set satisfies the rule:
// at least one conjunction in Match must hold, where a conjunction holds
// when every named prop is present with an equal literal value. Props the
// conjunction does not mention are ignored, not required absent. A rule
// with an empty Match list is a catch-all.
func Matches(rule *Rule, props map[string]extract.PropValue) bool {
	if len(rule.Match) == 0 {
		return true
	}
	for _, conj := range rule.Match {
		if conjunctionHolds(conj, props) {
			return true
		}
	}
	return false
}

func conjunctionHolds(conj map[string]any, props map[string]extract.PropValue) bool {
	for name, want := range conj {
		have, ok := props[name]
		if !ok || !literalEqual(have, want) {
			return false
		}
	}
	return true
}

// literalEqual compares an extracted prop value against a decoded JSON rule
// value. Opaque expressions never equal a rule literal.
func literalEqual(v extract.PropValue, want any) bool {
	switch w := want.(type) {
	case string:
		return v.Kind == extract.PropString && v.Str == w
	case float64:
		return v.Kind == extract.PropNumber && v.Num == w
	case bool:
		return v.Kind == extract.PropBool && v.Bool == w
	case nil:
		return v.Kind == extract.PropNull
	default:
		return false
	}
}

// SelectRule picks the winning rule for a usage: among matching rules the
// lowest Order wins, and on an Order tie the rule with more match keys in
// its satisfied conjunctions beats the more general one. Returns nil when
// nothing matches.
func SelectRule(rules []Rule, props map[string]extract.PropValue) *Rule {
	var best *Rule
	bestKeys := -1
	for i := range rules {
		r := &rules[i]
		if !Matches(r, props) {
			continue
		}
		keys := maxMatchKeys(*r)
		if best == nil || r.Order < best.Order || (r.Order == best.Order && keys > bestKeys) {
			best = r
			bestKeys = keys
		}
	}
	return best
}
