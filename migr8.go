package migr8

import (
	"github.com/jward/migr8/internal/discovery"
	"github.com/jward/migr8/internal/extract"
	"github.com/jward/migr8/internal/graph"
	"github.com/jward/migr8/internal/remap"
	"github.com/jward/migr8/internal/snapshot"
)

// Public type aliases for internal types surfaced by the Engine API.
// These are Go type aliases (=) — identical to the internal types at
// compile time, so no conversion is ever needed.

type Graph = graph.Graph
type ImportBinding = extract.ImportBinding
type JSXUsage = extract.JSXUsage
type PropValue = extract.PropValue
type ExtractionWarning = extract.Warning
type Candidate = discovery.Candidate
type Snapshot = snapshot.Snapshot
type Decision = snapshot.Decision
type RuleFile = remap.RuleFile
type Migration = remap.Migration
type Rule = remap.Rule
type Outcome = remap.Outcome
