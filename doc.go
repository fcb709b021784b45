// Package migr8 analyzes JavaScript/TypeScript/JSX codebases and migrates
// component APIs across them. It is built on tree-sitter and operates on
// syntactic import/JSX-tag correlation only: no type checking, no
// cross-module value resolution.
//
// # Pipeline
//
// A build runs in four phases:
//
//  1. Discover: enumerate candidate source files under a root, apply cheap
//     content heuristics (import statements, capitalized JSX tags,
//     minified/generated detection), and prioritize the survivors.
//  2. Extract: parse each file with tree-sitter and pull out import
//     bindings plus the JSX element usages whose tags resolve to them.
//     Extraction is per-file and runs on a worker pool.
//  3. Merge: fold per-file extractions into the ProjectGraph — an id-keyed
//     index with reverse lookups by file, package, and component — on a
//     single writer, in discovery priority order.
//  4. Snapshot: capture the graph with per-file content hashes so the next
//     run can detect exactly what changed and patch incrementally instead
//     of re-scanning everything.
//
// # Usage
//
// Create an Engine, build the graph, and query or migrate:
//
//	e, err := migr8.New("path/to/project")
//	if err != nil { ... }
//	defer e.Close()
//
//	ctx := context.Background()
//	res, err := e.Build(ctx)
//	usages := res.Graph.UsagesByComponent("Button")
//
//	mres, err := e.Migrate(ctx, "rules.json", migr8.MigrateOptions{Write: true})
//
// # Migration rules
//
// Rules are declarative JSON, scoped to a (package, component) pair. Each
// rule matches on current prop values and then removes, renames, and sets
// props in place — or replaces the whole element with a compiled JSX
// template carrying {...OUTER_PROPS}, {...INNER_PROPS}, and {CHILDREN}
// placeholders. Rewrites are byte-range splices against the original
// source, so untouched code survives byte-identical.
//
// # Incremental builds
//
// Each successful full build persists a snapshot (graph + 16-hex content
// hashes) to a JSON cache file under the project's cache directory. On the
// next run the engine diffs current hashes against the snapshot and, when
// fewer than 30% of candidates differ, patches a clone of the cached graph
// instead of rebuilding. A corrupt or deleted cache degrades to a cold
// start; it is never required for correctness.
package migr8
