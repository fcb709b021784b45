package migr8

import (
	"context"
	"fmt"
	"io/fs"
	"os"

	"github.com/jward/migr8/internal/extract"
	"github.com/jward/migr8/internal/jstree"
	"github.com/jward/migr8/internal/remap"
)

// MigrateOptions controls one migration run. With Write false the run is a
// dry run: every file is transformed in memory and reported, nothing
// touches disk.
type MigrateOptions struct {
	Write bool
}

// ChangeEntry is one usage-level line in the migration manifest.
type ChangeEntry struct {
	File      string
	Component string
	Line      uint32
	Status    remap.Status
	Reason    string
}

// FileChange is the per-file result of a migration run. Output holds the
// rewritten source whether or not it was written back.
type FileChange struct {
	Path     string
	Patched  int
	Replaced int
	Skipped  int
	Output   []byte
	Written  bool
}

// MigrateResult aggregates a migration run.
type MigrateResult struct {
	Files    []*FileChange
	Manifest []ChangeEntry
	Patched  int
	Replaced int
	Skipped  int
	Errors   []*FileError
}

// Migrate loads a rule file, builds the graph, and applies every matching
// migration. Rewriting needs live parse trees for every file, so Migrate
// always runs a full build regardless of the cache state; the build still
// refreshes the snapshot for later queries.
func (e *Engine) Migrate(ctx context.Context, rulesPath string, opts MigrateOptions) (*MigrateResult, error) {
	rf, err := remap.LoadRuleFile(rulesPath)
	if err != nil {
		return nil, err
	}

	build, err := e.build(ctx, false)
	if err != nil {
		return nil, err
	}

	applier := remap.NewApplier(e.logger)
	res := &MigrateResult{Errors: build.Errors}

	for _, path := range build.Graph.Files() {
		fc, entries, ferr := e.migrateFile(build, applier, rf, path, opts.Write)
		if ferr != nil {
			res.Errors = append(res.Errors, ferr)
			continue
		}
		if fc == nil {
			continue
		}
		res.Files = append(res.Files, fc)
		res.Manifest = append(res.Manifest, entries...)
		res.Patched += fc.Patched
		res.Replaced += fc.Replaced
		res.Skipped += fc.Skipped
	}
	return res, nil
}

// migrateFile applies every matching migration to one file and splices the
// surviving edits in a single pass. Files with no matching usage return
// (nil, nil, nil).
func (e *Engine) migrateFile(build *BuildResult, applier *remap.Applier, rf *remap.RuleFile, path string, write bool) (*FileChange, []ChangeEntry, *FileError) {
	ft, ok := e.trees[path]
	if !ok {
		return nil, nil, &FileError{Op: "processAST", Path: path, Err: fmt.Errorf("no parse tree for file")}
	}

	fc := &FileChange{Path: path}
	var entries []ChangeEntry
	var edits []jstree.Edit

	// Imports are shared across usages, so import maintenance is resolved
	// per file after the usage loop: one ensure edit per (local, source)
	// pair, and the old binding is pruned only once every usage hanging
	// off it was moved. A fully moved binding whose target is the same
	// module gets its specifier renamed in place instead — prune-plus-
	// ensure against one declaration would cancel itself out.
	needs := make(map[string]remap.ImportNeed)
	needByBinding := make(map[*extract.ImportBinding]remap.ImportNeed)
	usageCount := make(map[*extract.ImportBinding]int)
	movedCount := make(map[*extract.ImportBinding]int)

	var usages []*extract.JSXUsage
	for _, id := range build.Graph.UsageIDsByFile(path) {
		u, ok := build.Graph.Usage(id)
		if !ok || u.Opener == nil {
			continue
		}
		usages = append(usages, u)
		usageCount[u.Import]++
	}

	for _, u := range usages {
		mig := rf.ForUsage(u.Import.Package, u.ComponentName)
		if mig == nil {
			continue
		}
		out := applier.Apply(ft, u, mig)
		entries = append(entries, ChangeEntry{
			File:      path,
			Component: u.ComponentName,
			Line:      u.Opener.StartPoint().Row + 1,
			Status:    out.Status,
			Reason:    out.Reason,
		})
		switch out.Status {
		case remap.StatusPatched:
			fc.Patched++
		case remap.StatusReplaced:
			fc.Replaced++
		default:
			fc.Skipped++
			continue
		}
		edits = append(edits, out.Edits...)

		if out.EnsureImport != nil {
			needs[out.EnsureImport.LocalName+"\x00"+out.EnsureImport.Source] = *out.EnsureImport
			needByBinding[u.Import] = *out.EnsureImport
		}
		if out.PruneOld {
			movedCount[u.Import]++
		}
	}

	if len(entries) == 0 {
		return nil, nil, nil
	}

	renamed := make(map[string]bool)
	for binding, moved := range movedCount {
		if moved != usageCount[binding] {
			continue
		}
		if need, ok := needByBinding[binding]; ok &&
			need.Source == binding.Package && need.Kind == extract.ImportNamed {
			// Rename only when the target name is not already bound;
			// otherwise the plain prune below is the whole job.
			if _, missing := remap.EnsureImportEdit(ft, need); missing {
				if ed, ok := remap.RenameImportSpecifierEdit(ft, binding, need.LocalName); ok {
					edits = append(edits, ed)
					renamed[need.LocalName+"\x00"+need.Source] = true
					continue
				}
			}
		}
		if ed, ok := remap.PruneImportEdit(ft, binding); ok {
			edits = append(edits, ed)
		}
	}
	for key, need := range needs {
		if renamed[key] {
			continue
		}
		if ed, needed := remap.EnsureImportEdit(ft, need); needed {
			edits = append(edits, ed)
		}
	}

	output, dropped := jstree.ApplyEdits(ft.Source, edits)
	for range dropped {
		e.logger.Warn("dropped overlapping edit", "file", path)
	}
	fc.Output = output

	if write && len(edits) > 0 {
		mode := fs.FileMode(0o644)
		if info, serr := os.Stat(path); serr == nil {
			mode = info.Mode().Perm()
		}
		if werr := os.WriteFile(path, output, mode); werr != nil {
			return nil, nil, &FileError{Op: "write", Path: path, Err: werr}
		}
		fc.Written = true
	}
	return fc, entries, nil
}
