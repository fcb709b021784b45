package migr8

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/jward/migr8/internal/config"
	"github.com/jward/migr8/internal/discovery"
	"github.com/jward/migr8/internal/extract"
	"github.com/jward/migr8/internal/graph"
	"github.com/jward/migr8/internal/jstree"
	"github.com/jward/migr8/internal/snapshot"
)

// Engine orchestrates the migr8 pipeline: file discovery, change detection,
// parallel extraction, graph assembly, snapshotting, and rule application.
type Engine struct {
	root      string
	cfg       config.Config
	logger    *slog.Logger
	blacklist []string

	workers     int
	useParallel bool
	timeout     time.Duration
	incremental bool
	noCache     bool
	cacheDir    string

	scanner   *discovery.Scanner
	snapshots *snapshot.Manager

	// trees owns the parsed trees from the most recent build; the graph's
	// node handles point into them, so they must stay alive for as long as
	// the graph is used for rewriting.
	trees map[string]*jstree.FileTree
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the configuration loaded from .migr8.toml.
func WithConfig(cfg config.Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithLogger sets the ambient logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithBlacklist adds directory names that discovery never descends into.
func WithBlacklist(dirs ...string) Option {
	return func(e *Engine) { e.blacklist = append(e.blacklist, dirs...) }
}

// WithWorkers caps the extraction worker pool. Zero means NumCPU.
func WithWorkers(n int) Option {
	return func(e *Engine) { e.workers = n }
}

// WithParallel controls parallel extraction. When true (default), Build
// parses and extracts on a worker pool with a single goroutine merging
// results into the graph. Set to false for serial mode.
func WithParallel(parallel bool) Option {
	return func(e *Engine) { e.useParallel = parallel }
}

// WithTimeout sets the wall-clock budget for one build. Zero means none.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithIncremental controls whether Build may patch the cached snapshot
// instead of rebuilding. Default true.
func WithIncremental(incremental bool) Option {
	return func(e *Engine) { e.incremental = incremental }
}

// WithCacheDir overrides the snapshot cache directory.
func WithCacheDir(dir string) Option {
	return func(e *Engine) { e.cacheDir = dir }
}

// WithoutCache disables snapshot persistence entirely; every build is a
// full build.
func WithoutCache() Option {
	return func(e *Engine) { e.noCache = true }
}

// New creates an Engine rooted at root. The root must be an existing
// directory; anything else is an ErrValidation before any file processing
// begins. Configuration comes from root/.migr8.toml unless WithConfig
// overrides it.
func New(root string, opts ...Option) (*Engine, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving root %q: %v", ErrValidation, root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: root path %s is not readable: %v", ErrValidation, abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: root path %s is not a directory", ErrValidation, abs)
	}

	cfg, err := config.LoadForRoot(abs)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		root:        abs,
		cfg:         cfg,
		logger:      slog.Default(),
		workers:     cfg.Performance.Workers,
		useParallel: cfg.Performance.Parallel,
		timeout:     cfg.Timeout(),
		incremental: true,
		noCache:     cfg.Cache.Disabled,
		trees:       make(map[string]*jstree.FileTree),
	}
	for _, opt := range opts {
		opt(e)
	}

	for _, dir := range e.blacklist {
		if dir == "" || strings.ContainsRune(dir, os.PathSeparator) {
			return nil, fmt.Errorf("%w: blacklist entry %q must be a bare directory name", ErrValidation, dir)
		}
	}

	e.scanner = discovery.NewScanner(discovery.Options{
		IncludeGlobs:    e.cfg.Discovery.IncludeGlobs,
		ExcludeDirs:     append(append([]string{}, e.cfg.Discovery.ExcludeDirs...), e.blacklist...),
		MaxFileKB:       e.cfg.Discovery.MaxFileKB,
		MaxLines:        e.cfg.Discovery.MaxLines,
		SkipTestFiles:   e.cfg.Discovery.SkipTestFiles,
		SkipConfigFiles: e.cfg.Discovery.SkipConfigFiles,
		BatchSize:       e.cfg.Discovery.BatchSize,
	}, e.logger)

	if !e.noCache {
		dir := e.cacheDir
		if dir == "" {
			dir = e.cfg.CacheDir(abs)
		}
		e.snapshots = snapshot.NewManager(dir, e.cfg.Cache.MaxUpdates, e.logger)
	}
	return e, nil
}

// Root returns the engine's absolute project root.
func (e *Engine) Root() string { return e.root }

// CurrentSnapshot returns the active cached snapshot, if any.
func (e *Engine) CurrentSnapshot() *snapshot.Snapshot {
	if e.snapshots == nil {
		return nil
	}
	return e.snapshots.Current()
}

// UpdateLog returns the incremental updates applied since the current
// snapshot was created.
func (e *Engine) UpdateLog() []snapshot.UpdateRecord {
	if e.snapshots == nil {
		return nil
	}
	return e.snapshots.Updates()
}

// Tree returns the parsed tree for a file from the most recent build.
func (e *Engine) Tree(path string) (*jstree.FileTree, bool) {
	ft, ok := e.trees[path]
	return ft, ok
}

// Close releases every parsed tree the engine owns. Graphs produced by
// this engine must not be used for rewriting afterwards.
func (e *Engine) Close() error {
	for _, ft := range e.trees {
		ft.Close()
	}
	e.trees = make(map[string]*jstree.FileTree)
	return nil
}

// BuildStats summarizes one build.
type BuildStats struct {
	Discovered  int
	Skipped     int
	Processed   int
	Incremental bool
	SnapshotID  string
	Duration    time.Duration
}

// BuildResult is a best-effort result: the graph plus the full manifest of
// per-file failures and extraction warnings that were recovered along the
// way. Only validation and timeout abort a build entirely.
type BuildResult struct {
	Graph      *graph.Graph
	Stats      BuildStats
	Candidates []*discovery.Candidate
	Errors     []*FileError
	Warnings   []extract.Warning
}

// Build discovers, extracts, and assembles the project graph. When a usable
// snapshot exists and the change ratio is under the incremental threshold,
// only changed and added files are re-extracted against a clone of the
// cached graph; otherwise a full build runs and a new snapshot replaces the
// old one.
func (e *Engine) Build(ctx context.Context) (*BuildResult, error) {
	return e.build(ctx, e.incremental)
}

func (e *Engine) build(ctx context.Context, allowIncremental bool) (*BuildResult, error) {
	start := time.Now()
	clock := newClock(e.timeout)

	candidates, err := e.scanner.Discover(ctx, e.root)
	if err != nil {
		return nil, err
	}

	res := &BuildResult{Candidates: candidates}
	var processable []*discovery.Candidate
	for _, c := range candidates {
		if c.ShouldProcess {
			processable = append(processable, c)
		} else {
			res.Stats.Skipped++
		}
	}
	res.Stats.Discovered = len(candidates)

	// Read and hash every processable file up front; the same bytes feed
	// change detection and parsing.
	contents := make(map[string][]byte, len(processable))
	hashes := make(map[string]string, len(processable))
	for i, c := range processable {
		if err := clock.check(i); err != nil {
			return nil, err
		}
		data, rerr := os.ReadFile(c.Path)
		if rerr != nil {
			res.Errors = append(res.Errors, &FileError{Op: "read", Path: c.Path, Err: rerr})
			continue
		}
		contents[c.Path] = data
		hashes[c.Path] = snapshot.HashBytes(data)
	}

	if allowIncremental && e.snapshots != nil {
		if d := e.snapshots.CanUseIncremental(hashes); d.CanUse {
			return e.buildIncremental(ctx, d, contents, res, start, clock)
		} else if d.Reason != "" {
			e.logger.Info("full rebuild", "reason", d.Reason)
		}
	}
	return e.buildFull(ctx, processable, contents, hashes, res, start, clock)
}

// buildIncremental patches a clone of the snapshot graph with only the
// changed and added files. The snapshot itself stays in place; only the
// update log advances. The wall-clock budget applies here the same as to a
// full build: overrunning it aborts the update and discards partial state.
func (e *Engine) buildIncremental(ctx context.Context, d snapshot.Decision, contents map[string][]byte, res *BuildResult, start time.Time, clock *buildClock) (*BuildResult, error) {
	done := 0
	g, issues, err := e.snapshots.ApplyIncrementalUpdate(d, func(path string) (*extract.Result, error) {
		if cerr := clock.check(done); cerr != nil {
			return nil, fmt.Errorf("%w: %w", snapshot.ErrUpdateAborted, cerr)
		}
		if cerr := ctx.Err(); cerr != nil {
			return nil, fmt.Errorf("%w: %w", snapshot.ErrUpdateAborted, cerr)
		}
		done++
		data, ok := contents[path]
		if !ok {
			var rerr error
			if data, rerr = os.ReadFile(path); rerr != nil {
				return nil, &FileError{Op: "read", Path: path, Err: rerr}
			}
		}
		er, ft, ferr := e.extractOne(ctx, path, data)
		if ferr != nil {
			return nil, ferr
		}
		e.adoptTree(ft)
		res.Warnings = append(res.Warnings, er.Warnings...)
		return er, nil
	})
	if err != nil {
		e.Close()
		return nil, err
	}
	for _, issue := range issues {
		var ferr *FileError
		if errors.As(issue.Err, &ferr) {
			res.Errors = append(res.Errors, ferr)
			continue
		}
		res.Errors = append(res.Errors, &FileError{Op: "processAST", Path: issue.Path, Err: issue.Err})
	}

	res.Graph = g
	res.Stats.Processed = d.Delta()
	res.Stats.Incremental = true
	if cur := e.snapshots.Current(); cur != nil {
		res.Stats.SnapshotID = cur.ID
	}
	res.Stats.Duration = time.Since(start)
	e.logger.Info("incremental build",
		"changed", len(d.Changed), "added", len(d.Added), "deleted", len(d.Deleted),
		"duration", res.Stats.Duration.Round(time.Millisecond))
	return res, nil
}

func (e *Engine) buildFull(ctx context.Context, processable []*discovery.Candidate, contents map[string][]byte, hashes map[string]string, res *BuildResult, start time.Time, clock *buildClock) (*BuildResult, error) {
	g := graph.New()

	err := e.extractAll(ctx, processable, contents, clock, func(path string, er *extract.Result, ft *jstree.FileTree, ferr *FileError) {
		if ferr != nil {
			res.Errors = append(res.Errors, ferr)
			return
		}
		e.adoptTree(ft)
		res.Warnings = append(res.Warnings, er.Warnings...)
		g.AddFile(path, er)
		res.Stats.Processed++
	})
	if err != nil {
		// Timeout or cancellation: partial graph state is discarded.
		e.Close()
		return nil, err
	}

	res.Graph = g
	if e.snapshots != nil {
		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)
		res.Stats.SnapshotID = e.snapshots.CreateSnapshot(g, hashes, snapshot.Meta{
			FileCount:   res.Stats.Processed,
			Duration:    time.Since(start),
			MemoryBytes: mem.HeapAlloc,
		})
	}
	res.Stats.Duration = time.Since(start)
	e.logger.Info("full build",
		"files", res.Stats.Processed, "imports", g.TotalImports, "jsx", g.TotalJSX,
		"duration", res.Stats.Duration.Round(time.Millisecond))
	return res, nil
}

// extractOne parses and extracts a single file. Parse failures come back as
// a FileError; extraction-level problems are warnings inside the result.
func (e *Engine) extractOne(ctx context.Context, path string, content []byte) (*extract.Result, *jstree.FileTree, *FileError) {
	ft, err := jstree.Parse(ctx, path, content)
	if err != nil {
		return nil, nil, &FileError{Op: "parse", Path: path, Err: err}
	}
	return extract.Extract(ft), ft, nil
}

// adoptTree records a freshly parsed tree, closing any previous tree for
// the same path so stale node handles cannot be reached through the engine.
func (e *Engine) adoptTree(ft *jstree.FileTree) {
	if old, ok := e.trees[ft.Path]; ok {
		old.Close()
	}
	e.trees[ft.Path] = ft
}

// buildClock enforces the wall-clock budget at a fixed file-count cadence.
type buildClock struct {
	deadline time.Time
	budget   time.Duration
}

func newClock(budget time.Duration) *buildClock {
	c := &buildClock{budget: budget}
	if budget > 0 {
		c.deadline = time.Now().Add(budget)
	}
	return c
}

// check is called with a running file index and looks at the clock every
// 100 files.
func (c *buildClock) check(i int) error {
	if c.deadline.IsZero() || i%100 != 0 {
		return nil
	}
	if time.Now().After(c.deadline) {
		return fmt.Errorf("%w: exceeded %s", ErrTimeout, c.budget)
	}
	return nil
}
