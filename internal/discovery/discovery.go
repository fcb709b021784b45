// Package discovery enumerates candidate source files for graph building.
// It applies cheap line-level heuristics (never full parsing) to decide
// which files are worth extracting, assigns each a processing priority, and
// groups the survivors into batches. Heuristic results live in bounded,
// TTL-expiring caches; staleness across runs is the snapshot manager's
// problem, not this layer's.
package discovery

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultIncludeGlobs match the JavaScript language family.
var DefaultIncludeGlobs = []string{"**/*.js", "**/*.jsx", "**/*.ts", "**/*.tsx"}

// DefaultExcludeDirs are never descended into.
var DefaultExcludeDirs = []string{
	"node_modules", ".git", "dist", "build", "out", "coverage", ".next", ".cache",
}

// Candidate describes one discovered file and the filter verdict on it.
type Candidate struct {
	Path          string
	SizeBytes     int64
	LineCount     int
	HasImports    bool
	HasJSX        bool
	ImportHits    int
	JSXHits       int
	ModTime       time.Time
	Priority      float64
	ShouldProcess bool
	SkipReason    string
}

// Options tune discovery. Zero values fall back to the defaults below.
type Options struct {
	IncludeGlobs    []string
	ExcludeDirs     []string // merged with DefaultExcludeDirs
	MaxFileKB       int      // default 512
	MaxLines        int      // default 10000
	SkipTestFiles   bool
	SkipConfigFiles bool
	BatchSize       int           // default 100
	CacheTTL        time.Duration // default 5m
	CacheSize       int           // default 4096
}

func (o Options) withDefaults() Options {
	if len(o.IncludeGlobs) == 0 {
		o.IncludeGlobs = DefaultIncludeGlobs
	}
	if o.MaxFileKB <= 0 {
		o.MaxFileKB = 512
	}
	if o.MaxLines <= 0 {
		o.MaxLines = 10000
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = 5 * time.Minute
	}
	if o.CacheSize <= 0 {
		o.CacheSize = 4096
	}
	return o
}

// Scanner discovers and filters candidate files under a root.
type Scanner struct {
	opts    Options
	exclude map[string]bool
	scans   *expirable.LRU[string, contentScan]
	stats   *expirable.LRU[string, fs.FileInfo]
	logger  *slog.Logger
	nowFunc func() time.Time // test seam for the recency bonus
}

// NewScanner builds a Scanner; extra entries in opts.ExcludeDirs extend the
// default blacklist.
func NewScanner(opts Options, logger *slog.Logger) *Scanner {
	opts = opts.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	exclude := make(map[string]bool)
	for _, d := range DefaultExcludeDirs {
		exclude[d] = true
	}
	for _, d := range opts.ExcludeDirs {
		if d != "" {
			exclude[d] = true
		}
	}
	return &Scanner{
		opts:    opts,
		exclude: exclude,
		scans:   expirable.NewLRU[string, contentScan](opts.CacheSize, nil, opts.CacheTTL),
		stats:   expirable.NewLRU[string, fs.FileInfo](opts.CacheSize, nil, opts.CacheTTL),
		logger:  logger,
		nowFunc: time.Now,
	}
}

// Discover walks root and returns every include-matched file as a
// Candidate, filtered and priority-sorted descending. Files that fail the
// skip policy are still returned (ShouldProcess=false, SkipReason set) so
// callers can report them.
func (s *Scanner) Discover(ctx context.Context, root string) ([]*Candidate, error) {
	var candidates []*Candidate
	visited := 0

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.logger.Warn("discovery: skipping unreadable entry", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (s.exclude[name] || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}

		visited++
		if visited%256 == 0 {
			if cerr := ctx.Err(); cerr != nil {
				return cerr
			}
		}

		rel, rerr := filepath.Rel(root, path)
		if rerr != nil {
			rel = path
		}
		if !s.matchesInclude(filepath.ToSlash(rel)) {
			return nil
		}

		cand, cerr := s.examine(path)
		if cerr != nil {
			s.logger.Warn("discovery: cannot examine file", "path", path, "error", cerr)
			return nil
		}
		candidates = append(candidates, cand)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discovery: walk %s: %w", root, err)
	}

	SortByPriority(candidates)
	return candidates, nil
}

func (s *Scanner) matchesInclude(rel string) bool {
	for _, glob := range s.opts.IncludeGlobs {
		if ok, err := doublestar.Match(glob, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// examine stats and scans one file, producing its filter verdict and
// priority. Stat and scan results come from the TTL caches when warm.
func (s *Scanner) examine(path string) (*Candidate, error) {
	info, ok := s.stats.Get(path)
	if !ok {
		var err error
		info, err = os.Stat(path)
		if err != nil {
			return nil, err
		}
		s.stats.Add(path, info)
	}

	cand := &Candidate{
		Path:      path,
		SizeBytes: info.Size(),
		ModTime:   info.ModTime(),
	}

	// Size limit is checked before content is ever read.
	if cand.SizeBytes > int64(s.opts.MaxFileKB)*1024 {
		cand.SkipReason = fmt.Sprintf("file larger than %d KB", s.opts.MaxFileKB)
		return cand, nil
	}

	scan, ok := s.scans.Get(path)
	if !ok {
		var err error
		scan, err = scanContent(path)
		if err != nil {
			return nil, err
		}
		s.scans.Add(path, scan)
	}
	cand.LineCount = scan.lines
	cand.ImportHits = scan.importHits
	cand.JSXHits = scan.jsxHits
	cand.HasImports = scan.importHits > 0
	cand.HasJSX = scan.jsxHits > 0

	if reason := s.skipReason(cand, scan); reason != "" {
		cand.SkipReason = reason
		return cand, nil
	}

	cand.ShouldProcess = true
	cand.Priority = s.priority(cand)
	return cand, nil
}

// skipReason applies the skip policy in fixed order; the first matching
// reason wins.
func (s *Scanner) skipReason(cand *Candidate, scan contentScan) string {
	switch {
	case cand.LineCount > s.opts.MaxLines:
		return fmt.Sprintf("more than %d lines", s.opts.MaxLines)
	case scan.looksMinified(cand.SizeBytes):
		return "looks minified"
	case scan.generated || looksGeneratedName(cand.Path):
		return "generated file"
	case s.opts.SkipTestFiles && looksLikeTestFile(cand.Path):
		return "test/story file"
	case s.opts.SkipConfigFiles && looksLikeConfigFile(cand.Path):
		return "config file"
	case !cand.HasImports && !cand.HasJSX:
		return "no imports or jsx"
	}
	return ""
}

// priority scores a candidate for batch ordering; higher is processed
// first. JSX density weighs more than import density, component-bearing
// extensions get a bonus, size costs a little, and recently modified files
// get a small boost. Floored at zero.
func (s *Scanner) priority(cand *Candidate) float64 {
	p := float64(cand.ImportHits)*2 + float64(cand.JSXHits)*3
	switch strings.ToLower(filepath.Ext(cand.Path)) {
	case ".tsx", ".jsx":
		p += 10
	}
	p -= float64(cand.SizeBytes) / 1024 / 10
	if s.nowFunc().Sub(cand.ModTime) < 7*24*time.Hour {
		p += 5
	}
	if p < 0 {
		p = 0
	}
	return p
}
